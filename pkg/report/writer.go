package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/vigil/pkg/gate"
)

// PersistError reports a failed report write. Persistence failures are
// fatal to the run: a gate whose verdict cannot be recorded did not
// happen.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("report: persist %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Persisted describes where one report landed.
type Persisted struct {
	LatestPath  string
	HistoryPath string
	ContentHash string
}

// IndexEntry is one history record in the report index.
type IndexEntry struct {
	File      string      `json:"file"`
	SHA256    string      `json:"sha256"`
	RunID     string      `json:"run_id"`
	Status    gate.Status `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// Writer persists gate reports under one directory: latest.json for
// the current verdict, history/ for every past run, index.json with a
// canonical content hash per history entry.
type Writer struct {
	dir string
}

// NewWriter writes reports under dir, creating it on first use.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write persists the report. The history copy is written first, then
// the latest pointer is replaced via rename so readers never observe a
// torn report.
func (w *Writer) Write(r *Report) (*Persisted, error) {
	historyDir := filepath.Join(w.dir, "history")
	if err := os.MkdirAll(historyDir, 0o750); err != nil {
		return nil, &PersistError{Path: historyDir, Err: err}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, &PersistError{Path: w.dir, Err: err}
	}
	data = append(data, '\n')

	hash, err := contentHash(data)
	if err != nil {
		return nil, &PersistError{Path: w.dir, Err: err}
	}

	historyPath := filepath.Join(historyDir, r.Timestamp.UTC().Format(time.RFC3339Nano)+".json")
	if err := os.WriteFile(historyPath, data, 0o600); err != nil {
		return nil, &PersistError{Path: historyPath, Err: err}
	}

	latestPath := filepath.Join(w.dir, "latest.json")
	tmp := latestPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return nil, &PersistError{Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, latestPath); err != nil {
		_ = os.Remove(tmp)
		return nil, &PersistError{Path: latestPath, Err: err}
	}

	if err := w.writeIndex(historyDir); err != nil {
		return nil, err
	}
	return &Persisted{LatestPath: latestPath, HistoryPath: historyPath, ContentHash: hash}, nil
}

// writeIndex rebuilds index.json from the history directory so the
// index always reflects what is actually on disk.
func (w *Writer) writeIndex(historyDir string) error {
	entries, err := os.ReadDir(historyDir)
	if err != nil {
		return &PersistError{Path: historyDir, Err: err}
	}

	index := make([]IndexEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(historyDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return &PersistError{Path: path, Err: err}
		}
		hash, err := contentHash(data)
		if err != nil {
			return &PersistError{Path: path, Err: err}
		}
		var r Report
		if err := json.Unmarshal(data, &r); err != nil {
			return &PersistError{Path: path, Err: err}
		}
		index = append(index, IndexEntry{
			File:      filepath.Join("history", entry.Name()),
			SHA256:    hash,
			RunID:     r.RunID,
			Status:    r.Status,
			Timestamp: r.Timestamp,
		})
	}
	sort.Slice(index, func(i, j int) bool { return index[i].File < index[j].File })

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return &PersistError{Path: w.dir, Err: err}
	}
	data = append(data, '\n')

	indexPath := filepath.Join(w.dir, "index.json")
	if err := os.WriteFile(indexPath, data, 0o600); err != nil {
		return &PersistError{Path: indexPath, Err: err}
	}
	return nil
}

// contentHash is the sha256 of the report's canonical JSON form, so
// reformatting a stored file is detectable but not a false alarm.
func contentHash(data []byte) (string, error) {
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize report: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// Load reads a persisted report back. Unknown statuses are rejected so
// a corrupted or foreign file cannot masquerade as a verdict.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("report: read %s: %w", path, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: decode %s: %w", path, err)
	}
	if !r.Status.Valid() {
		return nil, fmt.Errorf("report: %s has unknown status %q", path, r.Status)
	}
	for _, c := range r.Checks {
		if !c.Status.Valid() {
			return nil, fmt.Errorf("report: %s check %s has unknown status %q", path, c.ObligationID, c.Status)
		}
	}
	return &r, nil
}

// ReadIndex loads the report index from a report directory.
func ReadIndex(dir string) ([]IndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(dir, "index.json"))
	if err != nil {
		return nil, fmt.Errorf("report: read index: %w", err)
	}
	var index []IndexEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("report: decode index: %w", err)
	}
	return index, nil
}
