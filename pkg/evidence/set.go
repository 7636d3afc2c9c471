package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Set is the read-only collection of evidence documents for one gate run,
// keyed by obligation id.
type Set struct {
	docs map[string]*Document
	dir  string
}

// NewSet builds a set from in-memory documents. Duplicate obligation ids
// are rejected; evidence for an obligation must be a single document.
func NewSet(docs ...*Document) (*Set, error) {
	s := &Set{docs: make(map[string]*Document, len(docs))}
	for _, d := range docs {
		if _, dup := s.docs[d.ObligationID]; dup {
			return nil, fmt.Errorf("evidence: duplicate document for obligation %q", d.ObligationID)
		}
		s.docs[d.ObligationID] = d
	}
	return s, nil
}

// EmptySet returns a set with no documents. Every lookup misses, so every
// check resolves to its no-evidence outcome.
func EmptySet() *Set {
	return &Set{docs: map[string]*Document{}}
}

// LoadDir reads every *.json document under dir. The file stem names the
// obligation the document attests; a document whose obligation_id disagrees
// with its file name is rejected. A missing directory is an error, an empty
// one is not.
func LoadDir(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("evidence: read dir %s: %w", dir, err)
	}

	s := &Set{docs: make(map[string]*Document), dir: dir}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("evidence: read %s: %w", path, err)
		}
		doc, err := ParseDocument(data, path)
		if err != nil {
			return nil, err
		}
		want := strings.TrimSuffix(entry.Name(), ".json")
		if doc.ObligationID != want {
			return nil, &MismatchedDocumentError{Source: path, Want: want, Got: doc.ObligationID}
		}
		s.docs[doc.ObligationID] = doc
	}
	return s, nil
}

// For returns the document captured for the obligation, or false when none
// was captured.
func (s *Set) For(obligationID string) (*Document, bool) {
	doc, ok := s.docs[obligationID]
	return doc, ok
}

// Has reports whether evidence was captured for the obligation.
func (s *Set) Has(obligationID string) bool {
	_, ok := s.docs[obligationID]
	return ok
}

// ObligationIDs lists the obligations with captured evidence, sorted.
func (s *Set) ObligationIDs() []string {
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of captured documents.
func (s *Set) Len() int { return len(s.docs) }

// Dir returns the directory the set was loaded from, empty for in-memory
// sets.
func (s *Set) Dir() string { return s.dir }
