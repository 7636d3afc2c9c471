package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/vigil/pkg/gate"
)

func check(id string, s gate.Status) gate.Check {
	return gate.Check{ObligationID: id, Status: s, Message: "test"}
}

func TestAggregatePriority(t *testing.T) {
	cases := []struct {
		name   string
		checks []gate.Check
		want   gate.Status
	}{
		{"empty set passes", nil, gate.StatusPass},
		{"all pass", []gate.Check{check("a", gate.StatusPass), check("b", gate.StatusPass)}, gate.StatusPass},
		{"skip makes partial", []gate.Check{check("a", gate.StatusPass), check("b", gate.StatusSkip)}, gate.StatusPartial},
		{"partial check makes partial", []gate.Check{check("a", gate.StatusPartial), check("b", gate.StatusPass)}, gate.StatusPartial},
		{"all skip is partial", []gate.Check{check("a", gate.StatusSkip)}, gate.StatusPartial},
		{"fail beats skip", []gate.Check{check("a", gate.StatusSkip), check("b", gate.StatusFail)}, gate.StatusFail},
		{"error beats fail", []gate.Check{check("a", gate.StatusFail), check("b", gate.StatusError)}, gate.StatusError},
		{"pending counts as error", []gate.Check{check("a", gate.StatusPending)}, gate.StatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Aggregate(tc.checks))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(gate.StatusPass, false))
	assert.Equal(t, 0, ExitCode(gate.StatusPass, true))
	assert.Equal(t, 0, ExitCode(gate.StatusPartial, false))
	assert.Equal(t, 1, ExitCode(gate.StatusPartial, true))
	assert.Equal(t, 1, ExitCode(gate.StatusFail, false))
	assert.Equal(t, 2, ExitCode(gate.StatusError, false))
	assert.Equal(t, 2, ExitCode(gate.StatusError, true))
}

func TestBuildSortsChecks(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(420 * time.Millisecond)

	r := Build([]gate.Check{
		check("observability.metrics.exposed", gate.StatusPass),
		check("cache.vary.honored", gate.StatusFail),
	}, started, finished)

	require.NotEmpty(t, r.RunID)
	assert.Equal(t, gate.StatusFail, r.Status)
	assert.Equal(t, finished, r.Timestamp)
	assert.Equal(t, 420*time.Millisecond, r.Duration)
	assert.Equal(t, "cache.vary.honored", r.Checks[0].ObligationID)
	assert.Equal(t, "observability.metrics.exposed", r.Checks[1].ObligationID)
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := Build([]gate.Check{
		check("cache.vary.honored", gate.StatusPass),
		check("fault.io.disk", gate.StatusSkip),
	}, started, started.Add(time.Second))

	persisted, err := w.Write(r)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "latest.json"), persisted.LatestPath)
	assert.Contains(t, persisted.HistoryPath, filepath.Join(dir, "history"))
	assert.Contains(t, persisted.ContentHash, "sha256:")

	loaded, err := Load(persisted.LatestPath)
	require.NoError(t, err)
	assert.Equal(t, r.RunID, loaded.RunID)
	assert.Equal(t, gate.StatusPartial, loaded.Status)
	assert.Equal(t, r.Checks, loaded.Checks)
	assert.Equal(t, r.Duration, loaded.Duration)

	fromHistory, err := Load(persisted.HistoryPath)
	require.NoError(t, err)
	assert.Equal(t, loaded, fromHistory)
}

func TestWriteKeepsHistoryAndIndex(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := Build([]gate.Check{check("a", gate.StatusPass)}, t0, t0.Add(time.Second))
	_, err := w.Write(first)
	require.NoError(t, err)

	t1 := t0.Add(time.Hour)
	second := Build([]gate.Check{check("a", gate.StatusFail)}, t1, t1.Add(time.Second))
	persisted, err := w.Write(second)
	require.NoError(t, err)

	// Latest reflects the newest run, history keeps both.
	latest, err := Load(filepath.Join(dir, "latest.json"))
	require.NoError(t, err)
	assert.Equal(t, second.RunID, latest.RunID)

	index, err := ReadIndex(dir)
	require.NoError(t, err)
	require.Len(t, index, 2)
	assert.Equal(t, first.RunID, index[0].RunID)
	assert.Equal(t, second.RunID, index[1].RunID)
	assert.Equal(t, persisted.ContentHash, index[1].SHA256)
	for _, e := range index {
		assert.Contains(t, e.SHA256, "sha256:")
	}
}

func TestLoadRejectsUnknownStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"run_id":"x","status":"MAYBE","checks":[]}`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}
