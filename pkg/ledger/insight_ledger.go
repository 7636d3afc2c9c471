package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/vigil/pkg/insight"
)

// Reviewer identifies the human or maintainer approving a promotion.
// The signature, when present, is produced by the curation layer over
// the canonical form of the promoted record.
type Reviewer struct {
	ID        string `json:"id"`
	Signature string `json:"signature,omitempty"`
}

// CuratedInsight is the record appended on promotion. It carries a
// copy of the promoted insight and a reference back to the pending
// record; the pending record itself is never mutated.
type CuratedInsight struct {
	ID           string          `json:"id"`
	Insight      insight.Insight `json:"insight"`
	PromotedFrom string          `json:"promoted_from"`
	ReviewerID   string          `json:"reviewer_id"`
	Signature    string          `json:"signature,omitempty"`
	PromotedAt   time.Time       `json:"promoted_at"`
}

// Ledger is the two-partition insight ledger. All writes go through
// the hash chain and the backing store; in-memory indexes are rebuilt
// from the chain on open.
type Ledger struct {
	mu    sync.RWMutex
	chain *Chain
	store Store

	pending      map[string]*insight.Insight
	curated      map[string]*CuratedInsight
	promotedFrom map[string]string   // pending id -> curated id
	groups       map[string][]string // group key -> pending ids, append order
}

// Open loads the ledger from the store, verifying the hash chain and
// rebuilding both partitions. An empty store yields an empty ledger.
func Open(ctx context.Context, store Store) (*Ledger, error) {
	entries, err := store.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger entries: %w", err)
	}

	l := &Ledger{
		chain:        NewChain(),
		store:        store,
		pending:      make(map[string]*insight.Insight),
		curated:      make(map[string]*CuratedInsight),
		promotedFrom: make(map[string]string),
		groups:       make(map[string][]string),
	}
	if err := l.chain.replay(entries); err != nil {
		return nil, err
	}

	for i := range entries {
		e := &entries[i]
		switch e.EntryType {
		case EntryInsightRecorded:
			var ins insight.Insight
			if err := json.Unmarshal(e.Payload, &ins); err != nil {
				return nil, fmt.Errorf("decode entry %d payload: %w", e.Sequence, err)
			}
			l.indexPending(&ins)
		case EntryInsightPromoted:
			var cur CuratedInsight
			if err := json.Unmarshal(e.Payload, &cur); err != nil {
				return nil, fmt.Errorf("decode entry %d payload: %w", e.Sequence, err)
			}
			l.indexCurated(&cur)
		default:
			return nil, fmt.Errorf("entry %d has unknown type %q", e.Sequence, e.EntryType)
		}
	}
	return l, nil
}

// WithClock overrides the clock for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.chain.WithClock(clock)
	return l
}

func (l *Ledger) indexPending(ins *insight.Insight) {
	l.pending[ins.ID] = ins
	key := ins.GroupKey()
	l.groups[key] = append(l.groups[key], ins.ID)
}

func (l *Ledger) indexCurated(cur *CuratedInsight) {
	l.curated[cur.ID] = cur
	l.promotedFrom[cur.PromotedFrom] = cur.ID
}

// Record appends an insight to the pending partition.
func (l *Ledger) Record(ctx context.Context, ins *insight.Insight) (*Entry, error) {
	if ins.ID == "" || ins.Invariant == "" {
		return nil, fmt.Errorf("insight must have id and invariant")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.pending[ins.ID]; exists {
		return nil, fmt.Errorf("insight %q already recorded", ins.ID)
	}

	payload, err := json.Marshal(ins)
	if err != nil {
		return nil, fmt.Errorf("marshal insight %q: %w", ins.ID, err)
	}
	entry, err := l.appendThrough(ctx, EntryInsightRecorded, ins.Source, payload)
	if err != nil {
		return nil, err
	}

	cp := *ins
	l.indexPending(&cp)
	return entry, nil
}

// Promote appends a curated record for a pending insight after the
// reviewer's explicit approval. It fails without side effects when the
// insight is unknown, already curated, scoped as non-generalizable, or
// part of an unresolved contradiction in its group.
func (l *Ledger) Promote(ctx context.Context, insightID string, rev Reviewer) (*CuratedInsight, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ins, ok := l.pending[insightID]
	if !ok {
		return nil, &NotFoundError{ID: insightID}
	}
	if curID, done := l.promotedFrom[insightID]; done {
		return nil, &AlreadyCuratedError{InsightID: insightID, CuratedID: curID}
	}
	if !ins.Promotable() {
		return nil, &ScopeError{InsightID: insightID, Scope: ins.Scope}
	}

	key := ins.GroupKey()
	for _, peerID := range l.groups[key] {
		if peerID == insightID {
			continue
		}
		peer := l.pending[peerID]
		if insight.Classify(ins, peer) == insight.RelationContradictory {
			return nil, &BlockedByContradictionError{
				InsightID:     insightID,
				ConflictingID: peerID,
				GroupKey:      key,
			}
		}
	}

	cur := &CuratedInsight{
		ID:           uuid.NewString(),
		Insight:      *ins,
		PromotedFrom: insightID,
		ReviewerID:   rev.ID,
		Signature:    rev.Signature,
		PromotedAt:   l.chain.clock(),
	}
	payload, err := json.Marshal(cur)
	if err != nil {
		return nil, fmt.Errorf("marshal curated record: %w", err)
	}
	if _, err := l.appendThrough(ctx, EntryInsightPromoted, rev.ID, payload); err != nil {
		return nil, err
	}

	l.indexCurated(cur)
	out := *cur
	return &out, nil
}

// appendThrough appends to the chain and writes through to the store,
// rolling the chain back if the persist fails. Callers hold l.mu.
func (l *Ledger) appendThrough(ctx context.Context, entryType, author string, payload json.RawMessage) (*Entry, error) {
	entry, err := l.chain.Append(entryType, author, payload)
	if err != nil {
		return nil, err
	}
	if err := l.store.AppendEntry(ctx, entry); err != nil {
		l.chain.rollback(entry.Sequence)
		return nil, fmt.Errorf("persist ledger entry %d: %w", entry.Sequence, err)
	}
	return entry, nil
}

// Pending returns the pending partition sorted by insight id.
func (l *Ledger) Pending() []*insight.Insight {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*insight.Insight, 0, len(l.pending))
	for _, ins := range l.pending {
		cp := *ins
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PendingInsight returns one pending insight by id.
func (l *Ledger) PendingInsight(id string) (*insight.Insight, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ins, ok := l.pending[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	cp := *ins
	return &cp, nil
}

// Curated returns the curated partition sorted by promotion time,
// then record id.
func (l *Ledger) Curated() []*CuratedInsight {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*CuratedInsight, 0, len(l.curated))
	for _, cur := range l.curated {
		cp := *cur
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PromotedAt.Equal(out[j].PromotedAt) {
			return out[i].PromotedAt.Before(out[j].PromotedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CuratedForObligation returns curated insights bound to the given
// obligation, in promotion order. Proposals for new obligations are
// never returned here.
func (l *Ledger) CuratedForObligation(obligationID string) []*CuratedInsight {
	all := l.Curated()
	out := make([]*CuratedInsight, 0, len(all))
	for _, cur := range all {
		if cur.Insight.ObligationID != nil && *cur.Insight.ObligationID == obligationID {
			out = append(out, cur)
		}
	}
	return out
}

// Group returns the pending insights sharing a group key, in append
// order.
func (l *Ledger) Group(key string) []*insight.Insight {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.groups[key]
	out := make([]*insight.Insight, 0, len(ids))
	for _, id := range ids {
		cp := *l.pending[id]
		out = append(out, &cp)
	}
	return out
}

// Resolve returns the curated record for an insight id, accepting
// either the curated record id or the pending id it was promoted
// from. A pending insight that has not been promoted resolves to
// ProposalPendingReviewError so callers cannot consume it early.
func (l *Ledger) Resolve(id string) (*CuratedInsight, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cur, ok := l.curated[id]; ok {
		cp := *cur
		return &cp, nil
	}
	if curID, ok := l.promotedFrom[id]; ok {
		cp := *l.curated[curID]
		return &cp, nil
	}
	if _, ok := l.pending[id]; ok {
		return nil, &ProposalPendingReviewError{InsightID: id}
	}
	return nil, &NotFoundError{ID: id}
}

// Verify checks the integrity of the underlying chain.
func (l *Ledger) Verify() (bool, string) {
	return l.chain.Verify()
}

// Head returns the chain head hash.
func (l *Ledger) Head() string { return l.chain.Head() }

// Length returns the number of chain entries.
func (l *Ledger) Length() int { return l.chain.Length() }
