package ledger

import (
	"fmt"

	"github.com/Mindburn-Labs/vigil/pkg/insight"
)

// NotFoundError reports an insight id absent from the pending partition.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pending insight %q not found", e.ID)
}

// AlreadyCuratedError reports a second promotion of the same insight.
type AlreadyCuratedError struct {
	InsightID string
	CuratedID string
}

func (e *AlreadyCuratedError) Error() string {
	return fmt.Sprintf("insight %q already promoted as curated record %s", e.InsightID, e.CuratedID)
}

// BlockedByContradictionError reports an unresolved contradiction in
// the insight's group. Promotion of either side is blocked until a
// human resolves the pair; nothing is auto-resolved.
type BlockedByContradictionError struct {
	InsightID     string
	ConflictingID string
	GroupKey      string
}

func (e *BlockedByContradictionError) Error() string {
	return fmt.Sprintf("promotion of %q blocked: unresolved contradiction with %q in group %s",
		e.InsightID, e.ConflictingID, e.GroupKey)
}

// ScopeError reports a promotion attempt on an insight whose scope
// keeps it as historical reference.
type ScopeError struct {
	InsightID string
	Scope     insight.Scope
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("insight %q has scope %s and cannot be promoted", e.InsightID, e.Scope)
}

// ProposalPendingReviewError reports an attempt to consume an insight
// that has not been promoted, typically a PROPOSED new-obligation
// insight fed to the gate evaluator before human approval. It blocks
// adoption; it is not a crash.
type ProposalPendingReviewError struct {
	InsightID string
}

func (e *ProposalPendingReviewError) Error() string {
	return fmt.Sprintf("insight %q is pending review and cannot be used until promoted", e.InsightID)
}

// ChainError reports a broken hash chain detected on open or verify.
type ChainError struct {
	Sequence uint64
	Detail   string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("ledger chain broken at entry %d: %s", e.Sequence, e.Detail)
}
