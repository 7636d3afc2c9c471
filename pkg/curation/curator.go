package curation

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/vigil/pkg/insight"
	"github.com/Mindburn-Labs/vigil/pkg/ledger"
)

// promotionAttestation is the signed statement: this reviewer
// approved promoting exactly this insight content. It is rebuilt from
// the curated record at verification time, so any edit to the
// promoted content breaks the signature.
type promotionAttestation struct {
	Insight  insight.Insight `json:"insight"`
	Reviewer string          `json:"reviewer"`
}

func attestationMessage(ins *insight.Insight, reviewerID string) ([]byte, error) {
	raw, err := json.Marshal(promotionAttestation{Insight: *ins, Reviewer: reviewerID})
	if err != nil {
		return nil, fmt.Errorf("marshal attestation: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize attestation: %w", err)
	}
	return canonical, nil
}

// Curator performs approved promotions against the ledger.
type Curator struct {
	ledger   *ledger.Ledger
	keyring  *Keyring
	approver *Approver
}

// NewCurator wires the ledger, the master keyring, and the approver.
func NewCurator(l *ledger.Ledger, k *Keyring, a *Approver) *Curator {
	return &Curator{ledger: l, keyring: k, approver: a}
}

// Promote validates the approval token, signs the promotion with the
// reviewer's derived key, and appends the curated record. The ledger
// still enforces its own rules; an approval token cannot push an
// insight past a contradiction or a scope exclusion.
func (c *Curator) Promote(ctx context.Context, insightID, approvalToken string) (*ledger.CuratedInsight, error) {
	claims, err := c.approver.Validate(approvalToken)
	if err != nil {
		return nil, err
	}
	if claims.InsightID != insightID {
		return nil, &ApprovalError{
			Detail: fmt.Sprintf("token approves insight %q, not %q", claims.InsightID, insightID),
		}
	}

	ins, err := c.ledger.PendingInsight(insightID)
	if err != nil {
		return nil, err
	}

	reviewerID := claims.Subject
	reviewerKeys, err := c.keyring.DeriveForReviewer(reviewerID)
	if err != nil {
		return nil, fmt.Errorf("derive reviewer key: %w", err)
	}
	msg, err := attestationMessage(ins, reviewerID)
	if err != nil {
		return nil, err
	}
	sig, err := reviewerKeys.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("sign promotion: %w", err)
	}

	return c.ledger.Promote(ctx, insightID, ledger.Reviewer{
		ID:        reviewerID,
		Signature: base64.StdEncoding.EncodeToString(sig),
	})
}

// VerifyPromotion checks a curated record's signature against the
// reviewer key derived from the master keyring.
func (c *Curator) VerifyPromotion(cur *ledger.CuratedInsight) error {
	if cur.Signature == "" {
		return fmt.Errorf("curated record %s carries no signature", cur.ID)
	}
	sig, err := base64.StdEncoding.DecodeString(cur.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	reviewerKeys, err := c.keyring.DeriveForReviewer(cur.ReviewerID)
	if err != nil {
		return fmt.Errorf("derive reviewer key: %w", err)
	}
	msg, err := attestationMessage(&cur.Insight, cur.ReviewerID)
	if err != nil {
		return err
	}
	if !ed25519.Verify(reviewerKeys.PublicKey(), msg, sig) {
		return fmt.Errorf("signature on curated record %s does not verify", cur.ID)
	}
	return nil
}
