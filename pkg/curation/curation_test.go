package curation

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Mindburn-Labs/vigil/pkg/insight"
	"github.com/Mindburn-Labs/vigil/pkg/ledger"
)

var testSecret = bytes.Repeat([]byte("s"), 32)

func strptr(s string) *string { return &s }

func TestKeyring_DeriveForReviewer_Isolation(t *testing.T) {
	t.Parallel()
	master, err := NewMemoryKeyProvider()
	if err != nil {
		t.Fatal(err)
	}
	kr := NewKeyring(master)

	a, err := kr.DeriveForReviewer("maintainer-alice")
	if err != nil {
		t.Fatal(err)
	}
	b, err := kr.DeriveForReviewer("maintainer-bob")
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(a.PublicKey(), b.PublicKey()) {
		t.Error("different reviewers should derive different keys")
	}
	if bytes.Equal(kr.PublicKey(), a.PublicKey()) {
		t.Error("reviewer key should differ from master key")
	}
}

func TestKeyring_DeriveForReviewer_Deterministic(t *testing.T) {
	t.Parallel()
	seed := bytes.Repeat([]byte("k"), 32)
	first, err := NewMemoryKeyProviderFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewMemoryKeyProviderFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}

	d1, err := NewKeyring(first).DeriveForReviewer("maintainer-1")
	if err != nil {
		t.Fatal(err)
	}
	d2, err := NewKeyring(second).DeriveForReviewer("maintainer-1")
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(d1.PublicKey(), d2.PublicKey()) {
		t.Error("same seed and reviewer should always derive the same key")
	}
}

func TestKeyring_DeriveForReviewer_EmptyID(t *testing.T) {
	t.Parallel()
	kr := NewKeyring(nil)
	if _, err := kr.DeriveForReviewer(""); err == nil {
		t.Error("expected error for empty reviewer id")
	}
}

func TestApprover_IssueAndValidate(t *testing.T) {
	t.Parallel()
	a, err := NewApprover(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	token, err := a.Issue("maintainer-1", "ins-bypass")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := a.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "maintainer-1" {
		t.Errorf("subject = %q, want maintainer-1", claims.Subject)
	}
	if claims.InsightID != "ins-bypass" {
		t.Errorf("insight_id = %q, want ins-bypass", claims.InsightID)
	}
	if claims.Scope != ScopePromote {
		t.Errorf("scope = %q, want %q", claims.Scope, ScopePromote)
	}
}

func TestApprover_RejectsWrongSecret(t *testing.T) {
	t.Parallel()
	issuer, _ := NewApprover(testSecret)
	validator, _ := NewApprover(bytes.Repeat([]byte("x"), 32))

	token, err := issuer.Issue("maintainer-1", "ins-1")
	if err != nil {
		t.Fatal(err)
	}

	_, err = validator.Validate(token)
	var approvalErr *ApprovalError
	if !errors.As(err, &approvalErr) {
		t.Fatalf("expected ApprovalError, got %v", err)
	}
}

func TestApprover_RejectsExpired(t *testing.T) {
	t.Parallel()
	issued := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	a, _ := NewApprover(testSecret)
	a.WithTTL(time.Minute).WithClock(func() time.Time { return issued })

	token, err := a.Issue("maintainer-1", "ins-1")
	if err != nil {
		t.Fatal(err)
	}

	// Within the TTL the token validates.
	if _, err := a.Validate(token); err != nil {
		t.Fatalf("fresh token should validate: %v", err)
	}

	a.WithClock(func() time.Time { return issued.Add(2 * time.Minute) })
	if _, err := a.Validate(token); err == nil {
		t.Fatal("expired token should be rejected")
	}
}

func TestApprover_RejectsForeignScope(t *testing.T) {
	t.Parallel()
	a, _ := NewApprover(testSecret)

	now := time.Now().UTC()
	claims := ApprovalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "maintainer-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			Issuer:    approvalIssuer,
			Audience:  jwt.ClaimStrings{approvalAudience},
		},
		InsightID: "ins-1",
		Scope:     "reports:read",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Validate(token)
	var approvalErr *ApprovalError
	if !errors.As(err, &approvalErr) {
		t.Fatalf("expected ApprovalError for foreign scope, got %v", err)
	}
}

func TestApprover_ShortSecretRejected(t *testing.T) {
	t.Parallel()
	if _, err := NewApprover([]byte("too-short")); err == nil {
		t.Error("expected error for short secret")
	}
}

func newTestCurator(t *testing.T) (*Curator, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.Open(context.Background(), ledger.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	provider, err := NewMemoryKeyProviderFromSeed(bytes.Repeat([]byte("m"), 32))
	if err != nil {
		t.Fatal(err)
	}
	approver, err := NewApprover(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	return NewCurator(l, NewKeyring(provider), approver), l
}

func TestCurator_PromoteSignsRecord(t *testing.T) {
	t.Parallel()
	c, l := newTestCurator(t)
	ctx := context.Background()

	_, err := l.Record(ctx, &insight.Insight{
		ID:            "ins-1",
		Source:        "corpus-a",
		ObligationID:  strptr("cache.vary.honored"),
		Invariant:     "cache key must include every vary header",
		Confidence:    insight.ConfidenceHigh,
		Scope:         insight.ScopeGeneralizable,
		EvidenceCount: 6,
	})
	if err != nil {
		t.Fatal(err)
	}

	token, err := c.approver.Issue("maintainer-1", "ins-1")
	if err != nil {
		t.Fatal(err)
	}

	cur, err := c.Promote(ctx, "ins-1", token)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if cur.ReviewerID != "maintainer-1" {
		t.Errorf("reviewer = %q, want maintainer-1", cur.ReviewerID)
	}
	if cur.Signature == "" {
		t.Fatal("curated record should carry a signature")
	}
	if err := c.VerifyPromotion(cur); err != nil {
		t.Fatalf("signature should verify: %v", err)
	}

	// The ledger holds the same signed record.
	stored, err := l.Resolve(cur.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.VerifyPromotion(stored); err != nil {
		t.Fatalf("stored record should verify: %v", err)
	}
}

func TestCurator_PromoteTokenInsightMismatch(t *testing.T) {
	t.Parallel()
	c, l := newTestCurator(t)
	ctx := context.Background()

	for _, id := range []string{"ins-1", "ins-2"} {
		_, err := l.Record(ctx, &insight.Insight{
			ID:            id,
			Source:        "corpus-a",
			ObligationID:  strptr("cache.vary.honored"),
			Invariant:     "cache key must include every vary header " + id,
			Confidence:    insight.ConfidenceHigh,
			Scope:         insight.ScopeGeneralizable,
			EvidenceCount: 6,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	token, err := c.approver.Issue("maintainer-1", "ins-1")
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Promote(ctx, "ins-2", token)
	var approvalErr *ApprovalError
	if !errors.As(err, &approvalErr) {
		t.Fatalf("expected ApprovalError for mismatched insight, got %v", err)
	}
	if len(l.Curated()) != 0 {
		t.Fatal("nothing should be promoted on a mismatched token")
	}
}

func TestCurator_ApprovalCannotOverrideContradiction(t *testing.T) {
	t.Parallel()
	c, l := newTestCurator(t)
	ctx := context.Background()

	obligation := strptr("resilience.serve.stale")
	for id, invariant := range map[string]string{
		"ins-pos": "stale content must always be served during origin outage",
		"ins-neg": "stale content must never be served during origin outage",
	} {
		_, err := l.Record(ctx, &insight.Insight{
			ID:            id,
			Source:        "corpus-a",
			ObligationID:  obligation,
			Invariant:     invariant,
			Confidence:    insight.ConfidenceHigh,
			Scope:         insight.ScopeGeneralizable,
			EvidenceCount: 6,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	token, err := c.approver.Issue("maintainer-1", "ins-pos")
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Promote(ctx, "ins-pos", token)
	var blocked *ledger.BlockedByContradictionError
	if !errors.As(err, &blocked) {
		t.Fatalf("approval must not override the contradiction block, got %v", err)
	}
}

func TestCurator_VerifyPromotionDetectsTamper(t *testing.T) {
	t.Parallel()
	c, l := newTestCurator(t)
	ctx := context.Background()

	_, err := l.Record(ctx, &insight.Insight{
		ID:            "ins-1",
		Source:        "corpus-a",
		ObligationID:  strptr("cache.vary.honored"),
		Invariant:     "cache key must include every vary header",
		Confidence:    insight.ConfidenceHigh,
		Scope:         insight.ScopeGeneralizable,
		EvidenceCount: 6,
	})
	if err != nil {
		t.Fatal(err)
	}
	token, err := c.approver.Issue("maintainer-1", "ins-1")
	if err != nil {
		t.Fatal(err)
	}
	cur, err := c.Promote(ctx, "ins-1", token)
	if err != nil {
		t.Fatal(err)
	}

	tampered := *cur
	tampered.Insight.Invariant = "cache key may ignore vary headers"
	if err := c.VerifyPromotion(&tampered); err == nil {
		t.Error("edited content should break the signature")
	}

	wrongReviewer := *cur
	wrongReviewer.ReviewerID = "maintainer-2"
	if err := c.VerifyPromotion(&wrongReviewer); err == nil {
		t.Error("signature should not verify under another reviewer's key")
	}
}
