package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Mindburn-Labs/vigil/pkg/curation"
	"github.com/Mindburn-Labs/vigil/pkg/observability"
)

// envKeyringSeed holds the hex-encoded Ed25519 master seed reviewer
// signing keys derive from. Unset means an ephemeral key: fine for a
// local try-out, useless for later verification.
const envKeyringSeed = "VIGIL_KEYRING_SEED"

func loadApprover(stderr io.Writer) (*curation.Approver, bool) {
	secret := os.Getenv(envApprovalSecret)
	if secret == "" {
		_, _ = fmt.Fprintf(stderr, "Error: %s is not set\n", envApprovalSecret)
		return nil, false
	}
	approver, err := curation.NewApprover([]byte(secret))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, false
	}
	return approver, true
}

func loadKeyring(stderr io.Writer) (*curation.Keyring, bool) {
	seedHex := os.Getenv(envKeyringSeed)
	if seedHex == "" {
		_, _ = fmt.Fprintf(stderr, "Warning: %s is not set; using an ephemeral signing key\n", envKeyringSeed)
		return curation.NewKeyring(nil), true
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: decode %s: %v\n", envKeyringSeed, err)
		return nil, false
	}
	provider, err := curation.NewMemoryKeyProviderFromSeed(seed)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, false
	}
	return curation.NewKeyring(provider), true
}

// runApprove implements `vigil approve`: a reviewer mints the token
// that authorizes promoting exactly one insight.
//
// Exit codes:
//
//	0 = token issued
//	2 = usage or configuration error
func runApprove(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("approve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		insightID  string
		reviewerID string
		ttl        time.Duration
	)

	cmd.StringVar(&insightID, "insight", "", "Insight id to approve (REQUIRED)")
	cmd.StringVar(&reviewerID, "reviewer", "", "Reviewer id the token is issued to (REQUIRED)")
	cmd.DurationVar(&ttl, "ttl", curation.DefaultApprovalTTL, "Token lifetime")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if insightID == "" || reviewerID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --insight and --reviewer are required")
		cmd.Usage()
		return 2
	}

	approver, ok := loadApprover(stderr)
	if !ok {
		return 2
	}
	token, err := approver.WithTTL(ttl).Issue(reviewerID, insightID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: issue approval: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(stdout, token)
	return 0
}

// runPromote implements `vigil promote`.
//
// Exit codes:
//
//	0 = insight promoted to curated
//	1 = promotion rejected (bad token, pending contradiction, already
//	    curated, excluded scope)
//	2 = load or configuration error
func runPromote(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("promote", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		profilePath string
		insightID   string
		approval    string
		jsonOutput  bool
	)

	cmd.StringVar(&profilePath, "profile", "", "Path to the run profile")
	cmd.StringVar(&insightID, "insight", "", "Insight id to promote (REQUIRED)")
	cmd.StringVar(&approval, "approval", "", "Approval token from `vigil approve` (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output curated record as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if insightID == "" || approval == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --insight and --approval are required")
		cmd.Usage()
		return 2
	}

	prof, ok := loadProfile(profilePath, stderr)
	if !ok {
		return 2
	}
	logger := newLogger(prof, stderr)

	ctx := context.Background()

	telemetry := newTelemetry(ctx, prof, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	approver, ok := loadApprover(stderr)
	if !ok {
		return 2
	}
	keyring, ok := loadKeyring(stderr)
	if !ok {
		return 2
	}

	l, closeLedger, ok := openLedger(ctx, prof, stderr)
	if !ok {
		return 2
	}
	defer closeLedger()

	curator := curation.NewCurator(l, keyring, approver)

	runCtx, span := telemetry.StartSpan(ctx, "vigil.promote")
	cur, err := curator.Promote(runCtx, insightID, approval)
	if err != nil {
		span.RecordError(err)
		span.End()
		_, _ = fmt.Fprintf(stderr, "Error: promote: %v\n", err)
		return 1
	}
	span.SetAttributes(observability.PromotionAttrs(insightID, cur.ReviewerID)...)
	telemetry.RecordInsights(runCtx, "promoted", 1)
	span.End()

	if jsonOutput {
		data, _ := json.MarshalIndent(cur, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "✅ Insight promoted: %s\n", cur.ID)
	_, _ = fmt.Fprintf(stdout, "   From:     %s\n", cur.PromotedFrom)
	_, _ = fmt.Fprintf(stdout, "   Reviewer: %s\n", cur.ReviewerID)
	_, _ = fmt.Fprintf(stdout, "   At:       %s\n", cur.PromotedAt.Format(time.RFC3339))
	return 0
}
