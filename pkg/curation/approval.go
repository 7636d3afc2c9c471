package curation

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	approvalIssuer   = "vigil/curation"
	approvalAudience = "vigil.promote"

	// ScopePromote is the only scope an approval token may carry.
	ScopePromote = "insights:promote"

	// DefaultApprovalTTL bounds how long an issued approval stays
	// usable before the reviewer has to re-approve.
	DefaultApprovalTTL = 15 * time.Minute
)

// ApprovalClaims binds a reviewer's approval to one specific insight.
type ApprovalClaims struct {
	jwt.RegisteredClaims
	InsightID string `json:"insight_id"`
	Scope     string `json:"scope"`
}

// ApprovalError reports a rejected approval token.
type ApprovalError struct {
	Detail string
	Err    error
}

func (e *ApprovalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("approval rejected: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("approval rejected: %s", e.Detail)
}

func (e *ApprovalError) Unwrap() error { return e.Err }

// Approver issues and validates approval tokens. Tokens are HS256
// JWTs scoped to a single insight; possession of one authorizes
// exactly one kind of action, promoting that insight.
type Approver struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewApprover creates an approver with the shared signing secret.
func NewApprover(secret []byte) (*Approver, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("approval secret must be at least 32 bytes, got %d", len(secret))
	}
	return &Approver{
		secret: secret,
		ttl:    DefaultApprovalTTL,
		clock:  time.Now,
	}, nil
}

// WithTTL overrides the approval lifetime.
func (a *Approver) WithTTL(ttl time.Duration) *Approver {
	a.ttl = ttl
	return a
}

// WithClock overrides the clock for testing.
func (a *Approver) WithClock(clock func() time.Time) *Approver {
	a.clock = clock
	return a
}

// Issue creates an approval token for one reviewer and one insight.
func (a *Approver) Issue(reviewerID, insightID string) (string, error) {
	if reviewerID == "" || insightID == "" {
		return "", fmt.Errorf("reviewer id and insight id must not be empty")
	}

	now := a.clock().UTC()
	claims := ApprovalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   reviewerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Issuer:    approvalIssuer,
			Audience:  jwt.ClaimStrings{approvalAudience},
		},
		InsightID: insightID,
		Scope:     ScopePromote,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign approval token: %w", err)
	}
	return signed, nil
}

// Validate parses an approval token and checks issuer, audience,
// expiry, and scope.
func (a *Approver) Validate(tokenString string) (*ApprovalClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ApprovalClaims{},
		func(t *jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(approvalIssuer),
		jwt.WithAudience(approvalAudience),
		jwt.WithTimeFunc(func() time.Time { return a.clock().UTC() }),
	)
	if err != nil {
		return nil, &ApprovalError{Detail: "token validation failed", Err: err}
	}

	claims, ok := token.Claims.(*ApprovalClaims)
	if !ok || !token.Valid {
		return nil, &ApprovalError{Detail: "unexpected claims type"}
	}
	if claims.Scope != ScopePromote {
		return nil, &ApprovalError{Detail: fmt.Sprintf("scope %q cannot promote insights", claims.Scope)}
	}
	if claims.InsightID == "" {
		return nil, &ApprovalError{Detail: "token is not bound to an insight"}
	}
	return claims, nil
}
