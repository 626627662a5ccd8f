package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/campusiq/gatehouse/pkg/apperror"
)

// ImpersonationClaims are the JWT claims of a delegated credential. The
// Delegated marker distinguishes these from any other JWT that might reach
// the resolver.
type ImpersonationClaims struct {
	ImpersonatorID int64 `json:"impersonator_id"`
	SubjectID      int64 `json:"subject_id"`
	Delegated      bool  `json:"delegated"`
	jwt.RegisteredClaims
}

// ImpersonationIssuer mints and parses short-lived delegated credentials.
type ImpersonationIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewImpersonationIssuer creates an issuer with the signing secret and TTL.
func NewImpersonationIssuer(secret string, ttl time.Duration) *ImpersonationIssuer {
	return &ImpersonationIssuer{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured credential lifetime.
func (i *ImpersonationIssuer) TTL() time.Duration {
	return i.ttl
}

// Mint creates a delegated credential for impersonator acting as subject.
func (i *ImpersonationIssuer) Mint(impersonatorID, subjectID int64) (string, *Impersonation, error) {
	now := time.Now().UTC()
	expires := now.Add(i.ttl)

	claims := ImpersonationClaims{
		ImpersonatorID: impersonatorID,
		SubjectID:      subjectID,
		Delegated:      true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", subjectID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    "gatehouse",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign impersonation credential: %w", err)
	}

	return signed, &Impersonation{
		ImpersonatorID: impersonatorID,
		StartedAt:      now,
		ExpiresAt:      expires,
	}, nil
}

// Parse validates a delegated credential and returns its claims.
func (i *ImpersonationIssuer) Parse(credential string) (*ImpersonationClaims, error) {
	claims := &ImpersonationClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, apperror.AuthRequired("invalid impersonation credential").WithCause(err)
	}
	if !token.Valid || !claims.Delegated {
		return nil, apperror.AuthRequired("credential is not a delegated token")
	}
	return claims, nil
}
