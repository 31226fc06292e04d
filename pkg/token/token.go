// Package token mints and checks the short-lived grants that let a
// non-owner read one protected record.
//
// A grant is an HS256 JWT signed with a key derived from the data key. It
// names the requester (sub), the record (rid) and the patient (pid). Holding
// a grant never replaces the consent check; it only proves that a positive
// decision was made recently for this exact requester and record.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
)

const (
	Issuer     = "phivault"
	DefaultTTL = 5 * time.Minute
)

// Claims are the registered claims plus the record and patient binding.
type Claims struct {
	RecordID  string `json:"rid"`
	PatientID string `json:"pid,omitempty"`
	jwt.RegisteredClaims
}

// Grants signs and validates access grants.
type Grants struct {
	key []byte
	ttl time.Duration
}

func New(key []byte, ttl time.Duration) (*Grants, error) {
	if len(key) < 32 {
		return nil, errors.New("token: signing key must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Grants{key: key, ttl: ttl}, nil
}

func (g *Grants) TTL() time.Duration {
	return g.ttl
}

// Issue signs a grant for requester to read recordID, valid from now for the
// configured TTL.
func (g *Grants) Issue(requester, recordID, patientID string, now time.Time) (string, time.Time, error) {
	const op = "token.issue"
	if requester == "" || recordID == "" {
		return "", time.Time{}, apperr.New(apperr.KindInvalidInput, op, "requester and record are required")
	}
	expires := now.Add(g.ttl)
	claims := Claims{
		RecordID:  recordID,
		PatientID: patientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   requester,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return signed, expires, nil
}

// Validate checks the signature, the validity window at now and that the
// grant names requester and recordID. Expired grants fail with Expired;
// every other problem is AccessDenied.
func (g *Grants) Validate(tokenString, requester, recordID string, now time.Time) (*Claims, error) {
	const op = "token.validate"
	if tokenString == "" {
		return nil, apperr.New(apperr.KindAccessDenied, op, "access token is required")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithSubject(requester),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apperr.New(apperr.KindExpired, op, "access token has expired")
	case err != nil:
		return nil, apperr.Wrap(apperr.KindAccessDenied, op, err)
	}
	if claims.RecordID != recordID {
		return nil, apperr.New(apperr.KindAccessDenied, op, "access token was issued for another record").With("recordId", recordID)
	}
	return claims, nil
}
