package api

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/servicedesk/requests/internal/core/domain"
)

// Snapshot is the tab-local copy of a login. It is a convenience for the UI
// and never proves anything: every use is followed by session validation.
type Snapshot struct {
	UserID int64
	Name   string
	Role   domain.Role
	Token  string
}

type snapshotClaims struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Token string `json:"token"`
	jwt.RegisteredClaims
}

// SnapshotCodec signs and verifies snapshots with HS256.
type SnapshotCodec struct {
	secret []byte
	now    func() time.Time
}

// NewSnapshotCodec returns a codec keyed by secret. An empty secret is
// replaced by a random one, so snapshots then only verify within this process.
func NewSnapshotCodec(secret string, now func() time.Time) (*SnapshotCodec, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("snapshot secret: %w", err)
		}
	}
	if now == nil {
		now = time.Now
	}
	return &SnapshotCodec{secret: key, now: now}, nil
}

// Encode signs a snapshot of user's login through sess.
func (c *SnapshotCodec) Encode(user *domain.User, sess *domain.Session) (string, error) {
	claims := snapshotClaims{
		Name:  user.Name,
		Role:  string(user.Role),
		Token: sess.Token,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}

// Decode verifies raw and returns its snapshot. Any failure, including an
// expired or tampered snapshot, is domain.ErrSessionNotFound.
func (c *SnapshotCodec) Decode(raw string) (*Snapshot, error) {
	if raw == "" {
		return nil, domain.ErrSessionNotFound
	}
	claims := &snapshotClaims{}
	tkn, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil || !tkn.Valid {
		return nil, fmt.Errorf("decode snapshot: %w", errors.Join(domain.ErrSessionNotFound, err))
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("decode snapshot: bad subject %q: %w", claims.Subject, domain.ErrSessionNotFound)
	}
	return &Snapshot{UserID: id, Name: claims.Name, Role: domain.Role(claims.Role), Token: claims.Token}, nil
}
