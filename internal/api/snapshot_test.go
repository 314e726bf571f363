package api

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/servicedesk/requests/internal/core/domain"
)

func TestSnapshotCodec_RoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	codec, err := NewSnapshotCodec("secret", func() time.Time { return now })
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	user := &domain.User{ID: 4, Name: "Ana", Role: domain.RoleViewer}
	sess := &domain.Session{Token: "tok", CreatedAt: now, ExpiresAt: now.Add(domain.DefaultSessionTTL)}
	raw, err := codec.Encode(user, sess)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	snap, err := codec.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := Snapshot{UserID: 4, Name: "Ana", Role: domain.RoleViewer, Token: "tok"}
	if *snap != want {
		t.Fatalf("expected %+v, got %+v", want, *snap)
	}
}

func TestSnapshotCodec_Rejects(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := now
	codec, _ := NewSnapshotCodec("secret", func() time.Time { return clock })
	other, _ := NewSnapshotCodec("other-secret", func() time.Time { return clock })

	user := &domain.User{ID: 4, Name: "Ana", Role: domain.RoleViewer}
	sess := &domain.Session{Token: "tok", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	raw, _ := codec.Encode(user, sess)

	if _, err := other.Decode(raw); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected foreign signature to be rejected, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "4", "token": "tok"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := codec.Decode(unsigned); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected unsigned snapshot to be rejected, got %v", err)
	}

	clock = now.Add(2 * time.Hour)
	if _, err := codec.Decode(raw); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired snapshot to be rejected, got %v", err)
	}

	if _, err := codec.Decode(""); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected empty snapshot to be rejected, got %v", err)
	}
}

func TestSnapshotCodec_RandomSecret(t *testing.T) {
	a, err := NewSnapshotCodec("", nil)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	b, _ := NewSnapshotCodec("", nil)

	now := time.Now()
	raw, err := a.Encode(&domain.User{ID: 1}, &domain.Session{Token: "t", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := a.Decode(raw); err != nil {
		t.Fatalf("same codec must verify: %v", err)
	}
	if _, err := b.Decode(raw); err == nil {
		t.Fatalf("a different random secret must not verify")
	}
}
