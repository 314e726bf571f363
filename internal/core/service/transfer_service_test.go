package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
	"github.com/servicedesk/requests/internal/infrastructure/store"
)

// brokenBackend fails every write touching collection once broken is set.
type brokenBackend struct {
	*store.MemoryBackend
	collection string
	broken     atomic.Bool
}

func (b *brokenBackend) Put(ctx context.Context, collection string, id int64, data []byte) error {
	if b.broken.Load() && collection == b.collection {
		return errors.New("disk full")
	}
	return b.MemoryBackend.Put(ctx, collection, id, data)
}

func (b *brokenBackend) ReplaceAll(ctx context.Context, sets map[string]store.Snapshot) error {
	if _, touched := sets[b.collection]; touched && b.broken.Load() {
		return errors.New("disk full")
	}
	return b.MemoryBackend.ReplaceAll(ctx, sets)
}

func TestTransferService_ExportImportRoundTrip(t *testing.T) {
	src := newHarness(t)
	src.seed(t)
	ctx := context.Background()

	ana := src.register(t, "Ana", "ana@example.com")
	bob := src.register(t, "Bob", "bob@example.com")
	r1 := src.file(t, ana.ID, 2, "media")
	src.file(t, bob.ID, 4, "high")
	_, err := src.requests.UpdateStatus(ctx, r1.ID, domain.StatusApproved, "on it")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.transfer.Export(ctx, &buf))

	dst := newHarness(t)
	dst.seed(t)
	report, err := dst.transfer.Import(ctx, &buf, ports.ImportReplace)
	require.NoError(t, err)
	assert.Equal(t, &ports.ImportReport{Users: 2, Services: 5, Requests: 2, Reconciled: 2}, report)

	wantUsers, _ := src.repos.Users.List(ctx)
	gotUsers, _ := dst.repos.Users.List(ctx)
	assert.Equal(t, wantUsers, gotUsers)

	wantSvcs, _ := src.repos.Services.List(ctx)
	gotSvcs, _ := dst.repos.Services.List(ctx)
	assert.Equal(t, wantSvcs, gotSvcs)

	wantReqs, _ := src.repos.Requests.List(ctx)
	gotReqs, _ := dst.repos.Requests.List(ctx)
	assert.Equal(t, wantReqs, gotReqs)

	_, err = dst.sessions.VerifyCredentials(ctx, "ana@example.com", "password123")
	assert.NoError(t, err, "exported hashes stay usable")
}

const legacyDocument = `{
  "user": {
    "id": 7,
    "name": "Ana",
    "email": "ana@example.com",
    "password": "password123",
    "role": "viewer",
    "createdAt": "2024-05-01",
    "stats": {"totalRequests": 40, "pendingRequests": 40, "completedRequests": 3}
  },
  "services": [
    {"id": 2, "name": "Software Installation", "description": "Installs", "category": "Software", "price": 30}
  ],
  "requests": [
    {"id": 3, "title": "Office", "serviceId": 2, "userId": 7, "date": "2024-05-02", "status": "pending", "priority": "alta"},
    {"id": 4, "title": "Printer", "serviceId": 9, "userId": 7, "status": "completed", "priority": "baja",
     "updates": [{"date": "2024-05-03T10:00:00Z", "status": "completed", "comment": "done"}]}
  ]
}`

func TestTransferService_ImportLegacyShape(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	report, err := h.transfer.Import(ctx, strings.NewReader(legacyDocument), ports.ImportReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Users)
	assert.Equal(t, 2, report.Requests)

	u, err := h.sessions.VerifyCredentials(ctx, "ana@example.com", "password123")
	require.NoError(t, err, "plaintext passwords are hashed on import")
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, domain.Stats{TotalRequests: 2, PendingRequests: 1, CompletedRequests: 1}, h.stats(t, 7),
		"document stats are ignored and recomputed")

	req, err := h.requests.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, req.Priority)
	assert.Equal(t, 2024, req.RequestedDate.Year())

	views, err := h.requests.ListForUser(ctx, 7, ports.RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, UnavailableServiceName, views[1].ServiceName)

	next := h.register(t, "Bob", "bob@example.com")
	assert.Equal(t, int64(8), next.ID, "ids continue after imported ones")
}

func TestTransferService_ImportRejectsBadDocuments(t *testing.T) {
	tests := map[string]string{
		"malformed":       `{"user": [`,
		"duplicate email": `{"user": [{"id": 1, "name": "A", "email": "a@x.io", "password": "p"}, {"id": 2, "name": "B", "email": "a@x.io", "password": "p"}]}`,
		"duplicate id":    `{"user": [{"id": 1, "name": "A", "email": "a@x.io", "password": "p"}, {"id": 1, "name": "B", "email": "b@x.io", "password": "p"}]}`,
		"unknown role":    `{"user": [{"id": 1, "name": "A", "email": "a@x.io", "password": "p", "role": "root"}]}`,
		"orphan request":  `{"user": [], "requests": [{"id": 1, "title": "t", "serviceId": 1, "userId": 5}]}`,
		"unknown status":  `{"user": [{"id": 1, "name": "A", "email": "a@x.io", "password": "p"}], "requests": [{"id": 1, "title": "t", "serviceId": 1, "userId": 1, "status": "lost"}]}`,
		"negative price":  `{"services": [{"id": 1, "name": "s", "description": "d", "price": -3}]}`,
		"bad timestamp":   `{"user": [{"id": 1, "name": "A", "email": "a@x.io", "password": "p", "createdAt": "yesterday"}]}`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.seed(t)
			ctx := context.Background()
			existing := h.register(t, "Zed", "zed@example.com")

			_, err := h.transfer.Import(ctx, strings.NewReader(doc), ports.ImportReplace)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrConstraintViolation),
				"unexpected error class: %v", err)

			_, err = h.repos.Users.Get(ctx, existing.ID)
			assert.NoError(t, err, "nothing is written when the document is rejected")
			n, _ := h.repos.Services.Count(ctx)
			assert.Equal(t, 5, n)
		})
	}
}

func TestTransferService_MergeUpsertsById(t *testing.T) {
	h := newHarness(t)
	h.seed(t)
	ctx := context.Background()

	ana := h.register(t, "Ana", "ana@example.com")
	bob := h.register(t, "Bob", "bob@example.com")

	doc := `{"user": [
		{"id": 2, "name": "Bobby", "email": "bob@example.com", "password": "newpass", "role": "user"},
		{"name": "Cid", "email": "cid@example.com", "password": "p"}
	]}`
	report, err := h.transfer.Import(ctx, strings.NewReader(doc), ports.ImportMerge)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Users)
	assert.Equal(t, 3, report.Reconciled)

	got, err := h.users.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bobby", got.Name)
	assert.Equal(t, domain.RoleUser, got.Role)

	_, err = h.users.GetUser(ctx, ana.ID)
	assert.NoError(t, err, "merge keeps records absent from the document")

	cid, err := h.repos.Users.FindByEmail(ctx, "cid@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3), cid.ID)

	clash := `{"user": [{"name": "Other", "email": "ana@example.com", "password": "p"}]}`
	_, err = h.transfer.Import(ctx, strings.NewReader(clash), ports.ImportMerge)
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestTransferService_MergeSwapsEmails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "Ana", "ana@example.com")
	h.register(t, "Bob", "bob@example.com")

	doc := `{"user": [
		{"id": 1, "name": "Ana", "email": "bob@example.com", "password": "p"},
		{"id": 2, "name": "Bob", "email": "ana@example.com", "password": "p"}
	]}`
	_, err := h.transfer.Import(ctx, strings.NewReader(doc), ports.ImportMerge)
	require.NoError(t, err)

	u, err := h.repos.Users.FindByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	u, err = h.repos.Users.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.ID)
}

func TestTransferService_ReplaceFailureKeepsPreviousData(t *testing.T) {
	backend := &brokenBackend{MemoryBackend: store.NewMemoryBackend(), collection: store.Users}
	h := newHarnessOn(t, backend)
	h.seed(t)
	ctx := context.Background()

	ana := h.register(t, "Ana", "ana@example.com")
	h.file(t, ana.ID, 2, "media")
	login, err := h.auth.Login(ctx, "ana@example.com", "password123")
	require.NoError(t, err)

	backend.broken.Store(true)
	_, err = h.transfer.Import(ctx, strings.NewReader(legacyDocument), ports.ImportReplace)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	counts := func(repos *store.Repositories) [3]int {
		u, _ := repos.Users.Count(ctx)
		s, _ := repos.Services.Count(ctx)
		r, _ := repos.Requests.Count(ctx)
		return [3]int{u, s, r}
	}
	assert.Equal(t, [3]int{1, 5, 1}, counts(h.repos))
	_, err = h.repos.Users.FindByEmail(ctx, "ana@example.com")
	assert.NoError(t, err)
	_, err = h.sessions.Authenticate(ctx, login.Session.Token)
	assert.NoError(t, err, "sessions survive a failed import")

	reopened, err := store.OpenAll(ctx, store.NewEngine(backend.MemoryBackend, zerolog.Nop()))
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 5, 1}, counts(reopened), "nothing reached the backend")
}

func TestTransferService_ReplaceDropsSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ana := h.register(t, "Ana", "ana@example.com")
	require.Equal(t, int64(1), ana.ID)
	login, err := h.auth.Login(ctx, "ana@example.com", "password123")
	require.NoError(t, err)

	doc := `{"user": [{"id": 1, "name": "Root", "email": "root@example.com", "password": "p", "role": "admin"}]}`
	_, err = h.transfer.Import(ctx, strings.NewReader(doc), ports.ImportReplace)
	require.NoError(t, err)

	_, err = h.sessions.Authenticate(ctx, login.Session.Token)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "a token issued to the old id 1 must not act as the new one")
	n, _ := h.repos.Sessions.Count(ctx)
	assert.Zero(t, n)
}

func TestTransferService_MergeRevokesChangedAccounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.register(t, "Ana", "ana@example.com")
	bob := h.register(t, "Bob", "bob@example.com")
	anaLogin, err := h.auth.Login(ctx, "ana@example.com", "password123")
	require.NoError(t, err)
	bobLogin, err := h.auth.Login(ctx, "bob@example.com", "password123")
	require.NoError(t, err)

	stored, err := h.repos.Users.Get(ctx, bob.ID)
	require.NoError(t, err)
	doc := fmt.Sprintf(`{"user": [{"id": %d, "name": "Bob", "email": "robert@example.com", "password": %q}]}`, bob.ID, stored.Password)
	_, err = h.transfer.Import(ctx, strings.NewReader(doc), ports.ImportMerge)
	require.NoError(t, err)

	_, err = h.sessions.Authenticate(ctx, bobLogin.Session.Token)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = h.sessions.Authenticate(ctx, anaLogin.Session.Token)
	assert.NoError(t, err, "untouched accounts keep their sessions")

	_, err = h.sessions.VerifyCredentials(ctx, "robert@example.com", "password123")
	assert.NoError(t, err, "a carried hash is kept as is")
}

func TestTransferService_UnknownMode(t *testing.T) {
	h := newHarness(t)
	_, err := h.transfer.Import(context.Background(), strings.NewReader(`{}`), ports.ImportMode("append"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
