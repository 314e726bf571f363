package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
	"github.com/servicedesk/requests/internal/infrastructure/store"
)

func TestCatalogService_SeedDefaultsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t)

	all, err := h.catalog.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, svc := range all {
		assert.Equal(t, int64(i+1), svc.ID)
		assert.True(t, svc.Active)
	}

	n, err := h.catalog.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a non-empty catalog is not reseeded")
}

func TestCatalogService_CRUD(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := ports.ServiceInput{Name: "Backups", Description: "Nightly backups", Category: "Support", Price: 12.5, Active: true}
	svc, err := h.catalog.CreateService(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now(), svc.CreatedAt)

	in.Price = 15
	in.Active = false
	updated, err := h.catalog.UpdateService(ctx, svc.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 15.0, updated.Price)
	assert.Equal(t, svc.CreatedAt, updated.CreatedAt)

	active, err := h.catalog.ListActive(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, active)

	bySupport, err := h.repos.Services.ListByCategory(ctx, "Support")
	require.NoError(t, err)
	assert.Len(t, bySupport, 1)

	in.Active = true
	_, err = h.catalog.UpdateService(ctx, svc.ID, in)
	require.NoError(t, err)
	support, err := h.catalog.ListActive(ctx, "Support")
	require.NoError(t, err)
	assert.Len(t, support, 1)
	none, err := h.catalog.ListActive(ctx, "Design")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, h.catalog.DeleteService(ctx, svc.ID))
	_, err = h.catalog.GetService(ctx, svc.ID)
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)
	assert.ErrorIs(t, h.catalog.DeleteService(ctx, svc.ID), domain.ErrServiceNotFound)
}

func TestCatalogService_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.catalog.CreateService(ctx, ports.ServiceInput{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.catalog.CreateService(ctx, ports.ServiceInput{Name: "x", Description: "y", Price: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.catalog.UpdateService(ctx, 3, ports.ServiceInput{Name: "x", Description: "y"})
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)
}

func TestCatalogService_ListTimesOut(t *testing.T) {
	h := newHarness(t)
	h.seed(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := h.catalog.ListServices(ctx)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

// stallingBackend parks the next services write until release is closed.
type stallingBackend struct {
	*store.MemoryBackend
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (b *stallingBackend) Put(ctx context.Context, collection string, id int64, data []byte) error {
	if collection == store.Services && b.armed.CompareAndSwap(true, false) {
		close(b.entered)
		<-b.release
	}
	return b.MemoryBackend.Put(ctx, collection, id, data)
}

func TestCatalogService_ListTimesOutBehindSlowWrite(t *testing.T) {
	backend := &stallingBackend{
		MemoryBackend: store.NewMemoryBackend(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	h := newHarnessOn(t, backend)
	h.seed(t)
	catalog := NewCatalogService(h.repos.Services, 20*time.Millisecond, zerolog.Nop())
	ctx := context.Background()

	backend.armed.Store(true)
	written := make(chan error, 1)
	go func() {
		_, err := h.catalog.CreateService(ctx, ports.ServiceInput{Name: "Backups", Description: "Nightly"})
		written <- err
	}()
	<-backend.entered

	time.AfterFunc(60*time.Millisecond, func() { close(backend.release) })
	_, err := catalog.ListServices(ctx)
	assert.ErrorIs(t, err, domain.ErrTimeout, "a listing that waited past its bound fails")

	require.NoError(t, <-written)
	all, err := catalog.ListServices(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}
