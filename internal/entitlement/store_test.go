package entitlement

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogStore_Set_rejects_invalid(t *testing.T) {
	s := NewCatalogStore(testCatalog(t), "", nil)
	err := s.Set(&Catalog{})
	assert.ErrorIs(t, err, ErrInvalidCatalog)
	assert.Len(t, s.Get().Providers, 2)
}

func TestCatalogStore_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, testCatalogYAML)
	s, err := OpenCatalogStore(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())

	writeCatalog(t, dir, "requestors: [{id: demo, signature: demo-signed}]\nproviders: [{id: only}]\n")
	require.NoError(t, s.Reload())
	assert.Len(t, s.Get().Providers, 1)

	writeCatalog(t, dir, "requestors: []\n")
	assert.ErrorIs(t, s.Reload(), ErrInvalidCatalog)
	assert.Len(t, s.Get().Providers, 1, "failed reload keeps the previous catalog")
}

func TestCatalogStore_Reload_without_path(t *testing.T) {
	s := NewCatalogStore(testCatalog(t), "", nil)
	assert.NoError(t, s.Reload())
}

func TestCatalogStore_Watch(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, testCatalogYAML)
	s, err := OpenCatalogStore(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Watch(ctx, 20*time.Millisecond))
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	// The watch is registered asynchronously; keep rewriting until it lands.
	updated := "requestors: [{id: demo, signature: demo-signed}]\nproviders: [{id: only}]\n"
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(updated), 0o600)
		time.Sleep(50 * time.Millisecond)
		return len(s.Get().Providers) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCatalogStore_Watch_disabled(t *testing.T) {
	s := NewCatalogStore(testCatalog(t), "", nil)
	assert.NoError(t, s.Watch(context.Background(), 0))
}
