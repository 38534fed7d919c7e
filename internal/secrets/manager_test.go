package secrets

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shielderrors "github.com/storyforge/shield/internal/errors"
	"github.com/storyforge/shield/internal/logging"
	"github.com/storyforge/shield/internal/secretstore"
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *secretstore.MemoryStore) {
	t.Helper()
	store := secretstore.NewMemoryStore()
	logger := logging.New("secrets-test", false)
	return NewManager(store, logger, opts...), store
}

func TestGetSecretCachesWithinTTL(t *testing.T) {
	mgr, store := newTestManager(t)
	store.Seed("db/password", "hunter2")

	ctx := context.Background()
	first, err := mgr.GetSecret(ctx, "db/password", true)
	require.NoError(t, err)
	second, err := mgr.GetSecret(ctx, "db/password", true)
	require.NoError(t, err)

	assert.Equal(t, "hunter2", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.GetCnt, "second call must be served from cache")
}

func TestGetSecretCacheKeyIncludesDecryptFlag(t *testing.T) {
	mgr, store := newTestManager(t)
	store.Seed("api/key", "k-123")

	ctx := context.Background()
	plain, err := mgr.GetSecret(ctx, "api/key", true)
	require.NoError(t, err)
	sealed, err := mgr.GetSecret(ctx, "api/key", false)
	require.NoError(t, err)

	assert.Equal(t, "k-123", plain)
	assert.Equal(t, "sealed:k-123", sealed)
	assert.Equal(t, 2, store.GetCnt, "decrypt variants are distinct cache keys")
}

func TestGetSecretDoesNotCacheFailures(t *testing.T) {
	mgr, store := newTestManager(t)

	ctx := context.Background()
	_, err := mgr.GetSecret(ctx, "missing", true)
	require.Error(t, err)
	var notFound shielderrors.SecretNotFoundError
	assert.ErrorAs(t, err, &notFound)

	// The secret appears later; the failure must not have been cached.
	store.Seed("missing", "now-present")
	value, err := mgr.GetSecret(ctx, "missing", true)
	require.NoError(t, err)
	assert.Equal(t, "now-present", value)
}

func TestGetSecretExpiresAfterTTL(t *testing.T) {
	mgr, store := newTestManager(t, WithTTL(30*time.Millisecond))
	store.Seed("rotating", "v1")

	ctx := context.Background()
	_, err := mgr.GetSecret(ctx, "rotating", true)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	store.Seed("rotating", "v2")

	value, err := mgr.GetSecret(ctx, "rotating", true)
	require.NoError(t, err)
	assert.Equal(t, "v2", value)
	assert.Equal(t, 2, store.GetCnt)
}

func TestConcurrentGetsCoalesceIntoOneFetch(t *testing.T) {
	mgr, store := newTestManager(t)
	store.Seed("shared", "coalesced")

	release := make(chan struct{})
	store.SetGetHook(func(name string, decrypt bool) (string, error) {
		<-release
		return "coalesced", nil
	})

	ctx := context.Background()
	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = mgr.GetSecret(ctx, "shared", true)
		}(i)
	}

	// Give all callers time to pile onto the in-flight fetch.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "coalesced", results[i])
	}
	assert.Equal(t, 1, store.GetCnt, "concurrent misses must share one store fetch")
}

func TestRotateSecretInvalidatesBothVariants(t *testing.T) {
	mgr, store := newTestManager(t)
	store.Seed("token", "old")

	ctx := context.Background()
	_, err := mgr.GetSecret(ctx, "token", true)
	require.NoError(t, err)
	_, err = mgr.GetSecret(ctx, "token", false)
	require.NoError(t, err)

	require.NoError(t, mgr.RotateSecret(ctx, "token", "new"))
	assert.Equal(t, 1, store.PutCnt, "rotation performs exactly one store write")

	value, err := mgr.GetSecret(ctx, "token", true)
	require.NoError(t, err)
	assert.Equal(t, "new", value)

	sealed, err := mgr.GetSecret(ctx, "token", false)
	require.NoError(t, err)
	assert.Equal(t, "sealed:new", sealed)
}

func TestRotateSecretLeavesCacheOnWriteFailure(t *testing.T) {
	mgr, store := newTestManager(t)
	store.Seed("stable", "v1")

	ctx := context.Background()
	_, err := mgr.GetSecret(ctx, "stable", true)
	require.NoError(t, err)

	store.FailPut = true
	err = mgr.RotateSecret(ctx, "stable", "v2")
	require.Error(t, err)

	// Cache entry survives: no extra store fetch on the next read.
	value, err := mgr.GetSecret(ctx, "stable", true)
	require.NoError(t, err)
	assert.Equal(t, "v1", value)
	assert.Equal(t, 1, store.GetCnt)
}

func TestSweepExpiredRemovesOnlyExpiredEntries(t *testing.T) {
	mgr, store := newTestManager(t, WithTTL(20*time.Millisecond))
	store.Seed("short", "a")

	ctx := context.Background()
	_, err := mgr.GetSecret(ctx, "short", true)
	require.NoError(t, err)
	assert.Equal(t, 1, mgr.CacheLen())

	assert.Equal(t, 0, mgr.SweepExpired(), "live entries are untouched")

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, mgr.SweepExpired())
	assert.Equal(t, 0, mgr.CacheLen())
}

func TestSweeperLifecycle(t *testing.T) {
	mgr, store := newTestManager(t, WithTTL(10*time.Millisecond), WithSweepInterval(15*time.Millisecond))
	store.Seed("ephemeral", "x")

	ctx := context.Background()
	_, err := mgr.GetSecret(ctx, "ephemeral", true)
	require.NoError(t, err)

	mgr.Start()
	defer mgr.Stop()

	assert.Eventually(t, func() bool {
		return mgr.CacheLen() == 0
	}, time.Second, 10*time.Millisecond, "sweeper should remove the expired entry")

	// Start and Stop are idempotent.
	mgr.Start()
	mgr.Stop()
	mgr.Stop()
}
