package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgers(t *testing.T) map[string]Ledger {
	t.Helper()
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Ledger{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestLedger_ClaimLifecycle(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := l.TryClaim(ctx, "deal-1")
			require.NoError(t, err)
			assert.True(t, ok)

			// A second claim while in flight must lose.
			ok, err = l.TryClaim(ctx, "deal-1")
			require.NoError(t, err)
			assert.False(t, ok)

			done, err := l.Done(ctx, "deal-1")
			require.NoError(t, err)
			assert.False(t, done, "claimed is not done")

			require.NoError(t, l.MarkDone(ctx, "deal-1"))
			done, err = l.Done(ctx, "deal-1")
			require.NoError(t, err)
			assert.True(t, done)

			// Done is terminal: no new claim, release is a no-op.
			ok, err = l.TryClaim(ctx, "deal-1")
			require.NoError(t, err)
			assert.False(t, ok)
			require.NoError(t, l.Release(ctx, "deal-1"))
			done, err = l.Done(ctx, "deal-1")
			require.NoError(t, err)
			assert.True(t, done)
		})
	}
}

func TestLedger_ReleaseReopensClaim(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := l.TryClaim(ctx, "deal-2")
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, l.Release(ctx, "deal-2"))

			ok, err = l.TryClaim(ctx, "deal-2")
			require.NoError(t, err)
			assert.True(t, ok, "released deal is claimable again")
		})
	}
}

func TestSQLite_StaleClaimReclaimedAfterRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	first, err := NewSQLite(path)
	require.NoError(t, err)
	ok, err := first.TryClaim(ctx, "deal-9")
	require.NoError(t, err)
	require.True(t, ok)
	// Crash mid-processing: neither Release nor MarkDone happens.
	require.NoError(t, first.Close())

	reopened, err := NewSQLite(path, WithClaimTTL(0))
	require.NoError(t, err)
	defer reopened.Close()

	ok, err = reopened.TryClaim(ctx, "deal-9")
	require.NoError(t, err)
	assert.True(t, ok, "sweep must be able to reclaim an in_progress deal after restart")
}

func TestSQLite_FreshClaimHonoredAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	first, err := NewSQLite(path)
	require.NoError(t, err)
	ok, err := first.TryClaim(ctx, "deal-10")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, first.Close())

	// Default TTL: a claim this young still belongs to its owner.
	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	ok, err = reopened.TryClaim(ctx, "deal-10")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_DoneNeverTakenOver(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	first, err := NewSQLite(path)
	require.NoError(t, err)
	ok, err := first.TryClaim(ctx, "deal-11")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, first.MarkDone(ctx, "deal-11"))
	require.NoError(t, first.Close())

	reopened, err := NewSQLite(path, WithClaimTTL(0))
	require.NoError(t, err)
	defer reopened.Close()

	ok, err = reopened.TryClaim(ctx, "deal-11")
	require.NoError(t, err)
	assert.False(t, ok, "done is terminal regardless of claim age")
}

func TestLedger_ConcurrentClaimsSingleWinner(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const goroutines = 20

			var wg sync.WaitGroup
			wins := make(chan bool, goroutines)
			for i := 0; i < goroutines; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := l.TryClaim(ctx, "deal-3")
					assert.NoError(t, err)
					wins <- ok
				}()
			}
			wg.Wait()
			close(wins)

			won := 0
			for ok := range wins {
				if ok {
					won++
				}
			}
			assert.Equal(t, 1, won, "exactly one claimer wins")
		})
	}
}
