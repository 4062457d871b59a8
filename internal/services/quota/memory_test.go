package quota

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, time.March, 14, 9, 30, 0, 0, time.UTC)

func TestMemoryLedger_AdmitsUpToLimit(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(50, time.UTC)

	for n := 1; n <= 50; n++ {
		adm, err := ledger.Admit(ctx, "caller", day)
		require.NoError(t, err)
		require.Truef(t, adm.Allowed, "request %d should be admitted", n)
		assert.Equal(t, n, adm.Count)
	}

	adm, err := ledger.Admit(ctx, "caller", day)
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, 50, adm.Count)
	assert.Equal(t, 0, adm.Remaining())

	usage, err := ledger.Usage(ctx, "caller", day)
	require.NoError(t, err)
	assert.Equal(t, 50, usage, "denied requests must not mutate the count")
}

func TestMemoryLedger_CallersAreIndependent(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(1, time.UTC)

	a, _ := ledger.Admit(ctx, "a", day)
	b, _ := ledger.Admit(ctx, "b", day)
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)

	a, _ = ledger.Admit(ctx, "a", day)
	assert.False(t, a.Allowed)
}

func TestMemoryLedger_ResetsOnNewDay(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(3, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := ledger.Admit(ctx, "caller", day)
		require.NoError(t, err)
	}
	adm, _ := ledger.Admit(ctx, "caller", day)
	require.False(t, adm.Allowed)

	next := day.Add(24 * time.Hour)
	adm, err := ledger.Admit(ctx, "caller", next)
	require.NoError(t, err)
	assert.True(t, adm.Allowed)
	assert.Equal(t, 1, adm.Count)
	assert.Equal(t, "2024-03-15", adm.Date)
}

func TestMemoryLedger_RolloverEvictsPreviousDays(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(10, time.UTC)

	for i := 0; i < 5; i++ {
		_, _ = ledger.Admit(ctx, fmt.Sprintf("caller-%d", i), day)
	}
	require.Equal(t, 5, ledger.Len())

	_, _ = ledger.Admit(ctx, "caller-0", day.Add(24*time.Hour))
	assert.Equal(t, 1, ledger.Len())

	usage, _ := ledger.Usage(ctx, "caller-1", day)
	assert.Equal(t, 0, usage)
}

func TestMemoryLedger_Evict(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(10, time.UTC)

	_, _ = ledger.Admit(ctx, "a", day)
	_, _ = ledger.Admit(ctx, "b", day)

	removed, err := ledger.Evict(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	removed, err = ledger.Evict(ctx, day.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, ledger.Len())
}

func TestMemoryLedger_DateFollowsLocation(t *testing.T) {
	ctx := context.Background()
	tokyo := time.FixedZone("JST", 9*60*60)
	ledger := NewMemoryLedger(10, tokyo)

	// 20:00 UTC on the 14th is already the 15th in Tokyo.
	adm, err := ledger.Admit(ctx, "caller", time.Date(2024, time.March, 14, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", adm.Date)
}

func TestMemoryLedger_ActiveCallers(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(10, time.UTC)

	_, _ = ledger.Admit(ctx, "a", day)
	_, _ = ledger.Admit(ctx, "a", day)
	_, _ = ledger.Admit(ctx, "b", day)

	active, err := ledger.ActiveCallers(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, active)
}

func TestMemoryLedger_ConcurrentAdmitNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(50, time.UTC)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int64
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adm, err := ledger.Admit(ctx, "caller", day)
			if err == nil && adm.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), admitted.Load())
	usage, _ := ledger.Usage(ctx, "caller", day)
	assert.Equal(t, 50, usage)
}

func TestManager_CleanupReportsActiveCallers(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(10, time.UTC)
	manager := NewManagerWithLedger(ledger, testLogger())

	_, _ = manager.Admit(ctx, "a", day)
	_, _ = manager.Admit(ctx, "b", day.Add(24*time.Hour))

	var observed int
	manager.cleanup(ctx, day.Add(24*time.Hour), func(active int) { observed = active })

	assert.Equal(t, 1, observed)
	assert.Equal(t, 1, ledger.Len())
}
