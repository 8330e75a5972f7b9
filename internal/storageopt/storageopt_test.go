package storageopt

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type slowInfo struct {
	Op       string
	Duration time.Duration
}

// =============================================================================
// 慢查询检测
// =============================================================================

func TestSlowQueryDetector_Disabled(t *testing.T) {
	d, err := NewSlowQueryDetector(SlowQueryOptions[slowInfo]{})
	require.NoError(t, err)
	defer d.Close()

	assert.False(t, d.MaybeSlowQuery(context.Background(), slowInfo{}, time.Hour))
}

func TestSlowQueryDetector_SyncHook(t *testing.T) {
	var got []slowInfo
	d, err := NewSlowQueryDetector(SlowQueryOptions[slowInfo]{
		Threshold: 100 * time.Millisecond,
		SyncHook: func(_ context.Context, info slowInfo) {
			got = append(got, info)
		},
	})
	require.NoError(t, err)
	defer d.Close()

	assert.False(t, d.MaybeSlowQuery(context.Background(), slowInfo{Op: "fast"}, 50*time.Millisecond))
	assert.True(t, d.MaybeSlowQuery(context.Background(), slowInfo{Op: "edge"}, 100*time.Millisecond))
	assert.True(t, d.MaybeSlowQuery(context.Background(), slowInfo{Op: "slow"}, time.Second))

	require.Len(t, got, 2)
	assert.Equal(t, "edge", got[0].Op)
	assert.Equal(t, "slow", got[1].Op)
}

func TestSlowQueryDetector_AsyncHook(t *testing.T) {
	var mu sync.Mutex
	var got []string
	d, err := NewSlowQueryDetector(SlowQueryOptions[slowInfo]{
		Threshold:           time.Millisecond,
		AsyncWorkerPoolSize: 2,
		AsyncQueueSize:      16,
		AsyncHook: func(info slowInfo) {
			mu.Lock()
			got = append(got, info.Op)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	for _, op := range []string{"find", "count", "update"} {
		assert.True(t, d.MaybeSlowQuery(context.Background(), slowInfo{Op: op}, time.Second))
	}
	// Close 排空队列
	d.Close()
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"find", "count", "update"}, got)

	// 关闭后仍可检测，但不再投递异步通知
	assert.True(t, d.MaybeSlowQuery(context.Background(), slowInfo{Op: "late"}, time.Second))
}

func TestSlowQueryDetector_AsyncQueueFullDrops(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	d, err := NewSlowQueryDetector(SlowQueryOptions[slowInfo]{
		Threshold:           time.Millisecond,
		AsyncWorkerPoolSize: 1,
		AsyncQueueSize:      1,
		AsyncHook: func(slowInfo) {
			once.Do(func() { close(started) })
			<-release
		},
	})
	require.NoError(t, err)

	d.MaybeSlowQuery(context.Background(), slowInfo{}, time.Second)
	<-started
	d.MaybeSlowQuery(context.Background(), slowInfo{}, time.Second) // 占满队列
	d.MaybeSlowQuery(context.Background(), slowInfo{}, time.Second) // 丢弃
	assert.Equal(t, int64(1), d.Dropped())

	close(release)
	d.Close()
}

func TestSlowQueryDetector_InvalidPool(t *testing.T) {
	_, err := NewSlowQueryDetector(SlowQueryOptions[slowInfo]{
		Threshold:           time.Millisecond,
		AsyncWorkerPoolSize: math.MaxInt,
		AsyncHook:           func(slowInfo) {},
	})
	assert.Error(t, err)
}

func TestSlowQueryDetector_Nil(t *testing.T) {
	var d *SlowQueryDetector[slowInfo]
	assert.False(t, d.MaybeSlowQuery(context.Background(), slowInfo{}, time.Hour))
	d.Close()
}

// =============================================================================
// 分页
// =============================================================================

func TestValidatePagination(t *testing.T) {
	tests := []struct {
		name       string
		page, size int64
		want       int64
		err        error
	}{
		{"first page", 1, 20, 0, nil},
		{"third page", 3, 20, 40, nil},
		{"max page size", 2, MaxPageSize, MaxPageSize, nil},
		{"zero page", 0, 10, 0, ErrInvalidPage},
		{"negative page", -1, 10, 0, ErrInvalidPage},
		{"zero size", 1, 0, 0, ErrInvalidPageSize},
		{"size above max", 1, MaxPageSize + 1, 0, ErrInvalidPageSize},
		{"overflow", math.MaxInt64, 2, 0, ErrPageOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePagination(tt.page, tt.size)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateTotalPages(t *testing.T) {
	assert.Equal(t, int64(0), CalculateTotalPages(0, 10))
	assert.Equal(t, int64(0), CalculateTotalPages(10, 0))
	assert.Equal(t, int64(1), CalculateTotalPages(10, 10))
	assert.Equal(t, int64(2), CalculateTotalPages(11, 10))
}

func FuzzValidatePagination(f *testing.F) {
	f.Add(int64(1), int64(10))
	f.Add(int64(math.MaxInt64), int64(MaxPageSize))
	f.Add(int64(-5), int64(-5))
	f.Fuzz(func(t *testing.T, page, size int64) {
		offset, err := ValidatePagination(page, size)
		if err != nil {
			return
		}
		if offset < 0 {
			t.Fatalf("negative offset %d for page=%d size=%d", offset, page, size)
		}
	})
}

// =============================================================================
// 超时与计数
// =============================================================================

func TestHealthContext(t *testing.T) {
	ctx, cancel := HealthContext(context.Background(), time.Second)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.True(t, ok)

	base := context.Background()
	ctx2, cancel2 := HealthContext(base, 0)
	defer cancel2()
	assert.Equal(t, base, ctx2)
}

func TestApplyTimeout(t *testing.T) {
	ctx, cancel := ApplyTimeout(context.Background(), time.Minute)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, time.Second)

	parent, pcancel := context.WithTimeout(context.Background(), time.Second)
	defer pcancel()
	ctx2, cancel2 := ApplyTimeout(parent, time.Minute)
	defer cancel2()
	assert.Equal(t, parent, ctx2, "existing deadline must be kept")

	base := context.Background()
	ctx3, cancel3 := ApplyTimeout(base, 0)
	defer cancel3()
	assert.Equal(t, base, ctx3)
}

func TestCounters(t *testing.T) {
	var h HealthCounter
	h.IncPing()
	h.IncPing()
	h.IncPingError()
	assert.Equal(t, int64(2), h.PingCount())
	assert.Equal(t, int64(1), h.PingErrors())

	var s SlowQueryCounter
	s.Inc()
	assert.Equal(t, int64(1), s.Count())

	assert.GreaterOrEqual(t, MeasureOperation(time.Now().Add(-time.Millisecond)), time.Millisecond)
}

func TestOpCounter(t *testing.T) {
	var c OpCounter
	assert.Empty(t, c.Snapshot())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%5 == 0 {
				c.Record("update", errors.New("boom"))
				return
			}
			c.Record("find", nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, []OpStats{
		{Name: "find", Calls: 40},
		{Name: "update", Calls: 10, Errors: 10},
	}, c.Snapshot())
}
