package xmongo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/omeyang/xmgo/pkg/async/xasync"
	"github.com/omeyang/xmgo/pkg/util/xpool"
)

// manualExecutor 缓存任务，由测试显式触发执行。
type manualExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (m *manualExecutor) Submit(task func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *manualExecutor) runAll() {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = nil
	m.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

func newAsync(t *testing.T, exec xasync.Executor) (*AsyncCollection[item], *fakeCollection) {
	t.Helper()
	c, fake := newTestCollection[item](t)
	d, err := xasync.New(exec)
	require.NoError(t, err)
	a, err := NewAsyncCollection(c, d)
	require.NoError(t, err)
	return a, fake
}

func wait(t *testing.T, h *xasync.Handle) xasync.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := h.Wait(ctx)
	require.NoError(t, err)
	return st
}

// outcome 记录回调调用次数与最后一次的参数。
type outcome[T any] struct {
	mu    sync.Mutex
	calls int
	val   T
	err   error
}

func (o *outcome[T]) cb(v T, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.val, o.err = v, err
}

func (o *outcome[T]) errCB(err error) {
	var zero T
	o.cb(zero, err)
}

func (o *outcome[T]) get() (int, T, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls, o.val, o.err
}

func TestNewAsyncCollection_Validation(t *testing.T) {
	c, _ := newTestCollection[item](t)
	d, err := xasync.New(xasync.GoExecutor{})
	require.NoError(t, err)

	_, err = NewAsyncCollection[item](nil, d)
	assert.ErrorIs(t, err, ErrNilCollection)
	_, err = NewAsyncCollection(c, nil)
	assert.ErrorIs(t, err, ErrNilDispatcher)

	a, err := NewAsyncCollection(c, d)
	require.NoError(t, err)
	assert.Same(t, c, a.Collection())
}

func TestAsync_InsertSafemode(t *testing.T) {
	a, fake := newAsync(t, xasync.GoExecutor{})
	var got outcome[struct{}]

	h := a.Insert(context.Background(), item{ID: "1", Name: "a"}, true, got.errCB)
	assert.Equal(t, xasync.StateCompleted, wait(t, h))

	calls, _, err := got.get()
	assert.Equal(t, 1, calls)
	assert.NoError(t, err)
	assert.True(t, fake.lastCall(t).wc.Acknowledged())
}

func TestAsync_InsertUnacknowledged(t *testing.T) {
	a, fake := newAsync(t, xasync.GoExecutor{})
	var got outcome[struct{}]

	wait(t, a.Insert(context.Background(), item{Name: "a"}, false, got.errCB))

	_, _, err := got.get()
	assert.NoError(t, err)
	assert.False(t, fake.lastCall(t).wc.Acknowledged())
}

func TestAsync_CountMissingCollection(t *testing.T) {
	a, _ := newAsync(t, xasync.GoExecutor{})
	var got outcome[int64]

	wait(t, a.Count(context.Background(), bson.D{{Key: "x", Value: 1}}, got.cb))

	calls, n, err := got.get()
	assert.Equal(t, 1, calls)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestAsync_CountErrorDeliversZero(t *testing.T) {
	a, fake := newAsync(t, xasync.GoExecutor{})
	fake.count = 9
	fake.countErr = errMockCount
	var got outcome[int64]

	wait(t, a.Count(context.Background(), nil, got.cb))

	calls, n, err := got.get()
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, errMockCount)
	assert.Zero(t, n)
}

func TestAsync_FindAndModifyCommandError(t *testing.T) {
	a, fake := newAsync(t, xasync.GoExecutor{})
	fake.modifyErr = mongo.CommandError{Code: 2, Name: "BadValue", Message: "bad"}
	var got outcome[*item]

	wait(t, a.FindAndModify(context.Background(), bson.M{"$set": bson.M{"name": "x"}}, nil, got.cb))

	calls, doc, err := got.get()
	assert.Equal(t, 1, calls)
	assert.Nil(t, doc)
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Code)
}

func TestAsync_FindAndModifyUpsertPreImage(t *testing.T) {
	a, _ := newAsync(t, xasync.GoExecutor{})
	var got outcome[*item]

	wait(t, a.FindAndModify(context.Background(), bson.M{"$set": bson.M{"name": "x"}},
		bson.D{{Key: "_id", Value: "new"}}, got.cb, Upsert()))

	calls, doc, err := got.get()
	assert.Equal(t, 1, calls)
	assert.Nil(t, doc)
	assert.NoError(t, err)
}

func TestAsync_CancelBeforeStart(t *testing.T) {
	exec := &manualExecutor{}
	a, fake := newAsync(t, exec)
	var got outcome[struct{}]

	h := a.Insert(context.Background(), item{Name: "a"}, true, got.errCB)
	assert.True(t, h.Cancel())
	exec.runAll()

	assert.Equal(t, xasync.StateCancelled, wait(t, h))
	assert.True(t, h.Cancelled())
	calls, _, _ := got.get()
	assert.Zero(t, calls, "callback must not run after cancel before start")
	assert.Empty(t, fake.Calls(), "operation must not run after cancel before start")
}

func TestAsync_CancelAfterStartHasNoEffect(t *testing.T) {
	a, fake := newAsync(t, xasync.GoExecutor{})
	fake.delay = 50 * time.Millisecond
	fake.count = 3
	var got outcome[int64]

	h := a.Count(context.Background(), nil, got.cb)
	require.Eventually(t, func() bool { return len(fake.Calls()) == 1 }, 5*time.Second, time.Millisecond)
	assert.False(t, h.Cancel())

	assert.Equal(t, xasync.StateCompleted, wait(t, h))
	calls, n, err := got.get()
	assert.Equal(t, 1, calls)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestAsync_Rejected(t *testing.T) {
	errFull := errors.New("queue full")
	a, fake := newAsync(t, xasync.ExecutorFunc(func(func()) error { return errFull }))
	var got outcome[*item]

	wait(t, a.FindOne(context.Background(), nil, got.cb))

	calls, doc, err := got.get()
	assert.Equal(t, 1, calls)
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, xasync.ErrRejected)
	assert.ErrorIs(t, err, errFull)
	assert.Empty(t, fake.Calls())
}

func TestAsync_NilCallbackStillRuns(t *testing.T) {
	a, fake := newAsync(t, xasync.GoExecutor{})

	wait(t, a.Remove(context.Background(), nil, true, nil))
	assert.Equal(t, "DeleteMany", fake.lastCall(t).method)
}

func TestAsync_PoolExecutor(t *testing.T) {
	pool, err := xpool.NewFuncPool(2, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	a, fake := newAsync(t, pool)
	fake.findDocs = []any{itemDoc("1", "a", 1), itemDoc("2", "b", 2)}
	fake.findOneDoc = itemDoc("1", "a", 1)

	var (
		found  outcome[[]item]
		one    outcome[*item]
		page   outcome[*PageResult[item]]
		writes atomic.Int32
	)
	countWrite := func(err error) {
		assert.NoError(t, err)
		writes.Add(1)
	}

	handles := []*xasync.Handle{
		a.FindAll(context.Background(), func(cur *Cursor[item], err error) {
			if err != nil {
				found.cb(nil, err)
				return
			}
			found.cb(cur.All(context.Background()))
		}),
		a.FindOne(context.Background(), bson.D{{Key: "_id", Value: "1"}}, one.cb),
		a.FindPage(context.Background(), nil, PageOptions{Page: 1, PageSize: 10}, page.cb),
		a.InsertMany(context.Background(), []item{{Name: "x"}}, true, countWrite),
		a.Update(context.Background(), bson.M{"$set": bson.M{"name": "y"}}, nil, UpdateUpsert, true, countWrite),
		a.UpdateAll(context.Background(), bson.M{"$inc": bson.M{"count": 1}}, nil, true, countWrite),
		a.Save(context.Background(), item{Name: "z"}, true, countWrite),
	}
	for _, h := range handles {
		assert.Equal(t, xasync.StateCompleted, wait(t, h))
	}

	_, items, err := found.get()
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, doc, err := one.get()
	require.NoError(t, err)
	assert.Equal(t, "a", doc.Name)

	_, pr, err := page.get()
	require.NoError(t, err)
	assert.Len(t, pr.Data, 2)

	assert.Equal(t, int32(4), writes.Load())
}

func TestAsync_MapReduceAndFind(t *testing.T) {
	a, fake := newAsync(t, xasync.GoExecutor{})
	fake.commandDoc = bson.D{{Key: "result", Value: "out"}, {Key: "ok", Value: 1.0}}
	fake.findErr = errMockFind

	var mr outcome[*MapReduceResult]
	var cur outcome[*Cursor[item]]
	wait(t, a.MapReduce(context.Background(), MapReduceSpec{Map: mapFn, Reduce: reduceFn, Out: "out"}, mr.cb))
	wait(t, a.Find(context.Background(), nil, cur.cb))

	_, res, err := mr.get()
	require.NoError(t, err)
	assert.Equal(t, "out", res.Collection)

	_, c, err := cur.get()
	assert.Nil(t, c)
	assert.ErrorIs(t, err, errMockFind)
}
