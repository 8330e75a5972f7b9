package xmongo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
)

// =============================================================================
// Mock 实现 - 用于单元测试
// =============================================================================

// mockClientOps 实现 clientOperations 接口
type mockClientOps struct {
	mu                 sync.Mutex
	pingErr            error
	pingCount          int
	disconnectErr      error
	disconnected       bool
	sessionsInProgress int
}

func (m *mockClientOps) Ping(_ context.Context, _ *readpref.ReadPref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingCount++
	return m.pingErr
}

func (m *mockClientOps) Disconnect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
	return m.disconnectErr
}

func (m *mockClientOps) NumberSessionsInProgress() int {
	return m.sessionsInProgress
}

// fakeCall 记录一次集合操作。
type fakeCall struct {
	method string
	filter any
	doc    any
	docs   []any
	wc     *writeconcern.WriteConcern
	opts   any
}

// fakeState 是 fakeCollection 及其写关注克隆共享的状态。
type fakeState struct {
	mu    sync.Mutex
	calls []fakeCall

	count    int64
	countErr error

	findDocs []any
	findErr  error

	// findOneDoc 为 nil 时返回 mongo.ErrNoDocuments
	findOneDoc any
	findOneErr error

	// modifyDoc 为 nil 时返回 mongo.ErrNoDocuments
	modifyDoc any
	modifyErr error

	insertErr error

	// insertManyErrs 按调用顺序返回，越界后返回 nil
	insertManyErrs []error
	insertManyN    int

	deleteErr error
	updateErr error

	commandDoc any
	commandErr error

	// delay 使每次操作至少耗时 delay，用于触发慢查询
	delay time.Duration
}

// fakeCollection 实现 collectionOperations 接口。
type fakeCollection struct {
	*fakeState
	wc   *writeconcern.WriteConcern
	db   string
	name string
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{fakeState: &fakeState{}, db: "testdb", name: "items"}
}

func (f *fakeCollection) record(c fakeCall) {
	c.wc = f.wc
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeCollection) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

func (f *fakeCollection) lastCall(t *testing.T) fakeCall {
	t.Helper()
	calls := f.Calls()
	require.NotEmpty(t, calls)
	return calls[len(calls)-1]
}

func (f *fakeCollection) CountDocuments(_ context.Context, filter any, _ ...options.Lister[options.CountOptions]) (int64, error) {
	f.record(fakeCall{method: "CountDocuments", filter: filter})
	return f.count, f.countErr
}

func (f *fakeCollection) Find(_ context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error) {
	f.record(fakeCall{method: "Find", filter: filter, opts: firstOpt(opts)})
	if f.findErr != nil {
		return nil, f.findErr
	}
	return mongo.NewCursorFromDocuments(f.findDocs, nil, nil)
}

func (f *fakeCollection) FindOne(_ context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult {
	f.record(fakeCall{method: "FindOne", filter: filter, opts: firstOpt(opts)})
	return singleResult(f.findOneDoc, f.findOneErr)
}

func (f *fakeCollection) FindOneAndUpdate(_ context.Context, filter, update any, opts ...options.Lister[options.FindOneAndUpdateOptions]) *mongo.SingleResult {
	f.record(fakeCall{method: "FindOneAndUpdate", filter: filter, doc: update, opts: firstOpt(opts)})
	return singleResult(f.modifyDoc, f.modifyErr)
}

func (f *fakeCollection) FindOneAndReplace(_ context.Context, filter, replacement any, opts ...options.Lister[options.FindOneAndReplaceOptions]) *mongo.SingleResult {
	f.record(fakeCall{method: "FindOneAndReplace", filter: filter, doc: replacement, opts: firstOpt(opts)})
	return singleResult(f.modifyDoc, f.modifyErr)
}

func (f *fakeCollection) InsertOne(_ context.Context, document any, _ ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error) {
	f.record(fakeCall{method: "InsertOne", doc: document})
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return &mongo.InsertOneResult{InsertedID: bson.NewObjectID(), Acknowledged: f.wc.Acknowledged()}, nil
}

func (f *fakeCollection) InsertMany(_ context.Context, documents []any, opts ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error) {
	f.record(fakeCall{method: "InsertMany", docs: documents, opts: firstOpt(opts)})

	f.mu.Lock()
	n := f.insertManyN
	f.insertManyN++
	var err error
	if n < len(f.insertManyErrs) {
		err = f.insertManyErrs[n]
	}
	f.mu.Unlock()

	if err != nil {
		// 模拟部分成功：失败批次插入了一半
		ids := make([]any, len(documents)/2)
		for i := range ids {
			ids[i] = bson.NewObjectID()
		}
		return &mongo.InsertManyResult{InsertedIDs: ids}, err
	}
	ids := make([]any, len(documents))
	for i := range documents {
		ids[i] = bson.NewObjectID()
	}
	return &mongo.InsertManyResult{InsertedIDs: ids}, nil
}

func (f *fakeCollection) DeleteMany(_ context.Context, filter any, _ ...options.Lister[options.DeleteManyOptions]) (*mongo.DeleteResult, error) {
	f.record(fakeCall{method: "DeleteMany", filter: filter})
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &mongo.DeleteResult{DeletedCount: 1, Acknowledged: f.wc.Acknowledged()}, nil
}

func (f *fakeCollection) UpdateOne(_ context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error) {
	f.record(fakeCall{method: "UpdateOne", filter: filter, doc: update, opts: firstOpt(opts)})
	return f.updateResult()
}

func (f *fakeCollection) UpdateMany(_ context.Context, filter, update any, opts ...options.Lister[options.UpdateManyOptions]) (*mongo.UpdateResult, error) {
	f.record(fakeCall{method: "UpdateMany", filter: filter, doc: update, opts: firstOpt(opts)})
	return f.updateResult()
}

func (f *fakeCollection) ReplaceOne(_ context.Context, filter, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongo.UpdateResult, error) {
	f.record(fakeCall{method: "ReplaceOne", filter: filter, doc: replacement, opts: firstOpt(opts)})
	return f.updateResult()
}

func (f *fakeCollection) updateResult() (*mongo.UpdateResult, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1, Acknowledged: f.wc.Acknowledged()}, nil
}

func (f *fakeCollection) RunCommand(_ context.Context, cmd any) *mongo.SingleResult {
	f.record(fakeCall{method: "RunCommand", doc: cmd})
	if f.commandErr != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, f.commandErr, nil)
	}
	return singleResult(f.commandDoc, nil)
}

func (f *fakeCollection) WithWriteConcern(wc *writeconcern.WriteConcern) collectionOperations {
	return &fakeCollection{fakeState: f.fakeState, wc: wc, db: f.db, name: f.name}
}

func (f *fakeCollection) DatabaseName() string { return f.db }

func (f *fakeCollection) Name() string { return f.name }

func singleResult(doc any, err error) *mongo.SingleResult {
	if err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
	}
	if doc == nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(doc, nil, nil)
}

func firstOpt[T any](opts []T) any {
	if len(opts) == 0 {
		return nil
	}
	return opts[0]
}

// =============================================================================
// 辅助构造函数
// =============================================================================

type item struct {
	ID    string `bson:"_id,omitempty"`
	Name  string `bson:"name"`
	Count int64  `bson:"count"`
}

type flexItem struct {
	ID    string         `bson:"_id,omitempty"`
	Name  string         `bson:"name"`
	Extra map[string]any `bson:"-"`
}

type twinItem struct {
	Extra map[string]any `bson:"-"`
	EXTRA map[string]any `bson:"-"`
}

// newTestWrapper 创建注入 mock 客户端的包装器，测试结束时关闭。
func newTestWrapper(t *testing.T, opts ...Option) (*mongoWrapper, *mockClientOps) {
	t.Helper()
	clientOps := &mockClientOps{}
	w, err := newWrapper(nil, clientOps, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = w.Close(context.Background())
	})
	return w, clientOps
}

func newTestCollection[T any](t *testing.T, opts ...Option) (*Collection[T], *fakeCollection) {
	t.Helper()
	w, _ := newTestWrapper(t, opts...)
	fake := newFakeCollection()
	c, err := newCollection[T](w, fake)
	require.NoError(t, err)
	return c, fake
}

// =============================================================================
// 错误定义
// =============================================================================

var (
	errMockPing       = errors.New("mock ping error")
	errMockDisconnect = errors.New("mock disconnect error")
	errMockCount      = errors.New("mock count error")
	errMockFind       = errors.New("mock find error")
	errMockInsert     = errors.New("mock insert error")
	errMockUpdate     = errors.New("mock update error")
)
