package xmongo

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/omeyang/xmgo/internal/storageopt"
	"github.com/omeyang/xmgo/pkg/mapping/xmapping"
	"github.com/omeyang/xmgo/pkg/observability/xmetrics"
	"github.com/omeyang/xmgo/pkg/resilience/xretry"
)

// =============================================================================
// 慢查询信息
// =============================================================================

// SlowQueryInfo 慢查询详细信息。
type SlowQueryInfo struct {
	// Database 数据库名称。
	Database string

	// Collection 集合名称。
	Collection string

	// Operation 操作类型（find、insert、update、remove 等）。
	Operation string

	// Filter 查询过滤条件。
	//
	// ⚠️ 安全提示：Filter 包含原始查询条件，可能含有敏感信息。
	// 在 SlowQueryHook 实现中写入日志时，请注意脱敏处理。
	Filter any

	// Duration 操作耗时。
	Duration time.Duration
}

// SlowQueryHook 慢查询同步回调钩子。
// 当操作耗时超过阈值时调用。
//
// ⚠️  警告：此钩子在请求路径上同步执行！
// 钩子函数的执行时间会直接增加请求延迟，网络或磁盘 IO 请使用 AsyncSlowQueryHook。
type SlowQueryHook func(ctx context.Context, info SlowQueryInfo)

// AsyncSlowQueryHook 慢查询异步回调钩子。
// 通过内部 worker pool 异步执行，不阻塞请求路径。
//
// 注意：此钩子不接收 context 参数，因为异步执行时原始 context 可能已取消。
// 当 AsyncSlowQueryHook 和 SlowQueryHook 同时设置时，两者都会被调用。
type AsyncSlowQueryHook func(info SlowQueryInfo)

// =============================================================================
// 配置选项
// =============================================================================

// Options 定义 MongoDB 包装器的配置选项。
type Options struct {
	// HealthTimeout 健康检查超时时间。默认为 5 秒。
	HealthTimeout time.Duration

	// SlowQueryThreshold 慢查询阈值。为 0 时禁用慢查询检测。
	SlowQueryThreshold time.Duration

	// SlowQueryHook 慢查询同步回调钩子。
	SlowQueryHook SlowQueryHook

	// AsyncSlowQueryHook 慢查询异步回调钩子。
	AsyncSlowQueryHook AsyncSlowQueryHook

	// AsyncSlowQueryWorkers 异步慢查询 worker pool 大小。默认为 10。
	AsyncSlowQueryWorkers int

	// AsyncSlowQueryQueueSize 异步慢查询任务队列大小。默认为 1000。
	// 队列满时新任务被丢弃并计数，属于可接受的降级行为。
	AsyncSlowQueryQueueSize int

	// QueryTimeout 查询操作兜底超时时间。
	// 仅在调用方 context 没有 deadline 时生效，0 表示禁用兜底。
	QueryTimeout time.Duration

	// WriteTimeout 写入操作兜底超时时间。
	// 仅在调用方 context 没有 deadline 时生效，0 表示禁用兜底。
	WriteTimeout time.Duration

	// WriteConcern 是 safemode=true 时使用的确认写关注。默认 w:1。
	WriteConcern *writeconcern.WriteConcern

	// Breaker 熔断器配置，nil 表示不启用。
	Breaker *gobreaker.Settings

	// ReadRetryAttempts 读操作总尝试次数（含首次）。<= 1 表示不重试。
	// 只重试 IsTransient 判定的瞬时错误，写操作从不重试。
	ReadRetryAttempts int

	// ReadRetryBackoff 读重试的退避策略。nil 时使用 xretry.NewExponentialBackoff()。
	ReadRetryBackoff xretry.BackoffPolicy

	// Observer 是统一观测接口（metrics/tracing）。
	Observer xmetrics.Observer

	// Logger 记录熔断状态变化与慢查询降级。默认 slog.Default()。
	Logger *slog.Logger
}

// Option 定义配置 MongoDB 包装器的函数类型。
type Option func(*Options)

// 默认值常量（复用 storageopt 定义）。
const (
	// DefaultAsyncSlowQueryWorkers 默认异步慢查询 worker 数量。
	DefaultAsyncSlowQueryWorkers = storageopt.DefaultAsyncWorkerPoolSize

	// DefaultAsyncSlowQueryQueueSize 默认异步慢查询队列大小。
	DefaultAsyncSlowQueryQueueSize = storageopt.DefaultAsyncQueueSize

	// DefaultQueryTimeout 查询操作默认兜底超时时间。
	DefaultQueryTimeout = 30 * time.Second

	// DefaultWriteTimeout 写入操作默认兜底超时时间。
	DefaultWriteTimeout = 60 * time.Second
)

// defaultOptions 返回默认配置。
func defaultOptions() *Options {
	return &Options{
		HealthTimeout:           storageopt.DefaultHealthTimeout,
		AsyncSlowQueryWorkers:   DefaultAsyncSlowQueryWorkers,
		AsyncSlowQueryQueueSize: DefaultAsyncSlowQueryQueueSize,
		QueryTimeout:            DefaultQueryTimeout,
		WriteTimeout:            DefaultWriteTimeout,
		WriteConcern:            writeconcern.W1(),
		Observer:                xmetrics.NoopObserver{},
		Logger:                  slog.Default(),
	}
}

// WithHealthTimeout 设置健康检查超时时间。非正值被忽略。
func WithHealthTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.HealthTimeout = timeout
		}
	}
}

// WithSlowQueryThreshold 设置慢查询阈值。
// 设置为 0 禁用慢查询检测。负值被忽略。
func WithSlowQueryThreshold(threshold time.Duration) Option {
	return func(o *Options) {
		if threshold >= 0 {
			o.SlowQueryThreshold = threshold
		}
	}
}

// WithSlowQueryHook 设置慢查询同步回调钩子。
func WithSlowQueryHook(hook SlowQueryHook) Option {
	return func(o *Options) {
		o.SlowQueryHook = hook
	}
}

// WithAsyncSlowQueryHook 设置慢查询异步回调钩子。
func WithAsyncSlowQueryHook(hook AsyncSlowQueryHook) Option {
	return func(o *Options) {
		o.AsyncSlowQueryHook = hook
	}
}

// WithAsyncSlowQueryWorkers 设置异步慢查询 worker pool 大小。
func WithAsyncSlowQueryWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.AsyncSlowQueryWorkers = n
		}
	}
}

// WithAsyncSlowQueryQueueSize 设置异步慢查询任务队列大小。
func WithAsyncSlowQueryQueueSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.AsyncSlowQueryQueueSize = n
		}
	}
}

// WithQueryTimeout 设置查询操作兜底超时时间。
// 传入 0 可显式禁用兜底超时。负值被忽略。
func WithQueryTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout >= 0 {
			o.QueryTimeout = timeout
		}
	}
}

// WithWriteTimeout 设置写入操作兜底超时时间。
// 传入 0 可显式禁用兜底超时。负值被忽略。
func WithWriteTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout >= 0 {
			o.WriteTimeout = timeout
		}
	}
}

// WithWriteConcern 设置 safemode=true 时的写关注。
// nil 或非确认写关注被忽略：safemode=true 必须等待服务端确认。
func WithWriteConcern(wc *writeconcern.WriteConcern) Option {
	return func(o *Options) {
		if wc != nil && wc.Acknowledged() {
			o.WriteConcern = wc
		}
	}
}

// WithBreaker 启用熔断器。Name 为空时使用 "xmongo"。
// IsSuccessful 未设置时，未命中（ErrNotFound）与调用方取消不计为失败。
func WithBreaker(settings gobreaker.Settings) Option {
	return func(o *Options) {
		s := settings
		o.Breaker = &s
	}
}

// WithReadRetry 为读操作启用瞬时错误重试。
// 每次尝试都经过熔断器，熔断拒绝不会被重试。
func WithReadRetry(attempts int, backoff xretry.BackoffPolicy) Option {
	return func(o *Options) {
		o.ReadRetryAttempts = attempts
		o.ReadRetryBackoff = backoff
	}
}

// WithObserver 设置统一观测接口。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *Options) {
		if observer != nil {
			o.Observer = observer
		}
	}
}

// WithLogger 设置日志记录器。
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// =============================================================================
// 集合选项
// =============================================================================

// CollectionOption 配置 Collection。
type CollectionOption func(*collectionOptions)

type collectionOptions struct {
	convention xmapping.ExtendedPropertiesConvention
}

// WithExtendedProperties 启用扩展属性映射：文档中 T 未声明的键
// 被收集进约定定位到的成员，写入时再展开回文档。
// 约定的歧义或成员类型错误在 NewCollection 时报告。
func WithExtendedProperties(conv xmapping.ExtendedPropertiesConvention) CollectionOption {
	return func(o *collectionOptions) {
		o.convention = conv
	}
}

// =============================================================================
// 查询选项
// =============================================================================

// QueryOption 配置单次查询。Find 系列使用 fields/sort/limit/skip，
// FindAndModify 使用 fields/sort/returnNew/upsert，不适用的设置被忽略。
type QueryOption func(*queryOptions)

type queryOptions struct {
	projection any
	sort       any
	limit      int64
	skip       int64
	returnNew  bool
	upsert     bool
}

func applyQueryOptions(opts []QueryOption) queryOptions {
	var q queryOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&q)
		}
	}
	return q
}

// WithFields 设置投影，只返回指定字段（_id 总是返回）。
// 需要排除字段时使用 WithProjection。
func WithFields(fields ...string) QueryOption {
	return func(q *queryOptions) {
		if len(fields) == 0 {
			return
		}
		proj := make(bson.D, 0, len(fields))
		for _, f := range fields {
			proj = append(proj, bson.E{Key: f, Value: 1})
		}
		q.projection = proj
	}
}

// WithProjection 设置任意投影文档。
func WithProjection(projection any) QueryOption {
	return func(q *queryOptions) {
		q.projection = projection
	}
}

// WithSort 设置排序，如 bson.D{{Key: "created_at", Value: -1}}。
func WithSort(sort any) QueryOption {
	return func(q *queryOptions) {
		q.sort = sort
	}
}

// WithLimit 限制返回数量，非正值表示不限制。
func WithLimit(n int64) QueryOption {
	return func(q *queryOptions) {
		if n > 0 {
			q.limit = n
		}
	}
}

// WithSkip 跳过前 n 条，非正值被忽略。
func WithSkip(n int64) QueryOption {
	return func(q *queryOptions) {
		if n > 0 {
			q.skip = n
		}
	}
}

// ReturnNew 使 FindAndModify 返回修改后的文档（默认返回修改前的）。
func ReturnNew() QueryOption {
	return func(q *queryOptions) {
		q.returnNew = true
	}
}

// Upsert 使 FindAndModify 在没有匹配时插入。
func Upsert() QueryOption {
	return func(q *queryOptions) {
		q.upsert = true
	}
}
