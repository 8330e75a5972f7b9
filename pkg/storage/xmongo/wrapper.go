package xmongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/omeyang/xmgo/internal/storageopt"
	"github.com/omeyang/xmgo/pkg/observability/xlog"
	"github.com/omeyang/xmgo/pkg/observability/xmetrics"
	"github.com/omeyang/xmgo/pkg/resilience/xretry"
)

// =============================================================================
// mongoWrapper 实现
// =============================================================================

// mongoWrapper 实现 Mongo 接口。
type mongoWrapper struct {
	client    *mongo.Client    // 用于 Client() 方法返回
	clientOps clientOperations // 用于内部操作（可注入 mock）
	options   *Options

	// 慢查询检测器
	slowQueryDetector *storageopt.SlowQueryDetector[SlowQueryInfo]

	// 熔断器，nil 表示未启用。所有集合共享同一个熔断器。
	breaker *gobreaker.CircuitBreaker[any]

	// 读重试执行器，nil 表示不重试。
	readRetry *xretry.Retryer

	// 统计计数器（使用 storageopt 通用实现）
	healthCounter    storageopt.HealthCounter
	slowQueryCounter storageopt.SlowQueryCounter
	opCounter        storageopt.OpCounter

	// 设计决策: 使用 atomic.Bool 保护 closed 状态，
	// 确保并发调用 Close() 和其他方法时的线程安全。
	closed atomic.Bool
}

const (
	mongoComponent = "xmongo"

	// defaultBatchSize 批量写入默认每批文档数。
	defaultBatchSize = 1000

	// maxBatchSize 批量写入每批文档数上限。
	// 避免单次 InsertMany 请求过大导致 MongoDB 16MB BSON 限制或内存问题。
	maxBatchSize = 10000
)

// newWrapper 构建包装器。clientOps 与 client 分离，便于单元测试注入 mock。
func newWrapper(client *mongo.Client, clientOps clientOperations, opts ...Option) (*mongoWrapper, error) {
	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	detector, err := newSlowQueryDetector(options)
	if err != nil {
		return nil, fmt.Errorf("xmongo: create slow query detector: %w", err)
	}

	return &mongoWrapper{
		client:            client,
		clientOps:         clientOps,
		options:           options,
		slowQueryDetector: detector,
		breaker:           newBreaker(options),
		readRetry:         newReadRetryer(options),
	}, nil
}

// newReadRetryer 按配置创建读重试执行器，未启用时返回 nil。
func newReadRetryer(opts *Options) *xretry.Retryer {
	if opts.ReadRetryAttempts <= 1 {
		return nil
	}
	logger := opts.Logger
	return xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewFixedRetry(opts.ReadRetryAttempts, xretry.WithClassifier(IsTransient))),
		xretry.WithBackoffPolicy(opts.ReadRetryBackoff),
		xretry.WithOnRetry(func(attempt int, err error) {
			logger.Debug("xmongo: read attempt failed",
				slog.Int("attempt", attempt),
				xlog.Err(err),
			)
		}),
	)
}

// newSlowQueryDetector 创建慢查询检测器。
func newSlowQueryDetector(opts *Options) (*storageopt.SlowQueryDetector[SlowQueryInfo], error) {
	sqOpts := storageopt.SlowQueryOptions[SlowQueryInfo]{
		Threshold:           opts.SlowQueryThreshold,
		AsyncWorkerPoolSize: opts.AsyncSlowQueryWorkers,
		AsyncQueueSize:      opts.AsyncSlowQueryQueueSize,
		Logger:              opts.Logger,
	}
	if opts.SlowQueryHook != nil {
		sqOpts.SyncHook = storageopt.SlowQueryHook[SlowQueryInfo](opts.SlowQueryHook)
	}
	if opts.AsyncSlowQueryHook != nil {
		sqOpts.AsyncHook = storageopt.AsyncSlowQueryHook[SlowQueryInfo](opts.AsyncSlowQueryHook)
	}
	return storageopt.NewSlowQueryDetector(sqOpts)
}

// newBreaker 按配置创建熔断器，未配置时返回 nil。
func newBreaker(opts *Options) *gobreaker.CircuitBreaker[any] {
	if opts.Breaker == nil {
		return nil
	}
	s := *opts.Breaker
	if s.Name == "" {
		s.Name = mongoComponent
	}
	if s.IsSuccessful == nil {
		s.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, mongo.ErrNoDocuments)
		}
	}
	if s.IsExcluded == nil {
		s.IsExcluded = func(err error) bool {
			return errors.Is(err, context.Canceled)
		}
	}
	logger := opts.Logger
	onChange := s.OnStateChange
	s.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("xmongo: circuit breaker state changed",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		if onChange != nil {
			onChange(name, from, to)
		}
	}
	return gobreaker.NewCircuitBreaker[any](s)
}

func (w *mongoWrapper) base() *mongoWrapper { return w }

// Client 返回底层 MongoDB 客户端。
//
// 设计决策: 不检查 closed 状态。
// mongo.Client 在 Disconnect 后会自行返回明确错误。
func (w *mongoWrapper) Client() *mongo.Client {
	return w.client
}

// Health 执行健康检查。
func (w *mongoWrapper) Health(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	if w.closed.Load() {
		return ErrClosed
	}

	ctx, span := xmetrics.Start(ctx, w.options.Observer, xmetrics.SpanOptions{
		Component: mongoComponent,
		Operation: "health",
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String("db.system", "mongodb"),
		},
	})
	defer func() {
		span.End(xmetrics.Result{Err: err})
	}()

	w.healthCounter.IncPing()

	ctx, cancel := storageopt.HealthContext(ctx, w.options.HealthTimeout)
	defer cancel()

	if err = w.clientOps.Ping(ctx, readpref.Primary()); err != nil {
		w.healthCounter.IncPingError()
		return fmt.Errorf("xmongo health: %w", err)
	}

	return nil
}

// Stats 返回统计信息。
func (w *mongoWrapper) Stats() Stats {
	s := Stats{
		PingCount:          w.healthCounter.PingCount(),
		PingErrors:         w.healthCounter.PingErrors(),
		SlowQueries:        w.slowQueryCounter.Count(),
		SlowQueriesDropped: w.slowQueryDetector.Dropped(),
		Operations:         w.opCounter.Snapshot(),
		Pool:               w.getPoolStats(),
	}
	if w.breaker != nil {
		s.Breaker = w.breaker.State().String()
	}
	return s
}

// getPoolStats 获取连接池状态。
func (w *mongoWrapper) getPoolStats() PoolStats {
	if w.clientOps == nil {
		return PoolStats{}
	}
	// NumberSessionsInProgress 返回活跃会话数，作为 InUseConnections 的近似值
	return PoolStats{
		InUseConnections: w.clientOps.NumberSessionsInProgress(),
	}
}

// Close 关闭 MongoDB 连接。
// 重复调用返回 ErrClosed。并发安全。
//
// 设计决策: nil context 替换为 context.Background() 而非返回 ErrNilContext，
// 因为关闭操作不应因 nil ctx 而失败（资源释放优先于参数校验）。
// Disconnect 失败时不回滚 closed 状态。
func (w *mongoWrapper) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !w.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	w.slowQueryDetector.Close()

	if w.clientOps == nil {
		return nil
	}
	if err := w.clientOps.Disconnect(ctx); err != nil {
		return fmt.Errorf("xmongo close: %w", err)
	}
	return nil
}

// =============================================================================
// 操作执行
// =============================================================================

// opKind 决定操作使用的兜底超时。
type opKind uint8

const (
	opRead opKind = iota
	opWrite
	// opCursor 返回游标的操作不设兜底超时：
	// 游标在操作返回后仍由调用方迭代，兜底 context 的取消会使后续 getMore 失败。
	opCursor
)

// opInfo 描述一次集合操作。
type opInfo struct {
	name       string
	kind       opKind
	database   string
	collection string
	filter     any
}

// run 执行一次集合操作：入口检查、兜底超时、观测、熔断、慢查询检测、统计，
// 并统一包装错误为 "xmongo <op> <db>.<coll>: ..."（CommandError 自带上下文，不再包装）。
func (w *mongoWrapper) run(ctx context.Context, op opInfo, fn func(ctx context.Context) error) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	if w.closed.Load() {
		return ErrClosed
	}

	switch op.kind {
	case opRead:
		var cancel context.CancelFunc
		ctx, cancel = storageopt.ApplyTimeout(ctx, w.options.QueryTimeout)
		defer cancel()
	case opWrite:
		var cancel context.CancelFunc
		ctx, cancel = storageopt.ApplyTimeout(ctx, w.options.WriteTimeout)
		defer cancel()
	}

	info := SlowQueryInfo{
		Database:   op.database,
		Collection: op.collection,
		Operation:  op.name,
		Filter:     op.filter,
	}

	start := time.Now()
	ctx, span := xmetrics.Start(ctx, w.options.Observer, xmetrics.SpanOptions{
		Component: mongoComponent,
		Operation: op.name,
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String("db.system", "mongodb"),
			xmetrics.String(xlog.KeyDatabase, op.database),
			xmetrics.String(xlog.KeyCollection, op.collection),
		},
	})
	defer func() {
		info.Duration = storageopt.MeasureOperation(start)
		slow := w.maybeSlowQuery(ctx, info)
		w.opCounter.Record(op.name, err)

		var attrs []xmetrics.Attr
		if slow {
			attrs = append(attrs,
				xmetrics.Bool("slow", true),
				xmetrics.Int64("slow_threshold_ms", w.options.SlowQueryThreshold.Milliseconds()),
			)
		}
		span.End(xmetrics.Result{Err: err, Attrs: attrs})
	}()

	if err = w.attempt(ctx, op.kind, fn); err != nil {
		var ce *CommandError
		if !errors.As(err, &ce) {
			err = fmt.Errorf("xmongo %s %s.%s: %w", op.name, op.database, op.collection, err)
		}
	}
	return err
}

// attempt 执行一次操作；读操作在启用重试时对瞬时错误重试。
func (w *mongoWrapper) attempt(ctx context.Context, kind opKind, fn func(ctx context.Context) error) error {
	if w.readRetry == nil || kind == opWrite {
		return w.execute(ctx, fn)
	}
	return w.readRetry.Do(ctx, func(ctx context.Context) error {
		return w.execute(ctx, fn)
	})
}

// execute 在熔断器（若启用）保护下执行 fn。
func (w *mongoWrapper) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if w.breaker == nil {
		return fn(ctx)
	}
	_, err := w.breaker.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrBreakerOpen, err)
	}
	return err
}

// maybeSlowQuery 检测并可能触发慢查询钩子。
func (w *mongoWrapper) maybeSlowQuery(ctx context.Context, info SlowQueryInfo) bool {
	triggered := w.slowQueryDetector.MaybeSlowQuery(ctx, info, info.Duration)
	if triggered {
		w.slowQueryCounter.Inc()
	}
	return triggered
}

// convertPaginationError 将 storageopt 的分页错误转换为 xmongo 的错误类型。
// 由于 xmongo 的分页错误已包装 storageopt 的错误，errors.Is 可以匹配任一错误。
func convertPaginationError(err error) error {
	switch {
	case errors.Is(err, storageopt.ErrInvalidPage):
		return ErrInvalidPage
	case errors.Is(err, storageopt.ErrInvalidPageSize):
		return ErrInvalidPageSize
	case errors.Is(err, storageopt.ErrPageOverflow):
		return ErrPageOverflow
	default:
		return err
	}
}
