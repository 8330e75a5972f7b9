package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xmgo/pkg/async/xasync"
	"github.com/omeyang/xmgo/pkg/observability/xlog"
	"github.com/omeyang/xmgo/pkg/observability/xmetrics"
	"github.com/omeyang/xmgo/pkg/resilience/xretry"
	"github.com/omeyang/xmgo/pkg/storage/xmongo"
	"github.com/omeyang/xmgo/pkg/util/xpool"
)

// errCancelled 表示命令在开始执行前因超时或中断被取消。
var errCancelled = errors.New("cancelled before start")

// session 持有一条命令所需的全部资源，Close 按创建的逆序释放。
type session struct {
	settings settings
	logger   *slog.Logger
	closeLog func() error
	mongo    xmongo.Mongo
	pool     *xpool.Pool[func()]
	coll     *xmongo.AsyncCollection[bson.M]
}

// openSession 建立日志、客户端、worker pool 与异步集合。
// withCollection 为 false 时（如 ping）不要求数据库名与集合名。
func openSession(s settings, withCollection bool) (_ *session, err error) {
	if withCollection {
		if err := s.requireNamespace(); err != nil {
			return nil, err
		}
	}

	b := xlog.New().
		SetLevelString(s.Log.Level).
		SetFormat(s.Log.Format).
		SetAttrs(slog.String("app", "xmgoctl"))
	if s.Log.File != "" {
		b.SetRotation(s.Log.File, s.Log.Rotation)
	}
	logger, _, closeLog, err := b.Build()
	if err != nil {
		return nil, &usageError{msg: fmt.Sprintf("日志配置无效: %v", err)}
	}

	sess := &session{settings: s, logger: logger, closeLog: closeLog}
	defer func() {
		if err != nil {
			_ = sess.Close()
		}
	}()

	observer, err := xmetrics.NewOTelObserver(xmetrics.WithInstrumentationName("xmgoctl"))
	if err != nil {
		return nil, fmt.Errorf("create observer: %w", err)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(s.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	sess.mongo, err = xmongo.New(client,
		xmongo.WithLogger(logger),
		xmongo.WithObserver(observer),
		xmongo.WithSlowQueryThreshold(s.Mongo.SlowQuery),
		xmongo.WithSlowQueryHook(func(_ context.Context, info xmongo.SlowQueryInfo) {
			logger.Warn("slow query",
				slog.String(xlog.KeyDatabase, info.Database),
				slog.String(xlog.KeyCollection, info.Collection),
				slog.String("op", info.Operation),
				slog.Duration("duration", info.Duration))
		}),
		xmongo.WithReadRetry(s.Mongo.Retries, xretry.NewExponentialBackoff()),
		xmongo.WithBreaker(gobreaker.Settings{
			Name:    "xmgoctl",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if !withCollection {
		return sess, nil
	}

	sess.pool, err = xpool.NewFuncPool(s.Pool.Workers, s.Pool.Queue,
		xpool.WithLogger(logger), xpool.WithName("xmgoctl"))
	if err != nil {
		return nil, err
	}
	d, err := xasync.New(sess.pool,
		xasync.WithLogger(logger),
		xasync.WithObserver(observer),
		xasync.WithInterrupt())
	if err != nil {
		return nil, err
	}
	coll, err := xmongo.NewCollection[bson.M](sess.mongo, s.Mongo.Database, s.Mongo.Collection)
	if err != nil {
		return nil, err
	}
	sess.coll, err = xmongo.NewAsyncCollection(coll, d)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Close 等待排队的任务结束后释放资源。
func (s *session) Close() error {
	var errs []error
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
	}
	if s.mongo != nil {
		errs = append(errs, s.mongo.Close(context.Background()))
	}
	if s.closeLog != nil {
		errs = append(errs, s.closeLog())
	}
	return errors.Join(errs...)
}

// await 提交一次异步调用并等待回调。
//
// 超时在任务开始前到达时取消任务，返回 errCancelled；
// 开始后由传给操作的 context 截止，调度器启用了中断，父 context 取消同样生效。
func await[T any](ctx context.Context, timeout time.Duration, start func(ctx context.Context, cb func(T, error)) *xasync.Handle) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	h := start(ctx, func(v T, err error) { ch <- outcome{v, err} })
	h.CancelWhen(ctx)

	// 终态之后回调一定已经返回（Completed）或永远不会发生（Cancelled）
	st, _ := h.Wait(context.Background())
	if st == xasync.StateCancelled {
		return zero, fmt.Errorf("%s: %w: %w", h.Op(), errCancelled, context.Cause(ctx))
	}
	r := <-ch
	return r.v, r.err
}

// awaitErr 是只回调 error 的 await。
func awaitErr(ctx context.Context, timeout time.Duration, start func(ctx context.Context, cb func(error)) *xasync.Handle) error {
	_, err := await(ctx, timeout, func(ctx context.Context, cb func(struct{}, error)) *xasync.Handle {
		return start(ctx, func(err error) { cb(struct{}{}, err) })
	})
	return err
}
