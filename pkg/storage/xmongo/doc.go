// Package xmongo 提供类型化的 MongoDB 集合操作集及其异步门面。
//
// # 分层
//
//   - Mongo（New）：客户端级共享设施。健康检查、统计、慢查询检测、熔断、观测。
//   - Collection[T]（NewCollection）：同步操作集。Find、FindOne、FindAll、
//     FindAndModify、MapReduce、Count、Insert、InsertMany、Remove、Update、
//     UpdateAll、Save，以及 FindPage、BulkInsert。
//   - AsyncCollection[T]（NewAsyncCollection）：每个同步操作对应一个异步方法，
//     立即返回 *xasync.Handle，结果通过回调交付。
//
// 通过 Client() 直接执行的操作不会进入统计和慢查询检测。
//
// # 异步门面
//
//	pool, _ := xpool.NewFuncPool(8, 1024)
//	d, _ := xasync.New(pool)
//	users, _ := xmongo.NewCollection[User](m, "app", "users")
//	async, _ := xmongo.NewAsyncCollection(users, d)
//
//	h := async.Count(ctx, bson.D{{Key: "active", Value: true}}, func(n int64, err error) {
//	    // err 非 nil 时 n 为 0
//	})
//	h.Cancel() // 返回 true 表示操作与回调都不会发生
//
// 执行器由调用方持有并负责关闭（pool.Shutdown），门面不创建 goroutine 池。
//
// # Safemode
//
// 写操作的 safemode 参数：true 使用确认写关注（默认 w:1，见 WithWriteConcern），
// 服务端写错误会返回；false 使用非确认写关注，服务端不回报写结果。
//
// # 扩展属性
//
// WithExtendedProperties 让 T 的一个 map 成员承载文档中未声明的键：
//
//	conv, _ := xmapping.NewNamedConvention("Extra")
//	users, err := xmongo.NewCollection[User](m, "app", "users",
//	    xmongo.WithExtendedProperties(conv))
//	// 多个成员满足约定时 err 包装 xmapping.ErrAmbiguousMember
//
// # 错误
//
// 操作错误统一包装为 "xmongo <op> <db>.<coll>: ..."，可用 errors.Is 判断
// ErrNotFound（同时匹配 mongo.ErrNoDocuments）、ErrBreakerOpen、ErrClosed 等；
// findAndModify、mapReduce 的服务端失败为 *CommandError，携带错误码与消息。
//
// Close() 可安全重复调用，首次关闭执行断连，后续调用返回 ErrClosed。
// Close() 后除 Client() 和 Stats() 外的操作均返回 ErrClosed。
//
// # 超时兜底
//
// 查询与写入默认自带兜底超时（查询 30 秒，写入 60 秒），
// 仅当调用方 context 没有 deadline 时生效。返回游标的 Find/FindAll 不设兜底，
// 游标迭代使用调用方传入的 context。WithQueryTimeout(0) / WithWriteTimeout(0) 禁用兜底。
//
// # 熔断
//
// WithBreaker 启用 gobreaker 熔断器，所有集合共享。熔断打开时操作返回 ErrBreakerOpen。
// 未命中（ErrNotFound）与调用方取消不计为失败。
//
// # 读重试
//
// WithReadRetry 对读操作（含返回游标的操作）的瞬时错误重试，判定见 IsTransient。
// 每次尝试都经过熔断器；写操作、命令错误与熔断拒绝从不重试。默认关闭。
package xmongo
