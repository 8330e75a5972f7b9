// Package xasync 将阻塞操作转换为可取消、以回调完成的异步调用。
//
// 每次调用立即返回 *Handle，并向注入的 Executor 提交恰好一个任务。
// 任务执行协议：
//
//  1. 原子地从 Scheduled 切换到 Running；若 Handle 已被取消则进入 Cancelled，
//     操作与回调都不会执行（静默不执行，不报告"已取消"结果）
//  2. 执行同步操作；操作 panic 被恢复为 *PanicError
//  3. 成功时以结果值回调，失败时以错误和零值回调
//  4. 回调在执行器的 goroutine 上运行，而非调用方 goroutine
//
// # 保证
//
//   - 回调至多触发一次；未取消的调用恰好触发一次
//   - 结果与错误互斥：Err != nil 时值为 T 的零值
//   - 调用方永远不会在异步方法上收到 panic 或错误返回
//   - 开始后的取消不生效（默认），除非启用 WithInterrupt
//
// 回调自身 panic 不被恢复：Handle 仍进入 Completed（回调不会被二次调用），
// panic 交由执行器的故障策略处理。GoExecutor 下为进程崩溃（Go 默认行为），
// xpool.Pool 下为恢复并记录日志。
//
// # 执行器
//
// Executor 只有一个方法 Submit(func()) error，由调用方显式持有并管理生命周期：
//
//	pool, _ := xpool.NewFuncPool(16, 1024)
//	defer pool.Close()
//	d, err := xasync.New(pool, xasync.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//
//	h := xasync.Call(ctx, d, "count", func(ctx context.Context) (int64, error) {
//		return coll.Count(ctx, filter)
//	}, func(n int64, err error) {
//		// ...
//	})
//	h.CancelAfter(5 * time.Second)
//
// 有界执行器拒绝任务时（队列满、已关闭），Handle 直接进入 Completed，
// 回调在独立 goroutine 上收到包装了执行器错误的 ErrRejected。
// 此时没有执行器承接回调 panic，调度器恢复并记录日志（与 xpool 的策略一致）。
//
// 回调为 nil 时结果被丢弃；实现 Close(context.Context) error 的结果（如游标）先被关闭。
package xasync
