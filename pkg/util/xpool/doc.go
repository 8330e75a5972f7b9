// Package xpool 提供有界的泛型 worker pool。
//
// Pool 用作异步调度层的执行器：固定数量的 worker 从有界队列中取任务执行，
// 生命周期由调用方显式持有（创建、关闭、等待排空）。
//
// 特性：
//   - 泛型任务类型；NewFuncPool 以 func() 为任务，直接满足 xasync.Executor
//   - worker 数量 [1, 65536]，队列大小 [1, 16777216]，越界返回错误
//   - Submit 非阻塞：队列满返回 ErrQueueFull，关闭后返回 ErrPoolStopped
//   - 优雅关闭：Close/Shutdown 拒绝新任务并排空已接收任务
//   - Shutdown(ctx) 超时后立即返回，Done() 可等待残留 worker 最终退出
//   - panic 恢复：单个任务 panic 仅记录日志（含堆栈），不影响其他任务
//
// # 故障策略
//
// handler 内的 panic 被恢复并通过 slog 记录，任务不会重试。
// 日志默认只记录 task 类型，需要完整值时使用 WithLogTaskValue。
// 如果调用方希望 panic 终止进程（Go 默认行为），应选择
// 每任务一个 goroutine 的执行器而不是 Pool。
//
// # 注意事项
//
//   - Close/Shutdown 不可在 handler 内调用，否则会死锁
//   - Shutdown(nil) 返回 ErrNilContext
//   - 设计决策: New 返回 *Pool[T] 而非接口，作为轻量工具包不需要多实现替换；
//     需要抽象时由使用方定义窄接口（如 xasync.Executor）
package xpool
