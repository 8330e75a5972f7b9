package xasync

//go:generate mockgen -source=executor.go -destination=mock_executor_test.go -package=xasync

// Executor 执行提交的任务。
//
// Submit 不得阻塞调用方：无法接收任务时应立即返回错误。
// *xpool.Pool[func()] 满足该接口。
type Executor interface {
	Submit(task func()) error
}

// ExecutorFunc 将普通函数适配为 Executor。
type ExecutorFunc func(task func()) error

// Submit 调用 f(task)。
func (f ExecutorFunc) Submit(task func()) error {
	return f(task)
}

// GoExecutor 为每个任务启动一个 goroutine，不限并发。
//
// 任务内未恢复的 panic（包括回调 panic）会终止进程。
type GoExecutor struct{}

// Submit 在新 goroutine 中运行 task，从不拒绝。
func (GoExecutor) Submit(task func()) error {
	go task()
	return nil
}
