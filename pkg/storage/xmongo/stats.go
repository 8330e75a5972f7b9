package xmongo

import "github.com/omeyang/xmgo/internal/storageopt"

// =============================================================================
// 统计信息
// =============================================================================

// OperationStats 单个操作的调用与失败次数。
type OperationStats = storageopt.OpStats

// Stats 包含 MongoDB 包装器的统计信息。
type Stats struct {
	// PingCount 健康检查次数。
	PingCount int64

	// PingErrors 健康检查失败次数。
	PingErrors int64

	// SlowQueries 慢查询次数。
	SlowQueries int64

	// SlowQueriesDropped 因异步队列满而丢弃的慢查询通知数。
	SlowQueriesDropped int64

	// Operations 各集合操作的调用统计，按操作名排序。
	Operations []OperationStats

	// Breaker 熔断器状态（closed、half-open、open），未启用时为空。
	Breaker string

	// Pool 连接池状态。
	Pool PoolStats
}

// PoolStats 连接池状态信息。
//
// 限制说明：
// MongoDB driver v2 不直接暴露连接池详细信息（如总连接数、可用连接数）。
// 需要详细信息时使用 serverStatus 命令或 driver 的 PoolMonitor 事件。
type PoolStats struct {
	// InUseConnections 使用中连接数。
	// 通过 mongo.Client.NumberSessionsInProgress() 获取，表示活跃会话数。
	InUseConnections int
}
