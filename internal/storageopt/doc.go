// Package storageopt 提供 pkg/storage 子包共享的工具。
//
// 依赖链为：xmongo → internal/storageopt → pkg/util/xpool，逻辑上从高到低。
//
// 主要功能：
//   - 超时兜底（HealthContext、ApplyTimeout）
//   - 分页参数验证
//   - 慢查询检测器（同步钩子 + 基于 xpool 的异步钩子）
//   - 原子计数器（健康检查、慢查询、按操作名统计）
package storageopt
