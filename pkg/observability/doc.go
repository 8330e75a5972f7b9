// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog，支持文件轮转
//   - xmetrics: 统一观测接口，OpenTelemetry 指标与追踪
//
// 集合操作通过 xmetrics.Observer 记录耗时与结果，
// 熔断、慢查询与调度故障通过 xlog 输出。
package observability
