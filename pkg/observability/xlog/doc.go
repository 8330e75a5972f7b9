// Package xlog 基于 log/slog 构建 *slog.Logger。
//
// # 核心功能
//
//   - Builder 模式配置（输出目标、级别、格式、文件轮转）
//   - 自动从 context 注入 OpenTelemetry trace_id / span_id（EnrichHandler，默认启用）
//   - 动态级别调整（Build 返回的 *slog.LevelVar）
//   - 日志治理（SetReplaceAttr：脱敏、重命名、过滤）
//
// Builder 采用 first-error-wins：遇到第一个配置错误后，Build 返回该错误。
//
//	logger, level, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xmgoctl.log", xlog.RotationOptions{MaxSizeMB: 100}).
//		Build()
//	if err != nil { ... }
//	defer cleanup()
//	level.Set(slog.LevelWarn) // 运行时调整
//
// 返回的 *slog.Logger 直接注入 xasync、xmongo、xpool 的 WithLogger。
//
// # 日志级别
//
// LevelDebug、LevelInfo、LevelWarn、LevelError 与 slog 一致。
// Level 实现 encoding.TextUnmarshaler，可直接从配置文件解析。
package xlog
