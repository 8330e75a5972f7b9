// Package xmetrics 提供统一的可观测性接口（metrics + tracing）。
//
// # 设计理念
//
// xmetrics 仅定义 Observer/Span 两个接口，
// 调用方（xasync 调度器、xmongo 集合操作）只依赖接口，具体实现可替换。
// Attr 与 Kind 直接复用 OTel 的 attribute.KeyValue 与 trace.SpanKind，
// 默认实现写入 OpenTelemetry 时无需转换。
//
// # 使用示例
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xmongo",
//		Operation: "find_one",
//		Kind:      xmetrics.KindClient,
//	})
//	defer span.End(xmetrics.Result{Err: err})
//
// # 指标命名
//
// 统一指标：
//   - xmgo.operation.total
//   - xmgo.operation.duration
//   - xmgo.operation.inflight（不带 status）
//
// 统一属性：component / operation / status。
package xmetrics
