// Package xretry 为存储访问提供按错误分类的重试执行器。
//
// Retryer 组合两类策略：
//   - RetryPolicy：决定失败后是否再试（次数上限 + 错误分类）
//   - BackoffPolicy：决定两次尝试之间的等待
//
// 错误分类通过 Classifier 注入，存储层据此只重试瞬时故障（网络抖动、
// 主从切换等），命令错误与调用方取消一律直接返回。
//
//	r := xretry.NewRetryer(
//	    xretry.WithRetryPolicy(xretry.NewFixedRetry(3, xretry.WithClassifier(isTransient))),
//	    xretry.WithBackoffPolicy(xretry.NewExponentialBackoff()),
//	)
//	err := r.Do(ctx, func(ctx context.Context) error {
//	    return coll.FindOne(ctx, filter).Err()
//	})
//
// 底层使用 [avast/retry-go/v5]。
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
