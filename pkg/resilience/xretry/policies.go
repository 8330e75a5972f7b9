package xretry

import "context"

// FixedRetryPolicy 固定次数重试，按 Classifier 过滤错误。
type FixedRetryPolicy struct {
	maxAttempts int
	classify    Classifier
}

// PolicyOption 配置 FixedRetryPolicy。
type PolicyOption func(*FixedRetryPolicy)

// WithClassifier 替换默认的 IsRetryable 分类。nil 被忽略。
//
// 永久性错误和 context 错误始终不重试，与 classify 的结果无关。
func WithClassifier(classify Classifier) PolicyOption {
	return func(p *FixedRetryPolicy) {
		if classify != nil {
			p.classify = classify
		}
	}
}

// NewFixedRetry 创建固定次数重试策略。maxAttempts 小于 1 时按 1 处理。
func NewFixedRetry(maxAttempts int, opts ...PolicyOption) *FixedRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	p := &FixedRetryPolicy{maxAttempts: maxAttempts, classify: IsRetryable}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *FixedRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

func (p *FixedRetryPolicy) ShouldRetry(ctx context.Context, attempt int, err error) bool {
	if ctx.Err() != nil || attempt >= p.maxAttempts {
		return false
	}
	if !IsRetryable(err) {
		return false
	}
	return p.classify(err)
}

// NeverRetryPolicy 只执行一次。
type NeverRetryPolicy struct{}

func (NeverRetryPolicy) MaxAttempts() int { return 1 }

func (NeverRetryPolicy) ShouldRetry(context.Context, int, error) bool { return false }

var (
	_ RetryPolicy = (*FixedRetryPolicy)(nil)
	_ RetryPolicy = NeverRetryPolicy{}
)
