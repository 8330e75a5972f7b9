package xpool

import "log/slog"

// Option 定义 Pool 可选配置函数类型。
type Option func(*options)

type options struct {
	logger       *slog.Logger
	name         string
	logTaskValue bool
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
	}
}

// WithLogger 设置 panic 恢复日志使用的记录器。
// 默认使用 slog.Default()，传入 nil 被忽略。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 设置 pool 名称，多实例时用于区分日志来源。
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogTaskValue 在 panic 日志中输出完整的 task 值。
//
// 默认仅记录 task 类型，避免敏感信息进入日志。
func WithLogTaskValue() Option {
	return func(o *options) {
		o.logTaskValue = true
	}
}
