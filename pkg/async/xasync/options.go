package xasync

import (
	"log/slog"

	"github.com/omeyang/xmgo/pkg/observability/xmetrics"
)

const defaultName = "xasync"

type options struct {
	logger    *slog.Logger
	observer  xmetrics.Observer
	name      string
	interrupt bool
}

func defaultOptions() options {
	return options{
		logger:   slog.Default(),
		observer: xmetrics.NoopObserver{},
		name:     defaultName,
	}
}

// Option 配置 Dispatcher。
type Option func(*options)

// WithLogger 设置日志记录器，nil 时忽略。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver 设置可观测性接口，每次执行的操作开启一个跨度。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithName 设置组件名，用于日志与跨度的 component 属性。
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithInterrupt 启用运行中中断：操作开始后调用 Handle.Cancel
// 会取消传给操作的 context。
//
// 这会改变取消语义：默认情况下取消仅阻止尚未开始的操作；
// 启用后已开始的操作可能以 context.Canceled 失败，回调仍恰好触发一次。
func WithInterrupt() Option {
	return func(o *options) {
		o.interrupt = true
	}
}
