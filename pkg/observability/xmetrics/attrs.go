package xmetrics

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Attr 是跨度与指标共用的属性，直接复用 OTel 的 KeyValue，免去转换。
type Attr = attribute.KeyValue

// String 创建字符串属性。
func String(key, value string) Attr { return attribute.String(key, value) }

// Bool 创建布尔属性。
func Bool(key string, value bool) Attr { return attribute.Bool(key, value) }

// Int 创建整数属性。
func Int(key string, value int) Attr { return attribute.Int(key, value) }

// Int64 创建 int64 属性。
func Int64(key string, value int64) Attr { return attribute.Int64(key, value) }

// Duration 以纳秒记录时间间隔，key 建议带单位后缀，例如 "queue_wait_ns"。
func Duration(key string, value time.Duration) Attr {
	return attribute.Int64(key, value.Nanoseconds())
}

// validAttrs 丢弃空 key 的属性；OTel 导出器会拒绝这类属性。
func validAttrs(attrs []Attr) []Attr {
	out := attrs[:0:0]
	for _, a := range attrs {
		if a.Valid() {
			out = append(out, a)
		}
	}
	return out
}
