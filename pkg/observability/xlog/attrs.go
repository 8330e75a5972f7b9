package xlog

import (
	"log/slog"
	"time"
)

// 常用属性 key。
const (
	KeyError      = "error"
	KeyDuration   = "duration"
	KeyComponent  = "component"
	KeyOperation  = "operation"
	KeyDatabase   = "db.name"
	KeyCollection = "db.collection"
)

// Err 创建错误属性，err 为 nil 时返回空属性（被 slog 忽略）。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 创建人类可读的耗时属性（如 "1.5s"）。
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 创建组件名属性。
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 创建操作名属性。
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// Namespace 创建 db.name / db.collection 属性组。
func Namespace(database, collection string) []any {
	return []any{slog.String(KeyDatabase, database), slog.String(KeyCollection, collection)}
}
