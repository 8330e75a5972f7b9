package storageopt

import (
	"errors"
	"math"
)

// 分页相关错误。
var (
	// ErrInvalidPage 表示页码无效（必须 >= 1）。
	ErrInvalidPage = errors.New("storageopt: invalid page number, must be >= 1")

	// ErrInvalidPageSize 表示每页大小无效（必须在 [1, MaxPageSize] 内）。
	ErrInvalidPageSize = errors.New("storageopt: invalid page size")

	// ErrPageOverflow 表示 (page-1) * pageSize 超过 int64 上限。
	ErrPageOverflow = errors.New("storageopt: page calculation overflow, reduce page number or page size")
)

// MaxPageSize 单页文档数上限。
const MaxPageSize = 10000

// ValidatePagination 验证分页参数并返回 skip 偏移量 (page-1) * pageSize。
func ValidatePagination(page, pageSize int64) (offset int64, err error) {
	if page < 1 {
		return 0, ErrInvalidPage
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return 0, ErrInvalidPageSize
	}
	if page-1 > math.MaxInt64/pageSize {
		return 0, ErrPageOverflow
	}
	return (page - 1) * pageSize, nil
}

// CalculateTotalPages 计算总页数，total 或 pageSize <= 0 时返回 0。
func CalculateTotalPages(total, pageSize int64) int64 {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	pages := total / pageSize
	if total%pageSize > 0 {
		pages++
	}
	return pages
}
