package xmongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/omeyang/xmgo/internal/storageopt"
)

// FindPage 分页查询，自动计算总数和分页信息。
//
// ⚠️ 重要限制：非原子性查询
// 此方法执行两次独立查询（COUNT + 数据查询），不在同一事务中。
// 高并发写入或删除时 Total 可能与实际返回条数不一致，翻页时同一条数据可能重复或遗漏。
// 对于大数据量，考虑基于 _id 或时间戳的游标分页以避免 COUNT 开销。
func (c *Collection[T]) FindPage(ctx context.Context, selector any, opts PageOptions) (*PageResult[T], error) {
	// 使用 storageopt 验证分页参数并计算 skip，防止溢出
	skip, err := storageopt.ValidatePagination(opts.Page, opts.PageSize)
	if err != nil {
		return nil, convertPaginationError(err)
	}
	filter := normalizeSelector(selector)

	var result *PageResult[T]
	err = c.w.run(ctx, c.op("find_page", opRead, filter), func(ctx context.Context) (err error) {
		total, err := c.acked.CountDocuments(ctx, filter)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}

		cursor, err := c.acked.Find(ctx, filter, buildPageOptions(skip, opts))
		if err != nil {
			return fmt.Errorf("find: %w", err)
		}
		defer func() {
			if closeErr := cursor.Close(ctx); closeErr != nil {
				err = errors.Join(err, fmt.Errorf("close cursor: %w", closeErr))
			}
		}()

		data := make([]T, 0, cursor.RemainingBatchLength())
		for cursor.Next(ctx) {
			v, err := c.decode(cursor.Current)
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			data = append(data, *v)
		}
		if err := cursor.Err(); err != nil {
			return fmt.Errorf("find: %w", err)
		}

		result = &PageResult[T]{
			Data:       data,
			Total:      total,
			Page:       opts.Page,
			PageSize:   opts.PageSize,
			TotalPages: storageopt.CalculateTotalPages(total, opts.PageSize),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// buildPageOptions 构建分页查询的 FindOptions。
func buildPageOptions(skip int64, opts PageOptions) *options.FindOptionsBuilder {
	findOpts := options.Find().
		SetSkip(skip).
		SetLimit(opts.PageSize)
	if len(opts.Sort) > 0 {
		findOpts = findOpts.SetSort(opts.Sort)
	}
	if len(opts.Projection) > 0 {
		findOpts = findOpts.SetProjection(opts.Projection)
	}
	return findOpts
}
