package xmongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// BulkInsert 将大量文档分批插入。总是使用确认写关注。
//
// 有序模式遇到第一个失败批次即停止；无序模式继续后续批次。
// 部分失败时同时返回结果与合并后的错误。
func (c *Collection[T]) BulkInsert(ctx context.Context, documents []T, opts BulkOptions) (*BulkResult, error) {
	docs, err := c.encodeAll(documents)
	if err != nil {
		return nil, err
	}

	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = defaultBatchSize
	} else if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}

	var result *BulkResult
	err = c.w.run(ctx, c.op("bulk_insert", opWrite, nil), func(ctx context.Context) error {
		result = &BulkResult{}
		result.InsertedCount, result.Errors = c.executeBatches(ctx, docs, batchSize, opts.Ordered)
		// 当存在错误时，同时返回结果和合并的错误，让调用方能通过 err != nil 判断
		if len(result.Errors) > 0 {
			return errors.Join(result.Errors...)
		}
		return nil
	})
	return result, err
}

// executeBatches 执行分批插入操作。
func (c *Collection[T]) executeBatches(ctx context.Context, docs []any, batchSize int, ordered bool) (int64, []error) {
	var insertedCount int64
	var errs []error

	insertOpts := options.InsertMany().SetOrdered(ordered)

	for i := 0; i < len(docs); i += batchSize {
		// 每批次开始前检查 context 是否已取消，避免无效工作
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("context canceled before batch %d: %w", i/batchSize, err))
			break
		}

		end := min(i+batchSize, len(docs))
		count, batchErr, shouldStop := c.executeSingleBatch(ctx, docs[i:end], i/batchSize, insertOpts, ordered)
		insertedCount += count
		if batchErr != nil {
			errs = append(errs, batchErr)
		}
		if shouldStop {
			break
		}
	}

	return insertedCount, errs
}

// executeSingleBatch 执行单个批次的插入，返回 (插入数量, 错误, 是否应停止)。
func (c *Collection[T]) executeSingleBatch(ctx context.Context, batch []any, n int, insertOpts *options.InsertManyOptionsBuilder, ordered bool) (int64, error, bool) {
	result, err := c.acked.InsertMany(ctx, batch, insertOpts)
	if err == nil {
		return int64(len(result.InsertedIDs)), nil, false
	}

	// 即使有错误，也统计部分成功（MongoDB 在 ordered=false 时可能部分成功）
	var insertedCount int64
	if result != nil {
		insertedCount = int64(len(result.InsertedIDs))
	}

	wrappedErr := fmt.Errorf("batch %d: %w", n, err)

	if ordered {
		return insertedCount, wrappedErr, true
	}

	// 无序模式下检查 context，避免继续无效工作
	if ctx.Err() != nil {
		return insertedCount, fmt.Errorf("batch %d context canceled: %w", n, ctx.Err()), true
	}

	return insertedCount, wrappedErr, false
}
