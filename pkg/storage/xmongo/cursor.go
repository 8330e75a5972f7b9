package xmongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Cursor 是类型化的查询游标，按集合的映射（含扩展属性）解码文档。
// 与 mongo.Cursor 一样不是并发安全的，使用完毕必须 Close（All 会自动关闭）。
type Cursor[T any] struct {
	cur    *mongo.Cursor
	decode func(bson.Raw) (*T, error)
}

func newCursor[T any](cur *mongo.Cursor, decode func(bson.Raw) (*T, error)) *Cursor[T] {
	return &Cursor[T]{cur: cur, decode: decode}
}

// Next 前进到下一个文档，没有更多文档或出错时返回 false，错误通过 Err 获取。
func (c *Cursor[T]) Next(ctx context.Context) bool {
	return c.cur.Next(ctx)
}

// Decode 解码当前文档。
func (c *Cursor[T]) Decode() (*T, error) {
	v, err := c.decode(c.cur.Current)
	if err != nil {
		return nil, fmt.Errorf("xmongo cursor decode: %w", err)
	}
	return v, nil
}

// Current 返回当前文档的原始 BSON，仅在下一次 Next 之前有效。
func (c *Cursor[T]) Current() bson.Raw {
	return c.cur.Current
}

// Err 返回迭代过程中的错误。
func (c *Cursor[T]) Err() error {
	return c.cur.Err()
}

// Close 关闭游标。
func (c *Cursor[T]) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

// All 读取剩余全部文档并关闭游标。空结果返回空切片而非 nil。
func (c *Cursor[T]) All(ctx context.Context) (items []T, err error) {
	defer func() {
		if closeErr := c.cur.Close(ctx); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("xmongo cursor close: %w", closeErr))
		}
	}()

	items = []T{}
	for c.cur.Next(ctx) {
		v, err := c.Decode()
		if err != nil {
			return nil, err
		}
		items = append(items, *v)
	}
	if err := c.cur.Err(); err != nil {
		return nil, fmt.Errorf("xmongo cursor: %w", err)
	}
	return items, nil
}

// Raw 返回底层 mongo.Cursor。
func (c *Cursor[T]) Raw() *mongo.Cursor {
	return c.cur
}
