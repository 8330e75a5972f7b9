package xmongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MapReduceSpec 描述一次 mapReduce 命令。Map 与 Reduce 为 JavaScript 函数源码。
type MapReduceSpec struct {
	Map      string
	Reduce   string
	Finalize string

	// Query 限定参与计算的文档，nil 表示全部。
	Query any
	// Sort 输入文档的排序。
	Sort any
	// Limit 输入文档数上限，0 表示不限制。
	Limit int64
	// Scope 为 map/reduce/finalize 注入的全局变量。
	Scope map[string]any

	// Out 为空时结果内联返回；否则写入同库的 Out 集合（replace 模式）。
	Out string
}

// MapReduceItem 是一条 mapReduce 输出。
type MapReduceItem struct {
	ID    any `bson:"_id"`
	Value any `bson:"value"`
}

// MapReduceResult 是 mapReduce 的结果。
type MapReduceResult struct {
	// Results 内联输出的结果，输出到集合时为空。
	Results []MapReduceItem
	// Collection 输出集合名，内联输出时为空。
	Collection string
	// Raw 服务端原始响应。
	Raw bson.Raw
}

// MapReduce 在集合上执行 mapReduce 命令。
// 服务端命令失败返回 *CommandError。
func (c *Collection[T]) MapReduce(ctx context.Context, spec MapReduceSpec) (*MapReduceResult, error) {
	if spec.Map == "" || spec.Reduce == "" {
		return nil, ErrInvalidMapReduce
	}
	cmd := c.mapReduceCommand(spec)

	// 输出到集合时命令会写入，按写操作处理（写超时、不参与读重试）。
	kind := opRead
	if spec.Out != "" {
		kind = opWrite
	}

	var out *MapReduceResult
	err := c.w.run(ctx, c.op("map_reduce", kind, spec.Query), func(ctx context.Context) error {
		raw, err := c.acked.RunCommand(ctx, cmd).Raw()
		if err != nil {
			if ce := newCommandError("map_reduce", c.database, c.name, "mapReduce", err); ce != nil {
				return ce
			}
			return err
		}
		out, err = parseMapReduce(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Collection[T]) mapReduceCommand(spec MapReduceSpec) bson.D {
	cmd := bson.D{
		{Key: "mapReduce", Value: c.name},
		{Key: "map", Value: bson.JavaScript(spec.Map)},
		{Key: "reduce", Value: bson.JavaScript(spec.Reduce)},
	}
	if spec.Out == "" {
		cmd = append(cmd, bson.E{Key: "out", Value: bson.D{{Key: "inline", Value: 1}}})
	} else {
		cmd = append(cmd, bson.E{Key: "out", Value: spec.Out})
	}
	if spec.Finalize != "" {
		cmd = append(cmd, bson.E{Key: "finalize", Value: bson.JavaScript(spec.Finalize)})
	}
	if !isNil(spec.Query) {
		cmd = append(cmd, bson.E{Key: "query", Value: spec.Query})
	}
	if !isNil(spec.Sort) {
		cmd = append(cmd, bson.E{Key: "sort", Value: spec.Sort})
	}
	if spec.Limit > 0 {
		cmd = append(cmd, bson.E{Key: "limit", Value: spec.Limit})
	}
	if len(spec.Scope) > 0 {
		cmd = append(cmd, bson.E{Key: "scope", Value: spec.Scope})
	}
	return cmd
}

// parseMapReduce 解析响应。输出到集合时 result 可能是集合名，
// 也可能是 {db, collection} 文档（指定输出库时）。
func parseMapReduce(raw bson.Raw) (*MapReduceResult, error) {
	var resp struct {
		Results []MapReduceItem `bson:"results"`
		Result  bson.RawValue   `bson:"result"`
	}
	if err := bson.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("xmongo: decode mapReduce response: %w", err)
	}

	res := &MapReduceResult{Results: resp.Results, Raw: raw}
	switch resp.Result.Type {
	case bson.TypeString:
		res.Collection = resp.Result.StringValue()
	case bson.TypeEmbeddedDocument:
		if name, ok := resp.Result.Document().Lookup("collection").StringValueOK(); ok {
			res.Collection = name
		}
	}
	return res, nil
}
