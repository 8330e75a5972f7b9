package xmongo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/omeyang/xmgo/pkg/mapping/xmapping"
)

// UpdateFlags 控制 Update 的行为。
type UpdateFlags uint8

const (
	// UpdateUpsert 没有匹配时插入。
	UpdateUpsert UpdateFlags = 1 << iota
	// UpdateMulti 更新全部匹配的文档（要求更新操作符文档）。
	UpdateMulti
)

// Where 返回以 JavaScript 表达式过滤的选择器（$where）。
func Where(js string) bson.D {
	return bson.D{{Key: "$where", Value: bson.JavaScript(js)}}
}

// Collection 是文档类型为 T 的集合上的同步操作集。并发安全。
//
// 每个操作依次经过：nil ctx 与关闭检查、兜底超时、观测 span、熔断器、
// 慢查询检测与操作统计，错误统一包装为 "xmongo <op> <db>.<coll>: ..."。
type Collection[T any] struct {
	w        *mongoWrapper
	acked    collectionOperations
	unacked  collectionOperations
	typeMap  *xmapping.TypeMap
	database string
	name     string
}

// NewCollection 创建 database.name 上的类型化集合。
// 启用 WithExtendedProperties 时，映射在这里构建，约定歧义等配置错误在这里返回。
func NewCollection[T any](m Mongo, database, name string, opts ...CollectionOption) (*Collection[T], error) {
	if m == nil {
		return nil, ErrNilMongo
	}
	if database == "" || name == "" {
		return nil, ErrEmptyName
	}
	w := m.base()
	return newCollection[T](w, adaptCollection(w.client.Database(database).Collection(name)), opts...)
}

// newCollection 基于 collectionOperations 构建集合，单元测试直接注入 fake。
func newCollection[T any](w *mongoWrapper, ops collectionOperations, opts ...CollectionOption) (*Collection[T], error) {
	if ops == nil {
		return nil, ErrNilCollection
	}
	var o collectionOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Collection[T]{
		w:        w,
		acked:    ops.WithWriteConcern(w.options.WriteConcern),
		unacked:  ops.WithWriteConcern(writeconcern.Unacknowledged()),
		database: ops.DatabaseName(),
		name:     ops.Name(),
	}
	if o.convention != nil {
		tm, err := xmapping.TypeMapFor[T](o.convention)
		if err != nil {
			return nil, fmt.Errorf("xmongo: collection %s.%s: %w", c.database, c.name, err)
		}
		c.typeMap = tm
	}
	return c, nil
}

// Database 返回数据库名。
func (c *Collection[T]) Database() string { return c.database }

// Name 返回集合名。
func (c *Collection[T]) Name() string { return c.name }

// TypeMap 返回扩展属性映射，未启用时为 nil。
func (c *Collection[T]) TypeMap() *xmapping.TypeMap { return c.typeMap }

// =============================================================================
// 查询
// =============================================================================

// Find 返回匹配 selector 的文档游标。selector 为 nil 时匹配全部文档。
// 支持 WithFields、WithProjection、WithSort、WithLimit、WithSkip。
func (c *Collection[T]) Find(ctx context.Context, selector any, opts ...QueryOption) (*Cursor[T], error) {
	filter := normalizeSelector(selector)
	q := applyQueryOptions(opts)

	var cur *mongo.Cursor
	err := c.w.run(ctx, c.op("find", opCursor, filter), func(ctx context.Context) error {
		var err error
		cur, err = c.acked.Find(ctx, filter, q.find())
		return err
	})
	if err != nil {
		return nil, err
	}
	return newCursor(cur, c.decode), nil
}

// FindAll 返回集合全部文档的游标。
func (c *Collection[T]) FindAll(ctx context.Context, opts ...QueryOption) (*Cursor[T], error) {
	return c.Find(ctx, nil, opts...)
}

// FindOne 返回第一个匹配的文档，没有匹配时返回 ErrNotFound。
// 支持 WithFields、WithProjection、WithSort、WithSkip。
func (c *Collection[T]) FindOne(ctx context.Context, selector any, opts ...QueryOption) (*T, error) {
	filter := normalizeSelector(selector)
	q := applyQueryOptions(opts)

	var out *T
	err := c.w.run(ctx, c.op("find_one", opRead, filter), func(ctx context.Context) error {
		raw, err := c.acked.FindOne(ctx, filter, q.findOne()).Raw()
		if err != nil {
			return notFound(err)
		}
		out, err = c.decode(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindAndModify 原子地修改第一个匹配的文档并返回它。
//
// document 为更新操作符文档（$set 等）时执行更新，否则整体替换；
// 默认返回修改前的文档，ReturnNew 返回修改后的。没有匹配时返回 ErrNotFound；
// 但 Upsert 且未 ReturnNew 时，没有匹配会插入新文档，此时不存在修改前的文档，返回 (nil, nil)。
// 服务端命令失败返回 *CommandError。
func (c *Collection[T]) FindAndModify(ctx context.Context, document, selector any, opts ...QueryOption) (*T, error) {
	doc, err := c.toDocument(document)
	if err != nil {
		return nil, err
	}
	filter := normalizeSelector(selector)
	q := applyQueryOptions(opts)

	var out *T
	err = c.w.run(ctx, c.op("find_and_modify", opWrite, filter), func(ctx context.Context) error {
		var res *mongo.SingleResult
		if isOperatorDocument(doc) {
			res = c.acked.FindOneAndUpdate(ctx, filter, doc, q.findOneAndUpdate())
		} else {
			res = c.acked.FindOneAndReplace(ctx, filter, doc, q.findOneAndReplace())
		}
		raw, err := res.Raw()
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				if q.upsert {
					return nil
				}
				return ErrNotFound
			}
			if ce := newCommandError("find_and_modify", c.database, c.name, "findAndModify", err); ce != nil {
				return ce
			}
			return err
		}
		out, err = c.decode(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count 返回匹配 selector 的文档数。集合不存在时返回 0。
// 失败时返回 (0, err)：调用方据 err 区分"零个文档"与"失败占位"。
func (c *Collection[T]) Count(ctx context.Context, selector any) (int64, error) {
	filter := normalizeSelector(selector)

	var n int64
	err := c.w.run(ctx, c.op("count", opRead, filter), func(ctx context.Context) error {
		var err error
		n, err = c.acked.CountDocuments(ctx, filter)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// =============================================================================
// 写入
// =============================================================================

// Insert 插入一个文档。
// safemode 为 true 时等待服务端确认并报告写错误；为 false 时使用非确认写关注。
func (c *Collection[T]) Insert(ctx context.Context, document T, safemode bool) error {
	doc, err := c.encode(document)
	if err != nil {
		return err
	}
	return c.w.run(ctx, c.op("insert", opWrite, nil), func(ctx context.Context) error {
		_, err := c.ops(safemode).InsertOne(ctx, doc)
		return err
	})
}

// InsertMany 有序插入多个文档，遇到第一个错误停止。
// 大量文档的分批插入见 BulkInsert。
func (c *Collection[T]) InsertMany(ctx context.Context, documents []T, safemode bool) error {
	docs, err := c.encodeAll(documents)
	if err != nil {
		return err
	}
	return c.w.run(ctx, c.op("insert_many", opWrite, nil), func(ctx context.Context) error {
		_, err := c.ops(safemode).InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
		return err
	})
}

// Remove 删除全部匹配 selector 的文档。selector 为 nil 时删除全部文档。
func (c *Collection[T]) Remove(ctx context.Context, selector any, safemode bool) error {
	filter := normalizeSelector(selector)
	return c.w.run(ctx, c.op("remove", opWrite, filter), func(ctx context.Context) error {
		_, err := c.ops(safemode).DeleteMany(ctx, filter)
		return err
	})
}

// Update 按 flags 更新匹配 selector 的文档。
//
// document 为更新操作符文档时执行更新（UpdateMulti 更新全部匹配），
// 否则整体替换第一个匹配的文档；替换不能与 UpdateMulti 同时使用。
func (c *Collection[T]) Update(ctx context.Context, document, selector any, flags UpdateFlags, safemode bool) error {
	doc, err := c.toDocument(document)
	if err != nil {
		return err
	}
	operator := isOperatorDocument(doc)
	if !operator && flags&UpdateMulti != 0 {
		return ErrMultiReplace
	}
	filter := normalizeSelector(selector)
	upsert := flags&UpdateUpsert != 0

	name := "update"
	if flags&UpdateMulti != 0 {
		name = "update_all"
	}
	return c.w.run(ctx, c.op(name, opWrite, filter), func(ctx context.Context) error {
		ops := c.ops(safemode)
		var err error
		switch {
		case !operator:
			_, err = ops.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(upsert))
		case flags&UpdateMulti != 0:
			_, err = ops.UpdateMany(ctx, filter, doc, options.UpdateMany().SetUpsert(upsert))
		default:
			_, err = ops.UpdateOne(ctx, filter, doc, options.UpdateOne().SetUpsert(upsert))
		}
		return err
	})
}

// UpdateAll 用更新操作符文档更新全部匹配的文档。
func (c *Collection[T]) UpdateAll(ctx context.Context, document, selector any, safemode bool) error {
	return c.Update(ctx, document, selector, UpdateMulti, safemode)
}

// Save 按 _id 插入或替换文档：_id 缺失或为零值时插入（由驱动生成 _id），
// 否则以 _id 为条件 upsert 替换。
func (c *Collection[T]) Save(ctx context.Context, document T, safemode bool) error {
	doc, err := c.toDocument(document)
	if err != nil {
		return err
	}
	id, idx := lookupID(doc)
	return c.w.run(ctx, c.op("save", opWrite, nil), func(ctx context.Context) error {
		ops := c.ops(safemode)
		if idx < 0 || isZero(id) {
			if idx >= 0 {
				doc = append(doc[:idx:idx], doc[idx+1:]...)
			}
			_, err := ops.InsertOne(ctx, doc)
			return err
		}
		_, err := ops.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc, options.Replace().SetUpsert(true))
		return err
	})
}

// =============================================================================
// 内部实现
// =============================================================================

func (c *Collection[T]) op(name string, kind opKind, filter any) opInfo {
	return opInfo{name: name, kind: kind, database: c.database, collection: c.name, filter: filter}
}

// ops 按 safemode 选择写关注。
func (c *Collection[T]) ops(safemode bool) collectionOperations {
	if safemode {
		return c.acked
	}
	return c.unacked
}

// decode 按映射解码文档。
func (c *Collection[T]) decode(raw bson.Raw) (*T, error) {
	var v T
	if c.typeMap != nil {
		if err := c.typeMap.Decode(raw, &v); err != nil {
			return nil, err
		}
		return &v, nil
	}
	if err := bson.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("xmongo: decode %T: %w", v, err)
	}
	return &v, nil
}

// encode 返回写入驱动的文档。启用扩展属性时 T 经映射展开，其余原样交给驱动。
func (c *Collection[T]) encode(doc any) (any, error) {
	if isNil(doc) {
		return nil, ErrNilDocument
	}
	if c.typeMap != nil {
		switch doc.(type) {
		case T, *T:
			return c.typeMap.Encode(doc)
		}
	}
	return doc, nil
}

func (c *Collection[T]) encodeAll(documents []T) ([]any, error) {
	if len(documents) == 0 {
		return nil, ErrEmptyDocs
	}
	docs := make([]any, len(documents))
	for i := range documents {
		doc, err := c.encode(documents[i])
		if err != nil {
			return nil, fmt.Errorf("xmongo: document %d: %w", i, err)
		}
		docs[i] = doc
	}
	return docs, nil
}

// toDocument 将任意文档转换为 bson.D，用于需要检查键的操作（更新、Save）。
func (c *Collection[T]) toDocument(doc any) (bson.D, error) {
	enc, err := c.encode(doc)
	if err != nil {
		return nil, err
	}
	if d, ok := enc.(bson.D); ok {
		return d, nil
	}
	data, err := bson.Marshal(enc)
	if err != nil {
		return nil, fmt.Errorf("xmongo: encode %T: %w", doc, err)
	}
	var d bson.D
	if err := bson.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("xmongo: encode %T: %w", doc, err)
	}
	return d, nil
}

// normalizeSelector 将 nil 选择器归一化为 bson.D{}。
//
// 设计决策: 不依赖 driver 对 nil filter 的隐式处理，使"匹配全部"的语义显式。
func normalizeSelector(selector any) any {
	if isNil(selector) {
		return bson.D{}
	}
	return selector
}

// isOperatorDocument 报告文档是否为更新操作符文档（键以 $ 开头）。
func isOperatorDocument(doc bson.D) bool {
	for _, e := range doc {
		if strings.HasPrefix(e.Key, "$") {
			return true
		}
	}
	return false
}

func lookupID(doc bson.D) (any, int) {
	for i, e := range doc {
		if e.Key == "_id" {
			return e.Value, i
		}
	}
	return nil, -1
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// notFound 将 mongo.ErrNoDocuments 转换为 ErrNotFound。
func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// =============================================================================
// 查询选项转换
// =============================================================================

func (q queryOptions) find() *options.FindOptionsBuilder {
	o := options.Find()
	if q.projection != nil {
		o.SetProjection(q.projection)
	}
	if q.sort != nil {
		o.SetSort(q.sort)
	}
	if q.limit > 0 {
		o.SetLimit(q.limit)
	}
	if q.skip > 0 {
		o.SetSkip(q.skip)
	}
	return o
}

func (q queryOptions) findOne() *options.FindOneOptionsBuilder {
	o := options.FindOne()
	if q.projection != nil {
		o.SetProjection(q.projection)
	}
	if q.sort != nil {
		o.SetSort(q.sort)
	}
	if q.skip > 0 {
		o.SetSkip(q.skip)
	}
	return o
}

func (q queryOptions) returnDocument() options.ReturnDocument {
	if q.returnNew {
		return options.After
	}
	return options.Before
}

func (q queryOptions) findOneAndUpdate() *options.FindOneAndUpdateOptionsBuilder {
	o := options.FindOneAndUpdate().
		SetReturnDocument(q.returnDocument()).
		SetUpsert(q.upsert)
	if q.projection != nil {
		o.SetProjection(q.projection)
	}
	if q.sort != nil {
		o.SetSort(q.sort)
	}
	return o
}

func (q queryOptions) findOneAndReplace() *options.FindOneAndReplaceOptionsBuilder {
	o := options.FindOneAndReplace().
		SetReturnDocument(q.returnDocument()).
		SetUpsert(q.upsert)
	if q.projection != nil {
		o.SetProjection(q.projection)
	}
	if q.sort != nil {
		o.SetSort(q.sort)
	}
	return o
}
