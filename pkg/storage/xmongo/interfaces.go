package xmongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"
)

// =============================================================================
// 内部接口定义 - 用于依赖注入和测试
// =============================================================================

// clientOperations 定义客户端级别操作接口。
// *mongo.Client 实现此接口。
type clientOperations interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Disconnect(ctx context.Context) error
	NumberSessionsInProgress() int
}

// collectionOperations 定义集合级别操作接口。
// collectionAdapter 将 *mongo.Collection 适配为此接口，单元测试注入 fake。
type collectionOperations interface {
	CountDocuments(ctx context.Context, filter any, opts ...options.Lister[options.CountOptions]) (int64, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
	FindOneAndUpdate(ctx context.Context, filter, update any, opts ...options.Lister[options.FindOneAndUpdateOptions]) *mongo.SingleResult
	FindOneAndReplace(ctx context.Context, filter, replacement any, opts ...options.Lister[options.FindOneAndReplaceOptions]) *mongo.SingleResult
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
	InsertMany(ctx context.Context, documents []any, opts ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error)
	DeleteMany(ctx context.Context, filter any, opts ...options.Lister[options.DeleteManyOptions]) (*mongo.DeleteResult, error)
	UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateManyOptions]) (*mongo.UpdateResult, error)
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongo.UpdateResult, error)

	// RunCommand 在集合所属数据库上执行命令。
	RunCommand(ctx context.Context, cmd any) *mongo.SingleResult

	// WithWriteConcern 返回使用给定写关注的同一集合。
	WithWriteConcern(wc *writeconcern.WriteConcern) collectionOperations

	DatabaseName() string
	Name() string
}

// =============================================================================
// 集合适配器 - 将 *mongo.Collection 适配为 collectionOperations
// =============================================================================

// collectionAdapter 将 *mongo.Collection 适配为 collectionOperations 接口。
type collectionAdapter struct {
	coll *mongo.Collection
}

func (a *collectionAdapter) CountDocuments(ctx context.Context, filter any, opts ...options.Lister[options.CountOptions]) (int64, error) {
	return a.coll.CountDocuments(ctx, filter, opts...)
}

func (a *collectionAdapter) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error) {
	return a.coll.Find(ctx, filter, opts...)
}

func (a *collectionAdapter) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult {
	return a.coll.FindOne(ctx, filter, opts...)
}

func (a *collectionAdapter) FindOneAndUpdate(ctx context.Context, filter, update any, opts ...options.Lister[options.FindOneAndUpdateOptions]) *mongo.SingleResult {
	return a.coll.FindOneAndUpdate(ctx, filter, update, opts...)
}

func (a *collectionAdapter) FindOneAndReplace(ctx context.Context, filter, replacement any, opts ...options.Lister[options.FindOneAndReplaceOptions]) *mongo.SingleResult {
	return a.coll.FindOneAndReplace(ctx, filter, replacement, opts...)
}

func (a *collectionAdapter) InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error) {
	return a.coll.InsertOne(ctx, document, opts...)
}

func (a *collectionAdapter) InsertMany(ctx context.Context, documents []any, opts ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error) {
	return a.coll.InsertMany(ctx, documents, opts...)
}

func (a *collectionAdapter) DeleteMany(ctx context.Context, filter any, opts ...options.Lister[options.DeleteManyOptions]) (*mongo.DeleteResult, error) {
	return a.coll.DeleteMany(ctx, filter, opts...)
}

func (a *collectionAdapter) UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error) {
	return a.coll.UpdateOne(ctx, filter, update, opts...)
}

func (a *collectionAdapter) UpdateMany(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateManyOptions]) (*mongo.UpdateResult, error) {
	return a.coll.UpdateMany(ctx, filter, update, opts...)
}

func (a *collectionAdapter) ReplaceOne(ctx context.Context, filter, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongo.UpdateResult, error) {
	return a.coll.ReplaceOne(ctx, filter, replacement, opts...)
}

func (a *collectionAdapter) RunCommand(ctx context.Context, cmd any) *mongo.SingleResult {
	return a.coll.Database().RunCommand(ctx, cmd)
}

func (a *collectionAdapter) WithWriteConcern(wc *writeconcern.WriteConcern) collectionOperations {
	return &collectionAdapter{coll: a.coll.Clone(options.Collection().SetWriteConcern(wc))}
}

func (a *collectionAdapter) DatabaseName() string {
	return a.coll.Database().Name()
}

func (a *collectionAdapter) Name() string {
	return a.coll.Name()
}

// =============================================================================
// 辅助函数
// =============================================================================

// adaptCollection 将 *mongo.Collection 适配为 collectionOperations 接口。
func adaptCollection(coll *mongo.Collection) collectionOperations {
	if coll == nil {
		return nil
	}
	return &collectionAdapter{coll: coll}
}
