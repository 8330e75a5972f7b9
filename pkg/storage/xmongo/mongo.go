package xmongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// =============================================================================
// 接口定义
// =============================================================================

// Mongo 定义 MongoDB 包装器接口。
// 持有客户端级别的共享设施（慢查询检测、熔断、观测、统计），
// 类型化的集合操作通过 NewCollection 创建。
type Mongo interface {
	// Client 返回底层的 mongo.Client。
	Client() *mongo.Client

	// Health 执行健康检查。
	// 通过 Ping 命令检测连接状态。
	Health(ctx context.Context) error

	// Stats 返回统计信息。
	// 包含健康检查次数、慢查询次数、各操作调用次数、连接池状态等。
	Stats() Stats

	// Close 关闭 MongoDB 连接并释放慢查询 worker。
	// 注意：由于客户端由外部传入，此方法会断开连接。
	Close(ctx context.Context) error

	// base 返回内部实现，使接口只能由本包实现。
	base() *mongoWrapper
}

// =============================================================================
// 分页查询类型
// =============================================================================

// PageOptions 分页查询选项。
type PageOptions struct {
	// Page 页码，从 1 开始。
	Page int64

	// PageSize 每页大小，上限 storageopt.MaxPageSize。
	PageSize int64

	// Sort 排序条件。
	// 例如: bson.D{{"created_at", -1}}
	//
	// 重要：强烈建议指定排序字段。
	// 如果 Sort 为 nil 或空，MongoDB 不保证结果顺序，
	// 这可能导致分页结果在翻页时出现数据重复或遗漏。
	Sort bson.D

	// Projection 投影，nil 表示返回全部字段。
	Projection bson.D
}

// PageResult 分页查询结果。
//
// 一致性说明：Total 通过独立的 COUNT 查询获取，与数据查询不在同一事务中。
// 在高并发写入场景下，Total 可能与 Data 的实际记录数略有差异。
type PageResult[T any] struct {
	// Data 当前页数据，空结果为空切片而非 nil。
	Data []T

	// Total 总记录数。
	Total int64

	// Page 当前页码。
	Page int64

	// PageSize 每页大小。
	PageSize int64

	// TotalPages 总页数。
	TotalPages int64
}

// =============================================================================
// 批量写入类型
// =============================================================================

// BulkOptions 批量写入选项。
type BulkOptions struct {
	// BatchSize 每批大小。默认为 1000，上限 10000。
	BatchSize int

	// Ordered 是否有序写入。
	// 有序写入时，遇到错误会停止后续操作。
	Ordered bool
}

// BulkResult 批量写入结果。
//
// 重要：即使返回的 error 不为 nil，result 仍可能包含有效数据！
// 调用方应同时检查 error 和 result.InsertedCount 以获取完整信息。
type BulkResult struct {
	// InsertedCount 成功插入数量。
	// 有序模式遇到第一个错误时停止；无序模式会尝试插入所有批次。
	InsertedCount int64

	// Errors 写入过程中的错误列表，每个失败批次一项。
	Errors []error
}

// =============================================================================
// 工厂函数
// =============================================================================

// New 创建 MongoDB 包装器。
// client 必须是已初始化的 mongo.Client。
func New(client *mongo.Client, opts ...Option) (Mongo, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return newWrapper(client, client, opts...)
}
