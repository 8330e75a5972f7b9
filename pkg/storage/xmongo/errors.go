package xmongo

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/omeyang/xmgo/internal/storageopt"
	"github.com/omeyang/xmgo/pkg/resilience/xretry"
)

// =============================================================================
// 通用错误
// =============================================================================

var (
	// ErrNilClient 表示传入的客户端为 nil。
	ErrNilClient = errors.New("xmongo: nil client")

	// ErrNilContext 表示传入的 context 为 nil。
	// 所有接受 context 的公开方法在入口处检查此条件。
	// Close 是例外：nil context 会被替换为 context.Background()，因为关闭操作不应因 nil ctx 而失败。
	ErrNilContext = errors.New("xmongo: context must not be nil")

	// ErrClosed 表示客户端已关闭。
	ErrClosed = errors.New("xmongo: client closed")

	// ErrNilMongo 表示创建集合时传入的 Mongo 为 nil。
	ErrNilMongo = errors.New("xmongo: nil mongo")

	// ErrEmptyName 表示数据库名或集合名为空。
	ErrEmptyName = errors.New("xmongo: empty database or collection name")

	// ErrNilCollection 表示传入的集合为 nil。
	ErrNilCollection = errors.New("xmongo: nil collection")

	// ErrNilDispatcher 表示创建异步集合时传入的调度器为 nil。
	ErrNilDispatcher = errors.New("xmongo: nil dispatcher")

	// ErrNilDocument 表示写入的文档为 nil。
	ErrNilDocument = errors.New("xmongo: nil document")

	// ErrNotFound 表示查询没有匹配的文档。包装 mongo.ErrNoDocuments，两者都可用 errors.Is 判断。
	ErrNotFound = fmt.Errorf("xmongo: document not found: %w", mongo.ErrNoDocuments)

	// ErrBreakerOpen 表示熔断器处于打开（或半开限流）状态，请求被快速拒绝。
	ErrBreakerOpen = errors.New("xmongo: circuit breaker open")

	// ErrMultiReplace 表示对多个文档执行整体替换，替换只能作用于单个文档。
	ErrMultiReplace = errors.New("xmongo: multi update requires an update operator document")

	// ErrInvalidMapReduce 表示 MapReduceSpec 缺少 map 或 reduce 函数。
	ErrInvalidMapReduce = errors.New("xmongo: map and reduce functions are required")
)

// =============================================================================
// 分页查询错误
// =============================================================================

var (
	// ErrInvalidPage 表示页码无效（必须 >= 1）。
	// 此错误包装了 storageopt.ErrInvalidPage，可以使用 errors.Is 检查任一错误。
	ErrInvalidPage = fmt.Errorf("xmongo: %w", storageopt.ErrInvalidPage)

	// ErrInvalidPageSize 表示每页大小无效。
	// 此错误包装了 storageopt.ErrInvalidPageSize，可以使用 errors.Is 检查任一错误。
	ErrInvalidPageSize = fmt.Errorf("xmongo: %w", storageopt.ErrInvalidPageSize)

	// ErrPageOverflow 表示分页计算溢出（页码或每页大小过大）。
	// 此错误包装了 storageopt.ErrPageOverflow，可以使用 errors.Is 检查任一错误。
	ErrPageOverflow = fmt.Errorf("xmongo: %w", storageopt.ErrPageOverflow)
)

// =============================================================================
// 批量写入错误
// =============================================================================

var (
	// ErrEmptyDocs 表示文档列表为空。
	ErrEmptyDocs = errors.New("xmongo: empty documents")
)

// =============================================================================
// 命令错误
// =============================================================================

// CommandError 描述一次服务端命令失败（findAndModify、mapReduce 等）。
// 携带命令摘要、服务端错误码与消息，Unwrap 返回驱动原始错误。
type CommandError struct {
	// Op 是操作名，如 find_and_modify、map_reduce。
	Op string
	// Database 与 Collection 标识命令作用的命名空间。
	Database   string
	Collection string
	// Command 是命令摘要，如 "findAndModify" 或 "mapReduce"。
	Command string
	// Code 与 Name 是服务端错误码及其名称，非服务端错误时为零值。
	Code int
	Name string
	// Message 是服务端错误消息。
	Message string
	// Err 是驱动返回的原始错误。
	Err error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "xmongo %s %s.%s: command %s failed", e.Op, e.Database, e.Collection, e.Command)
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d", e.Code)
		if e.Name != "" {
			fmt.Fprintf(&b, " %s", e.Name)
		}
		b.WriteString(")")
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *CommandError) Unwrap() error { return e.Err }

// newCommandError 从驱动错误中提取服务端错误码与消息。
// 非服务端错误（网络、context）原样返回 nil，调用方按普通错误包装。
func newCommandError(op, db, coll, command string, err error) *CommandError {
	ce := &CommandError{Op: op, Database: db, Collection: coll, Command: command, Err: err}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		ce.Code = int(cmdErr.Code)
		ce.Name = cmdErr.Name
		ce.Message = cmdErr.Message
		return ce
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		switch {
		case len(writeErr.WriteErrors) > 0:
			ce.Code = writeErr.WriteErrors[0].Code
			ce.Message = writeErr.WriteErrors[0].Message
		case writeErr.WriteConcernError != nil:
			ce.Code = writeErr.WriteConcernError.Code
			ce.Name = writeErr.WriteConcernError.Name
			ce.Message = writeErr.WriteConcernError.Message
		}
		return ce
	}
	return nil
}

// =============================================================================
// 瞬时错误
// =============================================================================

// transientCodes 是主从切换、节点关闭与网络故障对应的服务端错误码。
var transientCodes = []int{
	6,     // HostUnreachable
	7,     // HostNotFound
	89,    // NetworkTimeout
	91,    // ShutdownInProgress
	189,   // PrimarySteppedDown
	9001,  // SocketException
	10107, // NotWritablePrimary
	11600, // InterruptedAtShutdown
	11602, // InterruptedDueToReplStateChange
	13435, // NotPrimaryNoSecondaryOk
	13436, // NotPrimaryOrSecondary
}

// IsTransient 报告 err 是否为可重试的瞬时故障：网络错误、服务端
// 标记 RetryableReadError 的错误，或主从切换类错误码。
// 熔断拒绝、未命中与调用方取消都不是瞬时故障。
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrBreakerOpen) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, mongo.ErrNoDocuments) || !xretry.IsRetryable(err) {
		return false
	}
	if mongo.IsNetworkError(err) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		if se.HasErrorLabel("RetryableReadError") {
			return true
		}
		for _, code := range transientCodes {
			if se.HasErrorCode(code) {
				return true
			}
		}
	}
	return false
}
