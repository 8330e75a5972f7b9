// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xmongo: 类型化 MongoDB 集合与异步调度门面
//
// 存储层共用的慢查询检测、分页计算与统计计数位于 internal/storageopt。
package storage
