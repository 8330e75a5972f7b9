// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xpool: 泛型 Worker Pool，作为异步集合调度的默认执行器
package util
