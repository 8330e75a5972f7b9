// Package xmapping 定位映射类型上的"扩展属性"成员，并据此在 BSON 文档与结构体之间
// 保存未声明的键值对（schema-free 存储）。
//
// # 成员解析
//
// NamedConvention 按名称、成员种类（字段/方法）、可见性查找成员：
//
//	conv, _ := xmapping.NewNamedConvention("Extra",
//		xmapping.WithKinds(xmapping.MemberField|xmapping.MemberMethod),
//		xmapping.WithVisibility(xmapping.Exported|xmapping.Unexported))
//	member, err := conv.ExtendedPropertiesMember(reflect.TypeFor[User]())
//
// 结果三种：没有匹配返回 (nil, nil)；恰好一个返回该成员；多于一个返回
// ErrAmbiguousMember。多于一个匹配是配置错误，在构建映射时一次性暴露，
// 而不是在每次读写时。
//
// 字段查找遵循 Go 的字段提升规则：按嵌入深度广度优先，最浅一层的匹配胜出。
// 方法取自指针类型的方法集，只有导出方法可见。
//
// # 缓存
//
// Resolver 以 LRU 缓存每个类型的解析结果（含错误），
// 并用 singleflight 合并同一类型的并发首次解析。
//
// # TypeMap
//
// TypeMap 在构建时完成解析与校验（成员类型必须是 map[string]any 或 bson.M），
// Encode 将扩展属性合并进文档，Decode 把文档中未声明的键收集进扩展属性。
package xmapping
