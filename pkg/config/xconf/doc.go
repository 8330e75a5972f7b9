// Package xconf 基于 koanf 加载 YAML/JSON 配置。
//
// # 设计理念
//
// xconf 是最小化的分层配置加载器：基础文件 + 任意数量的覆盖层（Merge），
// 后加载的层覆盖先加载的同名键。不负责必选字段校验与默认值注入，
// 默认值由调用方在 Unmarshal 前写入目标结构体。
//
//	cfg, err := xconf.Load("xmgoctl.yaml")
//	if err != nil { ... }
//	_ = cfg.Merge([]byte(`mongo: {database: staging}`), xconf.FormatYAML)
//
//	settings := defaultSettings()
//	if err := cfg.Unmarshal("", &settings); err != nil { ... }
//
// # 支持的格式
//
//   - YAML：.yaml, .yml
//   - JSON：.json
//
// # 并发安全
//
// Config 的所有方法并发安全；Merge 与 Unmarshal 之间通过读写锁串行化。
package xconf
