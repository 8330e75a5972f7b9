package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xmgo/pkg/config/xconf"
	"github.com/omeyang/xmgo/pkg/observability/xlog"
)

const (
	defaultURI     = "mongodb://localhost:27017"
	defaultTimeout = 30 * time.Second
	defaultWorkers = 4
	defaultQueue   = 64
)

// settings 是 xmgoctl 的运行配置，来源依次为默认值、配置文件、环境变量与命令行。
//
// 配置文件示例:
//
//	mongo:
//	  uri: mongodb://db:27017
//	  database: app
//	  collection: users
//	  slow_query: 200ms
//	  read_retries: 3
//	pool:
//	  workers: 8
//	  queue: 256
//	log:
//	  level: debug
//	  format: json
//	  file: /var/log/xmgoctl.log
//	  rotation:
//	    max_size_mb: 50
//	timeout: 10s
type settings struct {
	Mongo struct {
		URI        string        `koanf:"uri"`
		Database   string        `koanf:"database"`
		Collection string        `koanf:"collection"`
		SlowQuery  time.Duration `koanf:"slow_query"`
		Retries    int           `koanf:"read_retries"`
	} `koanf:"mongo"`
	Pool struct {
		Workers int `koanf:"workers"`
		Queue   int `koanf:"queue"`
	} `koanf:"pool"`
	Log struct {
		Level    string               `koanf:"level"`
		Format   string               `koanf:"format"`
		File     string               `koanf:"file"`
		Rotation xlog.RotationOptions `koanf:"rotation"`
	} `koanf:"log"`
	Timeout time.Duration `koanf:"timeout"`
}

func defaultSettings() settings {
	var s settings
	s.Mongo.URI = defaultURI
	s.Pool.Workers = defaultWorkers
	s.Pool.Queue = defaultQueue
	s.Log.Level = "warn"
	s.Log.Format = "text"
	s.Timeout = defaultTimeout
	return s
}

// globalFlags 返回根命令的全局参数。
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "配置文件路径（YAML/JSON）", Sources: cli.EnvVars("XMGO_CONFIG")},
		&cli.StringFlag{Name: "uri", Aliases: []string{"u"}, Usage: "MongoDB 连接串", Value: defaultURI, Sources: cli.EnvVars("XMGO_URI")},
		&cli.StringFlag{Name: "db", Aliases: []string{"d"}, Usage: "数据库名", Sources: cli.EnvVars("XMGO_DB")},
		&cli.StringFlag{Name: "collection", Aliases: []string{"C"}, Usage: "集合名", Sources: cli.EnvVars("XMGO_COLLECTION")},
		&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Usage: "单条命令超时", Value: defaultTimeout},
		&cli.DurationFlag{Name: "slow-query", Usage: "慢查询阈值，0 表示禁用"},
		&cli.IntFlag{Name: "read-retries", Usage: "读操作遇到瞬时错误时的总尝试次数，<= 1 表示不重试"},
		&cli.IntFlag{Name: "workers", Usage: "异步 worker 数", Value: defaultWorkers},
		&cli.IntFlag{Name: "queue", Usage: "异步任务队列长度", Value: defaultQueue},
		&cli.StringFlag{Name: "log-level", Usage: "日志级别 (trace/debug/info/warn/error)", Value: "warn"},
		&cli.StringFlag{Name: "log-format", Usage: "日志格式 (text/json)", Value: "text"},
		&cli.StringFlag{Name: "log-file", Usage: "日志文件（按大小轮转），为空时输出到 stderr"},
	}
}

// loadSettings 合并默认值、配置文件与显式设置的命令行参数。
func loadSettings(cmd *cli.Command) (settings, error) {
	s := defaultSettings()

	if path := cmd.String("config"); path != "" {
		cfg, err := xconf.Load(path)
		if err != nil {
			return s, &usageError{msg: fmt.Sprintf("加载配置文件失败: %v", err)}
		}
		if err := cfg.Unmarshal("", &s); err != nil {
			return s, &usageError{msg: fmt.Sprintf("解析配置文件失败: %v", err)}
		}
	}

	if cmd.IsSet("uri") {
		s.Mongo.URI = cmd.String("uri")
	}
	if cmd.IsSet("db") {
		s.Mongo.Database = cmd.String("db")
	}
	if cmd.IsSet("collection") {
		s.Mongo.Collection = cmd.String("collection")
	}
	if cmd.IsSet("slow-query") {
		s.Mongo.SlowQuery = cmd.Duration("slow-query")
	}
	if cmd.IsSet("read-retries") {
		s.Mongo.Retries = cmd.Int("read-retries")
	}
	if cmd.IsSet("timeout") {
		s.Timeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("workers") {
		s.Pool.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("queue") {
		s.Pool.Queue = cmd.Int("queue")
	}
	if cmd.IsSet("log-level") {
		s.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		s.Log.Format = cmd.String("log-format")
	}
	if cmd.IsSet("log-file") {
		s.Log.File = cmd.String("log-file")
	}

	return s, s.validate()
}

func (s settings) validate() error {
	switch {
	case s.Mongo.URI == "":
		return &usageError{msg: "缺少 MongoDB 连接串（--uri）"}
	case s.Pool.Workers < 1:
		return &usageError{msg: fmt.Sprintf("无效的 worker 数: %d", s.Pool.Workers)}
	case s.Pool.Queue < 1:
		return &usageError{msg: fmt.Sprintf("无效的队列长度: %d", s.Pool.Queue)}
	case s.Timeout < 0:
		return &usageError{msg: fmt.Sprintf("无效的超时时间: %s", s.Timeout)}
	}
	return nil
}

// requireNamespace 检查集合命令需要的数据库名与集合名。
func (s settings) requireNamespace() error {
	switch {
	case s.Mongo.Database == "":
		return &usageError{msg: "缺少数据库名（--db）"}
	case s.Mongo.Collection == "":
		return &usageError{msg: "缺少集合名（--collection）"}
	}
	return nil
}
