// xmgoctl 是基于 xmongo 异步集合的 MongoDB 命令行客户端。
//
// 每条命令都通过异步门面提交到 worker pool，
// 命令超时在任务开始前到达时取消任务（操作与回调都不发生），开始后则中断服务端请求。
//
// 用法:
//
//	xmgoctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config       配置文件（YAML/JSON），命令行参数覆盖配置文件
//	-u, --uri          MongoDB 连接串 (默认: mongodb://localhost:27017, 环境变量 XMGO_URI)
//	-d, --db           数据库名
//	-C, --collection   集合名
//	-t, --timeout      单条命令超时 (默认: 30s)
//	--workers/--queue  异步 worker 数与队列长度
//	--log-level/--log-format/--log-file  日志设置
//
// 命令:
//
//	ping               健康检查并输出统计
//	count              统计匹配文档数
//	find               查询文档（JSON Lines 输出）
//	find-one           查询单个文档
//	page               分页查询
//	insert <doc>...    插入一个或多个文档
//	remove             删除匹配的文档
//	update             更新或替换匹配的文档
//	save <doc>         按 _id 插入或替换
//	find-and-modify    原子修改并返回文档
//	map-reduce         执行 mapReduce
//
// 文档、条件、排序均使用 MongoDB Extended JSON（relaxed 模式）。
//
// 退出码:
//
//	0: 成功
//	1: 执行失败（连接、服务端错误、超时）
//	2: 参数错误
//
// 示例:
//
//	xmgoctl -d app -C users count -q '{"age": {"$gt": 30}}'
//	xmgoctl -d app -C users insert '{"name": "alice"}' '{"name": "bob"}'
//	xmgoctl -d app -C users update -q '{"name": "bob"}' -U '{"$set": {"age": 41}}' --upsert
//	xmgoctl -c xmgoctl.yaml find --sort '{"name": 1}' --limit 10
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:     "xmgoctl",
		Usage:    "xmongo 异步集合命令行客户端",
		Version:  fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags:    globalFlags(),
		Commands: createCommands(),
		Writer:   os.Stdout,
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	if err := app.Run(ctx, os.Args); err != nil {
		return exitCode(err)
	}
	return 0
}

// exitCode 将错误映射为退出码并输出错误信息。
func exitCode(err error) int {
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if _, ok := err.(cli.ExitCoder); ok {
		return 2
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}

// setupSignalHandler 设置信号处理。
// 设计决策: 第一次信号优雅取消，第二次信号强制退出（退出码 130 = 128 + SIGINT）。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
