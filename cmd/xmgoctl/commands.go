package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/xmgo/pkg/async/xasync"
	"github.com/omeyang/xmgo/pkg/storage/xmongo"
)

// usageError 表示参数错误，对应退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// createCommands 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createPingCommand(),
		createCountCommand(),
		createFindCommand(),
		createFindOneCommand(),
		createPageCommand(),
		createInsertCommand(),
		createRemoveCommand(),
		createUpdateCommand(),
		createSaveCommand(),
		createFindAndModifyCommand(),
		createMapReduceCommand(),
	}
}

// =============================================================================
// 公共参数
// =============================================================================

// queryFlag 每次新建参数：cli.Flag 持有解析状态，不能在命令之间共享实例。
func queryFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "查询条件（Extended JSON），为空匹配全部"}
}

func unsafeFlag() *cli.BoolFlag {
	return &cli.BoolFlag{Name: "unsafe", Usage: "非确认写入（不等待服务端确认，不报告写错误）"}
}

func updateFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{Name: "update", Aliases: []string{"U"}, Usage: "更新操作符文档或替换文档（Extended JSON）", Required: required}
}

// withCollection 包装需要异步集合的命令：加载配置、建立会话、执行、释放。
func withCollection(fn func(ctx context.Context, cmd *cli.Command, sess *session) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		sess, err := openSession(s, true)
		if err != nil {
			return err
		}
		defer func() { _ = sess.Close() }()
		return fn(ctx, cmd, sess)
	}
}

// =============================================================================
// ping
// =============================================================================

func createPingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "健康检查并输出统计",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			sess, err := openSession(s, false)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			if err := sess.mongo.Health(ctx); err != nil {
				return err
			}
			st := sess.mongo.Stats()
			w := cmd.Root().Writer
			fmt.Fprintln(w, "ok")
			fmt.Fprintf(w, "ping=%d ping_errors=%d breaker=%s sessions=%d\n",
				st.PingCount, st.PingErrors, st.Breaker, st.Pool.InUseConnections)
			return nil
		},
	}
}

// =============================================================================
// 查询命令
// =============================================================================

func createCountCommand() *cli.Command {
	return &cli.Command{
		Name:  "count",
		Usage: "统计匹配文档数",
		Flags: []cli.Flag{queryFlag()},
		Action: withCollection(func(ctx context.Context, cmd *cli.Command, sess *session) error {
			query, err := parseDocument("query", cmd.String("query"))
			if err != nil {
				return err
			}
			n, err := await(ctx, sess.settings.Timeout, func(ctx context.Context, cb func(int64, error)) *xasync.Handle {
				return sess.coll.Count(ctx, query, cb)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, n)
			return nil
		}),
	}
}

func createFindCommand() *cli.Command {
	return &cli.Command{
		Name:  "find",
		Usage: "查询文档，每行输出一个文档",
		Flags: []cli.Flag{
			queryFlag(),
			&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Usage: "排序（Extended JSON），如 {\"name\": 1}"},
			&cli.StringSliceFlag{Name: "fields", Aliases: []string{"f"}, Usage: "只返回指定字段"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "最多返回条数，0 表示不限制"},
			&cli.IntFlag{Name: "skip", Usage: "跳过条数"},
		},
		Action: withCollection(func(ctx context.Context, cmd *cli.Command, sess *session) error {
			query, err := parseDocument("query", cmd.String("query"))
			if err != nil {
				return err
			}
			opts, err := queryOptions(cmd)
			if err != nil {
				return err
			}
			docs, err := await(ctx, sess.settings.Timeout, func(ctx context.Context, cb func([]bson.M, error)) *xasync.Handle {
				// 游标在回调内读完，回调返回前关闭
				return sess.coll.Find(ctx, query, func(cur *xmongo.Cursor[bson.M], err error) {
					if err != nil {
						cb(nil, err)
						return
					}
					cb(cur.All(ctx))
				}, opts...)
			})
			if err != nil {
				return err
			}
			return writeDocuments(cmd.Root().Writer, docs)
		}),
	}
}

func createFindOneCommand() *cli.Command {
	return &cli.Command{
		Name:  "find-one",
		Usage: "查询第一个匹配的文档",
		Flags: []cli.Flag{
			queryFlag(),
			&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Usage: "排序（Extended JSON）"},
			&cli.StringSliceFlag{Name: "fields", Aliases: []string{"f"}, Usage: "只返回指定字段"},
		},
		Action: withCollection(func(ctx context.Context, cmd *cli.Command, sess *session) error {
			query, err := parseDocument("query", cmd.String("query"))
			if err != nil {
				return err
			}
			opts, err := queryOptions(cmd)
			if err != nil {
				return err
			}
			doc, err := await(ctx, sess.settings.Timeout, func(ctx context.Context, cb func(*bson.M, error)) *xasync.Handle {
				return sess.coll.FindOne(ctx, query, cb, opts...)
			})
			if err != nil {
				return err
			}
			return writeDocuments(cmd.Root().Writer, []bson.M{*doc})
		}),
	}
}

func createPageCommand() *cli.Command {
	return &cli.Command{
		Name:  "page",
		Usage: "分页查询",
		Flags: []cli.Flag{
			queryFlag(),
			&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Usage: "排序（Extended JSON），分页时强烈建议指定"},
			&cli.Int64Flag{Name: "page", Aliases: []string{"p"}, Usage: "页码，从 1 开始", Value: 1},
			&cli.Int64Flag{Name: "size", Usage: "每页大小", Value: 20},
		},
		Action: withCollection(func(ctx context.Context, cmd *cli.Command, sess *session) error {
			query, err := parseDocument("query", cmd.String("query"))
			if err != nil {
				return err
			}
			sort, err := parseOrdered("sort", cmd.String("sort"))
			if err != nil {
				return err
			}
			page := xmongo.PageOptions{Page: cmd.Int64("page"), PageSize: cmd.Int64("size"), Sort: sort}
			res, err := await(ctx, sess.settings.Timeout, func(ctx context.Context, cb func(*xmongo.PageResult[bson.M], error)) *xasync.Handle {
				return sess.coll.FindPage(ctx, query, page, cb)
			})
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			fmt.Fprintf(w, "# page %d/%d, total %d\n", res.Page, res.TotalPages, res.Total)
			return writeDocuments(w, res.Data)
		}),
	}
}

// =============================================================================
// 写入命令
// =============================================================================

func createInsertCommand() *cli.Command {
	return &cli.Command{
		Name:      "insert",
		Usage:     "插入一个或多个文档",
		ArgsUsage: "<document> [document...]",
		Flags:     []cli.Flag{unsafeFlag()},
		Action: withCollection(func(ctx context.Context, cmd *cli.Command, sess *session) error {
			docs, err := parseDocuments(cmd.Args().Slice())
			if err != nil {
				return err
			}
			safe := !cmd.Bool("unsafe")
			err = awaitErr(ctx, sess.settings.Timeout, func(ctx context.Context, cb func(error)) *xasync.Handle {
				if len(docs) == 1 {
					return sess.coll.Insert(ctx, docs[0], safe, cb)
				}
				return sess.coll.InsertMany(ctx, docs, safe, cb)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "inserted %d\n", len(docs))
			return nil
		}),
	}
}

func createRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:  "remove",
		Usage: "删除全部匹配的文档",
		Flags: []cli.Flag{
			queryFlag(),
			&cli.BoolFlag{Name: "all", Usage: "允许不带条件删除全部文档"},
			unsafeFlag(),
		},
		Action: withCollection(func(ctx context.Context, cmd *cli.Command, sess *session) error {
			query, err := parseDocument("query", cmd.String("query"))
			if err != nil {
				return err
			}
			if query == nil && !cmd.Bool("all") {
				return &usageError{msg: "remove 需要 --query，删除全部文档请显式指定 --all"}
			}
			err = awaitErr(ctx, sess.settings.Timeout, func(ctx context.Context, cb func(error)) *xasync.Handle {
				return sess.coll.Remove(ctx, query, !cmd.Bool("unsafe"), cb)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, "removed")
			return nil
		}),
	}
}

func createUpdateCommand() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "更新（操作符文档）或替换（普通文档）匹配的文档",
		Flags: []cli.Flag{
			queryFlag(),
			updateFlag(true),
			&cli.BoolFlag{Name: "upsert", Usage: "没有匹配时插入"},
			&cli.BoolFlag{Name: "multi", Usage: "更新全部匹配的文档（仅限操作符文档）"},
			unsafeFlag(),
		},
		Action: withCollection(func(ctx context.Context, cmd *cli.Command, sess *session) error {
			query, err := parseDocument("query", cmd.String("query"))
			if err != nil {
				return err
			}
			update, err := parseOrdered("update", cmd.String("update"))
			if err != nil {
				return err
			}
			flags := updateFlags(cmd.Bool("upsert"), cmd.Bool("multi"))
			err = awaitErr(ctx, sess.settings.Timeout, func(ctx context.Context, cb func(error)) *xasync.Handle {
				if flags == xmongo.UpdateMulti {
					return sess.coll.UpdateAll(ctx, update, query, !cmd.Bool("unsafe"), cb)
				}
				return sess.coll.Update(ctx, update, query, flags, !cmd.Bool("unsafe"), cb)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, "updated")
			return nil
		}),
	}
}

func createSaveCommand() *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "按 _id 插入或替换文档",
		ArgsUsage: "<document>",
		Flags:     []cli.Flag{unsafeFlag()},
		Action: withCollection(func(ctx context.Context, cmd *cli.Command, sess *session) error {
			if cmd.Args().Len() != 1 {
				return &usageError{msg: "save 需要且只需要一个文档参数"}
			}
			doc, err := parseDocument("document", cmd.Args().First())
			if err != nil {
				return err
			}
			if doc == nil {
				return &usageError{msg: "save 的文档不能为空"}
			}
			err = awaitErr(ctx, sess.settings.Timeout, func(ctx context.Context, cb func(error)) *xasync.Handle {
				return sess.coll.Save(ctx, doc, !cmd.Bool("unsafe"), cb)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, "saved")
			return nil
		}),
	}
}

func createFindAndModifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "find-and-modify",
		Usage: "原子修改第一个匹配的文档并输出它",
		Flags: []cli.Flag{
			queryFlag(),
			updateFlag(true),
			&cli.StringFlag{Name: "sort", Aliases: []string{"s"}, Usage: "多个匹配时按排序选择第一个"},
			&cli.StringSliceFlag{Name: "fields", Aliases: []string{"f"}, Usage: "只返回指定字段"},
			&cli.BoolFlag{Name: "new", Usage: "输出修改后的文档（默认输出修改前的）"},
			&cli.BoolFlag{Name: "upsert", Usage: "没有匹配时插入"},
		},
		Action: withCollection(func(ctx context.Context, cmd *cli.Command, sess *session) error {
			query, err := parseDocument("query", cmd.String("query"))
			if err != nil {
				return err
			}
			update, err := parseOrdered("update", cmd.String("update"))
			if err != nil {
				return err
			}
			opts, err := queryOptions(cmd)
			if err != nil {
				return err
			}
			if cmd.Bool("new") {
				opts = append(opts, xmongo.ReturnNew())
			}
			if cmd.Bool("upsert") {
				opts = append(opts, xmongo.Upsert())
			}
			doc, err := await(ctx, sess.settings.Timeout, func(ctx context.Context, cb func(*bson.M, error)) *xasync.Handle {
				return sess.coll.FindAndModify(ctx, update, query, cb, opts...)
			})
			if err != nil {
				return err
			}
			return writeDocuments(cmd.Root().Writer, []bson.M{*doc})
		}),
	}
}

func createMapReduceCommand() *cli.Command {
	return &cli.Command{
		Name:  "map-reduce",
		Usage: "执行 mapReduce，默认内联输出结果",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "map", Usage: "map 函数（JavaScript）", Required: true},
			&cli.StringFlag{Name: "reduce", Usage: "reduce 函数（JavaScript）", Required: true},
			&cli.StringFlag{Name: "finalize", Usage: "finalize 函数（JavaScript）"},
			queryFlag(),
			&cli.Int64Flag{Name: "limit", Usage: "输入文档数上限"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "输出集合，为空时内联返回"},
		},
		Action: withCollection(func(ctx context.Context, cmd *cli.Command, sess *session) error {
			query, err := parseDocument("query", cmd.String("query"))
			if err != nil {
				return err
			}
			spec := xmongo.MapReduceSpec{
				Map:      cmd.String("map"),
				Reduce:   cmd.String("reduce"),
				Finalize: cmd.String("finalize"),
				Query:    query,
				Limit:    cmd.Int64("limit"),
				Out:      cmd.String("out"),
			}
			res, err := await(ctx, sess.settings.Timeout, func(ctx context.Context, cb func(*xmongo.MapReduceResult, error)) *xasync.Handle {
				return sess.coll.MapReduce(ctx, spec, cb)
			})
			if err != nil {
				return err
			}
			return writeMapReduce(cmd.Root().Writer, res)
		}),
	}
}

// =============================================================================
// 参数解析与输出
// =============================================================================

// parseDocument 解析 Extended JSON 文档，空字符串返回 nil。
func parseDocument(name, s string) (bson.M, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON([]byte(s), false, &doc); err != nil {
		return nil, &usageError{msg: fmt.Sprintf("无效的 %s: %v", name, err)}
	}
	return doc, nil
}

// parseOrdered 解析保持键顺序的文档，用于排序与更新。
func parseOrdered(name, s string) (bson.D, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), false, &doc); err != nil {
		return nil, &usageError{msg: fmt.Sprintf("无效的 %s: %v", name, err)}
	}
	return doc, nil
}

func parseDocuments(args []string) ([]bson.M, error) {
	if len(args) == 0 {
		return nil, &usageError{msg: "至少需要一个文档参数"}
	}
	docs := make([]bson.M, 0, len(args))
	for i, arg := range args {
		doc, err := parseDocument(fmt.Sprintf("document #%d", i+1), arg)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, &usageError{msg: fmt.Sprintf("document #%d 为空", i+1)}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// queryOptions 将 sort/fields/limit/skip 参数转换为查询选项，未定义的参数被忽略。
func queryOptions(cmd *cli.Command) ([]xmongo.QueryOption, error) {
	var opts []xmongo.QueryOption
	sort, err := parseOrdered("sort", cmd.String("sort"))
	if err != nil {
		return nil, err
	}
	if sort != nil {
		opts = append(opts, xmongo.WithSort(sort))
	}
	if fields := cmd.StringSlice("fields"); len(fields) > 0 {
		opts = append(opts, xmongo.WithFields(fields...))
	}
	if n := cmd.Int("limit"); n > 0 {
		opts = append(opts, xmongo.WithLimit(int64(n)))
	}
	if n := cmd.Int("skip"); n > 0 {
		opts = append(opts, xmongo.WithSkip(int64(n)))
	}
	return opts, nil
}

func updateFlags(upsert, multi bool) xmongo.UpdateFlags {
	var flags xmongo.UpdateFlags
	if upsert {
		flags |= xmongo.UpdateUpsert
	}
	if multi {
		flags |= xmongo.UpdateMulti
	}
	return flags
}

// writeDocuments 以 JSON Lines 输出文档。
func writeDocuments(w io.Writer, docs []bson.M) error {
	for _, doc := range docs {
		data, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		if _, err := fmt.Fprintln(w, string(data)); err != nil {
			return err
		}
	}
	return nil
}

func writeMapReduce(w io.Writer, res *xmongo.MapReduceResult) error {
	if res.Collection != "" {
		_, err := fmt.Fprintf(w, "output collection: %s\n", res.Collection)
		return err
	}
	for _, item := range res.Results {
		data, err := bson.MarshalExtJSON(item, false, false)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		if _, err := fmt.Fprintln(w, string(data)); err != nil {
			return err
		}
	}
	return nil
}
