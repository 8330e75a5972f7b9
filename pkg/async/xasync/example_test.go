package xasync_test

import (
	"context"
	"fmt"

	"github.com/omeyang/xmgo/pkg/async/xasync"
	"github.com/omeyang/xmgo/pkg/util/xpool"
)

func Example() {
	pool, err := xpool.NewFuncPool(4, 64)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	d, err := xasync.New(pool)
	if err != nil {
		panic(err)
	}

	result := make(chan string, 1)
	h := xasync.Call(context.Background(), d, "count", func(context.Context) (int64, error) {
		return 3, nil
	}, func(n int64, err error) {
		result <- fmt.Sprintf("count=%d err=%v", n, err)
	})

	fmt.Println(<-result)
	st, _ := h.Wait(context.Background())
	fmt.Println(st)
	// Output:
	// count=3 err=<nil>
	// completed
}

func ExampleHandle_Cancel() {
	// 执行器暂不运行任务，演示开始前取消
	var queued []func()
	exec := xasync.ExecutorFunc(func(task func()) error {
		queued = append(queued, task)
		return nil
	})
	d, _ := xasync.New(exec)

	h := xasync.Exec(context.Background(), d, "insert", func(context.Context) error {
		fmt.Println("never printed")
		return nil
	}, func(error) {
		fmt.Println("never printed")
	})

	fmt.Println(h.Cancel())
	for _, task := range queued {
		task()
	}
	fmt.Println(h.State())
	// Output:
	// true
	// cancelled
}
