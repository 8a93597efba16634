package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulldump/textdb/collection"
	"github.com/fulldump/textdb/query"
)

func Parallel(workers int, f func()) {
	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}
	wg.Wait()
}

func TempDir() (string, func()) {
	dir, err := os.MkdirTemp("", "textdb_bench_*")
	if err != nil {
		panic("Could not create temp directory: " + err.Error())
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

func CreateCollection(c Config) *collection.Collection {

	dir := c.Dir
	if dir == "" {
		var cleanup func()
		dir, cleanup = TempDir()
		cleanups = append(cleanups, cleanup)
	}

	kind, err := collection.ParseKind(c.Kind)
	if err != nil {
		panic(err)
	}

	name := "col-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	col, err := collection.Create(dir, name, kind, "id:number(10)|n:string(10)", collection.Options{})
	if err != nil {
		panic(err)
	}
	cleanups = append(cleanups, func() { col.Close() })

	return col
}

// Fill inserts n documents with Workers goroutines, each one submitting
// without waiting.
func Fill(c Config, col *collection.Collection) {

	items := c.N
	Parallel(c.Workers, func() {
		wg := &sync.WaitGroup{}
		for {
			n := atomic.AddInt64(&items, -1)
			if n < 0 {
				break
			}
			wg.Add(1)
			col.Insert(query.Document{"id": n, "n": strconv.FormatInt(n, 10)}).
				Callback(func(err error, b *query.Builder) {
					defer wg.Done()
					if err != nil {
						fmt.Println("ERROR: insert:", err.Error())
					}
				})
		}
		wg.Wait()
	})
}

func Report(c Config, col *collection.Collection, t0 time.Time, passes int64) {
	took := time.Since(t0)
	fmt.Println("sent:", c.N)
	fmt.Println("took:", took)
	fmt.Println("passes:", col.Passes()-passes)
	fmt.Printf("Throughput: %.2f ops/sec\n", float64(c.N)/took.Seconds())

	stats, err := col.Stats()
	if err == nil {
		fmt.Println("durations:", stats.Durations)
	}
}

var ctx = context.Background()
