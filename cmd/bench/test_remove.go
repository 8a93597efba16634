package main

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

func TestRemove(c Config) {

	fmt.Println("== REMOVE")

	col := CreateCollection(c)
	Fill(c, col)

	removed := int64(0)
	items := c.N
	passes := col.Passes()

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for {
			n := atomic.AddInt64(&items, -1)
			if n < 0 {
				break
			}
			remove := col.Remove().
				Filter(`{"n":"$arg"}`, strconv.FormatInt(n, 10)).
				Take(1)
			if err := remove.Do(ctx); err != nil {
				fmt.Println("ERROR: remove:", err.Error())
				continue
			}
			atomic.AddInt64(&removed, int64(remove.Counter))
		}
	})

	Report(c, col, t0, passes)
	fmt.Println("removed:", removed)

	t1 := time.Now()
	if err := col.Clean(ctx); err != nil {
		fmt.Println("ERROR: clean:", err.Error())
	}
	fmt.Println("clean took:", time.Since(t1))
}
