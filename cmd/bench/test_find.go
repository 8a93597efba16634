package main

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

// TestFind fires N finds by id at the same time. Requests queued together
// share a pass, so passes should be far below N.
func TestFind(c Config) {

	fmt.Println("== FIND")

	col := CreateCollection(c)
	Fill(c, col)

	found := int64(0)
	items := c.N
	passes := col.Passes()

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for {
			n := atomic.AddInt64(&items, -1)
			if n < 0 {
				break
			}
			find := col.Find().
				Filter(`{"n":"$arg"}`, strconv.FormatInt(n, 10)).
				First()
			if err := find.Do(ctx); err != nil {
				fmt.Println("ERROR: find:", err.Error())
				continue
			}
			if find.Item() != nil {
				atomic.AddInt64(&found, 1)
			}
		}
	})

	Report(c, col, t0, passes)
	fmt.Println("found:", found)
}
