package main

import (
	"fmt"
	"time"
)

func TestInsert(c Config) {

	fmt.Println("== INSERT")

	col := CreateCollection(c)

	t0 := time.Now()
	Fill(c, col)
	Report(c, col, t0, 0)
}
