package collection

import (
	"fmt"
	"os"
	"time"
)

func Environment(kind Kind, f func(filename string)) {
	dir, err := os.MkdirTemp("", "textdb-")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	f(Filename(dir, fmt.Sprintf("temp-%v", time.Now().UnixNano()), kind))
}
