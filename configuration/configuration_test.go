package configuration

import (
	"testing"
	"time"

	. "github.com/fulldump/biff"
)

func TestDefault(t *testing.T) {

	c := Default()

	AssertEqual(c.BufferCount, 15)
	AssertEqual(c.BufferSize, 32768)
	AssertEqual(c.MaxReaders, 3)
	AssertEqual(c.AppendChunk, 40)
	AssertTrue(c.Allocations)
	AssertEqual(c.StatusInterval, 5*time.Second)
}
