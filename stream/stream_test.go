package stream

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	. "github.com/fulldump/biff"
)

func writeLines(t *testing.T, header string, n int) (string, []string) {
	filename := filepath.Join(t.TempDir(), "data")
	lines := []string{}
	content := header
	for i := 0; i < n; i++ {
		line := fmt.Sprintf("line-%02d", i)
		if i%3 == 0 {
			line += strings.Repeat("x", i)
		}
		lines = append(lines, line)
		content += line + "\n"
	}
	os.WriteFile(filename, []byte(content), 0666)
	return filename, lines
}

func collect(records []Record) []string {
	result := []string{}
	for _, r := range records {
		result = append(result, string(r.Line))
	}
	return result
}

func TestForward(t *testing.T) {

	filename, lines := writeLines(t, "", 40)

	sizes := []int{}
	all := []Record{}
	err := NewReader(filename, Options{}).Forward(func(records []Record) bool {
		sizes = append(sizes, len(records))
		all = append(all, records...)
		return true
	})
	AssertNil(err)

	AssertEqual(sizes, []int{15, 15, 10})
	AssertEqual(collect(all), lines)

	content, _ := os.ReadFile(filename)
	for _, r := range all {
		AssertEqual(string(content[r.Offset:r.End()]), string(r.Line)+"\n")
	}
}

func TestForward_BufferSize(t *testing.T) {

	filename, lines := writeLines(t, "", 12)

	all := []Record{}
	NewReader(filename, Options{BufferSize: 16}).Forward(func(records []Record) bool {
		bytes := 0
		for _, r := range records[:len(records)-1] {
			bytes += r.Length() + 1
		}
		AssertTrue(bytes < 16)
		all = append(all, records...)
		return true
	})

	AssertEqual(collect(all), lines)
}

func TestForward_Header(t *testing.T) {

	header := "id:string|n:number\n"
	filename, lines := writeLines(t, header, 5)

	all := []Record{}
	NewReader(filename, Options{Start: int64(len(header))}).Forward(func(records []Record) bool {
		all = append(all, records...)
		return true
	})

	AssertEqual(collect(all), lines)
	AssertEqual(all[0].Offset, int64(len(header)))
}

func TestForward_Stop(t *testing.T) {

	filename, _ := writeLines(t, "", 40)

	calls := 0
	err := NewReader(filename, Options{}).Forward(func(records []Record) bool {
		calls++
		return false
	})

	AssertNil(err)
	AssertEqual(calls, 1)
}

func TestForward_MissingFile(t *testing.T) {

	calls := 0
	err := NewReader(filepath.Join(t.TempDir(), "missing"), Options{}).Forward(func(records []Record) bool {
		calls++
		return true
	})

	AssertNil(err)
	AssertEqual(calls, 0)
}

func TestReverse(t *testing.T) {

	header := "head\n"

	for _, size := range []int{16, 17, 64, DefaultBufferSize} {
		filename, lines := writeLines(t, header, 30)

		forward := []Record{}
		NewReader(filename, Options{Start: int64(len(header)), BufferSize: size}).Forward(func(records []Record) bool {
			forward = append(forward, records...)
			return true
		})

		reverse := []Record{}
		err := NewReader(filename, Options{Start: int64(len(header)), BufferSize: size}).Reverse(func(records []Record) bool {
			AssertTrue(len(records) <= DefaultBufferCount)
			reverse = append(reverse, records...)
			return true
		})
		AssertNil(err)

		expected := slices.Clone(lines)
		slices.Reverse(expected)
		AssertEqual(collect(reverse), expected)

		slices.Reverse(reverse)
		for i := range forward {
			AssertEqual(reverse[i].Offset, forward[i].Offset)
		}
	}
}

func TestReverse_FixedSize(t *testing.T) {

	filename := filepath.Join(t.TempDir(), "data")
	os.WriteFile(filename, []byte("h\n+|aa|\n+|bb|\n+|cc|\n"), 0666)

	reverse := []Record{}
	NewReader(filename, Options{Start: 2, RecordSize: 6, BufferSize: 16}).Reverse(func(records []Record) bool {
		reverse = append(reverse, records...)
		return true
	})

	AssertEqual(collect(reverse), []string{"+|cc|", "+|bb|", "+|aa|"})
	AssertEqual(reverse[2].Offset, int64(2))
}

func TestUpdate(t *testing.T) {

	filename := filepath.Join(t.TempDir(), "data")
	os.WriteFile(filename, []byte("+aaa\n+bbb\n+ccc\n"), 0666)

	seen := 0
	err := NewReader(filename, Options{BufferCount: 1}).Update(func(records []Record, w *Writer) bool {
		for _, r := range records {
			seen++
			switch string(r.Line) {
			case "+aaa":
				w.Overwrite([]byte("+AAA"), r.Offset)
			case "+bbb":
				w.Overwrite([]byte("-bbb"), r.Offset)
				w.Append([]byte("+bbbbbb\n"))
			}
		}
		return true
	})
	AssertNil(err)

	AssertEqual(seen, 3)

	content, _ := os.ReadFile(filename)
	AssertEqual(string(content), "+AAA\n-bbb\n+ccc\n+bbbbbb\n")
}

func TestUpdate_WritesNotAheadOfCursor(t *testing.T) {

	filename := filepath.Join(t.TempDir(), "data")
	os.WriteFile(filename, []byte("+aaa\n+bbb\n+ccc\n"), 0666)

	seen := []string{}
	NewReader(filename, Options{BufferCount: 1}).Update(func(records []Record, w *Writer) bool {
		for _, r := range records {
			seen = append(seen, string(r.Line))
			if r.Offset == 0 {
				// targets the last record, not read yet
				w.Overwrite([]byte("+CCC"), 10)
			}
		}
		return true
	})

	AssertEqual(seen, []string{"+aaa", "+bbb", "+ccc"})

	content, _ := os.ReadFile(filename)
	AssertEqual(string(content), "+aaa\n+bbb\n+CCC\n")
}
