package collection

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/fulldump/biff"
	"github.com/klauspost/compress/zstd"

	"github.com/fulldump/textdb/query"
)

func lines(filename string) []string {
	data, _ := os.ReadFile(filename)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func ids(items []query.Document) []any {
	result := []any{}
	for _, item := range items {
		result = append(result, item["id"])
	}
	return result
}

func TestInsertFind(t *testing.T) {
	Environment(Document, func(filename string) {

		// Setup
		ctx := context.Background()
		c, err := Open(filename, Options{})
		AssertNil(err)
		defer c.Close()

		// Run
		AssertNil(c.Insert(query.Document{"id": "1", "price": 10}).Do(ctx))
		AssertNil(c.Insert(query.Document{"id": "2", "price": 30}).Do(ctx))
		AssertNil(c.Insert(query.Document{"id": "3", "price": 20}).Do(ctx))

		// Check
		find := c.Find()
		AssertNil(find.Do(ctx))
		AssertEqual(ids(find.Items), []any{"1", "2", "3"})
		AssertEqual(find.Items[0]["price"], 10.0)
		AssertEqual(lines(filename)[0], `{"id":"1","price":10}`)
	})
}

func TestFind_SortTake(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		c.Insert(query.Document{"id": "1", "price": 10}).Do(ctx)
		c.Insert(query.Document{"id": "2", "price": 30}).Do(ctx)
		c.Insert(query.Document{"id": "3", "price": 20}).Do(ctx)

		find := c.Find().Sort("price_asc").Take(2)
		AssertNil(find.Do(ctx))
		AssertEqual(ids(find.Items), []any{"1", "3"})
	})
}

func TestFind2(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{BufferCount: 2, BufferSize: 64})
		defer c.Close()

		for _, id := range []string{"1", "2", "3", "4", "5"} {
			AssertNil(c.Insert(query.Document{"id": id}).Do(ctx))
		}

		find := c.Find2().Take(3)
		AssertNil(find.Do(ctx))
		AssertEqual(ids(find.Items), []any{"5", "4", "3"})
	})
}

func TestFind_SkipTake(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{BufferCount: 3})
		defer c.Close()

		for i := 0; i < 20; i++ {
			kind := "even"
			if i%2 == 1 {
				kind = "odd"
			}
			c.Insert(query.Document{"n": i, "kind": kind}).Do(ctx)
		}

		for _, skip := range []int{0, 3, 9, 10, 15} {
			for _, take := range []int{1, 4, 20} {
				find := c.Find().Filter(`{"kind":"odd"}`, nil).Skip(skip).Take(take)
				AssertNil(find.Do(ctx))
				AssertEqual(len(find.Items), min(max(0, 10-skip), take))

				sorted := c.Find().Filter(`{"kind":"odd"}`, nil).Sort("n_desc").Skip(skip).Take(take)
				AssertNil(sorted.Do(ctx))
				AssertEqual(len(sorted.Items), min(max(0, 10-skip), take))
			}
		}
	})
}

func TestStream(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		for _, id := range []string{"1", "2", "3"} {
			c.Insert(query.Document{"id": id, "secret": "x"}).Do(ctx)
		}

		streamed := []query.Document{}
		s := c.Stream(func(doc query.Document) bool {
			streamed = append(streamed, doc)
			return true
		}).Fields("-secret").Skip(1)

		AssertNil(s.Do(ctx))
		AssertEqual(streamed, []query.Document{{"id": "2"}, {"id": "3"}})
		AssertEqual(len(s.Items), 0)
	})
}

func TestStream_NoDefaultTake(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		total := query.DefaultTake + 201
		inserts := []*query.Builder{}
		for i := 0; i < total; i++ {
			inserts = append(inserts, c.Insert(query.Document{"n": i}).Exec())
		}
		for _, insert := range inserts {
			<-insert.Done()
		}

		n := 0
		AssertNil(c.Stream(func(doc query.Document) bool {
			n++
			return true
		}).Do(ctx))

		AssertEqual(n, total)
	})
}

func TestUpdate_InPlace(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		c.Insert(query.Document{"id": "a", "active": true}).Do(ctx)
		c.Insert(query.Document{"id": "b", "active": true}).Do(ctx)
		before, _ := os.ReadFile(filename)

		update := c.Update().Filter(`{"id":"a"}`, nil).Modify(`{"$set":{"active":false}}`, nil)
		AssertNil(update.Do(ctx))
		AssertEqual(len(update.Items), 1)

		after, _ := os.ReadFile(filename)
		AssertEqual(len(after), len(before))
		AssertEqual(lines(filename), []string{
			`{"active":false,"id":"a"}`,
			`{"active":true ,"id":"b"}`,
		})
	})
}

func TestUpdate_Relocates(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		c.Insert(query.Document{"id": "a", "price": 5}).Do(ctx)
		c.Insert(query.Document{"id": "b", "price": 6}).Do(ctx)

		AssertNil(c.Update().Filter(`{"id":"a"}`, nil).Modify(`{"$set":{"price":100}}`, nil).Do(ctx))

		AssertEqual(lines(filename), []string{
			`-"id":"a","price":5}`,
			`{"id":"b","price":6}`,
			`{"id":"a","price":100}`,
		})

		find := c.Find().Filter(`{"id":"a"}`, nil)
		AssertNil(find.Do(ctx))
		AssertEqual(len(find.Items), 1)
		AssertEqual(find.Item()["price"], 100.0)
	})
}

func TestUpdate_ShorterIsPadded(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		c.Insert(query.Document{"id": "a", "name": "Fulanez"}).Do(ctx)
		AssertNil(c.Update().Modify(`{"$set":{"name":"Ful"}}`, nil).Do(ctx))

		AssertEqual(lines(filename), []string{`{"id":"a","name":"Ful"}    `})

		find := c.Find()
		AssertNil(find.Do(ctx))
		AssertEqual(find.Item()["name"], "Ful")
	})
}

func TestRemove_Tombstone(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		c.Insert(query.Document{"id": "a"}).Do(ctx)
		c.Insert(query.Document{"id": "b"}).Do(ctx)
		c.Insert(query.Document{"id": "c"}).Do(ctx)
		before, _ := os.ReadFile(filename)

		remove := c.Remove().Filter(`{"id":"b"}`, nil)
		AssertNil(remove.Do(ctx))
		AssertEqual(ids(remove.Items), []any{"b"})

		// Check tombstone in place
		after, _ := os.ReadFile(filename)
		AssertEqual(len(after), len(before))
		diff := 0
		for i := range before {
			if before[i] != after[i] {
				diff++
				AssertEqual(after[i], byte('-'))
			}
		}
		AssertEqual(diff, 1)

		find := c.Find()
		AssertNil(find.Do(ctx))
		AssertEqual(ids(find.Items), []any{"a", "c"})
	})
}

func TestClean_Idempotent(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		for _, id := range []string{"a", "b", "c", "d"} {
			c.Insert(query.Document{"id": id}).Do(ctx)
		}
		c.Remove().Filter(`{"id":"b"}`, nil).Do(ctx)
		c.Remove().Filter(`{"id":"d"}`, nil).Do(ctx)

		AssertNil(c.Clean(ctx))
		first, _ := os.ReadFile(filename)
		AssertEqual(lines(filename), []string{`{"id":"a"}`, `{"id":"c"}`})

		AssertNil(c.Clean(ctx))
		second, _ := os.ReadFile(filename)
		AssertTrue(bytes.Equal(first, second))
	})
}

func TestClear(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		c.Insert(query.Document{"id": "a"}).Do(ctx)
		AssertNil(c.Clear(ctx))

		find := c.Find()
		AssertNil(find.Do(ctx))
		AssertEqual(len(find.Items), 0)

		info, _ := os.Stat(filename)
		AssertEqual(info.Size(), int64(0))
	})
}

func TestScalar(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		for _, price := range []int{10, 30, 20} {
			c.Insert(query.Document{"price": price}).Do(ctx)
		}

		sum := c.Find().Scalar("sum:price", nil)
		AssertNil(sum.Do(ctx))
		AssertEqual(sum.Aggregate, 60.0)
		AssertEqual(len(sum.Items), 0)
	})
}

func TestDrop(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		c.Insert(query.Document{"id": "a"}).Log(nil).Do(ctx)

		AssertNil(c.Drop(ctx))

		_, err := os.Stat(filename)
		AssertTrue(os.IsNotExist(err))
		_, err = os.Stat(c.logname)
		AssertTrue(os.IsNotExist(err))

		AssertTrue(errors.Is(c.Find().Do(ctx), ErrDropped))
		AssertTrue(errors.Is(c.Insert(query.Document{"id": "b"}).Do(ctx), ErrDropped))
		AssertTrue(errors.Is(c.Clean(ctx), ErrDropped))

		_, err = os.Stat(filename)
		AssertTrue(os.IsNotExist(err))
	})
}

func TestClose(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		c.Close()

		AssertTrue(errors.Is(c.Find().Do(ctx), ErrClosed))
		_, err := c.Stats()
		AssertTrue(errors.Is(err, ErrClosed))
	})
}

func TestLock_Restore_Busy(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		locked := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error)
		go func() {
			done <- c.Lock(ctx, func() error {
				close(locked)
				<-release
				return nil
			})
		}()
		<-locked

		err := c.Restore(ctx, filepath.Join(filepath.Dir(filename), "whatever.zst"))
		AssertTrue(errors.Is(err, ErrBusy))

		stats, _ := c.Stats()
		AssertEqual(stats.Step, "lock")

		close(release)
		AssertNil(<-done)
	})
}

func TestBackupRestore(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		archive := filepath.Join(filepath.Dir(filename), "backup.tar.zst")

		c, _ := Open(filename, Options{})
		defer c.Close()

		c.Insert(query.Document{"id": "a"}).Do(ctx)
		c.Insert(query.Document{"id": "b"}).Do(ctx)
		AssertNil(c.Backup(ctx, archive))

		c.Insert(query.Document{"id": "c"}).Log(nil).Do(ctx)
		AssertNil(c.Restore(ctx, archive))

		find := c.Find()
		AssertNil(find.Do(ctx))
		AssertEqual(ids(find.Items), []any{"a", "b"})

		_, err := os.Stat(c.logname)
		AssertTrue(os.IsNotExist(err))
	})
}

func TestRestore_UnexpectedEntryKeepsFiles(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		archive := filepath.Join(filepath.Dir(filename), "bad.tar.zst")

		c, _ := Open(filename, Options{})
		defer c.Close()

		c.Insert(query.Document{"id": "live"}).Do(ctx)
		before := lines(filename)

		// A good data entry followed by one nothing can be restored to
		buf := &bytes.Buffer{}
		zw, _ := zstd.NewWriter(buf)
		tw := tar.NewWriter(zw)
		for _, entry := range []struct{ name, body string }{
			{"people.ndb", `{"id":"archived"}` + "\n"},
			{"people.exe", "nope"},
		} {
			tw.WriteHeader(&tar.Header{Name: entry.name, Mode: 0666, Size: int64(len(entry.body))})
			tw.Write([]byte(entry.body))
		}
		tw.Close()
		zw.Close()
		AssertNil(os.WriteFile(archive, buf.Bytes(), 0666))

		err := c.Restore(ctx, archive)
		AssertNotNil(err)
		AssertTrue(strings.Contains(err.Error(), "unexpected entry 'people.exe'"))

		AssertEqual(lines(filename), before)
		_, err = os.Stat(filename + ".restore")
		AssertTrue(os.IsNotExist(err))

		find := c.Find()
		AssertNil(find.Do(ctx))
		AssertEqual(ids(find.Items), []any{"live"})
	})
}

func TestFanIn(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		for i := 0; i < 50; i++ {
			kind := "even"
			if i%2 == 1 {
				kind = "odd"
			}
			c.Insert(query.Document{"n": i, "kind": kind}).Do(ctx)
		}

		// Hold the scheduler so both finds are queued before any scan
		locked := make(chan struct{})
		release := make(chan struct{})
		unlocked := make(chan error)
		go func() {
			unlocked <- c.Lock(ctx, func() error {
				close(locked)
				<-release
				return nil
			})
		}()
		<-locked

		passes := c.Passes()
		odd := c.Find().Filter(`{"kind":"odd"}`, nil).Exec()
		even := c.Find().Filter(`{"kind":"even"}`, nil).Sort("n_desc").Take(5).Exec()

		close(release)
		AssertNil(<-unlocked)
		<-odd.Done()
		<-even.Done()

		AssertEqual(c.Passes()-passes, int64(1))

		// Sequential
		odd2 := c.Find().Filter(`{"kind":"odd"}`, nil)
		AssertNil(odd2.Do(ctx))
		even2 := c.Find().Filter(`{"kind":"even"}`, nil).Sort("n_desc").Take(5)
		AssertNil(even2.Do(ctx))

		AssertEqual(odd.Items, odd2.Items)
		AssertEqual(even.Items, even2.Items)
		AssertEqual(len(odd.Items), 25)
		AssertEqual(even.Item()["n"], 48.0)
	})
}

func TestFanIn_BackToBack(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{FanInWindow: 50 * time.Millisecond})
		defer c.Close()

		for i := 0; i < 100; i++ {
			c.Insert(query.Document{"n": i}).Do(ctx)
		}

		passes := c.Passes()
		a := c.Find().Filter(`{"n":1}`, nil).Exec()
		b := c.Find().Filter(`{"n":2}`, nil).Exec()
		<-a.Done()
		<-b.Done()

		AssertEqual(c.Passes()-passes, int64(1))
		AssertEqual(a.Item()["n"], 1.0)
		AssertEqual(b.Item()["n"], 2.0)
	})
}

func TestJournals(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		c.Insert(query.Document{"id": "a", "price": 5}).Log(map[string]any{"op": "insert"}).Do(ctx)

		update := c.Update().
			Filter(`{"id":"a"}`, nil).
			Modify(`{"$set":{"price":7}}`, nil).
			Backup(map[string]any{"by": "fulanez"})
		AssertNil(update.Do(ctx))

		backups, err := c.Backups(nil)
		AssertNil(err)
		AssertEqual(len(backups), 1)
		AssertEqual(backups[0].Meta, map[string]any{"by": "fulanez"})
		AssertEqual(string(backups[0].Payload), `[{"id":"a","price":5}]`)

		none, err := c.Backups(func(meta map[string]any) bool {
			return meta["by"] == "menganez"
		})
		AssertNil(err)
		AssertEqual(len(none), 0)

		logged := lines(c.logname)
		AssertEqual(len(logged), 1)
		AssertTrue(strings.Contains(logged[0], `"op":"insert"`))
	})
}

func TestStats(t *testing.T) {
	Environment(Document, func(filename string) {

		ctx := context.Background()
		c, _ := Open(filename, Options{})
		defer c.Close()

		c.Insert(query.Document{"id": "a"}).Do(ctx)
		c.Find().Do(ctx)

		stats, err := c.Stats()
		AssertNil(err)
		AssertEqual(stats.Kind, Document)
		AssertEqual(stats.Step, "")
		AssertTrue(stats.Ready)
		AssertEqual(stats.PendingReads(), 0)
		AssertEqual(stats.PendingWrites(), 0)
		AssertTrue(stats.Passes >= 2)
		AssertTrue(len(stats.Durations) >= 2)
	})
}
