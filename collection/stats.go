package collection

import (
	"slices"
	"time"

	"github.com/fulldump/textdb/journal"
)

type Stats struct {
	Name      string          `json:"name"`
	Kind      Kind            `json:"kind"`
	Schema    string          `json:"schema,omitempty"`
	Pending   map[string]int  `json:"pending"`
	Writing   bool            `json:"writing"`
	Reading   int             `json:"reading"`
	Step      string          `json:"step"`
	Ready     bool            `json:"ready"`
	Dropped   bool            `json:"dropped"`
	Passes    int64           `json:"passes"`
	Durations []time.Duration `json:"durations"`
}

// PendingReads counts queued read, reverse and stream requests.
func (s *Stats) PendingReads() int {
	return s.Pending[classRead.String()] + s.Pending[classReverse.String()] + s.Pending[classStream.String()]
}

// PendingWrites counts everything else that is queued.
func (s *Stats) PendingWrites() int {
	total := 0
	for _, n := range s.Pending {
		total += n
	}
	return total - s.PendingReads()
}

// Stats returns a snapshot of the scheduler.
func (c *Collection) Stats() (*Stats, error) {
	ch := make(chan *Stats, 1)
	if !c.send(func() { ch <- c.stats() }) {
		return nil, c.goneErr()
	}
	return <-ch, nil
}

func (c *Collection) stats() *Stats {
	s := &Stats{
		Name:      c.Name,
		Kind:      c.Kind,
		Pending:   make(map[string]int, classCount),
		Writing:   c.writing != "",
		Reading:   c.reading,
		Step:      c.step(),
		Ready:     c.ready,
		Dropped:   c.dropped,
		Passes:    c.passes.Load(),
		Durations: slices.Clone(c.durations),
	}
	if c.schema != nil {
		s.Schema = c.schema.String()
	}
	for cls, q := range c.queues {
		s.Pending[class(cls).String()] = len(q)
	}
	return s
}

// step names the operation class currently running.
func (c *Collection) step() string {
	switch {
	case c.maintaining != "":
		return c.maintaining
	case c.writing != "" && c.reading > 0:
		return c.writing + "+read"
	case c.writing != "":
		return c.writing
	case c.reading > 0:
		return "read"
	}
	return ""
}

// Passes is the number of passes started since the collection was opened.
func (c *Collection) Passes() int64 {
	return c.passes.Load()
}

// Backups reads the backup journal. filter may be nil.
func (c *Collection) Backups(filter func(meta map[string]any) bool) ([]*journal.Entry, error) {
	entries := []*journal.Entry{}
	err := journal.Read(c.backupname, func(entry *journal.Entry) bool {
		if filter == nil || filter(entry.Meta) {
			entries = append(entries, entry)
		}
		return true
	})
	return entries, err
}
