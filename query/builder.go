// Package query holds the per request Builder, the expression language it
// compiles and the Coordinator that evaluates many builders in one scan.
package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Document = map[string]any

const (
	DefaultTake = 1000
	DefaultSkip = 0
)

var ErrNotSubmitted = errors.New("builder is not attached to a collection")

// Builder accumulates the directives of one request. It belongs to the
// caller until it is submitted with Callback, Exec or Do.
type Builder struct {
	ID string

	fields       *projection
	fieldsSource string
	sort         *sortSpec
	sortSource   string
	take         int
	skip         int
	first        bool

	filter          Predicate
	filterSource    string
	filterArg       any
	modify          Mutator
	modifySource    string
	modifyArg       any
	transform       Mutator
	transformSource string
	transformArg    any
	scalar          Reducer
	scalarSource    string
	scalarArg       any

	backupMeta any
	logMeta    any
	payload    Document

	err error

	// Results, valid once the builder is done.
	Items     []Document
	Count     int // documents matching the filter
	Counter   int // documents accepted after skip and take
	Scanned   int // documents evaluated
	Aggregate any
	Duration  time.Duration

	started  time.Time
	affected []Document
	canceled atomic.Bool

	submit   func(b *Builder)
	callback func(err error, b *Builder)
	once     sync.Once
	finish   sync.Once
	done     chan struct{}
	result   error
}

func New() *Builder {
	return &Builder{
		ID:   uuid.NewString(),
		take: DefaultTake,
		skip: DefaultSkip,
		done: make(chan struct{}),
	}
}

// Attach binds the builder to the function that enqueues it.
func (b *Builder) Attach(submit func(b *Builder)) *Builder {
	b.submit = submit
	return b
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Fields sets the projection: "name" includes, "-name" excludes.
func (b *Builder) Fields(spec ...string) *Builder {
	source := strings.Join(spec, ",")
	p, err := compileFields(source)
	if err != nil {
		return b.fail(err)
	}
	b.fields, b.fieldsSource = p, source
	return b
}

// Sort accepts "field", "field_asc" or "field_desc".
func (b *Builder) Sort(spec string) *Builder {
	s, err := compileSort(spec)
	if err != nil {
		return b.fail(err)
	}
	b.sort, b.sortSource = s, spec
	return b
}

func (b *Builder) SortBy(field string, descending bool) *Builder {
	if descending {
		return b.Sort(field + "_desc")
	}
	return b.Sort(field + "_asc")
}

func (b *Builder) Take(n int) *Builder {
	b.take = n
	return b
}

func (b *Builder) Skip(n int) *Builder {
	if n < 0 {
		n = 0
	}
	b.skip = n
	return b
}

// First limits the result to one document, see Item.
func (b *Builder) First() *Builder {
	b.first = true
	b.take = 1
	return b
}

func (b *Builder) Page(page, limit int) *Builder {
	if page < 1 {
		page = 1
	}
	return b.Take(limit).Skip((page - 1) * limit)
}

// Filter compiles a conditions document, e.g. {"id":"$arg.id"}.
func (b *Builder) Filter(source string, arg any) *Builder {
	p, err := CompileFilter(source)
	if err != nil {
		return b.fail(err)
	}
	b.filter, b.filterSource, b.filterArg = bindPredicate(p, arg), source, arg
	return b
}

func (b *Builder) FilterWith(p Predicate, arg any) *Builder {
	b.filter, b.filterSource, b.filterArg = p, "", arg
	return b
}

// Modify compiles an update document with $set, $unset, $inc, $push or
// $rename operators, or a merge patch.
func (b *Builder) Modify(source string, arg any) *Builder {
	m, err := CompileModify(source)
	if err != nil {
		return b.fail(err)
	}
	b.modify, b.modifySource, b.modifyArg = bindMutator(m, arg), source, arg
	return b
}

func (b *Builder) ModifyWith(m Mutator, arg any) *Builder {
	b.modify, b.modifySource, b.modifyArg = m, "", arg
	return b
}

// Transform uses the modify language and is applied on delivery, after
// the projection.
func (b *Builder) Transform(source string, arg any) *Builder {
	m, err := CompileModify(source)
	if err != nil {
		return b.fail(err)
	}
	b.transform, b.transformSource, b.transformArg = bindMutator(m, arg), source, arg
	return b
}

func (b *Builder) TransformWith(m Mutator, arg any) *Builder {
	b.transform, b.transformSource, b.transformArg = m, "", arg
	return b
}

// Scalar folds the accepted documents instead of collecting them:
// count, sum:field, min:field, max:field, avg:field or group:field.
func (b *Builder) Scalar(source string, arg any) *Builder {
	r, err := CompileScalar(source)
	if err != nil {
		return b.fail(err)
	}
	b.scalar, b.scalarSource, b.scalarArg = r, source, arg
	return b
}

func (b *Builder) ScalarWith(r Reducer, arg any) *Builder {
	b.scalar, b.scalarSource, b.scalarArg = r, "", arg
	return b
}

// Backup journals the previous version of every affected document.
func (b *Builder) Backup(meta any) *Builder {
	if meta == nil {
		meta = map[string]any{}
	}
	b.backupMeta = meta
	return b
}

// Log journals meta once the builder completes.
func (b *Builder) Log(meta any) *Builder {
	if meta == nil {
		meta = map[string]any{}
	}
	b.logMeta = meta
	return b
}

func (b *Builder) Payload(doc Document) *Builder {
	b.payload = doc
	return b
}

func (b *Builder) GetPayload() Document {
	return b.payload
}

func (b *Builder) GetTake() int {
	return b.take
}

func (b *Builder) GetSkip() int {
	return b.skip
}

func (b *Builder) Sorted() bool {
	return b.sort != nil
}

func (b *Builder) BackupMeta() any {
	return b.backupMeta
}

func (b *Builder) LogMeta() any {
	return b.logMeta
}

// Affect records the previous version of a modified document for the
// backup journal. It is a no-op unless Backup was requested.
func (b *Builder) Affect(doc Document) {
	if b.backupMeta == nil {
		return
	}
	b.affected = append(b.affected, cloneValue(doc).(Document))
}

func (b *Builder) Affected() []Document {
	return b.affected
}

// Match evaluates the filter.
func (b *Builder) Match(doc Document) bool {
	return b.filter == nil || b.filter.Evaluate(doc, b.filterArg)
}

// Apply runs the modify rule over doc.
func (b *Builder) Apply(doc Document) {
	if b.modify != nil {
		b.modify.Apply(doc, b.modifyArg)
	}
}

// Prepare applies the projection and then the transform. Without any of
// them doc itself is returned.
func (b *Builder) Prepare(doc Document) Document {
	if b.fields == nil && b.transform == nil {
		return doc
	}
	out := doc
	if b.fields != nil {
		out = b.fields.apply(doc)
	}
	if b.transform != nil {
		out = cloneValue(out).(Document)
		b.transform.Apply(out, b.transformArg)
	}
	return out
}

// Item returns the first result, or nil.
func (b *Builder) Item() Document {
	if len(b.Items) == 0 {
		return nil
	}
	return b.Items[0]
}

func (b *Builder) Cancel() {
	b.canceled.Store(true)
}

func (b *Builder) Canceled() bool {
	return b.canceled.Load()
}

// Err returns the configuration error, if any directive failed to compile.
func (b *Builder) Err() error {
	return b.err
}

// Callback submits the builder. fn is invoked exactly once.
func (b *Builder) Callback(fn func(err error, b *Builder)) *Builder {
	b.callback = fn
	return b.Exec()
}

// Exec submits the builder without waiting. Further calls do nothing.
func (b *Builder) Exec() *Builder {
	b.once.Do(func() {
		b.started = time.Now()
		if b.err != nil {
			b.Finish(b.err)
			return
		}
		if b.submit == nil {
			b.Finish(ErrNotSubmitted)
			return
		}
		b.submit(b)
	})
	return b
}

// Do submits the builder and waits for the result. When ctx expires the
// builder is canceled, the shared scan goes on for the rest.
func (b *Builder) Do(ctx context.Context) error {
	b.Exec()
	select {
	case <-b.done:
		return b.result
	case <-ctx.Done():
		b.Cancel()
		return ctx.Err()
	}
}

// Done is closed once the result has been delivered.
func (b *Builder) Done() <-chan struct{} {
	return b.done
}

// Result returns the delivered error.
func (b *Builder) Result() error {
	return b.result
}

// Finish delivers err and the results. Only the first call has effect.
func (b *Builder) Finish(err error) {
	b.finish.Do(func() {
		if !b.started.IsZero() {
			b.Duration = time.Since(b.started)
		}
		b.result = err
		b.affected = nil
		if b.callback != nil {
			b.callback(err, b)
		}
		close(b.done)
	})
}
