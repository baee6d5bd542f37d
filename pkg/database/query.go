package database

import (
	"context"
	"slices"
	"sync"

	"github.com/leapstack-labs/leapdb/pkg/matcher"
	"github.com/leapstack-labs/leapdb/pkg/observe"
	"github.com/leapstack-labs/leapdb/pkg/query"
)

// Query is a query bound to a collection. Build errors are kept and
// returned by every fetch.
type Query struct {
	collection *Collection
	clauses    []query.Clause
	desc       *query.Description
	err        error

	once    sync.Once
	records *observe.SharedSubscribable[[]*Record]
	count   *observe.SharedSubscribable[int]
	errs    observe.Subject[error]
}

func newQuery(c *Collection, clauses []query.Clause) *Query {
	desc, err := query.Build(clauses...)
	return &Query{
		collection: c,
		clauses:    slices.Clone(clauses),
		desc:       desc,
		err:        err,
	}
}

// Collection returns the queried collection.
func (q *Query) Collection() *Collection {
	return q.collection
}

// Description returns the built description, or nil if building failed.
func (q *Query) Description() *query.Description {
	return q.desc
}

// Err returns the error from building the query.
func (q *Query) Err() error {
	return q.err
}

// Extend returns a new query with clauses appended.
func (q *Query) Extend(clauses ...query.Clause) *Query {
	return newQuery(q.collection, append(slices.Clone(q.clauses), clauses...))
}

// Fetch runs the query.
func (q *Query) Fetch(ctx context.Context) ([]*Record, error) {
	return q.collection.FetchQuery(ctx, q)
}

// FetchCount counts the matching records.
func (q *Query) FetchCount(ctx context.Context) (int, error) {
	return q.collection.FetchCount(ctx, q)
}

// FetchIDs runs the query and returns the ids of the matching records.
func (q *Query) FetchIDs(ctx context.Context) ([]string, error) {
	records, err := q.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID()
	}
	return ids, nil
}

// Observe calls fn with the current results and again whenever they
// change. Observers of one Query share a single live query, and late
// observers immediately receive the latest results.
func (q *Query) Observe(fn func([]*Record)) (unsubscribe func()) {
	q.init()
	return q.records.Subscribe(fn)
}

// ObserveCount calls fn with the number of matching records and again
// whenever it changes.
func (q *Query) ObserveCount(fn func(int)) (unsubscribe func()) {
	q.init()
	return q.count.Subscribe(fn)
}

// OnError calls fn whenever an observer of q fails to refresh. The
// observer keeps its last results and tries again on the next change.
func (q *Query) OnError(fn func(error)) (unsubscribe func()) {
	return q.errs.Subscribe(fn)
}

func (q *Query) init() {
	q.once.Do(func() {
		q.records = observe.NewShared(q.recordsSource())
		q.count = observe.NewShared(q.countSource())
	})
}

// tables returns the tables whose changes can affect the results.
func (q *Query) tables() []string {
	tables := []string{q.collection.Table()}
	if q.desc != nil {
		tables = append(tables, q.desc.JoinTables()...)
	}
	return tables
}

// isSimple reports whether results can be kept up to date by matching
// changed records locally.
func (q *Query) isSimple() bool {
	d := q.desc
	return d != nil && !d.HasJoins() && !d.HasShaping() && !d.HasRawClauses()
}

func (q *Query) recordsSource() observe.Source[[]*Record] {
	var apply func([]*Record, []Change) ([]*Record, bool)
	if q.isSimple() {
		if m, err := matcher.Encode(query.WithoutDeleted(q.desc)); err == nil {
			apply = func(current []*Record, changes []Change) ([]*Record, bool) {
				return filterChanges(current, changes, m), true
			}
		}
	}
	return liveSource(liveOptions[[]*Record]{
		db:     q.collection.db,
		tables: q.tables(),
		fetch:  q.Fetch,
		same:   sameRecords,
		apply:  apply,
		fail:   q.errs.Next,
	})
}

func (q *Query) countSource() observe.Source[int] {
	return liveSource(liveOptions[int]{
		db:     q.collection.db,
		tables: q.tables(),
		fetch:  q.FetchCount,
		same:   func(a, b int) bool { return a == b },
		fail:   q.errs.Next,
	})
}

// filterChanges applies a change set to current by matching each changed
// record locally. It returns current itself when nothing changed.
func filterChanges(current []*Record, changes []Change, m matcher.Matcher) []*Record {
	next := current
	copied := false
	edit := func() {
		if !copied {
			next = slices.Clone(current)
			copied = true
		}
	}
	for _, ch := range changes {
		i := slices.Index(next, ch.Record)
		include := ch.Type != ChangeDestroyed && m(ch.Record.Raw())
		switch {
		case include && i < 0:
			edit()
			next = append(next, ch.Record)
		case !include && i >= 0:
			edit()
			next = slices.Delete(next, i, i+1)
		}
	}
	return next
}

// sameRecords compares result lists by record identity.
func sameRecords(a, b []*Record) bool {
	return slices.Equal(a, b)
}
