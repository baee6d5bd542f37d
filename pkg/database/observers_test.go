package database

import (
	"context"
	"testing"
	"time"

	"github.com/leapstack-labs/leapdb/pkg/core"
	"github.com/leapstack-labs/leapdb/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve_SimpleQuery(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		q := db.Get("tasks").Query(query.Where("done", false))
		require.True(t, q.isSimple())
		ch := observeRecords(t, q)
		assert.Empty(t, receive(t, ch))

		a := createTask(t, db, "a", 1)
		assert.Equal(t, []*Record{a}, receive(t, ch))

		write(t, db, func(ctx context.Context) error {
			return a.Update(ctx, func(r *Record) { r.Set("priority", 2) })
		})
		assert.Empty(t, ch, "an update that keeps the record matching emits nothing")

		b := createTask(t, db, "b", 1)
		assert.Equal(t, []*Record{a, b}, receive(t, ch))

		write(t, db, func(ctx context.Context) error {
			return a.Update(ctx, func(r *Record) { r.Set("done", true) })
		})
		assert.Equal(t, []*Record{b}, receive(t, ch))

		write(t, db, b.MarkAsDeleted)
		assert.Empty(t, receive(t, ch))
	})
}

func TestObserve_LateSubscriberGetsLatest(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		a := createTask(t, db, "a", 1)
		q := db.Get("tasks").Query()
		first := observeRecords(t, q)
		assert.Equal(t, []*Record{a}, receive(t, first))

		var replayed []*Record
		unsubscribe := q.Observe(func(records []*Record) { replayed = records })
		defer unsubscribe()
		assert.Equal(t, []*Record{a}, replayed)
		assert.Equal(t, 2, q.records.SubscriberCount())
	})
}

func TestObserve_ReloadingQuery(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		q := db.Get("tasks").Query(query.SortBy("priority", query.Desc), query.Take(2))
		require.False(t, q.isSimple())
		ch := observeRecords(t, q)
		assert.Empty(t, receive(t, ch))

		a := createTask(t, db, "a", 1)
		assert.Equal(t, []*Record{a}, receive(t, ch))

		b := createTask(t, db, "b", 5)
		assert.Equal(t, []*Record{b, a}, receive(t, ch))

		c := createTask(t, db, "c", 3)
		assert.Equal(t, []*Record{b, c}, receive(t, ch))

		write(t, db, func(ctx context.Context) error {
			return a.Update(ctx, func(r *Record) { r.Set("priority", 0) })
		})
		assert.Empty(t, ch, "a refetch with identical results emits nothing")
	})
}

func TestObserve_JoinedTableChanges(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		var project, task *Record
		write(t, db, func(ctx context.Context) error {
			project = db.Get("projects").PrepareCreate(func(r *Record) { r.Set("name", "alpha") })
			task = db.Get("tasks").PrepareCreate(func(r *Record) {
				r.Set("title", "t")
				r.Set("project_id", project.ID())
			})
			return db.Batch(ctx, project, task)
		})

		q := db.Get("tasks").Query(query.On("projects", query.Where("name", "alpha")))
		ch := observeRecords(t, q)
		assert.Equal(t, []*Record{task}, receive(t, ch))

		write(t, db, func(ctx context.Context) error {
			return project.Update(ctx, func(r *Record) { r.Set("name", "beta") })
		})
		assert.Empty(t, receive(t, ch))
	})
}

func TestObserveCount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		q := db.Get("tasks").Query(query.Where("priority", query.Gte(2)))
		ch := make(chan int, 16)
		unsubscribe := q.ObserveCount(func(n int) { ch <- n })
		defer unsubscribe()
		assert.Equal(t, 0, receive(t, ch))

		createTask(t, db, "low", 1)
		assert.Empty(t, ch)

		high := createTask(t, db, "high", 3)
		assert.Equal(t, 1, receive(t, ch))

		write(t, db, high.MarkAsDeleted)
		assert.Equal(t, 0, receive(t, ch))
	})
}

func TestObserve_Reset(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		createTask(t, db, "a", 1)
		q := db.Get("tasks").Query()
		ch := observeRecords(t, q)
		assert.Len(t, receive(t, ch), 1)

		write(t, db, db.UnsafeResetDatabase)
		assert.Empty(t, receive(t, ch))

		b := createTask(t, db, "b", 1)
		assert.Equal(t, []*Record{b}, receive(t, ch))
	})
}

func TestObserve_UnsubscribeStopsUpdates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		q := db.Get("tasks").Query()
		ch := make(chan []*Record, 16)
		unsubscribe := q.Observe(func(records []*Record) { ch <- records })
		assert.Empty(t, receive(t, ch))

		unsubscribe()
		assert.Equal(t, 0, q.records.SubscriberCount())
		require.Eventually(t, func() bool {
			return db.Get("tasks").changes.Len() == 0
		}, 5*time.Second, 10*time.Millisecond)

		createTask(t, db, "a", 1)
		assert.Empty(t, ch)
	})
}

func TestFilterChanges(t *testing.T) {
	db := mustNew(t, &setupAdapter{schema: testSchema()})
	c := db.Get("tasks")
	a := newRecord(c, core.RawRecord{"id": "a", "done": false})
	b := newRecord(c, core.RawRecord{"id": "b", "done": false})
	match := func(raw core.RawRecord) bool { return raw["done"] == false }

	current := []*Record{a}
	tests := []struct {
		name    string
		changes []Change
		want    []*Record
	}{
		{name: "added", changes: []Change{{Record: b, Type: ChangeCreated}}, want: []*Record{a, b}},
		{name: "already present", changes: []Change{{Record: a, Type: ChangeUpdated}}, want: []*Record{a}},
		{name: "destroyed", changes: []Change{{Record: a, Type: ChangeDestroyed}}, want: []*Record{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterChanges(current, tt.changes, match)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
	assert.Equal(t, []*Record{a}, current)
}

func TestObserve_ReportsFetchErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		q := db.Get("tasks").Query(query.Skip(1))
		require.Error(t, q.Err())

		errs := make(chan error, 4)
		t.Cleanup(q.OnError(func(err error) { errs <- err }))
		records := observeRecords(t, q)

		assert.ErrorIs(t, receive(t, errs), q.Err())
		assert.Empty(t, records, "a failed refresh emits no results")
	})
}

func TestMarkAsDeleted_ReportedAsUpdate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		tasks := db.Get("tasks")
		rec := createTask(t, db, "soon gone", 1)

		var changes []Change
		unsubscribe := tasks.SubscribeToChanges(func(cs []Change) { changes = append(changes, cs...) })
		defer unsubscribe()
		var recordChanges []ChangeType
		defer rec.Observe(func(ch Change) { recordChanges = append(recordChanges, ch.Type) })()

		write(t, db, rec.MarkAsDeleted)
		require.Len(t, changes, 1)
		assert.Equal(t, ChangeUpdated, changes[0].Type)
		assert.Same(t, rec, changes[0].Record)
		assert.Equal(t, []ChangeType{ChangeUpdated}, recordChanges)
		assert.Equal(t, core.StatusDeleted, rec.Status())
		assert.False(t, rec.IsDestroyed())

		found, err := tasks.Find(ctx, rec.ID())
		require.NoError(t, err)
		assert.Same(t, rec, found, "a record marked as deleted stays cached")

		visible, err := tasks.Query().FetchIDs(ctx)
		require.NoError(t, err)
		assert.NotContains(t, visible, rec.ID())

		write(t, db, rec.DestroyPermanently)
		require.Len(t, changes, 2)
		assert.Equal(t, ChangeDestroyed, changes[1].Type)
		_, err = tasks.Find(ctx, rec.ID())
		var nf *core.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})
}
