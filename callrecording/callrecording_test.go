package callrecording

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarchlab/dtesn/core"
	"github.com/sarchlab/dtesn/memprovider"
	"github.com/sarchlab/dtesn/registry"
)

type sampleEntry struct {
	ID   int
	Name string
}

func newTestWriter(t *testing.T) (*sqliteWriter, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rec")
	w := New(path).(*sqliteWriter)
	t.Cleanup(func() { w.DB.Close() })

	return w, path + ".sqlite3"
}

func TestWriter_CreateTableAndInsert(t *testing.T) {
	w, _ := newTestWriter(t)

	w.CreateTable("test_table", sampleEntry{})
	w.InsertData("test_table", sampleEntry{ID: 1, Name: "reservoir"})
	w.Flush()

	var id int
	var name string
	err := w.QueryRow("SELECT ID, Name FROM test_table WHERE ID=1;").
		Scan(&id, &name)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Equal(t, "reservoir", name)
}

func TestWriter_FlushWithEmptySiblingTable(t *testing.T) {
	w, _ := newTestWriter(t)

	w.CreateTable("filled", sampleEntry{})
	w.CreateTable("empty", sampleEntry{})
	w.InsertData("filled", sampleEntry{ID: 2, Name: "membrane"})

	assert.NotPanics(t, func() { w.Flush() })

	var count int
	err := w.QueryRow("SELECT COUNT(*) FROM filled;").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWriter_ListTables(t *testing.T) {
	w, _ := newTestWriter(t)

	w.CreateTable("one", sampleEntry{})
	w.CreateTable("two", sampleEntry{})

	assert.ElementsMatch(t, []string{"one", "two"}, w.ListTables())
}

func TestWriter_RejectsNestedStructs(t *testing.T) {
	w, _ := newTestWriter(t)

	type nested struct {
		Inner sampleEntry
	}

	assert.Panics(t, func() { w.CreateTable("bad", nested{}) })
}

func TestWriter_UnknownTable(t *testing.T) {
	w, _ := newTestWriter(t)

	assert.Panics(t, func() { w.InsertData("missing", sampleEntry{}) })
}

func TestReader_QueryRoundTrip(t *testing.T) {
	w, dbFile := newTestWriter(t)

	w.CreateTable("entries", sampleEntry{})
	for i := 1; i <= 5; i++ {
		w.InsertData("entries", sampleEntry{ID: i, Name: "entry"})
	}
	w.Flush()

	r := NewReader(dbFile)
	t.Cleanup(func() { r.Close() })

	r.MapTable("entries", sampleEntry{})

	results, total, err := r.Query(context.Background(), "entries", QueryParams{
		Where:   "ID > ?",
		Args:    []any{2},
		OrderBy: "ID DESC",
		Limit:   2,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, results, 2)

	first := results[0].(*sampleEntry)
	assert.Equal(t, 5, first.ID)
}

func TestReader_UnmappedTable(t *testing.T) {
	_, dbFile := newTestWriter(t)

	r := NewReader(dbFile)
	t.Cleanup(func() { r.Close() })

	_, _, err := r.Query(context.Background(), "nowhere", QueryParams{})

	assert.Error(t, err)
}

func newRecordedClient(t *testing.T) (*registry.Client, *Hook, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "calls")
	recorder := New(path)
	hook := NewHook(recorder)

	client := registry.MakeBuilder().
		WithProvider(memprovider.MakeBuilder().Build()).
		Build()
	client.AcceptHook(hook)

	return client, hook, path + ".sqlite3"
}

func TestHook_RecordsCallsAndLifecycle(t *testing.T) {
	client, hook, dbFile := newRecordedClient(t)

	h, err := client.Create(core.CreateParams{
		Depth: 3, MaxOrder: 3, NeuronCount: 8, MembraneCount: 2,
		InputDim: 2, OutputDim: 1,
	})
	require.NoError(t, err)
	require.NoError(t, client.Destroy(h))

	hook.Flush()

	r := NewReader(dbFile)
	t.Cleanup(func() { r.Close() })

	r.MapTable(CallTable, CallEntry{})
	r.MapTable(LifecycleTable, LifecycleEntry{})

	ctx := context.Background()

	calls, total, err := r.Query(ctx, CallTable, QueryParams{
		Where: "Op = ?", Args: []any{"create"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	created := calls[0].(*CallEntry)
	assert.True(t, created.OK)
	assert.GreaterOrEqual(t, created.DurationNs, int64(0))
	assert.GreaterOrEqual(t, created.EndNano, created.StartNano)

	events, _, err := r.Query(ctx, LifecycleTable, QueryParams{
		OrderBy: "TimeNano ASC",
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "create", events[0].(*LifecycleEntry).Event)
	assert.Equal(t, "destroy", events[1].(*LifecycleEntry).Event)
	assert.Equal(t, h.ID, events[0].(*LifecycleEntry).Instance)
}

func TestHook_RecordsFailuresToo(t *testing.T) {
	client, hook, dbFile := newRecordedClient(t)

	_, err := client.Create(core.CreateParams{Depth: 99, MaxOrder: 1})
	require.Error(t, err)

	hook.Flush()

	r := NewReader(dbFile)
	t.Cleanup(func() { r.Close() })

	r.MapTable(CallTable, CallEntry{})

	failed, total, err := r.Query(context.Background(), CallTable, QueryParams{
		Where: "OK = ?", Args: []any{false},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "create", failed[0].(*CallEntry).Op)
}
