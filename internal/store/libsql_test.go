package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/worldscript/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedActions(t *testing.T, s *LibSQLStore) []schema.ActionNode {
	t.Helper()
	nodes := []schema.ActionNode{
		{ID: 1, Type: 101, Param: "Hello %user_name", Next: 2},
		{ID: 2, Type: 1001, Param: "actor.level >= 10", Next: 3, Fail: 4},
		{ID: 3, Type: 126, Data: 5},
		{ID: 4, Type: 101, Param: "Come back later."},
	}
	n, err := s.ImportActions(context.Background(), nodes)
	require.NoError(t, err)
	require.Equal(t, len(nodes), n)
	return nodes
}

// --- Migrations ---

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx))
	v, err := schemaVersion(ctx, s.DB())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- only a comment;\nCREATE TABLE a (x INT);\n\n;SELECT 1")
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x INT)", stmts[0])
	assert.Equal(t, "SELECT 1", stmts[1])
}

func TestSplitStatements_SemicolonInComment(t *testing.T) {
	stmts := splitStatements("-- first; then second\nCREATE TABLE a (x INT); -- trailing; note\nCREATE TABLE b (y INT);")
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x INT)", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y INT)", stmts[1])
}

func TestSplitStatements_KeepsDashesInLiterals(t *testing.T) {
	stmts := splitStatements("INSERT INTO t VALUES ('a -- b'); -- gone")
	require.Len(t, stmts, 1)
	assert.Equal(t, "INSERT INTO t VALUES ('a -- b')", stmts[0])
}

func TestSplitStatements_InitialSchema(t *testing.T) {
	for _, stmt := range splitStatements(migration001) {
		assert.Regexp(t, `^CREATE (TABLE|INDEX) IF NOT EXISTS `, stmt)
	}
}

// --- Actions ---

func TestImportAndGetAction(t *testing.T) {
	s := newTestStore(t)
	seedActions(t, s)

	got, err := s.GetAction(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, schema.ActionNode{ID: 2, Type: 1001, Param: "actor.level >= 10", Next: 3, Fail: 4}, *got)
}

func TestImportActions_Upserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedActions(t, s)

	_, err := s.ImportActions(ctx, []schema.ActionNode{{ID: 1, Type: 101, Param: "Welcome back"}})
	require.NoError(t, err)

	got, err := s.GetAction(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Welcome back", got.Param)
	assert.Equal(t, uint32(0), got.Next)

	all, err := s.ListActions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestImportActions_RejectsReservedID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ImportActions(context.Background(), []schema.ActionNode{{ID: 5, Type: 1}, {ID: 0, Type: 1}})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	all, err := s.ListActions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "import is all or nothing")
}

func TestGetAction_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetAction(context.Background(), 999)
	require.Error(t, err)

	var se *schema.ScriptError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, schema.ErrCodeNotFound, se.Code)
	assert.Contains(t, se.Message, "999")
}

func TestListActions_Ordered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.ImportActions(ctx, []schema.ActionNode{{ID: 30, Type: 1}, {ID: 10, Type: 1}, {ID: 20, Type: 1}})
	require.NoError(t, err)

	all, err := s.ListActions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint32{10, 20, 30}, []uint32{all[0].ID, all[1].ID, all[2].ID})
}

func TestLoadCatalogFromStore(t *testing.T) {
	s := newTestStore(t)
	seedActions(t, s)

	cat, err := LoadCatalog(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 4, cat.Len())

	node, err := cat.GetAction(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 126, node.Type)
	assert.Equal(t, int64(5), node.Data)
}

// --- Queued actions ---

func TestQueuedActions_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := &schema.QueuedAction{ID: uuid.New().String(), DelaySeconds: 60, ActionID: 10, TargetContextID: 7, DueAt: due.Add(time.Minute)}
	sooner := &schema.QueuedAction{ID: uuid.New().String(), DelaySeconds: 5, ActionID: 11, DueAt: due, Recurring: "dawn"}
	require.NoError(t, s.SaveQueuedAction(ctx, later))
	require.NoError(t, s.SaveQueuedAction(ctx, sooner))

	got, err := s.ListQueuedActions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, sooner.ID, got[0].ID)
	assert.Equal(t, "dawn", got[0].Recurring)
	assert.True(t, due.Equal(got[0].DueAt))
	assert.Equal(t, uint32(7), got[1].TargetContextID)
	assert.Equal(t, 60, got[1].DelaySeconds)
	assert.Equal(t, "", got[1].Recurring)

	require.NoError(t, s.DeleteQueuedAction(ctx, sooner.ID))
	got, err = s.ListQueuedActions(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestQueuedActions_SubMillisecondDueNeverEarlier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 1, 12, 0, 2, 900_000, time.UTC)
	require.NoError(t, s.SaveQueuedAction(ctx, &schema.QueuedAction{ID: "q1", ActionID: 10, DueAt: due}))

	got, err := s.ListQueuedActions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].DueAt.Before(due), "reloaded due %v is before %v", got[0].DueAt, due)
	assert.False(t, got[0].Due(due.Add(-500*time.Microsecond)))
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 2, int(time.Millisecond), time.UTC), got[0].DueAt)
}

func TestCeilMilli(t *testing.T) {
	whole := time.UnixMilli(1_700_000_000_123)
	assert.Equal(t, int64(1_700_000_000_123), ceilMilli(whole))
	assert.Equal(t, int64(1_700_000_000_124), ceilMilli(whole.Add(time.Nanosecond)))
}

func TestQueuedActions_DeleteMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteQueuedAction(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestQueuedActions_EmptyID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveQueuedAction(context.Background(), &schema.QueuedAction{ActionID: 1})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

// --- Providers ---

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.Stat(ctx, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v, "miss reads as zero")

	require.NoError(t, s.SetStat(ctx, 5, 2, 42))
	v, err = s.Stat(ctx, 5, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = s.AddStat(ctx, 5, 2, -2)
	require.NoError(t, err)
	assert.Equal(t, int64(40), v)

	v, err = s.AddStat(ctx, 6, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestAddStat_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddStat(ctx, 1, 1, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := s.Stat(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), v)
}

func TestGlobals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GlobalInt(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
	str, err := s.GlobalString(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, "", str)

	require.NoError(t, s.SetGlobalInt(ctx, 1, 4, 99))
	require.NoError(t, s.SetGlobalString(ctx, 1, 4, "Phoenix"))

	v, err = s.GlobalInt(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(99), v, "string write keeps the numeric cell")
	str, err = s.GlobalString(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, "Phoenix", str)
}

func TestTaskData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.TaskField(ctx, 9, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	require.NoError(t, s.SetTaskField(ctx, 9, 1, 3))
	require.NoError(t, s.SetTaskField(ctx, 9, 1, 4))
	v, err = s.TaskField(ctx, 9, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Vacuum(context.Background()))
}
