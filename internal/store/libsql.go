package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/worldscript/pkg/schema"
)

// LibSQLStore implements Store using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/world.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Actions ---

// ImportActions upserts authored nodes in one transaction and returns how
// many rows were written.
func (s *LibSQLStore) ImportActions(ctx context.Context, nodes []schema.ActionNode) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	n := 0
	for _, node := range nodes {
		if node.ID == 0 {
			return 0, schema.NewError(schema.ErrCodeValidation, "action id 0 is reserved")
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO actions (id, type, data, param, next_id, fail_id) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET type=excluded.type, data=excluded.data, param=excluded.param,
			   next_id=excluded.next_id, fail_id=excluded.fail_id`,
			node.ID, node.Type, node.Data, node.Param, node.Next, node.Fail,
		)
		if err != nil {
			return 0, fmt.Errorf("import action %d: %w", node.ID, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return n, nil
}

func (s *LibSQLStore) GetAction(ctx context.Context, id uint32) (*schema.ActionNode, error) {
	n := &schema.ActionNode{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, data, param, next_id, fail_id FROM actions WHERE id = ?`, id,
	).Scan(&n.ID, &n.Type, &n.Data, &n.Param, &n.Next, &n.Fail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("action", id)
	}
	if err != nil {
		return nil, storeErr("get action", err)
	}
	return n, nil
}

func (s *LibSQLStore) ListActions(ctx context.Context) ([]schema.ActionNode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, data, param, next_id, fail_id FROM actions ORDER BY id`)
	if err != nil {
		return nil, storeErr("list actions", err)
	}
	defer rows.Close()

	var nodes []schema.ActionNode
	for rows.Next() {
		var n schema.ActionNode
		if err := rows.Scan(&n.ID, &n.Type, &n.Data, &n.Param, &n.Next, &n.Fail); err != nil {
			return nil, storeErr("scan action", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// --- Queued actions ---

func (s *LibSQLStore) SaveQueuedAction(ctx context.Context, qa *schema.QueuedAction) error {
	if qa.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "queued action id is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queued_actions (id, delay_seconds, action_id, target_context_id, due_at_ms, recurring)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET due_at_ms=excluded.due_at_ms`,
		qa.ID, qa.DelaySeconds, qa.ActionID, qa.TargetContextID, ceilMilli(qa.DueAt), nullStr(qa.Recurring),
	)
	if err != nil {
		return storeErr("save queued action", err)
	}
	return nil
}

func (s *LibSQLStore) DeleteQueuedAction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queued_actions WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete queued action", err)
	}
	return checkRowsAffected(res, "queued action", id)
}

// ListQueuedActions returns every persisted queued action, earliest due first.
func (s *LibSQLStore) ListQueuedActions(ctx context.Context) ([]*schema.QueuedAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, delay_seconds, action_id, target_context_id, due_at_ms, recurring
		 FROM queued_actions ORDER BY due_at_ms, id`)
	if err != nil {
		return nil, storeErr("list queued actions", err)
	}
	defer rows.Close()

	var out []*schema.QueuedAction
	for rows.Next() {
		qa := &schema.QueuedAction{}
		var dueMs int64
		var recurring sql.NullString
		if err := rows.Scan(&qa.ID, &qa.DelaySeconds, &qa.ActionID, &qa.TargetContextID, &dueMs, &recurring); err != nil {
			return nil, storeErr("scan queued action", err)
		}
		qa.DueAt = time.UnixMilli(dueMs).UTC()
		qa.Recurring = recurring.String
		out = append(out, qa)
	}
	return out, rows.Err()
}

// --- Stats ---

func (s *LibSQLStore) Stat(ctx context.Context, event, typ uint32) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM stats WHERE event = ? AND type = ?`, event, typ,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storeErr("get stat", err)
	}
	return v, nil
}

func (s *LibSQLStore) SetStat(ctx context.Context, event, typ uint32, value int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stats (event, type, value) VALUES (?, ?, ?)
		 ON CONFLICT(event, type) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`,
		event, typ, value,
	)
	if err != nil {
		return storeErr("set stat", err)
	}
	return nil
}

// AddStat adds delta to a counter, creating it at zero, and returns the new value.
func (s *LibSQLStore) AddStat(ctx context.Context, event, typ uint32, delta int64) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO stats (event, type, value) VALUES (?, ?, ?)
		 ON CONFLICT(event, type) DO UPDATE SET value=stats.value+excluded.value, updated_at=CURRENT_TIMESTAMP
		 RETURNING value`,
		event, typ, delta,
	).Scan(&v)
	if err != nil {
		return 0, storeErr("add stat", err)
	}
	return v, nil
}

// --- Dynamic globals ---

func (s *LibSQLStore) GlobalInt(ctx context.Context, dataset, index uint32) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT int_value FROM dyna_global WHERE dataset = ? AND idx = ?`, dataset, index,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storeErr("get global", err)
	}
	return v, nil
}

func (s *LibSQLStore) GlobalString(ctx context.Context, dataset, index uint32) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT str_value FROM dyna_global WHERE dataset = ? AND idx = ?`, dataset, index,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storeErr("get global string", err)
	}
	return v, nil
}

func (s *LibSQLStore) SetGlobalInt(ctx context.Context, dataset, index uint32, value int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dyna_global (dataset, idx, int_value) VALUES (?, ?, ?)
		 ON CONFLICT(dataset, idx) DO UPDATE SET int_value=excluded.int_value, updated_at=CURRENT_TIMESTAMP`,
		dataset, index, value,
	)
	if err != nil {
		return storeErr("set global", err)
	}
	return nil
}

func (s *LibSQLStore) SetGlobalString(ctx context.Context, dataset, index uint32, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dyna_global (dataset, idx, str_value) VALUES (?, ?, ?)
		 ON CONFLICT(dataset, idx) DO UPDATE SET str_value=excluded.str_value, updated_at=CURRENT_TIMESTAMP`,
		dataset, index, value,
	)
	if err != nil {
		return storeErr("set global string", err)
	}
	return nil
}

// --- Task data ---

func (s *LibSQLStore) TaskField(ctx context.Context, task, field uint32) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM task_data WHERE task = ? AND field = ?`, task, field,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storeErr("get task field", err)
	}
	return v, nil
}

func (s *LibSQLStore) SetTaskField(ctx context.Context, task, field uint32, value int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_data (task, field, value) VALUES (?, ?, ?)
		 ON CONFLICT(task, field) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`,
		task, field, value,
	)
	if err != nil {
		return storeErr("set task field", err)
	}
	return nil
}

// --- Helpers ---

func storeNotFound[T string | uint32](resource string, id T) *schema.ScriptError {
	var key string
	switch v := any(id).(type) {
	case uint32:
		key = strconv.FormatUint(uint64(v), 10)
	case string:
		key = strconv.Quote(v)
	}
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %s not found", resource, key)
}

func storeErr(op string, err error) *schema.ScriptError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

// ceilMilli rounds t up to whole milliseconds so a reloaded action is
// never due earlier than it was scheduled.
func ceilMilli(t time.Time) int64 {
	ms := t.UnixMilli()
	if t.After(time.UnixMilli(ms)) {
		ms++
	}
	return ms
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*LibSQLStore)(nil)
