package intent

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "NOLA-Exchange/internal/errors"
	"NOLA-Exchange/internal/swap"
	"NOLA-Exchange/internal/upstream"
)

const intentColumns = `id, token_in, token_out, amount, slippage, quote, state, reason, error_code,
        approval_tx, swap_tx, claimed, created_at, updated_at`

// MySQLStore 使用 MySQL 记录意图状态。
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLStore 连接 MySQL 并初始化表结构。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.InvalidInput("dsn", "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}
	store, err := NewMySQLStoreWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewMySQLStoreWithDB 复用已有连接，测试中配合 sqlmock 使用。
func NewMySQLStoreWithDB(db *sql.DB) (*MySQLStore, error) {
	store := &MySQLStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS swap_intents (
        id VARCHAR(64) PRIMARY KEY,
        token_in VARCHAR(42) NOT NULL,
        token_out VARCHAR(42) NOT NULL,
        amount VARCHAR(80) NOT NULL,
        slippage DOUBLE NOT NULL,
        quote TEXT NOT NULL,
        state VARCHAR(16) NOT NULL,
        reason TEXT,
        error_code VARCHAR(64) DEFAULT '',
        approval_tx VARCHAR(66) DEFAULT '',
        swap_tx VARCHAR(66) DEFAULT '',
        claimed TINYINT(1) NOT NULL DEFAULT 0,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_intent_state (state),
        INDEX idx_intent_updated (updated_at)
)`
	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 swap_intents 表失败")
	}
	return nil
}

// Create 插入新的意图记录。
func (s *MySQLStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return xerrors.InvalidInput("id", "意图 ID 不能为空")
	}
	now := s.now().UnixMilli()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt == 0 {
		rec.UpdatedAt = now
	}
	quote, err := json.Marshal(rec.Quote)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidInput, err, "编码报价失败")
	}

	const stmt = `INSERT INTO swap_intents (` + intentColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt,
		rec.ID,
		rec.From,
		rec.To,
		rec.Amount,
		rec.Slippage,
		string(quote),
		string(rec.State),
		rec.Reason,
		rec.ErrorCode,
		rec.ApprovalTx,
		rec.SwapTx,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrIntentConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入意图失败")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec     Record
		quote   string
		state   string
		reason  sql.NullString
		claimed bool
	)
	if err := row.Scan(
		&rec.ID,
		&rec.From,
		&rec.To,
		&rec.Amount,
		&rec.Slippage,
		&quote,
		&state,
		&reason,
		&rec.ErrorCode,
		&rec.ApprovalTx,
		&rec.SwapTx,
		&claimed,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var q upstream.Quote
	if err := json.Unmarshal([]byte(quote), &q); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析报价失败")
	}
	rec.Quote = q
	rec.State = swap.State(state)
	rec.Reason = reason.String
	rec.Claimed = claimed
	return &rec, nil
}

// Get 查询指定意图。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Record, error) {
	const stmt = `SELECT ` + intentColumns + ` FROM swap_intents WHERE id = ?`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, stmt, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询意图失败")
	}
	return rec, nil
}

// Claim 以条件更新的方式领取 Idle 意图。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Record, error) {
	const stmt = `UPDATE swap_intents SET claimed = 1, updated_at = ? WHERE id = ? AND state = ? AND claimed = 0`
	res, err := s.db.ExecContext(ctx, stmt, s.now().UnixMilli(), id, string(swap.StateIdle))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "领取意图失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return rec, ErrIntentConflict
	}
	return rec, nil
}

// Save 写回意图的可变字段。
func (s *MySQLStore) Save(ctx context.Context, rec *Record) error {
	const stmt = `UPDATE swap_intents SET state = ?, reason = ?, error_code = ?, approval_tx = ?, swap_tx = ?, updated_at = ?
        WHERE id = ?`
	updated := rec.UpdatedAt
	if updated == 0 {
		updated = s.now().UnixMilli()
	}
	res, err := s.db.ExecContext(ctx, stmt,
		string(rec.State),
		rec.Reason,
		rec.ErrorCode,
		rec.ApprovalTx,
		rec.SwapTx,
		updated,
		rec.ID,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新意图状态失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrIntentNotFound
	}
	return nil
}

// List 返回最近更新的意图。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	opts.applyDefaults()

	query := `SELECT ` + intentColumns + ` FROM swap_intents`
	args := make([]any, 0, len(opts.States)+2)
	if len(opts.States) > 0 {
		placeholders := make([]string, len(opts.States))
		for i, st := range opts.States {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " WHERE state IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询意图列表失败")
	}
	defer rows.Close()

	out := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取意图列表失败")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历意图列表失败")
	}
	return out, nil
}

// Stats 按状态分组统计意图数量。
func (s *MySQLStore) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*), COALESCE(MIN(updated_at), 0), COALESCE(MAX(updated_at), 0)
        FROM swap_intents GROUP BY state`)
	if err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询意图统计失败")
	}
	defer rows.Close()

	stats := Stats{ByState: make(map[swap.State]int)}
	for rows.Next() {
		var (
			state          string
			count          int
			oldest, newest int64
		)
		if err := rows.Scan(&state, &count, &oldest, &newest); err != nil {
			return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取意图统计失败")
		}
		stats.add(swap.State(state), count, oldest, newest)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历意图统计失败")
	}
	return stats, nil
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
