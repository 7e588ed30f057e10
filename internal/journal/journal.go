package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/signalbot/gotick/internal/domain"
)

var log = logrus.WithField("component", "journal")

// Journal 已平仓交易的 SQLite 流水
//
// 只追加：纸面/实盘每平一笔写一行，进程内的快照窗口截断不影响这里。
// 写入由标的 worker 同步调用，失败只记日志，决策路径不依赖落库结果。
type Journal struct {
	db *sql.DB
}

// Open 打开（或创建）流水库
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	log.Infof("📒 交易流水库已就绪: %s", path)
	return j, nil
}

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS paper_trades (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  instrument_key TEXT NOT NULL,
  entry_price REAL NOT NULL,
  exit_price REAL NOT NULL,
  quantity INTEGER NOT NULL,
  lot_size REAL NOT NULL,
  realized_pnl REAL NOT NULL,
  opened_at INTEGER NOT NULL,
  closed_at INTEGER NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS live_trades (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  instrument_key TEXT NOT NULL,
  entry_price REAL NOT NULL,
  exit_price REAL NOT NULL,
  quantity INTEGER NOT NULL,
  lot_size REAL NOT NULL,
  realized_pnl REAL NOT NULL,
  opened_at INTEGER NOT NULL,
  closed_at INTEGER NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_paper_trades_key ON paper_trades(instrument_key, closed_at);`,
		`CREATE INDEX IF NOT EXISTS idx_live_trades_key ON live_trades(instrument_key, closed_at);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("journal migrate: %w", err)
		}
	}
	return nil
}

// PaperClosed 记一笔已平仓纸面交易（engine.TradeSink 实现）
func (j *Journal) PaperClosed(t domain.PaperTrade) {
	j.append("paper_trades", t.ID, t.Symbol, t.Key, t.EntryPrice, deref(t.ExitPrice),
		t.Quantity, t.LotSize, deref(t.RealizedPnl), t.OpenedAt, derefTime(t.ClosedAt))
}

// LiveClosed 记一笔已平仓实盘交易（engine.TradeSink 实现）
func (j *Journal) LiveClosed(t domain.LiveTrade) {
	j.append("live_trades", t.ID, t.Symbol, t.Key, t.EntryPrice, deref(t.ExitPrice),
		t.Quantity, t.LotSize, deref(t.RealizedPnl), t.OpenedAt, derefTime(t.ClosedAt))
}

func (j *Journal) append(table, id, symbol, key string, entry, exit float64,
	qty int64, lot, realized float64, openedAt, closedAt time.Time) {

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 时间存毫秒整数，ORDER BY 要按时间序而不是文本序
	_, err := j.db.ExecContext(ctx, fmt.Sprintf(`
INSERT OR IGNORE INTO %s (id,symbol,instrument_key,entry_price,exit_price,quantity,lot_size,realized_pnl,opened_at,closed_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
`, table), id, symbol, key, entry, exit, qty, lot, realized,
		openedAt.UnixMilli(), closedAt.UnixMilli())
	if err != nil {
		log.Errorf("❌ 交易流水写入失败: %s %s err=%v", table, symbol, err)
	}
}

// ClosedRecord 流水查询结果行
type ClosedRecord struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Key         string    `json:"key"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Quantity    int64     `json:"quantity"`
	LotSize     float64   `json:"lot_size"`
	RealizedPnl float64   `json:"realized_pnl"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}

// LastPaper 最近 n 笔纸面平仓，key 为空时不过滤标的
func (j *Journal) LastPaper(ctx context.Context, key string, n int) ([]ClosedRecord, error) {
	return j.lastN(ctx, "paper_trades", key, n)
}

// LastLive 最近 n 笔实盘平仓，key 为空时不过滤标的
func (j *Journal) LastLive(ctx context.Context, key string, n int) ([]ClosedRecord, error) {
	return j.lastN(ctx, "live_trades", key, n)
}

func (j *Journal) lastN(ctx context.Context, table, key string, n int) ([]ClosedRecord, error) {
	if n <= 0 {
		n = 50
	}
	query := fmt.Sprintf(`
SELECT id,symbol,instrument_key,entry_price,exit_price,quantity,lot_size,realized_pnl,opened_at,closed_at
FROM %s`, table)
	args := []any{}
	if key != "" {
		query += ` WHERE instrument_key=?`
		args = append(args, key)
	}
	query += ` ORDER BY closed_at DESC LIMIT ?`
	args = append(args, n)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClosedRecord
	for rows.Next() {
		var r ClosedRecord
		var openedAt, closedAt int64
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Key, &r.EntryPrice, &r.ExitPrice,
			&r.Quantity, &r.LotSize, &r.RealizedPnl, &openedAt, &closedAt); err != nil {
			return nil, err
		}
		r.OpenedAt = time.UnixMilli(openedAt)
		r.ClosedAt = time.UnixMilli(closedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close 关闭底层连接
func (j *Journal) Close() error {
	return j.db.Close()
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefTime(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}
