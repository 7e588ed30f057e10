package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signalbot/gotick/internal/domain"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func closedPaper(id, key string, entry, exit float64, closedAt time.Time) domain.PaperTrade {
	realized := (exit - entry) * 10
	return domain.PaperTrade{
		ID: id, Symbol: "NIFTY", Key: key,
		EntryPrice: entry, Quantity: 10, LotSize: 1,
		OpenedAt:    closedAt.Add(-time.Minute),
		ExitPrice:   &exit,
		RealizedPnl: &realized,
		ClosedAt:    &closedAt,
	}
}

func TestJournal_AppendAndQuery(t *testing.T) {
	j := openTestJournal(t)
	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	j.PaperClosed(closedPaper("p-1", "s:NIFTY", 100, 103, base))
	j.PaperClosed(closedPaper("p-2", "s:NIFTY", 103, 102, base.Add(time.Minute)))
	j.PaperClosed(closedPaper("p-3", "s:BANKNIFTY", 500, 505, base.Add(2*time.Minute)))

	recs, err := j.LastPaper(context.Background(), "s:NIFTY", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// 最新的在前
	require.Equal(t, "p-2", recs[0].ID)
	require.Equal(t, float64(-10), recs[0].RealizedPnl)
	require.Equal(t, float64(30), recs[1].RealizedPnl)

	all, err := j.LastPaper(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)

	capped, err := j.LastPaper(context.Background(), "", 2)
	require.NoError(t, err)
	require.Len(t, capped, 2)
}

// 同一秒内带小数秒的平仓也要按时间序排（文本序会把 10:00:00 排在 10:00:00.5 之后）
func TestJournal_OrderingWithinSecond(t *testing.T) {
	j := openTestJournal(t)
	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	j.PaperClosed(closedPaper("p-whole", "s:NIFTY", 100, 103, base))
	j.PaperClosed(closedPaper("p-frac", "s:NIFTY", 103, 102, base.Add(500*time.Millisecond)))

	recs, err := j.LastPaper(context.Background(), "s:NIFTY", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "p-frac", recs[0].ID)
	require.True(t, recs[0].ClosedAt.Equal(base.Add(500*time.Millisecond)))
	require.True(t, recs[1].ClosedAt.Equal(base))
}

func TestJournal_AppendIsIdempotent(t *testing.T) {
	j := openTestJournal(t)
	at := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	trade := closedPaper("p-1", "s:NIFTY", 100, 103, at)
	j.PaperClosed(trade)
	j.PaperClosed(trade) // 重投递，主键去重

	recs, err := j.LastPaper(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestJournal_LiveTradesSeparate(t *testing.T) {
	j := openTestJournal(t)
	at := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	exit, realized := 101.0, 10.0

	j.LiveClosed(domain.LiveTrade{
		ID: "l-1", Symbol: "NIFTY", Key: "s:NIFTY",
		EntryPrice: 100, Quantity: 10, LotSize: 1,
		OpenedAt: at.Add(-time.Minute), ExitPrice: &exit, RealizedPnl: &realized, ClosedAt: &at,
	})

	live, err := j.LastLive(context.Background(), "s:NIFTY", 10)
	require.NoError(t, err)
	require.Len(t, live, 1)

	paper, err := j.LastPaper(context.Background(), "s:NIFTY", 10)
	require.NoError(t, err)
	require.Len(t, paper, 0)
}
