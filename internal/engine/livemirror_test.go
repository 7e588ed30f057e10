package engine

import (
	"testing"
	"time"

	"github.com/signalbot/gotick/internal/domain"
	"github.com/signalbot/gotick/internal/events"
)

func newTestMirror(notes *[]events.OrderNotification) *LiveMirror {
	key := domain.KeyFromSymbol("NIFTY")
	return NewLiveMirror(key, 4, -1, 20, func(n events.OrderNotification) {
		*notes = append(*notes, n)
	})
}

func paperAt(entry float64, atMs int64) *domain.PaperTrade {
	return &domain.PaperTrade{
		ID:         "t-1",
		Symbol:     "NIFTY",
		Key:        "s:NIFTY",
		EntryPrice: entry,
		Quantity:   10,
		LotSize:    1,
		OpenedAt:   time.UnixMilli(atMs),
	}
}

func TestMirror_OpensOnUpwardCross(t *testing.T) {
	var notes []events.OrderNotification
	m := newTestMirror(&notes)

	m.OnPaperOpen(paperAt(100, 1000), 0, nil, 1000)
	if m.IsActive() {
		t.Fatalf("expected inactive at pnl=0")
	}

	// 阈值内爬升不开仓
	m.OnPnlUpdate(2, 100.2, nil, 2000)
	if m.IsActive() {
		t.Fatalf("expected inactive at pnl=2 (threshold 4)")
	}

	// 上穿 4 开仓
	m.OnPnlUpdate(5, 100.5, nil, 3000)
	if !m.IsActive() {
		t.Fatalf("expected active after crossing open threshold")
	}
	if len(notes) != 1 || notes[0].Action != events.OrderActionEntry {
		t.Fatalf("expected one ENTRY notification, got %+v", notes)
	}
	// 无 feed 价时回退纸面入场价
	if m.OpenTrade().EntryPrice != 100 {
		t.Fatalf("expected entry fallback to paper entry 100, got %v", m.OpenTrade().EntryPrice)
	}
}

func TestMirror_EntryPrefersFeedPrice(t *testing.T) {
	var notes []events.OrderNotification
	m := newTestMirror(&notes)

	feed := 99.7
	m.OnPaperOpen(paperAt(100, 1000), 5, &feed, 1000)
	if !m.IsActive() {
		t.Fatalf("expected immediate activation, pnl already above threshold")
	}
	if m.OpenTrade().EntryPrice != 99.7 {
		t.Fatalf("expected feed entry 99.7, got %v", m.OpenTrade().EntryPrice)
	}
}

func TestMirror_DeadZoneHoldsPosition(t *testing.T) {
	var notes []events.OrderNotification
	m := newTestMirror(&notes)
	m.OnPaperOpen(paperAt(100, 1000), 5, nil, 1000)

	// 4 ≥ pnl > -1 的死区内既不平仓也不重复开仓
	m.OnPnlUpdate(3, 100.3, nil, 2000)
	m.OnPnlUpdate(0.5, 100.05, nil, 3000)
	if !m.IsActive() {
		t.Fatalf("expected position held inside dead zone")
	}
	if len(notes) != 1 {
		t.Fatalf("expected only the original ENTRY, got %d notifications", len(notes))
	}
}

func TestMirror_ProtectiveCloseAndCooldownReopen(t *testing.T) {
	var notes []events.OrderNotification
	m := newTestMirror(&notes)
	m.OnPaperOpen(paperAt(100, 60_000), 5, nil, 60_000)

	// 跌破 -1 保护性平仓并起冷却
	m.OnPnlUpdate(-2, 99.8, nil, 70_000)
	if m.IsActive() {
		t.Fatalf("expected protective close at pnl=-2")
	}
	if len(notes) != 2 || notes[1].Action != events.OrderActionExit {
		t.Fatalf("expected EXIT notification, got %+v", notes)
	}
	until := m.BlockedUntil()
	if until == nil || until.UnixMilli() != 120_000 {
		t.Fatalf("expected cooldown until 120000, got %v", until)
	}

	// 冷却期内 PnL 恢复也不重开
	m.OnPnlUpdate(5, 100.5, nil, 90_000)
	if m.IsActive() {
		t.Fatalf("expected no reopen during cooldown")
	}

	// 下一个分钟边界后、PnL 仍在阈值上方：从保留的 pending 重开
	m.OnPnlUpdate(5, 100.5, nil, 120_100)
	if !m.IsActive() {
		t.Fatalf("expected reopen after cooldown expiry")
	}
	if len(notes) != 3 || notes[2].Action != events.OrderActionEntry {
		t.Fatalf("expected second ENTRY, got %+v", notes)
	}
}

func TestMirror_DownwardCrossArmsCooldown(t *testing.T) {
	var notes []events.OrderNotification
	m := newTestMirror(&notes)

	// 没有 pending 时上穿不开仓，但 prevTotal 已越过阈值
	m.OnPnlUpdate(5, 100.5, nil, 60_000)
	if m.IsActive() {
		t.Fatalf("expected no open without pending paper trade")
	}
	// 空仓状态下的下穿起冷却
	m.OnPnlUpdate(3, 100.3, nil, 61_000)
	until := m.BlockedUntil()
	if until == nil || until.UnixMilli() != 120_000 {
		t.Fatalf("expected cooldown until 120000, got %v", until)
	}

	// 冷却期内即使纸面开仓且 PnL 在阈值上方也不激活
	m.OnPaperOpen(paperAt(100, 62_000), 5, nil, 62_000)
	if m.IsActive() {
		t.Fatalf("expected cooldown to block activation on paper open")
	}
	if len(notes) != 0 {
		t.Fatalf("expected no notifications, got %+v", notes)
	}
}

func TestMirror_PaperCloseAlwaysCloses(t *testing.T) {
	var notes []events.OrderNotification
	m := newTestMirror(&notes)
	m.OnPaperOpen(paperAt(100, 1000), 5, nil, 1000)

	// 纸面平仓无条件镜像平仓，即使 PnL 仍然有利
	m.OnPaperClose(101, 2000)
	if m.IsActive() {
		t.Fatalf("expected live close on paper close")
	}
	if len(notes) != 2 || notes[1].Action != events.OrderActionExit {
		t.Fatalf("expected EXIT, got %+v", notes)
	}

	// pending 已清空：之后的 PnL 穿越没有可开的仓
	m.OnPnlUpdate(10, 102, nil, 3000)
	if m.IsActive() {
		t.Fatalf("expected no reopen without pending paper trade")
	}
}

func TestMirror_RealizedAccumulates(t *testing.T) {
	var notes []events.OrderNotification
	m := newTestMirror(&notes)

	m.OnPaperOpen(paperAt(100, 1000), 5, nil, 1000)
	m.OnPaperClose(102, 2000) // (102-100)×10 = +20

	m.OnPaperOpen(paperAt(102, 3000), 5, nil, 3000)
	m.OnPaperClose(101, 4000) // (101-102)×10 = -10

	if got := m.Cumulative(); got != 10 {
		t.Fatalf("expected live cumulative=10, got %v", got)
	}
	if n := len(m.Closed()); n != 2 {
		t.Fatalf("expected 2 closed live trades, got %d", n)
	}
	if got := m.Unrealized(); got != 0 {
		t.Fatalf("expected unrealized=0 when flat, got %v", got)
	}
}
