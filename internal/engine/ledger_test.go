package engine

import (
	"math"
	"strings"
	"testing"

	"github.com/signalbot/gotick/internal/domain"
)

func TestTradeQuantity(t *testing.T) {
	cases := []struct {
		notional, lot, price float64
		want                 int64
	}{
		{1000, 1, 100, 10},
		{1000, 1, 3, 334},       // 1000/3 = 333.33… 向上取整
		{1000, 75, 17.35, 1},    // 一手名义已超过固定金额
		{100_000, 50, 48.6, 42}, // 100000/2430 = 41.15…
		{1000, 0, 100, 0},
		{1000, 1, 0, 0},
	}
	for _, c := range cases {
		if got := TradeQuantity(c.notional, c.lot, c.price); got != c.want {
			t.Fatalf("TradeQuantity(%v, %v, %v) = %d, want %d", c.notional, c.lot, c.price, got, c.want)
		}
	}
}

func TestLedger_PnlRoundTrip(t *testing.T) {
	l := NewPaperLedger(1000, 20)
	key := domain.KeyFromSymbol("NIFTY24DECFUT")

	tr := l.Open(key, 100, 1, 1000)
	if tr.Quantity != 10 {
		t.Fatalf("expected qty=10, got %d", tr.Quantity)
	}

	// 入场 100，现价 105：未实现 = (105-100)×10×1 = 50
	l.MarkPrice(105)
	if got := l.Unrealized(); got != 50 {
		t.Fatalf("expected unrealized=50, got %v", got)
	}
	if got := l.Cumulative(); got != 0 {
		t.Fatalf("expected cumulative=0 before close, got %v", got)
	}
	if got := l.TotalPnl(); got != 50 {
		t.Fatalf("expected total=50, got %v", got)
	}

	// 103 平仓：已实现 30 并入累计，未实现归零
	closed := l.Close(103, 2000)
	if closed == nil || closed.RealizedPnl == nil || *closed.RealizedPnl != 30 {
		t.Fatalf("expected realized=30, got %+v", closed)
	}
	if got := l.Cumulative(); got != 30 {
		t.Fatalf("expected cumulative=30, got %v", got)
	}
	if got := l.Unrealized(); got != 0 {
		t.Fatalf("expected unrealized=0 after close, got %v", got)
	}
	if l.OpenTrade() != nil {
		t.Fatalf("expected no open trade after close")
	}
	if n := len(l.Closed()); n != 1 {
		t.Fatalf("expected 1 closed trade, got %d", n)
	}
}

func TestLedger_DecimalArithmetic(t *testing.T) {
	l := NewPaperLedger(1000, 20)
	key := domain.KeyFromSymbol("BANKNIFTY")

	// 0.1+0.2 类的二进制误差不应出现在累计里
	l.Open(key, 100.1, 1, 1000)
	l.Close(100.2, 2000)
	l.Open(key, 50.2, 1, 3000)
	l.Close(50.1, 4000)

	// 第一笔 +0.1×10=1，第二笔 -0.1×20=-2，累计应精确为 -1
	if got := l.Cumulative(); math.Abs(got-(-1)) > 1e-9 {
		t.Fatalf("expected cumulative=-1, got %v", got)
	}
}

func TestLedger_DoubleOpenPanics(t *testing.T) {
	l := NewPaperLedger(1000, 20)
	key := domain.KeyFromSymbol("NIFTY")
	l.Open(key, 100, 1, 1000)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic on double open")
		}
		if !strings.Contains(r.(string), "未平仓") {
			t.Fatalf("unexpected panic message: %v", r)
		}
	}()
	l.Open(key, 101, 1, 2000)
}

func TestLedger_ClosedWindow(t *testing.T) {
	l := NewPaperLedger(1000, 2)
	key := domain.KeyFromSymbol("NIFTY")

	for i := 0; i < 3; i++ {
		l.Open(key, 100, 1, int64(i*1000))
		l.Close(101, int64(i*1000+500))
	}

	closed := l.Closed()
	if len(closed) != 2 {
		t.Fatalf("expected window of 2, got %d", len(closed))
	}
	// 累计不受窗口截断影响
	if got := l.Cumulative(); got != 30 {
		t.Fatalf("expected cumulative=30 across 3 trades, got %v", got)
	}
}

func TestLedger_Clear(t *testing.T) {
	l := NewPaperLedger(1000, 20)
	key := domain.KeyFromSymbol("NIFTY")
	l.Open(key, 100, 1, 1000)
	l.Close(105, 2000)
	l.Open(key, 105, 1, 3000)

	l.Clear()
	if l.OpenTrade() != nil || len(l.Closed()) != 0 || l.Cumulative() != 0 {
		t.Fatalf("expected empty ledger after clear")
	}
}
