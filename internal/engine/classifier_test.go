package engine

import (
	"testing"

	"github.com/signalbot/gotick/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		intent, side string
		want         domain.Direction
	}{
		{"BUY", "", domain.DirectionBuy},
		{"ENTRY", "", domain.DirectionBuy},
		{"SELL", "", domain.DirectionSell},
		{"EXIT", "", domain.DirectionSell},
		{"buy", "", domain.DirectionBuy},
		{"  sell  ", "", domain.DirectionSell},
		// intent 不可判定时回退 side
		{"", "BUY", domain.DirectionBuy},
		{"hold", "exit", domain.DirectionSell},
		// intent 优先于 side
		{"BUY", "SELL", domain.DirectionBuy},
		{"", "", domain.DirectionNone},
		{"hold", "flat", domain.DirectionNone},
	}
	for _, c := range cases {
		if got := Classify(c.intent, c.side); got != c.want {
			t.Fatalf("Classify(%q, %q) = %q, want %q", c.intent, c.side, got, c.want)
		}
	}
}

func TestSignalTracking_Alternation(t *testing.T) {
	var tr domain.SignalTracking

	tr.Observe(domain.DirectionBuy)
	if tr.AlternateSignal {
		t.Fatalf("single signal should not mark alternation")
	}
	tr.Observe(domain.DirectionBuy)
	if tr.RunLength != 2 {
		t.Fatalf("expected run length 2, got %d", tr.RunLength)
	}

	tr.Observe(domain.DirectionSell)
	if !tr.AlternateSignal || tr.SellAfterBuyCount != 1 {
		t.Fatalf("expected alternation + SellAfterBuy=1, got %+v", tr)
	}
	if tr.PrevRunDir != domain.DirectionBuy || tr.RunLength != 1 {
		t.Fatalf("expected prev run BUY, run length reset, got %+v", tr)
	}

	tr.Observe(domain.DirectionBuy)
	if tr.BuyAfterSellCount != 1 {
		t.Fatalf("expected BuyAfterSell=1, got %d", tr.BuyAfterSellCount)
	}
	// 粘性：交替标志不会被后续同向信号清掉
	tr.Observe(domain.DirectionBuy)
	if !tr.AlternateSignal {
		t.Fatalf("alternation flag must be sticky")
	}
}

func TestCompoundDiagnostics_BuySellSell(t *testing.T) {
	f := NewInstrumentFsm()
	var tr domain.SignalTracking

	observe := func(dir domain.Direction, threshold float64, price float64, atMs int64) {
		tr.Observe(dir)
		f.ApplySignal(dir, threshold, atMs)
		updateCompoundDiagnostics(&tr, f, dir, price, true)
	}

	observe(domain.DirectionBuy, 100, 101, 1000)
	observe(domain.DirectionSell, 98, 99, 2000)
	if tr.BuySellSell {
		t.Fatalf("single SELL after BUY must not set BuySellSell")
	}

	// 第二个连续 SELL 且现价低于最近买入阈值 100
	observe(domain.DirectionSell, 97, 99, 3000)
	if !tr.BuySellSell {
		t.Fatalf("expected BuySellSell after BUY,SELL,SELL with price < last buy threshold")
	}
	if tr.SellBuyBuy {
		t.Fatalf("SellBuyBuy should stay false")
	}
}

func TestCompoundDiagnostics_RequiresPriceCondition(t *testing.T) {
	f := NewInstrumentFsm()
	var tr domain.SignalTracking

	tr.Observe(domain.DirectionBuy)
	f.ApplySignal(domain.DirectionBuy, 100, 1000)
	updateCompoundDiagnostics(&tr, f, domain.DirectionBuy, 101, true)

	tr.Observe(domain.DirectionSell)
	f.ApplySignal(domain.DirectionSell, 98, 2000)
	updateCompoundDiagnostics(&tr, f, domain.DirectionSell, 101, true)
	tr.Observe(domain.DirectionSell)
	f.ApplySignal(domain.DirectionSell, 97, 3000)
	// 现价 101 高于最近买入阈值 100，条件不满足
	updateCompoundDiagnostics(&tr, f, domain.DirectionSell, 101, true)

	if tr.BuySellSell {
		t.Fatalf("BuySellSell requires price below last buy threshold")
	}
}
