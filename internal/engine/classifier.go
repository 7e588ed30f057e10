package engine

import (
	"strings"

	"github.com/signalbot/gotick/internal/domain"
)

// Classify 把 webhook 原始 payload 的 intent/side 字段映射成方向
//
// intent 优先：BUY/ENTRY → BUY，SELL/EXIT → SELL；intent 无法判定时
// 回退 side 做同样的匹配；都不匹配则无方向（调用方整体忽略该信号）。
func Classify(intent, side string) domain.Direction {
	if d := matchDirection(intent); d != domain.DirectionNone {
		return d
	}
	return matchDirection(side)
}

func matchDirection(s string) domain.Direction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "ENTRY":
		return domain.DirectionBuy
	case "SELL", "EXIT":
		return domain.DirectionSell
	}
	return domain.DirectionNone
}

// updateCompoundDiagnostics 复合粘性诊断，纯审计数据，不参与决策
//
// BuySellSell：一段 BUY 之后出现 ≥2 个连续 SELL，且现价低于最近买入阈值；
// SellBuyBuy：镜像情形，一段 SELL 之后 ≥2 个连续 BUY，且现价高于最近卖出阈值。
// 必须在 SignalTracking.Observe 和 fsm.ApplySignal 之后调用。
func updateCompoundDiagnostics(tr *domain.SignalTracking, f *InstrumentFsm, dir domain.Direction, price float64, hasPrice bool) {
	if !hasPrice || tr.RunLength < 2 {
		return
	}
	switch dir {
	case domain.DirectionSell:
		if tr.PrevRunDir == domain.DirectionBuy && f.LastBuyThreshold != nil && price < *f.LastBuyThreshold {
			tr.BuySellSell = true
		}
	case domain.DirectionBuy:
		if tr.PrevRunDir == domain.DirectionSell && f.LastSellThreshold != nil && price > *f.LastSellThreshold {
			tr.SellBuyBuy = true
		}
	}
}
