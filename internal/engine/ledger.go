package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/signalbot/gotick/internal/domain"
)

// PaperLedger 每标的的纸面交易账本
//
// 由状态机转换驱动：进入 IN_POSITION 开仓，离开 IN_POSITION 平仓。
// 累计 PnL 只来自已平仓交易，未平仓部分单独上报，平仓前不并入累计。
// 每标的同一时刻至多一笔未平仓交易，第二次开仓说明 §5 的串行化不变式
// 被破坏，属于编程错误，直接 panic 而不是悄悄覆盖。
type PaperLedger struct {
	notional   float64 // 固定名义金额（配置常量）
	keepClosed int     // 快照里保留的已平仓条数

	open       *domain.PaperTrade
	closed     []domain.PaperTrade
	cumulative decimal.Decimal // 已实现 PnL 累计
}

// NewPaperLedger 创建账本
func NewPaperLedger(notional float64, keepClosed int) *PaperLedger {
	if keepClosed <= 0 {
		keepClosed = 20
	}
	return &PaperLedger{notional: notional, keepClosed: keepClosed}
}

// TradeQuantity 数量 = ceil(固定名义金额 / (每手数量 × 价格))
func TradeQuantity(notional, lot, price float64) int64 {
	if lot <= 0 || price <= 0 {
		return 0
	}
	return decimal.NewFromFloat(notional).
		Div(decimal.NewFromFloat(lot).Mul(decimal.NewFromFloat(price))).
		Ceil().IntPart()
}

// Open 按当前价开一笔纸面交易
func (l *PaperLedger) Open(key domain.InstrumentKey, price, lot float64, atMs int64) *domain.PaperTrade {
	if l.open != nil {
		panic(fmt.Sprintf("paper ledger: %s 已有未平仓交易 %s，事件串行化不变式被破坏",
			key.Display(), l.open.ID))
	}
	t := &domain.PaperTrade{
		ID:           uuid.NewString(),
		Symbol:       key.Display(),
		Key:          key.String(),
		EntryPrice:   price,
		Quantity:     TradeQuantity(l.notional, lot, price),
		LotSize:      lot,
		OpenedAt:     time.UnixMilli(atMs),
		CurrentPrice: price,
	}
	l.open = t
	return t
}

// MarkPrice 持仓期间按每个价格事件刷新未实现盈亏
func (l *PaperLedger) MarkPrice(price float64) {
	if l.open == nil {
		return
	}
	l.open.MarkPrice(price)
}

// Close 按当前价平仓，已实现 PnL 并入累计，返回平仓记录
func (l *PaperLedger) Close(price float64, atMs int64) *domain.PaperTrade {
	if l.open == nil {
		return nil
	}
	t := l.open
	realized := t.Close(price, time.UnixMilli(atMs))
	l.cumulative = l.cumulative.Add(decimal.NewFromFloat(realized))
	l.closed = append(l.closed, *t)
	if len(l.closed) > l.keepClosed {
		l.closed = l.closed[len(l.closed)-l.keepClosed:]
	}
	l.open = nil
	return t
}

// OpenTrade 当前未平仓交易（可能为 nil）
func (l *PaperLedger) OpenTrade() *domain.PaperTrade { return l.open }

// Closed 最近的已平仓交易（副本）
func (l *PaperLedger) Closed() []domain.PaperTrade {
	out := make([]domain.PaperTrade, len(l.closed))
	copy(out, l.closed)
	return out
}

// Cumulative 已实现 PnL 累计（只含已平仓交易）
func (l *PaperLedger) Cumulative() float64 {
	return l.cumulative.InexactFloat64()
}

// Unrealized 当前未平仓交易的未实现 PnL（无持仓为 0）
func (l *PaperLedger) Unrealized() float64 {
	if l.open == nil {
		return 0
	}
	return l.open.UnrealizedPnl
}

// TotalPnl 运行总 PnL = 已实现累计 + 当前未实现
func (l *PaperLedger) TotalPnl() float64 {
	return l.cumulative.Add(decimal.NewFromFloat(l.Unrealized())).InexactFloat64()
}

// Clear 清空交易历史（开仓中的交易一并丢弃），FSM 记录由调用方保留
func (l *PaperLedger) Clear() {
	l.open = nil
	l.closed = nil
	l.cumulative = decimal.Zero
}
