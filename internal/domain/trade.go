package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradePnl 计算 PnL = (现价 − 入场价) × 数量 × 每手数量
// 金额用 decimal 计算，避免长时间累加的浮点误差。
func TradePnl(entry, current float64, quantity int64, lot float64) float64 {
	diff := decimal.NewFromFloat(current).Sub(decimal.NewFromFloat(entry))
	return diff.Mul(decimal.NewFromInt(quantity)).Mul(decimal.NewFromFloat(lot)).InexactFloat64()
}

// PaperTrade 模拟交易记录
// 由状态机转换驱动开/平仓，每个标的同一时刻至多一笔未平仓。
type PaperTrade struct {
	ID            string     `json:"id"`            // 交易 ID（uuid）
	Symbol        string     `json:"symbol"`        // 标的展示名
	Key           string     `json:"key"`           // 标的键（InstrumentKey.String()）
	EntryPrice    float64    `json:"entryPrice"`    // 入场价格
	Quantity      int64      `json:"quantity"`      // 数量 = ceil(固定名义金额 / (每手数量 × 价格))
	LotSize       float64    `json:"lotSize"`       // 每手数量
	OpenedAt      time.Time  `json:"openedAt"`      // 开仓时间（事件时间）
	CurrentPrice  float64    `json:"currentPrice"`  // 最近价格（持仓期间每个价格事件更新）
	UnrealizedPnl float64    `json:"unrealizedPnl"` // 未实现盈亏（持仓期间有效）
	ExitPrice     *float64   `json:"exitPrice"`     // 出场价格（平仓后有值）
	RealizedPnl   *float64   `json:"realizedPnl"`   // 已实现盈亏（平仓后有值）
	ClosedAt      *time.Time `json:"closedAt"`      // 平仓时间
}

// IsOpen 检查是否未平仓
func (t *PaperTrade) IsOpen() bool {
	return t != nil && t.ClosedAt == nil
}

// MarkPrice 持仓期间按当前价刷新未实现盈亏
func (t *PaperTrade) MarkPrice(price float64) {
	if !t.IsOpen() {
		return
	}
	t.CurrentPrice = price
	t.UnrealizedPnl = TradePnl(t.EntryPrice, price, t.Quantity, t.LotSize)
}

// Close 按出场价平仓，返回已实现盈亏
func (t *PaperTrade) Close(price float64, at time.Time) float64 {
	realized := TradePnl(t.EntryPrice, price, t.Quantity, t.LotSize)
	t.ExitPrice = &price
	t.RealizedPnl = &realized
	t.ClosedAt = &at
	t.CurrentPrice = price
	t.UnrealizedPnl = 0
	return realized
}

// LiveTrade 实盘镜像交易记录
type LiveTrade struct {
	ID          string     `json:"id"`          // 交易 ID（uuid）
	Symbol      string     `json:"symbol"`      // 标的展示名
	Key         string     `json:"key"`         // 标的键
	EntryPrice  float64    `json:"entryPrice"`  // 入场参考价（feed 价优先，回退纸面入场价）
	Quantity    int64      `json:"quantity"`    // 数量（取自 pending 纸面交易）
	LotSize     float64    `json:"lotSize"`     // 每手数量
	OpenedAt    time.Time  `json:"openedAt"`    // 开仓时间（事件时间）
	ExitPrice   *float64   `json:"exitPrice"`   // 出场价格
	RealizedPnl *float64   `json:"realizedPnl"` // 已实现盈亏
	ClosedAt    *time.Time `json:"closedAt"`    // 平仓时间
}

// IsOpen 检查是否未平仓
func (t *LiveTrade) IsOpen() bool {
	return t != nil && t.ClosedAt == nil
}

// Close 按出场价平仓，返回已实现盈亏
func (t *LiveTrade) Close(price float64, at time.Time) float64 {
	realized := TradePnl(t.EntryPrice, price, t.Quantity, t.LotSize)
	t.ExitPrice = &price
	t.RealizedPnl = &realized
	t.ClosedAt = &at
	return realized
}
