package domain

// Direction 信号方向
type Direction string

const (
	DirectionNone Direction = ""
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// SignalTracking 每标的的信号交替跟踪
//
// 粘性布尔诊断（AlternateSignal/BuySellSell/SellBuyBuy）一旦置 true 在标的
// 生命周期内保持 true，只作审计展示用，不参与任何交易决策。
type SignalTracking struct {
	LastSignal        Direction `json:"lastSignal"`        // 最近一次有方向的信号
	SellAfterBuyCount int       `json:"sellAfterBuyCount"` // BUY 之后紧接 SELL 的累计次数
	BuyAfterSellCount int       `json:"buyAfterSellCount"` // SELL 之后紧接 BUY 的累计次数

	// 连续同向计数与前一段方向，用于复合诊断
	RunLength       int       `json:"runLength"`       // 当前同向信号连续长度
	PrevRunDir      Direction `json:"prevRunDir"`      // 上一段连续信号的方向
	AlternateSignal bool      `json:"alternateSignal"` // 方向发生过交替（粘性）
	BuySellSell     bool      `json:"buySellSell"`     // BUY 后连续 ≥2 个 SELL 且现价低于最近买入阈值（粘性）
	SellBuyBuy      bool      `json:"sellBuyBuy"`      // SELL 后连续 ≥2 个 BUY 且现价高于最近卖出阈值（粘性）
}

// Observe 记录一个有方向的信号，更新交替计数
// 复合诊断（BuySellSell/SellBuyBuy）由 engine 结合阈值历史另行置位。
func (t *SignalTracking) Observe(dir Direction) {
	if dir == DirectionNone {
		return
	}
	if t.LastSignal == DirectionNone {
		t.LastSignal = dir
		t.RunLength = 1
		return
	}
	if dir == t.LastSignal {
		t.RunLength++
		t.LastSignal = dir
		return
	}
	// 方向切换
	t.AlternateSignal = true
	if dir == DirectionSell && t.LastSignal == DirectionBuy {
		t.SellAfterBuyCount++
	}
	if dir == DirectionBuy && t.LastSignal == DirectionSell {
		t.BuyAfterSellCount++
	}
	t.PrevRunDir = t.LastSignal
	t.LastSignal = dir
	t.RunLength = 1
}
