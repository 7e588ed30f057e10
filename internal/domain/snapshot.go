package domain

import "time"

// FsmSnapshot 状态机的展示快照
type FsmSnapshot struct {
	State             IntentState `json:"state"`
	Threshold         *float64    `json:"threshold"`
	LastBuyThreshold  *float64    `json:"lastBuyThreshold"`
	LastSellThreshold *float64    `json:"lastSellThreshold"`
	Ltp               float64     `json:"ltp"` // 最近成交价（tick）
}

// InstrumentSnapshot 单标的的聚合快照
//
// 同一个事件产生的 FSM/纸面账本/实盘镜像三者输出整体发布（原子指针交换），
// 读者不会看到「状态机已转换、账本还没更新」的撕裂视图。
type InstrumentSnapshot struct {
	Key      string `json:"key"`
	Symbol   string `json:"symbol"`
	Ordering int    `json:"ordering"`

	Fsm      FsmSnapshot    `json:"fsm"`
	Tracking SignalTracking `json:"tracking"`

	OpenPaperTrade    *PaperTrade  `json:"openPaperTrade"`
	ClosedPaperTrades []PaperTrade `json:"closedPaperTrades"` // 最近 N 笔
	CumulativePnl     float64      `json:"cumulativePnl"`     // 只含已平仓
	UnrealizedPnl     float64      `json:"unrealizedPnl"`     // 当前未平仓部分

	IsLiveActive      bool        `json:"isLiveActive"`
	OpenLiveTrade     *LiveTrade  `json:"openLiveTrade"`
	ClosedLiveTrades  []LiveTrade `json:"closedLiveTrades"`
	LiveCumulativePnl float64     `json:"liveCumulativePnl"`
	LiveUnrealizedPnl float64     `json:"liveUnrealizedPnl"`
	BlockedUntil      *time.Time  `json:"blockedUntil"` // 实盘冷却截止（nil = 无冷却）

	UpdatedAt time.Time `json:"updatedAt"` // 本快照对应的事件时间
}
