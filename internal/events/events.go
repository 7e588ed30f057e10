package events

import "time"

// Kind 事件类型
type Kind int

const (
	KindSignal    Kind = iota // 外部信号（webhook）
	KindTick                  // 交易所 tick（token 标识）
	KindFeedPrice             // 外部 feed 价格（symbol 标识）
)

// String 返回事件类型名
func (k Kind) String() string {
	switch k {
	case KindSignal:
		return "signal"
	case KindTick:
		return "tick"
	case KindFeedPrice:
		return "feed_price"
	}
	return "unknown"
}

// TickEvent tick 价格事件（ingestion 层已解码）
type TickEvent struct {
	InstrumentToken uint32
	LastPrice       float64
	ReceivedAt      time.Time
}

// SignalEvent 外部信号事件（webhook 已解码）
// Intent/Side 为自由字符串，方向判定见 engine.Classify。
type SignalEvent struct {
	Symbol     string
	Intent     string
	Side       string
	StopPrice  *float64
	ReceivedAt time.Time
}

// FeedPriceEvent 交易所 feed 价格事件（symbol 标识）
type FeedPriceEvent struct {
	Symbol     string
	Price      float64
	ReceivedAt time.Time
}

// OrderAction 实盘下单方向
type OrderAction string

const (
	OrderActionEntry OrderAction = "ENTRY"
	OrderActionExit  OrderAction = "EXIT"
)

// OrderNotification 实盘开/平仓通知
// 核心只负责决定「该下单」以及价格/数量，实际提交与结果处理在外部；
// 通知是 fire-and-forget 的，提交失败不回滚镜像状态。
type OrderNotification struct {
	Action         OrderAction `json:"action"`
	Symbol         string      `json:"symbol"`
	ReferencePrice float64     `json:"referencePrice"`
	Quantity       int64       `json:"quantity"`
	At             time.Time   `json:"at"`
}
