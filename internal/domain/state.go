package domain

// IntentState 每标的交易意图状态机的状态
//
// 状态环：NO_SIGNAL → AWAITING_ENTRY → (IN_POSITION | BLOCKED) → AWAITING_ENTRY → …
// 没有终止状态，标的在进程生命周期内无限循环。
type IntentState string

const (
	IntentNoSignal      IntentState = "NO_SIGNAL"      // 尚未收到任何信号
	IntentAwaitingEntry IntentState = "AWAITING_ENTRY" // 收到信号，等待首个价格判定
	IntentInPosition    IntentState = "IN_POSITION"    // 价格站上阈值，应持仓
	IntentBlocked       IntentState = "BLOCKED"        // 价格跌破阈值，冷却中
)

// LiveState 实盘镜像状态
type LiveState string

const (
	LiveNoPosition LiveState = "NO_POSITION"
	LivePosition   LiveState = "POSITION"
)
