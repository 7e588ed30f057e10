package engine

import (
	"github.com/signalbot/gotick/internal/domain"
)

// Transition 一次状态转换的快照
// BLOCKED 的冷却重激活在同一个价格事件里产生两次连续转换
// （BLOCKED→AWAITING_ENTRY→IN_POSITION|BLOCKED），两次都必须对观察者可见。
type Transition struct {
	From   domain.IntentState
	To     domain.IntentState
	AtMs   int64
	Price  float64
	Reason string
}

// InstrumentFsm 每标的的交易意图状态机
//
// 不变式：State != NO_SIGNAL 时 Threshold 非 nil；
// LastCheckedAtMs 非 nil 时总是 ≥ 同一信号期内的 LastSignalAtMs。
// 所有转换都是「状态 + 单个事件」上的同步纯函数，内部不阻塞。
type InstrumentFsm struct {
	State               domain.IntentState
	Threshold           *float64 // 当前信号期的判定价位
	SavedEntryThreshold *float64 // 最近一次 BUY 信号的入场阈值（历史）
	LastBuyThreshold    *float64 // 最近一次 BUY 阈值（历史，诊断用）
	LastSellThreshold   *float64 // 最近一次 SELL 阈值（历史，诊断用）
	LastSignalAtMs      *int64   // 最近一次信号（或冷却重激活）的事件时间
	LastCheckedAtMs     *int64   // 本信号期价格判定的时间（nil = 未判定）
	LastBlockedAtMs     *int64   // 进入 BLOCKED 的时间（nil = 非 BLOCKED 或已重置）
}

// NewInstrumentFsm 创建初始状态机
func NewInstrumentFsm() *InstrumentFsm {
	return &InstrumentFsm{State: domain.IntentNoSignal}
}

// ApplySignal 应用一个已分类的信号（方向判定在 engine 层完成）
// 任何信号都重新武装状态机：进入 AWAITING_ENTRY，清掉判定/冷却时间戳。
// 信号绕过 BLOCKED 的冷却门——只有价格驱动的重激活受分钟边界限制。
func (f *InstrumentFsm) ApplySignal(dir domain.Direction, threshold float64, atMs int64) Transition {
	from := f.State

	th := threshold
	f.Threshold = &th
	switch dir {
	case domain.DirectionBuy:
		saved, buy := threshold, threshold
		f.SavedEntryThreshold = &saved
		f.LastBuyThreshold = &buy
	case domain.DirectionSell:
		sell := threshold
		f.LastSellThreshold = &sell
	}

	at := atMs
	f.LastSignalAtMs = &at
	f.LastCheckedAtMs = nil
	f.LastBlockedAtMs = nil
	f.State = domain.IntentAwaitingEntry

	return Transition{From: from, To: domain.IntentAwaitingEntry, AtMs: atMs, Reason: "signal_" + string(dir)}
}

// ApplyPrice 应用一个价格事件，返回 0/1/2 个转换（按发生顺序）
//
// 没有活跃阈值（Threshold 或 LastSignalAtMs 为 nil）时价格事件是 no-op：
// 状态机在拿到信号之前不评估价格。
func (f *InstrumentFsm) ApplyPrice(price float64, atMs int64) []Transition {
	if f.Threshold == nil || f.LastSignalAtMs == nil {
		return nil
	}

	switch f.State {
	case domain.IntentAwaitingEntry:
		// 每个信号只在其后的第一个价格事件上判定一次，
		// 避免用信号时刻的陈旧价格反复触发。
		if f.LastCheckedAtMs != nil && *f.LastCheckedAtMs >= *f.LastSignalAtMs {
			return nil
		}
		return []Transition{f.evaluateEntry(price, atMs)}

	case domain.IntentInPosition:
		// 持仓期间每个 tick 都评估，没有判定一次的限制
		if price >= *f.Threshold {
			return nil
		}
		checked, blocked := atMs, atMs
		f.LastCheckedAtMs = &checked
		f.LastBlockedAtMs = &blocked
		f.State = domain.IntentBlocked
		return []Transition{{
			From: domain.IntentInPosition, To: domain.IntentBlocked,
			AtMs: atMs, Price: price, Reason: "price_below_threshold",
		}}

	case domain.IntentBlocked:
		if f.LastBlockedAtMs == nil {
			return nil
		}
		if !minuteBoundaryReached(*f.LastBlockedAtMs, atMs) {
			return nil
		}
		// 重激活：把此刻当作一个新信号，然后立即用同一个事件的价格判定
		sig := atMs
		f.LastSignalAtMs = &sig
		f.LastCheckedAtMs = nil
		f.LastBlockedAtMs = nil
		f.State = domain.IntentAwaitingEntry
		first := Transition{
			From: domain.IntentBlocked, To: domain.IntentAwaitingEntry,
			AtMs: atMs, Price: price, Reason: "cooldown_rearm",
		}
		second := f.evaluateEntry(price, atMs)
		return []Transition{first, second}
	}

	return nil
}

// evaluateEntry AWAITING_ENTRY 下的单次价格判定
func (f *InstrumentFsm) evaluateEntry(price float64, atMs int64) Transition {
	from := f.State
	checked := atMs
	f.LastCheckedAtMs = &checked

	if price > *f.Threshold {
		f.LastBlockedAtMs = nil
		f.State = domain.IntentInPosition
		return Transition{
			From: from, To: domain.IntentInPosition,
			AtMs: atMs, Price: price, Reason: "price_above_threshold",
		}
	}

	blocked := atMs
	f.LastBlockedAtMs = &blocked
	f.State = domain.IntentBlocked
	return Transition{
		From: from, To: domain.IntentBlocked,
		AtMs: atMs, Price: price, Reason: "price_not_above_threshold",
	}
}

// Snapshot 导出展示快照
func (f *InstrumentFsm) Snapshot(ltp float64) domain.FsmSnapshot {
	return domain.FsmSnapshot{
		State:             f.State,
		Threshold:         copyFloat(f.Threshold),
		LastBuyThreshold:  copyFloat(f.LastBuyThreshold),
		LastSellThreshold: copyFloat(f.LastSellThreshold),
		Ltp:               ltp,
	}
}

// minuteBoundaryReached 冷却门：atMs 属于比 blockedAtMs 所在分钟更晚的分钟，
// 且落在该分钟的第一秒内。整分钟边界让重激活对时钟可测，而不是依赖
// tick 到达抖动；如果那一秒内没有任何事件，只能等更晚分钟的第一秒。
func minuteBoundaryReached(blockedAtMs, atMs int64) bool {
	return atMs/60000 > blockedAtMs/60000 && atMs%60000 < 1000
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
