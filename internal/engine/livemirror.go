package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/signalbot/gotick/internal/domain"
	"github.com/signalbot/gotick/internal/events"
)

// NotifyFunc 实盘开/平仓通知回调（fire-and-forget，失败不回滚镜像状态）
type NotifyFunc func(events.OrderNotification)

// LiveMirror 实盘镜像引擎
//
// 完全由纸面账本的运行总 PnL（已实现累计 + 未实现）驱动，每次账本更新
// 重新评估。两个阈值構成死区防止在零附近来回翻转：总 PnL 越过
// openThreshold（> 0）才开仓，跌破 closeThreshold（< 0）保护性平仓。
// 本结构由所属标的的 worker 独占持有，外部不直接变更。
type LiveMirror struct {
	key            domain.InstrumentKey
	openThreshold  float64
	closeThreshold float64
	notify         NotifyFunc
	onClosed       func(domain.LiveTrade) // 平仓记录落库钩子（可选）
	keepClosed     int

	state       domain.LiveState
	open        *domain.LiveTrade
	closed      []domain.LiveTrade
	cumulative  decimal.Decimal
	unrealized  float64
	blockedAtMs *int64             // 冷却锚点（到下一个分钟边界解除）
	pending     *domain.PaperTrade // 纸面开仓快照，允许 PnL 事后越过阈值时中途激活
	prevTotal   float64            // 上一次评估的总 PnL，用于判定阈值穿越
}

// NewLiveMirror 创建实盘镜像
func NewLiveMirror(key domain.InstrumentKey, openThreshold, closeThreshold float64, keepClosed int, notify NotifyFunc) *LiveMirror {
	if keepClosed <= 0 {
		keepClosed = 20
	}
	return &LiveMirror{
		key:            key,
		openThreshold:  openThreshold,
		closeThreshold: closeThreshold,
		keepClosed:     keepClosed,
		notify:         notify,
		state:          domain.LiveNoPosition,
	}
}

// OnPnlUpdate 纸面账本每次更新后重新评估
//
// 规则按固定顺序执行：
//  1. 冷却到期（到达下一个分钟边界）则解除；
//  2. 持仓中总 PnL < closeThreshold → 立即按当前价保护性平仓并重新起冷却，
//     不清 pending，PnL 回升后可从同一笔纸面交易重新开仓；
//  3. 总 PnL 上穿 openThreshold（或刚解除冷却且已在其上方），当前空仓、
//     无冷却、有 pending → 按 feed 价（回退纸面入场价）开实盘仓；
//  4. 空仓时总 PnL 下穿 openThreshold → 起冷却，防止刚够格又立刻掉头时
//     马上重开。
func (m *LiveMirror) OnPnlUpdate(totalPnl, currentPrice float64, feedPrice *float64, atMs int64) {
	justExpired := m.expireCooldown(atMs)

	if m.open != nil {
		m.unrealized = domain.TradePnl(m.open.EntryPrice, currentPrice, m.open.Quantity, m.open.LotSize)
	}

	// 2. 保护性平仓
	if m.state == domain.LivePosition && totalPnl < m.closeThreshold {
		m.closeAt(currentPrice, atMs)
		blocked := atMs
		m.blockedAtMs = &blocked
		// pending 保留：PnL 恢复后允许从同一笔纸面交易重开
		m.prevTotal = totalPnl
		return
	}

	crossedUp := m.prevTotal <= m.openThreshold && totalPnl > m.openThreshold
	crossedDown := m.prevTotal > m.openThreshold && totalPnl <= m.openThreshold

	switch {
	// 3. 开仓
	case m.state == domain.LiveNoPosition && m.blockedAtMs == nil && m.pending != nil &&
		(crossedUp || (justExpired && totalPnl > m.openThreshold)):
		m.openFromPending(feedPrice, atMs)

	// 4. 差一点够格后掉头，起冷却
	case m.state == domain.LiveNoPosition && crossedDown:
		blocked := atMs
		m.blockedAtMs = &blocked
	}

	m.prevTotal = totalPnl
}

// OnPaperOpen 纸面账本新开仓：记录 pending，若总 PnL 已在阈值上方则立即激活
func (m *LiveMirror) OnPaperOpen(trade *domain.PaperTrade, totalPnl float64, feedPrice *float64, atMs int64) {
	m.expireCooldown(atMs)
	snapshot := *trade
	m.pending = &snapshot
	if m.state == domain.LiveNoPosition && m.blockedAtMs == nil && totalPnl > m.openThreshold {
		m.openFromPending(feedPrice, atMs)
	}
}

// OnPaperClose 纸面账本平仓：无条件平掉实盘并清 pending（即使 PnL 仍然有利）
func (m *LiveMirror) OnPaperClose(price float64, atMs int64) {
	if m.open != nil {
		m.closeAt(price, atMs)
	}
	m.pending = nil
}

// expireCooldown 冷却到达下一个分钟边界后解除，返回本次是否刚好解除
func (m *LiveMirror) expireCooldown(atMs int64) bool {
	if m.blockedAtMs == nil {
		return false
	}
	if atMs/60000 > *m.blockedAtMs/60000 {
		m.blockedAtMs = nil
		return true
	}
	return false
}

func (m *LiveMirror) openFromPending(feedPrice *float64, atMs int64) {
	entry := m.pending.EntryPrice
	if feedPrice != nil && *feedPrice > 0 {
		entry = *feedPrice
	}
	m.open = &domain.LiveTrade{
		ID:         uuid.NewString(),
		Symbol:     m.key.Display(),
		Key:        m.key.String(),
		EntryPrice: entry,
		Quantity:   m.pending.Quantity,
		LotSize:    m.pending.LotSize,
		OpenedAt:   time.UnixMilli(atMs),
	}
	m.state = domain.LivePosition
	m.unrealized = 0
	if m.notify != nil {
		m.notify(events.OrderNotification{
			Action:         events.OrderActionEntry,
			Symbol:         m.key.Display(),
			ReferencePrice: entry,
			Quantity:       m.pending.Quantity,
			At:             time.UnixMilli(atMs),
		})
	}
}

func (m *LiveMirror) closeAt(price float64, atMs int64) {
	t := m.open
	realized := t.Close(price, time.UnixMilli(atMs))
	m.cumulative = m.cumulative.Add(decimal.NewFromFloat(realized))
	m.closed = append(m.closed, *t)
	if len(m.closed) > m.keepClosed {
		m.closed = m.closed[len(m.closed)-m.keepClosed:]
	}
	m.open = nil
	m.state = domain.LiveNoPosition
	m.unrealized = 0
	if m.onClosed != nil {
		m.onClosed(*t)
	}
	if m.notify != nil {
		m.notify(events.OrderNotification{
			Action:         events.OrderActionExit,
			Symbol:         m.key.Display(),
			ReferencePrice: price,
			Quantity:       t.Quantity,
			At:             time.UnixMilli(atMs),
		})
	}
}

// IsActive 当前是否持有实盘仓位
func (m *LiveMirror) IsActive() bool { return m.state == domain.LivePosition }

// OpenTrade 当前实盘交易（可能为 nil）
func (m *LiveMirror) OpenTrade() *domain.LiveTrade { return m.open }

// Closed 最近的已平仓实盘交易（副本）
func (m *LiveMirror) Closed() []domain.LiveTrade {
	out := make([]domain.LiveTrade, len(m.closed))
	copy(out, m.closed)
	return out
}

// Cumulative 实盘已实现 PnL 累计
func (m *LiveMirror) Cumulative() float64 { return m.cumulative.InexactFloat64() }

// Unrealized 实盘当前未实现 PnL
func (m *LiveMirror) Unrealized() float64 { return m.unrealized }

// BlockedUntil 冷却截止时间（下一个分钟边界，无冷却返回 nil）
func (m *LiveMirror) BlockedUntil() *time.Time {
	if m.blockedAtMs == nil {
		return nil
	}
	until := time.UnixMilli((*m.blockedAtMs/60000 + 1) * 60000)
	return &until
}

// Clear 清空实盘交易历史与 pending（不发通知）
func (m *LiveMirror) Clear() {
	m.open = nil
	m.closed = nil
	m.cumulative = decimal.Zero
	m.unrealized = 0
	m.blockedAtMs = nil
	m.pending = nil
	m.prevTotal = 0
	m.state = domain.LiveNoPosition
}
