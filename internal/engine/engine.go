package engine

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/signalbot/gotick/internal/directory"
	"github.com/signalbot/gotick/internal/domain"
	"github.com/signalbot/gotick/internal/events"
)

var log = logrus.WithField("component", "engine")

// Config 决策引擎配置
type Config struct {
	FixedNotional     float64 // 纸面开仓的固定名义金额
	OpenThreshold     float64 // 实盘镜像开仓阈值（> 0）
	CloseThreshold    float64 // 实盘镜像保护性平仓阈值（< 0）
	ClosedTradeWindow int     // 快照保留的已平仓条数
}

// TradeSink 平仓记录的下游（交易流水落库），失败只记日志
type TradeSink interface {
	PaperClosed(trade domain.PaperTrade)
	LiveClosed(trade domain.LiveTrade)
}

// Engine 每标的决策引擎的宿主
//
// 每个标的一份复合状态（FSM + 纸面账本 + 实盘镜像），首个事件时惰性创建，
// 进程生命周期内不销毁。写入只发生在该标的的 worker 里（见 Dispatcher），
// Engine 的锁只保护 books map 本身。
type Engine struct {
	cfg    Config
	dir    directory.Lookup
	notify NotifyFunc
	sink   TradeSink

	mu    sync.RWMutex
	books map[string]*book
}

// book 单标的的复合状态，由该标的的 worker 独占写入
type book struct {
	key         domain.InstrumentKey
	lot         float64
	ordering    int
	feedTracked bool

	fsm      *InstrumentFsm
	tracking domain.SignalTracking
	ledger   *PaperLedger
	live     *LiveMirror

	ltp       float64  // 最近观测价（tick 或 feed）
	feedPrice *float64 // 最近 feed 价（feed 跟踪标的的回退链用）

	// 单调时间戳守卫：使 at-least-once 重投递下的重放幂等
	lastAppliedMs int64
	appliedKinds  uint8 // lastAppliedMs 这一毫秒内已应用的事件类型位图

	snap atomic.Pointer[domain.InstrumentSnapshot]
}

// New 创建引擎
func New(cfg Config, dir directory.Lookup, notify NotifyFunc, sink TradeSink) *Engine {
	return &Engine{
		cfg:    cfg,
		dir:    dir,
		notify: notify,
		sink:   sink,
		books:  make(map[string]*book),
	}
}

// bookFor 取（或惰性创建）标的的复合状态
func (e *Engine) bookFor(key domain.InstrumentKey) *book {
	ks := key.String()

	e.mu.RLock()
	b, ok := e.books[ks]
	e.mu.RUnlock()
	if ok {
		return b
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok = e.books[ks]; ok {
		return b
	}

	lot := 1.0
	ordering := int(^uint(0) >> 1)
	feedTracked := false
	if key.Symbol != "" {
		lot = e.dir.LotSize(key.Symbol)
		ordering = e.dir.Ordering(key.Symbol)
		feedTracked = e.dir.IsFeedSymbol(key.Symbol)
	}

	b = &book{
		key:         key,
		lot:         lot,
		ordering:    ordering,
		feedTracked: feedTracked,
		fsm:         NewInstrumentFsm(),
		ledger:      NewPaperLedger(e.cfg.FixedNotional, e.cfg.ClosedTradeWindow),
	}
	b.live = NewLiveMirror(key, e.cfg.OpenThreshold, e.cfg.CloseThreshold, e.cfg.ClosedTradeWindow, e.notify)
	if e.sink != nil {
		b.live.onClosed = e.sink.LiveClosed
	}
	e.books[ks] = b

	log.Debugf("新建标的记录: %s (lot=%.2f feed=%v)", key.Display(), lot, feedTracked)
	return b
}

// apply 在标的 worker 里应用一个事件（写入的唯一入口）
func (e *Engine) apply(b *book, env envelope) {
	if env.kind == kindClear {
		b.ledger.Clear()
		b.live.Clear()
		log.Infof("🧹 已清空交易历史: %s", b.key.Display())
		e.publish(b, env.atMs)
		return
	}

	// 单调时间戳守卫（§重投递决策）：时间戳倒退的事件丢弃，
	// 同一毫秒内同类型事件只应用一次，重放因此幂等。
	kindBit := uint8(1) << uint(env.kind)
	if env.atMs < b.lastAppliedMs {
		log.Debugf("丢弃乱序事件: %s kind=%s at=%d last=%d",
			b.key.Display(), env.kind, env.atMs, b.lastAppliedMs)
		return
	}
	if env.atMs == b.lastAppliedMs && b.appliedKinds&kindBit != 0 {
		log.Debugf("丢弃重复事件: %s kind=%s at=%d", b.key.Display(), env.kind, env.atMs)
		return
	}
	if env.atMs > b.lastAppliedMs {
		b.lastAppliedMs = env.atMs
		b.appliedKinds = 0
	}
	b.appliedKinds |= kindBit

	switch env.kind {
	case events.KindSignal:
		e.applySignal(b, env)
	case events.KindTick, events.KindFeedPrice:
		e.applyPrice(b, env)
	}
	e.publish(b, env.atMs)
}

// applySignal 信号事件：分类 → 阈值解析 → FSM 重新武装
func (e *Engine) applySignal(b *book, env envelope) {
	sig := env.signal
	dir := Classify(sig.Intent, sig.Side)
	if dir == domain.DirectionNone {
		log.Debugf("信号无方向，整体忽略: %s intent=%q side=%q", b.key.Display(), sig.Intent, sig.Side)
		return
	}

	threshold, ok := e.resolveThreshold(b, dir, sig.StopPrice)
	if !ok {
		log.Warnf("⚠️ 信号无可用阈值（无止损价且无已知价格），忽略: %s dir=%s", b.key.Display(), dir)
		return
	}

	b.tracking.Observe(dir)
	tr := b.fsm.ApplySignal(dir, threshold, env.atMs)
	price, hasPrice := b.latestPrice()
	updateCompoundDiagnostics(&b.tracking, b.fsm, dir, price, hasPrice)

	log.Infof("📶 信号: %s dir=%s threshold=%.2f %s→%s",
		b.key.Display(), dir, threshold, tr.From, tr.To)

	// 信号把 IN_POSITION 拉回 AWAITING_ENTRY 时账本同样要平仓
	if hasPrice {
		e.handleTransitions(b, []Transition{tr}, price, env.atMs)
	}
}

// applyPrice tick / feed 价格事件
func (e *Engine) applyPrice(b *book, env envelope) {
	if env.kind == events.KindFeedPrice {
		p := env.price
		b.feedPrice = &p
	}
	b.ltp = env.price

	trs := b.fsm.ApplyPrice(env.price, env.atMs)
	e.handleTransitions(b, trs, env.price, env.atMs)

	b.ledger.MarkPrice(env.price)
	b.live.OnPnlUpdate(b.ledger.TotalPnl(), env.price, b.feedPrice, env.atMs)
}

// handleTransitions 状态机转换驱动纸面账本与实盘镜像
func (e *Engine) handleTransitions(b *book, trs []Transition, price float64, atMs int64) {
	for _, tr := range trs {
		if tr.From == tr.To {
			continue
		}
		log.Infof("🔀 %s %s→%s price=%.2f reason=%s", b.key.Display(), tr.From, tr.To, price, tr.Reason)

		if tr.From == domain.IntentInPosition && tr.To != domain.IntentInPosition {
			if closed := b.ledger.Close(price, atMs); closed != nil {
				b.live.OnPaperClose(price, atMs)
				if e.sink != nil {
					e.sink.PaperClosed(*closed)
				}
				log.Infof("📕 纸面平仓: %s exit=%.2f realized=%.2f cumulative=%.2f",
					b.key.Display(), price, *closed.RealizedPnl, b.ledger.Cumulative())
			}
		}
		if tr.From != domain.IntentInPosition && tr.To == domain.IntentInPosition {
			opened := b.ledger.Open(b.key, price, b.lot, atMs)
			b.live.OnPaperOpen(opened, b.ledger.TotalPnl(), b.feedPrice, atMs)
			log.Infof("📗 纸面开仓: %s entry=%.2f qty=%d lot=%.2f",
				b.key.Display(), price, opened.Quantity, opened.LotSize)
		}
	}
}

// resolveThreshold 信号的阈值解析
// BUY 用信号携带的止损价；缺失时与 SELL 一样走最近已知价回退链：
// feed 跟踪标的优先 feed 价，否则最近 tick 价。都没有则信号不可用。
func (e *Engine) resolveThreshold(b *book, dir domain.Direction, stop *float64) (float64, bool) {
	if dir == domain.DirectionBuy && stop != nil && *stop > 0 {
		return *stop, true
	}
	if b.feedTracked && b.feedPrice != nil {
		return *b.feedPrice, true
	}
	if b.ltp > 0 {
		return b.ltp, true
	}
	if b.feedPrice != nil {
		return *b.feedPrice, true
	}
	return 0, false
}

// latestPrice 最近已知价格（feed 跟踪标的优先 feed 价）
func (b *book) latestPrice() (float64, bool) {
	if b.feedTracked && b.feedPrice != nil {
		return *b.feedPrice, true
	}
	if b.ltp > 0 {
		return b.ltp, true
	}
	return 0, false
}

// publish 三个引擎对同一事件的输出整体原子发布
// 未平仓交易必须深拷贝：worker 还会继续改写账本里的那一份，
// 发布出去的快照不能跟着变。
func (e *Engine) publish(b *book, atMs int64) {
	var openPaper *domain.PaperTrade
	if t := b.ledger.OpenTrade(); t != nil {
		c := *t
		openPaper = &c
	}
	var openLive *domain.LiveTrade
	if t := b.live.OpenTrade(); t != nil {
		c := *t
		openLive = &c
	}
	snap := &domain.InstrumentSnapshot{
		Key:               b.key.String(),
		Symbol:            b.key.Display(),
		Ordering:          b.ordering,
		Fsm:               b.fsm.Snapshot(b.ltp),
		Tracking:          b.tracking,
		OpenPaperTrade:    openPaper,
		ClosedPaperTrades: b.ledger.Closed(),
		CumulativePnl:     b.ledger.Cumulative(),
		UnrealizedPnl:     b.ledger.Unrealized(),
		IsLiveActive:      b.live.IsActive(),
		OpenLiveTrade:     openLive,
		ClosedLiveTrades:  b.live.Closed(),
		LiveCumulativePnl: b.live.Cumulative(),
		LiveUnrealizedPnl: b.live.Unrealized(),
		BlockedUntil:      b.live.BlockedUntil(),
		UpdatedAt:         time.UnixMilli(atMs),
	}
	b.snap.Store(snap)
}

// SeedPrice 用缓存的最近价预热展示（不经过状态机，只影响 ltp 展示）
// 仅在该标的还没有任何事件时生效。
func (e *Engine) SeedPrice(key domain.InstrumentKey, price float64, at time.Time) {
	if price <= 0 {
		return
	}
	b := e.bookFor(key)
	if b.lastAppliedMs != 0 || b.ltp > 0 {
		return
	}
	b.ltp = price
	e.publish(b, at.UnixMilli())
}

// Snapshot 单标的快照（无记录返回 nil）
func (e *Engine) Snapshot(key string) *domain.InstrumentSnapshot {
	e.mu.RLock()
	b, ok := e.books[key]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	return b.snap.Load()
}

// Snapshots 全部标的快照，按目录排序索引排列
func (e *Engine) Snapshots() []domain.InstrumentSnapshot {
	e.mu.RLock()
	books := make([]*book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.RUnlock()

	out := make([]domain.InstrumentSnapshot, 0, len(books))
	for _, b := range books {
		if s := b.snap.Load(); s != nil {
			out = append(out, *s)
		}
	}
	sortSnapshots(out)
	return out
}

func sortSnapshots(snaps []domain.InstrumentSnapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Ordering != snaps[j].Ordering {
			return snaps[i].Ordering < snaps[j].Ordering
		}
		return snaps[i].Symbol < snaps[j].Symbol
	})
}
