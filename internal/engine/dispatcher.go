package engine

import (
	"math"
	"sync"
	"time"

	"github.com/signalbot/gotick/internal/domain"
	"github.com/signalbot/gotick/internal/events"
)

// kindClear worker 内部控制事件：清空交易历史（不走时间戳守卫）
const kindClear = events.Kind(-1)

// envelope 三路输入流合并后的统一事件信封
type envelope struct {
	kind   events.Kind
	atMs   int64
	price  float64 // tick / feed
	signal *events.SignalEvent
}

// Dispatcher 把三路输入流合并成每标的一条有序事件序列
//
// 每个标的一个有界队列 + 一个 worker：同一标的的事件按时间戳顺序应用，
// 不同标的完全并行。同一时间戳的信号与价格按「先信号后价格」应用，
// 以满足「信号由紧随其后的价格 tick 判定」的契约（§并发模型）。
// 关停 = 停止进队并排空在途事件，引擎本身没有取消概念。
type Dispatcher struct {
	engine    *Engine
	queueSize int

	// lifeMu：进队持读锁、关停持写锁，保证不往已关闭的 channel 发送
	lifeMu sync.RWMutex
	closed bool

	mapMu   sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
}

type worker struct {
	book *book
	ch   chan envelope
}

// NewDispatcher 创建分发器，queueSize 为每标的队列容量
func NewDispatcher(engine *Engine, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Dispatcher{
		engine:    engine,
		queueSize: queueSize,
		workers:   make(map[string]*worker),
	}
}

// SubmitTick token 标识的 tick 价格事件
// 未知 token 或非法价格直接丢弃——外部输入不可信，不产生硬失败。
func (d *Dispatcher) SubmitTick(ev events.TickEvent) {
	if ev.InstrumentToken == 0 || !validPrice(ev.LastPrice) {
		log.Debugf("丢弃非法 tick: token=%d price=%v", ev.InstrumentToken, ev.LastPrice)
		return
	}
	symbol, ok := d.engine.dir.LookupSymbol(ev.InstrumentToken)
	if !ok {
		log.Debugf("丢弃未知 token 的 tick: %d", ev.InstrumentToken)
		return
	}
	key := domain.InstrumentKey{Token: ev.InstrumentToken, Symbol: symbol}
	d.submit(key, envelope{kind: events.KindTick, atMs: eventMs(ev.ReceivedAt), price: ev.LastPrice})
}

// SubmitSignal webhook 信号事件（方向分类在 worker 里做）
func (d *Dispatcher) SubmitSignal(ev events.SignalEvent) {
	if ev.Symbol == "" {
		log.Debug("丢弃缺失 symbol 的信号")
		return
	}
	sig := ev
	d.submit(domain.KeyFromSymbol(ev.Symbol), envelope{
		kind: events.KindSignal, atMs: eventMs(ev.ReceivedAt), signal: &sig,
	})
}

// SubmitFeedPrice symbol 标识的 feed 价格事件
func (d *Dispatcher) SubmitFeedPrice(ev events.FeedPriceEvent) {
	if ev.Symbol == "" || !validPrice(ev.Price) {
		log.Debugf("丢弃非法 feed 价格: symbol=%q price=%v", ev.Symbol, ev.Price)
		return
	}
	d.submit(domain.KeyFromSymbol(ev.Symbol), envelope{
		kind: events.KindFeedPrice, atMs: eventMs(ev.ReceivedAt), price: ev.Price,
	})
}

// Clear 清空某标的的纸面/实盘交易历史（保留 FSM 记录），经由 worker 保持串行
func (d *Dispatcher) Clear(symbol string) bool {
	key := domain.KeyFromSymbol(symbol)

	d.lifeMu.RLock()
	defer d.lifeMu.RUnlock()
	if d.closed {
		return false
	}

	d.mapMu.Lock()
	w, ok := d.workers[key.String()]
	d.mapMu.Unlock()
	if !ok {
		return false
	}
	w.ch <- envelope{kind: kindClear, atMs: time.Now().UnixMilli()}
	return true
}

func (d *Dispatcher) submit(key domain.InstrumentKey, env envelope) {
	d.lifeMu.RLock()
	defer d.lifeMu.RUnlock()
	if d.closed {
		log.Warnf("分发器已关闭，丢弃事件: %s kind=%s", key.Display(), env.kind)
		return
	}

	ks := key.String()
	d.mapMu.Lock()
	w, ok := d.workers[ks]
	if !ok {
		w = &worker{book: d.engine.bookFor(key), ch: make(chan envelope, d.queueSize)}
		d.workers[ks] = w
		d.wg.Add(1)
		go d.run(w)
	}
	d.mapMu.Unlock()

	// 有界队列：满了阻塞而不是丢弃，背压传给上游 ingestion
	w.ch <- env
}

// run 单标的事件循环
// 同一时间戳的一批事件重排成「信号在前、价格在后」再逐个应用。
func (d *Dispatcher) run(w *worker) {
	defer d.wg.Done()

	var carry *envelope
	for {
		var head envelope
		if carry != nil {
			head, carry = *carry, nil
		} else {
			env, ok := <-w.ch
			if !ok {
				return
			}
			head = env
		}

		batch := []envelope{head}
	drain:
		for {
			select {
			case env, ok := <-w.ch:
				if !ok {
					break drain
				}
				if env.atMs == head.atMs && env.kind != kindClear {
					batch = append(batch, env)
					continue
				}
				next := env
				carry = &next
				break drain
			default:
				break drain
			}
		}

		// 稳定重排：同一时间戳内信号先于价格
		orderSameTimestamp(batch)
		for _, env := range batch {
			d.engine.apply(w.book, env)
		}
	}
}

func orderSameTimestamp(batch []envelope) {
	if len(batch) < 2 {
		return
	}
	ordered := make([]envelope, 0, len(batch))
	for _, env := range batch {
		if env.kind == events.KindSignal {
			ordered = append(ordered, env)
		}
	}
	for _, env := range batch {
		if env.kind != events.KindSignal {
			ordered = append(ordered, env)
		}
	}
	copy(batch, ordered)
}

// Shutdown 停止进队并排空在途事件（阻塞直到所有 worker 退出）
func (d *Dispatcher) Shutdown() {
	d.lifeMu.Lock()
	if d.closed {
		d.lifeMu.Unlock()
		return
	}
	d.closed = true
	d.mapMu.Lock()
	for _, w := range d.workers {
		close(w.ch)
	}
	d.mapMu.Unlock()
	d.lifeMu.Unlock()

	d.wg.Wait()
	log.Info("分发器已排空并停止")
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

func eventMs(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}
