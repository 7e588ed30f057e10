package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalbot/gotick/internal/events"
)

// FeedSink feed 价格事件的下游（engine.Dispatcher 实现）
type FeedSink interface {
	SubmitFeedPrice(ev events.FeedPriceEvent)
}

// FeedStream symbol 标识的参考价流
// 只覆盖配置指定的 feed 跟踪标的，用于实盘入场参考价和阈值回退链。
type FeedStream struct {
	*stream
	sink    FeedSink
	symbols []string
}

type feedMessage struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// NewFeedStream 创建 feed 流
func NewFeedStream(url string, symbols []string, sink FeedSink) *FeedStream {
	f := &FeedStream{sink: sink, symbols: symbols}
	f.stream = newStream("feed", url)
	f.stream.subscribe = f.sendSubscribe
	f.stream.onMessage = f.handleMessage
	return f
}

func (f *FeedStream) sendSubscribe(conn *websocket.Conn) error {
	msg := map[string]any{
		"action":  "subscribe",
		"symbols": f.symbols,
	}
	log.Infof("📡 订阅 feed: %v", f.symbols)
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (f *FeedStream) handleMessage(message []byte) {
	if len(message) == 0 {
		return
	}
	var m feedMessage
	if err := json.Unmarshal(message, &m); err != nil {
		log.Debugf("feed 消息解析失败: %v", err)
		return
	}
	at := time.Now()
	if m.TimestampMs > 0 {
		at = time.UnixMilli(m.TimestampMs)
	}
	f.sink.SubmitFeedPrice(events.FeedPriceEvent{
		Symbol:     m.Symbol,
		Price:      m.Price,
		ReceivedAt: at,
	})
}

// Run 连接并在 ctx 取消时关闭
func (f *FeedStream) Run(ctx context.Context) error {
	if err := f.Connect(ctx); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		f.Close()
	}()
	return nil
}
