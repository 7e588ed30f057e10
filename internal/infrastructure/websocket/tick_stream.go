package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalbot/gotick/internal/events"
)

// TickSink tick 事件的下游（engine.Dispatcher 实现）
type TickSink interface {
	SubmitTick(ev events.TickEvent)
}

// TickStream token 标识的成交价流
//
// 消息不保证只来一次也不保证顺序，去重和排序由引擎的时间戳守卫负责，
// 这里只做解析和转发。
type TickStream struct {
	*stream
	sink   TickSink
	tokens []uint32
}

// tickMessage 上游 tick 消息
// 单条或数组两种形态都可能出现。
type tickMessage struct {
	InstrumentToken uint32  `json:"instrument_token"`
	LastPrice       float64 `json:"last_price"`
	TimestampMs     int64   `json:"timestamp_ms"`
}

// NewTickStream 创建 tick 流，tokens 为要订阅的标的
func NewTickStream(url string, tokens []uint32, sink TickSink) *TickStream {
	t := &TickStream{sink: sink, tokens: tokens}
	t.stream = newStream("tick", url)
	t.stream.subscribe = t.sendSubscribe
	t.stream.onMessage = t.handleMessage
	return t
}

func (t *TickStream) sendSubscribe(conn *websocket.Conn) error {
	msg := map[string]any{
		"action": "subscribe",
		"tokens": t.tokens,
	}
	log.Infof("📡 订阅 tick: %d 个标的", len(t.tokens))
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (t *TickStream) handleMessage(message []byte) {
	if len(message) == 0 {
		return
	}
	if message[0] == '[' {
		var batch []tickMessage
		if err := json.Unmarshal(message, &batch); err != nil {
			log.Debugf("tick 批量消息解析失败: %v", err)
			return
		}
		for _, m := range batch {
			t.submit(m)
		}
		return
	}
	var m tickMessage
	if err := json.Unmarshal(message, &m); err != nil {
		log.Debugf("tick 消息解析失败: %v", err)
		return
	}
	t.submit(m)
}

func (t *TickStream) submit(m tickMessage) {
	at := time.Now()
	if m.TimestampMs > 0 {
		at = time.UnixMilli(m.TimestampMs)
	}
	t.sink.SubmitTick(events.TickEvent{
		InstrumentToken: m.InstrumentToken,
		LastPrice:       m.LastPrice,
		ReceivedAt:      at,
	})
}

// Run 连接并在 ctx 取消时关闭
func (t *TickStream) Run(ctx context.Context) error {
	if err := t.Connect(ctx); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		t.Close()
	}()
	return nil
}
