package websocket

import (
	"testing"

	"github.com/signalbot/gotick/internal/events"
)

type captureSink struct {
	ticks []events.TickEvent
	feeds []events.FeedPriceEvent
}

func (c *captureSink) SubmitTick(ev events.TickEvent)           { c.ticks = append(c.ticks, ev) }
func (c *captureSink) SubmitFeedPrice(ev events.FeedPriceEvent) { c.feeds = append(c.feeds, ev) }

func TestTickStream_HandleMessage(t *testing.T) {
	sink := &captureSink{}
	s := NewTickStream("ws://unused", []uint32{12345}, sink)

	s.handleMessage([]byte(`{"instrument_token":12345,"last_price":101.5,"timestamp_ms":1000}`))
	if len(sink.ticks) != 1 {
		t.Fatalf("expected 1 tick, got %d", len(sink.ticks))
	}
	if sink.ticks[0].InstrumentToken != 12345 || sink.ticks[0].LastPrice != 101.5 {
		t.Fatalf("unexpected tick %+v", sink.ticks[0])
	}
	if sink.ticks[0].ReceivedAt.UnixMilli() != 1000 {
		t.Fatalf("expected event time 1000, got %d", sink.ticks[0].ReceivedAt.UnixMilli())
	}
}

func TestTickStream_HandleBatch(t *testing.T) {
	sink := &captureSink{}
	s := NewTickStream("ws://unused", nil, sink)

	s.handleMessage([]byte(`[{"instrument_token":1,"last_price":10},{"instrument_token":2,"last_price":20}]`))
	if len(sink.ticks) != 2 {
		t.Fatalf("expected 2 ticks, got %d", len(sink.ticks))
	}
	// 缺失时间戳用接收时间
	if sink.ticks[0].ReceivedAt.IsZero() {
		t.Fatalf("expected receive-time fallback")
	}
}

func TestTickStream_MalformedDropped(t *testing.T) {
	sink := &captureSink{}
	s := NewTickStream("ws://unused", nil, sink)

	s.handleMessage(nil)
	s.handleMessage([]byte(`not json`))
	s.handleMessage([]byte(`[broken`))
	if len(sink.ticks) != 0 {
		t.Fatalf("expected malformed messages dropped, got %d ticks", len(sink.ticks))
	}
}

func TestFeedStream_HandleMessage(t *testing.T) {
	sink := &captureSink{}
	s := NewFeedStream("ws://unused", []string{"USDINR"}, sink)

	s.handleMessage([]byte(`{"symbol":"USDINR","price":83.2,"timestamp_ms":2000}`))
	if len(sink.feeds) != 1 {
		t.Fatalf("expected 1 feed event, got %d", len(sink.feeds))
	}
	if sink.feeds[0].Symbol != "USDINR" || sink.feeds[0].Price != 83.2 {
		t.Fatalf("unexpected feed event %+v", sink.feeds[0])
	}
}
