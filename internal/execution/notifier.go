package execution

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/signalbot/gotick/internal/events"
)

var log = logrus.WithField("component", "execution")

// Notifier 实盘开/平仓通知的下游
type Notifier interface {
	Notify(n events.OrderNotification)
}

// HTTPNotifier 把订单通知 POST 到执行端点
//
// fire-and-forget：通知在独立 goroutine 里发送，失败只记日志和计数，
// 不回滚镜像状态也不重放。参考价只是镜像当时的观测价，执行端自行决定
// 实际成交方式。
type HTTPNotifier struct {
	client   *resty.Client
	endpoint string
	failures atomic.Int64
}

type orderPayload struct {
	Action         string  `json:"action"`
	Symbol         string  `json:"symbol"`
	ReferencePrice float64 `json:"reference_price"`
	Quantity       int64   `json:"quantity"`
	At             int64   `json:"at_ms"`
}

// NewHTTPNotifier 创建通知器，endpoint 为完整 URL
func NewHTTPNotifier(endpoint string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	return &HTTPNotifier{
		client:   client,
		endpoint: strings.TrimSuffix(endpoint, "/"),
	}
}

// Notify 异步发送一条订单通知
func (n *HTTPNotifier) Notify(notification events.OrderNotification) {
	go n.send(notification)
}

func (n *HTTPNotifier) send(notification events.OrderNotification) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	payload := orderPayload{
		Action:         string(notification.Action),
		Symbol:         notification.Symbol,
		ReferencePrice: notification.ReferencePrice,
		Quantity:       notification.Quantity,
		At:             notification.At.UnixMilli(),
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.endpoint)
	if err != nil {
		n.failures.Add(1)
		log.Errorf("❌ 订单通知发送失败: %s %s err=%v", payload.Action, payload.Symbol, err)
		return
	}
	if resp.IsError() {
		n.failures.Add(1)
		log.Errorf("❌ 订单通知被拒: %s %s status=%d body=%s",
			payload.Action, payload.Symbol, resp.StatusCode(), resp.String())
		return
	}
	log.Infof("📤 订单通知已送达: %s %s price=%.2f qty=%d",
		payload.Action, payload.Symbol, payload.ReferencePrice, payload.Quantity)
}

// Failures 累计发送失败次数（监控用）
func (n *HTTPNotifier) Failures() int64 {
	return n.failures.Load()
}

// LogNotifier 只记日志的通知器，dry-run 模式用
type LogNotifier struct{}

func (LogNotifier) Notify(n events.OrderNotification) {
	log.Infof("🧪 [dry-run] 订单通知: %s %s price=%.2f qty=%d",
		n.Action, n.Symbol, n.ReferencePrice, n.Quantity)
}
