package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/signalbot/gotick/pkg/sigchan"
	"github.com/signalbot/gotick/pkg/syncgroup"
)

var log = logrus.WithField("component", "stream")

const (
	reconnectCoolDownPeriod = 15 * time.Second
	handshakeTimeout        = 30 * time.Second
	pingInterval            = 10 * time.Second
	readTimeout             = 30 * time.Second
	writeTimeout            = 10 * time.Second
)

// stream WebSocket 连接的公共骨架
//
// tick 流和 feed 流共用同一套连接管理：信号驱动的重连器、读循环、
// ping 循环。差异只在订阅消息和数据消息的解析，由宿主通过回调注入。
// 断线重连期间丢失的事件不补发，价格流按最新值语义工作。
type stream struct {
	name      string
	url       string
	subscribe func(*websocket.Conn) error // 连接建立后发送订阅
	onMessage func([]byte)                // 数据消息回调（读循环 goroutine 调用）

	conn       *websocket.Conn
	connCancel context.CancelFunc
	connMu     sync.Mutex

	reconnectC *sigchan.Chan
	closeC     chan struct{}
	closeOnce  sync.Once

	sg     *syncgroup.SyncGroup // 重连器
	connSg *syncgroup.SyncGroup // 每条连接的读/ping goroutine
}

func newStream(name, url string) *stream {
	return &stream{
		name:       name,
		url:        url,
		reconnectC: sigchan.New(1),
		closeC:     make(chan struct{}),
		sg:         syncgroup.NewSyncGroup(),
		connSg:     syncgroup.NewSyncGroup(),
	}
}

// Connect 建立连接并启动重连器
func (s *stream) Connect(ctx context.Context) error {
	s.sg.Add(func() { s.reconnector(ctx) })
	s.sg.Run()
	return s.dialAndConnect(ctx)
}

func (s *stream) dialAndConnect(ctx context.Context) error {
	select {
	case <-s.closeC:
		return fmt.Errorf("%s 流已关闭，取消重连", s.name)
	default:
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("%s 流拨号失败: %w", s.name, err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout * 2))
	})

	connCtx := s.setConn(ctx, conn)
	s.connSg.WaitAndClear()
	s.connSg.Add(func() { s.read(connCtx, conn) })
	s.connSg.Add(func() { s.ping(connCtx, conn) })
	s.connSg.Run()

	if s.subscribe != nil {
		if err := s.subscribe(conn); err != nil {
			conn.Close()
			return fmt.Errorf("%s 流订阅失败: %w", s.name, err)
		}
	}
	log.Infof("🔌 %s 流已连接: %s", s.name, s.url)
	return nil
}

// setConn 原子替换连接，取消旧连接的 goroutine
func (s *stream) setConn(ctx context.Context, conn *websocket.Conn) context.Context {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.connCancel != nil {
		s.connCancel()
	}
	connCtx, cancel := context.WithCancel(ctx)
	s.conn = conn
	s.connCancel = cancel
	return connCtx
}

// Reconnect 触发一次重连（信号合并，重复触发无副作用）
func (s *stream) Reconnect() {
	s.reconnectC.Emit()
}

func (s *stream) reconnector(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeC:
			return
		case <-s.reconnectC.C():
			log.Warnf("%s 流收到重连信号，冷却 %s...", s.name, reconnectCoolDownPeriod)
			select {
			case <-ctx.Done():
				return
			case <-s.closeC:
				return
			case <-time.After(reconnectCoolDownPeriod):
			}
			if err := s.dialAndConnect(ctx); err != nil {
				log.Warnf("%s 流重连失败: %v，将再次尝试", s.name, err)
				s.Reconnect()
			}
		}
	}
}

func (s *stream) read(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeC:
			return
		default:
		}

		// deadline 让 ReadMessage 至多阻塞 readTimeout，超时用于周期性检查 ctx
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("%s 流正常关闭", s.name)
				return
			}
			if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
				continue
			}
			log.Warnf("%s 流读取错误: %v，触发重连", s.name, err)
			_ = conn.Close()
			s.Reconnect()
			return
		}
		if s.onMessage != nil {
			s.onMessage(message)
		}
	}
}

func (s *stream) ping(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeC:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Warnf("%s 流发送 PING 失败: %v，触发重连", s.name, err)
				s.Reconnect()
				return
			}
		}
	}
}

// Close 关闭流并等待所有 goroutine 退出
func (s *stream) Close() {
	s.closeOnce.Do(func() { close(s.closeC) })
	s.connMu.Lock()
	if s.connCancel != nil {
		s.connCancel()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.connMu.Unlock()
	s.connSg.WaitAndClear()
	s.sg.WaitAndClear()
	log.Infof("%s 流已关闭", s.name)
}
