package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/signalbot/gotick/internal/engine"
	"github.com/signalbot/gotick/internal/events"
	"github.com/signalbot/gotick/internal/journal"
)

var log = logrus.WithField("component", "server")

// Config HTTP 服务配置
type Config struct {
	Listen string // 监听地址，如 ":8080"
}

// Server webhook 入口 + 快照查询 API
//
// webhook 只做解析和进队，所有决策在标的 worker 里发生；
// 查询走无锁快照，任何读都不会阻塞事件处理。
type Server struct {
	cfg        Config
	engine     *engine.Engine
	dispatcher *engine.Dispatcher
	journal    *journal.Journal // 可为 nil（未配置流水库）
	httpServer *http.Server
}

// New 创建服务
func New(cfg Config, eng *engine.Engine, d *engine.Dispatcher, j *journal.Journal) *Server {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	return &Server{cfg: cfg, engine: eng, dispatcher: d, journal: j}
}

// webhookPayload TradingView 风格的信号载荷
// intent/side 二选一即可，stop_price 只对 BUY 有意义。
type webhookPayload struct {
	Symbol    string   `json:"symbol" binding:"required"`
	Intent    string   `json:"intent"`
	Side      string   `json:"side"`
	StopPrice *float64 `json:"stop_price"`
	AtMs      int64    `json:"at_ms"` // 事件时间（毫秒），缺省取服务器时间
}

// Router 组装路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/webhook", s.handleWebhook)

	api := r.Group("/api")
	api.GET("/instruments", s.handleInstrumentsList)
	api.GET("/instruments/:key", s.handleInstrumentGet)
	api.POST("/instruments/:key/clear", s.handleInstrumentClear)
	api.GET("/trades/paper", s.handleTrades(func(ctx context.Context, key string, n int) ([]journal.ClosedRecord, error) {
		return s.journal.LastPaper(ctx, key, n)
	}))
	api.GET("/trades/live", s.handleTrades(func(ctx context.Context, key string, n int) ([]journal.ClosedRecord, error) {
		return s.journal.LastLive(ctx, key, n)
	}))

	return r
}

func (s *Server) handleWebhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	at := time.Now()
	if payload.AtMs > 0 {
		at = time.UnixMilli(payload.AtMs)
	}
	s.dispatcher.SubmitSignal(events.SignalEvent{
		Symbol:     payload.Symbol,
		Intent:     payload.Intent,
		Side:       payload.Side,
		StopPrice:  payload.StopPrice,
		ReceivedAt: at,
	})
	// 进队即成功，webhook 端不等待决策结果
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) handleInstrumentsList(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshots())
}

func (s *Server) handleInstrumentGet(c *gin.Context) {
	snap := s.engine.Snapshot(canonicalKey(c.Param("key")))
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleInstrumentClear(c *gin.Context) {
	symbol := strings.TrimPrefix(c.Param("key"), "s:")
	if !s.dispatcher.Clear(symbol) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown instrument"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// canonicalKey 路径参数既接受裸 symbol 也接受 "s:"/"t:" 前缀的标的键
func canonicalKey(raw string) string {
	if strings.HasPrefix(raw, "s:") || strings.HasPrefix(raw, "t:") {
		return raw
	}
	return "s:" + strings.ToUpper(strings.TrimSpace(raw))
}

func (s *Server) handleTrades(query func(context.Context, string, int) ([]journal.ClosedRecord, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.journal == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
			return
		}
		n, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		recs, err := query(c.Request.Context(), c.Query("key"), n)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if recs == nil {
			recs = []journal.ClosedRecord{}
		}
		c.JSON(http.StatusOK, recs)
	}
}

// Start 异步启动 HTTP 服务
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("🌐 HTTP 服务监听 %s", s.cfg.Listen)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP 服务异常退出: %v", err)
		}
	}()
}

// Stop 优雅关停
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
