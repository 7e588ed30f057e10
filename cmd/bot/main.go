package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/signalbot/gotick/internal/directory"
	"github.com/signalbot/gotick/internal/domain"
	"github.com/signalbot/gotick/internal/engine"
	"github.com/signalbot/gotick/internal/events"
	"github.com/signalbot/gotick/internal/execution"
	"github.com/signalbot/gotick/internal/infrastructure/websocket"
	"github.com/signalbot/gotick/internal/journal"
	"github.com/signalbot/gotick/internal/server"
	"github.com/signalbot/gotick/pkg/config"
	"github.com/signalbot/gotick/pkg/logger"
	"github.com/signalbot/gotick/pkg/shutdown"
	"github.com/signalbot/gotick/pkg/tickcache"
)

func main() {
	var (
		configPath string
		envPath    string
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径（YAML，可选）")
	flag.StringVar(&envPath, "env", ".env", "环境变量文件路径")
	flag.Parse()

	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("加载环境变量文件失败: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Errorf("加载配置失败: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		logrus.Errorf("初始化日志失败: %v", err)
		os.Exit(1)
	}
	log := logger.WithField("component", "main")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 1. 标的目录：本地文件优先，其次 HTTP 元数据源
	dir, err := loadDirectory(rootCtx, cfg)
	if err != nil {
		log.Errorf("加载标的目录失败: %v", err)
		os.Exit(1)
	}

	mgr := shutdown.NewManager()

	// 2. 交易流水库（可选）
	var sink engine.TradeSink
	var jnl *journal.Journal
	if cfg.JournalPath != "" {
		jnl, err = journal.Open(cfg.JournalPath)
		if err != nil {
			log.Errorf("打开交易流水库失败: %v", err)
			os.Exit(1)
		}
		sink = jnl
		mgr.OnShutdown(func(ctx context.Context) {
			log.Info("正在关闭交易流水库...")
			if err := jnl.Close(); err != nil {
				log.Warnf("关闭交易流水库失败: %v", err)
			}
		})
	}

	// 3. 订单通知器：未配置端点时 dry-run
	var notifier execution.Notifier
	if cfg.OrderEndpoint != "" {
		notifier = execution.NewHTTPNotifier(cfg.OrderEndpoint, 5*time.Second)
		log.Infof("订单通知端点: %s", cfg.OrderEndpoint)
	} else {
		notifier = execution.LogNotifier{}
		log.Info("🧪 未配置订单端点，实盘通知走 dry-run 日志")
	}

	eng := engine.New(engine.Config{
		FixedNotional:     cfg.Engine.FixedNotional,
		OpenThreshold:     cfg.Engine.OpenThreshold,
		CloseThreshold:    cfg.Engine.CloseThreshold,
		ClosedTradeWindow: cfg.Engine.ClosedTradeWindow,
	}, dir, notifier.Notify, sink)

	// 4. tick 缓存：重启后用最近成交价预热阈值回退链
	var cache *tickcache.Cache
	if cfg.TickCachePath != "" {
		cache, err = tickcache.Open(cfg.TickCachePath)
		if err != nil {
			log.Errorf("打开 tick 缓存失败: %v", err)
			os.Exit(1)
		}
		warmed := 0
		_ = cache.Walk(func(key string, entry tickcache.Entry) {
			k, ok := domain.ParseKey(key)
			if !ok {
				return
			}
			eng.SeedPrice(k, entry.Price, entry.At)
			warmed++
		})
		log.Infof("♨️ tick 缓存预热完成: %d 个标的", warmed)
		mgr.OnShutdown(func(ctx context.Context) {
			log.Info("正在关闭 tick 缓存...")
			if err := cache.Close(); err != nil {
				log.Warnf("关闭 tick 缓存失败: %v", err)
			}
		})
	}

	dispatcher := engine.NewDispatcher(eng, cfg.Engine.QueueSize)
	feeder := &cachingSink{dispatcher: dispatcher, dir: dir, cache: cache}

	// 5. 行情流（可选，未配置时事件只来自 webhook）
	if cfg.Stream.TickURL != "" {
		tokens := make([]uint32, 0)
		for _, ins := range dir.Instruments() {
			if ins.Token != 0 {
				tokens = append(tokens, ins.Token)
			}
		}
		tickStream := websocket.NewTickStream(cfg.Stream.TickURL, tokens, feeder)
		go func() {
			if err := tickStream.Run(rootCtx); err != nil {
				log.Errorf("tick 流退出: %v", err)
			}
		}()
	}
	if cfg.Stream.FeedURL != "" {
		feedStream := websocket.NewFeedStream(cfg.Stream.FeedURL, cfg.Stream.FeedSymbols, feeder)
		go func() {
			if err := feedStream.Run(rootCtx); err != nil {
				log.Errorf("feed 流退出: %v", err)
			}
		}()
	}

	// 6. HTTP 服务：webhook 入口 + 快照查询
	srv := server.New(server.Config{Listen: cfg.Listen}, eng, dispatcher, jnl)
	srv.Start()

	mgr.OnShutdown(func(ctx context.Context) {
		log.Info("正在关闭 HTTP 服务...")
		if err := srv.Stop(ctx); err != nil {
			log.Warnf("关闭 HTTP 服务失败: %v", err)
		}
	})
	mgr.OnShutdown(func(ctx context.Context) {
		log.Info("正在停止事件分发器...")
		dispatcher.Shutdown()
	})

	log.Info("✅ 信号机器人已启动，按 Ctrl+C 停止")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("收到停止信号，正在关闭...")
	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)

	log.Info("👋 已退出")
}

// loadDirectory 本地元数据文件存在则用，否则从 HTTP 源拉取
func loadDirectory(ctx context.Context, cfg *config.Config) (*directory.Service, error) {
	if cfg.Directory.Path != "" {
		if _, err := os.Stat(cfg.Directory.Path); err == nil {
			return directory.LoadFromFile(cfg.Directory.Path, cfg.Stream.FeedSymbols)
		}
	}
	return directory.Fetch(ctx, cfg.Directory.URL, cfg.Stream.FeedSymbols)
}

// cachingSink 行情事件进队前顺带写 tick 缓存，供下次启动预热
type cachingSink struct {
	dispatcher *engine.Dispatcher
	dir        directory.Lookup
	cache      *tickcache.Cache
}

func (s *cachingSink) SubmitTick(ev events.TickEvent) {
	if s.cache != nil && ev.LastPrice > 0 {
		key := domain.KeyFromToken(ev.InstrumentToken)
		if sym, ok := s.dir.LookupSymbol(ev.InstrumentToken); ok {
			key = domain.KeyFromSymbol(sym)
		}
		s.cache.Put(key.String(), ev.LastPrice, ev.ReceivedAt)
	}
	s.dispatcher.SubmitTick(ev)
}

func (s *cachingSink) SubmitFeedPrice(ev events.FeedPriceEvent) {
	if s.cache != nil && ev.Price > 0 && ev.Symbol != "" {
		s.cache.Put(domain.KeyFromSymbol(ev.Symbol).String(), ev.Price, ev.ReceivedAt)
	}
	s.dispatcher.SubmitFeedPrice(ev)
}
