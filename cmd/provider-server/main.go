package main

import (
	"context"
	"errors"
	"os"
	"time"

	"wallet-provider/internal/approval"
	"wallet-provider/internal/chains"
	"wallet-provider/internal/gateway"
	"wallet-provider/internal/handler"
	"wallet-provider/internal/model"
	"wallet-provider/internal/notify"
	"wallet-provider/internal/originlock"
	"wallet-provider/internal/provider"
	"wallet-provider/internal/relay"
	"wallet-provider/internal/rpccache"
	"wallet-provider/internal/server"
	"wallet-provider/internal/service/mq"
	"wallet-provider/internal/session"
	"wallet-provider/internal/signer"
	"wallet-provider/internal/store"
	"wallet-provider/internal/txmanager"
	"wallet-provider/internal/watcher"
	"wallet-provider/pkg/cache"
	"wallet-provider/pkg/config"
	"wallet-provider/pkg/database"
	"wallet-provider/pkg/keystore"
	"wallet-provider/pkg/logger"
	"wallet-provider/pkg/monitor"
	"wallet-provider/pkg/utils/lock"
	"wallet-provider/pkg/validator"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// @title Wallet Provider API
// @version 1.0
// @description dapp request mediation: JSON-RPC entry, approval desk and wallet state
// @BasePath /api/v1
func main() {
	// 0. 初始化 Config
	config.Init()
	cfg := config.Global

	// 1. 初始化 Logger / 校验器 / 监控指标
	logger.Init(cfg.App.Env, cfg.App.LogFile)
	defer logger.Sync()
	validator.Init()
	monitor.Init()

	// 2. 连接数据库
	db := openDB(cfg)

	// 3. 连接 Redis (可选)
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		var err error
		if rdb, err = database.ConnectRedis(cfg.Redis); err != nil {
			logger.Fatal("Redis 连接失败", zap.Error(err))
		}
		defer rdb.Close()
	}

	// 4. session 存储与 origin 锁
	var (
		kv      cache.Cache
		assets  cache.Cache
		locker  lock.DistributedLock
		lockTTL time.Duration // 进程内锁随进程消失，不设过期
	)
	local := cache.NewMemoryCache(0, 0)
	if rdb != nil {
		remote := cache.NewRedisCache(rdb, "provider:")
		kv = remote
		assets = cache.NewMultiLevelCache(local, remote, 30*time.Second)
		locker = lock.NewRedisLock(rdb)
		lockTTL = cfg.Approval.LockTTL
	} else {
		kv, assets = local, local
		locker = lock.NewMemoryLock()
	}

	// 5. 初始化消息队列
	producer, consumer := openMQ(cfg, rdb)
	defer consumer.Close()

	// 6. 链、节点网关、中继
	table, err := chains.New(cfg.Chains)
	if err != nil {
		logger.Fatal("链配置无效", zap.Error(err))
	}
	gw := gateway.New(table, cfg.Relay.Timeout)
	defer gw.Close()

	var (
		rl      relay.Relay
		tracker relay.Tracker
	)
	if cfg.Relay.Mode == "http" {
		logger.Info("使用 HTTP 中继服务", zap.String("url", cfg.Relay.Url))
		hr := relay.NewHTTPRelay(cfg.Relay.Url, cfg.Relay.Timeout)
		rl, tracker = hr, hr
	} else {
		logger.Info("直接通过节点广播交易")
		rl = relay.NewDirectRelay(gw)
	}

	// 7. 签名器
	keyring := openKeyring(cfg.Wallet)
	state := session.NewState(common.Address{}, cfg.Wallet.DefaultChainID)
	if cfg.Wallet.Password != "" {
		if err := keyring.Unlock(cfg.Wallet.Password); err != nil {
			logger.Warn("启动时解锁失败，等待 dapp 请求时解锁", zap.Error(err))
		}
	}
	if accts := keyring.Accounts(); len(accts) > 0 {
		state.InitAccount(accts[0])
	}

	// 8. 通知：先落 outbox，再由 OutboxRelay 搬运到 MQ
	notifier := notify.NewOutboxNotifier(db, cfg.Kafka.Topic)
	outboxRelay := notify.NewOutboxRelay(db, producer)

	// 9. 交易记录、观察者
	pending := store.NewPendingStore(db)
	watchers := watcher.NewRegistry()
	if n, err := watcher.Restore(context.Background(), watchers, pending); err != nil {
		logger.Error("恢复交易观察失败", zap.Error(err))
	} else {
		logger.Info("交易观察已恢复", zap.Int("count", n))
	}
	poller := watcher.NewPoller(watchers, gw, tracker, pending, notifier, locker, cfg.Watcher.Schedule)
	relayEvents := watcher.NewConsumer(watchers, pending, consumer, cfg.Relay.Topic)

	tx := txmanager.New(txmanager.Deps{
		Gateway:  gw,
		Signer:   keyring,
		Relay:    rl,
		Store:    pending,
		Watchers: watchers,
		Notifier: notifier,
		Chains:   table,
	})

	// 10. 审批
	desk := approval.NewDesk()
	broker := approval.NewBroker(desk, notifier, cfg.Approval.QueueSize)

	// 11. Provider
	p, err := provider.New(provider.Deps{
		Locks:          originlock.New(locker, lockTTL),
		Cache:          rpccache.New(cfg.Cache.RpcTTL),
		Broker:         broker,
		Tx:             tx,
		Sessions:       session.NewStore(kv),
		Assets:         session.NewAssetStore(assets),
		State:          state,
		Signer:         keyring,
		Gateway:        gw,
		Chains:         table,
		Store:          pending,
		InternalOrigin: cfg.Wallet.InternalOrigin,
	})
	if err != nil {
		logger.Fatal("初始化 Provider 失败", zap.Error(err))
	}

	// 12. HTTP Router
	r := server.NewHTTPRouter(server.Handlers{
		RPC:      handler.NewRPCHandler(p, cfg.Wallet.InternalOrigin),
		Approval: handler.NewApprovalHandler(desk, broker),
		Wallet:   handler.NewWalletHandler(keyring, state, table),
		Limiter:  server.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
	})

	// 13. 启动应用 (阻塞)
	app := server.New(server.Config{HttpPort: cfg.App.HttpPort}, r,
		server.Runner{Name: "approval-broker", Run: func(ctx context.Context) error {
			broker.Run(ctx)
			return nil
		}},
		server.Runner{Name: "outbox-relay", Run: func(ctx context.Context) error {
			outboxRelay.Start(ctx)
			return nil
		}},
		server.Runner{Name: "relay-events", Run: relayEvents.Run},
		server.Runner{Name: "watcher-poller", Run: func(ctx context.Context) error {
			if err := poller.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			poller.Stop()
			return nil
		}},
	)
	if err := app.Run(); err != nil {
		logger.Error("应用异常退出", zap.Error(err))
	}

	// 14. 退出后资源清理
	logger.Info("正在关闭数据库连接...")
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Info("系统已退出")
}

func openDB(cfg config.Config) *gorm.DB {
	if cfg.DB.Driver == "memory" {
		logger.Info("使用 sqlite 内存库 (数据不会持久化)")
		db, err := store.OpenMemory()
		if err != nil {
			logger.Fatal("打开内存库失败", zap.Error(err))
		}
		return db
	}

	db, err := database.ConnectPostgres(database.DSN(cfg.DB), cfg.App.Env)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	if cfg.App.Env == "development" {
		logger.Info("开发环境: 尝试自动迁移 Schema (GORM AutoMigrate)...")
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			logger.Fatal("数据库自动迁移失败", zap.Error(err))
		}
	} else {
		logger.Info("生产环境: 跳过 AutoMigrate，请使用 migrate 工具管理 Schema")
	}
	return db
}

func openMQ(cfg config.Config, rdb *redis.Client) (mq.Producer, mq.Consumer) {
	switch {
	case cfg.Redis.MQType == "kafka":
		logger.Info("使用 Kafka 作为消息队列...")
		return mq.NewKafkaProducer(cfg.Kafka.Brokers), mq.NewKafkaConsumer(cfg.Kafka.Brokers, "wallet_provider_group")
	case cfg.Redis.MQType == "redis" && rdb != nil:
		logger.Info("使用 Redis Streams 作为消息队列...")
		host, _ := os.Hostname()
		return mq.NewRedisProducer(rdb), mq.NewRedisConsumer(rdb, "wallet_provider", host)
	default:
		logger.Info("使用进程内消息队列...")
		m := mq.NewMemory(256)
		return m, m
	}
}

// openKeyring 优先加载加密的 keyring 文件，开发环境可以直接配置助记词
func openKeyring(c config.WalletConfig) *signer.HDKeyring {
	vault, err := keystore.LoadFromFile(c.KeystorePath)
	switch {
	case err == nil:
		kr, err := signer.NewHDKeyring(vault, c.DerivationPath, c.Accounts)
		if err != nil {
			logger.Fatal("加载 keyring 失败", zap.Error(err))
		}
		logger.Info("keyring 已加载", zap.String("path", c.KeystorePath))
		return kr
	case errors.Is(err, os.ErrNotExist) && c.Mnemonic != "":
		logger.Warn("keyring 文件不存在，使用配置中的助记词 (仅限开发环境)")
		kr, err := signer.NewHDKeyringFromMnemonic(c.Mnemonic, c.Password, c.DerivationPath, c.Accounts)
		if err != nil {
			logger.Fatal("加载助记词失败", zap.Error(err))
		}
		return kr
	default:
		logger.Fatal("找不到 keyring，请先执行 provider-cli init", zap.String("path", c.KeystorePath), zap.Error(err))
		return nil
	}
}
