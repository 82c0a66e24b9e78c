package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradexec/internal/api"
	"tradexec/internal/bot"
	"tradexec/internal/config"
	"tradexec/internal/exchange"
	"tradexec/internal/models"
	"tradexec/internal/repository"
	"tradexec/internal/service"
	"tradexec/internal/websocket"
	"tradexec/pkg/crypto"
	"tradexec/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Логгер инициализируется сразу после конфигурации,
	// дальше весь вывод идёт через него
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		utils.Fatal("failed to connect to database", utils.Err(err))
	}
	defer db.Close()

	utils.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	store := repository.NewStore(db)

	// Ключ шифрования проверен в config.Load, здесь только декодируем
	encryptionKey, err := crypto.KeyFromBase64(cfg.Security.EncryptionKey)
	if err != nil {
		utils.Fatal("invalid encryption key", utils.Err(err))
	}

	accountService := service.NewAccountService(store.Accounts, encryptionKey)

	// Основной шлюз исполнения
	gateway, err := buildGateway(cfg, accountService, cfg.Gateway.Name)
	if err != nil {
		utils.Fatal("failed to initialize gateway", utils.Err(err))
	}
	defer gateway.Close()

	// Резервный шлюз для аварийного закрытия, nil допустим
	var backup exchange.Gateway
	if cfg.Gateway.BackupName != "" {
		backup, err = buildGateway(cfg, accountService, cfg.Gateway.BackupName)
		if err != nil {
			utils.Warn("backup gateway unavailable, emergency exits will use primary only",
				utils.String("gateway", cfg.Gateway.BackupName), utils.Err(err))
			backup = nil
		} else {
			defer backup.Close()
		}
	}

	// Учётный капитал берётся с баланса шлюза, сверка при восстановлении
	// поправит его, если запрос не удался
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	capital, err := gateway.GetBalance(startupCtx)
	startupCancel()
	if err != nil {
		utils.Warn("failed to fetch gateway balance, capital starts at zero", utils.Err(err))
		capital = 0
	}

	// Сборка торгового ядра
	notifChan := make(chan *models.Notification, cfg.Execution.EventBuffer)
	registry := bot.NewPositionRegistry()
	sizer := bot.NewPositionSizer(cfg.Sizer)
	risk := bot.NewRiskManager(capital, cfg.Risk, notifChan)

	var backupOrders exchange.OrderGateway
	if backup != nil {
		backupOrders = backup
	}
	emergency := bot.NewEmergencyController(gateway, backupOrders, gateway, cfg.Emergency, notifChan)

	coordinator := bot.NewExecutionCoordinator(
		registry,
		sizer,
		risk,
		emergency,
		gateway,
		gateway,
		store,
		cfg.Execution,
		notifChan,
	)

	monitor := bot.NewPositionMonitor(registry, gateway, cfg.Monitor, func(ctx context.Context, req *models.ExitRequest) {
		if err := coordinator.HandleExitRequest(ctx, req); err != nil {
			utils.Error("exit request failed", utils.PositionID(req.PositionID), utils.Err(err))
		}
	})
	coordinator.SetMonitor(monitor)

	// WebSocket hub для real-time обновлений UI
	hub := websocket.NewHub()
	go hub.Run()

	engine := bot.NewEngine(cfg, gateway, coordinator, registry, risk, emergency, notifChan, hub, store)

	// Контекст ядра отменяется при завершении процесса
	coreCtx, coreCancel := context.WithCancel(context.Background())
	defer coreCancel()

	// Восстановление незавершённых позиций до старта движка
	recovery := bot.NewRecoveryManager(store, registry, risk, monitor, coordinator, gateway, notifChan, nil)
	if result, err := recovery.Recover(coreCtx); err != nil {
		utils.Error("recovery failed, continuing with empty registry", utils.Err(err))
	} else if result.PositionsLoaded > 0 {
		utils.Info("recovery complete",
			utils.Int("loaded", result.PositionsLoaded),
			utils.Int("monitors_resumed", result.MonitorsResumed),
			utils.Int("closes_replayed", result.ClosesReplayed),
			utils.Int("entries_failed", result.EntriesFailed))
	}

	go func() {
		if err := engine.Run(coreCtx); err != nil {
			utils.Error("engine stopped with error", utils.Err(err))
		}
	}()

	for _, asset := range cfg.Gateway.TrackedAssets {
		if err := engine.TrackAsset(asset); err != nil {
			utils.Warn("failed to subscribe to price stream", utils.Asset(asset), utils.Err(err))
		}
	}

	// Инициализация сервисов
	positionService := service.NewPositionService(registry, coordinator, store.Positions)
	riskService := service.NewRiskService(risk)
	statsService := service.NewStatsService(store.Stats, store.Trades)
	settingsService := service.NewSettingsService(store.Settings)
	notificationService := service.NewNotificationService(store.Notifications, store.Settings)
	notificationService.SetWebSocketHub(hub)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		PositionService:     positionService,
		RiskService:         riskService,
		StatsService:        statsService,
		SettingsService:     settingsService,
		NotificationService: notificationService,
		AccountService:      accountService,
		WSHandler: func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		},
	}

	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		utils.Info("starting server", utils.String("addr", server.Addr),
			utils.String("gateway", gateway.Name()),
			utils.Bool("dry_run", cfg.Execution.DryRun))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				utils.Fatal("server failed", utils.Err(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				utils.Fatal("server failed", utils.Err(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Info("shutting down")

	// Порядок: сначала ядро (мониторы дописывают состояние в БД),
	// потом hub и HTTP сервер
	coreCancel()
	engine.Stop()
	monitor.StopAll()
	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		utils.Error("server forced to shutdown", utils.Err(err))
	}

	utils.Info("server exited")
}

// buildGateway создает шлюз и подключает его с сохранёнными учётными данными
//
// Приоритет ключей: сохранённые в БД (через AccountService), затем переменные
// окружения. Paper-шлюз не требует ключей.
func buildGateway(cfg *config.Config, accounts *service.AccountService, name string) (exchange.Gateway, error) {
	if name == "paper" {
		gw := exchange.NewPaper(cfg.Gateway.PaperBalance)
		if err := gw.Connect("", ""); err != nil {
			return nil, err
		}
		return gw, nil
	}

	gw, err := exchange.NewGateway(name)
	if err != nil {
		return nil, err
	}

	apiKey, secretKey, err := accounts.Credentials(name)
	if err != nil || apiKey == "" {
		apiKey = cfg.Gateway.APIKey
		secretKey = cfg.Gateway.SecretKey
	}

	if err := gw.Connect(apiKey, secretKey); err != nil {
		if updErr := accounts.UpdateConnection(name, false, err.Error()); updErr != nil {
			utils.Warn("failed to record gateway connection state", utils.Err(updErr))
		}
		return nil, fmt.Errorf("gateway %s connect: %w", name, err)
	}

	if err := accounts.UpdateConnection(name, true, ""); err != nil {
		utils.Warn("failed to record gateway connection state", utils.Err(err))
	}

	return gw, nil
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
