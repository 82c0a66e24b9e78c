//go:build integration

// Package integration contains integration tests for the trading execution core.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle
// - WebSocket tests: connection, broadcast messaging
// - Database tests: repositories against a real PostgreSQL instance
// - Lifecycle tests: entry and exit against the paper gateway
//
// Integration tests use build tag "integration" to separate from unit tests.
// Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
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

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
)

// testAsset is the asset used by lifecycle tests
const testAsset = "BTCUSDT"

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB          *sql.DB
	Router      *mux.Router
	Server      *httptest.Server
	Hub         *websocket.Hub
	Gateway     *exchange.Paper
	Store       *repository.Store
	Registry    *bot.PositionRegistry
	Risk        *bot.RiskManager
	Coordinator *bot.ExecutionCoordinator
	Monitor     *bot.PositionMonitor
	Services    *TestServices
	Cleanup     func()
}

// TestServices contains all service instances for testing
type TestServices struct {
	Position     *service.PositionService
	Risk         *service.RiskService
	Stats        *service.StatsService
	Settings     *service.SettingsService
	Notification *service.NotificationService
	Account      *service.AccountService
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "tradexec_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	cfg := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)

	db, err := sql.Open(cfg.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestServer creates a complete test server with the execution core,
// services, HTTP router and WebSocket hub wired to a paper gateway
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}

	hub := websocket.NewHub()
	go hub.Run()

	store := repository.NewStore(db)

	// Paper gateway with a funded account and a priced asset
	gateway := exchange.NewPaper(50000)
	gateway.SetPrice(testAsset, 50000)
	gateway.SetLiquidity(testAsset, 1000000)

	notifChan := make(chan *models.Notification, 64)

	registry := bot.NewPositionRegistry()
	sizer := bot.NewPositionSizer(config.SizerConfig{
		BaseFraction:         0.02,
		VolatilityMultiplier: 2.0,
		MaxPositionSize:      10000,
		MinPositionSize:      10,
		LiquidityFactor:      20,
	})
	risk := bot.NewRiskManager(50000, config.RiskConfig{
		MaxDrawdown:          0.15,
		MaxDailyLoss:         0.05,
		MaxOpenPositions:     5,
		MaxExposure:          50000,
		BaseStopLossPct:      0.02,
		RiskRewardRatio:      3.0,
		VolatilityMultiplier: 2.0,
		MinConfidence:        0.5,
		MaxRiskScore:         0.8,
	}, notifChan)
	emergency := bot.NewEmergencyController(gateway, nil, gateway, config.EmergencyConfig{
		PriceDropThreshold:     -0.15,
		VolatilitySpikeFactor:  3.0,
		LiquidityDropThreshold: 2.0,
		MaxNetworkLatencyMs:    2000,
		ErrorRateThreshold:     0.3,
		ErrorWindow:            time.Minute,
		SplitThreshold:         5000,
		SplitChunks:            3,
		VerifyTimeout:          time.Second,
	}, notifChan)

	coordinator := bot.NewExecutionCoordinator(
		registry, sizer, risk, emergency, gateway, gateway, store,
		config.ExecutionConfig{
			MaxRetries:   2,
			RetryBackoff: 10 * time.Millisecond,
			OrderTimeout: time.Second,
			DryRun:       true,
			EventBuffer:  64,
		},
		notifChan,
	)

	monitor := bot.NewPositionMonitor(registry, gateway, config.MonitorConfig{
		PollInterval:    20 * time.Millisecond,
		TrailingStopPct: 0.015,
	}, func(ctx context.Context, req *models.ExitRequest) {
		if err := coordinator.HandleExitRequest(ctx, req); err != nil {
			log.Printf("exit request failed: %v", err)
		}
	})
	coordinator.SetMonitor(monitor)

	// Persist and broadcast notifications the way the engine does
	drainCtx, drainCancel := context.WithCancel(context.Background())
	go func() {
		for {
			select {
			case <-drainCtx.Done():
				return
			case notif := <-notifChan:
				if err := store.SaveNotification(drainCtx, notif); err != nil && drainCtx.Err() == nil {
					log.Printf("failed to save notification: %v", err)
				}
				hub.BroadcastNotification(notif)
			}
		}
	}()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate encryption key: %v", err)
	}

	services := &TestServices{
		Position:     service.NewPositionService(registry, coordinator, store.Positions),
		Risk:         service.NewRiskService(risk),
		Stats:        service.NewStatsService(store.Stats, store.Trades),
		Settings:     service.NewSettingsService(store.Settings),
		Notification: service.NewNotificationService(store.Notifications, store.Settings),
		Account:      service.NewAccountService(store.Accounts, key),
	}
	services.Notification.SetWebSocketHub(hub)

	deps := &api.Dependencies{
		PositionService:     services.Position,
		RiskService:         services.Risk,
		StatsService:        services.Stats,
		SettingsService:     services.Settings,
		NotificationService: services.Notification,
		AccountService:      services.Account,
		WSHandler: func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		},
	}
	router := api.SetupRoutes(deps)

	server := httptest.NewServer(router)

	cleanup := func() {
		drainCancel()
		monitor.StopAll()
		server.Close()
		hub.Stop()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:          db,
		Router:      router,
		Server:      server,
		Hub:         hub,
		Gateway:     gateway,
		Store:       store,
		Registry:    registry,
		Risk:        risk,
		Coordinator: coordinator,
		Monitor:     monitor,
		Services:    services,
		Cleanup:     cleanup,
	}
}

// initTestTables creates or truncates tables for testing
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id VARCHAR(36) PRIMARY KEY,
			asset VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			entry_price DECIMAL(20, 8) DEFAULT 0,
			size DECIMAL(20, 8) DEFAULT 0,
			requested_size DECIMAL(20, 8) DEFAULT 0,
			stop_loss_initial DECIMAL(20, 8) DEFAULT 0,
			stop_loss_trailing DECIMAL(20, 8) DEFAULT 0,
			stop_loss_is_trailing BOOLEAN DEFAULT false,
			take_profit_target DECIMAL(20, 8) DEFAULT 0,
			opened_at TIMESTAMP NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMP,
			exit_price DECIMAL(20, 8) DEFAULT 0,
			exit_reason VARCHAR(40) DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			position_id VARCHAR(36) NOT NULL,
			asset VARCHAR(20) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8) NOT NULL,
			size DECIMAL(20, 8) NOT NULL,
			pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			return_pct DECIMAL(10, 6) NOT NULL DEFAULT 0,
			reason VARCHAR(40) NOT NULL DEFAULT '',
			emergency BOOLEAN DEFAULT false,
			opened_at TIMESTAMP NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			position_id VARCHAR(36) NOT NULL,
			order_id VARCHAR(64) NOT NULL DEFAULT '',
			side VARCHAR(10) NOT NULL,
			purpose VARCHAR(20) NOT NULL,
			chunk_index INT DEFAULT 0,
			quantity DECIMAL(20, 8) NOT NULL,
			filled_qty DECIMAL(20, 8) DEFAULT 0,
			price_avg DECIMAL(20, 8) DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			error_message TEXT DEFAULT '',
			created_at TIMESTAMP DEFAULT NOW(),
			filled_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id SERIAL PRIMARY KEY,
			timestamp TIMESTAMP DEFAULT NOW(),
			type VARCHAR(50) NOT NULL,
			severity VARCHAR(10) DEFAULT 'info',
			position_id VARCHAR(36) DEFAULT '',
			message TEXT NOT NULL,
			meta JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id INT PRIMARY KEY DEFAULT 1,
			max_concurrent_positions INT,
			dry_run BOOLEAN DEFAULT true,
			notification_prefs JSONB,
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS gateway_accounts (
			id SERIAL PRIMARY KEY,
			name VARCHAR(50) UNIQUE NOT NULL,
			api_key TEXT NOT NULL DEFAULT '',
			secret_key TEXT NOT NULL DEFAULT '',
			connected BOOLEAN DEFAULT false,
			balance DECIMAL(20, 8) DEFAULT 0,
			last_error TEXT DEFAULT '',
			updated_at TIMESTAMP DEFAULT NOW(),
			created_at TIMESTAMP DEFAULT NOW()
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	tables := []string{
		"trades",
		"orders",
		"notifications",
		"positions",
		"gateway_accounts",
		"settings",
	}

	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}

// TruncateTable truncates a specific table for testing
func TruncateTable(db *sql.DB, tableName string) error {
	_, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", tableName))
	return err
}

// waitFor polls the condition until it returns true or the timeout expires
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
