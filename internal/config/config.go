package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tradexec/pkg/crypto"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Gateway   GatewayConfig
	Sizer     SizerConfig
	Risk      RiskConfig
	Monitor   MonitorConfig
	Emergency EmergencyConfig
	Execution ExecutionConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey string // base64, 32 байта после декодирования
	APITokenHash  string // bcrypt-хэш API токена, пусто = авторизация выключена
}

// GatewayConfig - настройки шлюза исполнения
type GatewayConfig struct {
	Name          string   // bybit или paper
	BackupName    string   // резервный шлюз для аварийного закрытия
	APIKey        string
	SecretKey     string
	PaperBalance  float64  // стартовый баланс paper-шлюза
	TrackedAssets []string // активы для подписки на поток цен
}

// SizerConfig - параметры расчёта размера позиций
type SizerConfig struct {
	BaseFraction         float64 // базовая доля капитала на позицию
	VolatilityMultiplier float64 // чувствительность к волатильности
	MaxPositionSize      float64 // жёсткий потолок размера в котируемой валюте
	MinPositionSize      float64 // минимальный осмысленный размер
	LiquidityFactor      float64 // ликвидность должна превышать размер в N раз
}

// RiskConfig - лимиты риска
type RiskConfig struct {
	MaxDrawdown          float64 // максимальная просадка (доля капитала)
	MaxDailyLoss         float64 // максимальный дневной убыток
	MaxOpenPositions     int     // максимум одновременных позиций
	MaxExposure          float64 // максимальная суммарная экспозиция
	BaseStopLossPct      float64 // базовый stop-loss в долях цены
	RiskRewardRatio      float64 // отношение take-profit к stop-loss
	VolatilityMultiplier float64 // чувствительность стопов к волатильности
	MinConfidence        float64 // минимальная уверенность сигнала
	MaxRiskScore         float64 // максимальный риск сигнала
}

// MonitorConfig - параметры мониторинга позиций
type MonitorConfig struct {
	PollInterval    time.Duration // период опроса цены
	TrailingStopPct float64       // отступ трейлинг-стопа от максимума цены
}

// EmergencyConfig - пороги аварийного закрытия
type EmergencyConfig struct {
	PriceDropThreshold      float64       // падение цены (отрицательное, например -0.15)
	VolatilitySpikeFactor   float64       // превышение волатильности над базовой
	LiquidityDropThreshold  float64       // требуемый запас ликвидности относительно размера
	MaxNetworkLatencyMs     float64       // максимальная сетевая задержка
	ErrorRateThreshold      float64       // доля ошибок запросов за окно
	ErrorWindow             time.Duration // окно наблюдения ошибок
	SplitThreshold          float64       // размер, выше которого выход всегда дробится
	SplitChunks             int           // минимальное количество чанков SPLIT_ORDERS
	VerifyTimeout           time.Duration // таймаут верификации исполнения
}

// ExecutionConfig - параметры исполнения
type ExecutionConfig struct {
	MaxRetries   int           // попытки размещения входного ордера
	RetryBackoff time.Duration // базовая задержка между попытками
	OrderTimeout time.Duration // таймаут ожидания исполнения ордера
	DryRun       bool          // paper-режим без реальных ордеров
	EventBuffer  int           // размер буфера канала уведомлений
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradexec"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			APITokenHash:  getEnv("API_TOKEN_HASH", ""),
		},
		Gateway: GatewayConfig{
			Name:          getEnv("GATEWAY", "paper"),
			BackupName:    getEnv("GATEWAY_BACKUP", ""),
			APIKey:        getEnv("GATEWAY_API_KEY", ""),
			SecretKey:     getEnv("GATEWAY_SECRET_KEY", ""),
			PaperBalance:  getEnvAsFloat("GATEWAY_PAPER_BALANCE", 10000),
			TrackedAssets: getEnvAsSlice("TRACKED_ASSETS", []string{"BTCUSDT"}),
		},
		Sizer: SizerConfig{
			BaseFraction:         getEnvAsFloat("SIZER_BASE_FRACTION", 0.02),
			VolatilityMultiplier: getEnvAsFloat("SIZER_VOL_MULTIPLIER", 2.0),
			MaxPositionSize:      getEnvAsFloat("SIZER_MAX_POSITION_SIZE", 10000),
			MinPositionSize:      getEnvAsFloat("SIZER_MIN_POSITION_SIZE", 10),
			LiquidityFactor:      getEnvAsFloat("SIZER_LIQUIDITY_FACTOR", 20),
		},
		Risk: RiskConfig{
			MaxDrawdown:          getEnvAsFloat("RISK_MAX_DRAWDOWN", 0.15),
			MaxDailyLoss:         getEnvAsFloat("RISK_MAX_DAILY_LOSS", 0.05),
			MaxOpenPositions:     getEnvAsInt("RISK_MAX_OPEN_POSITIONS", 5),
			MaxExposure:          getEnvAsFloat("RISK_MAX_EXPOSURE", 50000),
			BaseStopLossPct:      getEnvAsFloat("RISK_BASE_STOP_LOSS_PCT", 0.02),
			RiskRewardRatio:      getEnvAsFloat("RISK_REWARD_RATIO", 3.0),
			VolatilityMultiplier: getEnvAsFloat("RISK_VOL_MULTIPLIER", 2.0),
			MinConfidence:        getEnvAsFloat("RISK_MIN_CONFIDENCE", 0.5),
			MaxRiskScore:         getEnvAsFloat("RISK_MAX_RISK_SCORE", 0.8),
		},
		Monitor: MonitorConfig{
			PollInterval:    getEnvAsDuration("MONITOR_POLL_INTERVAL", 5*time.Second),
			TrailingStopPct: getEnvAsFloat("MONITOR_TRAILING_STOP_PCT", 0.015),
		},
		Emergency: EmergencyConfig{
			PriceDropThreshold:     getEnvAsFloat("EMERGENCY_PRICE_DROP", -0.15),
			VolatilitySpikeFactor:  getEnvAsFloat("EMERGENCY_VOL_SPIKE_FACTOR", 3.0),
			LiquidityDropThreshold: getEnvAsFloat("EMERGENCY_LIQUIDITY_FACTOR", 2.0),
			MaxNetworkLatencyMs:    getEnvAsFloat("EMERGENCY_MAX_LATENCY_MS", 2000),
			ErrorRateThreshold:     getEnvAsFloat("EMERGENCY_ERROR_RATE", 0.3),
			ErrorWindow:            getEnvAsDuration("EMERGENCY_ERROR_WINDOW", 1*time.Minute),
			SplitThreshold:         getEnvAsFloat("EMERGENCY_SPLIT_THRESHOLD", 5000),
			SplitChunks:            getEnvAsInt("EMERGENCY_SPLIT_CHUNKS", 3),
			VerifyTimeout:          getEnvAsDuration("EMERGENCY_VERIFY_TIMEOUT", 10*time.Second),
		},
		Execution: ExecutionConfig{
			MaxRetries:   getEnvAsInt("MAX_RETRIES", 3),
			RetryBackoff: getEnvAsDuration("RETRY_BACKOFF", 200*time.Millisecond),
			OrderTimeout: getEnvAsDuration("ORDER_TIMEOUT", 5*time.Second),
			DryRun:       getEnvAsBool("DRY_RUN", true),
			EventBuffer:  getEnvAsInt("EVENT_BUFFER", 256),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования API ключей шлюза
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting gateway API keys")
	}

	if _, err := crypto.KeyFromBase64(c.Security.EncryptionKey); err != nil {
		return fmt.Errorf("ENCRYPTION_KEY must be base64 of exactly 32 bytes for AES-256")
	}

	// API_TOKEN_HASH опционален, но если задан - это bcrypt-хэш
	if c.Security.APITokenHash != "" && !strings.HasPrefix(c.Security.APITokenHash, "$2") {
		return fmt.Errorf("API_TOKEN_HASH must be a bcrypt hash")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Доли капитала должны лежать в (0, 1]
	if c.Sizer.BaseFraction <= 0 || c.Sizer.BaseFraction > 1 {
		return fmt.Errorf("SIZER_BASE_FRACTION must be in (0, 1], got %v", c.Sizer.BaseFraction)
	}

	if c.Sizer.MaxPositionSize <= 0 {
		return fmt.Errorf("SIZER_MAX_POSITION_SIZE must be positive, got %v", c.Sizer.MaxPositionSize)
	}

	if c.Sizer.MinPositionSize < 0 || c.Sizer.MinPositionSize > c.Sizer.MaxPositionSize {
		return fmt.Errorf("SIZER_MIN_POSITION_SIZE must be in [0, max], got %v", c.Sizer.MinPositionSize)
	}

	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown >= 1 {
		return fmt.Errorf("RISK_MAX_DRAWDOWN must be in (0, 1), got %v", c.Risk.MaxDrawdown)
	}

	if c.Risk.MaxDailyLoss <= 0 || c.Risk.MaxDailyLoss >= 1 {
		return fmt.Errorf("RISK_MAX_DAILY_LOSS must be in (0, 1), got %v", c.Risk.MaxDailyLoss)
	}

	if c.Risk.MaxOpenPositions < 1 {
		return fmt.Errorf("RISK_MAX_OPEN_POSITIONS must be at least 1, got %d", c.Risk.MaxOpenPositions)
	}

	if c.Risk.BaseStopLossPct <= 0 || c.Risk.BaseStopLossPct >= 1 {
		return fmt.Errorf("RISK_BASE_STOP_LOSS_PCT must be in (0, 1), got %v", c.Risk.BaseStopLossPct)
	}

	if c.Risk.RiskRewardRatio <= 0 {
		return fmt.Errorf("RISK_REWARD_RATIO must be positive, got %v", c.Risk.RiskRewardRatio)
	}

	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("MONITOR_POLL_INTERVAL must be positive, got %v", c.Monitor.PollInterval)
	}

	if c.Monitor.TrailingStopPct <= 0 || c.Monitor.TrailingStopPct >= 1 {
		return fmt.Errorf("MONITOR_TRAILING_STOP_PCT must be in (0, 1), got %v", c.Monitor.TrailingStopPct)
	}

	// Порог падения цены задаётся отрицательным числом
	if c.Emergency.PriceDropThreshold >= 0 {
		return fmt.Errorf("EMERGENCY_PRICE_DROP must be negative, got %v", c.Emergency.PriceDropThreshold)
	}

	if c.Emergency.SplitChunks < 2 {
		return fmt.Errorf("EMERGENCY_SPLIT_CHUNKS must be at least 2, got %d", c.Emergency.SplitChunks)
	}

	if c.Emergency.ErrorRateThreshold <= 0 || c.Emergency.ErrorRateThreshold > 1 {
		return fmt.Errorf("EMERGENCY_ERROR_RATE must be in (0, 1], got %v", c.Emergency.ErrorRateThreshold)
	}

	// Валидация retry параметров
	if c.Execution.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.Execution.MaxRetries)
	}

	if c.Execution.MaxRetries > 10 {
		return fmt.Errorf("MAX_RETRIES should not exceed 10, got %d", c.Execution.MaxRetries)
	}

	if c.Execution.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", c.Execution.OrderTimeout)
	}

	if c.Execution.EventBuffer < 1 {
		return fmt.Errorf("EVENT_BUFFER must be at least 1, got %d", c.Execution.EventBuffer)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
