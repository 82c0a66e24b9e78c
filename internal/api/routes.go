package api

import (
	"net/http"
	"net/http/pprof"

	"tradexec/internal/api/handlers"
	"tradexec/internal/api/middleware"
	"tradexec/internal/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	PositionService     service.PositionServiceInterface
	RiskService         service.RiskServiceInterface
	StatsService        service.StatsServiceInterface
	SettingsService     service.SettingsServiceInterface
	NotificationService service.NotificationServiceInterface
	AccountService      service.AccountServiceInterface

	// WSHandler обслуживает /ws (websocket hub), опционален
	WSHandler http.HandlerFunc
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /positions/
//	│   ├── GET / - активные позиции
//	│   ├── GET /history - история позиций
//	│   ├── GET /{id} - получить позицию
//	│   └── POST /{id}/close - ручное закрытие
//	├── /risk/
//	│   ├── GET / - состояние риск-менеджера
//	│   ├── POST /reset-halt - снять остановку входов
//	│   └── POST /reset-daily - сбросить дневные метрики
//	├── /notifications/
//	│   ├── GET / - получить уведомления
//	│   └── DELETE / - очистить журнал
//	├── /stats/
//	│   ├── GET / - агрегированная статистика
//	│   └── GET /trades - последние сделки
//	├── /settings/
//	│   ├── GET / - получить настройки
//	│   └── PATCH / - обновить настройки
//	└── /accounts/
//	    ├── GET / - список аккаунтов шлюза
//	    └── PUT /{name}/keys - сохранить API ключи
//
// /ws - WebSocket для real-time обновлений
// /metrics - Prometheus метрики
// /health - health check
// /debug/pprof - профилирование (basic auth)
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (только для /api/v1, включается через API_TOKEN_HASH)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth)

	// Position routes
	if deps != nil && deps.PositionService != nil {
		h := handlers.NewPositionHandler(deps.PositionService)
		api.HandleFunc("/positions", h.GetPositions).Methods("GET")
		api.HandleFunc("/positions/history", h.GetHistory).Methods("GET")
		api.HandleFunc("/positions/{id}", h.GetPosition).Methods("GET")
		api.HandleFunc("/positions/{id}/close", h.ClosePosition).Methods("POST")
	}

	// Risk routes
	if deps != nil && deps.RiskService != nil {
		h := handlers.NewRiskHandler(deps.RiskService)
		api.HandleFunc("/risk", h.GetStatus).Methods("GET")
		api.HandleFunc("/risk/reset-halt", h.ResetHalt).Methods("POST")
		api.HandleFunc("/risk/reset-daily", h.ResetDailyMetrics).Methods("POST")
	}

	// Notification routes
	if deps != nil && deps.NotificationService != nil {
		h := handlers.NewNotificationHandler(deps.NotificationService)
		api.HandleFunc("/notifications", h.GetNotifications).Methods("GET")
		api.HandleFunc("/notifications", h.ClearNotifications).Methods("DELETE")
	}

	// Stats routes
	if deps != nil && deps.StatsService != nil {
		h := handlers.NewStatsHandler(deps.StatsService)
		api.HandleFunc("/stats", h.GetStats).Methods("GET")
		api.HandleFunc("/stats/trades", h.GetRecentTrades).Methods("GET")
	}

	// Settings routes
	if deps != nil && deps.SettingsService != nil {
		h := handlers.NewSettingsHandler(deps.SettingsService)
		api.HandleFunc("/settings", h.GetSettings).Methods("GET")
		api.HandleFunc("/settings", h.UpdateSettings).Methods("PATCH")
	}

	// Account routes
	if deps != nil && deps.AccountService != nil {
		h := handlers.NewAccountHandler(deps.AccountService)
		api.HandleFunc("/accounts", h.GetAccounts).Methods("GET")
		api.HandleFunc("/accounts/{name}/keys", h.SaveKeys).Methods("PUT")
	}

	// WebSocket route
	if deps != nil && deps.WSHandler != nil {
		router.HandleFunc("/ws", deps.WSHandler)
	}

	// Debug endpoints (pprof), защищены basic auth через DEBUG_USERNAME/DEBUG_PASSWORD
	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.PathPrefix("/").HandlerFunc(pprof.Index)

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
