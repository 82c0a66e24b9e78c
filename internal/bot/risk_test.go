package bot

import (
	"errors"
	"math"
	"testing"
	"time"

	"tradexec/internal/config"
	"tradexec/internal/models"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxDrawdown:          0.15,
		MaxDailyLoss:         0.05,
		MaxOpenPositions:     5,
		MaxExposure:          50000,
		BaseStopLossPct:      0.02,
		RiskRewardRatio:      3.0,
		VolatilityMultiplier: 2.0,
		MinConfidence:        0.5,
		MaxRiskScore:         0.8,
	}
}

func buyDecision() *models.Decision {
	return &models.Decision{
		Asset:      "BTCUSDT",
		Action:     models.ActionBuy,
		Confidence: 0.9,
		RiskScore:  0.1,
		EntryPrice: 50000,
		Timestamp:  time.Now(),
	}
}

func marketSnapshot() *models.MarketSnapshot {
	return &models.MarketSnapshot{
		Asset:      "BTCUSDT",
		Price:      50000,
		Volatility: 0.02,
		Liquidity:  1e9,
		Timestamp:  time.Now(),
	}
}

func TestValidate_AcceptsGoodSignal(t *testing.T) {
	rm := NewRiskManager(100000, testRiskConfig(), nil)

	if err := rm.Validate(buyDecision(), marketSnapshot()); err != nil {
		t.Errorf("ожидали nil, получили %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Decision, *models.MarketSnapshot)
	}{
		{
			name:   "неподдерживаемое действие",
			mutate: func(d *models.Decision, s *models.MarketSnapshot) { d.Action = models.ActionNone },
		},
		{
			name:   "низкая уверенность",
			mutate: func(d *models.Decision, s *models.MarketSnapshot) { d.Confidence = 0.3 },
		},
		{
			name:   "высокий риск",
			mutate: func(d *models.Decision, s *models.MarketSnapshot) { d.RiskScore = 0.95 },
		},
		{
			name:   "нет рыночных данных",
			mutate: func(d *models.Decision, s *models.MarketSnapshot) { s.Price = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := NewRiskManager(100000, testRiskConfig(), nil)
			d, s := buyDecision(), marketSnapshot()
			tt.mutate(d, s)

			err := rm.Validate(d, s)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("ожидали ValidationError, получили %v", err)
			}
		})
	}
}

func TestValidate_HaltedReturnsSentinel(t *testing.T) {
	rm := NewRiskManager(100000, testRiskConfig(), nil)
	rm.Halt("manual halt")

	err := rm.Validate(buyDecision(), marketSnapshot())
	if !errors.Is(err, ErrEntriesHalted) {
		t.Errorf("ожидали ErrEntriesHalted, получили %v", err)
	}
}

func TestValidate_OpenPositionsLimit(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxOpenPositions = 2
	rm := NewRiskManager(100000, cfg, nil)

	for i := 0; i < 2; i++ {
		if err := rm.RegisterOpen("BTCUSDT", 1000); err != nil {
			t.Fatalf("RegisterOpen: %v", err)
		}
	}

	err := rm.Validate(buyDecision(), marketSnapshot())
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("ожидали ValidationError по лимиту позиций, получили %v", err)
	}
}

func TestRegisterOpen_ExposureLimit(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxExposure = 5000
	rm := NewRiskManager(100000, cfg, nil)

	if err := rm.RegisterOpen("BTCUSDT", 4000); err != nil {
		t.Fatalf("первый RegisterOpen: %v", err)
	}
	if err := rm.RegisterOpen("ETHUSDT", 2000); err == nil {
		t.Error("ожидали ошибку превышения экспозиции, получили nil")
	}

	rm.ReleaseOpen(4000)
	if got := rm.Budget().OpenExposure; got != 0 {
		t.Errorf("ожидали нулевую экспозицию, получили %v", got)
	}
}

func TestComputeStops(t *testing.T) {
	rm := NewRiskManager(100000, testRiskConfig(), nil)
	d := buyDecision()
	snap := marketSnapshot()

	stops := rm.ComputeStops(d, snap)

	// 0.02 × (1 + 0.02×2) × (1 + 0.1) × 1.0 = 0.02288
	wantSL := 0.02 * 1.04 * 1.1
	if math.Abs(stops.StopLossPct-wantSL) > 1e-9 {
		t.Errorf("ожидали SL %v, получили %v", wantSL, stops.StopLossPct)
	}
	wantTP := wantSL * 3.0
	if math.Abs(stops.TakeProfitPct-wantTP) > 1e-9 {
		t.Errorf("ожидали TP %v, получили %v", wantTP, stops.TakeProfitPct)
	}
	if stops.StopLossPrice >= d.EntryPrice {
		t.Errorf("цена SL %v должна быть ниже входа %v", stops.StopLossPrice, d.EntryPrice)
	}
	if stops.TakeProfitPrice <= d.EntryPrice {
		t.Errorf("цена TP %v должна быть выше входа %v", stops.TakeProfitPrice, d.EntryPrice)
	}
	if !stops.Trailing {
		t.Error("ожидали включённый трейлинг")
	}
}

func TestRecordOutcome_UpdatesBudgetAndStats(t *testing.T) {
	rm := NewRiskManager(100000, testRiskConfig(), nil)
	if err := rm.RegisterOpen("BTCUSDT", 1000); err != nil {
		t.Fatalf("RegisterOpen: %v", err)
	}

	rm.RecordOutcome(&models.TradeOutcome{
		PositionID: "p1",
		Asset:      "BTCUSDT",
		Size:       1000,
		Pnl:        -2000,
		ReturnPct:  -0.02,
	})

	budget := rm.Budget()
	if math.Abs(budget.CurrentDrawdown-0.02) > 1e-9 {
		t.Errorf("ожидали просадку 0.02, получили %v", budget.CurrentDrawdown)
	}
	if math.Abs(budget.DailyLoss-0.02) > 1e-9 {
		t.Errorf("ожидали дневной убыток 0.02, получили %v", budget.DailyLoss)
	}
	if budget.OpenExposure != 0 {
		t.Errorf("ожидали нулевую экспозицию, получили %v", budget.OpenExposure)
	}

	perf := rm.Performance()
	if perf.TotalTrades != 1 || perf.SuccessfulTrades != 0 {
		t.Errorf("неожиданная статистика: %+v", perf)
	}
}

func TestRecordOutcome_DrawdownAccumulatesOnlyLosses(t *testing.T) {
	rm := NewRiskManager(100000, testRiskConfig(), nil)

	_ = rm.RegisterOpen("BTCUSDT", 1000)
	rm.RecordOutcome(&models.TradeOutcome{Size: 1000, Pnl: -3000, ReturnPct: -0.03})

	_ = rm.RegisterOpen("BTCUSDT", 1000)
	rm.RecordOutcome(&models.TradeOutcome{Size: 1000, Pnl: 2000, ReturnPct: 0.02})

	// Просадка равна сумме зафиксированных убытков: прибыль её не гасит
	budget := rm.Budget()
	if math.Abs(budget.CurrentDrawdown-0.03) > 1e-9 {
		t.Errorf("ожидали просадку 0.03, получили %v", budget.CurrentDrawdown)
	}
	if math.Abs(budget.DailyLoss-0.03) > 1e-9 {
		t.Errorf("ожидали дневной убыток 0.03, получили %v", budget.DailyLoss)
	}
}

func TestRecordOutcome_DrawdownBreachHalts(t *testing.T) {
	notifChan := make(chan *models.Notification, 4)
	rm := NewRiskManager(100000, testRiskConfig(), notifChan)

	_ = rm.RegisterOpen("BTCUSDT", 10000)
	rm.RecordOutcome(&models.TradeOutcome{Size: 10000, Pnl: -16000, ReturnPct: -0.16})

	halted, reason := rm.Halted()
	if !halted {
		t.Fatal("ожидали остановку входа после пробоя просадки")
	}
	if reason != haltReasonDrawdown {
		t.Errorf("ожидали причину %q, получили %q", haltReasonDrawdown, reason)
	}

	select {
	case notif := <-notifChan:
		if notif.Type != models.NotificationTypeRiskLimit {
			t.Errorf("ожидали тип %s, получили %s", models.NotificationTypeRiskLimit, notif.Type)
		}
	default:
		t.Error("ожидали уведомление о лимите риска")
	}
}

func TestResetDailyMetrics(t *testing.T) {
	rm := NewRiskManager(100000, testRiskConfig(), nil)

	// Дневной лимит 0.05, просадка 0.15 не пробита
	_ = rm.RegisterOpen("BTCUSDT", 5000)
	rm.RecordOutcome(&models.TradeOutcome{Size: 5000, Pnl: -6000, ReturnPct: -0.06})

	halted, reason := rm.Halted()
	if !halted || reason != haltReasonDailyLoss {
		t.Fatalf("ожидали остановку по дневному лимиту, получили halted=%v reason=%q", halted, reason)
	}

	rm.ResetDailyMetrics()

	if halted, _ := rm.Halted(); halted {
		t.Error("дневной сброс должен снимать остановку по дневному лимиту")
	}
	if got := rm.Budget().DailyLoss; got != 0 {
		t.Errorf("ожидали нулевой дневной убыток, получили %v", got)
	}
	// Просадка переживает дневной сброс
	if got := rm.Budget().CurrentDrawdown; math.Abs(got-0.06) > 1e-9 {
		t.Errorf("ожидали просадку 0.06, получили %v", got)
	}
}

func TestResetDailyMetrics_KeepsDrawdownHalt(t *testing.T) {
	rm := NewRiskManager(100000, testRiskConfig(), nil)

	_ = rm.RegisterOpen("BTCUSDT", 10000)
	rm.RecordOutcome(&models.TradeOutcome{Size: 10000, Pnl: -20000, ReturnPct: -0.2})

	rm.ResetDailyMetrics()

	if halted, reason := rm.Halted(); !halted || reason != haltReasonDrawdown {
		t.Errorf("остановка по просадке должна переживать дневной сброс, получили halted=%v reason=%q",
			halted, reason)
	}

	rm.ResetHalt()
	if halted, _ := rm.Halted(); halted {
		t.Error("ResetHalt должен снимать остановку")
	}
}

func TestRiskManager_ConcurrentOutcomes(t *testing.T) {
	rm := NewRiskManager(100000, testRiskConfig(), nil)

	const n = 20
	for i := 0; i < n; i++ {
		_ = rm.RegisterOpen("BTCUSDT", 100)
	}

	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			pnl := 10.0
			if i%2 == 0 {
				pnl = -10.0
			}
			rm.RecordOutcome(&models.TradeOutcome{Size: 100, Pnl: pnl, ReturnPct: pnl / 100})
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	perf := rm.Performance()
	if perf.TotalTrades != n {
		t.Errorf("ожидали %d сделок, получили %d", n, perf.TotalTrades)
	}
	if perf.SuccessfulTrades != n/2 {
		t.Errorf("ожидали %d успешных, получили %d", n/2, perf.SuccessfulTrades)
	}
	if got := rm.Budget().OpenExposure; got != 0 {
		t.Errorf("ожидали нулевую экспозицию, получили %v", got)
	}
}
