package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"tradexec/internal/config"
	"tradexec/internal/exchange"
	"tradexec/internal/models"
	"tradexec/pkg/retry"
)

func testEmergencyConfig() config.EmergencyConfig {
	return config.EmergencyConfig{
		PriceDropThreshold:     -0.15,
		VolatilitySpikeFactor:  3.0,
		LiquidityDropThreshold: 2.0,
		MaxNetworkLatencyMs:    2000,
		ErrorRateThreshold:     0.3,
		ErrorWindow:            time.Minute,
		SplitThreshold:         5000,
		SplitChunks:            3,
		VerifyTimeout:          500 * time.Millisecond,
	}
}

func emergencyFixture() (*exchange.Paper, *EmergencyController, chan *models.Notification) {
	paper := exchange.NewPaper(0)
	paper.SetPrice("BTCUSDT", 50000)
	notifChan := make(chan *models.Notification, 8)
	ec := NewEmergencyController(paper, nil, paper, testEmergencyConfig(), notifChan)
	return paper, ec, notifChan
}

func openPositionForExit(size float64) *models.Position {
	return &models.Position{
		ID:         "p1",
		Asset:      "BTCUSDT",
		Status:     models.StatusMonitoring,
		EntryPrice: 50000,
		Size:       size,
		OpenedAt:   time.Now(),
	}
}

// ============ Детекция ============

func TestDetect_PriceDrop(t *testing.T) {
	_, ec, _ := emergencyFixture()
	pos := openPositionForExit(1000)

	// Падение на 20% при пороге -15%
	ec.RecordPrice("BTCUSDT", 50000)
	ec.RecordPrice("BTCUSDT", 40000)

	conditions := ec.Detect(context.Background(), pos, nil)
	if len(conditions) != 1 || conditions[0] != ConditionPriceDrop {
		t.Errorf("ожидали [%s], получили %v", ConditionPriceDrop, conditions)
	}
}

func TestDetect_PriceDropBelowThresholdIgnored(t *testing.T) {
	_, ec, _ := emergencyFixture()
	pos := openPositionForExit(1000)

	// Падение на 10% при пороге -15%
	ec.RecordPrice("BTCUSDT", 50000)
	ec.RecordPrice("BTCUSDT", 45000)

	if conditions := ec.Detect(context.Background(), pos, nil); len(conditions) != 0 {
		t.Errorf("ожидали пустой список, получили %v", conditions)
	}
}

func TestDetect_VolatilitySpike(t *testing.T) {
	_, ec, _ := emergencyFixture()
	pos := openPositionForExit(1000)

	// Накапливаем базовую линию ~0.02
	for i := 0; i < minVolatilitySamples; i++ {
		snap := &models.MarketSnapshot{Asset: "BTCUSDT", Price: 50000, Volatility: 0.02, Liquidity: 1e9}
		if conditions := ec.Detect(context.Background(), pos, snap); len(conditions) != 0 {
			t.Fatalf("условия на базовой линии: %v", conditions)
		}
	}

	// Всплеск в 4 раза при факторе 3
	snap := &models.MarketSnapshot{Asset: "BTCUSDT", Price: 50000, Volatility: 0.08, Liquidity: 1e9}
	conditions := ec.Detect(context.Background(), pos, snap)
	if len(conditions) != 1 || conditions[0] != ConditionVolatilitySpike {
		t.Errorf("ожидали [%s], получили %v", ConditionVolatilitySpike, conditions)
	}
}

func TestDetect_LiquidityDrop(t *testing.T) {
	_, ec, _ := emergencyFixture()
	pos := openPositionForExit(1000)

	// Ликвидность 1500 < размер 1000 × порог 2.0
	snap := &models.MarketSnapshot{Asset: "BTCUSDT", Price: 50000, Volatility: 0, Liquidity: 1500}
	conditions := ec.Detect(context.Background(), pos, snap)
	if len(conditions) != 1 || conditions[0] != ConditionLiquidityDrop {
		t.Errorf("ожидали [%s], получили %v", ConditionLiquidityDrop, conditions)
	}
}

func TestDetect_NetworkConditions(t *testing.T) {
	paper, ec, _ := emergencyFixture()
	pos := openPositionForExit(1000)

	paper.SetNetworkHealth(&exchange.NetworkHealth{
		LatencyMs: 3000,
		ErrorRate: 0.5,
		Healthy:   false,
		CheckedAt: time.Now(),
	})

	conditions := ec.Detect(context.Background(), pos, nil)
	if len(conditions) != 2 {
		t.Fatalf("ожидали два условия, получили %v", conditions)
	}
	found := map[string]bool{}
	for _, c := range conditions {
		found[c] = true
	}
	if !found[ConditionNetworkLatency] || !found[ConditionErrorFrequency] {
		t.Errorf("ожидали задержку и частоту ошибок, получили %v", conditions)
	}
}

// ============ Исполнение ============

func TestEmergencyExit_MarketOrder(t *testing.T) {
	_, ec, notifChan := emergencyFixture()
	pos := openPositionForExit(1000) // ликвидности по умолчанию достаточно

	res, err := ec.ExecuteEmergencyExit(context.Background(), pos, []string{ConditionPriceDrop})
	if err != nil {
		t.Fatalf("ExecuteEmergencyExit: %v", err)
	}
	if res.Method != MethodMarket {
		t.Errorf("ожидали метод %s, получили %s", MethodMarket, res.Method)
	}
	if res.AvgPrice != 50000 {
		t.Errorf("ожидали цену 50000, получили %v", res.AvgPrice)
	}
	if res.Partial() {
		t.Errorf("ожидали полное закрытие, исполнено %v из %v", res.FilledQty, res.RequestedQty)
	}

	select {
	case notif := <-notifChan:
		if notif.Type != models.NotificationTypeEmergency {
			t.Errorf("ожидали тип %s, получили %s", models.NotificationTypeEmergency, notif.Type)
		}
	default:
		t.Error("ожидали уведомление об аварийном выходе")
	}
}

func TestEmergencyExit_SplitWithFailedChunk(t *testing.T) {
	paper, ec, notifChan := emergencyFixture()
	pos := openPositionForExit(9000) // выше SplitThreshold, дробим на 3

	var calls int
	paper.SubmitHook = func(req *exchange.OrderRequest) error {
		calls++
		if calls == 2 {
			return retry.Permanent(errors.New("chunk rejected"))
		}
		return nil
	}

	res, err := ec.ExecuteEmergencyExit(context.Background(), pos, []string{ConditionLiquidityDrop})
	if err != nil {
		t.Fatalf("частичное исполнение не должно возвращать ошибку: %v", err)
	}
	if res.AvgPrice != 50000 {
		t.Errorf("ожидали цену 50000, получили %v", res.AvgPrice)
	}
	// Части 1 и 3 исполнились несмотря на отказ части 2
	if calls != 3 {
		t.Errorf("ожидали 3 попытки частей, получили %d", calls)
	}
	// Результат несёт фактически закрытый объём: 2 части из 3
	if !res.Partial() {
		t.Fatal("ожидали частичное закрытие")
	}
	wantFilled := res.RequestedQty * 2 / 3
	if math.Abs(res.FilledQty-wantFilled) > 1e-9 {
		t.Errorf("ожидали закрытый объём %v, получили %v", wantFilled, res.FilledQty)
	}

	select {
	case notif := <-notifChan:
		if notif.Severity != models.SeverityWarn {
			t.Errorf("ожидали предупреждение, получили %s", notif.Severity)
		}
		if notif.Meta["failed_chunk"] != 2 {
			t.Errorf("ожидали отказ части 2, получили %v", notif.Meta["failed_chunk"])
		}
	default:
		t.Error("ожидали уведомление о частичном исполнении")
	}
}

func TestEmergencyExit_SplitWhenLiquidityInsufficient(t *testing.T) {
	paper, ec, _ := emergencyFixture()
	pos := openPositionForExit(1000) // ниже SplitThreshold

	// Стакан не вмещает позицию с запасом: 1000 × 2.0 > 1500
	paper.SetLiquidity("BTCUSDT", 1500)

	var calls int
	paper.SubmitHook = func(req *exchange.OrderRequest) error {
		calls++
		return nil
	}

	res, err := ec.ExecuteEmergencyExit(context.Background(), pos, []string{ConditionLiquidityDrop})
	if err != nil {
		t.Fatalf("ExecuteEmergencyExit: %v", err)
	}
	if res.Method != MethodSplit {
		t.Errorf("при нехватке ликвидности ожидали %s, получили %s", MethodSplit, res.Method)
	}
	if calls < 2 {
		t.Errorf("ожидали дробление на части, получили %d ордер(ов)", calls)
	}
}

func TestEmergencyExit_ChunksSizedByLiquidity(t *testing.T) {
	paper, ec, _ := emergencyFixture()
	pos := openPositionForExit(9000)

	// Каждая часть не крупнее 3000 / 2.0 = 1500, итого 6 частей
	paper.SetLiquidity("BTCUSDT", 3000)

	var calls int
	paper.SubmitHook = func(req *exchange.OrderRequest) error {
		calls++
		return nil
	}

	res, err := ec.ExecuteEmergencyExit(context.Background(), pos, []string{ConditionLiquidityDrop})
	if err != nil {
		t.Fatalf("ExecuteEmergencyExit: %v", err)
	}
	if calls != 6 {
		t.Errorf("ожидали 6 частей под ликвидность 3000, получили %d", calls)
	}
	if res.Partial() {
		t.Errorf("ожидали полное закрытие, исполнено %v из %v", res.FilledQty, res.RequestedQty)
	}
}

func TestEmergencyExit_BackupStrategySmallerOrders(t *testing.T) {
	paper, ec, _ := emergencyFixture() // резервного шлюза нет
	pos := openPositionForExit(1000)

	// Рыночный ордер целиком отклоняется, мелкие части проходят
	var calls int
	paper.SubmitHook = func(req *exchange.OrderRequest) error {
		calls++
		if calls == 1 {
			return retry.Permanent(errors.New("order too large"))
		}
		return nil
	}

	res, err := ec.ExecuteEmergencyExit(context.Background(), pos, []string{ConditionPriceDrop})
	if err != nil {
		t.Fatalf("резервная стратегия должна была исполнить выход: %v", err)
	}
	if res.Method != MethodBackup {
		t.Errorf("ожидали метод %s, получили %s", MethodBackup, res.Method)
	}
	// Отказ рыночного ордера плюс 6 мелких частей (SplitChunks × 2)
	if calls != 7 {
		t.Errorf("ожидали 7 обращений к шлюзу, получили %d", calls)
	}
	if res.Partial() {
		t.Errorf("ожидали полное закрытие, исполнено %v из %v", res.FilledQty, res.RequestedQty)
	}
}

func TestEmergencyExit_BackupGatewayFallback(t *testing.T) {
	primary := exchange.NewPaper(0)
	primary.SetPrice("BTCUSDT", 50000)
	primary.SubmitHook = func(req *exchange.OrderRequest) error {
		return retry.Permanent(errors.New("primary down"))
	}

	backup := exchange.NewPaper(0)
	backup.SetPrice("BTCUSDT", 49900)

	notifChan := make(chan *models.Notification, 8)
	ec := NewEmergencyController(primary, backup, primary, testEmergencyConfig(), notifChan)

	pos := openPositionForExit(1000)
	res, err := ec.ExecuteEmergencyExit(context.Background(), pos, []string{ConditionPriceDrop})
	if err != nil {
		t.Fatalf("резервный шлюз должен был исполнить выход: %v", err)
	}
	if res.AvgPrice != 49900 {
		t.Errorf("ожидали цену резервного шлюза 49900, получили %v", res.AvgPrice)
	}
}

func TestEmergencyExit_CriticalFailure(t *testing.T) {
	primary := exchange.NewPaper(0)
	primary.SetPrice("BTCUSDT", 50000)
	primary.SubmitHook = func(req *exchange.OrderRequest) error {
		return retry.Permanent(errors.New("primary down"))
	}

	ec := NewEmergencyController(primary, nil, primary, testEmergencyConfig(), nil)

	pos := openPositionForExit(1000)
	_, err := ec.ExecuteEmergencyExit(context.Background(), pos, []string{ConditionPriceDrop})

	var critical *CriticalFailure
	if !errors.As(err, &critical) {
		t.Fatalf("ожидали CriticalFailure, получили %v", err)
	}
	if critical.PositionID != "p1" {
		t.Errorf("ожидали позицию p1, получили %s", critical.PositionID)
	}
}

func TestEmergencyExit_AllChunksFail(t *testing.T) {
	paper, ec, _ := emergencyFixture()
	pos := openPositionForExit(9000)

	paper.SubmitHook = func(req *exchange.OrderRequest) error {
		return retry.Permanent(fmt.Errorf("rejected"))
	}

	_, err := ec.ExecuteEmergencyExit(context.Background(), pos, []string{ConditionPriceDrop})
	var critical *CriticalFailure
	if !errors.As(err, &critical) {
		t.Errorf("полный отказ всех частей должен давать CriticalFailure, получили %v", err)
	}
}

func TestRecordPrice_WindowPrunesOld(t *testing.T) {
	_, ec, _ := emergencyFixture()

	base := time.Now()
	ec.now = func() time.Time { return base }
	ec.RecordPrice("BTCUSDT", 50000)

	// Старое наблюдение выпадает из окна, падение не фиксируется
	ec.now = func() time.Time { return base.Add(2 * time.Minute) }
	ec.RecordPrice("BTCUSDT", 40000)

	if _, ok := ec.priceChange("BTCUSDT"); ok {
		t.Error("одно наблюдение в окне не должно давать изменение цены")
	}
}
