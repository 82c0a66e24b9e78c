package bot

import (
	"tradexec/internal/config"
	"tradexec/internal/models"
	"tradexec/pkg/utils"
)

// minTradesForPerfAdj - минимум завершённых сделок для учёта статистики
// Пока сделок меньше, поправка за результативность нейтральна (1.0)
const minTradesForPerfAdj = 10

// PositionSizer рассчитывает размер позиции в котируемой валюте
//
// Расчёт чистый: никакого состояния, на одинаковых входах одинаковый результат.
// Формула:
//
//	size = capital × baseFraction × (1 − riskScore) × volAdj × perfAdj
//
// где:
//   - volAdj  = max(0.5, 1 − volatility × volMultiplier) - волатильность
//     ужимает размер, но не более чем вдвое
//   - perfAdj ∈ [0.5, 1.5] - поправка за результативность последних сделок
//
// После расчёта размер ограничивается сверху потолком maxPositionSize,
// урезанным пропорционально остатку бюджета просадки: чем ближе текущая
// просадка к лимиту, тем меньше допустимый размер.
type PositionSizer struct {
	cfg config.SizerConfig
}

// SizeInput - входные данные расчёта размера
type SizeInput struct {
	Capital     float64 // доступный капитал
	RiskScore   float64 // риск сигнала [0, 1]
	Volatility  float64 // текущая волатильность актива
	Liquidity   float64 // доступная bid-ликвидность в котируемой валюте
	Drawdown    float64 // текущая просадка (доля капитала)
	MaxDrawdown float64 // лимит просадки
	Performance models.PerformanceStats
}

// NewPositionSizer создаёт sizer с заданной конфигурацией
func NewPositionSizer(cfg config.SizerConfig) *PositionSizer {
	return &PositionSizer{cfg: cfg}
}

// Size возвращает размер позиции в котируемой валюте
// Возвращает 0, если размер после всех ограничений меньше минимального
// или ликвидности недостаточно для безопасного входа
func (s *PositionSizer) Size(in SizeInput) float64 {
	if in.Capital <= 0 || in.RiskScore < 0 || in.RiskScore > 1 {
		return 0
	}

	riskAdj := 1 - in.RiskScore
	volAdj := utils.Max(0.5, 1-in.Volatility*s.cfg.VolatilityMultiplier)
	perfAdj := performanceAdjustment(in.Performance)

	size := in.Capital * s.cfg.BaseFraction * riskAdj * volAdj * perfAdj

	// Потолок с учётом остатка бюджета просадки
	ceiling := s.cfg.MaxPositionSize
	if in.MaxDrawdown > 0 {
		remaining := utils.Clamp((in.MaxDrawdown-in.Drawdown)/in.MaxDrawdown, 0, 1)
		ceiling = utils.Min(ceiling, s.cfg.MaxPositionSize*remaining)
	}
	size = utils.Min(size, ceiling)

	// Ликвидность должна превышать размер в LiquidityFactor раз,
	// иначе вход либо ужимается, либо отменяется
	if s.cfg.LiquidityFactor > 0 && in.Liquidity < size*s.cfg.LiquidityFactor {
		size = in.Liquidity / s.cfg.LiquidityFactor
	}

	if size < s.cfg.MinPositionSize {
		return 0
	}

	return size
}

// performanceAdjustment возвращает поправку [0.5, 1.5] по доле успешных сделок
// 0.5 успешных = нейтральная 1.0, линейно в обе стороны
// Используется и при расчёте размера, и при расчёте ширины стопов
func performanceAdjustment(perf models.PerformanceStats) float64 {
	if perf.TotalTrades < minTradesForPerfAdj {
		return 1.0
	}
	return utils.Clamp(0.5+perf.SuccessRate, 0.5, 1.5)
}
