package utils

import (
	"math"
)

// math.go - математические утилиты для торгового ядра
//
// Назначение:
// Вспомогательные математические функции для торговых операций.
// Все функции являются чистыми (pure functions) без побочных эффектов.
//
// Функции:
// - RoundToLotSize: округление до lot size шлюза
// - CalculatePriceChange: относительное изменение цены
// - CalculateWeightedAverage: средневзвешенная цена (VWAP)
// - SplitVolume: разбиение объёма на части

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Используется для округления объёма ордера до минимального шага шлюза.
// Округление вниз гарантирует, что мы не превысим доступные средства.
//
// Параметры:
//   - value: исходное значение (объём в монетах актива)
//   - lotSize: минимальный шаг изменения объёма
//
// Возвращает:
//   - Округлённое значение, кратное lotSize
//   - Если lotSize <= 0, возвращает исходное значение
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(1.999, 0.01) = 1.99
//   - RoundToLotSize(100.5, 1.0) = 100.0
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	// Используем math.Floor для округления вниз
	// Это безопаснее для торговли - не превысим доступные средства
	return math.Floor(value/lotSize) * lotSize
}

// RoundToLotSizeUp округляет значение ВВЕРХ до ближайшего кратного lotSize.
//
// Используется когда нужно гарантировать минимальный объём (например, для minQty).
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Ceil(value/lotSize) * lotSize
}

// CalculatePriceChange расчитывает относительное изменение цены.
//
// Используется детектором аварийных условий: падение цены с момента
// входа сравнивается с порогом (отрицательным).
//
// Параметры:
//   - from: цена отсчёта (цена входа)
//   - to: текущая цена
//
// Возвращает:
//   - Изменение в долях: (to - from) / from
//   - Если from <= 0, возвращает 0
//
// Примеры:
//   - CalculatePriceChange(100.0, 80.0) = -0.20 (падение на 20%)
//   - CalculatePriceChange(50000, 51000) = 0.02
func CalculatePriceChange(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return (to - from) / from
}

// CalculateReturnPct расчитывает доходность сделки в долях от вложенного.
//
// Параметры:
//   - entryPrice: цена входа
//   - exitPrice: цена выхода
//
// Возвращает:
//   - Доходность в долях (0.05 = +5%)
func CalculateReturnPct(entryPrice, exitPrice float64) float64 {
	return CalculatePriceChange(entryPrice, exitPrice)
}

// CalculateWeightedAverage вычисляет средневзвешенное значение (VWAP).
//
// Используется для расчёта средневзвешенной цены по стакану ордеров
// и средней цены исполнения по нескольким частям аварийного выхода.
//
// Формула:
//
//	VWAP = Σ(price_i × volume_i) / Σ(volume_i)
//
// Параметры:
//   - values: слайс цен (price levels)
//   - weights: слайс объёмов (volumes на каждом уровне)
//
// Возвращает:
//   - Средневзвешенное значение
//   - 0 если входные данные некорректны
func CalculateWeightedAverage(values, weights []float64) float64 {
	if len(values) == 0 || len(weights) == 0 {
		return 0
	}
	if len(values) != len(weights) {
		return 0
	}

	var sumWeighted, sumWeights float64
	for i := range values {
		if weights[i] < 0 {
			continue // Пропускаем отрицательные веса
		}
		sumWeighted += values[i] * weights[i]
		sumWeights += weights[i]
	}

	if sumWeights == 0 {
		return 0
	}
	return sumWeighted / sumWeights
}

// OrderBookLevel представляет один уровень стакана ордеров
type OrderBookLevel struct {
	Price  float64
	Volume float64
}

// SimulateMarketSell моделирует рыночную продажу заданного объёма.
//
// Проходит по уровням Bid (от лучшего к худшему) и рассчитывает
// средневзвешенную цену продажи с учётом глубины стакана. Используется
// для оценки проскальзывания перед аварийным выходом.
//
// Параметры:
//   - bids: уровни Bid (заявки на покупку), отсортированы по убыванию цены
//   - targetVolume: требуемый объём продажи
//
// Возвращает:
//   - avgPrice: средневзвешенная цена продажи
//   - filledVolume: реально доступный объём (может быть < targetVolume)
//   - slippage: проскальзывание в процентах (отрицательное, т.к. цена падает)
func SimulateMarketSell(bids []OrderBookLevel, targetVolume float64) (avgPrice, filledVolume, slippage float64) {
	if len(bids) == 0 || targetVolume <= 0 {
		return 0, 0, 0
	}

	bestPrice := bids[0].Price
	if bestPrice <= 0 {
		return 0, 0, 0
	}

	var sumCost float64 // Σ(price × volume)
	remaining := targetVolume

	for _, level := range bids {
		if level.Price <= 0 || level.Volume <= 0 {
			continue
		}

		take := math.Min(remaining, level.Volume)
		sumCost += level.Price * take
		filledVolume += take
		remaining -= take

		if remaining <= 0 {
			break
		}
	}

	if filledVolume == 0 {
		return 0, 0, 0
	}

	avgPrice = sumCost / filledVolume
	// Для продажи slippage отрицательный (получаем меньше чем лучшая цена)
	slippage = (avgPrice - bestPrice) / bestPrice * 100

	return avgPrice, filledVolume, slippage
}

// CalculatePNL расчитывает прибыль/убыток по позиции.
//
// Формула для лонга:
//
//	PNL = (P_close - P_open) × qty
//
// Параметры:
//   - entryPrice: цена входа
//   - currentPrice: текущая/выходная цена
//   - quantity: объём позиции
//
// Возвращает:
//   - PNL в валюте котировки (обычно USDT)
func CalculatePNL(entryPrice, currentPrice, quantity float64) float64 {
	if quantity <= 0 {
		return 0
	}
	return (currentPrice - entryPrice) * quantity
}

// SplitVolume разбивает общий объём на N равных частей.
//
// Используется для аварийного выхода частями (SPLIT_ORDERS).
// Каждая часть округляется до lotSize, остаток добавляется к последней
// части, чтобы сумма частей покрывала весь объём.
//
// Параметры:
//   - totalVolume: общий объём
//   - nParts: количество частей
//   - lotSize: минимальный шаг объёма
//
// Возвращает:
//   - Слайс объёмов для каждой части
func SplitVolume(totalVolume float64, nParts int, lotSize float64) []float64 {
	if nParts <= 0 || totalVolume <= 0 {
		return nil
	}

	if nParts == 1 {
		return []float64{RoundToLotSize(totalVolume, lotSize)}
	}

	partSize := totalVolume / float64(nParts)
	roundedPart := RoundToLotSize(partSize, lotSize)

	if roundedPart <= 0 {
		// Если часть слишком маленькая, возвращаем один ордер
		return []float64{RoundToLotSize(totalVolume, lotSize)}
	}

	parts := make([]float64, nParts)
	for i := range parts {
		parts[i] = roundedPart
	}

	// Остаток от округления уходит в последнюю часть
	remainder := RoundToLotSize(totalVolume-roundedPart*float64(nParts), lotSize)
	if remainder > 0 {
		parts[nParts-1] += remainder
	}

	return parts
}

// Abs возвращает абсолютное значение числа.
func Abs(x float64) float64 {
	return math.Abs(x)
}

// Min возвращает минимум из двух чисел.
func Min(a, b float64) float64 {
	return math.Min(a, b)
}

// Max возвращает максимум из двух чисел.
func Max(a, b float64) float64 {
	return math.Max(a, b)
}

// Clamp ограничивает значение диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
