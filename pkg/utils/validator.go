package utils

import (
	"errors"
	"fmt"
	"strings"
)

// validator.go - валидация входных данных
//
// Назначение:
// Проверка корректности данных, приходящих из API и конфигурации,
// до того как они попадут в торговое ядро.
//
// Функции:
// - ValidateSymbol: проверка формата актива (BTCUSDT)
// - ValidateFraction: проверка доли [0, 1] (confidence, riskScore)
// - ValidateVolume: проверка объема (> 0)
// - ValidateAPIKey / ValidateAPISecret: базовая проверка ключей шлюза
// - ValidateDecisionInput: комплексная проверка торгового решения
//
// Возвращает error с описанием проблемы или nil

// Сентинельные ошибки валидации
var (
	ErrInvalidSymbol    = errors.New("некорректный формат актива")
	ErrInvalidFraction  = errors.New("значение должно быть в диапазоне [0, 1]")
	ErrInvalidVolume    = errors.New("объем должен быть положительным")
	ErrInvalidPrice     = errors.New("цена должна быть положительной")
	ErrInvalidAction    = errors.New("неизвестное действие")
	ErrInvalidAPIKey    = errors.New("некорректный API ключ")
	ErrInvalidAPISecret = errors.New("некорректный API secret")
)

const (
	minSymbolLen = 2
	maxSymbolLen = 30
	minAPIKeyLen = 16
	maxVolume    = 1e9
)

// ValidateSymbol проверяет формат актива.
// Допустимы буквы, цифры и разделители - _ /
func ValidateSymbol(symbol string) error {
	if len(symbol) < minSymbolLen || len(symbol) > maxSymbolLen {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '/':
		default:
			return fmt.Errorf("%w: недопустимый символ %q", ErrInvalidSymbol, r)
		}
	}
	return nil
}

// IsValidSymbol булева обёртка над ValidateSymbol
func IsValidSymbol(symbol string) bool {
	return ValidateSymbol(symbol) == nil
}

// NormalizeSymbol приводит актив к каноническому виду: BTCUSDT
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
	return s
}

// ValidateFraction проверяет, что значение лежит в [0, 1].
// Используется для confidence и riskScore.
func ValidateFraction(value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidFraction, value)
	}
	return nil
}

// ValidateVolume проверяет объем ордера
func ValidateVolume(volume float64) error {
	if volume <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}
	if volume > maxVolume {
		return fmt.Errorf("%w: %v превышает максимум", ErrInvalidVolume, volume)
	}
	return nil
}

// ValidatePrice проверяет цену
func ValidatePrice(price float64) error {
	if price <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	return nil
}

// ValidateAPIKey базовая проверка API ключа шлюза
func ValidateAPIKey(apiKey string) error {
	if len(apiKey) < minAPIKeyLen {
		return ErrInvalidAPIKey
	}
	for _, r := range apiKey {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("%w: недопустимый символ", ErrInvalidAPIKey)
		}
	}
	return nil
}

// IsValidAPIKey булева обёртка над ValidateAPIKey
func IsValidAPIKey(apiKey string) bool {
	return ValidateAPIKey(apiKey) == nil
}

// ValidateAPISecret базовая проверка API secret.
// Секреты могут содержать любые печатные символы.
func ValidateAPISecret(secret string) error {
	if len(secret) < minAPIKeyLen {
		return ErrInvalidAPISecret
	}
	return nil
}

// ============================================================
// Комплексная валидация
// ============================================================

// DecisionInput представляет торговое решение для валидации на входе API
type DecisionInput struct {
	Asset      string
	Action     string
	Confidence float64
	RiskScore  float64
	EntryPrice float64
}

// ValidateDecisionInput проверяет все поля торгового решения.
// Собирает все ошибки сразу, не останавливаясь на первой.
func ValidateDecisionInput(in DecisionInput) error {
	var errs ValidationErrors

	errs.AddError("asset", ValidateSymbol(in.Asset))

	if in.Action != "BUY" && in.Action != "NONE" {
		errs.AddError("action", fmt.Errorf("%w: %q", ErrInvalidAction, in.Action))
	}

	errs.AddError("confidence", ValidateFraction(in.Confidence))
	errs.AddError("risk_score", ValidateFraction(in.RiskScore))
	errs.AddError("entry_price", ValidatePrice(in.EntryPrice))

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ============================================================
// Накопитель ошибок валидации
// ============================================================

// ValidationError одна ошибка валидации с указанием поля
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors накапливает ошибки по нескольким полям
type ValidationErrors []ValidationError

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку если она не nil
func (e *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	e.Add(field, err.Error())
}

// HasErrors сообщает, есть ли накопленные ошибки
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, err := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(parts, "; ")
}
