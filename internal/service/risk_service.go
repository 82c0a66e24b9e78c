package service

import (
	"errors"

	"tradexec/internal/models"
)

// Ошибки сервиса рисков
var (
	ErrNotHalted = errors.New("risk manager is not halted")
)

// RiskService - тонкая обертка над риск-менеджером ядра для API.
//
// Сама логика рисков живет в internal/bot (RiskManager): ей нужен
// мгновенный доступ к runtime состоянию позиций, без похода в БД.
// Сервис дает дашборду срез состояния и ручные операции оператора.
type RiskService struct {
	risk RiskStatusProvider
}

// NewRiskService создает новый экземпляр RiskService.
func NewRiskService(risk RiskStatusProvider) *RiskService {
	return &RiskService{risk: risk}
}

// GetStatus возвращает текущее состояние риск-бюджета.
func (s *RiskService) GetStatus() models.RiskStatus {
	return s.risk.Status()
}

// ResetHalt снимает остановку входов вручную.
//
// Требуется после остановки по просадке или критическому отказу:
// такие остановки не снимаются суточным сбросом.
func (s *RiskService) ResetHalt() error {
	halted, _ := s.risk.Halted()
	if !halted {
		return ErrNotHalted
	}
	s.risk.ResetHalt()
	return nil
}

// ResetDailyMetrics сбрасывает дневные метрики вручную.
func (s *RiskService) ResetDailyMetrics() {
	s.risk.ResetDailyMetrics()
}
