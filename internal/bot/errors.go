package bot

import (
	"errors"
	"fmt"
)

// Ошибки жизненного цикла позиций
var (
	ErrPositionNotFound = errors.New("position not found")
	ErrEntriesHalted    = errors.New("new entries halted by risk manager")
	ErrAlreadyClosing   = errors.New("position is already closing")
)

// ValidationError - отказ риск-проверки перед входом
// Позиция с такой ошибкой переводится в REJECTED без обращения к шлюзу
type ValidationError struct {
	Asset  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Asset, e.Reason)
}

// SubmissionError - ошибка размещения ордера после исчерпания retry
type SubmissionError struct {
	PositionID string
	Attempts   int
	Err        error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("order submission failed for position %s after %d attempts: %v",
		e.PositionID, e.Attempts, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// PartialFillError - часть чанков аварийного выхода не исполнилась
type PartialFillError struct {
	PositionID  string
	TotalChunks int
	FailedChunk int
	FilledQty   float64
	TotalQty    float64
	Err         error
}

func (e *PartialFillError) Error() string {
	return fmt.Sprintf("partial fill for position %s: chunk %d/%d failed, filled %.8f of %.8f: %v",
		e.PositionID, e.FailedChunk, e.TotalChunks, e.FilledQty, e.TotalQty, e.Err)
}

func (e *PartialFillError) Unwrap() error {
	return e.Err
}

// CriticalFailure - аварийное закрытие не удалось всеми способами
// Позиция переводится в FAILED, новые входы блокируются
type CriticalFailure struct {
	PositionID string
	Asset      string
	Reasons    []string
	LastErr    error
}

func (e *CriticalFailure) Error() string {
	return fmt.Sprintf("critical failure closing position %s (%s): %v", e.PositionID, e.Asset, e.LastErr)
}

func (e *CriticalFailure) Unwrap() error {
	return e.LastErr
}
