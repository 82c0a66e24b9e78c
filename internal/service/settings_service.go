package service

import (
	"errors"

	"tradexec/internal/models"
)

// Ошибки сервиса настроек
var (
	ErrInvalidMaxConcurrentPositions = errors.New("max_concurrent_positions must be >= 1 or null")
)

// SettingsService предоставляет бизнес-логику для управления глобальными настройками.
//
// Отвечает за:
// - Получение и обновление глобальных настроек движка
// - Валидацию параметров настроек
// - Управление notification_prefs, max_concurrent_positions, dry_run
type SettingsService struct {
	settingsRepo SettingsRepositoryInterface
}

// NewSettingsService создает новый экземпляр SettingsService.
func NewSettingsService(settingsRepo SettingsRepositoryInterface) *SettingsService {
	return &SettingsService{
		settingsRepo: settingsRepo,
	}
}

// GetSettings возвращает текущие глобальные настройки.
//
// Если записи в БД нет, создается запись с дефолтными значениями.
func (s *SettingsService) GetSettings() (*models.Settings, error) {
	return s.settingsRepo.Get()
}

// UpdateSettingsRequest представляет запрос на обновление настроек.
// Все поля опциональны, обновляются только переданные.
type UpdateSettingsRequest struct {
	MaxConcurrentPositions *int                            `json:"max_concurrent_positions,omitempty"`
	DryRun                 *bool                           `json:"dry_run,omitempty"`
	NotificationPrefs      *models.NotificationPreferences `json:"notification_prefs,omitempty"`
	// Флаг для явного сброса max_concurrent_positions в null (без ограничений)
	ClearMaxConcurrentPositions bool `json:"clear_max_concurrent_positions,omitempty"`
}

// UpdateSettings обновляет глобальные настройки.
//
// Принимает только те поля, которые нужно обновить.
//
// Правила валидации:
// - max_concurrent_positions: >= 1 или null (без ограничений)
// - dry_run и notification_prefs: bool, валидация не требуется
func (s *SettingsService) UpdateSettings(req *UpdateSettingsRequest) (*models.Settings, error) {
	settings, err := s.settingsRepo.Get()
	if err != nil {
		return nil, err
	}

	if req.DryRun != nil {
		settings.DryRun = *req.DryRun
	}

	if req.ClearMaxConcurrentPositions {
		settings.MaxConcurrentPositions = nil
	} else if req.MaxConcurrentPositions != nil {
		if *req.MaxConcurrentPositions < 1 {
			return nil, ErrInvalidMaxConcurrentPositions
		}
		settings.MaxConcurrentPositions = req.MaxConcurrentPositions
	}

	if req.NotificationPrefs != nil {
		settings.NotificationPrefs = *req.NotificationPrefs
	}

	if err := s.settingsRepo.Update(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// UpdateNotificationPrefs обновляет только настройки уведомлений.
func (s *SettingsService) UpdateNotificationPrefs(prefs models.NotificationPreferences) error {
	return s.settingsRepo.UpdateNotificationPrefs(prefs)
}

// UpdateDryRun переключает режим симуляции шлюза.
// Вступает в силу после перезапуска движка.
func (s *SettingsService) UpdateDryRun(dryRun bool) error {
	return s.settingsRepo.UpdateDryRun(dryRun)
}
