package service

import (
	"errors"

	"tradexec/internal/models"
	"tradexec/internal/repository"
	"tradexec/pkg/crypto"
)

// Ошибки сервиса аккаунтов
var (
	ErrEmptyCredentials = errors.New("api key and secret key must not be empty")
)

// AccountService управляет аккаунтами торгового шлюза.
//
// API ключи шифруются (AES-256-GCM) перед сохранением в БД,
// расшифровка происходит только при создании шлюза на старте.
// Наружу (JSON) ключи не отдаются никогда.
type AccountService struct {
	accountRepo   AccountRepositoryInterface
	encryptionKey []byte
}

// NewAccountService создает новый экземпляр AccountService.
func NewAccountService(accountRepo AccountRepositoryInterface, encryptionKey []byte) *AccountService {
	return &AccountService{
		accountRepo:   accountRepo,
		encryptionKey: encryptionKey,
	}
}

// GetAccounts возвращает все аккаунты без ключей.
func (s *AccountService) GetAccounts() ([]*models.GatewayAccount, error) {
	accounts, err := s.accountRepo.GetAll()
	if err != nil {
		return nil, err
	}

	// Шифртекст тоже не отдаем
	for _, a := range accounts {
		a.APIKey = ""
		a.SecretKey = ""
	}
	return accounts, nil
}

// SaveCredentials шифрует и сохраняет ключи аккаунта.
// Если аккаунта нет, он создается.
func (s *AccountService) SaveCredentials(name, apiKey, secretKey string) error {
	if apiKey == "" || secretKey == "" {
		return ErrEmptyCredentials
	}

	encAPIKey, err := crypto.EncryptSecret(apiKey, s.encryptionKey)
	if err != nil {
		return err
	}
	encSecretKey, err := crypto.EncryptSecret(secretKey, s.encryptionKey)
	if err != nil {
		return err
	}

	err = s.accountRepo.UpdateKeys(name, encAPIKey, encSecretKey)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return s.accountRepo.Create(&models.GatewayAccount{
			Name:      name,
			APIKey:    encAPIKey,
			SecretKey: encSecretKey,
		})
	}
	return err
}

// Credentials возвращает расшифрованные ключи аккаунта.
// Используется только при инициализации шлюза.
func (s *AccountService) Credentials(name string) (string, string, error) {
	account, err := s.accountRepo.GetByName(name)
	if err != nil {
		return "", "", err
	}

	apiKey, err := crypto.DecryptSecret(account.APIKey, s.encryptionKey)
	if err != nil {
		return "", "", err
	}
	secretKey, err := crypto.DecryptSecret(account.SecretKey, s.encryptionKey)
	if err != nil {
		return "", "", err
	}

	return apiKey, secretKey, nil
}

// UpdateBalance обновляет баланс аккаунта после сверки со шлюзом.
func (s *AccountService) UpdateBalance(name string, balance float64) error {
	return s.accountRepo.UpdateBalance(name, balance)
}

// UpdateConnection фиксирует состояние подключения шлюза.
func (s *AccountService) UpdateConnection(name string, connected bool, lastError string) error {
	return s.accountRepo.UpdateConnection(name, connected, lastError)
}
