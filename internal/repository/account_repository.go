package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradexec/internal/models"
)

// Ошибки репозитория аккаунтов шлюза
var (
	ErrAccountNotFound = errors.New("gateway account not found")
)

// AccountRepository - работа с таблицей gateway_accounts
//
// API ключи хранятся зашифрованными (pkg/crypto), репозиторий
// работает с шифртекстом и не знает ключа шифрования.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository создает новый экземпляр репозитория
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, name, api_key, secret_key, connected, balance, last_error, updated_at, created_at`

// Create создает аккаунт шлюза
func (r *AccountRepository) Create(account *models.GatewayAccount) error {
	query := `
		INSERT INTO gateway_accounts (name, api_key, secret_key, connected, balance, last_error, updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	return r.db.QueryRow(
		query,
		account.Name,
		account.APIKey,
		account.SecretKey,
		account.Connected,
		account.Balance,
		account.LastError,
		account.UpdatedAt,
		account.CreatedAt,
	).Scan(&account.ID)
}

// GetByName возвращает аккаунт по имени (live, paper)
func (r *AccountRepository) GetByName(name string) (*models.GatewayAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM gateway_accounts WHERE name = $1`

	account, err := scanAccount(r.db.QueryRow(query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// GetAll возвращает все аккаунты
func (r *AccountRepository) GetAll() ([]*models.GatewayAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM gateway_accounts ORDER BY name`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.GatewayAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

// UpdateKeys обновляет зашифрованные API ключи аккаунта
func (r *AccountRepository) UpdateKeys(name, apiKey, secretKey string) error {
	query := `
		UPDATE gateway_accounts
		SET api_key = $1, secret_key = $2, updated_at = $3
		WHERE name = $4`

	return r.execOnAccount(query, apiKey, secretKey, time.Now(), name)
}

// UpdateBalance обновляет баланс аккаунта
func (r *AccountRepository) UpdateBalance(name string, balance float64) error {
	query := `
		UPDATE gateway_accounts
		SET balance = $1, updated_at = $2
		WHERE name = $3`

	return r.execOnAccount(query, balance, time.Now(), name)
}

// UpdateConnection обновляет состояние подключения и последнюю ошибку
func (r *AccountRepository) UpdateConnection(name string, connected bool, lastError string) error {
	query := `
		UPDATE gateway_accounts
		SET connected = $1, last_error = $2, updated_at = $3
		WHERE name = $4`

	return r.execOnAccount(query, connected, lastError, time.Now(), name)
}

// Delete удаляет аккаунт
func (r *AccountRepository) Delete(name string) error {
	return r.execOnAccount(`DELETE FROM gateway_accounts WHERE name = $1`, name)
}

func (r *AccountRepository) execOnAccount(query string, args ...interface{}) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func scanAccount(row rowScanner) (*models.GatewayAccount, error) {
	account := &models.GatewayAccount{}
	var lastError sql.NullString

	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.APIKey,
		&account.SecretKey,
		&account.Connected,
		&account.Balance,
		&lastError,
		&account.UpdatedAt,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.LastError = lastError.String
	return account, nil
}
