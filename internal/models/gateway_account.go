package models

import "time"

// GatewayAccount представляет аккаунт торгового шлюза с API ключами
type GatewayAccount struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`    // live, paper
	APIKey    string    `json:"-" db:"api_key"`    // зашифрован, не возвращается в JSON
	SecretKey string    `json:"-" db:"secret_key"` // зашифрован
	Connected bool      `json:"connected" db:"connected"`
	Balance   float64   `json:"balance" db:"balance"` // equity в quote валюте
	LastError string    `json:"last_error,omitempty" db:"last_error"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
