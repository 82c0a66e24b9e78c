package handlers

import (
	"errors"
	"net/http"

	"tradexec/internal/models"
	"tradexec/internal/service"

	"github.com/gorilla/mux"
)

// AccountHandler отвечает за аккаунты торгового шлюза
//
// Endpoints:
// - GET /api/v1/accounts - список аккаунтов (без ключей)
// - PUT /api/v1/accounts/{name}/keys - сохранить API ключи аккаунта
//
// Ключи принимаются только на запись: сервис шифрует их перед
// сохранением, и ни один endpoint не возвращает их обратно.
type AccountHandler struct {
	accountService service.AccountServiceInterface
}

// NewAccountHandler создает новый AccountHandler с внедрением зависимости
func NewAccountHandler(accountService service.AccountServiceInterface) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

// GetAccounts возвращает все аккаунты шлюза
//
// GET /api/v1/accounts
//
// В ответе connected, balance и last_error, ключи всегда пустые.
//
// HTTP коды:
// - 200 OK: успешно
// - 500 Internal Server Error: ошибка БД
func (h *AccountHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountService.GetAccounts()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to get accounts: "+err.Error())
		return
	}

	if accounts == nil {
		accounts = []*models.GatewayAccount{}
	}
	respondWithJSON(w, http.StatusOK, accounts)
}

// SaveKeysRequest представляет запрос на сохранение API ключей
type SaveKeysRequest struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

// SaveKeys шифрует и сохраняет API ключи аккаунта
//
// PUT /api/v1/accounts/{name}/keys
//
// Request body:
//
//	{"api_key": "...", "secret_key": "..."}
//
// Если аккаунта с таким именем нет, он создается.
// Новые ключи применяются при следующем подключении шлюза.
//
// HTTP коды:
// - 200 OK: ключи сохранены
// - 400 Bad Request: невалидный JSON или пустые ключи
// - 500 Internal Server Error: ошибка шифрования или БД
func (h *AccountHandler) SaveKeys(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req SaveKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.accountService.SaveCredentials(name, req.APIKey, req.SecretKey); err != nil {
		if errors.Is(err, service.ErrEmptyCredentials) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to save credentials: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "credentials saved for account " + name,
	})
}
