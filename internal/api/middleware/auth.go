package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"tradexec/pkg/crypto"
)

// apiTokenHash - bcrypt хеш API токена из переменной окружения
// API_TOKEN_HASH. Сам токен нигде не хранится. Если хеш не задан,
// API работает без аутентификации (локальное развертывание).
var apiTokenHash = os.Getenv("API_TOKEN_HASH")

// debugUsername и debugPassword защищают debug/pprof endpoints.
// Загружаются из DEBUG_USERNAME и DEBUG_PASSWORD.
var (
	debugUsername = os.Getenv("DEBUG_USERNAME")
	debugPassword = os.Getenv("DEBUG_PASSWORD")
)

// Auth - middleware для аутентификации API запросов
//
// Проверяет токен из заголовка Authorization: Bearer <token> против
// bcrypt хеша из API_TOKEN_HASH. bcrypt сравнение устойчиво к timing
// attacks, хеш в окружении безопаснее plaintext токена.
//
// Если API_TOKEN_HASH не задан, все запросы пропускаются: система
// рассчитана на единственного оператора за локальным развертыванием,
// auth включается только при выносе API наружу.
func Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiTokenHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if !crypto.CheckPasswordMatch(token, apiTokenHash) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// DebugAuth - middleware для защиты debug/pprof endpoints
//
// HTTP Basic Authentication с constant-time сравнением. Если
// credentials не настроены, доступ разрешен только в development
// (ENV пустой или "development").
func DebugAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if debugUsername == "" || debugPassword == "" {
			if env := os.Getenv("ENV"); env == "development" || env == "" {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Debug endpoints disabled. Set DEBUG_USERNAME and DEBUG_PASSWORD.", http.StatusForbidden)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(debugUsername)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(debugPassword)) == 1

		if !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
