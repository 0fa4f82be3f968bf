// Пакет auth: сессии панели и вход через Discord OAuth2.
// Сессия хранится в cookie, зашифрованном AES-256-GCM.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SessionCookieName: имя cookie зашифрованной сессии.
const SessionCookieName = "pd_session"

// SessionCookieMaxAge: максимальный возраст cookie сессии (7 дней).
const SessionCookieMaxAge = 7 * 24 * 60 * 60

// SessionData: данные сессии в зашифрованном cookie.
type SessionData struct {
	// AccessToken: OAuth2 access token Discord.
	AccessToken string `json:"access_token"`
	// RefreshToken: токен для обновления access token.
	RefreshToken string `json:"refresh_token"`
	// ExpiresAt: время истечения access token (Unix timestamp).
	ExpiresAt int64 `json:"expires_at"`
	// DiscordID: внешний идентификатор пользователя.
	DiscordID  string `json:"discord_id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	// UserID: внутренний id пользователя панели, когда уже известен.
	UserID string `json:"user_id,omitempty"`
}

// IsExpired проверяет, истёк ли access token.
// Возвращает true если до истечения менее 30 секунд (буфер для refresh).
func (s *SessionData) IsExpired() bool {
	return time.Now().Unix() >= s.ExpiresAt-30
}

// ApplyTokens переносит в сессию токены из ответа token endpoint.
func (s *SessionData) ApplyTokens(tr *TokenResponse, now time.Time) {
	s.AccessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		s.RefreshToken = tr.RefreshToken
	}
	s.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second).Unix()
}

// SessionManager шифрует и дешифрует SessionData в HTTP cookies.
type SessionManager struct {
	gcm cipher.AEAD
	// secure: Secure flag для cookie (true для HTTPS).
	secure bool
}

// NewSessionManager создаёт новый менеджер сессий.
// key: base64 32-байтового ключа или произвольная строка (хешируется SHA-256).
// Если key пустой, генерируется случайный ключ (непостоянный между рестартами).
func NewSessionManager(key string, secure bool) (*SessionManager, error) {
	keyBytes, err := DeriveKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &SessionManager{
		gcm:    gcm,
		secure: secure,
	}, nil
}

// DeriveKey превращает секрет из конфигурации в 32-байтовый ключ.
// Тот же ключ подписывает API-токены.
func DeriveKey(key string) ([]byte, error) {
	if key == "" {
		keyBytes := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
		return keyBytes, nil
	}
	keyBytes, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(keyBytes) != 32 {
		h := sha256.Sum256([]byte(key))
		return h[:], nil
	}
	return keyBytes, nil
}

// Secure сообщает, ставится ли Secure flag на cookie.
func (sm *SessionManager) Secure() bool {
	return sm.secure
}

// Encrypt сериализует v в JSON, шифрует и возвращает base64url-строку.
func (sm *SessionManager) Encrypt(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	nonce := make([]byte, sm.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	// nonce в начале шифротекста
	ciphertext := sm.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// DecryptInto дешифрует строку, полученную от Encrypt, в v.
func (sm *SessionManager) DecryptInto(encrypted string, v any) error {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := sm.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return errors.New("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := sm.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("ошибка дешифрования сессии: %w", err)
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("ошибка десериализации сессии: %w", err)
	}
	return nil
}

// Decrypt дешифрует строку обратно в SessionData.
func (sm *SessionManager) Decrypt(encrypted string) (*SessionData, error) {
	var data SessionData
	if err := sm.DecryptInto(encrypted, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SetSessionCookie устанавливает зашифрованный session cookie в ответ.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, data *SessionData) error {
	encrypted, err := sm.Encrypt(data)
	if err != nil {
		return err
	}

	http.SetCookie(w, sm.cookie(SessionCookieName, encrypted, SessionCookieMaxAge))
	return nil
}

// GetSessionFromRequest извлекает и дешифрует SessionData из cookie запроса.
// Возвращает nil, nil если cookie отсутствует.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*SessionData, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}

	return sm.Decrypt(cookie.Value)
}

// ClearSessionCookie удаляет session cookie (logout, принудительный выход).
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, sm.cookie(SessionCookieName, "", -1))
}

// cookie создаёт HttpOnly cookie на весь сайт.
func (sm *SessionManager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetEncryptedCookie шифрует v и устанавливает cookie name на maxAge секунд.
func (sm *SessionManager) SetEncryptedCookie(w http.ResponseWriter, name string, v any, maxAge int) error {
	encrypted, err := sm.Encrypt(v)
	if err != nil {
		return err
	}
	http.SetCookie(w, sm.cookie(name, encrypted, maxAge))
	return nil
}

// ReadEncryptedCookie дешифрует cookie name в v.
func (sm *SessionManager) ReadEncryptedCookie(r *http.Request, name string, v any) error {
	cookie, err := r.Cookie(name)
	if err != nil {
		return err
	}
	return sm.DecryptInto(cookie.Value, v)
}

// ClearCookie удаляет cookie name.
func (sm *SessionManager) ClearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, sm.cookie(name, "", -1))
}
