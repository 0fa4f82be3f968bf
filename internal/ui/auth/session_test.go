package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestSessionEncryptDecryptRoundTrip проверяет шифрование и дешифрование SessionData.
func TestSessionEncryptDecryptRoundTrip(t *testing.T) {
	sm, err := NewSessionManager("", false)
	if err != nil {
		t.Fatalf("Ошибка создания SessionManager: %v", err)
	}

	original := &SessionData{
		AccessToken:  "test-access-token-12345",
		RefreshToken: "test-refresh-token-67890",
		ExpiresAt:    time.Now().Add(5 * time.Minute).Unix(),
		DiscordID:    "462716512252329996",
		Username:     "owner",
		GlobalName:   "The Owner",
		UserID:       "8d1f4a5e-0000-4000-8000-000000000001",
	}

	encrypted, err := sm.Encrypt(original)
	if err != nil {
		t.Fatalf("Ошибка шифрования: %v", err)
	}
	if encrypted == "" {
		t.Fatal("Зашифрованная строка пустая")
	}

	decrypted, err := sm.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Ошибка дешифрования: %v", err)
	}
	if *decrypted != *original {
		t.Errorf("после дешифрования %+v, хотели %+v", decrypted, original)
	}
}

// TestSessionManagerWithStringKey: один и тот же строковый ключ даёт совместимые менеджеры.
func TestSessionManagerWithStringKey(t *testing.T) {
	sm1, err := NewSessionManager("my-secret-key-for-testing", false)
	if err != nil {
		t.Fatalf("Ошибка создания SessionManager: %v", err)
	}
	sm2, _ := NewSessionManager("my-secret-key-for-testing", false)

	encrypted, err := sm1.Encrypt(&SessionData{AccessToken: "token123", DiscordID: "1"})
	if err != nil {
		t.Fatalf("Ошибка шифрования: %v", err)
	}
	decrypted, err := sm2.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Ошибка дешифрования: %v", err)
	}
	if decrypted.AccessToken != "token123" {
		t.Errorf("AccessToken = %q, ожидается token123", decrypted.AccessToken)
	}
}

// TestSessionDecryptWithWrongKey проверяет отказ при чужом ключе и мусоре.
func TestSessionDecryptWithWrongKey(t *testing.T) {
	sm1, _ := NewSessionManager("key-one", false)
	sm2, _ := NewSessionManager("key-two", false)

	encrypted, _ := sm1.Encrypt(&SessionData{AccessToken: "secret"})
	if _, err := sm2.Decrypt(encrypted); err == nil {
		t.Error("Дешифрование чужим ключом должно вернуть ошибку")
	}

	for _, garbage := range []string{"", "!!!", "YWJj"} {
		if _, err := sm1.Decrypt(garbage); err == nil {
			t.Errorf("Decrypt(%q) должен вернуть ошибку", garbage)
		}
	}
}

// TestSessionIsExpired проверяет буфер в 30 секунд.
func TestSessionIsExpired(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want bool
	}{
		{"в прошлом", -time.Minute, true},
		{"внутри буфера", 10 * time.Second, true},
		{"в будущем", 5 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &SessionData{ExpiresAt: time.Now().Add(tt.in).Unix()}
			if got := s.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, хотели %v", got, tt.want)
			}
		})
	}
}

// TestApplyTokens: пустой refresh token в ответе не затирает сохранённый.
func TestApplyTokens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &SessionData{AccessToken: "old", RefreshToken: "keep"}

	s.ApplyTokens(&TokenResponse{AccessToken: "new", ExpiresIn: 3600}, now)

	if s.AccessToken != "new" {
		t.Errorf("AccessToken = %q, ожидается new", s.AccessToken)
	}
	if s.RefreshToken != "keep" {
		t.Errorf("RefreshToken = %q, ожидается keep", s.RefreshToken)
	}
	if s.ExpiresAt != now.Unix()+3600 {
		t.Errorf("ExpiresAt = %d", s.ExpiresAt)
	}
}

// TestSessionCookieSetAndGet проверяет запись cookie в ответ и чтение из запроса.
func TestSessionCookieSetAndGet(t *testing.T) {
	sm, _ := NewSessionManager("cookie-key", true)

	rec := httptest.NewRecorder()
	if err := sm.SetSessionCookie(rec, &SessionData{AccessToken: "at", DiscordID: "42"}); err != nil {
		t.Fatalf("SetSessionCookie: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("ожидается 1 cookie, получено %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != SessionCookieName || c.Path != "/" || !c.HttpOnly || !c.Secure {
		t.Errorf("неожиданные атрибуты cookie: %+v", c)
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, ожидается Lax", c.SameSite)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	session, err := sm.GetSessionFromRequest(req)
	if err != nil {
		t.Fatalf("GetSessionFromRequest: %v", err)
	}
	if session == nil || session.DiscordID != "42" {
		t.Errorf("неожиданная сессия: %+v", session)
	}
}

// TestSessionCookieMissing: отсутствие cookie не ошибка.
func TestSessionCookieMissing(t *testing.T) {
	sm, _ := NewSessionManager("", false)
	session, err := sm.GetSessionFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil || session != nil {
		t.Errorf("ожидается nil, nil; получено %+v, %v", session, err)
	}
}

// TestClearSessionCookie проверяет удаление cookie.
func TestClearSessionCookie(t *testing.T) {
	sm, _ := NewSessionManager("", false)
	rec := httptest.NewRecorder()
	sm.ClearSessionCookie(rec)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 || cookies[0].Value != "" {
		t.Errorf("ожидается удаляющий cookie, получено %+v", cookies)
	}
}

// TestEncryptedCookie проверяет произвольные зашифрованные cookie.
func TestEncryptedCookie(t *testing.T) {
	sm, _ := NewSessionManager("", false)
	type state struct {
		State string `json:"state"`
	}

	rec := httptest.NewRecorder()
	if err := sm.SetEncryptedCookie(rec, "pd_test", state{State: "abc"}, 60); err != nil {
		t.Fatalf("SetEncryptedCookie: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	var got state
	if err := sm.ReadEncryptedCookie(req, "pd_test", &got); err != nil {
		t.Fatalf("ReadEncryptedCookie: %v", err)
	}
	if got.State != "abc" {
		t.Errorf("State = %q, ожидается abc", got.State)
	}
}
