// discord.go: OAuth2-клиент Discord для входа в панель.
// Authorization Code Flow с PKCE (RFC 7636), профиль через REST /users/@me.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DiscordClient: клиент OAuth2 endpoints Discord.
// Confidential client: code обменивается с client_secret и PKCE verifier.
type DiscordClient struct {
	clientID     string
	clientSecret string
	scopes       string
	authorizeURL string
	tokenURL     string
	revokeURL    string
	httpClient   *http.Client
	profiles     ProfileFetcher
}

// DiscordConfig: конфигурация OAuth2-клиента Discord.
type DiscordConfig struct {
	// APIURL: базовый URL API (https://discord.com/api).
	APIURL       string
	ClientID     string
	ClientSecret string
	// Scopes: запрашиваемые scopes через пробел.
	Scopes string
	// HTTPClient: HTTP-клиент (nil: создаётся новый с Timeout).
	HTTPClient *http.Client
	Timeout    time.Duration
	// Profiles: источник профиля (nil: REST через discordgo).
	Profiles ProfileFetcher
}

// Profile: профиль пользователя Discord.
type Profile struct {
	ID         string
	Username   string
	GlobalName string
}

// ProfileFetcher получает профиль владельца access token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// NewDiscordClient создаёт клиент по конфигурации.
func NewDiscordClient(cfg DiscordConfig) *DiscordClient {
	base := strings.TrimRight(cfg.APIURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	profiles := cfg.Profiles
	if profiles == nil {
		profiles = &RESTProfileFetcher{HTTPClient: httpClient}
	}

	scopes := cfg.Scopes
	if scopes == "" {
		scopes = "identify"
	}

	return &DiscordClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes:       scopes,
		authorizeURL: base + "/oauth2/authorize",
		tokenURL:     base + "/oauth2/token",
		revokeURL:    base + "/oauth2/token/revoke",
		httpClient:   httpClient,
		profiles:     profiles,
	}
}

// PKCEParams: параметры PKCE для одного auth flow.
type PKCEParams struct {
	// CodeVerifier: случайная строка (хранится в state cookie).
	CodeVerifier string
	// CodeChallenge: base64url(SHA-256(code_verifier)).
	CodeChallenge string
}

// GeneratePKCE генерирует пару code_verifier / code_challenge (S256).
func GeneratePKCE() (*PKCEParams, error) {
	// 32 bytes → 43 символа base64url (без padding)
	verifierBytes := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, verifierBytes); err != nil {
		return nil, fmt.Errorf("ошибка генерации code_verifier: %w", err)
	}
	codeVerifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	hash := sha256.Sum256([]byte(codeVerifier))
	return &PKCEParams{
		CodeVerifier:  codeVerifier,
		CodeChallenge: base64.RawURLEncoding.EncodeToString(hash[:]),
	}, nil
}

// GenerateState генерирует случайный state parameter для CSRF-защиты.
func GenerateState() (string, error) {
	stateBytes := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, stateBytes); err != nil {
		return "", fmt.Errorf("ошибка генерации state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(stateBytes), nil
}

// AuthorizeURL формирует URL для redirect пользователя на страницу согласия Discord.
func (c *DiscordClient) AuthorizeURL(redirectURI, state, codeChallenge string) string {
	params := url.Values{
		"client_id":             {c.clientID},
		"response_type":         {"code"},
		"redirect_uri":          {redirectURI},
		"state":                 {state},
		"scope":                 {c.scopes},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"S256"},
		"prompt":                {"none"},
	}
	return c.authorizeURL + "?" + params.Encode()
}

// TokenResponse: ответ token endpoint Discord.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // G117: структура токена OAuth2
	RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// TokenError: ошибка token endpoint.
type TokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ExchangeCode обменивает authorization code на токены.
func (c *DiscordClient) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	return c.doTokenRequest(ctx, c.tokenURL, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {codeVerifier},
	})
}

// RefreshTokens обновляет access token через refresh token.
func (c *DiscordClient) RefreshTokens(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.doTokenRequest(ctx, c.tokenURL, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

// Revoke отзывает токен. Discord отвечает 200 с пустым телом.
func (c *DiscordClient) Revoke(ctx context.Context, token string) error {
	_, err := c.doTokenRequest(ctx, c.revokeURL, url.Values{
		"token":           {token},
		"token_type_hint": {"access_token"},
	})
	return err
}

// FetchProfile получает профиль владельца токена.
func (c *DiscordClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	return c.profiles.FetchProfile(ctx, accessToken)
}

// doTokenRequest выполняет POST к endpoint с учётными данными клиента.
// Пустое тело ответа даёт пустой TokenResponse.
func (c *DiscordClient) doTokenRequest(ctx context.Context, endpoint string, data url.Values) (*TokenResponse, error) {
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var tokenErr TokenError
		if jsonErr := json.Unmarshal(body, &tokenErr); jsonErr == nil && tokenErr.Error != "" {
			return nil, fmt.Errorf("token endpoint error: %s: %s", tokenErr.Error, tokenErr.Description)
		}
		return nil, fmt.Errorf("token endpoint вернул статус %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if len(strings.TrimSpace(string(body))) == 0 {
		return &tokenResp, nil
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("ошибка парсинга token response: %w", err)
	}
	return &tokenResp, nil
}

// RESTProfileFetcher читает /users/@me через discordgo с Bearer-токеном.
type RESTProfileFetcher struct {
	HTTPClient *http.Client
}

// FetchProfile реализует ProfileFetcher.
func (f *RESTProfileFetcher) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	s, err := discordgo.New("Bearer " + accessToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания сессии Discord: %w", err)
	}
	if f.HTTPClient != nil {
		s.Client = f.HTTPClient
	}

	u, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения профиля Discord: %w", err)
	}
	return &Profile{ID: u.ID, Username: u.Username, GlobalName: u.GlobalName}, nil
}
