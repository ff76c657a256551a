package infra

import (
	"context"
	"net/http"
	"sync"

	"neurocopilot/cmd/conversation-service/internal/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// OAuthConfig 凭证换取访问令牌的配置
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"` // 为空时使用 Google 默认端点
}

// TokenExchanger 用刷新令牌换取访问令牌
type TokenExchanger struct {
	config     *oauth2.Config
	httpClient *http.Client

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewTokenExchanger 创建令牌交换器
func NewTokenExchanger(c *OAuthConfig, httpClient *http.Client) *TokenExchanger {
	endpoint := google.Endpoint
	if c.TokenURL != "" {
		endpoint = oauth2.Endpoint{TokenURL: c.TokenURL}
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &TokenExchanger{
		config: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint:     endpoint,
		},
		httpClient: httpClient,
		sources:    make(map[string]oauth2.TokenSource),
	}
}

// AccessToken 返回有效的访问令牌，未过期的令牌会被复用
func (e *TokenExchanger) AccessToken(ctx context.Context, account *domain.Account) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token, err := e.source(account).Token()
	if err != nil {
		return "", &domain.CredentialError{Identity: account.Identity, Err: err}
	}
	if token.AccessToken == "" {
		return "", &domain.CredentialError{Identity: account.Identity, Err: errEmptyAccessToken}
	}
	return token.AccessToken, nil
}

// Forget 丢弃缓存的令牌
func (e *TokenExchanger) Forget(account *domain.Account) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sources, account.Credential)
}

func (e *TokenExchanger) source(account *domain.Account) oauth2.TokenSource {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ts, ok := e.sources[account.Credential]; ok {
		return ts
	}
	// 令牌源会在之后的刷新中复用这个 context，不能绑定单次请求
	base := context.WithValue(context.Background(), oauth2.HTTPClient, e.httpClient)
	ts := e.config.TokenSource(base, &oauth2.Token{RefreshToken: account.Credential})
	e.sources[account.Credential] = ts
	return ts
}
