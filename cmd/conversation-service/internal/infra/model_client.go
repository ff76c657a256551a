package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"neurocopilot/cmd/conversation-service/internal/domain"
	"neurocopilot/cmd/conversation-service/internal/metrics"
	"neurocopilot/pkg/observability"
	"neurocopilot/pkg/resilience"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// MaxCitations 每次回答最多保留的引用数
	MaxCitations = 5

	defaultEndpoint        = "https://cloudcode-pa.googleapis.com/v1internal:generateContent"
	defaultModel           = "gemini-3-pro-preview"
	defaultForceSearchHint = "IMPORTANT: you must use Google Search to answer this request."
	errorSnippetLimit      = 200
)

var (
	errEmptyAccessToken = errors.New("token endpoint returned an empty access token")
	errQuotaExhausted   = errors.New("quota exhausted")
)

// ModelClientConfig 模型客户端配置
type ModelClientConfig struct {
	Endpoint           string        `mapstructure:"endpoint"`
	Model              string        `mapstructure:"model"`
	Temperature        float64       `mapstructure:"temperature"`
	MaxOutputTokens    int           `mapstructure:"max_output_tokens"`
	MaxAttempts        int           `mapstructure:"max_attempts"`          // 总尝试次数
	RateLimitBaseDelay time.Duration `mapstructure:"rate_limit_base_delay"` // 429 退避基数，按 2^attempt 递增
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ForceSearchHint    string        `mapstructure:"force_search_hint"`
	UserAgent          string        `mapstructure:"user_agent"`
}

// SetDefaults 填充默认值
func (c *ModelClientConfig) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Temperature == 0 {
		c.Temperature = 0.9
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = 65536
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RateLimitBaseDelay <= 0 {
		c.RateLimitBaseDelay = 5 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.ForceSearchHint == "" {
		c.ForceSearchHint = defaultForceSearchHint
	}
	if c.UserAgent == "" {
		c.UserAgent = "google-api-nodejs-client/9.15.1"
	}
}

// upstreamStatusError 非 2xx 响应
type upstreamStatusError struct {
	status int
	body   string
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

// ModelClient 换取访问令牌并发起一次结构化生成请求，同一账号内有界重试
type ModelClient struct {
	config     *ModelClientConfig
	tokens     *TokenExchanger
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
}

// NewModelClient 创建模型客户端
func NewModelClient(config *ModelClientConfig, tokens *TokenExchanger, httpClient *http.Client, logger *zap.Logger) *ModelClient {
	config.SetDefaults()
	return &ModelClient{
		config:     config,
		tokens:     tokens,
		httpClient: httpClient,
		sleep:      resilience.SleepContext,
		logger:     logger.With(zap.String("module", "model-client")),
	}
}

// NewHTTPClient 创建上游 HTTP 客户端
func NewHTTPClient(config *ModelClientConfig) *http.Client {
	config.SetDefaults()
	return &http.Client{Timeout: config.RequestTimeout}
}

// Generate 发起生成请求。429 在同一账号上指数退避重试，其他临时错误立即重试；
// 凭证错误不重试。用尽尝试次数后，最后原因为配额时返回 RateLimited，否则返回最后的错误。
func (c *ModelClient) Generate(ctx context.Context, account *domain.Account, messages []*domain.Message, systemPrompt string, opts domain.GenerateOptions) (*domain.Generation, error) {
	ctx, span := observability.StartSpan(ctx, "model-client", "ModelClient.Generate")
	defer span.End()
	observability.SetAttributes(span,
		observability.AttrAccount.String(account.Identity),
		observability.AttrMessages.Int(len(messages)),
		attribute.Bool("force_search", opts.ForceExternalLookup),
	)

	var (
		result   *domain.Generation
		lastErr  error
		attempts int
	)

	policy := resilience.RetryPolicy{
		MaxAttempts: c.config.MaxAttempts,
		RetryableErrors: func(err error) bool {
			return isRetryable(err)
		},
		Backoff: func(attempt int, err error) time.Duration {
			if errors.Is(err, errQuotaExhausted) {
				return resilience.ExponentialDelay(c.config.RateLimitBaseDelay, attempt)
			}
			return 0
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			c.logger.Warn("retrying generation",
				zap.String("identity", account.Identity),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.config.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
		Sleep: c.sleep,
	}

	err := resilience.Retry(ctx, policy, func(attempt int) error {
		attempts = attempt + 1
		gen, err := c.attempt(ctx, account, messages, systemPrompt, opts)
		if err != nil {
			lastErr = err
			return err
		}
		result = gen
		return nil
	})
	if err == nil {
		return result, nil
	}

	observability.RecordError(span, err)
	switch {
	case !errors.Is(err, resilience.ErrMaxRetriesExceeded):
		return nil, err
	case errors.Is(lastErr, errQuotaExhausted):
		return nil, &domain.RateLimited{Identity: account.Identity, Attempts: attempts}
	default:
		return nil, lastErr
	}
}

// attempt 单次请求：换取令牌、发送、解析
func (c *ModelClient) attempt(ctx context.Context, account *domain.Account, messages []*domain.Message, systemPrompt string, opts domain.GenerateOptions) (*domain.Generation, error) {
	accessToken, err := c.tokens.AccessToken(ctx, account)
	if err != nil {
		metrics.ModelAttemptsTotal.WithLabelValues(metrics.OutcomeCredential).Inc()
		return nil, err
	}

	body, err := json.Marshal(c.buildEnvelope(account, messages, systemPrompt, opts))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ModelRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelAttemptsTotal.WithLabelValues(metrics.OutcomeTransient).Inc()
		return nil, &domain.TransientUpstreamError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ModelAttemptsTotal.WithLabelValues(metrics.OutcomeTransient).Inc()
		return nil, &domain.TransientUpstreamError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(account, resp.StatusCode, payload)
	}

	var decoded generateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		metrics.ModelAttemptsTotal.WithLabelValues(metrics.OutcomeTransient).Inc()
		return nil, &domain.TransientUpstreamError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	metrics.ModelAttemptsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	return parseGeneration(&decoded), nil
}

func (c *ModelClient) classifyStatus(account *domain.Account, status int, payload []byte) error {
	statusErr := &upstreamStatusError{status: status, body: truncate(string(payload), errorSnippetLimit)}

	switch {
	case status == http.StatusTooManyRequests:
		metrics.ModelAttemptsTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		c.logger.Warn("upstream quota exhausted", zap.String("identity", account.Identity))
		return &domain.TransientUpstreamError{Status: status, Err: fmt.Errorf("%w: %w", errQuotaExhausted, statusErr)}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		metrics.ModelAttemptsTotal.WithLabelValues(metrics.OutcomeCredential).Inc()
		c.tokens.Forget(account)
		return &domain.CredentialError{Identity: account.Identity, Err: statusErr}
	default:
		metrics.ModelAttemptsTotal.WithLabelValues(metrics.OutcomeTransient).Inc()
		return &domain.TransientUpstreamError{Status: status, Err: statusErr}
	}
}

func (c *ModelClient) buildEnvelope(account *domain.Account, messages []*domain.Message, systemPrompt string, opts domain.GenerateOptions) *generateEnvelope {
	contents := make([]content, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, content{
			Role:  string(m.Role),
			Parts: []part{{Text: m.Content}},
		})
	}

	temperature := c.config.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens := c.config.MaxOutputTokens
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}

	request := generateRequest{
		Contents: contents,
		GenerationConfig: &generationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
		},
	}
	if !opts.DisableTools {
		request.Tools = []tool{{GoogleSearch: &struct{}{}}}
	}

	instruction := systemPrompt
	if opts.ForceExternalLookup {
		instruction += "\n\n" + c.config.ForceSearchHint
	}
	if instruction != "" {
		request.SystemInstruction = &content{
			Role:  "user",
			Parts: []part{{Text: instruction}},
		}
	}

	tag := opts.RequestTag
	if tag == "" {
		tag = "bot"
	}
	return &generateEnvelope{
		Project:     account.ProjectContext,
		Model:       c.config.Model,
		Request:     request,
		RequestType: "agent",
		UserAgent:   "antigravity",
		RequestID:   tag + "-" + uuid.NewString(),
	}
}

// parseGeneration 选取第一个非推理的文本片段，否则第一个文本片段；引用按 URL 去重，最多 5 条
func parseGeneration(resp *generateResponse) *domain.Generation {
	gen := &domain.Generation{}
	cand := resp.firstCandidate()
	if cand == nil {
		return gen
	}

	if cand.Content != nil {
		var fallback *part
		for i := range cand.Content.Parts {
			p := &cand.Content.Parts[i]
			if p.Text == "" {
				continue
			}
			if fallback == nil {
				fallback = p
			}
			if !p.isReasoning() {
				gen.Text = p.Text
				break
			}
		}
		if gen.Text == "" && fallback != nil {
			gen.Text = fallback.Text
		}
	}

	if cand.GroundingMetadata != nil {
		seen := make(map[string]struct{})
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" || chunk.Web.Title == "" {
				continue
			}
			if _, dup := seen[chunk.Web.URI]; dup {
				continue
			}
			seen[chunk.Web.URI] = struct{}{}
			gen.Citations = append(gen.Citations, domain.Citation{Title: chunk.Web.Title, URL: chunk.Web.URI})
			if len(gen.Citations) == MaxCitations {
				break
			}
		}
	}
	return gen
}

// isRetryable 凭证错误和请求本身无效（4xx，429 除外）不重试
func isRetryable(err error) bool {
	if domain.IsCredentialError(err) {
		return false
	}
	var transient *domain.TransientUpstreamError
	if errors.As(err, &transient) {
		if transient.Status == http.StatusTooManyRequests {
			return true
		}
		return transient.Status == 0 || transient.Status >= 500 || transient.Status == http.StatusOK
	}
	return false
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
