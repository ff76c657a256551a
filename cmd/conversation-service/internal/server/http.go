package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"neurocopilot/cmd/conversation-service/internal/domain"
	"neurocopilot/cmd/conversation-service/internal/service"
	"neurocopilot/pkg/health"
	"neurocopilot/pkg/middleware"
	"neurocopilot/pkg/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProviderSet 服务器层提供者集合
var ProviderSet = wire.NewSet(NewHealthChecker, NewHTTPServer)

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr           string                       `mapstructure:"addr"`
	Mode           string                       `mapstructure:"mode"` // debug | release | test
	RequestTimeout time.Duration                `mapstructure:"request_timeout"`
	ReadTimeout    time.Duration                `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration                `mapstructure:"write_timeout"`
	MaxImportBytes int64                        `mapstructure:"max_import_bytes"`
	AdminToken     string                       `mapstructure:"admin_token"`
	TurnRateLimit  middleware.RateLimiterConfig `mapstructure:"turn_rate_limit"`
	Idempotency    middleware.IdempotencyConfig `mapstructure:"idempotency"`
}

// SetDefaults 填充默认值
func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Mode == "" {
		c.Mode = gin.ReleaseMode
	}
	if c.RequestTimeout <= 0 {
		// 一轮对话可能包含多次上游重试和一次压缩
		c.RequestTimeout = 10 * time.Minute
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = c.RequestTimeout + 30*time.Second
	}
	// 处理中锁覆盖整个请求超时
	if c.Idempotency.LockTTL < c.RequestTimeout+time.Minute {
		c.Idempotency.LockTTL = c.RequestTimeout + time.Minute
	}
	if c.MaxImportBytes <= 0 {
		c.MaxImportBytes = 32 << 20
	}
	if c.TurnRateLimit.KeyPrefix == "" {
		c.TurnRateLimit.KeyPrefix = "rate_limit:turns"
	}
	if c.TurnRateLimit.MaxRequests <= 0 {
		c.TurnRateLimit.MaxRequests = 20
	}
	if c.TurnRateLimit.Window <= 0 {
		c.TurnRateLimit.Window = time.Minute
	}
}

// HTTPServer HTTP 服务器
type HTTPServer struct {
	engine  *gin.Engine
	server  *http.Server
	service *service.CopilotService
	health  *health.HealthChecker
	redis   *redis.Client
	config  *HTTPConfig
	logger  *zap.Logger
}

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(
	config *HTTPConfig,
	svc *service.CopilotService,
	checker *health.HealthChecker,
	rdb *redis.Client,
	logger *zap.Logger,
) *HTTPServer {
	config.SetDefaults()
	gin.SetMode(config.Mode)

	s := &HTTPServer{
		engine:  gin.New(),
		service: svc,
		health:  checker,
		redis:   rdb,
		config:  config,
		logger:  logger.With(zap.String("module", "http")),
	}
	s.registerMiddleware()
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.engine,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

func (s *HTTPServer) registerMiddleware() {
	s.engine.Use(RecoveryMiddleware(s.logger))
	s.engine.Use(RequestIDMiddleware())
	s.engine.Use(CORSMiddleware())
	s.engine.Use(TracingMiddleware())
	s.engine.Use(monitoring.GinMetrics("conversation-service"))
	s.engine.Use(LoggingMiddleware(s.logger))
	s.engine.Use(TimeoutMiddleware(s.config.RequestTimeout))
}

func (s *HTTPServer) registerRoutes() {
	idempotent := middleware.Idempotency(s.redis, s.config.Idempotency, s.logger)
	turnLimiter := middleware.RateLimiter(s.redis, s.config.TurnRateLimit, middleware.ByParam("subject"), s.logger)

	api := s.engine.Group("/api/v1")

	subjects := api.Group("/subjects/:subject")
	{
		subjects.POST("/turns", turnLimiter, idempotent, s.sendTurn)
		subjects.GET("/stats", s.getStats)

		subjects.GET("/memory", s.getMemory)
		subjects.POST("/memory", s.addMemory)
		subjects.DELETE("/memory", s.clearMemory)

		subjects.PUT("/insights", s.setInsights)
		subjects.DELETE("/history", s.clearHistory)
		subjects.GET("/sources", s.getSources)
		subjects.GET("/summaries", s.getSummaries)
		subjects.POST("/compress", s.compress)

		subjects.GET("/export", s.exportMemory)
		subjects.POST("/import", idempotent, s.importMemory)
	}

	accounts := api.Group("/accounts", AdminAuthMiddleware(s.config.AdminToken))
	{
		accounts.GET("", s.listAccounts)
		accounts.PUT("", s.initAccounts)
		accounts.POST("/:identity/mark", s.markAccount)
	}

	s.engine.GET("/health", LivenessProbe())
	s.engine.GET("/ready", ReadinessProbe(s.health))
}

// Handler 返回路由，供测试和自定义监听使用
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Start 启动服务器，正常关闭时返回 nil
func (s *HTTPServer) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.config.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.server.Shutdown(ctx)
}

func subjectParam(c *gin.Context) (int64, bool) {
	subject, err := strconv.ParseInt(c.Param("subject"), 10, 64)
	if err != nil {
		BadRequest(c, "subject must be an integer")
		return 0, false
	}
	return subject, true
}

func (s *HTTPServer) sendTurn(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	var req struct {
		Text        string `json:"text"`
		ForceSearch bool   `json:"force_search"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	reply, err := s.service.SendTurn(c.Request.Context(), subject, req.Text, req.ForceSearch)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, reply)
}

func (s *HTTPServer) getStats(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	stats, err := s.service.Stats(c.Request.Context(), subject)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, stats)
}

func (s *HTTPServer) getMemory(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	mem, err := s.service.GetMemory(c.Request.Context(), subject)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, mem)
}

func (s *HTTPServer) addMemory(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	var req struct {
		Kind string `json:"kind" binding:"required"`
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	added, err := s.service.AddMemory(c.Request.Context(), subject, req.Kind, req.Text)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"added": added})
}

func (s *HTTPServer) clearMemory(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	if err := s.service.ClearMemory(c.Request.Context(), subject); err != nil {
		Error(c, err)
		return
	}
	NoContent(c)
}

func (s *HTTPServer) setInsights(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	var req struct {
		Insights string `json:"insights"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := s.service.SetInsights(c.Request.Context(), subject, req.Insights); err != nil {
		Error(c, err)
		return
	}
	NoContent(c)
}

func (s *HTTPServer) clearHistory(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	if err := s.service.ClearHistory(c.Request.Context(), subject); err != nil {
		Error(c, err)
		return
	}
	NoContent(c)
}

func (s *HTTPServer) getSources(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	sources, err := s.service.LastSources(c.Request.Context(), subject)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"sources": sources})
}

func (s *HTTPServer) getSummaries(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	records, err := s.service.Summaries(c.Request.Context(), subject)
	if err != nil {
		Error(c, err)
		return
	}

	type summaryView struct {
		Summary            string    `json:"summary"`
		MessagesCompressed int       `json:"messages_compressed"`
		CreatedAt          time.Time `json:"created_at"`
	}
	views := make([]summaryView, len(records))
	for i, r := range records {
		views[i] = summaryView{Summary: r.Summary, MessagesCompressed: r.MessagesCompressed, CreatedAt: r.CreatedAt}
	}
	Success(c, gin.H{"summaries": views})
}

func (s *HTTPServer) compress(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	result, err := s.service.Compress(c.Request.Context(), subject)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, result)
}

func (s *HTTPServer) exportMemory(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	dump, err := s.service.Export(c.Request.Context(), subject)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, dump)
}

func (s *HTTPServer) importMemory(c *gin.Context) {
	subject, ok := subjectParam(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxImportBytes)

	var dump domain.MemoryDump
	if err := c.ShouldBindJSON(&dump); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(c, domain.ErrPayloadTooLarge)
			return
		}
		BadRequest(c, err.Error())
		return
	}

	result, err := s.service.Import(c.Request.Context(), subject, &dump)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, result)
}

func (s *HTTPServer) listAccounts(c *gin.Context) {
	status, err := s.service.AccountStatus(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"accounts": status})
}

func (s *HTTPServer) initAccounts(c *gin.Context) {
	var req struct {
		Accounts []*domain.Account `json:"accounts"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := s.service.InitAccounts(c.Request.Context(), req.Accounts); err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"accounts": len(req.Accounts)})
}

func (s *HTTPServer) markAccount(c *gin.Context) {
	var req struct {
		Duration string `json:"duration"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, err.Error())
		return
	}

	var d time.Duration
	if req.Duration != "" {
		parsed, err := time.ParseDuration(req.Duration)
		if err != nil || parsed < 0 {
			BadRequest(c, "duration must be a non-negative Go duration")
			return
		}
		d = parsed
	}

	if err := s.service.MarkAccount(c.Request.Context(), c.Param("identity"), d); err != nil {
		Error(c, err)
		return
	}
	NoContent(c)
}
