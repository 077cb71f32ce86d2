package transporthttp

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"snapforecast/docs"
	"snapforecast/internal/app"
	"snapforecast/internal/domain"
	"snapforecast/internal/experience"
	"snapforecast/internal/features"
	"snapforecast/internal/logging"
	"snapforecast/internal/metrics"
	"snapforecast/internal/modelstore"
	"snapforecast/internal/optimizer"
	"snapforecast/internal/predict"
)

const (
	requestTimeout  = 30 * time.Second
	trainingTimeout = 10 * time.Minute
)

// Predictor serves prediction requests.
type Predictor interface {
	Predict(ctx context.Context, req predict.Request) (*predict.Result, error)
}

// Extractor builds feature vectors.
type Extractor interface {
	Extract(ctx context.Context, req features.Request) *features.Vector
}

// Classifier resolves author experience.
type Classifier interface {
	Classify(ctx context.Context, handle string) experience.Result
}

// ModelRegistry reads stored ensemble metadata.
type ModelRegistry interface {
	Metadata(ctx context.Context, platform string, t modelstore.ModelType, version string) (modelstore.Metadata, error)
	Versions(ctx context.Context, platform string, t modelstore.ModelType) ([]string, error)
}

// Trainer fits new ensemble versions from stored records.
type Trainer interface {
	Train(ctx context.Context, platform string, t modelstore.ModelType, limit int) (*modelstore.TrainingReport, error)
}

// CategoryOptimizer answers category intelligence requests.
type CategoryOptimizer interface {
	Analyze(ctx context.Context, category, platform string) (*optimizer.Analysis, error)
	PredictSuccess(ctx context.Context, text, category, platform string) (*optimizer.SuccessPrediction, error)
}

// Deps are the collaborators behind the API. Optimizer may be nil.
type Deps struct {
	Predictor       Predictor
	Extractor       Extractor
	Classifier      Classifier
	Models          ModelRegistry
	Trainer         Trainer
	Optimizer       CategoryOptimizer
	Gatherer        prometheus.Gatherer
	DefaultPlatform string
}

// DepsFromApp adapts the process wiring to the API.
func DepsFromApp(a *app.App) Deps {
	d := Deps{
		Predictor:       a.Engine,
		Extractor:       a.Extractor,
		Classifier:      a.Classifier,
		Models:          a.Models,
		Trainer:         a,
		Gatherer:        a.Registry,
		DefaultPlatform: a.Config.DefaultPlatform,
	}
	if a.Optimizer != nil {
		d.Optimizer = a.Optimizer
	}
	return d
}

type Server struct {
	deps    Deps
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewServer(deps Deps, logger logging.Logger, m *metrics.Metrics) *Server {
	return &Server{deps: deps, logger: logging.OrDiscard(logger), metrics: metrics.OrNop(m)}
}

func (s *Server) Routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.observe(), withCORS())

	router.GET("/healthz", s.health)
	if s.deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}
	router.GET(openAPIPath, s.openAPI)

	v1 := router.Group("/v1")
	v1.POST("/features", s.handleFeatures)
	v1.GET("/experience/:handle", s.handleExperience)
	v1.POST("/predict/:model_type", s.handlePredict)
	v1.POST("/models/:platform/:model_type/train", s.handleTrain)
	v1.GET("/models/:platform/:model_type", s.handleModel)
	v1.GET("/categories/:category/analysis", s.handleAnalysis)
	v1.POST("/categories/:category/success", s.handleSuccess)

	routes := router.Routes()
	router.GET("/swagger", func(c *gin.Context) { s.routeIndex(c, routes) })
	return router
}

const openAPIPath = "/swagger/openapi.yaml"

func (s *Server) openAPI(c *gin.Context) {
	if len(docs.OpenAPISpec) == 0 {
		s.writeError(c, http.StatusNotFound, "api description not bundled")
		return
	}
	c.Data(http.StatusOK, "application/yaml", docs.OpenAPISpec)
}

// routeIndex lists the registered routes next to the OpenAPI location.
func (s *Server) routeIndex(c *gin.Context, routes gin.RoutesInfo) {
	list := make([]string, 0, len(routes))
	for _, r := range routes {
		list = append(list, r.Method+" "+r.Path)
	}
	sort.Strings(list)
	c.JSON(http.StatusOK, gin.H{"openapi": openAPIPath, "routes": list})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type contentPayload struct {
	Text       string                  `json:"text"`
	Handle     string                  `json:"handle"`
	Platform   string                  `json:"platform"`
	ImageCount int                     `json:"image_count"`
	Campaign   *domain.CampaignContext `json:"campaign"`
	CampaignID string                  `json:"campaign_id"`
}

func (s *Server) bindContent(c *gin.Context) (contentPayload, bool) {
	var payload contentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.writeError(c, http.StatusBadRequest, "invalid payload")
		return payload, false
	}
	if strings.TrimSpace(payload.Text) == "" {
		s.writeError(c, http.StatusBadRequest, "text is required")
		return payload, false
	}
	if payload.ImageCount < 0 {
		s.writeError(c, http.StatusBadRequest, "image_count must not be negative")
		return payload, false
	}
	return payload, true
}

func (s *Server) handleFeatures(c *gin.Context) {
	payload, ok := s.bindContent(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	platform := payload.Platform
	if platform == "" {
		platform = s.deps.DefaultPlatform
	}
	v := s.deps.Extractor.Extract(ctx, features.Request{
		Text:       payload.Text,
		Identity:   payload.Handle,
		Platform:   platform,
		Campaign:   payload.Campaign,
		CampaignID: payload.CampaignID,
		ImageCount: payload.ImageCount,
	})
	c.JSON(http.StatusOK, gin.H{"count": v.Len(), "features": v})
}

func (s *Server) handleExperience(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	c.JSON(http.StatusOK, s.deps.Classifier.Classify(ctx, c.Param("handle")))
}

func (s *Server) handlePredict(c *gin.Context) {
	t, err := modelstore.ParseModelType(c.Param("model_type"))
	if err != nil {
		s.writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	payload, ok := s.bindContent(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := s.deps.Predictor.Predict(ctx, predict.Request{
		ModelType:  t,
		Text:       payload.Text,
		Handle:     payload.Handle,
		Platform:   payload.Platform,
		Campaign:   payload.Campaign,
		CampaignID: payload.CampaignID,
		ImageCount: payload.ImageCount,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleTrain(c *gin.Context) {
	t, err := modelstore.ParseModelType(c.Param("model_type"))
	if err != nil {
		s.writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			s.writeError(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), trainingTimeout)
	defer cancel()

	report, err := s.deps.Trainer.Train(ctx, c.Param("platform"), t, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (s *Server) handleModel(c *gin.Context) {
	t, err := modelstore.ParseModelType(c.Param("model_type"))
	if err != nil {
		s.writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	platform := c.Param("platform")
	meta, err := s.deps.Models.Metadata(ctx, platform, t, c.DefaultQuery("version", modelstore.LatestVersion))
	if err != nil {
		s.fail(c, err)
		return
	}
	versions, err := s.deps.Models.Versions(ctx, platform, t)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": meta, "versions": versions})
}

func (s *Server) handleAnalysis(c *gin.Context) {
	if s.deps.Optimizer == nil {
		s.writeError(c, http.StatusServiceUnavailable, "category analysis disabled")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	analysis, err := s.deps.Optimizer.Analyze(ctx, c.Param("category"), c.DefaultQuery("platform", s.deps.DefaultPlatform))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (s *Server) handleSuccess(c *gin.Context) {
	if s.deps.Optimizer == nil {
		s.writeError(c, http.StatusServiceUnavailable, "category analysis disabled")
		return
	}
	var payload struct {
		Text     string `json:"text"`
		Platform string `json:"platform"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.writeError(c, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		s.writeError(c, http.StatusBadRequest, "text is required")
		return
	}
	platform := payload.Platform
	if platform == "" {
		platform = s.deps.DefaultPlatform
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	prediction, err := s.deps.Optimizer.PredictSuccess(ctx, payload.Text, c.Param("category"), platform)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, prediction)
}

// fail maps domain errors onto status codes.
func (s *Server) fail(c *gin.Context, err error) {
	var insufficient *modelstore.InsufficientDataError
	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    err.Error(),
			"found":    insufficient.Found,
			"required": insufficient.Required,
		})
	case errors.Is(err, modelstore.ErrInvalidName):
		s.writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, modelstore.ErrModelNotFound):
		s.writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrNoDatabase):
		s.writeError(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(c, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		s.writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// observe logs each request and records it in the HTTP metrics.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		elapsed := time.Since(start)
		s.metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		entry := s.logger.WithFields(logging.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": elapsed,
		})
		if c.Request.Method == http.MethodOptions {
			entry.Debug("cors preflight")
			return
		}
		entry.Info("request served")
	}
}

func withCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
