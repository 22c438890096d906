package runshttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ddmbound/internal/logger"
	"ddmbound/internal/simulator"
	"ddmbound/internal/store"
	"ddmbound/internal/visual"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// Reader 是 API 所需的只读存储接口。
type Reader interface {
	GetRun(ctx context.Context, id string) (store.Run, error)
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	ListSteps(ctx context.Context, runID string, limit int) ([]store.Step, error)
}

// LaunchRequest 是 POST /api/runs 的请求体。
type LaunchRequest struct {
	Name         string    `json:"name"`
	Method       string    `json:"method"`
	Iterations   int       `json:"iterations"`
	Seed         int64     `json:"seed"`
	InitBoundary []float64 `json:"init_boundary"`
}

// Launcher 异步启动一次优化会话并返回其 id。
type Launcher interface {
	Launch(req LaunchRequest) (string, error)
}

// Server 提供会话查询与启动的 HTTP API。
type Server struct {
	addr     string
	runs     Reader
	launcher Launcher
	router   *gin.Engine
	schema   *jsonschema.Schema
	smooth   int
}

// Config 描述 HTTP Server 的依赖。
type Config struct {
	Addr     string
	Runs     Reader
	Launcher Launcher     // nil disables POST /api/runs
	Metrics  http.Handler // nil disables /metrics
	Smooth   int          // moving-average period for charts
}

const launchRequestSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "maxLength": 128},
    "method": {"type": "string", "enum": ["gradient", "grad", "greedy"]},
    "iterations": {"type": "integer", "minimum": 1, "maximum": 100000},
    "seed": {"type": "integer"},
    "init_boundary": {
      "type": "array",
      "items": {"type": "number"},
      "minItems": 2,
      "maxItems": 2
    }
  }
}`

// NewServer 构建 HTTP Server。
func NewServer(cfg Config) (*Server, error) {
	if cfg.Runs == nil {
		return nil, errors.New("run store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	if cfg.Smooth == 0 {
		cfg.Smooth = visual.DefaultSmooth
	}
	schema, err := compileSchema(launchRequestSchema)
	if err != nil {
		return nil, fmt.Errorf("compile request schema failed: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:     cfg.Addr,
		runs:     cfg.Runs,
		launcher: cfg.Launcher,
		router:   router,
		schema:   schema,
		smooth:   cfg.Smooth,
	}
	s.registerRoutes(cfg.Metrics)
	return s, nil
}

func compileSchema(raw string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("launch_request.json", strings.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile("launch_request.json")
}

func (s *Server) registerRoutes(metrics http.Handler) {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		s.router.GET("/metrics", gin.WrapH(metrics))
	}
	api := s.router.Group("/api/runs")
	api.GET("", s.handleRunList)
	api.POST("", s.handleRunStart)
	api.GET("/:id", s.handleRunDetail)
	api.GET("/:id/steps", s.handleRunSteps)
	api.GET("/:id/chart", s.handleRunChart)
}

// Handler 返回底层路由，便于测试与嵌入。
func (s *Server) Handler() http.Handler { return s.router }

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

func (s *Server) handleRunList(c *gin.Context) {
	limit, ok := queryLimit(c, 50)
	if !ok {
		return
	}
	runs, err := s.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunStart(c *gin.Context) {
	if s.launcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "会话启动未启用"})
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	if !gjson.ValidBytes(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "json 格式无效"})
		return
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.schema.Validate(doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req LaunchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.launcher.Launch(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": id})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunSteps(c *gin.Context) {
	if _, ok := s.loadRun(c); !ok {
		return
	}
	limit, ok := queryLimit(c, 1000)
	if !ok {
		return
	}
	steps, err := s.runs.ListSteps(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.Query("walks") != "1" {
		for i := range steps {
			steps[i].Walks = nil
		}
	}
	c.JSON(http.StatusOK, gin.H{"steps": steps})
}

func (s *Server) handleRunChart(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}
	steps, err := s.runs.ListSteps(c.Request.Context(), run.ID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(steps) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "run has no steps yet"})
		return
	}
	html, err := visual.RenderRunHTML(visual.RunInput{
		Title:   fmt.Sprintf("%s (%s)", run.ID, run.Method),
		Init:    simulator.Boundary{Slope: run.InitSlope, Intercept: run.InitIntercept},
		Steps:   steps,
		MaxStep: int(gjson.GetBytes(run.Config, "decision.max_step").Int()),
		Smooth:  s.smooth,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (s *Server) loadRun(c *gin.Context) (store.Run, bool) {
	run, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return store.Run{}, false
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return store.Run{}, false
	}
	return run, true
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("HTTP server listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// queryLimit 解析 ?limit=，0 交给存储层取默认/全部。
func queryLimit(c *gin.Context, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit %q", raw)})
		return 0, false
	}
	return n, true
}
