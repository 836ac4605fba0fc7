package backtest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"maru/internal/store"
)

// HTTPServer 提供 Gin 接口：提交回测、查询进度、导出报表、查看寻优结果。
type HTTPServer struct {
	addr   string
	svc    *Service
	opts   *store.Store
	render func(Run, []TradeRecord, []EquityPoint) ([]byte, error)
	router *gin.Engine
	srv    *http.Server
}

type HTTPConfig struct {
	Addr          string
	Service       *Service
	Optimizations *store.Store
	// RenderReport 渲染 HTML 报表；为空时 report 接口返回 404。
	RenderReport func(Run, []TradeRecord, []EquityPoint) ([]byte, error)
}

func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Service == nil {
		return nil, errors.New("service 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{
		addr:   cfg.Addr,
		svc:    cfg.Service,
		opts:   cfg.Optimizations,
		render: cfg.RenderReport,
		router: router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *HTTPServer) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/strategies", s.handleStrategies)
	bt := api.Group("/backtest")
	bt.POST("/runs", s.handleRunStart)
	bt.GET("/runs", s.handleRunList)
	bt.GET("/runs/:id", s.handleRunDetail)
	bt.GET("/runs/:id/trades", s.handleRunTrades)
	bt.GET("/runs/:id/equity", s.handleRunEquity)
	bt.GET("/runs/:id/report", s.handleRunReport)
	api.GET("/optimizations", s.handleOptimizations)
}

// Start 启动监听，阻塞直到 ctx 取消或监听失败。
func (s *HTTPServer) Start(ctx context.Context) error {
	s.srv = &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler 暴露路由，便于测试。
func (s *HTTPServer) Handler() http.Handler { return s.router }

func (s *HTTPServer) handleStrategies(c *gin.Context) {
	reg := s.svc.Registry()
	out := make([]gin.H, 0)
	for _, name := range reg.Names() {
		r, _ := reg.Lookup(name)
		out = append(out, gin.H{"name": name, "default_bounds": r.DefaultBounds})
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

func (s *HTTPServer) handleRunStart(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.svc.StartRun(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *HTTPServer) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.svc.Runs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *HTTPServer) handleRunDetail(c *gin.Context) {
	run, ok, err := s.svc.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *HTTPServer) handleRunTrades(c *gin.Context) {
	trades, err := s.svc.runs.TradesByRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *HTTPServer) handleRunEquity(c *gin.Context) {
	curve, err := s.svc.runs.EquityByRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": curve})
}

func (s *HTTPServer) handleRunReport(c *gin.Context) {
	if s.render == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report renderer not configured"})
		return
	}
	run, trades, curve, ok, err := s.svc.RunDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	html, err := s.render(run, trades, curve)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (s *HTTPServer) handleOptimizations(c *gin.Context) {
	if s.opts == nil {
		c.JSON(http.StatusOK, gin.H{"optimizations": []struct{}{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	opts, err := s.opts.Optimizations(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"optimizations": opts})
}
