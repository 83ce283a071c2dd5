package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"virtex/internal/agent"
	"virtex/internal/engine"
	"virtex/internal/logger"
	"virtex/internal/market"
	"virtex/internal/report"
	"virtex/internal/store"
)

// Server 提供 Gin 控制面，展示层按固定节奏轮询 status。
// 所有处理器都很薄：绑定 JSON、调引擎、把结构化失败映射成 4xx。
type Server struct {
	addr      string
	eng       *engine.Engine
	registry  *agent.Registry
	series    *market.Store
	archive   *store.Store
	reportDir string
	router    *gin.Engine
	srv       *http.Server
}

type Config struct {
	Addr      string
	Engine    *engine.Engine
	Registry  *agent.Registry
	Series    *market.Store
	Archive   *store.Store
	ReportDir string
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8876"
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = "reports"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:      cfg.Addr,
		eng:       cfg.Engine,
		registry:  cfg.Registry,
		series:    cfg.Series,
		archive:   cfg.Archive,
		reportDir: cfg.ReportDir,
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api/engine")
	api.POST("/configure", s.handleConfigure)
	api.POST("/ingest", s.handleIngest)
	api.POST("/simulate", s.handleSimulate)
	api.POST("/orders", s.handlePlaceOrder)
	api.POST("/strategy", s.handleSetStrategy)
	api.POST("/robot", s.handleSetRobot)
	api.POST("/start", s.handleStart)
	api.POST("/stop", s.handleStop)
	api.POST("/speed", s.handleSetSpeed)
	api.POST("/alert/clear", s.handleClearAlert)
	api.GET("/status", s.handleStatus)
	api.GET("/trades", s.handleTrades)
	api.GET("/equity", s.handleEquity)
	api.GET("/context/:mode/metrics", s.handleContextMetrics)
	api.GET("/strategies", s.handleStrategies)
	api.GET("/report", s.handleReport)
	// 归档读接口：展示层翻历史会话与告警走这里，不占引擎锁
	api.GET("/trades/recent", s.handleRecentTrades)
	api.GET("/equity/range", s.handleEquityRange)
	api.GET("/alerts", s.handleAlerts)
	api.GET("/sessions", s.handleSessions)
}

// Run 启动 HTTP 服务并阻塞到 ctx 取消。
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[http] 监听 %s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleConfigure(c *gin.Context) {
	var patch engine.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := s.eng.Configure(patch)
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

func (s *Server) handleIngest(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candles, err := market.ParseSeriesJSON(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := s.eng.IngestSeries(candles)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.series != nil {
		symbol := s.eng.Status().Config.Symbol
		if _, err := s.series.ReplaceSeries(c.Request.Context(), symbol, candles); err != nil {
			logger.Warnf("[http] 序列写缓存失败: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"ingested": n})
}

func (s *Server) handleSimulate(c *gin.Context) {
	var req struct {
		Mode     string  `json:"mode"`
		SplitPct float64 `json:"split_pct"`
	}
	// 空请求体等价于全部用默认参数（当前模式、默认切分比）
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var mode engine.Mode
	if req.Mode != "" {
		parsed, err := engine.ParseMode(req.Mode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		mode = parsed
	}
	res := s.eng.RunNumericalSimulation(mode, req.SplitPct)
	if !res.Success {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req struct {
		Side     string  `json:"side" binding:"required"`
		Kind     string  `json:"kind"`
		Quantity float64 `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, err := engine.ParseSide(req.Side)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind := engine.OrderKind(req.Kind)
	if req.Kind == "" {
		kind = engine.OrderMarket
	}
	order, err := s.eng.PlaceOrder(side, kind, req.Quantity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"order": order})
}

func (s *Server) handleSetStrategy(c *gin.Context) {
	var req struct {
		ID     string         `json:"id" binding:"required"`
		Params map[string]any `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := agent.ParseStrategyID(req.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var strat agent.ActiveStrategy
	if s.registry != nil {
		strat, err = s.registry.Resolve(id, req.Params)
	} else {
		strat = agent.ActiveStrategy{ID: id, Name: id.String()}
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.eng.SetStrategy(strat); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy": strat})
}

func (s *Server) handleSetRobot(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.eng.SetRobot(*req.Active); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"robot": *req.Active})
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.eng.Start(); err != nil {
		// 强平告警未确认属于状态冲突而不是坏请求
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) handleStop(c *gin.Context) {
	s.eng.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) handleSetSpeed(c *gin.Context) {
	var req struct {
		Multiplier float64 `json:"multiplier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.eng.SetSpeed(req.Multiplier); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"speed": req.Multiplier})
}

func (s *Server) handleClearAlert(c *gin.Context) {
	s.eng.ClearAlert()
	c.JSON(http.StatusOK, gin.H{"alert": nil})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Status())
}

func (s *Server) handleTrades(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"trades": s.eng.Trades()})
}

func (s *Server) handleEquity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"equity": s.eng.EquityCurve()})
}

// handleRecentTrades 从归档库按成交时间倒序取最近 n 笔。
func (s *Server) handleRecentTrades(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusOK, gin.H{"trades": nil})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须为正整数"})
		return
	}
	rows, err := s.archive.RecentTrades(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": rows})
}

// handleEquityRange 取归档的权益采样，from/to 是可选的 RFC3339 时间。
func (s *Server) handleEquityRange(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusOK, gin.H{"equity": nil})
		return
	}
	var from, to time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from 需为 RFC3339 时间"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to 需为 RFC3339 时间"})
			return
		}
		to = t
	}
	rows, err := s.archive.EquityRange(from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": rows})
}

func (s *Server) handleAlerts(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusOK, gin.H{"alerts": nil})
		return
	}
	rows, err := s.archive.Alerts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": rows})
}

func (s *Server) handleSessions(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": nil})
		return
	}
	rows, err := s.archive.Sessions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": rows})
}

func (s *Server) handleContextMetrics(c *gin.Context) {
	mode, err := engine.ParseMode(c.Param("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.eng.ContextMetrics(mode))
}

func (s *Server) handleStrategies(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusOK, gin.H{"strategies": nil})
		return
	}
	snap := s.registry.Snapshot()
	c.JSON(http.StatusOK, gin.H{"version": snap.Version, "strategies": snap.Presets})
}

// handleReport 渲染当前会话的 HTML 报告并直接返回。
func (s *Server) handleReport(c *gin.Context) {
	st := s.eng.Status()
	in := report.Input{
		Symbol:  st.Config.Symbol,
		Mode:    st.Config.Mode.String(),
		History: s.eng.History(),
		Path:    s.eng.ContextPath(st.Config.Mode),
		Equity:  s.eng.EquityCurve(),
		Trades:  s.eng.Trades(),
		Stats:   st.Stats,
		Metrics: s.eng.ContextMetrics(st.Config.Mode),
	}
	path := filepath.Join(s.reportDir, report.Filename(st.Config.Symbol))
	if err := report.WriteFile(path, in); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.File(path)
}
