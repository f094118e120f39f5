package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"breakbot/internal/live"
	"breakbot/internal/logger"
	"breakbot/internal/store"

	"github.com/gin-gonic/gin"
)

// Server 提供只读的状态与回测记录查询接口。
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr   string
	Engine *live.Engine
	Runs   store.RunRepository
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("http server requires a live engine")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8086"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg.Engine.Snapshot())
	})
	router.GET("/position", func(c *gin.Context) {
		st := cfg.Engine.Snapshot()
		if !st.HasPosition {
			c.JSON(http.StatusOK, gin.H{"has_position": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"has_position": true,
			"symbol":       st.Symbol,
			"entry_price":  st.EntryPrice,
			"amount":       st.Amount,
			"pnl":          st.PnL,
			"pnl_percent":  st.PnLPercent,
		})
	})
	if cfg.Runs != nil {
		router.GET("/backtests", func(c *gin.Context) {
			runs, err := cfg.Runs.ListRuns(c.Request.Context(), 20)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, runs)
		})
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
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

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
