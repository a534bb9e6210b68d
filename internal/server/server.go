package server

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"BriefingScanner/internal/config"
	"BriefingScanner/internal/ports"
	"BriefingScanner/internal/usecase"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Trigger   func(ctx context.Context) usecase.RunReport
	Snapshots ports.SnapshotStore
	Market    ports.MarketData
	Charts    ports.ChartRenderer
	Cfg       config.Config
	Logger    *slog.Logger
}

// Server exposes manual triggering and the snapshot/chart browse API.
type Server struct {
	deps   Deps
	engine *gin.Engine
	http   *http.Server
}

func New(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{deps: deps}
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLog())

	engine.GET("/health", s.health)
	engine.POST("/trigger-scrape", s.triggerScrape)
	engine.GET("/api/dates", s.listDates)
	engine.GET("/api/dates/:date", s.listTickers)
	engine.GET("/api/snapshots/:date/:ticker", s.snapshotDocument)
	engine.GET("/api/chart/:ticker", s.chartData)
	engine.GET("/chart-image/:ticker", s.chartImage)

	s.engine = engine
	return s
}

// Router exposes the engine for tests.
func (s *Server) Router() http.Handler { return s.engine }

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start(port int) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.deps.Logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// triggerScrape runs the pipeline synchronously and reports the outcome.
func (s *Server) triggerScrape(c *gin.Context) {
	if s.deps.Trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "pipeline unavailable",
		})
		return
	}

	report := s.deps.Trigger(c.Request.Context())

	message := "스크래핑이 완료되었습니다"
	if !report.Success {
		message = "스크래핑이 실패했습니다"
	} else if report.TimedOut {
		message = "스크래핑이 일부 타임아웃과 함께 완료되었습니다"
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   report.Success,
		"timestamp": time.Now().Format(time.RFC3339),
		"message":   message,
		"run_id":    report.RunID,
	})
}

func (s *Server) listDates(c *gin.Context) {
	dates, err := s.deps.Snapshots.Dates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if dates == nil {
		dates = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "dates": dates})
}

// listTickers groups the date's tickers by their site section.
func (s *Server) listTickers(c *gin.Context) {
	date := c.Param("date")
	tickers, err := s.deps.Snapshots.TickersForDate(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	sections := make(map[string][]string)
	for _, ticker := range tickers {
		section := s.deps.Cfg.Rule(ticker).SectionPath()
		sections[section] = append(sections[section], ticker)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "date": date, "sections": sections})
}

func (s *Server) snapshotDocument(c *gin.Context) {
	date := c.Param("date")
	ticker := c.Param("ticker")

	document, err := s.deps.Snapshots.Document(c.Request.Context(), ticker, date)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(document))
}

// chartData serves the price history as JSON. NaN gaps become nulls so
// the payload stays valid JSON.
func (s *Server) chartData(c *gin.Context) {
	ticker := c.Param("ticker")
	if s.deps.Market == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "market data unavailable"})
		return
	}

	data, err := s.deps.Market.History(c.Request.Context(), ticker, c.Query("range"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}

	dates := make([]string, len(data.Dates))
	for i, d := range data.Dates {
		dates[i] = d.Format("2006-01-02")
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"ticker":  data.Ticker,
		"data": gin.H{
			"dates":              dates,
			"prices":             nullable(data.Prices),
			"ma50":               nullable(data.MA50),
			"ma200":              nullable(data.MA200),
			"ma200_plus10":       nullable(data.MA200Plus10),
			"current_price":      data.CurrentPrice,
			"above_ma200":        data.AboveMA200,
			"above_ma200_plus10": data.AboveMA200Plus10,
		},
	})
}

func (s *Server) chartImage(c *gin.Context) {
	ticker := c.Param("ticker")
	if s.deps.Market == nil || s.deps.Charts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "charts unavailable"})
		return
	}

	data, err := s.deps.Market.History(c.Request.Context(), ticker, c.Query("range"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}

	img, err := s.deps.Charts.RenderChart(data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", img)
}

// nullable converts NaN gaps to JSON nulls.
func nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if math.IsNaN(values[i]) {
			continue
		}
		v := values[i]
		out[i] = &v
	}
	return out
}
