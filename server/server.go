// Package server is the tick orchestrator: it receives external trigger
// events, pulls current prices, runs the decision engine, mutates the
// paper ledger, and forwards the decision to the journal. All trading
// semantics live in the core packages; this layer is plumbing.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/btcpaper/datasource"
	"github.com/rustyeddy/btcpaper/features"
	"github.com/rustyeddy/btcpaper/journal"
	"github.com/rustyeddy/btcpaper/ledger"
	"github.com/rustyeddy/btcpaper/market"
	"github.com/rustyeddy/btcpaper/policy"
)

// PriceSource supplies recent bar history for the configured symbol.
type PriceSource interface {
	RecentBars(ctx context.Context, symbol, interval string, count int) (market.Series, error)
}

// Reloader lets the orchestrator ask the model provider to pick up a new
// artifact.
type Reloader interface {
	Reload() (bool, error)
}

// Checkpointer persists ledger state after each applied tick.
type Checkpointer interface {
	Save(symbol string, st ledger.State) error
}

// Config is the orchestrator wiring; Lookback and the symbol/interval
// pair must match the trading config the ledger was built with.
type Config struct {
	Symbol   string
	Interval string
	Lookback int
}

type Server struct {
	cfg Config
	log *logrus.Logger

	source  PriceSource
	decider *policy.Engine
	// provider is the same object the decider wraps; the server only
	// reads its version for /status and /healthz.
	provider policy.Provider
	ledger   *ledger.Ledger
	journal  journal.Journal
	reloader Reloader     // optional
	check    Checkpointer // optional

	metrics *metrics
}

func New(cfg Config, log *logrus.Logger, source PriceSource, provider policy.Provider,
	led *ledger.Ledger, j journal.Journal) *Server {
	return &Server{
		cfg:      cfg,
		log:      log,
		source:   source,
		decider:  policy.NewEngine(provider),
		provider: provider,
		ledger:   led,
		journal:  j,
		metrics:  newMetrics(),
	}
}

// WithReloader wires the optional model reload endpoint.
func (s *Server) WithReloader(r Reloader) *Server {
	s.reloader = r
	return s
}

// WithCheckpointer wires ledger state persistence.
func (s *Server) WithCheckpointer(c Checkpointer) *Server {
	s.check = c
	return s
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/tick", s.handleTick)
	r.GET("/healthz", s.handleHealth)
	r.GET("/status", s.handleStatus)
	r.GET("/recent", s.handleRecent)
	r.POST("/reload", s.handleReload)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	return r
}

// TickResponse is the externally observable decision for one trigger.
type TickResponse struct {
	ID           string    `json:"id"`
	Time         time.Time `json:"time"`
	Price        float64   `json:"price"`
	Action       float64   `json:"action"`
	Position     float64   `json:"position"`
	Equity       float64   `json:"equity"`
	Duplicate    bool      `json:"duplicate"`
	Degraded     bool      `json:"degraded"`
	ModelVersion string    `json:"model_version,omitempty"`
	Note         string    `json:"note"`
}

func (s *Server) handleTick(c *gin.Context) {
	started := time.Now()

	// One extra bar so the oldest window vector has a real period return.
	bars, err := s.source.RecentBars(c.Request.Context(), s.cfg.Symbol, s.cfg.Interval, s.cfg.Lookback+1)
	if err != nil {
		s.metrics.ticks.WithLabelValues("error").Inc()
		if errors.Is(err, datasource.ErrDataUnavailable) {
			s.log.WithError(err).Warn("tick skipped: price source unavailable")
			c.JSON(http.StatusBadGateway, gin.H{"error": "data unavailable"})
			return
		}
		s.log.WithError(err).Error("tick failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ex := features.Extractor{Lookback: s.cfg.Lookback}
	window, err := ex.Latest(bars)
	if err != nil {
		s.metrics.ticks.WithLabelValues("error").Inc()
		s.log.WithError(err).Warn("tick skipped: not enough history")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verdict := s.decider.Decide(window)
	if verdict.Degraded {
		s.metrics.degraded.Inc()
	}

	last := bars[len(bars)-1]
	decision := s.ledger.Update(last.Time, last.Close, verdict.Action)

	outcome := "applied"
	if decision.Duplicate {
		outcome = "duplicate"
	}
	s.metrics.ticks.WithLabelValues(outcome).Inc()
	s.metrics.equity.Set(decision.Equity)
	s.metrics.position.Set(decision.Position)

	if !decision.Duplicate {
		// The ledger mutation is authoritative; journal or checkpoint
		// failures are logged and never rolled back.
		rec := journal.FromDecision(decision, s.cfg.Symbol, s.cfg.Interval, verdict.ModelVersion, verdict.Degraded)
		if err := s.journal.RecordDecision(rec); err != nil {
			s.log.WithError(err).Error("journal decision failed")
		}
		if err := s.journal.RecordEquity(journal.EquitySnapshot{
			Time:     decision.Time,
			Equity:   decision.Equity,
			Position: decision.Position,
			Price:    decision.Price,
		}); err != nil {
			s.log.WithError(err).Error("journal equity failed")
		}
		if s.check != nil {
			if err := s.check.Save(s.cfg.Symbol, s.ledger.Export()); err != nil {
				s.log.WithError(err).Error("checkpoint ledger failed")
			}
		}
	}

	s.metrics.tickSecs.Observe(time.Since(started).Seconds())
	s.log.WithFields(logrus.Fields{
		"price":     decision.Price,
		"action":    decision.Action,
		"equity":    decision.Equity,
		"duplicate": decision.Duplicate,
		"degraded":  verdict.Degraded,
	}).Info("tick")

	c.JSON(http.StatusOK, TickResponse{
		ID:           decision.ID,
		Time:         decision.Time,
		Price:        decision.Price,
		Action:       decision.Action,
		Position:     decision.Position,
		Equity:       decision.Equity,
		Duplicate:    decision.Duplicate,
		Degraded:     verdict.Degraded,
		ModelVersion: verdict.ModelVersion,
		Note:         decision.Note,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	_, loaded := s.provider.GetPolicy()
	_, err := s.source.RecentBars(c.Request.Context(), s.cfg.Symbol, s.cfg.Interval, 1)
	dataOK := err == nil

	status := "healthy"
	if !loaded || !dataOK {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"model_loaded": loaded,
		"data_ok":      dataOK,
		"time":         time.Now().UTC(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	_, loaded := s.provider.GetPolicy()
	st := s.ledger.Export()
	c.JSON(http.StatusOK, gin.H{
		"symbol":        s.cfg.Symbol,
		"interval":      s.cfg.Interval,
		"model_loaded":  loaded,
		"model_version": s.provider.Version(),
		"position":      st.Position,
		"equity":        st.Equity,
		"last_price":    st.LastPrice,
		"last_time":     st.LastTime,
		"steps":         st.Steps,
	})
}

// recentLister is satisfied by the SQLite journal; other journal
// backends simply do not serve /recent.
type recentLister interface {
	ListRecentDecisions(limit int) ([]journal.DecisionRecord, error)
}

func (s *Server) handleRecent(c *gin.Context) {
	lister, ok := s.journal.(recentLister)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "journal backend does not support queries"})
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := parsePositive(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad limit"})
			return
		}
		limit = n
	}

	recs, err := lister.ListRecentDecisions(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": recs, "count": len(recs)})
}

func parsePositive(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("not a positive integer: %q", v)
	}
	return n, nil
}

func (s *Server) handleReload(c *gin.Context) {
	if s.reloader == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no reloadable model provider"})
		return
	}
	loaded, err := s.reloader.Reload()
	if err != nil {
		s.log.WithError(err).Error("model reload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"loaded":        loaded,
		"model_version": s.provider.Version(),
	})
}
