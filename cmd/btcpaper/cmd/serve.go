package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/btcpaper/config"
	"github.com/rustyeddy/btcpaper/datasource"
	"github.com/rustyeddy/btcpaper/journal"
	"github.com/rustyeddy/btcpaper/ledger"
	"github.com/rustyeddy/btcpaper/pkg/logger"
	"github.com/rustyeddy/btcpaper/policy"
	"github.com/rustyeddy/btcpaper/server"
	"github.com/rustyeddy/btcpaper/statestore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the paper-trading HTTP service",
	Long: `Start the tick-driven paper-trading service.

Each POST /tick pulls recent bars, evaluates the policy, applies the
decision to the paper ledger, and journals the result. Ledger state is
checkpointed after every applied tick and restored on startup, so the
paper position survives restarts.

Example:
  btcpaper serve -f config.yaml`,
	RunE: runServe,
}

var serveConfigPath string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "f", "", "path to config file (YAML or JSON); defaults plus BTCPAPER_* env if omitted")
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if serveConfigPath != "" {
		cfg, err = config.LoadFromFile(serveConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.Init(cfg.Log)

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	store, err := statestore.Open(cfg.State.Dir)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	led := ledger.New(cfg.Trading.FeeRate)
	if st, found, err := store.Load(cfg.Trading.Symbol); err != nil {
		return fmt.Errorf("restore ledger state: %w", err)
	} else if found {
		led.Import(st)
		log.WithField("equity", st.Equity).WithField("position", st.Position).
			Info("restored ledger state")
	}

	mgr := policy.NewManager(cfg.Model.Dir, cfg.Trading.Lookback)
	defer mgr.Close()
	if loaded, err := mgr.Reload(); err != nil {
		// Serve degraded rather than refuse to start; /reload can
		// recover once an artifact shows up.
		log.WithError(err).Warn("no model loaded, serving degraded")
	} else if loaded {
		log.WithField("version", mgr.Version()).Info("model loaded")
	}

	src := datasource.New(cfg.Data.BaseURL)

	s := server.New(server.Config{
		Symbol:   cfg.Trading.Symbol,
		Interval: cfg.Trading.Interval,
		Lookback: cfg.Trading.Lookback,
	}, log, src, mgr, led, j).
		WithReloader(mgr).
		WithCheckpointer(store)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).WithField("symbol", cfg.Trading.Symbol).
			Info("btcpaper serving")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	if cfg.Type == "csv" {
		return journal.NewCSV(cfg.DecisionsFile, cfg.EquityFile)
	}
	return journal.NewSQLite(cfg.DBPath)
}
