package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sipeed/emergency-withdraw/pkg/logger"
	"github.com/sipeed/emergency-withdraw/pkg/sweep"
	"github.com/sipeed/emergency-withdraw/pkg/tui"
)

func runInteractive(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	// The terminal belongs to the UI from here on.
	if cfg.Log.File != "" {
		if err := logger.EnableFileLogging(cfg.Log.File); err != nil {
			return err
		}
		defer logger.DisableFileLogging()
	} else {
		logger.Discard()
	}

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if cfg.Status.Listen != "" {
		srv := setupStatusHTTP(cfg, s.state)
		go func() {
			logger.InfoCF("status", "Status server listening", map[string]any{"addr": srv.Addr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorCF("status", "Status server stopped", map[string]any{"error": err.Error()})
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	// Transfers already on their way are never abandoned because of a signal.
	app := tui.New(context.WithoutCancel(ctx), s.state, s.client, cfg.Chain, s.rescue)
	go stopWhenIdle(ctx, app.Executing, app.Stop, 200*time.Millisecond)

	if err := app.Run(); err != nil {
		return fmt.Errorf("terminal ui: %w", err)
	}

	if r := s.state.LastReport(); r != nil {
		fmt.Printf("%s last run %s: %d sent, %d skipped, %d failed\n", logo, r.RunID,
			r.Count(sweep.StatusSent), r.Count(sweep.StatusSkipped), r.Count(sweep.StatusFailed))
	}
	return nil
}

// stopWhenIdle calls stop once ctx is done and busy reports false. A signal
// that arrives mid-sweep is held until the sweep has settled.
func stopWhenIdle(ctx context.Context, busy func() bool, stop func(), poll time.Duration) {
	<-ctx.Done()
	if busy() {
		logger.InfoC("main", "Interrupt received, exiting once the sweep settles")
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		for busy() {
			<-ticker.C
		}
	}
	stop()
}
