package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	api "github.com/orgnr/bolagsdata/internal/interfaces/http"
)

// runServe starts the read API and blocks until a shutdown signal.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	serverCfg := api.DefaultServerConfig()
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		serverCfg.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		serverCfg.Port = port
	}

	srv, err := api.NewServer(serverCfg, a.orch, a.store, a.breakers, a.metrics)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	log.Info().
		Str("health", fmt.Sprintf("http://%s/health", srv.Addr())).
		Str("metrics", fmt.Sprintf("http://%s/metrics", srv.Addr())).
		Str("companies", fmt.Sprintf("http://%s/api/v1/companies/{orgnr}", srv.Addr())).
		Str("search", fmt.Sprintf("http://%s/api/v1/search?q=", srv.Addr())).
		Msg("endpoints available")

	select {
	case <-cmd.Context().Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
