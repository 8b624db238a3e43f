package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/pagetrim/internal/metrics"
	"github.com/local/pagetrim/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local web UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default PAGETRIM_ADDR or 127.0.0.1:8080)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	metrics.Init()

	sess, err := a.newSession(true)
	if err != nil {
		return err
	}
	defer sess.Close()

	ui := web.New(sess, web.Options{
		Profile:     a.prof.Name,
		MaxUploadMB: a.cfg.Server.MaxUploadMB,
		Timeout:     a.cfg.Server.Timeout,
	})
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           ui.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("profile", a.prof.Name).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	fmt.Println(color.CyanString("pagetrim"), "open", color.New(color.Bold).Sprint("http://"+srv.Addr))

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("shutdown complete")
	return nil
}
