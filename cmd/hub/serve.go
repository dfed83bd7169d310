// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package main

import (
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wanhive/hub-sub001/internal/config"
	"github.com/wanhive/hub-sub001/internal/hub"
	"github.com/wanhive/hub-sub001/internal/logging"
	"github.com/wanhive/hub-sub001/internal/metrics"
	"github.com/wanhive/hub-sub001/internal/protocol"
	"github.com/wanhive/hub-sub001/internal/stabilizer"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the hub, accepting connections and routing overlay traffic",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	opts, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(opts.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	h, err := hub.New(opts, opts.SelfID, protocol.New(), log)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	h.SetMetrics(metrics.NewCollector(registry))

	if err := h.Open(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server exited", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		log.Info("metrics endpoint listening", zap.String("addr", opts.MetricsAddr))
	}

	s := stabilizer.New(h, stabilizer.Intervals{
		Stabilize:        time.Duration(opts.StabilizePeriodMs) * time.Millisecond,
		CheckPredecessor: time.Duration(opts.StabilizeRetryMs) * time.Millisecond,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- h.Run() }()
	go func() { _ = s.Run(ctx) }()

	log.Info("hub started", zap.Uint64("self_id", h.SelfID()))

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
		h.Cancel()
		select {
		case err := <-errCh:
			if err != nil {
				log.Warn("hub run loop exited with error", zap.Error(err))
			}
		case <-time.After(10 * time.Second):
			log.Warn("hub run loop did not exit within grace period")
		}
		return h.Close()
	case err := <-errCh:
		return err
	}
}
