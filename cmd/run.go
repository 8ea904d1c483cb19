package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stream-anomaly-detector/analytics"
	"stream-anomaly-detector/cache"
	"stream-anomaly-detector/config"
	"stream-anomaly-detector/handlers"
	"stream-anomaly-detector/models"
	"stream-anomaly-detector/simulator"
	"stream-anomaly-detector/sink"
)

func newRunCommand(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify simulated streams and serve the results over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				opts.cfg.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runService(ctx, opts.cfg, opts.logger)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "HTTP listen address (overrides config)")
	return cmd
}

// asyncSinks owns the buffered sinks so they can be drained on shutdown.
type asyncSinks struct {
	fanout *sink.Fanout
	closed []*sink.AsyncSink
}

func (a *asyncSinks) add(name string, s sink.Sink, buffer int, logger logrus.FieldLogger) {
	async := sink.NewAsyncSink(name, s, buffer, logger)
	a.fanout.Register(async)
	a.closed = append(a.closed, async)
}

func (a *asyncSinks) close() {
	for _, s := range a.closed {
		s.Close()
	}
}

func runService(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	table := sink.NewRecordTable(cfg.Sinks.TableLimit)
	sinks := &asyncSinks{fanout: sink.NewFanout()}
	sinks.add("table", table, cfg.Sinks.Buffer, logger)
	sinks.add("log", sink.NewLogSink(logger, cfg.Detector.MinHistory), cfg.Sinks.Buffer, logger)
	sinks.add("metrics", sink.NewMetricsSink(prometheus.DefaultRegisterer), cfg.Sinks.Buffer, logger)
	defer sinks.close()

	var latest handlers.LatestStore
	if cfg.Redis.Addr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient, err := cache.NewRedisClient(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.WithField("addr", cfg.Redis.Addr).Info("connected to redis")

		sinks.add("redis", cache.NewRedisSink(redisClient, 2*time.Second, logger), cfg.Sinks.Buffer, logger)
		latest = redisClient
	}

	engine, err := analytics.NewStreamEngine(analytics.EngineConfig{
		Detector:  cfg.Detector,
		QueueSize: cfg.Engine.QueueSize,
	}, sinks.fanout, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           cfg.HTTP.Addr,
		Handler:        handlers.NewRouter(handlers.NewRecordHandler(table, engine, latest, logger)),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTP.Addr).Info("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	producers := startProducers(runCtx, cfg, engine, logger)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serverErr:
		logger.WithError(err).Error("http server failed")
	}

	cancelRun()
	producers.Wait()
	engine.Close()
	sinks.close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.WithError(shutdownErr).Error("server forced to shutdown")
	}

	if err != nil {
		return errors.Wrap(err, "http server")
	}
	return nil
}

// startProducers runs one simulator per configured stream. Each simulator
// feeds a single goroutine that submits to the engine, preserving order.
func startProducers(ctx context.Context, cfg *config.Config, engine *analytics.StreamEngine, logger logrus.FieldLogger) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i, name := range cfg.Streams {
		simCfg := cfg.Simulator
		if simCfg.Seed != 0 {
			simCfg.Seed += int64(i)
		}
		gen, err := simulator.New(simCfg)
		if err != nil {
			logger.WithError(err).WithField("stream", name).Error("cannot start simulator")
			continue
		}

		samples := make(chan models.Sample, 64)
		wg.Add(2)
		go func() {
			defer wg.Done()
			defer close(samples)
			if err := gen.Run(ctx, samples); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Warn("simulator stopped")
			}
		}()
		go func(name string) {
			defer wg.Done()
			for sample := range samples {
				if err := engine.Submit(ctx, name, sample); err != nil {
					if !errors.Is(err, context.Canceled) {
						logger.WithError(err).WithField("stream", name).Warn("submit failed")
					}
					for range samples {
					}
					return
				}
			}
			logger.WithField("stream", name).Info("stream finished")
		}(name)
	}
	return &wg
}
