package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"estatecrm.org/internal/health"
	"estatecrm.org/internal/httpapi"
	"estatecrm.org/internal/obs"
	"estatecrm.org/internal/throttle"
)

const healthInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CRM API server",
	Long: `Starts the JSON HTTP API and the gRPC health endpoint. PostgreSQL backs
users, buyer requests, claims and the audit log; Redis, when configured,
shares the request rate limit across instances.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		log := obs.Logger()
		obs.InitBuildInfo(version, commit)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := openServices(cfg)
		if err != nil {
			return err
		}
		defer svc.close()

		probes := []health.Probe{{Name: "database", Check: svc.store.Ping}}

		var limiter throttle.Limiter
		if cfg.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			defer rdb.Close()
			probes = append(probes, health.Probe{
				Name:     "redis",
				Optional: true,
				Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			})
			limiter = throttle.NewRedis(rdb, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window, "crm:ratelimit:")
			log.WithField("addr", cfg.RedisAddr).Info("rate limit backed by redis")
		} else {
			mem := throttle.NewMemory(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
			go mem.Run(ctx, time.Minute)
			limiter = mem
		}

		checker := health.NewChecker(version, probes...)
		go checker.Run(ctx, healthInterval)

		api, err := httpapi.New(httpapi.Options{
			Auth:           svc.auth,
			Leads:          svc.leads,
			Health:         checker,
			Limiter:        limiter,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
			Version:        version,
		})
		if err != nil {
			return err
		}

		httpSrv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.Handler(),
			ReadTimeout:       cfg.HTTP.ReadTimeout,
			ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
			WriteTimeout:      cfg.HTTP.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		}

		grpcSrv := grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, checker.GRPCServer())

		// Bind gRPC first so a bad address fails before anything is serving.
		var grpcLis net.Listener
		if cfg.GRPCAddr != "" {
			if grpcLis, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
		}

		errCh := make(chan error, 2)
		go func() {
			log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "version": version}).Info("http_listen")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
		if grpcLis != nil {
			go func() {
				log.WithField("addr", cfg.GRPCAddr).Info("grpc_listen")
				if err := grpcSrv.Serve(grpcLis); err != nil {
					errCh <- fmt.Errorf("grpc server: %w", err)
				}
			}()
		}

		var runErr error
		select {
		case <-ctx.Done():
			log.Info("shutting down")
		case runErr = <-errCh:
			log.WithError(runErr).Error("server failed")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
		grpcSrv.GracefulStop()
		log.Info("stopped")
		return runErr
	},
}
