// Package run implements mvirtd's "run" subcommand: it wires the daemon via
// internal/inject and serves the VmmService gRPC API until signaled to stop.
package run

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"

	grpc_mw "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	cmdflags "github.com/MalteJ/mvirt/internal/command/flags"
	"github.com/MalteJ/mvirt/internal/config"
	"github.com/MalteJ/mvirt/internal/inject"
	grpcapi "github.com/MalteJ/mvirt/pkg/api"
	"github.com/MalteJ/mvirt/pkg/api/services/vmm"
	"github.com/MalteJ/mvirt/pkg/log"
)

// NewCommand returns the "run" subcommand.
func NewCommand(cfg *config.Config) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the mvirt node daemon",
		PreRunE: func(c *cobra.Command, _ []string) error {
			cmdflags.BindCommandToViper(c)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	cmdflags.AddDaemonFlagsToCommand(cmd, cfg)
	cmdflags.AddGRPCServerFlagsToCommand(cmd, cfg)
	cmdflags.AddDebugFlagsToCommand(cmd, cfg)
	cmdflags.AddRaftFlagsToCommand(cmd, cfg)

	return cmd, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.GetLogger(ctx)
	logger.Info("starting mvirtd")

	app, cleanup, err := inject.InitializeApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer cleanup()

	if err := app.Supervisor.Recover(ctx); err != nil {
		return fmt.Errorf("recovering vm state: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	wg := &sync.WaitGroup{}
	ctx, cancel := context.WithCancel(log.WithLogger(ctx, logger))

	if !cfg.DisableAPI {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := serve(ctx, cfg, app); err != nil {
				logger.WithError(err).Error("gRPC server exited")
				cancel()
			}
		}()
	}

	if cfg.DebugEndpoint != "" {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := serveDebug(ctx, cfg); err != nil {
				logger.WithError(err).Error("debug server exited")
				cancel()
			}
		}()
	}

	select {
	case <-sigChan:
		logger.Debug("shutdown signal received, waiting for work to finish")
	case <-ctx.Done():
	}

	cancel()
	wg.Wait()

	logger.Info("finished all tasks, exiting")

	return nil
}

func serve(ctx context.Context, cfg *config.Config, app *inject.Application) error {
	logger := log.GetLogger(ctx)

	chvVersion, err := app.Driver.Version(ctx)
	if err != nil {
		logger.WithError(err).Warn("could not determine cloud-hypervisor version")
		chvVersion = "unknown"
	}

	vmmServer := grpcapi.NewServer(app.Store, app.Supervisor, app.Raft, cfg.Raft.NodeID, cfg.DataDir, chvVersion, cfg.StopTimeout)

	grpcServer := grpc.NewServer(generateOpts()...)
	vmm.RegisterVmmServiceServer(grpcServer, vmmServer)
	grpc_prometheus.Register(grpcServer)
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", cfg.GRPCEndpoint)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.GRPCEndpoint, err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down gRPC server")
		grpcServer.GracefulStop()
	}()

	logger.WithField("addr", cfg.GRPCEndpoint).Info("starting gRPC server")

	if err := grpcServer.Serve(listener); err != nil {
		return fmt.Errorf("serving gRPC: %w", err)
	}

	return nil
}

func serveDebug(ctx context.Context, cfg *config.Config) error {
	logger := log.GetLogger(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.DebugEndpoint, Handler: mux}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down debug server")
		server.Close()
	}()

	logger.WithField("addr", cfg.DebugEndpoint).Info("starting debug server")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving debug endpoint: %w", err)
	}

	return nil
}

func generateOpts() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.StreamInterceptor(grpc_mw.ChainStreamServer(
			grpc_prometheus.StreamServerInterceptor,
		)),
		grpc.UnaryInterceptor(grpc_mw.ChainUnaryServer(
			grpc_prometheus.UnaryServerInterceptor,
		)),
	}
}
