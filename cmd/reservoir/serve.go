package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/banshee-data/reservoir/internal/api"
	"github.com/banshee-data/reservoir/internal/db"
	"github.com/banshee-data/reservoir/internal/monitoring"
	"github.com/banshee-data/reservoir/internal/rpc"
	"github.com/banshee-data/reservoir/internal/simcase"
	"github.com/banshee-data/reservoir/internal/timeutil"
)

func serveCmd(a *app) *cobra.Command {
	var (
		listen     string
		grpcListen string
		noGRPC     bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve cases over HTTP and gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = a.cfg.GetListen()
			}
			if grpcListen == "" {
				grpcListen = a.cfg.GetGRPCListen()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			reg := simcase.NewRegistry(store)
			reg.SetOpenLimit(a.cfg.GetOpenConcurrency())
			defer reg.CloseAll()
			cases := simcase.NewResolver(reg)
			if err := preload(ctx, store, cases, a.cfg.PreloadCases); err != nil {
				return err
			}

			mux := http.NewServeMux()
			if err := store.AttachAdminRoutes(mux); err != nil {
				return err
			}
			mux.Handle("/", api.NewServer(cases, store, a.cfg.GetDefaultFrequency()).ServeMux())
			httpServer := &http.Server{
				Addr:        listen,
				Handler:     api.LoggingMiddleware(timeutil.RealClock{}, mux),
				ReadTimeout: a.cfg.GetReadTimeout(),
			}

			var grpcServer *grpc.Server
			var grpcLis net.Listener
			if !noGRPC {
				if grpcLis, err = net.Listen("tcp", grpcListen); err != nil {
					return fmt.Errorf("grpc listen %s: %w", grpcListen, err)
				}
				grpcServer = grpc.NewServer(
					grpc.ChainUnaryInterceptor(rpc.LoggingUnaryInterceptor),
					grpc.ChainStreamInterceptor(rpc.LoggingStreamInterceptor),
				)
				rpc.RegisterService(grpcServer, rpc.NewServer(cases, a.cfg.GetChunkSize(), a.cfg.GetDefaultFrequency()))
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				monitoring.Logf("HTTP listening on %s", listen)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			if grpcServer != nil {
				g.Go(func() error {
					monitoring.Logf("gRPC listening on %s", grpcLis.Addr())
					if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
						return fmt.Errorf("grpc server: %w", err)
					}
					return nil
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				monitoring.Logf("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GetShutdownTimeout())
				defer cancel()
				if grpcServer != nil {
					stopped := make(chan struct{})
					go func() {
						grpcServer.GracefulStop()
						close(stopped)
					}()
					select {
					case <-stopped:
					case <-shutdownCtx.Done():
						grpcServer.Stop()
					}
				}
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("http shutdown: %w", err)
				}
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides listen)")
	cmd.Flags().StringVar(&grpcListen, "grpc-listen", "", "gRPC listen address (overrides grpc_listen)")
	cmd.Flags().BoolVar(&noGRPC, "no-grpc", false, "serve HTTP only")
	return cmd
}

// preload opens the named cases before serving. Names are resolved the same
// way as on the command line.
func preload(ctx context.Context, store *db.DB, cases *simcase.Resolver, refs []string) error {
	if len(refs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		c, err := findCase(ctx, store, ref)
		if err != nil {
			return fmt.Errorf("preload: %w", err)
		}
		ids = append(ids, c.ID)
	}
	handles, err := cases.Registry().OpenAll(ctx, ids)
	if err != nil {
		return fmt.Errorf("preload: %w", err)
	}
	for _, h := range handles {
		if err := cases.Adopt(h); err != nil {
			return err
		}
	}
	monitoring.Logf("Preloaded %d cases", len(handles))
	return nil
}
