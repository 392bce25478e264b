package cmd

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/xueqianLu/payfi/internal/handler"
	"github.com/xueqianLu/payfi/internal/middleware"
	"github.com/xueqianLu/payfi/internal/server"
	"github.com/xueqianLu/payfi/internal/wallet"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HMAC-authenticated orchestration API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateServer(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		// The service signs unattended; approval happens in the calling front-end.
		a, err := newApp(ctx, wallet.AutoApprove, reg)
		if err != nil {
			return err
		}
		defer a.Close()

		registry := handler.NewRegistry(ctx, log)
		router := server.NewRouter(server.Routes{
			Health:   handler.NewHealthHandler(map[string]handler.Pinger{"journal": a.journal}),
			Wallet:   handler.NewWalletHandler(a.wallet.Address(), a.wallet.ChainID()),
			Actions:  handler.NewActionsHandler(a.backend, a.deps, registry, log),
			Runs:     handler.NewRunsHandler(registry, a.journal, log),
			Auth:     middleware.NewAuthMiddleware(cfg.Auth.APIKey, cfg.Auth.APISecret, log).Wrap,
			Gatherer: reg,
		}, log)

		srv := server.NewServer(router, net.JoinHostPort(cfg.Server.Address, cfg.Server.Port))
		err = server.Run(ctx, srv, log)
		log.Info().Msg("waiting for in-flight runs")
		registry.Wait()
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
