package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kervino2/Meteora/internal/api"
	"github.com/kervino2/Meteora/internal/store"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the snapshot over a read-only HTTP API",
	Long: `Serve exposes the enriched snapshot:
  GET /meteorites              list with resolved positions (?q=, ?limit=, ?offset=)
  GET /meteorites/:name/:year  full record
  GET /healthz                 liveness

The snapshot is re-read on every request, so a concurrent run is picked up.

Example:
  meteora serve --addr :8080`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{"addr": "server.addr"})
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return api.Serve(ctx, cfg.Server.Addr, store.New(cfg.Store.Path), slog.Default())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address")
}
