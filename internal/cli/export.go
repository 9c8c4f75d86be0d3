package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kervino2/Meteora/internal/store"
)

var (
	exportSQLite string
	exportBatch  int
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the snapshot to SQLite",
	Long: `Export upserts every record of the JSON snapshot into a SQLite table,
adding numeric columns (mass, year, impact energy) for querying.

Example:
  meteora export --sqlite meteorites.db`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)

		coll, err := store.New(cfg.Store.Path).Load(ctx)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		n, err := store.ExportSQLite(ctx, exportSQLite, coll.Records(), exportBatch)
		if err != nil {
			return fmt.Errorf("export failed after %d rows: %w", n, err)
		}
		fmt.Fprintf(os.Stderr, "✓ Exported %d records to %s\n", n, exportSQLite)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportSQLite, "sqlite", "", "SQLite database path")
	exportCmd.Flags().IntVar(&exportBatch, "batch", store.DefaultExportBatch, "rows per transaction")
	_ = exportCmd.MarkFlagRequired("sqlite")
}
