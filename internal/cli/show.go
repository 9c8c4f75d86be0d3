package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kervino2/Meteora/internal/model"
	"github.com/kervino2/Meteora/internal/store"
)

var showLimit int

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the snapshot with enrichment coverage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		coll, err := store.New(cfg.Store.Path).Load(commandContext(cmd))
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		printSnapshot(cmd.OutOrStdout(), coll.Records(), showLimit, shouldColorize(os.Stdout))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVar(&showLimit, "limit", 50, "maximum rows to print (0 prints all)")
}

// coverage counts how much of a snapshot has been enriched
type coverage struct {
	Total      int
	Complete   int
	Empty      int
	WithImpact int
	Located    int
}

func snapshotCoverage(records []model.MeteoriteRecord) coverage {
	var c coverage
	for _, rec := range records {
		c.Total++
		if rec.Complete() {
			c.Complete++
		}
		if rec.Filled() == 0 {
			c.Empty++
		}
		if rec.Impact != nil {
			c.WithImpact++
		}
		if _, ok := model.ResolveLocation(rec); ok {
			c.Located++
		}
	}
	return c
}

func snapshotRows(records []model.MeteoriteRecord, limit int) [][]string {
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	total := len(model.Fields())
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		location := "-"
		if loc, ok := model.ResolveLocation(rec); ok {
			location = fmt.Sprintf("%.2f, %.2f (%s)", loc.Lat, loc.Lon, loc.Source)
		}
		energy := "-"
		if rec.Impact != nil && rec.Impact.ImpactEnergy != "" {
			energy = rec.Impact.ImpactEnergy + " kt"
		}
		mass := "-"
		if g, ok := model.LookupNumber(rec.Mass); ok {
			mass = strconv.FormatFloat(g, 'f', -1, 64)
		}
		rows = append(rows, []string{
			rec.Name,
			rec.Year,
			mass,
			location,
			energy,
			fmt.Sprintf("%d/%d", rec.Filled(), total),
		})
	}
	return rows
}

func printSnapshot(w io.Writer, records []model.MeteoriteRecord, limit int, colorize bool) {
	headers := []string{"Name", "Year", "Mass (g)", "Location", "Impact energy", "Enriched"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignRight, alignRight}
	fmt.Fprintln(w, renderTable(headers, snapshotRows(records, limit), aligns, colorize))

	c := snapshotCoverage(records)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Records:      %d\n", c.Total)
	fmt.Fprintf(w, "  Complete:     %d\n", c.Complete)
	fmt.Fprintf(w, "  Not enriched: %d\n", c.Empty)
	fmt.Fprintf(w, "  With impact:  %d\n", c.WithImpact)
	fmt.Fprintf(w, "  Located:      %d\n", c.Located)
	if limit > 0 && c.Total > limit {
		fmt.Fprintf(w, "  (showing first %d; use --limit 0 for all)\n", limit)
	}
}
