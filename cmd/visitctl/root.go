package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bizmatters/field-sales/visit-guard/internal/config"
	"github.com/bizmatters/field-sales/visit-guard/internal/models"
	"github.com/bizmatters/field-sales/visit-guard/internal/store"
	"github.com/bizmatters/field-sales/visit-guard/internal/trust"
)

var (
	configFile string
	out        io.Writer = os.Stdout
)

var (
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "visitctl",
	Short: "Operate the visit guard service",
	Long: `visitctl applies database migrations, inspects agent trust scores,
issues development tokens and prints the effective configuration.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./config.yaml or /etc/visit-guard/config.yaml)")
}

// trustBackend is the storage the trust commands read
type trustBackend interface {
	trust.Repository
	ListTrust(ctx context.Context) ([]models.AgentTrust, error)
}

// openBackend connects to the configured store, replaceable in tests.
var openBackend = defaultOpenBackend

func defaultOpenBackend(ctx context.Context, cfg *config.Config) (trustBackend, func(), error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		return nil, nil, fmt.Errorf("storage.driver memory has no persistent data to inspect")
	}
	pool, err := store.Connect(ctx, cfg.Database.URL, 1, 0)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgres(pool), pool.Close, nil
}

func loadConfig() (*config.Config, *viper.Viper, error) {
	return config.Load(configFile)
}

func info(format string, a ...any) {
	fmt.Fprintf(out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func success(format string, a ...any) {
	fmt.Fprintf(out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

// scoreColor colors a trust score by how close it is to the block threshold
func scoreColor(score int) string {
	s := fmt.Sprintf("%d", score)
	switch {
	case trust.IsBlocked(score):
		return red(s)
	case score < trust.BlockThreshold+20:
		return yellow(s)
	default:
		return green(s)
	}
}

func newTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}
