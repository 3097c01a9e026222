package commands

import (
	"log/slog"
	"time"

	"jobscout-backend/lib/configutil"
	"jobscout-backend/lib/scrapers/linkedin/core"
	"jobscout-backend/lib/serviceutil"
	"jobscout-backend/services/jobscout"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var scrapeConfig *string
var scrapeCsv *string
var scrapeEasyApply *bool

func init() {
	scrapeConfig = scrapeCmd.Flags().String("config", "config.json5", "Path to the scraper config.")
	scrapeCsv = scrapeCmd.Flags().String("csv", "", "Override the configured csv output path.")
	scrapeEasyApply = scrapeCmd.Flags().Bool("easy-apply", false, "Only keep jobs with easy apply.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--config <path>] [--csv <path>] [--easy-apply]",
	Short: "Runs every configured search and writes the results to a csv file.",
	Run: func(cmd *cobra.Command, args []string) {
		godotenv.Load()

		cfg, err := configutil.ReadConfig[jobscout.Config](*scrapeConfig)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if *scrapeEasyApply {
			cfg.FilterEasyApply = true
		}
		csvPath := cfg.CsvFilename
		if *scrapeCsv != "" {
			csvPath = *scrapeCsv
		}

		ctx := cmd.Context()
		engine, err := jobscout.NewEngine(ctx, cfg, core.CredentialsFromEnv())
		if err != nil {
			serviceutil.Fatal("failed to initialize engine", err)
		}
		if err := engine.Client.Login(ctx); err != nil {
			serviceutil.Fatal("failed to authenticate", err)
		}

		t1 := time.Now()
		result, err := engine.Service.Run(ctx, jobscout.RunRequest{})
		if err != nil {
			slog.Warn("run ended early", "err", err)
		}
		t2 := time.Now()

		err = jobscout.WriteCSVFile(csvPath, cfg.OutputFields, result.Jobs)
		if err != nil {
			serviceutil.Fatal("failed to write csv", err)
		}

		printSummary(result)
		slog.Info("scrape finished",
			"csv", csvPath,
			"seconds", t2.Sub(t1).Seconds(),
		)
	},
}

func printSummary(result jobscout.RunResult) {
	t := NewTable()
	t.AppendHeader(table.Row{"Query", "Keywords", "Location", "Jobs Found", "Unique Jobs"})
	for _, q := range result.Queries {
		t.AppendRow(table.Row{q.Name, q.Keywords, q.Location, q.JobsFound, q.UniqueJobs})
	}
	t.AppendFooter(table.Row{"Total", "", "", "", result.TotalUnique})
	t.Render()
}
