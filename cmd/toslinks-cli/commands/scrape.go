package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"toslinks/lib/configutil"
	"toslinks/lib/restyutil"
	"toslinks/lib/scrapers/tosdr"
	"toslinks/lib/serviceutil"
	"toslinks/lib/telemetry"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type Config struct {
	BaseUrl      string `json:"base_url"`
	TotalPages   int    `json:"total_pages"`
	DelaySeconds int    `json:"delay_seconds"`
	Output       string `json:"output"`
}

var defaultConfig = Config{
	BaseUrl:      "https://edit.tosdr.org",
	TotalPages:   328,
	DelaySeconds: 5,
	Output:       "tos_links.csv",
}

var scrapeConfig *string
var scrapeVerbose *bool

func init() {
	scrapeConfig = scrapeCmd.Flags().String("config", "config.json5", "The config file to read scrape settings from.")
	scrapeVerbose = scrapeCmd.Flags().Bool("verbose", false, "Enable debug logging and raw HTTP transcripts.")
	rootCmd.AddCommand(scrapeCmd)
}

// credentials only ever come from the environment (optionally a .env
// file), never from the committed config
func readCredentials() (string, string) {
	err := godotenv.Load()
	if err != nil {
		slog.Debug("no .env file found")
	}

	email := os.Getenv("TOSDR_EMAIL")
	password := os.Getenv("TOSDR_PASSWORD")
	if email == "" || password == "" {
		serviceutil.Fatal(
			"missing credentials",
			fmt.Errorf("TOSDR_EMAIL and TOSDR_PASSWORD must be set in the environment"),
		)
	}
	return email, password
}

func readScrapeConfig() Config {
	cfg, err := configutil.ReadConfig[Config](*scrapeConfig)
	if os.IsNotExist(err) {
		slog.Info("no config file found, using defaults", "path", *scrapeConfig)
		return defaultConfig
	}
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	if cfg.BaseUrl == "" {
		cfg.BaseUrl = defaultConfig.BaseUrl
	}
	if cfg.TotalPages <= 0 {
		cfg.TotalPages = defaultConfig.TotalPages
	}
	if cfg.DelaySeconds <= 0 {
		cfg.DelaySeconds = defaultConfig.DelaySeconds
	}
	if cfg.Output == "" {
		cfg.Output = defaultConfig.Output
	}
	return cfg
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--config <path/to/config.json5>] [--verbose]",
	Short: "Logs into the edit site, walks the services listing and writes the ToS links to a CSV file.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		telemetry.InitSlog(*scrapeVerbose)
		err := telemetry.SetupFromEnv(ctx, "toslinks-cli")
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer telemetry.Shutdown(ctx)

		if *scrapeVerbose {
			telemetry.InstrumentPerfStats(ctx)
			tosdr.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/tosdr"))
		}

		email, password := readCredentials()
		cfg := readScrapeConfig()

		client, err := tosdr.NewClient(ctx, tosdr.ClientOptions{BaseUrl: cfg.BaseUrl})
		if err != nil {
			serviceutil.Fatal("failed to initialize client", err)
		}
		collector := tosdr.NewCollector(client, tosdr.CollectorOptions{
			Email:      email,
			Password:   password,
			TotalPages: cfg.TotalPages,
			Delay:      time.Duration(cfg.DelaySeconds) * time.Second,
			Output:     cfg.Output,
		})

		slog.Info(
			"scraping services listing",
			"base_url", cfg.BaseUrl,
			"pages", cfg.TotalPages,
			"output", cfg.Output,
		)

		t1 := time.Now()
		err = collector.Run(ctx)
		if err != nil {
			serviceutil.Fatal("scrape failed", err)
		}
		t2 := time.Now()

		slog.Info("scraping time", "seconds", t2.Sub(t1).Seconds())
	},
}
