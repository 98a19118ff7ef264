package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/iq/internal/cache"
	"github.com/joescharf/iq/internal/llm"
	"github.com/joescharf/iq/internal/models"
	"github.com/joescharf/iq/internal/output"
	"github.com/joescharf/iq/internal/pipeline"
	"github.com/joescharf/iq/internal/report"
	"github.com/joescharf/iq/internal/rubric"
	"github.com/joescharf/iq/internal/store"
	"github.com/joescharf/iq/internal/tracker"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui            *output.UI
	dataStore     store.Store
	feedbackCache *cache.Cache

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "iq",
	Short: "Issue quality feedback for your tracker",
	Long: `iq scores tracker issues against a deterministic quality rubric,
asks an LLM for a narrative critique, and delivers the combined feedback
as tracker comments and markdown reports. Unchanged issues are never
re-analyzed.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without delivering feedback")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/iq/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "iq")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("IQ")
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "iq")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "iq.db"))
	viper.SetDefault("cache_path", filepath.Join(defaultConfigDir, "cache.db"))
	viper.SetDefault("report_dir", filepath.Join(defaultConfigDir, "reports"))
	viper.SetDefault("jira.base_url", "")
	viper.SetDefault("jira.email", "")
	viper.SetDefault("jira.api_token", "")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("llm.timeout_seconds", 30)
	viper.SetDefault("llm.requests_per_second", 2.0)
	viper.SetDefault("slack.webhook_url", "")
	viper.SetDefault("analyze.workers", 1)
	viper.SetDefault("rubric.min_description_words", 20)
	viper.SetDefault("rubric.require_acceptance_criteria", true)
	viper.SetDefault("rubric.allowed_labels", []string{})

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Store and cache are opened lazily so config/version/rules commands run
	// without touching the filesystem.
}

// getStore returns the shared history store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getCache returns the shared idempotency cache, opening it on first call.
func getCache() (*cache.Cache, error) {
	if feedbackCache != nil {
		return feedbackCache, nil
	}

	c, err := cache.Open(viper.GetString("cache_path"))
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	feedbackCache = c
	return feedbackCache, nil
}

// getJira builds the tracker client from configuration.
func getJira() (*tracker.JiraClient, error) {
	return tracker.NewJiraClient(tracker.JiraConfig{
		BaseURL: viper.GetString("jira.base_url"),
		Email:   viper.GetString("jira.email"),
		Token:   viper.GetString("jira.api_token"),
	})
}

// getRubric builds the rubric engine from configuration, falling back to the
// defaults for anything unset.
func getRubric() (*rubric.Engine, error) {
	cfg := rubric.DefaultConfig()
	cfg.MinDescriptionWords = viper.GetInt("rubric.min_description_words")
	cfg.RequireAcceptanceCriteria = viper.GetBool("rubric.require_acceptance_criteria")
	if labels := viper.GetStringSlice("rubric.allowed_labels"); len(labels) > 0 {
		cfg.AllowedLabels = labels
	}
	if terms := viper.GetStringSlice("rubric.ambiguous_terms"); len(terms) > 0 {
		cfg.AmbiguousTerms = terms
	}

	if weights := viper.GetStringMap("rubric.weights"); len(weights) > 0 {
		cfg.Weights = make(map[models.RuleID]float64, len(weights))
		for k := range weights {
			cfg.Weights[models.RuleID(k)] = viper.GetFloat64("rubric.weights." + k)
		}
	}

	return rubric.NewEngine(cfg)
}

// getPipeline wires a full feedback pipeline from configuration. The jira
// client doubles as the comment target.
func getPipeline(jira *tracker.JiraClient) (*pipeline.Pipeline, error) {
	engine, err := getRubric()
	if err != nil {
		return nil, err
	}

	c, err := getCache()
	if err != nil {
		return nil, err
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}

	critiquer := llm.NewClient(
		viper.GetString("anthropic.api_key"),
		viper.GetString("anthropic.model"),
		time.Duration(viper.GetInt("llm.timeout_seconds"))*time.Second,
		viper.GetFloat64("llm.requests_per_second"),
	)

	return &pipeline.Pipeline{
		Rubric:    engine,
		Critiquer: critiquer,
		Cache:     c,
		Commenter: jira,
		Report:    report.NewWriter(viper.GetString("report_dir")),
		History:   s,
		UI:        ui,
	}, nil
}
