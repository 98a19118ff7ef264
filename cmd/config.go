package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "iq"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage iq configuration.

Running bare 'iq config' is the same as 'iq config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# iq configuration
# See: iq config show (for effective values and sources)

# Feedback history database (default: ~/.config/iq/iq.db)
# db_path: {{ .DBPath }}

# Idempotency cache database (default: ~/.config/iq/cache.db)
# cache_path: {{ .CachePath }}

# Markdown report directory (default: ~/.config/iq/reports)
# report_dir: {{ .ReportDir }}

# Issue tracker
jira:
  # Base URL of your Jira site, e.g. https://acme.atlassian.net
  base_url: "{{ .JiraBaseURL }}"

  # Cloud: account email + API token. Leave email empty for a server PAT.
  email: "{{ .JiraEmail }}"
  api_token: ""

# Critique provider
anthropic:
  api_key: ""
  model: "{{ .AnthropicModel }}"

llm:
  # Per-request timeout in seconds (default: 30)
  timeout_seconds: {{ .LLMTimeout }}

  # Request rate across all workers (default: 2.0, 0 = unlimited)
  requests_per_second: {{ .LLMRPS }}

# Slack incoming webhook for job summaries (optional)
slack:
  webhook_url: ""

analyze:
  # Concurrent workers for batch analysis (default: 1 = sequential)
  workers: {{ .Workers }}

# Rubric tuning. Weights of 0 disable a rule.
rubric:
  # min_description_words: {{ .MinDescWords }}
  # require_acceptance_criteria: {{ .RequireAC }}
  # allowed_labels: []
  # weights:
  #   acceptance_criteria: 1.5
  #   estimate_present: 0
`

type configTemplateData struct {
	DBPath         string
	CachePath      string
	ReportDir      string
	JiraBaseURL    string
	JiraEmail      string
	AnthropicModel string
	LLMTimeout     int
	LLMRPS         float64
	Workers        int
	MinDescWords   int
	RequireAC      bool
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		DBPath:         viper.GetString("db_path"),
		CachePath:      viper.GetString("cache_path"),
		ReportDir:      viper.GetString("report_dir"),
		JiraBaseURL:    viper.GetString("jira.base_url"),
		JiraEmail:      viper.GetString("jira.email"),
		AnthropicModel: viper.GetString("anthropic.model"),
		LLMTimeout:     viper.GetInt("llm.timeout_seconds"),
		LLMRPS:         viper.GetFloat64("llm.requests_per_second"),
		Workers:        viper.GetInt("analyze.workers"),
		MinDescWords:   viper.GetInt("rubric.min_description_words"),
		RequireAC:      viper.GetBool("rubric.require_acceptance_criteria"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "db_path", EnvVar: "IQ_DB_PATH"},
	{Key: "cache_path", EnvVar: "IQ_CACHE_PATH"},
	{Key: "report_dir", EnvVar: "IQ_REPORT_DIR"},
	{Key: "jira.base_url", EnvVar: "IQ_JIRA_BASE_URL"},
	{Key: "jira.email", EnvVar: "IQ_JIRA_EMAIL"},
	{Key: "jira.api_token", EnvVar: "IQ_JIRA_API_TOKEN", Secret: true},
	{Key: "anthropic.api_key", EnvVar: "IQ_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "IQ_ANTHROPIC_MODEL"},
	{Key: "llm.timeout_seconds", EnvVar: "IQ_LLM_TIMEOUT_SECONDS"},
	{Key: "llm.requests_per_second", EnvVar: "IQ_LLM_REQUESTS_PER_SECOND"},
	{Key: "slack.webhook_url", EnvVar: "IQ_SLACK_WEBHOOK_URL", Secret: true},
	{Key: "analyze.workers", EnvVar: "IQ_ANALYZE_WORKERS"},
	{Key: "rubric.min_description_words", EnvVar: "IQ_RUBRIC_MIN_DESCRIPTION_WORDS"},
	{Key: "rubric.require_acceptance_criteria", EnvVar: "IQ_RUBRIC_REQUIRE_ACCEPTANCE_CRITERIA"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			if s, ok := val.(string); ok && s != "" {
				val = "********"
			}
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-36s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'iq config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
