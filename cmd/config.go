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
	return filepath.Join(home, ".config", "promptsense"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage promptsense configuration.

Running bare 'promptsense config' is the same as 'promptsense config show'.`,
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
const configTemplate = `# promptsense configuration
# See: promptsense config show (for effective values and sources)

# State/data directory (default: ~/.config/promptsense)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/promptsense/promptsense.db)
# db_path: {{ .DBPath }}

# Directory for per-run JSON artifacts (default: <state_dir>/runs)
# runs_dir: {{ .RunsDir }}

# Run execution
run:
  # Max in-flight provider calls (default: 4)
  concurrency: {{ .RunConcurrency }}

  # Requests per second per provider, 0 disables (default: 2)
  rate_limit: {{ .RunRateLimit }}

  # Per-request timeout (default: 60s)
  timeout: "{{ .RunTimeout }}"

# Providers. API keys may also come from OPENAI_API_KEY, HF_API_TOKEN,
# and ANTHROPIC_API_KEY.
openai:
  # api_key: ""
  base_url: "{{ .OpenAIBaseURL }}"
  model: "{{ .OpenAIModel }}"

huggingface:
  # api_key: ""
  base_url: "{{ .HuggingFaceBaseURL }}"
  model: "{{ .HuggingFaceModel }}"

anthropic:
  # api_key: ""
  model: "{{ .AnthropicModel }}"

serve:
  # HTTP port for 'promptsense serve' (default: 8080)
  port: {{ .ServePort }}
`

type configTemplateData struct {
	StateDir           string
	DBPath             string
	RunsDir            string
	RunConcurrency     int
	RunRateLimit       float64
	RunTimeout         string
	OpenAIBaseURL      string
	OpenAIModel        string
	HuggingFaceBaseURL string
	HuggingFaceModel   string
	AnthropicModel     string
	ServePort          int
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
		StateDir:           viper.GetString("state_dir"),
		DBPath:             viper.GetString("db_path"),
		RunsDir:            viper.GetString("runs_dir"),
		RunConcurrency:     viper.GetInt("run.concurrency"),
		RunRateLimit:       viper.GetFloat64("run.rate_limit"),
		RunTimeout:         viper.GetString("run.timeout"),
		OpenAIBaseURL:      viper.GetString("openai.base_url"),
		OpenAIModel:        viper.GetString("openai.model"),
		HuggingFaceBaseURL: viper.GetString("huggingface.base_url"),
		HuggingFaceModel:   viper.GetString("huggingface.model"),
		AnthropicModel:     viper.GetString("anthropic.model"),
		ServePort:          viper.GetInt("serve.port"),
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
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "PROMPTSENSE_STATE_DIR"},
	{Key: "db_path", EnvVar: "PROMPTSENSE_DB_PATH"},
	{Key: "runs_dir", EnvVar: "PROMPTSENSE_RUNS_DIR"},
	{Key: "run.concurrency", EnvVar: "PROMPTSENSE_RUN_CONCURRENCY"},
	{Key: "run.rate_limit", EnvVar: "PROMPTSENSE_RUN_RATE_LIMIT"},
	{Key: "run.timeout", EnvVar: "PROMPTSENSE_RUN_TIMEOUT"},
	{Key: "openai.base_url", EnvVar: "PROMPTSENSE_OPENAI_BASE_URL"},
	{Key: "openai.model", EnvVar: "PROMPTSENSE_OPENAI_MODEL"},
	{Key: "huggingface.base_url", EnvVar: "PROMPTSENSE_HUGGINGFACE_BASE_URL"},
	{Key: "huggingface.model", EnvVar: "PROMPTSENSE_HUGGINGFACE_MODEL"},
	{Key: "anthropic.model", EnvVar: "PROMPTSENSE_ANTHROPIC_MODEL"},
	{Key: "serve.port", EnvVar: "PROMPTSENSE_SERVE_PORT"},
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
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
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
		return fmt.Errorf("config file not found: %s (run 'promptsense config init' first)", cfgPath)
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
