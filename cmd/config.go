package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// envKeyReplacer maps nested keys to env vars: jira.base_url -> JPA_JIRA_BASE_URL.
var envKeyReplacer = strings.NewReplacer(".", "_")

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "jpa"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage jpa configuration.

Running bare 'jpa config' is the same as 'jpa config show'.`,
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
const configTemplate = `# jpa configuration
# See: jpa config show (for effective values and sources)

# Default Jira project key (override with --project)
project: "{{ .Project }}"

# SQLite cache path (default: ~/.config/jpa/jpa.db)
# db_path: {{ .DBPath }}

# Issue store backend: jira, sqlite (offline cache only) or memory (sample data)
store:
  backend: "{{ .Backend }}"

# Jira Cloud connection
jira:
  base_url: "{{ .JiraBaseURL }}"
  email: "{{ .JiraEmail }}"
  # Prefer the JPA_JIRA_API_TOKEN environment variable
  api_token: ""
  page_size: {{ .JiraPageSize }}

# Serve cached data when Jira is unreachable (filled by 'jpa sync')
cache:
  enabled: {{ .CacheEnabled }}

# Auto-assign
assign:
  # Maximum assigned issues per person
  cap: {{ .AssignCap }}
  # Selection policy: round-robin or random
  policy: "{{ .AssignPolicy }}"
  # Seed for the random policy
  seed: {{ .AssignSeed }}

# Problem detection
triage:
  # Low priority issues due within this many days are problematic
  deadline_days: {{ .DeadlineDays }}

# Anthropic (used by 'jpa triage')
anthropic:
  model: "{{ .AnthropicModel }}"

# REST API port for 'jpa serve'
port: {{ .Port }}
`

type configTemplateData struct {
	Project        string
	DBPath         string
	Backend        string
	JiraBaseURL    string
	JiraEmail      string
	JiraPageSize   int
	CacheEnabled   bool
	AssignCap      int
	AssignPolicy   string
	AssignSeed     int64
	DeadlineDays   int
	AnthropicModel string
	Port           int
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
		Project:        viper.GetString("project"),
		DBPath:         viper.GetString("db_path"),
		Backend:        viper.GetString("store.backend"),
		JiraBaseURL:    viper.GetString("jira.base_url"),
		JiraEmail:      viper.GetString("jira.email"),
		JiraPageSize:   viper.GetInt("jira.page_size"),
		CacheEnabled:   viper.GetBool("cache.enabled"),
		AssignCap:      viper.GetInt("assign.cap"),
		AssignPolicy:   viper.GetString("assign.policy"),
		AssignSeed:     viper.GetInt64("assign.seed"),
		DeadlineDays:   viper.GetInt("triage.deadline_days"),
		AnthropicModel: viper.GetString("anthropic.model"),
		Port:           viper.GetInt("port"),
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
	{Key: "project", EnvVar: "JPA_PROJECT"},
	{Key: "db_path", EnvVar: "JPA_DB_PATH"},
	{Key: "store.backend", EnvVar: "JPA_STORE_BACKEND"},
	{Key: "jira.base_url", EnvVar: "JPA_JIRA_BASE_URL"},
	{Key: "jira.email", EnvVar: "JPA_JIRA_EMAIL"},
	{Key: "jira.api_token", EnvVar: "JPA_JIRA_API_TOKEN", Secret: true},
	{Key: "jira.page_size", EnvVar: "JPA_JIRA_PAGE_SIZE"},
	{Key: "cache.enabled", EnvVar: "JPA_CACHE_ENABLED"},
	{Key: "assign.cap", EnvVar: "JPA_ASSIGN_CAP"},
	{Key: "assign.policy", EnvVar: "JPA_ASSIGN_POLICY"},
	{Key: "assign.seed", EnvVar: "JPA_ASSIGN_SEED"},
	{Key: "triage.deadline_days", EnvVar: "JPA_TRIAGE_DEADLINE_DAYS"},
	{Key: "anthropic.api_key", EnvVar: "JPA_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "JPA_ANTHROPIC_MODEL"},
	{Key: "port", EnvVar: "JPA_PORT"},
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
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// maskSecret hides all but the last four characters of a credential.
func maskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
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
		return fmt.Errorf("$EDITOR is not set: set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'jpa config init' first)", cfgPath)
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
