package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-type-query/internal/config"
	"github.com/l3aro/go-type-query/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize gtq configuration interactively",
	Long: `Guides you through setting up gtq configuration step by step.
Creates a config file with the inference limits and logging settings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd)
	},
}

func validateDuration(s string) error {
	_, err := time.ParseDuration(s)
	return err
}

func validateCount(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("must be non-negative")
	}
	return nil
}

func runInit(cmd *cobra.Command) error {
	defaults := config.DefaultConfig()

	// === SECTION 1: Limits ===
	inferenceTimeout := defaults.InferenceTimeout.String()
	definitionsTimeout := defaults.DefinitionsTimeout.String()
	maxInstructions := strconv.Itoa(defaults.MaxInstructions)
	maxScopes := strconv.Itoa(defaults.MaxScopes)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Inference timeout").
				Description("Budget for one type analysis run, 0s disables it").
				Placeholder(inferenceTimeout).
				Validate(validateDuration).
				Value(&inferenceTimeout),
			huh.NewInput().
				Title("Reaching definitions timeout").
				Placeholder(definitionsTimeout).
				Validate(validateDuration).
				Value(&definitionsTimeout),
			huh.NewInput().
				Title("Maximum instructions per scope").
				Description("Larger scopes answer too complex, 0 for no limit").
				Placeholder(maxInstructions).
				Validate(validateCount).
				Value(&maxInstructions),
			huh.NewInput().
				Title("Cached scopes").
				Placeholder(maxScopes).
				Validate(validateCount).
				Value(&maxScopes),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Logging ===
	logLevel := defaults.LogLevel
	jsonLogs := defaults.JSONLogs
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Info", "info"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&logLevel),
			huh.NewConfirm().
				Title("Log as JSON?").
				Affirmative("JSON").
				Negative("Text").
				Value(&jsonLogs),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 3: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.gtq/config.yaml)", "global"),
					huh.NewOption("Project (./.gtq/config.yaml)", "project"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	// === Build config struct ===
	c := config.DefaultConfig()
	c.InferenceTimeout, _ = time.ParseDuration(inferenceTimeout)
	c.DefinitionsTimeout, _ = time.ParseDuration(definitionsTimeout)
	c.MaxInstructions, _ = strconv.Atoi(maxInstructions)
	c.MaxScopes, _ = strconv.Atoi(maxScopes)
	c.LogLevel = logLevel
	c.JSONLogs = jsonLogs

	if err := c.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "\n=== Configuration Preview ===")
	fmt.Fprintf(w, "Config path: %s\n", configPath)
	fmt.Fprintf(w, "Inference timeout: %s\n", c.InferenceTimeout)
	fmt.Fprintf(w, "Definitions timeout: %s\n", c.DefinitionsTimeout)
	fmt.Fprintf(w, "Max instructions: %d\n", c.MaxInstructions)
	fmt.Fprintf(w, "Max scopes: %d\n", c.MaxScopes)
	fmt.Fprintf(w, "Log level: %s (json: %t)\n", c.LogLevel, c.JSONLogs)
	fmt.Fprintln(w, "================================")

	if err := c.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(w, "Configuration saved to: %s\n", configPath)

	// === SECTION 4: Health Check ===
	fmt.Fprintln(w, "\n=== Running Health Check ===")
	loaded, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}

	effectivePath := configPath
	if saveLocationChoice == "global" && fileExists(config.ProjectConfigFilePath()) {
		effectivePath = config.ProjectConfigFilePath()
	}
	result, err := healthcheck.Check(cmd.Context(), loaded, configPath, effectivePath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	displayDoctorResult(w, result)
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
