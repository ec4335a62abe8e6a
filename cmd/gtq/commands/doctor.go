package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-type-query/internal/config"
	"github.com/l3aro/go-type-query/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration and inference",
	Long: `Checks the configuration and runs canned inference scenarios
(isinstance narrowing, tuple destructuring, a loop, and a timeout)
with the configured limits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, configPath, err := loadConfigWithPath(cmd)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		result, err := healthcheck.Check(cmd.Context(), c, configPath, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(cmd.OutOrStdout(), result)
		if !result.Healthy() {
			return fmt.Errorf("health check failed: one or more checks did not pass")
		}
		return nil
	},
}

// loadConfigWithPath loads the config and reports the file it came from.
// Without any config file the defaults are checked.
func loadConfigWithPath(cmd *cobra.Command) (*config.Config, string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		c, err := config.LoadFromFile(path)
		return c, path, err
	}

	effectivePath := ""
	for _, path := range []string{config.ProjectConfigFilePath(), config.GlobalConfigFilePath()} {
		if fileExists(path) {
			effectivePath = path
			break
		}
	}

	c, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	return c, effectivePath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(w io.Writer, result *healthcheck.HealthCheckResult) {
	if result.EffectivePath != "" {
		fmt.Fprintf(w, "Using config: %s (%s)\n", result.EffectivePath, result.EffectiveScope)
	} else {
		fmt.Fprintln(w, "Using config: defaults (run 'gtq init' to create a config file)")
	}
	if result.SavedPath != "" && result.SavedPath != result.EffectivePath {
		fmt.Fprintf(w, "Saved config: %s (%s)\n", result.SavedPath, result.SavedScope)
	}

	if result.ConfigError != "" {
		fmt.Fprintf(w, "  Config: %s %s\n", formatStatusIcon("error"), result.ConfigError)
	} else {
		fmt.Fprintf(w, "  Config: %s valid\n", formatStatusIcon("ok"))
	}

	fmt.Fprintln(w, "\nScenarios:")
	for _, s := range result.Scenarios {
		fmt.Fprintf(w, "  %s %-26s %s (%s)\n", formatStatusIcon(s.Status), s.Name, s.Got, s.Duration.Round(time.Microsecond))
		if s.Error != "" {
			fmt.Fprintf(w, "      Error: %s\n", s.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case "ok":
		return "✓"
	case "error":
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
