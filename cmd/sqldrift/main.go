// Command sqldrift migrates SQL schemas: it diffs databases, applies
// migration histories and detects drift.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	successColor = color.New(color.FgGreen)
)

func main() {
	// A .env alongside the invocation is a convenience, not a requirement.
	_ = godotenv.Load()

	if err := rootCommand().Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SQLDRIFT")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "sqldrift",
		Short:         "SQL schema migration engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("url", "", "database connection URL (env SQLDRIFT_URL)")
	root.PersistentFlags().String("migrations-dir", "migrations", "migration history directory (env SQLDRIFT_MIGRATIONS_DIR)")
	_ = v.BindPFlag("url", root.PersistentFlags().Lookup("url"))
	_ = v.BindPFlag("migrations_dir", root.PersistentFlags().Lookup("migrations-dir"))

	root.AddCommand(
		statusCommand(v),
		applyCommand(v),
		diffCommand(v),
		createCommand(v),
		driftCommand(v),
		resetCommand(v),
	)
	return root
}

func databaseURL(v *viper.Viper) (string, error) {
	raw := v.GetString("url")
	if raw == "" {
		return "", fmt.Errorf("no database URL: pass --url or set SQLDRIFT_URL")
	}
	return raw, nil
}
