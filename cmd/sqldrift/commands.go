package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sqldrift/sqldrift/connector"
	"github.com/sqldrift/sqldrift/describe"
	"github.com/sqldrift/sqldrift/destructive"
	"github.com/sqldrift/sqldrift/flavour"
)

// connect builds a connector from the CLI configuration and prints any
// version warning.
func connect(ctx context.Context, v *viper.Viper) (*connector.Connector, error) {
	raw, err := databaseURL(v)
	if err != nil {
		return nil, err
	}
	target, err := parseDatabaseURL(raw)
	if err != nil {
		return nil, err
	}

	conn, warning, err := connector.New(ctx, target, connector.Options{
		MigrationsDir: v.GetString("migrations_dir"),
	})
	if err != nil {
		return nil, err
	}
	if warning != nil {
		warningColor.Fprintf(os.Stderr, "Warning: %s\n", warning.Message)
	}
	return conn, nil
}

func statusCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied, pending and failed migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer conn.Close()

			status, err := conn.Status(cmd.Context())
			if err != nil {
				return err
			}

			for _, rec := range status.Applied {
				if rec.RolledBackAt != nil {
					fmt.Printf("  rolled back  %s\n", rec.MigrationName)
				} else if rec.FinishedAt != nil {
					successColor.Printf("  applied      %s\n", rec.MigrationName)
				}
			}
			for _, rec := range status.Failed {
				errorColor.Printf("  failed       %s (%d statement(s) ran)\n", rec.MigrationName, rec.AppliedStepsCount)
			}
			for _, dir := range status.Pending {
				warningColor.Printf("  pending      %s\n", dir.Name)
			}
			if status.Drift != nil {
				errorColor.Printf("  drift        %v\n", status.Drift)
			}
			if len(status.Applied) == 0 && len(status.Pending) == 0 {
				fmt.Println("  no migrations found")
			}
			return nil
		},
	}
}

func applyCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Apply pending migrations from the history directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer conn.Close()

			if dirs, err := conn.LoadHistory(); err == nil {
				for _, dir := range dirs {
					for _, w := range conn.Flavour().ScanMigrationScript(dir.Script) {
						warningColor.Fprintf(os.Stderr, "  %s: %s\n", dir.Name, w)
					}
				}
			}

			applied, err := conn.ApplyPending(cmd.Context())
			for _, name := range applied {
				successColor.Printf("  applied %s\n", name)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("  nothing to apply")
			}
			return nil
		},
	}
}

func diffCommand(v *viper.Viper) *cobra.Command {
	var targetURL string
	var force bool
	var apply bool

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Diff the database against a target database and print the DDL",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer conn.Close()

			plan, err := planAgainst(cmd.Context(), conn, targetURL)
			if err != nil {
				return err
			}
			if plan.Empty() {
				fmt.Println("  schemas are identical")
				return nil
			}

			fmt.Print(plan.Script())
			printDiagnostics(plan.Diagnostics)

			if apply {
				return conn.Apply(cmd.Context(), "manual_diff", plan, force)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&targetURL, "target-url", "", "URL of the database holding the desired schema")
	cmd.Flags().BoolVar(&apply, "apply", false, "execute the generated DDL against the database")
	cmd.Flags().BoolVar(&force, "force", false, "apply even when the plan destroys data")
	_ = cmd.MarkFlagRequired("target-url")
	return cmd
}

func createCommand(v *viper.Viper) *cobra.Command {
	var targetURL string
	var name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write a new migration that evolves the database toward a target schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer conn.Close()

			target, err := parseDatabaseURL(targetURL)
			if err != nil {
				return err
			}
			schema, err := describeTarget(cmd.Context(), target)
			if err != nil {
				return err
			}

			plan, dir, err := conn.CreateMigration(cmd.Context(), name, schema)
			if err != nil {
				return err
			}
			if dir == nil {
				fmt.Println("  no changes, nothing written")
				return nil
			}
			successColor.Printf("  wrote %s\n", dir.Name)
			printDiagnostics(plan.Diagnostics)
			return nil
		},
	}
	cmd.Flags().StringVar(&targetURL, "target-url", "", "URL of the database holding the desired schema")
	cmd.Flags().StringVar(&name, "name", "", "descriptive migration name")
	_ = cmd.MarkFlagRequired("target-url")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func driftCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "drift",
		Short: "Replay the history against a shadow database and report schema drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer conn.Close()

			steps, err := conn.CheckDrift(cmd.Context())
			if err != nil {
				return err
			}
			if len(steps) == 0 {
				successColor.Println("  no drift detected")
				return nil
			}
			errorColor.Printf("  schema has drifted from the migration history (%d change(s)):\n", len(steps))
			for _, step := range steps {
				fmt.Printf("    %s\n", step)
			}
			return fmt.Errorf("schema drift detected")
		},
	}
}

func resetCommand(v *viper.Viper) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := conn.Reset(cmd.Context(), yes); err != nil {
				return err
			}
			successColor.Println("  database reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset; without it the command refuses to run")
	return cmd
}

// planAgainst plans the connector's database toward the schema of
// another live database.
func planAgainst(ctx context.Context, conn *connector.Connector, targetURL string) (*connector.Plan, error) {
	target, err := parseDatabaseURL(targetURL)
	if err != nil {
		return nil, err
	}
	schema, err := describeTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	return conn.Plan(ctx, schema)
}

// describeTarget opens a short-lived connection to snapshot a schema.
func describeTarget(ctx context.Context, target flavour.Target) (*describe.Schema, error) {
	targetConn, _, err := connector.New(ctx, target, connector.Options{})
	if err != nil {
		return nil, fmt.Errorf("connecting to target database: %w", err)
	}
	defer targetConn.Close()
	return targetConn.Describe(ctx)
}

func printDiagnostics(diags []destructive.Diagnostic) {
	for _, d := range diags {
		if d.Severity == destructive.Unexecutable {
			errorColor.Printf("  unexecutable: %s\n", d.Message)
		} else {
			warningColor.Printf("  warning: %s\n", d.Message)
		}
	}
}
