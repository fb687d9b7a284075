package cmd

import (
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/flowhawk/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the alert database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := migrations.Up(databaseURL(cmd)); err != nil {
			return err
		}
		printer.Success("Schema is up to date")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := migrations.Down(databaseURL(cmd)); err != nil {
			return err
		}
		printer.Success("Schema rolled back")
		return nil
	},
}

// SchemaVersion is the output of migrate version.
type SchemaVersion struct {
	Version uint `json:"version" yaml:"version"`
	Dirty   bool `json:"dirty" yaml:"dirty"`
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, dirty, err := migrations.Version(databaseURL(cmd))
		if err != nil {
			return err
		}
		sv := SchemaVersion{Version: v, Dirty: dirty}
		if ok, err := printer.Structured(sv); ok {
			return err
		}
		if v == 0 {
			printer.Info("No migrations applied")
			return nil
		}
		printer.Info("Schema version %d", v)
		if dirty {
			printer.Warn("The last migration failed; fix the schema and force a version")
		}
		return nil
	},
}

func databaseURL(cmd *cobra.Command) string {
	if url, _ := cmd.Flags().GetString("database-url"); url != "" {
		return url
	}
	return cfg.Database.URL
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	migrateCmd.PersistentFlags().String("database-url", "", "Postgres URL (default: database.url from config)")
}
