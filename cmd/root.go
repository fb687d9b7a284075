package cmd

import (
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/flowhawk/internal/config"
	"github.com/telhawk-systems/flowhawk/internal/output"
)

var (
	cfgFile      string
	outputFormat string
	cfg          *config.Config
	printer      *output.Printer
)

var rootCmd = &cobra.Command{
	Use:   "flowhawk",
	Short: "Network flow intrusion detection",
	Long: `flowhawk classifies network flows with a trained model and turns
them into security alerts.

Serve the alert API, convert flow exports to connection logs, run the
classifier over a log and generate synthetic alerts from your terminal.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		printer = output.New(cmd.OutOrStdout(), format)

		cfg, err = config.Load(cfgFile)
		return err
	},
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		output.New(rootCmd.ErrOrStderr(), output.FormatTable).Error("%v", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/flowhawk/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
}
