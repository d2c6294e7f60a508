package main

import (
	"fmt"
	"os"

	"github.com/OFFIS-RIT/rquest-bridge/internal/util"
	"github.com/OFFIS-RIT/rquest-bridge/pkg/logger"
	"github.com/OFFIS-RIT/rquest-bridge/pkg/logger/console"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Turn RQuest tasks into workflow run crates",
		Long: `bridge polls the RQuest task API, packages every task as a
Workflow Run RO-Crate, uploads it to S3 and hands it to the Hutch agent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if envFile != "" {
				util.LoadEnv(envFile)
			} else {
				util.LoadEnv()
			}

			consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug: util.GetEnvBool("DEBUG", false),
				JSON:  util.GetEnvString("LOG_FORMAT", "text") == "json",
			})
			logger.Init(consoleLogger)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment from this file instead of .env")

	cmd.AddCommand(runCmd(), buildCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bridge version %s\n", version)
		},
	})
	return cmd
}
