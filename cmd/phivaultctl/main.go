package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "phivaultctl",
	Short: "Operate a phivault ledger",
	Long: `Operate a phivault ledger: manage the schema, inspect configuration,
verify the audit trail and run the maintenance loop.

A .env file in the working directory is loaded before any command runs.
Variables already set in the environment take precedence.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		envFile, _ := cmd.Flags().GetString("env-file")
		// A missing file is the normal case outside development.
		_ = godotenv.Load(envFile)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file to load before running")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
