package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// waitCmd represents the wait command
var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the maintenance loop to be healthy",
	Long: `Wait for the maintenance loop to be healthy by polling its health endpoint.

This command will repeatedly check /healthz until it responds successfully
or the maximum number of retries is reached. A healthy response means the
ledger database is reachable.

Example:
  phivaultctl wait
  phivaultctl wait --url http://localhost:9090 --retries 60`,
	Run: func(cmd *cobra.Command, args []string) {
		url, _ := cmd.Flags().GetString("url")
		retries, _ := cmd.Flags().GetInt("retries")

		if err := waitForHealthy(url, retries); err != nil {
			fmt.Fprintf(os.Stderr, "phivault did not become healthy: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(waitCmd)
	waitCmd.Flags().StringP("url", "u", "http://localhost:9090", "Base URL of the ops server")
	waitCmd.Flags().IntP("retries", "r", 90, "Number of retries")
}

func waitForHealthy(baseURL string, retries int) error {
	url := baseURL + "/healthz"
	client := &http.Client{Timeout: 2 * time.Second}

	fmt.Println("Waiting for phivault to be healthy...")

	for i := 0; i < retries; i++ {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode < 300 {
				fmt.Println()
				fmt.Println("phivault is healthy!")
				return nil
			}
		}

		fmt.Print(".")
		time.Sleep(1 * time.Second)
	}

	fmt.Println()
	return fmt.Errorf("phivault is not healthy after %d seconds", retries)
}
