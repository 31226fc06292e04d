package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/phivault/pkg/config"
	"github.com/doodlesbykumbi/phivault/pkg/records"
)

// auditVerifyCmd represents the audit verify command
var auditVerifyCmd = &cobra.Command{
	Use:   "verify [resource]",
	Short: "Verify audit entry hashes and signatures",
	Long: `Verify audit entry hashes and signatures.

Without a resource the whole trail is checked, including the links between
consecutive entries. With a resource (a record id, protection id, consent id
or key id) only the entries about it are checked.

Example:
  phivaultctl audit verify
  phivaultctl audit verify rec-1`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resource := ""
		if len(args) > 0 {
			resource = args[0]
		}

		ok, err := verifyAudit(cmd.Context(), resource)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Audit verification failed: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			os.Exit(2)
		}
	},
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)
}

func verifyAudit(ctx context.Context, resource string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return false, fmt.Errorf("failed to load configuration: %w", err)
	}

	rt, err := bootstrap(ctx, cfg, nil)
	if err != nil {
		return false, err
	}
	defer rt.Close()

	result, err := rt.Contract.VerifyAudit(ctx, resource)
	if err != nil {
		return false, err
	}
	printVerification(resource, result)
	return len(result.Tampered) == 0, nil
}

func printVerification(resource string, v records.Verification) {
	scope := "entries"
	if resource != "" {
		scope = "entries for " + resource
	}

	if len(v.Tampered) == 0 {
		color.Green("OK: %d %s verified", v.Checked, scope)
		return
	}
	color.Red("TAMPERED: %d of %d %s failed verification", len(v.Tampered), v.Checked, scope)
	for _, id := range v.Tampered {
		color.Red("  %s", id)
	}
}
