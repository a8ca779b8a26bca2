// fiscalctl herramientas de operación del backend fiscal: inspección de chaves
// y certificados, siembra de numeración, cola de contingencia y alta de usuarios.
//
// Uso: go run ./cmd/fiscalctl <comando> [flags]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fiscalctl",
		Short:         "Operación del backend fiscal NF-e / NFC-e",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newKeyCmd(),
		newCertCmd(),
		newMigrateCmd(),
		newIssuerCmd(),
		newQueueCmd(),
		newUserCmd(),
	)
	return root
}
