package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhoicas/Fiscal-api/internal/domain/nfe"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "key", Short: "Chave de acesso"}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <chave>",
		Short: "Valida el dígito verificador y descompone la chave",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts, err := nfe.NewAccessKeyCodec().Parse(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cUF:     %s\n", parts.RegionCode)
			fmt.Fprintf(out, "AAMM:    %s\n", parts.YearMonth)
			fmt.Fprintf(out, "CNPJ:    %s\n", parts.IssuerCNPJ)
			fmt.Fprintf(out, "modelo:  %s\n", parts.Model)
			fmt.Fprintf(out, "serie:   %d\n", parts.Series)
			fmt.Fprintf(out, "número:  %d\n", parts.Number)
			fmt.Fprintf(out, "tpEmis:  %s\n", parts.EmissionCode)
			fmt.Fprintf(out, "cNF:     %08d\n", parts.Seed)
			fmt.Fprintf(out, "cDV:     %d\n", parts.CheckDigit)
			return nil
		},
	})
	return cmd
}
