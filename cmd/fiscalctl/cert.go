package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jhoicas/Fiscal-api/internal/infrastructure/sefaz/signer"
)

func newCertCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cert", Short: "Certificado digital A1"}

	var password string
	inspect := &cobra.Command{
		Use:   "inspect <archivo.pfx>",
		Short: "Abre el PKCS#12 y muestra identidad y vigencia",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("password") {
				p, err := readPassword(cmd.ErrOrStderr(), "contraseña del certificado: ")
				if err != nil {
					return err
				}
				password = p
			}
			store := signer.NewCertificateStore(zerolog.Nop())
			id, err := store.LoadFile(args[0], password)
			if err != nil {
				return err
			}
			validity := store.Validity()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sujeto:   %s\n", id.Subject)
			fmt.Fprintf(out, "CNPJ:     %s\n", id.TaxID)
			fmt.Fprintf(out, "serie:    %s\n", id.SerialNumber)
			fmt.Fprintf(out, "emisor:   %s\n", id.Issuer)
			fmt.Fprintf(out, "vigencia: %s a %s\n", id.NotBefore.Format("2006-01-02"), id.NotAfter.Format("2006-01-02"))
			if validity.Valid {
				fmt.Fprintf(out, "estado:   vigente (%d días)\n", validity.DaysRemaining)
			} else {
				fmt.Fprintln(out, "estado:   VENCIDO")
			}
			return nil
		},
	}
	inspect.Flags().StringVar(&password, "password", "", "contraseña (si se omite se pide por terminal)")
	cmd.AddCommand(inspect)
	return cmd
}

// readPassword lee una contraseña sin eco; exige una terminal.
func readPassword(prompt io.Writer, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin no es una terminal; use --password")
	}
	fmt.Fprint(prompt, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("leer contraseña: %w", err)
	}
	return string(raw), nil
}
