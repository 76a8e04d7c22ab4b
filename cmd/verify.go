package cmd

import (
	"fmt"
	"os"

	"github.com/frahmantamala/finverse-reconciler/internal/core/signature"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [body-file] [signature]",
	Short: "Verify a captured webhook body against its fv-signature",
	Long:  `Checks the signature over the exact bytes of body-file, as the server would.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}

		verifier, err := loadVerifier()
		if err != nil {
			return err
		}

		ok, err := verifier.Verify(body, args[1])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("signature does not match %d body bytes", len(body))
		}

		fmt.Fprintln(cmd.OutOrStdout(), "signature valid")
		return nil
	},
}

var publicKeyFile string

func loadVerifier() (*signature.Verifier, error) {
	if publicKeyFile == "" {
		return signature.NewFinverseVerifier()
	}
	pemKey, err := os.ReadFile(publicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	return signature.NewVerifier(string(pemKey))
}

func init() {
	verifyCmd.Flags().StringVar(&publicKeyFile, "public-key", "", "PEM public key to use instead of the embedded Finverse key")
}
