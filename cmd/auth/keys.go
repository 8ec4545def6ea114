package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/truecredit/authserver/internal/auth/app"
	"github.com/truecredit/authserver/pkg/jwtx"
)

var (
	keysAlgorithm string
	keysOut       string
	keysMasterKey string
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage token key material",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a signing key and a token encryption key",
	Long: `Writes a PKCS8 PEM signing key to --out and prints the base64 value for
AUTH_ENCRYPTION_KEY. With --master-key the signing key is sealed and must be
loaded with AUTH_MASTER_KEY_FILE pointing at the same file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		mat, err := app.GenerateKeyMaterial(keysAlgorithm, keysMasterKey)
		if err != nil {
			return err
		}
		if err := os.WriteFile(keysOut, mat.SigningKey, 0o600); err != nil {
			return fmt.Errorf("write signing key: %w", err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "AUTH_ALGORITHM=%s\n", keysAlgorithm)
		fmt.Fprintf(w, "AUTH_SIGNING_KEY_FILE=%s\n", keysOut)
		if mat.Sealed {
			fmt.Fprintf(w, "AUTH_MASTER_KEY_FILE=%s\n", keysMasterKey)
		}
		fmt.Fprintf(w, "AUTH_ENCRYPTION_KEY=%s\n", mat.EncryptionKey)
		return nil
	},
}

func init() {
	keysGenerateCmd.Flags().StringVar(&keysAlgorithm, "algorithm", jwtx.AlgorithmEdDSA, "Signing algorithm (RS256, ES256, EdDSA)")
	keysGenerateCmd.Flags().StringVarP(&keysOut, "out", "o", "signing.pem", "Path of the signing key file")
	keysGenerateCmd.Flags().StringVar(&keysMasterKey, "master-key", os.Getenv("AUTH_MASTER_KEY_FILE"), "Master key file used to seal the signing key")
	keysCmd.AddCommand(keysGenerateCmd)
}
