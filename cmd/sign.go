/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"solana-cosign/internal/config"
	"solana-cosign/internal/cosign"
	"solana-cosign/internal/rpcs"

	"github.com/spf13/cobra"
)

// signCmd represents the sign command
var signCmd = &cobra.Command{
	Use:   "sign [transaction]",
	Short: "Fill your slot in a partial transaction",
	Long: `Read a base64 partial transaction, sign its message with the key from
--key-env and print the updated transaction. With --submit a transaction that
has no placeholder left is sent to the network.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		file, _ := flags.GetString("file")
		keyEnv, _ := flags.GetString("key-env")
		submit, _ := flags.GetBool("submit")
		if keyEnv == "" {
			keyEnv = c.Wallet.UserKeyEnv
		}

		tx, err := readTransaction(args, file, false)
		if err != nil {
			return err
		}
		key, err := config.LoadPrivateKey(keyEnv)
		if err != nil {
			return err
		}
		if err := cosign.VerifySignatures(tx); err != nil {
			return err
		}
		signed, err := cosign.CompleteSignature(tx, key)
		if err != nil {
			return err
		}
		encoded, err := cosign.EncodeBase64(signed)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), encoded)

		if !submit {
			return nil
		}
		ctx := commandContext(cmd)
		chain := rpcs.NewChain(c.Rpc)
		submitter, err := rpcs.NewSubmitter(ctx, chain, c)
		if err != nil {
			return err
		}
		sig, err := submitter.Submit(ctx, signed)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "signature:", sig)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signCmd)

	signCmd.Flags().String("file", "", "read the transaction from a file, - for stdin")
	signCmd.Flags().String("key-env", "", "environment variable holding the signing key (default Wallet.UserKeyEnv)")
	signCmd.Flags().Bool("submit", false, "submit when fully signed")
}
