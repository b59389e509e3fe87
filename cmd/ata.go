/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"solana-cosign/internal/ata"
	"solana-cosign/internal/config"
	"solana-cosign/internal/rpcs"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// ataCmd represents the ata command
var ataCmd = &cobra.Command{
	Use:   "ata",
	Short: "Create an associated token account if it is missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		flags := cmd.Flags()

		payerEnv := c.Wallet.UserKeyEnv
		if useGasPayer, _ := flags.GetBool("gas-payer"); useGasPayer {
			payerEnv = c.Wallet.GasPayerKeyEnv
		}
		payer, err := config.LoadPrivateKey(payerEnv)
		if err != nil {
			return err
		}

		mintFlag, _ := flags.GetString("mint")
		mint, err := solana.PublicKeyFromBase58(mintFlag)
		if err != nil {
			return errors.Wrap(err, "--mint")
		}
		owner := payer.PublicKey()
		if ownerFlag, _ := flags.GetString("owner"); ownerFlag != "" {
			if owner, err = solana.PublicKeyFromBase58(ownerFlag); err != nil {
				return errors.Wrap(err, "--owner")
			}
		}

		chain := rpcs.NewChain(c.Rpc)
		submitter, err := rpcs.NewSubmitter(ctx, chain, c)
		if err != nil {
			return err
		}
		res, err := ata.NewCreator(chain, submitter).Ensure(ctx, payer, owner, mint)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Address)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ataCmd)

	ataCmd.Flags().String("mint", "", "token mint")
	ataCmd.Flags().String("owner", "", "account owner (default the payer)")
	ataCmd.Flags().Bool("gas-payer", false, "pay with the gas payer key instead of the user key")
	_ = ataCmd.MarkFlagRequired("mint")
}
