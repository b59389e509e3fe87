/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"solana-cosign/internal/rpcs"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// senderCmd represents the sender command
var senderCmd = &cobra.Command{
	Use:   "sender <signature>",
	Short: "Print the fee payer of a confirmed transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		sig, err := solana.SignatureFromBase58(args[0])
		if err != nil {
			return errors.Wrap(err, "signature")
		}
		payer, err := rpcs.NewChain(c.Rpc).TransactionSender(commandContext(cmd), sig)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), payer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(senderCmd)
}

