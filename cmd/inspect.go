/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"solana-cosign/internal/cosign"
	"solana-cosign/internal/rpcs"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [transaction]",
	Short: "Show the signing state of a transaction",
	Long: `Decode a transaction and print its required signers, which slots still
hold placeholders and whether the filled signatures verify, as yaml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		file, _ := flags.GetString("file")
		useBase58, _ := flags.GetBool("base58")
		tree, _ := flags.GetBool("tree")
		resolve, _ := flags.GetBool("resolve")

		tx, err := readTransaction(args, file, useBase58)
		if err != nil {
			return err
		}
		report, err := cosign.Describe(tx)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))

		if !tree {
			return nil
		}
		if resolve && len(tx.Message.AddressTableLookups) > 0 {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			keys := make([]solana.PublicKey, 0, len(tx.Message.AddressTableLookups))
			for _, lookup := range tx.Message.AddressTableLookups {
				keys = append(keys, lookup.AccountKey)
			}
			tables, err := rpcs.NewChain(c.Rpc).LookupTables(commandContext(cmd), keys)
			if err != nil {
				return err
			}
			byKey := make(map[solana.PublicKey]solana.PublicKeySlice, len(tables))
			for _, table := range tables {
				byKey[table.Key] = table.Addresses
			}
			if err := tx.Message.SetAddressTables(byKey); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), tx.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().String("file", "", "read the transaction from a file, - for stdin")
	inspectCmd.Flags().Bool("base58", false, "the transaction is base58 instead of base64")
	inspectCmd.Flags().Bool("tree", false, "also print the decoded transaction tree")
	inspectCmd.Flags().Bool("resolve", false, "fetch lookup tables so the tree shows every account")
}
