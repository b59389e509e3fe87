/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"solana-cosign/internal/ata"
	"solana-cosign/internal/client"
	"solana-cosign/internal/config"
	"solana-cosign/internal/cosign"
	"solana-cosign/internal/rpcs"
	"solana-cosign/internal/swap"
	"solana-cosign/internal/transport"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/logx"
)

// swapCmd represents the swap command
var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Quote, build, co-sign and submit a swap",
	Long: `Run a Jupiter swap for the user. With --gas-payer the gas payer key pays
fees and rent and signs first, leaving the user's slot to the co-signer.
The co-signer is the remote service (--remote), a shared directory
(--exchange) or, by default, the local user key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		timeout, _ := flags.GetDuration("timeout")
		ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
		defer cancel()

		p := swap.Params{}
		p.InputMint, _ = flags.GetString("in")
		p.OutputMint, _ = flags.GetString("out")
		p.Amount, _ = flags.GetUint64("amount")
		p.SlippageBps, _ = flags.GetUint16("slippage")
		p.PlatformFeeBps, _ = flags.GetUint16("fee-bps")
		mode, _ := flags.GetString("mode")
		p.Mode = swap.Mode(mode)

		if feeOwner, _ := flags.GetString("fee-owner"); feeOwner != "" {
			owner, err := solana.PublicKeyFromBase58(feeOwner)
			if err != nil {
				return errors.Wrap(err, "--fee-owner")
			}
			p.FeeAccountOwner = &owner
		}
		if useGasPayer, _ := flags.GetBool("gas-payer"); useGasPayer {
			gas, err := config.LoadPrivateKey(c.Wallet.GasPayerKeyEnv)
			if err != nil {
				return err
			}
			p.GasPayer = gas
		}

		cosigner, user, err := swapCosigner(ctx, cmd, c)
		if err != nil {
			return err
		}
		p.User = user

		chain := rpcs.NewChain(c.Rpc)
		submitter, err := rpcs.NewSubmitter(ctx, chain, c)
		if err != nil {
			return err
		}
		runner := swap.NewRunner(client.NewJupiter(c.Jupiter), chain, ata.NewCreator(chain, submitter), submitter, cosigner)

		res, err := runner.Run(ctx, p)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Signature)

		if wait, _ := flags.GetDuration("wait"); wait > 0 {
			sig, err := solana.SignatureFromBase58(res.Signature)
			if err != nil {
				return errors.Wrap(err, "signature")
			}
			waitCtx, cancel := context.WithTimeout(commandContext(cmd), wait)
			defer cancel()
			if _, err := chain.WaitForTransaction(waitCtx, sig, time.Second); err != nil {
				return err
			}
			logx.Infof("✅ Swap %s confirmed", res.Signature)
		}
		return nil
	},
}

// swapCosigner picks who fills the user's slot and returns the user key.
func swapCosigner(ctx context.Context, cmd *cobra.Command, c config.Config) (transport.Cosigner, solana.PublicKey, error) {
	flags := cmd.Flags()
	remote, _ := flags.GetString("remote")
	if remote == "" {
		remote = c.Cosign.RemoteURL
	}
	exchange, _ := flags.GetString("exchange")
	if exchange == "" {
		exchange = c.Cosign.ExchangeDir
	}
	userFlag, _ := flags.GetString("user")

	switch {
	case remote != "":
		h := transport.NewHTTPCosigner(remote, time.Duration(c.Jupiter.Timeout)*time.Millisecond)
		key, err := h.PublicKey(ctx)
		if err != nil {
			return nil, solana.PublicKey{}, err
		}
		return h, key, nil
	case exchange != "":
		if userFlag == "" {
			return nil, solana.PublicKey{}, errors.New("--user is required with --exchange")
		}
		key, err := solana.PublicKeyFromBase58(userFlag)
		if err != nil {
			return nil, solana.PublicKey{}, errors.Wrap(err, "--user")
		}
		return transport.NewFileExchange(exchange), key, nil
	default:
		key, err := config.LoadPrivateKey(c.Wallet.UserKeyEnv)
		if err != nil {
			return nil, solana.PublicKey{}, err
		}
		return transport.NewLocalCosigner(cosign.Signer(key)), key.PublicKey(), nil
	}
}

func init() {
	rootCmd.AddCommand(swapCmd)

	flags := swapCmd.Flags()
	flags.String("in", "So11111111111111111111111111111111111111112", "input mint")
	flags.String("out", "", "output mint")
	flags.Uint64("amount", 0, "input amount in base units")
	flags.Uint16("slippage", 50, "slippage in bps")
	flags.Uint16("fee-bps", 0, "platform fee in bps")
	flags.String("fee-owner", "", "owner of the platform fee token account")
	flags.Bool("gas-payer", false, "let the gas payer key pay fees and rent")
	flags.String("mode", string(swap.ModeInstructions), "how to rebuild for the gas payer: instructions|recompile")
	flags.String("remote", "", "co-sign service url (default Cosign.RemoteURL)")
	flags.String("exchange", "", "shared directory for file co-signing (default Cosign.ExchangeDir)")
	flags.String("user", "", "user public key, needed with --exchange")
	flags.Duration("timeout", 2*time.Minute, "give up on quoting, co-signing and submitting after this long")
	flags.Duration("wait", 0, "wait this long for confirmation")
	_ = swapCmd.MarkFlagRequired("out")
	_ = swapCmd.MarkFlagRequired("amount")
}
