/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"solana-cosign/internal/config"
	"solana-cosign/internal/cosign"

	"github.com/common-nighthawk/go-figure"
	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "solana-cosign",
	Short: "Build, partially sign and co-sign Solana transactions",
	Long: `solana-cosign assembles transactions that need signatures from more than
one party. One party signs and leaves placeholders for the others, the
partial transaction travels over http or a shared directory, and the
remaining parties fill in their own slots before submission.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "f", "etc/cosign.yaml", "config file")
}

func loadConfig() (config.Config, error) {
	_ = godotenv.Load()

	var c config.Config
	if err := conf.Load(cfgFile, &c, conf.UseEnv()); err != nil {
		return c, errors.Wrapf(err, "load %s", cfgFile)
	}
	logx.MustSetup(c.Log.LogConf)
	return c, nil
}

func printBanner(c config.BannerConf) {
	figure.NewColorFigure(c.Text, c.FontName, c.Color, true).Print()
}

// readTransaction takes the transaction from args[0], or from file when set.
// "-" reads stdin.
func readTransaction(args []string, file string, base58 bool) (*solana.Transaction, error) {
	var text string
	switch {
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errors.Wrap(err, "read stdin")
		}
		text = string(data)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", file)
		}
		text = string(data)
	case len(args) > 0:
		text = args[0]
	default:
		return nil, errors.New("no transaction given")
	}

	text = strings.TrimSpace(text)
	if base58 {
		return cosign.DecodeBase58(text)
	}
	return cosign.DecodeBase64(text)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
