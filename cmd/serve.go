/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"

	"solana-cosign/internal/config"
	"solana-cosign/internal/handler"
	"solana-cosign/internal/logic/signing"
	"solana-cosign/internal/svc"
	"solana-cosign/internal/transport"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the co-sign service",
	Long: `Run the co-sign http service. It answers partial transactions with
the configured key, and also watches the exchange directory when one is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		return Start(commandContext(cmd), c)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func Start(ctx context.Context, c config.Config) error {
	printBanner(c.Banner)

	key, err := config.LoadPrivateKey(c.Cosign.KeyEnv)
	if err != nil {
		return err
	}
	svcCtx, err := svc.NewServiceContext(c, key)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := svcCtx.Policy.Watch(ctx); err != nil {
			logx.Errorf("policy watch stopped: %v", err)
		}
	}()

	if c.Cosign.AuditFile != "" {
		sub := svcCtx.Hub.Subscribe(128)
		go func() {
			if err := transport.WriteAudit(c.Cosign.AuditFile, sub); err != nil {
				logx.Errorf("audit stopped: %v", err)
			}
		}()
		defer svcCtx.Hub.Close()
	}

	if c.Cosign.ExchangeDir != "" {
		exchange := transport.NewFileExchange(c.Cosign.ExchangeDir)
		go func() {
			if err := exchange.Serve(ctx, signing.NewCosigner(svcCtx, c.Cosign.Submit)); err != nil {
				logx.Errorf("exchange stopped: %v", err)
			}
		}()
	}

	server := rest.MustNewServer(c.Rest.RestConf)
	defer server.Stop()

	handler.RegisterHandlers(server, svcCtx)

	fmt.Printf("Starting server at %s:%d...\n", c.Rest.Host, c.Rest.Port)
	server.Start()
	return nil
}
