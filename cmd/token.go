package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/frahmantamala/finverse-reconciler/internal"
	"github.com/frahmantamala/finverse-reconciler/pkg/logger"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Exchange Finverse credentials for a bearer token",
	Long:  `Performs the client_credentials exchange once and prints the token expiry. Use it to check the configured Finverse credentials.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := exchangeToken(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Token exchange failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var printToken bool

func exchangeToken(ctx context.Context) error {
	config, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	initLogger(config)
	log := logger.LoggerWrapper()

	ctx, cancel := internal.WithTimeout(ctx, config.Finverse.Timeout)
	defer cancel()

	cred, err := newFinverseClient(config.Finverse, log).ExchangeCredential(ctx)
	if err != nil {
		return err
	}

	if cred.ExpiresAt.IsZero() {
		fmt.Println("token obtained, expiry unknown")
	} else {
		fmt.Printf("token obtained, expires at %s (in %s)\n",
			cred.ExpiresAt.Format(time.RFC3339),
			time.Until(cred.ExpiresAt).Round(time.Second))
	}
	if printToken {
		fmt.Println(cred.AccessToken)
	}
	return nil
}

func init() {
	tokenCmd.Flags().BoolVar(&printToken, "print", false, "Print the bearer token itself")
}
