package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	verbose         bool
	configPath      string
	credentialsPath string
)

var rootCmd = &cobra.Command{
	Use:   "zonke",
	Short: "Zonké CLI - Preview environments for frontend builds",
	Long: `Zonké deploys the build output of a frontend project to a preview environment.

It packages the client and server bundles of React, Next.js, Remix, Vue, Astro
and Dash builds, uploads them to the environment and keeps a ledger of every
deployed version in zonke.yaml so any of them can be redeployed later.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. An interrupt cancels the running operation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Show debug logs")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to zonke.yaml (default: searched from the working directory up)")
	rootCmd.PersistentFlags().StringVar(&credentialsPath, "credentials", "", "Path to the credentials file (default: .env.zonke next to zonke.yaml)")
}
