package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/novachat/novachat/internal/client"
	"github.com/novachat/novachat/internal/config"
)

var flagServer string

var rootCmd = &cobra.Command{
	Use:          "novachat",
	Short:        "Terminal client for the novachat server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("server") {
			cfg.ServerAddr = flagServer
		}
		return client.NewShell(cfg.ServerAddr, os.Stdin, os.Stdout).Run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagServer, "server", "", "chat server address (overrides NOVACHAT_SERVER_ADDR)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
