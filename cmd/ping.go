package cmd

import (
	"context"
	"fmt"

	"github.com/alejoacosta74/kraken-ws/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// pingCmd represents the ping command
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping the public endpoint and print the round trip",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := clientConfig(viper.GetViper(), nil)
		if err != nil {
			return fmt.Errorf("invalid client config: %w", err)
		}
		cfg.Token = "" // the public endpoint is enough
		cfg.Reconnect = false

		c, err := client.New(cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.ResponseTimeout)
		defer cancel()
		rtt, err := c.Ping(ctx)
		if err != nil {
			return err
		}
		status := c.SystemStatus()
		fmt.Fprintf(cmd.OutOrStdout(), "pong from %s in %s (status %s, version %s)\n", cfg.PublicURL, rtt, status.Status, status.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
