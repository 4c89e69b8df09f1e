package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wilketob/amztec-mcp-server/internal/auth"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a gateway API key pair",
	Long:  "Generates a caller id and secret. Add the printed id:secret pair to gateway.api_keys (or GATEWAY_API_KEYS) and hand the full key to the caller.",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, secret, err := auth.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Printf("caller id: %s\n", id)
		fmt.Printf("secret:    %s\n", secret)
		fmt.Printf("config:    %s:%s\n", id, secret)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
