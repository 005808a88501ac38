package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/switchboardhq/switchboard/internal/auth"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage session tokens",
	}
	cmd.AddCommand(tokenMintCmd())
	cmd.AddCommand(tokenRevokeCmd())
	return cmd
}

func tokenMintCmd() *cobra.Command {
	var flagUser string
	var flagTTL time.Duration

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a session token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagUser == "" {
				return fmt.Errorf("--user is required")
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			token, err := auth.New(st).MintToken(context.Background(), flagUser, flagTTL)
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{"token": token})
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&flagUser, "user", "", "User id (required)")
	cmd.Flags().DurationVar(&flagTTL, "ttl", auth.DefaultTokenTTL, "Token lifetime")
	return cmd
}

func tokenRevokeCmd() *cobra.Command {
	var flagToken string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagToken == "" {
				return fmt.Errorf("--token is required")
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := st.DeleteSession(context.Background(), flagToken); err != nil {
				return err
			}
			if !flagQuiet && !flagJSON {
				fmt.Println("Token revoked")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagToken, "token", "", "Token to revoke (required)")
	return cmd
}
