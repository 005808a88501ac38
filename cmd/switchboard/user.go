package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/switchboardhq/switchboard/internal/config"
	"github.com/switchboardhq/switchboard/internal/store"
)

// openStore opens the configured database for a one-shot admin command.
func openStore() (*store.Store, error) {
	cfg := config.Load()
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	return store.Open(cfg.DBPath)
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(userCreateCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	var flagEmail string
	var flagName string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagEmail == "" {
				return fmt.Errorf("--email is required")
			}
			if flagName == "" {
				flagName = flagEmail
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			u, err := st.CreateUser(context.Background(), flagEmail, flagName)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(u)
			}
			if !flagQuiet {
				fmt.Printf("Created user %s (%s)\n", u.ID, u.Email)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagEmail, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&flagName, "name", "", "Display name (defaults to email)")
	return cmd
}
