package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Manage chats and membership",
	}
	cmd.AddCommand(chatCreateCmd())
	cmd.AddCommand(chatAddMemberCmd())
	cmd.AddCommand(chatListCmd())
	return cmd
}

func chatCreateCmd() *cobra.Command {
	var flagTitle string
	var flagOwner string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a chat owned by a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagTitle == "" {
				return fmt.Errorf("--title is required")
			}
			if flagOwner == "" {
				return fmt.Errorf("--owner is required")
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ctx := context.Background()
			if _, err := st.UserByID(ctx, flagOwner); err != nil {
				return err
			}
			c, err := st.CreateChat(ctx, flagTitle, flagOwner)
			if err != nil {
				return fmt.Errorf("create chat: %w", err)
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(c)
			}
			if !flagQuiet {
				fmt.Printf("Created chat %s (%q)\n", c.ID, c.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagTitle, "title", "", "Chat title (required)")
	cmd.Flags().StringVar(&flagOwner, "owner", "", "Owner user id (required)")
	return cmd
}

func chatAddMemberCmd() *cobra.Command {
	var flagChat string
	var flagUser string

	cmd := &cobra.Command{
		Use:   "add-member",
		Short: "Add a user to a chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagChat == "" {
				return fmt.Errorf("--chat is required")
			}
			if flagUser == "" {
				return fmt.Errorf("--user is required")
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ctx := context.Background()
			if _, err := st.UserByID(ctx, flagUser); err != nil {
				return err
			}
			if err := st.AddMember(ctx, flagChat, flagUser); err != nil {
				return err
			}

			if !flagQuiet && !flagJSON {
				fmt.Printf("Added %s to chat %s\n", flagUser, flagChat)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagChat, "chat", "", "Chat id (required)")
	cmd.Flags().StringVar(&flagUser, "user", "", "User id (required)")
	return cmd
}

func chatListCmd() *cobra.Command {
	var flagUser string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's chats",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagUser == "" {
				return fmt.Errorf("--user is required")
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			chats, err := st.ChatsForUser(context.Background(), flagUser)
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(chats)
			}
			for _, c := range chats {
				fmt.Printf("%s  %s\n", c.ID, c.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagUser, "user", "", "User id (required)")
	return cmd
}
