package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/studychat/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionArchiveCmd, sessionRestoreCmd, sessionTitleCmd, sessionHistoryCmd)

	sessionListCmd.Flags().String("category", "general", "chat category")
	sessionListCmd.Flags().Bool("archived", false, "list archived sessions instead of active ones")
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions in a category",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := buildClient(cfg)

		slug, _ := cmd.Flags().GetString("category")
		category, err := types.CategoryFromSlug(slug)
		if err != nil {
			return err
		}
		archived, _ := cmd.Flags().GetBool("archived")

		ctx := context.Background()
		var sessions []*types.Session
		if archived {
			sessions, err = client.ListArchivedSessions(ctx, category)
		} else {
			sessions, err = client.ListSessions(ctx, category)
		}
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tUPDATED")
		for _, s := range sessions {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				s.ID,
				title,
				s.Status,
				s.SortKey().Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := buildClient(loadConfig())
		if err := client.ArchiveSession(context.Background(), types.SessionID(args[0])); err != nil {
			return fmt.Errorf("archive session: %w", err)
		}
		fmt.Printf("Session %s archived.\n", args[0])
		return nil
	},
}

var sessionRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore an archived session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := buildClient(loadConfig())
		if err := client.RestoreSession(context.Background(), types.SessionID(args[0])); err != nil {
			return fmt.Errorf("restore session: %w", err)
		}
		fmt.Printf("Session %s restored.\n", args[0])
		return nil
	},
}

var sessionTitleCmd = &cobra.Command{
	Use:   "title <id>",
	Short: "Generate a title for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := buildClient(loadConfig())
		title, err := client.GenerateTitle(context.Background(), types.SessionID(args[0]))
		if err != nil {
			return fmt.Errorf("generate title: %w", err)
		}
		fmt.Println(title)
		return nil
	},
}

var sessionHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Print a session's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := buildClient(loadConfig())
		msgs, err := client.ListMessages(context.Background(), types.SessionID(args[0]))
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		for _, m := range msgs {
			fmt.Printf("[%s] %s\n", m.Role, m.Content)
		}
		return nil
	},
}
