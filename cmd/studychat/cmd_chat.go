package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/studychat/internal/chat"
	"github.com/user/studychat/internal/compose"
	"github.com/user/studychat/internal/directory"
	"github.com/user/studychat/internal/reconcile"
	"github.com/user/studychat/internal/refresher"
	"github.com/user/studychat/internal/route"
	"github.com/user/studychat/internal/types"
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("category", "", "chat category to start in (overrides config)")
	chatCmd.Flags().String("session", "", "session id to resume")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := buildClient(cfg)

		initial := types.ChatCategory(cfg.Chat.DefaultCategory)
		if v, _ := cmd.Flags().GetString("category"); v != "" {
			var err error
			initial, err = types.CategoryFromSlug(v)
			if err != nil {
				return err
			}
		}

		var guard *compose.Guard
		if cfg.Chat.MaxMessageTokens > 0 {
			var err error
			guard, err = compose.NewGuard(cfg.Chat.TokenizerModel, cfg.Chat.MaxMessageTokens)
			if err != nil {
				return fmt.Errorf("create token guard: %w", err)
			}
		}

		ctrl := chat.New(client, client, directory.New(client), chat.WithGuard(guard))

		start := route.Route{}
		if id, _ := cmd.Flags().GetString("session"); id != "" {
			start = route.Route{Category: initial, SessionID: types.SessionID(id)}
		}
		nav := route.NewHistory(start)
		rec := reconcile.New(nav, ctrl, initial)

		if cfg.Refresh.Schedule != "" {
			ref := refresher.New(ctrl, cfg.Refresh.Schedule)
			if err := ref.Start(); err != nil {
				return fmt.Errorf("start refresher: %w", err)
			}
			defer ref.Stop()
		}

		return runREPL(cmd.Context(), ctrl, nav, rec)
	},
}

func runREPL(ctx context.Context, ctrl *chat.Controller, nav *route.History, rec *reconcile.Reconciler) error {
	settle(rec)
	fmt.Printf("Chatting in %s. Type /help for commands.\n", ctrl.Category())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := handleCommand(ctx, ctrl, nav, rec, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}
		sendAndPrint(ctx, ctrl, rec, line)
	}
}

// settle runs reconciliation to a fixed point (bounded; each rule fires at
// most once per situation).
func settle(rec *reconcile.Reconciler) {
	for i := 0; i < 4; i++ {
		if rec.Tick() == reconcile.RuleNone {
			return
		}
	}
}

func sendAndPrint(ctx context.Context, ctrl *chat.Controller, rec *reconcile.Reconciler, text string) {
	done := make(chan error, 1)
	err := ctrl.Send(ctx, text,
		chat.WithOnDelta(func(s string) { fmt.Print(s) }),
		chat.WithOnFinished(func(e error) { done <- e }),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	if err := <-done; err != nil {
		fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
	} else {
		fmt.Println()
	}
	settle(rec)
}

func handleCommand(ctx context.Context, ctrl *chat.Controller, nav *route.History, rec *reconcile.Reconciler, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/q":
		return true, nil

	case "/help":
		fmt.Println(`/new                start a new conversation
/open <id>          open a session by id
/switch <category>  switch chat category
/sessions           list active sessions
/archived           list archived sessions
/archive <id>       archive a session
/restore <id>       restore an archived session
/title              generate a title for the current session
/quit               exit`)
		return false, nil

	case "/new":
		ctrl.BeginNavigate()
		nav.Push(route.Route{Category: ctrl.Category()})
		settle(rec)
		fmt.Println("Started a new conversation.")
		return false, nil

	case "/open":
		if len(args) != 1 {
			return false, errors.New("usage: /open <id>")
		}
		ctrl.BeginNavigate()
		nav.Push(route.Route{Category: ctrl.Category(), SessionID: types.SessionID(args[0])})
		settle(rec)
		if err := ctrl.LoadHistory(ctx); err != nil {
			return false, err
		}
		printHistory(ctrl)
		return false, nil

	case "/switch":
		if len(args) != 1 {
			return false, errors.New("usage: /switch <category>")
		}
		category, err := types.CategoryFromSlug(args[0])
		if err != nil {
			return false, err
		}
		ctrl.BeginNavigate()
		nav.Push(route.Route{Category: category})
		settle(rec)
		fmt.Printf("Switched to %s.\n", category)
		return false, nil

	case "/sessions":
		printSessions(ctrl.Directory().Sorted(ctrl.Category()))
		return false, nil

	case "/archived":
		if _, err := ctrl.Directory().FetchArchived(ctx, ctrl.Category()); err != nil {
			return false, err
		}
		printSessions(ctrl.Directory().SortedArchived(ctrl.Category()))
		return false, nil

	case "/archive":
		if len(args) != 1 {
			return false, errors.New("usage: /archive <id>")
		}
		if err := ctrl.Archive(ctx, types.SessionID(args[0])); err != nil {
			return false, err
		}
		settle(rec)
		fmt.Println("Archived.")
		return false, nil

	case "/restore":
		if len(args) != 1 {
			return false, errors.New("usage: /restore <id>")
		}
		if err := ctrl.Restore(ctx, types.SessionID(args[0])); err != nil {
			return false, err
		}
		fmt.Println("Restored.")
		return false, nil

	case "/title":
		title, err := ctrl.GenerateTitle(ctx)
		if err != nil {
			return false, err
		}
		fmt.Printf("Title: %s\n", title)
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
}

func printHistory(ctrl *chat.Controller) {
	for _, m := range ctrl.Messages() {
		prefix := "you"
		if m.Role == types.RoleAssistant {
			prefix = "assistant"
		}
		fmt.Printf("[%s] %s\n", prefix, m.Content)
	}
}

func printSessions(sessions []*types.Session) {
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return
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
	w.Flush()
}
