package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/reactshop/community-chat/backend/internal/client"
	"github.com/reactshop/community-chat/backend/internal/model/chat"
)

var validFormats = []string{"text", "json"}

type rootOptions struct {
	Server  string
	Verbose bool
	Format  string
}

func (o *rootOptions) logger() *slog.Logger {
	if o.Verbose {
		return logs.GetLoggerFromLevel(slog.LevelDebug)
	}
	return logs.GetLoggerFromLevel(slog.LevelWarn)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "chatclient",
		Short: "Terminal client for the community chat",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !lo.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			if _, err := url.Parse(opts.Server); err != nil {
				return fmt.Errorf("invalid server %q: %w", opts.Server, err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", "http://localhost:8080", "chat server base URL")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newJoinCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	return cmd
}

type joinOptions struct {
	*rootOptions
	UserID   string
	Username string
	Token    string
}

func newJoinCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &joinOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join the chat and send every line typed on stdin",
		Long: `Join the community chat room.

Received messages are printed as they arrive, starting with the recent
history. Every line read from stdin is sent; "/quit" or end of input leaves.

Example:
  chatclient join --user-id 42 --username alice`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user-id", "", "participant id (required)")
	cmd.Flags().StringVar(&opts.Username, "username", "", "display name")
	cmd.Flags().StringVar(&opts.Token, "token", "", "storefront session token")
	_ = cmd.MarkFlagRequired("user-id")

	return cmd
}

func runJoin(cmd *cobra.Command, opts *joinOptions) error {
	wsURL, err := websocketURL(opts.Server)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	session := client.New(wsURL, opts.logger())
	session.OnMessage(func(msg chat.Message) {
		printMessage(out, opts.Format, msg)
	})
	session.OnError(func(reason string) {
		fmt.Fprintf(cmd.ErrOrStderr(), "! %s\n", reason)
	})

	ctx := cmd.Context()
	identity := client.Identity{UserID: opts.UserID, Username: opts.Username, Token: opts.Token}
	if err := session.Connect(ctx, identity); err != nil {
		return fmt.Errorf("join chat: %w", err)
	}
	defer session.Disconnect()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return fmt.Errorf("connection closed by server")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" {
				return nil
			}
			if err := session.Send(line); err != nil {
				return err
			}
		}
	}
}

type historyOptions struct {
	*rootOptions
	Limit int
}

func newHistoryCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &historyOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "history",
		Short:         "Print the most recent messages",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "number of messages (1-50)")
	return cmd
}

func runHistory(cmd *cobra.Command, opts *historyOptions) error {
	endpoint := strings.TrimRight(opts.Server, "/") + fmt.Sprintf("/api/chat/messages?limit=%d", opts.Limit)

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("fetch history: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var messages []chat.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	for _, msg := range messages {
		printMessage(cmd.OutOrStdout(), opts.Format, msg)
	}
	return nil
}

// websocketURL maps http(s)://host to ws(s)://host/ws.
func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server %q: %w", server, err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func printMessage(w io.Writer, format string, msg chat.Message) {
	if format == "json" {
		data, _ := json.Marshal(msg)
		fmt.Fprintln(w, string(data))
		return
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", msg.CreatedAt().Format("15:04:05"), msg.Username, msg.Text)
}
