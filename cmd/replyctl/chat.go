package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/resilience"
)

func chatCmd() *cobra.Command {
	var opts turnOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat over the gateway websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL, err := websocketURL(serverURL, opts.Stream)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), wsURL, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.SessionID, "session", "", "session ID (default: assigned by the gateway)")
	cmd.Flags().StringVar(&opts.Voice, "voice", "", "voice name or ID")
	cmd.Flags().BoolVar(&opts.NoTTS, "no-tts", false, "disable speech synthesis")
	cmd.Flags().BoolVar(&opts.Stream, "stream", true, "receive replies as event streams")
	return cmd
}

func websocketURL(base string, streamAll bool) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/streams/chat"
	if streamAll {
		u.RawQuery = "stream=1"
	}
	return u.String(), nil
}

// chatClient keeps one websocket open, redialing when it drops
type chatClient struct {
	url  string
	conn *websocket.Conn
}

func (c *chatClient) connect(ctx context.Context) error {
	return resilience.Reconnect(ctx, func(ctx context.Context) error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			return err
		}
		c.conn = conn
		return nil
	}, resilience.DefaultReconnectConfig(), logger)
}

func (c *chatClient) close() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// exchange sends one payload and reads frames until the reply completes
func (c *chatClient) exchange(payload []byte) (*turn, error) {
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, err
	}
	t := &turn{}
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		done, err := t.apply(frame)
		if done || err != nil {
			return t, err
		}
	}
}

func runChat(ctx context.Context, wsURL string, in io.Reader, out io.Writer, opts turnOptions) error {
	client := &chatClient{url: wsURL}
	if err := client.connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.close()

	fmt.Fprintln(out, "Connected. Type a message, or an empty line to quit.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			return nil
		}

		payload, err := buildPayload(text, opts)
		if err != nil {
			return err
		}

		t, err := client.exchange(payload)
		if isConnError(err) {
			logger.Warn().Err(err).Msg("Connection lost, reconnecting")
			client.close()
			if err := client.connect(ctx); err != nil {
				return fmt.Errorf("reconnect: %w", err)
			}
			t, err = client.exchange(payload)
		}
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		// Keep the gateway-assigned session for the following turns
		if opts.SessionID == "" {
			opts.SessionID = t.SessionID
		}
		fmt.Fprintln(out, t.Text.String())
		fmt.Fprintln(out, t.summary())
	}
}

func isConnError(err error) bool {
	if err == nil {
		return false
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	return resilience.IsRetryableNetworkError(err)
}
