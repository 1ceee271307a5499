package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/stream"
)

func sendCmd() *cobra.Command {
	var opts turnOptions
	var saveAudio string

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one chat turn over HTTP and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			t, err := sendTurn(ctx, http.DefaultClient, serverURL, strings.Join(args, " "), opts)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), t.Text.String())
			fmt.Fprintln(cmd.ErrOrStderr(), t.summary())

			if saveAudio != "" {
				if err := t.saveAudio(saveAudio); err != nil {
					return err
				}
				logger.Info().Str("path", saveAudio).Msg("Audio saved")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.SessionID, "session", "", "session ID")
	cmd.Flags().StringVar(&opts.Voice, "voice", "", "voice name or ID")
	cmd.Flags().BoolVar(&opts.NoTTS, "no-tts", false, "disable speech synthesis")
	cmd.Flags().StringVar(&opts.Summarize, "summary", "", "spoken summary: short, long, or full to speak everything")
	cmd.Flags().BoolVar(&opts.Stream, "stream", false, "request an NDJSON event stream")
	cmd.Flags().StringVar(&saveAudio, "save-audio", "", "write the reply audio to this file")
	return cmd
}

func sendTurn(ctx context.Context, client *http.Client, base, text string, opts turnOptions) (*turn, error) {
	payload, err := buildPayload(text, opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.Stream {
		req.Header.Set("Accept", "application/x-ndjson")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	logger.Debug().
		Int("status", resp.StatusCode).
		Str("correlation_id", resp.Header.Get("X-Correlation-ID")).
		Str("content_type", resp.Header.Get("Content-Type")).
		Msg("Gateway responded")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	t := &turn{}
	err = stream.ReadFrames(resp.Body, func(frame []byte) error {
		_, err := t.apply(frame)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !t.done {
		return nil, fmt.Errorf("reply ended before completion")
	}
	return t, nil
}
