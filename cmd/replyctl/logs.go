package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/config"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/convlog"
)

func logsCmd() *cobra.Command {
	var dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "logs [sessionID]",
		Short: "Read the conversation log directly from its database",
		Long: `Without arguments, lists the most recently active sessions.
With a session ID, prints that session's turns oldest first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := convlog.Open(dbPath, nil, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if len(args) == 0 {
				return printSessions(ctx, cmd.OutOrStdout(), store, limit)
			}
			return printTurns(ctx, cmd.OutOrStdout(), store, args[0], limit)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", config.GetEnv("CONVERSATION_DB_PATH", "data/conversations.db"), "conversation log database")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows to print")
	return cmd
}

func printSessions(ctx context.Context, w io.Writer, store *convlog.Store, limit int) error {
	sessions, err := store.Sessions(ctx, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No conversations recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tTURNS\tLAST ACTIVITY")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.SessionID, s.Turns, s.LastActivity.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func printTurns(ctx context.Context, w io.Writer, store *convlog.Store, sessionID string, limit int) error {
	turns, err := store.ListSession(ctx, sessionID, limit)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Fprintf(w, "No turns recorded for session %s.\n", sessionID)
		return nil
	}

	for _, e := range turns {
		audio := "audio"
		if !e.AudioGenerated {
			audio = "no audio: " + e.SkipReason
		}
		fmt.Fprintf(w, "%s  [%s, %s]\n", e.CreatedAt.Local().Format(time.DateTime), e.VoiceName, audio)
		fmt.Fprintf(w, "  user: %s\n", e.UserText)
		fmt.Fprintf(w, "  reply: %s\n\n", e.DisplayText)
	}
	return nil
}
