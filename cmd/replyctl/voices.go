package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/voice"
)

type voicesResponse struct {
	Voices  []voice.Voice `json:"voices"`
	Default struct {
		VoiceID   string `json:"voiceId"`
		VoiceName string `json:"voiceName"`
	} `json:"default"`
	TTSDefaultEnabled bool `json:"ttsDefaultEnabled"`
}

func voicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voices the gateway accepts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			voices, err := fetchVoices(ctx, http.DefaultClient, serverURL)
			if err != nil {
				return err
			}
			printVoices(cmd.OutOrStdout(), voices)
			return nil
		},
	}
}

func fetchVoices(ctx context.Context, client *http.Client, base string) (*voicesResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/voices", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	var out voicesResponse
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}
	return &out, nil
}

func printVoices(w io.Writer, v *voicesResponse) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tDESCRIPTION")
	for _, entry := range v.Voices {
		marker := ""
		if entry.ID == v.Default.VoiceID {
			marker = " (default)"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\n", entry.Name, marker, entry.ID, entry.Description)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nSpeech enabled by default: %v\n", v.TTSDefaultEnabled)
}
