package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/config"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/observability"
)

var (
	serverURL string
	logLevel  string
	timeout   time.Duration
	logger    = zerolog.Nop()
)

func main() {
	root := &cobra.Command{
		Use:   "replyctl",
		Short: "replyctl: client for the reply gateway",
		Long:  "replyctl sends chat turns to a running reply gateway, lists its voices and reads the conversation log.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			observability.InitLogger(logLevel, true)
			logger = observability.GetLogger()
		},
	}

	root.PersistentFlags().StringVarP(&serverURL, "server", "s", config.GetEnv("REPLY_GATEWAY_URL", "http://localhost:8080"), "reply gateway base URL")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "per-turn timeout")

	root.AddCommand(sendCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(voicesCmd())
	root.AddCommand(logsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
