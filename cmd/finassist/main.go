package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/calmcall/finassist/internal/config"
	"github.com/calmcall/finassist/pkg/plugin"
	_ "github.com/calmcall/finassist/pkg/plugin/elevenlabs" // Import to register ElevenLabs TTS
	_ "github.com/calmcall/finassist/pkg/plugin/fake"       // Import to register fake providers
	_ "github.com/calmcall/finassist/pkg/plugin/gemini"     // Import to register Gemini LLM
	_ "github.com/calmcall/finassist/pkg/plugin/openai"     // Import to register OpenAI providers
	"github.com/calmcall/finassist/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "finassist",
	Short: "CalmCall financial assistant: API server, LiveKit agent and budget tools",
	Long: `finassist runs the CalmCall backend: the HTTP API used by the web client,
the LiveKit agent that coaches users through a budget and draws it as a
Sankey diagram, and command line tools for working with budget graphs.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionInfo())
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Provider plugin commands",
}

var pluginListCmd = &cobra.Command{
	Use:   "list [kind]",
	Short: "List registered providers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := ""
		if len(args) == 1 {
			kind = args[0]
		}
		return listPlugins(cmd.OutOrStdout(), kind)
	},
}

func listPlugins(w io.Writer, kind string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tVERSION\tDESCRIPTION")
	for _, p := range plugin.List(kind) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Kind, p.Name, p.Version, p.Description)
	}
	return tw.Flush()
}

// loadConfig reads .env files and the environment. With --offline every
// provider is replaced by its fake so nothing needs API keys.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if offline, _ := cmd.Flags().GetBool("offline"); offline {
		cfg.Models = config.Models{LLM: "fake", STT: "fake", TTS: "fake"}
	}
	return cfg, nil
}

func setupLogger(cfg config.Log) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var handler slog.Handler
	if cfg.Format == "console" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// signalContext cancels on interrupt or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	rootCmd.PersistentFlags().Bool("offline", false, "Use fake providers instead of OpenAI, Gemini and ElevenLabs")

	pluginCmd.AddCommand(pluginListCmd)
	rootCmd.AddCommand(versionCmd, serveCmd, agentCmd, workerCmd, chatCmd, sankeyCmd, pluginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
