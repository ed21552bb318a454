package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calmcall/finassist/pkg/agent"
	"github.com/calmcall/finassist/pkg/ai/llm"
	"github.com/calmcall/finassist/pkg/budget"
	"github.com/calmcall/finassist/pkg/job"
	"github.com/calmcall/finassist/pkg/search/tavily"
	"github.com/calmcall/finassist/pkg/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant from the terminal",
	Long: `chat reads one message per line from stdin and prints the assistant's
replies. Graphs drawn by the budget tool are printed as JSON envelopes.
Combine with --offline to run without API keys.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		modeFlag, _ := cmd.Flags().GetString("mode")
		mode, err := session.ParseMode(modeFlag)
		if err != nil {
			return err
		}

		logger := setupLogger(cfg.Log)
		ctx, cancel := signalContext()
		defer cancel()

		rt, err := newRuntime(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), chatOptions{
			LLM:    rt.providers.LLM,
			Mode:   mode,
			Store:  rt.store,
			Search: rt.search,
			Logger: logger,
		})
	},
}

type chatOptions struct {
	LLM    llm.LLM
	Mode   session.Mode
	Store  session.Store
	Search *tavily.Client
	Logger *slog.Logger
}

// runChat runs a line-oriented conversation until in is exhausted or ctx
// ends.
func runChat(ctx context.Context, in io.Reader, out io.Writer, opts chatOptions) error {
	if opts.Store == nil {
		opts.Store = session.NewMemoryStore(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	publisher := job.NewMemoryPublisher()
	cache := session.NewCache(opts.Store, session.RoomName("terminal", opts.Mode), session.WithLogger(opts.Logger))

	assistant, err := agent.New(agent.Config{
		LLM: opts.LLM,
		Tools: agent.ToolsForMode(opts.Mode, agent.Deps{
			Publisher: publisher,
			Cache:     cache,
			Search:    opts.Search,
			Logger:    opts.Logger,
		}),
		Instructions: session.Prompt(opts.Mode),
		Logger:       opts.Logger,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "CalmCall (%s mode). Type a message, or Ctrl-D to quit.\n", opts.Mode)
	published := 0
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		reply, err := assistant.Turn(ctx, text)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, reply.Text)

		graphs := publisher.Graphs()
		for _, g := range graphs[published:] {
			data, err := budget.NewEnvelope(g).Marshal()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", data)
		}
		published = len(graphs)
	}
	fmt.Fprintln(out)

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return cache.SaveTranscript(context.WithoutCancel(ctx), assistant.Transcript())
}

func init() {
	chatCmd.Flags().String("mode", string(session.ModeBudgeting), "Persona: budgeting or hotline")
}
