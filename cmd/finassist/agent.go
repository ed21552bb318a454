package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/calmcall/finassist/pkg/job"
	"github.com/calmcall/finassist/pkg/session"
)

const agentIdentity = "calmcall-agent"

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "LiveKit agent commands",
}

var agentRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Join one room and serve the assistant there",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		url, _ := cmd.Flags().GetString("url")
		token, _ := cmd.Flags().GetString("token")
		roomName, _ := cmd.Flags().GetString("room")
		if url == "" {
			url = cfg.LiveKit.URL
		}

		logger := setupLogger(cfg.Log)
		logger.Info("Starting agent",
			slog.String("service", "finassist"),
			slog.String("room", roomName),
			slog.String("mode", session.ModeFromRoomName(roomName).String()),
			slog.String("url", url))

		if url == "" {
			return fmt.Errorf("--url or LIVEKIT_URL is required")
		}
		if token == "" {
			creds := job.Credentials{APIKey: cfg.LiveKit.APIKey, APISecret: cfg.LiveKit.APISecret}
			token, err = job.IssueToken(creds, job.TokenRequest{
				Room:     roomName,
				Identity: agentIdentity,
				Name:     "CalmCall",
				TTL:      job.DefaultJobTimeout,
			})
			if err != nil {
				return fmt.Errorf("--token is required when LiveKit credentials are not configured: %w", err)
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		rt, err := newRuntime(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		return rt.runRoomJob(ctx, "", url, token, roomName)
	},
}

func init() {
	agentRunCmd.Flags().String("url", "", "LiveKit server WebSocket URL (defaults to LIVEKIT_URL)")
	agentRunCmd.Flags().String("token", "", "Participant token (minted from LIVEKIT_API_KEY/SECRET when empty)")
	agentRunCmd.Flags().String("room", "", "Room name to join; a _budgeting or _hotline suffix selects the persona")
	agentRunCmd.MarkFlagRequired("room")

	agentCmd.AddCommand(agentRunCmd)
}
