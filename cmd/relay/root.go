package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "ORION relay: Telegram bot and web app in front of a Gemini proxy",
		Long: `relay forwards chat prompts and attached files to a Gemini model through
an Apps Script proxy, keeping a short per-chat history.

Configuration comes from the environment, with an optional .env file as
fallback.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file read before the environment")

	cmd.AddCommand(
		newBotCmd(opts),
		newWebCmd(opts),
		newServeCmd(opts),
		newProbeCmd(opts),
	)
	return cmd
}

func newBotCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot (long polling)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts.envFile, "bot")
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.RequireBot(); err != nil {
				return err
			}
			return a.run(cmd.Context(), a.runBot)
		},
	}
}

func newWebCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "web",
		Short: "Run the web app server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts.envFile, "web")
			if err != nil {
				return err
			}
			defer a.Close()
			return a.run(cmd.Context(), a.runWeb)
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the web app together",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts.envFile, "serve")
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.RequireBot(); err != nil {
				return err
			}
			return a.run(cmd.Context(), a.runBot, a.runWeb)
		},
	}
}
