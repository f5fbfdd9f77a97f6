package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/Orion-Gemini/ORION-WEBCAM/internal/config"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/conversation"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/logging"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/proxy"
)

// Safety thresholds sent with the full probe payload.
var probeSafety = []proxy.SafetySetting{
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
}

type probeOptions struct {
	prompt  string
	minimal bool
}

func newProbeCmd(root *rootOptions) *cobra.Command {
	opts := &probeOptions{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Send test payloads straight to the proxy and print the raw replies",
		Long: `probe posts a full payload (system instruction, generationConfig and
safetySettings) and a minimal one to GAS_PROXY_URL, printing each status
code and response body. It fails if any reply is not 2xx.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.envFile)
			if err != nil {
				return err
			}
			if cfg.Proxy.Provider != config.ProviderProxy {
				return fmt.Errorf("probe needs PROXY_PROVIDER=%s (got %s)", config.ProviderProxy, cfg.Proxy.Provider)
			}
			logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			client := proxy.NewClient(cfg.Proxy.URL, cfg.Proxy.Model, cfg.Proxy.Policy(),
				proxy.WithAuthToken(cfg.Proxy.Token),
				proxy.WithLogger(logger),
			)

			payloads := []struct {
				name    string
				payload proxy.Payload
			}{
				{"full payload", fullProbe(client.Model(), opts.prompt)},
				{"minimal payload", minimalProbe(client.Model(), opts.prompt)},
			}
			if opts.minimal {
				payloads = payloads[1:]
			}

			var failed []string
			out := cmd.OutOrStdout()
			for _, p := range payloads {
				start := time.Now()
				status, body, err := client.Send(cmd.Context(), p.payload)
				fmt.Fprintf(out, "=== %s ===\n", p.name)
				if err != nil {
					fmt.Fprintf(out, "Error: %v\n\n", err)
					failed = append(failed, p.name)
					continue
				}
				fmt.Fprintf(out, "Status Code: %d (%s)\n", status, time.Since(start).Round(time.Millisecond))
				printBody(out, body)
				if status < 200 || status > 299 {
					failed = append(failed, p.name)
				}
			}
			if len(failed) > 0 {
				return errors.New("probe failed: " + strings.Join(failed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.prompt, "prompt", "What is AI?", "question sent in both payloads")
	cmd.Flags().BoolVar(&opts.minimal, "minimal", false, "send only the minimal payload")
	return cmd
}

func fullProbe(model, prompt string) proxy.Payload {
	return proxy.Payload{
		Model: model,
		Args: proxy.Args{
			Contents: []conversation.Turn{{
				Role: conversation.RoleUser,
				Parts: []conversation.Part{
					{Text: conversation.SystemInstruction},
					{Text: prompt},
				},
			}},
			GenerationConfig: &proxy.GenerationConfig{
				MaxOutputTokens: 1024,
				Temperature:     0.7,
				TopP:            0.95,
				TopK:            40,
			},
			SafetySettings: probeSafety,
		},
	}
}

func minimalProbe(model, prompt string) proxy.Payload {
	return proxy.Payload{
		Model: model,
		Args: proxy.Args{
			Contents: []conversation.Turn{conversation.TextTurn(conversation.RoleUser, prompt)},
		},
	}
}

// printBody pretty-prints JSON bodies and echoes anything else verbatim.
func printBody(w io.Writer, body []byte) {
	if !gjson.ValidBytes(body) {
		fmt.Fprintf(w, "Response: %s\n\n", body)
		return
	}
	fmt.Fprintf(w, "Response: %s", pretty.Pretty(body))
	if answer := gjson.GetBytes(body, "candidates.0.content.parts.0.text"); answer.Exists() {
		fmt.Fprintf(w, "Answer: %s\n", answer.String())
	}
	fmt.Fprintln(w)
}
