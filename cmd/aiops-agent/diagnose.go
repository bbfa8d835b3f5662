package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	alertctx "github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/context"
	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/engine"
)

func newDiagnoseCmd(opts *rootOptions) *cobra.Command {
	var (
		payloadPath string
		maxTurns    int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "diagnose [alert description]",
		Short: "Diagnose one alert in-process and print the transcript",
		Long: `Run a single diagnosis without starting the server. The alert is either the
argument text or, with --payload, the first alert of an Alertmanager webhook
JSON file.`,
		Example: `  aiops-agent diagnose "model_rmse above 0.5 for service model-server"
  aiops-agent diagnose --payload alert.json --max-turns 3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alert, err := alertFromInput(args, payloadPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if maxTurns > 0 {
				a.cfg.Agent.MaxTurns = maxTurns
			}
			if err := a.buildEngine(ctx, false); err != nil {
				return err
			}

			diag, err := a.engine.Diagnose(ctx, alert)
			if err != nil {
				return fmt.Errorf("diagnosis failed: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(diag)
			}
			printTranscript(cmd.OutOrStdout(), diag)
			return nil
		},
	}

	cmd.Flags().StringVar(&payloadPath, "payload", "", "Alertmanager webhook JSON file to diagnose")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "Override agent.max_turns")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the diagnosis as JSON")
	return cmd
}

// alertFromInput returns the alert summary from the argument or the payload file.
func alertFromInput(args []string, payloadPath string) (string, error) {
	switch {
	case payloadPath != "" && len(args) > 0:
		return "", fmt.Errorf("pass either an alert description or --payload, not both")
	case payloadPath != "":
		raw, err := os.ReadFile(payloadPath)
		if err != nil {
			return "", fmt.Errorf("read payload: %w", err)
		}
		var payload alertctx.AlertmanagerPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return "", fmt.Errorf("parse payload %s: %w", payloadPath, err)
		}
		return payload.Summary(), nil
	case len(args) == 1 && strings.TrimSpace(args[0]) != "":
		return args[0], nil
	default:
		return "", fmt.Errorf("an alert description or --payload is required")
	}
}

// printTranscript writes the conversation and the final diagnosis.
func printTranscript(w io.Writer, d *engine.Diagnosis) {
	fmt.Fprintf(w, "Run: %s\n", color.CyanString(d.RunID))
	fmt.Fprintf(w, "Alert: %s\n\n", d.AlertSummary)

	turn := 0
	for _, e := range d.History {
		switch e.Role {
		case engine.RoleSystem, engine.RoleUser:
			continue
		case engine.RoleAssistant:
			turn++
			switch {
			case e.Rejected:
				fmt.Fprintf(w, "%s turn %d: requested several capabilities at once, rejected\n", color.RedString("✗"), turn)
			case e.Request != nil:
				args, _ := json.Marshal(e.Request.Arguments)
				fmt.Fprintf(w, "%s turn %d: %s %s\n", color.YellowString("⚡"), turn, color.CyanString(e.Request.Name), args)
			default:
				fmt.Fprintf(w, "%s turn %d: %s\n", color.GreenString("✓"), turn, firstLine(e.Content))
			}
		case engine.RoleObservation:
			fmt.Fprintf(w, "    %s\n", indent(e.Content, "    "))
		}
	}

	outcome := string(d.Outcome)
	switch d.Outcome {
	case engine.OutcomeEscalated, engine.OutcomeFailed:
		outcome = color.RedString(outcome)
	case engine.OutcomeSolutionProposed:
		outcome = color.GreenString(outcome)
	default:
		outcome = color.YellowString(outcome)
	}
	fmt.Fprintf(w, "\nOutcome: %s (%d turns, %d observations, %s)\n\n", outcome, d.Turns, d.Observations, d.Duration.Round(time.Millisecond))
	fmt.Fprintln(w, d.Result)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n"+prefix)
}
