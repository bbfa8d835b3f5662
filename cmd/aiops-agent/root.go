package main

import (
	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "aiops-agent",
		Short: "LLM agent that diagnoses monitoring alerts",
		Long: `aiops-agent receives an alert, lets an LLM investigate it through read-only
observability capabilities (Prometheus queries, Loki log searches, Grafana
dashboard links) for a bounded number of turns, and returns a diagnosis.

Configuration is read from a YAML file, AIOPS_* environment variables and a
.env file. The legacy GROQ_API_KEY, PROMETHEUS_URL, LOKI_URL and GRAFANA_URL
variables are honored.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "Env files loaded before configuration (default .env)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newDiagnoseCmd(opts),
		newEvaluateCmd(opts),
		newCapabilitiesCmd(opts),
	)
	return cmd
}
