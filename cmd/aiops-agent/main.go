// Command aiops-agent diagnoses monitoring alerts with an LLM that queries
// Prometheus, Loki and Grafana on its own.
//
// Commands:
//   - serve: HTTP API (Alertmanager webhook, direct diagnosis, journal,
//     websocket event stream, metrics) and gRPC health
//   - diagnose: one diagnosis in-process, printed as a transcript
//   - evaluate: offline accuracy check of the news classifier
//   - capabilities: list the capabilities the agent can invoke
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
