// Package prompt renders the prompts of the diagnostic loop: the system prompt
// of every reasoning turn, the initial user turn and the finalize prompt.
// Defaults can be overridden from a YAML file.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Observation is one piece of evidence shown to the finalize prompt.
type Observation struct {
	Capability string
	Text       string
}

// FinalizeInput is everything the finalize prompt needs.
type FinalizeInput struct {
	Alert        string
	Observations []Observation
	Notes        []string
}

// Overrides is the YAML shape of a prompt file. Empty fields keep the default.
type Overrides struct {
	System         string `yaml:"system"`
	FinalizeSystem string `yaml:"finalize_system"`
	FinalizeUser   string `yaml:"finalize_user"`
}

// Manager holds the active prompts. It is immutable after construction and
// safe for concurrent use.
type Manager struct {
	system         string
	finalizeSystem string
	finalizeUser   *template.Template
}

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

// NewManager returns a manager with the built-in prompts.
func NewManager() *Manager {
	m, err := newManager(Overrides{})
	if err != nil {
		panic(err)
	}
	return m
}

// LoadFile reads YAML overrides from path. An empty path yields the defaults.
func LoadFile(path string) (*Manager, error) {
	if path == "" {
		return NewManager(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	return newManager(o)
}

func newManager(o Overrides) (*Manager, error) {
	m := &Manager{
		system:         defaultSystemPrompt,
		finalizeSystem: defaultFinalizeSystemPrompt,
	}
	if s := strings.TrimSpace(o.System); s != "" {
		m.system = s
	}
	if s := strings.TrimSpace(o.FinalizeSystem); s != "" {
		m.finalizeSystem = s
	}

	text := defaultFinalizeTemplate
	if strings.TrimSpace(o.FinalizeUser) != "" {
		text = o.FinalizeUser
	}
	tmpl, err := template.New("finalize").Funcs(funcs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse finalize template: %w", err)
	}
	m.finalizeUser = tmpl
	return m, nil
}

// SystemPrompt is the system entry that opens every diagnosis.
func (m *Manager) SystemPrompt() string { return m.system }

// AlertPrompt is the first user entry of a diagnosis.
func (m *Manager) AlertPrompt(alert string) string {
	return fmt.Sprintf(alertPromptFormat, alert)
}

// Finalize renders the system and user prompts of the summarizing call.
func (m *Manager) Finalize(in FinalizeInput) (string, string, error) {
	var buf bytes.Buffer
	if err := m.finalizeUser.Execute(&buf, in); err != nil {
		return "", "", fmt.Errorf("render finalize prompt: %w", err)
	}
	return m.finalizeSystem, buf.String(), nil
}
