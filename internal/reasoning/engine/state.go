package engine

import (
	"fmt"
	"time"
)

// Role tags a conversation entry.
type Role string

const (
	RoleSystem      Role = "system"
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleObservation Role = "observation"
)

// CapabilityRequest names exactly one capability and its arguments. ID is the
// backend's call identifier, echoed on the observation that answers it.
type CapabilityRequest struct {
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Entry is one element of the diagnostic conversation.
type Entry struct {
	Role    Role               `json:"role"`
	Content string             `json:"content"`
	Request *CapabilityRequest `json:"capability_request,omitempty"`

	// Observation entries only.
	Capability string `json:"capability,omitempty"`
	RequestID  string `json:"request_id,omitempty"`

	// Rejected marks an assistant turn whose capability requests were refused.
	Rejected  bool      `json:"rejected,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the unit of work of one diagnosis. It is owned by a single run and
// never shared; only the engine mutates it.
type State struct {
	RunID        string
	AlertSummary string

	history   []Entry
	turnCount int
	result    string
	finalized bool
	fellBack  bool
}

// NewState seeds the history with the system prompt and the alert.
func NewState(runID, alertSummary, systemPrompt string) *State {
	return newState(runID, alertSummary, systemPrompt, fmt.Sprintf("Diagnose this alert: %s", alertSummary))
}

func newState(runID, alertSummary, systemPrompt, userPrompt string) *State {
	now := time.Now().UTC()
	return &State{
		RunID:        runID,
		AlertSummary: alertSummary,
		history: []Entry{
			{Role: RoleSystem, Content: systemPrompt, Timestamp: now},
			{Role: RoleUser, Content: userPrompt, Timestamp: now},
		},
	}
}

// History returns a copy of the conversation.
func (s *State) History() []Entry {
	out := make([]Entry, len(s.history))
	copy(out, s.history)
	return out
}

// TurnCount is the number of reasoning steps taken so far.
func (s *State) TurnCount() int { return s.turnCount }

// Result returns the final diagnosis and whether it has been set.
func (s *State) Result() (string, bool) { return s.result, s.finalized }

// Observations returns the observation entries in order.
func (s *State) Observations() []Entry {
	var out []Entry
	for _, e := range s.history {
		if e.Role == RoleObservation {
			out = append(out, e)
		}
	}
	return out
}

func (s *State) append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	s.history = append(s.history, e)
}

func (s *State) incrementTurn() { s.turnCount++ }

// setResult is a no-op once a result exists.
func (s *State) setResult(result string, fellBack bool) {
	if s.finalized {
		return
	}
	s.result = result
	s.fellBack = fellBack
	s.finalized = true
}
