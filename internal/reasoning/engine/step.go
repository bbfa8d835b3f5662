package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/capability"
)

// ErrReasoningUnavailable is returned when the reasoning backend cannot be
// reached or answers with something that is not a turn.
var ErrReasoningUnavailable = errors.New("reasoning backend unavailable")

// Reply is a raw assistant turn as produced by the backend, before the
// one-capability-per-turn rule is applied.
type Reply struct {
	Content  string
	Requests []CapabilityRequest
}

// Backend is the reasoning backend. Implementations must be safe for
// concurrent use; the engine shares one across all runs.
type Backend interface {
	Complete(ctx context.Context, history []Entry, descriptors []capability.Descriptor) (Reply, error)
}

// Reasoner runs one reasoning step. It holds no per-run state.
type Reasoner struct {
	backend Backend
}

// NewReasoner wraps backend.
func NewReasoner(backend Backend) *Reasoner {
	return &Reasoner{backend: backend}
}

// Step asks the backend for the next assistant entry. A reply requesting
// more than one capability is turned into a rejected entry with no request.
// Step does not touch the turn count.
func (r *Reasoner) Step(ctx context.Context, history []Entry, descriptors []capability.Descriptor) (Entry, error) {
	reply, err := r.backend.Complete(ctx, history, descriptors)
	if err != nil {
		if !errors.Is(err, ErrReasoningUnavailable) {
			err = fmt.Errorf("%w: %v", ErrReasoningUnavailable, err)
		}
		return Entry{}, err
	}

	entry := Entry{
		Role:      RoleAssistant,
		Content:   reply.Content,
		Timestamp: time.Now().UTC(),
	}

	switch len(reply.Requests) {
	case 0:
	case 1:
		req := reply.Requests[0]
		req.Arguments = copyArgs(req.Arguments)
		entry.Request = &req
	default:
		names := make([]string, len(reply.Requests))
		for i, req := range reply.Requests {
			names[i] = req.Name
		}
		notice := fmt.Sprintf("Rejected %d capability requests in a single turn (%s): only one capability may be invoked per turn.",
			len(reply.Requests), strings.Join(names, ", "))
		entry.Content = strings.TrimSpace(reply.Content + "\n" + notice)
		entry.Rejected = true
	}
	return entry, nil
}

func copyArgs(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
