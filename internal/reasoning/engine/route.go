package engine

// Decision is the outcome of routing an assistant entry.
type Decision string

const (
	RouteDispatch Decision = "dispatch"
	RouteFinalize Decision = "finalize"
)

// Route picks the next state from the latest assistant entry. It dispatches
// iff the entry carries a capability request with a name.
func Route(latest Entry) Decision {
	if latest.Request != nil && latest.Request.Name != "" {
		return RouteDispatch
	}
	return RouteFinalize
}
