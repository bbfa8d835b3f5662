package capability

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DashboardLinkName is the registered name of the Grafana capability.
const DashboardLinkName = "GrafanaDashboardLink"

// DashboardLinkArgs are the arguments accepted by the Grafana capability.
type DashboardLinkArgs struct {
	DashboardUID     string `json:"dashboard_uid" jsonschema:"required,description=The UID of the Grafana dashboard to link to"`
	TimeRangeMinutes int    `json:"time_range_minutes,omitempty" jsonschema:"minimum=1,default=60,description=The time range in minutes for the dashboard link"`
	ServiceFilter    string `json:"service_filter,omitempty" jsonschema:"description=Optional service name to filter the dashboard"`
}

// DashboardLink builds Grafana dashboard URLs. It performs no network call.
type DashboardLink struct {
	baseURL string
	orgID   int
	now     func() time.Time
}

// NewDashboardLink creates the Grafana capability. An empty baseURL is
// accepted here and reported as a validation failure on every invocation.
func NewDashboardLink(baseURL string, orgID int) *DashboardLink {
	if orgID <= 0 {
		orgID = 1
	}
	return &DashboardLink{
		baseURL: strings.TrimRight(baseURL, "/"),
		orgID:   orgID,
		now:     time.Now,
	}
}

func (g *DashboardLink) Descriptor() Descriptor {
	return Descriptor{
		Name:        DashboardLinkName,
		Description: "Generates a direct link to a Grafana dashboard for the given time range and optional service filter.",
		Parameters:  MustGenerateSchema[DashboardLinkArgs](),
	}
}

func (g *DashboardLink) Invoke(_ context.Context, raw map[string]interface{}) (string, error) {
	args := DashboardLinkArgs{TimeRangeMinutes: 60}
	if err := decodeArgs(DashboardLinkName, raw, &args); err != nil {
		return "", err
	}
	if g.baseURL == "" {
		return "", validationError(DashboardLinkName, "grafana base URL is not configured")
	}
	if strings.TrimSpace(args.DashboardUID) == "" {
		return "", validationError(DashboardLinkName, "dashboard_uid must not be empty")
	}
	if args.TimeRangeMinutes <= 0 {
		return "", validationError(DashboardLinkName, "time_range_minutes must be positive")
	}

	to := g.now().UnixMilli()
	from := to - int64(args.TimeRangeMinutes)*60*1000

	params := url.Values{}
	params.Set("from", strconv.FormatInt(from, 10))
	params.Set("to", strconv.FormatInt(to, 10))
	params.Set("orgId", strconv.Itoa(g.orgID))
	if args.ServiceFilter != "" {
		params.Set("var-service", args.ServiceFilter)
	}

	link := fmt.Sprintf("%s/d/%s?%s", g.baseURL, url.PathEscape(args.DashboardUID), params.Encode())
	return "Grafana Dashboard Link: " + link, nil
}
