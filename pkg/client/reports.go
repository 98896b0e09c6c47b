package client

import (
	"context"
	"net/url"
)

// ReportsClient reads the operational views: filing health and deadlines.
type ReportsClient struct {
	client *Client
}

// FilingHealth fetches the health report. refresh bypasses the server cache.
func (r *ReportsClient) FilingHealth(ctx context.Context, refresh bool) (*HealthReport, error) {
	path := "/api/v1/health/filing"
	if refresh {
		path += "?refresh=true"
	}
	var out HealthReport
	if err := r.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpcomingDeadlines lists relevant deadlines, optionally narrowed by
// jurisdiction and form type.
func (r *ReportsClient) UpcomingDeadlines(ctx context.Context, jurisdiction, formType string) ([]Deadline, error) {
	q := url.Values{}
	setIf(q, "jurisdiction", jurisdiction)
	setIf(q, "form_type", formType)
	path := "/api/v1/deadlines"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Items []Deadline `json:"items"`
		Count int        `json:"count"`
	}
	if err := r.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}
