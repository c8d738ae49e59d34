package interceptors

import (
	"context"
	"net/http"

	"go.temporal.io/sdk/activity"
)

// Headers attached to outgoing requests made from inside an activity.
const (
	HeaderWorkflowID = "X-Workflow-ID"
	HeaderRunID      = "X-Run-ID"
	HeaderActivity   = "X-Activity-Type"
)

// WorkflowHTTPRoundTripper adds workflow metadata to outgoing HTTP requests.
type WorkflowHTTPRoundTripper struct {
	base http.RoundTripper
}

// NewWorkflowHTTPRoundTripper wraps base, or http.DefaultTransport when nil.
func NewWorkflowHTTPRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &WorkflowHTTPRoundTripper{base: base}
}

// RoundTrip implements http.RoundTripper. The request is cloned before headers
// are added.
func (w *WorkflowHTTPRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	info, ok := activityInfo(req.Context())
	if !ok {
		return w.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set(HeaderWorkflowID, info.WorkflowExecution.ID)
	req.Header.Set(HeaderRunID, info.WorkflowExecution.RunID)
	req.Header.Set(HeaderActivity, info.ActivityType.Name)
	return w.base.RoundTrip(req)
}

// NewClient returns an http.Client with the workflow round tripper installed.
func NewClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	c := *base
	c.Transport = NewWorkflowHTTPRoundTripper(base.Transport)
	return &c
}

// activityInfo returns the activity info when ctx belongs to an activity.
// activity.GetInfo panics outside one.
func activityInfo(ctx context.Context) (info activity.Info, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	info = activity.GetInfo(ctx)
	return info, info.WorkflowExecution.ID != ""
}
