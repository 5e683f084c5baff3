// Package telemetry provides request tagging for structured logging and metrics.
package telemetry

import (
	"context"
)

type contextKey string

// requestTagsKey is the context key for request tags holder.
const requestTagsKey contextKey = "request_tags"

// RequestTags holds mutable request metadata filled in while a request is
// dispatched, read back for logging and metrics once it completes.
type RequestTags struct {
	RequestID string
	Prefix    string
	Handler   string
	Outcome   string
	Upstream  string
}

// InjectTags returns a context carrying an empty RequestTags.
// Call this in the dispatch path before routing.
func InjectTags(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestTagsKey, &RequestTags{RequestID: requestID})
}

// GetTags retrieves the request tags from context.
// Returns nil outside a dispatched request.
func GetTags(ctx context.Context) *RequestTags {
	if tags, ok := ctx.Value(requestTagsKey).(*RequestTags); ok {
		return tags
	}
	return nil
}

// SetRoute records the matched route prefix and handler type.
func SetRoute(ctx context.Context, prefix, handler string) {
	if tags := GetTags(ctx); tags != nil {
		tags.Prefix = prefix
		tags.Handler = handler
	}
}

// SetOutcome records the handler's outcome, e.g. "ok" or "not_found".
func SetOutcome(ctx context.Context, outcome string) {
	if tags := GetTags(ctx); tags != nil {
		tags.Outcome = outcome
	}
}

// SetUpstream records the upstream address a reverse proxy talked to.
func SetUpstream(ctx context.Context, upstream string) {
	if tags := GetTags(ctx); tags != nil {
		tags.Upstream = upstream
	}
}
