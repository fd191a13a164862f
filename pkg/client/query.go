package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/flightctl/flightctl-mcp/pkg/audit"
	"github.com/flightctl/flightctl-mcp/pkg/errors"
	"github.com/flightctl/flightctl-mcp/pkg/metrics"
)

// DefaultPageSize is the limit sent to the API when the caller does not
// cap the result count.
const DefaultPageSize = 1000

// QuerySpec describes one list query.
type QuerySpec struct {
	Resource      Resource
	LabelSelector string
	FieldSelector string

	// Limit caps the total number of items returned. Zero or negative
	// means unbounded: every page is fetched.
	Limit int
}

// listEnvelope is the wire shape of a list response. Items stay raw so the
// API's own JSON reaches the caller untouched.
type listEnvelope struct {
	Items    []json.RawMessage `json:"items"`
	Continue string            `json:"continue"`
	Metadata struct {
		Continue           string `json:"continue"`
		RemainingItemCount *int64 `json:"remainingItemCount"`
	} `json:"metadata"`
}

// cursor returns the continuation token for the next page. The API reports
// it under metadata.continue; older servers put it at the top level.
func (e *listEnvelope) cursor() string {
	if e.Metadata.Continue != "" {
		return e.Metadata.Continue
	}
	return e.Continue
}

// Query lists resources, following pagination cursors until the limit is
// satisfied or the collection is exhausted. Results are all-or-nothing: a
// failure on any page discards everything fetched before it.
func (c *Client) Query(ctx context.Context, spec QuerySpec) (items []json.RawMessage, err error) {
	if !spec.Resource.Valid() {
		return nil, errors.NewValidationError("resource",
			fmt.Sprintf("unsupported resource %q, expected one of %v", spec.Resource, Resources()))
	}

	defer func() {
		c.auditor.ResourceQuery(ctx, c.tokens.Actor(), spec.Resource.Kind(),
			spec.LabelSelector, spec.FieldSelector, len(items), audit.CorrelationIDFrom(ctx), err)
	}()

	// One token per query; pages within it reuse the same credential.
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	pageLimit := spec.Limit
	if pageLimit <= 0 {
		pageLimit = DefaultPageSize
	}

	cursor := ""
	for page := 1; ; page++ {
		envelope, err := c.fetchPage(ctx, spec, token, pageLimit, cursor)
		if err != nil {
			return nil, err
		}
		items = append(items, envelope.Items...)
		c.log.Debugw("fetched page",
			"resource", spec.Resource, "page", page, "items", len(envelope.Items))

		if spec.Limit > 0 && len(items) >= spec.Limit {
			return items[:spec.Limit], nil
		}
		cursor = envelope.cursor()
		if cursor == "" {
			return items, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, spec QuerySpec, token string, limit int, cursor string) (*listEnvelope, error) {
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("limit", strconv.Itoa(limit))
	if spec.LabelSelector != "" {
		req.SetQueryParam("labelSelector", spec.LabelSelector)
	}
	if spec.FieldSelector != "" {
		req.SetQueryParam("fieldSelector", spec.FieldSelector)
	}
	if cursor != "" {
		req.SetQueryParam("continue", cursor)
	}

	start := time.Now()
	resp, err := req.Get("/api/v1/" + string(spec.Resource))
	metrics.APIRequestDuration.WithLabelValues(string(spec.Resource)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequests.WithLabelValues(string(spec.Resource), "error").Inc()
		return nil, errors.NewAPIErrorWithCause(
			fmt.Sprintf("network error querying %s", spec.Resource), err)
	}
	metrics.APIRequests.WithLabelValues(string(spec.Resource), strconv.Itoa(resp.StatusCode())).Inc()

	if resp.IsError() {
		return nil, classifyStatus(spec.Resource, resp.StatusCode(), resp.String())
	}

	var envelope listEnvelope
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, errors.NewAPIErrorWithCause(
			fmt.Sprintf("invalid JSON response from %s", spec.Resource), err)
	}
	return &envelope, nil
}

func classifyStatus(resource Resource, status int, body string) error {
	switch status {
	case http.StatusUnauthorized:
		return errors.NewAuthenticationError(
			fmt.Sprintf("authentication failed for %s query", resource), nil)
	case http.StatusForbidden:
		return errors.NewAPIError(
			fmt.Sprintf("access denied for %s query", resource), status, body)
	case http.StatusNotFound:
		return errors.NewAPIError(
			fmt.Sprintf("resource not found: %s", resource), status, body)
	default:
		return errors.NewAPIError(
			fmt.Sprintf("failed to query %s: HTTP %d", resource, status), status, body)
	}
}
