// Package servicedesk lists and fetches service desk resources through the
// authenticated client.
package servicedesk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/florianilch/deskclient/internal/authclient"
)

// ErrUnknownResource is returned for resource names the API does not expose.
var ErrUnknownResource = errors.New("unknown resource")

// Resource is a collection of the service desk API.
type Resource string

const (
	Tickets       Resource = "tickets"
	Problems      Resource = "problems"
	Changes       Resource = "changes"
	Assets        Resource = "assets"
	Knowledge     Resource = "knowledge"
	Notifications Resource = "notifications"
)

// Resources lists every known resource in display order.
var Resources = []Resource{Tickets, Problems, Changes, Assets, Knowledge, Notifications}

// ParseResource maps a user-supplied name (case-insensitive) to a Resource.
func ParseResource(name string) (Resource, error) {
	r := Resource(strings.ToLower(strings.TrimSpace(name)))
	if !slices.Contains(Resources, r) {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return r, nil
}

// Client reads resources from the service desk API.
type Client struct {
	api *authclient.Client
}

// New creates a Client on top of an authenticated API client.
func New(api *authclient.Client) *Client {
	return &Client{api: api}
}

// List returns the raw JSON listing of a resource. query is passed through
// (e.g. status, page, page_size filters).
func (c *Client) List(ctx context.Context, r Resource, query url.Values) (json.RawMessage, error) {
	if !slices.Contains(Resources, r) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, r)
	}

	var out json.RawMessage
	if err := c.api.GetJSON(ctx, "/"+string(r), query, &out); err != nil {
		return nil, fmt.Errorf("listing %s: %w", r, err)
	}
	return out, nil
}

// Get returns the raw JSON of a single resource item.
func (c *Client) Get(ctx context.Context, r Resource, id string) (json.RawMessage, error) {
	if !slices.Contains(Resources, r) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, r)
	}
	if id == "" {
		return nil, fmt.Errorf("%s id cannot be empty", r)
	}

	var out json.RawMessage
	if err := c.api.GetJSON(ctx, "/"+string(r)+"/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("fetching %s %s: %w", r, id, err)
	}
	return out, nil
}
