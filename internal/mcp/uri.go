package mcp

import (
	"fmt"
	"net/url"
	"strings"
)

// resourceURI is a parsed resource://<kind>/<selector>?k=v&… URI
// (spec.md §6). Resources are matched by kind, not by exact URI string,
// since inbox and agents resources are parameterized by project/agent.
type resourceURI struct {
	Kind     string
	Selector string
	Query    url.Values
}

func parseResourceURI(raw string) (resourceURI, error) {
	const scheme = "resource://"
	if !strings.HasPrefix(raw, scheme) {
		return resourceURI{}, fmt.Errorf("mcp: %q is not a resource:// uri", raw)
	}
	rest := raw[len(scheme):]

	path := rest
	query := ""
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		path = rest[:i]
		query = rest[i+1:]
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return resourceURI{}, fmt.Errorf("mcp: invalid query in %q: %w", raw, err)
	}

	kind := path
	selector := ""
	if i := strings.IndexByte(path, '/'); i >= 0 {
		kind = path[:i]
		selector = path[i+1:]
	}
	if kind == "" {
		return resourceURI{}, fmt.Errorf("mcp: %q has no resource kind", raw)
	}
	return resourceURI{Kind: kind, Selector: selector, Query: values}, nil
}
