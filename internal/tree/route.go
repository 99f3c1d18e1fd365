package tree

import "strings"

// Separator joins display names into a query path.
const Separator = ">"

// Route addresses a tree position by display names from the root.
type Route []string

// ParseRoute splits launcher query text into a route. Segments are trimmed
// and empty segments dropped, so "A > B>" and "A>B" address the same node.
func ParseRoute(text string) Route {
	parts := strings.Split(text, Separator)
	route := make(Route, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		route = append(route, part)
	}
	return route
}

func (r Route) String() string {
	return strings.Join(r, Separator)
}

func (r Route) IsEmpty() bool {
	return len(r) == 0
}

// Parent drops the last segment. The parent of an empty or single segment
// route is the empty route.
func (r Route) Parent() Route {
	if len(r) <= 1 {
		return Route{}
	}
	return append(Route{}, r[:len(r)-1]...)
}

func (r Route) Last() string {
	if len(r) == 0 {
		return ""
	}
	return r[len(r)-1]
}

// Child returns a new route extended by name; r is left untouched.
func (r Route) Child(name string) Route {
	out := make(Route, len(r), len(r)+1)
	copy(out, r)
	return append(out, name)
}
