// Package route implements the application's ordered route table. Routes
// are matched in registration order against `/`-separated patterns whose
// `:name` segments capture path parameters. Handlers are plain functions
// from a Request to a Response.
package route

import (
	"net/http"
	"strings"

	"proxyplayer/internal/session"
)

// AnyMethod registers a route for every method.
const AnyMethod = "*"

// Params holds the values captured by `:name` segments.
type Params map[string]string

// Get returns the captured value for name, or "".
func (p Params) Get(name string) string { return p[name] }

// Request is what a handler sees: the HTTP request plus the captured path
// parameters and the caller's session, if any.
type Request struct {
	*http.Request
	Params  Params
	Session *session.Data
	State   session.State
}

// LoggedIn reports whether the request carries an authenticated session.
func (r *Request) LoggedIn() bool { return r.Session != nil && r.State.LoggedIn() }

// HandlerFunc turns a Request into a Response.
type HandlerFunc func(*Request) *Response

type entry struct {
	method   string
	pattern  string
	segments []string
	handler  HandlerFunc
}

// Table is an ordered list of routes. The first entry whose method and
// pattern both match wins, so literal routes must be registered before a
// catch-all like `/:slug`.
type Table struct {
	mount    string
	routes   []entry
	notFound HandlerFunc
}

// NewTable creates a table serving paths below mount ("" or "/" for the
// site root).
func NewTable(mount string) *Table {
	return &Table{mount: normalizeMount(mount), notFound: defaultNotFound}
}

// Handle registers h for method and pattern.
func (t *Table) Handle(method, pattern string, h HandlerFunc) {
	t.routes = append(t.routes, entry{
		method:   strings.ToUpper(method),
		pattern:  pattern,
		segments: split(pattern),
		handler:  h,
	})
}

// Get registers h for GET (and HEAD) requests.
func (t *Table) Get(pattern string, h HandlerFunc) { t.Handle(http.MethodGet, pattern, h) }

// Post registers h for POST requests.
func (t *Table) Post(pattern string, h HandlerFunc) { t.Handle(http.MethodPost, pattern, h) }

// Any registers h for every method.
func (t *Table) Any(pattern string, h HandlerFunc) { t.Handle(AnyMethod, pattern, h) }

// NotFound replaces the handler used when nothing matches.
func (t *Table) NotFound(h HandlerFunc) {
	if h == nil {
		h = defaultNotFound
	}
	t.notFound = h
}

// Match finds the first route for method and the raw request path. The
// path may still carry a query string and the mount prefix.
func (t *Table) Match(method, rawPath string) (HandlerFunc, Params, bool) {
	segs := split(Clean(rawPath, t.mount))
	method = strings.ToUpper(method)

	for _, e := range t.routes {
		if !methodMatches(e.method, method) || len(e.segments) != len(segs) {
			continue
		}
		if params, ok := matchSegments(e.segments, segs); ok {
			return e.handler, params, true
		}
	}
	return nil, nil, false
}

// Dispatch runs the handler matching req, or the not-found handler.
func (t *Table) Dispatch(req *Request) *Response {
	h, params, ok := t.Match(req.Method, req.URL.Path)
	if !ok {
		req.Params = Params{}
		return t.notFound(req)
	}
	req.Params = params
	return h(req)
}

// ServeHTTP dispatches r with the session found in its context.
func (t *Table) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := &Request{Request: r}
	req.Session, req.State = session.FromContext(r.Context())
	resp := t.Dispatch(req)
	if resp == nil {
		resp = defaultNotFound(req)
	}
	resp.Write(w)
}

// Clean strips the query string and the mount prefix from path and
// normalizes slashes. The result always starts with "/" and has no
// trailing slash unless it is the root.
func Clean(path, mount string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = "/" + strings.Join(split(path), "/")

	mount = normalizeMount(mount)
	if mount != "" {
		if path == mount {
			return "/"
		}
		if strings.HasPrefix(path, mount+"/") {
			path = path[len(mount):]
		}
	}
	return path
}

// split breaks a path into its non-empty segments.
func split(path string) []string {
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

func normalizeMount(mount string) string {
	segs := split(mount)
	if len(segs) == 0 {
		return ""
	}
	return "/" + strings.Join(segs, "/")
}

func methodMatches(route, method string) bool {
	switch route {
	case AnyMethod, method:
		return true
	case http.MethodGet:
		return method == http.MethodHead
	}
	return false
}

func matchSegments(pattern, segs []string) (Params, bool) {
	params := Params{}
	for i, p := range pattern {
		if name, ok := strings.CutPrefix(p, ":"); ok {
			params[name] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	return params, true
}

func defaultNotFound(*Request) *Response {
	return Text(http.StatusNotFound, "404 Not Found")
}
