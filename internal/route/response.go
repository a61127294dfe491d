package route

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Response is a handler's result: status, headers, cookies and body.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	cookies []*http.Cookie
}

// NewResponse creates an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{Status: status, Header: http.Header{}}
}

// SetCookie queues a Set-Cookie header. It lets a Response stand in as a
// session.CookieWriter.
func (r *Response) SetCookie(c *http.Cookie) {
	r.cookies = append(r.cookies, c)
}

// Cookies returns the cookies queued so far.
func (r *Response) Cookies() []*http.Cookie { return r.cookies }

// Write sends the response to w.
func (r *Response) Write(w http.ResponseWriter) {
	h := w.Header()
	for k, vs := range r.Header {
		h[k] = vs
	}
	for _, c := range r.cookies {
		http.SetCookie(w, c)
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(r.Body) > 0 {
		w.Write(r.Body)
	}
}

// Text returns a plain-text response.
func Text(status int, body string) *Response {
	r := NewResponse(status)
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	r.Body = []byte(body)
	return r
}

// HTML returns an HTML response.
func HTML(status int, body []byte) *Response {
	r := NewResponse(status)
	r.Header.Set("Content-Type", "text/html; charset=utf-8")
	r.Body = body
	return r
}

// JSON returns v encoded as JSON. An encoding failure becomes a 500.
func JSON(status int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("json encode failed", "error", err)
		return Text(http.StatusInternalServerError, "Internal Server Error")
	}
	r := NewResponse(status)
	r.Header.Set("Content-Type", "application/json")
	r.Body = body
	return r
}

// Redirect returns a 303 See Other to location.
func Redirect(location string) *Response {
	r := NewResponse(http.StatusSeeOther)
	r.Header.Set("Location", location)
	return r
}
