// Package xhttp serves the JSON endpoints of the nestviz watch server.
package xhttp

import (
	"errors"
	"fmt"
	"net/http"

	"oss.terrastruct.com/cmdlog"
	"oss.terrastruct.com/xjson"
)

// Problem is a handler error answered with Code and {"error": Message}.
type Problem struct {
	Code    int
	Message string
}

// Fail returns a Problem whose message is also shown to the client.
func Fail(code int, format string, v ...interface{}) error {
	return &Problem{Code: code, Message: fmt.Sprintf(format, v...)}
}

func (p *Problem) Error() string {
	return fmt.Sprintf("%d %s: %s", p.Code, http.StatusText(p.Code), p.Message)
}

// Handle adapts fn into an http.Handler. Errors that are not a Problem are logged and
// answered with a bare 500.
func Handle(clog *cmdlog.Logger, fn func(http.ResponseWriter, *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		var p *Problem
		if !errors.As(err, &p) {
			clog.Error.Printf("%s %s: %v", r.Method, r.URL.Path, err)
			p = &Problem{Code: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError)}
		}
		if rec, ok := w.(*recorder); ok && rec.status != 0 {
			// Already answered, possibly with an upgrade.
			clog.Warn.Printf("%s %s: %v after response", r.Method, r.URL.Path, err)
			return
		}
		WriteJSON(w, p.Code, map[string]string{"error": p.Message})
	})
}

// WriteJSON answers with v encoded as indented JSON.
func WriteJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(xjson.MarshalIndent(v) + "\n"))
}
