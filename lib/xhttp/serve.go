package xhttp

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/text/message"

	"oss.terrastruct.com/cmdlog"
	"oss.terrastruct.com/xcontext"
)

// recorder notes the status and size of a response. It keeps http.Hijacker reachable for
// websocket upgrades.
type recorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (rec *recorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(p)
	rec.size += n
	return n, err
}

func (rec *recorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T cannot be hijacked", rec.ResponseWriter)
	}
	rec.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Logged logs one line per request, leveled by its status.
func Logged(clog *cmdlog.Logger, next http.Handler) http.Handler {
	p := message.NewPrinter(message.MatchLanguage("en"))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &recorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)
		dur := time.Since(start)

		var l *log.Logger
		switch {
		case rec.status == 0:
			clog.Warn.Printf("%s %s %v: no response", r.Method, r.URL, dur)
			return
		case rec.status == http.StatusSwitchingProtocols:
			clog.Info.Printf("%s %s %v: upgraded", r.Method, r.URL, dur)
			return
		case rec.status < 300:
			l = clog.Success
		case rec.status < 500:
			l = clog.Warn
		default:
			l = clog.Error
		}
		l.Printf("%s %s %d %sB %v", r.Method, r.URL, rec.status, p.Sprint(rec.size), dur)
	})
}

// Serve serves h on l until ctx is done and then drains open requests for at most
// shutdownTimeout. Server errors go to errLog.
func Serve(ctx context.Context, l net.Listener, h http.Handler, errLog *log.Logger, shutdownTimeout time.Duration) error {
	s := &http.Server{
		Handler:        http.MaxBytesHandler(h, 1<<20),
		MaxHeaderBytes: 1 << 18,
		ReadTimeout:    time.Minute,
		IdleTimeout:    time.Hour,
		ErrorLog:       errLog,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(l)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		ctx, cancel := context.WithTimeout(xcontext.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.Shutdown(ctx)
	}
}
