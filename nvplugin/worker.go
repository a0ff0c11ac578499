package nvplugin

import (
	"context"
	"encoding/json"
	"sync"

	"cdr.dev/slog"

	"oss.terrastruct.com/nestviz/lib/log"
	"oss.terrastruct.com/nestviz/nvgraph"
)

// Request is the message posted to a Worker.
type Request struct {
	Seq   uint64          `json:"seq"`
	Graph json.RawMessage `json:"graph"`
}

// Response is the message a Worker sends back for a Request. Exactly one of Result and
// Error is set.
type Response struct {
	Seq    uint64          `json:"seq"`
	Result *nvgraph.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Worker runs layout passes on a background goroutine. Requests and responses are
// serialized messages so nothing is shared with the caller.
//
// One pass runs at a time and a started pass always completes. A request posted while a
// pass is running replaces any request still waiting, so only the latest one runs next.
type Worker struct {
	layout nvgraph.LayoutGraph

	mu      sync.Mutex
	pending []byte

	wake      chan struct{}
	responses chan []byte
	done      chan struct{}
}

// NewWorker starts a worker that lays out graphs with layout until ctx is canceled.
func NewWorker(ctx context.Context, layout nvgraph.LayoutGraph) *Worker {
	w := &Worker{
		layout:    layout,
		wake:      make(chan struct{}, 1),
		responses: make(chan []byte),
		done:      make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

// Post queues a serialized Request.
func (w *Worker) Post(msg []byte) {
	w.mu.Lock()
	w.pending = msg
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Responses returns the channel of serialized Responses. It is closed once the worker
// stops.
func (w *Worker) Responses() <-chan []byte {
	return w.responses
}

// Done is closed once the worker has stopped.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) take() ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := w.pending
	w.pending = nil
	return msg, msg != nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.responses)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}

		msg, ok := w.take()
		if !ok {
			continue
		}
		resp := w.handle(ctx, msg)
		b, err := json.Marshal(resp)
		if err != nil {
			log.Warn(ctx, "failed to marshal layout response", slog.F("seq", resp.Seq), slog.Error(err))
			continue
		}

		select {
		case <-ctx.Done():
			return
		case w.responses <- b:
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg []byte) *Response {
	var req Request
	err := json.Unmarshal(msg, &req)
	if err != nil {
		log.Warn(ctx, "invalid layout request", slog.Error(err))
		return &Response{Error: err.Error()}
	}

	var g nvgraph.Graph
	err = nvgraph.DeserializeGraph(req.Graph, &g)
	if err != nil {
		log.Warn(ctx, "invalid graph in layout request", slog.F("seq", req.Seq), slog.Error(err))
		return &Response{Seq: req.Seq, Error: err.Error()}
	}

	res, err := w.layout(ctx, &g)
	if err != nil {
		log.Warn(ctx, "layout failed", slog.F("seq", req.Seq), slog.Error(err))
		return &Response{Seq: req.Seq, Error: err.Error()}
	}
	return &Response{Seq: req.Seq, Result: res}
}
