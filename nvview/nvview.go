// Package nvview decides when a viewer relays out its graph.
//
// A viewer renders nodes, measures them and reports the measured sizes back. Every size that
// changed by more than the resize tolerance opens a measurement which the viewer commits once
// the new size is applied. A layout pass starts only when no measurement is pending so that it
// sees a consistent set of sizes. Passes run one at a time. A pass requested while another runs
// waits in a single slot and a newer request replaces it. Passes are numbered and a result is
// only delivered if no newer pass was requested in the meantime.
package nvview

import (
	"context"
	"math"
	"sync"

	"cdr.dev/slog"

	"oss.terrastruct.com/nestviz/lib/log"
	"oss.terrastruct.com/nestviz/nvgraph"
)

type Opts struct {
	// ResizeTolerance is the largest change in width or height that does not count as a
	// resize.
	ResizeTolerance float64 `json:"resizeTolerance"`
}

var DefaultOpts = Opts{
	ResizeTolerance: 1,
}

type Controller struct {
	layout   nvgraph.LayoutGraph
	onResult func(*nvgraph.Result)
	opts     Opts

	mu      sync.Mutex
	graph   *nvgraph.Graph
	sizes   map[string]nvgraph.Size
	pending int
	seq     uint64
	// next is the pass waiting for the runner. running is set while the runner goroutine is
	// alive.
	next    *pass
	running bool

	passes sync.WaitGroup
}

type pass struct {
	ctx context.Context
	seq uint64
	g   *nvgraph.Graph
}

// New returns a Controller that runs layout and hands every current result to onResult.
func New(layout nvgraph.LayoutGraph, onResult func(*nvgraph.Result), opts *Opts) *Controller {
	if opts == nil {
		opts = &DefaultOpts
	}
	return &Controller{
		layout:   layout,
		onResult: onResult,
		opts:     *opts,
		sizes:    make(map[string]nvgraph.Size),
	}
}

// SetGraph replaces the graph and lays it out unless a measurement is pending.
func (c *Controller) SetGraph(ctx context.Context, g *nvgraph.Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graph = g
	if c.pending == 0 {
		c.startLocked(ctx)
	}
}

// Observe records the measured size of a node. It reports whether the size differs from the
// last recorded one by more than the tolerance, in which case the caller must Commit once.
func (c *Controller) Observe(id string, size nvgraph.Size) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.sizes[id]
	if ok &&
		math.Abs(prev.Width-size.Width) <= c.opts.ResizeTolerance &&
		math.Abs(prev.Height-size.Height) <= c.opts.ResizeTolerance {
		return false
	}
	c.sizes[id] = size
	c.pending++
	return true
}

// Commit closes a measurement opened by Observe. The last commit starts a layout pass.
func (c *Controller) Commit(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == 0 {
		log.Warn(ctx, "commit without a pending measurement")
		return
	}
	c.pending--
	if c.pending == 0 {
		c.startLocked(ctx)
	}
}

// Pending returns the number of open measurements.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Wait blocks until every requested pass has finished.
func (c *Controller) Wait() {
	c.passes.Wait()
}

func (c *Controller) startLocked(ctx context.Context) {
	if c.graph == nil {
		return
	}
	c.seq++

	g, err := c.snapshotLocked()
	if err != nil {
		log.Warn(ctx, "failed to snapshot graph", slog.F("seq", c.seq), slog.Error(err))
		return
	}
	if c.next != nil {
		log.Debug(ctx, "dropping queued layout", slog.F("seq", c.next.seq))
	}
	c.next = &pass{ctx: ctx, seq: c.seq, g: g}
	if !c.running {
		c.running = true
		c.passes.Add(1)
		go c.run()
	}
}

// run lays out queued passes until none is left.
func (c *Controller) run() {
	defer c.passes.Done()
	for {
		c.mu.Lock()
		p := c.next
		c.next = nil
		if p == nil {
			c.running = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		res, err := c.layout(p.ctx, p.g)
		if err != nil {
			log.Warn(p.ctx, "layout failed", slog.F("seq", p.seq), slog.Error(err))
			continue
		}

		c.mu.Lock()
		current := p.seq == c.seq
		c.mu.Unlock()
		if !current {
			log.Debug(p.ctx, "discarding superseded layout", slog.F("seq", p.seq))
			continue
		}
		c.onResult(res)
	}
}

// snapshotLocked deep copies the graph with the observed sizes as size hints so that later
// changes do not reach a running pass.
func (c *Controller) snapshotLocked() (*nvgraph.Graph, error) {
	b, err := nvgraph.SerializeGraph(c.graph)
	if err != nil {
		return nil, err
	}
	var g nvgraph.Graph
	err = nvgraph.DeserializeGraph(b, &g)
	if err != nil {
		return nil, err
	}
	if g.Sizes == nil {
		g.Sizes = make(map[string]nvgraph.Size, len(c.sizes))
	}
	for id, s := range c.sizes {
		g.Sizes[id] = s
	}
	return &g, nil
}
