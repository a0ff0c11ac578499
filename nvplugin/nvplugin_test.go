package nvplugin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"oss.terrastruct.com/cmdlog"
	"oss.terrastruct.com/xos"

	"oss.terrastruct.com/nestviz/lib/go2"
	"oss.terrastruct.com/nestviz/lib/log"
	"oss.terrastruct.com/nestviz/lib/xmain"
	"oss.terrastruct.com/nestviz/nvgraph"
	"oss.terrastruct.com/nestviz/nvlayouts/nvdag"
	"oss.terrastruct.com/nestviz/nvplugin"
)

const twoNodes = `{
	"nodes": {
		"a": {"width": 10, "height": 10},
		"b": {"width": 10, "height": 10}
	},
	"edges": {
		"ab": {"startId": "a", "endId": "b"}
	}
}`

type nopCloser struct {
	*bytes.Buffer
}

func (nopCloser) Close() error { return nil }

func newState(stdin string, args ...string) (*xmain.State, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	env := xos.NewEnv(nil)
	ms := &xmain.State{
		Name:   "nestviz-plugin-nvdag",
		Stdin:  strings.NewReader(stdin),
		Stdout: nopCloser{stdout},
		Stderr: nopCloser{&bytes.Buffer{}},
		Env:    env,
	}
	ms.Log = cmdlog.Log(env, io.Discard)
	ms.Opts = xmain.NewOpts(env, ms.Log, args)
	return ms, stdout
}

func TestServeInfo(t *testing.T) {
	t.Parallel()

	p := nvplugin.NVDagPlugin
	ctx := log.WithTB(context.Background(), t)
	ms, stdout := newState("", "info")
	err := nvplugin.Serve(&p)(ctx, ms)
	if err != nil {
		t.Fatal(err)
	}

	var info nvplugin.PluginInfo
	err = json.Unmarshal(stdout.Bytes(), &info)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "nvdag", info.Name)
	assert.Equal(t, "bundled", info.Type)
}

func TestServeFlags(t *testing.T) {
	t.Parallel()

	p := nvplugin.NVDagPlugin
	ctx := log.WithTB(context.Background(), t)
	ms, stdout := newState("", "flags")
	err := nvplugin.Serve(&p)(ctx, ms)
	if err != nil {
		t.Fatal(err)
	}

	var flags []nvplugin.PluginSpecificFlag
	err = json.Unmarshal(stdout.Bytes(), &flags)
	if err != nil {
		t.Fatal(err)
	}
	var tags []string
	for _, f := range flags {
		tags = append(tags, f.Tag)
	}
	assert.Equal(t, []string{"unconstrainedIterations", "constrainedIterations", "linkLength"}, tags)
}

func TestServeLayout(t *testing.T) {
	t.Parallel()

	p := nvplugin.NVDagPlugin
	ctx := log.WithTB(context.Background(), t)
	ms, stdout := newState(twoNodes, "--nvdag-link-length=80", "layout")
	err := nvplugin.Serve(&p)(ctx, ms)
	if err != nil {
		t.Fatal(err)
	}

	var res nvgraph.Result
	err = nvgraph.DeserializeResult(stdout.Bytes(), &res)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"a", "b"}, go2.SortedKeys(res.Nodes))
	a, b := res.Nodes["a"], res.Nodes["b"]
	assert.GreaterOrEqual(t, b.Y+1e-6, a.Y+a.Height+nvgraph.DefaultFlowSpacing)
}

func TestServeUsage(t *testing.T) {
	t.Parallel()

	p := nvplugin.NVDagPlugin
	ctx := log.WithTB(context.Background(), t)

	ms, _ := newState("")
	err := nvplugin.Serve(&p)(ctx, ms)
	var uerr xmain.UsageError
	assert.True(t, errors.As(err, &uerr), "unexpected error: %v", err)

	ms, _ = newState("", "render")
	err = nvplugin.Serve(&p)(ctx, ms)
	assert.True(t, errors.As(err, &uerr), "unexpected error: %v", err)
	assert.Contains(t, err.Error(), "unrecognized command: render")
}

func TestFindPlugin(t *testing.T) {
	t.Parallel()

	ctx := log.WithTB(context.Background(), t)
	p, err := nvplugin.FindPlugin(ctx, []nvplugin.Plugin{&nvplugin.NVDagPlugin}, "NVDAG")
	if err != nil {
		t.Fatal(err)
	}
	info, err := p.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "nvdag", info.Name)

	_, err = nvplugin.FindPlugin(ctx, []nvplugin.Plugin{&nvplugin.NVDagPlugin}, "grid")
	assert.Error(t, err)
}

func request(t *testing.T, seq uint64, graph string) []byte {
	t.Helper()
	b, err := json.Marshal(nvplugin.Request{Seq: seq, Graph: json.RawMessage(graph)})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func receive(t *testing.T, w *nvplugin.Worker) nvplugin.Response {
	t.Helper()
	select {
	case b := <-w.Responses():
		var resp nvplugin.Response
		err := json.Unmarshal(b, &resp)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	case <-time.After(time.Minute):
		t.Fatal("timed out waiting for a layout response")
	}
	return nvplugin.Response{}
}

func TestWorker(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(log.WithTB(context.Background(), t))
	defer cancel()
	w := nvplugin.NewWorker(ctx, nvdag.DefaultLayout)

	w.Post(request(t, 1, twoNodes))
	resp := receive(t, w)
	assert.Equal(t, uint64(1), resp.Seq)
	assert.Equal(t, "", resp.Error)
	if assert.NotNil(t, resp.Result) {
		assert.Len(t, resp.Result.Nodes, 2)
		assert.Len(t, resp.Result.Edges, 1)
	}

	w.Post(request(t, 2, `{"nodes": {}}`))
	resp = receive(t, w)
	assert.Equal(t, uint64(2), resp.Seq)
	assert.Nil(t, resp.Result)
	assert.Contains(t, resp.Error, nvdag.ErrEmptyGraph.Error())

	w.Post([]byte(`not json`))
	resp = receive(t, w)
	assert.Equal(t, uint64(0), resp.Seq)
	assert.NotEqual(t, "", resp.Error)

	cancel()
	<-w.Done()
}

func TestWorkerLatestWins(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	layout := func(ctx context.Context, g *nvgraph.Graph) (*nvgraph.Result, error) {
		started <- struct{}{}
		<-release
		return &nvgraph.Result{Width: float64(len(g.Nodes))}, nil
	}

	ctx, cancel := context.WithCancel(log.WithTB(context.Background(), t))
	defer cancel()
	w := nvplugin.NewWorker(ctx, layout)

	w.Post(request(t, 1, `{"nodes": {"a": {}}}`))
	<-started
	// Both arrive while the first pass runs; only the latest is laid out.
	w.Post(request(t, 2, `{"nodes": {"a": {}, "b": {}}}`))
	w.Post(request(t, 3, `{"nodes": {"a": {}, "b": {}, "c": {}}}`))
	release <- struct{}{}

	resp := receive(t, w)
	assert.Equal(t, uint64(1), resp.Seq)
	assert.Equal(t, 1., resp.Result.Width)

	<-started
	release <- struct{}{}
	resp = receive(t, w)
	assert.Equal(t, uint64(3), resp.Seq)
	assert.Equal(t, 3., resp.Result.Width)

	select {
	case <-started:
		t.Fatal("superseded request was laid out")
	case <-time.After(50 * time.Millisecond):
	}
}
