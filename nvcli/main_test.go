package nvcli_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"oss.terrastruct.com/cmdlog"
	"oss.terrastruct.com/xos"

	"oss.terrastruct.com/nestviz/lib/log"
	"oss.terrastruct.com/nestviz/lib/version"
	"oss.terrastruct.com/nestviz/lib/xmain"
	"oss.terrastruct.com/nestviz/nvcli"
	"oss.terrastruct.com/nestviz/nvgraph"
)

const graphJSON = `{
	"nodes": {
		"a": {"width": 20, "height": 10},
		"b": {"width": 20, "height": 10}
	},
	"edges": {
		"ab": {"source": {"id": "a"}, "target": {"id": "b"}}
	}
}`

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func run(t *testing.T, dir, stdin string, args ...string) (string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	env := xos.NewEnv(nil)
	ms := &xmain.State{
		Name:   "nestviz",
		Stdin:  strings.NewReader(stdin),
		Stdout: nopCloser{stdout},
		Stderr: nopCloser{io.Discard},
		Env:    env,
		PWD:    dir,
	}
	ms.Log = cmdlog.Log(env, io.Discard)
	ms.Opts = xmain.NewOpts(env, ms.Log, args)

	ctx := log.WithTB(context.Background(), t)
	err := nvcli.Run(ctx, ms)
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, data string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0644)
	if err != nil {
		t.Fatal(err)
	}
}

func readResult(t *testing.T, b []byte) *nvgraph.Result {
	t.Helper()
	var res nvgraph.Result
	err := nvgraph.DeserializeResult(b, &res)
	if err != nil {
		t.Fatalf("%v: %s", err, b)
	}
	return &res
}

func TestRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "graph.json", graphJSON)

	_, err := run(t, dir, "", "graph.json")
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "graph.layout.json"))
	if err != nil {
		t.Fatal(err)
	}
	res := readResult(t, b)
	assert.Len(t, res.Nodes, 2)
	assert.Len(t, res.Edges, 1)
	a, bl := res.Nodes["a"], res.Nodes["b"]
	assert.GreaterOrEqual(t, bl.Y+1e-6, a.Y+a.Height+nvgraph.DefaultFlowSpacing)
}

func TestRunOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "graph.json", graphJSON)

	_, err := run(t, dir, "", "--flow-direction=east", "--flow-spacing=50", "--padding=25", "graph.json", "out/layout.json")
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "out", "layout.json"))
	if err != nil {
		t.Fatal(err)
	}
	res := readResult(t, b)
	a, bl := res.Nodes["a"], res.Nodes["b"]
	assert.GreaterOrEqual(t, bl.X+1e-6, a.X+a.Width+50)
	for _, nl := range res.Nodes {
		assert.GreaterOrEqual(t, nl.X+1e-6, 25.)
		assert.GreaterOrEqual(t, nl.Y+1e-6, 25.)
	}
}

func TestRunStdio(t *testing.T) {
	t.Parallel()

	stdout, err := run(t, t.TempDir(), graphJSON, "-")
	if err != nil {
		t.Fatal(err)
	}
	res := readResult(t, []byte(stdout))
	assert.Len(t, res.Nodes, 2)
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "graph.json", graphJSON)
	writeFile(t, dir, "empty.json", `{"nodes": {}}`)

	var uerr xmain.UsageError
	_, err := run(t, dir, "", "--flow-direction=up", "graph.json")
	assert.True(t, errors.As(err, &uerr), "unexpected error: %v", err)

	_, err = run(t, dir, "", "--layout=grid", "graph.json")
	assert.True(t, errors.As(err, &uerr), "unexpected error: %v", err)

	_, err = run(t, dir, "", "a", "b", "c")
	assert.True(t, errors.As(err, &uerr), "unexpected error: %v", err)

	_, err = run(t, dir, "", "--watch", "-")
	assert.True(t, errors.As(err, &uerr), "unexpected error: %v", err)

	_, err = run(t, dir, "", "empty.json")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "graph has no visible nodes")

	_, err = run(t, dir, "", "missing.json")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "graph.json", graphJSON)
	writeFile(t, dir, "cycle.json", `{"nodes": {"a": {"children": ["b"]}, "b": {"children": ["a"]}}}`)

	_, err := run(t, dir, "", "validate", "graph.json")
	assert.NoError(t, err)

	_, err = run(t, dir, "", "validate", "cycle.json")
	assert.True(t, errors.Is(err, nvgraph.ErrContainmentCycle), "unexpected error: %v", err)

	_, err = run(t, dir, "", "validate")
	var uerr xmain.UsageError
	assert.True(t, errors.As(err, &uerr), "unexpected error: %v", err)
}

func TestLayoutSubcommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stdout, err := run(t, dir, "", "layout")
	if err != nil {
		t.Fatal(err)
	}
	assert.Contains(t, stdout, "nvdag (bundled)")

	stdout, err = run(t, dir, "", "layout", "nvdag")
	if err != nil {
		t.Fatal(err)
	}
	assert.Contains(t, stdout, "--nvdag-link-length")

	stdout, err = run(t, dir, graphJSON, "layout", "nvdag", "layout")
	if err != nil {
		t.Fatal(err)
	}
	res := readResult(t, []byte(stdout))
	assert.Len(t, res.Nodes, 2)
}

func TestHelpAndVersion(t *testing.T) {
	t.Parallel()

	stdout, err := run(t, t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	assert.Contains(t, stdout, "--flow-direction")
	assert.Contains(t, stdout, "$NESTVIZ_NODE_MARGIN")

	stdout, err = run(t, t.TempDir(), "", "version")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, version.Version+"\n", stdout)
}
