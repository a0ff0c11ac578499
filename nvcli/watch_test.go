package nvcli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"oss.terrastruct.com/cmdlog"
	"oss.terrastruct.com/xos"

	"oss.terrastruct.com/nestviz/lib/log"
	"oss.terrastruct.com/nestviz/lib/xmain"
	"oss.terrastruct.com/nestviz/nvgraph"
	"oss.terrastruct.com/nestviz/nvplugin"
)

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func TestWatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "graph.json")
	outputPath := filepath.Join(dir, "graph.layout.json")
	write := func(ids ...string) {
		var nodes []string
		for _, id := range ids {
			nodes = append(nodes, `"`+id+`": {"width": 10, "height": 10}`)
		}
		err := os.WriteFile(inputPath, []byte(`{"nodes": {`+strings.Join(nodes, ",")+`}}`), 0644)
		if err != nil {
			t.Fatal(err)
		}
	}
	write("a")

	env := xos.NewEnv(nil)
	ms := &xmain.State{
		Name:   "nestviz",
		Stdin:  &bytes.Buffer{},
		Stdout: nopWriteCloser{io.Discard},
		Stderr: nopWriteCloser{io.Discard},
		Env:    env,
		PWD:    dir,
	}
	ms.Log = cmdlog.Log(env, io.Discard)

	ctx, cancel := context.WithTimeout(log.WithTB(context.Background(), t), time.Minute)
	defer cancel()

	w, err := newWatcher(ctx, ms, watcherOpts{
		plugin:     &nvplugin.NVDagPlugin,
		host:       "localhost",
		port:       "0",
		inputPath:  inputPath,
		outputPath: outputPath,
	})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		done <- w.run()
	}()

	c, _, err := websocket.Dial(ctx, "ws://"+w.addr()+"/watch", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	next := func(nodes int) *watchResult {
		t.Helper()
		for {
			var res watchResult
			err := wsjson.Read(ctx, c, &res)
			if err != nil {
				t.Fatal(err)
			}
			if res.Err != "" {
				// An editor may be caught mid write.
				continue
			}
			var r nvgraph.Result
			err = json.Unmarshal(res.Result, &r)
			if err != nil {
				t.Fatal(err)
			}
			// Connecting may race the first pass so a stale result can arrive first.
			if len(r.Nodes) == nodes {
				return &res
			}
		}
	}

	first := next(1)
	write("a", "b")
	second := next(2)
	assert.Greater(t, second.Seq, first.Seq)

	resp, err := http.Get("http://" + w.addr() + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var served watchResult
	err = json.NewDecoder(resp.Body).Decode(&served)
	if err != nil {
		t.Fatal(err)
	}
	assert.GreaterOrEqual(t, served.Seq, second.Seq)

	b, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk nvgraph.Result
	err = json.Unmarshal(b, &onDisk)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, onDisk.Nodes, 2)

	w.cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Minute):
		t.Fatal("watcher did not shut down")
	}
}
