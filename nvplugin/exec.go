package nvplugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"oss.terrastruct.com/xdefer"

	"oss.terrastruct.com/nestviz/nvgraph"
)

// ExecPlugin uses the binary at Path with the plugin protocol to implement the Plugin
// interface.
//
// The plugin protocol works as follows.
//
// Info
//  1. The binary is invoked with info as the first argument.
//  2. The stdout of the binary is unmarshalled into PluginInfo.
//
// Flags
//  1. The binary is invoked with flags as the first argument.
//  2. The stdout of the binary is unmarshalled into []PluginSpecificFlag.
//
// Layout
//  1. The binary is invoked with layout as the first argument, the hydrated flags after it
//     and the json marshalled nvgraph.Graph on stdin.
//  2. The stdout of the binary is unmarshalled into a nvgraph.Result.
//
// If any errors occur the binary will exit with a non zero status code and write
// the error to stderr.
type ExecPlugin struct {
	Path string

	args []string
}

func (p *ExecPlugin) Info(ctx context.Context) (_ *PluginInfo, err error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()
	cmd := exec.CommandContext(ctx, p.Path, "info")
	defer xdefer.Errorf(&err, "failed to run %v", cmd.Args)

	stdout, err := run(cmd, nil)
	if err != nil {
		return nil, err
	}

	var info PluginInfo
	err = json.Unmarshal(stdout, &info)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal json: %w", err)
	}
	info.Type = "binary"
	info.Path = p.Path
	return &info, nil
}

func (p *ExecPlugin) Flags(ctx context.Context) (_ []PluginSpecificFlag, err error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()
	cmd := exec.CommandContext(ctx, p.Path, "flags")
	defer xdefer.Errorf(&err, "failed to run %v", cmd.Args)

	stdout, err := run(cmd, nil)
	if err != nil {
		return nil, err
	}

	var flags []PluginSpecificFlag
	err = json.Unmarshal(stdout, &flags)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal json: %w", err)
	}
	return flags, nil
}

// HydrateOpts turns opts back into the --name=value arguments of a layout invocation.
func (p *ExecPlugin) HydrateOpts(opts []byte) error {
	if opts == nil {
		return nil
	}
	var byTag map[string]interface{}
	err := json.Unmarshal(opts, &byTag)
	if err != nil {
		return err
	}
	flags, err := p.Flags(context.Background())
	if err != nil {
		return err
	}
	p.args = nil
	for _, f := range flags {
		if v, ok := byTag[f.Tag]; ok {
			p.args = append(p.args, fmt.Sprintf("--%s=%v", f.Name, v))
		}
	}
	return nil
}

func (p *ExecPlugin) Layout(ctx context.Context, g *nvgraph.Graph) (_ *nvgraph.Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	in, err := nvgraph.SerializeGraph(g)
	if err != nil {
		return nil, err
	}

	args := append(append([]string{}, p.args...), "layout")
	cmd := exec.CommandContext(ctx, p.Path, args...)
	defer xdefer.Errorf(&err, "failed to run %v", cmd.Args)

	stdout, err := run(cmd, in)
	if err != nil {
		return nil, err
	}
	var res nvgraph.Result
	err = nvgraph.DeserializeResult(stdout, &res)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal json: %w", err)
	}
	return &res, nil
}

func run(cmd *exec.Cmd, stdin []byte) ([]byte, error) {
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	stdout, err := cmd.Output()
	if err != nil {
		ee := &exec.ExitError{}
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("%v\nstderr:\n%s", ee, ee.Stderr)
		}
		return nil, err
	}
	return stdout, nil
}
