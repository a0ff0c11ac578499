// Package nvplugin lets the nestviz CLI run layout engines bundled with the binary or
// provided by external plugin binaries.
//
// Binary plugins are stored in $PATH with the prefix nestviz-plugin-*. i.e the binary for
// a plugin named grid would be nestviz-plugin-grid. See ListPlugins below.
package nvplugin

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"oss.terrastruct.com/nestviz/lib/xexec"
	"oss.terrastruct.com/nestviz/lib/xmain"
	"oss.terrastruct.com/nestviz/nvgraph"
)

// plugins contains the bundled plugins.
var plugins []Plugin

type PluginSpecificFlag struct {
	Name    string      `json:"name"`
	Type    string      `json:"type"`
	Default interface{} `json:"default"`
	Usage   string      `json:"usage"`
	// Must match the json tag of the option in the plugin's opts.
	Tag string `json:"tag"`
}

func (f *PluginSpecificFlag) AddToOpts(opts *xmain.Opts) {
	switch f.Type {
	case "string":
		def, _ := f.Default.(string)
		opts.String("", f.Name, "", def, f.Usage)
	case "int64":
		var val int64
		switch def := f.Default.(type) {
		case int64:
			val = def
		case int:
			val = int64(def)
		case float64:
			// json unmarshals numbers to float64
			val = int64(def)
		}
		opts.Int64("", f.Name, "", val, f.Usage)
	case "float64":
		var val float64
		switch def := f.Default.(type) {
		case float64:
			val = def
		case int64:
			val = float64(def)
		case int:
			val = float64(def)
		}
		opts.Float64("", f.Name, "", val, f.Usage)
	}
}

type Plugin interface {
	// Info returns the current info information of the plugin.
	Info(context.Context) (*PluginInfo, error)

	Flags(context.Context) ([]PluginSpecificFlag, error)

	HydrateOpts([]byte) error

	// Layout lays out the input graph.
	Layout(context.Context, *nvgraph.Graph) (*nvgraph.Result, error)
}

// PluginInfo is the current info information of a plugin.
// note: The two fields Type and Path are not set by the plugin
// itself but only in ListPlugins.
type PluginInfo struct {
	Name      string `json:"name"`
	ShortHelp string `json:"shortHelp"`
	LongHelp  string `json:"longHelp"`

	// bundled | binary
	Type string `json:"type"`
	// If Type == binary then this contains the absolute path to the binary.
	Path string `json:"path"`
}

const binaryPrefix = "nestviz-plugin-"

// ListPlugins returns the bundled plugins followed by every binary plugin on $PATH whose
// name is not already taken.
func ListPlugins(ctx context.Context) ([]Plugin, error) {
	var ps []Plugin
	ps = append(ps, plugins...)

	matches, err := xexec.SearchPath(binaryPrefix)
	if err != nil {
		return nil, err
	}
BINARY_PLUGINS_LOOP:
	for _, path := range matches {
		p := &ExecPlugin{Path: path}
		info, err := p.Info(ctx)
		if err != nil {
			return nil, err
		}
		for _, p2 := range ps {
			info2, err := p2.Info(ctx)
			if err != nil {
				return nil, err
			}
			if info.Name == info2.Name {
				continue BINARY_PLUGINS_LOOP
			}
		}
		ps = append(ps, p)
	}
	return ps, nil
}

func ListPluginInfos(ctx context.Context, ps []Plugin) ([]*PluginInfo, error) {
	var infos []*PluginInfo
	for _, p := range ps {
		info, err := p.Info(ctx)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// FindPlugin finds the plugin named name, ignoring case.
func FindPlugin(ctx context.Context, ps []Plugin, name string) (Plugin, error) {
	for _, p := range ps {
		info, err := p.Info(ctx)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(info.Name, name) {
			return p, nil
		}
	}
	return nil, exec.ErrNotFound
}

func ListPluginFlags(ctx context.Context, ps []Plugin) ([]PluginSpecificFlag, error) {
	var out []PluginSpecificFlag
	for _, p := range ps {
		flags, err := p.Flags(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, flags...)
	}
	return out, nil
}

// HydratePluginOpts reads the plugin's flags out of ms and passes them to the plugin as a
// JSON object keyed by each flag's tag.
func HydratePluginOpts(ctx context.Context, ms *xmain.State, plugin Plugin) error {
	opts := make(map[string]interface{})
	flags, err := plugin.Flags(ctx)
	if err != nil {
		return err
	}
	for _, f := range flags {
		switch f.Type {
		case "string":
			val, _ := ms.Opts.Flags.GetString(f.Name)
			opts[f.Tag] = val
		case "int64":
			val, _ := ms.Opts.Flags.GetInt64(f.Name)
			opts[f.Tag] = val
		case "float64":
			val, _ := ms.Opts.Flags.GetFloat64(f.Name)
			opts[f.Tag] = val
		}
	}

	b, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	return plugin.HydrateOpts(b)
}
