package nvgraph

import (
	"fmt"

	"oss.terrastruct.com/nestviz/lib/geo"
	"oss.terrastruct.com/nestviz/lib/go2"
)

const (
	DefaultFlowDirection = South
	DefaultFlowSpacing   = 30.
	DefaultNodeMargin    = 10.
	DefaultEdgeMargin    = 10.
	DefaultGroupPadding  = 10.
	DefaultPortLength    = 8.
	DefaultArrowGap      = 4.
	DefaultPadding       = 10.
)

// Alignment forces the listed nodes to share a center coordinate on Axis.
type Alignment struct {
	// Axis is "x" (shared center x, a column) or "y" (shared center y, a row).
	Axis  string   `json:"axis"`
	Nodes []string `json:"nodes"`
}

func (a Alignment) GeoAxis() (geo.Axis, error) {
	switch a.Axis {
	case "x":
		return geo.AxisX, nil
	case "y":
		return geo.AxisY, nil
	}
	return 0, fmt.Errorf("invalid alignment axis %q", a.Axis)
}

// Config is the user facing layout configuration. Every field is optional.
type Config struct {
	Alignments    []Alignment `json:"alignments,omitempty"`
	FlowDirection *Direction  `json:"flowDirection,omitempty"`
	AlignChildren *bool       `json:"alignChildren,omitempty"`

	FlowSpacing  *float64 `json:"flowSpacing,omitempty"`
	NodeMargin   *float64 `json:"nodeMargin,omitempty"`
	EdgeMargin   *float64 `json:"edgeMargin,omitempty"`
	GroupPadding *float64 `json:"groupPadding,omitempty"`
	PortLength   *float64 `json:"portLength,omitempty"`
	ArrowGap     *float64 `json:"arrowGap,omitempty"`
	Padding      *float64 `json:"padding,omitempty"`
}

// Settings is Config with every default applied.
type Settings struct {
	Alignments    []Alignment
	FlowDirection Direction
	AlignChildren bool

	FlowSpacing  float64
	NodeMargin   float64
	EdgeMargin   float64
	GroupPadding float64
	PortLength   float64
	ArrowGap     float64
	Padding      float64
}

// Resolve applies defaults to c. A nil Config resolves to all defaults.
func (c *Config) Resolve() Settings {
	if c == nil {
		c = &Config{}
	}
	return Settings{
		Alignments:    c.Alignments,
		FlowDirection: go2.Deref(c.FlowDirection, DefaultFlowDirection),
		AlignChildren: go2.Deref(c.AlignChildren, false),
		FlowSpacing:   go2.Deref(c.FlowSpacing, DefaultFlowSpacing),
		NodeMargin:    go2.Deref(c.NodeMargin, DefaultNodeMargin),
		EdgeMargin:    go2.Deref(c.EdgeMargin, DefaultEdgeMargin),
		GroupPadding:  go2.Deref(c.GroupPadding, DefaultGroupPadding),
		PortLength:    go2.Deref(c.PortLength, DefaultPortLength),
		ArrowGap:      go2.Deref(c.ArrowGap, DefaultArrowGap),
		Padding:       go2.Deref(c.Padding, DefaultPadding),
	}
}
