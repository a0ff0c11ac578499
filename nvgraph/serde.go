package nvgraph

import (
	"encoding/json"
)

// DeserializeGraph decodes a graph and fills in node and edge IDs from their map keys.
func DeserializeGraph(bytes []byte, g *Graph) error {
	err := json.Unmarshal(bytes, g)
	if err != nil {
		return err
	}
	if g.Nodes == nil {
		g.Nodes = make(map[string]*Node)
	}
	if g.Edges == nil {
		g.Edges = make(map[string]*Edge)
	}
	for id, n := range g.Nodes {
		if n == nil {
			n = &Node{}
			g.Nodes[id] = n
		}
		if n.ID == "" {
			n.ID = id
		}
	}
	for id, e := range g.Edges {
		if e == nil {
			e = &Edge{}
			g.Edges[id] = e
		}
		if e.ID == "" {
			e.ID = id
		}
	}
	return nil
}

func SerializeGraph(g *Graph) ([]byte, error) {
	return json.Marshal(g)
}

func DeserializeResult(bytes []byte, r *Result) error {
	return json.Unmarshal(bytes, r)
}

func SerializeResult(r *Result) ([]byte, error) {
	return json.Marshal(r)
}
