package nvroute

import (
	"container/heap"
)

type orientation int

const (
	horizontal orientation = iota
	vertical
)

type gridEdge struct {
	to     int
	weight float64
	orient orientation
}

type state struct {
	node   int
	length float64
	bends  int
	orient orientation
}

// less orders states by length and then by bends.
func (s state) less(o state) bool {
	if s.length != o.length {
		return s.length < o.length
	}
	return s.bends < o.bends
}

type stateKey struct {
	node   int
	orient orientation
}

// shortestPath runs Dijkstra over (length, bends) from src to dst. It returns the node path
// including both ends, or nil when dst is unreachable.
func shortestPath(adj [][]gridEdge, src, dst int) []int {
	if src == dst {
		return []int{src}
	}

	best := make(map[stateKey]state)
	parent := make(map[stateKey]stateKey)
	done := make(map[stateKey]bool)

	pq := &statePQ{}
	for _, o := range []orientation{horizontal, vertical} {
		s := state{node: src, orient: o}
		best[stateKey{src, o}] = s
		heap.Push(pq, s)
	}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(state)
		curKey := stateKey{cur.node, cur.orient}
		if done[curKey] {
			continue
		}
		done[curKey] = true

		if cur.node == dst {
			path := []int{dst}
			for k := curKey; k.node != src; {
				k = parent[k]
				path = append(path, k.node)
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}

		for _, e := range adj[cur.node] {
			next := state{
				node:   e.to,
				length: cur.length + e.weight,
				bends:  cur.bends,
				orient: e.orient,
			}
			if cur.node != src && e.orient != cur.orient {
				next.bends++
			}
			key := stateKey{e.to, e.orient}
			if done[key] {
				continue
			}
			if b, ok := best[key]; ok && !next.less(b) {
				continue
			}
			best[key] = next
			parent[key] = curKey
			heap.Push(pq, next)
		}
	}
	return nil
}

type statePQ []state

func (pq statePQ) Len() int           { return len(pq) }
func (pq statePQ) Less(i, j int) bool { return pq[i].less(pq[j]) }
func (pq statePQ) Swap(i, j int)      { pq[i], pq[j] = pq[j], pq[i] }

func (pq *statePQ) Push(x interface{}) {
	*pq = append(*pq, x.(state))
}

func (pq *statePQ) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
