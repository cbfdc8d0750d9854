package navigation

import (
	"container/heap"
	"math"

	"github.com/rotisserie/eris"
)

var (
	// ErrNoPath is returned when the goal cannot be reached
	ErrNoPath = eris.New("no path")
	// ErrOutOfGrid is returned for endpoints outside the grid
	ErrOutOfGrid = eris.New("cell outside navigation grid")
)

type navNeighbor struct {
	col      int
	row      int
	cost     float64
	diagonal bool
}

var navNeighborOffsets = [...]navNeighbor{
	{col: 0, row: -1, cost: 1, diagonal: false},
	{col: 1, row: 0, cost: 1, diagonal: false},
	{col: 0, row: 1, cost: 1, diagonal: false},
	{col: -1, row: 0, cost: 1, diagonal: false},
	{col: 1, row: -1, cost: math.Sqrt2, diagonal: true},
	{col: 1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: -1, cost: math.Sqrt2, diagonal: true},
}

func (g *Grid) canTraverseDiagonal(current Cell, delta navNeighbor) bool {
	if !delta.diagonal {
		return true
	}
	return g.Passable(Cell{X: current.X + delta.col, Y: current.Y}) &&
		g.Passable(Cell{X: current.X, Y: current.Y + delta.row})
}

func (g *Grid) closestPassable(c Cell) (Cell, bool) {
	if !g.InBounds(c) {
		return Cell{}, false
	}
	visited := map[int]struct{}{g.index(c): {}}
	queue := []Cell{c}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if g.passable[g.index(current)] {
			return current, true
		}
		for _, delta := range navNeighborOffsets[:4] {
			n := Cell{X: current.X + delta.col, Y: current.Y + delta.row}
			if !g.InBounds(n) {
				continue
			}
			if _, seen := visited[g.index(n)]; seen {
				continue
			}
			visited[g.index(n)] = struct{}{}
			queue = append(queue, n)
		}
	}
	return Cell{}, false
}

func heuristic(a, b Cell) float64 {
	dx := math.Abs(float64(a.X - b.X))
	dy := math.Abs(float64(a.Y - b.Y))
	if dx > dy {
		return dx + (math.Sqrt2-1)*dy
	}
	return dy + (math.Sqrt2-1)*dx
}

type pathNode struct {
	cell   Cell
	g      float64
	f      float64
	index  int
	parent *pathNode
}

type pathQueue []*pathNode

func (pq pathQueue) Len() int { return len(pq) }

func (pq pathQueue) Less(i, j int) bool { return pq[i].f < pq[j].f }

func (pq pathQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pathQueue) Push(x any) {
	n := len(*pq)
	item := x.(*pathNode)
	item.index = n
	*pq = append(*pq, item)
}

func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

func (g *Grid) astar(start, goal Cell) ([]Cell, bool) {
	open := &pathQueue{}
	heap.Init(open)
	heap.Push(open, &pathNode{cell: start, f: heuristic(start, goal)})
	gScore := map[int]float64{g.index(start): 0}
	closed := make(map[int]struct{})

	for open.Len() > 0 {
		current := heap.Pop(open).(*pathNode)
		currIdx := g.index(current.cell)
		if _, seen := closed[currIdx]; seen {
			continue
		}
		closed[currIdx] = struct{}{}
		if current.cell == goal {
			return reconstructPath(current), true
		}

		for _, delta := range navNeighborOffsets {
			if !g.canTraverseDiagonal(current.cell, delta) {
				continue
			}
			next := Cell{X: current.cell.X + delta.col, Y: current.cell.Y + delta.row}
			if !g.Passable(next) {
				continue
			}
			idx := g.index(next)
			if _, seen := closed[idx]; seen {
				continue
			}
			tentativeG := current.g + delta.cost
			if prev, ok := gScore[idx]; ok && tentativeG >= prev {
				continue
			}
			gScore[idx] = tentativeG
			heap.Push(open, &pathNode{
				cell:   next,
				g:      tentativeG,
				f:      tentativeG + heuristic(next, goal),
				parent: current,
			})
		}
	}
	return nil, false
}

func reconstructPath(end *pathNode) []Cell {
	var path []Cell
	for node := end; node != nil; node = node.parent {
		path = append(path, node.cell)
	}
	for i := 0; i < len(path)/2; i++ {
		j := len(path) - 1 - i
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// FindPath returns the cells to walk from start to goal, excluding start and
// ending at goal. An impassable start snaps to the nearest passable cell,
// which is then the first cell of the path.
func (m *Maintainer) FindPath(start, goal Cell) ([]Cell, error) {
	if m.state != SweepComplete {
		return nil, ErrGridNotReady
	}
	g := m.grid
	if !g.InBounds(start) {
		return nil, eris.Wrapf(ErrOutOfGrid, "start %v", start)
	}
	if !g.InBounds(goal) {
		return nil, eris.Wrapf(ErrOutOfGrid, "goal %v", goal)
	}
	if !g.Passable(goal) {
		return nil, eris.Wrapf(ErrNoPath, "goal %v impassable", goal)
	}
	snapped := false
	if !g.Passable(start) {
		nearest, ok := g.closestPassable(start)
		if !ok {
			return nil, eris.Wrapf(ErrNoPath, "no passable cell near %v", start)
		}
		start, snapped = nearest, true
	}
	if m.Region(start) != m.Region(goal) {
		return nil, eris.Wrapf(ErrNoPath, "%v and %v are not connected", start, goal)
	}

	cells, ok := g.astar(start, goal)
	if !ok {
		return nil, eris.Wrapf(ErrNoPath, "%v to %v", start, goal)
	}
	if snapped {
		return cells, nil
	}
	return cells[1:], nil
}
