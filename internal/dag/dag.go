// Package dag implements the DAG Manager: typed nodes/edges over dynamic
// HTTP-call dependencies, acyclicity enforcement, topological ordering,
// and the completeness predicate, per spec.md §3 and §4.6.
package dag

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/harvestcore/harvest/internal/errs"
	"github.com/harvestcore/harvest/internal/har"
)

// NodeType is the variant tag of a DAG node, per spec.md §3.
type NodeType string

const (
	NodeMasterCurl    NodeType = "master_curl"
	NodeCurl          NodeType = "curl"
	NodeCookie        NodeType = "cookie"
	NodeInputVariable NodeType = "input_variable"
	NodeNotFound      NodeType = "not_found"
)

// Node is one vertex of the dependency graph.
type Node struct {
	ID             string
	Type           NodeType
	Request        *har.Request // curl/master_curl payload
	CookieName     string       // cookie payload
	CookieValue    string
	VariableName   string // input_variable payload
	VariableValue  string
	UnresolvedPart string // not_found payload

	ExtractedParts []string
	DynamicParts   []string
	InputVariables map[string]string
}

// Edge is a directed, labeled dependency between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}

// DAG is the dependency graph for one session's analysis. All mutating
// methods are safe for concurrent use; the session that owns a DAG never
// shares it across sessions (spec.md §5).
type DAG struct {
	mu        sync.Mutex
	nodes     map[string]*Node
	order     []string // insertion order, for stable topo-sort ties
	edges     []Edge
	nextID    int
	masterSet bool
}

// New constructs an empty DAG.
func New() *DAG {
	return &DAG{nodes: map[string]*Node{}}
}

type NodeOptions struct {
	ExtractedParts []string
	DynamicParts   []string
	InputVariables map[string]string
}

// AddNode inserts a node and returns its generated id.
func (d *DAG) AddNode(typ NodeType, node *Node, opts NodeOptions) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if typ == NodeMasterCurl && d.masterSet {
		return "", errs.New(errs.KindInvalidTransition, "a master_curl node already exists")
	}

	d.nextID++
	id := fmt.Sprintf("node-%d", d.nextID)
	node.ID = id
	node.Type = typ
	node.ExtractedParts = append([]string(nil), opts.ExtractedParts...)
	node.DynamicParts = append([]string(nil), opts.DynamicParts...)
	if opts.InputVariables != nil {
		node.InputVariables = opts.InputVariables
	} else {
		node.InputVariables = map[string]string{}
	}

	d.nodes[id] = node
	d.order = append(d.order, id)
	if typ == NodeMasterCurl {
		d.masterSet = true
	}
	return id, nil
}

// AddEdge inserts a labeled edge, rejecting it with CycleDetected if it
// would close a cycle (reverse-DFS from `to` toward `from`).
func (d *DAG) AddEdge(from, to, label string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.nodes[from]; !ok {
		return errs.New(errs.KindInvalidTransition, "unknown edge source %q", from)
	}
	if _, ok := d.nodes[to]; !ok {
		return errs.New(errs.KindInvalidTransition, "unknown edge target %q", to)
	}
	if from == to || d.reachableFrom(to, from) {
		return errs.New(errs.KindCycleDetected, "edge %s -> %s would close a cycle", from, to)
	}
	d.edges = append(d.edges, Edge{From: from, To: to, Label: label})
	return nil
}

// reachableFrom reports whether target is reachable from start following
// edges forward. AddEdge calls it as reachableFrom(to, from): a new edge
// from->to would close a cycle if from is already reachable from to.
func (d *DAG) reachableFrom(start, target string) bool {
	visited := map[string]bool{}
	var stack []string
	stack = append(stack, start)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == target {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		for _, e := range d.edges {
			if e.From == n {
				stack = append(stack, e.To)
			}
		}
	}
	return false
}

// UpdateNode applies patch to an existing node's mutable fields
// (DynamicParts shrinks monotonically per spec.md §3 invariant 3; callers
// must never pass a superset of the existing DynamicParts).
func (d *DAG) UpdateNode(id string, patch func(*Node)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[id]
	if !ok {
		return errs.New(errs.KindInvalidTransition, "unknown node %q", id)
	}
	patch(n)
	return nil
}

func (d *DAG) GetNode(id string) (*Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[id]
	return n, ok
}

func (d *DAG) GetAllNodes() []*Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Node, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.nodes[id])
	}
	return out
}

func (d *DAG) Edges() []Edge {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Edge(nil), d.edges...)
}

// DetectCycles returns a non-empty slice of node ids forming a cycle, or
// nil if the DAG is acyclic. AddEdge already prevents cycles from forming,
// so this mainly serves post-deserialization / debug validation.
func (d *DAG) DetectCycles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var cyclePath []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		cyclePath = append(cyclePath, id)
		for _, e := range d.edges {
			if e.From != id {
				continue
			}
			switch color[e.To] {
			case white:
				if visit(e.To) {
					return true
				}
			case gray:
				cyclePath = append(cyclePath, e.To)
				return true
			}
		}
		color[id] = black
		cyclePath = cyclePath[:len(cyclePath)-1]
		return false
	}

	for _, id := range d.order {
		if color[id] == white {
			if visit(id) {
				return cyclePath
			}
		}
	}
	return nil
}

// TopologicalSort orders node ids via Kahn's algorithm; ties among
// simultaneously-ready frontier nodes resolve by insertion order.
func (d *DAG) TopologicalSort() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	inDegree := map[string]int{}
	adj := map[string][]string{}
	for _, id := range d.order {
		inDegree[id] = 0
	}
	for _, e := range d.edges {
		adj[e.From] = append(adj[e.From], e.To)
		inDegree[e.To]++
	}

	var frontier []string
	for _, id := range d.order {
		if inDegree[id] == 0 {
			frontier = append(frontier, id)
		}
	}

	var result []string
	for len(frontier) > 0 {
		n := frontier[0]
		frontier = frontier[1:]
		result = append(result, n)
		for _, to := range adj[n] {
			inDegree[to]--
			if inDegree[to] == 0 {
				frontier = append(frontier, to)
			}
		}
	}

	if len(result) != len(d.nodes) {
		return nil, errs.New(errs.KindCycleDetected, "topological sort could not order all nodes")
	}
	return result, nil
}

// IsComplete implements the completeness invariant in spec.md §3: every
// node's DynamicParts is empty, no not_found node exists, and exactly one
// master_curl node exists.
func (d *DAG) IsComplete() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.masterSet {
		return false
	}
	for _, id := range d.order {
		n := d.nodes[id]
		if n.Type == NodeNotFound {
			return false
		}
		if len(n.DynamicParts) > 0 {
			return false
		}
	}
	return true
}

// serialForm is the JSON-serializable snapshot of a DAG.
type serialForm struct {
	Nodes []*Node `json:"nodes"`
	Order []string `json:"order"`
	Edges []Edge  `json:"edges"`
}

func (d *DAG) ToJSON() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes := make([]*Node, 0, len(d.order))
	for _, id := range d.order {
		nodes = append(nodes, d.nodes[id])
	}
	return json.Marshal(serialForm{Nodes: nodes, Order: d.order, Edges: d.edges})
}

func FromJSON(data []byte) (*DAG, error) {
	var sf serialForm
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, errs.Wrap(errs.KindInvalidHarFormat, err, "malformed DAG snapshot")
	}
	d := New()
	for _, n := range sf.Nodes {
		d.nodes[n.ID] = n
		if n.Type == NodeMasterCurl {
			d.masterSet = true
		}
	}
	d.order = sf.Order
	d.edges = sf.Edges
	for _, id := range sf.Order {
		var n int
		fmt.Sscanf(id, "node-%d", &n)
		if n > d.nextID {
			d.nextID = n
		}
	}
	return d, nil
}
