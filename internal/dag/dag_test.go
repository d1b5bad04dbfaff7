package dag

import "testing"

func TestAddEdgeRejectsCycle(t *testing.T) {
	d := New()
	a, _ := d.AddNode(NodeCurl, &Node{}, NodeOptions{})
	b, _ := d.AddNode(NodeCurl, &Node{}, NodeOptions{})

	if err := d.AddEdge(a, b, "tok"); err != nil {
		t.Fatalf("first edge should succeed: %v", err)
	}
	if err := d.AddEdge(b, a, "tok"); err == nil {
		t.Fatal("expected cycle rejection")
	}
}

func TestTopologicalSortRespectsEdgesAndStableTies(t *testing.T) {
	d := New()
	a, _ := d.AddNode(NodeCurl, &Node{}, NodeOptions{})
	b, _ := d.AddNode(NodeCurl, &Node{}, NodeOptions{})
	c, _ := d.AddNode(NodeCurl, &Node{}, NodeOptions{})

	if err := d.AddEdge(a, c, "x"); err != nil {
		t.Fatal(err)
	}

	order, err := d.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	posA, posB, posC := indexOf(order, a), indexOf(order, b), indexOf(order, c)
	if posA > posC {
		t.Fatalf("a must precede c: order=%v", order)
	}
	if posA > posB {
		t.Fatalf("ready nodes a and b must keep insertion order: order=%v", order)
	}
}

func TestIsCompleteRequiresMasterNodeNoUnresolved(t *testing.T) {
	d := New()
	if d.IsComplete() {
		t.Fatal("empty DAG should not be complete")
	}

	master, _ := d.AddNode(NodeMasterCurl, &Node{}, NodeOptions{DynamicParts: []string{"tok"}})
	if d.IsComplete() {
		t.Fatal("DAG with unresolved dynamic parts should not be complete")
	}

	_ = d.UpdateNode(master, func(n *Node) { n.DynamicParts = nil })
	if !d.IsComplete() {
		t.Fatal("DAG should be complete once master exists and no parts remain")
	}

	d.AddNode(NodeNotFound, &Node{}, NodeOptions{})
	if d.IsComplete() {
		t.Fatal("DAG with a not_found node should never be complete")
	}
}

func TestOnlyOneMasterNodeAllowed(t *testing.T) {
	d := New()
	if _, err := d.AddNode(NodeMasterCurl, &Node{}, NodeOptions{}); err != nil {
		t.Fatalf("first master node should succeed: %v", err)
	}
	if _, err := d.AddNode(NodeMasterCurl, &Node{}, NodeOptions{}); err == nil {
		t.Fatal("expected rejection of second master_curl node")
	}
}

func TestToJSONFromJSONRoundTrip(t *testing.T) {
	d := New()
	a, _ := d.AddNode(NodeMasterCurl, &Node{}, NodeOptions{})
	b, _ := d.AddNode(NodeCurl, &Node{}, NodeOptions{})
	if err := d.AddEdge(b, a, "tok"); err != nil {
		t.Fatal(err)
	}

	raw, err := d.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	restored, err := FromJSON(raw)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if !restored.IsComplete() {
		t.Fatal("restored DAG should still be complete")
	}
	if len(restored.Edges()) != 1 {
		t.Fatalf("expected 1 edge after round-trip, got %d", len(restored.Edges()))
	}
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
