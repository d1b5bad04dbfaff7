package emit

import (
	"strings"
	"testing"
	"time"

	"github.com/harvestcore/harvest/internal/dag"
	"github.com/harvestcore/harvest/internal/har"
)

func buildSimpleDAG(t *testing.T) *dag.DAG {
	t.Helper()
	d := dag.New()
	loginReq := &har.Request{Method: "POST", URL: "https://example.com/api/login", Headers: map[string]string{}, HeaderOrder: nil}
	searchReq := &har.Request{Method: "GET", URL: "https://example.com/api/search", Headers: map[string]string{}, HeaderOrder: nil}

	loginID, err := d.AddNode(dag.NodeCurl, &dag.Node{Request: loginReq}, dag.NodeOptions{ExtractedParts: []string{"token"}})
	if err != nil {
		t.Fatal(err)
	}
	masterID, err := d.AddNode(dag.NodeMasterCurl, &dag.Node{Request: searchReq}, dag.NodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.AddEdge(loginID, masterID, "token"); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestEmitRejectsIncompleteDAG(t *testing.T) {
	d := dag.New()
	d.AddNode(dag.NodeMasterCurl, &dag.Node{}, dag.NodeOptions{DynamicParts: []string{"x"}})
	_, err := Emit(d, Metadata{SessionID: "s1"})
	if err == nil {
		t.Fatal("expected AnalysisIncomplete error")
	}
}

func TestEmitDeterministic(t *testing.T) {
	d := buildSimpleDAG(t)
	meta := Metadata{SessionID: "s1", Prompt: "log in and search", GeneratedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	out1, err := Emit(d, meta)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	out2, err := Emit(d, meta)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if out1 != out2 {
		t.Fatal("Emit must be deterministic for the same session")
	}
	if !strings.Contains(out1, "package main") {
		t.Fatal("expected a package main banner")
	}
	if !strings.Contains(out1, "func main()") {
		t.Fatal("expected a main entry point")
	}
}

func TestEmitFunctionNameCollisionDisambiguation(t *testing.T) {
	d := dag.New()
	reqA := &har.Request{Method: "GET", URL: "https://example.com/api/item"}
	reqB := &har.Request{Method: "GET", URL: "https://example.com/api/item?x=2"}
	a, _ := d.AddNode(dag.NodeCurl, &dag.Node{Request: reqA}, dag.NodeOptions{ExtractedParts: []string{"p1"}})
	master, _ := d.AddNode(dag.NodeMasterCurl, &dag.Node{Request: reqB}, dag.NodeOptions{})
	d.AddEdge(a, master, "p1")

	out, err := Emit(d, Metadata{SessionID: "s1", GeneratedAt: time.Now()})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(out, "callApiItem(") || !strings.Contains(out, "callApiItem2(") {
		t.Fatalf("expected disambiguated function names, got:\n%s", out)
	}
}
