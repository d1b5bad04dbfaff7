package completion

import (
	"testing"

	"github.com/harvestcore/harvest/internal/dag"
)

func TestAnalyzeMissingMasterNode(t *testing.T) {
	d := dag.New()
	report := Analyze(d, true)
	if report.CanGenerateCode {
		t.Fatal("empty DAG must not be ready for code generation")
	}
	if len(report.Blockers) == 0 || report.Blockers[0].Kind != BlockerMissingMasterNode {
		t.Fatalf("expected MissingMasterNode blocker, got %+v", report.Blockers)
	}
}

func TestAnalyzeNotFoundDependencyBlocks(t *testing.T) {
	d := dag.New()
	d.AddNode(dag.NodeMasterCurl, &dag.Node{}, dag.NodeOptions{})
	d.AddNode(dag.NodeNotFound, &dag.Node{}, dag.NodeOptions{})
	report := Analyze(d, true)
	if report.CanGenerateCode {
		t.Fatal("DAG with not_found node must not be ready")
	}
	found := false
	for _, b := range report.Blockers {
		if b.Kind == BlockerNotFoundDependency {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected NotFoundDependency blocker, got %+v", report.Blockers)
	}
}

func TestAnalyzeCompleteDAG(t *testing.T) {
	d := dag.New()
	d.AddNode(dag.NodeMasterCurl, &dag.Node{}, dag.NodeOptions{})
	report := Analyze(d, true)
	if !report.CanGenerateCode {
		t.Fatalf("expected ready for code generation, got %+v", report)
	}
}
