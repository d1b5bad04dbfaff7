// Package completion implements the Completion Analyzer: reports whether
// a session's DAG is ready for code generation, and why not, per
// spec.md §4.10.
package completion

import "github.com/harvestcore/harvest/internal/dag"

// BlockerKind is a symbolic reason code-generation cannot proceed.
type BlockerKind string

const (
	BlockerMissingMasterNode     BlockerKind = "MissingMasterNode"
	BlockerUnresolvedDynamicPart BlockerKind = "UnresolvedDynamicParts"
	BlockerNotFoundDependency    BlockerKind = "NotFoundDependency"
	BlockerAnalysisIncomplete    BlockerKind = "AnalysisIncomplete"
)

// Blocker is one symbolic reason preventing code generation.
type Blocker struct {
	Kind    BlockerKind
	NodeIDs []string
}

// Diagnostics is the structured detail behind a Report.
type Diagnostics struct {
	DAGComplete       bool
	HasMasterNode     bool
	HasActionURL      bool
	UnresolvedNodeCount int
	NotFoundCount     int
}

// Report is the full output of Analyze.
type Report struct {
	CanGenerateCode bool
	Blockers        []Blocker
	Recommendations []string
	Diagnostics     Diagnostics
}

// Analyze inspects d (and whether a workflow/master URL has been
// identified) and produces a completion Report.
func Analyze(d *dag.DAG, hasActionURL bool) Report {
	nodes := d.GetAllNodes()

	var hasMaster bool
	var unresolvedIDs []string
	var notFoundIDs []string
	for _, n := range nodes {
		if n.Type == dag.NodeMasterCurl {
			hasMaster = true
		}
		if n.Type == dag.NodeNotFound {
			notFoundIDs = append(notFoundIDs, n.ID)
		}
		if len(n.DynamicParts) > 0 {
			unresolvedIDs = append(unresolvedIDs, n.ID)
		}
	}

	complete := d.IsComplete()

	diag := Diagnostics{
		DAGComplete:         complete,
		HasMasterNode:       hasMaster,
		HasActionURL:        hasActionURL,
		UnresolvedNodeCount: len(unresolvedIDs),
		NotFoundCount:       len(notFoundIDs),
	}

	var blockers []Blocker
	var recs []string

	if !hasMaster {
		blockers = append(blockers, Blocker{Kind: BlockerMissingMasterNode})
		recs = append(recs, "identify the master request that realizes the prompt before generating code")
	}
	if len(unresolvedIDs) > 0 {
		blockers = append(blockers, Blocker{Kind: BlockerUnresolvedDynamicPart, NodeIDs: unresolvedIDs})
		recs = append(recs, "continue processing the queue to resolve remaining dynamic parts")
	}
	if len(notFoundIDs) > 0 {
		blockers = append(blockers, Blocker{Kind: BlockerNotFoundDependency, NodeIDs: notFoundIDs})
		recs = append(recs, "supply input variables or additional capture data for unresolved dependencies")
	}
	if !complete && len(blockers) == 0 {
		blockers = append(blockers, Blocker{Kind: BlockerAnalysisIncomplete})
		recs = append(recs, "analysis has not yet converged to a complete DAG")
	}

	return Report{
		CanGenerateCode: complete && len(blockers) == 0,
		Blockers:        blockers,
		Recommendations: recs,
		Diagnostics:     diag,
	}
}
