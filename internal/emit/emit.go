// Package emit implements the Code Emitter (spec.md §4.11): a topological
// walk over a complete DAG that materializes a runnable client program as
// source text, via the internal/emit/sourcetree structured builder rather
// than textual templating.
package emit

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/harvestcore/harvest/internal/dag"
	"github.com/harvestcore/harvest/internal/emit/sourcetree"
	"github.com/harvestcore/harvest/internal/errs"
	"github.com/harvestcore/harvest/internal/har"
)

// Metadata is the per-session information stamped into the emitted file's
// banner and metadata block, per spec.md §6.5.
type Metadata struct {
	SessionID   string
	Prompt      string
	GeneratedAt time.Time
}

// Emit walks d in topological order and produces the emitted source file.
// d must be complete (spec.md §3); a not_found node or incomplete DAG
// fails with AnalysisIncomplete rather than emitting partial output.
func Emit(d *dag.DAG, meta Metadata) (string, error) {
	if !d.IsComplete() {
		return "", errs.New(errs.KindAnalysisIncomplete, "cannot emit: DAG is not complete")
	}

	order, err := d.TopologicalSort()
	if err != nil {
		return "", err
	}

	names := assignFunctionNames(d, order)
	incoming := incomingLabelsByNode(d)

	b := sourcetree.New()
	writeBanner(b, meta)
	writeCookieAnnotations(b, d, order)
	writeSharedTypes(b)

	var masterID string
	for _, id := range order {
		node, _ := d.GetNode(id)
		switch node.Type {
		case dag.NodeCurl, dag.NodeMasterCurl:
			if node.Type == dag.NodeMasterCurl {
				masterID = id
			}
			writeRequestFunc(b, node, names[id], incoming[id])
			b.Blank()
		case dag.NodeNotFound:
			writeNotFoundStub(b, node)
			b.Blank()
		}
	}

	writeMain(b, d, order, names, incoming, masterID)

	return b.String(), nil
}

func writeBanner(b *sourcetree.Builder, meta Metadata) {
	b.Line("// Code generated by harvest. DO NOT EDIT.").
		Line("// Generated: %s", meta.GeneratedAt.UTC().Format(time.RFC3339)).
		Line("// Session: %s", meta.SessionID).
		Line("// Prompt: %s", singleLine(meta.Prompt)).
		Blank().
		Line("package main").
		Blank().
		Block("import (", func(b *sourcetree.Builder) {
			b.Line("\"encoding/json\"").
				Line("\"fmt\"").
				Line("\"io\"").
				Line("\"net/http\"").
				Line("\"strings\"")
		}, ")").
		Blank()
}

func writeCookieAnnotations(b *sourcetree.Builder, d *dag.DAG, order []string) {
	var wrote bool
	for _, id := range order {
		n, _ := d.GetNode(id)
		if n.Type == dag.NodeCookie {
			if !wrote {
				b.Line("// Cookies captured at analysis time:")
				wrote = true
			}
			b.Line("//   %s = %s", n.CookieName, truncate(n.CookieValue, 16))
		}
	}
	if wrote {
		b.Blank()
	}
}

func writeSharedTypes(b *sourcetree.Builder) {
	b.Block("type result struct {", func(b *sourcetree.Builder) {
		b.Line("Status  int").
			Line("Headers map[string]string").
			Line("Fields  map[string]string").
			Line("Body    []byte")
	}, "}").Blank()

	b.Block("func extractField(body []byte, name string) string {", func(b *sourcetree.Builder) {
		b.Line("var tree map[string]any")
		b.Line("if err := json.Unmarshal(body, &tree); err == nil {")
		b.Indent()
		b.Line("if v, ok := tree[name]; ok {")
		b.Indent()
		b.Line("%s", "return fmt.Sprintf(\"%v\", v)")
		b.Dedent()
		b.Line("}")
		b.Dedent()
		b.Line("}")
		b.Line("return \"\"")
	}, "}").Blank()
}

func writeNotFoundStub(b *sourcetree.Builder, n *dag.Node) {
	b.Line("// WARNING: Could not resolve %s", n.UnresolvedPart).
		Block(fmt.Sprintf("func resolveUnknown_%s() (string, error) {", sanitizeIdent(n.UnresolvedPart)), func(b *sourcetree.Builder) {
			b.Line("return \"\", fmt.Errorf(\"WARNING: Could not resolve %s\")", n.UnresolvedPart)
		}, "}")
}

// incomingLabelsByNode maps each node id to the dedup'd, ordered labels of
// its incoming edges — those become the node's function parameters.
func incomingLabelsByNode(d *dag.DAG) map[string][]string {
	out := map[string][]string{}
	seen := map[string]map[string]bool{}
	for _, e := range d.Edges() {
		if seen[e.To] == nil {
			seen[e.To] = map[string]bool{}
		}
		if seen[e.To][e.Label] {
			continue
		}
		seen[e.To][e.Label] = true
		out[e.To] = append(out[e.To], e.Label)
	}
	return out
}

// substitution pairs a literal substring captured in a node's request with
// the Go expression (a parameter reference) that should replace it so the
// emitted request carries the caller-resolved value instead of the stale
// captured one.
type substitution struct {
	literal string
	ident   string
}

func sortedInputNames(n *dag.Node) []string {
	var inputNames []string
	for name := range n.InputVariables {
		inputNames = append(inputNames, name)
	}
	sort.Strings(inputNames)
	return inputNames
}

// buildSubstitutions maps each incoming-edge dynamic part and bound input
// variable to the identifier of the parameter carrying its resolved value,
// longest literal first so overlapping captures replace unambiguously.
func buildSubstitutions(n *dag.Node, params, inputNames []string) []substitution {
	var subs []substitution
	for _, p := range params {
		if p == "" {
			continue
		}
		subs = append(subs, substitution{literal: p, ident: toIdent(p)})
	}
	for _, name := range inputNames {
		if v := n.InputVariables[name]; v != "" {
			subs = append(subs, substitution{literal: v, ident: toIdent(name)})
		}
	}
	sort.SliceStable(subs, func(i, j int) bool { return len(subs[i].literal) > len(subs[j].literal) })
	return subs
}

// renderExpr turns raw into a Go string expression, splicing in subs'
// identifiers wherever their literal occurs instead of quoting raw whole.
func renderExpr(raw string, subs []substitution) string {
	if raw == "" {
		return `""`
	}

	var parts []string
	remaining := raw
	for remaining != "" {
		bestIdx := -1
		var best substitution
		for _, s := range subs {
			idx := strings.Index(remaining, s.literal)
			if idx < 0 {
				continue
			}
			if bestIdx == -1 || idx < bestIdx || (idx == bestIdx && len(s.literal) > len(best.literal)) {
				bestIdx = idx
				best = s
			}
		}
		if bestIdx == -1 {
			parts = append(parts, fmt.Sprintf("%q", remaining))
			break
		}
		if bestIdx > 0 {
			parts = append(parts, fmt.Sprintf("%q", remaining[:bestIdx]))
		}
		parts = append(parts, best.ident)
		remaining = remaining[bestIdx+len(best.literal):]
	}
	if len(parts) == 0 {
		return `""`
	}
	return strings.Join(parts, " + ")
}

// requestBodyText renders a request's payload the same way internal/request
// does for curl commands, as the literal text substitutions are applied to.
func requestBodyText(r *har.Request) string {
	if r.Body == nil {
		return ""
	}
	if r.Body.JSON != nil {
		if raw, err := json.Marshal(r.Body.JSON); err == nil {
			return string(raw)
		}
	}
	if len(r.Body.Form) > 0 {
		vals := url.Values{}
		for k, v := range r.Body.Form {
			vals.Set(k, v)
		}
		return vals.Encode()
	}
	return r.Body.Text
}

func writeRequestFunc(b *sourcetree.Builder, n *dag.Node, funcName string, params []string) {
	inputNames := sortedInputNames(n)

	var sig strings.Builder
	sig.WriteString(fmt.Sprintf("func %s(", funcName))
	args := make([]string, 0, len(params)+len(inputNames))
	for _, p := range params {
		args = append(args, fmt.Sprintf("%s string", toIdent(p)))
	}
	for _, name := range inputNames {
		args = append(args, fmt.Sprintf("%s string", toIdent(name)))
	}
	sig.WriteString(strings.Join(args, ", "))
	sig.WriteString(") (result, error) {")

	b.Block(sig.String(), func(b *sourcetree.Builder) {
		if n.Request != nil {
			subs := buildSubstitutions(n, params, inputNames)
			b.Line("var reqBody io.Reader")
			if bodyText := requestBodyText(n.Request); bodyText != "" {
				b.Line("reqBody = strings.NewReader(%s)", renderExpr(bodyText, subs))
			}
			b.Line("req, err := http.NewRequest(%q, %s, reqBody)", n.Request.Method, renderExpr(n.Request.URL, subs))
			b.Line("if err != nil {").Indent().Line("return result{}, err").Dedent().Line("}")
			for _, name := range n.Request.HeaderOrder {
				b.Line("req.Header.Set(%q, %s)", name, renderExpr(n.Request.Headers[name], subs))
			}
		}
		b.Blank()
		b.Line("resp, err := http.DefaultClient.Do(req)")
		b.Line("if err != nil {").Indent().Line("return result{}, err").Dedent().Line("}")
		b.Line("defer resp.Body.Close()")
		b.Line("body, err := io.ReadAll(resp.Body)")
		b.Line("if err != nil {").Indent().Line("return result{}, err").Dedent().Line("}")
		b.Blank()
		b.Line("fields := map[string]string{}")
		for _, part := range n.ExtractedParts {
			b.Line("fields[%q] = extractField(body, %q)", part, part)
		}
		b.Blank()
		b.Block("return result{", func(b *sourcetree.Builder) {
			b.Line("Status: resp.StatusCode,").
				Line("Fields: fields,").
				Line("Body:   body,")
		}, "}, nil")
	}, "}")
}

// callArgForLabel resolves the call-site argument for an incoming edge:
// a quoted literal if the value came from a cookie captured at analysis
// time, or the producing call's extracted field otherwise.
func callArgForLabel(d *dag.DAG, edges []dag.Edge, to, label string) string {
	for _, e := range edges {
		if e.To != to || e.Label != label {
			continue
		}
		if producer, ok := d.GetNode(e.From); ok && producer.Type == dag.NodeCookie {
			return fmt.Sprintf("%q", producer.CookieValue)
		}
		return fmt.Sprintf("res_%s.Fields[%q]", sanitizeIdent(e.From), label)
	}
	return fmt.Sprintf("%q", label)
}

func callArgs(d *dag.DAG, edges []dag.Edge, id string, n *dag.Node, params []string) []string {
	args := make([]string, 0, len(params)+len(n.InputVariables))
	for _, p := range params {
		args = append(args, callArgForLabel(d, edges, id, p))
	}
	for _, name := range sortedInputNames(n) {
		args = append(args, fmt.Sprintf("%q", n.InputVariables[name]))
	}
	return args
}

func writeMain(b *sourcetree.Builder, d *dag.DAG, order []string, names map[string]string, incoming map[string][]string, masterID string) {
	edges := d.Edges()
	b.Block("func main() {", func(b *sourcetree.Builder) {
		if masterID == "" {
			b.Line("fmt.Println(\"no master request\")")
			return
		}
		for _, id := range order {
			n, _ := d.GetNode(id)
			if n.Type != dag.NodeCurl && n.Type != dag.NodeMasterCurl {
				continue
			}
			args := callArgs(d, edges, id, n, incoming[id])
			b.Line("res_%s, err := %s(%s)", sanitizeIdent(id), names[id], strings.Join(args, ", "))
			b.Line("if err != nil {").Indent().Line("fmt.Println(\"error:\", err)").Line("return").Dedent().Line("}")
			b.Line("_ = res_%s", sanitizeIdent(id))
		}
		b.Line("fmt.Println(\"done\")")
	}, "}")
}

// assignFunctionNames derives deterministic, collision-disambiguated
// function names from each node's request URL path slug.
func assignFunctionNames(d *dag.DAG, order []string) map[string]string {
	names := map[string]string{}
	used := map[string]int{}
	for _, id := range order {
		n, _ := d.GetNode(id)
		if n.Type != dag.NodeCurl && n.Type != dag.NodeMasterCurl {
			continue
		}
		base := "call" + slugFromURL(nodeURL(n))
		used[base]++
		if used[base] == 1 {
			names[id] = base
		} else {
			names[id] = fmt.Sprintf("%s%d", base, used[base])
		}
	}
	return names
}

func nodeURL(n *dag.Node) string {
	if n.Request != nil {
		return n.Request.URL
	}
	return ""
}

func slugFromURL(raw string) string {
	path := raw
	if idx := strings.Index(path, "://"); idx >= 0 {
		path = path[idx+3:]
	}
	if idx := strings.Index(path, "/"); idx >= 0 {
		path = path[idx+1:]
	} else {
		path = ""
	}
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	segments := strings.Split(path, "/")
	var b strings.Builder
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		b.WriteString(capitalize(seg))
	}
	if b.Len() == 0 {
		return "Root"
	}
	return b.String()
}

func capitalize(s string) string {
	var out strings.Builder
	upperNext := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upperNext = true
			continue
		}
		if upperNext {
			out.WriteRune(unicode.ToUpper(r))
			upperNext = false
		} else {
			out.WriteRune(unicode.ToLower(r))
		}
	}
	return out.String()
}

func toIdent(s string) string {
	return "v" + sanitizeIdent(s)
}

func sanitizeIdent(s string) string {
	var out strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out.WriteRune(r)
		} else {
			out.WriteRune('_')
		}
	}
	return out.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func singleLine(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", " "), "\n", " ")
}
