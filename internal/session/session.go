package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/harvestcore/harvest/internal/classify"
	"github.com/harvestcore/harvest/internal/completion"
	"github.com/harvestcore/harvest/internal/dag"
	"github.com/harvestcore/harvest/internal/emit"
	"github.com/harvestcore/harvest/internal/errs"
	"github.com/harvestcore/harvest/internal/har"
	"github.com/harvestcore/harvest/internal/inputvars"
	"github.com/harvestcore/harvest/internal/llm"
	"github.com/harvestcore/harvest/internal/provenance"
	"github.com/harvestcore/harvest/internal/request"
	"github.com/harvestcore/harvest/internal/trust"
	"github.com/harvestcore/harvest/internal/vault"
	"github.com/harvestcore/harvest/internal/workflow"
)

const maxLogEntries = 500

// LogEntry is one bounded-ring diagnostic entry.
type LogEntry struct {
	At      time.Time
	Message string
}

// WorkflowGroup is a reserved, currently-unpopulated clustering of related
// requests (spec.md §9 Open Question 2: the field exists but no
// constructor populates it in this implementation).
type WorkflowGroup struct {
	Name       string
	RequestIDs []string
}

// Session is the unit of analysis: identity, parsed HAR, cookie jar, DAG,
// FSM state, and process queue, mutated only via the event methods below.
type Session struct {
	mu sync.Mutex

	ID             string
	Prompt         string
	HAR            *har.ParsedHAR
	Cookies        CookieJar
	DAG            *dag.DAG
	State          State
	Queue          []string
	InputVariables map[string]string
	WorkflowGroups []WorkflowGroup
	Logs           []LogEntry
	GeneratedSource string
	CreatedAt      time.Time
	LastActivityAt time.Time
	Err            error
	ActionURL      string
	TraceID        string

	provider llm.Provider
	tracer   trace.Tracer
	chain    *trust.Chain
	vault    *vault.Client
}

// New constructs a fresh session in the initializing state. provider may
// be nil only if the session will never reach a step requiring an LLM
// call (tests exercising pure HAR/DAG logic). vaultClient may be nil
// (persistence disabled). chainKey signs the session's audit chain.
func New(id, prompt string, provider llm.Provider, tracer trace.Tracer, chainKey []byte, vaultClient *vault.Client) *Session {
	if tracer == nil {
		tracer = otel.Tracer("harvest/session")
	}
	now := time.Now()
	return &Session{
		ID:             id,
		Prompt:         prompt,
		State:          StateInitializing,
		InputVariables: map[string]string{},
		CreatedAt:      now,
		LastActivityAt: now,
		provider:       provider,
		tracer:         tracer,
		chain:          trust.NewChain(chainKey),
		vault:          vaultClient,
	}
}

func (s *Session) log(format string, args ...any) {
	entry := LogEntry{At: time.Now(), Message: fmt.Sprintf(format, args...)}
	s.Logs = append(s.Logs, entry)
	if len(s.Logs) > maxLogEntries {
		s.Logs = s.Logs[len(s.Logs)-maxLogEntries:]
	}
}

// transition validates and applies from->to, recording a span and an
// audit-chain entry.
func (s *Session) transition(ctx context.Context, to State, detail string) error {
	if err := checkTransition(s.State, to); err != nil {
		return err
	}
	_, span := s.tracer.Start(ctx, "session.transition")
	defer span.End()

	event := fmt.Sprintf("%s->%s", s.State, to)
	if _, err := s.chain.Append(s.ID, event, detail); err != nil {
		s.log("audit chain append failed: %v", err)
	}
	s.log("%s (%s)", event, detail)
	s.State = to
	s.LastActivityAt = time.Now()
	return nil
}

// AuditChainLength returns the number of entries in the session's audit
// chain so far (spec.md §3 Session.auditChainLength).
func (s *Session) AuditChainLength() int {
	return s.chain.Len()
}

// Progress reports a diagnostic snapshot, backing the CLI's "session
// status" command (SPEC_FULL.md §10).
type Progress struct {
	State          State
	QueueDepth     int
	NodeCount      int
	EdgeCount      int
	ElapsedSince   time.Duration
	AuditChainLen  int
	LastActivityAt time.Time
}

func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Progress{
		State:          s.State,
		QueueDepth:     len(s.Queue),
		ElapsedSince:   time.Since(s.CreatedAt),
		AuditChainLen:  s.chain.Len(),
		LastActivityAt: s.LastActivityAt,
	}
	if s.DAG != nil {
		p.NodeCount = len(s.DAG.GetAllNodes())
		p.EdgeCount = len(s.DAG.Edges())
	}
	return p
}

// StartSession parses the HAR (and optional cookie bundle), per spec.md
// §4.1/§4.8's START_SESSION event.
func (s *Session) StartSession(ctx context.Context, harData []byte, cookieData []byte, opts har.Options, inputVariables map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transition(ctx, StateParsingHar, "parsing HAR"); err != nil {
		return s.fail(ctx, err)
	}

	parsed, err := har.Parse(harData, opts)
	if err != nil {
		return s.fail(ctx, err)
	}
	s.HAR = parsed
	s.DAG = dag.New()

	if len(cookieData) > 0 {
		jar, err := ParseCookieBundle(cookieData)
		if err != nil {
			return s.fail(ctx, errs.Wrap(errs.KindInvalidHarFormat, err, "parsing cookie bundle"))
		}
		s.Cookies = jar
	} else {
		s.Cookies = CookieJar{}
	}

	for name, value := range inputVariables {
		s.InputVariables[name] = value
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		sc := span.SpanContext()
		if sc.HasTraceID() {
			s.TraceID = sc.TraceID().String()
		}
	}

	return s.transition(ctx, StateAwaitingWorkflowSelection, "HAR parsed")
}

// IdentifyWorkflow selects the master URL and seeds the process queue
// with its master_curl node, per spec.md §4.7/§4.8.
func (s *Session) IdentifyWorkflow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateAwaitingWorkflowSelection {
		return errs.New(errs.KindInvalidTransition, "IDENTIFY_WORKFLOW invalid in state %s", s.State)
	}

	chosen, err := workflow.Identify(ctx, s.provider, s.Prompt, s.HAR.URLSummaries)
	if err != nil {
		return s.fail(ctx, err)
	}
	s.ActionURL = chosen.URL

	var masterReq *har.Request
	for _, r := range s.HAR.Requests {
		if r.URL == chosen.URL {
			masterReq = r
			break
		}
	}
	if masterReq == nil {
		return s.fail(ctx, errs.New(errs.KindNoCandidates, "chosen master URL not present among parsed requests"))
	}

	nodeID, err := s.DAG.AddNode(dag.NodeMasterCurl, &dag.Node{Request: masterReq}, dag.NodeOptions{})
	if err != nil {
		return s.fail(ctx, err)
	}
	s.Queue = append(s.Queue, nodeID)

	return s.transition(ctx, StateProcessingDependencies, "workflow identified: "+chosen.URL)
}

// ProcessNextNode runs one iteration of the dependency-resolution loop,
// per spec.md §4.8's PROCESS_NEXT_NODE action.
func (s *Session) ProcessNextNode(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateProcessingDependencies {
		return errs.New(errs.KindInvalidTransition, "PROCESS_NEXT_NODE invalid in state %s", s.State)
	}

	if len(s.Queue) == 0 {
		if s.DAG.IsComplete() {
			return s.transition(ctx, StateReadyForCodeGen, "queue empty, DAG complete")
		}
		return nil
	}

	nodeID := s.Queue[0]
	s.Queue = s.Queue[1:]

	node, ok := s.DAG.GetNode(nodeID)
	if !ok {
		return errs.New(errs.KindInvalidTransition, "queued node %s no longer exists", nodeID)
	}
	if node.Request == nil {
		return nil
	}

	curlText := request.Render(node.Request)

	if isJSAsset(node.Request.URL) {
		return s.DAG.UpdateNode(nodeID, func(n *dag.Node) { n.DynamicParts = nil })
	}

	parts, err := classify.Classify(ctx, s.provider, curlText, s.InputVariables)
	if err != nil {
		return s.fail(ctx, err)
	}

	bindResult, err := inputvars.Bind(ctx, s.provider, curlText, s.InputVariables, parts)
	if err != nil {
		return s.fail(ctx, err)
	}
	for name, value := range bindResult.Bound {
		node.InputVariables[name] = value
	}
	remaining := bindResult.Remaining

	if err := s.DAG.UpdateNode(nodeID, func(n *dag.Node) { n.DynamicParts = remaining }); err != nil {
		return s.fail(ctx, err)
	}

	if len(remaining) == 0 {
		s.log("node %s fully resolved via input variables", nodeID)
		return nil
	}

	found, err := provenance.Find(ctx, s.provider, remaining, s.Cookies.Values(), s.priorRequestsExcept(node.Request))
	if err != nil {
		return s.fail(ctx, err)
	}

	if err := s.applyProvenance(nodeID, found); err != nil {
		return s.fail(ctx, err)
	}

	return s.DAG.UpdateNode(nodeID, func(n *dag.Node) { n.DynamicParts = nil })
}

func (s *Session) priorRequestsExcept(exclude *har.Request) []*har.Request {
	out := make([]*har.Request, 0, len(s.HAR.Requests))
	for _, r := range s.HAR.Requests {
		if r == exclude {
			continue
		}
		out = append(out, r)
	}
	return out
}

// cookieNodeByName finds an existing cookie node for name, if any.
func (s *Session) cookieNodeByName(name string) (string, bool) {
	for _, n := range s.DAG.GetAllNodes() {
		if n.Type == dag.NodeCookie && n.CookieName == name {
			return n.ID, true
		}
	}
	return "", false
}

func (s *Session) requestNodeByRequest(req *har.Request) (string, bool) {
	for _, n := range s.DAG.GetAllNodes() {
		if n.Type == dag.NodeCurl && n.Request == req {
			return n.ID, true
		}
	}
	return "", false
}

func (s *Session) applyProvenance(consumerID string, found provenance.Result) error {
	for _, cd := range found.CookieDependencies {
		nodeID, exists := s.cookieNodeByName(cd.Name)
		if !exists {
			id, err := s.DAG.AddNode(dag.NodeCookie, &dag.Node{CookieName: cd.Name, CookieValue: cd.Value}, dag.NodeOptions{ExtractedParts: []string{cd.Part}})
			if err != nil {
				return err
			}
			nodeID = id
		}
		if err := s.DAG.AddEdge(nodeID, consumerID, cd.Part); err != nil {
			return err
		}
	}

	for _, rd := range found.RequestDependencies {
		nodeID, exists := s.requestNodeByRequest(rd.Request)
		newlyCreated := false
		if !exists {
			id, err := s.DAG.AddNode(dag.NodeCurl, &dag.Node{Request: rd.Request}, dag.NodeOptions{DynamicParts: nil, ExtractedParts: []string{rd.Part}})
			if err != nil {
				return err
			}
			nodeID = id
			newlyCreated = true
		} else {
			if err := s.DAG.UpdateNode(nodeID, func(n *dag.Node) {
				n.ExtractedParts = appendUnique(n.ExtractedParts, rd.Part)
			}); err != nil {
				return err
			}
		}
		if err := s.DAG.AddEdge(nodeID, consumerID, rd.Part); err != nil {
			return err
		}
		if newlyCreated {
			s.Queue = append(s.Queue, nodeID)
		}
	}

	for _, part := range found.NotFoundParts {
		id, err := s.DAG.AddNode(dag.NodeNotFound, &dag.Node{UnresolvedPart: part}, dag.NodeOptions{})
		if err != nil {
			return err
		}
		if err := s.DAG.AddEdge(id, consumerID, part); err != nil {
			return err
		}
	}

	return nil
}

func appendUnique(parts []string, part string) []string {
	for _, p := range parts {
		if p == part {
			return parts
		}
	}
	return append(parts, part)
}

func isJSAsset(url string) bool {
	clean := url
	for i, c := range url {
		if c == '?' || c == '#' {
			clean = url[:i]
			break
		}
	}
	return len(clean) >= 3 && clean[len(clean)-3:] == ".js"
}

// AddInputVariable handles ADD_INPUT_VARIABLE, legal in any non-terminal
// state.
func (s *Session) AddInputVariable(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if terminal(s.State) {
		return errs.New(errs.KindInvalidTransition, "cannot add input variable in terminal state %s", s.State)
	}
	s.InputVariables[name] = value
	s.LastActivityAt = time.Now()
	return nil
}

// ForceComplete is the debug FORCE_COMPLETE event: it jumps directly to
// readyForCodeGen regardless of queue/DAG state, for test and operator use.
func (s *Session) ForceComplete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if terminal(s.State) {
		return errs.New(errs.KindInvalidTransition, "cannot force-complete a terminal session")
	}
	s.Queue = nil
	s.State = StateProcessingDependencies
	return s.transition(ctx, StateReadyForCodeGen, "forced by operator")
}

// GenerateCode runs the Code Emitter and stores the result, per spec.md
// §4.11/§4.8's GENERATE_CODE event.
func (s *Session) GenerateCode(ctx context.Context, generatedAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateReadyForCodeGen {
		return "", errs.New(errs.KindInvalidTransition, "GENERATE_CODE invalid in state %s", s.State)
	}

	report := completion.Analyze(s.DAG, s.ActionURL != "")
	if !report.CanGenerateCode {
		return "", errs.New(errs.KindAnalysisIncomplete, "DAG not complete").WithData(report)
	}

	source, err := emit.Emit(s.DAG, emit.Metadata{
		SessionID:   s.ID,
		Prompt:      s.Prompt,
		GeneratedAt: generatedAt,
	})
	if err != nil {
		return "", s.fail(ctx, err)
	}
	s.GeneratedSource = source

	if s.vault != nil {
		if _, err := s.vault.Store(ctx, vault.SessionKey(s.ID), []byte(source)); err != nil {
			s.log("vault store failed: %v", err)
		}
	}

	if err := s.transition(ctx, StateCodeGenerated, "code generated"); err != nil {
		return "", err
	}
	return source, nil
}

// Cancel handles CANCEL: legal from any non-terminal state, takes effect
// at the next natural suspension boundary (the caller simply stops
// issuing further events once Cancel has been called).
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if terminal(s.State) {
		return nil
	}
	return s.transition(ctx, StateCancelled, "cancelled")
}

// Fail handles FAIL: records err and transitions to the terminal failed
// state. Exported for callers (e.g. a timeout sweeper) outside the event
// loop; internal failures use the unexported fail helper.
func (s *Session) Fail(ctx context.Context, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail(ctx, cause)
}

// fail must be called with s.mu held.
func (s *Session) fail(ctx context.Context, cause error) error {
	if terminal(s.State) {
		return cause
	}
	s.Err = cause
	_ = s.transition(ctx, StateFailed, cause.Error())
	return cause
}

// Evidence exports a signed SessionEvidence bundle over the session's
// audit chain, per spec.md §6.8.
func (s *Session) Evidence() trust.SessionEvidence {
	s.mu.Lock()
	defer s.mu.Unlock()
	report := completion.Analyze(s.DAG, s.ActionURL != "")
	return s.chain.Export(s.ID, report)
}
