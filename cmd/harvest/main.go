// Command harvest is the CLI surface over the analysis core (spec.md
// §6.6): a thin dispatcher that loads configuration, resolves an LLM
// provider, and drives one session through the FSM per subcommand.
// Every command prints structured JSON and exits non-zero on error,
// grounded on the teacher's cmd/replayctl/main.go dispatch style.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/harvestcore/harvest/internal/completion"
	"github.com/harvestcore/harvest/internal/config"
	"github.com/harvestcore/harvest/internal/errs"
	"github.com/harvestcore/harvest/internal/har"
	"github.com/harvestcore/harvest/internal/llm"
	_ "github.com/harvestcore/harvest/internal/llm/gemini"
	_ "github.com/harvestcore/harvest/internal/llm/openai"
	"github.com/harvestcore/harvest/internal/sessionmgr"
	"github.com/harvestcore/harvest/internal/tracing"
	"github.com/harvestcore/harvest/internal/vault"
)

var mgr *sessionmgr.Manager

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Initialize(envOr("HARVEST_CONFIG", ""), config.Config{})
	if err != nil {
		fail(errs.New(errs.KindIoError, "loading configuration: %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracer, shutdown, err := tracing.Init(ctx, tracing.Config{Endpoint: envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "")})
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARN: tracing disabled: %v\n", err)
	}
	if shutdown != nil {
		defer shutdown(ctx)
	}

	var vc *vault.Client
	if endpoint := envOr("HARVEST_VAULT_ENDPOINT", ""); endpoint != "" {
		vc, err = vault.New(ctx, vault.Options{
			Endpoint:        endpoint,
			AccessKeyID:     envOr("HARVEST_VAULT_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: envOr("HARVEST_VAULT_SECRET_KEY", "minioadmin"),
			Bucket:          envOr("HARVEST_VAULT_BUCKET", "harvest-artifacts"),
			UseSSL:          envOr("HARVEST_VAULT_USE_SSL", "false") == "true",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARN: vault disabled: %v\n", err)
			vc = nil
		}
	}

	mgr = sessionmgr.New(sessionmgr.Options{
		MaxSessions:              cfg.Session.MaxSessions,
		IdleTimeout:              time.Duration(cfg.Session.TimeoutMinutes) * time.Minute,
		CompletedSessionCacheTTL: time.Duration(cfg.Session.CompletedSessionCacheTTLMinutes) * time.Minute,
		CleanupInterval:          time.Duration(cfg.Session.CleanupIntervalMinutes) * time.Minute,
		ChainKey:                 []byte(envOr("HARVEST_AUDIT_KEY", "harvest-dev-audit-key")),
		Tracer:                   tracer,
		Vault:                    vc,
	})
	defer mgr.Stop()

	cmd := os.Args[1]
	args := os.Args[2:]

	var cmdErr error
	switch cmd {
	case "session":
		cmdErr = dispatchSession(ctx, cfg, args)
	case "process-next":
		cmdErr = cmdProcessNext(ctx, args)
	case "is-complete":
		cmdErr = cmdIsComplete(args)
	case "get-unresolved":
		cmdErr = cmdGetUnresolved(args)
	case "get-completion-blockers":
		cmdErr = cmdGetCompletionBlockers(args)
	case "generate-code":
		cmdErr = cmdGenerateCode(ctx, args)
	case "delete-session":
		cmdErr = cmdDeleteSession(args)
	case "list-all-requests":
		cmdErr = cmdListAllRequests(args)
	default:
		usage()
		os.Exit(1)
	}

	if cmdErr != nil {
		fail(cmdErr)
	}
}

func dispatchSession(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "start":
		return cmdSessionStart(ctx, cfg, args[1:])
	case "status":
		return cmdSessionStatus(args[1:])
	case "list":
		return cmdSessionList(args[1:])
	default:
		usage()
		os.Exit(1)
	}
	return nil
}

func cmdSessionStart(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("session start", flag.ExitOnError)
	id := fs.String("id", "", "session id (generated if omitted)")
	prompt := fs.String("prompt", "", "natural-language workflow description")
	harPath := fs.String("har", "", "path to a HAR 1.2 file")
	cookiesPath := fs.String("cookies", "", "path to a cookie bundle JSON file")
	providerFlag := fs.String("provider", "", "llm provider override (openai|gemini)")
	fs.Parse(args)

	if *prompt == "" || *harPath == "" {
		return errs.New(errs.KindInvalidHarFormat, "session start requires --prompt and --har")
	}
	sessionID := *id
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	harData, err := os.ReadFile(*harPath)
	if err != nil {
		return errs.Wrap(errs.KindIoError, err, "reading HAR file %s", *harPath)
	}
	var cookieData []byte
	if *cookiesPath != "" {
		cookieData, err = os.ReadFile(*cookiesPath)
		if err != nil {
			return errs.Wrap(errs.KindIoError, err, "reading cookie bundle %s", *cookiesPath)
		}
	}

	provider, err := resolveProvider(cfg, *providerFlag)
	if err != nil {
		return err
	}

	sess, err := mgr.Create(sessionID, *prompt, provider)
	if err != nil {
		return err
	}

	if err := sess.StartSession(ctx, harData, cookieData, har.Options{}, nil); err != nil {
		return err
	}
	if err := sess.IdentifyWorkflow(ctx); err != nil {
		return err
	}

	return printJSON(map[string]any{
		"sessionId": sessionID,
		"progress":  sess.Progress(),
	})
}

func cmdSessionStatus(args []string) error {
	fs := flag.NewFlagSet("session status", flag.ExitOnError)
	id := fs.String("id", "", "session id")
	fs.Parse(args)
	sess, err := mgr.Get(*id)
	if err != nil {
		return err
	}
	return printJSON(sess.Progress())
}

func cmdSessionList(args []string) error {
	return printJSON(map[string]any{"sessions": mgr.List()})
}

func cmdProcessNext(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("process-next", flag.ExitOnError)
	id := fs.String("id", "", "session id")
	fs.Parse(args)
	sess, err := mgr.Get(*id)
	if err != nil {
		return err
	}
	if err := sess.ProcessNextNode(ctx); err != nil {
		return err
	}
	return printJSON(sess.Progress())
}

func cmdIsComplete(args []string) error {
	fs := flag.NewFlagSet("is-complete", flag.ExitOnError)
	id := fs.String("id", "", "session id")
	fs.Parse(args)
	sess, err := mgr.Get(*id)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"complete": sess.DAG.IsComplete()})
}

func cmdGetUnresolved(args []string) error {
	fs := flag.NewFlagSet("get-unresolved", flag.ExitOnError)
	id := fs.String("id", "", "session id")
	fs.Parse(args)
	sess, err := mgr.Get(*id)
	if err != nil {
		return err
	}
	var unresolved []map[string]any
	for _, n := range sess.DAG.GetAllNodes() {
		if len(n.DynamicParts) > 0 {
			unresolved = append(unresolved, map[string]any{"nodeId": n.ID, "dynamicParts": n.DynamicParts})
		}
	}
	return printJSON(map[string]any{"unresolved": unresolved})
}

func cmdGetCompletionBlockers(args []string) error {
	fs := flag.NewFlagSet("get-completion-blockers", flag.ExitOnError)
	id := fs.String("id", "", "session id")
	fs.Parse(args)
	sess, err := mgr.Get(*id)
	if err != nil {
		return err
	}
	report := completion.Analyze(sess.DAG, sess.ActionURL != "")
	return printJSON(report)
}

func cmdGenerateCode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate-code", flag.ExitOnError)
	id := fs.String("id", "", "session id")
	fs.Parse(args)
	sess, err := mgr.Get(*id)
	if err != nil {
		return err
	}
	source, err := sess.GenerateCode(ctx, time.Now())
	if err != nil {
		return err
	}
	mgr.MarkCompleted(*id, time.Now())
	return printJSON(map[string]any{"source": source})
}

func cmdDeleteSession(args []string) error {
	fs := flag.NewFlagSet("delete-session", flag.ExitOnError)
	id := fs.String("id", "", "session id")
	fs.Parse(args)
	if err := mgr.Delete(*id); err != nil {
		return err
	}
	return printJSON(map[string]any{"deleted": *id})
}

func cmdListAllRequests(args []string) error {
	fs := flag.NewFlagSet("list-all-requests", flag.ExitOnError)
	id := fs.String("id", "", "session id")
	fs.Parse(args)
	sess, err := mgr.Get(*id)
	if err != nil {
		return err
	}
	if sess.HAR == nil {
		return printJSON(map[string]any{"requests": []har.URLSummary{}})
	}
	return printJSON(map[string]any{"requests": sess.HAR.URLSummaries})
}

func resolveProvider(cfg config.Config, flagOverride string) (llm.Provider, error) {
	keys := map[string]string{
		"openai": cfg.LLM.Providers["openai"].APIKey,
		"gemini": cfg.LLM.Providers["gemini"].APIKey,
	}
	name := llm.Select(llm.SelectionInput{
		CLIFlag:       flagOverride,
		EnvProvider:   envOr("LLM_PROVIDER", cfg.LLM.Provider),
		AvailableKeys: keys,
	})
	if name == "" {
		return nil, errs.New(errs.KindNoProviderConfigured, "no LLM provider configured: set an API key or llm.provider")
	}
	pc := cfg.LLM.Providers[name]
	return llm.New(name, llm.Config{
		APIKey:     pc.APIKey,
		Model:      pc.Model,
		Timeout:    config.ProviderTimeout(cfg, name),
		MaxRetries: pc.MaxRetries,
	})
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindIoError, err, "marshaling output")
	}
	fmt.Println(string(data))
	return nil
}

func fail(err error) {
	kind := errs.KindOf(err)
	if kind == "" {
		kind = "InternalError"
	}
	data, _ := json.MarshalIndent(map[string]any{
		"code":    kind,
		"message": err.Error(),
	}, "", "  ")
	fmt.Fprintln(os.Stderr, string(data))
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: harvest <command> [flags]

Commands:
  session start   --prompt P --har FILE [--cookies FILE] [--id ID] [--provider NAME]
  session status  --id ID
  session list
  process-next    --id ID
  is-complete     --id ID
  get-unresolved  --id ID
  get-completion-blockers --id ID
  generate-code   --id ID
  delete-session  --id ID
  list-all-requests --id ID`)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
