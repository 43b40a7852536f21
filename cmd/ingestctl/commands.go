package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appintegration "github.com/erp/marketplace-ingest/internal/application/integration"
	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/auth"
)

var validate = validator.New()

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("ingestctl "+name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func runIngest(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("run")
	shop := fs.String("shop", "", "Shop code (required)")
	from := fs.String("from", "", "Window start, RFC3339 (default: continue from the last successful run)")
	to := fs.String("to", "", "Window end, RFC3339 (default: now)")
	userTag := fs.String("user-tag", "", "Tag recorded on the run and its error reports")
	terminate := fs.Bool("terminate-on-fallback", false, "Exit the process when a marketplace stays unavailable")
	searchFields := fs.String("search-fields", "", "Comma separated search fields (default: all)")
	detailFields := fs.String("detail-fields", "", "Comma separated detail fields (default: all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	shopCfg, ok := e.cfg.Shop(*shop)
	if !ok {
		return fmt.Errorf("shop %q is not configured", *shop)
	}
	req, err := buildTriggerRequest(*from, *to, *userTag, *searchFields, *detailFields)
	if err != nil {
		return err
	}
	req.TerminateOnFallback = *terminate || e.cfg.Ingestion.Retry.TerminateOnFallback

	ingest := req.ToIngestRequest(shopCfg.Code)
	ingest.Statuses = shopCfg.Statuses
	if ingest.UserTag == "" {
		ingest.UserTag = shopCfg.UserTag
	}

	run, err := e.engine.Service.Ingest(ctx, ingest)
	if run != nil {
		if perr := printJSON(e.out, appintegration.ToIngestionRunResponse(run)); perr != nil {
			return perr
		}
	}
	if err != nil {
		return fmt.Errorf("%s run failed (%s): %w", shopCfg.Code, integration.KindOf(err), err)
	}
	return nil
}

// buildTriggerRequest parses the run flags into a validated request
func buildTriggerRequest(from, to, userTag, searchFields, detailFields string) (appintegration.TriggerRunRequest, error) {
	req := appintegration.TriggerRunRequest{
		UserTag:      userTag,
		SearchFields: splitList(searchFields),
		DetailFields: splitList(detailFields),
	}
	var err error
	if req.From, err = parseTime("from", from); err != nil {
		return req, err
	}
	if req.To, err = parseTime("to", to); err != nil {
		return req, err
	}
	if req.From == nil && req.To != nil {
		return req, errors.New("-to requires -from")
	}
	if req.From != nil && req.To != nil && !req.From.Before(*req.To) {
		return req, errors.New("-from must be before -to")
	}
	if err := validate.Struct(req); err != nil {
		return req, err
	}
	return req, nil
}

func parseTime(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("-%s: %w", name, err)
	}
	return &t, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// runs
// ---------------------------------------------------------------------------

func listRuns(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("runs")
	shop := fs.String("shop", "", "Only runs of this shop")
	limit := fs.Int("limit", 20, "Maximum number of runs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	runs, err := e.engine.Service.ListRuns(ctx, *shop, *limit)
	if err != nil {
		return err
	}
	return printJSON(e.out, appintegration.ToIngestionRunResponses(runs))
}

// ---------------------------------------------------------------------------
// credentials
// ---------------------------------------------------------------------------

func authorize(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("authorize")
	shop := fs.String("shop", "", "Shop code (required)")
	code := fs.String("code", "", "One-time authorization code (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *shop == "" {
		return errors.New("-shop is required")
	}
	req := appintegration.AuthorizeRequest{Code: *code}
	if err := validate.Struct(req); err != nil {
		return err
	}

	cred, err := e.engine.Tokens.StoreAuthorizationCode(ctx, *shop, req.Code)
	if err != nil {
		return err
	}
	return printJSON(e.out, appintegration.ToCredentialStatusResponse(cred, time.Now(), e.cfg.Ingestion.TokenBuffer))
}

func listCredentials(ctx context.Context, e *env, _ []string) error {
	creds, err := e.engine.Credentials.List(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	out := make([]appintegration.CredentialStatusResponse, 0, len(creds))
	for _, c := range creds {
		out = append(out, appintegration.ToCredentialStatusResponse(c, now, e.cfg.Ingestion.TokenBuffer))
	}
	return printJSON(e.out, out)
}

func importCredentials(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("import-credentials")
	file := fs.String("file", "", `JSON array of credentials, "-" for stdin (required)`)
	if err := fs.Parse(args); err != nil {
		return err
	}

	var r io.Reader
	switch *file {
	case "":
		return errors.New("-file is required")
	case "-":
		r = os.Stdin
	default:
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	creds, err := decodeCredentials(r)
	if err != nil {
		return err
	}
	for _, c := range creds {
		if _, ok := e.cfg.Shop(c.ShopCode); !ok {
			e.log.Warn("Credential for a shop that is not configured", zap.String("shop_code", c.ShopCode))
		}
		if err := e.engine.Credentials.Upsert(ctx, c); err != nil {
			return fmt.Errorf("credential %s: %w", c.ShopCode, err)
		}
	}
	e.log.Info("Credentials imported", zap.Int("count", len(creds)))
	return nil
}

// decodeCredentials reads and validates a JSON array of credentials. Shop
// codes must be unique within the file.
func decodeCredentials(r io.Reader) ([]*integration.Credential, error) {
	var creds []*integration.Credential
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil, errors.New("no credentials in input")
	}

	seen := make(map[string]bool, len(creds))
	for i, c := range creds {
		if c == nil {
			return nil, fmt.Errorf("credentials[%d]: null entry", i)
		}
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("credentials[%d]: %w", i, err)
		}
		if seen[c.ShopCode] {
			return nil, fmt.Errorf("credentials[%d]: duplicate shop code %q", i, c.ShopCode)
		}
		seen[c.ShopCode] = true
	}
	return creds, nil
}

// ---------------------------------------------------------------------------
// token
// ---------------------------------------------------------------------------

type tokenOutput struct {
	Token     string       `json:"token"`
	Operator  string       `json:"operator"`
	Scopes    []auth.Scope `json:"scopes"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func issueToken(_ context.Context, e *env, args []string) error {
	fs := newFlagSet("token")
	operator := fs.String("operator", "", "Operator name, recorded as the user tag of triggered runs (required)")
	scopes := fs.String("scopes", string(auth.ScopeRunsRead), `Comma separated scopes, or "all"`)
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	granted, err := auth.ParseScopes(*scopes)
	if err != nil {
		return err
	}
	token, expires, err := auth.NewJWTService(e.cfg.JWT).Issue(*operator, *ttl, granted...)
	if err != nil {
		return err
	}
	return printJSON(e.out, tokenOutput{Token: token, Operator: *operator, Scopes: granted, ExpiresAt: expires})
}
