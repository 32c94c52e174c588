package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"conti/internal/core"
	"conti/internal/remote"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client talks to the spreadsheet backend directly over the Sheets API.
// Server-side credentials come from the environment; the spreadsheet id
// and the optional read API key arrive per call with the stored settings.
type Client struct {
	mu     sync.Mutex
	svc    *gsheet.Service
	apiKey string
	env    bool
}

// Ensure interface conformance
var _ remote.Adapter = (*Client)(nil)

// tab describes one worksheet: its name and how many data columns it
// carries including the id column. The tombstone marker lives in the
// first column after the data.
type tab struct {
	name  string
	width int
}

var entityTabs = map[core.Kind]tab{
	core.KindExpense:  {"Expenses", 8},
	core.KindIncome:   {"Income", 8},
	core.KindTransfer: {"Transfers", 8},
	core.KindAccount:  {"Accounts", 3},
}

var (
	configTab     = tab{"Config", 3}
	budgetsTab    = tab{"Budgets", 3}
	categoriesTab = tab{"Categories", 1}
)

var sectionHeaders = map[string][]any{
	"Config":     {"ID", "Value", "Extra"},
	"Budgets":    {"ID", "Category", "Cents"},
	"Categories": {"ID"},
}

// NewFromEnv creates a Sheets client. When service account or OAuth
// credentials are present in the environment the service is built
// eagerly so a misconfiguration surfaces at startup; otherwise the
// client is built lazily from the API key stored in settings.
func NewFromEnv(ctx context.Context) (*Client, error) {
	c := &Client{}
	if hasEnvCredentials() {
		svc, err := newSheetsService(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("sheets service: %w", err)
		}
		c.svc = svc
		c.env = true
	}
	return c, nil
}

func hasEnvCredentials() bool {
	for _, name := range []string{
		"GOOGLE_SERVICE_ACCOUNT_JSON",
		"GOOGLE_SERVICE_ACCOUNT_FILE",
		"GOOGLE_APPLICATION_CREDENTIALS",
		"GOOGLE_OAUTH_TOKEN_FILE",
	} {
		if strings.TrimSpace(os.Getenv(name)) != "" {
			return true
		}
	}
	return false
}

// newSheetsService initializes a Sheets Service. Credential sources in
// order: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// GOOGLE_APPLICATION_CREDENTIALS, GOOGLE_OAUTH_TOKEN_FILE, then the
// API key from settings.
func newSheetsService(ctx context.Context, apiKey string) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	tokenFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"))

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Creating Sheets service from inline service account")
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON([]byte(serviceAccountJSON)),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Creating Sheets service from credentials file", "path", serviceAccountFile)
		return gsheet.NewService(ctx,
			goption.WithCredentialsFile(serviceAccountFile),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	case tokenFile != "":
		slog.InfoContext(ctx, "Creating Sheets service from OAuth token", "path", tokenFile)
		ts, err := tokenSourceFromFile(ctx, tokenFile)
		if err != nil {
			return nil, err
		}
		return gsheet.NewService(ctx, goption.WithTokenSource(ts))
	case apiKey != "":
		slog.InfoContext(ctx, "Creating Sheets service from stored API key")
		return gsheet.NewService(ctx,
			goption.WithAPIKey(apiKey),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	default:
		return nil, errors.New("missing google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, GOOGLE_OAUTH_TOKEN_FILE, or store an API key in settings)")
	}
}

// tokenSourceFromFile loads the token written by conti-auth and wraps
// it in a refreshing source built from the OAuth client config.
func tokenSourceFromFile(ctx context.Context, path string) (oauth2.TokenSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token file: %w", err)
	}
	cfg, err := OAuthConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return cfg.TokenSource(ctx, &tok), nil
}

// OAuthConfigFromEnv loads the OAuth client configuration used both by
// this client for token refresh and by conti-auth for the initial
// exchange. Set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE,
// or the plain GOOGLE_OAUTH_CLIENT_ID/GOOGLE_OAUTH_CLIENT_SECRET pair.
func OAuthConfigFromEnv() (*oauth2.Config, error) {
	clientJSON := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
	clientFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))
	var b []byte
	var err error
	switch {
	case clientJSON != "":
		b = []byte(clientJSON)
	case clientFile != "":
		b, err = os.ReadFile(clientFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
	default:
		id := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_ID"))
		secret := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"))
		if id == "" || secret == "" {
			return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON, GOOGLE_OAUTH_CLIENT_FILE, or GOOGLE_OAUTH_CLIENT_ID and GOOGLE_OAUTH_CLIENT_SECRET)")
		}
		return &oauth2.Config{
			ClientID:     id,
			ClientSecret: secret,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       []string{gsheet.SpreadsheetsScope},
		}, nil
	}
	cfg, err := googleoauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

func (c *Client) service(ctx context.Context, creds remote.Credentials) (*gsheet.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svc != nil && (c.env || c.apiKey == creds.APIKey) {
		return c.svc, nil
	}
	svc, err := newSheetsService(ctx, creds.APIKey)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	c.svc = svc
	c.apiKey = creds.APIKey
	return svc, nil
}

func (c *Client) FetchSnapshot(ctx context.Context, creds remote.Credentials) (core.Snapshot, error) {
	svc, err := c.service(ctx, creds)
	if err != nil {
		return core.Snapshot{}, err
	}
	if creds.SpreadsheetID == "" {
		return core.Snapshot{}, errors.New("missing spreadsheet id in settings")
	}

	order := []tab{
		entityTabs[core.KindExpense],
		entityTabs[core.KindIncome],
		entityTabs[core.KindTransfer],
		entityTabs[core.KindAccount],
		configTab,
		budgetsTab,
		categoriesTab,
	}
	ranges := make([]string, len(order))
	for i, t := range order {
		ranges[i] = readRange(t)
	}

	resp, err := svc.Spreadsheets.Values.BatchGet(creds.SpreadsheetID).
		Ranges(ranges...).Context(ctx).Do()
	if err != nil {
		return core.Snapshot{}, wrapAPIErr("fetch snapshot", err)
	}
	if len(resp.ValueRanges) != len(order) {
		return core.Snapshot{}, fmt.Errorf("fetch snapshot: got %d ranges, want %d", len(resp.ValueRanges), len(order))
	}

	cols := remote.Collections{
		Expenses:   liveRows(resp.ValueRanges[0].Values, order[0].width),
		Incomes:    liveRows(resp.ValueRanges[1].Values, order[1].width),
		Transfers:  liveRows(resp.ValueRanges[2].Values, order[2].width),
		Accounts:   liveRows(resp.ValueRanges[3].Values, order[3].width),
		Config:     liveRows(resp.ValueRanges[4].Values, order[4].width),
		Budgets:    liveRows(resp.ValueRanges[5].Values, order[5].width),
		Categories: liveRows(resp.ValueRanges[6].Values, order[6].width),
	}
	return remote.DecodeCollections(cols), nil
}

func (c *Client) AppendEntities(ctx context.Context, creds remote.Credentials, kind core.Kind, rows []remote.Row) error {
	t, ok := entityTabs[kind]
	if !ok {
		return fmt.Errorf("append: unsupported kind %q", kind)
	}
	if len(rows) == 0 {
		return nil
	}
	svc, err := c.service(ctx, creds)
	if err != nil {
		return err
	}

	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		values = append(values, rowValues(r, t.width))
	}
	vr := &gsheet.ValueRange{Values: values}
	_, err = svc.Spreadsheets.Values.Append(creds.SpreadsheetID, readRange(t), vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return wrapAPIErr(fmt.Sprintf("append to %s", t.name), err)
	}
	return nil
}

func (c *Client) MarkDeleted(ctx context.Context, creds remote.Credentials, kind core.Kind, id string) error {
	t, ok := entityTabs[kind]
	if !ok {
		return fmt.Errorf("mark deleted: unsupported kind %q", kind)
	}
	svc, err := c.service(ctx, creds)
	if err != nil {
		return err
	}

	rng := fmt.Sprintf("%s!A:A", t.name)
	resp, err := svc.Spreadsheets.Values.Get(creds.SpreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return wrapAPIErr(fmt.Sprintf("read %s", rng), err)
	}

	marker := colLetter(t.width)
	var data []*gsheet.ValueRange
	for i, row := range resp.Values {
		if len(row) == 0 || cellString(row[0]) != id {
			continue
		}
		data = append(data, &gsheet.ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", t.name, marker, i+1),
			Values: [][]any{{"1"}},
		})
	}
	if len(data) == 0 {
		// Already gone, or never pushed. Either way the delete holds.
		slog.InfoContext(ctx, "No remote rows to mark deleted", "kind", kind, "id", id)
		return nil
	}

	req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: data}
	if _, err := svc.Spreadsheets.Values.BatchUpdate(creds.SpreadsheetID, req).Context(ctx).Do(); err != nil {
		return wrapAPIErr(fmt.Sprintf("mark deleted in %s", t.name), err)
	}
	return nil
}

func (c *Client) SaveConfig(ctx context.Context, creds remote.Credentials, s core.Settings) error {
	return c.rewriteSection(ctx, creds, configTab, remote.EncodeConfig(s))
}

func (c *Client) SaveBudgets(ctx context.Context, creds remote.Credentials, b core.Budgets) error {
	return c.rewriteSection(ctx, creds, budgetsTab, remote.EncodeBudgets(b))
}

func (c *Client) SaveCategories(ctx context.Context, creds remote.Credentials, cats []string) error {
	return c.rewriteSection(ctx, creds, categoriesTab, remote.EncodeCategories(cats))
}

// rewriteSection clears a whole-document worksheet and writes the
// header plus the new rows. Sections are small so the two calls are
// acceptable; a reader between them sees an empty section, which the
// merge treats as absent and leaves local state alone.
func (c *Client) rewriteSection(ctx context.Context, creds remote.Credentials, t tab, rows []remote.Row) error {
	svc, err := c.service(ctx, creds)
	if err != nil {
		return err
	}

	clearRange := fmt.Sprintf("%s!A:%s", t.name, colLetter(t.width-1))
	if _, err := svc.Spreadsheets.Values.Clear(creds.SpreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return wrapAPIErr(fmt.Sprintf("clear %s", t.name), err)
	}

	values := [][]any{sectionHeaders[t.name]}
	for _, r := range rows {
		values = append(values, rowValues(r, t.width))
	}
	vr := &gsheet.ValueRange{Values: values}
	if _, err := svc.Spreadsheets.Values.Update(creds.SpreadsheetID, t.name+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return wrapAPIErr(fmt.Sprintf("write %s", t.name), err)
	}
	return nil
}

func readRange(t tab) string {
	// Include the tombstone marker column after the data.
	return fmt.Sprintf("%s!A:%s", t.name, colLetter(t.width))
}

// liveRows converts raw sheet values into wire rows, dropping header
// rows, blank ids, and rows carrying the tombstone marker.
func liveRows(values [][]any, width int) []remote.Row {
	var out []remote.Row
	for _, raw := range values {
		if len(raw) == 0 {
			continue
		}
		id := cellString(raw[0])
		if id == "" || id == "ID" {
			continue
		}
		if len(raw) > width && markerSet(cellString(raw[width])) {
			continue
		}
		fields := make([]string, 0, width-1)
		for i := 1; i < width && i < len(raw); i++ {
			fields = append(fields, cellString(raw[i]))
		}
		out = append(out, remote.Row{ID: id, Fields: fields})
	}
	return out
}

func rowValues(r remote.Row, width int) []any {
	values := make([]any, width)
	values[0] = r.ID
	for i := 1; i < width; i++ {
		if i-1 < len(r.Fields) {
			values[i] = r.Fields[i-1]
		} else {
			values[i] = ""
		}
	}
	return values
}

func markerSet(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "x", "yes":
		return true
	}
	return false
}

func cellString(v any) string {
	return strings.TrimSpace(fmt.Sprint(v))
}

// colLetter maps a zero-based column index to its A1 letter. Tabs here
// never exceed column Z.
func colLetter(i int) string {
	return string(rune('A' + i))
}

func wrapAPIErr(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden {
			return fmt.Errorf("%s: %w", op, remote.ErrUnauthorized)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
