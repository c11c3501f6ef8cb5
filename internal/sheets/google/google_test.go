package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{SpreadsheetID: "  "})
	if !errors.Is(err, ErrMissingSpreadsheetID) {
		t.Fatalf("expected ErrMissingSpreadsheetID, got %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestServiceAccountJSON_Sources(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/sa.json"
	if err := os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		inline string
		file   string
		adc    string
		want   string
		err    bool
	}{
		{name: "inline wins", inline: `{"inline":true}`, file: path, want: `{"inline":true}`},
		{name: "file", file: path, want: `{"type":"service_account"}`},
		{name: "application credentials", adc: path, want: `{"type":"service_account"}`},
		{name: "unreadable file", file: dir + "/missing.json", err: true},
		{name: "nothing set", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", tt.inline)
			t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", tt.file)
			t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", tt.adc)

			got, err := serviceAccountJSON(context.Background())
			if tt.err {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		baseName string
		year     int
		expected string
	}{
		{"Expenses", 2025, "2025 Expenses"},
		{"Budget Rows", 2024, "2024 Budget Rows"},
		{"", 2023, ""},
		{"2025 Already Prefixed", 2024, "2025 Already Prefixed"},
		{"1234", 2024, "2024 1234"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.baseName, tt.year); got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.baseName, tt.year, got, tt.expected)
		}
	}
}

func TestClient_AppendRowsWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.AppendRows(context.Background(), 2024, [][]string{{"a"}}); !errors.Is(err, errNoService) {
		t.Fatalf("expected errNoService, got %v", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, errNoService) {
		t.Fatalf("expected errNoService from health check, got %v", err)
	}
}

type fakeSheets struct {
	mu       sync.Mutex
	appended []gsheet.ValueRange
	paths    []string
	queries  []string
	fail     bool
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		http.Error(w, `{"error":{"code":400,"message":"boom"}}`, http.StatusBadRequest)
		return
	}
	f.paths = append(f.paths, r.URL.Path)
	f.queries = append(f.queries, r.URL.RawQuery)

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.appended = append(f.appended, vr)
		_ = json.NewEncoder(w).Encode(gsheet.AppendValuesResponse{
			SpreadsheetId: "sheet-id",
			Updates: &gsheet.UpdateValuesResponse{
				UpdatedRange: "'2024 Expenses'!A2:E3",
				UpdatedRows:  int64(len(vr.Values)),
			},
		})
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(gsheet.Spreadsheet{SpreadsheetId: "sheet-id"})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Options{
		SpreadsheetID: "sheet-id",
		ClientOptions: []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithHTTPClient(NewHTTPClient()),
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClient_AppendRows(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	rows := [][]string{
		{"2024-05-02", "Main", "Groceries", "45.10", "Food"},
		{"2024-05-01", "Main", "Rent", "900.00", "Housing"},
	}
	ref, err := c.AppendRows(context.Background(), 2024, rows)
	if err != nil {
		t.Fatalf("AppendRows: %v", err)
	}
	if ref != "'2024 Expenses'!A2:E3" {
		t.Errorf("unexpected ref %q", ref)
	}

	if len(fake.appended) != 1 || len(fake.appended[0].Values) != 2 {
		t.Fatalf("expected one append of two rows, got %+v", fake.appended)
	}
	if got := fake.appended[0].Values[1][2]; got != "Rent" {
		t.Errorf("expected description cell Rent, got %v", got)
	}
	if !strings.Contains(fake.paths[0], "2024 Expenses!A:E") {
		t.Errorf("append targeted wrong range: %s", fake.paths[0])
	}
	if !strings.Contains(fake.queries[0], "valueInputOption=USER_ENTERED") {
		t.Errorf("expected USER_ENTERED, got query %s", fake.queries[0])
	}
}

func TestClient_AppendRowsEmptyIsNoop(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	if _, err := c.AppendRows(context.Background(), 2024, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.paths) != 0 {
		t.Fatalf("empty append must not call the API")
	}
}

func TestClient_AppendRowsError(t *testing.T) {
	fake := &fakeSheets{fail: true}
	c := newTestClient(t, fake)
	_, err := c.AppendRows(context.Background(), 2024, [][]string{{"x"}})
	if err == nil || !strings.Contains(err.Error(), "2024 Expenses") {
		t.Fatalf("expected wrapped append error naming the sheet, got %v", err)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	c := newTestClient(t, &fakeSheets{})
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
