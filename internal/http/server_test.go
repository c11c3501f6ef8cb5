package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budgetapp/internal/budget"
	"budgetapp/internal/cache"
	"budgetapp/internal/core"
	"budgetapp/internal/export"
	"budgetapp/internal/query"
	"budgetapp/internal/storage"
)

var testNow = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func newEngine(t *testing.T) *budget.Engine {
	t.Helper()
	gw := storage.NewGateway(storage.NewMemoryStore(), nil, storage.WithClock(clock))
	return budget.NewEngine(gw, budget.WithClock(clock))
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *budget.Engine) {
	t.Helper()
	e := newEngine(t)
	e.Load(context.Background())
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewServer(":0", e, opts...), e
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if strings.HasPrefix(strings.TrimSpace(body), "{") {
		req.Header.Set("Content-Type", "application/json")
	} else if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func mustStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, want, rec.Body.String())
	}
}

func state(t *testing.T, e *budget.Engine) core.BudgetState {
	t.Helper()
	s, ok := e.State()
	if !ok {
		t.Fatal("engine not loaded")
	}
	return s
}

func TestHealthReadyAndHeaders(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	mustStatus(t, rec, http.StatusOK)
	if rec.Body.String() != "ok" {
		t.Errorf("healthz body = %q", rec.Body.String())
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id missing")
	}

	rec = do(t, s, http.MethodGet, "/readyz", "")
	mustStatus(t, rec, http.StatusOK)
	if body := decode[readiness](t, rec); !body.Ready || body.Checks["engine"] != "ok" {
		t.Errorf("readiness = %+v", body)
	}
}

func TestNotLoadedAndFailingReadyCheck(t *testing.T) {
	s := NewServer(":0", newEngine(t), WithReadyCheck("sheets", func(context.Context) error {
		return errors.New("unreachable")
	}))

	mustStatus(t, do(t, s, http.MethodGet, "/api/state", ""), http.StatusServiceUnavailable)
	mustStatus(t, do(t, s, http.MethodPost, "/api/expenses", `{"title":"x","amount":1}`), http.StatusServiceUnavailable)

	rec := do(t, s, http.MethodGet, "/readyz", "")
	mustStatus(t, rec, http.StatusServiceUnavailable)
	body := decode[readiness](t, rec)
	if body.Checks["sheets"] != "unreachable" || body.Checks["engine"] != "not loaded" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	s, e := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/expenses", `{"title":"Coffee","amount":"3.50","date":"2024-05-02","category":"Dining"}`)
	mustStatus(t, rec, http.StatusCreated)
	coffee := decode[core.Expense](t, rec)
	if coffee.ID != 0 || coffee.AccountID != 1 || coffee.Amount.Cents != 350 {
		t.Fatalf("created = %+v", coffee)
	}
	if rec.Header().Get(RevisionHeader) == "" {
		t.Error("revision header missing")
	}

	rec = do(t, s, http.MethodPost, "/api/expenses", "title=Lunch&amount=12,40&category=Dining")
	mustStatus(t, rec, http.StatusCreated)
	lunch := decode[core.Expense](t, rec)
	if lunch.ID != 1 || lunch.Amount.Cents != 1240 || lunch.Date != "2024-05-10" {
		t.Fatalf("created = %+v", lunch)
	}

	rec = do(t, s, http.MethodGet, "/api/expenses?sort=amount-desc", "")
	mustStatus(t, rec, http.StatusOK)
	if list := decode[[]core.Expense](t, rec); len(list) != 2 || list[0].Title != "Lunch" {
		t.Fatalf("sorted list = %+v", list)
	}
	rec = do(t, s, http.MethodGet, "/api/expenses?q=COFFEE", "")
	if list := decode[[]core.Expense](t, rec); len(list) != 1 || list[0].ID != 0 {
		t.Fatalf("filtered list = %+v", list)
	}
	rec = do(t, s, http.MethodGet, "/api/expenses?q=main", "")
	if list := decode[[]core.Expense](t, rec); len(list) != 2 {
		t.Fatalf("account-name search = %+v", list)
	}
	mustStatus(t, do(t, s, http.MethodGet, "/api/expenses?sort=color", ""), http.StatusUnprocessableEntity)

	mustStatus(t, do(t, s, http.MethodPatch, "/api/expenses/0", `{"amount":4,"recurring":true}`), http.StatusOK)
	got := state(t, e).Months["2024-05"].Accounts["1"].Expenses[0]
	if got.Amount.Cents != 400 || !got.Recurring || got.Title != "Coffee" {
		t.Errorf("edited = %+v", got)
	}
	mustStatus(t, do(t, s, http.MethodPatch, "/api/expenses/9", `{"amount":4}`), http.StatusNotFound)
	mustStatus(t, do(t, s, http.MethodPatch, "/api/expenses/0", `{"title":""}`), http.StatusUnprocessableEntity)

	mustStatus(t, do(t, s, http.MethodDelete, "/api/expenses/0?accountId=1", ""), http.StatusOK)
	mustStatus(t, do(t, s, http.MethodDelete, "/api/expenses/0", ""), http.StatusNotFound)
	mustStatus(t, do(t, s, http.MethodDelete, "/api/expenses/abc", ""), http.StatusBadRequest)

	rec = do(t, s, http.MethodPost, "/api/expenses", `{"title":"Tea","amount":2}`)
	if next := decode[core.Expense](t, rec); next.ID != 2 {
		t.Errorf("ids must not be reused, got %d", next.ID)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing title", `{"amount":1}`, http.StatusUnprocessableEntity},
		{"missing amount", `{"title":"x"}`, http.StatusUnprocessableEntity},
		{"bad amount", `{"title":"x","amount":"abc"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"title":"x","amount":1,"date":"2024-02-30"}`, http.StatusUnprocessableEntity},
		{"title too long", `{"title":"` + strings.Repeat("a", 201) + `","amount":1}`, http.StatusUnprocessableEntity},
		{"malformed json", `{"title":`, http.StatusBadRequest},
		{"bad account id", `{"title":"x","amount":1,"accountId":"one"}`, http.StatusUnprocessableEntity},
		{"unknown account", `{"title":"x","amount":1,"accountId":9}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			mustStatus(t, do(t, s, http.MethodPost, "/api/expenses", tt.body), tt.want)
		})
	}
}

type summaryBody struct {
	Income   core.Money       `json:"income"`
	Spent    core.Money       `json:"spent"`
	Balance  core.Money       `json:"balance"`
	Status   string           `json:"balanceStatus"`
	Progress []query.Progress `json:"progress"`
}

func TestIncomeBudgetsAndSummary(t *testing.T) {
	summaries := cache.NewSummaries(16, time.Minute)
	s, e := newTestServer(t, WithSummaryCache(summaries))

	mustStatus(t, do(t, s, http.MethodPut, "/api/income", `{"amount":"2000"}`), http.StatusOK)
	mustStatus(t, do(t, s, http.MethodPut, "/api/budgets", `{"budgets":{"Dining":100,"Travel":50}}`), http.StatusOK)
	mustStatus(t, do(t, s, http.MethodPut, "/api/budgets/Travel", "amount=0"), http.StatusOK)
	mustStatus(t, do(t, s, http.MethodPut, "/api/budgets", `{"budgets":{}}`), http.StatusUnprocessableEntity)
	mustStatus(t, do(t, s, http.MethodPut, "/api/income", `{"amount":"-1"}`), http.StatusUnprocessableEntity)
	mustStatus(t, do(t, s, http.MethodPost, "/api/expenses", `{"title":"Dinner","amount":25,"category":"Dining"}`), http.StatusCreated)

	budgets := state(t, e).Months["2024-05"].Accounts["1"].CategoryBudgets
	if _, ok := budgets["Travel"]; ok {
		t.Error("zero budget should clear the category")
	}

	for i := 0; i < 2; i++ {
		rec := do(t, s, http.MethodGet, "/api/summary?view=all", "")
		mustStatus(t, rec, http.StatusOK)
		sum := decode[summaryBody](t, rec)
		if sum.Income.Cents != 200000 || sum.Spent.Cents != 2500 || sum.Balance.Cents != 197500 || sum.Status != "surplus" {
			t.Fatalf("summary = %+v", sum)
		}
		if len(sum.Progress) != 1 || sum.Progress[0].Category != "Dining" || sum.Progress[0].Budget.Cents != 10000 {
			t.Fatalf("progress = %+v", sum.Progress)
		}
	}
	if st := summaries.Stats(); st.Hits != 1 || st.Misses != 1 {
		t.Errorf("cache stats = %+v", st)
	}

	mustStatus(t, do(t, s, http.MethodGet, "/api/summary?month=bad", ""), http.StatusUnprocessableEntity)
	mustStatus(t, do(t, s, http.MethodGet, "/api/accounts/summary", ""), http.StatusOK)
}

func TestCategories(t *testing.T) {
	s, e := newTestServer(t)

	mustStatus(t, do(t, s, http.MethodPost, "/api/categories", `{"name":"Pets"}`), http.StatusOK)
	mustStatus(t, do(t, s, http.MethodPost, "/api/categories", `{"name":"Pets"}`), http.StatusConflict)
	mustStatus(t, do(t, s, http.MethodPost, "/api/categories", `{"name":" "}`), http.StatusUnprocessableEntity)
	mustStatus(t, do(t, s, http.MethodPost, "/api/categories", `{"name":"Fuel","accountId":9}`), http.StatusNotFound)
	mustStatus(t, do(t, s, http.MethodPost, "/api/categories", `{"name":"Fuel","accountId":1}`), http.StatusOK)
	if !state(t, e).Accounts[0].HasCategory("Pets") {
		t.Fatal("category not added")
	}
	mustStatus(t, do(t, s, http.MethodDelete, "/api/categories/Pets", ""), http.StatusOK)
	mustStatus(t, do(t, s, http.MethodDelete, "/api/categories/Pets", ""), http.StatusNotFound)
}

func TestAccounts(t *testing.T) {
	s, e := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/accounts", `{"name":"Card","type":"Credit Card","initialBalance":"100"}`)
	mustStatus(t, rec, http.StatusCreated)
	if acct := decode[core.Account](t, rec); acct.ID != 2 || acct.Type != core.AccountCreditCard {
		t.Fatalf("created = %+v", acct)
	}
	if inc := state(t, e).Months["2024-05"].Accounts["2"].Income; inc.Cents != 10000 {
		t.Errorf("initial balance income = %v", inc)
	}
	mustStatus(t, do(t, s, http.MethodPost, "/api/accounts", `{"name":"X","type":"Bitcoin"}`), http.StatusUnprocessableEntity)
	mustStatus(t, do(t, s, http.MethodPost, "/api/accounts", `{"type":"Cash"}`), http.StatusUnprocessableEntity)

	rec = do(t, s, http.MethodPatch, "/api/accounts/2", `{"name":"Visa"}`)
	mustStatus(t, rec, http.StatusOK)
	if !decode[changed](t, rec).Changed || state(t, e).AccountName(2) != "Visa" {
		t.Error("rename not applied")
	}
	mustStatus(t, do(t, s, http.MethodPatch, "/api/accounts/9", `{"name":"Visa"}`), http.StatusNotFound)

	mustStatus(t, do(t, s, http.MethodPut, "/api/view", `{"view":2}`), http.StatusOK)
	mustStatus(t, do(t, s, http.MethodPost, "/api/accounts/2/archive", `{}`), http.StatusOK)
	st := state(t, e)
	if !st.Accounts[1].Archived || st.ActiveAccount != core.AccountView(1) {
		t.Fatalf("archive did not move the view: %+v", st.ActiveAccount)
	}
	mustStatus(t, do(t, s, http.MethodPost, "/api/accounts/1/archive", `{"archived":true}`), http.StatusConflict)
	mustStatus(t, do(t, s, http.MethodPost, "/api/accounts/2/archive", `{"archived":false}`), http.StatusOK)
}

func TestMonthViewAndSettings(t *testing.T) {
	s, e := newTestServer(t)

	mustStatus(t, do(t, s, http.MethodPut, "/api/month", `{"month":"2024-06"}`), http.StatusOK)
	if st := state(t, e); st.CurrentMonth != "2024-06" {
		t.Fatalf("current month = %s", st.CurrentMonth)
	}
	mustStatus(t, do(t, s, http.MethodPut, "/api/month", `{"month":"June"}`), http.StatusUnprocessableEntity)

	mustStatus(t, do(t, s, http.MethodPut, "/api/view", `{"view":"all"}`), http.StatusOK)
	if !state(t, e).ActiveAccount.IsAll() {
		t.Error("view not switched")
	}
	mustStatus(t, do(t, s, http.MethodPut, "/api/view", `{"view":9}`), http.StatusNotFound)
	mustStatus(t, do(t, s, http.MethodPut, "/api/view", `{"view":"x"}`), http.StatusUnprocessableEntity)

	mustStatus(t, do(t, s, http.MethodPut, "/api/currency", `{"currency":"eur"}`), http.StatusOK)
	if st := state(t, e); st.Currency != "EUR" {
		t.Errorf("currency = %s", st.Currency)
	}
	mustStatus(t, do(t, s, http.MethodPut, "/api/currency", `{"currency":"XYZ"}`), http.StatusUnprocessableEntity)

	mustStatus(t, do(t, s, http.MethodPut, "/api/profile", `{"name":"A","age":"30","gender":"f","kycInfo":"ID12345"}`), http.StatusUnprocessableEntity)
	mustStatus(t, do(t, s, http.MethodPut, "/api/profile", `{"name":"Ada","age":30,"gender":"f","kycInfo":"ID12345"}`), http.StatusOK)
	if p := state(t, e).UserProfile; p == nil || p.Name != "Ada" || p.Age != "30" {
		t.Errorf("profile = %+v", p)
	}

	mustStatus(t, do(t, s, http.MethodPost, "/api/expenses", `{"title":"x","amount":1,"accountId":1}`), http.StatusCreated)
	rec := do(t, s, http.MethodPost, "/api/month/reset", "")
	mustStatus(t, rec, http.StatusOK)
	if m := state(t, e).Months["2024-06"]; m.NextExpenseID != 0 || len(m.Accounts["1"].Expenses) != 0 {
		t.Errorf("month not reset: %+v", m)
	}

	mustStatus(t, do(t, s, http.MethodDelete, "/api/data", ""), http.StatusOK)
	if st := state(t, e); st.Currency != core.DefaultCurrency || st.CurrentMonth != "2024-05" {
		t.Errorf("state not cleared: %s %s", st.Currency, st.CurrentMonth)
	}
	mustStatus(t, do(t, s, http.MethodPost, "/api/reload", ""), http.StatusOK)
}

type recordingSink struct {
	name    string
	err     error
	batches []export.Batch
}

func (r *recordingSink) Name() string { return r.name }
func (r *recordingSink) Write(_ context.Context, b export.Batch) error {
	r.batches = append(r.batches, b)
	return r.err
}

func TestExports(t *testing.T) {
	sink := &recordingSink{name: "mem"}
	s, _ := newTestServer(t, WithExportSinks(time.Second, sink))
	mustStatus(t, do(t, s, http.MethodPost, "/api/expenses", `{"title":"Coffee","amount":3.5,"date":"2024-05-02","category":"Dining"}`), http.StatusCreated)

	rec := do(t, s, http.MethodGet, "/api/export/csv", "")
	mustStatus(t, rec, http.StatusOK)
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	want := "Date,Account,Description,Amount,Category\n2024-05-02,Main,Coffee,3.50,Dining\n"
	if rec.Body.String() != want {
		t.Errorf("csv = %q, want %q", rec.Body.String(), want)
	}

	rec = do(t, s, http.MethodGet, "/api/export/json", "")
	mustStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "budget-2024-05-10.json") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if dump := decode[core.BudgetState](t, rec); dump.Version != core.CurrentVersion {
		t.Errorf("dump version = %d", dump.Version)
	}

	rec = do(t, s, http.MethodGet, "/api/export/report", "")
	mustStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Main") || !strings.Contains(rec.Body.String(), "2024-05") {
		t.Errorf("report missing account or month")
	}

	rec = do(t, s, http.MethodPost, "/api/export", "")
	mustStatus(t, rec, http.StatusAccepted)
	accepted := decode[exportAccepted](t, rec)
	if accepted.Rows != 1 || accepted.ID == "" || len(sink.batches) != 1 || sink.batches[0].ID != accepted.ID {
		t.Errorf("accepted = %+v, batches = %d", accepted, len(sink.batches))
	}

	sink.err = errors.New("down")
	mustStatus(t, do(t, s, http.MethodPost, "/api/export", ""), http.StatusBadGateway)
}

func TestExportWithoutSinks(t *testing.T) {
	s, _ := newTestServer(t)
	mustStatus(t, do(t, s, http.MethodPost, "/api/export", ""), http.StatusServiceUnavailable)
}

func TestRateLimitAppliesToMutationsOnly(t *testing.T) {
	s, _ := newTestServer(t, WithRateLimit(1))

	mustStatus(t, do(t, s, http.MethodPost, "/api/categories", `{"name":"A"}`), http.StatusOK)
	mustStatus(t, do(t, s, http.MethodPost, "/api/categories", `{"name":"B"}`), http.StatusTooManyRequests)
	mustStatus(t, do(t, s, http.MethodGet, "/api/state", ""), http.StatusOK)
}

func TestShutdownTwice(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
