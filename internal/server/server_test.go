package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"jobpay/internal/config"
	"jobpay/internal/db"
	"jobpay/internal/engine"
	"jobpay/internal/engine/auth"
	"jobpay/internal/migrate"
	"jobpay/internal/repo"
	"jobpay/internal/seed"
	"jobpay/internal/store"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, authCfg AuthConfig) (*testServer, func()) {
	t.Helper()
	return newTestServerWith(t, authCfg, testOptions{})
}

type testOptions struct {
	// wrap replaces the seeded store before the engine sees it.
	wrap func(store.Store) store.Store
	// config adjusts the engine config.
	config func(*config.Config)
}

func newTestServerWith(t *testing.T, authCfg AuthConfig, opts testOptions) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.New(conn)
	fixtures, err := seed.Default()
	if err != nil {
		t.Fatalf("fixtures: %v", err)
	}
	if _, err := seed.Apply(ctx, r, fixtures, time.Now()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var st store.Store = r
	if opts.wrap != nil {
		st = opts.wrap(r)
	}
	if opts.config != nil {
		opts.config(cfg)
	}
	handler, err := New(Config{Engine: engine.New(st, cfg), Auth: authCfg})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func as(id int) map[string]string {
	return map[string]string{"profile_id": strconv.Itoa(id)}
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func expectError(t *testing.T, res *http.Response, body []byte, status int, code string) errorEnvelope {
	t.Helper()
	if res.StatusCode != status {
		t.Fatalf("expected %d, got %d: %s", status, res.StatusCode, string(body))
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode error envelope: %v: %s", err, string(body))
	}
	if env.Error.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, env.Error.Code, env.Error.Message)
	}
	return env
}

func TestHealthAndRequestID(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil, nil)
	if res.StatusCode != http.StatusOK || res.Header.Get("X-Request-ID") == "" {
		t.Fatalf("health: %d %s", res.StatusCode, string(body))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil, map[string]string{"X-Request-ID": "abc-123"})
	if res.Header.Get("X-Request-ID") != "abc-123" {
		t.Fatalf("request id not echoed: %q", res.Header.Get("X-Request-ID"))
	}
	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("/jobs/{job_id}/pay")) {
		t.Fatalf("openapi: %d", res.StatusCode)
	}
}

func TestProfileHeader(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/contracts", nil, nil)
	expectError(t, res, body, http.StatusBadRequest, "missing_profile")
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/contracts", nil, map[string]string{"profile_id": "abc"})
	expectError(t, res, body, http.StatusUnauthorized, "unauthorized")
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/contracts", nil, as(999))
	expectError(t, res, body, http.StatusUnauthorized, "unauthorized")
}

func TestGetContract(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/contracts/1", nil, as(1))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get contract: %d %s", res.StatusCode, string(body))
	}
	var c ContractResponse
	if err := json.Unmarshal(body, &c); err != nil {
		t.Fatal(err)
	}
	if c.ID != 1 || c.ClientID != 1 || c.ContractorID != 5 {
		t.Fatalf("contract = %+v", c)
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/contracts/1", nil, as(5))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("contractor read: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/contracts/1", nil, as(2))
	expectError(t, res, body, http.StatusForbidden, "forbidden")
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/contracts/999", nil, as(2))
	expectError(t, res, body, http.StatusNotFound, "not_found")
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/contracts/abc", nil, as(1))
	expectError(t, res, body, http.StatusBadRequest, "bad_request")
}

func TestListContractsAndUnpaidJobs(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/contracts", nil, as(1))
	var contracts []ContractResponse
	if res.StatusCode != http.StatusOK || json.Unmarshal(body, &contracts) != nil {
		t.Fatalf("list contracts: %d %s", res.StatusCode, string(body))
	}
	if len(contracts) != 1 || contracts[0].ID != 2 {
		t.Fatalf("contracts = %+v", contracts)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/jobs/unpaid", nil, as(6))
	var jobs []map[string]any
	if res.StatusCode != http.StatusOK || json.Unmarshal(body, &jobs) != nil {
		t.Fatalf("unpaid jobs: %d %s", res.StatusCode, string(body))
	}
	if len(jobs) != 2 || jobs[0]["id"] != float64(2) || jobs[1]["id"] != float64(3) {
		t.Fatalf("jobs = %v", jobs)
	}
	if jobs[0]["price"] != float64(201) || jobs[0]["paymentDate"] != nil {
		t.Fatalf("job fields = %v", jobs[0])
	}
}

func TestPayJob(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/jobs/2/pay", nil, as(2))
	expectError(t, res, body, http.StatusNotFound, "not_found")

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/jobs/2/pay", nil, as(1))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pay: %d %s", res.StatusCode, string(body))
	}
	var paid map[string]any
	_ = json.Unmarshal(body, &paid)
	if paid["message"] != "Payment successful." || paid["balance"] != float64(949) || paid["amount"] != float64(201) {
		t.Fatalf("pay response = %v", paid)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/jobs/2/pay", nil, as(1))
	expectError(t, res, body, http.StatusBadRequest, "already_paid")

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/jobs/5/pay", nil, as(4))
	expectError(t, res, body, http.StatusBadRequest, "insufficient_funds")

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/jobs/unpaid", nil, as(1))
	if res.StatusCode != http.StatusOK || string(bytes.TrimSpace(body)) != "[]" {
		t.Fatalf("unpaid after pay: %d %s", res.StatusCode, string(body))
	}
}

func TestDeposit(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	// Mr Robot owes 202 + 200 on in-progress work, so the cap is 100.5.
	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/balances/deposit/2", map[string]any{"amount": 100.51}, as(2))
	env := expectError(t, res, body, http.StatusBadRequest, "deposit_limit_exceeded")
	if env.Error.Details["cap"] != 100.5 {
		t.Fatalf("cap detail = %v", env.Error.Details)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/balances/deposit/2", map[string]any{"amount": 100.5}, as(2))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("deposit: %d %s", res.StatusCode, string(body))
	}
	var dep map[string]any
	_ = json.Unmarshal(body, &dep)
	if dep["message"] != "Deposit successful." || dep["newBalance"] != 331.61 {
		t.Fatalf("deposit response = %v", dep)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/balances/deposit/1", map[string]any{"amount": 1}, as(2))
	expectError(t, res, body, http.StatusForbidden, "forbidden")
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/balances/deposit/6", map[string]any{"amount": 1}, as(6))
	expectError(t, res, body, http.StatusBadRequest, "invalid_role")
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/balances/deposit/2", map[string]any{"amount": -1}, as(2))
	expectError(t, res, body, http.StatusBadRequest, "invalid_amount")
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/balances/deposit/2", map[string]any{}, as(2))
	expectError(t, res, body, http.StatusBadRequest, "invalid_amount")
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/balances/deposit/1", map[string]any{}, as(2))
	expectError(t, res, body, http.StatusForbidden, "forbidden")
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/balances/deposit/6", map[string]any{}, as(6))
	expectError(t, res, body, http.StatusBadRequest, "invalid_role")
}

func TestDepositCapDetailRoundsDown(t *testing.T) {
	srv, cleanup := newTestServerWith(t, AuthConfig{}, testOptions{config: func(c *config.Config) {
		c.Payments.DepositCapRatio = "0.333"
	}})
	defer cleanup()
	client := srv.Client()

	// Mr Robot owes 402; 0.333 of that is 133.866, so 133.86 is the largest deposit.
	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/balances/deposit/2", map[string]any{"amount": 133.87}, as(2))
	env := expectError(t, res, body, http.StatusBadRequest, "deposit_limit_exceeded")
	if env.Error.Details["cap"] != 133.86 || env.Error.Message != "deposit amount exceeds the allowed limit of 133.86" {
		t.Fatalf("limit error = %+v", env.Error)
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/balances/deposit/2", map[string]any{"amount": 133.86}, as(2))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("deposit at reported cap: %d %s", res.StatusCode, string(body))
	}
}

var errWriteFailed = errors.New("disk full")

type failingCreditStore struct{ store.Store }

func (s failingCreditStore) WithinTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx store.Tx) error { return fn(failingCreditTx{tx}) })
}

type failingCreditTx struct{ store.Tx }

func (failingCreditTx) Credit(context.Context, int64, decimal.Decimal) error { return errWriteFailed }

func TestPayJobWriteFailureIsTransactionFailed(t *testing.T) {
	srv, cleanup := newTestServerWith(t, AuthConfig{}, testOptions{wrap: func(st store.Store) store.Store {
		return failingCreditStore{st}
	}})
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/jobs/2/pay", nil, as(1))
	env := expectError(t, res, body, http.StatusInternalServerError, "transaction_failed")
	if env.Error.Message != "failed to process payment" || strings.Contains(string(body), "disk full") {
		t.Fatalf("error leaks cause or has wrong message: %s", string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/jobs/unpaid", nil, as(1))
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), `"id":2`) {
		t.Fatalf("job 2 should still be unpaid: %d %s", res.StatusCode, string(body))
	}
}

func TestAdminReports(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/admin/best-profession?start=2020-08-01&end=2020-08-31", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("best profession: %d %s", res.StatusCode, string(body))
	}
	var best map[string]any
	_ = json.Unmarshal(body, &best)
	if best["profession"] != "Programmer" || best["totalEarnings"] != float64(2882) {
		t.Fatalf("best = %v", best)
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/admin/best-profession?start=2020-08-01", nil, nil)
	expectError(t, res, body, http.StatusBadRequest, "bad_request")
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/admin/best-profession?start=2030-01-01&end=2030-01-02", nil, nil)
	expectError(t, res, body, http.StatusNotFound, "not_found")

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/admin/best-clients?start=2020-08-01&end=2020-08-31", nil, nil)
	var clients []ClientPaymentsResponse
	if res.StatusCode != http.StatusOK || json.Unmarshal(body, &clients) != nil {
		t.Fatalf("best clients: %d %s", res.StatusCode, string(body))
	}
	if len(clients) != 2 || clients[0].ID != 4 || clients[1].ID != 2 || clients[0].FullName != "Ash Kethcum" {
		t.Fatalf("clients = %+v", clients)
	}
	for _, q := range []string{"limit=0", "limit=101", "limit=x"} {
		res, body = doJSON(t, client, http.MethodGet, srv.URL+"/admin/best-clients?start=2020-08-01&end=2020-08-31&"+q, nil, nil)
		expectError(t, res, body, http.StatusBadRequest, "bad_request")
	}
}

func TestAdminRequiresTokenWhenConfigured(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{AdminJWTSecret: "s3cret"})
	defer cleanup()
	client := srv.Client()
	url := srv.URL + "/admin/best-clients?start=2020-08-01&end=2020-08-31"

	res, body := doJSON(t, client, http.MethodGet, url, nil, nil)
	expectError(t, res, body, http.StatusUnauthorized, "unauthorized")
	res, body = doJSON(t, client, http.MethodGet, url, nil, map[string]string{"Authorization": "Bearer nope"})
	expectError(t, res, body, http.StatusUnauthorized, "invalid_credentials")

	token, err := auth.IssueAdminToken("s3cret", "ops", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	res, body = doJSON(t, client, http.MethodGet, url, nil, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("with token: %d %s", res.StatusCode, string(body))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/contracts", nil, as(1))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("profile routes should not need a token: %d", res.StatusCode)
	}
}
