package jobpaysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a minimal jobpay HTTP API client.
type Client struct {
	BaseURL string
	// ProfileID is sent in the profile_id header on profile routes.
	ProfileID int64
	// AdminToken is sent as a bearer token on /admin routes.
	AdminToken string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string, profileID int64) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProfileID: profileID,
		Timeout:   10 * time.Second,
	}
}

type Contract struct {
	ID           int64     `json:"id"`
	Terms        string    `json:"terms"`
	Status       string    `json:"status"`
	ClientID     int64     `json:"ClientId"`
	ContractorID int64     `json:"ContractorId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Job struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Paid        bool            `json:"paid"`
	PaymentDate *time.Time      `json:"paymentDate"`
	ContractID  int64           `json:"ContractId"`
}

type Payment struct {
	Message     string          `json:"message"`
	JobID       int64           `json:"job_id"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	PaymentDate time.Time       `json:"paymentDate"`
}

type Deposit struct {
	Message    string          `json:"message"`
	NewBalance decimal.Decimal `json:"newBalance"`
}

type BestProfession struct {
	Profession    string          `json:"profession"`
	TotalEarnings decimal.Decimal `json:"totalEarnings"`
}

type BestClient struct {
	ID       int64           `json:"id"`
	FullName string          `json:"fullName"`
	Paid     decimal.Decimal `json:"paid"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func (c *Client) GetContract(ctx context.Context, id int64) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("contracts/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) ListContracts(ctx context.Context) ([]Contract, error) {
	var resp []Contract
	err := c.do(ctx, http.MethodGet, "contracts", nil, &resp)
	return resp, err
}

// UnpaidJobs lists unpaid jobs of the profile's in-progress contracts.
func (c *Client) UnpaidJobs(ctx context.Context) ([]Job, error) {
	var resp []Job
	err := c.do(ctx, http.MethodGet, "jobs/unpaid", nil, &resp)
	return resp, err
}

func (c *Client) PayJob(ctx context.Context, jobID int64) (Payment, error) {
	var resp Payment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("jobs/%d/pay", jobID), nil, &resp)
	return resp, err
}

// Deposit adds amount to the client's own balance.
func (c *Client) Deposit(ctx context.Context, amount decimal.Decimal) (Deposit, error) {
	body := map[string]any{"amount": json.Number(amount.String())}
	var resp Deposit
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("balances/deposit/%d", c.ProfileID), body, &resp)
	return resp, err
}

func (c *Client) BestProfession(ctx context.Context, start, end string) (BestProfession, error) {
	q := url.Values{"start": {start}, "end": {end}}
	var resp BestProfession
	err := c.do(ctx, http.MethodGet, "admin/best-profession?"+q.Encode(), nil, &resp)
	return resp, err
}

// BestClients passes limit only when it is positive, leaving the server default otherwise.
func (c *Client) BestClients(ctx context.Context, start, end string, limit int) ([]BestClient, error) {
	q := url.Values{"start": {start}, "end": {end}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp []BestClient
	err := c.do(ctx, http.MethodGet, "admin/best-clients?"+q.Encode(), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.ProfileID != 0 {
		req.Header.Set("profile_id", strconv.FormatInt(c.ProfileID, 10))
	}
	if c.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AdminToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = env.Error.Code, env.Error.Message, env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
