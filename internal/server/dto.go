package server

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"jobpay/internal/domain"
	"jobpay/internal/engine"
)

// Amount is a decimal money value that travels as a JSON number.
type Amount struct {
	decimal.Decimal
}

func (Amount) Schema(r huma.Registry) *huma.Schema {
	return &huma.Schema{Type: huma.TypeNumber, Format: "decimal", Examples: []any{25.5}}
}

func amount(d decimal.Decimal) Amount { return Amount{Decimal: d} }

// Request payloads

// DepositRequest.Amount is optional here; the engine rejects a missing amount
// after the ownership and role checks.
type DepositRequest struct {
	Amount *Amount `json:"amount,omitempty" doc:"Amount to add to the balance, positive with at most two decimals"`
}

func (r DepositRequest) value() decimal.Decimal {
	if r.Amount == nil {
		return decimal.Zero
	}
	return r.Amount.Decimal
}

// Response payloads

type ContractResponse struct {
	ID           int64     `json:"id"`
	Terms        string    `json:"terms"`
	Status       string    `json:"status" enum:"new,in_progress,terminated"`
	ClientID     int64     `json:"ClientId"`
	ContractorID int64     `json:"ContractorId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type JobResponse struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	Price       Amount     `json:"price"`
	Paid        bool       `json:"paid"`
	PaymentDate *time.Time `json:"paymentDate" nullable:"true"`
	ContractID  int64      `json:"ContractId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type PaymentResponse struct {
	Message     string    `json:"message" example:"Payment successful."`
	JobID       int64     `json:"job_id"`
	Amount      Amount    `json:"amount"`
	Balance     Amount    `json:"balance" doc:"Client balance after the payment"`
	PaymentDate time.Time `json:"paymentDate"`
}

type DepositResponse struct {
	Message    string `json:"message" example:"Deposit successful."`
	NewBalance Amount `json:"newBalance"`
}

type ProfessionResponse struct {
	Profession    string `json:"profession"`
	TotalEarnings Amount `json:"totalEarnings"`
}

type ClientPaymentsResponse struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
	Paid     Amount `json:"paid"`
}

func contractResponse(c domain.Contract) ContractResponse {
	return ContractResponse{
		ID:           c.ID,
		Terms:        c.Terms,
		Status:       c.Status,
		ClientID:     c.ClientID,
		ContractorID: c.ContractorID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func jobResponse(j domain.Job) JobResponse {
	return JobResponse{
		ID:          j.ID,
		Description: j.Description,
		Price:       amount(j.Price),
		Paid:        j.Paid,
		PaymentDate: j.PaymentDate,
		ContractID:  j.ContractID,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func paymentResponse(p engine.Payment) PaymentResponse {
	return PaymentResponse{
		Message:     "Payment successful.",
		JobID:       p.JobID,
		Amount:      amount(p.Amount),
		Balance:     amount(p.ClientBalance),
		PaymentDate: p.PaidAt,
	}
}

func mapContracts(items []domain.Contract) []ContractResponse {
	res := make([]ContractResponse, 0, len(items))
	for _, c := range items {
		res = append(res, contractResponse(c))
	}
	return res
}

func mapJobs(items []domain.Job) []JobResponse {
	res := make([]JobResponse, 0, len(items))
	for _, j := range items {
		res = append(res, jobResponse(j))
	}
	return res
}

func mapClients(items []domain.ClientPayments) []ClientPaymentsResponse {
	res := make([]ClientPaymentsResponse, 0, len(items))
	for _, c := range items {
		res = append(res, ClientPaymentsResponse{ID: c.ID, FullName: c.FullName, Paid: amount(c.Paid)})
	}
	return res
}
