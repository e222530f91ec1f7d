package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by stores when a row does not exist or is not visible to the caller.
var ErrNotFound = errors.New("not found")

const (
	ProfileClient     = "client"
	ProfileContractor = "contractor"
)

const (
	ContractNew        = "new"
	ContractInProgress = "in_progress"
	ContractTerminated = "terminated"
)

type Profile struct {
	ID         int64           `json:"id"`
	FirstName  string          `json:"firstName"`
	LastName   string          `json:"lastName"`
	Profession string          `json:"profession"`
	Balance    decimal.Decimal `json:"balance"`
	Type       string          `json:"type"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// FullName joins first and last name the way reports display it.
func (p Profile) FullName() string {
	return p.FirstName + " " + p.LastName
}

func (p Profile) IsClient() bool { return p.Type == ProfileClient }

type Contract struct {
	ID           int64     `json:"id"`
	Terms        string    `json:"terms"`
	Status       string    `json:"status"`
	ClientID     int64     `json:"ClientId"`
	ContractorID int64     `json:"ContractorId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasParty reports whether the profile is the client or the contractor of the contract.
func (c Contract) HasParty(profileID int64) bool {
	return c.ClientID == profileID || c.ContractorID == profileID
}

type Job struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Paid        bool            `json:"paid"`
	PaymentDate *time.Time      `json:"paymentDate"`
	ContractID  int64           `json:"ContractId"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProfessionEarnings is one row of the best-profession report.
type ProfessionEarnings struct {
	Profession    string          `json:"profession"`
	TotalEarnings decimal.Decimal `json:"totalEarnings"`
}

// ClientPayments is one row of the best-clients report.
type ClientPayments struct {
	ID       int64           `json:"id"`
	FullName string          `json:"fullName"`
	Paid     decimal.Decimal `json:"paid"`
}

type Event struct {
	ID         int64     `json:"id"`
	TS         time.Time `json:"ts"`
	Type       string    `json:"type"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id,omitempty"`
	ActorID    string    `json:"actor_id"`
	Payload    string    `json:"payload_json"`
}
