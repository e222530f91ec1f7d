// Package seed loads the bundled demo data set into a store.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"jobpay/internal/domain"
	"jobpay/internal/store"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

type Fixtures struct {
	Profiles []struct {
		ID         int64  `yaml:"id"`
		FirstName  string `yaml:"first_name"`
		LastName   string `yaml:"last_name"`
		Profession string `yaml:"profession"`
		Balance    string `yaml:"balance"`
		Type       string `yaml:"type"`
	} `yaml:"profiles"`
	Contracts []struct {
		ID           int64  `yaml:"id"`
		Terms        string `yaml:"terms"`
		Status       string `yaml:"status"`
		ClientID     int64  `yaml:"client_id"`
		ContractorID int64  `yaml:"contractor_id"`
	} `yaml:"contracts"`
	Jobs []struct {
		ID          int64  `yaml:"id"`
		Description string `yaml:"description"`
		Price       string `yaml:"price"`
		Paid        bool   `yaml:"paid"`
		PaymentDate string `yaml:"payment_date"`
		ContractID  int64  `yaml:"contract_id"`
	} `yaml:"jobs"`
}

// Default returns the embedded fixture set.
func Default() (*Fixtures, error) {
	return Parse(defaultFixtures)
}

func Parse(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid fixtures yaml: %w", err)
	}
	return &f, nil
}

func FromFile(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Summary counts rows written by Apply.
type Summary struct {
	Profiles  int `json:"profiles"`
	Contracts int `json:"contracts"`
	Jobs      int `json:"jobs"`
}

// Apply wipes the store and inserts the fixtures in dependency order.
func Apply(ctx context.Context, s store.Seeder, f *Fixtures, now time.Time) (Summary, error) {
	var sum Summary
	if err := s.Reset(ctx); err != nil {
		return sum, fmt.Errorf("reset: %w", err)
	}
	for _, p := range f.Profiles {
		balance, err := decimal.NewFromString(p.Balance)
		if err != nil {
			return sum, fmt.Errorf("profile %d balance: %w", p.ID, err)
		}
		if err := s.InsertProfile(ctx, domain.Profile{
			ID: p.ID, FirstName: p.FirstName, LastName: p.LastName, Profession: p.Profession,
			Balance: balance, Type: p.Type, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return sum, fmt.Errorf("insert profile %d: %w", p.ID, err)
		}
		sum.Profiles++
	}
	for _, c := range f.Contracts {
		if err := s.InsertContract(ctx, domain.Contract{
			ID: c.ID, Terms: c.Terms, Status: c.Status, ClientID: c.ClientID, ContractorID: c.ContractorID,
			CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return sum, fmt.Errorf("insert contract %d: %w", c.ID, err)
		}
		sum.Contracts++
	}
	for _, j := range f.Jobs {
		price, err := decimal.NewFromString(j.Price)
		if err != nil {
			return sum, fmt.Errorf("job %d price: %w", j.ID, err)
		}
		job := domain.Job{
			ID: j.ID, Description: j.Description, Price: price, Paid: j.Paid, ContractID: j.ContractID,
			CreatedAt: now, UpdatedAt: now,
		}
		if j.PaymentDate != "" {
			at, err := time.Parse(time.RFC3339, j.PaymentDate)
			if err != nil {
				return sum, fmt.Errorf("job %d payment_date: %w", j.ID, err)
			}
			job.PaymentDate = &at
		}
		if err := s.InsertJob(ctx, job); err != nil {
			return sum, fmt.Errorf("insert job %d: %w", j.ID, err)
		}
		sum.Jobs++
	}
	return sum, nil
}
