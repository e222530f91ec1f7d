package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"jobpay/internal/config"
	"jobpay/internal/domain"
	"jobpay/internal/engine/auth"
	"jobpay/internal/events"
	"jobpay/internal/store"
)

const (
	DefaultBestClientsLimit = 2
	MaxBestClientsLimit     = 100
)

type Engine struct {
	Store  store.Store
	Auth   auth.Service
	Config *config.Config
	Now    func() time.Time
}

func New(st store.Store, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		Store:  st,
		Auth:   auth.Service{Profiles: st},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Payment is the outcome of a successful PayJob.
type Payment struct {
	JobID         int64           `json:"job_id"`
	ClientID      int64           `json:"client_id"`
	ContractorID  int64           `json:"contractor_id"`
	Amount        decimal.Decimal `json:"amount"`
	ClientBalance decimal.Decimal `json:"balance"`
	PaidAt        time.Time       `json:"paymentDate"`
}

// PayJob moves the job price from the paying client to the contractor and
// marks the job paid, all in one transaction.
func (e Engine) PayJob(ctx context.Context, caller domain.Profile, jobID int64) (Payment, error) {
	var pay Payment
	err := e.Store.WithinTx(ctx, func(tx store.Tx) error {
		job, contract, err := tx.LockJobForClient(ctx, jobID, caller.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("job %d for client %d: %w", jobID, caller.ID, ErrNotFound)
			}
			return &TransactionError{Op: "load job", Err: err}
		}
		if job.Paid {
			return ErrAlreadyPaid
		}
		client, err := lockParties(ctx, tx, caller.ID, contract.ContractorID)
		if err != nil {
			return &TransactionError{Op: "lock profiles", Err: err}
		}
		if client.Balance.LessThan(job.Price) {
			return ErrInsufficientFunds
		}
		ok, err := tx.Debit(ctx, client.ID, job.Price)
		if err != nil {
			return &TransactionError{Op: "debit client", Err: err}
		}
		if !ok {
			return ErrInsufficientFunds
		}
		if err := tx.Credit(ctx, contract.ContractorID, job.Price); err != nil {
			return &TransactionError{Op: "credit contractor", Err: err}
		}
		paidAt := e.now().UTC().Truncate(time.Second)
		marked, err := tx.MarkJobPaid(ctx, job.ID, paidAt)
		if err != nil {
			return &TransactionError{Op: "mark paid", Err: err}
		}
		if !marked {
			return ErrAlreadyPaid
		}
		evt, err := events.New(events.TypeJobPaid, "job", strconv.FormatInt(job.ID, 10), strconv.FormatInt(client.ID, 10), events.EventPayload{
			"contract_id":   contract.ID,
			"client_id":     client.ID,
			"contractor_id": contract.ContractorID,
			"amount":        job.Price.StringFixed(2),
		})
		if err != nil {
			return &TransactionError{Op: "build event", Err: err}
		}
		evt.TS = paidAt
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return &TransactionError{Op: "append event", Err: err}
		}
		pay = Payment{
			JobID:         job.ID,
			ClientID:      client.ID,
			ContractorID:  contract.ContractorID,
			Amount:        job.Price,
			ClientBalance: client.Balance.Sub(job.Price),
			PaidAt:        paidAt,
		}
		return nil
	})
	if err != nil {
		var te *TransactionError
		if isPaymentPrecondition(err) || errors.As(err, &te) {
			return Payment{}, err
		}
		return Payment{}, &TransactionError{Err: err}
	}
	return pay, nil
}

// lockParties locks both profiles of a payment in ascending id order and
// returns the client's row as read under the lock.
func lockParties(ctx context.Context, tx store.Tx, clientID, contractorID int64) (domain.Profile, error) {
	ids := [2]int64{clientID, contractorID}
	if contractorID < clientID {
		ids = [2]int64{contractorID, clientID}
	}
	var client domain.Profile
	for _, id := range ids {
		p, err := tx.LockProfile(ctx, id)
		if err != nil {
			return domain.Profile{}, fmt.Errorf("profile %d: %w", id, err)
		}
		if id == clientID {
			client = p
		}
	}
	return client, nil
}

// DepositResult carries the balance after a deposit.
type DepositResult struct {
	ProfileID  int64           `json:"profile_id"`
	Amount     decimal.Decimal `json:"amount"`
	Cap        decimal.Decimal `json:"cap"`
	NewBalance decimal.Decimal `json:"newBalance"`
}

// DepositCap is the largest amount the client may deposit right now. Amounts
// are whole cents, so a fractional cent in the ratio product is dropped.
func (e Engine) DepositCap(totalUnpaid decimal.Decimal) decimal.Decimal {
	return totalUnpaid.Mul(e.Config.DepositCapRatio()).RoundFloor(2)
}

// Deposit credits the caller's own balance, capped by a share of their unpaid
// in-progress work. The cap is computed in the same transaction as the credit.
func (e Engine) Deposit(ctx context.Context, caller domain.Profile, userID int64, amount decimal.Decimal) (DepositResult, error) {
	if caller.ID != userID {
		return DepositResult{}, auth.ForbiddenError{Resource: "balance", ID: userID}
	}
	if !caller.IsClient() {
		return DepositResult{}, ErrInvalidRole
	}
	if _, ok := domain.ToCents(amount); !ok || !amount.IsPositive() {
		return DepositResult{}, ErrInvalidAmount
	}
	var res DepositResult
	err := e.Store.WithinTx(ctx, func(tx store.Tx) error {
		total, err := tx.SumUnpaidInProgress(ctx, caller.ID)
		if err != nil {
			return fmt.Errorf("sum unpaid jobs: %w", err)
		}
		limit := e.DepositCap(total)
		if amount.GreaterThan(limit) {
			return &DepositLimitError{Cap: limit}
		}
		if err := tx.Credit(ctx, caller.ID, amount); err != nil {
			return fmt.Errorf("credit profile: %w", err)
		}
		p, err := tx.LockProfile(ctx, caller.ID)
		if err != nil {
			return fmt.Errorf("reload profile: %w", err)
		}
		id := strconv.FormatInt(caller.ID, 10)
		evt, err := events.New(events.TypeBalanceDeposited, "profile", id, id, events.EventPayload{
			"amount":      amount.StringFixed(2),
			"cap":         limit.StringFixed(2),
			"new_balance": p.Balance.StringFixed(2),
		})
		if err != nil {
			return err
		}
		evt.TS = e.now()
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		res = DepositResult{ProfileID: caller.ID, Amount: amount, Cap: limit, NewBalance: p.Balance}
		return nil
	})
	if err != nil {
		return DepositResult{}, err
	}
	return res, nil
}

// GetContract checks existence before party membership.
func (e Engine) GetContract(ctx context.Context, caller domain.Profile, id int64) (domain.Contract, error) {
	c, err := e.Store.GetContract(ctx, id)
	if err != nil {
		return domain.Contract{}, err
	}
	if err := auth.RequireParty(c, caller); err != nil {
		return domain.Contract{}, err
	}
	return c, nil
}

func (e Engine) ListContracts(ctx context.Context, caller domain.Profile) ([]domain.Contract, error) {
	return e.Store.ListContracts(ctx, caller.ID)
}

func (e Engine) ListUnpaidJobs(ctx context.Context, caller domain.Profile) ([]domain.Job, error) {
	return e.Store.ListUnpaidJobs(ctx, caller.ID)
}

func (e Engine) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	return e.Store.ListProfiles(ctx)
}

// ResolveProfile authenticates a raw profile id.
func (e Engine) ResolveProfile(ctx context.Context, raw string) (domain.Profile, error) {
	return e.Auth.Resolve(ctx, raw)
}

func (e Engine) BestProfession(ctx context.Context, start, end time.Time) (domain.ProfessionEarnings, error) {
	if end.Before(start) {
		return domain.ProfessionEarnings{}, ErrInvalidRange
	}
	return e.Store.BestProfession(ctx, start, end)
}

// BestClients uses DefaultBestClientsLimit when limit is zero.
func (e Engine) BestClients(ctx context.Context, start, end time.Time, limit int) ([]domain.ClientPayments, error) {
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	if limit == 0 {
		limit = DefaultBestClientsLimit
	}
	if limit < 1 || limit > MaxBestClientsLimit {
		return nil, ErrInvalidLimit
	}
	return e.Store.BestClients(ctx, start, end, limit)
}

func (e Engine) LatestEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	return e.Store.LatestEvents(ctx, limit)
}
