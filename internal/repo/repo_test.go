package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"jobpay/internal/db"
	"jobpay/internal/domain"
	"jobpay/internal/events"
	"jobpay/internal/migrate"
	"jobpay/internal/repo"
	"jobpay/internal/seed"
	"jobpay/internal/store"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seededRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.New(conn)
	r.Now = func() time.Time { return fixedNow }
	f, err := seed.Default()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := seed.Apply(ctx, r, f, fixedNow); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return r, ctx
}

func ids[T any](items []T, id func(T) int64) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReads(t *testing.T) {
	r, ctx := seededRepo(t)

	p, err := r.GetProfile(ctx, 2)
	if err != nil || p.FullName() != "Mr Robot" || !p.Balance.Equal(decimal.RequireFromString("231.11")) || !p.CreatedAt.Equal(fixedNow) {
		t.Fatalf("profile 2 = %+v %v", p, err)
	}
	if _, err := r.GetProfile(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing profile: %v", err)
	}
	if _, err := r.GetContract(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing contract: %v", err)
	}

	contractID := func(c domain.Contract) int64 { return c.ID }
	jobID := func(j domain.Job) int64 { return j.ID }
	cases := []struct {
		profile   int64
		contracts []int64
		unpaid    []int64
	}{
		{profile: 1, contracts: []int64{2}, unpaid: []int64{2}},
		{profile: 6, contracts: []int64{2, 3, 8}, unpaid: []int64{2, 3}},
		{profile: 3, contracts: []int64{5, 6}, unpaid: []int64{}},
	}
	for _, tc := range cases {
		cs, err := r.ListContracts(ctx, tc.profile)
		if err != nil || !equalIDs(ids(cs, contractID), tc.contracts) {
			t.Fatalf("contracts of %d = %v %v, want %v", tc.profile, ids(cs, contractID), err, tc.contracts)
		}
		js, err := r.ListUnpaidJobs(ctx, tc.profile)
		if err != nil || !equalIDs(ids(js, jobID), tc.unpaid) {
			t.Fatalf("unpaid of %d = %v %v, want %v", tc.profile, ids(js, jobID), err, tc.unpaid)
		}
	}
}

func TestConditionalUpdates(t *testing.T) {
	r, ctx := seededRepo(t)
	err := r.WithinTx(ctx, func(tx store.Tx) error {
		total, err := tx.SumUnpaidInProgress(ctx, 2)
		if err != nil {
			return err
		}
		if !total.Equal(decimal.RequireFromString("402")) {
			t.Errorf("unpaid in progress = %s", total)
		}
		if ok, err := tx.Debit(ctx, 2, decimal.RequireFromString("300")); err != nil || ok {
			t.Errorf("overdraft debit = %v %v", ok, err)
		}
		if ok, err := tx.Debit(ctx, 2, decimal.RequireFromString("100")); err != nil || !ok {
			t.Errorf("debit = %v %v", ok, err)
		}
		if ok, err := tx.MarkJobPaid(ctx, 3, fixedNow); err != nil || !ok {
			t.Errorf("mark paid = %v %v", ok, err)
		}
		if ok, err := tx.MarkJobPaid(ctx, 3, fixedNow); err != nil || ok {
			t.Errorf("second mark paid = %v %v", ok, err)
		}
		if err := tx.Credit(ctx, 99, decimal.RequireFromString("1")); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("credit missing profile: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	p, _ := r.GetProfile(ctx, 2)
	if !p.Balance.Equal(decimal.RequireFromString("131.11")) {
		t.Fatalf("balance = %s", p.Balance)
	}
	js, _ := r.ListUnpaidJobs(ctx, 2)
	if len(js) != 1 || js[0].ID != 4 {
		t.Fatalf("unpaid after mark = %+v", js)
	}
}

func TestLockJobForClient(t *testing.T) {
	r, ctx := seededRepo(t)
	_ = r.WithinTx(ctx, func(tx store.Tx) error {
		j, c, err := tx.LockJobForClient(ctx, 3, 2)
		if err != nil || j.ContractID != 3 || c.ContractorID != 6 || !j.Price.Equal(decimal.NewFromInt(202)) {
			t.Errorf("lock job = %+v %+v %v", j, c, err)
		}
		if _, _, err := tx.LockJobForClient(ctx, 3, 1); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("other client: %v", err)
		}
		j, _, err = tx.LockJobForClient(ctx, 6, 4)
		if err != nil || !j.Paid || j.PaymentDate == nil {
			t.Errorf("paid job = %+v %v", j, err)
		}
		return nil
	})
}

func TestWithinTxRollsBack(t *testing.T) {
	r, ctx := seededRepo(t)
	boom := errors.New("boom")
	err := r.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.Credit(ctx, 1, decimal.NewFromInt(50)); err != nil {
			return err
		}
		evt, err := events.New(events.TypeBalanceDeposited, "profile", "1", "1", nil)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	p, _ := r.GetProfile(ctx, 1)
	if !p.Balance.Equal(decimal.NewFromInt(1150)) {
		t.Fatalf("balance after rollback = %s", p.Balance)
	}
	if evts, _ := r.LatestEvents(ctx, 10); len(evts) != 0 {
		t.Fatalf("events after rollback = %+v", evts)
	}
}

func TestEventsAppendedInOrder(t *testing.T) {
	r, ctx := seededRepo(t)
	for _, typ := range []string{events.TypeJobPaid, events.TypeBalanceDeposited} {
		err := r.WithinTx(ctx, func(tx store.Tx) error {
			evt, err := events.New(typ, "job", "2", "1", events.EventPayload{"amount": "201.00"})
			if err != nil {
				return err
			}
			return tx.AppendEvent(ctx, evt)
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	evts, err := r.LatestEvents(ctx, 1)
	if err != nil || len(evts) != 1 {
		t.Fatalf("latest = %+v %v", evts, err)
	}
	if evts[0].Type != events.TypeBalanceDeposited || evts[0].Payload != `{"amount":"201.00"}` || !evts[0].TS.Equal(fixedNow) {
		t.Fatalf("latest event = %+v", evts[0])
	}
}

func TestConstraints(t *testing.T) {
	r, ctx := seededRepo(t)
	if err := r.InsertContract(ctx, domain.Contract{ID: 50, Terms: "self", Status: domain.ContractNew, ClientID: 1, ContractorID: 1}); err == nil {
		t.Fatal("contract with the same client and contractor was accepted")
	}
	if err := r.InsertProfile(ctx, domain.Profile{ID: 50, FirstName: "A", LastName: "B", Profession: "x", Balance: decimal.NewFromInt(-1), Type: domain.ProfileClient}); err == nil {
		t.Fatal("negative balance was accepted")
	}
	if err := r.InsertJob(ctx, domain.Job{ID: 50, Description: "x", Price: decimal.RequireFromString("1.005"), ContractID: 2}); err == nil {
		t.Fatal("sub-cent price was accepted")
	}
	if err := r.InsertJob(ctx, domain.Job{ID: 51, Description: "x", Price: decimal.NewFromInt(5), ContractID: 999}); err == nil {
		t.Fatal("job for unknown contract was accepted")
	}
}
