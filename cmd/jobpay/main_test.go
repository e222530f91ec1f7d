package main

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"jobpay/internal/db"
	"jobpay/internal/engine"
	"jobpay/internal/repo"
)

func TestMain(m *testing.M) {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	os.Exit(m.Run())
}

func run(t *testing.T, workspace string, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append([]string{"--workspace", workspace}, args...))
	return rootCmd.ExecuteContext(context.Background())
}

func balanceOf(t *testing.T, workspace string, id int64) decimal.Decimal {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	p, err := repo.New(conn).GetProfile(context.Background(), id)
	if err != nil {
		t.Fatalf("profile %d: %v", id, err)
	}
	return p.Balance
}

func TestSeedPayDepositRoundTrip(t *testing.T) {
	ws := t.TempDir()
	for _, args := range [][]string{
		{"migrate"},
		{"seed"},
		{"job", "unpaid", "--profile", "1"},
		{"job", "pay", "2", "--profile", "1"},
		{"balance", "deposit", "100.5", "--profile", "2"},
		{"report", "best-clients", "--start", "2020-08-01", "--end", "2020-08-31"},
		{"events", "tail", "-n", "5"},
	} {
		if err := run(t, ws, args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}

	want := map[int64]string{1: "949", 6: "1415", 2: "331.61"}
	for id, v := range want {
		if got := balanceOf(t, ws, id); !got.Equal(decimal.RequireFromString(v)) {
			t.Fatalf("profile %d balance = %s, want %s", id, got, v)
		}
	}

	err := run(t, ws, "job", "pay", "2", "--profile", "1")
	if !errors.Is(err, engine.ErrAlreadyPaid) {
		t.Fatalf("second pay: %v", err)
	}
	err = run(t, ws, "balance", "deposit", "100.51", "--profile", "2")
	var le *engine.DepositLimitError
	if !errors.As(err, &le) {
		t.Fatalf("deposit past cap: %v", err)
	}
	if err := run(t, ws, "job", "pay", "3", "--profile", "abc"); !errors.Is(err, engine.ErrUnauthenticated) {
		t.Fatalf("bad profile: %v", err)
	}
	if got := balanceOf(t, ws, 2); !got.Equal(decimal.RequireFromString("331.61")) {
		t.Fatalf("balance after rejected commands = %s", got)
	}
}
