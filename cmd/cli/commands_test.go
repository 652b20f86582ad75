package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tomikal"
	"tomikal/sacco"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginJson = `{"tokens": {"access": "abc", "refresh": "def"}, "user": {"id": "7", "username": "0712345678", "first_name": "Jane", "last_name": "Doe"}}`

func newApp(t *testing.T, api *http.ServeMux) (*app, *bytes.Buffer) {
	t.Helper()

	upstream := httptest.NewServer(api)
	t.Cleanup(upstream.Close)

	client, err := sacco.NewClient(upstream.URL)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	config := tomikal.Config{ApiUrl: upstream.URL, OrgName: "Tomikal SHG"}

	return &app{config: config, session: tomikal.NewSession(client, tomikal.NewMemoryStore()), out: out}, out
}

func memberApi() *http.ServeMux {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/login/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, loginJson)
	})
	api.HandleFunc("GET /api/balance/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"user": {"id": "7"}, "balance": "1500.50", "lastEdited": "2024-03-01T10:00:00Z"}`)
	})
	api.HandleFunc("GET /api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `[
			{"id": "t1", "user": {"id": "7", "first_name": "Jane"}, "date": "2024-03-01T10:00:00Z", "amount": "200.00", "transaction_type": "deposit", "source": "mpesa", "status": "approved"},
			{"id": "t2", "user": {"id": "5", "first_name": "Eve"}, "date": "2024-03-05T09:00:00Z", "amount": "50.00", "transaction_type": "withdrawal", "source": "cash", "status": "pending"}
		]`)
	})

	return api
}

func TestLoginThenBalance(t *testing.T) {
	a, out := newApp(t, memberApi())
	ctx := context.Background()

	require.NoError(t, login(ctx, a, []string{"-u", "0712345678", "-p", "secret"}))
	assert.Contains(t, out.String(), "TOMIKAL SHG\n")
	assert.Contains(t, out.String(), "Jane Doe (Member)")
	assert.Contains(t, out.String(), "Signed in.")

	out.Reset()
	require.NoError(t, balance(ctx, a, nil))
	assert.Contains(t, out.String(), "KES 1500.50")
	assert.Contains(t, out.String(), "2024-03-01")

	out.Reset()
	require.NoError(t, logout(ctx, a, nil))
	assert.Equal(t, "Signed out.\n", out.String())

	out.Reset()
	err := balance(ctx, a, nil)
	assert.ErrorIs(t, err, tomikal.ErrSessionExpired)
	assert.Contains(t, out.String(), "Run `tomikal login` to continue.")
}

func TestLoginNeedsBothFields(t *testing.T) {
	a, out := newApp(t, memberApi())

	err := login(context.Background(), a, []string{"-u", "0712345678"})
	assert.Error(t, err)
	assert.Contains(t, out.String(), "Please enter both username and password.")
}

func TestTransactionsTable(t *testing.T) {
	a, out := newApp(t, memberApi())
	ctx := context.Background()
	require.NoError(t, login(ctx, a, []string{"-u", "0712345678", "-p", "secret"}))

	out.Reset()
	require.NoError(t, transactions(ctx, a, []string{"-expand", "t1"}))

	assert.Contains(t, out.String(), "ID  DATE        MEMBER  TYPE     AMOUNT      STATUS")
	assert.Contains(t, out.String(), "t1  2024-03-01  Jane    Deposit  KES 200.00  Approved")
	assert.NotContains(t, out.String(), "t2")
	assert.Contains(t, out.String(), "Transaction t1")

	out.Reset()
	require.NoError(t, transactions(ctx, a, []string{"-type", "withdrawal"}))
	assert.Contains(t, out.String(), "No transactions found.")
}

func TestArguments(t *testing.T) {
	a, out := newApp(t, http.NewServeMux())
	ctx := context.Background()

	assert.ErrorIs(t, balance(ctx, a, []string{"extra"}), errUsage)
	assert.Contains(t, out.String(), `balance: unexpected argument "extra"`)

	out.Reset()
	assert.ErrorIs(t, reviewLoan(ctx, a, []string{"-id", "abc", "-action", "approve"}), errUsage)
	assert.Equal(t, "-id must be a number\n", out.String())

	assert.ErrorIs(t, transactions(ctx, a, []string{"-from", "01/03/2024"}), errUsage)
	assert.ErrorIs(t, loans(ctx, a, []string{"-nope"}), errUsage)
}

func TestReviewNeedsTreasurer(t *testing.T) {
	a, out := newApp(t, memberApi())
	ctx := context.Background()
	require.NoError(t, login(ctx, a, []string{"-u", "0712345678", "-p", "secret"}))

	out.Reset()
	err := reviewTransaction(ctx, a, []string{"-id", "t2", "-action", "approve"})
	assert.ErrorIs(t, err, tomikal.ErrNotPermitted)
	assert.Contains(t, out.String(), "[Access Denied]")
}

func TestRequestLoanReportsEligibilityFailure(t *testing.T) {
	api := memberApi()
	api.HandleFunc("GET /api/users/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `[{"id": "5"}, {"id": "6"}, {"id": "7"}]`)
	})
	api.HandleFunc("GET /api/loan/eligibility/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	a, out := newApp(t, api)
	ctx := context.Background()
	require.NoError(t, login(ctx, a, []string{"-u", "0712345678", "-p", "secret"}))

	out.Reset()
	err := requestLoan(ctx, a, []string{"-amount", "1000", "-g1", "5", "-g2", "6"})
	assert.Error(t, err)
	assert.Equal(t, "[Error] Failed to check borrower eligibility.\n", out.String())
}
