package tomikal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eligibleJson = `{"user_id": "%s", "balance": "10000.00", "multiplier": "3", "eligible_amount": "30000.00", "pending_loan_amount": null, "pending_loan_status": null}`

type loanApi struct {
	mux      *http.ServeMux
	requests int32
	bodies   chan string
}

// newLoanApi serves the member list, an eligibility answer per user and a loan request endpoint
// that answers with status and body.
func newLoanApi(t *testing.T, eligibility map[string]string, status int, body string) *loanApi {
	api := &loanApi{mux: http.NewServeMux(), bodies: make(chan string, 10)}

	api.mux.HandleFunc("GET /api/users/", respond(usersJson))
	api.mux.HandleFunc("GET /api/loan/eligibility/", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		answer, ok := eligibility[userID]
		if !ok {
			answer = fmt.Sprintf(eligibleJson, userID)
		}
		respond(answer)(w, r)
	})
	api.mux.HandleFunc("POST /api/loans/request/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&api.requests, 1)
		requestBody, _ := io.ReadAll(r.Body)
		api.bodies <- r.URL.Query().Get("user_id") + " " + string(requestBody)
		respondWith(status, body)(w, r)
	})

	return api
}

func (a *loanApi) hits() int32 {
	return atomic.LoadInt32(&a.requests)
}

func TestMemberLoanRequest(t *testing.T) {
	api := newLoanApi(t, nil, http.StatusCreated, `{"id": 11, "borrower": "7", "amount": "1000.00", "status": "pending_guarantors"}`)
	session, _ := newTestSession(t, api.mux, member)
	ctx := context.Background()

	form := NewLoanRequestForm(session)
	require.NoError(t, form.Open(ctx))

	view := form.View()
	assert.Equal(t, LoanFormEligible, view.State)
	assert.False(t, view.CanApplyForOthers)
	assert.True(t, view.ForSelf)
	assert.Equal(t, "7", view.BorrowerID)
	require.NotNil(t, view.Eligibility)
	assert.Equal(t, "30000", view.Eligibility.EligibleAmount.String())
	assert.False(t, view.Eligibility.PendingLoanAmount.Valid)
	assert.Empty(t, view.BorrowerOptions)
	for _, option := range view.GuarantorOptions {
		assert.NotEqual(t, "7", option.ID)
	}
	assert.Len(t, view.GuarantorOptions, 5)
	assert.False(t, view.CanSubmit)

	form.Edit(LoanInput{Amount: "1000", Guarantor1: "5", Guarantor2: "6", Purpose: "School fees"})
	view = form.View()
	assert.True(t, view.CanSubmit)
	assert.Empty(t, view.Problems)

	notice, err := form.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, NoticeSuccess, notice.Kind)
	assert.Equal(t, "Loan request submitted successfully.", notice.Message)
	assert.Equal(t, RouteDashboard, notice.Route)
	assert.Equal(t, LoanFormSubmitted, form.View().State)

	require.Equal(t, int32(1), api.hits())
	sent := <-api.bodies
	assert.Equal(t, "7", sent[:1])
	assert.JSONEq(t, `{"borrower": "7", "amount": "1000", "guarantor1_id": "5", "guarantor2_id": "6", "purpose": "School fees"}`, sent[2:])
}

func TestLoanRequestGuarantorPairs(t *testing.T) {
	candidates := []string{"", "7", "5", "6"}

	for _, g1 := range candidates {
		for _, g2 := range candidates {
			t.Run(fmt.Sprintf("%q+%q", g1, g2), func(t *testing.T) {
				api := newLoanApi(t, nil, http.StatusCreated, `{"id": 11}`)
				session, _ := newTestSession(t, api.mux, member)
				ctx := context.Background()

				form := NewLoanRequestForm(session)
				require.NoError(t, form.Open(ctx))
				form.Edit(LoanInput{Amount: "1000", Guarantor1: g1, Guarantor2: g2})

				valid := g1 != "" && g2 != "" && g1 != g2 && g1 != "7" && g2 != "7"
				assert.Equal(t, valid, form.View().CanSubmit)

				_, err := form.Submit(ctx)
				if valid {
					assert.NoError(t, err)
					assert.Equal(t, int32(1), api.hits())
					return
				}

				formErr := &FormError{}
				require.True(t, errors.As(err, &formErr))
				assert.Equal(t, "guarantors", formErr.Field)
				assert.Equal(t, int32(0), atomic.LoadInt32(&api.requests))
			})
		}
	}
}

func TestLoanRequestProblems(t *testing.T) {
	api := newLoanApi(t, nil, http.StatusCreated, `{"id": 11}`)
	session, _ := newTestSession(t, api.mux, member)
	ctx := context.Background()

	form := NewLoanRequestForm(session)
	require.NoError(t, form.Open(ctx))

	form.Edit(LoanInput{Amount: "40000", Guarantor1: "5", Guarantor2: "5"})
	view := form.View()
	assert.False(t, view.CanSubmit)
	assert.Equal(t, []string{"Amount exceeds eligible loan limit", "Guarantor 1 and 2 must be different"}, view.Problems)

	form.Edit(LoanInput{Amount: "abc", Guarantor1: "7", Guarantor2: "5"})
	assert.Equal(t, []string{"Enter a valid loan amount.", "Borrower cannot be their own guarantor"}, form.View().Problems)

	form.Edit(LoanInput{Amount: "30000", Guarantor1: "5"})
	assert.Equal(t, []string{"Select two guarantors."}, form.View().Problems)

	_, err := form.Submit(ctx)
	assert.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&api.requests))
	assert.Equal(t, LoanFormEligible, form.View().State)
}

func TestLoanRequestIneligible(t *testing.T) {
	tests := []struct {
		name        string
		eligibility string
		message     string
	}{
		{"no shares", `{"user_id": "7", "balance": "0.00", "multiplier": "3", "eligible_amount": "0.00"}`, "Borrower has 0 shares and cannot request a loan."},
		{"outstanding loan", `{"user_id": "7", "balance": "5000.00", "multiplier": "3", "eligible_amount": "0.00", "pending_loan_amount": "2000.00", "pending_loan_status": "pending"}`, "Borrower has a pending or unpaid loan, or a pending Loan request and cannot request another."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newLoanApi(t, map[string]string{"7": tt.eligibility}, http.StatusCreated, `{"id": 11}`)
			session, _ := newTestSession(t, api.mux, member)
			ctx := context.Background()

			form := NewLoanRequestForm(session)
			require.NoError(t, form.Open(ctx))

			// nothing the member types makes the form submittable again
			form.Edit(LoanInput{Amount: "100", Guarantor1: "5", Guarantor2: "6"})
			view := form.View()
			assert.Equal(t, LoanFormIneligible, view.State)
			assert.Equal(t, tt.message, view.EligibilityMessage)
			assert.False(t, view.CanSubmit)
			assert.Empty(t, view.Problems)

			notice, err := form.Submit(ctx)
			formErr := &FormError{}
			require.True(t, errors.As(err, &formErr))
			assert.Equal(t, tt.message, notice.Message)
			assert.Equal(t, int32(0), atomic.LoadInt32(&api.requests))
		})
	}
}

func TestLoanRequestEligibilityFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/", respond(usersJson))
	mux.HandleFunc("GET /api/loan/eligibility/", respondWith(http.StatusInternalServerError, `boom`))

	session, _ := newTestSession(t, mux, member)
	form := NewLoanRequestForm(session)

	assert.Error(t, form.Open(context.Background()))

	view := form.View()
	assert.Equal(t, LoanFormIneligible, view.State)
	assert.Equal(t, "Failed to check borrower eligibility.", view.EligibilityMessage)
	require.NotNil(t, view.Notice)
	assert.Equal(t, NoticeError, view.Notice.Kind)
	assert.Equal(t, "Failed to check borrower eligibility.", view.Notice.Message)
}

func TestLoanRequestFailureIsEditable(t *testing.T) {
	api := newLoanApi(t, nil, http.StatusBadRequest, `{"error": "Guarantor 5 already backs two loans."}`)
	session, _ := newTestSession(t, api.mux, member)
	ctx := context.Background()

	form := NewLoanRequestForm(session)
	require.NoError(t, form.Open(ctx))
	form.Edit(LoanInput{Amount: "1000", Guarantor1: "5", Guarantor2: "6"})

	notice, err := form.Submit(ctx)
	require.Error(t, err)
	assert.Equal(t, NoticeError, notice.Kind)
	assert.Equal(t, "Guarantor 5 already backs two loans.", notice.Message)

	view := form.View()
	assert.Equal(t, LoanFormFailed, view.State)
	assert.True(t, view.CanSubmit)
	require.NotNil(t, view.Notice)

	form.Edit(LoanInput{Amount: "1000", Guarantor1: "1", Guarantor2: "6"})
	view = form.View()
	assert.Equal(t, LoanFormEligible, view.State)
	assert.Nil(t, view.Notice)
	assert.Equal(t, "1", view.Input.Guarantor1)
}

func TestSecretaryAppliesForAnotherMember(t *testing.T) {
	api := newLoanApi(t, nil, http.StatusCreated, `{"id": 12, "borrower": "5"}`)
	session, _ := newTestSession(t, api.mux, secretary)
	ctx := context.Background()

	form := NewLoanRequestForm(session)
	require.NoError(t, form.Open(ctx))

	view := form.View()
	assert.Equal(t, LoanFormIdle, view.State)
	assert.True(t, view.CanApplyForOthers)
	assert.Equal(t, "", view.BorrowerID)
	for _, option := range view.BorrowerOptions {
		assert.NotEqual(t, "2", option.ID)
	}

	_, err := form.Submit(ctx)
	formErr := &FormError{}
	require.True(t, errors.As(err, &formErr))
	assert.Equal(t, "Select a member to apply for.", formErr.Message)

	require.NoError(t, form.SelectBorrower(ctx, "5"))
	form.Edit(LoanInput{Amount: "500", Guarantor1: "6", Guarantor2: "5"})
	assert.Equal(t, []string{"Borrower cannot be their own guarantor"}, form.View().Problems)

	// picking someone else wipes the guarantors
	require.NoError(t, form.SelectBorrower(ctx, "6"))
	view = form.View()
	assert.Equal(t, "6", view.BorrowerID)
	assert.False(t, view.ForSelf)
	assert.Equal(t, "", view.Input.Guarantor1)
	assert.Equal(t, "", view.Input.Guarantor2)
	assert.Equal(t, "500", view.Input.Amount)

	form.Edit(LoanInput{Amount: "500", Guarantor1: "5", Guarantor2: "7"})
	_, err = form.Submit(ctx)
	require.NoError(t, err)

	sent := <-api.bodies
	assert.Equal(t, "6", sent[:1])
	assert.JSONEq(t, `{"borrower": "6", "amount": "500", "guarantor1_id": "5", "guarantor2_id": "7"}`, sent[2:])

	require.NoError(t, form.ApplyForSelf(ctx, true))
	view = form.View()
	assert.True(t, view.ForSelf)
	assert.Equal(t, "2", view.BorrowerID)
	assert.Equal(t, LoanFormEligible, view.State)
}

func TestMemberCannotApplyForOthers(t *testing.T) {
	api := newLoanApi(t, nil, http.StatusCreated, `{"id": 11}`)
	session, _ := newTestSession(t, api.mux, member)
	ctx := context.Background()

	form := NewLoanRequestForm(session)
	require.NoError(t, form.Open(ctx))

	err := form.SelectBorrower(ctx, "5")
	assert.ErrorIs(t, err, ErrNotPermitted)
	assert.Equal(t, "7", form.View().BorrowerID)
}

func TestOnlyTheLatestEligibilityCheckLands(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/", respond(usersJson))
	mux.HandleFunc("GET /api/loan/eligibility/", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "5" {
			close(started)
			select {
			case <-release:
			case <-r.Context().Done():
			}
			respond(`{"user_id": "5", "balance": "0.00", "eligible_amount": "0.00"}`)(w, r)
			return
		}
		respond(fmt.Sprintf(eligibleJson, userID))(w, r)
	})

	session, _ := newTestSession(t, mux, secretary)
	ctx := context.Background()

	form := NewLoanRequestForm(session)
	require.NoError(t, form.Open(ctx))

	slow := make(chan error, 1)
	go func() {
		slow <- form.SelectBorrower(ctx, "5")
	}()
	<-started

	require.NoError(t, form.SelectBorrower(ctx, "6"))
	close(release)
	assert.NoError(t, <-slow)

	view := form.View()
	assert.Equal(t, "6", view.BorrowerID)
	assert.Equal(t, LoanFormEligible, view.State)
	require.NotNil(t, view.Eligibility)
	assert.Equal(t, "6", view.Eligibility.UserID)
	assert.Empty(t, view.EligibilityMessage)
}

func TestEligibilityForAnEarlierBorrowerNeverLands(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/", respond(usersJson))
	mux.HandleFunc("GET /api/loan/eligibility/", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "5" {
			respond(`{"user_id": "5", "balance": "0.00", "eligible_amount": "0.00"}`)(w, r)
			return
		}
		respond(fmt.Sprintf(eligibleJson, userID))(w, r)
	})

	session, _ := newTestSession(t, mux, secretary)
	ctx := context.Background()

	form := NewLoanRequestForm(session)
	require.NoError(t, form.Open(ctx))

	form.mu.Lock()
	_, first := form.changeBorrowerLocked(ctx, "5")
	checkCtx, second := form.changeBorrowerLocked(ctx, "6")
	form.mu.Unlock()

	require.NoError(t, form.checkEligibility(checkCtx, second, "6"))

	// an answer for member 5 arriving late, whether under its own generation or the current one
	assert.NoError(t, form.checkEligibility(ctx, first, "5"))
	form.mu.Lock()
	current := form.guard.generation
	form.mu.Unlock()
	assert.NoError(t, form.checkEligibility(ctx, current, "5"))

	view := form.View()
	assert.Equal(t, "6", view.BorrowerID)
	assert.Equal(t, LoanFormEligible, view.State)
	require.NotNil(t, view.Eligibility)
	assert.Equal(t, "6", view.Eligibility.UserID)
	assert.Empty(t, view.EligibilityMessage)
}

func TestConcurrentBorrowerChangesKeepEligibilityWithTheBorrower(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/", respond(usersJson))
	mux.HandleFunc("GET /api/loan/eligibility/", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "5" {
			respond(`{"user_id": "5", "balance": "0.00", "eligible_amount": "0.00"}`)(w, r)
			return
		}
		respond(fmt.Sprintf(eligibleJson, userID))(w, r)
	})

	session, _ := newTestSession(t, mux, secretary)
	ctx := context.Background()

	form := NewLoanRequestForm(session)
	require.NoError(t, form.Open(ctx))

	for i := 0; i < 100; i++ {
		wg := sync.WaitGroup{}
		for _, memberID := range []string{"5", "6"} {
			wg.Add(1)
			go func(memberID string) {
				defer wg.Done()
				form.SelectBorrower(ctx, memberID)
			}(memberID)
		}
		wg.Wait()

		view := form.View()
		require.NotNil(t, view.Eligibility, "iteration %d", i)
		require.Equal(t, view.BorrowerID, view.Eligibility.UserID, "iteration %d", i)
		if view.BorrowerID == "5" {
			require.Equal(t, LoanFormIneligible, view.State)
		} else {
			require.Equal(t, LoanFormEligible, view.State)
		}
	}
}

func TestSubmitWhileCheckingEligibility(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var requests int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/", respond(usersJson))
	mux.HandleFunc("GET /api/loan/eligibility/", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		respond(fmt.Sprintf(eligibleJson, "7"))(w, r)
	})
	mux.HandleFunc("POST /api/loans/request/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		respondWith(http.StatusCreated, `{"id": 13}`)(w, r)
	})
	session, _ := newTestSession(t, mux, member)
	ctx := context.Background()

	form := NewLoanRequestForm(session)
	opened := make(chan error, 1)
	go func() {
		opened <- form.Open(ctx)
	}()
	<-started

	assert.Equal(t, LoanFormCheckingEligibility, form.View().State)
	notice, err := form.Submit(ctx)
	formErr := &FormError{}
	require.True(t, errors.As(err, &formErr))
	assert.Equal(t, "Still checking borrower eligibility. Try again in a moment.", formErr.Message)
	assert.Equal(t, NoticeValidation, notice.Kind)
	assert.Equal(t, int32(0), atomic.LoadInt32(&requests))

	close(release)
	require.NoError(t, <-opened)
	assert.Equal(t, LoanFormEligible, form.View().State)
}

func TestLoanRequestNeedsSession(t *testing.T) {
	session, _ := newTestSession(t, http.NewServeMux(), member)
	ctx := context.Background()
	_, err := session.Logout(ctx)
	require.NoError(t, err)

	form := NewLoanRequestForm(session)
	assert.ErrorIs(t, form.Open(ctx), ErrSessionExpired)

	view := form.View()
	require.NotNil(t, view.Notice)
	assert.Equal(t, NoticeSessionExpired, view.Notice.Kind)
	assert.Equal(t, RouteLogin, view.Notice.Route)
}
