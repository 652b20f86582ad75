package tomikal

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"

	"tomikal/sacco"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ////////////////////////////////////////////
// /// RECORD REPAYMENT
// ////////////////////////////////////////////

type RepaymentInput struct {
	LoanID int64  `json:"loan_id" validate:"required,gt=0"`
	Amount string `json:"amount" validate:"required,numeric"`
	Method string `json:"method" validate:"omitempty,oneof=cash bank_transfer mpesa"`
	Notes  string `json:"notes"`
}

type RepaymentFormView struct {
	Phase  Phase     `json:"phase"`
	Notice *Notice   `json:"notice,omitempty"`
	Loans  []LoanRow `json:"loans"`
}

// RepaymentForm lets the secretary record a payment against an approved loan that is not yet
// paid off.
type RepaymentForm struct {
	screen
	session  *Session
	validate *validator.Validate
	loans    []sacco.Loan

	submitting sync.Mutex
}

func NewRepaymentForm(session *Session) *RepaymentForm {
	return &RepaymentForm{session: session, validate: validator.New()}
}

func (f *RepaymentForm) Load(ctx context.Context) error {
	ctx, generation := f.begin(ctx)

	creds, client, err := f.session.Authorized(ctx)
	if err == nil {
		err = permit(creds.User, RecordRepayments, deniedRepayments)
	}
	var loans []sacco.Loan
	if err == nil {
		loans, err = client.GetLoans(ctx, sacco.LoanFilter{})
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.settleLocked(generation) {
		return nil
	}
	if err != nil {
		f.failLocked(err, msgLoansFailed)
		return err
	}

	f.loans = nil
	for _, l := range loans {
		if l.Repayable() {
			f.loans = append(f.loans, l)
		}
	}
	f.readyLocked(len(f.loans))

	return nil
}

func (f *RepaymentForm) View() RepaymentFormView {
	f.mu.Lock()
	defer f.mu.Unlock()

	phase, notice := f.snapshotLocked()
	view := RepaymentFormView{Phase: phase, Notice: notice, Loans: []LoanRow{}}
	for _, l := range f.loans {
		view.Loans = append(view.Loans, newLoanRow(l, f.isExpandedLocked(loanKey(l.ID))))
	}

	return view
}

func (f *RepaymentForm) Submit(ctx context.Context, input RepaymentInput) (Notice, error) {
	f.submitting.Lock()
	defer f.submitting.Unlock()

	notice, err := f.submit(ctx, input)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		return f.noticeLocked(NoticeFor(err, msgRepaymentFailed)), err
	}

	return f.noticeLocked(notice), nil
}

func (f *RepaymentForm) submit(ctx context.Context, input RepaymentInput) (Notice, error) {
	creds, client, err := f.session.Authorized(ctx)
	if err != nil {
		return Notice{}, err
	}
	if err := permit(creds.User, RecordRepayments, deniedRepayments); err != nil {
		return Notice{}, err
	}

	if err := f.validate.Struct(input); err != nil {
		return Notice{}, &FormError{Message: msgRepaymentInvalid}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(input.Amount))
	if err != nil || !amount.IsPositive() {
		return Notice{}, &FormError{Field: "amount", Message: msgRepaymentInvalid}
	}

	repayment, err := client.CreateRepayment(ctx, sacco.CreateRepaymentRequest{
		LoanID:     input.LoanID,
		AmountPaid: amount,
		Method:     input.Method,
		Notes:      input.Notes,
	})
	if err != nil {
		log.Printf("[REPAYMENT] recording %s against loan %d failed: %v", amount, input.LoanID, err)
		return Notice{}, err
	}

	log.Printf("[REPAYMENT] repayment %d of %s recorded against loan %d", repayment.ID, amount, input.LoanID)

	return Success(msgRepaymentRecorded, RouteDashboard), nil
}

// ////////////////////////////////////////////
// /// APPROVALS
// ////////////////////////////////////////////

type RepaymentRow struct {
	sacco.Repayment
	Expanded bool `json:"expanded"`
}

type PendingRepaymentsView struct {
	Phase  Phase          `json:"phase"`
	Notice *Notice        `json:"notice,omitempty"`
	Rows   []RepaymentRow `json:"rows"`
}

// PendingRepaymentsScreen is the treasurer's queue of repayments waiting for approval.
type PendingRepaymentsScreen struct {
	screen
	session    *Session
	repayments []sacco.Repayment
}

func NewPendingRepaymentsScreen(session *Session) *PendingRepaymentsScreen {
	return &PendingRepaymentsScreen{session: session}
}

func (s *PendingRepaymentsScreen) Load(ctx context.Context) error {
	ctx, generation := s.begin(ctx)

	creds, client, err := s.session.Authorized(ctx)
	if err == nil {
		err = permit(creds.User, ApproveRepayments, deniedTreasurer)
	}
	var repayments []sacco.Repayment
	if err == nil {
		repayments, err = client.GetRepayments(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settleLocked(generation) {
		return nil
	}
	if err != nil {
		s.failLocked(err, msgRepaymentsFailed)
		return err
	}

	s.repayments = nil
	for _, r := range repayments {
		if r.Pending() {
			s.repayments = append(s.repayments, r)
		}
	}
	s.readyLocked(len(s.repayments))

	return nil
}

func (s *PendingRepaymentsScreen) View() PendingRepaymentsView {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase, notice := s.snapshotLocked()
	view := PendingRepaymentsView{Phase: phase, Notice: notice, Rows: []RepaymentRow{}}
	for _, r := range s.repayments {
		view.Rows = append(view.Rows, RepaymentRow{Repayment: r, Expanded: s.isExpandedLocked(strconv.FormatInt(r.ID, 10))})
	}

	return view
}

func (s *PendingRepaymentsScreen) Act(ctx context.Context, repaymentID int64, action string) (Notice, error) {
	err := checkAction(action)
	var creds Credentials
	var client sacco.AuthorizedClient
	if err == nil {
		creds, client, err = s.session.Authorized(ctx)
	}
	if err == nil {
		err = permit(creds.User, ApproveRepayments, deniedTreasurer)
	}
	response := sacco.RepaymentDecisionResponse{}
	if err == nil {
		response, err = client.DecideRepayment(ctx, repaymentID, action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		log.Printf("[REPAYMENT] %s of repayment %d failed: %v", action, repaymentID, err)
		return s.noticeLocked(actionFailed(err, msgRepaymentDecideError)), err
	}

	kept := s.repayments[:0]
	for _, r := range s.repayments {
		if r.ID != repaymentID {
			kept = append(kept, r)
		}
	}
	s.repayments = kept
	s.readyLocked(len(s.repayments))

	message := response.Message
	if message == "" {
		message = msgRepaymentUpdated
	}

	return s.noticeLocked(Success(message, "")), nil
}
