package tomikal

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"tomikal/sacco"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ////////////////////////////////////////////
// /// TRANSACTION HISTORY
// ////////////////////////////////////////////

type TransactionFilter struct {
	// Type is a transaction type, or "" for all of them.
	Type     string    `json:"type"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	ViewAll  bool      `json:"view_all"`
	MemberID string    `json:"member_id"`
}

type TransactionRow struct {
	sacco.Transaction
	Expanded bool `json:"expanded"`
}

type TransactionsView struct {
	Phase      Phase             `json:"phase"`
	Notice     *Notice           `json:"notice,omitempty"`
	Filter     TransactionFilter `json:"filter"`
	CanViewAll bool              `json:"can_view_all"`
	Members    []sacco.User      `json:"members,omitempty"`
	Rows       []TransactionRow  `json:"rows"`
}

// TransactionsScreen lists deposits and withdrawals. Admins can switch from their own history to
// everyone's and narrow it to one member.
type TransactionsScreen struct {
	screen
	session      *Session
	self         sacco.User
	transactions []sacco.Transaction
	members      []sacco.User
	filter       TransactionFilter
}

func NewTransactionsScreen(session *Session) *TransactionsScreen {
	return &TransactionsScreen{session: session}
}

func (s *TransactionsScreen) Load(ctx context.Context) error {
	ctx, generation := s.begin(ctx)

	creds, client, err := s.session.Authorized(ctx)
	var transactions []sacco.Transaction
	var members []sacco.User
	if err == nil {
		transactions, err = client.GetTransactions(ctx, sacco.TransactionFilter{})
	}
	if err == nil && creds.Can(ViewAllTransactions) {
		members, err = client.GetUsers(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settleLocked(generation) {
		return nil
	}
	if err != nil {
		s.failLocked(err, msgFetchFailed)
		return err
	}

	s.self = creds.User
	s.transactions = normalizeTransactions(transactions)
	s.members = members
	s.expanded = nil
	s.readyLocked(len(s.transactions))

	return nil
}

// normalizeTransactions fills the gaps the API leaves and orders the newest first.
func normalizeTransactions(transactions []sacco.Transaction) []sacco.Transaction {
	out := make([]sacco.Transaction, 0, len(transactions))
	for _, t := range transactions {
		if t.Status == "" {
			t.Status = sacco.StatusPending
		}
		if t.Source == "" {
			t.Source = "-"
		}
		if t.TransactionType == "" {
			t.TransactionType = "-"
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})

	return out
}

func (s *TransactionsScreen) SetFilter(filter TransactionFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if filter.Type == "all" {
		filter.Type = ""
	}
	if !Can(s.self, ViewAllTransactions) {
		filter.ViewAll = false
		filter.MemberID = ""
	}

	s.filter = filter
}

func (s *TransactionsScreen) View() TransactionsView {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase, notice := s.snapshotLocked()
	view := TransactionsView{
		Phase:      phase,
		Notice:     notice,
		Filter:     s.filter,
		CanViewAll: Can(s.self, ViewAllTransactions),
		Members:    append([]sacco.User(nil), s.members...),
		Rows:       []TransactionRow{},
	}

	for _, t := range FilterTransactions(s.transactions, s.filter, s.self, view.CanViewAll) {
		view.Rows = append(view.Rows, TransactionRow{Transaction: t, Expanded: s.isExpandedLocked(t.ID)})
	}

	if phase == PhaseReady && len(view.Rows) == 0 {
		view.Phase = PhaseEmpty
	}

	return view
}

// FilterTransactions applies the history filters in memory. The end date includes the whole day.
func FilterTransactions(transactions []sacco.Transaction, filter TransactionFilter, self sacco.User, canViewAll bool) []sacco.Transaction {
	var endOfDay time.Time
	if !filter.To.IsZero() {
		y, m, d := filter.To.Date()
		endOfDay = time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), filter.To.Location())
	}

	var out []sacco.Transaction
	for _, t := range transactions {
		switch {
		case !filter.ViewAll || !canViewAll:
			if !t.User.Is(self.ID) {
				continue
			}
		case filter.MemberID != "":
			if !t.User.Is(filter.MemberID) {
				continue
			}
		}

		if filter.Type != "" && filter.Type != "all" && t.TransactionType != filter.Type {
			continue
		}
		if !filter.From.IsZero() && t.Date.Before(filter.From) {
			continue
		}
		if !endOfDay.IsZero() && t.Date.After(endOfDay) {
			continue
		}

		out = append(out, t)
	}

	return out
}

// ////////////////////////////////////////////
// /// CAPTURE
// ////////////////////////////////////////////

type CaptureInput struct {
	MemberID string `json:"member_id" validate:"required"`
	Amount   string `json:"amount" validate:"required,numeric"`
	Type     string `json:"transaction_type" validate:"required,oneof=deposit withdrawal emergency"`
	Source   string `json:"source" validate:"required,oneof=cash mpesa"`
}

type CaptureView struct {
	Phase   Phase        `json:"phase"`
	Notice  *Notice      `json:"notice,omitempty"`
	Members []sacco.User `json:"members"`
}

// CaptureForm lets the secretary record a deposit or withdrawal for a member. The treasurer approves
// it later.
type CaptureForm struct {
	screen
	session  *Session
	validate *validator.Validate
	members  []sacco.User

	submitting sync.Mutex
}

func NewCaptureForm(session *Session) *CaptureForm {
	return &CaptureForm{session: session, validate: validator.New()}
}

func (f *CaptureForm) Load(ctx context.Context) error {
	ctx, generation := f.begin(ctx)

	creds, client, err := f.session.Authorized(ctx)
	if err == nil {
		err = permit(creds.User, CaptureTransactions, deniedCapture)
	}
	var members []sacco.User
	if err == nil {
		members, err = client.GetUsers(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.settleLocked(generation) {
		return nil
	}
	if err != nil {
		f.failLocked(err, msgLoadDataFailed)
		return err
	}

	f.members = members
	f.readyLocked(len(members))

	return nil
}

func (f *CaptureForm) View() CaptureView {
	f.mu.Lock()
	defer f.mu.Unlock()

	phase, notice := f.snapshotLocked()
	return CaptureView{
		Phase:   phase,
		Notice:  notice,
		Members: append([]sacco.User(nil), f.members...),
	}
}

// Submit validates and records the transaction. On success the returned notice routes to the dashboard.
func (f *CaptureForm) Submit(ctx context.Context, input CaptureInput) (Notice, error) {
	f.submitting.Lock()
	defer f.submitting.Unlock()

	if input.Type == "" {
		input.Type = sacco.TransactionDeposit
	}
	if input.Source == "" {
		input.Source = sacco.SourceCash
	}

	notice, err := f.submit(ctx, input)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		return f.noticeLocked(NoticeFor(err, msgCaptureFailed)), err
	}

	return f.noticeLocked(notice), nil
}

func (f *CaptureForm) submit(ctx context.Context, input CaptureInput) (Notice, error) {
	creds, client, err := f.session.Authorized(ctx)
	if err != nil {
		return Notice{}, err
	}
	if err := permit(creds.User, CaptureTransactions, deniedCapture); err != nil {
		return Notice{}, err
	}

	if err := f.validate.Struct(input); err != nil {
		return Notice{}, &FormError{Message: msgCaptureInvalid}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(input.Amount))
	if err != nil || !amount.IsPositive() {
		return Notice{}, &FormError{Field: "amount", Message: msgCaptureInvalid}
	}

	transaction, err := client.CreateTransaction(ctx, sacco.CreateTransactionRequest{
		User:            input.MemberID,
		Amount:          amount,
		TransactionType: input.Type,
		Source:          input.Source,
	})
	if err != nil {
		log.Printf("[TRANSACTION] capture for %s failed: %v", input.MemberID, err)
		return Notice{}, err
	}

	log.Printf("[TRANSACTION] %s %s captured for %s by %s", transaction.TransactionType, amount, input.MemberID, creds.User.ID)

	return Success(msgCaptureSucceeded, RouteDashboard), nil
}

// ////////////////////////////////////////////
// /// APPROVALS
// ////////////////////////////////////////////

type PendingTransactionsView struct {
	Phase  Phase            `json:"phase"`
	Notice *Notice          `json:"notice,omitempty"`
	Rows   []TransactionRow `json:"rows"`
}

// PendingTransactionsScreen is the treasurer's queue of transactions waiting for approval.
type PendingTransactionsScreen struct {
	screen
	session      *Session
	transactions []sacco.Transaction
}

func NewPendingTransactionsScreen(session *Session) *PendingTransactionsScreen {
	return &PendingTransactionsScreen{session: session}
}

func (s *PendingTransactionsScreen) Load(ctx context.Context) error {
	ctx, generation := s.begin(ctx)

	creds, client, err := s.session.Authorized(ctx)
	if err == nil {
		err = permit(creds.User, ApproveTransactions, deniedTreasurer)
	}
	var transactions []sacco.Transaction
	if err == nil {
		transactions, err = client.GetTransactions(ctx, sacco.TransactionFilter{Status: sacco.StatusPending})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settleLocked(generation) {
		return nil
	}
	if err != nil {
		s.failLocked(err, msgTransactionsFailed)
		return err
	}

	s.transactions = nil
	for _, t := range transactions {
		if strings.EqualFold(t.Status, sacco.StatusPending) {
			s.transactions = append(s.transactions, t)
		}
	}
	s.readyLocked(len(s.transactions))

	return nil
}

func (s *PendingTransactionsScreen) View() PendingTransactionsView {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase, notice := s.snapshotLocked()
	view := PendingTransactionsView{Phase: phase, Notice: notice, Rows: []TransactionRow{}}
	for _, t := range s.transactions {
		view.Rows = append(view.Rows, TransactionRow{Transaction: t, Expanded: s.isExpandedLocked(t.ID)})
	}

	return view
}

// Act approves or rejects a transaction. The row leaves the queue only after the server accepts.
func (s *PendingTransactionsScreen) Act(ctx context.Context, transactionID, action string) (Notice, error) {
	err := checkAction(action)
	var creds Credentials
	var client sacco.AuthorizedClient
	if err == nil {
		creds, client, err = s.session.Authorized(ctx)
	}
	if err == nil {
		err = permit(creds.User, ApproveTransactions, deniedTreasurer)
	}
	if err == nil {
		err = client.DecideTransaction(ctx, transactionID, action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		log.Printf("[TRANSACTION] %s of %s failed: %v", action, transactionID, err)
		return s.noticeLocked(actionFailed(err, fmt.Sprintf("Failed to %s transaction.", action))), err
	}

	kept := s.transactions[:0]
	for _, t := range s.transactions {
		if t.ID != transactionID {
			kept = append(kept, t)
		}
	}
	s.transactions = kept
	s.readyLocked(len(s.transactions))

	return s.noticeLocked(Success(fmt.Sprintf("Transaction %s.", pastTense(action)), "")), nil
}
