package tomikal

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"tomikal/sacco"

	"github.com/shopspring/decimal"
)

type LoanRow struct {
	sacco.Loan
	GuarantorProgress int             `json:"guarantor_progress"`
	Remaining         decimal.Decimal `json:"remaining"`
	RepaymentPercent  decimal.Decimal `json:"repayment_percent"`
	Expanded          bool            `json:"expanded"`
}

func newLoanRow(l sacco.Loan, expanded bool) LoanRow {
	return LoanRow{
		Loan:              l,
		GuarantorProgress: l.GuarantorProgress(),
		Remaining:         l.Remaining(),
		RepaymentPercent:  l.RepaymentPercent(),
		Expanded:          expanded,
	}
}

func loanKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// borrowedBy reports whether the loan's borrower is member. Some serializers only send the
// borrower's display name, which is matched against the member's names.
func borrowedBy(l sacco.Loan, member sacco.User) bool {
	if l.Borrower.ID != "" {
		return l.Borrower.ID == member.ID
	}

	label := l.Borrower.Label
	return label != "" && (label == member.ID || label == member.FullName() || label == member.Username)
}

// ////////////////////////////////////////////
// /// LOAN LISTING
// ////////////////////////////////////////////

type LoansView struct {
	Phase          Phase        `json:"phase"`
	Notice         *Notice      `json:"notice,omitempty"`
	Status         string       `json:"status"`
	ForSelf        bool         `json:"for_self"`
	SelectedMember string       `json:"selected_member,omitempty"`
	CanViewOthers  bool         `json:"can_view_others"`
	Members        []sacco.User `json:"members,omitempty"`
	Rows           []LoanRow    `json:"rows"`
}

// LoansScreen lists one borrower's loans. Secretaries and treasurers can look at any member.
type LoansScreen struct {
	screen
	session        *Session
	self           sacco.User
	members        []sacco.User
	loans          []sacco.Loan
	status         string
	forSelf        bool
	selectedMember string
}

func NewLoansScreen(session *Session) *LoansScreen {
	return &LoansScreen{session: session, forSelf: true}
}

// SetStatus narrows the listing to one loan status, "" for every status.
func (s *LoansScreen) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == "all" {
		status = ""
	}
	s.status = status
}

// SetBorrower switches between the signed in member's own loans and another member's.
func (s *LoansScreen) SetBorrower(forSelf bool, memberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.forSelf = forSelf
	s.selectedMember = ""
	if !forSelf {
		s.selectedMember = memberID
	}
	s.loans = nil
}

func (s *LoansScreen) Load(ctx context.Context) error {
	s.mu.Lock()
	status, forSelf, selected := s.status, s.forSelf, s.selectedMember
	needMembers := s.members == nil
	s.mu.Unlock()

	ctx, generation := s.begin(ctx)

	creds, client, err := s.session.Authorized(ctx)
	canViewOthers := err == nil && creds.Can(ViewMemberLoans)

	var members []sacco.User
	if err == nil && canViewOthers && needMembers {
		members, err = client.GetUsers(ctx)
	}

	borrowerID := creds.User.ID
	if canViewOthers && !forSelf {
		borrowerID = selected
	}

	var loans []sacco.Loan
	if err == nil && borrowerID != "" {
		loans, err = client.GetLoans(ctx, sacco.LoanFilter{Status: status, UserID: borrowerID})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settleLocked(generation) {
		return nil
	}
	if err != nil {
		s.failLocked(err, msgLoansFailed)
		return err
	}

	s.self = creds.User
	if members != nil {
		s.members = members
	}
	borrower := creds.User
	if borrowerID != creds.User.ID {
		borrower = sacco.User{ID: borrowerID}
		for _, m := range s.members {
			if m.ID == borrowerID {
				borrower = m
			}
		}
	}

	s.loans = nil
	for _, l := range loans {
		if !borrowedBy(l, borrower) {
			continue
		}
		if status != "" && l.Status != status {
			continue
		}
		s.loans = append(s.loans, l)
	}
	s.expanded = nil
	s.readyLocked(len(s.loans))

	return nil
}

func (s *LoansScreen) View() LoansView {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase, notice := s.snapshotLocked()
	view := LoansView{
		Phase:          phase,
		Notice:         notice,
		Status:         s.status,
		ForSelf:        s.forSelf,
		SelectedMember: s.selectedMember,
		CanViewOthers:  Can(s.self, ViewMemberLoans),
		Rows:           []LoanRow{},
	}

	// the member picker never offers the viewer themselves
	for _, m := range s.members {
		if m.ID != s.self.ID {
			view.Members = append(view.Members, m)
		}
	}

	for _, l := range s.loans {
		view.Rows = append(view.Rows, newLoanRow(l, s.isExpandedLocked(loanKey(l.ID))))
	}

	return view
}

// ////////////////////////////////////////////
// /// LOAN APPROVALS
// ////////////////////////////////////////////

type LoanApprovalsView struct {
	Phase  Phase     `json:"phase"`
	Notice *Notice   `json:"notice,omitempty"`
	Rows   []LoanRow `json:"rows"`
}

// LoanApprovalsScreen is the treasurer's queue of loans the guarantors have already backed.
type LoanApprovalsScreen struct {
	screen
	session *Session
	loans   []sacco.Loan
}

func NewLoanApprovalsScreen(session *Session) *LoanApprovalsScreen {
	return &LoanApprovalsScreen{session: session}
}

func (s *LoanApprovalsScreen) Load(ctx context.Context) error {
	ctx, generation := s.begin(ctx)

	creds, client, err := s.session.Authorized(ctx)
	if err == nil {
		err = permit(creds.User, ApproveLoans, deniedTreasurer)
	}
	var loans []sacco.Loan
	if err == nil {
		loans, err = client.GetLoans(ctx, sacco.LoanFilter{Status: sacco.LoanPendingTreasurer})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settleLocked(generation) {
		return nil
	}
	if err != nil {
		s.failLocked(err, msgLoansFailed)
		return err
	}

	s.loans = nil
	for _, l := range loans {
		if l.Status == sacco.LoanPendingTreasurer {
			s.loans = append(s.loans, l)
		}
	}
	s.readyLocked(len(s.loans))

	return nil
}

func (s *LoanApprovalsScreen) View() LoanApprovalsView {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase, notice := s.snapshotLocked()
	view := LoanApprovalsView{Phase: phase, Notice: notice, Rows: []LoanRow{}}
	for _, l := range s.loans {
		view.Rows = append(view.Rows, newLoanRow(l, s.isExpandedLocked(loanKey(l.ID))))
	}

	return view
}

func (s *LoanApprovalsScreen) Act(ctx context.Context, loanID int64, action string) (Notice, error) {
	err := checkAction(action)
	var creds Credentials
	var client sacco.AuthorizedClient
	if err == nil {
		creds, client, err = s.session.Authorized(ctx)
	}
	if err == nil {
		err = permit(creds.User, ApproveLoans, deniedTreasurer)
	}
	if err == nil {
		err = client.DecideLoan(ctx, loanID, action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		log.Printf("[LOAN] %s of loan %d failed: %v", action, loanID, err)
		return s.noticeLocked(actionFailed(err, fmt.Sprintf("Failed to %s loan.", action))), err
	}

	kept := s.loans[:0]
	for _, l := range s.loans {
		if l.ID != loanID {
			kept = append(kept, l)
		}
	}
	s.loans = kept
	s.readyLocked(len(s.loans))

	return s.noticeLocked(Success(fmt.Sprintf("Loan %s successfully!", pastTense(action)), "")), nil
}
