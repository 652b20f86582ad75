package tomikal

import (
	"context"
	"fmt"
	"log"

	"tomikal/sacco"
)

type GuarantorRequestsView struct {
	Phase  Phase     `json:"phase"`
	Notice *Notice   `json:"notice,omitempty"`
	Rows   []LoanRow `json:"rows"`
}

// GuarantorRequestsScreen lists loans waiting for the signed in member to back or decline them.
type GuarantorRequestsScreen struct {
	screen
	session  *Session
	requests []sacco.Loan
}

func NewGuarantorRequestsScreen(session *Session) *GuarantorRequestsScreen {
	return &GuarantorRequestsScreen{session: session}
}

func (s *GuarantorRequestsScreen) Load(ctx context.Context) error {
	ctx, generation := s.begin(ctx)

	_, client, err := s.session.Authorized(ctx)
	var requests []sacco.Loan
	if err == nil {
		requests, err = client.GetGuarantorRequests(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settleLocked(generation) {
		return nil
	}
	if err != nil {
		s.failLocked(err, msgGuaranteesFailed)
		return err
	}

	s.requests = requests
	s.readyLocked(len(requests))

	return nil
}

func (s *GuarantorRequestsScreen) View() GuarantorRequestsView {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase, notice := s.snapshotLocked()
	view := GuarantorRequestsView{Phase: phase, Notice: notice, Rows: []LoanRow{}}
	for _, l := range s.requests {
		view.Rows = append(view.Rows, newLoanRow(l, s.isExpandedLocked(loanKey(l.ID))))
	}

	return view
}

// Decide records the member's accept or reject for a loan they were asked to guarantee.
func (s *GuarantorRequestsScreen) Decide(ctx context.Context, loanID int64, decision string) (Notice, error) {
	var err error
	if decision != sacco.DecisionAccept && decision != sacco.DecisionReject {
		err = &FormError{Field: "decision", Message: fmt.Sprintf("Unknown decision %q.", decision)}
	}

	var client sacco.AuthorizedClient
	if err == nil {
		_, client, err = s.session.Authorized(ctx)
	}
	if err == nil {
		_, err = client.DecideGuarantee(ctx, loanID, decision)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		log.Printf("[GUARANTOR] %s of loan %d failed: %v", decision, loanID, err)
		return s.noticeLocked(actionFailed(err, msgDecisionFailed)), err
	}

	kept := s.requests[:0]
	for _, l := range s.requests {
		if l.ID != loanID {
			kept = append(kept, l)
		}
	}
	s.requests = kept
	s.readyLocked(len(s.requests))

	return s.noticeLocked(Success(fmt.Sprintf("Request %sed.", decision), "")), nil
}
