package tomikal

import (
	"context"

	"tomikal/sacco"
)

type BalanceView struct {
	Phase   Phase          `json:"phase"`
	Notice  *Notice        `json:"notice,omitempty"`
	Balance *sacco.Balance `json:"balance,omitempty"`
}

type BalanceScreen struct {
	screen
	session *Session
	balance *sacco.Balance
}

func NewBalanceScreen(session *Session) *BalanceScreen {
	return &BalanceScreen{session: session}
}

func (s *BalanceScreen) Load(ctx context.Context) error {
	ctx, generation := s.begin(ctx)

	_, client, err := s.session.Authorized(ctx)
	balance := sacco.Balance{}
	if err == nil {
		balance, err = client.GetBalance(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settleLocked(generation) {
		return nil
	}
	if err != nil {
		s.failLocked(err, msgBalanceFailed)
		return err
	}

	s.balance = &balance
	s.phase = PhaseReady

	return nil
}

func (s *BalanceScreen) View() BalanceView {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase, notice := s.snapshotLocked()
	view := BalanceView{Phase: phase, Notice: notice}
	if s.balance != nil {
		b := *s.balance
		view.Balance = &b
	}

	return view
}
