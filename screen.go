package tomikal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tomikal/sacco"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseError
	PhaseEmpty
	PhaseReady
)

func (p Phase) String() string {
	return [...]string{"idle", "loading", "error", "empty", "ready"}[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (k NoticeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Header is the strip shown on top of every signed in screen.
type Header struct {
	OrgName       string `json:"org_name"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	Role          string `json:"role"`
}

func NewHeader(orgName string, u sacco.User) Header {
	if orgName == "" {
		orgName = DefaultOrgName
	}

	return Header{
		OrgName:       orgName,
		Name:          u.FullName(),
		AccountNumber: strings.ToUpper(u.ID),
		Role:          PrimaryRole(u).String(),
	}
}

// loadGuard makes the most recent load the only one allowed to touch a screen. Starting a load
// cancels the one before it.
type loadGuard struct {
	generation uint64
	cancel     context.CancelFunc
}

func (g *loadGuard) begin(ctx context.Context) (context.Context, uint64) {
	if g.cancel != nil {
		g.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	g.generation++
	g.cancel = cancel

	return ctx, g.generation
}

func (g *loadGuard) current(generation uint64) bool {
	return generation == g.generation
}

func (g *loadGuard) release(generation uint64) {
	if generation == g.generation && g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

// screen holds what every list screen shares. Fields are guarded by mu.
type screen struct {
	mu       sync.Mutex
	guard    loadGuard
	phase    Phase
	notice   *Notice
	expanded map[string]bool
}

func (s *screen) begin(ctx context.Context) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, generation := s.guard.begin(ctx)
	s.phase = PhaseLoading
	s.notice = nil

	return ctx, generation
}

// settleLocked reports whether the load numbered generation still owns the screen, and ends it.
func (s *screen) settleLocked(generation uint64) bool {
	if !s.guard.current(generation) {
		return false
	}

	s.guard.release(generation)
	return true
}

func (s *screen) failLocked(err error, fallback string) {
	n := NoticeFor(err, fallback)
	s.notice = &n
	s.phase = PhaseError
}

func (s *screen) readyLocked(rows int) {
	if rows == 0 {
		s.phase = PhaseEmpty
		return
	}

	s.phase = PhaseReady
}

func (s *screen) noticeLocked(n Notice) Notice {
	s.notice = &n
	return n
}

// Toggle expands or collapses the row with the given id.
func (s *screen) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expanded == nil {
		s.expanded = map[string]bool{}
	}
	s.expanded[id] = !s.expanded[id]

	return s.expanded[id]
}

func (s *screen) isExpandedLocked(id string) bool {
	return s.expanded[id]
}

func (s *screen) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notice = nil
}

func (s *screen) snapshotLocked() (Phase, *Notice) {
	if s.notice == nil {
		return s.phase, nil
	}

	n := *s.notice
	return s.phase, &n
}

// actionFailed builds the notice for a failed approve or reject. The server's "error" message wins
// over fallback.
func actionFailed(err error, fallback string) Notice {
	apiErr := &sacco.APIError{}
	if errors.As(err, &apiErr) && !errors.Is(err, sacco.UnauthorizedError) {
		return Notice{Kind: NoticeError, Title: "Error", Message: serverMessage(err, fallback)}
	}

	return NoticeFor(err, fallback)
}

func checkAction(action string) error {
	if action != sacco.ActionApprove && action != sacco.ActionReject {
		return &FormError{Field: "action", Message: fmt.Sprintf("Unknown action %q.", action)}
	}

	return nil
}

// pastTense turns an action into the word used in confirmations.
func pastTense(action string) string {
	return action + "d"
}
