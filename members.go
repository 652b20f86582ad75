package tomikal

import (
	"context"
	"fmt"
	"log"

	"tomikal/sacco"
)

type MemberRow struct {
	sacco.User
	Expanded bool `json:"expanded"`
}

type PendingMembersView struct {
	Phase  Phase       `json:"phase"`
	Notice *Notice     `json:"notice,omitempty"`
	Rows   []MemberRow `json:"rows"`
}

// PendingMembersScreen is the secretary's queue of sign ups waiting for approval.
type PendingMembersScreen struct {
	screen
	session *Session
	members []sacco.User
}

func NewPendingMembersScreen(session *Session) *PendingMembersScreen {
	return &PendingMembersScreen{session: session}
}

func (s *PendingMembersScreen) Load(ctx context.Context) error {
	ctx, generation := s.begin(ctx)

	creds, client, err := s.session.Authorized(ctx)
	if err == nil {
		err = permit(creds.User, ApproveMembers, deniedMembers)
	}
	var members []sacco.User
	if err == nil {
		members, err = client.GetPendingUsers(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.settleLocked(generation) {
		return nil
	}
	if err != nil {
		s.failLocked(err, msgMembersFailed)
		return err
	}

	s.members = members
	s.readyLocked(len(members))

	return nil
}

func (s *PendingMembersScreen) View() PendingMembersView {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase, notice := s.snapshotLocked()
	view := PendingMembersView{Phase: phase, Notice: notice, Rows: []MemberRow{}}
	for _, m := range s.members {
		view.Rows = append(view.Rows, MemberRow{User: m, Expanded: s.isExpandedLocked(m.ID)})
	}

	return view
}

func (s *PendingMembersScreen) Act(ctx context.Context, userID, action string) (Notice, error) {
	err := checkAction(action)
	var creds Credentials
	var client sacco.AuthorizedClient
	if err == nil {
		creds, client, err = s.session.Authorized(ctx)
	}
	if err == nil {
		err = permit(creds.User, ApproveMembers, deniedMembers)
	}
	response := sacco.MessageResponse{}
	if err == nil {
		response, err = client.DecideUser(ctx, userID, action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		log.Printf("[MEMBER] %s of user %s failed: %v", action, userID, err)
		return s.noticeLocked(actionFailed(err, fmt.Sprintf("Failed to %s user.", action))), err
	}

	kept := s.members[:0]
	for _, m := range s.members {
		if m.ID != userID {
			kept = append(kept, m)
		}
	}
	s.members = kept
	s.readyLocked(len(s.members))

	message := response.Text()
	if message == "" {
		message = fmt.Sprintf("User %s.", pastTense(action))
	}

	return s.noticeLocked(Success(message, "")), nil
}
