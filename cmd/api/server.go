package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"tomikal"
	"tomikal/sacco"

	"github.com/go-chi/chi/v5"
)

// screens holds one controller per screen for whoever is signed in. It is replaced on login and
// logout so nothing from one member's session leaks into the next.
type screens struct {
	balance             *tomikal.BalanceScreen
	transactions        *tomikal.TransactionsScreen
	capture             *tomikal.CaptureForm
	pendingTransactions *tomikal.PendingTransactionsScreen
	pendingMembers      *tomikal.PendingMembersScreen
	loans               *tomikal.LoansScreen
	loanApprovals       *tomikal.LoanApprovalsScreen
	loanRequest         *tomikal.LoanRequestForm
	guarantorRequests   *tomikal.GuarantorRequestsScreen
	repayment           *tomikal.RepaymentForm
	pendingRepayments   *tomikal.PendingRepaymentsScreen
}

func newScreens(session *tomikal.Session) *screens {
	return &screens{
		balance:             tomikal.NewBalanceScreen(session),
		transactions:        tomikal.NewTransactionsScreen(session),
		capture:             tomikal.NewCaptureForm(session),
		pendingTransactions: tomikal.NewPendingTransactionsScreen(session),
		pendingMembers:      tomikal.NewPendingMembersScreen(session),
		loans:               tomikal.NewLoansScreen(session),
		loanApprovals:       tomikal.NewLoanApprovalsScreen(session),
		loanRequest:         tomikal.NewLoanRequestForm(session),
		guarantorRequests:   tomikal.NewGuarantorRequestsScreen(session),
		repayment:           tomikal.NewRepaymentForm(session),
		pendingRepayments:   tomikal.NewPendingRepaymentsScreen(session),
	}
}

type Server struct {
	config  tomikal.Config
	session *tomikal.Session

	mu      sync.RWMutex
	screens *screens
}

func NewServer(config tomikal.Config, session *tomikal.Session) *Server {
	return &Server{
		config:  config,
		session: session,
		screens: newScreens(session),
	}
}

func (s *Server) current() *screens {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.screens
}

func (s *Server) resetScreens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.screens = newScreens(s.session)
}

// ////////////////////////////////////////////
// /// RESPONSES
// ////////////////////////////////////////////

type noticeResponse struct {
	Notice tomikal.Notice `json:"notice"`
	View   interface{}    `json:"view,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[PORTAL] unable to encode response: %v", err)
	}
}

// statusFor picks the portal's status code for an error coming out of a screen.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if errors.Is(err, tomikal.ErrSessionExpired) || errors.Is(err, sacco.UnauthorizedError) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, tomikal.ErrNotPermitted) || errors.Is(err, sacco.ForbiddenError) {
		return http.StatusForbidden
	}

	formErr := &tomikal.FormError{}
	if errors.As(err, &formErr) {
		return http.StatusUnprocessableEntity
	}

	apiErr := &sacco.APIError{}
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return apiErr.StatusCode
	}

	return http.StatusBadGateway
}

// writeView answers a screen load. A failed load still sends the view, which carries the notice.
func writeView(w http.ResponseWriter, err error, view interface{}) {
	writeJSON(w, statusFor(err), view)
}

func writeNotice(w http.ResponseWriter, status int, notice tomikal.Notice, err error, view interface{}) {
	if err != nil {
		status = statusFor(err)
	}

	writeJSON(w, status, noticeResponse{Notice: notice, View: view})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, noticeResponse{Notice: tomikal.NoticeFor(&tomikal.FormError{Message: message}, message)})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Printf("[PORTAL] unable to decode %s %s: %v", r.Method, r.URL.Path, err)
		writeBadRequest(w, "Request body is not valid JSON.")
		return false
	}

	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "Unknown id.")
		return 0, false
	}

	return id, true
}

// ////////////////////////////////////////////
// /// SESSION
// ////////////////////////////////////////////

// RequireSession turns away requests when nobody is signed in.
func (s *Server) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.session.IsAuthenticated(r.Context()) {
			err := tomikal.ErrSessionExpired
			writeNotice(w, http.StatusUnauthorized, tomikal.NoticeFor(err, ""), err, nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      *sacco.User     `json:"user,omitempty"`
	Header    *tomikal.Header `json:"header,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Route     tomikal.Route   `json:"route,omitempty"`
}

func newSessionResponse(orgName string, user sacco.User) sessionResponse {
	header := tomikal.NewHeader(orgName, user)
	return sessionResponse{User: &user, Header: &header}
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	request := loginRequest{}
	if !decode(w, r, &request) {
		return
	}

	user, err := s.session.Login(r.Context(), request.Username, request.Password)
	if err != nil {
		writeNotice(w, 0, tomikal.NoticeFor(err, "Login failed."), err, nil)
		return
	}

	s.resetScreens()

	response := newSessionResponse(s.config.OrgName, user)
	response.Route = tomikal.RouteDashboard

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) WhoAmI(w http.ResponseWriter, r *http.Request) {
	creds, err := s.session.Current(r.Context())
	if err != nil {
		writeNotice(w, 0, tomikal.NoticeFor(err, ""), err, nil)
		return
	}

	response := newSessionResponse(s.config.OrgName, creds.User)
	if !creds.ExpiresAt.IsZero() {
		response.ExpiresAt = &creds.ExpiresAt
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	route, err := s.session.Logout(r.Context())
	s.resetScreens()

	if err != nil {
		log.Printf("[PORTAL] logout: %v", err)
	}

	writeJSON(w, http.StatusOK, sessionResponse{Route: route})
}

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	input := tomikal.RegisterInput{}
	if !decode(w, r, &input) {
		return
	}

	notice, err := s.session.Register(r.Context(), input)
	if err != nil {
		writeNotice(w, 0, tomikal.NoticeFor(err, "Registration failed. Please try again."), err, nil)
		return
	}

	writeNotice(w, http.StatusCreated, notice, nil, nil)
}

func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	view, err := tomikal.Dashboard(r.Context(), s.session, s.config.OrgName)
	if err != nil {
		writeNotice(w, 0, tomikal.NoticeFor(err, ""), err, nil)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) Balance(w http.ResponseWriter, r *http.Request) {
	screen := s.current().balance
	err := screen.Load(r.Context())
	writeView(w, err, screen.View())
}

// ////////////////////////////////////////////
// /// TRANSACTIONS
// ////////////////////////////////////////////

func parseDay(query url.Values, key string) (time.Time, error) {
	value := query.Get(key)
	if value == "" {
		return time.Time{}, nil
	}

	return time.ParseInLocation("2006-01-02", value, time.Local)
}

func (s *Server) Transactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, err := parseDay(query, "from")
	if err != nil {
		writeBadRequest(w, "Start date must look like 2000-01-31.")
		return
	}
	to, err := parseDay(query, "to")
	if err != nil {
		writeBadRequest(w, "End date must look like 2000-01-31.")
		return
	}
	viewAll, _ := strconv.ParseBool(query.Get("view_all"))

	screen := s.current().transactions
	err = screen.Load(r.Context())
	screen.SetFilter(tomikal.TransactionFilter{
		Type:     query.Get("type"),
		From:     from,
		To:       to,
		ViewAll:  viewAll,
		MemberID: query.Get("member_id"),
	})

	writeView(w, err, screen.View())
}

func (s *Server) CaptureForm(w http.ResponseWriter, r *http.Request) {
	form := s.current().capture
	err := form.Load(r.Context())
	writeView(w, err, form.View())
}

func (s *Server) CaptureTransaction(w http.ResponseWriter, r *http.Request) {
	input := tomikal.CaptureInput{}
	if !decode(w, r, &input) {
		return
	}

	notice, err := s.current().capture.Submit(r.Context(), input)
	writeNotice(w, http.StatusCreated, notice, err, nil)
}

func (s *Server) PendingTransactions(w http.ResponseWriter, r *http.Request) {
	screen := s.current().pendingTransactions
	err := screen.Load(r.Context())
	writeView(w, err, screen.View())
}

func (s *Server) ReviewTransaction(w http.ResponseWriter, r *http.Request) {
	screen := s.current().pendingTransactions
	notice, err := screen.Act(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "action"))
	writeNotice(w, http.StatusOK, notice, err, screen.View())
}

// ////////////////////////////////////////////
// /// MEMBERS
// ////////////////////////////////////////////

func (s *Server) PendingMembers(w http.ResponseWriter, r *http.Request) {
	screen := s.current().pendingMembers
	err := screen.Load(r.Context())
	writeView(w, err, screen.View())
}

func (s *Server) ReviewMember(w http.ResponseWriter, r *http.Request) {
	screen := s.current().pendingMembers
	notice, err := screen.Act(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "action"))
	writeNotice(w, http.StatusOK, notice, err, screen.View())
}

// ////////////////////////////////////////////
// /// LOANS
// ////////////////////////////////////////////

func (s *Server) Loans(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	memberID := query.Get("member_id")

	screen := s.current().loans
	screen.SetStatus(query.Get("status"))
	screen.SetBorrower(memberID == "", memberID)
	err := screen.Load(r.Context())

	writeView(w, err, screen.View())
}

func (s *Server) LoanApprovals(w http.ResponseWriter, r *http.Request) {
	screen := s.current().loanApprovals
	err := screen.Load(r.Context())
	writeView(w, err, screen.View())
}

func (s *Server) ReviewLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	screen := s.current().loanApprovals
	notice, err := screen.Act(r.Context(), id, chi.URLParam(r, "action"))
	writeNotice(w, http.StatusOK, notice, err, screen.View())
}

func (s *Server) OpenLoanRequest(w http.ResponseWriter, r *http.Request) {
	form := s.current().loanRequest
	err := form.Open(r.Context())
	writeView(w, err, form.View())
}

type borrowerRequest struct {
	ForSelf  bool   `json:"for_self"`
	MemberID string `json:"member_id"`
}

func (s *Server) ChooseBorrower(w http.ResponseWriter, r *http.Request) {
	request := borrowerRequest{}
	if !decode(w, r, &request) {
		return
	}

	form := s.current().loanRequest
	var err error
	if request.ForSelf || request.MemberID == "" {
		err = form.ApplyForSelf(r.Context(), request.ForSelf)
	} else {
		err = form.SelectBorrower(r.Context(), request.MemberID)
	}

	writeView(w, err, form.View())
}

func (s *Server) EditLoanRequest(w http.ResponseWriter, r *http.Request) {
	input := tomikal.LoanInput{}
	if !decode(w, r, &input) {
		return
	}

	form := s.current().loanRequest
	form.Edit(input)
	writeView(w, nil, form.View())
}

// SubmitLoanRequest sends the form. A body, when present, replaces the form's input first.
func (s *Server) SubmitLoanRequest(w http.ResponseWriter, r *http.Request) {
	form := s.current().loanRequest

	if r.ContentLength != 0 {
		input := tomikal.LoanInput{}
		if !decode(w, r, &input) {
			return
		}
		form.Edit(input)
	}

	notice, err := form.Submit(r.Context())
	writeNotice(w, http.StatusCreated, notice, err, form.View())
}

func (s *Server) GuarantorRequests(w http.ResponseWriter, r *http.Request) {
	screen := s.current().guarantorRequests
	err := screen.Load(r.Context())
	writeView(w, err, screen.View())
}

func (s *Server) DecideGuarantee(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	screen := s.current().guarantorRequests
	notice, err := screen.Decide(r.Context(), id, chi.URLParam(r, "decision"))
	writeNotice(w, http.StatusOK, notice, err, screen.View())
}

// ////////////////////////////////////////////
// /// REPAYMENTS
// ////////////////////////////////////////////

func (s *Server) RepaymentForm(w http.ResponseWriter, r *http.Request) {
	form := s.current().repayment
	err := form.Load(r.Context())
	writeView(w, err, form.View())
}

func (s *Server) RecordRepayment(w http.ResponseWriter, r *http.Request) {
	input := tomikal.RepaymentInput{}
	if !decode(w, r, &input) {
		return
	}

	notice, err := s.current().repayment.Submit(r.Context(), input)
	writeNotice(w, http.StatusCreated, notice, err, nil)
}

func (s *Server) PendingRepayments(w http.ResponseWriter, r *http.Request) {
	screen := s.current().pendingRepayments
	err := screen.Load(r.Context())
	writeView(w, err, screen.View())
}

func (s *Server) ReviewRepayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	screen := s.current().pendingRepayments
	notice, err := screen.Act(r.Context(), id, chi.URLParam(r, "action"))
	writeNotice(w, http.StatusOK, notice, err, screen.View())
}
