package tomikal

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"tomikal/sacco"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type LoanFormState int

const (
	LoanFormIdle LoanFormState = iota
	LoanFormCheckingEligibility
	LoanFormEligible
	LoanFormIneligible
	LoanFormSubmitting
	LoanFormSubmitted
	LoanFormFailed
)

func (s LoanFormState) String() string {
	return [...]string{"idle", "checking_eligibility", "eligible", "ineligible", "submitting", "submitted", "failed"}[s]
}

func (s LoanFormState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var errAlreadySubmitting = errors.New("loan request is already being submitted")

type LoanInput struct {
	Amount     string `json:"amount"`
	Guarantor1 string `json:"guarantor1"`
	Guarantor2 string `json:"guarantor2"`
	Purpose    string `json:"purpose,omitempty"`
}

type LoanRequestView struct {
	State              LoanFormState      `json:"state"`
	Notice             *Notice            `json:"notice,omitempty"`
	CanApplyForOthers  bool               `json:"can_apply_for_others"`
	ForSelf            bool               `json:"for_self"`
	BorrowerID         string             `json:"borrower_id"`
	BorrowerOptions    []sacco.User       `json:"borrower_options,omitempty"`
	GuarantorOptions   []sacco.User       `json:"guarantor_options"`
	Eligibility        *sacco.Eligibility `json:"eligibility,omitempty"`
	EligibilityMessage string             `json:"eligibility_message,omitempty"`
	Input              LoanInput          `json:"input"`
	Problems           []string           `json:"problems,omitempty"`
	CanSubmit          bool               `json:"can_submit"`
}

// guarantorChoice is the part of the form validated by tag.
type guarantorChoice struct {
	Borrower   string `validate:"required"`
	Guarantor1 string `validate:"required,nefield=Borrower"`
	Guarantor2 string `validate:"required,nefield=Borrower,nefield=Guarantor1"`
}

// LoanRequestForm walks a member through asking for a loan:
//
//	idle -> checking eligibility -> eligible | ineligible
//	eligible -> submitting -> submitted | failed
//	failed -> eligible on the next edit
//
// Changing the borrower clears the guarantors and starts a new eligibility check. Only the newest
// check may change the form.
type LoanRequestForm struct {
	mu       sync.Mutex
	session  *Session
	validate *validator.Validate
	guard    loadGuard

	self               sacco.User
	members            []sacco.User
	forSelf            bool
	borrowerID         string
	state              LoanFormState
	eligibility        *sacco.Eligibility
	eligibilityMessage string
	input              LoanInput
	notice             *Notice
}

func NewLoanRequestForm(session *Session) *LoanRequestForm {
	return &LoanRequestForm{
		session:  session,
		validate: validator.New(),
	}
}

// Open loads the member list. Ordinary members apply for themselves, so their eligibility is
// checked right away. A secretary first picks who the loan is for.
func (f *LoanRequestForm) Open(ctx context.Context) error {
	creds, client, err := f.session.Authorized(ctx)
	if err != nil {
		f.fail(err, msgLoadDataFailed)
		return err
	}

	members, err := client.GetUsers(ctx)
	if err != nil {
		f.fail(err, msgLoadDataFailed)
		return err
	}

	f.mu.Lock()
	f.self = creds.User
	f.members = members
	f.forSelf = !Can(creds.User, RequestLoanForOthers)
	borrowerID := ""
	if f.forSelf {
		borrowerID = creds.User.ID
	}
	checkCtx, generation := f.changeBorrowerLocked(ctx, borrowerID)
	f.mu.Unlock()

	if borrowerID == "" {
		return nil
	}

	return f.checkEligibility(checkCtx, generation, borrowerID)
}

func (f *LoanRequestForm) fail(err error, fallback string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := NoticeFor(err, fallback)
	f.notice = &n
}

// ApplyForSelf is the secretary's switch between their own loan and a loan for another member.
func (f *LoanRequestForm) ApplyForSelf(ctx context.Context, forSelf bool) error {
	f.mu.Lock()
	if err := permit(f.self, RequestLoanForOthers, deniedOtherMembers); err != nil {
		f.mu.Unlock()
		return err
	}

	f.forSelf = forSelf
	borrowerID := ""
	if forSelf {
		borrowerID = f.self.ID
	}
	checkCtx, generation := f.changeBorrowerLocked(ctx, borrowerID)
	f.mu.Unlock()

	if borrowerID == "" {
		return nil
	}

	return f.checkEligibility(checkCtx, generation, borrowerID)
}

// SelectBorrower picks the member a secretary is applying for. An empty id clears the choice.
func (f *LoanRequestForm) SelectBorrower(ctx context.Context, memberID string) error {
	f.mu.Lock()
	if err := permit(f.self, RequestLoanForOthers, deniedOtherMembers); err != nil {
		f.mu.Unlock()
		return err
	}

	f.forSelf = memberID != "" && memberID == f.self.ID
	checkCtx, generation := f.changeBorrowerLocked(ctx, memberID)
	f.mu.Unlock()

	if memberID == "" {
		return nil
	}

	return f.checkEligibility(checkCtx, generation, memberID)
}

// changeBorrowerLocked switches the form to borrowerID and starts the generation its eligibility
// check runs under, cancelling any check still out for an earlier borrower.
func (f *LoanRequestForm) changeBorrowerLocked(ctx context.Context, borrowerID string) (context.Context, uint64) {
	ctx, generation := f.guard.begin(ctx)

	f.borrowerID = borrowerID
	f.input.Guarantor1 = ""
	f.input.Guarantor2 = ""
	f.eligibility = nil
	f.eligibilityMessage = ""
	f.notice = nil
	f.state = LoanFormIdle

	if borrowerID == "" {
		f.guard.release(generation)
	} else {
		f.state = LoanFormCheckingEligibility
	}

	return ctx, generation
}

// checkEligibility asks the server what borrowerID may borrow. The answer only lands while
// generation is still current and the form still belongs to borrowerID.
func (f *LoanRequestForm) checkEligibility(ctx context.Context, generation uint64, borrowerID string) error {
	_, client, err := f.session.Authorized(ctx)
	eligibility := sacco.Eligibility{}
	if err == nil {
		eligibility, err = client.GetEligibility(ctx, borrowerID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.guard.current(generation) || f.borrowerID != borrowerID {
		return nil
	}
	f.guard.release(generation)

	if err != nil {
		log.Printf("[LOAN] eligibility check for %s failed: %v", borrowerID, err)
		f.state = LoanFormIneligible
		f.eligibilityMessage = msgEligibilityFailed
		n := NoticeFor(err, msgEligibilityFailed)
		f.notice = &n
		return err
	}

	f.eligibility = &eligibility
	switch {
	case !eligibility.Balance.IsPositive():
		f.state = LoanFormIneligible
		f.eligibilityMessage = msgZeroShares
	case !eligibility.EligibleAmount.IsPositive():
		f.state = LoanFormIneligible
		f.eligibilityMessage = msgOutstandingLoan
	default:
		f.state = LoanFormEligible
	}

	return nil
}

// Edit replaces the amount, guarantors and purpose. A failed submission becomes editable again.
func (f *LoanRequestForm) Edit(input LoanInput) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.input = input
	if f.state == LoanFormFailed {
		f.state = LoanFormEligible
		f.notice = nil
	}
}

// problemsLocked lists every inline message that keeps the form from being submitted.
func (f *LoanRequestForm) problemsLocked() []*FormError {
	var problems []*FormError
	add := func(field, message string) {
		for _, p := range problems {
			if p.Message == message {
				return
			}
		}
		problems = append(problems, &FormError{Field: field, Message: message})
	}

	if f.borrowerID == "" {
		add("borrower", msgBorrowerRequired)
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(f.input.Amount))
	switch {
	case err != nil || !amount.IsPositive():
		add("amount", msgAmountInvalid)
	case f.eligibility != nil && amount.GreaterThan(f.eligibility.EligibleAmount):
		add("amount", msgAmountOverLimit)
	}

	choice := guarantorChoice{
		Borrower:   f.borrowerID,
		Guarantor1: strings.TrimSpace(f.input.Guarantor1),
		Guarantor2: strings.TrimSpace(f.input.Guarantor2),
	}
	if err := f.validate.Struct(choice); err != nil {
		validationErrors := validator.ValidationErrors{}
		if errors.As(err, &validationErrors) {
			for _, fe := range validationErrors {
				if fe.Field() == "Borrower" {
					continue
				}
				switch {
				case fe.Tag() == "required":
					add("guarantors", msgGuarantorsRequired)
				case fe.Param() == "Guarantor1":
					add("guarantors", msgGuarantorsSame)
				default:
					add("guarantors", msgGuarantorIsBorrower)
				}
			}
		}
	}

	return problems
}

func (f *LoanRequestForm) canSubmitLocked(problems []*FormError) bool {
	return (f.state == LoanFormEligible || f.state == LoanFormFailed) && len(problems) == 0
}

// Submit sends the request. Nothing is sent while the form has problems or the borrower is not
// eligible.
func (f *LoanRequestForm) Submit(ctx context.Context) (Notice, error) {
	f.mu.Lock()
	switch f.state {
	case LoanFormIneligible:
		message := f.eligibilityMessage
		f.mu.Unlock()
		return NoticeFor(&FormError{Field: "borrower", Message: message}, message), &FormError{Field: "borrower", Message: message}
	case LoanFormSubmitting:
		f.mu.Unlock()
		return Notice{}, errAlreadySubmitting
	case LoanFormCheckingEligibility:
		f.mu.Unlock()
		err := &FormError{Field: "borrower", Message: msgEligibilityPending}
		return NoticeFor(err, msgEligibilityPending), err
	case LoanFormEligible, LoanFormFailed:
	default:
		f.mu.Unlock()
		err := &FormError{Field: "borrower", Message: msgBorrowerRequired}
		return NoticeFor(err, msgBorrowerRequired), err
	}

	problems := f.problemsLocked()
	if len(problems) > 0 {
		f.mu.Unlock()
		return NoticeFor(problems[0], problems[0].Message), problems[0]
	}

	amount, _ := decimal.NewFromString(strings.TrimSpace(f.input.Amount))
	request := sacco.LoanRequest{
		Borrower:     f.borrowerID,
		Amount:       amount,
		Guarantor1ID: strings.TrimSpace(f.input.Guarantor1),
		Guarantor2ID: strings.TrimSpace(f.input.Guarantor2),
		Purpose:      f.input.Purpose,
	}
	generation := f.guard.generation
	f.state = LoanFormSubmitting
	f.notice = nil
	f.mu.Unlock()

	_, client, err := f.session.Authorized(ctx)
	if err == nil {
		_, err = client.RequestLoan(ctx, request)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// the borrower changed while the request was out; the form now belongs to the new borrower
	owned := f.guard.generation == generation

	if err != nil {
		log.Printf("[LOAN] loan request for %s failed: %v", request.Borrower, err)
		n := NoticeFor(err, msgLoanSubmitFailed)
		if owned {
			f.state = LoanFormFailed
			f.notice = &n
		}
		return n, err
	}

	log.Printf("[LOAN] %s requested a loan of %s for %s", f.self.ID, request.Amount, request.Borrower)

	n := Success(msgLoanSubmitted, RouteDashboard)
	if owned {
		f.state = LoanFormSubmitted
		f.notice = &n
	}

	return n, nil
}

func (f *LoanRequestForm) View() LoanRequestView {
	f.mu.Lock()
	defer f.mu.Unlock()

	problems := f.problemsLocked()
	view := LoanRequestView{
		State:              f.state,
		CanApplyForOthers:  Can(f.self, RequestLoanForOthers),
		ForSelf:            f.forSelf,
		BorrowerID:         f.borrowerID,
		EligibilityMessage: f.eligibilityMessage,
		Input:              f.input,
		CanSubmit:          f.canSubmitLocked(problems),
		GuarantorOptions:   []sacco.User{},
	}

	if f.notice != nil {
		n := *f.notice
		view.Notice = &n
	}
	if f.eligibility != nil {
		e := *f.eligibility
		view.Eligibility = &e
	}

	if view.CanApplyForOthers {
		for _, m := range f.members {
			if m.ID != f.self.ID {
				view.BorrowerOptions = append(view.BorrowerOptions, m)
			}
		}
	}

	for _, m := range f.members {
		if f.borrowerID == "" || m.ID != f.borrowerID {
			view.GuarantorOptions = append(view.GuarantorOptions, m)
		}
	}

	// inline messages only make sense once there is an eligible borrower to fill the form for
	if f.state == LoanFormEligible || f.state == LoanFormFailed {
		for _, p := range problems {
			view.Problems = append(view.Problems, p.Message)
		}
	}

	return view
}
