package sacco

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Email       string `json:"email,omitempty"`
	DOB         Date   `json:"dob"`
	IsActive    bool   `json:"is_active"`
	IsApproved  bool   `json:"is_approved"`
	IsAdmin     bool   `json:"is_admin"`
	IsSecretary bool   `json:"is_secretary"`
	IsTreasurer bool   `json:"is_tresurer"`
}

func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}

	return name
}

// MemberRef is a user as it appears inside another record. Depending on the serializer the API
// sends either the nested user object, its primary key or its display string.
type MemberRef struct {
	User
	Label string `json:"-"`
}

func (m *MemberRef) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	*m = MemberRef{}

	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return nil
	case trimmed[0] == '"':
		return json.Unmarshal(trimmed, &m.Label)
	case trimmed[0] == '{':
		return json.Unmarshal(trimmed, &m.User)
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("unable to decode member reference %s: %w", trimmed, err)
		}
		m.ID = n.String()
		return nil
	}
}

func (m MemberRef) MarshalJSON() ([]byte, error) {
	if m.ID == "" && m.Label != "" {
		return json.Marshal(m.Label)
	}

	return json.Marshal(m.User)
}

// Name is the display name for the member, falling back to whatever label the API sent.
func (m MemberRef) Name() string {
	if name := m.FullName(); name != "" {
		return name
	}
	if m.Label != "" {
		return m.Label
	}

	return m.ID
}

// Is reports whether the reference points at the user with the given id.
func (m MemberRef) Is(userID string) bool {
	if userID == "" {
		return false
	}

	return m.ID == userID || m.Label == userID
}

// Date is a calendar date. The API sends "2006-01-02", a full timestamp, or null.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d *Date) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`)) {
		d.Time = time.Time{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("unable to decode date %s: %w", trimmed, err)
	}

	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("unable to parse date %q: %w", raw, err)
		}
	}
	d.Time = t

	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}

	return json.Marshal(d.Format(dateLayout))
}

func (d Date) String() string {
	if d.IsZero() {
		return "-"
	}

	return d.Format(dateLayout)
}

type Transaction struct {
	ID              string          `json:"id"`
	User            MemberRef       `json:"user"`
	Date            time.Time       `json:"date"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionType string          `json:"transaction_type"`
	Source          string          `json:"source"`
	Status          string          `json:"status"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	CreatedBy       MemberRef       `json:"created_by"`
}

type Loan struct {
	ID                  int64           `json:"id"`
	RequestedBy         MemberRef       `json:"requested_by"`
	Borrower            MemberRef       `json:"borrower"`
	Amount              decimal.Decimal `json:"amount"`
	AmountApproved      decimal.Decimal `json:"amountApproved"`
	DueDate             Date            `json:"due_date"`
	TotalDue            decimal.Decimal `json:"total_due"`
	AmountRepaid        decimal.Decimal `json:"amount_repaid"`
	Purpose             string          `json:"purpose"`
	Guarantor1          MemberRef       `json:"guarantor1"`
	Guarantor2          MemberRef       `json:"guarantor2"`
	Guarantor1Confirmed *bool           `json:"guarantor1_confirmed"`
	Guarantor2Confirmed *bool           `json:"guarantor2_confirmed"`
	TreasurerApproved   bool            `json:"treasurer_approved"`
	TreasurerRejected   bool            `json:"treasurer_rejected"`
	Status              string          `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	ApprovedAt          *time.Time      `json:"approved_at"`
	RepaymentProgress   decimal.Decimal `json:"repayment_progress"`
}

// Remaining is what the borrower still owes.
func (l Loan) Remaining() decimal.Decimal {
	remaining := l.TotalDue.Sub(l.AmountRepaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}

	return remaining
}

// GuarantorProgress is 0, 50 or 100 depending on how many guarantors confirmed.
func (l Loan) GuarantorProgress() int {
	progress := 0
	if l.Guarantor1Confirmed != nil && *l.Guarantor1Confirmed {
		progress += 50
	}
	if l.Guarantor2Confirmed != nil && *l.Guarantor2Confirmed {
		progress += 50
	}

	return progress
}

// RepaymentPercent prefers the server's figure and derives it from the totals otherwise.
func (l Loan) RepaymentPercent() decimal.Decimal {
	if !l.RepaymentProgress.IsZero() {
		return l.RepaymentProgress
	}
	if !l.TotalDue.IsPositive() {
		return decimal.Zero
	}

	return l.AmountRepaid.Mul(decimal.NewFromInt(100)).Div(l.TotalDue).Round(2)
}

// Repayable reports whether a repayment can still be recorded against the loan.
func (l Loan) Repayable() bool {
	return l.Status == LoanApproved && l.TotalDue.GreaterThan(l.AmountRepaid)
}

// LoanRef is a loan inside a repayment, sent either as its id or as the nested loan.
type LoanRef struct {
	Loan
}

func (r *LoanRef) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	*r = LoanRef{}

	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return nil
	case trimmed[0] == '{':
		return json.Unmarshal(trimmed, &r.Loan)
	default:
		if err := json.Unmarshal(trimmed, &r.ID); err != nil {
			return fmt.Errorf("unable to decode loan reference %s: %w", trimmed, err)
		}
		return nil
	}
}

type GuarantorAction struct {
	Loan       LoanRef    `json:"loan"`
	Guarantor  MemberRef  `json:"guarantor"`
	Confirmed  *bool      `json:"confirmed"`
	Decision   string     `json:"decision"`
	Notes      string     `json:"notes"`
	ActionDate *time.Time `json:"action_date"`
}

type Repayment struct {
	ID                  int64           `json:"id"`
	Loan                LoanRef         `json:"loan"`
	AmountPaid          decimal.Decimal `json:"amount_paid"`
	PaymentDate         Date            `json:"payment_date"`
	Method              string          `json:"method"`
	InstallmentNumber   int             `json:"installment_number"`
	BalanceAfterPayment decimal.Decimal `json:"balance_after_payment"`
	Penalty             decimal.Decimal `json:"penalty"`
	Notes               string          `json:"notes"`
	Status              string          `json:"status"`
	Approved            bool            `json:"approved"`
}

// Pending reports whether the repayment still waits for the treasurer.
func (r Repayment) Pending() bool {
	if r.Status != "" {
		return r.Status == StatusPending
	}

	return !r.Approved
}

type Eligibility struct {
	UserID            string              `json:"user_id"`
	Balance           decimal.Decimal     `json:"balance"`
	Multiplier        decimal.Decimal     `json:"multiplier"`
	EligibleAmount    decimal.Decimal     `json:"eligible_amount"`
	PendingLoanAmount decimal.NullDecimal `json:"pending_loan_amount"`
	PendingLoanStatus string              `json:"pending_loan_status"`
}

type Balance struct {
	User       MemberRef       `json:"user"`
	Balance    decimal.Decimal `json:"balance"`
	LastEdited *time.Time      `json:"lastEdited"`
}

type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
