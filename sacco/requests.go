package sacco

import (
	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignupRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email,omitempty"`
	DOB         Date   `json:"dob"`
	Password    string `json:"password"`
}

type CreateTransactionRequest struct {
	User            string          `json:"user"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionType string          `json:"transaction_type"`
	Source          string          `json:"source"`
}

type ActionRequest struct {
	Action string `json:"action"`
}

type LoanRequest struct {
	Borrower     string          `json:"borrower"`
	Amount       decimal.Decimal `json:"amount"`
	Guarantor1ID string          `json:"guarantor1_id"`
	Guarantor2ID string          `json:"guarantor2_id"`
	Purpose      string          `json:"purpose,omitempty"`
}

type GuarantorDecisionRequest struct {
	LoanID   int64  `json:"loan_id"`
	Decision string `json:"decision"`
}

type CreateRepaymentRequest struct {
	LoanID     int64           `json:"loan_id"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Method     string          `json:"method,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

// TransactionFilter narrows GET /api/transactions/. Zero values are left off the query.
type TransactionFilter struct {
	Status string
	UserID string
}

// LoanFilter narrows GET /api/loans/. Zero values are left off the query.
type LoanFilter struct {
	Status string
	UserID string
}
