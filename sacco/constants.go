package sacco

// Transaction types
const (
	TransactionDeposit    = "deposit"
	TransactionWithdrawal = "withdrawal"
	TransactionEmergency  = "emergency"
)

// Sources of transaction funds
const (
	SourceCash  = "cash"
	SourceMpesa = "mpesa"
)

// Repayment methods
const (
	MethodCash         = "cash"
	MethodBankTransfer = "bank_transfer"
	MethodMpesa        = "mpesa"
)

// Record statuses shared by transactions and repayments
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Loan statuses
const (
	LoanPending             = "pending"
	LoanPendingGuarantors   = "pending_guarantors"
	LoanAwaitingGuarantors  = "awaiting_guarantors"
	LoanPendingTreasurer    = "pending_treasurer"
	LoanApproved            = "approved"
	LoanRejected            = "rejected"
	LoanDisbursed           = "disbursed"
	LoanRepaymentInProgress = "repayment_in_progress"
	LoanRepaid              = "repaid"
)

// Actions accepted by the approve endpoints
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Decisions accepted by the guarantor decision endpoint
const (
	DecisionAccept = "accept"
	DecisionReject = "reject"
)

var TransactionTypes = []string{TransactionDeposit, TransactionWithdrawal, TransactionEmergency}
var TransactionSources = []string{SourceCash, SourceMpesa}
var RepaymentMethods = []string{MethodCash, MethodBankTransfer, MethodMpesa}

var LoanStatuses = []string{
	LoanPending,
	LoanAwaitingGuarantors,
	LoanPendingTreasurer,
	LoanApproved,
	LoanRejected,
	LoanRepaid,
}
