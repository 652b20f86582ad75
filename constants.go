package tomikal

// Keys the session is persisted under
const (
	AccessTokenKey = "access"
	UserKey        = "user"
)

type Route string

const (
	RouteLogin               Route = "login"
	RouteRegister            Route = "register"
	RouteDashboard           Route = "dashboard"
	RouteBalance             Route = "balance"
	RouteTransactions        Route = "transactions"
	RouteCaptureTransaction  Route = "capture"
	RoutePendingTransactions Route = "pending-transactions"
	RoutePendingMembers      Route = "pending-members"
	RouteLoans               Route = "loans"
	RouteLoanApprovals       Route = "loan-approvals"
	RouteLoanRequest         Route = "request-loan"
	RouteGuarantorRequests   Route = "guarantor-requests"
	RouteRecordRepayment     Route = "repay"
	RoutePendingRepayments   Route = "pending-repayments"
)

const DefaultOrgName = "Organization"

// Messages shown to members
const (
	msgMissingCredentials   = "Please enter both username and password."
	msgSessionExpired       = "Session expired. Please log in again."
	msgFetchFailed          = "Something went wrong while fetching data."
	msgBalanceFailed        = "Failed to fetch balance."
	msgTransactionsFailed   = "Failed to fetch transactions."
	msgMembersFailed        = "Failed to load user list."
	msgLoansFailed          = "Failed to load loans."
	msgRepaymentsFailed     = "Failed to load repayments."
	msgGuaranteesFailed     = "Failed to load guarantor requests."
	msgLoadDataFailed       = "Failed to load data."
	msgZeroShares           = "Borrower has 0 shares and cannot request a loan."
	msgOutstandingLoan      = "Borrower has a pending or unpaid loan, or a pending Loan request and cannot request another."
	msgEligibilityFailed    = "Failed to check borrower eligibility."
	msgEligibilityPending   = "Still checking borrower eligibility. Try again in a moment."
	msgAmountOverLimit      = "Amount exceeds eligible loan limit"
	msgAmountInvalid        = "Enter a valid loan amount."
	msgGuarantorsRequired   = "Select two guarantors."
	msgGuarantorsSame       = "Guarantor 1 and 2 must be different"
	msgGuarantorIsBorrower  = "Borrower cannot be their own guarantor"
	msgBorrowerRequired     = "Select a member to apply for."
	msgLoanSubmitted        = "Loan request submitted successfully."
	msgLoanSubmitFailed     = "Failed to submit loan request. Please try again."
	msgCaptureInvalid       = "Please fill in all fields correctly."
	msgCaptureSucceeded     = "Transaction created. Awaiting approval."
	msgCaptureFailed        = "Something went wrong."
	msgRepaymentInvalid     = "Please select a loan and enter an amount."
	msgRepaymentRecorded    = "Repayment recorded successfully."
	msgRepaymentFailed      = "Failed to record repayment."
	msgRepaymentUpdated     = "Repayment updated."
	msgRepaymentDecideError = "Something went wrong"
	msgDecisionFailed       = "Could not record decision"
	msgRegisterInvalid      = "Please fill in all required fields correctly."
	msgRegistered           = "Registration successful. Wait for the secretary to approve your account."
	msgRegisterFailed       = "Registration failed. Please try again."
)

// Messages shown when a role gated screen is opened by someone else
const (
	deniedCapture      = "Only the secretary can capture transactions."
	deniedMembers      = "Only the secretary can approve users."
	deniedRepayments   = "Only the secretary can record repayments."
	deniedTreasurer    = "Only Treasurer can view this page."
	deniedOtherMembers = "Only the secretary can apply on behalf of another member."
)
