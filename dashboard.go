package tomikal

import (
	"context"

	"tomikal/sacco"
)

type Card struct {
	Title string `json:"title"`
	Route Route  `json:"route"`
}

type DashboardView struct {
	Header Header `json:"header"`
	Cards  []Card `json:"cards"`
}

// roleCards are added to the dashboard for members holding the permission.
var roleCards = []struct {
	permission Permission
	card       Card
}{
	{ApproveMembers, Card{"Approve Users", RoutePendingMembers}},
	{CaptureTransactions, Card{"Capture Transactions", RouteCaptureTransaction}},
	{RecordRepayments, Card{"Record Repayment", RouteRecordRepayment}},
	{ApproveLoans, Card{"Approve Loans", RouteLoanApprovals}},
	{ApproveTransactions, Card{"Approve Transactions", RoutePendingTransactions}},
	{ApproveRepayments, Card{"Approve Repayments", RoutePendingRepayments}},
}

func DashboardCards(u sacco.User) []Card {
	cards := []Card{
		{"Account Balance", RouteBalance},
		{"Deposits/Shares Contribs", RouteTransactions},
		{"Request for Loan", RouteLoanRequest},
		{"Loan Listing", RouteLoans},
		{"Guarantor Requests", RouteGuarantorRequests},
	}

	for _, rc := range roleCards {
		if Can(u, rc.permission) {
			cards = append(cards, rc.card)
		}
	}

	return cards
}

// Dashboard needs no network call, only a session.
func Dashboard(ctx context.Context, session *Session, orgName string) (DashboardView, error) {
	creds, err := session.Current(ctx)
	if err != nil {
		return DashboardView{}, err
	}

	return DashboardView{
		Header: NewHeader(orgName, creds.User),
		Cards:  DashboardCards(creds.User),
	}, nil
}
