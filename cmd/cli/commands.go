package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tomikal"
	"tomikal/render"
	"tomikal/sacco"
)

var errUsage = errors.New("bad arguments")

func parse(a *app, name string, args []string, fs *flag.FlagSet) error {
	if fs == nil {
		fs = flag.NewFlagSet(name, flag.ContinueOnError)
	}
	fs.SetOutput(a.out)

	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(a.out, "%s: unexpected argument %q\n", name, fs.Arg(0))
		return errUsage
	}

	return nil
}

// fail prints what went wrong and hands the error back so the process exits non-zero.
func fail(a *app, err error, fallback string) error {
	notice := tomikal.NoticeFor(err, fallback)
	render.Notice(a.out, &notice)
	return err
}

func report(a *app, notice tomikal.Notice, err error) error {
	render.Notice(a.out, &notice)
	return err
}

// header prints the signed in member's strip, or the session notice when nobody is signed in.
func header(ctx context.Context, a *app) error {
	creds, err := a.session.Current(ctx)
	if err != nil {
		return fail(a, err, "")
	}

	render.Header(a.out, tomikal.NewHeader(a.config.OrgName, creds.User))
	return nil
}

// loaded prints the notice a screen load left behind.
func loaded(a *app, err error, notice *tomikal.Notice) error {
	if notice != nil {
		render.Notice(a.out, notice)
	} else if err != nil {
		return fail(a, err, "")
	}

	return err
}

func reviewFlags(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	id := fs.String("id", "", "record id")
	action := fs.String("action", "", "approve or reject")

	return fs, id, action
}

func int64Flag(a *app, name, value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintf(a.out, "-%s must be a number\n", name)
		return 0, errUsage
	}

	return id, nil
}

// ////////////////////////////////////////////
// /// SESSION
// ////////////////////////////////////////////

func login(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "phone number or username")
	password := fs.String("p", "", "password")
	if err := parse(a, "login", args, fs); err != nil {
		return err
	}

	user, err := a.session.Login(ctx, *username, *password)
	if err != nil {
		return fail(a, err, "Login failed.")
	}

	render.Header(a.out, tomikal.NewHeader(a.config.OrgName, user))
	fmt.Fprintln(a.out, "Signed in.")

	return nil
}

func logout(ctx context.Context, a *app, args []string) error {
	if err := parse(a, "logout", args, nil); err != nil {
		return err
	}

	if _, err := a.session.Logout(ctx); err != nil {
		return fail(a, err, "Unable to clear the saved session.")
	}

	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func whoami(ctx context.Context, a *app, args []string) error {
	if err := parse(a, "whoami", args, nil); err != nil {
		return err
	}

	creds, err := a.session.Current(ctx)
	if err != nil {
		return fail(a, err, "")
	}

	render.Header(a.out, tomikal.NewHeader(a.config.OrgName, creds.User))

	roles := []string{}
	for _, role := range tomikal.RolesOf(creds.User) {
		roles = append(roles, role.String())
	}

	pairs := [][2]string{
		{"Phone", creds.User.PhoneNumber},
		{"Email", creds.User.Email},
		{"Roles", strings.Join(roles, ", ")},
	}
	if !creds.ExpiresAt.IsZero() {
		pairs = append(pairs, [2]string{"Token expires", creds.ExpiresAt.Local().Format(time.RFC1123)})
	}

	return render.Details(a.out, pairs)
}

func register(ctx context.Context, a *app, args []string) error {
	input := tomikal.RegisterInput{}

	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.StringVar(&input.FirstName, "first", "", "first name")
	fs.StringVar(&input.LastName, "last", "", "last name")
	fs.StringVar(&input.PhoneNumber, "phone", "", "10 digit phone number")
	fs.StringVar(&input.Email, "email", "", "email address")
	fs.StringVar(&input.DOB, "dob", "", "date of birth, yyyy-mm-dd")
	fs.StringVar(&input.Password, "p", "", "password")
	if err := parse(a, "register", args, fs); err != nil {
		return err
	}
	input.ConfirmPassword = input.Password

	notice, err := a.session.Register(ctx, input)
	if err != nil {
		return fail(a, err, "Registration failed. Please try again.")
	}

	return report(a, notice, nil)
}

func dashboard(ctx context.Context, a *app, args []string) error {
	if err := parse(a, "dashboard", args, nil); err != nil {
		return err
	}

	view, err := tomikal.Dashboard(ctx, a.session, a.config.OrgName)
	if err != nil {
		return fail(a, err, "")
	}

	render.Header(a.out, view.Header)
	rows := make([][]string, 0, len(view.Cards))
	for _, card := range view.Cards {
		rows = append(rows, []string{card.Title, string(card.Route)})
	}

	return render.Table(a.out, []string{"SCREEN", "COMMAND"}, rows, "")
}

func balance(ctx context.Context, a *app, args []string) error {
	if err := parse(a, "balance", args, nil); err != nil {
		return err
	}
	if err := header(ctx, a); err != nil {
		return err
	}

	screen := tomikal.NewBalanceScreen(a.session)
	err := screen.Load(ctx)
	view := screen.View()
	if err != nil || view.Balance == nil {
		return loaded(a, err, view.Notice)
	}

	updated := "-"
	if view.Balance.LastEdited != nil {
		updated = render.Date(*view.Balance.LastEdited)
	}

	return render.Details(a.out, [][2]string{
		{"Balance", render.Money(view.Balance.Balance)},
		{"Last updated", updated},
	})
}

// ////////////////////////////////////////////
// /// TRANSACTIONS
// ////////////////////////////////////////////

func day(a *app, name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	t, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		fmt.Fprintf(a.out, "-%s must look like 2000-01-31\n", name)
		return time.Time{}, errUsage
	}

	return t, nil
}

func transactionRows(rows []tomikal.TransactionRow) [][]string {
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		table = append(table, []string{
			row.ID,
			render.Date(row.Date),
			row.User.Name(),
			render.Title(row.TransactionType),
			render.Money(row.Amount),
			render.Title(row.Status),
		})
	}

	return table
}

func transactions(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("transactions", flag.ContinueOnError)
	kind := fs.String("type", "", "deposit, withdrawal or emergency")
	from := fs.String("from", "", "first day, yyyy-mm-dd")
	to := fs.String("to", "", "last day, yyyy-mm-dd")
	all := fs.Bool("all", false, "every member's transactions (admins)")
	member := fs.String("member", "", "one member's transactions (admins, with -all)")
	expand := fs.String("expand", "", "transaction id to show in full")
	if err := parse(a, "transactions", args, fs); err != nil {
		return err
	}

	filter := tomikal.TransactionFilter{Type: *kind, ViewAll: *all, MemberID: *member}
	var err error
	if filter.From, err = day(a, "from", *from); err != nil {
		return err
	}
	if filter.To, err = day(a, "to", *to); err != nil {
		return err
	}

	if err := header(ctx, a); err != nil {
		return err
	}

	screen := tomikal.NewTransactionsScreen(a.session)
	if err := screen.Load(ctx); err != nil {
		return loaded(a, err, screen.View().Notice)
	}
	screen.SetFilter(filter)
	if *expand != "" {
		screen.Toggle(*expand)
	}

	view := screen.View()
	if err := render.Table(a.out, []string{"ID", "DATE", "MEMBER", "TYPE", "AMOUNT", "STATUS"}, transactionRows(view.Rows), "No transactions found."); err != nil {
		return err
	}

	for _, row := range view.Rows {
		if row.Expanded {
			fmt.Fprintf(a.out, "\nTransaction %s\n", row.ID)
			if err := render.Details(a.out, [][2]string{
				{"Source", render.Title(row.Source)},
				{"Balance after", render.Money(row.BalanceAfter)},
				{"Captured by", row.CreatedBy.Name()},
			}); err != nil {
				return err
			}
		}
	}

	return nil
}

func capture(ctx context.Context, a *app, args []string) error {
	input := tomikal.CaptureInput{}

	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	fs.StringVar(&input.MemberID, "member", "", "member id")
	fs.StringVar(&input.Amount, "amount", "", "amount")
	fs.StringVar(&input.Type, "type", sacco.TransactionDeposit, "deposit, withdrawal or emergency")
	fs.StringVar(&input.Source, "source", sacco.SourceCash, "cash or mpesa")
	if err := parse(a, "capture", args, fs); err != nil {
		return err
	}

	notice, err := tomikal.NewCaptureForm(a.session).Submit(ctx, input)
	return report(a, notice, err)
}

func pendingTransactions(ctx context.Context, a *app, args []string) error {
	if err := parse(a, "pending-transactions", args, nil); err != nil {
		return err
	}
	if err := header(ctx, a); err != nil {
		return err
	}

	screen := tomikal.NewPendingTransactionsScreen(a.session)
	if err := screen.Load(ctx); err != nil {
		return loaded(a, err, screen.View().Notice)
	}

	view := screen.View()
	return render.Table(a.out, []string{"ID", "DATE", "MEMBER", "TYPE", "AMOUNT", "STATUS"}, transactionRows(view.Rows), "No pending transactions.")
}

func reviewTransaction(ctx context.Context, a *app, args []string) error {
	fs, id, action := reviewFlags("review-transaction")
	if err := parse(a, "review-transaction", args, fs); err != nil {
		return err
	}

	notice, err := tomikal.NewPendingTransactionsScreen(a.session).Act(ctx, *id, *action)
	return report(a, notice, err)
}

// ////////////////////////////////////////////
// /// MEMBERS
// ////////////////////////////////////////////

func pendingMembers(ctx context.Context, a *app, args []string) error {
	if err := parse(a, "pending-members", args, nil); err != nil {
		return err
	}
	if err := header(ctx, a); err != nil {
		return err
	}

	screen := tomikal.NewPendingMembersScreen(a.session)
	if err := screen.Load(ctx); err != nil {
		return loaded(a, err, screen.View().Notice)
	}

	view := screen.View()
	rows := make([][]string, 0, len(view.Rows))
	for _, row := range view.Rows {
		rows = append(rows, []string{row.ID, row.FullName(), row.PhoneNumber, row.Email, row.DOB.String()})
	}

	return render.Table(a.out, []string{"ID", "NAME", "PHONE", "EMAIL", "DOB"}, rows, "No users pending approval.")
}

func reviewMember(ctx context.Context, a *app, args []string) error {
	fs, id, action := reviewFlags("review-member")
	if err := parse(a, "review-member", args, fs); err != nil {
		return err
	}

	notice, err := tomikal.NewPendingMembersScreen(a.session).Act(ctx, *id, *action)
	return report(a, notice, err)
}

// ////////////////////////////////////////////
// /// LOANS
// ////////////////////////////////////////////

func loanRows(rows []tomikal.LoanRow) [][]string {
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		table = append(table, []string{
			strconv.FormatInt(row.ID, 10),
			row.Borrower.Name(),
			render.Money(row.Amount),
			render.Title(row.Status),
			render.Progress(row.GuarantorProgress),
			render.Money(row.Remaining),
			render.Percent(row.RepaymentPercent),
		})
	}

	return table
}

var loanHeaders = []string{"ID", "BORROWER", "AMOUNT", "STATUS", "GUARANTORS", "REMAINING", "REPAID"}

func loanDetails(a *app, rows []tomikal.LoanRow) error {
	for _, row := range rows {
		if !row.Expanded {
			continue
		}

		fmt.Fprintf(a.out, "\nLoan %d\n", row.ID)
		if err := render.Details(a.out, [][2]string{
			{"Purpose", row.Purpose},
			{"Guarantor 1", row.Guarantor1.Name()},
			{"Guarantor 2", row.Guarantor2.Name()},
			{"Total due", render.Money(row.TotalDue)},
			{"Repaid", render.Money(row.AmountRepaid)},
			{"Due date", row.DueDate.String()},
			{"Requested", render.Date(row.CreatedAt)},
		}); err != nil {
			return err
		}
	}

	return nil
}

func loans(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("loans", flag.ContinueOnError)
	status := fs.String("status", "", "loan status such as pending_treasurer or approved")
	member := fs.String("member", "", "another member's loans (secretary, treasurer)")
	expand := fs.Int64("expand", 0, "loan id to show in full")
	if err := parse(a, "loans", args, fs); err != nil {
		return err
	}
	if err := header(ctx, a); err != nil {
		return err
	}

	screen := tomikal.NewLoansScreen(a.session)
	screen.SetStatus(*status)
	screen.SetBorrower(*member == "", *member)
	if err := screen.Load(ctx); err != nil {
		return loaded(a, err, screen.View().Notice)
	}
	if *expand != 0 {
		screen.Toggle(strconv.FormatInt(*expand, 10))
	}

	view := screen.View()
	if err := render.Table(a.out, loanHeaders, loanRows(view.Rows), "No loans found."); err != nil {
		return err
	}

	return loanDetails(a, view.Rows)
}

func loanApprovals(ctx context.Context, a *app, args []string) error {
	if err := parse(a, "loan-approvals", args, nil); err != nil {
		return err
	}
	if err := header(ctx, a); err != nil {
		return err
	}

	screen := tomikal.NewLoanApprovalsScreen(a.session)
	if err := screen.Load(ctx); err != nil {
		return loaded(a, err, screen.View().Notice)
	}

	return render.Table(a.out, loanHeaders, loanRows(screen.View().Rows), "No loans waiting for approval.")
}

func reviewLoan(ctx context.Context, a *app, args []string) error {
	fs, id, action := reviewFlags("review-loan")
	if err := parse(a, "review-loan", args, fs); err != nil {
		return err
	}
	loanID, err := int64Flag(a, "id", *id)
	if err != nil {
		return err
	}

	notice, err := tomikal.NewLoanApprovalsScreen(a.session).Act(ctx, loanID, *action)
	return report(a, notice, err)
}

func requestLoan(ctx context.Context, a *app, args []string) error {
	input := tomikal.LoanInput{}

	fs := flag.NewFlagSet("request-loan", flag.ContinueOnError)
	fs.StringVar(&input.Amount, "amount", "", "amount to borrow")
	fs.StringVar(&input.Guarantor1, "g1", "", "first guarantor's member id")
	fs.StringVar(&input.Guarantor2, "g2", "", "second guarantor's member id")
	fs.StringVar(&input.Purpose, "purpose", "", "what the loan is for")
	borrower := fs.String("for", "", "member to apply for (secretary)")
	if err := parse(a, "request-loan", args, fs); err != nil {
		return err
	}

	form := tomikal.NewLoanRequestForm(a.session)
	err := form.Open(ctx)
	if err == nil && *borrower != "" {
		err = form.SelectBorrower(ctx, *borrower)
	}
	if err != nil {
		return loaded(a, err, form.View().Notice)
	}

	form.Edit(input)
	view := form.View()

	if view.Eligibility != nil {
		fmt.Fprintf(a.out, "Eligible for up to %s\n", render.Money(view.Eligibility.EligibleAmount))
	}
	for _, problem := range view.Problems {
		fmt.Fprintf(a.out, "  - %s\n", problem)
	}

	notice, err := form.Submit(ctx)
	return report(a, notice, err)
}

func guarantorRequests(ctx context.Context, a *app, args []string) error {
	if err := parse(a, "guarantor-requests", args, nil); err != nil {
		return err
	}
	if err := header(ctx, a); err != nil {
		return err
	}

	screen := tomikal.NewGuarantorRequestsScreen(a.session)
	if err := screen.Load(ctx); err != nil {
		return loaded(a, err, screen.View().Notice)
	}

	view := screen.View()
	rows := make([][]string, 0, len(view.Rows))
	for _, row := range view.Rows {
		rows = append(rows, []string{strconv.FormatInt(row.ID, 10), row.Borrower.Name(), render.Money(row.Amount), row.Purpose, render.Progress(row.GuarantorProgress)})
	}

	return render.Table(a.out, []string{"LOAN", "BORROWER", "AMOUNT", "PURPOSE", "GUARANTORS"}, rows, "No guarantor requests.")
}

func guarantee(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("guarantee", flag.ContinueOnError)
	id := fs.String("loan", "", "loan id")
	decision := fs.String("decision", "", "accept or reject")
	if err := parse(a, "guarantee", args, fs); err != nil {
		return err
	}
	loanID, err := int64Flag(a, "loan", *id)
	if err != nil {
		return err
	}

	notice, err := tomikal.NewGuarantorRequestsScreen(a.session).Decide(ctx, loanID, *decision)
	return report(a, notice, err)
}

// ////////////////////////////////////////////
// /// REPAYMENTS
// ////////////////////////////////////////////

// repay lists the loans a repayment can be recorded against, or records one when -loan is given.
func repay(ctx context.Context, a *app, args []string) error {
	input := tomikal.RepaymentInput{}

	fs := flag.NewFlagSet("repay", flag.ContinueOnError)
	fs.Int64Var(&input.LoanID, "loan", 0, "loan id")
	fs.StringVar(&input.Amount, "amount", "", "amount paid")
	fs.StringVar(&input.Method, "method", sacco.MethodCash, "cash, bank_transfer or mpesa")
	fs.StringVar(&input.Notes, "notes", "", "notes")
	if err := parse(a, "repay", args, fs); err != nil {
		return err
	}

	form := tomikal.NewRepaymentForm(a.session)
	if input.LoanID != 0 {
		notice, err := form.Submit(ctx, input)
		return report(a, notice, err)
	}

	if err := header(ctx, a); err != nil {
		return err
	}
	if err := form.Load(ctx); err != nil {
		return loaded(a, err, form.View().Notice)
	}

	return render.Table(a.out, loanHeaders, loanRows(form.View().Loans), "No loans are open for repayment.")
}

func pendingRepayments(ctx context.Context, a *app, args []string) error {
	if err := parse(a, "pending-repayments", args, nil); err != nil {
		return err
	}
	if err := header(ctx, a); err != nil {
		return err
	}

	screen := tomikal.NewPendingRepaymentsScreen(a.session)
	if err := screen.Load(ctx); err != nil {
		return loaded(a, err, screen.View().Notice)
	}

	view := screen.View()
	rows := make([][]string, 0, len(view.Rows))
	for _, row := range view.Rows {
		rows = append(rows, []string{
			strconv.FormatInt(row.ID, 10),
			strconv.FormatInt(row.Loan.ID, 10),
			render.Money(row.AmountPaid),
			row.PaymentDate.String(),
			render.Title(row.Method),
		})
	}

	return render.Table(a.out, []string{"ID", "LOAN", "AMOUNT", "DATE", "METHOD"}, rows, "No repayments waiting for approval.")
}

func reviewRepayment(ctx context.Context, a *app, args []string) error {
	fs, id, action := reviewFlags("review-repayment")
	if err := parse(a, "review-repayment", args, fs); err != nil {
		return err
	}
	repaymentID, err := int64Flag(a, "id", *id)
	if err != nil {
		return err
	}

	notice, err := tomikal.NewPendingRepaymentsScreen(a.session).Act(ctx, repaymentID, *action)
	return report(a, notice, err)
}
