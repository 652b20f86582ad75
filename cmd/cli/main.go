package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"tomikal"
	"tomikal/sacco"
)

type app struct {
	config  tomikal.Config
	session *tomikal.Session
	out     io.Writer
}

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":                {"login -u <phone> -p <password>", login},
	"logout":               {"logout", logout},
	"whoami":               {"whoami", whoami},
	"register":             {"register -first <name> -last <name> -phone <phone> -dob <yyyy-mm-dd> -p <password>", register},
	"dashboard":            {"dashboard", dashboard},
	"balance":              {"balance", balance},
	"transactions":         {"transactions [-type deposit] [-from yyyy-mm-dd] [-to yyyy-mm-dd] [-all] [-member <id>] [-expand <id>]", transactions},
	"capture":              {"capture -member <id> -amount <n> [-type deposit] [-source cash]", capture},
	"pending-transactions": {"pending-transactions", pendingTransactions},
	"review-transaction":   {"review-transaction -id <id> -action approve|reject", reviewTransaction},
	"pending-members":      {"pending-members", pendingMembers},
	"review-member":        {"review-member -id <id> -action approve|reject", reviewMember},
	"loans":                {"loans [-status approved] [-member <id>] [-expand <id>]", loans},
	"loan-approvals":       {"loan-approvals", loanApprovals},
	"review-loan":          {"review-loan -id <id> -action approve|reject", reviewLoan},
	"request-loan":         {"request-loan -amount <n> -g1 <id> -g2 <id> [-purpose <text>] [-for <member id>]", requestLoan},
	"guarantor-requests":   {"guarantor-requests", guarantorRequests},
	"guarantee":            {"guarantee -loan <id> -decision accept|reject", guarantee},
	"repay":                {"repay [-loan <id> -amount <n> [-method mpesa] [-notes <text>]]", repay},
	"pending-repayments":   {"pending-repayments", pendingRepayments},
	"review-repayment":     {"review-repayment -id <id> -action approve|reject", reviewRepayment},
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: tomikal <command> [flags]")
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage(os.Stderr)
		os.Exit(2)
	}

	config, err := tomikal.LoadConfig(".")
	if err != nil {
		log.Fatalf("Unable to load app config: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := tomikal.OpenSessionStore(ctx, config)
	if err != nil {
		log.Fatalf("Unable to open session store: %s", err)
	}

	client, err := sacco.NewClient(config.ApiUrl)
	if err != nil {
		closeStore()
		log.Fatalf("Unable to create api client: %s", err)
	}

	a := &app{config: config, session: tomikal.NewSession(client, store), out: os.Stdout}
	err = cmd.run(ctx, a, os.Args[2:])
	closeStore()

	if err != nil {
		os.Exit(1)
	}
}
