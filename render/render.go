package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"tomikal"

	"github.com/shopspring/decimal"
)

// Header prints the strip shown above every signed in screen.
func Header(w io.Writer, h tomikal.Header) {
	fmt.Fprintf(w, "%s\n", strings.ToUpper(h.OrgName))
	fmt.Fprintf(w, "%s (%s)  Acc: %s\n", h.Name, h.Role, h.AccountNumber)
	fmt.Fprintln(w, strings.Repeat("-", 40))
}

// Notice prints a notice, if there is one. Session expiry tells the member how to sign in again.
func Notice(w io.Writer, n *tomikal.Notice) {
	if n == nil || n.Message == "" {
		return
	}

	title := n.Title
	if title == "" {
		title = n.Kind.String()
	}
	fmt.Fprintf(w, "[%s] %s\n", title, n.Message)

	if n.Kind == tomikal.NoticeSessionExpired {
		fmt.Fprintln(w, "Run `tomikal login` to continue.")
	}
}

// Table prints rows aligned under headers. An empty table prints message instead.
func Table(w io.Writer, headers []string, rows [][]string, message string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, message)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return tw.Flush()
}

// Details prints label/value pairs, used for an expanded row.
func Details(w io.Writer, pairs [][2]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, p := range pairs {
		fmt.Fprintf(tw, "    %s:\t%s\n", p[0], p[1])
	}

	return tw.Flush()
}

func Money(d decimal.Decimal) string {
	return "KES " + d.StringFixed(2)
}

func Percent(d decimal.Decimal) string {
	return d.StringFixed(0) + "%"
}

func Date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Format("2006-01-02")
}

// Progress draws a ten cell bar for a 0-100 value.
func Progress(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := percent / 10
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", 10-filled) + "]"
}

// Title turns a wire value such as "pending_treasurer" into "Pending Treasurer".
func Title(value string) string {
	if value == "" {
		return "-"
	}

	words := strings.Fields(strings.ReplaceAll(value, "_", " "))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}

	return strings.Join(words, " ")
}
