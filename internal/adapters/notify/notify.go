// Package notify delivers failure notifications. Delivery is best effort:
// errors are logged and never returned to the caller
package notify

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mixshift/internal/platform/logger"
)

// Sender delivers one message
type Sender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// Failure describes a work unit type that needs a human
type Failure struct {
	WorkUnitID int64
	SellerID   string
	ReportType string
	Message    string
	RetryCount int
	ReportID   string
	Fatal      bool
}

// Notifier formats failures and hands them to a Sender
type Notifier struct {
	sender Sender
	to     []string
}

// New returns a Notifier; a nil sender logs instead of sending
func New(s Sender, to []string) *Notifier {
	if s == nil {
		s = LogSender{}
	}
	return &Notifier{sender: s, to: to}
}

// Subject is the mail subject for f. Casers carry state so each call gets its own
func (n *Notifier) Subject(f Failure) string {
	kind := "report retries exhausted"
	if f.Fatal {
		kind = "report failed"
	}
	title := cases.Title(language.English)
	return fmt.Sprintf("[mixshift] %s for seller %s", title.String(strings.ToLower(f.ReportType)+" "+kind), f.SellerID)
}

// Body is the plain text mail body for f
func Body(f Failure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "work unit: %d\n", f.WorkUnitID)
	fmt.Fprintf(&b, "seller: %s\n", f.SellerID)
	fmt.Fprintf(&b, "report type: %s\n", f.ReportType)
	if f.ReportID != "" {
		fmt.Fprintf(&b, "report id: %s\n", f.ReportID)
	}
	fmt.Fprintf(&b, "retry count: %d\n", f.RetryCount)
	fmt.Fprintf(&b, "fatal: %t\n\n", f.Fatal)
	b.WriteString(f.Message)
	b.WriteByte('\n')
	return b.String()
}

// SendFailure delivers f and swallows delivery errors
func (n *Notifier) SendFailure(ctx context.Context, f Failure) {
	log := logger.C(ctx).With().
		Str("component", "notify").
		Int64("work_unit_id", f.WorkUnitID).
		Str("seller_id", f.SellerID).
		Str("report_type", f.ReportType).
		Int("retry_count", f.RetryCount).
		Bool("fatal", f.Fatal).
		Logger()
	if err := n.sender.Send(ctx, n.to, n.Subject(f), Body(f)); err != nil {
		log.Error().Err(err).Msg("failure notification not delivered")
		return
	}
	log.Info().Msg("failure notification sent")
}

// LogSender writes the message to the log; used outside production
type LogSender struct{}

// Send implements Sender
func (LogSender) Send(ctx context.Context, to []string, subject, body string) error {
	logger.C(ctx).Warn().Strs("to", to).Str("subject", subject).Str("body", body).Msg("notification")
	return nil
}
