package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"mixshift/internal/platform/testkit"
)

type recordSender struct {
	subject, body string
	to            []string
	err           error
}

func (r *recordSender) Send(_ context.Context, to []string, subject, body string) error {
	r.to, r.subject, r.body = to, subject, body
	return r.err
}

func TestSendFailure(t *testing.T) {
	t.Parallel()
	rs := &recordSender{}
	n := New(rs, []string{"ops@example.com"})
	n.SendFailure(context.Background(), Failure{
		WorkUnitID: 42, SellerID: "A1", ReportType: "WEEK",
		Message: "processing status FATAL", ReportID: "R9", Fatal: true,
	})
	if rs.subject != "[mixshift] Week Report Failed for seller A1" {
		t.Fatalf("subject = %q", rs.subject)
	}
	for _, want := range []string{"work unit: 42", "report id: R9", "retry count: 0", "fatal: true", "FATAL"} {
		if !strings.Contains(rs.body, want) {
			t.Fatalf("body missing %q:\n%s", want, rs.body)
		}
	}

	if got := n.Subject(Failure{SellerID: "A1", ReportType: "QUARTER", RetryCount: 3}); got != "[mixshift] Quarter Report Retries Exhausted for seller A1" {
		t.Fatalf("subject = %q", got)
	}
}

func TestSendFailureSwallowsErrors(t *testing.T) {
	t.Parallel()
	n := New(&recordSender{err: errors.New("smtp down")}, nil)
	n.SendFailure(context.Background(), Failure{SellerID: "A1", ReportType: "MONTH"})
}

type fakeSES struct{ in *sesv2.SendEmailInput }

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	return &sesv2.SendEmailOutput{MessageId: aws.String("m1")}, nil
}

func TestSESSender(t *testing.T) {
	t.Parallel()
	fs := &fakeSES{}
	s := &SESSender{client: fs, from: "noreply@example.com"}
	if err := s.Send(context.Background(), nil, "s", "b"); err == nil {
		t.Fatalf("no recipients should fail")
	}
	if err := s.Send(context.Background(), []string{"ops@example.com"}, "subj", "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if aws.ToString(fs.in.FromEmailAddress) != "noreply@example.com" ||
		fs.in.Destination.ToAddresses[0] != "ops@example.com" ||
		aws.ToString(fs.in.Content.Simple.Subject.Data) != "subj" {
		t.Fatalf("input = %+v", fs.in)
	}
	if _, err := NewSESSender(context.Background(), ""); err == nil {
		t.Fatalf("empty from should fail")
	}
}

func TestNewSESSender(t *testing.T) {
	testkit.Serial(t)
	ctx := context.Background()

	if _, err := NewSESSender(ctx, ""); err == nil {
		t.Fatalf("empty from should error")
	}

	testkit.Swap(t, &loadAWSConfig, func(context.Context) (aws.Config, error) {
		return aws.Config{}, errors.New("no credentials")
	})
	if _, err := NewSESSender(ctx, "alerts@example.com"); err == nil || !strings.Contains(err.Error(), "no credentials") {
		t.Fatalf("err = %v", err)
	}

	testkit.Swap(t, &loadAWSConfig, func(context.Context) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	})
	s, err := NewSESSender(ctx, "alerts@example.com")
	if err != nil || s.from != "alerts@example.com" || s.client == nil {
		t.Fatalf("sender = %+v, %v", s, err)
	}
}
