package bind

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	perr "mixshift/internal/platform/errors"
)

type runReq struct {
	UserID   string `json:"user_id" validate:"omitempty,max=64"`
	SellerID string `json:"seller_id" validate:"omitempty,alphanum,max=32"`
}

type typeReq struct {
	Type string `json:"type" validate:"required,report_type"`
}

func req(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	got, err := ParseJSON[runReq](req(`{"seller_id":"A1B2"}`))
	if err != nil || got.SellerID != "A1B2" {
		t.Fatalf("ParseJSON = %+v, %v", got, err)
	}

	if _, err := ParseJSON[runReq](req(``)); !perr.IsCode(err, perr.ErrorCodeJSON) {
		t.Fatalf("empty body err = %v", err)
	}
	if _, err := ParseJSON[runReq](req(``), Options{AllowEmptyBody: true}); err != nil {
		t.Fatalf("empty body allowed: %v", err)
	}
	if _, err := ParseJSON[runReq](req(`{"nope":1}`)); !perr.IsCode(err, perr.ErrorCodeJSON) {
		t.Fatalf("unknown field err = %v", err)
	}
	if _, err := ParseJSON[runReq](req(`{} {}`)); !perr.IsCode(err, perr.ErrorCodeJSON) {
		t.Fatalf("trailing data err = %v", err)
	}
}

func TestValidation(t *testing.T) {
	t.Parallel()
	_, err := ParseJSON[runReq](req(`{"seller_id":"A1-B2"}`))
	e, ok := perr.As(err)
	if !ok || e.Code() != perr.ErrorCodeValidation || e.Field() != "seller_id" {
		t.Fatalf("err = %v", err)
	}

	if _, err := ParseJSON[typeReq](req(`{"type":"month"}`)); err != nil {
		t.Fatalf("report_type month: %v", err)
	}
	_, err = ParseJSON[typeReq](req(`{"type":"DAY"}`))
	if !perr.IsCode(err, perr.ErrorCodeValidation) || !strings.Contains(err.Error(), "WEEK, MONTH, QUARTER") {
		t.Fatalf("report_type err = %v", err)
	}
}
