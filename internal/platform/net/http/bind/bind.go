// Package bind decodes and validates request bodies
package bind

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"mixshift/internal/core/period"
	perr "mixshift/internal/platform/errors"
	"mixshift/internal/platform/logger"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// ValidatorSvc is the validator singleton plus its translator
type ValidatorSvc struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *ValidatorSvc
)

// Get returns the validator, building it on first use
func Get() *ValidatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		trans, _ := ut.New(enLoc, enLoc).GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if tag == "" || tag == "-" {
				return fld.Name
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)
		registerReportType(v, trans)
		vSvc = &ValidatorSvc{Validator: v, Translator: trans}
	})
	return vSvc
}

// registerReportType adds the report_type tag: WEEK, MONTH or QUARTER
func registerReportType(v *validator.Validate, trans ut.Translator) {
	_ = v.RegisterValidation("report_type", func(fl validator.FieldLevel) bool {
		_, err := period.ParseType(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterTranslation("report_type", trans,
		func(t ut.Translator) error { return t.Add("report_type", "{0} must be one of WEEK, MONTH, QUARTER", true) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T("report_type", fe.Field())
			return msg
		},
	)
}

// Options controls decoding
type Options struct {
	MaxBytes       int64
	AllowEmptyBody bool
}

// Struct validates v and maps the first failure to a validation error
func Struct(v any) error {
	err := Get().Validator.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return perr.WithField(perr.New(perr.ErrorCodeValidation, fe.Translate(Get().Translator)), fe.Field())
	}
	logger.Get().Error().Err(err).Msg("validator internal error")
	return perr.New(perr.ErrorCodeValidation, "validation error")
}

// ParseJSON decodes the body into T, rejecting unknown fields and trailing data, then validates
func ParseJSON[T any](r *http.Request, opts ...Options) (T, error) {
	var dst T
	o := Options{MaxBytes: 1 << 20}
	if len(opts) > 0 {
		o = opts[0]
	}
	if r.Body == nil {
		if o.AllowEmptyBody {
			return dst, Struct(dst)
		}
		return dst, perr.New(perr.ErrorCodeJSON, "empty body")
	}
	defer func() { _ = r.Body.Close() }()

	var body io.Reader = r.Body
	if o.MaxBytes > 0 {
		body = io.LimitReader(r.Body, o.MaxBytes)
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dst); err != nil {
		if errors.Is(err, io.EOF) {
			if o.AllowEmptyBody {
				return dst, Struct(dst)
			}
			return dst, perr.New(perr.ErrorCodeJSON, "empty body")
		}
		return dst, perr.Newf(perr.ErrorCodeJSON, "invalid JSON: %v", err)
	}
	if dec.More() {
		return dst, perr.New(perr.ErrorCodeJSON, "unexpected trailing data")
	}
	return dst, Struct(dst)
}
