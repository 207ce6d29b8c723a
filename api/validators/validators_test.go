package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
)

type checkoutBody struct {
	Plan string `json:"plan" validate:"required,oneof=basic pro premium"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{name: "valid", body: `{"plan":"pro"}`},
		{name: "unknown field", body: `{"plan":"pro","extra":1}`, wantErr: true},
		{name: "trailing data", body: `{"plan":"pro"}{"plan":"basic"}`, wantErr: true},
		{name: "missing plan", body: `{}`, wantErr: true, field: "plan"},
		{name: "bad plan", body: `{"plan":"gold"}`, wantErr: true, field: "plan"},
		{name: "not json", body: `plan=pro`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest checkoutBody
			err := DecodeJSONBody(httptest.NewRecorder(), r, &dest)
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if tc.field != "" {
				details, ok := pkgerrors.As(err).Details().(map[string]string)
				if !ok || details[tc.field] == "" {
					t.Fatalf("expected detail for %s, got %v", tc.field, pkgerrors.As(err).Details())
				}
			}
		})
	}
}

func TestDecodeJSONBodyNamesOffendingInput(t *testing.T) {
	cases := map[string]string{
		`{"plan":"pro","extra":1}`: "extra",
		`{"plan":7}`:               "plan",
		`{"plan":`:                 "body",
		``:                         "body",
		`{"plan" "pro"}`:           "offset",
	}
	for body, key := range cases {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var dest checkoutBody
		err := DecodeJSONBody(httptest.NewRecorder(), r, &dest)
		details, ok := pkgerrors.As(err).Details().(map[string]any)
		if !ok {
			t.Fatalf("%q: expected map details, got %v", body, err)
		}
		if _, ok := details[key]; !ok {
			t.Fatalf("%q: expected %s in details %v", body, key, details)
		}
	}
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	big := `{"plan":"` + strings.Repeat("a", DefaultMaxBodyBytes) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var dest checkoutBody
	err := DecodeJSONBody(httptest.NewRecorder(), r, &dest)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if pkgerrors.As(err).Message() != "request body too large" {
		t.Fatalf("unexpected message %q", pkgerrors.As(err).Message())
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		want   string
		ok     bool
	}{
		"standard":     {header: "Bearer abc.def", want: "abc.def", ok: true},
		"lowercase":    {header: "bearer abc", want: "abc", ok: true},
		"empty":        {header: ""},
		"no scheme":    {header: "abc.def"},
		"basic scheme": {header: "Basic dXNlcg=="},
		"only scheme":  {header: "Bearer "},
	}
	for name, tc := range cases {
		got, err := BearerToken(tc.header)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%s: expected %q, got %q (%v)", name, tc.want, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  Fractions\x00 Week ", 0); got != "Fractions Week" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeString("ñandú ñandú", 5); got != "ñandú" {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
}
