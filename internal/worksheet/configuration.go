package worksheet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/quillwork/worksheets-backend/pkg/errors"
)

const (
	DefaultProblemCount = 20
	DefaultColumns      = 2
	DefaultDifficulty   = "medium"
	DefaultPageSize     = "letter"
	DefaultOrientation  = "portrait"
)

// Layout controls how problems are arranged on the page.
type Layout struct {
	Columns       int  `json:"columns" validate:"omitempty,min=1,max=4"`
	ShowWorkSpace bool `json:"showWorkSpace"`
}

// Configuration is the typed view of an export configuration. Fields not
// listed here are tolerated and still participate in the fingerprint.
type Configuration struct {
	Subject          string   `json:"subject" validate:"required,oneof=math"`
	ProblemTypes     []string `json:"problemTypes" validate:"required,min=1,max=4,dive,oneof=addition subtraction multiplication division"`
	Difficulty       string   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	ProblemCount     int      `json:"problemCount" validate:"omitempty,min=1,max=100"`
	Seed             int64    `json:"seed"`
	Layout           Layout   `json:"layout"`
	PageSize         string   `json:"pageSize" validate:"omitempty,oneof=letter a4"`
	Orientation      string   `json:"orientation" validate:"omitempty,oneof=portrait landscape"`
	IncludeAnswerKey *bool    `json:"includeAnswerKey"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// ParseConfiguration decodes and validates raw, then applies defaults.
func ParseConfiguration(raw json.RawMessage) (*Configuration, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "configuration must be a JSON object").
			WithDetails(map[string]string{"configuration": "must be an object"})
	}

	var cfg Configuration
	if err := json.Unmarshal(trimmed, &cfg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "configuration is malformed").
			WithDetails(map[string]string{"configuration": err.Error()})
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, formatValidationErrors(err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// AnswerKeyEnabled reports whether an answer key should be produced.
func (c *Configuration) AnswerKeyEnabled() bool {
	return c.IncludeAnswerKey == nil || *c.IncludeAnswerKey
}

func (c *Configuration) applyDefaults() {
	if c.Difficulty == "" {
		c.Difficulty = DefaultDifficulty
	}
	if c.ProblemCount == 0 {
		c.ProblemCount = DefaultProblemCount
	}
	if c.Layout.Columns == 0 {
		c.Layout.Columns = DefaultColumns
	}
	if c.PageSize == "" {
		c.PageSize = DefaultPageSize
	}
	if c.Orientation == "" {
		c.Orientation = DefaultOrientation
	}
}

func formatValidationErrors(err error) *pkgerrors.Error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "configuration is invalid")
	}
	details := map[string]string{}
	for _, fieldErr := range errs {
		field := strings.TrimPrefix(fieldErr.Namespace(), "Configuration.")
		details["configuration."+field] = validationMessage(fieldErr)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "configuration is invalid").WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}
