package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	errors "github.com/frahmantamala/member-directory/internal"
)

// Rule checks a single constraint and returns a human-readable fragment when
// the value violates it, or "" when the value passes.
type Rule func(value string) string

type FieldRules struct {
	FieldName string
	Value     string
	ErrCode   errors.ErrorCode
	Rules     []Rule
}

// Builder aggregates rules across fields. All fields are checked and every
// violation is reported in one result; there is no short-circuit on the first
// failing field.
type Builder struct {
	fields []*FieldRules
}

func NewValidator() *Builder {
	return &Builder{fields: make([]*FieldRules, 0)}
}

func (b *Builder) Field(name, value string) *FieldRules {
	fr := &FieldRules{
		FieldName: name,
		Value:     value,
		ErrCode:   errors.ErrCodeValidationFailed,
		Rules:     make([]Rule, 0),
	}
	b.fields = append(b.fields, fr)
	return fr
}

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	digitPattern = regexp.MustCompile(`[0-9]`)
)

const passwordSymbols = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"

func (fr *FieldRules) Code(code errors.ErrorCode) *FieldRules {
	fr.ErrCode = code
	return fr
}

func (fr *FieldRules) Required() *FieldRules {
	fr.Rules = append(fr.Rules, func(value string) string {
		if strings.TrimSpace(value) == "" {
			return "is required"
		}
		return ""
	})
	return fr
}

// MinLength and MaxLength count runes, not bytes, so multibyte names are
// measured the way users see them.
func (fr *FieldRules) MinLength(min int) *FieldRules {
	fr.Rules = append(fr.Rules, func(value string) string {
		if utf8.RuneCountInString(value) < min {
			return fmt.Sprintf("must be at least %d characters", min)
		}
		return ""
	})
	return fr
}

func (fr *FieldRules) MaxLength(max int) *FieldRules {
	fr.Rules = append(fr.Rules, func(value string) string {
		if utf8.RuneCountInString(value) > max {
			return fmt.Sprintf("must not exceed %d characters", max)
		}
		return ""
	})
	return fr
}

func (fr *FieldRules) NoDigits() *FieldRules {
	fr.Rules = append(fr.Rules, func(value string) string {
		if digitPattern.MatchString(value) {
			return "must not contain numbers"
		}
		return ""
	})
	return fr
}

func (fr *FieldRules) Email() *FieldRules {
	fr.Rules = append(fr.Rules, func(value string) string {
		if !emailPattern.MatchString(strings.TrimSpace(value)) {
			return "must be a valid email address"
		}
		return ""
	})
	return fr
}

// Phone accepts exactly 10 digits after trimming with a regional
// leading-digit constraint (6-9).
func (fr *FieldRules) Phone() *FieldRules {
	fr.Rules = append(fr.Rules, func(value string) string {
		if !phonePattern.MatchString(strings.TrimSpace(value)) {
			return "must be 10 digits starting with 6, 7, 8 or 9"
		}
		return ""
	})
	return fr
}

// Password adds one rule per complexity category so the final message
// enumerates exactly the categories the value is missing.
func (fr *FieldRules) Password() *FieldRules {
	fr.Rules = append(fr.Rules,
		func(value string) string {
			if len(value) < 8 {
				return "must be at least 8 characters"
			}
			return ""
		},
		func(value string) string {
			if !strings.ContainsFunc(value, unicode.IsUpper) {
				return "must contain at least one uppercase letter"
			}
			return ""
		},
		func(value string) string {
			if !strings.ContainsFunc(value, unicode.IsLower) {
				return "must contain at least one lowercase letter"
			}
			return ""
		},
		func(value string) string {
			if !strings.ContainsAny(value, "0123456789") {
				return "must contain at least one number"
			}
			return ""
		},
		func(value string) string {
			if !strings.ContainsAny(value, passwordSymbols) {
				return "must contain at least one special character"
			}
			return ""
		},
		func(value string) string {
			if strings.ContainsFunc(value, unicode.IsSpace) {
				return "must not contain whitespace"
			}
			return ""
		},
	)
	return fr
}

func (fr *FieldRules) Custom(rule Rule) *FieldRules {
	fr.Rules = append(fr.Rules, rule)
	return fr
}

// Validate runs every rule of every field. Fragments from a field's violated
// rules are joined with a comma and prefixed with the field name, e.g.
// "password must contain at least one uppercase letter, must not contain
// whitespace". A blank required field reports only "is required".
func (b *Builder) Validate() *errors.AppError {
	var validationErrors []errors.ValidationError

	for _, field := range b.fields {
		fragments := make([]string, 0, len(field.Rules))
		for _, rule := range field.Rules {
			if msg := rule(field.Value); msg != "" {
				fragments = append(fragments, msg)
			}
		}
		if len(fragments) == 0 {
			continue
		}

		if strings.TrimSpace(field.Value) == "" {
			fragments = []string{"is required"}
		}

		validationErrors = append(validationErrors, errors.ValidationError{
			Field:   field.FieldName,
			Message: fmt.Sprintf("%s %s", field.FieldName, strings.Join(fragments, ", ")),
			Code:    string(field.ErrCode),
		})
	}

	if len(validationErrors) > 0 {
		return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
			WithDetails(errors.ValidationErrors{Errors: validationErrors})
	}

	return nil
}

func ValidateMemberName(name string) *errors.AppError {
	v := NewValidator()
	v.Field("name", name).
		Code(errors.ErrCodeInvalidName).
		Required().
		MinLength(1).
		MaxLength(25).
		NoDigits()
	return v.Validate()
}

func ValidateEmail(email string) *errors.AppError {
	v := NewValidator()
	v.Field("email", email).
		Code(errors.ErrCodeInvalidEmail).
		Required().
		MaxLength(254).
		Email()
	return v.Validate()
}

func ValidatePhoneNumber(phone string) *errors.AppError {
	v := NewValidator()
	v.Field("phone_number", phone).
		Code(errors.ErrCodeInvalidPhone).
		Required().
		Phone()
	return v.Validate()
}

func ValidateUsername(username string) *errors.AppError {
	v := NewValidator()
	v.Field("username", username).
		Code(errors.ErrCodeInvalidUsername).
		Required().
		MinLength(3).
		MaxLength(50)
	return v.Validate()
}

func ValidatePassword(password string) *errors.AppError {
	v := NewValidator()
	v.Field("password", password).
		Code(errors.ErrCodeInvalidPassword).
		Required().
		Password()
	return v.Validate()
}
