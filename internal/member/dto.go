package member

import (
	internal "github.com/frahmantamala/member-directory/internal"
	"github.com/frahmantamala/member-directory/internal/core/common/validation"
)

type RegisterMemberDTO struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Validate checks every field and aggregates all violations into a single
// error instead of stopping at the first one.
func (d *RegisterMemberDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("name", d.Name).
		Code(internal.ErrCodeInvalidName).
		Required().
		MinLength(1).
		MaxLength(25).
		NoDigits()
	v.Field("email", d.Email).
		Code(internal.ErrCodeInvalidEmail).
		Required().
		MaxLength(254).
		Email()
	v.Field("phone", d.Phone).
		Code(internal.ErrCodeInvalidPhone).
		Required().
		Phone()
	return v.Validate()
}

// UpdateMemberDTO carries a partial update. Nil pointers mean the field is
// untouched; present fields are validated with the same rules as registration.
type UpdateMemberDTO struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

func (d *UpdateMemberDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	if d.Name != nil {
		v.Field("name", *d.Name).
			Code(internal.ErrCodeInvalidName).
			Required().
			MinLength(1).
			MaxLength(25).
			NoDigits()
	}
	if d.Email != nil {
		v.Field("email", *d.Email).
			Code(internal.ErrCodeInvalidEmail).
			Required().
			MaxLength(254).
			Email()
	}
	if d.Phone != nil {
		v.Field("phone", *d.Phone).
			Code(internal.ErrCodeInvalidPhone).
			Required().
			Phone()
	}
	return v.Validate()
}

func (d *UpdateMemberDTO) Empty() bool {
	return d.Name == nil && d.Email == nil && d.Phone == nil
}
