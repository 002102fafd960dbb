package job

import (
	"strings"

	internal "github.com/frahmantamala/member-directory/internal"
)

type CreateJobDTO struct {
	Type  Type                `json:"type"`
	Items []map[string]string `json:"items"`
}

func (d *CreateJobDTO) Validate() *internal.AppError {
	if !d.Type.Valid() {
		return internal.NewValidationError("type must be BULK_DELETE or EXCEL_UPLOAD", internal.ErrCodeValidationFailed)
	}
	if len(d.Items) == 0 {
		return internal.NewValidationError("items must not be empty", internal.ErrCodeValidationFailed)
	}
	for _, item := range d.Items {
		switch d.Type {
		case TypeBulkDelete:
			if strings.TrimSpace(item["email"]) == "" {
				return internal.NewValidationError("every BULK_DELETE item needs an email", internal.ErrCodeValidationFailed)
			}
		case TypeExcelUpload:
			if strings.TrimSpace(item["email"]) == "" || strings.TrimSpace(item["name"]) == "" {
				return internal.NewValidationError("every EXCEL_UPLOAD row needs a name and an email", internal.ErrCodeValidationFailed)
			}
		}
	}
	return nil
}
