package member

import "time"

// AssembleMember builds a persistable entity from validated input. The
// principal is whoever the request was made on behalf of; an empty principal
// is stamped as the system sentinel so provenance columns are never blank.
func AssembleMember(dto *RegisterMemberDTO, principal string, now time.Time) *Member {
	if principal == "" {
		principal = SystemPrincipal
	}
	return &Member{
		Name:      dto.Name,
		Email:     NormalizeEmail(dto.Email),
		Phone:     dto.Phone,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: principal,
		UpdatedBy: principal,
	}
}

// ApplyUpdate copies the present fields of a partial update onto an existing
// entity and restamps updated_at and updated_by. Creation provenance is never
// touched.
func ApplyUpdate(m *Member, dto *UpdateMemberDTO, principal string, now time.Time) {
	if principal == "" {
		principal = SystemPrincipal
	}
	if dto.Name != nil {
		m.Name = *dto.Name
	}
	if dto.Email != nil {
		m.Email = NormalizeEmail(*dto.Email)
	}
	if dto.Phone != nil {
		m.Phone = *dto.Phone
	}
	m.UpdatedAt = now
	m.UpdatedBy = principal
}
