package domain

import "strings"

var reworkPrefixes = []string{"RETR", "ASS"}

// IsReworkLayout reports whether a layout code belongs to a rework or
// assistance batch.
func IsReworkLayout(codigoLayout string) bool {
	for _, prefix := range reworkPrefixes {
		if strings.HasPrefix(codigoLayout, prefix) {
			return true
		}
	}
	return false
}

// IsDuplicate reports whether an existing plan blocks the incoming part.
// Rework and assistance plans never block or get blocked, and an abandoned
// plan (pending and inactive) does not block either. Any other reference does:
// the part is still scheduled to be cut, or it was already cut.
func IsDuplicate(plan PlanSnapshot, part PartRef) bool {
	if IsReworkLayout(part.CodigoLayout) {
		return false
	}
	if IsReworkLayout(plan.CodigoLayout) {
		return false
	}
	if plan.Pendente && plan.Inativo {
		return false
	}
	return true
}
