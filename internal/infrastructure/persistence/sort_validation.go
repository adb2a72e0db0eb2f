package persistence

import (
	"strings"

	"github.com/ledgerly/backend/internal/domain/shared"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// LedgerEntrySortFields contains allowed sort fields for ledger entries
var LedgerEntrySortFields = map[string]bool{
	"transaction_date": true,
	"amount":           true,
	"created_at":       true,
}

// PaymentSortFields contains allowed sort fields for payments
var PaymentSortFields = map[string]bool{
	"payment_date":   true,
	"amount":         true,
	"created_at":     true,
	"due_date":       true,
	"payment_status": true,
}

// orderClause builds a whitelisted ORDER BY clause with created_at as the
// tiebreaker so pages are stable.
func orderClause(filter shared.Filter, allowed map[string]bool, defaultField string) string {
	field := ValidateSortField(filter.OrderBy, allowed, defaultField)
	dir := ValidateSortOrder(filter.OrderDir)
	if field == "created_at" {
		return field + " " + dir
	}
	return field + " " + dir + ", created_at " + dir
}
