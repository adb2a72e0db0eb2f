// Package models contains GORM persistence models that map to database tables.
// Domain entities carry no ORM tags; each model converts to and from its
// domain counterpart.
//
// Structure:
//   - base.go: shared ID, timestamp and version columns
//   - ledger.go: customers, ledger entries, payments and payment applications
//   - audit.go: append-only audit log
package models
