// Package models contains GORM persistence models that map to database tables.
// Domain entities stay free of ORM tags; each model converts to and from its
// domain type with ToDomain and a FromDomain constructor.
//
//   - base.go: aggregate columns shared by every table
//   - identity.go: tenants and the tier catalogue
//   - billing.go: usage quotas and alerts
//   - ledger.go: billing transactions
//   - coupon.go: coupons and redemptions
//   - upgrade.go: upgrade requests
//   - outbox.go: transactional outbox entries
package models
