// Package billing holds the usage governance model for a multi-tenant SaaS tenant:
// subscription tiers, per-tenant usage quotas and the alerts raised when a quota
// crosses its warning or exceeded threshold.
//
// Key Aggregates:
//   - UsageQuota: the (current, limit) counter for one tenant and one metric
//   - UsageAlert: a threshold crossing waiting for acknowledgement
//   - Tier: a named plan with prices and default limits
//
// Quota rows are the unit of serialization: every mutation of a quota happens
// under a row lock held by the caller's transaction.
package billing
