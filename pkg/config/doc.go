// Package config provides configuration management for phivault.
//
// Configuration is layered: built-in defaults, then phivault.yml found
// under PHIVAULT_CONFIG_PATH (default /etc/phivault), then PHIVAULT_*
// environment variables. The source of every attribute is tracked so
// `phivaultctl configuration show` can report where a value came from.
//
// # Key Configuration Options
//
//   - PHIVAULT_MAX_FAILED_ATTEMPTS: Denials before a principal is locked out
//   - PHIVAULT_LOCKOUT_DURATION_SECONDS: Lockout length
//   - PHIVAULT_APPROVAL_THRESHOLDS: Multi-sig approvals per role, e.g. doctor=2,hospital=3
//   - PHIVAULT_DATA_KEY_SOURCE: env or vault
//   - AUDIT_DATABASE_URL: Enables the SQL audit mirror
//   - PHIVAULT_KAFKA_BROKERS: Enables domain event publishing
package config
