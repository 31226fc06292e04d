// Command phivaultctl operates a phivault ledger.
//
// phivault protects medical records on a key-value ledger: payloads are
// sealed under per-provider keys, every access decision goes through the
// consent registry and the role matrix, and every operation appends to a
// hash-chained audit trail.
//
// # Quick Start
//
//	# Generate a data key for sealing key material
//	phivaultctl data-key generate > data_key
//	export PHIVAULT_DATA_KEY=$(cat data_key)
//
//	# Create the ledger schema
//	phivaultctl db migrate
//
//	# Run the maintenance loop with /metrics and /healthz
//	phivaultctl maintain
//
//	# Check the audit trail
//	phivaultctl audit verify
//
// # Environment Variables
//
//   - DATABASE_URL: PostgreSQL connection string
//   - PHIVAULT_DATA_KEY: Base64-encoded 256-bit data key (data_key_source=env)
//   - VAULT_ADDR, VAULT_TOKEN, VAULT_NAMESPACE: Vault access (data_key_source=vault)
//   - PHIVAULT_CONFIG_PATH: Directory holding phivault.yml (default: /etc/phivault)
//   - PHIVAULT_LOG_LEVEL: SQL log level (debug, warn, error)
package main
