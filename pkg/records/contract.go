// Package records is the ledger-facing surface of phivault. Every exported
// method of Contract runs as one ledger invocation: it either commits all of
// its writes and emits its domain events, or commits only audit and lockout
// state.
package records

import (
	"context"
	"fmt"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/access"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/config"
	"github.com/doodlesbykumbi/phivault/pkg/consent"
	"github.com/doodlesbykumbi/phivault/pkg/datakey"
	"github.com/doodlesbykumbi/phivault/pkg/keys"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
	"github.com/doodlesbykumbi/phivault/pkg/metrics"
	"github.com/doodlesbykumbi/phivault/pkg/protection"
	"github.com/doodlesbykumbi/phivault/pkg/token"
)

// Contract composes the engines over one ledger.
type Contract struct {
	ledger      *ledger.Ledger
	trail       *audit.Trail
	keys        *keys.Manager
	matrix      *access.Matrix
	consent     *consent.Registry
	protection  *protection.Orchestrator
	grants      *token.Grants
	metrics     *metrics.Metrics
	horizonDays int
}

type settings struct {
	trailOpts []audit.TrailOption
	policy    *access.Policy
	metrics   *metrics.Metrics
}

type Option func(*settings)

// WithAuditLogger mirrors audit entries to an RFC5424 logger.
func WithAuditLogger(l *audit.Logger) Option {
	return func(s *settings) { s.trailOpts = append(s.trailOpts, audit.WithLogger(l)) }
}

// WithAuditStore mirrors audit entries to a SQL message store.
func WithAuditStore(st *audit.Store) Option {
	return func(s *settings) { s.trailOpts = append(s.trailOpts, audit.WithStore(st)) }
}

// WithPolicy replaces the built-in capability table.
func WithPolicy(p *access.Policy) Option {
	return func(s *settings) { s.policy = p }
}

// WithMetrics counts every operation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// DurableTypes lists the object types the ledger must keep when an
// invocation fails. Pass them to ledger.WithDurable.
func DurableTypes() []string {
	return append(audit.DurableTypes(), access.DurableTypes()...)
}

// New wires a contract over l. Audit entries and access tokens are signed
// with keys derived from dataKey; key material is sealed under dataKey
// itself.
func New(l *ledger.Ledger, dataKey []byte, cfg *config.PhivaultConfig, opts ...Option) (*Contract, error) {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}

	auditKey, err := datakey.Derive(dataKey, datakey.PurposeAudit)
	if err != nil {
		return nil, err
	}
	trail, err := audit.NewTrail(auditKey, s.trailOpts...)
	if err != nil {
		return nil, err
	}

	km, err := keys.NewManager(dataKey, trail,
		keys.WithSymmetricTTL(cfg.SymmetricKeyTTL()),
		keys.WithRSABits(cfg.RSAKeyBits),
	)
	if err != nil {
		return nil, err
	}

	thresholds, err := thresholdsOf(cfg.ApprovalThresholds)
	if err != nil {
		return nil, err
	}
	matrixOpts := []access.Option{
		access.WithThresholds(thresholds),
		access.WithLockout(cfg.MaxFailedAttempts, cfg.LockoutDuration()),
	}
	if s.policy != nil {
		matrixOpts = append(matrixOpts, access.WithPolicy(s.policy))
	}
	matrix := access.NewMatrix(trail, matrixOpts...)

	registry := consent.NewRegistry(trail, matrix,
		consent.WithMaxDurations(cfg.MaxConsentDuration(), cfg.MaxEmergencyDuration()),
	)

	tokenKey, err := datakey.Derive(dataKey, datakey.PurposeAccessToken)
	if err != nil {
		return nil, err
	}
	grants, err := token.New(tokenKey, cfg.AccessTokenTTL())
	if err != nil {
		return nil, err
	}

	return &Contract{
		ledger:  l,
		trail:   trail,
		keys:    km,
		matrix:  matrix,
		consent: registry,
		protection: protection.NewOrchestrator(trail, km, matrix, registry,
			protection.WithChunkSize(cfg.BatchChunkSize),
			protection.WithSampleSize(cfg.SpotCheckSampleSize),
		),
		grants:      grants,
		metrics:     s.metrics,
		horizonDays: cfg.RotationHorizonDays,
	}, nil
}

func thresholdsOf(byName map[string]int) (map[access.Role]int, error) {
	out := make(map[access.Role]int, len(byName))
	for name, n := range byName {
		role, err := access.RoleString(name)
		if err != nil {
			return nil, fmt.Errorf("approval thresholds: %w", err)
		}
		out[role] = n
	}
	return out, nil
}

// Trail exposes the audit trail for verification tooling.
func (c *Contract) Trail() *audit.Trail {
	return c.trail
}

// invoke runs fn as one ledger invocation and counts its outcome under op.
func (c *Contract) invoke(ctx context.Context, op string, fn func(ledger.State) error) error {
	err := c.ledger.Invoke(ctx, fn)
	c.metrics.ObserveOperation(op, err)
	return err
}

// emit publishes a domain event carrying ids and the invocation time only.
func emit(st ledger.State, name string, fields map[string]string) error {
	payload := make(map[string]string, len(fields)+2)
	for k, v := range fields {
		payload[k] = v
	}
	payload["txId"] = st.TxID()
	payload["timestamp"] = st.Timestamp().Format(time.RFC3339Nano)
	return ledger.EmitJSON(st, name, payload)
}
