package access

import (
	"strconv"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
)

// Ledger object types.
const (
	principalType = "principal"
	overrideType  = "access~override"
	lockoutType   = "access~lockout"
	multisigType  = "access~multisig"
)

// DurableTypes lists object types that must commit even when the enclosing
// invocation fails: a denied check still counts toward lockout.
func DurableTypes() []string {
	return []string{lockoutType}
}

// DefaultThresholds are the multi-sig approvals required per role.
func DefaultThresholds() map[Role]int {
	return map[Role]int{RoleDoctor: 2, RoleHospital: 3, RoleAdmin: 1}
}

// Matrix answers permission checks and runs the multi-sig workflow.
type Matrix struct {
	trail       *audit.Trail
	policy      *Policy
	thresholds  map[Role]int
	maxFailed   int
	lockoutTime time.Duration
}

type Option func(*Matrix)

// WithPolicy replaces the built-in capability table.
func WithPolicy(p *Policy) Option {
	return func(m *Matrix) { m.policy = p }
}

// WithThresholds sets the approvals required per role. Roles missing from
// thresholds cannot open multi-sig requests.
func WithThresholds(thresholds map[Role]int) Option {
	return func(m *Matrix) { m.thresholds = thresholds }
}

// WithLockout sets how many denials within window lock a principal out, and
// for how long.
func WithLockout(maxFailed int, window time.Duration) Option {
	return func(m *Matrix) {
		m.maxFailed = maxFailed
		m.lockoutTime = window
	}
}

func NewMatrix(trail *audit.Trail, opts ...Option) *Matrix {
	m := &Matrix{
		trail:       trail,
		policy:      DefaultPolicy(),
		thresholds:  DefaultThresholds(),
		maxFailed:   DefaultMaxFailedAttempts,
		lockoutTime: DefaultLockoutDuration,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Override is a per-user grant of one permission on one resource class.
type Override struct {
	UserID     string        `json:"userId"`
	Permission Permission    `json:"permission"`
	Class      ResourceClass `json:"resourceClass"`
	GrantedBy  string        `json:"grantedBy"`
	GrantedAt  time.Time     `json:"grantedAt"`
}

func overrideKey(user string, perm Permission, class ResourceClass) (string, error) {
	return ledger.CreateCompositeKey(overrideType, []string{user, perm.String() + "@" + class.String()})
}

// SetOverride grants or withdraws perm on class for user. Only admins may
// change overrides.
func (m *Matrix) SetOverride(st ledger.State, admin, user string, perm Permission, class ResourceClass, allow bool) error {
	err := m.setOverride(st, admin, user, perm, class, allow)
	return m.trail.Outcome(st, audit.Entry{
		Principal:      admin,
		Role:           RoleAdmin.String(),
		Action:         "access.set_override",
		TargetResource: user,
		Details: map[string]string{
			"permission":    perm.String(),
			"resourceClass": class.String(),
			"allow":         strconv.FormatBool(allow),
		},
	}, err)
}

func (m *Matrix) setOverride(st ledger.State, admin, user string, perm Permission, class ResourceClass, allow bool) error {
	const op = "access.setOverride"
	if user == "" || !perm.IsAPermission() || !class.IsAResourceClass() {
		return apperr.New(apperr.KindInvalidInput, op, "user, permission and resource class are required")
	}
	isAdmin, err := m.HasRole(st, admin, RoleAdmin)
	if err != nil {
		return err
	}
	if !isAdmin {
		return apperr.New(apperr.KindAccessDenied, op, "only admins may set overrides").With("principal", admin)
	}
	if class == ResourceAuditLog && perm != PermissionRead {
		return apperr.New(apperr.KindInvalidInput, op, "audit-log only supports read")
	}

	key, err := overrideKey(user, perm, class)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, op, err)
	}
	if !allow {
		// an empty value reads back as absent
		return st.PutState(key, []byte{})
	}
	return ledger.PutJSON(st, key, Override{
		UserID:     user,
		Permission: perm,
		Class:      class,
		GrantedBy:  admin,
		GrantedAt:  st.Timestamp(),
	})
}

func (m *Matrix) hasOverride(st ledger.State, user string, perm Permission, class ResourceClass) (bool, error) {
	key, err := overrideKey(user, perm, class)
	if err != nil {
		return false, err
	}
	b, err := st.GetState(key)
	if err != nil {
		return false, err
	}
	return len(b) > 0, nil
}

type lockout struct {
	Failures    int       `json:"failures"`
	WindowStart time.Time `json:"windowStart"`
	LockedUntil time.Time `json:"lockedUntil"`
}

func lockoutKey(user string) (string, error) {
	return ledger.CreateCompositeKey(lockoutType, []string{user})
}

// LockedOut reports whether user is currently locked out.
func (m *Matrix) LockedOut(st ledger.State, user string) (bool, error) {
	key, err := lockoutKey(user)
	if err != nil {
		return false, err
	}
	var lo lockout
	if _, err := ledger.GetJSON(st, key, &lo); err != nil {
		return false, err
	}
	return st.Timestamp().Before(lo.LockedUntil), nil
}

func (m *Matrix) recordFailure(st ledger.State, user string) error {
	key, err := lockoutKey(user)
	if err != nil {
		return err
	}
	var lo lockout
	if _, err := ledger.GetJSON(st, key, &lo); err != nil {
		return err
	}
	now := st.Timestamp()
	if lo.WindowStart.IsZero() || now.Sub(lo.WindowStart) > m.lockoutTime {
		lo = lockout{WindowStart: now}
	}
	lo.Failures++
	if lo.Failures >= m.maxFailed {
		lo.LockedUntil = now.Add(m.lockoutTime)
		lo.Failures = 0
		lo.WindowStart = time.Time{}
	}
	return ledger.PutJSON(st, key, lo)
}

// HasPermission decides whether user, acting as role, may perform perm on
// class. The check fails closed while user is locked out, requires user to
// hold role, and then accepts either the role's capability or a per-user
// override. Denials count toward lockout. Every decision is audited.
func (m *Matrix) HasPermission(st ledger.State, user string, role Role, perm Permission, class ResourceClass) (bool, error) {
	allowed, reason, err := m.decide(st, user, role, perm, class)
	if err != nil {
		return false, err
	}
	if !allowed && user != "" && reason != "locked out" {
		if err := m.recordFailure(st, user); err != nil {
			return false, err
		}
	}

	details := map[string]string{
		"permission":    perm.String(),
		"resourceClass": class.String(),
		"reason":        reason,
	}
	if _, err := m.trail.Record(st, audit.Entry{
		Principal:      user,
		Role:           role.String(),
		Action:         "access.check",
		TargetResource: class.String(),
		Success:        allowed,
		Details:        details,
	}); err != nil {
		return false, err
	}
	return allowed, nil
}

func (m *Matrix) decide(st ledger.State, user string, role Role, perm Permission, class ResourceClass) (bool, string, error) {
	if user == "" || !role.IsARole() || !perm.IsAPermission() || !class.IsAResourceClass() {
		return false, "malformed check", nil
	}
	locked, err := m.LockedOut(st, user)
	if err != nil {
		return false, "", err
	}
	if locked {
		return false, "locked out", nil
	}
	member, err := m.HasRole(st, user, role)
	if err != nil {
		return false, "", err
	}
	if !member {
		return false, "role not held", nil
	}
	if m.policy.Capabilities(role, class).Allows(perm) {
		return true, "role grant", nil
	}
	override, err := m.hasOverride(st, user, perm, class)
	if err != nil {
		return false, "", err
	}
	if override {
		return true, "override", nil
	}
	return false, "not granted", nil
}

// Authorize is HasPermission returning AccessDenied for a negative decision.
func (m *Matrix) Authorize(st ledger.State, user string, role Role, perm Permission, class ResourceClass) error {
	ok, err := m.HasPermission(st, user, role, perm, class)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindAccessDenied, "access.authorize",
			role.String()+" may not "+perm.String()+" "+class.String()).With("principal", user)
	}
	return nil
}

// Threshold returns the approvals required for role, 0 when the role cannot
// open multi-sig requests.
func (m *Matrix) Threshold(role Role) int {
	return m.thresholds[role]
}
