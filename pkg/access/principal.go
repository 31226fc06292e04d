package access

import (
	"sort"
	"strings"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

// Principal is a registered identity and the roles it holds.
type Principal struct {
	ID           string    `json:"id"`
	Roles        []Role    `json:"roles"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// HasRole reports whether p holds role.
func (p Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PrimaryRole resolves the role used when a principal acts without naming
// one. Resolution follows a fixed precedence, never declaration order.
func (p Principal) PrimaryRole() (Role, bool) {
	return PrimaryRole(p.Roles)
}

// PrimaryRole picks the strongest of roles: Admin, Emergency, Hospital,
// Doctor, Nurse, Researcher, Auditor, then Patient.
func PrimaryRole(roles []Role) (Role, bool) {
	for _, candidate := range precedence {
		for _, r := range roles {
			if r == candidate {
				return candidate, true
			}
		}
	}
	return 0, false
}

func principalKey(id string) (string, error) {
	return ledger.CreateCompositeKey(principalType, []string{id})
}

// RegisterPrincipal records id with roles, replacing any earlier role set.
func (m *Matrix) RegisterPrincipal(st ledger.State, id string, roles []Role) (Principal, error) {
	p, err := m.registerPrincipal(st, id, roles)
	names := make([]string, len(p.Roles))
	for i, r := range p.Roles {
		names[i] = r.String()
	}
	return p, m.trail.Outcome(st, audit.Entry{
		Principal:      id,
		Action:         "access.register_principal",
		TargetResource: id,
		Details:        map[string]string{"roles": strings.Join(names, ",")},
	}, err)
}

func (m *Matrix) registerPrincipal(st ledger.State, id string, roles []Role) (Principal, error) {
	const op = "access.registerPrincipal"
	if id == "" {
		return Principal{}, apperr.New(apperr.KindInvalidInput, op, "principal id is required")
	}
	if len(roles) == 0 {
		return Principal{}, apperr.New(apperr.KindInvalidInput, op, "at least one role is required").With("principal", id)
	}

	seen := map[Role]bool{}
	var unique []Role
	for _, r := range roles {
		if !r.IsARole() {
			return Principal{}, apperr.New(apperr.KindInvalidInput, op, "unknown role "+r.String()).With("principal", id)
		}
		if !seen[r] {
			seen[r] = true
			unique = append(unique, r)
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	p := Principal{ID: id, Roles: unique, RegisteredAt: st.Timestamp()}
	key, err := principalKey(id)
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.KindInvalidInput, op, err)
	}
	return p, ledger.PutJSON(st, key, p)
}

// Principal looks up a registered principal.
func (m *Matrix) Principal(st ledger.State, id string) (Principal, error) {
	const op = "access.principal"
	if id == "" {
		return Principal{}, apperr.New(apperr.KindInvalidInput, op, "principal id is required")
	}
	key, err := principalKey(id)
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.KindInvalidInput, op, err)
	}
	var p Principal
	found, err := ledger.GetJSON(st, key, &p)
	if err != nil {
		return Principal{}, err
	}
	if !found {
		return Principal{}, apperr.New(apperr.KindNotFound, op, "unknown principal").With("principal", id)
	}
	return p, nil
}

// HasRole reports whether id is registered with role. Unknown principals
// hold no roles.
func (m *Matrix) HasRole(st ledger.State, id string, role Role) (bool, error) {
	p, err := m.Principal(st, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.HasRole(role), nil
}
