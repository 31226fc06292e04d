package access

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Capabilities is one cell of the role × resource class matrix.
type Capabilities struct {
	CanRead            bool `yaml:"read" json:"read"`
	CanWrite           bool `yaml:"write" json:"write"`
	CanDelete          bool `yaml:"delete" json:"delete"`
	CanShare           bool `yaml:"share" json:"share"`
	CanEmergencyAccess bool `yaml:"emergency-access" json:"emergencyAccess"`
}

// Allows reports whether p is granted by c.
func (c Capabilities) Allows(p Permission) bool {
	switch p {
	case PermissionRead:
		return c.CanRead
	case PermissionWrite:
		return c.CanWrite
	case PermissionDelete:
		return c.CanDelete
	case PermissionShare:
		return c.CanShare
	case PermissionEmergencyAccess:
		return c.CanEmergencyAccess
	}
	return false
}

func (c *Capabilities) set(p Permission) {
	switch p {
	case PermissionRead:
		c.CanRead = true
	case PermissionWrite:
		c.CanWrite = true
	case PermissionDelete:
		c.CanDelete = true
	case PermissionShare:
		c.CanShare = true
	case PermissionEmergencyAccess:
		c.CanEmergencyAccess = true
	}
}

func grant(perms ...Permission) Capabilities {
	var c Capabilities
	for _, p := range perms {
		c.set(p)
	}
	return c
}

// Policy is the static role capability table.
type Policy struct {
	cells map[Role]map[ResourceClass]Capabilities
}

// Capabilities returns the cell for (role, class).
func (p *Policy) Capabilities(role Role, class ResourceClass) Capabilities {
	return p.cells[role][class]
}

// DefaultPolicy returns the built-in capability table. The audit log is
// never writable through the matrix; entries are only appended by the trail.
func DefaultPolicy() *Policy {
	p := &Policy{cells: map[Role]map[ResourceClass]Capabilities{}}
	for _, role := range RoleValues() {
		p.cells[role] = map[ResourceClass]Capabilities{}
		for _, class := range ResourceClassValues() {
			p.cells[role][class] = defaultCapabilities(role, class)
		}
	}
	return p
}

func defaultCapabilities(role Role, class ResourceClass) Capabilities {
	switch role {
	case RolePatient:
		switch class {
		case ResourceMedicalRecord:
			return grant(PermissionRead, PermissionShare)
		case ResourceConsent:
			return grant(PermissionRead, PermissionWrite, PermissionDelete)
		case ResourceKey, ResourceAuditLog:
			return grant(PermissionRead)
		}
	case RoleDoctor:
		switch class {
		case ResourceMedicalRecord:
			return grant(PermissionRead, PermissionWrite, PermissionShare)
		case ResourceConsent:
			return grant(PermissionRead)
		case ResourceKey:
			return grant(PermissionRead, PermissionWrite)
		case ResourceAuditLog:
			return Capabilities{}
		}
	case RoleNurse:
		switch class {
		case ResourceMedicalRecord, ResourceConsent:
			return grant(PermissionRead)
		case ResourceKey, ResourceAuditLog:
			return Capabilities{}
		}
	case RoleResearcher:
		return Capabilities{}
	case RoleHospital:
		switch class {
		case ResourceMedicalRecord:
			return grant(PermissionRead, PermissionWrite, PermissionDelete, PermissionShare)
		case ResourceConsent:
			return grant(PermissionRead)
		case ResourceKey:
			return grant(PermissionRead, PermissionWrite, PermissionDelete)
		case ResourceAuditLog:
			return grant(PermissionRead)
		}
	case RoleEmergency:
		switch class {
		case ResourceMedicalRecord:
			return grant(PermissionRead, PermissionEmergencyAccess)
		case ResourceConsent:
			return grant(PermissionRead)
		case ResourceKey, ResourceAuditLog:
			return Capabilities{}
		}
	case RoleAdmin:
		switch class {
		case ResourceMedicalRecord, ResourceConsent, ResourceKey:
			return grant(PermissionRead, PermissionWrite, PermissionDelete, PermissionShare)
		case ResourceAuditLog:
			return grant(PermissionRead)
		}
	case RoleAuditor:
		switch class {
		case ResourceAuditLog, ResourceConsent:
			return grant(PermissionRead)
		case ResourceMedicalRecord, ResourceKey:
			return Capabilities{}
		}
	}
	return Capabilities{}
}

type policyDocument struct {
	Roles map[string]map[string][]string `yaml:"roles"`
}

// LoadPolicy reads a capability table of the form
//
//	roles:
//	  doctor:
//	    medical-record: [read, write, share]
//
// Roles and classes absent from the document keep their defaults; a listed
// cell replaces the default cell entirely.
func LoadPolicy(r io.Reader) (*Policy, error) {
	var doc policyDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse access policy: %w", err)
	}

	p := DefaultPolicy()
	for roleName, classes := range doc.Roles {
		role, err := RoleString(roleName)
		if err != nil {
			return nil, err
		}
		for className, perms := range classes {
			class, err := ResourceClassString(className)
			if err != nil {
				return nil, err
			}
			var c Capabilities
			for _, name := range perms {
				perm, err := PermissionString(name)
				if err != nil {
					return nil, err
				}
				if class == ResourceAuditLog && perm != PermissionRead {
					return nil, fmt.Errorf("audit-log only supports read, got %s for %s", perm, role)
				}
				c.set(perm)
			}
			p.cells[role][class] = c
		}
	}
	return p, nil
}
