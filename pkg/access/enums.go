package access

//go:generate go run github.com/dmarkham/enumer -type Role -trimprefix Role -transform lower -json -text -yaml -output role.gen.go
//go:generate go run github.com/dmarkham/enumer -type Permission -trimprefix Permission -transform kebab -json -text -yaml -output permission.gen.go
//go:generate go run github.com/dmarkham/enumer -type ResourceClass -trimprefix Resource -transform kebab -json -text -yaml -output resource_class.gen.go

// Role is a closed set of principal roles.
type Role int

const (
	RolePatient Role = iota
	RoleDoctor
	RoleNurse
	RoleResearcher
	RoleHospital
	RoleEmergency
	RoleAdmin
	RoleAuditor
)

// precedence orders roles from strongest to weakest for PrimaryRole.
var precedence = []Role{
	RoleAdmin,
	RoleEmergency,
	RoleHospital,
	RoleDoctor,
	RoleNurse,
	RoleResearcher,
	RoleAuditor,
	RolePatient,
}

// IsHealthcare reports whether the role may receive patient consent.
func (r Role) IsHealthcare() bool {
	switch r {
	case RoleDoctor, RoleNurse, RoleResearcher, RoleHospital, RoleEmergency:
		return true
	case RolePatient, RoleAdmin, RoleAuditor:
		return false
	}
	return false
}

// Permission is an action on a resource class.
type Permission int

const (
	PermissionRead Permission = iota
	PermissionWrite
	PermissionDelete
	PermissionShare
	PermissionEmergencyAccess
)

// ResourceClass is the kind of object a permission applies to.
type ResourceClass int

const (
	ResourceMedicalRecord ResourceClass = iota
	ResourceConsent
	ResourceKey
	ResourceAuditLog
)
