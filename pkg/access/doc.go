// Package access implements the role × resource class permission matrix,
// per-user overrides, failed-attempt lockout and the multi-signature
// approval workflow.
//
// Roles, permissions and resource classes are closed enums. The capability
// table is static (DefaultPolicy) or loaded from YAML (LoadPolicy). A
// principal holding several roles resolves its primary role by a fixed
// precedence: Admin, Emergency, Hospital, Doctor, Nurse, Researcher,
// Auditor, Patient.
package access
