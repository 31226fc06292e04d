// Package consent keeps time-bounded, category-scoped consent grants and
// emergency access records, and answers data access decisions.
//
// A consent moves one way: active, then revoked or expired. It is never
// reactivated; access after revocation needs a new consent with a new id.
// Emergency access bypasses consent but requires both the emergency role and
// an unexpired emergency record naming the patient.
package consent
