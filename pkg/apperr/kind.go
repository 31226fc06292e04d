package apperr

//go:generate go run github.com/dmarkham/enumer -type Kind -trimprefix Kind -json -output kind.gen.go

// Kind is the failure taxonomy surfaced to callers together with a reason.
type Kind int

const (
	KindInvalidInput Kind = iota
	KindAccessDenied
	KindIntegrityViolation
	KindDuplicateEntity
	KindExpired
	KindInsufficientApprovals
	KindNotFound
	KindInvalidState
	KindAlreadyExecuted
	KindRoleMismatch
)
