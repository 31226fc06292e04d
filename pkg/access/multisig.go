package access

import (
	"strconv"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/audit"
	"github.com/doodlesbykumbi/phivault/pkg/hashing"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

// MultiSigRequest is an operation waiting for distinct approvers.
type MultiSigRequest struct {
	RequestID          string    `json:"requestId"`
	Requester          string    `json:"requester"`
	Role               Role      `json:"role"`
	OperationHash      string    `json:"operationHash"`
	RequiredSignatures int       `json:"requiredSignatures"`
	Approvers          []string  `json:"approvers"`
	IsExecuted         bool      `json:"isExecuted"`
	Deadline           time.Time `json:"deadline"`
	CreatedAt          time.Time `json:"createdAt"`
	ExecutedAt         time.Time `json:"executedAt"`
	ExecutedBy         string    `json:"executedBy,omitempty"`
}

// Approved reports whether the threshold has been reached.
func (r MultiSigRequest) Approved() bool {
	return len(r.Approvers) >= r.RequiredSignatures
}

func multisigKey(id string) (string, error) {
	return ledger.CreateCompositeKey(multisigType, []string{id})
}

func (m *Matrix) getRequest(st ledger.State, op, id string) (MultiSigRequest, error) {
	if id == "" {
		return MultiSigRequest{}, apperr.New(apperr.KindInvalidInput, op, "request id is required")
	}
	key, err := multisigKey(id)
	if err != nil {
		return MultiSigRequest{}, apperr.Wrap(apperr.KindInvalidInput, op, err)
	}
	var req MultiSigRequest
	found, err := ledger.GetJSON(st, key, &req)
	if err != nil {
		return MultiSigRequest{}, err
	}
	if !found {
		return MultiSigRequest{}, apperr.New(apperr.KindNotFound, op, "unknown request").With("requestId", id)
	}
	return req, nil
}

func (m *Matrix) putRequest(st ledger.State, req MultiSigRequest) error {
	key, err := multisigKey(req.RequestID)
	if err != nil {
		return err
	}
	return ledger.PutJSON(st, key, req)
}

// RequestApproval opens a multi-sig request for an operation requester wants
// to perform as role. The number of required signatures comes from the
// role's threshold.
func (m *Matrix) RequestApproval(st ledger.State, requester string, role Role, operationHash string, deadline time.Time) (MultiSigRequest, error) {
	req, err := m.requestApproval(st, requester, role, operationHash, deadline)
	target := req.RequestID
	if target == "" {
		target = operationHash
	}
	return req, m.trail.Outcome(st, audit.Entry{
		Principal:      requester,
		Role:           role.String(),
		Action:         "multisig.request",
		TargetResource: target,
		Details: map[string]string{
			"operationHash":      operationHash,
			"requiredSignatures": strconv.Itoa(req.RequiredSignatures),
		},
	}, err)
}

func (m *Matrix) requestApproval(st ledger.State, requester string, role Role, operationHash string, deadline time.Time) (MultiSigRequest, error) {
	const op = "multisig.requestApproval"
	if requester == "" || operationHash == "" {
		return MultiSigRequest{}, apperr.New(apperr.KindInvalidInput, op, "requester and operation hash are required")
	}
	threshold := m.Threshold(role)
	if threshold <= 0 {
		return MultiSigRequest{}, apperr.New(apperr.KindInvalidInput, op, "role "+role.String()+" has no approval threshold")
	}
	now := st.Timestamp()
	if !deadline.After(now) {
		return MultiSigRequest{}, apperr.New(apperr.KindInvalidInput, op, "deadline must be in the future")
	}
	member, err := m.HasRole(st, requester, role)
	if err != nil {
		return MultiSigRequest{}, err
	}
	if !member {
		return MultiSigRequest{}, apperr.New(apperr.KindRoleMismatch, op, "requester does not hold "+role.String()).
			With("principal", requester)
	}

	id, err := hashing.Hash(map[string]string{
		"requester":     requester,
		"operationHash": operationHash,
		"timestamp":     now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return MultiSigRequest{}, err
	}
	id = "msig-" + id[:32]
	if _, err := m.getRequest(st, op, id); err == nil {
		return MultiSigRequest{}, apperr.New(apperr.KindDuplicateEntity, op, "request already exists").With("requestId", id)
	}

	req := MultiSigRequest{
		RequestID:          id,
		Requester:          requester,
		Role:               role,
		OperationHash:      operationHash,
		RequiredSignatures: threshold,
		Approvers:          []string{},
		Deadline:           deadline.UTC(),
		CreatedAt:          now,
	}
	return req, m.putRequest(st, req)
}

// Approve adds approver's signature. Each principal signs at most once and
// requesters cannot approve their own requests.
func (m *Matrix) Approve(st ledger.State, requestID, approver string) (MultiSigRequest, error) {
	req, err := m.approve(st, requestID, approver)
	return req, m.trail.Outcome(st, audit.Entry{
		Principal:      approver,
		Action:         "multisig.approve",
		TargetResource: requestID,
		Details:        map[string]string{"approvals": strconv.Itoa(len(req.Approvers))},
	}, err)
}

func (m *Matrix) approve(st ledger.State, requestID, approver string) (MultiSigRequest, error) {
	const op = "multisig.approve"
	req, err := m.getRequest(st, op, requestID)
	if err != nil {
		return MultiSigRequest{}, err
	}
	if req.IsExecuted {
		return req, apperr.New(apperr.KindAlreadyExecuted, op, "request was already executed").With("requestId", requestID)
	}
	if st.Timestamp().After(req.Deadline) {
		return req, apperr.New(apperr.KindExpired, op, "approval deadline passed").With("requestId", requestID)
	}
	if approver == "" {
		return req, apperr.New(apperr.KindInvalidInput, op, "approver is required")
	}
	if approver == req.Requester {
		return req, apperr.New(apperr.KindAccessDenied, op, "requesters cannot approve their own request").
			With("requestId", requestID).With("principal", approver)
	}
	if _, err := m.Principal(st, approver); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return req, apperr.New(apperr.KindAccessDenied, op, "approver is not a registered principal").With("principal", approver)
		}
		return req, err
	}
	for _, a := range req.Approvers {
		if a == approver {
			return req, apperr.New(apperr.KindDuplicateEntity, op, "approver already signed").
				With("requestId", requestID).With("principal", approver)
		}
	}
	req.Approvers = append(req.Approvers, approver)
	return req, m.putRequest(st, req)
}

// Execute marks the request executed. It succeeds exactly once, only before
// the deadline and only with enough approvals.
func (m *Matrix) Execute(st ledger.State, requestID, executor string) (MultiSigRequest, error) {
	req, err := m.execute(st, requestID, executor)
	return req, m.trail.Outcome(st, audit.Entry{
		Principal:      executor,
		Action:         "multisig.execute",
		TargetResource: requestID,
		Details: map[string]string{
			"approvals":          strconv.Itoa(len(req.Approvers)),
			"requiredSignatures": strconv.Itoa(req.RequiredSignatures),
		},
	}, err)
}

func (m *Matrix) execute(st ledger.State, requestID, executor string) (MultiSigRequest, error) {
	const op = "multisig.execute"
	req, err := m.getRequest(st, op, requestID)
	if err != nil {
		return MultiSigRequest{}, err
	}
	if req.IsExecuted {
		return req, apperr.New(apperr.KindAlreadyExecuted, op, "request was already executed").With("requestId", requestID)
	}
	if executor != req.Requester {
		return req, apperr.New(apperr.KindAccessDenied, op, "only the requester may execute").
			With("requestId", requestID).With("principal", executor)
	}
	now := st.Timestamp()
	if now.After(req.Deadline) {
		return req, apperr.New(apperr.KindExpired, op, "deadline passed").With("requestId", requestID)
	}
	if !req.Approved() {
		return req, apperr.New(apperr.KindInsufficientApprovals, op,
			strconv.Itoa(len(req.Approvers))+" of "+strconv.Itoa(req.RequiredSignatures)+" approvals").With("requestId", requestID)
	}
	req.IsExecuted = true
	req.ExecutedAt = now
	req.ExecutedBy = executor
	return req, m.putRequest(st, req)
}

// Request returns a multi-sig request by id.
func (m *Matrix) Request(st ledger.State, requestID string) (MultiSigRequest, error) {
	return m.getRequest(st, "multisig.request", requestID)
}
