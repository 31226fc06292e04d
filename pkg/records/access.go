package records

import (
	"context"
	"strconv"
	"time"

	"github.com/doodlesbykumbi/phivault/pkg/access"
	"github.com/doodlesbykumbi/phivault/pkg/ledger"
)

func (c *Contract) RegisterPrincipal(ctx context.Context, id string, roles []access.Role) (access.Principal, error) {
	var out access.Principal
	err := c.invoke(ctx, "access.register", func(st ledger.State) error {
		var err error
		if out, err = c.matrix.RegisterPrincipal(st, id, roles); err != nil {
			return err
		}
		fields := map[string]string{"principalId": id}
		if role, ok := out.PrimaryRole(); ok {
			fields["primaryRole"] = role.String()
		}
		return emit(st, "PrincipalRegistered", fields)
	})
	return out, err
}

// SetPermissionOverride grants or withdraws one permission for user. Only
// admins may change overrides.
func (c *Contract) SetPermissionOverride(ctx context.Context, admin, user string, perm access.Permission, class access.ResourceClass, allow bool) error {
	return c.invoke(ctx, "access.override", func(st ledger.State) error {
		if err := c.matrix.SetOverride(st, admin, user, perm, class, allow); err != nil {
			return err
		}
		return emit(st, "PermissionOverrideChanged", map[string]string{
			"adminId":       admin,
			"userId":        user,
			"permission":    perm.String(),
			"resourceClass": class.String(),
			"allow":         strconv.FormatBool(allow),
		})
	})
}

func (c *Contract) RequestApproval(ctx context.Context, requester string, role access.Role, operationHash string, deadline time.Time) (access.MultiSigRequest, error) {
	var out access.MultiSigRequest
	err := c.invoke(ctx, "access.request_approval", func(st ledger.State) error {
		var err error
		if out, err = c.matrix.RequestApproval(st, requester, role, operationHash, deadline); err != nil {
			return err
		}
		return emit(st, "ApprovalRequested", map[string]string{
			"requestId":          out.RequestID,
			"requesterId":        requester,
			"requiredSignatures": strconv.Itoa(out.RequiredSignatures),
		})
	})
	return out, err
}

func (c *Contract) ApproveRequest(ctx context.Context, requestID, approver string) (access.MultiSigRequest, error) {
	var out access.MultiSigRequest
	err := c.invoke(ctx, "access.approve", func(st ledger.State) error {
		var err error
		if out, err = c.matrix.Approve(st, requestID, approver); err != nil {
			return err
		}
		return emit(st, "RequestApproved", map[string]string{
			"requestId":  requestID,
			"approverId": approver,
			"approvals":  strconv.Itoa(len(out.Approvers)),
		})
	})
	return out, err
}

func (c *Contract) ExecuteRequest(ctx context.Context, requestID, executor string) (access.MultiSigRequest, error) {
	var out access.MultiSigRequest
	err := c.invoke(ctx, "access.execute", func(st ledger.State) error {
		var err error
		if out, err = c.matrix.Execute(st, requestID, executor); err != nil {
			return err
		}
		return emit(st, "RequestExecuted", map[string]string{
			"requestId":  requestID,
			"executorId": executor,
		})
	})
	return out, err
}
