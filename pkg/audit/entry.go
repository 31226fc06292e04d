package audit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Entry is one append-only audit record. Details carry identifiers and
// reasons only, never payload content or key material.
type Entry struct {
	ID             string            `json:"id"`
	Seq            uint64            `json:"seq"`
	Principal      string            `json:"principal"`
	Role           string            `json:"role,omitempty"`
	Action         string            `json:"action"`
	TargetResource string            `json:"targetResource"`
	Success        bool              `json:"success"`
	Timestamp      time.Time         `json:"timestamp"`
	Details        map[string]string `json:"details,omitempty"`
	PrevHash       string            `json:"prevHash"`
	Hash           string            `json:"hash"`
	MAC            string            `json:"mac"`
}

// chained is the part of an Entry covered by the hash chain.
type chained struct {
	ID             string            `json:"id"`
	Seq            uint64            `json:"seq"`
	Principal      string            `json:"principal"`
	Role           string            `json:"role,omitempty"`
	Action         string            `json:"action"`
	TargetResource string            `json:"targetResource"`
	Success        bool              `json:"success"`
	Timestamp      time.Time         `json:"timestamp"`
	Details        map[string]string `json:"details,omitempty"`
}

func (e Entry) chained() chained {
	return chained{
		ID:             e.ID,
		Seq:            e.Seq,
		Principal:      e.Principal,
		Role:           e.Role,
		Action:         e.Action,
		TargetResource: e.TargetResource,
		Success:        e.Success,
		Timestamp:      e.Timestamp.UTC(),
		Details:        e.Details,
	}
}

func (e Entry) MessageID() string {
	return e.Action
}

func (e Entry) Message() string {
	if e.Success {
		return fmt.Sprintf("%s performed %s on %s", e.Principal, e.Action, e.TargetResource)
	}
	msg := fmt.Sprintf("%s tried to perform %s on %s", e.Principal, e.Action, e.TargetResource)
	if reason := e.Details["reason"]; reason != "" {
		msg += ": " + reason
	}
	return msg
}

func (e Entry) Severity() Severity {
	if e.Success {
		return SeverityInfo
	}
	return SeverityWarning
}

func (e Entry) Facility() int {
	return FacilityAuthPriv
}

func (e Entry) StructuredData() map[string]map[string]string {
	sd := map[string]map[string]string{
		SDIDAuth: {
			"principal": e.Principal,
		},
		SDIDSubject: {
			"resource": e.TargetResource,
		},
		SDIDAction: {
			"operation": e.Action,
			"result":    result(e.Success),
		},
		SDIDIntegrity: {
			"id":   e.ID,
			"hash": e.Hash,
		},
	}
	if e.Role != "" {
		sd[SDIDAuth]["role"] = e.Role
	}

	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sd[SDIDSubject][strings.ReplaceAll(k, " ", "_")] = e.Details[k]
	}
	return sd
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
