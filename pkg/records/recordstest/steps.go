// Package recordstest holds the godog step definitions shared by the
// in-memory feature suite and the PostgreSQL integration suite.
package recordstest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/doodlesbykumbi/phivault/pkg/access"
	"github.com/doodlesbykumbi/phivault/pkg/apperr"
	"github.com/doodlesbykumbi/phivault/pkg/consent"
	"github.com/doodlesbykumbi/phivault/pkg/hashing"
	"github.com/doodlesbykumbi/phivault/pkg/ledger/ledgertest"
	"github.com/doodlesbykumbi/phivault/pkg/records"
)

// Factory builds a contract over an empty ledger that reads time from now.
type Factory func(ctx context.Context, now func() time.Time) (*records.Contract, error)

// Steps holds state shared between step definitions of one scenario.
type Steps struct {
	factory Factory

	ctx      context.Context
	clock    *ledgertest.Clock
	contract *records.Contract

	err      error
	data     json.RawMessage
	requests map[string]access.MultiSigRequest

	leaves []any
	tree   *hashing.MerkleTree
}

func NewSteps(factory Factory) *Steps {
	return &Steps{factory: factory}
}

// Register registers all step definitions and resets state before each
// scenario.
func (s *Steps) Register(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		s.ctx = ctx
		s.clock = ledgertest.NewClock(ledgertest.Epoch)
		s.err = nil
		s.data = nil
		s.requests = map[string]access.MultiSigRequest{}
		s.leaves = nil
		s.tree = nil
		c, err := s.factory(ctx, s.clock.Now)
		s.contract = c
		return ctx, err
	})

	// Principals and time
	sc.Step(`^principal "([^"]*)" is registered as ([a-z]+)$`, s.principalIsRegistered)
	sc.Step(`^(\d+) seconds pass$`, s.secondsPass)

	// Consent
	sc.Step(`^patient "([^"]*)" grants "([^"]*)" consent for ([A-Z_]+) lasting (\d+) seconds$`, s.patientGrantsConsent)
	sc.Step(`^"([^"]*)" should have access to ([A-Z_]+) data of "([^"]*)"$`, s.shouldHaveAccess)
	sc.Step(`^"([^"]*)" should not have access to ([A-Z_]+) data of "([^"]*)"$`, s.shouldNotHaveAccess)
	sc.Step(`^the expired consent sweep runs$`, s.theSweepRuns)

	// Records
	sc.Step(`^provider "([^"]*)" stores record "([^"]*)" for patient "([^"]*)" with payload:$`, s.providerStoresRecord)
	sc.Step(`^"([^"]*)" retrieves record "([^"]*)"$`, s.retrievesRecord)
	sc.Step(`^the retrieved data should equal:$`, s.theRetrievedDataShouldEqual)

	// Merkle proofs
	sc.Step(`^a Merkle tree built from leaves "([^"]*)"$`, s.aMerkleTreeBuiltFrom)
	sc.Step(`^the proof for leaf (\d+) should verify$`, s.theProofShouldVerify)
	sc.Step(`^the proof for leaf (\d+) should not verify for value "([^"]*)"$`, s.theProofShouldNotVerifyFor)

	// Multi-sig
	sc.Step(`^"([^"]*)" opens approval request "([^"]*)" as ([a-z]+)$`, s.opensApprovalRequest)
	sc.Step(`^"([^"]*)" approves request "([^"]*)"$`, s.approvesRequest)
	sc.Step(`^"([^"]*)" executes request "([^"]*)"$`, s.executesRequest)

	// Outcomes
	sc.Step(`^the request should succeed$`, s.theRequestShouldSucceed)
	sc.Step(`^the request should fail with ([A-Za-z]+)$`, s.theRequestShouldFailWith)
}

func (s *Steps) principalIsRegistered(id, roleName string) error {
	role, err := access.RoleString(roleName)
	if err != nil {
		return err
	}
	_, err = s.contract.RegisterPrincipal(s.ctx, id, []access.Role{role})
	return err
}

func (s *Steps) secondsPass(n int) error {
	s.clock.Advance(time.Duration(n) * time.Second)
	return nil
}

func (s *Steps) patientGrantsConsent(patient, grantee, categoryName string, seconds int) error {
	category, err := consent.CategoryString(categoryName)
	if err != nil {
		return err
	}
	_, err = s.contract.GrantConsent(s.ctx, patient, grantee, category, time.Duration(seconds)*time.Second, "treatment", false)
	return err
}

func (s *Steps) checkAccess(accessor, categoryName, patient string, want bool) error {
	category, err := consent.CategoryString(categoryName)
	if err != nil {
		return err
	}
	allowed, err := s.contract.HasDataAccess(s.ctx, patient, accessor, category)
	if err != nil {
		return err
	}
	if allowed != want {
		return fmt.Errorf("expected access %t for %s to %s data of %s, got %t", want, accessor, categoryName, patient, allowed)
	}
	return nil
}

func (s *Steps) shouldHaveAccess(accessor, category, patient string) error {
	return s.checkAccess(accessor, category, patient, true)
}

func (s *Steps) shouldNotHaveAccess(accessor, category, patient string) error {
	return s.checkAccess(accessor, category, patient, false)
}

func (s *Steps) theSweepRuns() error {
	_, err := s.contract.Maintain(s.ctx, "maintenance", 0)
	return err
}

func (s *Steps) providerStoresRecord(provider, recordID, patient string, payload *godog.DocString) error {
	_, err := s.contract.StoreProtectedMedicalData(s.ctx, recordID, []byte(payload.Content), provider, patient)
	return err
}

// retrievesRecord asks for a grant first, as a client would. Grant failures
// are kept as the request outcome.
func (s *Steps) retrievesRecord(requester, recordID string) error {
	s.data = nil
	grant, err := s.contract.IssueAccessToken(s.ctx, recordID, requester)
	if err != nil {
		s.err = err
		return nil
	}
	got, err := s.contract.RetrieveProtectedMedicalData(s.ctx, recordID, requester, grant.Token)
	s.err = err
	if err == nil {
		s.data = got.Data
	}
	return nil
}

func (s *Steps) theRetrievedDataShouldEqual(expected *godog.DocString) error {
	if s.err != nil {
		return fmt.Errorf("retrieval failed: %w", s.err)
	}
	want, err := hashing.Canonicalize(json.RawMessage(expected.Content))
	if err != nil {
		return err
	}
	got, err := hashing.Canonicalize(s.data)
	if err != nil {
		return err
	}
	if !bytes.Equal(want, got) {
		return fmt.Errorf("expected %s, got %s", want, got)
	}
	return nil
}

func (s *Steps) aMerkleTreeBuiltFrom(list string) error {
	s.leaves = nil
	for _, v := range strings.Split(list, ",") {
		s.leaves = append(s.leaves, strings.TrimSpace(v))
	}
	tree, err := hashing.BuildMerkleTree(s.leaves)
	s.tree = tree
	return err
}

func (s *Steps) proof(index int) ([]hashing.ProofStep, error) {
	if s.tree == nil {
		return nil, fmt.Errorf("no Merkle tree built")
	}
	return hashing.GenerateProof(s.tree, index)
}

func (s *Steps) theProofShouldVerify(index int) error {
	proof, err := s.proof(index)
	if err != nil {
		return err
	}
	if !hashing.VerifyProof(s.leaves[index], proof, s.tree.Root()) {
		return fmt.Errorf("proof for leaf %d did not verify", index)
	}
	return nil
}

func (s *Steps) theProofShouldNotVerifyFor(index int, value string) error {
	proof, err := s.proof(index)
	if err != nil {
		return err
	}
	if hashing.VerifyProof(value, proof, s.tree.Root()) {
		return fmt.Errorf("proof for leaf %d verified for tampered value %q", index, value)
	}
	return nil
}

func (s *Steps) opensApprovalRequest(requester, name, roleName string) error {
	role, err := access.RoleString(roleName)
	if err != nil {
		return err
	}
	req, err := s.contract.RequestApproval(s.ctx, requester, role, "op:"+name, s.clock.Now().Add(time.Hour))
	if err != nil {
		return err
	}
	s.requests[name] = req
	return nil
}

func (s *Steps) request(name string) (access.MultiSigRequest, error) {
	req, ok := s.requests[name]
	if !ok {
		return req, fmt.Errorf("unknown request %q", name)
	}
	return req, nil
}

func (s *Steps) approvesRequest(approver, name string) error {
	req, err := s.request(name)
	if err != nil {
		return err
	}
	_, s.err = s.contract.ApproveRequest(s.ctx, req.RequestID, approver)
	return nil
}

func (s *Steps) executesRequest(executor, name string) error {
	req, err := s.request(name)
	if err != nil {
		return err
	}
	_, s.err = s.contract.ExecuteRequest(s.ctx, req.RequestID, executor)
	return nil
}

func (s *Steps) theRequestShouldSucceed() error {
	if s.err != nil {
		return fmt.Errorf("expected success, got %w", s.err)
	}
	return nil
}

func (s *Steps) theRequestShouldFailWith(kindName string) error {
	kind, err := apperr.KindString(kindName)
	if err != nil {
		return err
	}
	if s.err == nil {
		return fmt.Errorf("expected %s, got success", kindName)
	}
	if !apperr.Is(s.err, kind) {
		return fmt.Errorf("expected %s, got %w", kindName, s.err)
	}
	return nil
}
