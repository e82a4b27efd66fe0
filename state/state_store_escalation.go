// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"context"
	"fmt"

	"github.com/fieldward/fieldward/structs"
)

func (s *StateStore) UpsertEscalationPolicy(_ context.Context, policy *structs.EscalationPolicy) error {
	if policy.ID == "" {
		return fmt.Errorf("missing policy ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(TableEscalationPolicies, policy.Copy()); err != nil {
		return fmt.Errorf("escalation policy insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) EscalationPolicyByID(_ context.Context, id string) (*structs.EscalationPolicy, error) {
	txn := s.db.Txn(false)
	return first[*structs.EscalationPolicy](txn, TableEscalationPolicies, indexID, id)
}

// EscalationPoliciesByCompany returns active policies in stable fetch
// order; the trigger evaluation takes the first match, so ordering is part
// of the contract.
func (s *StateStore) EscalationPoliciesByCompany(_ context.Context, companyID string) ([]*structs.EscalationPolicy, error) {
	txn := s.db.Txn(false)
	out, err := filtered(txn, TableEscalationPolicies, indexCompany,
		func(p *structs.EscalationPolicy) bool { return p.IsActive }, companyID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.EscalationPolicy) bool {
		if !a.CreateTime.Equal(b.CreateTime) {
			return a.CreateTime.Before(b.CreateTime)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *StateStore) UpsertEscalationEvent(_ context.Context, event *structs.EscalationEvent) error {
	if event.ID == "" {
		return fmt.Errorf("missing event ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(TableEscalationEvents, event.Copy()); err != nil {
		return fmt.Errorf("escalation event insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) EscalationEventByID(_ context.Context, id string) (*structs.EscalationEvent, error) {
	txn := s.db.Txn(false)
	return first[*structs.EscalationEvent](txn, TableEscalationEvents, indexID, id)
}

// ActiveEscalationByJob returns the job's non-terminal event, if any. At
// most one exists at a time; the trigger operation refuses to stack them.
func (s *StateStore) ActiveEscalationByJob(_ context.Context, jobID string) (*structs.EscalationEvent, error) {
	txn := s.db.Txn(false)
	out, err := filtered(txn, TableEscalationEvents, indexJob,
		func(e *structs.EscalationEvent) bool { return !e.Terminal() }, jobID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	sortStable(out, func(a, b *structs.EscalationEvent) bool { return a.TriggeredAt.Before(b.TriggeredAt) })
	return out[0], nil
}

func (s *StateStore) ActiveEscalations(_ context.Context) ([]*structs.EscalationEvent, error) {
	txn := s.db.Txn(false)
	out, err := filtered(txn, TableEscalationEvents, indexID,
		func(e *structs.EscalationEvent) bool { return !e.Terminal() })
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.EscalationEvent) bool { return a.TriggeredAt.Before(b.TriggeredAt) })
	return out, nil
}

func (s *StateStore) EscalationEventsByCompany(_ context.Context, companyID string) ([]*structs.EscalationEvent, error) {
	txn := s.db.Txn(false)
	out, err := list[*structs.EscalationEvent](txn, TableEscalationEvents, indexCompany, companyID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.EscalationEvent) bool { return a.TriggeredAt.After(b.TriggeredAt) })
	return out, nil
}

func (s *StateStore) UpsertAfterHoursRule(_ context.Context, rule *structs.AfterHoursRule) error {
	if rule.ID == "" {
		return fmt.Errorf("missing rule ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(TableAfterHoursRules, rule.Copy()); err != nil {
		return fmt.Errorf("after-hours rule insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) AfterHoursRuleByID(_ context.Context, id string) (*structs.AfterHoursRule, error) {
	txn := s.db.Txn(false)
	return first[*structs.AfterHoursRule](txn, TableAfterHoursRules, indexID, id)
}

// AfterHoursRulesByCompany returns active rules, optionally narrowed to a
// branch. Branch-specific rules sort ahead of company-wide ones so the
// first match is the most specific.
func (s *StateStore) AfterHoursRulesByCompany(_ context.Context, companyID, branchID string) ([]*structs.AfterHoursRule, error) {
	txn := s.db.Txn(false)
	out, err := filtered(txn, TableAfterHoursRules, indexCompany,
		func(r *structs.AfterHoursRule) bool {
			if !r.IsActive {
				return false
			}
			if branchID != "" && r.BranchID != "" && r.BranchID != branchID {
				return false
			}
			return true
		}, companyID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.AfterHoursRule) bool {
		if (a.BranchID != "") != (b.BranchID != "") {
			return a.BranchID != ""
		}
		if !a.CreateTime.Equal(b.CreateTime) {
			return a.CreateTime.Before(b.CreateTime)
		}
		return a.ID < b.ID
	})
	return out, nil
}
