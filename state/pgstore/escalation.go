// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package pgstore

import (
	"context"
	"fmt"

	"github.com/fieldward/fieldward/structs"
)

const escalationPolicyCols = `id, company_id, name, trigger_conditions, steps,
	is_active, created_at, updated_at`

func (s *PGStore) UpsertEscalationPolicy(ctx context.Context, policy *structs.EscalationPolicy) error {
	if policy.ID == "" {
		return fmt.Errorf("missing policy ID")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalation_policies (id, company_id, name,
			trigger_conditions, steps, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			trigger_conditions = EXCLUDED.trigger_conditions,
			steps = EXCLUDED.steps,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		policy.ID, policy.CompanyID, policy.Name,
		mustJSON(policy.TriggerConditions), mustJSON(policy.Steps),
		policy.IsActive, policy.CreateTime, policy.ModifyTime)
	if err != nil {
		return fmt.Errorf("escalation policy upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) EscalationPolicyByID(ctx context.Context, id string) (*structs.EscalationPolicy, error) {
	row, err := getContext[escalationPolicyRow](ctx, s.db,
		`SELECT `+escalationPolicyCols+` FROM escalation_policies WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct()
}

// EscalationPoliciesByCompany returns active policies in stable fetch
// order; the trigger evaluation takes the first match, so ordering is part
// of the contract.
func (s *PGStore) EscalationPoliciesByCompany(ctx context.Context, companyID string) ([]*structs.EscalationPolicy, error) {
	rows, err := selectContext[escalationPolicyRow](ctx, s.db,
		`SELECT `+escalationPolicyCols+` FROM escalation_policies
		 WHERE company_id = $1 AND is_active
		 ORDER BY created_at, id`, companyID)
	if err != nil {
		return nil, err
	}
	out := make([]*structs.EscalationPolicy, 0, len(rows))
	for i := range rows {
		policy, err := rows[i].toStruct()
		if err != nil {
			return nil, err
		}
		out = append(out, policy)
	}
	return out, nil
}

const escalationEventCols = `id, company_id, policy_id, job_id, current_step,
	triggered_at, notification_log, timed_out, resolved_at, resolved_by,
	resolution_notes, created_at, updated_at`

func (s *PGStore) UpsertEscalationEvent(ctx context.Context, event *structs.EscalationEvent) error {
	if event.ID == "" {
		return fmt.Errorf("missing event ID")
	}
	var log []byte
	if event.NotificationLog != nil {
		log = mustJSON(event.NotificationLog)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalation_events (id, company_id, policy_id, job_id,
			current_step, triggered_at, notification_log, timed_out,
			resolved_at, resolved_by, resolution_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, '[]'::jsonb), $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			notification_log = EXCLUDED.notification_log,
			timed_out = EXCLUDED.timed_out,
			resolved_at = EXCLUDED.resolved_at,
			resolved_by = EXCLUDED.resolved_by,
			resolution_notes = EXCLUDED.resolution_notes,
			updated_at = EXCLUDED.updated_at`,
		event.ID, event.CompanyID, event.PolicyID, event.JobID,
		event.CurrentStep, event.TriggeredAt, log, event.TimedOut,
		event.ResolvedAt, event.ResolvedBy, event.ResolutionNotes,
		event.CreateTime, event.ModifyTime)
	if err != nil {
		return fmt.Errorf("escalation event upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) EscalationEventByID(ctx context.Context, id string) (*structs.EscalationEvent, error) {
	row, err := getContext[escalationEventRow](ctx, s.db,
		`SELECT `+escalationEventCols+` FROM escalation_events WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct()
}

// ActiveEscalationByJob returns the job's non-terminal event, if any. At
// most one exists at a time; the trigger operation refuses to stack them.
func (s *PGStore) ActiveEscalationByJob(ctx context.Context, jobID string) (*structs.EscalationEvent, error) {
	row, err := getContext[escalationEventRow](ctx, s.db,
		`SELECT `+escalationEventCols+` FROM escalation_events
		 WHERE job_id = $1 AND NOT timed_out AND resolved_at IS NULL
		 ORDER BY triggered_at, id
		 LIMIT 1`, jobID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct()
}

func (s *PGStore) ActiveEscalations(ctx context.Context) ([]*structs.EscalationEvent, error) {
	rows, err := selectContext[escalationEventRow](ctx, s.db,
		`SELECT `+escalationEventCols+` FROM escalation_events
		 WHERE NOT timed_out AND resolved_at IS NULL
		 ORDER BY triggered_at, id`)
	if err != nil {
		return nil, err
	}
	return escalationEventRowsToStructs(rows)
}

func (s *PGStore) EscalationEventsByCompany(ctx context.Context, companyID string) ([]*structs.EscalationEvent, error) {
	rows, err := selectContext[escalationEventRow](ctx, s.db,
		`SELECT `+escalationEventCols+` FROM escalation_events
		 WHERE company_id = $1
		 ORDER BY triggered_at DESC, id`, companyID)
	if err != nil {
		return nil, err
	}
	return escalationEventRowsToStructs(rows)
}

func escalationEventRowsToStructs(rows []escalationEventRow) ([]*structs.EscalationEvent, error) {
	out := make([]*structs.EscalationEvent, 0, len(rows))
	for i := range rows {
		event, err := rows[i].toStruct()
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}

const afterHoursRuleCols = `id, company_id, branch_id, weekday_start,
	weekday_end, weekend_all_day, routing_strategy, on_call_employee_ids,
	surcharge_flat, surcharge_percent, auto_accept, notify_manager,
	manager_phone, is_active, created_at, updated_at`

func (s *PGStore) UpsertAfterHoursRule(ctx context.Context, rule *structs.AfterHoursRule) error {
	if rule.ID == "" {
		return fmt.Errorf("missing rule ID")
	}
	var onCall []byte
	if rule.OnCallEmployeeIDs != nil {
		onCall = mustJSON(rule.OnCallEmployeeIDs)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO after_hours_rules (id, company_id, branch_id,
			weekday_start, weekday_end, weekend_all_day, routing_strategy,
			on_call_employee_ids, surcharge_flat, surcharge_percent,
			auto_accept, notify_manager, manager_phone, is_active,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			branch_id = EXCLUDED.branch_id,
			weekday_start = EXCLUDED.weekday_start,
			weekday_end = EXCLUDED.weekday_end,
			weekend_all_day = EXCLUDED.weekend_all_day,
			routing_strategy = EXCLUDED.routing_strategy,
			on_call_employee_ids = EXCLUDED.on_call_employee_ids,
			surcharge_flat = EXCLUDED.surcharge_flat,
			surcharge_percent = EXCLUDED.surcharge_percent,
			auto_accept = EXCLUDED.auto_accept,
			notify_manager = EXCLUDED.notify_manager,
			manager_phone = EXCLUDED.manager_phone,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		rule.ID, rule.CompanyID, rule.BranchID, rule.WeekdayStart,
		rule.WeekdayEnd, rule.WeekendAllDay, string(rule.RoutingStrategy),
		onCall, rule.SurchargeFlat, rule.SurchargePercent, rule.AutoAccept,
		rule.NotifyManager, rule.ManagerPhone, rule.IsActive,
		rule.CreateTime, rule.ModifyTime)
	if err != nil {
		return fmt.Errorf("after-hours rule upsert failed: %w", err)
	}
	return nil
}

func (s *PGStore) AfterHoursRuleByID(ctx context.Context, id string) (*structs.AfterHoursRule, error) {
	row, err := getContext[afterHoursRuleRow](ctx, s.db,
		`SELECT `+afterHoursRuleCols+` FROM after_hours_rules WHERE id = $1`, id)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toStruct()
}

// AfterHoursRulesByCompany returns active rules, optionally narrowed to a
// branch. Branch-specific rules sort ahead of company-wide ones so the
// first match is the most specific.
func (s *PGStore) AfterHoursRulesByCompany(ctx context.Context, companyID, branchID string) ([]*structs.AfterHoursRule, error) {
	rows, err := selectContext[afterHoursRuleRow](ctx, s.db,
		`SELECT `+afterHoursRuleCols+` FROM after_hours_rules
		 WHERE company_id = $1 AND is_active
		   AND ($2 = '' OR branch_id = '' OR branch_id = $2)
		 ORDER BY (branch_id <> '') DESC, created_at, id`,
		companyID, branchID)
	if err != nil {
		return nil, err
	}
	out := make([]*structs.AfterHoursRule, 0, len(rows))
	for i := range rows {
		rule, err := rows[i].toStruct()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}
