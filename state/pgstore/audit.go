// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package pgstore

import (
	"context"
	"fmt"

	"github.com/fieldward/fieldward/structs"
)

const auditLogCols = `id, company_id, user_id, action, entity, entity_id,
	detail, created_at`

func (s *PGStore) AppendAuditLog(ctx context.Context, log *structs.AuditLog) error {
	if log.ID == "" {
		return fmt.Errorf("missing audit log ID")
	}
	var detail []byte
	if log.Detail != nil {
		detail = mustJSON(log.Detail)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, company_id, user_id, action, entity,
			entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.CompanyID, log.UserID, log.Action, log.Entity,
		log.EntityID, detail, log.CreateTime)
	if err != nil {
		if uniqueViolation(err) {
			return structs.NewConflictError("audit log %s already recorded", log.ID)
		}
		return fmt.Errorf("audit log insert failed: %w", err)
	}
	return nil
}

func (s *PGStore) AuditLogsByCompany(ctx context.Context, companyID string, limit int) ([]*structs.AuditLog, error) {
	rows, err := selectContext[auditLogRow](ctx, s.db,
		`SELECT `+auditLogCols+` FROM audit_logs
		 WHERE company_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`, companyID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	out := make([]*structs.AuditLog, 0, len(rows))
	for i := range rows {
		log, err := rows[i].toStruct()
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, nil
}

const smsMessageCols = `id, company_id, direction, from_phone, to_phone,
	body, provider_id, customer_id, after_hours, created_at`

func (s *PGStore) AppendSMSMessage(ctx context.Context, msg *structs.SMSMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("missing SMS message ID")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sms_messages (id, company_id, direction, from_phone,
			to_phone, body, provider_id, customer_id, after_hours, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		msg.ID, msg.CompanyID, string(msg.Direction), msg.From, msg.To,
		msg.Body, msg.ProviderID, msg.CustomerID, msg.AfterHours, msg.CreateTime)
	if err != nil {
		return fmt.Errorf("sms message insert failed: %w", err)
	}
	return nil
}

func (s *PGStore) SMSMessagesByCompany(ctx context.Context, companyID string, limit int) ([]*structs.SMSMessage, error) {
	rows, err := selectContext[smsMessageRow](ctx, s.db,
		`SELECT `+smsMessageCols+` FROM sms_messages
		 WHERE company_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`, companyID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	out := make([]*structs.SMSMessage, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toStruct())
	}
	return out, nil
}
