// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"context"
	"fmt"

	"github.com/fieldward/fieldward/structs"
)

func (s *StateStore) AppendAuditLog(_ context.Context, log *structs.AuditLog) error {
	if log.ID == "" {
		return fmt.Errorf("missing audit log ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(TableAuditLogs, indexID, log.ID)
	if err != nil {
		return fmt.Errorf("audit log lookup failed: %w", err)
	}
	if existing != nil {
		return structs.NewConflictError("audit log %s already recorded", log.ID)
	}

	if err := txn.Insert(TableAuditLogs, log.Copy()); err != nil {
		return fmt.Errorf("audit log insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) AuditLogsByCompany(_ context.Context, companyID string, limit int) ([]*structs.AuditLog, error) {
	txn := s.db.Txn(false)
	out, err := list[*structs.AuditLog](txn, TableAuditLogs, indexCompany, companyID)
	if err != nil {
		return nil, err
	}
	sortStable(out, func(a, b *structs.AuditLog) bool { return a.CreateTime.After(b.CreateTime) })
	return capLimit(out, limit), nil
}

func (s *StateStore) AppendSMSMessage(_ context.Context, msg *structs.SMSMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("missing SMS message ID")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	cp := *msg
	if err := txn.Insert(TableSMSMessages, &cp); err != nil {
		return fmt.Errorf("sms message insert failed: %w", err)
	}
	txn.Commit()
	return nil
}

func (s *StateStore) SMSMessagesByCompany(_ context.Context, companyID string, limit int) ([]*structs.SMSMessage, error) {
	txn := s.db.Txn(false)
	iter, err := txn.Get(TableSMSMessages, indexCompany, companyID)
	if err != nil {
		return nil, fmt.Errorf("sms message lookup failed: %w", err)
	}
	var out []*structs.SMSMessage
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		cp := *raw.(*structs.SMSMessage)
		out = append(out, &cp)
	}
	sortStable(out, func(a, b *structs.SMSMessage) bool { return a.CreateTime.After(b.CreateTime) })
	return capLimit(out, limit), nil
}
