// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package workers

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/structs"
)

const (
	// DefaultReminderWindow is how far ahead expiring agreements are
	// flagged for a renewal reminder.
	DefaultReminderWindow = 14 * 24 * time.Hour

	defaultRenewalInterval = time.Hour
)

// AgreementStore is the queue surface the renewal processor polls.
type AgreementStore interface {
	AgreementsExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]*structs.ServiceAgreement, error)
	MarkRenewalReminded(ctx context.Context, agreementID string, now time.Time) error
	ExpiredAgreements(ctx context.Context, now time.Time) ([]*structs.ServiceAgreement, error)
	ExpireAgreement(ctx context.Context, agreementID string, replacement *structs.ServiceAgreement, trigger *structs.BillingTrigger, now time.Time) error
}

// RenewalWorker handles membership agreements in two passes per tick:
// remind on upcoming expiries, then expire lapsed terms. Auto-renew plans
// get a successor agreement plus a pending billing trigger; everything else
// just expires.
type RenewalWorker struct {
	store    AgreementStore
	logger   hclog.Logger
	interval time.Duration
	window   time.Duration
	now      func() time.Time
}

func NewRenewalWorker(store AgreementStore, logger hclog.Logger, interval time.Duration) *RenewalWorker {
	if interval <= 0 {
		interval = defaultRenewalInterval
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RenewalWorker{
		store:    store,
		logger:   logger.Named("renewals"),
		interval: interval,
		window:   DefaultReminderWindow,
		now:      time.Now,
	}
}

func (w *RenewalWorker) Name() string            { return "renewals" }
func (w *RenewalWorker) Interval() time.Duration { return w.interval }

func (w *RenewalWorker) Tick(ctx context.Context) error {
	now := w.now()
	var mErr multierror.Error

	expiring, err := w.store.AgreementsExpiringWithin(ctx, now, w.window)
	if err != nil {
		return err
	}
	for _, a := range expiring {
		if err := w.store.MarkRenewalReminded(ctx, a.ID, now); err != nil {
			mErr.Errors = append(mErr.Errors, err)
			continue
		}
		w.logger.Info("renewal reminder queued", "agreement_id", a.ID,
			"customer_id", a.CustomerID, "ends", a.EndDate)
	}

	expired, err := w.store.ExpiredAgreements(ctx, now)
	if err != nil {
		mErr.Errors = append(mErr.Errors, err)
		return mErr.ErrorOrNil()
	}
	for _, a := range expired {
		var replacement *structs.ServiceAgreement
		var trigger *structs.BillingTrigger
		if a.AutoRenew {
			replacement = a.Renew(now)
			replacement.ID = uuid.Generate()
			trigger = &structs.BillingTrigger{
				ID:          uuid.Generate(),
				CompanyID:   a.CompanyID,
				AgreementID: replacement.ID,
				CustomerID:  a.CustomerID,
				Amount:      a.BillingAmount,
				Reason:      "membership renewal",
				Status:      structs.BillingPending,
				CreateTime:  now,
				ModifyTime:  now,
			}
		}
		if err := w.store.ExpireAgreement(ctx, a.ID, replacement, trigger, now); err != nil {
			mErr.Errors = append(mErr.Errors, err)
			continue
		}
		w.logger.Info("agreement expired", "agreement_id", a.ID,
			"auto_renew", a.AutoRenew)
	}
	return mErr.ErrorOrNil()
}
