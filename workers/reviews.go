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
	// DefaultReviewDelay is how long after completion the review request
	// goes out.
	DefaultReviewDelay = 2 * time.Hour

	reviewBatchSize       = 25
	defaultReviewInterval = time.Minute
)

// ReviewStore is the persistence surface both review workers share.
type ReviewStore interface {
	CompletionsNeedingReview(ctx context.Context, limit int) ([]*structs.JobCompletion, error)
	JobByID(ctx context.Context, id string) (*structs.Job, error)
	CustomerByID(ctx context.Context, id string) (*structs.Customer, error)
	UpsertReviewRequest(ctx context.Context, r *structs.ReviewRequest) error
	DueReviewRequests(ctx context.Context, now time.Time, limit int) ([]*structs.ReviewRequest, error)
}

// ReviewSender delivers one review request over its channel.
type ReviewSender interface {
	SendReview(ctx context.Context, req *structs.ReviewRequest) error
}

// LogReviewSender logs deliveries, standing in until an SMS or email
// transport is configured.
type LogReviewSender struct {
	Logger hclog.Logger
}

func (s *LogReviewSender) SendReview(_ context.Context, req *structs.ReviewRequest) error {
	s.Logger.Info("review request delivery", "request_id", req.ID,
		"job_id", req.JobID, "channel", req.Channel)
	return nil
}

// ReviewScheduler creates pending review requests for fresh completions.
// The channel follows the customer's contact info: phone gets SMS,
// otherwise email.
type ReviewScheduler struct {
	store    ReviewStore
	logger   hclog.Logger
	interval time.Duration
	delay    time.Duration
	now      func() time.Time
}

func NewReviewScheduler(store ReviewStore, logger hclog.Logger, interval time.Duration) *ReviewScheduler {
	if interval <= 0 {
		interval = defaultReviewInterval
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ReviewScheduler{
		store:    store,
		logger:   logger.Named("review_scheduler"),
		interval: interval,
		delay:    DefaultReviewDelay,
		now:      time.Now,
	}
}

func (w *ReviewScheduler) Name() string            { return "review_scheduler" }
func (w *ReviewScheduler) Interval() time.Duration { return w.interval }

func (w *ReviewScheduler) Tick(ctx context.Context) error {
	completions, err := w.store.CompletionsNeedingReview(ctx, reviewBatchSize)
	if err != nil {
		return err
	}

	now := w.now()
	var mErr multierror.Error
	for _, completion := range completions {
		job, err := w.store.JobByID(ctx, completion.JobID)
		if err != nil {
			mErr.Errors = append(mErr.Errors, err)
			continue
		}
		if job == nil || job.CustomerID == "" {
			continue
		}
		customer, err := w.store.CustomerByID(ctx, job.CustomerID)
		if err != nil {
			mErr.Errors = append(mErr.Errors, err)
			continue
		}
		if customer == nil {
			continue
		}

		channel := structs.ReviewChannelEmail
		if customer.Phone != "" {
			channel = structs.ReviewChannelSMS
		}
		req := &structs.ReviewRequest{
			ID:           uuid.Generate(),
			CompanyID:    completion.CompanyID,
			JobID:        completion.JobID,
			CustomerID:   customer.ID,
			Channel:      channel,
			Status:       structs.ReviewPending,
			ScheduledFor: completion.CompletedAt.Add(w.delay),
			CreateTime:   now,
			ModifyTime:   now,
		}
		if err := w.store.UpsertReviewRequest(ctx, req); err != nil {
			mErr.Errors = append(mErr.Errors, err)
			continue
		}
		w.logger.Debug("review request scheduled", "job_id", req.JobID,
			"channel", channel, "at", req.ScheduledFor)
	}
	return mErr.ErrorOrNil()
}

// ReviewDispatcher sends due review requests and records the outcome:
// sent on success, failed with a note on delivery error.
type ReviewDispatcher struct {
	store    ReviewStore
	sender   ReviewSender
	logger   hclog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewReviewDispatcher(store ReviewStore, sender ReviewSender, logger hclog.Logger, interval time.Duration) *ReviewDispatcher {
	if interval <= 0 {
		interval = defaultReviewInterval
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("review_dispatcher")
	if sender == nil {
		sender = &LogReviewSender{Logger: logger}
	}
	return &ReviewDispatcher{
		store:    store,
		sender:   sender,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

func (w *ReviewDispatcher) Name() string            { return "review_dispatcher" }
func (w *ReviewDispatcher) Interval() time.Duration { return w.interval }

func (w *ReviewDispatcher) Tick(ctx context.Context) error {
	due, err := w.store.DueReviewRequests(ctx, w.now(), reviewBatchSize)
	if err != nil {
		return err
	}

	var mErr multierror.Error
	for _, req := range due {
		req = req.Copy()
		now := w.now()
		if err := w.sender.SendReview(ctx, req); err != nil {
			req.Status = structs.ReviewFailed
			req.FailureNote = err.Error()
			w.logger.Warn("review request failed", "request_id", req.ID, "error", err)
		} else {
			req.Status = structs.ReviewSent
			req.SentAt = &now
		}
		req.ModifyTime = now
		if err := w.store.UpsertReviewRequest(ctx, req); err != nil {
			mErr.Errors = append(mErr.Errors, err)
		}
	}
	return mErr.ErrorOrNil()
}
