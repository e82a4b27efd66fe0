// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"time"

	"github.com/fieldward/fieldward/helper/pointer"
)

// TimeTrackingEvent is one of the six single-timestamp ledger events,
// named as they appear in the PATCH route suffix.
type TimeTrackingEvent string

const (
	TimeTrackingDispatched  TimeTrackingEvent = "dispatched"
	TimeTrackingDeparted    TimeTrackingEvent = "departed"
	TimeTrackingArrived     TimeTrackingEvent = "arrived"
	TimeTrackingWorkStarted TimeTrackingEvent = "work-started"
	TimeTrackingWorkEnded   TimeTrackingEvent = "work-ended"
	TimeTrackingDepartedJob TimeTrackingEvent = "departed-job"
)

// timeTrackingOrder lists events in ledger order. Order indexes into the
// slots of a JobTimeTracking row.
var timeTrackingOrder = []TimeTrackingEvent{
	TimeTrackingDispatched,
	TimeTrackingDeparted,
	TimeTrackingArrived,
	TimeTrackingWorkStarted,
	TimeTrackingWorkEnded,
	TimeTrackingDepartedJob,
}

func (e TimeTrackingEvent) Valid() bool {
	return e.Order() >= 0
}

// Order returns the event's position in the ledger sequence, or -1 for an
// unknown event.
func (e TimeTrackingEvent) Order() int {
	for i, ev := range timeTrackingOrder {
		if ev == e {
			return i
		}
	}
	return -1
}

// SyncsCompletion reports whether recording this event re-derives the
// ledger metrics onto the job's completion row.
func (e TimeTrackingEvent) SyncsCompletion() bool {
	return e == TimeTrackingWorkEnded || e == TimeTrackingDepartedJob
}

// JobTimeTracking is the single ledger row for one job. Set timestamps are
// weakly monotonic in field order; unset fields are gaps readers tolerate.
type JobTimeTracking struct {
	JobID     string `json:"jobId"`
	CompanyID string `json:"companyId"`

	DispatchedAt  *time.Time `json:"dispatchedAt,omitempty"`
	DepartedAt    *time.Time `json:"departedAt,omitempty"`
	ArrivedAt     *time.Time `json:"arrivedAt,omitempty"`
	WorkStartedAt *time.Time `json:"workStartedAt,omitempty"`
	WorkEndedAt   *time.Time `json:"workEndedAt,omitempty"`
	DepartedJobAt *time.Time `json:"departedJobAt,omitempty"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (t *JobTimeTracking) Copy() *JobTimeTracking {
	if t == nil {
		return nil
	}
	nt := *t
	nt.DispatchedAt = pointer.Copy(t.DispatchedAt)
	nt.DepartedAt = pointer.Copy(t.DepartedAt)
	nt.ArrivedAt = pointer.Copy(t.ArrivedAt)
	nt.WorkStartedAt = pointer.Copy(t.WorkStartedAt)
	nt.WorkEndedAt = pointer.Copy(t.WorkEndedAt)
	nt.DepartedJobAt = pointer.Copy(t.DepartedJobAt)
	return &nt
}

func (t *JobTimeTracking) slots() []**time.Time {
	return []**time.Time{
		&t.DispatchedAt,
		&t.DepartedAt,
		&t.ArrivedAt,
		&t.WorkStartedAt,
		&t.WorkEndedAt,
		&t.DepartedJobAt,
	}
}

// Timestamp returns the recorded time for one event, or nil.
func (t *JobTimeTracking) Timestamp(e TimeTrackingEvent) *time.Time {
	idx := e.Order()
	if idx < 0 {
		return nil
	}
	return pointer.Copy(*t.slots()[idx])
}

// Apply records one event at now. Re-recording the most recent event is
// permitted and simply moves its timestamp. Recording an event while any
// later-ordered field is already set is rejected, which keeps every
// set-field sequence monotonic and every derived metric non-negative.
func (t *JobTimeTracking) Apply(e TimeTrackingEvent, now time.Time) error {
	idx := e.Order()
	if idx < 0 {
		return NewValidationError(fmt.Sprintf("invalid time tracking event %q", e))
	}
	slots := t.slots()
	for i := idx + 1; i < len(slots); i++ {
		if *slots[i] != nil {
			return NewConflictError("cannot record %s after %s", e, timeTrackingOrder[i])
		}
	}
	*slots[idx] = pointer.Of(now)
	t.ModifyTime = now
	return nil
}

// DriveMinutes is the whole minutes from departure to arrival, or nil when
// either endpoint is unset.
func (t *JobTimeTracking) DriveMinutes() *int {
	if t.DepartedAt == nil || t.ArrivedAt == nil {
		return nil
	}
	return pointer.Of(minutesBetween(*t.DepartedAt, *t.ArrivedAt))
}

// WrenchMinutes is the whole minutes from work start to work end, or nil.
func (t *JobTimeTracking) WrenchMinutes() *int {
	if t.WorkStartedAt == nil || t.WorkEndedAt == nil {
		return nil
	}
	return pointer.Of(minutesBetween(*t.WorkStartedAt, *t.WorkEndedAt))
}

// OnSiteMinutes is the whole minutes from arrival to site departure, or nil.
func (t *JobTimeTracking) OnSiteMinutes() *int {
	if t.ArrivedAt == nil || t.DepartedJobAt == nil {
		return nil
	}
	return pointer.Of(minutesBetween(*t.ArrivedAt, *t.DepartedJobAt))
}
