// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
)

// RoutingStrategy is the closed set of after-hours call routing modes.
type RoutingStrategy string

const (
	RoutingOnCallPool     RoutingStrategy = "on_call_pool"
	RoutingVoicemailQueue RoutingStrategy = "voicemail_queue"
	RoutingEmergencyOnly  RoutingStrategy = "emergency_only"
)

func (s RoutingStrategy) Valid() bool {
	switch s {
	case RoutingOnCallPool, RoutingVoicemailQueue, RoutingEmergencyOnly:
		return true
	}
	return false
}

// ParseMinutesOfDay converts an "HH:MM" wall-clock string to minutes since
// midnight.
func ParseMinutesOfDay(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hh*60 + mm, nil
}

// AfterHoursRule is one per-company window definition with its routing
// outcome. Start and end are wall-clock "HH:MM" strings in the company's
// zone and may wrap midnight.
type AfterHoursRule struct {
	ID        string `json:"id"`
	CompanyID string `json:"companyId"`
	BranchID  string `json:"branchId,omitempty"`

	WeekdayStart  string `json:"weekdayStart"`
	WeekdayEnd    string `json:"weekdayEnd"`
	WeekendAllDay bool   `json:"weekendAllDay"`

	RoutingStrategy   RoutingStrategy `json:"routingStrategy"`
	OnCallEmployeeIDs []string        `json:"onCallEmployeeIds,omitempty"`
	SurchargeFlat     decimal.Decimal `json:"surchargeFlat"`
	SurchargePercent  decimal.Decimal `json:"surchargePercent"`
	AutoAccept        bool            `json:"autoAccept"`
	NotifyManager     bool            `json:"notifyManager"`
	ManagerPhone      string          `json:"managerPhone,omitempty"`

	IsActive bool `json:"isActive"`

	CreateTime time.Time `json:"createdAt"`
	ModifyTime time.Time `json:"updatedAt"`
}

func (r *AfterHoursRule) Copy() *AfterHoursRule {
	if r == nil {
		return nil
	}
	nr := *r
	if r.OnCallEmployeeIDs != nil {
		nr.OnCallEmployeeIDs = make([]string, len(r.OnCallEmployeeIDs))
		copy(nr.OnCallEmployeeIDs, r.OnCallEmployeeIDs)
	}
	return &nr
}

func (r *AfterHoursRule) Canonicalize() {
	if r.RoutingStrategy == "" {
		r.RoutingStrategy = RoutingVoicemailQueue
	}
}

func (r *AfterHoursRule) Validate() error {
	var mErr multierror.Error
	if r.CompanyID == "" {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("missing company"))
	}
	if _, err := ParseMinutesOfDay(r.WeekdayStart); err != nil {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("weekday start: %w", err))
	}
	if _, err := ParseMinutesOfDay(r.WeekdayEnd); err != nil {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("weekday end: %w", err))
	}
	if !r.RoutingStrategy.Valid() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("invalid routing strategy %q", r.RoutingStrategy))
	}
	if r.SurchargeFlat.IsNegative() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("flat surcharge cannot be negative"))
	}
	if r.SurchargePercent.IsNegative() {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("percent surcharge cannot be negative"))
	}
	return mErr.ErrorOrNil()
}

// Covers reports whether at (already in the company's zone) falls inside
// this rule's window. Start is inclusive, end is exclusive. A start after
// the end wraps midnight. Weekends match whenever weekend_all_day is set.
func (r *AfterHoursRule) Covers(at time.Time) bool {
	wd := at.Weekday()
	if (wd == time.Saturday || wd == time.Sunday) && r.WeekendAllDay {
		return true
	}

	start, err := ParseMinutesOfDay(r.WeekdayStart)
	if err != nil {
		return false
	}
	end, err := ParseMinutesOfDay(r.WeekdayEnd)
	if err != nil {
		return false
	}

	minute := at.Hour()*60 + at.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}
