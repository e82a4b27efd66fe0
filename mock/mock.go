// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package mock provides fully-populated domain objects for tests. Each
// constructor returns a fresh value with a generated ID, realistic defaults,
// and every invariant satisfied, so tests mutate only the fields they care
// about.
package mock

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldward/fieldward/helper/pointer"
	"github.com/fieldward/fieldward/helper/uuid"
	"github.com/fieldward/fieldward/structs"
)

// baseTime anchors mock timestamps so tests comparing times stay
// deterministic.
var baseTime = time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)

func Company() *structs.Company {
	return &structs.Company{
		ID:   uuid.Generate(),
		Name: "Comfort Air Mechanical",
		Settings: structs.CompanySettings{
			Timezone:              "America/Chicago",
			Industry:              "hvac",
			AfterHoursEnabled:     true,
			ReviewRequestsEnabled: true,
			AutoDispatchEnabled:   true,
		},
		CreateTime: baseTime,
		ModifyTime: baseTime,
	}
}

func User(companyID string) *structs.User {
	id := uuid.Generate()
	return &structs.User{
		ID:        id,
		Email:     id[:8] + "@example.com",
		Name:      "Dana Dispatcher",
		Role:      structs.RoleDispatcher,
		CompanyID: companyID,
		// bcrypt of "password", cost 10. Tests that exercise login mint
		// their own hash.
		PasswordHash: "$2a$10$N9qo8uLOickgx2ZMRZoMye1J1Zv0zYyFZYy0S0O9kM9oXxWZgJ9BK",
		IsActive:     true,
		CreateTime:   baseTime,
		ModifyTime:   baseTime,
	}
}

func PlatformUser() *structs.User {
	u := User("")
	u.Role = structs.RolePlatform
	u.Email = "ops@fieldward.io"
	return u
}

func AuthUser(companyID string) *structs.AuthUser {
	return &structs.AuthUser{
		UserID:    uuid.Generate(),
		Email:     "dispatch@example.com",
		Role:      structs.RoleDispatcher,
		CompanyID: companyID,
	}
}

func PlatformAuthUser() *structs.AuthUser {
	return &structs.AuthUser{
		UserID: uuid.Generate(),
		Email:  "ops@fieldward.io",
		Role:   structs.RolePlatform,
	}
}

// Employee returns a dispatchable technician: active, available, under cap,
// with a location reported moments ago.
func Employee(companyID string) *structs.Employee {
	return &structs.Employee{
		ID:                uuid.Generate(),
		CompanyID:         companyID,
		Name:              "Teddy Torres",
		Phone:             "+15125550142",
		Skills:            []string{"hvac_repair", "refrigeration"},
		IsActive:          true,
		IsAvailable:       true,
		CurrentJobsCount:  0,
		MaxConcurrentJobs: 1,
		Rating:            4.5,
		HomeAddress: structs.Address{
			Street: "801 Barton Springs Rd",
			City:   "Austin",
			State:  "TX",
			Zip:    "78704",
		},
		CurrentLocation:   &structs.Coordinates{Latitude: 30.2672, Longitude: -97.7431},
		LocationUpdatedAt: baseTime,
		CreateTime:        baseTime,
		ModifyTime:        baseTime,
	}
}

func Customer(companyID string) *structs.Customer {
	return &structs.Customer{
		ID:        uuid.Generate(),
		CompanyID: companyID,
		Name:      "Riverside Lofts HOA",
		Phone:     "+15125550107",
		Email:     "manager@riversidelofts.example",
		Address: structs.Address{
			Street: "1600 Riverside Dr",
			City:   "Austin",
			State:  "TX",
			Zip:    "78741",
		},
		Coordinates:   &structs.Coordinates{Latitude: 30.2498, Longitude: -97.7314},
		GeocodeStatus: structs.GeocodeComplete,
		IsActive:      true,
		CreateTime:    baseTime,
		ModifyTime:    baseTime,
	}
}

func CustomerLocation(companyID, customerID string) *structs.CustomerLocation {
	return &structs.CustomerLocation{
		ID:         uuid.Generate(),
		CompanyID:  companyID,
		CustomerID: customerID,
		Label:      "north warehouse",
		Address: structs.Address{
			Street: "9500 Burnet Rd",
			City:   "Austin",
			State:  "TX",
			Zip:    "78758",
		},
		Coordinates:   &structs.Coordinates{Latitude: 30.3772, Longitude: -97.7254},
		GeocodeStatus: structs.GeocodeComplete,
		CreateTime:    baseTime,
		ModifyTime:    baseTime,
	}
}

func Equipment(companyID, customerID string) *structs.Equipment {
	return &structs.Equipment{
		ID:              uuid.Generate(),
		CompanyID:       companyID,
		CustomerID:      customerID,
		Kind:            "condenser",
		Make:            "Trane",
		Model:           "XR16",
		SerialNumber:    "W231846155",
		Condition:       structs.ConditionGood,
		RefrigerantType: "R-410A",
		IsActive:        true,
		CreateTime:      baseTime,
		ModifyTime:      baseTime,
	}
}

func RefrigerantLog(companyID, equipmentID string) *structs.RefrigerantLog {
	return &structs.RefrigerantLog{
		ID:              uuid.Generate(),
		CompanyID:       companyID,
		EquipmentID:     equipmentID,
		TechnicianID:    uuid.Generate(),
		RefrigerantType: "R-410A",
		PoundsAdded:     decimal.NewFromFloat(2.5),
		PoundsRecovered: decimal.Zero,
		CreateTime:      baseTime,
	}
}

// Job returns an unassigned, geocoded medium-priority job.
func Job(companyID string) *structs.Job {
	return &structs.Job{
		ID:          uuid.Generate(),
		CompanyID:   companyID,
		JobType:     "repair",
		Description: "condenser fan not spinning",
		Priority:    structs.JobPriorityMedium,
		Status:      structs.JobStatusUnassigned,
		Address: structs.Address{
			Street: "1600 Riverside Dr",
			City:   "Austin",
			State:  "TX",
			Zip:    "78741",
		},
		Coordinates:              &structs.Coordinates{Latitude: 30.2498, Longitude: -97.7314},
		GeocodeStatus:            structs.GeocodeComplete,
		RequiredSkills:           []string{"hvac_repair"},
		EstimatedDurationMinutes: pointer.Of(90),
		CreateTime:               baseTime,
		ModifyTime:               baseTime,
	}
}

// EmergencyJob returns a no-cooling emergency call.
func EmergencyJob(companyID string) *structs.Job {
	j := Job(companyID)
	j.Priority = structs.JobPriorityEmergency
	j.Description = "no cooling, server room overheating"
	return j
}

// AssignedJob returns a job already held by techID, with the matching
// tracking row timestamps a live assignment would have.
func AssignedJob(companyID, techID string) *structs.Job {
	j := Job(companyID)
	j.Status = structs.JobStatusAssigned
	j.AssignedTechID = techID
	return j
}

func EscalationPolicy(companyID string) *structs.EscalationPolicy {
	return &structs.EscalationPolicy{
		ID:        uuid.Generate(),
		CompanyID: companyID,
		Name:      "emergency response",
		TriggerConditions: structs.TriggerConditions{
			Priorities: []structs.JobPriority{structs.JobPriorityEmergency},
		},
		Steps: []structs.EscalationStep{
			{DelayMinutes: 15, Notify: []string{"dispatch"}, Channel: "sms"},
			{DelayMinutes: 30, Notify: []string{"manager"}, Channel: "phone"},
		},
		IsActive:   true,
		CreateTime: baseTime,
		ModifyTime: baseTime,
	}
}

func EscalationEvent(companyID, policyID, jobID string) *structs.EscalationEvent {
	return &structs.EscalationEvent{
		ID:          uuid.Generate(),
		CompanyID:   companyID,
		PolicyID:    policyID,
		JobID:       jobID,
		CurrentStep: 0,
		TriggeredAt: baseTime,
		CreateTime:  baseTime,
		ModifyTime:  baseTime,
	}
}

// AfterHoursRule returns a weekday 17:00-08:00 window with weekends all day,
// routed to an on-call pool.
func AfterHoursRule(companyID string) *structs.AfterHoursRule {
	return &structs.AfterHoursRule{
		ID:               uuid.Generate(),
		CompanyID:        companyID,
		WeekdayStart:     "17:00",
		WeekdayEnd:       "08:00",
		WeekendAllDay:    true,
		RoutingStrategy:  structs.RoutingOnCallPool,
		SurchargeFlat:    decimal.NewFromInt(75),
		SurchargePercent: decimal.NewFromInt(15),
		AutoAccept:       true,
		NotifyManager:    true,
		ManagerPhone:     "+15125550199",
		IsActive:         true,
		CreateTime:       baseTime,
		ModifyTime:       baseTime,
	}
}

func RecurringSchedule(companyID, customerID string) *structs.RecurringJobSchedule {
	return &structs.RecurringJobSchedule{
		ID:                       uuid.Generate(),
		CompanyID:                companyID,
		CustomerID:               customerID,
		JobType:                  "maintenance",
		Description:              "seasonal tune-up",
		Priority:                 structs.JobPriorityLow,
		RequiredSkills:           []string{"hvac_maintenance"},
		EstimatedDurationMinutes: pointer.Of(60),
		Frequency:                structs.FrequencyQuarterly,
		AdvanceDays:              7,
		NextRunAt:                baseTime.AddDate(0, 0, 30),
		IsActive:                 true,
		CreateTime:               baseTime,
		ModifyTime:               baseTime,
	}
}

func ServiceAgreement(companyID, customerID string) *structs.ServiceAgreement {
	return &structs.ServiceAgreement{
		ID:            uuid.Generate(),
		CompanyID:     companyID,
		CustomerID:    customerID,
		PlanName:      "gold maintenance",
		Status:        structs.AgreementActive,
		StartDate:     baseTime.AddDate(-1, 0, 0),
		EndDate:       baseTime.AddDate(0, 1, 0),
		TermMonths:    12,
		AutoRenew:     true,
		VisitsAllowed: 4,
		VisitsUsed:    2,
		BillingAmount: decimal.NewFromInt(588),
		CreateTime:    baseTime.AddDate(-1, 0, 0),
		ModifyTime:    baseTime,
	}
}

func ReviewRequest(companyID, jobID, customerID string) *structs.ReviewRequest {
	return &structs.ReviewRequest{
		ID:           uuid.Generate(),
		CompanyID:    companyID,
		JobID:        jobID,
		CustomerID:   customerID,
		Channel:      structs.ReviewChannelSMS,
		Status:       structs.ReviewPending,
		ScheduledFor: baseTime.Add(2 * time.Hour),
		CreateTime:   baseTime,
		ModifyTime:   baseTime,
	}
}

func AuditLog(companyID string) *structs.AuditLog {
	return &structs.AuditLog{
		ID:         uuid.Generate(),
		CompanyID:  companyID,
		UserID:     uuid.Generate(),
		Action:     "job.transition",
		Entity:     "job",
		EntityID:   uuid.Generate(),
		Detail:     map[string]string{"to": "assigned"},
		CreateTime: baseTime,
	}
}
