// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package pgstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldward/fieldward/structs"
)

// Row structs mirror table columns one to one. Nested domain structures
// (addresses, skills, policy steps, notification logs) live in jsonb
// columns; everything a query filters or sorts on is a real column.

type companyRow struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	Settings   []byte    `db:"settings"`
	CreateTime time.Time `db:"created_at"`
	ModifyTime time.Time `db:"updated_at"`
}

func (r *companyRow) toStruct() (*structs.Company, error) {
	settings, err := fromJSON[structs.CompanySettings](r.Settings)
	if err != nil {
		return nil, err
	}
	return &structs.Company{
		ID:         r.ID,
		Name:       r.Name,
		Settings:   settings,
		CreateTime: r.CreateTime,
		ModifyTime: r.ModifyTime,
	}, nil
}

type userRow struct {
	ID           string     `db:"id"`
	Email        string     `db:"email"`
	Name         string     `db:"name"`
	Role         string     `db:"role"`
	CompanyID    string     `db:"company_id"`
	PasswordHash string     `db:"password_hash"`
	EmployeeID   string     `db:"employee_id"`
	IsActive     bool       `db:"is_active"`
	DeletedAt    *time.Time `db:"deleted_at"`
	CreateTime   time.Time  `db:"created_at"`
	ModifyTime   time.Time  `db:"updated_at"`
}

func (r *userRow) toStruct() *structs.User {
	return &structs.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		Role:         structs.Role(r.Role),
		CompanyID:    r.CompanyID,
		PasswordHash: r.PasswordHash,
		EmployeeID:   r.EmployeeID,
		IsActive:     r.IsActive,
		DeletedAt:    r.DeletedAt,
		CreateTime:   r.CreateTime,
		ModifyTime:   r.ModifyTime,
	}
}

type emailVerificationRow struct {
	Email      string     `db:"email"`
	Code       string     `db:"code"`
	Verified   bool       `db:"verified"`
	CreateTime time.Time  `db:"created_at"`
	VerifiedAt *time.Time `db:"verified_at"`
}

func (r *emailVerificationRow) toStruct() *structs.EmailVerification {
	return &structs.EmailVerification{
		Email:      r.Email,
		Code:       r.Code,
		Verified:   r.Verified,
		CreateTime: r.CreateTime,
		VerifiedAt: r.VerifiedAt,
	}
}

type employeeRow struct {
	ID                 string     `db:"id"`
	CompanyID          string     `db:"company_id"`
	Name               string     `db:"name"`
	Phone              string     `db:"phone"`
	Skills             []byte     `db:"skills"`
	SkillLevel         []byte     `db:"skill_level"`
	IsActive           bool       `db:"is_active"`
	IsAvailable        bool       `db:"is_available"`
	CurrentJobID       *string    `db:"current_job_id"`
	CurrentJobsCount   int        `db:"current_jobs_count"`
	MaxConcurrentJobs  int        `db:"max_concurrent_jobs"`
	Rating             float64    `db:"rating"`
	HomeAddress        []byte     `db:"home_address"`
	CurrentLat         *float64   `db:"current_lat"`
	CurrentLng         *float64   `db:"current_lng"`
	LocationUpdatedAt  *time.Time `db:"location_updated_at"`
	LastJobCompletedAt *time.Time `db:"last_job_completed_at"`
	CreateTime         time.Time  `db:"created_at"`
	ModifyTime         time.Time  `db:"updated_at"`
}

func (r *employeeRow) toStruct() (*structs.Employee, error) {
	skills, err := fromJSON[[]string](r.Skills)
	if err != nil {
		return nil, err
	}
	skillLevel, err := fromJSON[map[string]int](r.SkillLevel)
	if err != nil {
		return nil, err
	}
	home, err := fromJSON[structs.Address](r.HomeAddress)
	if err != nil {
		return nil, err
	}
	emp := &structs.Employee{
		ID:                 r.ID,
		CompanyID:          r.CompanyID,
		Name:               r.Name,
		Phone:              r.Phone,
		Skills:             skills,
		SkillLevel:         skillLevel,
		IsActive:           r.IsActive,
		IsAvailable:        r.IsAvailable,
		CurrentJobID:       r.CurrentJobID,
		CurrentJobsCount:   r.CurrentJobsCount,
		MaxConcurrentJobs:  r.MaxConcurrentJobs,
		Rating:             r.Rating,
		HomeAddress:        home,
		CurrentLocation:    toCoords(r.CurrentLat, r.CurrentLng),
		LastJobCompletedAt: r.LastJobCompletedAt,
		CreateTime:         r.CreateTime,
		ModifyTime:         r.ModifyTime,
	}
	if r.LocationUpdatedAt != nil {
		emp.LocationUpdatedAt = *r.LocationUpdatedAt
	}
	return emp, nil
}

type customerRow struct {
	ID             string    `db:"id"`
	CompanyID      string    `db:"company_id"`
	Name           string    `db:"name"`
	Phone          string    `db:"phone"`
	Email          string    `db:"email"`
	Address        []byte    `db:"address"`
	AddressText    string    `db:"address_text"`
	Lat            *float64  `db:"lat"`
	Lng            *float64  `db:"lng"`
	GeocodeStatus  string    `db:"geocode_status"`
	GeocodeRetries int       `db:"geocode_retries"`
	NoShowCount    int       `db:"no_show_count"`
	IsActive       bool      `db:"is_active"`
	CreateTime     time.Time `db:"created_at"`
	ModifyTime     time.Time `db:"updated_at"`
}

func (r *customerRow) toStruct() (*structs.Customer, error) {
	addr, err := fromJSON[structs.Address](r.Address)
	if err != nil {
		return nil, err
	}
	return &structs.Customer{
		ID:             r.ID,
		CompanyID:      r.CompanyID,
		Name:           r.Name,
		Phone:          r.Phone,
		Email:          r.Email,
		Address:        addr,
		Coordinates:    toCoords(r.Lat, r.Lng),
		GeocodeStatus:  structs.GeocodeStatus(r.GeocodeStatus),
		GeocodeRetries: r.GeocodeRetries,
		NoShowCount:    r.NoShowCount,
		IsActive:       r.IsActive,
		CreateTime:     r.CreateTime,
		ModifyTime:     r.ModifyTime,
	}, nil
}

type customerLocationRow struct {
	ID             string    `db:"id"`
	CompanyID      string    `db:"company_id"`
	CustomerID     string    `db:"customer_id"`
	Label          string    `db:"label"`
	Address        []byte    `db:"address"`
	AddressText    string    `db:"address_text"`
	Lat            *float64  `db:"lat"`
	Lng            *float64  `db:"lng"`
	GeocodeStatus  string    `db:"geocode_status"`
	GeocodeRetries int       `db:"geocode_retries"`
	IsPrimary      bool      `db:"is_primary"`
	CreateTime     time.Time `db:"created_at"`
	ModifyTime     time.Time `db:"updated_at"`
}

func (r *customerLocationRow) toStruct() (*structs.CustomerLocation, error) {
	addr, err := fromJSON[structs.Address](r.Address)
	if err != nil {
		return nil, err
	}
	return &structs.CustomerLocation{
		ID:             r.ID,
		CompanyID:      r.CompanyID,
		CustomerID:     r.CustomerID,
		Label:          r.Label,
		Address:        addr,
		Coordinates:    toCoords(r.Lat, r.Lng),
		GeocodeStatus:  structs.GeocodeStatus(r.GeocodeStatus),
		GeocodeRetries: r.GeocodeRetries,
		IsPrimary:      r.IsPrimary,
		CreateTime:     r.CreateTime,
		ModifyTime:     r.ModifyTime,
	}, nil
}

type equipmentRow struct {
	ID              string     `db:"id"`
	CompanyID       string     `db:"company_id"`
	CustomerID      string     `db:"customer_id"`
	LocationID      string     `db:"location_id"`
	Kind            string     `db:"kind"`
	Make            string     `db:"make"`
	Model           string     `db:"model"`
	SerialNumber    string     `db:"serial_number"`
	InstallDate     *time.Time `db:"install_date"`
	Condition       string     `db:"condition"`
	RefrigerantType string     `db:"refrigerant_type"`
	IsActive        bool       `db:"is_active"`
	CreateTime      time.Time  `db:"created_at"`
	ModifyTime      time.Time  `db:"updated_at"`
}

func (r *equipmentRow) toStruct() *structs.Equipment {
	return &structs.Equipment{
		ID:              r.ID,
		CompanyID:       r.CompanyID,
		CustomerID:      r.CustomerID,
		LocationID:      r.LocationID,
		Kind:            r.Kind,
		Make:            r.Make,
		Model:           r.Model,
		SerialNumber:    r.SerialNumber,
		InstallDate:     r.InstallDate,
		Condition:       structs.EquipmentCondition(r.Condition),
		RefrigerantType: r.RefrigerantType,
		IsActive:        r.IsActive,
		CreateTime:      r.CreateTime,
		ModifyTime:      r.ModifyTime,
	}
}

type refrigerantLogRow struct {
	ID              string          `db:"id"`
	CompanyID       string          `db:"company_id"`
	JobID           string          `db:"job_id"`
	EquipmentID     string          `db:"equipment_id"`
	TechnicianID    string          `db:"technician_id"`
	RefrigerantType string          `db:"refrigerant_type"`
	PoundsAdded     decimal.Decimal `db:"pounds_added"`
	PoundsRecovered decimal.Decimal `db:"pounds_recovered"`
	Notes           string          `db:"notes"`
	CorrectsLogID   string          `db:"corrects_log_id"`
	CreateTime      time.Time       `db:"created_at"`
}

func (r *refrigerantLogRow) toStruct() *structs.RefrigerantLog {
	return &structs.RefrigerantLog{
		ID:              r.ID,
		CompanyID:       r.CompanyID,
		JobID:           r.JobID,
		EquipmentID:     r.EquipmentID,
		TechnicianID:    r.TechnicianID,
		RefrigerantType: r.RefrigerantType,
		PoundsAdded:     r.PoundsAdded,
		PoundsRecovered: r.PoundsRecovered,
		Notes:           r.Notes,
		CorrectsLogID:   r.CorrectsLogID,
		CreateTime:      r.CreateTime,
	}
}

type jobRow struct {
	ID                       string     `db:"id"`
	CompanyID                string     `db:"company_id"`
	CustomerID               string     `db:"customer_id"`
	LocationID               string     `db:"location_id"`
	JobType                  string     `db:"job_type"`
	Description              string     `db:"description"`
	Priority                 string     `db:"priority"`
	Status                   string     `db:"status"`
	Address                  []byte     `db:"address"`
	AddressText              string     `db:"address_text"`
	Lat                      *float64   `db:"lat"`
	Lng                      *float64   `db:"lng"`
	GeocodeStatus            string     `db:"geocode_status"`
	GeocodeRetries           int        `db:"geocode_retries"`
	AssignedTechID           string     `db:"assigned_tech_id"`
	ScheduledTime            *time.Time `db:"scheduled_time"`
	StartedAt                *time.Time `db:"started_at"`
	CompletedAt              *time.Time `db:"completed_at"`
	RequiredSkills           []byte     `db:"required_skills"`
	EstimatedDurationMinutes *int       `db:"estimated_duration_minutes"`
	ActualDurationMinutes    *int       `db:"actual_duration_minutes"`
	DurationVarianceMinutes  *int       `db:"duration_variance_minutes"`
	SourceScheduleID         string     `db:"source_schedule_id"`
	IsAfterHours             bool       `db:"is_after_hours"`
	CreateTime               time.Time  `db:"created_at"`
	ModifyTime               time.Time  `db:"updated_at"`
}

func (r *jobRow) toStruct() (*structs.Job, error) {
	addr, err := fromJSON[structs.Address](r.Address)
	if err != nil {
		return nil, err
	}
	skills, err := fromJSON[[]string](r.RequiredSkills)
	if err != nil {
		return nil, err
	}
	return &structs.Job{
		ID:                       r.ID,
		CompanyID:                r.CompanyID,
		CustomerID:               r.CustomerID,
		LocationID:               r.LocationID,
		JobType:                  r.JobType,
		Description:              r.Description,
		Priority:                 structs.JobPriority(r.Priority),
		Status:                   structs.JobStatus(r.Status),
		Address:                  addr,
		Coordinates:              toCoords(r.Lat, r.Lng),
		GeocodeStatus:            structs.GeocodeStatus(r.GeocodeStatus),
		GeocodeRetries:           r.GeocodeRetries,
		AssignedTechID:           r.AssignedTechID,
		ScheduledTime:            r.ScheduledTime,
		StartedAt:                r.StartedAt,
		CompletedAt:              r.CompletedAt,
		RequiredSkills:           skills,
		EstimatedDurationMinutes: r.EstimatedDurationMinutes,
		ActualDurationMinutes:    r.ActualDurationMinutes,
		DurationVarianceMinutes:  r.DurationVarianceMinutes,
		SourceScheduleID:         r.SourceScheduleID,
		IsAfterHours:             r.IsAfterHours,
		CreateTime:               r.CreateTime,
		ModifyTime:               r.ModifyTime,
	}, nil
}

type assignmentLogRow struct {
	ID               string    `db:"id"`
	CompanyID        string    `db:"company_id"`
	JobID            string    `db:"job_id"`
	TechnicianID     string    `db:"technician_id"`
	AssignedBy       string    `db:"assigned_by"`
	Score            *float64  `db:"score"`
	DriveTimeMinutes *float64  `db:"drive_time_minutes"`
	IsManualOverride bool      `db:"is_manual_override"`
	Reason           string    `db:"reason"`
	CreateTime       time.Time `db:"created_at"`
}

func (r *assignmentLogRow) toStruct() *structs.JobAssignmentLog {
	return &structs.JobAssignmentLog{
		ID:               r.ID,
		CompanyID:        r.CompanyID,
		JobID:            r.JobID,
		TechnicianID:     r.TechnicianID,
		AssignedBy:       r.AssignedBy,
		Score:            r.Score,
		DriveTimeMinutes: r.DriveTimeMinutes,
		IsManualOverride: r.IsManualOverride,
		Reason:           r.Reason,
		CreateTime:       r.CreateTime,
	}
}

type reassignmentRow struct {
	ID           string    `db:"id"`
	CompanyID    string    `db:"company_id"`
	JobID        string    `db:"job_id"`
	FromTechID   string    `db:"from_tech_id"`
	ToTechID     string    `db:"to_tech_id"`
	Reason       string    `db:"reason"`
	ReassignedBy string    `db:"reassigned_by"`
	CreateTime   time.Time `db:"created_at"`
}

func (r *reassignmentRow) toStruct() *structs.JobReassignment {
	return &structs.JobReassignment{
		ID:           r.ID,
		CompanyID:    r.CompanyID,
		JobID:        r.JobID,
		FromTechID:   r.FromTechID,
		ToTechID:     r.ToTechID,
		Reason:       r.Reason,
		ReassignedBy: r.ReassignedBy,
		CreateTime:   r.CreateTime,
	}
}

type timeTrackingRow struct {
	JobID         string     `db:"job_id"`
	CompanyID     string     `db:"company_id"`
	DispatchedAt  *time.Time `db:"dispatched_at"`
	DepartedAt    *time.Time `db:"departed_at"`
	ArrivedAt     *time.Time `db:"arrived_at"`
	WorkStartedAt *time.Time `db:"work_started_at"`
	WorkEndedAt   *time.Time `db:"work_ended_at"`
	DepartedJobAt *time.Time `db:"departed_job_at"`
	CreateTime    time.Time  `db:"created_at"`
	ModifyTime    time.Time  `db:"updated_at"`
}

func (r *timeTrackingRow) toStruct() *structs.JobTimeTracking {
	return &structs.JobTimeTracking{
		JobID:         r.JobID,
		CompanyID:     r.CompanyID,
		DispatchedAt:  r.DispatchedAt,
		DepartedAt:    r.DepartedAt,
		ArrivedAt:     r.ArrivedAt,
		WorkStartedAt: r.WorkStartedAt,
		WorkEndedAt:   r.WorkEndedAt,
		DepartedJobAt: r.DepartedJobAt,
		CreateTime:    r.CreateTime,
		ModifyTime:    r.ModifyTime,
	}
}

type completionRow struct {
	JobID             string    `db:"job_id"`
	CompanyID         string    `db:"company_id"`
	TechnicianID      string    `db:"technician_id"`
	CompletedAt       time.Time `db:"completed_at"`
	DurationMinutes   *int      `db:"duration_minutes"`
	DriveTimeMinutes  *int      `db:"drive_time_minutes"`
	WrenchTimeMinutes *int      `db:"wrench_time_minutes"`
	OnSiteMinutes     *int      `db:"on_site_minutes"`
	FirstTimeFix      *bool     `db:"first_time_fix"`
	CallbackRequired  *bool     `db:"callback_required"`
	CustomerRating    *int      `db:"customer_rating"`
	Notes             string    `db:"notes"`
	CreateTime        time.Time `db:"created_at"`
	ModifyTime        time.Time `db:"updated_at"`
}

func (r *completionRow) toStruct() *structs.JobCompletion {
	return &structs.JobCompletion{
		JobID:             r.JobID,
		CompanyID:         r.CompanyID,
		TechnicianID:      r.TechnicianID,
		CompletedAt:       r.CompletedAt,
		DurationMinutes:   r.DurationMinutes,
		DriveTimeMinutes:  r.DriveTimeMinutes,
		WrenchTimeMinutes: r.WrenchTimeMinutes,
		OnSiteMinutes:     r.OnSiteMinutes,
		FirstTimeFix:      r.FirstTimeFix,
		CallbackRequired:  r.CallbackRequired,
		CustomerRating:    r.CustomerRating,
		Notes:             r.Notes,
		CreateTime:        r.CreateTime,
		ModifyTime:        r.ModifyTime,
	}
}

type escalationPolicyRow struct {
	ID                string    `db:"id"`
	CompanyID         string    `db:"company_id"`
	Name              string    `db:"name"`
	TriggerConditions []byte    `db:"trigger_conditions"`
	Steps             []byte    `db:"steps"`
	IsActive          bool      `db:"is_active"`
	CreateTime        time.Time `db:"created_at"`
	ModifyTime        time.Time `db:"updated_at"`
}

func (r *escalationPolicyRow) toStruct() (*structs.EscalationPolicy, error) {
	conditions, err := fromJSON[structs.TriggerConditions](r.TriggerConditions)
	if err != nil {
		return nil, err
	}
	steps, err := fromJSON[[]structs.EscalationStep](r.Steps)
	if err != nil {
		return nil, err
	}
	return &structs.EscalationPolicy{
		ID:                r.ID,
		CompanyID:         r.CompanyID,
		Name:              r.Name,
		TriggerConditions: conditions,
		Steps:             steps,
		IsActive:          r.IsActive,
		CreateTime:        r.CreateTime,
		ModifyTime:        r.ModifyTime,
	}, nil
}

type escalationEventRow struct {
	ID              string     `db:"id"`
	CompanyID       string     `db:"company_id"`
	PolicyID        string     `db:"policy_id"`
	JobID           string     `db:"job_id"`
	CurrentStep     int        `db:"current_step"`
	TriggeredAt     time.Time  `db:"triggered_at"`
	NotificationLog []byte     `db:"notification_log"`
	TimedOut        bool       `db:"timed_out"`
	ResolvedAt      *time.Time `db:"resolved_at"`
	ResolvedBy      string     `db:"resolved_by"`
	ResolutionNotes string     `db:"resolution_notes"`
	CreateTime      time.Time  `db:"created_at"`
	ModifyTime      time.Time  `db:"updated_at"`
}

func (r *escalationEventRow) toStruct() (*structs.EscalationEvent, error) {
	log, err := fromJSON[[]structs.EscalationNotification](r.NotificationLog)
	if err != nil {
		return nil, err
	}
	return &structs.EscalationEvent{
		ID:              r.ID,
		CompanyID:       r.CompanyID,
		PolicyID:        r.PolicyID,
		JobID:           r.JobID,
		CurrentStep:     r.CurrentStep,
		TriggeredAt:     r.TriggeredAt,
		NotificationLog: log,
		TimedOut:        r.TimedOut,
		ResolvedAt:      r.ResolvedAt,
		ResolvedBy:      r.ResolvedBy,
		ResolutionNotes: r.ResolutionNotes,
		CreateTime:      r.CreateTime,
		ModifyTime:      r.ModifyTime,
	}, nil
}

type afterHoursRuleRow struct {
	ID                string          `db:"id"`
	CompanyID         string          `db:"company_id"`
	BranchID          string          `db:"branch_id"`
	WeekdayStart      string          `db:"weekday_start"`
	WeekdayEnd        string          `db:"weekday_end"`
	WeekendAllDay     bool            `db:"weekend_all_day"`
	RoutingStrategy   string          `db:"routing_strategy"`
	OnCallEmployeeIDs []byte          `db:"on_call_employee_ids"`
	SurchargeFlat     decimal.Decimal `db:"surcharge_flat"`
	SurchargePercent  decimal.Decimal `db:"surcharge_percent"`
	AutoAccept        bool            `db:"auto_accept"`
	NotifyManager     bool            `db:"notify_manager"`
	ManagerPhone      string          `db:"manager_phone"`
	IsActive          bool            `db:"is_active"`
	CreateTime        time.Time       `db:"created_at"`
	ModifyTime        time.Time       `db:"updated_at"`
}

func (r *afterHoursRuleRow) toStruct() (*structs.AfterHoursRule, error) {
	onCall, err := fromJSON[[]string](r.OnCallEmployeeIDs)
	if err != nil {
		return nil, err
	}
	return &structs.AfterHoursRule{
		ID:                r.ID,
		CompanyID:         r.CompanyID,
		BranchID:          r.BranchID,
		WeekdayStart:      r.WeekdayStart,
		WeekdayEnd:        r.WeekdayEnd,
		WeekendAllDay:     r.WeekendAllDay,
		RoutingStrategy:   structs.RoutingStrategy(r.RoutingStrategy),
		OnCallEmployeeIDs: onCall,
		SurchargeFlat:     r.SurchargeFlat,
		SurchargePercent:  r.SurchargePercent,
		AutoAccept:        r.AutoAccept,
		NotifyManager:     r.NotifyManager,
		ManagerPhone:      r.ManagerPhone,
		IsActive:          r.IsActive,
		CreateTime:        r.CreateTime,
		ModifyTime:        r.ModifyTime,
	}, nil
}

type recurringScheduleRow struct {
	ID                       string     `db:"id"`
	CompanyID                string     `db:"company_id"`
	CustomerID               string     `db:"customer_id"`
	LocationID               string     `db:"location_id"`
	JobType                  string     `db:"job_type"`
	Description              string     `db:"description"`
	Priority                 string     `db:"priority"`
	RequiredSkills           []byte     `db:"required_skills"`
	EstimatedDurationMinutes *int       `db:"estimated_duration_minutes"`
	Frequency                string     `db:"frequency"`
	CronExpr                 string     `db:"cron_expr"`
	AdvanceDays              int        `db:"advance_days"`
	NextRunAt                time.Time  `db:"next_run_at"`
	IsActive                 bool       `db:"is_active"`
	LastMaterializedAt       *time.Time `db:"last_materialized_at"`
	CreateTime               time.Time  `db:"created_at"`
	ModifyTime               time.Time  `db:"updated_at"`
}

func (r *recurringScheduleRow) toStruct() (*structs.RecurringJobSchedule, error) {
	skills, err := fromJSON[[]string](r.RequiredSkills)
	if err != nil {
		return nil, err
	}
	return &structs.RecurringJobSchedule{
		ID:                       r.ID,
		CompanyID:                r.CompanyID,
		CustomerID:               r.CustomerID,
		LocationID:               r.LocationID,
		JobType:                  r.JobType,
		Description:              r.Description,
		Priority:                 structs.JobPriority(r.Priority),
		RequiredSkills:           skills,
		EstimatedDurationMinutes: r.EstimatedDurationMinutes,
		Frequency:                structs.RecurrenceFrequency(r.Frequency),
		CronExpr:                 r.CronExpr,
		AdvanceDays:              r.AdvanceDays,
		NextRunAt:                r.NextRunAt,
		IsActive:                 r.IsActive,
		LastMaterializedAt:       r.LastMaterializedAt,
		CreateTime:               r.CreateTime,
		ModifyTime:               r.ModifyTime,
	}, nil
}

type agreementRow struct {
	ID                    string          `db:"id"`
	CompanyID             string          `db:"company_id"`
	CustomerID            string          `db:"customer_id"`
	PlanName              string          `db:"plan_name"`
	Status                string          `db:"status"`
	StartDate             time.Time       `db:"start_date"`
	EndDate               time.Time       `db:"end_date"`
	TermMonths            int             `db:"term_months"`
	AutoRenew             bool            `db:"auto_renew"`
	VisitsAllowed         int             `db:"visits_allowed"`
	VisitsUsed            int             `db:"visits_used"`
	BillingAmount         decimal.Decimal `db:"billing_amount"`
	RenewalReminderSentAt *time.Time      `db:"renewal_reminder_sent_at"`
	CreateTime            time.Time       `db:"created_at"`
	ModifyTime            time.Time       `db:"updated_at"`
}

func (r *agreementRow) toStruct() *structs.ServiceAgreement {
	return &structs.ServiceAgreement{
		ID:                    r.ID,
		CompanyID:             r.CompanyID,
		CustomerID:            r.CustomerID,
		PlanName:              r.PlanName,
		Status:                structs.AgreementStatus(r.Status),
		StartDate:             r.StartDate,
		EndDate:               r.EndDate,
		TermMonths:            r.TermMonths,
		AutoRenew:             r.AutoRenew,
		VisitsAllowed:         r.VisitsAllowed,
		VisitsUsed:            r.VisitsUsed,
		BillingAmount:         r.BillingAmount,
		RenewalReminderSentAt: r.RenewalReminderSentAt,
		CreateTime:            r.CreateTime,
		ModifyTime:            r.ModifyTime,
	}
}

type billingTriggerRow struct {
	ID          string          `db:"id"`
	CompanyID   string          `db:"company_id"`
	AgreementID string          `db:"agreement_id"`
	CustomerID  string          `db:"customer_id"`
	Amount      decimal.Decimal `db:"amount"`
	Reason      string          `db:"reason"`
	Status      string          `db:"status"`
	CreateTime  time.Time       `db:"created_at"`
	ModifyTime  time.Time       `db:"updated_at"`
}

func (r *billingTriggerRow) toStruct() *structs.BillingTrigger {
	return &structs.BillingTrigger{
		ID:          r.ID,
		CompanyID:   r.CompanyID,
		AgreementID: r.AgreementID,
		CustomerID:  r.CustomerID,
		Amount:      r.Amount,
		Reason:      r.Reason,
		Status:      structs.BillingTriggerStatus(r.Status),
		CreateTime:  r.CreateTime,
		ModifyTime:  r.ModifyTime,
	}
}

type reviewRequestRow struct {
	ID           string     `db:"id"`
	CompanyID    string     `db:"company_id"`
	JobID        string     `db:"job_id"`
	CustomerID   string     `db:"customer_id"`
	Channel      string     `db:"channel"`
	Status       string     `db:"status"`
	ScheduledFor time.Time  `db:"scheduled_for"`
	SentAt       *time.Time `db:"sent_at"`
	FailureNote  string     `db:"failure_note"`
	CreateTime   time.Time  `db:"created_at"`
	ModifyTime   time.Time  `db:"updated_at"`
}

func (r *reviewRequestRow) toStruct() *structs.ReviewRequest {
	return &structs.ReviewRequest{
		ID:           r.ID,
		CompanyID:    r.CompanyID,
		JobID:        r.JobID,
		CustomerID:   r.CustomerID,
		Channel:      structs.ReviewChannel(r.Channel),
		Status:       structs.ReviewRequestStatus(r.Status),
		ScheduledFor: r.ScheduledFor,
		SentAt:       r.SentAt,
		FailureNote:  r.FailureNote,
		CreateTime:   r.CreateTime,
		ModifyTime:   r.ModifyTime,
	}
}

type auditLogRow struct {
	ID         string    `db:"id"`
	CompanyID  string    `db:"company_id"`
	UserID     string    `db:"user_id"`
	Action     string    `db:"action"`
	Entity     string    `db:"entity"`
	EntityID   string    `db:"entity_id"`
	Detail     []byte    `db:"detail"`
	CreateTime time.Time `db:"created_at"`
}

func (r *auditLogRow) toStruct() (*structs.AuditLog, error) {
	detail, err := fromJSON[map[string]string](r.Detail)
	if err != nil {
		return nil, err
	}
	return &structs.AuditLog{
		ID:         r.ID,
		CompanyID:  r.CompanyID,
		UserID:     r.UserID,
		Action:     r.Action,
		Entity:     r.Entity,
		EntityID:   r.EntityID,
		Detail:     detail,
		CreateTime: r.CreateTime,
	}, nil
}

type smsMessageRow struct {
	ID         string    `db:"id"`
	CompanyID  string    `db:"company_id"`
	Direction  string    `db:"direction"`
	FromPhone  string    `db:"from_phone"`
	ToPhone    string    `db:"to_phone"`
	Body       string    `db:"body"`
	ProviderID string    `db:"provider_id"`
	CustomerID string    `db:"customer_id"`
	AfterHours bool      `db:"after_hours"`
	CreateTime time.Time `db:"created_at"`
}

func (r *smsMessageRow) toStruct() *structs.SMSMessage {
	return &structs.SMSMessage{
		ID:         r.ID,
		CompanyID:  r.CompanyID,
		Direction:  structs.SMSDirection(r.Direction),
		From:       r.FromPhone,
		To:         r.ToPhone,
		Body:       r.Body,
		ProviderID: r.ProviderID,
		CustomerID: r.CustomerID,
		AfterHours: r.AfterHours,
		CreateTime: r.CreateTime,
	}
}

// toCoords assembles a point from its nullable column pair.
func toCoords(lat, lng *float64) *structs.Coordinates {
	if lat == nil || lng == nil {
		return nil
	}
	return &structs.Coordinates{Latitude: *lat, Longitude: *lng}
}

// coordCols splits a point into its nullable column pair.
func coordCols(c *structs.Coordinates) (lat, lng *float64) {
	if c == nil {
		return nil, nil
	}
	return &c.Latitude, &c.Longitude
}

// nilWhenZero maps the zero time to NULL for optional timestamp columns.
func nilWhenZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
