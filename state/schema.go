// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"github.com/hashicorp/go-memdb"
)

const (
	TableCompanies          = "companies"
	TableUsers              = "users"
	TableEmailVerifications = "email_verifications"
	TableEmployees          = "employees"
	TableCustomers          = "customers"
	TableCustomerLocations  = "customer_locations"
	TableEquipment          = "equipment"
	TableRefrigerantLogs    = "refrigerant_logs"
	TableJobs               = "jobs"
	TableJobTimeTracking    = "job_time_tracking"
	TableJobCompletions     = "job_completions"
	TableAssignmentLogs     = "job_assignment_logs"
	TableReassignments      = "job_reassignments"
	TableEscalationPolicies = "escalation_policies"
	TableEscalationEvents   = "escalation_events"
	TableAfterHoursRules    = "afterhours_rules"
	TableRecurringSchedules = "recurring_job_schedules"
	TableServiceAgreements  = "service_agreements"
	TableBillingTriggers    = "billing_triggers"
	TableReviewRequests     = "review_requests"
	TableAuditLogs          = "audit_logs"
	TableSMSMessages        = "sms_messages"
)

const (
	indexID       = "id"
	indexEmail    = "email"
	indexCompany  = "company"
	indexCustomer = "customer"
	indexJob      = "job"
)

func stateStoreSchema() *memdb.DBSchema {
	db := &memdb.DBSchema{
		Tables: make(map[string]*memdb.TableSchema),
	}

	schemas := []func() *memdb.TableSchema{
		companyTableSchema,
		userTableSchema,
		emailVerificationTableSchema,
		employeeTableSchema,
		customerTableSchema,
		customerLocationTableSchema,
		equipmentTableSchema,
		refrigerantLogTableSchema,
		jobTableSchema,
		jobTimeTrackingTableSchema,
		jobCompletionTableSchema,
		assignmentLogTableSchema,
		reassignmentTableSchema,
		escalationPolicyTableSchema,
		escalationEventTableSchema,
		afterHoursRuleTableSchema,
		recurringScheduleTableSchema,
		serviceAgreementTableSchema,
		billingTriggerTableSchema,
		reviewRequestTableSchema,
		auditLogTableSchema,
		smsMessageTableSchema,
	}

	for _, fn := range schemas {
		schema := fn()
		if _, ok := db.Tables[schema.Name]; ok {
			panic("duplicate table name: " + schema.Name)
		}
		db.Tables[schema.Name] = schema
	}
	return db
}

func idIndex(field string) *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:    indexID,
		Unique:  true,
		Indexer: &memdb.StringFieldIndex{Field: field},
	}
}

func companyIndex() *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:    indexCompany,
		Indexer: &memdb.StringFieldIndex{Field: "CompanyID"},
	}
}

func companyTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableCompanies,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: idIndex("ID"),
		},
	}
}

func userTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableUsers,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: idIndex("ID"),
			indexEmail: {
				Name:    indexEmail,
				Unique:  true,
				Indexer: &memdb.StringFieldIndex{Field: "Email", Lowercase: true},
			},
			indexCompany: {
				Name:         indexCompany,
				AllowMissing: true,
				Indexer:      &memdb.StringFieldIndex{Field: "CompanyID"},
			},
		},
	}
}

func emailVerificationTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableEmailVerifications,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:    indexID,
				Unique:  true,
				Indexer: &memdb.StringFieldIndex{Field: "Email", Lowercase: true},
			},
		},
	}
}

func employeeTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableEmployees,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
		},
	}
}

func customerTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableCustomers,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
		},
	}
}

func customerLocationTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableCustomerLocations,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
			indexCustomer: {
				Name:    indexCustomer,
				Indexer: &memdb.StringFieldIndex{Field: "CustomerID"},
			},
		},
	}
}

func equipmentTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableEquipment,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
			indexCustomer: {
				Name:    indexCustomer,
				Indexer: &memdb.StringFieldIndex{Field: "CustomerID"},
			},
		},
	}
}

func refrigerantLogTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableRefrigerantLogs,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
			"equipment": {
				Name:    "equipment",
				Indexer: &memdb.StringFieldIndex{Field: "EquipmentID"},
			},
		},
	}
}

func jobTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableJobs,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
		},
	}
}

func jobTimeTrackingTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableJobTimeTracking,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: idIndex("JobID"),
		},
	}
}

func jobCompletionTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableJobCompletions,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("JobID"),
			indexCompany: companyIndex(),
		},
	}
}

func assignmentLogTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableAssignmentLogs,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: idIndex("ID"),
			indexJob: {
				Name:    indexJob,
				Indexer: &memdb.StringFieldIndex{Field: "JobID"},
			},
		},
	}
}

func reassignmentTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableReassignments,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: idIndex("ID"),
			indexJob: {
				Name:    indexJob,
				Indexer: &memdb.StringFieldIndex{Field: "JobID"},
			},
		},
	}
}

func escalationPolicyTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableEscalationPolicies,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
		},
	}
}

func escalationEventTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableEscalationEvents,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
			indexJob: {
				Name:    indexJob,
				Indexer: &memdb.StringFieldIndex{Field: "JobID"},
			},
		},
	}
}

func afterHoursRuleTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableAfterHoursRules,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
		},
	}
}

func recurringScheduleTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableRecurringSchedules,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
		},
	}
}

func serviceAgreementTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableServiceAgreements,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
		},
	}
}

func billingTriggerTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableBillingTriggers,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
			"agreement": {
				Name:    "agreement",
				Indexer: &memdb.StringFieldIndex{Field: "AgreementID"},
			},
		},
	}
}

func reviewRequestTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableReviewRequests,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
			indexJob: {
				Name:    indexJob,
				Indexer: &memdb.StringFieldIndex{Field: "JobID"},
			},
		},
	}
}

func auditLogTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableAuditLogs,
		Indexes: map[string]*memdb.IndexSchema{
			indexID:      idIndex("ID"),
			indexCompany: companyIndex(),
		},
	}
}

func smsMessageTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableSMSMessages,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: idIndex("ID"),
			indexCompany: {
				Name:         indexCompany,
				AllowMissing: true,
				Indexer:      &memdb.StringFieldIndex{Field: "CompanyID"},
			},
		},
	}
}
