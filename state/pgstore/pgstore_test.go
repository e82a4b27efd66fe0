// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/ci"
	"github.com/fieldward/fieldward/helper/testlog"
	"github.com/fieldward/fieldward/mock"
	"github.com/fieldward/fieldward/structs"
)

// testStore wires a PGStore to a sqlmock driver. These tests pin the SQL
// conditions that carry store semantics: idempotence keys, no-op
// detection, and constraint mapping. Row-for-row behavioral coverage
// lives in the state package against the in-memory implementation.
func testStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, smock, err := sqlmock.New()
	must.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return New(sqlx.NewDb(mockDB, "sqlmock"), testlog.HCLogger(t)), smock
}

func TestPGStore_UpsertUser_DuplicateEmail(t *testing.T) {
	ci.Parallel(t)
	store, smock := testStore(t)

	user := mock.User("company-1")
	smock.ExpectExec("INSERT INTO users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_uq"})

	err := store.UpsertUser(context.Background(), user)
	must.Error(t, err)
	must.True(t, structs.IsConflict(err))
	must.NoError(t, smock.ExpectationsWereMet())
}

func TestPGStore_MaterializeSchedule_Advances(t *testing.T) {
	ci.Parallel(t)
	store, smock := testStore(t)

	expected := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	next := expected.AddDate(0, 1, 0)
	now := time.Date(2024, 5, 29, 8, 0, 0, 0, time.UTC)
	job := mock.Job("company-1")

	smock.ExpectBegin()
	smock.ExpectExec("UPDATE recurring_schedules").
		WithArgs("sched-1", expected, next, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	smock.ExpectExec("INSERT INTO jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	smock.ExpectCommit()

	err := store.MaterializeSchedule(context.Background(), "sched-1", expected, job, next, now)
	must.NoError(t, err)
	must.NoError(t, smock.ExpectationsWereMet())
}

func TestPGStore_MaterializeSchedule_AlreadyAdvanced(t *testing.T) {
	ci.Parallel(t)
	store, smock := testStore(t)

	expected := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	now := expected.Add(-time.Hour)
	job := mock.Job("company-1")

	// The conditional update misses because another worker already moved
	// the clock. The schedule exists, so the caller gets a conflict and no
	// job row is written.
	smock.ExpectBegin()
	smock.ExpectExec("UPDATE recurring_schedules").
		WithArgs("sched-1", expected, expected.AddDate(0, 1, 0), now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	smock.ExpectQuery("SELECT (.+) FROM recurring_schedules WHERE id").
		WithArgs("sched-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "next_run_at"}).
			AddRow("sched-1", expected.AddDate(0, 1, 0)))
	smock.ExpectRollback()

	err := store.MaterializeSchedule(context.Background(), "sched-1", expected, job, expected.AddDate(0, 1, 0), now)
	must.Error(t, err)
	must.True(t, structs.IsConflict(err))
	must.NoError(t, smock.ExpectationsWereMet())
}

func TestPGStore_MaterializeSchedule_MissingSchedule(t *testing.T) {
	ci.Parallel(t)
	store, smock := testStore(t)

	expected := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	job := mock.Job("company-1")

	smock.ExpectBegin()
	smock.ExpectExec("UPDATE recurring_schedules").
		WillReturnResult(sqlmock.NewResult(0, 0))
	smock.ExpectQuery("SELECT (.+) FROM recurring_schedules WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	smock.ExpectRollback()

	err := store.MaterializeSchedule(context.Background(), "sched-missing", expected, job, expected, expected)
	must.Error(t, err)
	must.True(t, structs.IsNotFound(err))
	must.NoError(t, smock.ExpectationsWereMet())
}

func TestPGStore_ExpireAgreement_AlreadyExpired(t *testing.T) {
	ci.Parallel(t)
	store, smock := testStore(t)

	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	// The status flip misses; the agreement exists but is no longer
	// active. No replacement or trigger insert may run.
	smock.ExpectBegin()
	smock.ExpectExec("UPDATE service_agreements").
		WithArgs("agr-1", string(structs.AgreementExpired), now, string(structs.AgreementActive)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	smock.ExpectQuery("SELECT (.+) FROM service_agreements WHERE id").
		WithArgs("agr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow("agr-1", string(structs.AgreementExpired)))
	smock.ExpectCommit()

	replacement := mock.ServiceAgreement("company-1", "cust-1")
	trigger := &structs.BillingTrigger{
		ID:          "trigger-1",
		CompanyID:   "company-1",
		AgreementID: replacement.ID,
		CustomerID:  "cust-1",
		Amount:      replacement.BillingAmount,
		Reason:      "renewal",
		Status:      structs.BillingPending,
		CreateTime:  now,
		ModifyTime:  now,
	}
	err := store.ExpireAgreement(context.Background(), "agr-1", replacement, trigger, now)
	must.NoError(t, err)
	must.NoError(t, smock.ExpectationsWereMet())
}

func TestPGStore_MarkRenewalReminded_Idempotent(t *testing.T) {
	ci.Parallel(t)
	store, smock := testStore(t)
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	// Reminder already recorded: the conditional update misses but the
	// agreement exists, so repeated worker ticks are no-ops.
	smock.ExpectExec("UPDATE service_agreements").
		WithArgs("agr-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	smock.ExpectQuery("SELECT (.+) FROM service_agreements WHERE id").
		WithArgs("agr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("agr-1"))
	must.NoError(t, store.MarkRenewalReminded(context.Background(), "agr-1", now))

	// Missing agreement is the caller's bug and is reported.
	smock.ExpectExec("UPDATE service_agreements").
		WithArgs("agr-404", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	smock.ExpectQuery("SELECT (.+) FROM service_agreements WHERE id").
		WithArgs("agr-404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	err := store.MarkRenewalReminded(context.Background(), "agr-404", now)
	must.Error(t, err)
	must.True(t, structs.IsNotFound(err))

	must.NoError(t, smock.ExpectationsWereMet())
}

func TestPGStore_UpdateEmployeeLocation_Missing(t *testing.T) {
	ci.Parallel(t)
	store, smock := testStore(t)
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	smock.ExpectExec("UPDATE employees").
		WithArgs("emp-404", 30.2672, -97.7431, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateEmployeeLocation(context.Background(), "emp-404",
		structs.Coordinates{Latitude: 30.2672, Longitude: -97.7431}, now)
	must.Error(t, err)
	must.True(t, structs.IsNotFound(err))
	must.NoError(t, smock.ExpectationsWereMet())
}

func TestPGStore_ClaimGeocodeTasks_Budget(t *testing.T) {
	ci.Parallel(t)
	store, smock := testStore(t)

	taskCols := []string{"id", "address_text", "geocode_retries"}

	// Jobs fill two of the three slots, customers the last; the locations
	// table is never queried once the budget is spent.
	smock.ExpectBegin()
	smock.ExpectQuery("SELECT id, address_text, geocode_retries FROM jobs").
		WithArgs(string(structs.GeocodePending), string(structs.GeocodeFailed), structs.MaxGeocodeRetries, 3).
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow("job-1", "12 Main St, Austin, TX 78701", 0).
			AddRow("job-2", "99 Oak Ave, Austin, TX 78702", 1))
	smock.ExpectQuery("SELECT id, address_text, geocode_retries FROM customers").
		WithArgs(string(structs.GeocodePending), string(structs.GeocodeFailed), structs.MaxGeocodeRetries, 1).
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow("cust-1", "4501 Spicewood Springs Rd, Austin, TX 78759", 0))
	smock.ExpectCommit()

	tasks, err := store.ClaimGeocodeTasks(context.Background(), 3)
	must.NoError(t, err)
	must.Len(t, 3, tasks)
	must.Eq(t, structs.GeocodeKindJob, tasks[0].Kind)
	must.Eq(t, "job-1", tasks[0].ID)
	must.Eq(t, structs.GeocodeKindJob, tasks[1].Kind)
	must.Eq(t, structs.GeocodeKindCustomer, tasks[2].Kind)
	must.Eq(t, "cust-1", tasks[2].ID)
	must.NoError(t, smock.ExpectationsWereMet())
}

func TestPGStore_ResolveGeocodeTask(t *testing.T) {
	ci.Parallel(t)
	store, smock := testStore(t)
	ctx := context.Background()
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	// Success writes coordinates, keyed on the claimed address.
	smock.ExpectExec("UPDATE jobs").
		WithArgs("job-1", "12 Main St, Austin, TX 78701", 30.2672, -97.7431,
			string(structs.GeocodeComplete), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	must.NoError(t, store.ResolveGeocodeTask(ctx, &structs.GeocodeTask{
		Kind:    structs.GeocodeKindJob,
		ID:      "job-1",
		Address: "12 Main St, Austin, TX 78701",
	}, &structs.Coordinates{Latitude: 30.2672, Longitude: -97.7431}, now))

	// Failure marks the row failed and bumps the retry counter.
	smock.ExpectExec("UPDATE customers").
		WithArgs("cust-1", "nowhere", string(structs.GeocodeFailed), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	must.NoError(t, store.ResolveGeocodeTask(ctx, &structs.GeocodeTask{
		Kind:    structs.GeocodeKindCustomer,
		ID:      "cust-1",
		Address: "nowhere",
	}, nil, now))

	// A concurrent address change makes the update miss; the stale result
	// is dropped without error.
	smock.ExpectExec("UPDATE jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	must.NoError(t, store.ResolveGeocodeTask(ctx, &structs.GeocodeTask{
		Kind:    structs.GeocodeKindJob,
		ID:      "job-1",
		Address: "old address",
	}, nil, now))

	must.Error(t, store.ResolveGeocodeTask(ctx, &structs.GeocodeTask{Kind: "volcano"}, nil, now))
	must.NoError(t, smock.ExpectationsWereMet())
}

func TestPGStore_ReviewRequest_UniquePerJob(t *testing.T) {
	ci.Parallel(t)
	store, smock := testStore(t)

	r := mock.ReviewRequest("company-1", "job-1", "cust-1")
	smock.ExpectExec("INSERT INTO review_requests").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "review_requests_job_uq"})

	err := store.UpsertReviewRequest(context.Background(), r)
	must.Error(t, err)
	must.True(t, structs.IsConflict(err))
	must.NoError(t, smock.ExpectationsWereMet())
}
