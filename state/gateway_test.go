// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"context"
	"testing"

	"github.com/shoenig/test/must"

	"github.com/fieldward/fieldward/ci"
	"github.com/fieldward/fieldward/mock"
	"github.com/fieldward/fieldward/structs"
)

func TestGateway_CrossTenantReadMasksAsNotFound(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)
	gw := NewGateway(store)
	ctx := context.Background()

	companyA := mock.Company()
	companyB := mock.Company()
	job := mock.Job(companyA.ID)
	must.NoError(t, store.UpsertJob(ctx, job))

	// The owner sees it.
	owner := mock.AuthUser(companyA.ID)
	got, err := gw.Job(ctx, owner, job.ID)
	must.NoError(t, err)
	must.Eq(t, job.ID, got.ID)

	// A caller from another tenant gets NotFound, never Forbidden, so
	// existence does not leak.
	intruder := mock.AuthUser(companyB.ID)
	_, err = gw.Job(ctx, intruder, job.ID)
	must.Error(t, err)
	must.True(t, structs.IsNotFound(err))
	must.ErrorContains(t, err, "Job not found")

	// A genuinely missing ID reads identically.
	_, err = gw.Job(ctx, owner, "no-such-job")
	must.Error(t, err)
	must.True(t, structs.IsNotFound(err))

	// Platform crosses tenants.
	platform := mock.PlatformAuthUser()
	got, err = gw.Job(ctx, platform, job.ID)
	must.NoError(t, err)
	must.Eq(t, job.ID, got.ID)
}

func TestGateway_ListsPinToCallerCompany(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)
	gw := NewGateway(store)
	ctx := context.Background()

	companyA := mock.Company()
	companyB := mock.Company()
	must.NoError(t, store.UpsertJob(ctx, mock.Job(companyA.ID)))
	must.NoError(t, store.UpsertJob(ctx, mock.Job(companyA.ID)))
	must.NoError(t, store.UpsertJob(ctx, mock.Job(companyB.ID)))

	// Tenant callers are pinned regardless of what they request.
	caller := mock.AuthUser(companyA.ID)
	jobs, err := gw.Jobs(ctx, caller, companyB.ID, JobListFilter{})
	must.NoError(t, err)
	must.Len(t, 2, jobs)
	for _, j := range jobs {
		must.Eq(t, companyA.ID, j.CompanyID)
	}

	// Platform callers choose, and must choose.
	platform := mock.PlatformAuthUser()
	jobs, err = gw.Jobs(ctx, platform, companyB.ID, JobListFilter{})
	must.NoError(t, err)
	must.Len(t, 1, jobs)

	_, err = gw.Jobs(ctx, platform, "", JobListFilter{})
	must.Error(t, err)
	must.True(t, structs.IsValidation(err))
}

func TestGateway_WritesRejectForeignCompany(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)
	gw := NewGateway(store)
	ctx := context.Background()

	companyA := mock.Company()
	companyB := mock.Company()
	caller := mock.AuthUser(companyA.ID)

	foreign := mock.Job(companyB.ID)
	err := gw.UpsertJob(ctx, caller, foreign)
	must.Error(t, err)
	must.ErrorIs(t, err, structs.ErrPermissionDenied)

	own := mock.Job(companyA.ID)
	must.NoError(t, gw.UpsertJob(ctx, caller, own))
}

func TestGateway_ChildEntitiesRideOwnerVisibility(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)
	gw := NewGateway(store)
	ctx := context.Background()

	companyA := mock.Company()
	customer := mock.Customer(companyA.ID)
	must.NoError(t, store.UpsertCustomer(ctx, customer))
	loc := mock.CustomerLocation(companyA.ID, customer.ID)
	must.NoError(t, store.UpsertCustomerLocation(ctx, loc))

	intruder := mock.AuthUser(mock.Company().ID)
	_, err := gw.LocationsByCustomer(ctx, intruder, customer.ID)
	must.Error(t, err)
	must.True(t, structs.IsNotFound(err))
	must.ErrorContains(t, err, "Customer not found")

	owner := mock.AuthUser(companyA.ID)
	locs, err := gw.LocationsByCustomer(ctx, owner, customer.ID)
	must.NoError(t, err)
	must.Len(t, 1, locs)
}

func TestGateway_Company(t *testing.T) {
	ci.Parallel(t)
	store := TestStateStore(t)
	gw := NewGateway(store)
	ctx := context.Background()

	company := mock.Company()
	must.NoError(t, store.UpsertCompany(ctx, company))

	owner := mock.AuthUser(company.ID)
	got, err := gw.Company(ctx, owner, company.ID)
	must.NoError(t, err)
	must.Eq(t, company.Name, got.Name)

	intruder := mock.AuthUser(mock.Company().ID)
	_, err = gw.Company(ctx, intruder, company.ID)
	must.Error(t, err)
	must.True(t, structs.IsNotFound(err))
}
