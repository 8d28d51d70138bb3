package service

import (
	"context"
	"net/http"
	"testing"

	"louyass/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueLifecycle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.createUser(t, core.RoleOwner)
	tenant := e.createUser(t, core.RoleTenant)
	c := e.lease(t, owner, tenant, e.createRoom(t, owner))

	issue, err := e.issueSvc.Create(ctx, tenant, IssueCreate{ContratID: c.ID, Description: "Fuite sous l'évier", Type: "plomberie"})
	require.NoError(t, err)
	assert.Equal(t, core.IssueOpen, issue.Statut)
	assert.Equal(t, tenant.ID, issue.SignalePar)
	assert.Equal(t, testNow, issue.CreeLe)

	// both parties see it
	for _, u := range []*core.User{tenant, owner} {
		items, err := e.issueSvc.List(ctx, u, 0, 100)
		require.NoError(t, err)
		require.Len(t, items, 1)
		got, err := e.issueSvc.Get(ctx, u, issue.ID)
		require.NoError(t, err)
		assert.Equal(t, "Fuite sous l'évier", got.Description)
	}

	inProgress := core.IssueInProgress
	_, err = e.issueSvc.Update(ctx, tenant, issue.ID, IssueUpdate{Statut: &inProgress})
	requireStatus(t, err, http.StatusForbidden)

	updated, err := e.issueSvc.Update(ctx, owner, issue.ID, IssueUpdate{Statut: &inProgress})
	require.NoError(t, err)
	assert.Equal(t, core.IssueInProgress, updated.Statut)

	desc := "Fuite et moisissure"
	_, err = e.issueSvc.Update(ctx, owner, issue.ID, IssueUpdate{Description: &desc})
	requireStatus(t, err, http.StatusForbidden)
	updated, err = e.issueSvc.Update(ctx, tenant, issue.ID, IssueUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)
	assert.Equal(t, core.IssueInProgress, updated.Statut)

	requireStatus(t, e.issueSvc.Delete(ctx, owner, issue.ID), http.StatusForbidden)
	require.NoError(t, e.issueSvc.Delete(ctx, tenant, issue.ID))
	_, err = e.issueSvc.Get(ctx, tenant, issue.ID)
	requireStatus(t, err, http.StatusNotFound)
}

func TestIssueAccessControl(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	owner := e.createUser(t, core.RoleOwner)
	tenant := e.createUser(t, core.RoleTenant)
	stranger := e.createUser(t, core.RoleTenant)
	c := e.lease(t, owner, tenant, e.createRoom(t, owner))

	_, err := e.issueSvc.Create(ctx, stranger, IssueCreate{ContratID: c.ID, Description: "Bruit", Type: "autre"})
	requireStatus(t, err, http.StatusForbidden)

	_, err = e.issueSvc.Create(ctx, tenant, IssueCreate{ContratID: 9999, Description: "Bruit", Type: "autre"})
	requireStatus(t, err, http.StatusNotFound)

	_, err = e.issueSvc.Create(ctx, nil, IssueCreate{ContratID: c.ID, Description: "Bruit", Type: "autre"})
	requireStatus(t, err, http.StatusUnauthorized)

	issue, err := e.issueSvc.Create(ctx, owner, IssueCreate{ContratID: c.ID, Description: "Serrure cassée", Type: "serrurerie"})
	require.NoError(t, err)

	_, err = e.issueSvc.Get(ctx, stranger, issue.ID)
	requireStatus(t, err, http.StatusForbidden)

	// an empty or no-op body must not hand the report to a stranger
	got, err := e.issueSvc.Update(ctx, stranger, issue.ID, IssueUpdate{})
	requireStatus(t, err, http.StatusForbidden)
	assert.Nil(t, got)
	open := core.IssueOpen
	_, err = e.issueSvc.Update(ctx, stranger, issue.ID, IssueUpdate{Statut: &open})
	requireStatus(t, err, http.StatusForbidden)

	items, err := e.issueSvc.List(ctx, stranger, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, items)
}
