package api

import (
	"net/http"

	"louyass/core"
	"louyass/service"
)

// listUsers godoc
//
//	@Summary	List users
//	@Tags		users
//	@Produce	json
//	@Param		page	query		int	false	"Page number"	default(1)
//	@Param		limit	query		int	false	"Page size (1-200)"	default(100)
//	@Success	200		{object}	PaginationResponse
//	@Failure	401		{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/users [get]
func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	params := ParsePaginationParams(r, core.DefaultPageLimit, core.MaxPageLimit)
	users, total, err := a.services.Users.List(r.Context(), params.CalculateOffset(), params.Limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, NewPaginationResponse(users, total, params.Page, params.Limit), http.StatusOK)
}

// getUser godoc
//
//	@Summary	Get a user
//	@Tags		users
//	@Produce	json
//	@Param		id	path		int	true	"User id"
//	@Success	200	{object}	core.User
//	@Failure	404	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/users/{id} [get]
func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	u, err := a.services.Users.Get(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, u, http.StatusOK)
}

// updateUser godoc
//
//	@Summary		Update a user
//	@Description	Users may only edit their own profile
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"User id"
//	@Param			user	body		service.UserUpdate	true	"Changes"
//	@Success		200		{object}	core.User
//	@Failure		403		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse	"Email already used"
//	@Security		BearerAuth
//	@Router			/users/{id} [put]
func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in service.UserUpdate
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	u, err := a.services.Users.Update(r.Context(), currentUser(r), id, in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.users.Invalidate(id)
	a.respondJSON(w, u, http.StatusOK)
}

// deleteUser godoc
//
//	@Summary		Delete a user
//	@Description	Users may only delete their own account. Every token of the account is revoked.
//	@Tags			users
//	@Param			id	path	int	true	"User id"
//	@Success		204
//	@Failure		403	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/users/{id} [delete]
func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.services.Users.Delete(r.Context(), currentUser(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.users.Invalidate(id)
	if n, err := a.tokens.RevokeAll(r.Context(), id); err != nil {
		a.logger.Warnw("Failed to revoke tokens of deleted account", "user_id", id, "error", err)
	} else {
		a.logger.Infow("Revoked tokens of deleted account", "user_id", id, "count", n)
	}
	w.WriteHeader(http.StatusNoContent)
}
