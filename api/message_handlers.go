package api

import (
	"net/http"

	"louyass/service"
)

// createIssue godoc
//
//	@Summary		Report a problem
//	@Description	The tenant or the owner of the contract reports a problem; the caller is recorded as reporter
//	@Tags			problemes
//	@Accept			json
//	@Produce		json
//	@Param			issue	body		service.IssueCreate	true	"Issue"
//	@Success		201		{object}	core.Issue
//	@Failure		403		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/problemes [post]
func (a *API) createIssue(w http.ResponseWriter, r *http.Request) {
	var in service.IssueCreate
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	issue, err := a.services.Issues.Create(r.Context(), currentUser(r), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, issue, http.StatusCreated)
}

// listIssues godoc
//
//	@Summary	List problems on my contracts
//	@Tags		problemes
//	@Produce	json
//	@Param		skip	query	int	false	"Offset"	default(0)
//	@Param		limit	query	int	false	"Page size (1-200)"	default(100)
//	@Success	200		{array}	core.Issue
//	@Security	BearerAuth
//	@Router		/problemes [get]
func (a *API) listIssues(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parseSkipLimit(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}
	items, err := a.services.Issues.List(r.Context(), currentUser(r), skip, limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, items, http.StatusOK)
}

// getIssue godoc
//
//	@Summary	Get a problem
//	@Tags		problemes
//	@Produce	json
//	@Param		id	path		int	true	"Issue id"
//	@Success	200	{object}	core.Issue
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/problemes/{id} [get]
func (a *API) getIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	issue, err := a.services.Issues.Get(r.Context(), currentUser(r), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, issue, http.StatusOK)
}

// updateIssue godoc
//
//	@Summary		Update a problem
//	@Description	The reporter edits description and type; the owner of the room changes the status
//	@Tags			problemes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"Issue id"
//	@Param			issue	body		service.IssueUpdate	true	"Changes"
//	@Success		200		{object}	core.Issue
//	@Failure		403		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/problemes/{id} [put]
func (a *API) updateIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in service.IssueUpdate
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	issue, err := a.services.Issues.Update(r.Context(), currentUser(r), id, in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, issue, http.StatusOK)
}

// deleteIssue godoc
//
//	@Summary	Delete a problem
//	@Tags		problemes
//	@Param		id	path	int	true	"Issue id"
//	@Success	204
//	@Failure	403	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/problemes/{id} [delete]
func (a *API) deleteIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.services.Issues.Delete(r.Context(), currentUser(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sendMessage godoc
//
//	@Summary	Send a message
//	@Tags		messages
//	@Accept		json
//	@Produce	json
//	@Param		message	body		service.MessageCreate	true	"Message"
//	@Success	201		{object}	core.Message
//	@Failure	404		{object}	ErrorResponse	"Recipient not found"
//	@Security	BearerAuth
//	@Router		/messages [post]
func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	var in service.MessageCreate
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	msg, err := a.services.Messages.Send(r.Context(), currentUser(r), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, msg, http.StatusCreated)
}

// myMessages godoc
//
//	@Summary		My messages
//	@Description	Messages sent or received by the caller, newest first
//	@Tags			messages
//	@Produce		json
//	@Param			is_read	query	bool	false	"Read filter"
//	@Param			skip	query	int		false	"Offset"	default(0)
//	@Param			limit	query	int		false	"Page size (1-200)"	default(100)
//	@Success		200		{array}	core.Message
//	@Security		BearerAuth
//	@Router			/messages/me [get]
func (a *API) myMessages(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parseSkipLimit(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}
	isRead, err := queryBool(r, "is_read")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}
	items, err := a.services.Messages.ListMine(r.Context(), currentUser(r), isRead, skip, limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, items, http.StatusOK)
}

// conversation godoc
//
//	@Summary	Conversation with a user
//	@Tags		messages
//	@Produce	json
//	@Param		other_id	path	int	true	"Other user id"
//	@Param		skip		query	int	false	"Offset"	default(0)
//	@Param		limit		query	int	false	"Page size (1-200)"	default(100)
//	@Success	200			{array}	core.Message
//	@Security	BearerAuth
//	@Router		/messages/conversation/{other_id} [get]
func (a *API) conversation(w http.ResponseWriter, r *http.Request) {
	otherID, ok := pathID(w, r, "other_id")
	if !ok {
		return
	}
	skip, limit, err := parseSkipLimit(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}
	items, err := a.services.Messages.Conversation(r.Context(), currentUser(r), otherID, skip, limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, items, http.StatusOK)
}

// readMessage godoc
//
//	@Summary	Mark a message as read
//	@Tags		messages
//	@Produce	json
//	@Param		id	path		int	true	"Message id"
//	@Success	200	{object}	core.Message
//	@Failure	403	{object}	ErrorResponse	"Only the recipient"
//	@Security	BearerAuth
//	@Router		/messages/{id}/read [put]
func (a *API) readMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	msg, err := a.services.Messages.MarkRead(r.Context(), currentUser(r), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, msg, http.StatusOK)
}

// deleteMessage godoc
//
//	@Summary	Delete a message
//	@Tags		messages
//	@Param		id	path	int	true	"Message id"
//	@Success	204
//	@Failure	403	{object}	ErrorResponse	"Only the sender"
//	@Security	BearerAuth
//	@Router		/messages/{id} [delete]
func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.services.Messages.Delete(r.Context(), currentUser(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
