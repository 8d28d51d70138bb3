package api

import (
	"net/http"
	"time"

	"louyass/service"
)

// createAppointment godoc
//
//	@Summary		Book a viewing
//	@Description	Tenants book a viewing of a room for themselves. The appointment starts en_attente.
//	@Tags			rendez-vous
//	@Accept			json
//	@Produce		json
//	@Param			appointment	body		service.AppointmentCreate	true	"Appointment"
//	@Success		201			{object}	core.Appointment
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/rendez-vous [post]
func (a *API) createAppointment(w http.ResponseWriter, r *http.Request) {
	var in service.AppointmentCreate
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	appt, err := a.services.Appointments.Create(r.Context(), currentUser(r), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, appt, http.StatusCreated)
}

// listAppointments godoc
//
//	@Summary		List appointments
//	@Description	Tenants see their own bookings, owners the bookings of their rooms
//	@Tags			rendez-vous
//	@Produce		json
//	@Param			statut	query	string	false	"en_attente, confirmé or annulé"
//	@Param			skip	query	int		false	"Offset"	default(0)
//	@Param			limit	query	int		false	"Page size (1-200)"	default(100)
//	@Success		200		{array}		core.Appointment
//	@Security		BearerAuth
//	@Router			/rendez-vous [get]
func (a *API) listAppointments(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parseSkipLimit(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}
	items, err := a.services.Appointments.List(r.Context(), currentUser(r), r.URL.Query().Get("statut"), skip, limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, items, http.StatusOK)
}

// getAppointment godoc
//
//	@Summary	Get an appointment
//	@Tags		rendez-vous
//	@Produce	json
//	@Param		id	path		int	true	"Appointment id"
//	@Success	200	{object}	core.Appointment
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/rendez-vous/{id} [get]
func (a *API) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	appt, err := a.services.Appointments.Get(r.Context(), currentUser(r), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, appt, http.StatusOK)
}

// updateAppointment godoc
//
//	@Summary		Update an appointment
//	@Description	The owner of the room confirms or cancels; the tenant only moves the date, which resets the status to en_attente.
//	@Tags			rendez-vous
//	@Accept			json
//	@Produce		json
//	@Param			id			path		int							true	"Appointment id"
//	@Param			appointment	body		service.AppointmentUpdate	true	"Changes"
//	@Success		200			{object}	core.Appointment
//	@Failure		400			{object}	ErrorResponse	"Invalid transition"
//	@Failure		403			{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/rendez-vous/{id} [put]
func (a *API) updateAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in service.AppointmentUpdate
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	appt, err := a.services.Appointments.Update(r.Context(), currentUser(r), id, in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, appt, http.StatusOK)
}

// deleteAppointment godoc
//
//	@Summary	Delete an appointment
//	@Tags		rendez-vous
//	@Param		id	path	int	true	"Appointment id"
//	@Success	204
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/rendez-vous/{id} [delete]
func (a *API) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.services.Appointments.Delete(r.Context(), currentUser(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createContract godoc
//
//	@Summary		Sign a lease
//	@Description	The owner of the room signs a lease for a tenant holding a confirmed appointment on it
//	@Tags			contrats
//	@Accept			json
//	@Produce		json
//	@Param			contract	body		service.ContractCreate	true	"Contract"
//	@Success		201			{object}	core.Contract
//	@Failure		403			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse	"No confirmed appointment or room already leased"
//	@Security		BearerAuth
//	@Router			/contrats [post]
func (a *API) createContract(w http.ResponseWriter, r *http.Request) {
	var in service.ContractCreate
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	c, err := a.services.Contracts.Create(r.Context(), currentUser(r), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, c, http.StatusCreated)
}

// listContracts godoc
//
//	@Summary	List contracts
//	@Tags		contrats
//	@Produce	json
//	@Param		statut	query	string	false	"actif or resilié"
//	@Success	200		{array}	core.Contract
//	@Security	BearerAuth
//	@Router		/contrats [get]
func (a *API) listContracts(w http.ResponseWriter, r *http.Request) {
	items, err := a.services.Contracts.List(r.Context(), currentUser(r), r.URL.Query().Get("statut"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, items, http.StatusOK)
}

// getContract godoc
//
//	@Summary	Get a contract
//	@Tags		contrats
//	@Produce	json
//	@Param		id	path		int	true	"Contract id"
//	@Success	200	{object}	core.Contract
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/contrats/{id} [get]
func (a *API) getContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := a.services.Contracts.Get(r.Context(), currentUser(r), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, c, http.StatusOK)
}

// updateContract godoc
//
//	@Summary		Update a contract
//	@Description	The owner edits the terms of an actif lease or terminates it with statut=resilié. resilié is final.
//	@Tags			contrats
//	@Accept			json
//	@Produce		json
//	@Param			id			path		int						true	"Contract id"
//	@Param			contract	body		service.ContractUpdate	true	"Changes"
//	@Success		200			{object}	core.Contract
//	@Failure		400			{object}	ErrorResponse	"Invalid transition"
//	@Failure		403			{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/contrats/{id} [put]
func (a *API) updateContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in service.ContractUpdate
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	c, err := a.services.Contracts.Update(r.Context(), currentUser(r), id, in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, c, http.StatusOK)
}

// deleteContract godoc
//
//	@Summary	Delete a contract
//	@Tags		contrats
//	@Param		id	path	int	true	"Contract id"
//	@Success	204
//	@Failure	403	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/contrats/{id} [delete]
func (a *API) deleteContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.services.Contracts.Delete(r.Context(), currentUser(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// tenantContracts godoc
//
//	@Summary		My leases
//	@Description	Leases of the calling tenant with their room and house
//	@Tags			locataire
//	@Produce		json
//	@Success		200	{array}		core.Contract
//	@Failure		403	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/locataire/contrats [get]
func (a *API) tenantContracts(w http.ResponseWriter, r *http.Request) {
	items, err := a.services.Contracts.ListForTenant(r.Context(), currentUser(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, items, http.StatusOK)
}

// tenantContractPayments godoc
//
//	@Summary	Payments of one of my leases
//	@Tags		locataire
//	@Produce	json
//	@Param		id	path		int	true	"Contract id"
//	@Success	200	{array}		core.Payment
//	@Failure	404	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/locataire/contrats/{id}/paiements [get]
func (a *API) tenantContractPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	items, err := a.services.Contracts.PaymentsForTenantContract(r.Context(), currentUser(r), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, items, http.StatusOK)
}

// createPayment godoc
//
//	@Summary		Record a payment
//	@Description	Tenants record what they paid on their lease; owners record expected or received instalments
//	@Tags			paiements
//	@Accept			json
//	@Produce		json
//	@Param			payment	body		service.PaymentCreate	true	"Payment"
//	@Success		201		{object}	core.Payment
//	@Failure		400		{object}	ErrorResponse	"Contract terminated"
//	@Failure		403		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/paiements [post]
func (a *API) createPayment(w http.ResponseWriter, r *http.Request) {
	var in service.PaymentCreate
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	p, err := a.services.Payments.Create(r.Context(), currentUser(r), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, p, http.StatusCreated)
}

// myPayments godoc
//
//	@Summary	My payments
//	@Tags		paiements
//	@Produce	json
//	@Success	200	{array}	core.Payment
//	@Security	BearerAuth
//	@Router		/paiements/me [get]
func (a *API) myPayments(w http.ResponseWriter, r *http.Request) {
	items, err := a.services.Payments.ListMine(r.Context(), currentUser(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, items, http.StatusOK)
}

// getPayment godoc
//
//	@Summary	Get a payment
//	@Tags		paiements
//	@Produce	json
//	@Param		id	path		int	true	"Payment id"
//	@Success	200	{object}	core.Payment
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/paiements/{id} [get]
func (a *API) getPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := a.services.Payments.Get(r.Context(), currentUser(r), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, p, http.StatusOK)
}

// PayRequest optionally backdates a payment
type PayRequest struct {
	DatePaiement *time.Time `json:"date_paiement,omitempty"`
}

// payPayment godoc
//
//	@Summary		Mark a payment as paid
//	@Description	An empty body stamps the payment with the current time
//	@Tags			paiements
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int			true	"Payment id"
//	@Param			body	body		PayRequest	false	"Payment date"
//	@Success		200		{object}	core.Payment
//	@Failure		400		{object}	ErrorResponse	"Already paid"
//	@Failure		403		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/paiements/{id}/payer [put]
func (a *API) payPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req PayRequest
	if r.ContentLength > 0 {
		if !a.decodeJSONBody(w, r, &req) {
			return
		}
	}
	p, err := a.services.Payments.MarkPaid(r.Context(), currentUser(r), id, req.DatePaiement)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, p, http.StatusOK)
}

// ownerPayments godoc
//
//	@Summary	Payments on my rooms
//	@Tags		proprietaire
//	@Produce	json
//	@Success	200	{array}		core.Payment
//	@Failure	403	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/proprietaire/paiements [get]
func (a *API) ownerPayments(w http.ResponseWriter, r *http.Request) {
	items, err := a.services.Payments.ListForOwner(r.Context(), currentUser(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, items, http.StatusOK)
}

// ownerPendingPayments godoc
//
//	@Summary	Pending payments due this month
//	@Tags		proprietaire
//	@Produce	json
//	@Success	200	{array}		core.Payment
//	@Failure	403	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/proprietaire/paiements/pending-this-month [get]
func (a *API) ownerPendingPayments(w http.ResponseWriter, r *http.Request) {
	items, err := a.services.Payments.PendingThisMonth(r.Context(), currentUser(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, items, http.StatusOK)
}
