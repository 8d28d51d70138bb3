package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"louyass/core"
	"louyass/service"
)

// setTotal exposes the unpaged count of a list
func setTotal(w http.ResponseWriter, total int64) {
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
}

// listHouses godoc
//
//	@Summary		List houses
//	@Description	Public listing with optional text search and owner filter
//	@Tags			maisons
//	@Produce		json
//	@Param			search_query	query	string	false	"Matches name, address, city or description"
//	@Param			proprietaire_id	query	int		false	"Owner id"
//	@Param			skip			query	int		false	"Offset"	default(0)
//	@Param			limit			query	int		false	"Page size (1-200)"	default(100)
//	@Success		200	{array}		core.House
//	@Failure		400	{object}	ErrorResponse
//	@Router			/maisons [get]
func (a *API) listHouses(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parseSkipLimit(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}
	ownerID, _, err := queryInt64(r, "proprietaire_id")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}

	items, total, err := a.services.Houses.List(r.Context(), r.URL.Query().Get("search_query"), ownerID, skip, limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	setTotal(w, total)
	a.respondJSON(w, items, http.StatusOK)
}

// createHouse godoc
//
//	@Summary		Create a house
//	@Description	The caller becomes the owner of the house
//	@Tags			maisons
//	@Accept			json
//	@Produce		json
//	@Param			house	body		service.HouseInput	true	"House"
//	@Success		201		{object}	core.House
//	@Failure		403		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/maisons [post]
func (a *API) createHouse(w http.ResponseWriter, r *http.Request) {
	var in service.HouseInput
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	house, err := a.services.Houses.Create(r.Context(), currentUser(r), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, house, http.StatusCreated)
}

// getHouse godoc
//
//	@Summary	Get a house
//	@Tags		maisons
//	@Produce	json
//	@Param		id	path		int	true	"House id"
//	@Success	200	{object}	core.House
//	@Failure	404	{object}	ErrorResponse
//	@Router		/maisons/{id} [get]
func (a *API) getHouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	house, err := a.services.Houses.Get(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, house, http.StatusOK)
}

// updateHouse godoc
//
//	@Summary	Update a house
//	@Tags		maisons
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int					true	"House id"
//	@Param		house	body		service.HouseInput	true	"House"
//	@Success	200		{object}	core.House
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/maisons/{id} [put]
func (a *API) updateHouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in service.HouseInput
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	house, err := a.services.Houses.Update(r.Context(), currentUser(r), id, in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, house, http.StatusOK)
}

// deleteHouse godoc
//
//	@Summary	Delete a house
//	@Tags		maisons
//	@Param		id	path	int	true	"House id"
//	@Success	204
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/maisons/{id} [delete]
func (a *API) deleteHouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.services.Houses.Delete(r.Context(), currentUser(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listRooms godoc
//
//	@Summary	List rooms
//	@Tags		chambres
//	@Produce	json
//	@Param		maison_id	query	int		false	"House id"
//	@Param		disponible	query	bool	false	"Availability"
//	@Param		skip		query	int		false	"Offset"	default(0)
//	@Param		limit		query	int		false	"Page size (1-200)"	default(100)
//	@Success	200	{array}		core.Room
//	@Failure	400	{object}	ErrorResponse
//	@Router		/chambres [get]
func (a *API) listRooms(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parseSkipLimit(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}
	maisonID, _, err := queryInt64(r, "maison_id")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}
	disponible, err := queryBool(r, "disponible")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}

	items, total, err := a.services.Rooms.List(r.Context(), maisonID, disponible, skip, limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	setTotal(w, total)
	a.respondJSON(w, items, http.StatusOK)
}

// createRoom godoc
//
//	@Summary		Create a room
//	@Description	The caller must own the house
//	@Tags			chambres
//	@Accept			json
//	@Produce		json
//	@Param			room	body		service.RoomInput	true	"Room"
//	@Success		201		{object}	core.Room
//	@Failure		403		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/chambres [post]
func (a *API) createRoom(w http.ResponseWriter, r *http.Request) {
	var in service.RoomInput
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	room, err := a.services.Rooms.Create(r.Context(), currentUser(r), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, room, http.StatusCreated)
}

// getRoom godoc
//
//	@Summary	Get a room
//	@Tags		chambres
//	@Produce	json
//	@Param		id	path		int	true	"Room id"
//	@Success	200	{object}	core.Room
//	@Failure	404	{object}	ErrorResponse
//	@Router		/chambres/{id} [get]
func (a *API) getRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	room, err := a.services.Rooms.Get(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, room, http.StatusOK)
}

// updateRoom godoc
//
//	@Summary	Update a room
//	@Tags		chambres
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int					true	"Room id"
//	@Param		room	body		service.RoomInput	true	"Room"
//	@Success	200		{object}	core.Room
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/chambres/{id} [put]
func (a *API) updateRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in service.RoomInput
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	room, err := a.services.Rooms.Update(r.Context(), currentUser(r), id, in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, room, http.StatusOK)
}

// deleteRoom godoc
//
//	@Summary	Delete a room
//	@Tags		chambres
//	@Param		id	path	int	true	"Room id"
//	@Success	204
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/chambres/{id} [delete]
func (a *API) deleteRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.services.Rooms.Delete(r.Context(), currentUser(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listRoomMedia godoc
//
//	@Summary	List the media of a room
//	@Tags		medias
//	@Produce	json
//	@Param		id	path		int	true	"Room id"
//	@Success	200	{array}		core.Media
//	@Failure	404	{object}	ErrorResponse
//	@Router		/chambres/{id}/medias [get]
func (a *API) listRoomMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	items, err := a.services.Media.ListForRoom(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, items, http.StatusOK)
}

// uploadMedia godoc
//
//	@Summary		Upload a photo or video
//	@Description	Multipart upload in the "file" field. image/* becomes a photo, video/* a video.
//	@Tags			medias
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			id		path		int		true	"Room id"
//	@Param			file	formData	file	true	"Photo or video"
//	@Success		201		{object}	core.Media
//	@Failure		403		{object}	ErrorResponse
//	@Failure		413		{object}	ErrorResponse
//	@Failure		415		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/chambres/{id}/medias/upload [post]
func (a *API) uploadMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	// multipart framing on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, a.config.Media.MaxSize+(1<<20))

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Formulaire multipart attendu", err, a.logger)
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusUnprocessableEntity, "Le champ 'file' est obligatoire", nil, nil)
			return
		}
		if err != nil {
			var maxBytesError *http.MaxBytesError
			if errors.As(err, &maxBytesError) {
				writeError(w, http.StatusRequestEntityTooLarge, "Fichier trop volumineux", nil, nil)
				return
			}
			writeError(w, http.StatusBadRequest, "Formulaire multipart invalide", err, a.logger)
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}

		m, err := a.services.Media.Upload(r.Context(), currentUser(r), id, service.Upload{
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		})
		part.Close()
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		a.respondJSON(w, m, http.StatusCreated)
		return
	}
}

// createMedia godoc
//
//	@Summary		Attach an external media URL
//	@Tags			medias
//	@Accept			json
//	@Produce		json
//	@Param			media	body		service.MediaInput	true	"Media"
//	@Success		201		{object}	core.Media
//	@Failure		403		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/medias [post]
func (a *API) createMedia(w http.ResponseWriter, r *http.Request) {
	var in service.MediaInput
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	m, err := a.services.Media.Create(r.Context(), currentUser(r), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, m, http.StatusCreated)
}

// getMedia godoc
//
//	@Summary	Get a media record
//	@Tags		medias
//	@Produce	json
//	@Param		id	path		int	true	"Media id"
//	@Success	200	{object}	core.Media
//	@Failure	404	{object}	ErrorResponse
//	@Router		/medias/{id} [get]
func (a *API) getMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	m, err := a.services.Media.Get(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, m, http.StatusOK)
}

// updateMedia godoc
//
//	@Summary	Update a media record
//	@Tags		medias
//	@Accept		json
//	@Produce	json
//	@Param		id		path		int					true	"Media id"
//	@Param		media	body		service.MediaInput	true	"Media"
//	@Success	200		{object}	core.Media
//	@Failure	403		{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/medias/{id} [put]
func (a *API) updateMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in service.MediaInput
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	m, err := a.services.Media.Update(r.Context(), currentUser(r), id, in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, m, http.StatusOK)
}

// deleteMedia godoc
//
//	@Summary	Delete a media record
//	@Tags		medias
//	@Param		id	path	int	true	"Media id"
//	@Success	204
//	@Failure	403	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/medias/{id} [delete]
func (a *API) deleteMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.services.Media.Delete(r.Context(), currentUser(r), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// search godoc
//
//	@Summary		Search rooms
//	@Description	Public search over available rooms by location, price and type
//	@Tags			recherche
//	@Produce		json
//	@Param			localisation	query	string	false	"City or address fragment"
//	@Param			prix_min		query	number	false	"Minimum price"
//	@Param			prix_max		query	number	false	"Maximum price"
//	@Param			type_chambre	query	string	false	"simple, appartement or maison"
//	@Param			skip			query	int		false	"Offset"	default(0)
//	@Param			limit			query	int		false	"Page size (1-200)"	default(100)
//	@Success		200	{array}		core.SearchResult
//	@Failure		400	{object}	ErrorResponse
//	@Router			/recherche/maisons-et-chambres [get]
func (a *API) search(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parseSkipLimit(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}
	prixMin, err := queryFloat(r, "prix_min")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}
	prixMax, err := queryFloat(r, "prix_max")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil, nil)
		return
	}

	q := r.URL.Query()
	items, err := a.services.Search.Search(r.Context(), core.SearchCriteria{
		Localisation: q.Get("localisation"),
		PrixMin:      prixMin,
		PrixMax:      prixMax,
		TypeChambre:  q.Get("type_chambre"),
		Skip:         skip,
		Limit:        limit,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.respondJSON(w, items, http.StatusOK)
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Time   string            `json:"time"`
}

// healthCheck godoc
//
//	@Summary		Health check
//	@Description	Returns the health status of the database and, when enabled, Redis
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/health [get]
func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), core.DBHealthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Checks: make(map[string]string, len(a.health))}
	status := http.StatusOK
	for name, check := range a.health {
		if err := check(ctx); err != nil {
			a.logger.Warnw("Health check failed", "check", name, "error", err)
			resp.Checks[name] = "unhealthy"
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	resp.Time = a.clock.Now().UTC().Format(time.RFC3339)
	a.respondJSON(w, resp, status)
}
