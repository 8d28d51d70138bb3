package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"louyass/core"
	"louyass/media"
	"louyass/storage"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// HouseInput is the body of a house create or full update
type HouseInput struct {
	Nom         string   `json:"nom" validate:"required,max=200"`
	Adresse     string   `json:"adresse" validate:"required,max=500"`
	Ville       string   `json:"ville" validate:"max=100"`
	Superficie  float64  `json:"superficie" validate:"gte=0"`
	Latitude    *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Description string   `json:"description" validate:"max=5000"`
}

// HouseService manages houses. Reads are public, writes belong to the owner.
type HouseService struct {
	houses HouseStore
	clock  clockwork.Clock
	logger *zap.SugaredLogger
}

// NewHouseService creates the house service
func NewHouseService(houses HouseStore, clock clockwork.Clock, logger *zap.SugaredLogger) *HouseService {
	if houses == nil {
		panic("houses storage is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HouseService{houses: houses, clock: clock, logger: logger}
}

// Create adds a house owned by the caller
func (s *HouseService) Create(ctx context.Context, caller *core.User, in HouseInput) (*core.House, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if caller.Role != core.RoleOwner {
		return nil, forbidden("Seuls les propriétaires peuvent créer des maisons")
	}
	h := &core.House{ProprietaireID: caller.ID, CreeLe: s.clock.Now().UTC()}
	applyHouseInput(h, in)
	if err := s.houses.CreateHouse(ctx, h); err != nil {
		return nil, internal("create house", err)
	}
	s.logger.Infow("House created", "house_id", h.ID, "owner_id", caller.ID)
	return h, nil
}

// Get returns a house
func (s *HouseService) Get(ctx context.Context, id int64) (*core.House, error) {
	h, err := s.houses.GetHouse(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrHouseNotFound, "Maison non trouvée.", "load house")
	}
	return h, nil
}

// List returns a page of houses and the total matching count
func (s *HouseService) List(ctx context.Context, search string, proprietaireID int64, skip, limit int) ([]core.House, int64, error) {
	if err := validatePage(skip, limit); err != nil {
		return nil, 0, err
	}
	items, total, err := s.houses.ListHouses(ctx, storage.HouseFilter{
		Search:         search,
		ProprietaireID: proprietaireID,
		Limit:          limit,
		Offset:         skip,
	})
	if err != nil {
		return nil, 0, internal("list houses", err)
	}
	return items, total, nil
}

// Update replaces the house attributes
func (s *HouseService) Update(ctx context.Context, caller *core.User, id int64, in HouseInput) (*core.House, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	h, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.ProprietaireID != caller.ID {
		return nil, forbidden("Vous n'êtes pas autorisé à modifier cette maison.")
	}
	applyHouseInput(h, in)
	if err := s.houses.UpdateHouse(ctx, h); err != nil {
		return nil, notFoundOr(err, storage.ErrHouseNotFound, "Maison non trouvée.", "update house")
	}
	return h, nil
}

// Delete removes a house with its rooms
func (s *HouseService) Delete(ctx context.Context, caller *core.User, id int64) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	h, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if h.ProprietaireID != caller.ID {
		return forbidden("Vous n'êtes pas autorisé à supprimer cette maison.")
	}
	if err := s.houses.DeleteHouse(ctx, id); err != nil {
		return notFoundOr(err, storage.ErrHouseNotFound, "Maison non trouvée.", "delete house")
	}
	s.logger.Infow("House deleted", "house_id", id, "owner_id", caller.ID)
	return nil
}

func applyHouseInput(h *core.House, in HouseInput) {
	h.Nom = in.Nom
	h.Adresse = in.Adresse
	h.Ville = in.Ville
	h.Superficie = in.Superficie
	h.Latitude = in.Latitude
	h.Longitude = in.Longitude
	h.Description = in.Description
}

// RoomInput is the body of a room create or full update
type RoomInput struct {
	MaisonID    int64         `json:"maison_id" validate:"required,gt=0"`
	Titre       string        `json:"titre" validate:"required,max=200"`
	Description string        `json:"description" validate:"max=5000"`
	Taille      float64       `json:"taille" validate:"gte=0"`
	Type        core.RoomType `json:"type" validate:"required,oneof=simple appartement maison"`
	Meublee     bool          `json:"meublee"`
	Prix        float64       `json:"prix" validate:"gte=0"`
	Capacite    int           `json:"capacite" validate:"gte=0"`
	SalleDeBain bool          `json:"salle_de_bain"`
	Disponible  *bool         `json:"disponible,omitempty"`
}

// RoomService manages rooms. The owner of a room is the owner of its house.
type RoomService struct {
	rooms  RoomStore
	houses HouseStore
	leases LeaseChecker
	clock  clockwork.Clock
	logger *zap.SugaredLogger
}

// NewRoomService creates the room service
func NewRoomService(rooms RoomStore, houses HouseStore, leases LeaseChecker, clock clockwork.Clock, logger *zap.SugaredLogger) *RoomService {
	if rooms == nil || houses == nil || leases == nil {
		panic("room service storages are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoomService{rooms: rooms, houses: houses, leases: leases, clock: clock, logger: logger}
}

func (s *RoomService) ownedHouse(ctx context.Context, caller *core.User, maisonID int64) (*core.House, error) {
	h, err := s.houses.GetHouse(ctx, maisonID)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrHouseNotFound, fmt.Sprintf("Maison avec l'ID %d non trouvée.", maisonID), "load house")
	}
	if h.ProprietaireID != caller.ID {
		return nil, forbidden("Vous n'êtes pas le propriétaire de cette maison")
	}
	return h, nil
}

// Create adds a room to one of the caller's houses. Rooms start available.
func (s *RoomService) Create(ctx context.Context, caller *core.User, in RoomInput) (*core.Room, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	house, err := s.ownedHouse(ctx, caller, in.MaisonID)
	if err != nil {
		return nil, err
	}
	r := &core.Room{Disponible: true, CreeLe: s.clock.Now().UTC()}
	applyRoomInput(r, in)
	if err := s.rooms.CreateRoom(ctx, r); err != nil {
		return nil, notFoundOr(err, storage.ErrHouseNotFound, fmt.Sprintf("Maison avec l'ID %d non trouvée.", in.MaisonID), "create room")
	}
	r.Maison = house
	return r, nil
}

// Get returns a room with its house
func (s *RoomService) Get(ctx context.Context, id int64) (*core.Room, error) {
	r, err := s.rooms.GetRoomWithOwner(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrRoomNotFound, "Chambre non trouvée", "load room")
	}
	return r, nil
}

// List returns a page of rooms and the total matching count
func (s *RoomService) List(ctx context.Context, maisonID int64, disponible *bool, skip, limit int) ([]core.Room, int64, error) {
	if err := validatePage(skip, limit); err != nil {
		return nil, 0, err
	}
	items, total, err := s.rooms.ListRooms(ctx, storage.RoomFilter{
		MaisonID:   maisonID,
		Disponible: disponible,
		Limit:      limit,
		Offset:     skip,
	})
	if err != nil {
		return nil, 0, internal("list rooms", err)
	}
	return items, total, nil
}

// Update replaces the room attributes. Moving the room to another house
// requires owning that house too.
func (s *RoomService) Update(ctx context.Context, caller *core.User, id int64, in RoomInput) (*core.Room, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.OwnerID() != caller.ID {
		return nil, forbidden("Vous n'êtes pas le propriétaire de cette chambre")
	}
	if in.MaisonID != r.MaisonID {
		house, err := s.ownedHouse(ctx, caller, in.MaisonID)
		if err != nil {
			return nil, err
		}
		r.Maison = house
	}
	if in.Disponible != nil && *in.Disponible && !r.Disponible {
		leased, err := s.leases.HasActiveContractForRoom(ctx, r.ID)
		if err != nil {
			return nil, internal("check room lease", err)
		}
		if leased {
			return nil, conflict("Une chambre sous contrat actif ne peut pas être rendue disponible")
		}
	}
	applyRoomInput(r, in)
	if err := s.rooms.UpdateRoom(ctx, r); err != nil {
		return nil, notFoundOr(err, storage.ErrRoomNotFound, "Chambre non trouvée", "update room")
	}
	return r, nil
}

// Delete removes a room with its media, appointments and contracts
func (s *RoomService) Delete(ctx context.Context, caller *core.User, id int64) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.OwnerID() != caller.ID {
		return forbidden("Vous n'êtes pas le propriétaire de cette chambre")
	}
	if err := s.rooms.DeleteRoom(ctx, id); err != nil {
		return notFoundOr(err, storage.ErrRoomNotFound, "Chambre non trouvée", "delete room")
	}
	s.logger.Infow("Room deleted", "room_id", id, "owner_id", caller.ID)
	return nil
}

func applyRoomInput(r *core.Room, in RoomInput) {
	r.MaisonID = in.MaisonID
	r.Titre = in.Titre
	r.Description = in.Description
	r.Taille = in.Taille
	r.Type = in.Type
	r.Meublee = in.Meublee
	r.Prix = in.Prix
	r.Capacite = in.Capacite
	r.SalleDeBain = in.SalleDeBain
	if in.Disponible != nil {
		r.Disponible = *in.Disponible
	}
}

// MediaInput is the body of a media record pointing at an external URL
type MediaInput struct {
	ChambreID int64          `json:"chambre_id" validate:"required,gt=0"`
	URL       string         `json:"url" validate:"required,url,max=2000"`
	Type      core.MediaType `json:"type" validate:"required,oneof=photo video"`
}

// Upload is a file posted for a room
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// MediaService manages room photos and videos. Uploaded files go to the
// media store; external URLs are recorded as given.
type MediaService struct {
	medias  MediaStore
	rooms   RoomReader
	store   media.Store
	maxSize int64
	clock   clockwork.Clock
	logger  *zap.SugaredLogger
}

// NewMediaService creates the media service. store may be nil, in which case
// uploads are refused.
func NewMediaService(medias MediaStore, rooms RoomReader, store media.Store, maxSize int64, clock clockwork.Clock, logger *zap.SugaredLogger) *MediaService {
	if medias == nil || rooms == nil {
		panic("media service storages are required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if maxSize <= 0 {
		maxSize = media.DefaultMaxSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MediaService{medias: medias, rooms: rooms, store: store, maxSize: maxSize, clock: clock, logger: logger}
}

func (s *MediaService) ownedRoom(ctx context.Context, caller *core.User, chambreID int64) (*core.Room, error) {
	r, err := s.rooms.GetRoomWithOwner(ctx, chambreID)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrRoomNotFound, "Chambre non trouvée", "load room")
	}
	if r.OwnerID() != caller.ID {
		return nil, forbidden("Vous n'êtes pas le propriétaire de cette chambre")
	}
	return r, nil
}

// Create records a media given by URL
func (s *MediaService) Create(ctx context.Context, caller *core.User, in MediaInput) (*core.Media, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if _, err := s.ownedRoom(ctx, caller, in.ChambreID); err != nil {
		return nil, err
	}
	m := &core.Media{ChambreID: in.ChambreID, URL: in.URL, Type: in.Type, CreeLe: s.clock.Now().UTC()}
	if err := s.medias.CreateMedia(ctx, m); err != nil {
		return nil, notFoundOr(err, storage.ErrRoomNotFound, "Chambre non trouvée", "create media")
	}
	return m, nil
}

// Upload stores a file for a room and records it
func (s *MediaService) Upload(ctx context.Context, caller *core.User, chambreID int64, up Upload) (*core.Media, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, &Error{Status: http.StatusServiceUnavailable, Detail: "Stockage des médias indisponible"}
	}
	if _, err := s.ownedRoom(ctx, caller, chambreID); err != nil {
		return nil, err
	}
	mediaType, err := media.Classify(up.ContentType)
	if err != nil {
		return nil, &Error{Status: http.StatusUnsupportedMediaType, Detail: "Type de fichier non supporté", Err: err}
	}

	key := media.NewKey(chambreID, up.Filename, up.ContentType)
	url, err := s.store.Put(ctx, key, up.ContentType, media.LimitReader(up.Body, s.maxSize))
	if err != nil {
		if errors.Is(err, media.ErrTooLarge) {
			return nil, &Error{Status: http.StatusRequestEntityTooLarge, Detail: "Fichier trop volumineux", Err: err}
		}
		return nil, internal("store media", err)
	}

	m := &core.Media{ChambreID: chambreID, URL: url, Type: mediaType, StorageKey: key, CreeLe: s.clock.Now().UTC()}
	if err := s.medias.CreateMedia(ctx, m); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warnw("Failed to remove orphan media blob", "key", key, "error", delErr)
		}
		return nil, notFoundOr(err, storage.ErrRoomNotFound, "Chambre non trouvée", "create media")
	}
	s.logger.Infow("Media uploaded", "media_id", m.ID, "room_id", chambreID, "type", mediaType)
	return m, nil
}

// Get returns a media record
func (s *MediaService) Get(ctx context.Context, id int64) (*core.Media, error) {
	m, err := s.medias.GetMedia(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrMediaNotFound, "Média non trouvé", "load media")
	}
	return m, nil
}

// ListForRoom returns the media of a room
func (s *MediaService) ListForRoom(ctx context.Context, chambreID int64) ([]core.Media, error) {
	if _, err := s.rooms.GetRoomWithOwner(ctx, chambreID); err != nil {
		return nil, notFoundOr(err, storage.ErrRoomNotFound, "Chambre non trouvée", "load room")
	}
	items, err := s.medias.ListMediaForRoom(ctx, chambreID)
	if err != nil {
		return nil, internal("list media", err)
	}
	return items, nil
}

// Update changes the URL or type of a media record. The room cannot change.
func (s *MediaService) Update(ctx context.Context, caller *core.User, id int64, in MediaInput) (*core.Media, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedRoom(ctx, caller, m.ChambreID); err != nil {
		return nil, err
	}
	if in.URL != m.URL {
		m.StorageKey = ""
	}
	m.URL = in.URL
	m.Type = in.Type
	if err := s.medias.UpdateMedia(ctx, m); err != nil {
		return nil, notFoundOr(err, storage.ErrMediaNotFound, "Média non trouvé", "update media")
	}
	return m, nil
}

// Delete removes a media record and its stored file, if any
func (s *MediaService) Delete(ctx context.Context, caller *core.User, id int64) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.ownedRoom(ctx, caller, m.ChambreID); err != nil {
		return err
	}
	if err := s.medias.DeleteMedia(ctx, id); err != nil {
		return notFoundOr(err, storage.ErrMediaNotFound, "Média non trouvé", "delete media")
	}
	if m.StorageKey != "" && s.store != nil {
		if err := s.store.Delete(ctx, m.StorageKey); err != nil {
			s.logger.Warnw("Failed to delete media blob", "media_id", id, "key", m.StorageKey, "error", err)
		}
	}
	return nil
}

// SearchService answers the public room search
type SearchService struct {
	search SearchStore
}

// NewSearchService creates the search service
func NewSearchService(search SearchStore) *SearchService {
	if search == nil {
		panic("search storage is required")
	}
	return &SearchService{search: search}
}

// Search filters rooms by location, price range and type
func (s *SearchService) Search(ctx context.Context, criteria core.SearchCriteria) ([]core.SearchResult, error) {
	if err := validatePage(criteria.Skip, criteria.Limit); err != nil {
		return nil, err
	}
	if criteria.PrixMin != nil && criteria.PrixMax != nil && *criteria.PrixMin > *criteria.PrixMax {
		return nil, badRequest("prix_min doit être inférieur ou égal à prix_max")
	}
	if criteria.TypeChambre != "" && !core.RoomType(criteria.TypeChambre).IsValid() {
		return nil, badRequest("type_chambre invalide")
	}
	items, err := s.search.SearchRooms(ctx, criteria)
	if err != nil {
		return nil, internal("search rooms", err)
	}
	return items, nil
}
