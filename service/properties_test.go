package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"louyass/core"
	"louyass/media"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHouseOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	other := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)

	_, err := env.houseSvc.Create(ctx, tenant, HouseInput{Nom: "X", Adresse: "Y"})
	requireStatus(t, err, http.StatusForbidden)

	h, err := env.houseSvc.Create(ctx, owner, HouseInput{Nom: "Résidence Ngor", Adresse: "Route de Ngor", Ville: "Dakar", Superficie: 320})
	require.NoError(t, err)
	assert.Equal(t, owner.ID, h.ProprietaireID)

	_, err = env.houseSvc.Update(ctx, other, h.ID, HouseInput{Nom: "Volée", Adresse: "?"})
	assert.Equal(t, "Vous n'êtes pas autorisé à modifier cette maison.", requireStatus(t, err, http.StatusForbidden).Detail)
	assert.Equal(t, "Vous n'êtes pas autorisé à supprimer cette maison.",
		requireStatus(t, env.houseSvc.Delete(ctx, other, h.ID), http.StatusForbidden).Detail)

	updated, err := env.houseSvc.Update(ctx, owner, h.ID, HouseInput{Nom: "Résidence Ngor II", Adresse: "Route de Ngor", Ville: "Dakar"})
	require.NoError(t, err)
	assert.Equal(t, "Résidence Ngor II", updated.Nom)

	items, total, err := env.houseSvc.List(ctx, "ngor", 0, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, items, 1)

	require.NoError(t, env.houseSvc.Delete(ctx, owner, h.ID))
	_, err = env.houseSvc.Get(ctx, h.ID)
	assert.Equal(t, "Maison non trouvée.", requireStatus(t, err, http.StatusNotFound).Detail)
}

func TestRoomOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	other := env.createUser(t, core.RoleOwner)
	room := env.createRoom(t, owner)

	_, err := env.roomSvc.Create(ctx, other, RoomInput{MaisonID: room.MaisonID, Titre: "Intrus", Type: core.RoomTypeSingle})
	requireStatus(t, err, http.StatusForbidden)
	_, err = env.roomSvc.Create(ctx, owner, RoomInput{MaisonID: 404, Titre: "Nulle part", Type: core.RoomTypeSingle})
	assert.Equal(t, "Maison avec l'ID 404 non trouvée.", requireStatus(t, err, http.StatusNotFound).Detail)

	otherHouse, err := env.houseSvc.Create(ctx, other, HouseInput{Nom: "Autre", Adresse: "Ailleurs"})
	require.NoError(t, err)
	in := RoomInput{MaisonID: otherHouse.ID, Titre: room.Titre, Type: room.Type, Prix: room.Prix}
	_, err = env.roomSvc.Update(ctx, owner, room.ID, in)
	requireStatus(t, err, http.StatusForbidden)

	unavailable := false
	in = RoomInput{MaisonID: room.MaisonID, Titre: "Chambre rénovée", Type: core.RoomTypeApartment, Prix: 90000, Disponible: &unavailable}
	got, err := env.roomSvc.Update(ctx, owner, room.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Chambre rénovée", got.Titre)
	assert.False(t, got.Disponible)

	available := true
	_, total, err := env.roomSvc.List(ctx, room.MaisonID, &available, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	requireStatus(t, env.roomSvc.Delete(ctx, other, room.ID), http.StatusForbidden)
	require.NoError(t, env.roomSvc.Delete(ctx, owner, room.ID))
}

func TestRoomMoveToAnotherHouse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	room := env.createRoom(t, owner)

	second, err := env.houseSvc.Create(ctx, owner, HouseInput{Nom: "Résidence Almadies", Adresse: "Route des Almadies"})
	require.NoError(t, err)

	moved, err := env.roomSvc.Update(ctx, owner, room.ID, RoomInput{MaisonID: second.ID, Titre: room.Titre, Type: room.Type, Prix: room.Prix})
	require.NoError(t, err)
	assert.Equal(t, second.ID, moved.MaisonID)

	reloaded, err := env.roomSvc.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, reloaded.MaisonID)
	assert.Equal(t, "Résidence Almadies", reloaded.Maison.Nom)

	_, total, err := env.roomSvc.List(ctx, room.MaisonID, nil, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestLeasedRoomStaysUnavailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	tenant := env.createUser(t, core.RoleTenant)
	room := env.createRoom(t, owner)
	env.lease(t, owner, tenant, room)

	available := true
	in := RoomInput{MaisonID: room.MaisonID, Titre: room.Titre, Type: room.Type, Prix: room.Prix, Disponible: &available}
	_, err := env.roomSvc.Update(ctx, owner, room.ID, in)
	requireStatus(t, err, http.StatusConflict)

	// other edits go through and keep the room unavailable
	in.Disponible = nil
	in.Prix = 80000
	got, err := env.roomSvc.Update(ctx, owner, room.ID, in)
	require.NoError(t, err)
	assert.False(t, got.Disponible)

	reloaded, err := env.roomSvc.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Disponible)
	assert.Equal(t, 80000.0, reloaded.Prix)
}

var _ media.Store = (*memoryStore)(nil)

// memoryStore is a media.Store keeping blobs in a map
type memoryStore struct {
	blobs map[string][]byte
}

func (m *memoryStore) Put(_ context.Context, key, _ string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.blobs[key] = data
	return "https://cdn.example.sn/" + key, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.blobs, key)
	return nil
}

func TestMediaUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	other := env.createUser(t, core.RoleOwner)
	room := env.createRoom(t, owner)

	// same repositories, an in-memory store and a tiny size limit
	blobs := &memoryStore{blobs: map[string][]byte{}}
	svc := NewMediaService(env.mediaSvc.medias, env.rooms, blobs, 16, env.clock, zap.NewNop().Sugar())

	m, err := svc.Upload(ctx, owner, room.ID, Upload{Filename: "salon.JPG", ContentType: "image/jpeg", Body: strings.NewReader("jpeg-bytes")})
	require.NoError(t, err)
	assert.Equal(t, core.MediaPhoto, m.Type)
	assert.True(t, strings.HasPrefix(m.URL, "https://cdn.example.sn/chambres/"))
	assert.True(t, strings.HasSuffix(m.StorageKey, ".jpg"))
	assert.Len(t, blobs.blobs, 1)

	_, err = svc.Upload(ctx, owner, room.ID, Upload{Filename: "big.mp4", ContentType: "video/mp4", Body: bytes.NewReader(make([]byte, 64))})
	requireStatus(t, err, http.StatusRequestEntityTooLarge)

	_, err = svc.Upload(ctx, owner, room.ID, Upload{Filename: "doc.pdf", ContentType: "application/pdf", Body: strings.NewReader("%PDF")})
	requireStatus(t, err, http.StatusUnsupportedMediaType)

	_, err = svc.Upload(ctx, other, room.ID, Upload{Filename: "a.png", ContentType: "image/png", Body: strings.NewReader("png")})
	requireStatus(t, err, http.StatusForbidden)

	list, err := svc.ListForRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, owner, m.ID))
	assert.Empty(t, blobs.blobs)

	_, err = env.mediaSvc.Upload(ctx, owner, room.ID, Upload{Filename: "a.png", ContentType: "image/png", Body: strings.NewReader("png")})
	requireStatus(t, err, http.StatusServiceUnavailable)
}

func TestMediaByURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	room := env.createRoom(t, owner)

	m, err := env.mediaSvc.Create(ctx, owner, MediaInput{ChambreID: room.ID, URL: "https://img.example.sn/1.jpg", Type: core.MediaPhoto})
	require.NoError(t, err)

	got, err := env.mediaSvc.Update(ctx, owner, m.ID, MediaInput{ChambreID: room.ID, URL: "https://img.example.sn/2.mp4", Type: core.MediaVideo})
	require.NoError(t, err)
	assert.Equal(t, core.MediaVideo, got.Type)

	_, err = env.mediaSvc.Get(ctx, 999)
	assert.Equal(t, "Média non trouvé", requireStatus(t, err, http.StatusNotFound).Detail)
	_, err = env.mediaSvc.ListForRoom(ctx, 999)
	requireStatus(t, err, http.StatusNotFound)
}

func TestSearchValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, core.RoleOwner)
	env.createRoom(t, owner)

	lo, hi := 100000.0, 50000.0
	_, err := env.searchSvc.Search(ctx, core.SearchCriteria{PrixMin: &lo, PrixMax: &hi, Limit: 10})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = env.searchSvc.Search(ctx, core.SearchCriteria{TypeChambre: "chateau", Limit: 10})
	requireStatus(t, err, http.StatusBadRequest)

	hits, err := env.searchSvc.Search(ctx, core.SearchCriteria{Localisation: "dakar", Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chambre", hits[0].TypeBien)
}
