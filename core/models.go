package core

import "time"

// User is an account on the platform
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Nom            string    `json:"nom"`
	Prenom         string    `json:"prenom"`
	NomUtilisateur string    `json:"nom_utilisateur,omitempty"`
	Telephone      string    `json:"telephone,omitempty"`
	CNI            string    `json:"cni,omitempty"`
	Role           Role      `json:"role"`
	MFAEnabled     bool      `json:"mfa_enabled"`
	CreeLe         time.Time `json:"cree_le"`

	PasswordHash        string     `json:"-"`
	TOTPSecret          string     `json:"-"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
}

// FullName returns "Prenom Nom"
func (u *User) FullName() string {
	if u.Prenom == "" {
		return u.Nom
	}
	return u.Prenom + " " + u.Nom
}

// IsLocked reports whether the account is locked out at the given time
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// UserSummary is the compact user representation embedded in other resources
type UserSummary struct {
	ID     int64  `json:"id"`
	Nom    string `json:"nom"`
	Prenom string `json:"prenom"`
	Email  string `json:"email"`
}

// Summary returns the compact representation of u
func (u *User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, Nom: u.Nom, Prenom: u.Prenom, Email: u.Email}
}

// House is a property owned by a proprietaire
type House struct {
	ID             int64     `json:"id"`
	ProprietaireID int64     `json:"proprietaire_id"`
	Nom            string    `json:"nom"`
	Adresse        string    `json:"adresse"`
	Ville          string    `json:"ville"`
	Superficie     float64   `json:"superficie"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Description    string    `json:"description"`
	CreeLe         time.Time `json:"cree_le"`
}

// Room is a rentable unit inside a house
type Room struct {
	ID          int64     `json:"id"`
	MaisonID    int64     `json:"maison_id"`
	Titre       string    `json:"titre"`
	Description string    `json:"description"`
	Taille      float64   `json:"taille"`
	Type        RoomType  `json:"type"`
	Meublee     bool      `json:"meublee"`
	Prix        float64   `json:"prix"`
	Capacite    int       `json:"capacite"`
	SalleDeBain bool      `json:"salle_de_bain"`
	Disponible  bool      `json:"disponible"`
	CreeLe      time.Time `json:"cree_le"`

	Maison *House `json:"maison,omitempty"`
}

// OwnerID returns the proprietaire of the room's house, or 0 when the house is not loaded
func (r *Room) OwnerID() int64 {
	if r.Maison == nil {
		return 0
	}
	return r.Maison.ProprietaireID
}

// Appointment is a viewing request from a tenant for a room
type Appointment struct {
	ID          int64             `json:"id"`
	LocataireID int64             `json:"locataire_id"`
	ChambreID   int64             `json:"chambre_id"`
	DateHeure   time.Time         `json:"date_heure"`
	Statut      AppointmentStatus `json:"statut"`
	CreeLe      time.Time         `json:"cree_le"`

	Locataire *UserSummary `json:"locataire,omitempty"`
	Chambre   *Room        `json:"chambre,omitempty"`
}

// Contract is a lease between a tenant and a room
type Contract struct {
	ID             int64          `json:"id"`
	LocataireID    int64          `json:"locataire_id"`
	ChambreID      int64          `json:"chambre_id"`
	DateDebut      time.Time      `json:"date_debut"`
	DateFin        time.Time      `json:"date_fin"`
	MontantCaution float64        `json:"montant_caution"`
	MoisCaution    int            `json:"mois_caution"`
	Description    string         `json:"description"`
	ModePaiement   string         `json:"mode_paiement"`
	Periodicite    string         `json:"periodicite"`
	Statut         ContractStatus `json:"statut"`
	CreeLe         time.Time      `json:"cree_le"`

	Locataire *UserSummary `json:"locataire,omitempty"`
	Chambre   *Room        `json:"chambre,omitempty"`
}

// Payment is a rent instalment on a contract
type Payment struct {
	ID           int64         `json:"id"`
	ContratID    int64         `json:"contrat_id"`
	Montant      float64       `json:"montant"`
	Statut       PaymentStatus `json:"statut"`
	DateEcheance time.Time     `json:"date_echeance"`
	DatePaiement *time.Time    `json:"date_paiement,omitempty"`
	CreeLe       time.Time     `json:"cree_le"`

	Contrat *Contract `json:"contrat,omitempty"`
}

// Media is a photo or video of a room
type Media struct {
	ID        int64     `json:"id"`
	ChambreID int64     `json:"chambre_id"`
	URL       string    `json:"url"`
	Type      MediaType `json:"type"`
	CreeLe    time.Time `json:"cree_le"`

	// StorageKey is set when the file was uploaded to the media store
	StorageKey string `json:"-"`
}

// Issue is a problem reported on a contract
type Issue struct {
	ID          int64       `json:"id"`
	ContratID   int64       `json:"contrat_id"`
	SignalePar  int64       `json:"signale_par"`
	Description string      `json:"description"`
	Type        string      `json:"type"`
	Statut      IssueStatus `json:"statut"`
	CreeLe      time.Time   `json:"cree_le"`
}

// Message is a direct message between two users
type Message struct {
	ID             int64     `json:"id"`
	ExpediteurID   int64     `json:"expediteur_id"`
	DestinataireID int64     `json:"destinataire_id"`
	Contenu        string    `json:"contenu"`
	DateEnvoi      time.Time `json:"date_envoi"`
	Lu             bool      `json:"lu"`

	ExpediteurEmail   string `json:"expediteur_email,omitempty"`
	DestinataireEmail string `json:"destinataire_email,omitempty"`
}

// SearchCriteria filters the room search
type SearchCriteria struct {
	Localisation string
	PrixMin      *float64
	PrixMax      *float64
	TypeChambre  string
	Skip         int
	Limit        int
}

// SearchResult is one entry of the room search
type SearchResult struct {
	ID          int64         `json:"id"`
	TypeBien    string        `json:"type_bien"`
	Adresse     string        `json:"adresse"`
	Prix        float64       `json:"prix"`
	Description string        `json:"description"`
	Details     SearchDetails `json:"details"`
}

// SearchDetails carries room and house attributes of a search hit
type SearchDetails struct {
	TitreChambre      string   `json:"titre_chambre"`
	TypeChambre       RoomType `json:"type_chambre"`
	Meublee           bool     `json:"meublee"`
	SalleDeBainPrivee bool     `json:"salle_de_bain_privee"`
	Disponible        bool     `json:"disponible"`
	MaisonID          int64    `json:"maison_id"`
	DescriptionMaison string   `json:"description_maison"`
}
