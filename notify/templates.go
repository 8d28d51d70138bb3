package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	texttemplate "text/template"
	"time"

	"louyass/core"
)

// Appointment mail kinds sent to the tenant are the appointment statuses.
// Owner mail kinds:
const (
	OwnerCreation               = "creation"
	OwnerModificationDate       = "modification_date"
	OwnerAnnulationLocataire    = "annulation_locataire"
	OwnerAnnulationProprietaire = "annulation_proprietaire"
)

const signature = `<p>Cordialement,<br>L'équipe Immobilière</p>`

var htmlTemplates = template.Must(template.New("mail").Parse(`
{{define "tenant_en_attente"}}<html><body>
<p>Bonjour {{.Name}},</p>
<p>Votre demande de rendez-vous pour la chambre <strong>'{{.Room}}'</strong> a été enregistrée.</p>
<p><strong>Date proposée :</strong> {{.Date}}</p>
<p>Le propriétaire sera informé et vous recevrez une confirmation sous peu.</p>
` + signature + `
</body></html>{{end}}

{{define "tenant_confirmé"}}<html><body>
<p>Bonjour {{.Name}},</p>
<p>Votre rendez-vous pour la chambre <strong>'{{.Room}}'</strong> a été confirmé.</p>
<p><strong>Détails :</strong></p>
<ul>
<li><strong>Date et heure :</strong> {{.Date}}</li>
<li><strong>Adresse :</strong> {{.Address}}</li>
</ul>
<p>Présentez-vous à l'adresse indiquée à l'heure convenue.</p>
` + signature + `
</body></html>{{end}}

{{define "tenant_annulé"}}<html><body>
<p>Bonjour {{.Name}},</p>
<p>Votre rendez-vous prévu pour le {{.Date}} a été annulé.</p>
<p><strong>Chambre :</strong> {{.Room}}</p>
<p><strong>Adresse :</strong> {{.Address}}</p>
<p>Veuillez nous excuser pour tout inconvénient.</p>
` + signature + `
</body></html>{{end}}

{{define "tenant_update"}}<html><body>
<p>Bonjour {{.Name}},</p>
<p>Le statut de votre rendez-vous pour la chambre '{{.Room}}' a été mis à jour.</p>
<p>Nouveau statut : <strong>{{.Status}}</strong></p>
` + signature + `
</body></html>{{end}}

{{define "owner_creation"}}<html><body>
<p>Bonjour {{.Name}},</p>
<p>Vous avez une nouvelle demande de rendez-vous pour votre chambre :</p>
<p><strong>{{.Room}}</strong> - {{.Address}}</p>
<p><strong>Locataire :</strong> {{.Tenant}}</p>
<p><strong>Date proposée :</strong> {{.Date}}</p>
<p><strong>Contact :</strong> {{.Phone}}</p>
<p>Veuillez confirmer ou annuler ce rendez-vous dans votre espace propriétaire.</p>
` + signature + `
</body></html>{{end}}

{{define "owner_modification_date"}}<html><body>
<p>Bonjour {{.Name}},</p>
<p>Le locataire a modifié la date du rendez-vous pour votre chambre :</p>
<p><strong>{{.Room}}</strong> - {{.Address}}</p>
<p><strong>Nouvelle date proposée :</strong> {{.Date}}</p>
<p>Veuillez confirmer ou annuler ce nouveau créneau.</p>
` + signature + `
</body></html>{{end}}

{{define "owner_annulation_locataire"}}<html><body>
<p>Bonjour {{.Name}},</p>
<p>Le locataire a annulé le rendez-vous pour votre chambre :</p>
<p><strong>{{.Room}}</strong> - {{.Address}}</p>
<p><strong>Date prévue :</strong> {{.Date}}</p>
` + signature + `
</body></html>{{end}}

{{define "owner_annulation_proprietaire"}}<html><body>
<p>Bonjour {{.Name}},</p>
<p>Vous avez annulé le rendez-vous pour votre chambre :</p>
<p><strong>{{.Room}}</strong> - {{.Address}}</p>
<p><strong>Date prévue :</strong> {{.Date}}</p>
<p>Le locataire a été notifié de cette annulation.</p>
` + signature + `
</body></html>{{end}}

{{define "contract_created"}}<html><body>
<p>Bonjour {{.Name}},</p>
<p>Votre contrat de location pour la chambre <strong>'{{.Room}}'</strong> ({{.Address}}) a été créé.</p>
<p><strong>Période :</strong> du {{.Start}} au {{.End}}</p>
<p><strong>Caution :</strong> {{.Amount}} CFA</p>
` + signature + `
</body></html>{{end}}

{{define "contract_terminated"}}<html><body>
<p>Bonjour {{.Name}},</p>
<p>Votre contrat de location n°{{.ContractID}} pour la chambre <strong>'{{.Room}}'</strong> a été résilié.</p>
` + signature + `
</body></html>{{end}}

{{define "payment_received"}}<html><body>
<p>Bonjour {{.Name}},</p>
<p>Paiement de {{.Amount}} CFA reçu pour le contrat {{.ContractID}}.</p>
<p><strong>Locataire :</strong> {{.Tenant}}</p>
` + signature + `
</body></html>{{end}}
`))

var textTemplates = texttemplate.Must(texttemplate.New("mail").Parse(`
{{define "tenant_en_attente"}}Bonjour {{.Name}}, votre demande de rendez-vous pour la chambre '{{.Room}}' le {{.Date}} a été enregistrée.{{end}}
{{define "tenant_confirmé"}}Bonjour {{.Name}}, votre rendez-vous pour la chambre '{{.Room}}' le {{.Date}} ({{.Address}}) a été confirmé.{{end}}
{{define "tenant_annulé"}}Bonjour {{.Name}}, votre rendez-vous du {{.Date}} pour la chambre '{{.Room}}' a été annulé.{{end}}
{{define "tenant_update"}}Bonjour {{.Name}}, le statut de votre rendez-vous pour la chambre '{{.Room}}' est maintenant {{.Status}}.{{end}}
{{define "owner_creation"}}Bonjour {{.Name}}, nouvelle demande de rendez-vous de {{.Tenant}} ({{.Phone}}) pour '{{.Room}}' le {{.Date}}.{{end}}
{{define "owner_modification_date"}}Bonjour {{.Name}}, le locataire propose une nouvelle date pour '{{.Room}}' : {{.Date}}.{{end}}
{{define "owner_annulation_locataire"}}Bonjour {{.Name}}, le locataire a annulé le rendez-vous du {{.Date}} pour '{{.Room}}'.{{end}}
{{define "owner_annulation_proprietaire"}}Bonjour {{.Name}}, vous avez annulé le rendez-vous du {{.Date}} pour '{{.Room}}'.{{end}}
{{define "contract_created"}}Bonjour {{.Name}}, votre contrat pour la chambre '{{.Room}}' court du {{.Start}} au {{.End}}.{{end}}
{{define "contract_terminated"}}Bonjour {{.Name}}, votre contrat n°{{.ContractID}} pour la chambre '{{.Room}}' a été résilié.{{end}}
{{define "payment_received"}}Paiement de {{.Amount}} CFA reçu pour le contrat {{.ContractID}}{{end}}
`))

type mailData struct {
	Name       string
	Room       string
	Address    string
	Date       string
	Tenant     string
	Phone      string
	Status     string
	Amount     string
	ContractID int64
	Start      string
	End        string
}

func render(name, to, subject string, data mailData) (Email, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&htmlBuf, name, data); err != nil {
		return Email{}, fmt.Errorf("failed to render %s: %w", name, err)
	}
	if err := textTemplates.ExecuteTemplate(&textBuf, name, data); err != nil {
		return Email{}, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return Email{To: to, Subject: subject, HTML: htmlBuf.String(), Text: textBuf.String()}, nil
}

func roomInfo(r *core.Room) (titre, adresse string) {
	if r == nil {
		return "", ""
	}
	if r.Maison != nil {
		adresse = r.Maison.Adresse
	}
	return r.Titre, adresse
}

func formatDate(t time.Time) string {
	return t.Format(core.DisplayDateFormat)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// AppointmentTenantMail renders the mail sent to the tenant of an
// appointment. statut selects the variant; unknown values render a generic
// status update.
func AppointmentTenantMail(statut core.AppointmentStatus, a *core.Appointment, tenant *core.User) (Email, error) {
	titre, adresse := roomInfo(a.Chambre)
	date := formatDate(a.DateHeure)
	data := mailData{Name: tenant.FullName(), Room: titre, Address: adresse, Date: date, Status: string(statut)}

	switch statut {
	case core.AppointmentConfirmed:
		return render("tenant_confirmé", tenant.Email, fmt.Sprintf("Rendez-vous confirmé: %s - %s", titre, date), data)
	case core.AppointmentCancelled:
		return render("tenant_annulé", tenant.Email, "Rendez-vous annulé: "+titre, data)
	case core.AppointmentPending:
		return render("tenant_en_attente", tenant.Email, "Demande de rendez-vous pour: "+titre, data)
	default:
		return render("tenant_update", tenant.Email, "Mise à jour de votre rendez-vous pour: "+titre, data)
	}
}

// AppointmentOwnerMail renders the mail sent to the owner of the room
func AppointmentOwnerMail(kind string, a *core.Appointment, tenant, owner *core.User) (Email, error) {
	titre, adresse := roomInfo(a.Chambre)
	data := mailData{Name: owner.FullName(), Room: titre, Address: adresse, Date: formatDate(a.DateHeure)}
	if tenant != nil {
		data.Tenant = tenant.FullName()
		data.Phone = tenant.Telephone
	}
	if data.Phone == "" {
		data.Phone = "Non renseigné"
	}

	switch kind {
	case OwnerCreation:
		return render("owner_creation", owner.Email, "Nouvelle demande de rendez-vous: "+titre, data)
	case OwnerModificationDate:
		return render("owner_modification_date", owner.Email, "Modification de rendez-vous: "+titre, data)
	case OwnerAnnulationLocataire:
		return render("owner_annulation_locataire", owner.Email, "Annulation de rendez-vous: "+titre, data)
	case OwnerAnnulationProprietaire:
		return render("owner_annulation_proprietaire", owner.Email, "Rendez-vous annulé: "+titre, data)
	default:
		return Email{}, fmt.Errorf("unknown owner mail kind %q", kind)
	}
}

// ContractCreatedMail renders the mail sent to the tenant of a new lease
func ContractCreatedMail(c *core.Contract, tenant *core.User) (Email, error) {
	titre, adresse := roomInfo(c.Chambre)
	data := mailData{
		Name:       tenant.FullName(),
		Room:       titre,
		Address:    adresse,
		Amount:     formatAmount(c.MontantCaution),
		ContractID: c.ID,
		Start:      c.DateDebut.Format("02/01/2006"),
		End:        c.DateFin.Format("02/01/2006"),
	}
	return render("contract_created", tenant.Email, "Votre contrat de location pour: "+titre, data)
}

// ContractTerminatedMail renders the mail sent to the tenant when the lease ends
func ContractTerminatedMail(c *core.Contract, tenant *core.User) (Email, error) {
	titre, adresse := roomInfo(c.Chambre)
	data := mailData{Name: tenant.FullName(), Room: titre, Address: adresse, ContractID: c.ID}
	return render("contract_terminated", tenant.Email, "Résiliation de votre contrat: "+titre, data)
}

// PaymentReceivedMail renders the receipt sent to the owner
func PaymentReceivedMail(p *core.Payment, tenant, owner *core.User) (Email, error) {
	data := mailData{Name: owner.FullName(), Amount: formatAmount(p.Montant), ContractID: p.ContratID}
	if tenant != nil {
		data.Tenant = tenant.FullName()
	}
	return render("payment_received", owner.Email, "Nouveau paiement reçu", data)
}
