package reminder

import (
	"strings"

	"github.com/stntools/relance/pkg/models"
)

// TemplateData carries the substitution values for one reminder message.
type TemplateData struct {
	Name      string
	FormName  string
	FormURL   string
	DateEnvoi string
}

// Render substitutes the {name}, {form_name}, {form_url} and {date_envoi}
// placeholders. An empty template falls back to a minimal message so a
// misconfiguration never blocks a send.
func Render(template string, d TemplateData) string {
	if strings.TrimSpace(template) == "" {
		return "Bonjour " + d.Name + ", merci de remplir le formulaire " + d.FormName + " : " + d.FormURL
	}
	return strings.NewReplacer(
		"{name}", d.Name,
		"{form_name}", d.FormName,
		"{form_url}", d.FormURL,
		"{date_envoi}", d.DateEnvoi,
	).Replace(template)
}

// templateData builds the substitution values for one recipient of one form.
func templateData(p *models.Person, f *models.Form) TemplateData {
	dateEnvoi := "récemment"
	if f.DateEnvoi != nil {
		dateEnvoi = f.DateEnvoi.Format("02/01/2006")
	}
	return TemplateData{
		Name:      p.Name,
		FormName:  f.Name,
		FormURL:   f.URL(),
		DateEnvoi: dateEnvoi,
	}
}
