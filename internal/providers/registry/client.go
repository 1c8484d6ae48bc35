// Package registry adapts the official company registry API. Lookups
// are authenticated POSTs with the organization number in the body;
// the registry is authoritative for identity fields.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orgnr/bolagsdata/internal/auth"
	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/net/gateway"
	"github.com/orgnr/bolagsdata/internal/providers"
)

const companiesPath = "/organisationer"

// Client looks companies up in the registry API.
type Client struct {
	gw      *gateway.Gateway
	tokens  *auth.TokenManager
	baseURL string
}

// New builds a registry client on top of the shared gateway.
func New(gw *gateway.Gateway, tokens *auth.TokenManager, baseURL string) *Client {
	return &Client{gw: gw, tokens: tokens, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name implements providers.Provider.
func (c *Client) Name() string { return models.SourceRegistry }

// Fetch looks the company up by organization number. The registry wants
// the NNNNNN-NNNN form for 10-digit numbers and the 12-digit
// personal-number form verbatim. A 404 means the registry does not know
// the company.
func (c *Client) Fetch(ctx context.Context, orgnr string) (*providers.Record, error) {
	payload, err := json.Marshal(map[string]string{
		"identitetsbeteckning": models.FormatOrgnr(orgnr),
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, companiesPath, payload)
	if err != nil {
		if gateway.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var out orgResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("registry response: %w", err)
	}
	if len(out.Organisationer) == 0 {
		return nil, nil
	}
	return buildRecord(models.NormalizeOrgnr(orgnr), out.Organisationer[0]), nil
}

// post issues an authenticated request. A 401 invalidates the cached
// token and retries exactly once with a fresh one.
func (c *Client) post(ctx context.Context, path string, payload []byte) (*gateway.Response, error) {
	resp, err := c.do(ctx, path, payload)
	if gateway.IsUnauthorized(err) {
		log.Warn().Str("path", path).Msg("Registry token rejected, refreshing")
		c.tokens.Invalidate()
		return c.do(ctx, path, payload)
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, path string, payload []byte) (*gateway.Response, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry auth: %w", err)
	}
	return c.gw.Do(ctx, gateway.Request{
		Source: models.SourceRegistry,
		Method: http.MethodPost,
		URL:    c.baseURL + path,
		Headers: map[string]string{
			"Authorization": "Bearer " + tok,
			"Content-Type":  "application/json",
			"Accept":        "application/json",
		},
		Body: payload,
	})
}

type orgResponse struct {
	Organisationer []organisation `json:"organisationer"`
}

type organisation struct {
	Identitetsbeteckning   string        `json:"identitetsbeteckning"`
	Organisationsnamn      namnLista     `json:"organisationsnamn"`
	Organisationsform      kodKlartext   `json:"organisationsform"`
	Registreringsdatum     string        `json:"registreringsdatum"`
	Avregistreringsdatum   string        `json:"avregistreringsdatum"`
	VerksamOrganisation    kodKlartext   `json:"verksamOrganisation"`
	Avvecklingsforfaranden []kodKlartext `json:"pagaendeAvvecklingsforfaranden"`
	Postadress             postadress    `json:"postadress"`
	Naringsgrenar          []naringsgren `json:"naringsgrenar"`
}

type namnLista struct {
	Lista []namnPost `json:"organisationsnamnLista"`
}

type namnPost struct {
	Namn string `json:"namn"`
	Typ  string `json:"typ"`
}

type kodKlartext struct {
	Kod      string `json:"kod"`
	Klartext string `json:"klartext"`
}

type postadress struct {
	Utdelningsadress string `json:"utdelningsadress"`
	Postnummer       string `json:"postnummer"`
	Postort          string `json:"postort"`
	Land             string `json:"land"`
}

type naringsgren struct {
	Kod      string `json:"sniKod"`
	Klartext string `json:"klartext"`
}

func buildRecord(orgnr string, org organisation) *providers.Record {
	company := &models.Company{
		Orgnr:  orgnr,
		Name:   org.name(),
		Status: org.status(),
	}
	if v := org.Organisationsform.Klartext; v != "" {
		company.CompanyType = &v
	}
	if d := parseDate(org.Registreringsdatum); d != nil {
		company.RegistrationDate = d
	}
	if v := org.Postadress.Utdelningsadress; v != "" {
		company.PostalStreet = &v
	}
	if v := org.Postadress.Postnummer; v != "" {
		company.PostalCode = &v
	}
	if v := org.Postadress.Postort; v != "" {
		company.PostalCity = &v
	}

	industries := make([]models.Industry, 0, len(org.Naringsgrenar))
	for _, n := range org.Naringsgrenar {
		if n.Kod == "" {
			continue
		}
		industries = append(industries, models.Industry{
			CompanyOrgnr:   orgnr,
			SNICode:        n.Kod,
			SNIDescription: n.Klartext,
			IsPrimary:      len(industries) == 0,
		})
	}

	return &providers.Record{Company: company, Industries: industries}
}

// name picks the FORETAGSNAMN entry from the name list, falling back to
// the first entry.
func (o organisation) name() string {
	for _, n := range o.Organisationsnamn.Lista {
		if n.Typ == "FORETAGSNAMN" {
			return n.Namn
		}
	}
	if len(o.Organisationsnamn.Lista) > 0 {
		return o.Organisationsnamn.Lista[0].Namn
	}
	return ""
}

// status maps the registry's flags onto the canonical status values.
// Deregistration beats the active flag; an ongoing bankruptcy or
// liquidation procedure beats both.
func (o organisation) status() string {
	status := models.StatusInactive
	if o.VerksamOrganisation.Kod == "JA" {
		status = models.StatusActive
	}
	if o.Avregistreringsdatum != "" {
		status = models.StatusDeregistered
	}
	for _, p := range o.Avvecklingsforfaranden {
		switch p.Kod {
		case "KK":
			return models.StatusBankruptcy
		case "LI":
			return models.StatusLiquidation
		}
	}
	return status
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
