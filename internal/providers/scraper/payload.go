package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/providers"
)

// errNoPayload means the page carried no recognizable embedded JSON.
var errNoPayload = errors.New("no embedded payload in page")

const initialDataMarker = "window.__INITIAL_DATA__"

type nextData struct {
	Props struct {
		PageProps pageProps `json:"pageProps"`
	} `json:"props"`
}

type pageProps struct {
	Company      *companyPayload      `json:"company"`
	Organisation *organisationPayload `json:"organisation"`
	SearchResult *searchPayload       `json:"searchResult"`
}

type companyPayload struct {
	Orgnr            string               `json:"orgnr"`
	Name             string               `json:"name"`
	CompanyType      string               `json:"companyType"`
	Status           string               `json:"status"`
	RegistrationDate string               `json:"registrationDate"`
	Phone            string               `json:"phone"`
	Email            string               `json:"email"`
	Homepage         string               `json:"homepage"`
	Municipality     string               `json:"municipality"`
	County           string               `json:"county"`
	PostalAddress    *addressPayload      `json:"postalAddress"`
	VisitingAddress  *addressPayload      `json:"visitingAddress"`
	Accounts         []accountsPayload    `json:"accounts"`
	RoleGroups       []roleGroupPayload   `json:"roleGroups"`
	Industries       []industryPayload    `json:"industries"`
	Trademarks       []trademarkPayload   `json:"trademarks"`
	Announcements    []announcementRecord `json:"announcements"`
}

type addressPayload struct {
	Street   string `json:"street"`
	PostCode string `json:"postCode"`
	City     string `json:"city"`
}

type accountsPayload struct {
	Year         int           `json:"year"`
	Consolidated bool          `json:"consolidated"`
	Accounts     []accountLine `json:"accounts"`
}

type accountLine struct {
	Code   string      `json:"code"`
	Amount json.Number `json:"amount"`
}

type roleGroupPayload struct {
	Name  string        `json:"name"`
	Roles []rolePayload `json:"roles"`
}

type rolePayload struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Role      string `json:"role"`
	BirthYear int    `json:"birthYear"`
}

type industryPayload struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Primary     bool   `json:"primary"`
}

type trademarkPayload struct {
	Name         string `json:"name"`
	Registration string `json:"registrationNumber"`
	Registered   string `json:"registeredDate"`
}

type announcementRecord struct {
	Kind      string `json:"kind"`
	Text      string `json:"text"`
	Published string `json:"published"`
}

type organisationPayload struct {
	ParentCompany  *relatedPayload  `json:"parentCompany"`
	GroupCompanies []relatedPayload `json:"groupCompanies"`
	CompanyCount   int              `json:"companyCount"`
}

type relatedPayload struct {
	Orgnr    string `json:"orgnr"`
	Name     string `json:"name"`
	Relation string `json:"relation"`
}

type searchPayload struct {
	Hits []searchHit `json:"hits"`
}

type searchHit struct {
	Orgnr       string `json:"orgnr"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	CompanyType string `json:"companyType"`
}

// decodePayload pulls the embedded JSON out of a rendered page. The
// primary carrier is the __NEXT_DATA__ script tag; older pages assign
// the same pageProps object to window.__INITIAL_DATA__ instead.
func decodePayload(body []byte) (*pageProps, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if raw := doc.Find("script#__NEXT_DATA__").First().Text(); strings.TrimSpace(raw) != "" {
		var nd nextData
		if err := json.Unmarshal([]byte(raw), &nd); err != nil {
			return nil, err
		}
		return &nd.Props.PageProps, nil
	}

	var props *pageProps
	var decodeErr error
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		txt := s.Text()
		idx := strings.Index(txt, initialDataMarker)
		if idx < 0 {
			return true
		}
		start := strings.Index(txt[idx:], "{")
		end := strings.LastIndex(txt, "}")
		if start < 0 || end < idx+start {
			return true
		}
		var p pageProps
		if err := json.Unmarshal([]byte(txt[idx+start:end+1]), &p); err != nil {
			decodeErr = err
			return false
		}
		props = &p
		return false
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	if props != nil {
		return props, nil
	}
	return nil, errNoPayload
}

func buildRecord(orgnr string, co *companyPayload, org *organisationPayload) *providers.Record {
	company := &models.Company{
		Orgnr:        orgnr,
		Name:         co.Name,
		Status:       mapStatus(co.Status),
		CompanyType:  strPtr(co.CompanyType),
		Phone:        strPtr(co.Phone),
		Email:        strPtr(co.Email),
		Website:      strPtr(co.Homepage),
		Municipality: strPtr(co.Municipality),
		County:       strPtr(co.County),
	}
	if d := parseDate(co.RegistrationDate); d != nil {
		company.RegistrationDate = d
	}
	if a := co.PostalAddress; a != nil {
		company.PostalStreet = strPtr(a.Street)
		company.PostalCode = strPtr(a.PostCode)
		company.PostalCity = strPtr(a.City)
	}
	if a := co.VisitingAddress; a != nil {
		company.VisitingStreet = strPtr(a.Street)
		company.VisitingCity = strPtr(a.City)
	}

	rec := &providers.Record{
		Company:    company,
		Financials: buildFinancials(orgnr, co.Accounts),
	}
	rec.Roles = buildRoles(orgnr, co.RoleGroups)
	rec.RolesExplicitlyEmpty = co.RoleGroups != nil && len(rec.Roles) == 0

	for _, in := range co.Industries {
		if in.Code == "" {
			continue
		}
		rec.Industries = append(rec.Industries, models.Industry{
			CompanyOrgnr:   orgnr,
			SNICode:        in.Code,
			SNIDescription: in.Description,
			IsPrimary:      in.Primary,
		})
	}
	for _, tm := range co.Trademarks {
		if tm.Name == "" {
			continue
		}
		rec.Trademarks = append(rec.Trademarks, models.Trademark{
			CompanyOrgnr: orgnr,
			Name:         tm.Name,
			Registration: strPtr(tm.Registration),
			RegisteredAt: parseDate(tm.Registered),
		})
	}
	src := models.SourceScraper
	for _, an := range co.Announcements {
		if an.Text == "" {
			continue
		}
		rec.Announcements = append(rec.Announcements, models.Announcement{
			CompanyOrgnr: orgnr,
			Kind:         an.Kind,
			Text:         an.Text,
			PublishedAt:  parseDate(an.Published),
			Source:       &src,
		})
	}

	if org != nil {
		applyGroup(rec, orgnr, org)
	}
	return rec
}

func applyGroup(rec *providers.Record, orgnr string, org *organisationPayload) {
	co := rec.Company
	if p := org.ParentCompany; p != nil && p.Name != "" {
		co.IsGroup = true
		co.ParentName = strPtr(p.Name)
		if n := models.NormalizeOrgnr(p.Orgnr); n != "" {
			co.ParentOrgnr = &n
		}
		rec.Related = append(rec.Related, models.RelatedCompany{
			CompanyOrgnr: orgnr,
			RelatedOrgnr: co.ParentOrgnr,
			RelatedName:  p.Name,
			Relation:     "parent",
		})
	}
	for _, g := range org.GroupCompanies {
		if g.Name == "" {
			continue
		}
		co.IsGroup = true
		rel := g.Relation
		if rel == "" {
			rel = "group"
		}
		var relOrgnr *string
		if n := models.NormalizeOrgnr(g.Orgnr); n != "" {
			relOrgnr = &n
		}
		rec.Related = append(rec.Related, models.RelatedCompany{
			CompanyOrgnr: orgnr,
			RelatedOrgnr: relOrgnr,
			RelatedName:  g.Name,
			Relation:     rel,
		})
	}
	if org.CompanyCount > 0 {
		co.IsGroup = true
		co.CompaniesInGroup = intPtr(org.CompanyCount)
	}
}

func buildRoles(orgnr string, groups []roleGroupPayload) []models.Role {
	src := models.SourceScraper
	var out []models.Role
	for _, g := range groups {
		for _, r := range g.Roles {
			// Entries of type Company denote the audit firm, not a person.
			if strings.EqualFold(r.Type, "Company") {
				continue
			}
			if r.Name == "" {
				continue
			}
			cat, ok := models.LookupRoleCategory(r.Role)
			if !ok {
				cat = models.RoleCategoryForGroupName(g.Name)
			}
			out = append(out, models.Role{
				CompanyOrgnr: orgnr,
				Name:         r.Name,
				BirthYear:    intPtr(r.BirthYear),
				RoleType:     r.Role,
				RoleCategory: cat,
				Source:       &src,
			})
		}
	}
	return out
}

// mapStatus folds the site's free-text status onto the canonical
// values. The registry is authoritative; this only matters when the
// registry has no answer.
func mapStatus(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	switch {
	case t == "":
		return ""
	case strings.Contains(t, "konkurs"):
		return models.StatusBankruptcy
	case strings.Contains(t, "likvidation"):
		return models.StatusLiquidation
	case strings.Contains(t, "avregistrerad"):
		return models.StatusDeregistered
	case strings.HasPrefix(t, "aktiv"):
		return models.StatusActive
	default:
		return models.StatusInactive
	}
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
