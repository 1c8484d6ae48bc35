// Package models defines the canonical company-data entities shared by the
// providers, the store, and the sync pipelines. All entities are keyed by a
// normalized 10-digit organization number.
package models

import (
	"strings"
	"time"
)

// Company status values as stored on the canonical record.
const (
	StatusActive       = "ACTIVE"
	StatusInactive     = "INACTIVE"
	StatusDeregistered = "DEREGISTERED"
	StatusBankruptcy   = "BANKRUPTCY"
	StatusLiquidation  = "LIQUIDATION"
)

// Role categories computed from the role type, never supplied by a provider.
const (
	RoleCategoryBoard      = "BOARD"
	RoleCategoryManagement = "MANAGEMENT"
	RoleCategoryAuditor    = "AUDITOR"
	RoleCategoryOther      = "OTHER"
)

// Data source identifiers recorded in provenance fields.
const (
	SourceRegistry = "registry_api"
	SourceScraper  = "scraper"
	SourceXBRL     = "xbrl"
)

// Company is the canonical identity record, exactly one per orgnr.
type Company struct {
	Orgnr            string     `db:"orgnr" json:"orgnr"`
	Name             string     `db:"name" json:"name"`
	CompanyType      *string    `db:"company_type" json:"company_type,omitempty"`
	Status           string     `db:"status" json:"status"`
	RegistrationDate *time.Time `db:"registration_date" json:"registration_date,omitempty"`
	PostalStreet     *string    `db:"postal_street" json:"postal_street,omitempty"`
	PostalCode       *string    `db:"postal_code" json:"postal_code,omitempty"`
	PostalCity       *string    `db:"postal_city" json:"postal_city,omitempty"`
	VisitingStreet   *string    `db:"visiting_street" json:"visiting_street,omitempty"`
	VisitingCity     *string    `db:"visiting_city" json:"visiting_city,omitempty"`
	Phone            *string    `db:"phone" json:"phone,omitempty"`
	Email            *string    `db:"email" json:"email,omitempty"`
	Website          *string    `db:"website" json:"website,omitempty"`
	Municipality     *string    `db:"municipality" json:"municipality,omitempty"`
	County           *string    `db:"county" json:"county,omitempty"`
	LEICode          *string    `db:"lei_code" json:"lei_code,omitempty"`
	ShareCapital     *int64     `db:"share_capital" json:"share_capital,omitempty"`
	IsGroup          bool       `db:"is_group" json:"is_group"`
	ParentOrgnr      *string    `db:"parent_orgnr" json:"parent_orgnr,omitempty"`
	ParentName       *string    `db:"parent_name" json:"parent_name,omitempty"`
	CompaniesInGroup *int       `db:"companies_in_group" json:"companies_in_group,omitempty"`
	SourceBasic      *string    `db:"source_basic" json:"source_basic,omitempty"`
	SourceBoard      *string    `db:"source_board" json:"source_board,omitempty"`
	SourceFinancials *string    `db:"source_financials" json:"source_financials,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Role is a person or entity holding a position at a company. Roles are
// wholly replaced on refresh.
type Role struct {
	ID           int64   `db:"id" json:"id"`
	CompanyOrgnr string  `db:"company_orgnr" json:"company_orgnr"`
	Name         string  `db:"name" json:"name"`
	BirthYear    *int    `db:"birth_year" json:"birth_year,omitempty"`
	RoleType     string  `db:"role_type" json:"role_type"`
	RoleCategory string  `db:"role_category" json:"role_category"`
	Source       *string `db:"source" json:"source,omitempty"`
}

// roleTypeCategories maps provider role types to the fixed category set.
// Lookup is case-insensitive on the normalized type.
var roleTypeCategories = map[string]string{
	"styrelseledamot":    RoleCategoryBoard,
	"styrelsesuppleant":  RoleCategoryBoard,
	"ordforande":         RoleCategoryBoard,
	"styrelseordforande": RoleCategoryBoard,
	"vice ordforande":    RoleCategoryBoard,
	"ledamot":            RoleCategoryBoard,
	"suppleant":          RoleCategoryBoard,

	"verkstallande direktor":        RoleCategoryManagement,
	"vice verkstallande direktor":   RoleCategoryManagement,
	"extern verkstallande direktor": RoleCategoryManagement,
	"extern firmatecknare":          RoleCategoryManagement,

	"revisor":               RoleCategoryAuditor,
	"huvudansvarig revisor": RoleCategoryAuditor,
	"revisorssuppleant":     RoleCategoryAuditor,
	"lekmannarevisor":       RoleCategoryAuditor,

	"likvidator":        RoleCategoryOther,
	"bolagsman":         RoleCategoryOther,
	"kommanditdelagare": RoleCategoryOther,
	"komplementar":      RoleCategoryOther,
	"prokurist":         RoleCategoryOther,
	"innehavare":        RoleCategoryOther,
}

// LookupRoleCategory resolves the category for a provider role type,
// reporting whether the type is in the fixed map.
func LookupRoleCategory(roleType string) (string, bool) {
	cat, ok := roleTypeCategories[normalizeRoleKey(roleType)]
	return cat, ok
}

// RoleCategoryForType resolves the category for a provider role type.
// Unknown types fall back to OTHER.
func RoleCategoryForType(roleType string) string {
	if cat, ok := LookupRoleCategory(roleType); ok {
		return cat
	}
	return RoleCategoryOther
}

// RoleCategoryForGroupName resolves a category from a provider-side group
// heading. Used as the fallback when the role type itself is unmapped.
func RoleCategoryForGroupName(group string) string {
	switch normalizeRoleKey(group) {
	case "management", "ledning":
		return RoleCategoryManagement
	case "board", "styrelse":
		return RoleCategoryBoard
	case "revision", "revisorer":
		return RoleCategoryAuditor
	default:
		return RoleCategoryOther
	}
}

// roleKeyFolder strips the Swedish diacritics so "Verkställande
// direktör" and "verkstallande direktor" hit the same map entry.
var roleKeyFolder = strings.NewReplacer("å", "a", "ä", "a", "ö", "o", "é", "e")

func normalizeRoleKey(s string) string {
	return roleKeyFolder.Replace(strings.ToLower(s))
}

// Industry is an SNI classification line. At most one primary per orgnr.
type Industry struct {
	ID             int64  `db:"id" json:"id"`
	CompanyOrgnr   string `db:"company_orgnr" json:"company_orgnr"`
	SNICode        string `db:"sni_code" json:"sni_code"`
	SNIDescription string `db:"sni_description" json:"sni_description"`
	IsPrimary      bool   `db:"is_primary" json:"is_primary"`
}

// Trademark is a registered mark attached to a company.
type Trademark struct {
	ID           int64      `db:"id" json:"id"`
	CompanyOrgnr string     `db:"company_orgnr" json:"company_orgnr"`
	Name         string     `db:"name" json:"name"`
	Registration *string    `db:"registration" json:"registration,omitempty"`
	RegisteredAt *time.Time `db:"registered_at" json:"registered_at,omitempty"`
}

// RelatedCompany is a group link (parent, subsidiary or sibling).
type RelatedCompany struct {
	ID           int64   `db:"id" json:"id"`
	CompanyOrgnr string  `db:"company_orgnr" json:"company_orgnr"`
	RelatedOrgnr *string `db:"related_orgnr" json:"related_orgnr,omitempty"`
	RelatedName  string  `db:"related_name" json:"related_name"`
	Relation     string  `db:"relation" json:"relation"`
}

// Announcement is a legal notice attached to a company, produced by an
// external bulletin source.
type Announcement struct {
	ID           int64      `db:"id" json:"id"`
	CompanyOrgnr string     `db:"company_orgnr" json:"company_orgnr"`
	Kind         string     `db:"kind" json:"kind"`
	Text         string     `db:"text" json:"text"`
	PublishedAt  *time.Time `db:"published_at" json:"published_at,omitempty"`
	Source       *string    `db:"source" json:"source,omitempty"`
}

// CompanyRegistryEntry is one row of the read-only name-lookup table,
// maintained independently of the canonical Company records.
type CompanyRegistryEntry struct {
	Orgnr   string `db:"orgnr" json:"orgnr"`
	Name    string `db:"name" json:"name"`
	OrgForm string `db:"org_form" json:"org_form"`
}
