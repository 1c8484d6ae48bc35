// Package providers defines the contract shared by the upstream company
// data sources. Each adapter returns the slice of the canonical record
// it can see; merging partial records is the orchestrator's job.
package providers

import (
	"context"

	"github.com/orgnr/bolagsdata/internal/models"
)

// Record is one provider's partial view of a company. Nil or empty
// fields mean the provider has nothing to say about them, not that the
// data is absent upstream.
type Record struct {
	Company       *models.Company
	Roles         []models.Role
	Financials    []models.FinancialPeriod
	Industries    []models.Industry
	Trademarks    []models.Trademark
	Related       []models.RelatedCompany
	Announcements []models.Announcement

	// RolesExplicitlyEmpty distinguishes "provider saw an empty board"
	// from "provider did not cover roles". Only the former may wipe
	// stored roles.
	RolesExplicitlyEmpty bool
}

// Provider fetches a partial record for one organization number.
// A nil Record with nil error means the source does not know the
// company at all.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, orgnr string) (*Record, error)
}
