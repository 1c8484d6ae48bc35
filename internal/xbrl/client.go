// Package xbrl discovers, downloads and extracts the digitally filed
// annual reports. Reports arrive as ZIP archives containing one inline
// XBRL document; extraction turns them into fact rows and a financial
// summary per fiscal year.
package xbrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/orgnr/bolagsdata/internal/auth"
	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/net/gateway"
	"github.com/orgnr/bolagsdata/internal/net/retry"
)

const (
	listPath     = "/dokumentlista"
	documentPath = "/dokument/"
)

var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// Client talks to the registry's document endpoints. Both endpoints
// share the registry circuit but carry the slower document backoff for
// 429 replies.
type Client struct {
	gw       *gateway.Gateway
	tokens   *auth.TokenManager
	baseURL  string
	throttle retry.Policy
}

// NewClient builds a document client on top of the shared gateway.
func NewClient(gw *gateway.Gateway, tokens *auth.TokenManager, baseURL string) *Client {
	return &Client{
		gw:       gw,
		tokens:   tokens,
		baseURL:  strings.TrimRight(baseURL, "/"),
		throttle: retry.DocumentThrottle(),
	}
}

// Document is one entry from the document list. Only the fields used
// for fiscal-year inference are decoded.
type Document struct {
	ID                      string `json:"dokumentId"`
	Filename                string `json:"filnamn"`
	Format                  string `json:"dokumentformat"`
	RapporteringsperiodTom  string `json:"rapporteringsperiodTom"`
	RapporteringsperiodFrom string `json:"rapporteringsperiodFrom"`
	RakenskapsarSlut        string `json:"rakenskapsarSlut"`
	RakenskapsarStart       string `json:"rakenskapsarStart"`
	ReportingPeriodEnd      string `json:"reportingPeriodEndDate"`
	ReportingPeriodStart    string `json:"reportingPeriodStartDate"`
	Registreringstidpunkt   string `json:"registreringstidpunkt"`
}

type documentList struct {
	Dokument []Document `json:"dokument"`
}

// ListDocuments returns the filed report metadata for one company.
// An unknown orgnr yields an empty list.
func (c *Client) ListDocuments(ctx context.Context, orgnr string) ([]Document, error) {
	payload, err := json.Marshal(map[string]string{
		"identitetsbeteckning": models.FormatOrgnr(orgnr),
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, gateway.Request{
		Source: models.SourceRegistry,
		Method: http.MethodPost,
		URL:    c.baseURL + listPath,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
		Body:     payload,
		Throttle: &c.throttle,
	})
	if err != nil {
		if gateway.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var out documentList
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("document list: %w", err)
	}
	return out.Dokument, nil
}

// DownloadDocument fetches one report archive and verifies it is a ZIP.
func (c *Client) DownloadDocument(ctx context.Context, docID string) ([]byte, error) {
	resp, err := c.send(ctx, gateway.Request{
		Source: models.SourceRegistry,
		Method: http.MethodGet,
		URL:    c.baseURL + documentPath + docID,
		Headers: map[string]string{
			"Accept": "application/zip",
		},
		Throttle: &c.throttle,
	})
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(resp.Body, zipMagic) {
		return nil, errors.New("document is not a ZIP archive")
	}
	return resp.Body, nil
}

// send issues an authenticated request, refreshing the token and
// retrying exactly once on 401.
func (c *Client) send(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	resp, err := c.doAuth(ctx, req)
	if gateway.IsUnauthorized(err) {
		log.Warn().Str("url", req.URL).Msg("Document token rejected, refreshing")
		c.tokens.Invalidate()
		return c.doAuth(ctx, req)
	}
	return resp, err
}

func (c *Client) doAuth(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("document auth: %w", err)
	}
	headers := map[string]string{"Authorization": "Bearer " + tok}
	for k, v := range req.Headers {
		headers[k] = v
	}
	req.Headers = headers
	return c.gw.Do(ctx, req)
}

var yearRe = regexp.MustCompile(`20\d{2}`)

// FiscalYear infers the report's fiscal year. Period fields win over
// date fields; as a last resort the document name and then the id are
// scanned for a plausible year.
func (d Document) FiscalYear() int {
	for _, s := range []string{
		d.RapporteringsperiodTom,
		d.RapporteringsperiodFrom,
		d.RakenskapsarSlut,
		d.RakenskapsarStart,
		d.ReportingPeriodEnd,
		d.ReportingPeriodStart,
		d.Registreringstidpunkt,
	} {
		if y := yearPrefix(s); y != 0 {
			return y
		}
	}
	if y := yearIn(d.Filename); y != 0 {
		return y
	}
	return yearIn(d.ID)
}

func yearPrefix(s string) int {
	if len(s) < 4 {
		return 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil || y < 1900 || y > 2199 {
		return 0
	}
	return y
}

func yearIn(s string) int {
	m := yearRe.FindString(s)
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return y
}
