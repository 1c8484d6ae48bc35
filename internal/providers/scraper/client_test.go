package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/net/breaker"
	"github.com/orgnr/bolagsdata/internal/net/gateway"
	"github.com/orgnr/bolagsdata/internal/net/ratelimit"
	"github.com/orgnr/bolagsdata/internal/net/retry"
)

func nextPage(payload string) string {
	return `<!DOCTYPE html><html><head><title>t</title></head><body><div id="app"></div>` +
		`<script id="__NEXT_DATA__" type="application/json">` + payload + `</script></body></html>`
}

const summaryJSON = `{"props":{"pageProps":{"company":{
	"orgnr":"556016-0680","name":"Example AB","companyType":"Aktiebolag","status":"Aktivt",
	"registrationDate":"1990-05-01","phone":"+46 8 123 456","municipality":"Stockholm",
	"postalAddress":{"street":"Box 1","postCode":"11122","city":"Stockholm"},
	"accounts":[
		{"year":2023,"accounts":[
			{"code":"SDI","amount":12345},
			{"code":"DR","amount":-250},
			{"code":"ANT","amount":42},
			{"code":"EKA","amount":35.5}
		]},
		{"year":2022,"consolidated":true,"accounts":[{"code":"SDI","amount":999}]}
	],
	"roleGroups":[
		{"name":"Management","roles":[
			{"name":"Anna Svensson","type":"Person","role":"Verkställande direktör","birthYear":1975}
		]},
		{"name":"Board","roles":[
			{"name":"Bo Berg","type":"Person","role":"Styrelseledamot","birthYear":1960},
			{"name":"Cia Alm","type":"Person","role":"Mystisk titel"}
		]},
		{"name":"Revision","roles":[
			{"name":"Revisionsbyrån AB","type":"Company","role":"Revisionsbolag"}
		]}
	],
	"industries":[{"code":"62010","description":"Dataprogrammering","primary":true}],
	"trademarks":[{"name":"EXMPL","registrationNumber":"TM-1","registeredDate":"2015-03-02"}]
}}}}`

const groupJSON = `{"props":{"pageProps":{"organisation":{
	"parentCompany":{"orgnr":"556000-0001","name":"Parent AB"},
	"groupCompanies":[{"orgnr":"556000-0002","name":"Sibling AB","relation":"subsidiary"}],
	"companyCount":3
}}}}`

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gw := gateway.New(gateway.Config{
		RequestTimeout: 2 * time.Second,
		ConnectTimeout: time.Second,
		Retry:          retry.Policy{Base: time.Millisecond, Multiplier: 2, Cap: 10 * time.Millisecond, MaxRetries: 1},
	}, ratelimit.New(0), breaker.NewRegistry(breaker.DefaultConfig()))
	return New(gw, srv.URL)
}

func TestFetchBuildsRecord(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/5560160680", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nextPage(summaryJSON)))
	})
	mux.HandleFunc("/5560160680/organisation", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nextPage(groupJSON)))
	})
	c := newTestClient(t, mux)

	rec, err := c.Fetch(context.Background(), "556016-0680")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if rec == nil || rec.Company == nil {
		t.Fatal("expected a record")
	}

	co := rec.Company
	if co.Name != "Example AB" || co.Status != models.StatusActive {
		t.Errorf("company = %q/%q", co.Name, co.Status)
	}
	if co.CompanyType == nil || *co.CompanyType != "Aktiebolag" {
		t.Errorf("company type = %v", co.CompanyType)
	}
	if co.PostalCode == nil || *co.PostalCode != "11122" {
		t.Errorf("postal code = %v", co.PostalCode)
	}

	if len(rec.Financials) != 2 {
		t.Fatalf("financial periods = %d, want 2", len(rec.Financials))
	}
	var y2023, y2022 *models.FinancialPeriod
	for i := range rec.Financials {
		fp := &rec.Financials[i]
		switch fp.PeriodYear {
		case 2023:
			y2023 = fp
		case 2022:
			y2022 = fp
		}
	}
	if y2023 == nil || y2022 == nil {
		t.Fatal("missing period years")
	}
	// amounts arrive in kSEK
	if y2023.Revenue == nil || *y2023.Revenue != 12345000 {
		t.Errorf("revenue = %v, want 12345000", y2023.Revenue)
	}
	if y2023.NetProfit == nil || *y2023.NetProfit != -250000 {
		t.Errorf("net profit = %v, want -250000", y2023.NetProfit)
	}
	// head counts and percentages are taken as-is
	if y2023.Employees == nil || *y2023.Employees != 42 {
		t.Errorf("employees = %v, want 42", y2023.Employees)
	}
	if y2023.SolidityPct == nil || *y2023.SolidityPct != 35.5 {
		t.Errorf("solidity = %v, want 35.5", y2023.SolidityPct)
	}
	if !y2022.IsConsolidated {
		t.Error("2022 period should be consolidated")
	}

	if len(rec.Roles) != 3 {
		t.Fatalf("roles = %d, want 3 (audit firm skipped)", len(rec.Roles))
	}
	byName := map[string]models.Role{}
	for _, r := range rec.Roles {
		byName[r.Name] = r
	}
	if r := byName["Anna Svensson"]; r.RoleCategory != models.RoleCategoryManagement || r.BirthYear == nil || *r.BirthYear != 1975 {
		t.Errorf("VD role = %+v", r)
	}
	if r := byName["Bo Berg"]; r.RoleCategory != models.RoleCategoryBoard {
		t.Errorf("board member category = %q", r.RoleCategory)
	}
	// unmapped type falls back to the group heading
	if r := byName["Cia Alm"]; r.RoleCategory != models.RoleCategoryBoard {
		t.Errorf("fallback category = %q", r.RoleCategory)
	}

	if len(rec.Industries) != 1 || !rec.Industries[0].IsPrimary {
		t.Errorf("industries = %+v", rec.Industries)
	}
	if len(rec.Trademarks) != 1 || rec.Trademarks[0].RegisteredAt == nil {
		t.Errorf("trademarks = %+v", rec.Trademarks)
	}

	if !co.IsGroup {
		t.Error("group page should mark the company as a group")
	}
	if co.ParentName == nil || *co.ParentName != "Parent AB" {
		t.Errorf("parent name = %v", co.ParentName)
	}
	if co.ParentOrgnr == nil || *co.ParentOrgnr != "5560000001" {
		t.Errorf("parent orgnr = %v", co.ParentOrgnr)
	}
	if co.CompaniesInGroup == nil || *co.CompaniesInGroup != 3 {
		t.Errorf("companies in group = %v", co.CompaniesInGroup)
	}
	if len(rec.Related) != 2 {
		t.Errorf("related = %+v, want parent plus sibling", rec.Related)
	}
}

func TestFetchUnknownCompany(t *testing.T) {
	mux := http.NewServeMux()
	c := newTestClient(t, mux)

	rec, err := c.Fetch(context.Background(), "5569999999")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if rec != nil {
		t.Errorf("record = %+v, want nil", rec)
	}
}

func TestFetchSurvivesMissingGroupPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/5560160680", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nextPage(summaryJSON)))
	})
	c := newTestClient(t, mux)

	rec, err := c.Fetch(context.Background(), "5560160680")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if rec == nil || rec.Company == nil {
		t.Fatal("expected a record from the summary page alone")
	}
	if rec.Company.IsGroup {
		t.Error("no group page, company must not be marked as group")
	}
}

func TestInitialDataFallback(t *testing.T) {
	page := `<html><body><script>window.__INITIAL_DATA__ = {"company":{"orgnr":"5560160680","name":"Legacy AB","status":"Aktivt"}};</script></body></html>`
	mux := http.NewServeMux()
	mux.HandleFunc("/5560160680", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	})
	c := newTestClient(t, mux)

	rec, err := c.Fetch(context.Background(), "5560160680")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if rec == nil || rec.Company == nil || rec.Company.Name != "Legacy AB" {
		t.Fatalf("record = %+v, want the legacy payload", rec)
	}
}

func TestRolesExplicitlyEmpty(t *testing.T) {
	withEmpty := `{"props":{"pageProps":{"company":{"orgnr":"5560160680","name":"Empty AB","roleGroups":[]}}}}`
	without := `{"props":{"pageProps":{"company":{"orgnr":"5560160680","name":"Empty AB"}}}}`

	for _, tc := range []struct {
		payload string
		want    bool
	}{
		{withEmpty, true},
		{without, false},
	} {
		mux := http.NewServeMux()
		mux.HandleFunc("/5560160680", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(nextPage(tc.payload)))
		})
		c := newTestClient(t, mux)

		rec, err := c.Fetch(context.Background(), "5560160680")
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if rec.RolesExplicitlyEmpty != tc.want {
			t.Errorf("RolesExplicitlyEmpty = %v, want %v", rec.RolesExplicitlyEmpty, tc.want)
		}
	}
}

func TestSearch(t *testing.T) {
	payload := `{"props":{"pageProps":{"searchResult":{"hits":[
		{"orgnr":"556016-0680","name":"Example AB","location":"Stockholm","companyType":"AB"},
		{"orgnr":"5560000001","name":"Parent AB","location":"Solna","companyType":"AB"},
		{"orgnr":"5560000002","name":"Sibling AB"}
	]}}}}`

	var gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/sok", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(nextPage(payload)))
	})
	c := newTestClient(t, mux)

	hits, err := c.Search(context.Background(), "example åäö", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "example åäö" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want limit applied", len(hits))
	}
	if hits[0].Orgnr != "5560160680" || hits[0].Name != "Example AB" {
		t.Errorf("first hit = %+v", hits[0])
	}
}

func TestDecodePayloadRejectsPlainPage(t *testing.T) {
	_, err := decodePayload([]byte(`<html><body><p>nothing here</p></body></html>`))
	if err == nil {
		t.Fatal("expected an error for a page without embedded data")
	}
	if !strings.Contains(err.Error(), "payload") {
		t.Errorf("err = %v", err)
	}
}
