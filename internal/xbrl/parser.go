package xbrl

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/orgnr/bolagsdata/internal/models"
)

// Fact is one inline-XBRL fact as it appears in the document. Numeric
// values keep their printed precision until persistence.
type Fact struct {
	Name       string
	Namespace  string
	LocalName  string
	ContextRef string
	UnitRef    string
	Decimals   *string
	Scale      *int
	Numeric    *big.Rat
	Text       string
	IsNumeric  bool
}

// Context is one xbrli context definition.
type Context struct {
	ID        string
	Instant   *time.Time
	StartDate *time.Time
	EndDate   *time.Time
}

// ParsedReport is the structured content of one report document.
type ParsedReport struct {
	Facts    []Fact
	Contexts map[string]Context
}

// Parse extracts facts and context definitions from an inline-XBRL
// document. The underlying HTML parser never resolves external
// entities, so hostile DOCTYPE declarations are inert.
func Parse(content string) (*ParsedReport, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}

	report := &ParsedReport{Contexts: map[string]Context{}}

	doc.Find(`xbrli\:context, context`).Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		if id == "" {
			return
		}
		cx := Context{ID: id}
		cx.Instant = elementDate(s, `xbrli\:instant, instant`)
		cx.StartDate = elementDate(s, `xbrli\:startdate, startdate`)
		cx.EndDate = elementDate(s, `xbrli\:enddate, enddate`)
		report.Contexts[id] = cx
	})

	doc.Find(`ix\:nonfraction`).Each(func(_ int, s *goquery.Selection) {
		report.Facts = append(report.Facts, numericFact(s))
	})
	doc.Find(`ix\:nonnumeric`).Each(func(_ int, s *goquery.Selection) {
		report.Facts = append(report.Facts, textFact(s))
	})

	return report, nil
}

// Namespaces lists the distinct fact namespace prefixes, sorted.
func (r *ParsedReport) Namespaces() []string {
	seen := map[string]bool{}
	for _, f := range r.Facts {
		if f.Namespace != "" {
			seen[f.Namespace] = true
		}
	}
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// PeriodTypeForContext maps the conventional context identifiers onto
// relative periods. period* ids are durations, balans* ids instants.
func PeriodTypeForContext(ref string) string {
	var idx string
	switch {
	case strings.HasPrefix(ref, "period"):
		idx = ref[len("period"):]
	case strings.HasPrefix(ref, "balans"):
		idx = ref[len("balans"):]
	default:
		return models.PeriodUnknown
	}
	switch idx {
	case "0":
		return models.PeriodCurrent
	case "1":
		return models.PeriodPrevious
	case "2":
		return models.PeriodTwoYears
	case "3":
		return models.PeriodThreeYears
	}
	return models.PeriodUnknown
}

func numericFact(s *goquery.Selection) Fact {
	name, _ := s.Attr("name")
	f := Fact{Name: name, IsNumeric: true}
	f.Namespace, f.LocalName = splitQName(name)
	f.ContextRef, _ = s.Attr("contextref")
	f.UnitRef, _ = s.Attr("unitref")
	if v, ok := s.Attr("decimals"); ok {
		f.Decimals = &v
	}
	if v, ok := s.Attr("scale"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			f.Scale = &n
		}
	}

	raw := s.Text()
	val, err := parseNumeric(raw, f.Scale)
	if err != nil {
		log.Warn().Str("name", name).Str("value", raw).Msg("Unparseable numeric fact")
		return f
	}
	f.Numeric = val
	return f
}

func textFact(s *goquery.Selection) Fact {
	name, _ := s.Attr("name")
	f := Fact{Name: name}
	f.Namespace, f.LocalName = splitQName(name)
	f.ContextRef, _ = s.Attr("contextref")
	f.Text = strings.TrimSpace(s.Text())
	return f
}

// parseNumeric cleans a presented number and parses it exactly.
// Accepted negative markers are a leading minus, a typographic minus
// and accountant parentheses.
func parseNumeric(raw string, scale *int) (*big.Rat, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && len(s) > 2 {
		neg = true
		s = s[1 : len(s)-1]
	}
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "−"):
		neg = true
		s = strings.TrimPrefix(s, "−")
	}

	if s == "" {
		return nil, errors.New("empty numeric value")
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("not a number: %q", raw)
	}
	if neg {
		r.Neg(r)
	}
	if scale != nil && *scale != 0 {
		r.Mul(r, pow10(*scale))
	}
	return r, nil
}

func pow10(n int) *big.Rat {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs)), nil)
	if n >= 0 {
		return new(big.Rat).SetInt(exp)
	}
	return new(big.Rat).SetFrac(big.NewInt(1), exp)
}

func splitQName(name string) (ns, local string) {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func elementDate(s *goquery.Selection, selector string) *time.Time {
	v := strings.TrimSpace(s.Find(selector).First().Text())
	if v == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil
	}
	return &t
}
