// Package query rewrites canonical SQL indicator templates into per-source
// runnable queries. Substitution is textual by contract with the existing
// indicator catalog; the CodeSource interface keeps the lookup surface
// narrow so a parameterized-query implementation could replace it without
// touching callers.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fbronchaly/proyectoCalidad-V2.0/internal/catalog"
)

// Sentinel replaces any code-list token whose lookup came back empty. It
// matches no real code in any center, so the query runs and returns zero
// rows instead of failing on an empty IN clause.
const Sentinel = "-99999"

// ErrInvalidInterval marks a missing or malformed reporting period. Fatal
// for the whole run.
var ErrInvalidInterval = errors.New("invalid reporting interval")

// CodeSource is the catalog surface the parameterizer needs.
type CodeSource interface {
	MedicationCodes(sourceKeys []string, cat catalog.MedCategory) []string
	AccessCodes(sourceKeys []string, cat catalog.AccessCategory) []string
	ModalityCodes(sourceKeys []string, mod catalog.Modality) []string
	TestCode(sourceKeys []string, instrument string) (int, bool)
	KnownInstrument(instrument string) bool
}

// BundleSource adapts a catalog.Bundle to CodeSource.
type BundleSource struct{ Bundle *catalog.Bundle }

func (b BundleSource) MedicationCodes(keys []string, cat catalog.MedCategory) []string {
	return b.Bundle.Meds.CodesFor(keys, cat)
}

func (b BundleSource) AccessCodes(keys []string, cat catalog.AccessCategory) []string {
	return b.Bundle.Accesses.CodesFor(keys, cat)
}

func (b BundleSource) ModalityCodes(keys []string, mod catalog.Modality) []string {
	return b.Bundle.Modalities.CodesFor(keys, mod)
}

func (b BundleSource) TestCode(keys []string, instrument string) (int, bool) {
	return b.Bundle.Tests.Code(keys, instrument)
}

func (b BundleSource) KnownInstrument(instrument string) bool {
	return b.Bundle.Tests.Known(instrument)
}

// Interval is a validated reporting period.
type Interval struct {
	Start time.Time
	End   time.Time
}

// ParseInterval accepts DD-MM-YYYY or YYYY-MM-DD bounds. Both must be
// present and the start must not follow the end.
func ParseInterval(start, end string) (Interval, error) {
	s, err := parseDate(start)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: start %q", ErrInvalidInterval, start)
	}
	e, err := parseDate(end)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: end %q", ErrInvalidInterval, end)
	}
	if s.After(e) {
		return Interval{}, fmt.Errorf("%w: start %s after end %s", ErrInvalidInterval, start, end)
	}
	return Interval{Start: s, End: e}, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("02-01-2006", raw); err == nil {
		return t, nil
	}
	if len(raw) >= 10 {
		if t, err := time.Parse("2006-01-02", raw[:10]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// StartISO is the period start as YYYY-MM-DD.
func (iv Interval) StartISO() string { return iv.Start.Format("2006-01-02") }

// EndISO is the period end as YYYY-MM-DD.
func (iv Interval) EndISO() string { return iv.End.Format("2006-01-02") }

// SnapshotStartISO is the period end minus 7 days, the window start used by
// point-in-time snapshot indicators.
func (iv Interval) SnapshotStartISO() string {
	return iv.End.AddDate(0, 0, -7).Format("2006-01-02")
}

// dateToken covers the three spellings each date placeholder appears in
// across the templates: quoted colon, bare colon and bare word.
type dateToken struct {
	quoted *regexp.Regexp
	colon  *regexp.Regexp
	bare   *regexp.Regexp
}

func newDateToken(name string) dateToken {
	return dateToken{
		quoted: regexp.MustCompile(`(?i)':` + name + `'`),
		colon:  regexp.MustCompile(`(?i):` + name + `\b`),
		bare:   regexp.MustCompile(`(?i)\b` + name + `\b`),
	}
}

func (d dateToken) apply(query, isoDate string) string {
	lit := "'" + isoDate + "'"
	query = d.quoted.ReplaceAllString(query, lit)
	query = d.colon.ReplaceAllString(query, lit)
	return d.bare.ReplaceAllString(query, lit)
}

// FECHAINI7 must go before FECHAINI: the shorter token is a prefix of the
// longer one.
var (
	tokFechaIni7 = newDateToken("FECHAINI7")
	tokFechaIni  = newDateToken("FECHAINI")
	tokFechaFin  = newDateToken("FECHAFIN")
)

var accessTokens = []struct {
	re  *regexp.Regexp
	cat catalog.AccessCategory
}{
	{regexp.MustCompile(`(?i)<CODIGOS_CATETER_TUNELIZADO>`), catalog.AccessTunnelledCatheter},
	{regexp.MustCompile(`(?i)<CODIGOS_CATETER>`), catalog.AccessCatheter},
	{regexp.MustCompile(`(?i)<CODIGOS_FAV_PROTESIS>`), catalog.AccessFistulaOrGraft},
	{regexp.MustCompile(`(?i)<CODIGOS_FAV_AUTOLOGA>`), catalog.AccessAutologousFistula},
	{regexp.MustCompile(`(?i)<CODIGOS_PROTESIS>`), catalog.AccessProstheticGraft},
}

var modalityTokens = []struct {
	re  *regexp.Regexp
	mod catalog.Modality
}{
	{regexp.MustCompile(`(?i)<CODIGOS_HD_OL>`), catalog.ModalityHDOnline},
	{regexp.MustCompile(`(?i)<CODIGOS_HD_EXTENDIDA>`), catalog.ModalityHDExtended},
	{regexp.MustCompile(`(?i)<CODIGOS_HD_DOM>`), catalog.ModalityHDHome},
	{regexp.MustCompile(`(?i)<CODIGOS_HD_UCI>`), catalog.ModalityHDICU},
	{regexp.MustCompile(`(?i)<CODIGOS_HD>`), catalog.ModalityHD},
	{regexp.MustCompile(`(?i)<CODIGOS_PERIT>`), catalog.ModalityPeritoneal},
}

// Legacy colon-prefixed medication tokens, kept bit-exact with the older
// templates still in the catalog.
var medTokens = []struct {
	re  *regexp.Regexp
	cat catalog.MedCategory
}{
	{regexp.MustCompile(`(?i):EPO\b`), catalog.MedEPO},
	{regexp.MustCompile(`(?i):VITAMINA_D\b`), catalog.MedVitaminD},
	{regexp.MustCompile(`(?i):CALCIMIMETICOS\b`), catalog.MedCalcimimetics},
	{regexp.MustCompile(`(?i):CAPTORES_NO_CALCICOS\b`), catalog.MedNonCalciumBinders},
	{regexp.MustCompile(`(?i):CAPTORES_CALCICOS\b`), catalog.MedCalciumBinders},
	{regexp.MustCompile(`(?i):HIERRO_IV\b`), catalog.MedIVIron},
	{regexp.MustCompile(`(?i):HIERRO_ORAL\b`), catalog.MedOralIron},
}

var codTestToken = regexp.MustCompile(`(?i)<CODTEST_([A-Z0-9_]+)>`)

// leftoverToken matches any placeholder shape that survived substitution.
var leftoverToken = regexp.MustCompile(
	`(?i)<COD(?:IGOS|TEST)_[A-Z0-9_]+>|:FECHA(?:INI7?|FIN)\b|:(?:EPO|VITAMINA_D|CALCIMIMETICOS|CAPTORES_CALCICOS|CAPTORES_NO_CALCICOS|HIERRO_IV|HIERRO_ORAL)\b`)

// Parameterizer rewrites templates for one source at a time.
type Parameterizer struct {
	codes CodeSource
	log   zerolog.Logger
}

func NewParameterizer(codes CodeSource, log zerolog.Logger) *Parameterizer {
	return &Parameterizer{codes: codes, log: log}
}

// Apply substitutes every placeholder in template for the source identified
// by sourceKeys. Date tokens go first, then test-code tokens, then the
// catalog code lists. Empty lookups substitute the sentinel and log a
// warning; a test-code token for an instrument no catalog knows is left in
// place for Unresolved to surface.
func (p *Parameterizer) Apply(template string, sourceKeys []string, iv Interval) string {
	q := template

	q = tokFechaIni7.apply(q, iv.SnapshotStartISO())
	q = tokFechaIni.apply(q, iv.StartISO())
	q = tokFechaFin.apply(q, iv.EndISO())

	q = p.applyTestCodes(q, sourceKeys)

	for _, t := range accessTokens {
		q = p.applyCodeList(q, t.re, sourceKeys, p.codes.AccessCodes(sourceKeys, t.cat))
	}
	for _, t := range modalityTokens {
		q = p.applyCodeList(q, t.re, sourceKeys, p.codes.ModalityCodes(sourceKeys, t.mod))
	}
	for _, t := range medTokens {
		q = p.applyCodeList(q, t.re, sourceKeys, p.codes.MedicationCodes(sourceKeys, t.cat))
	}
	return q
}

func (p *Parameterizer) applyCodeList(q string, re *regexp.Regexp, sourceKeys, codes []string) string {
	if !re.MatchString(q) {
		return q
	}
	if len(codes) == 0 {
		p.log.Warn().
			Str("token", re.String()).
			Strs("source_keys", sourceKeys).
			Msg("no catalog codes for token, substituting sentinel")
		return re.ReplaceAllString(q, Sentinel)
	}
	return re.ReplaceAllString(q, strings.Join(codes, ","))
}

func (p *Parameterizer) applyTestCodes(q string, sourceKeys []string) string {
	return codTestToken.ReplaceAllStringFunc(q, func(token string) string {
		m := codTestToken.FindStringSubmatch(token)
		instrument := m[1]
		if code, ok := p.codes.TestCode(sourceKeys, instrument); ok {
			return strconv.Itoa(code)
		}
		if p.codes.KnownInstrument(instrument) {
			// known instrument, just not tracked by this center
			p.log.Warn().
				Str("instrument", instrument).
				Strs("source_keys", sourceKeys).
				Msg("no test code for instrument at source, substituting sentinel")
			return Sentinel
		}
		return token
	})
}

// Unresolved lists every placeholder token still present in query. A
// non-empty result is a parameterization defect: the caller logs it and
// dispatches anyway so the failure lands as that source's error.
func Unresolved(query string) []string {
	return leftoverToken.FindAllString(query, -1)
}
