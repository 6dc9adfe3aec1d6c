package resolver

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"listing-workers/internal/common/logger"
	"listing-workers/internal/models"
)

// Pricing holds exchange rates against EUR keyed by country code and the
// decimal suffix appended to converted prices.
type Pricing struct {
	Rates  map[string]float64
	Suffix string
}

var defaultRates = map[string]float64{
	"FR": 1, "DE": 1, "IT": 1, "ES": 1, "NL": 1, "BE": 1, "IE": 1, "AT": 1, "PT": 1, "LU": 1,
	"UK": 0.86, "US": 1.08, "CA": 1.47, "AU": 1.65, "JP": 162,
	"SE": 11.4, "PL": 4.3, "DK": 7.46,
}

var currencies = map[string]string{
	"UK": "GBP", "US": "USD", "CA": "CAD", "AU": "AUD", "JP": "JPY",
	"SE": "SEK", "PL": "PLN", "DK": "DKK",
}

// zero-decimal currencies never get the suffix
var wholeUnits = map[string]bool{"JP": true}

// CurrencyOf returns the ISO currency of a country, EUR by default.
func CurrencyOf(country string) string {
	if c, ok := currencies[strings.ToUpper(country)]; ok {
		return c
	}
	return "EUR"
}

// Price converts prices between country currencies.
type Price struct {
	rates  map[string]float64
	suffix string
	logger logger.Logger
}

func NewPrice(p Pricing, log logger.Logger) *Price {
	rates := make(map[string]float64, len(defaultRates))
	for k, v := range defaultRates {
		rates[k] = v
	}
	for k, v := range p.Rates {
		if v > 0 {
			rates[strings.ToUpper(k)] = v
		}
	}
	if p.Suffix == "" {
		p.Suffix = ".99"
	}
	return &Price{rates: rates, suffix: p.Suffix, logger: log}
}

func (p *Price) Name() string { return "price" }

func (p *Price) CanFill(attr *models.Attribute, _ string, fieldFrom models.FieldID) bool {
	if fieldFrom.Contains("price") || fieldFrom.Contains("currency") {
		return true
	}
	return attr != nil && (strings.Contains(strings.ToLower(attr.Name), "price") ||
		strings.Contains(strings.ToLower(attr.Name), "currency"))
}

// Convert returns amount expressed in the target country's currency, cents
// truncated and replaced by the suffix.
func (p *Price) Convert(amount float64, fromCountry, toCountry string) (string, error) {
	from, ok := p.rates[strings.ToUpper(fromCountry)]
	if !ok {
		return "", fmt.Errorf("no exchange rate for %s", fromCountry)
	}
	to, ok := p.rates[strings.ToUpper(toCountry)]
	if !ok {
		return "", fmt.Errorf("no exchange rate for %s", toCountry)
	}

	converted := amount / from * to
	converted = math.Trunc(converted*100) / 100
	whole := int64(math.Floor(converted))
	if wholeUnits[strings.ToUpper(toCountry)] {
		return strconv.FormatInt(whole, 10), nil
	}
	return strconv.FormatInt(whole, 10) + p.suffix, nil
}

func (p *Price) Fill(_ context.Context, job *Job) error {
	currencyField := job.Field.Contains("currency")
	listPrice := job.Source.Aliases.Is(models.ConceptListPrice, job.Field) || job.Field.Contains("list_price")

	for _, g := range job.Pending(job.Groups()) {
		for _, sku := range g.SKUs {
			if currencyField {
				assign(job, p.Name(), []models.SKU{sku}, job.Field, CurrencyOf(job.Target.Country))
				continue
			}
			raw := job.SourceValue(sku)
			if raw == "" && listPrice {
				raw = siblingListPrice(job, sku)
			}
			if raw == "" {
				continue
			}
			amount, err := ParsePrice(raw)
			if err != nil {
				p.logger.Warn("unparsable price", map[string]interface{}{
					"sku":   string(sku),
					"field": string(job.Field),
					"value": raw,
				})
				continue
			}
			out, err := p.Convert(amount, job.Source.Scope.Country, job.Target.Country)
			if err != nil {
				return err
			}
			assign(job, p.Name(), []models.SKU{sku}, job.Field, out)
		}
	}
	return nil
}

// siblingListPrice finds the list price under a drifted column id of the
// same record, e.g. list_price_with_tax.
func siblingListPrice(job *Job, sku models.SKU) string {
	rec, ok := job.Source.Record(sku)
	if !ok {
		return ""
	}
	keys := make([]string, 0, len(rec.Values))
	for k := range rec.Values {
		if k.Contains("list_price") && !k.Contains("currency") {
			keys = append(keys, string(k))
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := strings.TrimSpace(rec.Values[models.FieldID(k)]); v != "" {
			return v
		}
	}
	return ""
}

// thousandsGrouped reports "1,299" or "12,345,678": every comma is followed by
// exactly three digits.
func thousandsGrouped(s string) bool {
	groups := strings.Split(s, ",")
	if groups[0] == "" {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// ParsePrice reads "19,99", "1,299", "1.234,50", "€ 12.00" and similar forms.
func ParsePrice(raw string) (float64, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	comma, dot := strings.LastIndexByte(s, ','), strings.LastIndexByte(s, '.')
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0 && thousandsGrouped(s):
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("price %q is not positive", raw)
	}
	return v, nil
}
