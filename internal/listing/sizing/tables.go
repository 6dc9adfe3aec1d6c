// Package sizing converts garment sizes and measurements between countries.
package sizing

import (
	"math"
	"strings"

	"listing-workers/internal/models"
)

// Gender selects the size ladder.
type Gender string

const (
	Female Gender = "female"
	Male   Gender = "male"
)

const epsilon = 1e-4

// Table holds parallel size columns indexed by country code.
type Table struct {
	columns map[string][]float64
}

// Convert finds the row whose from column equals size and returns the to column.
func (t *Table) Convert(from, to string, size float64) (float64, bool) {
	src, ok := t.columns[strings.ToUpper(from)]
	if !ok {
		return 0, false
	}
	dst, ok := t.columns[strings.ToUpper(to)]
	if !ok {
		return 0, false
	}
	for i, v := range src {
		if math.Abs(v-size) <= epsilon {
			return dst[i], true
		}
	}
	return 0, false
}

func (t *Table) Rows() int {
	for _, col := range t.columns {
		return len(col)
	}
	return 0
}

type tableKey struct {
	category models.Category
	gender   Gender
}

// Tables is the immutable set of size tables.
type Tables struct {
	tables map[tableKey]*Table
}

func (ts *Tables) Get(category models.Category, gender Gender) (*Table, bool) {
	t, ok := ts.tables[tableKey{category, gender}]
	return t, ok
}

// ladder builds rows base, base+step, ... for each country.
func ladder(rows int, step float64, bases map[float64][]string) *Table {
	t := &Table{columns: make(map[string][]float64)}
	for base, countries := range bases {
		col := make([]float64, rows)
		for i := range col {
			col[i] = base + float64(i)*step
		}
		for _, c := range countries {
			t.columns[c] = col
		}
	}
	return t
}

// explicit assigns each column to its countries.
func explicit(cols map[string][]float64, regions map[string][]string) *Table {
	t := &Table{columns: make(map[string][]float64)}
	for region, countries := range regions {
		for _, c := range countries {
			t.columns[c] = cols[region]
		}
	}
	return t
}

func seq(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

var euCountries = []string{"FR", "BE", "ES", "DE", "IT", "NL", "SE", "PL", "AT", "PT", "DK", "LU"}

// NewTables builds the clothing ladders and shoe tables.
func NewTables() *Tables {
	ts := &Tables{tables: make(map[tableKey]*Table)}

	ts.tables[tableKey{models.CategoryClothing, Female}] = ladder(20, 2, map[float64][]string{
		34: {"FR", "BE", "ES", "PT", "LU"},
		32: {"DE", "NL", "SE", "PL", "AT", "DK"},
		38: {"IT"},
		6:  {"UK", "IE", "AU"},
		2:  {"US", "CA"},
		5:  {"JP"},
	})
	ts.tables[tableKey{models.CategoryClothing, Male}] = ladder(20, 2, map[float64][]string{
		36: {"FR", "BE", "ES", "DE", "NL", "SE", "PL", "AT", "PT", "DK", "LU"},
		40: {"IT"},
		26: {"UK", "IE", "AU", "US", "CA"},
	})

	shoeRegions := map[string][]string{
		"EU": euCountries,
		"UK": {"UK", "IE", "AU"},
		"US": {"US", "CA"},
		"JP": {"JP"},
	}
	ts.tables[tableKey{models.CategoryShoe, Female}] = explicit(map[string][]float64{
		"EU": seq(35, 1, 10),
		"UK": {2.5, 3, 4, 5, 6, 6.5, 7, 8, 8, 9},
		"US": {5, 5.5, 6.5, 7.5, 8.5, 9, 9.5, 10.5, 11, 12},
		"JP": {22, 22.5, 23.5, 24, 25, 25.5, 26, 27, 27.5, 28.5},
	}, shoeRegions)
	ts.tables[tableKey{models.CategoryShoe, Male}] = explicit(map[string][]float64{
		"EU": seq(39, 1, 10),
		"UK": {5.5, 6.5, 7, 8, 8.5, 9.5, 10.5, 11, 12, 13},
		"US": {6.5, 7.5, 8, 9, 9.5, 10.5, 11.5, 12, 12, 13},
		"JP": {24.5, 25, 25.5, 26.5, 27, 28, 28.5, 29, 30, 31},
	}, shoeRegions)

	return ts
}

// ParseGender maps a department or gender value in any supported language.
func ParseGender(value string) (Gender, bool) {
	v := strings.ToLower(value)
	for _, w := range []string{"women", "woman", "femme", "female", "damen", "donna", "mujer", "girl", "fille", "dames", "kvinn"} {
		if strings.Contains(v, w) {
			return Female, true
		}
	}
	for _, w := range []string{"men", "man", "homme", "male", "herren", "uomo", "hombre", "boy", "garçon", "heren"} {
		if strings.Contains(v, w) {
			return Male, true
		}
	}
	return "", false
}
