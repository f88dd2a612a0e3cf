// Package datagen writes synthetic sales exports in the tab-delimited input
// format. Output is deterministic for a fixed seed.
package datagen

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Header is the first line of every generated export.
const Header = "Name\tAddress\tCity\tCountry\tRegion\tProductName\tProductCategory\tProductCategoryDescription\tProductUnitPrice\tQuantityOrdered\tOrderDate"

// Regions used for generated countries.
var Regions = []string{"Africa", "Asia", "Australia", "Europe", "Middle East", "North America", "South America"}

// Options controls the shape of the generated file.
type Options struct {
	Seed       uint64
	Customers  int // one record per customer
	Countries  int
	Categories int
	Products   int
	MaxItems   int // products per record, 1..MaxItems

	Start, End time.Time // order date range
}

// DefaultOptions returns a small, valid configuration.
func DefaultOptions() Options {
	return Options{
		Seed:       1,
		Customers:  100,
		Countries:  12,
		Categories: 8,
		Products:   40,
		MaxItems:   5,
		Start:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Customers <= 0 {
		o.Customers = d.Customers
	}
	if o.Countries <= 0 {
		o.Countries = d.Countries
	}
	if o.Categories <= 0 {
		o.Categories = d.Categories
	}
	if o.Products <= 0 {
		o.Products = d.Products
	}
	if o.MaxItems <= 0 {
		o.MaxItems = d.MaxItems
	}
	if o.Start.IsZero() {
		o.Start = d.Start
	}
	if o.End.IsZero() || !o.End.After(o.Start) {
		o.End = o.Start.AddDate(3, 0, 0)
	}
	return o
}

// Stats describes a generated file.
type Stats struct {
	Records int // data lines
	Items   int // total products across records (= OrderDetail rows)
}

type country struct{ name, region string }

type category struct{ name, description string }

type product struct {
	name     string
	price    string
	category category
}

type customer struct {
	first, last, address, city string
	country                    country
}

// Generator produces records from a seeded faker.
type Generator struct {
	opts  Options
	faker *gofakeit.Faker

	countries  []country
	categories []category
	products   []product
}

// New builds the catalogue (countries, categories, products) up front so that
// every product keeps one price and category and every country one region.
func New(opts Options) *Generator {
	opts = opts.withDefaults()
	g := &Generator{opts: opts, faker: gofakeit.New(opts.Seed)}

	seen := map[string]bool{}
	for len(g.countries) < opts.Countries {
		name := g.uniqueName(seen, g.faker.Country)
		g.countries = append(g.countries, country{name: name, region: Choose(g.faker, Regions)})
	}

	seen = map[string]bool{}
	for len(g.categories) < opts.Categories {
		name := g.uniqueName(seen, g.faker.ProductCategory)
		g.categories = append(g.categories, category{name: name, description: clean(g.faker.Sentence(6))})
	}

	seen = map[string]bool{}
	for len(g.products) < opts.Products {
		name := g.uniqueName(seen, g.faker.ProductName)
		g.products = append(g.products, product{
			name:     name,
			price:    strconv.FormatFloat(g.faker.Price(1, 500), 'f', 2, 64),
			category: Choose(g.faker, g.categories),
		})
	}
	return g
}

// uniqueName draws from next until it yields an unused cleaned value; after a
// few collisions it disambiguates with a numeric suffix.
func (g *Generator) uniqueName(seen map[string]bool, next func() string) string {
	name := clean(next())
	for i := 2; seen[name] || name == ""; i++ {
		if i < 8 {
			name = clean(next())
			continue
		}
		name = fmt.Sprintf("%s %d", clean(next()), i)
	}
	seen[name] = true
	return name
}

// Write emits the header and opts.Customers records to w.
func (g *Generator) Write(w io.Writer) (Stats, error) {
	var st Stats
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return st, err
	}

	names := map[string]bool{}
	for i := 0; i < g.opts.Customers; i++ {
		c := g.customer(names)
		line, items := g.record(c)
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return st, err
		}
		st.Records++
		st.Items += items
	}
	return st, bw.Flush()
}

func (g *Generator) customer(names map[string]bool) customer {
	first := strings.ReplaceAll(clean(g.faker.FirstName()), " ", "-")
	last := clean(g.faker.LastName())
	for i := 2; names[first+" "+last]; i++ {
		last = fmt.Sprintf("%s %d", clean(g.faker.LastName()), i)
	}
	names[first+" "+last] = true

	return customer{
		first:   first,
		last:    last,
		address: clean(g.faker.Street()),
		city:    clean(g.faker.City()),
		country: Choose(g.faker, g.countries),
	}
}

func (g *Generator) record(c customer) (string, int) {
	n := g.faker.IntRange(1, g.opts.MaxItems)
	var names, cats, descs, prices, qtys, dates []string
	for i := 0; i < n; i++ {
		p := Choose(g.faker, g.products)
		names = append(names, p.name)
		cats = append(cats, p.category.name)
		descs = append(descs, p.category.description)
		prices = append(prices, p.price)
		qtys = append(qtys, strconv.Itoa(g.faker.IntRange(1, 20)))
		dates = append(dates, g.faker.DateRange(g.opts.Start, g.opts.End).Format("20060102"))
	}

	fields := []string{
		c.first + " " + c.last,
		c.address,
		c.city,
		c.country.name,
		c.country.region,
		strings.Join(names, ";"),
		strings.Join(cats, ";"),
		strings.Join(descs, ";"),
		strings.Join(prices, ";"),
		strings.Join(qtys, ";"),
		strings.Join(dates, ";"),
	}
	return strings.Join(fields, "\t"), n
}

// Write generates a file with opts in one call.
func Write(w io.Writer, opts Options) (Stats, error) {
	return New(opts).Write(w)
}

// Choose returns a random element from items.
func Choose[T any](f *gofakeit.Faker, items []T) T {
	if len(items) == 0 {
		var zero T
		return zero
	}
	return items[f.IntRange(0, len(items)-1)]
}

var cleaner = strings.NewReplacer("\t", " ", ";", ",", "\r", " ", "\n", " ")

// clean removes the format's separators from a generated value.
func clean(s string) string {
	return strings.TrimSpace(cleaner.Replace(s))
}
