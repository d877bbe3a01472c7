package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Source is the randomness and clock a generator draws from.
type Source struct {
	Rand *rand.Rand
	Now  time.Time
}

// NewSource returns a deterministic source for seed.
func NewSource(seed uint64, now time.Time) *Source {
	return &Source{
		Rand: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Now:  now,
	}
}

// NodeGenerator produces the properties of the index-th node (0-based, per
// label).
type NodeGenerator func(src *Source, index int) map[string]any

// EdgeGenerator produces the properties of one relationship.
type EdgeGenerator func(src *Source) map[string]any

// EdgeType declares a relationship label and the node labels it connects.
type EdgeType struct {
	Label    string
	From     string
	To       string
	Generate EdgeGenerator
}

var (
	firstNames = []string{"Alice", "Bob", "Charlie", "Diana", "Eve", "Frank", "Grace", "Henry",
		"Iris", "Jack", "Kelly", "Leo", "Mia", "Noah", "Olivia", "Paul"}
	lastNames = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
		"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez"}
	industries = []string{"Technology", "Finance", "Healthcare", "Retail", "Manufacturing",
		"Education", "Entertainment", "Energy"}
	categories = []string{"Electronics", "Clothing", "Food", "Books", "Tools",
		"Sports", "Beauty", "Home"}
	cities = []string{"New York", "Los Angeles", "Chicago", "Houston", "Phoenix",
		"Philadelphia", "San Antonio", "San Diego", "Dallas", "San Jose"}
	positions = []string{"Engineer", "Manager", "Director", "Analyst", "Consultant",
		"Designer", "Developer", "Architect", "Specialist"}
	relationships = []string{"friend", "colleague", "acquaintance", "family"}
)

// DefaultNodeTypes returns the generators for Person, Company, Product and
// Location.
func DefaultNodeTypes() map[string]NodeGenerator {
	return map[string]NodeGenerator{
		"Person":   PersonProperties,
		"Company":  CompanyProperties,
		"Product":  ProductProperties,
		"Location": LocationProperties,
	}
}

// DefaultEdgeTypes returns WORKS_AT, PURCHASED, KNOWS and LOCATED_IN, in the
// order they are generated.
func DefaultEdgeTypes() []EdgeType {
	return []EdgeType{
		{Label: "WORKS_AT", From: "Person", To: "Company", Generate: WorksAtProperties},
		{Label: "PURCHASED", From: "Person", To: "Product", Generate: PurchasedProperties},
		{Label: "KNOWS", From: "Person", To: "Person", Generate: KnowsProperties},
		{Label: "LOCATED_IN", From: "Company", To: "Location", Generate: LocatedInProperties},
	}
}

func PersonProperties(src *Source, index int) map[string]any {
	created := src.Now.AddDate(0, 0, -src.intRange(0, 365))
	return map[string]any{
		"name":       pick(src, firstNames) + " " + pick(src, lastNames),
		"age":        int64(src.intRange(18, 80)),
		"email":      fmt.Sprintf("user%d@example.com", index),
		"created_at": created.Format(time.RFC3339),
	}
}

func CompanyProperties(src *Source, index int) map[string]any {
	return map[string]any{
		"name":         fmt.Sprintf("Company_%d", index),
		"industry":     pick(src, industries),
		"employees":    int64(src.intRange(10, 10000)),
		"revenue":      round(src.uniform(1_000_000, 100_000_000), 2),
		"founded_year": int64(src.intRange(1980, 2023)),
	}
}

func ProductProperties(src *Source, index int) map[string]any {
	return map[string]any{
		"name":     fmt.Sprintf("Product_%d", index),
		"category": pick(src, categories),
		"price":    round(src.uniform(10, 1000), 2),
		"in_stock": src.Rand.IntN(2) == 1,
		"rating":   round(src.uniform(1, 5), 1),
	}
}

func LocationProperties(src *Source, _ int) map[string]any {
	return map[string]any{
		"name":       pick(src, cities),
		"country":    "USA",
		"latitude":   round(src.uniform(25, 50), 6),
		"longitude":  round(src.uniform(-125, -65), 6),
		"population": int64(src.intRange(100_000, 10_000_000)),
	}
}

func WorksAtProperties(src *Source) map[string]any {
	return map[string]any{
		"position":   pick(src, positions),
		"since_year": int64(src.intRange(2010, 2024)),
		"salary":     int64(src.intRange(50_000, 200_000)),
	}
}

func PurchasedProperties(src *Source) map[string]any {
	return map[string]any{
		"quantity":      int64(src.intRange(1, 10)),
		"purchase_date": fmt.Sprintf("2024-%02d-%02d", src.intRange(1, 12), src.intRange(1, 28)),
		"discount":      round(src.uniform(0, 0.5), 2),
	}
}

func KnowsProperties(src *Source) map[string]any {
	return map[string]any{
		"since":        int64(src.intRange(2000, 2024)),
		"relationship": pick(src, relationships),
	}
}

func LocatedInProperties(src *Source) map[string]any {
	return map[string]any{
		"since": int64(src.intRange(2000, 2024)),
	}
}

// intRange returns an int in [lo, hi].
func (s *Source) intRange(lo, hi int) int {
	return lo + s.Rand.IntN(hi-lo+1)
}

func (s *Source) uniform(lo, hi float64) float64 {
	return lo + s.Rand.Float64()*(hi-lo)
}

func pick(src *Source, values []string) string {
	return values[src.Rand.IntN(len(values))]
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
