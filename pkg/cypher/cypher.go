// Package cypher builds the Apache AGE statements used by the loaders.
//
// Structure (labels, relationship types, property keys, graph names) is only
// accepted as validated identifiers. Data is only ever rendered through
// Literal, so every load strategy serializes property values the same way.
package cypher

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrUnsupportedValue  = errors.New("unsupported property value")
	ErrUnsafeBody        = errors.New("cypher body contains a dollar-quote delimiter")
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IDKey is the property every loaded vertex carries its dataset id under.
const IDKey = "id"

// ValidateIdentifier checks that name can be spliced into a statement as a
// label, relationship type, property key or graph name.
func ValidateIdentifier(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// Literal renders a property value: strings quoted and escaped, booleans as
// true/false, integers and floats as bare numbers.
func Literal(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return quote(x), nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedValue, f)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	// keep floats typed as floats in agtype
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s, nil
}

func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// Map renders props as a Cypher map literal with keys in sorted order.
// Extra entries are rendered first, in the order given.
func Map(props map[string]any, extra ...Entry) (string, error) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+len(extra))
	seen := make(map[string]struct{}, len(extra))
	for _, e := range extra {
		s, err := entry(e.Key, e.Value)
		if err != nil {
			return "", err
		}
		seen[e.Key] = struct{}{}
		parts = append(parts, s)
	}
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		s, err := entry(k, props[k])
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}

// Entry is a single key/value pair of a map literal.
type Entry struct {
	Key   string
	Value any
}

func entry(key string, value any) (string, error) {
	if err := ValidateIdentifier(key); err != nil {
		return "", fmt.Errorf("property key: %w", err)
	}
	lit, err := Literal(value)
	if err != nil {
		return "", fmt.Errorf("property %q: %w", key, err)
	}
	return key + ": " + lit, nil
}

// CreateNode renders a CREATE clause for one vertex. The id is stored as the
// IDKey property and wins over an id entry in props.
func CreateNode(label string, id int64, props map[string]any) (string, error) {
	if err := ValidateIdentifier(label); err != nil {
		return "", fmt.Errorf("label: %w", err)
	}
	m, err := Map(props, Entry{Key: IDKey, Value: id})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE (:%s %s)", label, m), nil
}

// Edge describes one relationship to create between two existing vertices.
// Endpoint labels are optional and narrow the MATCH when set.
type Edge struct {
	Label      string
	FromID     int64
	ToID       int64
	FromLabel  string
	ToLabel    string
	Properties map[string]any
}

// MatchCreateEdge renders MATCH + CREATE for e. n makes the pattern variables
// unique so several clauses can be chained in one statement.
func MatchCreateEdge(n int, e Edge) (string, error) {
	if err := ValidateIdentifier(e.Label); err != nil {
		return "", fmt.Errorf("edge label: %w", err)
	}
	from, err := endpoint(fmt.Sprintf("a%d", n), e.FromLabel, e.FromID)
	if err != nil {
		return "", err
	}
	to, err := endpoint(fmt.Sprintf("b%d", n), e.ToLabel, e.ToID)
	if err != nil {
		return "", err
	}

	rel := ":" + e.Label
	if len(e.Properties) > 0 {
		m, err := Map(e.Properties)
		if err != nil {
			return "", err
		}
		rel += " " + m
	}

	return fmt.Sprintf("MATCH %s, %s CREATE (a%d)-[%s]->(b%d)", from, to, n, rel, n), nil
}

func endpoint(variable, label string, id int64) (string, error) {
	if label == "" {
		return fmt.Sprintf("(%s {%s: %d})", variable, IDKey, id), nil
	}
	if err := ValidateIdentifier(label); err != nil {
		return "", fmt.Errorf("endpoint label: %w", err)
	}
	return fmt.Sprintf("(%s:%s {%s: %d})", variable, label, IDKey, id), nil
}

// Nodes renders one statement body creating every vertex in the slice.
func Nodes(clauses []string) string {
	return strings.Join(clauses, " ")
}

// EdgeChain joins edge clauses into one body that returns a single row when
// every endpoint matched exactly once, and no row when any endpoint is
// missing.
func EdgeChain(clauses []string) string {
	var b strings.Builder
	for i, c := range clauses {
		if i > 0 {
			fmt.Fprintf(&b, " WITH 1 AS s%d ", i-1)
		}
		b.WriteString(c)
	}
	b.WriteString(" RETURN 1")
	return b.String()
}

// Statement wraps a Cypher body into the SQL that runs it against graph.
func Statement(graph, body string) (string, error) {
	if err := ValidateIdentifier(graph); err != nil {
		return "", fmt.Errorf("graph name: %w", err)
	}
	if strings.Contains(body, "$$") {
		return "", ErrUnsafeBody
	}
	return fmt.Sprintf("SELECT * FROM cypher(%s, $$ %s $$) AS (v agtype)", pq.QuoteLiteral(graph), body), nil
}
