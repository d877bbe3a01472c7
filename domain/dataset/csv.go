package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	NodesFile = "nodes.csv"
	EdgesFile = "edges.csv"
)

var (
	nodeHeader = []string{"id", "label", "properties"}
	edgeHeader = []string{"edge_id", "edge_label", "from_id", "to_id", "from_label", "to_label", "properties"}
)

// WriteFiles writes nodes.csv and edges.csv into dir.
func WriteFiles(dir string, ds Dataset) (nodesPath, edgesPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create output dir: %w", err)
	}
	nodesPath = filepath.Join(dir, NodesFile)
	edgesPath = filepath.Join(dir, EdgesFile)

	if err := writeFile(nodesPath, func(w io.Writer) error { return WriteNodes(w, ds.Nodes) }); err != nil {
		return "", "", err
	}
	if err := writeFile(edgesPath, func(w io.Writer) error { return WriteEdges(w, ds.Edges) }); err != nil {
		return "", "", err
	}
	return nodesPath, edgesPath, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// ReadFiles loads a dataset from a nodes file and an optional edges file.
func ReadFiles(nodesPath, edgesPath string) (Dataset, error) {
	var ds Dataset

	f, err := os.Open(nodesPath)
	if err != nil {
		return ds, fmt.Errorf("failed to open nodes file: %w", err)
	}
	defer f.Close()
	if ds.Nodes, err = ReadNodes(f); err != nil {
		return ds, fmt.Errorf("%s: %w", nodesPath, err)
	}

	if edgesPath == "" {
		return ds, nil
	}
	g, err := os.Open(edgesPath)
	if err != nil {
		return ds, fmt.Errorf("failed to open edges file: %w", err)
	}
	defer g.Close()
	if ds.Edges, err = ReadEdges(g); err != nil {
		return ds, fmt.Errorf("%s: %w", edgesPath, err)
	}
	return ds, nil
}

// WriteNodes writes nodes as CSV with a JSON properties column.
func WriteNodes(w io.Writer, nodes []Node) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(nodeHeader); err != nil {
		return err
	}
	for _, n := range nodes {
		props, err := MarshalProperties(n.Properties)
		if err != nil {
			return fmt.Errorf("node %d: %w", n.ID, err)
		}
		if err := cw.Write([]string{strconv.FormatInt(n.ID, 10), n.Label, props}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEdges writes edges as CSV with a JSON properties column.
func WriteEdges(w io.Writer, edges []Edge) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(edgeHeader); err != nil {
		return err
	}
	for _, e := range edges {
		props, err := MarshalProperties(e.Properties)
		if err != nil {
			return fmt.Errorf("edge %d: %w", e.ID, err)
		}
		rec := []string{
			strconv.FormatInt(e.ID, 10),
			e.Label,
			strconv.FormatInt(e.FromID, 10),
			strconv.FormatInt(e.ToID, 10),
			e.FromLabel,
			e.ToLabel,
			props,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadNodes parses the output of WriteNodes.
func ReadNodes(r io.Reader) ([]Node, error) {
	records, err := readRecords(r, nodeHeader)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(records))
	for i, rec := range records {
		line := i + 2
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad id %q", line, rec[0])
		}
		props, err := UnmarshalProperties(rec[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		nodes = append(nodes, Node{ID: id, Label: rec[1], Properties: props})
	}
	return nodes, nil
}

// ReadEdges parses the output of WriteEdges.
func ReadEdges(r io.Reader) ([]Edge, error) {
	records, err := readRecords(r, edgeHeader)
	if err != nil {
		return nil, err
	}
	edges := make([]Edge, 0, len(records))
	for i, rec := range records {
		line := i + 2
		var ids [3]int64
		for j, col := range []int{0, 2, 3} {
			if ids[j], err = strconv.ParseInt(rec[col], 10, 64); err != nil {
				return nil, fmt.Errorf("line %d: bad %s %q", line, edgeHeader[col], rec[col])
			}
		}
		props, err := UnmarshalProperties(rec[6])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		edges = append(edges, Edge{
			ID:         ids[0],
			Label:      rec[1],
			FromID:     ids[1],
			ToID:       ids[2],
			FromLabel:  rec[4],
			ToLabel:    rec[5],
			Properties: props,
		})
	}
	return edges, nil
}

func readRecords(r io.Reader, header []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)

	got, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if strings.Join(got, ",") != strings.Join(header, ",") {
		return nil, fmt.Errorf("unexpected header %v, want %v", got, header)
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return records, nil
}

// MarshalProperties encodes props as a JSON object with sorted keys. Floats
// always carry a decimal point so they read back as floats.
func MarshalProperties(props map[string]any) (string, error) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		b.Write(key)
		b.WriteByte(':')

		v, err := NormalizeValue(props[k])
		if err != nil {
			return "", fmt.Errorf("property %q: %w", k, err)
		}
		if f, ok := v.(float64); ok {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return "", fmt.Errorf("property %q: non-finite float", k)
			}
			s := strconv.FormatFloat(f, 'f', -1, 64)
			if !strings.ContainsAny(s, ".eE") {
				s += ".0"
			}
			b.WriteString(s)
			continue
		}
		enc, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("property %q: %w", k, err)
		}
		b.Write(enc)
	}
	b.WriteByte('}')
	return b.String(), nil
}

// UnmarshalProperties decodes a JSON object of scalars. Numbers without a
// fraction or exponent become int64, the rest float64.
func UnmarshalProperties(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid properties: %w", err)
	}

	props := make(map[string]any, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case json.Number:
			if !strings.ContainsAny(x.String(), ".eE") {
				n, err := x.Int64()
				if err != nil {
					return nil, fmt.Errorf("property %q: %w", k, err)
				}
				props[k] = n
				continue
			}
			f, err := x.Float64()
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", k, err)
			}
			props[k] = f
		case string, bool:
			props[k] = x
		default:
			return nil, fmt.Errorf("property %q: unsupported value of type %T", k, v)
		}
	}
	return props, nil
}
