package loader

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/emergent-company/ageload/domain/dataset"
	"github.com/emergent-company/ageload/pkg/apperror"
	"github.com/emergent-company/ageload/pkg/logger"
)

// AgloadConfig configures the external age_load binary.
type AgloadConfig struct {
	Binary    string
	WorkDir   string
	KeepFiles bool

	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// CommandRunner runs an external program and returns its combined output.
type CommandRunner func(ctx context.Context, path string, args []string) ([]byte, error)

func execRunner(ctx context.Context, path string, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, path, args...).CombinedOutput()
}

// Agload hands each label to the age_load tool as a CSV file. One label or
// edge type is one chunk, and the tool's exit status decides success.
type Agload struct {
	base
	cfg      AgloadConfig
	lookPath func(string) (string, error)
	run      CommandRunner
}

func NewAgload(opts Options, cfg AgloadConfig) *Agload {
	if cfg.Binary == "" {
		cfg.Binary = "age_load"
	}
	return &Agload{
		base:     newBase("agload", opts),
		cfg:      cfg,
		lookPath: exec.LookPath,
		run:      execRunner,
	}
}

// Available returns apperror.ErrToolUnavailable when the binary cannot be
// found.
func (a *Agload) Available() error {
	_, err := a.resolve()
	return err
}

func (a *Agload) resolve() (string, error) {
	path, err := a.lookPath(a.cfg.Binary)
	if err != nil {
		return "", apperror.ErrToolUnavailable.
			WithInternal(err).
			WithDetails(map[string]any{"binary": a.cfg.Binary})
	}
	return path, nil
}

func (a *Agload) LoadNodes(ctx context.Context, nodes []dataset.Node, graph string, batchSize int) (Summary, error) {
	if err := checkInput(len(nodes), batchSize); err != nil {
		return Summary{Kind: KindNodes, Strategy: a.name}, err
	}
	bin, err := a.resolve()
	if err != nil {
		return Summary{Kind: KindNodes, Strategy: a.name}, err
	}

	dir, cleanup, err := a.workDir()
	if err != nil {
		return Summary{Kind: KindNodes, Strategy: a.name}, err
	}
	defer cleanup()

	t := a.tracker(KindNodes, len(nodes))
	order, groups := groupNodes(nodes)
	for _, label := range order {
		group := groups[label]
		idx, started := t.next()

		path := filepath.Join(dir, "vertices_"+label+".csv")
		if err := writeVertexCSV(path, group); err != nil {
			return t.summary(), a.chunkFailed(KindNodes, label, idx, err)
		}
		if err := a.invoke(ctx, bin, graph, label, "vertex", path); err != nil {
			return t.summary(), a.chunkFailed(KindNodes, label, idx, err)
		}
		t.commit(label, len(group), 0, started)
	}

	s := t.summary()
	a.logDone(s)
	return s, nil
}

func (a *Agload) LoadEdges(ctx context.Context, edges []dataset.Edge, graph string, batchSize int) (Summary, error) {
	if err := checkInput(len(edges), batchSize); err != nil {
		return Summary{Kind: KindEdges, Strategy: a.name}, err
	}
	bin, err := a.resolve()
	if err != nil {
		return Summary{Kind: KindEdges, Strategy: a.name}, err
	}

	dir, cleanup, err := a.workDir()
	if err != nil {
		return Summary{Kind: KindEdges, Strategy: a.name}, err
	}
	defer cleanup()

	t := a.tracker(KindEdges, len(edges))
	skips := &skipLog{log: a.log}
	defer skips.flush()

	order, groups := groupEdges(edges)
	for _, label := range order {
		group := groups[label]
		_, started := t.next()

		path := filepath.Join(dir, "edges_"+label+".csv")
		err := writeEdgeCSV(path, group)
		if err == nil {
			err = a.invoke(ctx, bin, graph, label, "edge", path)
		}
		if err != nil {
			if ctx.Err() != nil {
				t.reasons = skips.reasons
				return t.summary(), ctx.Err()
			}
			reason := firstLine(err.Error())
			for _, e := range group {
				skips.record(e, reason)
			}
			t.commit(label, 0, len(group), started)
			continue
		}
		t.commit(label, len(group), 0, started)
	}

	t.reasons = skips.reasons
	s := t.summary()
	a.logDone(s)
	return s, nil
}

func (a *Agload) workDir() (string, func(), error) {
	dir, err := os.MkdirTemp(a.cfg.WorkDir, "ageload-")
	if err != nil {
		return "", nil, fmt.Errorf("create work dir: %w", err)
	}
	cleanup := func() {
		if a.cfg.KeepFiles {
			a.log.Info("keeping load files", slog.String("dir", dir))
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			a.log.Warn("failed to remove load files", slog.String("dir", dir), logger.Error(err))
		}
	}
	return dir, cleanup, nil
}

func (a *Agload) args(graph, label, kind, csvPath string) []string {
	return []string{
		"--dbname", a.cfg.Database,
		"--host", a.cfg.Host,
		"--port", strconv.Itoa(a.cfg.Port),
		"--username", a.cfg.User,
		"--password", a.cfg.Password,
		"--graph", graph,
		"--label", label,
		"--type", kind,
		"--csv-path", csvPath,
	}
}

// CommandLine renders the invocation for logs with the password masked.
func (a *Agload) CommandLine(bin, graph, label, kind, csvPath string) string {
	args := a.args(graph, label, kind, csvPath)
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "--password" && args[i+1] != "" {
			args[i+1] = "********"
		}
	}
	return shellquote.Join(append([]string{bin}, args...)...)
}

func (a *Agload) invoke(ctx context.Context, bin, graph, label, kind, csvPath string) error {
	a.log.Info("running age_load",
		slog.String("label", label),
		slog.String("type", kind),
		slog.String("command", a.CommandLine(bin, graph, label, kind, csvPath)),
	)
	out, err := a.run(ctx, bin, a.args(graph, label, kind, csvPath))
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("age_load %s %s: %w", kind, label, err)
		}
		return fmt.Errorf("age_load %s %s: %w: %s", kind, label, err, msg)
	}
	return nil
}

func writeVertexCSV(path string, nodes []dataset.Node) error {
	props := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		props[i] = n.Properties
	}
	keys := propertyKeys(props)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(append([]string{"id"}, keys...)); err != nil {
		return err
	}
	for _, n := range nodes {
		rec := []string{strconv.FormatInt(n.ID, 10)}
		cells, err := propertyCells(keys, n.Properties)
		if err != nil {
			return fmt.Errorf("node %d: %w", n.ID, err)
		}
		if err := w.Write(append(rec, cells...)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

func writeEdgeCSV(path string, edges []dataset.Edge) error {
	props := make([]map[string]any, len(edges))
	for i, e := range edges {
		props[i] = e.Properties
	}
	keys := propertyKeys(props)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(append([]string{"start_id", "end_id"}, keys...)); err != nil {
		return err
	}
	for _, e := range edges {
		rec := []string{strconv.FormatInt(e.FromID, 10), strconv.FormatInt(e.ToID, 10)}
		cells, err := propertyCells(keys, e.Properties)
		if err != nil {
			return fmt.Errorf("edge %d: %w", e.ID, err)
		}
		if err := w.Write(append(rec, cells...)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// propertyKeys returns the sorted union of keys across props.
func propertyKeys(props []map[string]any) []string {
	set := make(map[string]struct{})
	for _, p := range props {
		for k := range p {
			set[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func propertyCells(keys []string, props map[string]any) ([]string, error) {
	cells := make([]string, len(keys))
	for i, k := range keys {
		v, ok := props[k]
		if !ok {
			continue
		}
		norm, err := dataset.NormalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		switch x := norm.(type) {
		case string:
			cells[i] = x
		case bool:
			cells[i] = strconv.FormatBool(x)
		case int64:
			cells[i] = strconv.FormatInt(x, 10)
		case float64:
			cells[i] = strconv.FormatFloat(x, 'f', -1, 64)
		}
	}
	return cells, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
