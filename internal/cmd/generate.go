package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/emergent-company/ageload/domain/dataset"
	"github.com/emergent-company/ageload/pkg/logger"
)

// profileFlags are the dataset shape flags shared by generate and load --generate.
type profileFlags struct {
	profile   string
	persons   int
	companies int
	products  int
	locations int
	density   float64
	seed      uint64
}

func addProfileFlags(cmd *cobra.Command, f *profileFlags) {
	def := dataset.DefaultProfile()
	counts := map[string]int{}
	for _, n := range def.Nodes {
		counts[n.Label] = n.Count
	}

	cmd.Flags().StringVar(&f.profile, "profile", "", "YAML dataset profile (flags override its values)")
	cmd.Flags().IntVar(&f.persons, "persons", counts["Person"], "number of Person nodes")
	cmd.Flags().IntVar(&f.companies, "companies", counts["Company"], "number of Company nodes")
	cmd.Flags().IntVar(&f.products, "products", counts["Product"], "number of Product nodes")
	cmd.Flags().IntVar(&f.locations, "locations", counts["Location"], "number of Location nodes")
	cmd.Flags().Float64Var(&f.density, "density", def.Density, "edge density in [0,1]")
	cmd.Flags().Uint64Var(&f.seed, "seed", def.Seed, "random seed")
}

// resolve returns the profile file (or the default profile) with every
// explicitly set flag applied on top.
func (f *profileFlags) resolve(cmd *cobra.Command) (dataset.Profile, error) {
	p := dataset.DefaultProfile()
	if f.profile != "" {
		var err error
		if p, err = dataset.LoadProfile(f.profile); err != nil {
			return p, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("persons") {
		p.Nodes = setCount(p.Nodes, "Person", f.persons)
	}
	if changed("companies") {
		p.Nodes = setCount(p.Nodes, "Company", f.companies)
	}
	if changed("products") {
		p.Nodes = setCount(p.Nodes, "Product", f.products)
	}
	if changed("locations") {
		p.Nodes = setCount(p.Nodes, "Location", f.locations)
	}
	if changed("density") {
		p.Density = f.density
	}
	if changed("seed") {
		p.Seed = f.seed
	}
	return p, p.Validate()
}

func setCount(counts []dataset.NodeCount, label string, n int) []dataset.NodeCount {
	for i := range counts {
		if counts[i].Label == label {
			counts[i].Count = n
			return counts
		}
	}
	return append(counts, dataset.NodeCount{Label: label, Count: n})
}

// buildDataset generates the dataset described by p.
func buildDataset(p dataset.Profile) (dataset.Dataset, dataset.Report, error) {
	b := dataset.NewBuilder(logger.NewLogger(), dataset.NewSource(p.Seed, time.Now()))
	return b.Build(p)
}

var generateFlags struct {
	profileFlags
	out         string
	saveProfile string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic dataset as nodes.csv and edges.csv",
	Long: `Generate persons, companies, products and locations together with
WORKS_AT, PURCHASED, KNOWS and LOCATED_IN relationships and write them to
nodes.csv and edges.csv.

Examples:
  ageload generate
  ageload generate --persons 10000 --companies 500 --density 0.01 --out data/
  ageload generate --profile large.yaml --seed 7`,
	RunE: runGenerate,
}

func init() {
	addProfileFlags(generateCmd, &generateFlags.profileFlags)
	generateCmd.Flags().StringVar(&generateFlags.out, "out", ".", "output directory")
	generateCmd.Flags().StringVar(&generateFlags.saveProfile, "save-profile", "", "also write the effective profile to this YAML file")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	p, err := generateFlags.resolve(cmd)
	if err != nil {
		return err
	}

	ds, report, err := buildDataset(p)
	if err != nil {
		return err
	}

	nodesPath, edgesPath, err := dataset.WriteFiles(generateFlags.out, ds)
	if err != nil {
		return err
	}
	if generateFlags.saveProfile != "" {
		if err := p.Save(generateFlags.saveProfile); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if err := renderDatasetReport(out, report); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nWrote %s and %s\n", filepath.Clean(nodesPath), filepath.Clean(edgesPath))
	return nil
}

func renderDatasetReport(w io.Writer, report dataset.Report) error {
	table := newTable(w, "Kind", "Label", "Count")
	nodes, edges := 0, 0
	for _, c := range report.Nodes {
		table.Append("node", c.Label, fmt.Sprint(c.Count))
		nodes += c.Count
	}
	for _, c := range report.Edges {
		table.Append("edge", c.Label, fmt.Sprint(c.Count))
		edges += c.Count
	}
	table.Append("total", "nodes", fmt.Sprint(nodes))
	table.Append("total", "edges", fmt.Sprint(edges))
	if err := table.Render(); err != nil {
		return err
	}

	for _, s := range report.Shortfalls {
		fmt.Fprintf(w, "warning: %s produced %d of %d edges after %d attempts\n", s.Label, s.Produced, s.Target, s.Attempts)
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(w, "skipped edge type: %s\n", s)
	}
	return nil
}
