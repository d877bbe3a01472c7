package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/ageload/domain/dataset"
	"github.com/emergent-company/ageload/internal/config"
	"github.com/emergent-company/ageload/pkg/apperror"
)

func TestRootCommand_Flags(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)

	for name, typ := range map[string]string{"config": "string", "graph": "string", "debug": "bool"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, "--%s flag should be registered", name)
		assert.Equal(t, typ, flag.Value.Type())
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range NewRootCommand().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"generate", "setup", "load", "index", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestLoadCommand_Flags(t *testing.T) {
	for _, name := range []string{"nodes", "edges", "generate", "strategy", "fallback", "batch-size", "keep-files", "skip-indexes", "metrics-addr", "persons", "density"} {
		assert.NotNil(t, loadCmd.Flags().Lookup(name), "--%s flag should be registered", name)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	runVersion(versionCmd, nil)

	assert.Contains(t, out.String(), "Version:")
	assert.Contains(t, out.String(), "dev")
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	root := NewRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"generate",
		"--out", dir,
		"--persons", "10", "--companies", "5", "--products", "4", "--locations", "2",
		"--density", "0.5", "--seed", "42",
	})
	require.NoError(t, root.Execute())

	ds, err := dataset.ReadFiles(filepath.Join(dir, dataset.NodesFile), filepath.Join(dir, dataset.EdgesFile))
	require.NoError(t, err)
	assert.Len(t, ds.Nodes, 21)
	assert.NotEmpty(t, ds.Edges)
	assert.Contains(t, out.String(), "Person")
	assert.Contains(t, out.String(), "WORKS_AT")
}

func TestProfileFlags_Resolve(t *testing.T) {
	t.Run("defaults with overrides", func(t *testing.T) {
		var f profileFlags
		cmd := &cobra.Command{Use: "x"}
		addProfileFlags(cmd, &f)
		require.NoError(t, cmd.ParseFlags([]string{"--persons", "7", "--seed", "9"}))

		p, err := f.resolve(cmd)
		require.NoError(t, err)
		assert.Equal(t, uint64(9), p.Seed)
		assert.Equal(t, dataset.DefaultProfile().Density, p.Density)
		assert.Contains(t, p.Nodes, dataset.NodeCount{Label: "Person", Count: 7})
		assert.Contains(t, p.Nodes, dataset.NodeCount{Label: "Company", Count: 20})
	})

	t.Run("profile file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profile.yaml")
		p := dataset.DefaultProfile()
		p.Seed = 3
		p.Nodes = []dataset.NodeCount{{Label: "Person", Count: 2}, {Label: "Company", Count: 1}}
		p.EdgeTypes = []string{"WORKS_AT"}
		require.NoError(t, p.Save(path))

		var f profileFlags
		cmd := &cobra.Command{Use: "x"}
		addProfileFlags(cmd, &f)
		require.NoError(t, cmd.ParseFlags([]string{"--profile", path, "--density", "1"}))

		got, err := f.resolve(cmd)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), got.Seed)
		assert.Equal(t, 1.0, got.Density)
		assert.Equal(t, []string{"WORKS_AT"}, got.EdgeTypes)
		assert.Len(t, got.Nodes, 2)
	})

	t.Run("invalid density", func(t *testing.T) {
		var f profileFlags
		cmd := &cobra.Command{Use: "x"}
		addProfileFlags(cmd, &f)
		require.NoError(t, cmd.ParseFlags([]string{"--density", "1.5"}))

		_, err := f.resolve(cmd)
		assert.Error(t, err)
	})
}

func TestApplyOverrides(t *testing.T) {
	t.Cleanup(viper.Reset)

	base := &config.Config{
		Graph:  config.GraphConfig{Name: "generated_graph"},
		Loader: config.LoaderConfig{Strategy: "batched", Fallback: "batched", BatchSize: 5000},
	}

	viper.Set("graph", "social")
	viper.Set("strategy", "staged")
	viper.Set("batch-size", 250)
	viper.Set("keep-files", true)

	got, err := applyOverrides(base)
	require.NoError(t, err)
	assert.Equal(t, "social", got.Graph.Name)
	assert.Equal(t, "staged", got.Loader.Strategy)
	assert.Equal(t, 250, got.Loader.BatchSize)
	assert.True(t, got.Loader.KeepFiles)
	assert.Equal(t, "generated_graph", base.Graph.Name, "input is not modified")

	viper.Set("batch-size", 0)
	_, err = applyOverrides(base)
	assert.Error(t, err)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "8.0 GiB", formatBytes(8<<30))
}

func TestWithSetupHint(t *testing.T) {
	missing := fmt.Errorf("load nodes: %w", apperror.ErrGraphNotFound.WithInternal(errors.New(`graph "g" does not exist`)))
	err := withSetupHint(missing)
	assert.ErrorIs(t, err, apperror.ErrGraphNotFound)
	assert.Contains(t, err.Error(), "ageload setup")

	other := errors.New("connection refused")
	assert.Same(t, other, withSetupHint(other))
}
