package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emergent-company/ageload/internal/version"
)

var (
	cfgFile   string
	graphName string
	debug     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ageload",
	Short: "Generate synthetic graphs and bulk-load them into Apache AGE",
	Long: `ageload generates synthetic property-graph datasets (persons, companies,
products and locations) and bulk-loads them into an Apache AGE graph using one
of several load strategies.

Typical workflow:
  ageload setup                       Enable AGE and create the graph
  ageload generate --persons 1000     Write nodes.csv and edges.csv
  ageload load --strategy staged      Load the files and build id indexes`,
	Version:      version.Info().String(),
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			_ = os.Setenv("LOG_LEVEL", "debug")
		}
	},
}

// NewRootCommand returns the root command.
func NewRootCommand() *cobra.Command {
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ageload.yaml or $HOME/.ageload/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&graphName, "graph", "", "AGE graph name (overrides AGE_GRAPH)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	_ = viper.BindPFlag("graph", rootCmd.PersistentFlags().Lookup("graph"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.ageload")
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("ageload")
	}

	viper.SetEnvPrefix("AGELOAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if debug {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
