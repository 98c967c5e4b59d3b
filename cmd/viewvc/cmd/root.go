// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/viewvc/viewvc-sub000/pkg/config"
	"github.com/viewvc/viewvc-sub000/pkg/dlogger"
	"github.com/viewvc/viewvc-sub000/pkg/roots"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "viewvc",
	Short: "ViewVC browses version control repositories",
	Long: `ViewVC browses the history of CVS, Subversion and git repositories.

Each command reads one configured root: a CVS repository, a Subversion repository
(local or remote) or a git repository. Roots, external tools and access control
are described by the configuration file.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		startProfiler()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		stopTelemetry()
	},
}

var cfg *config.Config

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addRootFlag(rootCmd)
	addRevFlag(rootCmd)
	addJSONFlag(rootCmd)
	addLogLevelFlag(rootCmd)
	addUserFlag(rootCmd)
	addTemplateFlag(rootCmd)
	addMetricsFlag(rootCmd)
	addMetricsURLFlag(rootCmd)
	addJaegerAgentFlag(rootCmd)
	addCPUProfFlag(rootCmd)
	addMemProfFlag(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.Reset()
	if os.Getenv("VIEWVC_CONFIG") != "" {
		viper.SetConfigFile(os.Getenv("VIEWVC_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.viewvc")
		viper.AddConfigPath("/etc/viewvc")
		viper.SetConfigName("viewvc")
	}
	viper.SetEnvPrefix("viewvc")
	viper.AutomaticEnv() // read in environment variables that match

	// flags override the telemetry settings of the config file
	for key, flag := range map[string]string{
		"telemetry.metrics":      "metrics",
		"telemetry.metrics_url":  "metrics-url",
		"telemetry.jaeger_agent": "jaeger-agent",
	} {
		if f := rootCmd.PersistentFlags().Lookup(flag); f != nil && f.Changed {
			_ = viper.BindPFlag(key, f)
		}
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			wrapFatalln("read config file", err)
			return
		}
	}

	var err error
	cfg, err = config.Load(viper.GetViper())
	if err != nil {
		wrapFatalln("invalid configuration", err)
		return
	}
}

func newRegistry() (*roots.Registry, error) {
	logger, err := dlogger.GetLogger(viewvcFlags.root.logLevel, dlogger.Console())
	if err != nil {
		return nil, err
	}
	opts := []roots.Option{roots.WithLogger(logger)}
	if cfg.Options.Trace && cfg.Telemetry.JaegerAgent != "" {
		tr, err := newTracer(cfg.Telemetry.JaegerAgent, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, roots.WithTracer(tr))
	}
	return roots.New(cfg, opts...)
}

// openRepo opens the root selected by the --root flag, or the default root
func openRepo(ctx context.Context) (vclib.Repository, error) {
	reg, err := newRegistry()
	if err != nil {
		return nil, err
	}
	name := viewvcFlags.root.name
	if name == "" {
		name = reg.DefaultRoot()
	}
	if name == "" {
		return nil, fmt.Errorf("no root specified: use --%s, or configure default_root", rootFlag)
	}
	return reg.Open(ctx, name, viewvcFlags.root.username)
}
