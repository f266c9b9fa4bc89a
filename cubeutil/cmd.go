/*
Copyright © 2018 the Datacube authors.
This file is part of Datacube.

Datacube is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Datacube is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Datacube.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package cubeutil is the command-line interface for building and
// updating data cubes.
package cubeutil

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/lnashier/viper"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spatialmodel/datacube"
	"github.com/spatialmodel/datacube/providers"
)

// Version is the version of the command-line interface.
const Version = "0.3.0"

// Cfg holds configuration information.
var Cfg *viper.Viper

// Providers holds the source providers available to the command line.
var Providers = providers.NewRegistry()

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to datacube.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "CubeConfig",
			usage: `
              CubeConfig specifies a TOML file holding the grid and time
              configuration of a new cube. When it is given, TARGET must
              not be an existing cube. When it is not given, new cubes are
              created with a global 0.25° grid and 8-day cells.`,
			shorthand:  "c",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "SourceRoot",
			usage: `
              SourceRoot is the directory that relative SOURCE paths
              are resolved against.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "list",
			usage: `
              list prints the names of the available source providers and exits.`,
			shorthand:  "l",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "overwrite",
			usage: `
              overwrite recomputes cells that have already been filled
              instead of skipping them.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "schedule",
			usage: `
              schedule is a cron specification, such as "@daily" or
              "0 3 * * *". If it is given, the cube is updated once
              immediately and then again on the schedule until the
              process is interrupted.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "MaxOpenDatasets",
			usage: `
              MaxOpenDatasets is the number of source files each provider
              may hold open at once.`,
			defaultVal: datacube.DefaultMaxOpenDatasets,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "verbose",
			usage: `
              verbose turns on debug logging.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("DATACUBE")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	Root.AddCommand(versionCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("datacube: problem reading configuration file: %v", err)
		}
	}
	if Cfg.GetBool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "datacube [flags] TARGET [name:SOURCE ...]",
	Short: "Build and update a data cube.",
	Long: `datacube creates the data cube TARGET if it does not exist yet and
adds to it the contribution of each SOURCE, read by the provider called name.
Cells already filled by earlier runs are skipped unless --overwrite is given.
Use --list to see the available providers.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'DATACUBE_var' where 'var' is the
name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	Args:              cobra.ArbitraryArgs,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
	RunE: func(cmd *cobra.Command, args []string) error {
		if Cfg.GetBool("list") {
			for _, name := range Providers.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("datacube: missing TARGET argument")
		}
		maxOpen, err := cast.ToIntE(Cfg.Get("MaxOpenDatasets"))
		if err != nil {
			return fmt.Errorf("datacube: reading 'MaxOpenDatasets': %v", err)
		}
		j := &Job{
			Target:          os.ExpandEnv(args[0]),
			Sources:         args[1:],
			CubeConfig:      os.ExpandEnv(Cfg.GetString("CubeConfig")),
			SourceRoot:      os.ExpandEnv(Cfg.GetString("SourceRoot")),
			Overwrite:       Cfg.GetBool("overwrite"),
			MaxOpenDatasets: maxOpen,
			Registry:        Providers,
			Log:             logrus.StandardLogger(),
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if spec := Cfg.GetString("schedule"); spec != "" {
			return schedule(ctx, spec, j)
		}
		report, err := j.Run(ctx)
		if err != nil {
			return err
		}
		return report.Err()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of datacube.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("datacube v%s\n", Version)
	},
	DisableAutoGenTag: true,
}

// schedule runs j now and then on the cron schedule spec until ctx
// is done. An error that stops the first run, such as an unknown
// provider, is returned before anything is scheduled. Cell and
// provider failures of every run, the first included, are logged and
// do not stop the schedule.
func schedule(ctx context.Context, spec string, j *Job) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("datacube: invalid schedule %q: %v", spec, err)
	}
	report, err := j.Run(ctx)
	if err != nil {
		return err
	}
	if err = report.Err(); err != nil {
		j.Log.Error(err)
	}

	// The cube exists now, so later runs open it.
	next := *j
	next.CubeConfig = ""
	c := cron.New()
	c.Schedule(sched, cron.FuncJob(func() {
		report, err := next.Run(ctx)
		if err == nil {
			err = report.Err()
		}
		if err != nil {
			next.Log.Errorf("datacube: scheduled update: %v", err)
		}
	}))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
