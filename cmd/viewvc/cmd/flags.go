// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

type flagsT struct {
	root struct {
		name        string
		rev         string
		json        bool
		logLevel    string
		username    string
		template    string
		metrics     bool
		metricsURL  string
		jaegerAgent string
		cpuProf     string
		memProf     string
	}
	log struct {
		first  int
		limit  int
		sortBy string
	}
	ls struct {
		noLogs bool
	}
	diff struct {
		path2         string
		rev1          string
		rev2          string
		diffType      string
		context       int
		ignoreWhite   bool
		functionNames bool
		color         bool
	}
	cat struct {
		detectEncoding bool
	}
	annotate struct {
		noText bool
	}
	revinfo struct {
		changes bool
	}
	tarball struct {
		output string
		gzip   bool
	}
}

var viewvcFlags = flagsT{}

const rootFlag = "root"

func addRootFlag(cmd *cobra.Command) string {
	cmd.PersistentFlags().StringVar(&viewvcFlags.root.name, rootFlag, "", "The name of the configured root to read. Defaults to default_root, or to the only root")
	return rootFlag
}

func addRevFlag(cmd *cobra.Command) string {
	rev := "rev"
	cmd.PersistentFlags().StringVar(&viewvcFlags.root.rev, rev, "", "The revision, tag or branch to read. Defaults to the youngest revision")
	return rev
}

func addJSONFlag(cmd *cobra.Command) string {
	j := "json"
	cmd.PersistentFlags().BoolVar(&viewvcFlags.root.json, j, false, "Output results as JSON")
	return j
}

func addLogLevelFlag(cmd *cobra.Command) string {
	loglevel := "loglevel"
	cmd.PersistentFlags().StringVar(&viewvcFlags.root.logLevel, loglevel, "warn", "The logging level. Levels by increasing order of verbosity: none, error, warn, info, debug")
	return loglevel
}

func addUserFlag(cmd *cobra.Command) string {
	user := "user"
	cmd.PersistentFlags().StringVar(&viewvcFlags.root.username, user, "", "Read as this user, as seen by the configured authorizer. Defaults to an anonymous user")
	return user
}

func addTemplateFlag(cmd *cobra.Command) string {
	tmpl := "format"
	cmd.PersistentFlags().StringVar(&viewvcFlags.root.template, tmpl, "", "Pretty-print results using a Go template")
	return tmpl
}

func addMetricsFlag(cmd *cobra.Command) string {
	c := "metrics"
	cmd.PersistentFlags().BoolVar(&viewvcFlags.root.metrics, c, false, "Toggle metrics collection on repository operations")
	return c
}

func addMetricsURLFlag(cmd *cobra.Command) string {
	c := "metrics-url"
	cmd.PersistentFlags().StringVar(&viewvcFlags.root.metricsURL, c, "", "Fully qualified URL to an influxdb metrics collector, with optional user and password")
	return c
}

func addJaegerAgentFlag(cmd *cobra.Command) string {
	c := "jaeger-agent"
	cmd.PersistentFlags().StringVar(&viewvcFlags.root.jaegerAgent, c, "", "host:port of a jaeger agent receiving traces, when tracing is enabled")
	return c
}

func addCPUProfFlag(cmd *cobra.Command) string {
	c := "cpuprof"
	cmd.PersistentFlags().StringVar(&viewvcFlags.root.cpuProf, c, "", "Write a CPU profile to this file")
	return c
}

func addMemProfFlag(cmd *cobra.Command) string {
	c := "memprof"
	cmd.PersistentFlags().StringVar(&viewvcFlags.root.memProf, c, "", "Write a heap profile to this file when the command is done")
	return c
}

func addFirstFlag(cmd *cobra.Command) string {
	first := "first"
	cmd.Flags().IntVar(&viewvcFlags.log.first, first, 0, "Skip this many revisions")
	return first
}

func addLimitFlag(cmd *cobra.Command) string {
	limit := "limit"
	cmd.Flags().IntVar(&viewvcFlags.log.limit, limit, 0, "Show at most this many revisions. 0 shows all revisions")
	return limit
}

func addSortFlag(cmd *cobra.Command) string {
	sortBy := "sort"
	cmd.Flags().StringVar(&viewvcFlags.log.sortBy, sortBy, "default", "Sort revisions by: default, date, rev")
	return sortBy
}

func addNoLogsFlag(cmd *cobra.Command) string {
	noLogs := "no-logs"
	cmd.Flags().BoolVar(&viewvcFlags.ls.noLogs, noLogs, false, "Only list names, without looking the last change of each entry up")
	return noLogs
}

func addRev1Flag(cmd *cobra.Command) string {
	r1 := "r1"
	cmd.Flags().StringVar(&viewvcFlags.diff.rev1, r1, "", "The revision of the left side")
	return r1
}

func addRev2Flag(cmd *cobra.Command) string {
	r2 := "r2"
	cmd.Flags().StringVar(&viewvcFlags.diff.rev2, r2, "", "The revision of the right side. Defaults to the youngest revision")
	return r2
}

func addPath2Flag(cmd *cobra.Command) string {
	path2 := "path2"
	cmd.Flags().StringVar(&viewvcFlags.diff.path2, path2, "", "The path of the right side, when it differs from the left side")
	return path2
}

func addDiffTypeFlag(cmd *cobra.Command) string {
	diffType := "type"
	cmd.Flags().StringVar(&viewvcFlags.diff.diffType, diffType, "unified", "The diff format: unified, context, side-by-side")
	return diffType
}

const contextFlag = "context"

func addContextFlag(cmd *cobra.Command) string {
	cmd.Flags().IntVar(&viewvcFlags.diff.context, contextFlag, 0, "Lines of context. A negative value shows whole files. Defaults to diff_context")
	return contextFlag
}

func addIgnoreWhiteFlag(cmd *cobra.Command) string {
	ignoreWhite := "ignore-white"
	cmd.Flags().BoolVar(&viewvcFlags.diff.ignoreWhite, ignoreWhite, false, "Ignore changes in white space")
	return ignoreWhite
}

func addFunctionNamesFlag(cmd *cobra.Command) string {
	functionNames := "function-names"
	cmd.Flags().BoolVar(&viewvcFlags.diff.functionNames, functionNames, false, "Show the enclosing function of each hunk")
	return functionNames
}

func addColorFlag(cmd *cobra.Command) string {
	c := "color"
	cmd.Flags().BoolVar(&viewvcFlags.diff.color, c, false, "Colorize the diff")
	return c
}

func addDetectEncodingFlag(cmd *cobra.Command) string {
	detect := "detect-encoding"
	cmd.Flags().BoolVar(&viewvcFlags.cat.detectEncoding, detect, false, "Guess the encoding of the file and transcode it to UTF-8. Defaults to detect_encoding")
	return detect
}

func addNoTextFlag(cmd *cobra.Command) string {
	noText := "no-text"
	cmd.Flags().BoolVar(&viewvcFlags.annotate.noText, noText, false, "Only show the revision of each line")
	return noText
}

func addChangesFlag(cmd *cobra.Command) string {
	changes := "changes"
	cmd.Flags().BoolVar(&viewvcFlags.revinfo.changes, changes, false, "List the paths changed by the revision")
	return changes
}

func addOutputFlag(cmd *cobra.Command) string {
	output := "output"
	cmd.Flags().StringVarP(&viewvcFlags.tarball.output, output, "o", "", `The file to write the archive to, or "-" for the standard output`)
	return output
}

func addGzipFlag(cmd *cobra.Command) string {
	gz := "gzip"
	cmd.Flags().BoolVar(&viewvcFlags.tarball.gzip, gz, false, "Compress the archive")
	return gz
}

func requireFlags(cmd *cobra.Command, flags ...string) {
	for _, flag := range flags {
		err := cmd.MarkFlagRequired(flag)
		if err != nil {
			err = cmd.MarkPersistentFlagRequired(flag)
		}
		if err != nil {
			wrapFatalln(fmt.Sprintf("error attempting to mark the required flag %q", flag), err)
			return
		}
	}
}

func parseLogSort(s string) (vclib.LogSort, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return vclib.SortByDefault, nil
	case "date":
		return vclib.SortByDate, nil
	case "rev":
		return vclib.SortByRev, nil
	default:
		return 0, fmt.Errorf("invalid sort order %q", s)
	}
}

func parseDiffType(s string) (vclib.DiffType, error) {
	switch strings.ToLower(s) {
	case "", "u", "unified":
		return vclib.Unified, nil
	case "c", "context":
		return vclib.Context, nil
	case "s", "side-by-side":
		return vclib.SideBySide, nil
	default:
		return 0, fmt.Errorf("invalid diff type %q", s)
	}
}
