// Copyright © 2018 One Concern

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

const logTemplateString = `{{ range . }}{{ .ID }}	{{ date .Date }}	{{ orDash .Author }}{{ if .Filename }}	{{ .Filename }}{{ end }}{{ if .Dead }}	(dead){{ end }}
{{ .Log }}
{{ end }}`

var logCmd = &cobra.Command{
	Use:   "log <path>",
	Short: "Show the history of a file or directory",
	Long: `Show the revisions of a file or directory, newest first, starting from --rev.

Options of the configuration file decide whether the history of Subversion
paths follows copies, and whether only the latest change is shown.`,
	Example: `% viewvc log --root proj src/main.c --limit 2
1.12	2020-04-02 08:30:00	bob
Fix the build
1.11	2020-03-30 17:12:00	alice
Add options`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		sortBy, err := parseLogSort(viewvcFlags.log.sortBy)
		if err != nil {
			wrapFatalln("log", err)
			return
		}

		repo, err := openRepo(ctx)
		if err != nil {
			wrapFatalln("open root", err)
			return
		}

		opts := vclib.LogOptions{
			SVNCrossCopies:    cfg.Options.SVNCrossCopies,
			SVNShowAllDirLogs: cfg.Options.SVNShowAllDirLogs,
			SVNLatestLog:      cfg.Options.SVNLatestLog,
			GitLatestLog:      cfg.Options.GitLatestLog,
		}
		revs, err := repo.ItemLog(ctx, vclib.PathParts(args[0]), viewvcFlags.root.rev, sortBy,
			viewvcFlags.log.first, viewvcFlags.log.limit, opts)
		if err != nil {
			wrapFatalln("get log", err)
			return
		}

		if err = render(cmd.OutOrStdout(), outputTemplate("log", logTemplateString), revs); err != nil {
			wrapFatalln("get log", err)
			return
		}
	},
}

func init() {
	addFirstFlag(logCmd)
	addLimitFlag(logCmd)
	addSortFlag(logCmd)
	rootCmd.AddCommand(logCmd)
}
