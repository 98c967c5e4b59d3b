// Copyright © 2018 One Concern

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

const lsTemplateString = `{{ range . }}{{ if eq .Kind.String "dir" }}{{ .Name }}/{{ else }}{{ .Name }}{{ end }}	{{ orDash .Rev }}	{{ date .Date }}	{{ orDash .Author }}	{{ if eq .Kind.String "file" }}{{ size .Size }}{{ else }}-{{ end }}{{ range .Errors }}	! {{ . }}{{ end }}
{{ end }}`

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Long: `List the readable entries of a directory, along with the revision which last changed each of them.`,
	Example: `% viewvc ls --root proj src
lib/	1.4	2020-03-01 10:00:00	alice	-
main.c	1.12	2020-04-02 08:30:00	bob	4.2kB`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		var parts []string
		if len(args) > 0 {
			parts = vclib.PathParts(args[0])
		}

		repo, err := openRepo(ctx)
		if err != nil {
			wrapFatalln("open root", err)
			return
		}

		entries, err := repo.ListDir(ctx, parts, viewvcFlags.root.rev, vclib.ListOptions{})
		if err != nil {
			wrapFatalln("list directory", err)
			return
		}
		if !viewvcFlags.ls.noLogs {
			if err = repo.DirLogs(ctx, parts, viewvcFlags.root.rev, entries, vclib.ListOptions{}); err != nil {
				wrapFatalln("get directory logs", err)
				return
			}
		}

		if err = render(cmd.OutOrStdout(), outputTemplate("ls", lsTemplateString), entries); err != nil {
			wrapFatalln("list directory", err)
			return
		}
	},
}

func init() {
	addNoLogsFlag(lsCmd)
	rootCmd.AddCommand(lsCmd)
}
