// Copyright © 2018 One Concern

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

const annotateTemplateString = `{{ range .Lines }}{{ printf "%5d" .LineNumber }} {{ printf "%-10.10s" .Rev }} {{ printf "%-10.10s" .Author }}{{ if .Text }} {{ .Text }}{{ end }}
{{ end }}`

type annotateResult struct {
	Rev   string              `json:"rev"`
	Lines []*vclib.Annotation `json:"lines"`
}

var annotateCmd = &cobra.Command{
	Use:     "annotate <path>",
	Aliases: []string{"blame"},
	Short:   "Show which revision last changed each line of a file",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		repo, err := openRepo(ctx)
		if err != nil {
			wrapFatalln("open root", err)
			return
		}

		var result annotateResult
		result.Rev, err = repo.Annotate(ctx, vclib.PathParts(args[0]), viewvcFlags.root.rev, !viewvcFlags.annotate.noText,
			func(a *vclib.Annotation) error {
				result.Lines = append(result.Lines, a)
				return nil
			})
		if err != nil {
			wrapFatalln("annotate", err)
			return
		}

		if err = render(cmd.OutOrStdout(), outputTemplate("annotate", annotateTemplateString), result); err != nil {
			wrapFatalln("annotate", err)
			return
		}
	},
}

func init() {
	addNoTextFlag(annotateCmd)
	rootCmd.AddCommand(annotateCmd)
}
