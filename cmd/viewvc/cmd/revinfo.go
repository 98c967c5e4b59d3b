// Copyright © 2018 One Concern

package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

const revinfoTemplateString = `Date:   {{ date .Date }}
Author: {{ orDash .Author }}

{{ .Log }}
{{ range .Changes }}{{ .Action }}	{{ path .Path }}{{ if .BasePath }}	(from {{ path .BasePath }}:{{ .BaseRev }}){{ end }}
{{ end }}`

var revinfoCmd = &cobra.Command{
	Use:   "revinfo <rev>",
	Short: "Describe a revision",
	Long: `Describe a revision: its date, author and log message and, with --changes, the paths it changed.

Paths which cannot be read are left out. Revisions for which no changed path
can be read have no author, date or log message.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		repo, err := openRepo(ctx)
		if err != nil {
			wrapFatalln("open root", err)
			return
		}

		info, err := repo.RevInfo(ctx, args[0], viewvcFlags.revinfo.changes)
		if err != nil {
			wrapFatalln("get revision", err)
			return
		}

		if err = render(cmd.OutOrStdout(), outputTemplate("revinfo", revinfoTemplateString), info); err != nil {
			wrapFatalln("get revision", err)
			return
		}
	},
}

func init() {
	addChangesFlag(revinfoCmd)
	rootCmd.AddCommand(revinfoCmd)
}
