// Copyright © 2018 One Concern

package cmd

import (
	"github.com/spf13/cobra"
)

const rootsTemplateString = `{{ range . }}{{ .Name }}	{{ .Type }}	{{ .Path }}
{{ end }}`

var rootsCmd = &cobra.Command{
	Use:   "roots",
	Short: "List the configured roots",
	Long: `List the configured roots, including the repositories found in root parents.

The access control configured for each root is not checked.`,
	Example: `% viewvc roots
proj	cvs	/srv/cvs/proj
tools	git	/srv/git/tools.git`,
	Run: func(cmd *cobra.Command, args []string) {
		reg, err := newRegistry()
		if err != nil {
			wrapFatalln("load roots", err)
			return
		}
		if err = render(cmd.OutOrStdout(), outputTemplate("roots", rootsTemplateString), reg.Roots()); err != nil {
			wrapFatalln("list roots", err)
			return
		}
	},
}

func init() {
	rootCmd.AddCommand(rootsCmd)
}
