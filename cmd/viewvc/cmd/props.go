// Copyright © 2018 One Concern

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

// text/template sorts map keys
const propsTemplateString = `{{ range $name, $value := . }}{{ $name }}: {{ $value }}
{{ end }}`

var propsCmd = &cobra.Command{
	Use:   "props <path>",
	Short: "Show the versioned properties of a path",
	Args:  cobra.MaximumNArgs(1),
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

		props, err := repo.ItemProps(ctx, parts, viewvcFlags.root.rev)
		if err != nil {
			wrapFatalln("get properties", err)
			return
		}

		if err = render(cmd.OutOrStdout(), outputTemplate("props", propsTemplateString), props); err != nil {
			wrapFatalln("get properties", err)
			return
		}
	},
}

func init() {
	rootCmd.AddCommand(propsCmd)
}
