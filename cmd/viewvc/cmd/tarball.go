// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/viewvc/viewvc-sub000/pkg/dlogger"
	"github.com/viewvc/viewvc-sub000/pkg/tarball"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

var tarballCmd = &cobra.Command{
	Use:   "tarball [path]",
	Short: "Archive a directory",
	Long: `Write a tar archive of a directory at --rev.

Every entry is put under a single directory named after the archived directory,
or after the root.`,
	Example: `% viewvc tarball --root proj src --rev RELEASE_1 -o src.tar.gz --gzip`,
	Args:    cobra.MaximumNArgs(1),
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

		var w io.Writer = cmd.OutOrStdout()
		if viewvcFlags.tarball.output != "-" {
			f, err := os.Create(viewvcFlags.tarball.output)
			if err != nil {
				wrapFatalln("create archive", err)
				return
			}
			defer func() { _ = f.Close() }()
			w = f
		}

		logger, err := dlogger.GetLogger(viewvcFlags.root.logLevel, dlogger.Console())
		if err != nil {
			wrapFatalln("create logger", err)
			return
		}
		err = tarball.Generate(ctx, w, repo, parts, viewvcFlags.root.rev, tarball.Options{
			Gzip:        viewvcFlags.tarball.gzip,
			HideCVSRoot: cfg.Options.HideCVSRoot,
			Logger:      logger,
		})
		if err != nil {
			wrapFatalln("generate archive", err)
			return
		}
	},
}

func init() {
	requireFlags(tarballCmd,
		addOutputFlag(tarballCmd),
	)

	addGzipFlag(tarballCmd)
	rootCmd.AddCommand(tarballCmd)
}
