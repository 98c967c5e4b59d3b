// Copyright © 2018 One Concern

package cmd

import (
	"bufio"
	"context"
	"io"

	"github.com/spf13/cobra"
	"github.com/viewvc/viewvc-sub000/pkg/textenc"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print the contents of a file",
	Long: `Print the contents of a file at --rev.

With --detect-encoding, the encoding of the file is guessed from its first
bytes, falling back to default_encoding, and the contents are transcoded to UTF-8.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		repo, err := openRepo(ctx)
		if err != nil {
			wrapFatalln("open root", err)
			return
		}

		rc, _, err := repo.OpenFile(ctx, vclib.PathParts(args[0]), viewvcFlags.root.rev,
			vclib.OpenOptions{OldKeywords: cfg.Options.CVSOldKeywords})
		if err != nil {
			wrapFatalln("open file", err)
			return
		}
		defer func() { _ = rc.Close() }()

		var content io.Reader = rc
		if viewvcFlags.cat.detectEncoding || cfg.Options.DetectEncoding {
			br := bufio.NewReaderSize(rc, textenc.SampleSize)
			// a short file yields a short sample, along with an error
			sample, _ := br.Peek(textenc.SampleSize)
			if content, err = textenc.NewReader(br, textenc.DetectOr(sample, cfg.Options.DefaultEncoding)); err != nil {
				wrapFatalln("decode file", err)
				return
			}
		}

		if _, err = io.Copy(cmd.OutOrStdout(), content); err != nil {
			wrapFatalln("read file", err)
			return
		}
	},
}

func init() {
	addDetectEncodingFlag(catCmd)
	rootCmd.AddCommand(catCmd)
}
