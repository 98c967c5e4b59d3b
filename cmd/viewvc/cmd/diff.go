// Copyright © 2018 One Concern

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

var (
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
	hunkColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.Bold)
)

// colorize highlights the lines of a unified or context diff
func colorize(w io.Writer, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		var err error
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"), strings.HasPrefix(line, "***"):
			_, err = headerColor.Fprintln(w, line)
		case strings.HasPrefix(line, "@@"):
			_, err = hunkColor.Fprintln(w, line)
		case strings.HasPrefix(line, "+"), strings.HasPrefix(line, "> "):
			_, err = addedColor.Fprintln(w, line)
		case strings.HasPrefix(line, "-"), strings.HasPrefix(line, "< "):
			_, err = removedColor.Fprintln(w, line)
		default:
			_, err = fmt.Fprintln(w, line)
		}
		if err != nil {
			return err
		}
	}
	return scanner.Err()
}

var diffCmd = &cobra.Command{
	Use:   "diff <path>",
	Short: "Compare two revisions of a file",
	Long: `Compare a file at --r1 with the same file, or the file at --path2, at --r2.

The configured diff utility is used, if any. Otherwise the diff is computed in process.`,
	Example: `% viewvc diff --root proj src/main.c --r1 1.11 --r2 1.12 --color`,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		diffType, err := parseDiffType(viewvcFlags.diff.diffType)
		if err != nil {
			wrapFatalln("diff", err)
			return
		}

		repo, err := openRepo(ctx)
		if err != nil {
			wrapFatalln("open root", err)
			return
		}

		parts1 := vclib.PathParts(args[0])
		parts2 := parts1
		if viewvcFlags.diff.path2 != "" {
			parts2 = vclib.PathParts(viewvcFlags.diff.path2)
		}

		lines := cfg.Options.DiffContext
		if cmd.Flags().Changed(contextFlag) {
			lines = viewvcFlags.diff.context
		}
		opts := vclib.DiffOptions{
			Context:       &lines,
			FunctionNames: viewvcFlags.diff.functionNames,
			IgnoreWhite:   viewvcFlags.diff.ignoreWhite,
			OldKeywords:   cfg.Options.CVSOldKeywords,
		}

		rc, err := repo.RawDiff(ctx, parts1, viewvcFlags.diff.rev1, parts2, viewvcFlags.diff.rev2, diffType, opts)
		if err != nil {
			wrapFatalln("diff", err)
			return
		}
		defer func() { _ = rc.Close() }()

		if viewvcFlags.diff.color {
			color.NoColor = false
			err = colorize(cmd.OutOrStdout(), rc)
		} else {
			_, err = io.Copy(cmd.OutOrStdout(), rc)
		}
		if err != nil {
			wrapFatalln("diff", err)
			return
		}
	},
}

func init() {
	requireFlags(diffCmd,
		addRev1Flag(diffCmd),
	)

	addRev2Flag(diffCmd)
	addPath2Flag(diffCmd)
	addDiffTypeFlag(diffCmd)
	addContextFlag(diffCmd)
	addIgnoreWhiteFlag(diffCmd)
	addFunctionNamesFlag(diffCmd)
	addColorFlag(diffCmd)
	rootCmd.AddCommand(diffCmd)
}
