package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sloth/internal/cleaner"
	"sloth/internal/display"
)

var cleanFlags struct {
	dir    string
	backup bool
	tag    string
}

var cleanCmd = &cobra.Command{
	Use:   "clean-logs",
	Short: "Remove tagged debug lines from project files",
	Long: `Removes every line containing the tag (default [SLOTHLOG]) from the text
files of a project. The coding prompts ask the model to tag temporary debug
output this way.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir := cleanFlags.dir
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			dir = wd
		}
		root, err := resolveRoot(dir)
		if err != nil {
			return err
		}

		out := display.NewPrinter(cmd.OutOrStdout())
		out.Info("Cleaning %s lines in %s", cleanFlags.tag, root)
		rep, err := cleaner.Clean(root, cleaner.Options{Tag: cleanFlags.tag, Backup: cleanFlags.backup})
		for _, f := range rep.Files {
			out.Success("updated %s (-%d lines)", f.Path, f.Removed)
		}
		if err != nil {
			return err
		}
		out.Info("%s", display.StatusLine(true, "CLEANED",
			fmt.Sprintf("%d file(s) scanned, %d changed, %d line(s) removed", rep.Processed, rep.Changed, rep.Removed)))
		return nil
	},
}

func init() {
	cleanCmd.Flags().StringVar(&cleanFlags.dir, "dir", "", "project directory (default: current directory)")
	cleanCmd.Flags().BoolVar(&cleanFlags.backup, "backup", false, "keep a .bak copy of every changed file")
	cleanCmd.Flags().StringVar(&cleanFlags.tag, "tag", cleaner.DefaultTag, "marker of the lines to remove")
}
