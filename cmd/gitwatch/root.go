package main

import (
	"github.com/spf13/cobra"
)

const longDescription = `gitwatch watches a git working copy and commits every change once the
tree has been quiet for the debounce interval. Bursts of edits become a
single numbered checkpoint commit; failed commits are retried with
exponential backoff and nothing is ever committed when the tree is clean.

Settings are read, in increasing precedence, from built-in defaults,
<repo>/.gitwatch.toml (or --config), GITWATCH_* environment variables and
command-line flags.`

const examples = `  gitwatch                              # Watch the current directory
  gitwatch -r ~/notes -d 10s            # Commit ~/notes after 10s of quiet
  gitwatch -e '*.swp' -e node_modules   # Ignore editor swap files and deps
  gitwatch --continue -p "[pair]"       # Resume numbering with a custom prefix`

// newRootCommand wires the app's configuration to a cobra command. Flags are
// bound directly to app.Config and layered over file and environment
// settings before the app runs.
func newRootCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gitwatch [flags]",
		Short:         "Commit settled changes in a git working copy automatically",
		Long:          longDescription,
		Example:       examples,
		Version:       app.VersionString(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.Config.Resolve(cmd.Flags()); err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("gitwatch {{.Version}}\n")
	cmd.SetOut(app.Stdout)
	cmd.SetErr(app.Stderr)
	app.Config.SetupFlags(cmd.Flags())
	cmd.Flags().SortFlags = false

	return cmd
}
