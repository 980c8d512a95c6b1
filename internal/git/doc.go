// Package git is the version-control gateway of gitwatch.
//
// gitwatch decides when to commit; git decides how. This package is the
// only place that knows git exists. It exposes the three operations the
// commit coordinator needs, each a single invocation of the git executable:
//
//   - IsDirty: git status --porcelain is non-empty
//   - StageAll: git add --all
//   - Commit: git commit -m <message>, "nothing to commit" is a no-op
//
// plus IsRepository for startup probing and HighestSequence so a restarted
// daemon keeps numbering its commits where the previous run stopped.
//
// Commands run through the CommandExecutor interface, which tests replace
// with a recording mock. Every failure, including a context deadline, is
// returned as an *errors.GitError carrying the command's output.
package git
