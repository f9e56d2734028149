package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type decideOptions struct {
	input string
}

// DecisionResult is the outcome of a decision tree for one entry.
type DecisionResult struct {
	Index  int    `json:"index"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewDecideCommand(rootOpts *RootOptions) *cobra.Command {
	dopts := &decideOptions{}
	cmd := &cobra.Command{
		Use:           "decide <rules-dir> <tree>",
		Short:         "Run a named decision tree over entries",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecide(rootOpts, dopts, args[0], args[1], cmd)
		},
	}
	cmd.Flags().StringVarP(&dopts.input, "input", "i", "-", "entries file, - for stdin")
	return cmd
}

func runDecide(opts *RootOptions, dopts *decideOptions, dir, tree string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	entries, err := readEntries(cmd, dopts.input)
	if err != nil {
		return f.Fail(err, nil)
	}
	reg, _, err := opts.buildRegistry(dir, f)
	if err != nil {
		return f.Fail(err, nil)
	}
	found := false
	for _, n := range reg.Decisions() {
		found = found || n == tree
	}
	if !found {
		return f.Fail(NewExitError(ExitCommandError, fmt.Sprintf("unknown decision tree %q", tree)), reg.Decisions())
	}

	out := make([]DecisionResult, len(entries))
	failed := 0
	for i, rec := range entries {
		out[i].Index = i
		res, err := reg.Decide(tree, rec)
		if err != nil {
			out[i].Error = err.Error()
			failed++
			continue
		}
		out[i].Result = res
	}
	if err := f.Success(out, func(w io.Writer) {
		for _, r := range out {
			if r.Error != "" {
				fmt.Fprintf(w, "#%d error: %s\n", r.Index, r.Error)
				continue
			}
			fmt.Fprintf(w, "#%d %v\n", r.Index, r.Result)
		}
	}); err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d entries failed", failed, len(entries)))
	}
	return nil
}
