package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/PhucNguyen204/rubricfeed/internal/rules"
	"github.com/PhucNguyen204/rubricfeed/pkg/rubric"
)

// ValidationResult summarizes a compiled rules directory.
type ValidationResult struct {
	Files        int            `json:"files"`
	Filters      int            `json:"filters"`
	Rubrics      []string       `json:"rubrics"`
	Decisions    []string       `json:"decisions"`
	Bundles      int            `json:"bundles"`
	Rules        int            `json:"rules"`
	RulesByType  map[string]int `json:"rules_by_type"`
	UniqueFields int            `json:"unique_fields"`
}

func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules-dir>",
		Short: "Compile every filter, rubric and decision tree in a directory",
		Long: `Load all .yml, .yaml and .json files under the directory, merge them
and compile the result. Nothing is evaluated; the command fails on the
first compile error.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	reg, files, err := opts.buildRegistry(dir, f)
	if err != nil {
		return f.Fail(err, nil)
	}
	st := reg.Stats()
	res := ValidationResult{
		Files: files, Filters: st.Filters, Rubrics: reg.Names(), Decisions: reg.Decisions(),
		Bundles: st.Bundles, Rules: st.Rules, RulesByType: st.RulesByType, UniqueFields: st.UniqueFields,
	}
	return f.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %d file(s): %d filters, %d rubrics, %d decision trees\n", files, st.Filters, len(res.Rubrics), len(res.Decisions))
		fmt.Fprintf(w, "  %d bundles, %d rules over %d fields\n", st.Bundles, st.Rules, st.UniqueFields)
		types := make([]string, 0, len(st.RulesByType))
		for t := range st.RulesByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-10s %d\n", t, st.RulesByType[t])
		}
	})
}

func loadDir(dir string) (rubric.Config, int, error) {
	return rules.LoadDirRecursive(dir)
}
