package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
	"github.com/PhucNguyen204/rubricfeed/pkg/rubric"
)

type routeOptions struct {
	input   string
	workers int
}

// RouteResult is the membership of one input entry.
type RouteResult struct {
	Index int `json:"index"`
	rubric.Membership
}

func NewRouteCommand(rootOpts *RootOptions) *cobra.Command {
	ro := &routeOptions{}
	cmd := &cobra.Command{
		Use:   "route <rules-dir>",
		Short: "Route entries through every rubric",
		Long: `Read a JSON entry or array of entries (from --input or stdin) and print
which rubrics include or exclude each one. Per-rubric evaluation errors
are reported with the entry and do not fail the command.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoute(rootOpts, ro, args[0], cmd)
		},
	}
	cmd.Flags().StringVarP(&ro.input, "input", "i", "-", "entries file, - for stdin")
	cmd.Flags().IntVar(&ro.workers, "workers", 4, "parallel routing workers")
	return cmd
}

func runRoute(opts *RootOptions, ro *routeOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	entries, err := readEntries(cmd, ro.input)
	if err != nil {
		return f.Fail(err, nil)
	}
	reg, _, err := opts.buildRegistry(dir, f, rubric.WithWorkers(ro.workers))
	if err != nil {
		return f.Fail(err, nil)
	}
	ms, err := reg.RouteBatch(cmd.Context(), entries)
	if err != nil {
		return f.Fail(WrapExitError(ExitFailure, "route", err), nil)
	}
	out := make([]RouteResult, len(ms))
	for i, m := range ms {
		out[i] = RouteResult{Index: i, Membership: m}
	}
	return f.Success(out, func(w io.Writer) {
		for _, r := range out {
			fmt.Fprintf(w, "#%d include=[%s] exclude=[%s]\n", r.Index, strings.Join(r.Include, ","), strings.Join(r.Exclude, ","))
			for name, msg := range r.Errors {
				fmt.Fprintf(w, "  ! %s: %s\n", name, msg)
			}
		}
	})
}

// readEntries reads a JSON object or array of objects from a file or stdin.
func readEntries(cmd *cobra.Command, path string) ([]ir.Record, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" || path == "" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read entries", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, WrapExitError(ExitCommandError, "decode entries", err)
	}
	switch t := payload.(type) {
	case map[string]any:
		return []ir.Record{t}, nil
	case []any:
		out := make([]ir.Record, 0, len(t))
		for i, it := range t {
			m, ok := it.(map[string]any)
			if !ok {
				return nil, NewExitError(ExitCommandError, fmt.Sprintf("entry %d is not an object", i))
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, NewExitError(ExitCommandError, "entries must be a JSON object or array of objects")
}
