package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/PhucNguyen204/rubricfeed/pkg/rubric"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Now     string // clock override for age-based fields
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for rubricctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rubricctl",
		Short: "Validate and exercise rubric configurations",
		Long:  "Offline tooling for feed rubric configs: validate a rules directory, route entries, run decision trees.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := opts.clock(); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Now, "now", "", "evaluate ages relative to this time (RFC 3339)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRouteCommand(opts))
	cmd.AddCommand(NewDecideCommand(opts))

	return cmd
}

func (o *RootOptions) clock() (func() time.Time, error) {
	if o.Now == "" {
		return time.Now, nil
	}
	t, err := cast.ToTimeE(o.Now)
	if err != nil {
		return nil, fmt.Errorf("invalid --now %q: %w", o.Now, err)
	}
	return func() time.Time { return t }, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// buildRegistry loads every config file under dir and compiles it.
// Evaluation errors are reported through the formatter's verbose log.
func (o *RootOptions) buildRegistry(dir string, f *OutputFormatter, extra ...rubric.Option) (*rubric.Registry, int, error) {
	cfg, files, err := loadDir(dir)
	if err != nil {
		return nil, files, WrapExitError(ExitCommandError, "load "+dir, err)
	}
	f.VerboseLog("Loaded %d config file(s) from %s", files, dir)
	now, err := o.clock()
	if err != nil {
		return nil, files, WrapExitError(ExitCommandError, "clock", err)
	}
	opts := append([]rubric.Option{rubric.WithLogger(verboseLogger{f}), rubric.WithClock(now)}, extra...)
	reg, err := rubric.Build(cfg, opts...)
	if err != nil {
		return nil, files, WrapExitError(ExitFailure, "invalid config", err)
	}
	return reg, files, nil
}

type verboseLogger struct{ f *OutputFormatter }

func (l verboseLogger) Printf(format string, v ...any) { l.f.VerboseLog(format, v...) }
