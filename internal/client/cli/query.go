package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gohs/pkg/hs"
	"github.com/dmitrijs2005/gohs/pkg/query"
	"github.com/spf13/cobra"
)

// QueryOptions holds the flags shared by the indexed commands.
type QueryOptions struct {
	*RootOptions
	Table   string
	Index   string
	Op      string
	Columns []string
	Keys    []string
	Limit   int
	Offset  int
	Filters []string
}

func (o *QueryOptions) bindTarget(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Table, "table", "t", "", "table name")
	_ = cmd.MarkFlagRequired("table")
}

func (o *QueryOptions) bindCondition(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Index, "index", "i", "", "index name (default PRIMARY)")
	cmd.Flags().StringVar(&o.Op, "op", "=", "comparison operator (= >= <= > <)")
	cmd.Flags().IntVar(&o.Limit, "limit", 1, "maximum number of rows")
	cmd.Flags().IntVar(&o.Offset, "offset", 0, "rows to skip")
	cmd.Flags().StringArrayVar(&o.Filters, "filter", nil, "filter 'F|W op column-position value' against the filter columns")
}

func (o *QueryOptions) bindColumns(cmd *cobra.Command, required bool) {
	cmd.Flags().StringSliceVar(&o.Columns, "columns", nil, "comma separated column list")
	if required {
		_ = cmd.MarkFlagRequired("columns")
	}
}

func (o *QueryOptions) execOptions() ([]hs.ExecOption, error) {
	opts := []hs.ExecOption{hs.WithLimit(o.Limit), hs.WithOffset(o.Offset)}
	for _, raw := range o.Filters {
		f, err := parseFilter(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, hs.WithFilter(f))
	}
	return opts, nil
}

// parseFilter reads "W > 0 1700000000".
func parseFilter(raw string) (hs.Filter, error) {
	parts := strings.Fields(raw)
	if len(parts) != 4 {
		return hs.Filter{}, fmt.Errorf("filter %q: want 'F|W op column value'", raw)
	}
	var f hs.Filter
	switch parts[0] {
	case "F", "f":
		f.Type = hs.FilterSkip
	case "W", "w":
		f.Type = hs.FilterWhile
	default:
		return hs.Filter{}, fmt.Errorf("filter %q: type must be F or W", raw)
	}
	f.Op = hs.NormalizeOperator(parts[1])
	col, err := strconv.Atoi(parts[2])
	if err != nil {
		return hs.Filter{}, fmt.Errorf("filter %q: column position: %w", raw, err)
	}
	f.Column = col
	f.Value = parts[3]
	return f, nil
}

func (o *QueryOptions) builder(exec query.Executor) query.Builder {
	b := query.New(exec).From(o.Table).Select(o.Columns...)
	if o.Keys != nil {
		b = b.Where(o.Index, o.Op, o.Keys...)
	}
	return b
}

// withInstance runs fn against the selected group's client.
func withInstance(ctx context.Context, cmd *cobra.Command, opts *RootOptions, fn func(exec query.Executor) error) error {
	inst, err := opts.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer inst.Close()
	return fn(inst)
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find KEY...",
		Short: "Read rows through an index",
		Example: `  hsctl find -t users --columns id,name 42
  hsctl find -t users -i created --op '>=' --limit 10 --columns id 2024-01-01`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Keys = args
			execOpts, err := opts.execOptions()
			if err != nil {
				return err
			}
			return withInstance(cmd.Context(), cmd, rootOpts, func(exec query.Executor) error {
				res, err := opts.builder(exec).Get(cmd.Context(), execOpts...)
				if err != nil {
					return err
				}
				return newPrinter(rootOpts, cmd.OutOrStdout()).result(res)
			})
		},
	}
	opts.bindTarget(cmd)
	opts.bindCondition(cmd)
	opts.bindColumns(cmd, true)
	return cmd
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "insert VALUE...",
		Short:   "Insert one row",
		Example: `  hsctl insert -t users --columns id,name 42 alice`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd.Context(), cmd, rootOpts, func(exec query.Executor) error {
				ok, err := opts.builder(exec).Insert(cmd.Context(), args)
				if err != nil {
					return err
				}
				return newPrinter(rootOpts, cmd.OutOrStdout()).value("inserted", ok)
			})
		},
	}
	opts.bindTarget(cmd)
	opts.bindColumns(cmd, true)
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "update VALUE...",
		Short:   "Update the selected columns of matching rows",
		Example: `  hsctl update -t users --columns name --key 42 bob`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			execOpts, err := opts.execOptions()
			if err != nil {
				return err
			}
			return withInstance(cmd.Context(), cmd, rootOpts, func(exec query.Executor) error {
				n, err := opts.builder(exec).Update(cmd.Context(), args, execOpts...)
				if err != nil {
					return err
				}
				return newPrinter(rootOpts, cmd.OutOrStdout()).value("updated", n)
			})
		},
	}
	opts.bindTarget(cmd)
	opts.bindCondition(cmd)
	opts.bindColumns(cmd, true)
	cmd.Flags().StringSliceVar(&opts.Keys, "key", nil, "index key values")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "delete KEY...",
		Short:   "Delete matching rows",
		Example: `  hsctl delete -t users 42`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Keys = args
			execOpts, err := opts.execOptions()
			if err != nil {
				return err
			}
			return withInstance(cmd.Context(), cmd, rootOpts, func(exec query.Executor) error {
				n, err := opts.builder(exec).Delete(cmd.Context(), execOpts...)
				if err != nil {
					return err
				}
				return newPrinter(rootOpts, cmd.OutOrStdout()).value("deleted", n)
			})
		},
	}
	opts.bindTarget(cmd)
	opts.bindCondition(cmd)
	return cmd
}
