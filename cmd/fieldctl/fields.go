package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fieldcore/internal/core"
	"fieldcore/pkg/domain"
)

func (cli *CLI) fieldsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Inspect and edit the field catalog",
	}
	cmd.AddCommand(cli.fieldsListCommand(), cli.fieldsDefineCommand(), cli.fieldsSeedCommand(), cli.fieldsExportCommand())
	return cmd
}

func (cli *CLI) fieldsListCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the valid fields ordered by sort",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				fields, err := svc.ListFields(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return cli.printJSON(fields)
				}
				w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tDISPLAY\tTYPE\tSORT\tFLAGS")
				for _, f := range fields {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", f.ID, f.Name, f.DisplayName, f.DataType, f.Sort, flags(f))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func flags(f domain.FieldDefinition) string {
	out := ""
	for _, flag := range []struct {
		set  bool
		name string
	}{{f.IsRequired, "required"}, {f.IsHidden, "hidden"}, {f.IsSystem, "system"}, {f.IsDisplayField, "display"}} {
		if !flag.set {
			continue
		}
		if out != "" {
			out += ","
		}
		out += flag.name
	}
	if out == "" {
		return "-"
	}
	return out
}

// parseDataType accepts a type name or its numeric code.
func parseDataType(raw string) (domain.DataType, error) {
	if t, ok := domain.ParseDataType(raw); ok && t.Valid() {
		return t, nil
	}
	if n, err := strconv.Atoi(raw); err == nil && domain.DataType(n).Valid() {
		return domain.DataType(n), nil
	}
	return domain.DataTypeUnknown, fmt.Errorf("unknown data type %q", raw)
}

func (cli *CLI) fieldsDefineCommand() *cobra.Command {
	var (
		typeName    string
		display     string
		description string
		def         domain.FieldDefinition
	)
	cmd := &cobra.Command{
		Use:   "define NAME",
		Short: "Define a new field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := parseDataType(typeName)
			if err != nil {
				return err
			}
			def.Name = args[0]
			def.DataType = dt
			def.DisplayName = display
			def.Description = description
			return cli.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				created, err := svc.DefineField(ctx, def)
				if err != nil {
					return err
				}
				return cli.printJSON(created)
			})
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "short_text", "Data type name or code")
	cmd.Flags().StringVar(&display, "display-name", "", "Display name (defaults to NAME)")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().BoolVar(&def.IsRequired, "required", false, "Mark the field required")
	cmd.Flags().BoolVar(&def.IsHidden, "hidden", false, "Hide the field")
	cmd.Flags().BoolVar(&def.IsDisplayField, "display-field", false, "Use the field as the record title")
	cmd.Flags().IntVar(&def.Sort, "sort", 0, "Sort position (defaults to last)")
	return cmd
}

func (cli *CLI) fieldsSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Define the fields listed in a YAML or JSON seed file",
		Long: `Reads a list of field seeds and defines every field whose name is not
taken yet. A seed without a type gets one inferred from its name.

  - name: ContactEmail
  - name: Budget
    type: Number
    default: 0
    group: Finance`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			return cli.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				created, err := svc.SeedFields(ctx, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cli.errOut, "defined %d field(s)\n", len(created))
				return cli.printJSON(created)
			})
		},
	}
}

func (cli *CLI) fieldsExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export the field catalog as CSV to the configured blob sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sink, err := cli.openSink(cmd.Context())
			if err != nil {
				return err
			}
			return cli.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				info, err := svc.ExportFields(ctx, sink)
				if err != nil {
					return err
				}
				return cli.printJSON(info)
			})
		},
	}
}
