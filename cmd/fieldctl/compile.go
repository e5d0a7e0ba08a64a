package main

import (
	"context"

	"github.com/spf13/cobra"

	"fieldcore/internal/condition"
	"fieldcore/internal/core"
)

type compileOutput struct {
	Mode   string         `json:"mode"`
	SQL    string         `json:"sql"`
	Params map[string]any `json:"params"`
}

func (cli *CLI) compileCommand() *cobra.Command {
	var (
		mode string
		flat bool
	)
	cmd := &cobra.Command{
		Use:   "compile CONDITION_JSON",
		Short: "Compile a condition into a parameterized SQL fragment",
		Long: `Compiles a condition against the field catalog of the scope. The eav mode
targets the typed value table; the direct mode targets a table whose columns
are named after the fields and accepts fewer operators.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := condition.ParseMode(mode)
			if err != nil {
				return err
			}
			cond, err := parseCondition(args[0], flat)
			if err != nil {
				return err
			}
			return cli.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				sql, params, err := svc.Compile(ctx, cond, m)
				if err != nil {
					return err
				}
				return cli.printJSON(compileOutput{Mode: m.String(), SQL: sql, Params: params.Map()})
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "eav", "Compile target (eav|direct)")
	cmd.Flags().BoolVar(&flat, "flat", false, "Parse the legacy flat condition list")
	return cmd
}
