package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fieldcore/internal/core"
	"fieldcore/internal/records"
	"fieldcore/pkg/domain"
)

func (cli *CLI) recordsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Create, read, update, delete and query records",
	}
	cmd.AddCommand(
		cli.recordsGetCommand(),
		cli.recordsCreateCommand(),
		cli.recordsSetCommand(),
		cli.recordsDeleteCommand(),
		cli.recordsQueryCommand(),
		cli.recordsExportCommand(),
	)
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid record id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseValues(raw string) (map[string]any, error) {
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("parse field values: %w", err)
	}
	return values, nil
}

func (cli *CLI) recordsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID...",
		Short: "Print records with their field values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return cli.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				recs, err := svc.AssembleMany(ctx, ids)
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					return domain.ErrNotFound{Entity: domain.EntityRecord, ID: args[0]}
				}
				return cli.printJSON(recs)
			})
		},
	}
}

func (cli *CLI) recordsCreateCommand() *cobra.Command {
	var (
		moduleID int
		payload  string
	)
	cmd := &cobra.Command{
		Use:   "create VALUES_JSON",
		Short: `Create a record from a {"Field": value} object`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(args[0])
			if err != nil {
				return err
			}
			rec := records.FromMap(0, values)
			rec.ModuleID = moduleID
			rec.Payload = payload
			return cli.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				created, err := svc.CreateRecord(ctx, rec)
				if err != nil {
					return err
				}
				return cli.printJSON(created)
			})
		},
	}
	cmd.Flags().IntVar(&moduleID, "module", 0, "Module id of the record")
	cmd.Flags().StringVar(&payload, "payload", "", "Opaque payload stored on the record header")
	return cmd
}

func (cli *CLI) recordsSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set ID VALUES_JSON",
		Short: "Upsert field values of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			values, err := parseValues(args[1])
			if err != nil {
				return err
			}
			return cli.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				updated, err := svc.UpdateFields(ctx, ids[0], values)
				if err != nil {
					return err
				}
				return cli.printJSON(updated)
			})
		},
	}
}

func (cli *CLI) recordsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Soft delete records and their values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return cli.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				if len(ids) == 1 {
					return svc.DeleteRecord(ctx, ids[0])
				}
				return svc.DeleteRecords(ctx, ids)
			})
		},
	}
}

func (cli *CLI) recordsQueryCommand() *cobra.Command {
	var (
		flat    bool
		idsOnly bool
		page    domain.Page
	)
	cmd := &cobra.Command{
		Use:   "query [CONDITION_JSON]",
		Short: "Query records matching a condition, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cond, err := parseCondition(firstArg(args), flat)
			if err != nil {
				return err
			}
			return cli.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				if idsOnly {
					ids, err := svc.QueryIDs(ctx, cond, page)
					if err != nil {
						return err
					}
					return cli.printJSON(ids)
				}
				recs, err := svc.Query(ctx, cond, page)
				if err != nil {
					return err
				}
				return cli.printJSON(recs)
			})
		},
	}
	cmd.Flags().BoolVar(&flat, "flat", false, "Parse the legacy flat condition list")
	cmd.Flags().BoolVar(&idsOnly, "ids", false, "Print matching ids only")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "Number of matches to skip")
	cmd.Flags().IntVar(&page.Limit, "limit", domain.DefaultPageLimit, "Maximum number of matches")
	return cmd
}

func (cli *CLI) recordsExportCommand() *cobra.Command {
	var flat bool
	cmd := &cobra.Command{
		Use:   "export [CONDITION_JSON]",
		Short: "Export matching records as NDJSON to the configured blob sink",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cond, err := parseCondition(firstArg(args), flat)
			if err != nil {
				return err
			}
			sink, err := cli.openSink(cmd.Context())
			if err != nil {
				return err
			}
			return cli.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				info, err := svc.ExportRecords(ctx, cond, sink)
				if err != nil {
					return err
				}
				return cli.printJSON(info)
			})
		},
	}
	cmd.Flags().BoolVar(&flat, "flat", false, "Parse the legacy flat condition list")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
