package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldcore/internal/blob"
	"fieldcore/internal/core"
	"fieldcore/pkg/domain"
)

// CLI wires cobra commands to a viper configuration layered from flags,
// FIELDCORE_* environment variables and an optional fieldcore.yaml.
type CLI struct {
	root   *cobra.Command
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
}

// NewCLI builds the command tree writing results to out and logs to errOut.
func NewCLI(out, errOut io.Writer) *CLI {
	cli := &CLI{v: viper.New(), out: out, errOut: errOut}
	cli.setupConfig()
	cli.root = &cobra.Command{
		Use:   "fieldctl",
		Short: "Manage fieldcore field catalogs and records",
		Long: `fieldctl operates on the field catalog and records of one tenant/app scope.

Configuration sources, highest precedence first:
  1. command line flags
  2. FIELDCORE_* environment variables (--sqlite-path -> FIELDCORE_SQLITE_PATH)
  3. FIELDCORE_CONFIG, ./fieldcore.yaml or ~/.fieldcore/fieldcore.yaml

Examples:
  fieldctl --tenant acme --app crm fields define Budget --type Number
  fieldctl --tenant acme --app crm records create '{"Budget": 1500}'
  fieldctl --tenant acme --app crm records query '{"logic":"and","conditions":[{"field":"Budget","op":">=","value":1000}]}'
  fieldctl compile --mode direct '{"field":"Status","op":"=","value":"Active"}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return cli.v.BindPFlags(cmd.Flags())
		},
	}
	cli.root.SetOut(out)
	cli.root.SetErr(errOut)

	flags := cli.root.PersistentFlags()
	flags.String("tenant", "default", "Tenant id of the scope")
	flags.String("app", "default", "App code of the scope")
	flags.String("user", "", "Acting user name recorded in audit columns")
	flags.Int64("user-id", 0, "Acting user id recorded in audit columns")
	flags.String("storage-driver", "sqlite", "Storage driver (memory|sqlite|postgres)")
	flags.String("sqlite-path", "fieldcore.db", "SQLite database file")
	flags.String("postgres-dsn", "", "Postgres DSN when --storage-driver=postgres")
	flags.Int("postgres-max-conns", 0, "Postgres pool size (0 = unlimited)")
	flags.Int64("node-id", 0, "Id generator node (0-1023)")
	flags.String("blob-driver", "fs", "Export sink driver (fs|memory|s3)")
	flags.String("blob-fs-root", "./exports", "Export directory when --blob-driver=fs")
	flags.String("log-level", "warn", "Log level (debug|info|warn|error)")

	cli.root.AddCommand(cli.fieldsCommand(), cli.recordsCommand(), cli.compileCommand())
	return cli
}

func (cli *CLI) setupConfig() {
	if file := os.Getenv("FIELDCORE_CONFIG"); file != "" {
		cli.v.SetConfigFile(file)
	} else {
		cli.v.SetConfigName("fieldcore")
		cli.v.SetConfigType("yaml")
		cli.v.AddConfigPath(".")
		cli.v.AddConfigPath("$HOME/.fieldcore")
	}
	cli.v.SetEnvPrefix("FIELDCORE")
	cli.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cli.v.AutomaticEnv()
	_ = cli.v.ReadInConfig()
}

// Execute runs the command line args.
func (cli *CLI) Execute(args []string) error {
	cli.root.SetArgs(args)
	return cli.root.Execute()
}

func (cli *CLI) logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(cli.v.GetString("log-level"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cli.errOut, NoColor: true}).
		Level(level).
		With().Timestamp().Str("component", "fieldctl").Logger()
}

// context returns a context carrying the configured scope and actor.
func (cli *CLI) context(ctx context.Context) context.Context {
	ctx = domain.WithScope(ctx, domain.Scope{
		TenantID: cli.v.GetString("tenant"),
		AppCode:  cli.v.GetString("app"),
	})
	return domain.WithActor(ctx, domain.Actor{
		UserID:   cli.v.GetInt64("user-id"),
		UserName: cli.v.GetString("user"),
	})
}

// withService opens the configured store, runs fn and closes the store.
func (cli *CLI) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *core.Service) error) error {
	store, err := core.OpenStorage(core.StorageConfig{
		Driver:           core.StorageDriver(cli.v.GetString("storage-driver")),
		SQLitePath:       cli.v.GetString("sqlite-path"),
		PostgresDSN:      cli.v.GetString("postgres-dsn"),
		PostgresMaxConns: cli.v.GetInt("postgres-max-conns"),
		NodeID:           cli.v.GetInt64("node-id"),
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	svc, err := core.NewService(store, core.WithLogger(cli.logger()))
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() { _ = svc.Close() }()
	return fn(cli.context(cmd.Context()), svc)
}

func (cli *CLI) openSink(ctx context.Context) (blob.Store, error) {
	return blob.OpenConfig(ctx, blob.Config{
		Driver: blob.Driver(cli.v.GetString("blob-driver")),
		FSRoot: cli.v.GetString("blob-fs-root"),
	})
}

func (cli *CLI) printJSON(v any) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseCondition accepts a condition tree, or with flat=true the legacy list
// of field conditions. An empty argument is the match-all condition.
func parseCondition(raw string, flat bool) (domain.Condition, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.And(), nil
	}
	if flat {
		list, err := domain.ParseFlatConditions([]byte(raw))
		if err != nil {
			return domain.Condition{}, err
		}
		return domain.FromFlatConditions(list), nil
	}
	return domain.ParseCondition([]byte(raw))
}
