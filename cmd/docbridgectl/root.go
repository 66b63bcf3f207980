// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the schema-management command-line tool (spec.md §6.4):
// exactly one of --generate-new|--remove|--list|--export|--import plus
// connection and schema flags.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/docbridge/docbridge/internal/catalog"
	"github.com/docbridge/docbridge/internal/connurl"
	"github.com/docbridge/docbridge/internal/docsource"
	"github.com/docbridge/docbridge/internal/inference"
	"github.com/docbridge/docbridge/internal/log"
	"github.com/docbridge/docbridge/internal/schema"
	"github.com/docbridge/docbridge/internal/store"
	"github.com/docbridge/docbridge/internal/store/docstore"
	"github.com/docbridge/docbridge/internal/store/filestore"
	"github.com/docbridge/docbridge/internal/store/sidecar"
	"github.com/docbridge/docbridge/internal/util"
)

// Config holds every flag the command accepts.
type Config struct {
	// Connection flags.
	Server                   string
	Database                 string
	User                     string
	Password                 string
	TLS                      bool
	TLSAllowInvalidHostnames bool

	// Schema flags.
	SchemaName string
	ScanMethod string
	ScanLimit  int64
	Output     string

	// Mode selector (exactly one required).
	GenerateNew bool
	Remove      bool
	List        bool
	Export      bool
	Import      string

	// Backend selector: file-backed store vs the remote document store.
	FileStore string
}

// Command wraps the root cobra.Command the way the teacher's cmd package
// wraps ServerConfig-bound flags.
type Command struct {
	*cobra.Command
	cfg *Config
}

// NewCommand constructs the root command with every flag bound.
func NewCommand() *Command {
	cfg := &Config{}
	c := &Command{cfg: cfg}

	cmd := &cobra.Command{
		Use:           "docbridgectl",
		Short:         "Manage relational schemas inferred over a document database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.Server, "server", "", "connection URL, e.g. mongodb://host:27017/db?scanMethod=random")
	flags.StringVar(&cfg.Database, "database", "", "database name override")
	flags.StringVar(&cfg.User, "user", "", "username override")
	flags.StringVar(&cfg.Password, "password", "", "password override")
	flags.BoolVar(&cfg.TLS, "tls", false, "enable TLS")
	flags.BoolVar(&cfg.TLSAllowInvalidHostnames, "tls-allow-invalid-hostnames", false, "skip TLS hostname verification")

	flags.StringVar(&cfg.SchemaName, "schema-name", "", "named schema (default _default)")
	flags.StringVar(&cfg.ScanMethod, "scan-method", "", "random|idForward|idReverse|all")
	flags.Int64Var(&cfg.ScanLimit, "scan-limit", 0, "max sampled documents per collection")
	flags.StringVar(&cfg.Output, "output", "", "output file for --export (default stdout)")
	flags.StringVar(&cfg.FileStore, "file-store", "", "directory for a file-backed schema store instead of the remote one")

	flags.BoolVar(&cfg.GenerateNew, "generate-new", false, "infer and persist a new schema version")
	flags.BoolVar(&cfg.Remove, "remove", false, "remove the named schema")
	flags.BoolVar(&cfg.List, "list", false, "list persisted schemas")
	flags.BoolVar(&cfg.Export, "export", false, "export the named schema's tables as JSON")
	flags.StringVar(&cfg.Import, "import", "", "import tables from a JSON file produced by --export")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), cfg, cmd.OutOrStdout(), args)
	}

	c.Command = cmd
	return c
}

func run(ctx context.Context, cfg *Config, out io.Writer, exportTables []string) error {
	modeCount := 0
	for _, on := range []bool{cfg.GenerateNew, cfg.Remove, cfg.List, cfg.Export, cfg.Import != ""} {
		if on {
			modeCount++
		}
	}
	if modeCount != 1 {
		return util.NewKindError(util.KindInvalidConnectionProperties, "exactly one of --generate-new|--remove|--list|--export|--import is required", nil)
	}

	logger, err := log.NewStdLogger(os.Stdout, os.Stderr, log.Info)
	if err != nil {
		return util.NewKindError(util.KindInternal, "constructing logger", err)
	}

	schemaName := cfg.SchemaName
	if schemaName == "" {
		schemaName = "_default"
	}

	var (
		st  store.Store
		src *docsource.Source
	)
	switch {
	case cfg.FileStore != "" && cfg.GenerateNew:
		// Persisting to a file but still inferring from a live source.
		st = filestore.New(cfg.FileStore, cfg.Database)
		if cfg.Server == "" {
			return util.NewKindError(util.KindInvalidConnectionProperties, "--server is required with --generate-new", nil)
		}
		src, err = connectSource(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer src.Close(ctx)
	case cfg.FileStore != "":
		st = filestore.New(cfg.FileStore, cfg.Database)
	default:
		if cfg.Server == "" {
			return util.NewKindError(util.KindInvalidConnectionProperties, "--server or --file-store is required", nil)
		}
		st, src, err = remoteStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer src.Close(ctx)
	}

	switch {
	case cfg.List:
		return runList(ctx, st, out)
	case cfg.Remove:
		return st.Remove(ctx, schemaName)
	case cfg.Export:
		return runExport(ctx, st, schemaName, exportTables, cfg.Output, out)
	case cfg.Import != "":
		return runImport(ctx, st, schemaName, cfg.Import)
	case cfg.GenerateNew:
		return runGenerateNew(ctx, cfg, st, src, schemaName)
	}
	return nil
}

// connectSource parses --server and dials the document source it names.
func connectSource(ctx context.Context, cfg *Config, logger log.Logger) (*docsource.Source, error) {
	opts, warnings, err := connurl.Parse(cfg.Server)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		logger.WarnContext(ctx, w)
	}
	if cfg.Database != "" {
		opts.Database = cfg.Database
	}

	tracer := noop.NewTracerProvider().Tracer("docbridgectl")
	return docsource.Connect(ctx, tracer, "docbridgectl", opts.Database, cfg.Server, opts.AppName)
}

// remoteStore connects to the configured document source and wraps it in a
// docstore.Store backed by an in-process sidecar cache. It is shared by
// every mode that needs a store but was not given --file-store, so
// --list/--remove/--export/--import behave the same whether or not
// --generate-new is also in play.
func remoteStore(ctx context.Context, cfg *Config, logger log.Logger) (store.Store, *docsource.Source, error) {
	src, err := connectSource(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	tracer := noop.NewTracerProvider().Tracer("docbridgectl")
	st, err := docstore.New(ctx, src.Database(), tracer, docstore.WithSidecar(sidecar.New()))
	if err != nil {
		src.Close(ctx)
		return nil, nil, err
	}
	return st, src, nil
}

func runList(ctx context.Context, st store.Store, out io.Writer) error {
	metas, err := st.List(ctx)
	if err != nil {
		return err
	}
	for _, m := range metas {
		fmt.Fprintf(out, "%s\tv%d\t%s\n", m.SchemaName, m.SchemaVersion, m.SQLName)
	}
	return nil
}

func runExport(ctx context.Context, st store.Store, schemaName string, tableNames []string, outputPath string, stdout io.Writer) error {
	meta, ok, err := st.Read(ctx, schemaName)
	if err != nil {
		return err
	}
	if !ok {
		return util.NewKindError(util.KindSchemaNotFound, fmt.Sprintf("schema %q not found", schemaName), nil)
	}
	cat, err := catalog.Load(ctx, meta)
	if err != nil {
		return err
	}

	var tables []*schema.TableSchema
	if len(tableNames) == 0 {
		for _, t := range cat.Tables() {
			tables = append(tables, t.Underlying())
		}
	} else {
		for _, name := range tableNames {
			t, ok := cat.Table(name)
			if !ok {
				return util.NewKindError(util.KindSchemaNotFound, fmt.Sprintf("table %q not found in schema %q", name, schemaName), nil)
			}
			tables = append(tables, t.Underlying())
		}
	}

	b, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return util.NewKindError(util.KindInternal, "encoding exported tables", err)
	}
	if outputPath == "" {
		_, err := stdout.Write(append(b, '\n'))
		return err
	}
	return os.WriteFile(outputPath, b, 0o644)
}

func runImport(ctx context.Context, st store.Store, schemaName, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return util.NewKindError(util.KindInvalidConnectionProperties, "reading import file", err)
	}
	var tables []*schema.TableSchema
	if err := json.Unmarshal(b, &tables); err != nil {
		return util.NewKindError(util.KindInvalidConnectionProperties, "decoding import file", err)
	}
	if err := schema.Validate(tables); err != nil {
		return util.NewKindError(util.KindSchemaWriteFailed, "imported tables fail validation", err)
	}
	_, err = st.Write(ctx, store.SchemaMeta{SchemaName: schemaName, SQLName: schemaName}, tables)
	return err
}

// runGenerateNew samples every collection in src's database and persists
// the inferred schema through st. src is already connected (see
// remoteStore); when --file-store redirects persistence elsewhere, src is
// still the live document source inference samples from.
func runGenerateNew(ctx context.Context, cfg *Config, st store.Store, src *docsource.Source, schemaName string) error {
	scanMethod := inference.SampleMethod(cfg.ScanMethod)
	if scanMethod == "" {
		scanMethod = inference.SampleRandom
	}
	scanLimit := cfg.ScanLimit
	if scanLimit <= 0 {
		scanLimit = 1000
	}

	engine := inference.NewEngine(inference.WithIDGenerator(uuid.NewString))
	names, err := src.Database().ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return util.NewKindError(util.KindConnection, "listing collections", err)
	}
	for _, name := range names {
		sampleSrc, err := src.Sample(ctx, name, scanMethod, scanLimit)
		if err != nil {
			return err
		}
		if err := engine.InferCollection(ctx, name, sampleSrc); err != nil {
			return err
		}
	}

	tables := engine.Finalize()
	flat := make([]*schema.TableSchema, 0, len(tables))
	for _, t := range tables {
		flat = append(flat, t)
	}
	if err := schema.Validate(flat); err != nil {
		return util.NewKindError(util.KindSchemaWriteFailed, "inferred schema fails validation", err)
	}

	_, err = st.Write(ctx, store.SchemaMeta{SchemaName: schemaName, SQLName: schemaName}, flat)
	return err
}
