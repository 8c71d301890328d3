package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	relay "github.com/goliatone/go-relay"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SchemaMigration is the migration pair that creates the delivery ledger.
	SchemaMigration = "00001_relay_schema"

	DefaultSourceLabel = "go-relay"

	migrationsDir = "data/sql/migrations"
)

// FilesystemSpec is one dialect's migration directory.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel string
	Dialects    []string
	Filesystems []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

// WithDialects limits registration to the named dialects. Unknown names are
// kept so Register can report them.
func WithDialects(dialects ...string) Option {
	return func(r *Registration) {
		var next []string
		for _, dialect := range dialects {
			dialect = normalizeDialect(dialect)
			if dialect != "" && !slices.Contains(next, dialect) {
				next = append(next, dialect)
			}
		}
		if len(next) > 0 {
			r.Dialects = next
		}
	}
}

// WithFilesystems replaces the embedded schema, typically with the result of
// Filesystems(customSource).
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		var next []FilesystemSpec
		for _, spec := range filesystems {
			spec.Dialect = normalizeDialect(spec.Dialect)
			if spec.Dialect == "" || spec.FS == nil {
				continue
			}
			next = append(next, spec)
		}
		if len(next) > 0 {
			r.Filesystems = next
		}
	}
}

// DialectForDriver maps a database/sql driver name to its migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch normalizeDialect(driver) {
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: no dialect for driver %q", driver)
	}
}

// Filesystems resolves the postgres tree and its sqlite sibling from source,
// or from the embedded relay schema when source is omitted. Both trees must
// carry the SchemaMigration up/down pair.
func Filesystems(source ...fs.FS) ([]FilesystemSpec, error) {
	root := relay.GetCoreMigrationsFS()
	if len(source) > 0 && source[0] != nil {
		root = source[0]
	}

	postgresPath := migrationsDir
	postgresFS, err := fs.Sub(root, migrationsDir)
	if err != nil || !hasSchemaPair(postgresFS) {
		// a source that is already the migrations directory
		postgresPath, postgresFS = ".", root
	}
	sqliteFS, err := fs.Sub(postgresFS, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	specs := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: postgresPath, FS: postgresFS},
		{Dialect: DialectSQLite, Path: joinPath(postgresPath, DialectSQLite), FS: sqliteFS},
	}
	for _, spec := range specs {
		if !hasSchemaPair(spec.FS) {
			return nil, fmt.Errorf("migrations: %s tree %q is missing %s.up.sql or %s.down.sql",
				spec.Dialect, spec.Path, SchemaMigration, SchemaMigration)
		}
	}
	return specs, nil
}

// Register hands each selected dialect's tree to registerFn. Every dialect is
// selected unless WithDialects narrows it.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: DefaultSourceLabel,
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	if len(reg.Filesystems) == 0 {
		filesystems, err := Filesystems()
		if err != nil {
			return reg, err
		}
		reg.Filesystems = filesystems
	}

	byDialect := make(map[string]FilesystemSpec, len(reg.Filesystems))
	for _, spec := range reg.Filesystems {
		byDialect[spec.Dialect] = spec
	}
	for _, dialect := range reg.Dialects {
		spec, ok := byDialect[dialect]
		if !ok {
			return reg, fmt.Errorf("migrations: no filesystem for dialect %q", dialect)
		}
		if err := registerFn(ctx, dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", dialect, spec.Path, err)
		}
	}
	return reg, nil
}

// RegisterDialect registers the schema for one dialect only:
//
//	migrations.RegisterDialect(ctx, migrations.DialectSQLite, func(fsys fs.FS) {
//		client.RegisterSQLMigrations(fsys)
//	})
func RegisterDialect(ctx context.Context, dialect string, apply func(fs.FS), opts ...Option) (Registration, error) {
	dialect = normalizeDialect(dialect)
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return Registration{}, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
	if apply == nil {
		return Registration{}, fmt.Errorf("migrations: apply function is required")
	}
	opts = append(opts, WithDialects(dialect))
	return Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		apply(fsys)
		return nil
	}, opts...)
}

func hasSchemaPair(fsys fs.FS) bool {
	for _, suffix := range []string{".up.sql", ".down.sql"} {
		if _, err := fs.Stat(fsys, SchemaMigration+suffix); err != nil {
			return false
		}
	}
	return true
}

func normalizeDialect(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func joinPath(base string, name string) string {
	if base == "." {
		return name
	}
	return base + "/" + name
}
