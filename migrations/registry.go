package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	resultlink "github.com/goliatone/go-resultlink"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	defaultSourceLabel = "go-resultlink"
	embeddedRoot       = "data/sql/migrations"
)

// dialectDirs maps each dialect to its directory below the migrations root.
// Postgres files live at the root itself.
var dialectDirs = []struct {
	dialect string
	dir     string
}{
	{DialectPostgres, "."},
	{DialectSQLite, "sqlite"},
}

// FilesystemSpec is the page view schema for one dialect.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration reports what Register handed to the persistence client.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives the filesystem of every targeted dialect. Callers
// usually pass it on to the client's RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

// WithValidationTargets restricts registration to the named dialects. Blank
// names are ignored and an all-blank list keeps the default targets.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(targets); len(normalized) > 0 {
			r.ValidationTargets = normalized
		}
	}
}

// Filesystems resolves the per-dialect migration directories from the embedded
// files, or from sources[0] when given. The source may hold the full
// data/sql/migrations tree or be that directory already. Every dialect must
// contain at least one *.up.sql file.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	source := resultlink.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		source = sources[0]
	}
	root, rootPath, err := locateRoot(source)
	if err != nil {
		return nil, err
	}

	specs := make([]FilesystemSpec, 0, len(dialectDirs))
	for _, entry := range dialectDirs {
		dialectFS, err := fs.Sub(root, entry.dir)
		if err != nil {
			return nil, fmt.Errorf("migrations: open %s directory: %w", entry.dialect, err)
		}
		dialectPath := path.Join(rootPath, entry.dir)
		ups, err := fs.Glob(dialectFS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: list %s files in %s: %w", entry.dialect, dialectPath, err)
		}
		if len(ups) == 0 {
			return nil, fmt.Errorf("migrations: no %s up migrations in %q", entry.dialect, dialectPath)
		}
		specs = append(specs, FilesystemSpec{Dialect: entry.dialect, Path: dialectPath, FS: dialectFS})
	}
	return specs, nil
}

// Register resolves the embedded filesystems and calls registerFn once per
// targeted dialect, in postgres then sqlite order. By default both dialects
// are targeted.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       defaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	specs, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = specs
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if err := reg.validate(registerFn); err != nil {
		return reg, err
	}

	for _, spec := range reg.Filesystems {
		if !slices.Contains(reg.ValidationTargets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.SourceLabel, spec.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s from %s: %w", spec.Dialect, spec.Path, err)
		}
	}
	return reg, nil
}

func (r Registration) validate(registerFn RegisterFunc) error {
	var errs []error
	if registerFn == nil {
		errs = append(errs, errors.New("migrations: register function is required"))
	}
	if r.SourceLabel == "" {
		errs = append(errs, errors.New("migrations: source label is required"))
	}
	if len(r.ValidationTargets) == 0 {
		errs = append(errs, errors.New("migrations: at least one dialect must be targeted"))
	}
	return errors.Join(errs...)
}

func locateRoot(source fs.FS) (fs.FS, string, error) {
	if info, err := fs.Stat(source, embeddedRoot); err == nil && info.IsDir() {
		root, err := fs.Sub(source, embeddedRoot)
		if err != nil {
			return nil, "", fmt.Errorf("migrations: open %s: %w", embeddedRoot, err)
		}
		return root, embeddedRoot, nil
	}
	if flat, _ := fs.Glob(source, "*.sql"); len(flat) > 0 {
		return source, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", embeddedRoot)
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" && !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	return out
}
