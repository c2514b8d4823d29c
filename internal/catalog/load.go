package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/bokeh/bokeh-sub002/internal/model"
)

// Error codes reported by Load.
const (
	ErrCodeNotFound    = "E005"
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004"
	ErrCodeBuildFailed = "E006"
	ErrCodeNoModels    = "E101"
	ErrCodeInvalidType = "E104"
)

// LoadError is a failure to read or build a definition directory.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result is a compiled catalog and the files it came from.
type Result struct {
	Catalog *model.Catalog
	Files   []string
}

type config struct {
	collectAll bool
	catalog    []model.CatalogOption
}

// Option configures Load and Compile.
type Option func(*config)

// WithCollectAll reports every bad type instead of stopping at the first.
func WithCollectAll() Option {
	return func(c *config) {
		c.collectAll = true
	}
}

// WithCatalogOptions passes options through to model.NewCatalog.
func WithCatalogOptions(opts ...model.CatalogOption) Option {
	return func(c *config) {
		c.catalog = append(c.catalog, opts...)
	}
}

// Load compiles the CUE package in dir. Files lists every .cue file under
// dir, including nested ones the package does not build.
func Load(dir string, opts ...Option) (*Result, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("accessing catalog directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("scanning %s: %v", dir, err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	cat, err := compileValue(value, opts...)
	if err != nil {
		return nil, err
	}
	return &Result{Catalog: cat, Files: files}, nil
}

// Compile builds a catalog from CUE source text. filename is used only in
// error positions.
func Compile(filename, src string, opts ...Option) (*model.Catalog, error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileValue(value, opts...)
}

func compileValue(value cue.Value, opts ...Option) (*model.Catalog, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	models := value.LookupPath(cue.ParsePath("model"))
	if !models.Exists() {
		return nil, &LoadError{Code: ErrCodeNoModels, Message: "no model definitions found"}
	}
	iter, err := models.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	cat := model.NewCatalog(cfg.catalog...)
	var errs []error
	for iter.Next() {
		t, err := CompileType(iter.Value())
		if err == nil {
			err = cat.Register(t)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("model.%s: %w", iter.Label(), err))
			if !cfg.collectAll {
				break
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(cat.Types()) == 0 {
		return nil, &LoadError{Code: ErrCodeNoModels, Message: "no model definitions found"}
	}
	return cat, nil
}

// FindCUEFiles returns every .cue file under dir, in lexical order.
func FindCUEFiles(dir string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.cue")
	if err != nil {
		return nil, err
	}
	files := make([]string, len(matches))
	for i, m := range matches {
		files[i] = filepath.Join(dir, m)
	}
	return files, nil
}

// ErrorCode maps a compile error to one of the Load error codes.
func ErrorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		return ErrCodeInvalidType
	}
	return "E001"
}
