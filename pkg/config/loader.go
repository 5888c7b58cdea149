// Package config loads service settings from struct tag defaults, an
// optional YAML or JSON file and the process environment. Values are
// resolved in priority order (highest wins):
//
//	envDefault struct tags
//	YAML/JSON config file (--config)
//	environment variables
//
// # Struct Tags
//
//   - `env:"NAME"`: the environment variable for a field. On a nested
//     struct field it becomes a prefix for the children ("PARENT_CHILD").
//     Nested structs without an env tag add no prefix, which lets shared
//     blocks such as postgres.Config keep their own variable names.
//   - `envDefault:"value"`: applied when the field is still zero.
//   - `required:"true"`: loading fails if the field is zero afterwards.
//
// Supported field types are strings and named string types, bools, signed
// and unsigned integers, floats, time.Duration, comma-separated []string
// and any type implementing encoding.TextUnmarshaler (for example
// slog.Level).
//
// # Usage
//
//	type Settings struct {
//	    ServicePort int           `env:"SERVICE_PORT" envDefault:"8080" yaml:"service_port"`
//	    Timeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s" yaml:"request_timeout"`
//	    Database    postgres.Config `yaml:"database"`
//	}
//
//	cfg := config.MustLoad[Settings](config.New().WithFile(path))
package config

import (
	"encoding"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

var (
	durationType        = reflect.TypeOf(time.Duration(0))
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// LookupFunc resolves an environment variable. [os.LookupEnv] is the
// default; tests inject a map-backed function instead.
type LookupFunc func(key string) (string, bool)

// Loader resolves configuration into a struct. Loader is not safe for
// concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
	lookup    LookupFunc
}

// New creates a Loader that reads the process environment, with no file
// and no prefix.
func New() *Loader {
	return &Loader{lookup: os.LookupEnv}
}

// WithEnvPrefix prepends PREFIX_ to every variable name. The prefix is
// uppercased; an empty prefix disables prefixing.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets a YAML (.yaml, .yml) or JSON (.json) file to read. A
// missing file is not an error. Paths containing ".." are rejected.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithLookup replaces the environment lookup function.
func (l *Loader) WithLookup(fn LookupFunc) *Loader {
	if fn != nil {
		l.lookup = fn
	}
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct, and
// validates it. Loading failures carry [sserr.CodeInternalConfiguration];
// missing required fields carry [sserr.CodeValidationRequired].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()

	err := walk(rv, "", func(f fieldRef) error {
		def, ok := f.sf.Tag.Lookup("envDefault")
		if !ok || !f.v.IsZero() {
			return nil
		}
		if err := setField(f.v, def); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: invalid default for field %q", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	err = walk(rv, l.envPrefix, func(f fieldRef) error {
		if f.envKey == "" {
			return nil
		}
		val, ok := l.lookup(f.envKey)
		if !ok {
			return nil
		}
		if err := setField(f.v, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: invalid value for %s", f.envKey)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad loads a T or panics. Intended for process startup.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to parse file %q", l.filePath)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Struct traversal
// ---------------------------------------------------------------------------

// fieldRef describes one settable leaf field during traversal.
type fieldRef struct {
	v      reflect.Value
	sf     reflect.StructField
	path   string // dotted Go path, e.g. "Database.Host"
	envKey string // fully prefixed variable name, "" when untagged
}

// isLeaf reports whether a struct-kinded type is set as a single value
// rather than traversed.
func isLeaf(t reflect.Type) bool {
	if t == durationType {
		return true
	}
	return reflect.PointerTo(t).Implements(textUnmarshalerType)
}

// walk visits every exported leaf field of rv depth-first.
func walk(rv reflect.Value, prefix string, visit func(fieldRef) error) error {
	return walkPath(rv, prefix, "", visit)
}

func walkPath(rv reflect.Value, prefix, path string, visit func(fieldRef) error) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}
		envTag := sf.Tag.Get("env")

		if field.Kind() == reflect.Struct && !isLeaf(sf.Type) {
			if err := walkPath(field, joinEnv(prefix, envTag), fieldPath, visit); err != nil {
				return err
			}
			continue
		}

		ref := fieldRef{v: field, sf: sf, path: fieldPath}
		if envTag != "" {
			ref.envKey = joinEnv(prefix, envTag)
		}
		if err := visit(ref); err != nil {
			return err
		}
	}
	return nil
}

func joinEnv(prefix, name string) string {
	switch {
	case name == "":
		return prefix
	case prefix == "":
		return name
	default:
		return prefix + "_" + name
	}
}

// setField parses value into field according to the field's type.
func setField(field reflect.Value, value string) error {
	if field.CanAddr() && field.Addr().Type().Implements(textUnmarshalerType) {
		return field.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(value))
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse unsigned integer %q: %w", value, err)
		}
		field.SetUint(n)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse float %q: %w", value, err)
		}
		field.SetFloat(f)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		var parts []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(p)
		}
		field.Set(slice)

	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}

	return nil
}
