// Package config loads the server configuration file into a queryable
// property tree.
//
// A configuration has a "server" block, an ordered list of "paths" each
// binding a URI prefix to a handler type with an optional child block, and a
// mandatory "default" entry:
//
//	server:
//	  listen: 8080
//	paths:
//	  - prefix: /static
//	    handler: StaticHandler
//	    config:
//	      root: /www
//	default:
//	  handler: NotFoundHandler
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultPrefix is the routing key of the fallback route.
const DefaultPrefix = "default"

var (
	// ErrUnsupportedFormat is returned for files that are neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalidPrefix is returned for a path prefix that does not start with "/"
	// or is declared twice.
	ErrInvalidPrefix = errors.New("invalid path prefix")
)

// Format identifies the syntax of a configuration document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Properties is the read side of a configuration block.
type Properties interface {
	// Lookup walks nested blocks by key and returns the scalar at the end
	// of path formatted as a string.
	Lookup(path ...string) (string, bool)
}

// Path binds a URI prefix to a handler type name.
type Path struct {
	Prefix  string
	Handler string
}

// Config is a parsed configuration file.
type Config struct {
	root     *Block
	paths    []Path
	children map[string]*Block
}

// Load reads and parses the file at path, choosing the format by extension.
func Load(path string) (*Config, error) {
	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".toml":
		format = FormatTOML
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the given format.
func Parse(data []byte, format Format) (*Config, error) {
	var doc map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("decoding toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	cfg := &Config{
		root:     &Block{props: doc},
		children: make(map[string]*Block),
	}

	entries, err := pathEntries(doc["paths"])
	if err != nil {
		return nil, err
	}
	for i, entry := range entries {
		prefix, err := normalizePrefix(entry.str("prefix"))
		if err != nil {
			return nil, fmt.Errorf("paths[%d]: %w", i, err)
		}
		if err := cfg.add(prefix, entry); err != nil {
			return nil, fmt.Errorf("paths[%d]: %w", i, err)
		}
	}

	if def, ok := doc[DefaultPrefix]; ok {
		m, ok := asMap(def)
		if !ok {
			return nil, fmt.Errorf("default: expected a block, got %T", def)
		}
		if err := cfg.add(DefaultPrefix, entry(m)); err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) add(prefix string, e entry) error {
	handler := e.str("handler")
	if handler == "" {
		return fmt.Errorf("prefix %s: missing handler", prefix)
	}
	if _, dup := c.children[prefix]; dup {
		return fmt.Errorf("%w: %s declared twice", ErrInvalidPrefix, prefix)
	}

	child := map[string]any{}
	if raw, ok := e["config"]; ok {
		m, ok := asMap(raw)
		if !ok {
			return fmt.Errorf("prefix %s: config must be a block, got %T", prefix, raw)
		}
		child = m
	}

	c.paths = append(c.paths, Path{Prefix: prefix, Handler: handler})
	c.children[prefix] = &Block{props: child}
	return nil
}

// Lookup queries the whole document, e.g. Lookup("server", "listen").
func (c *Config) Lookup(path ...string) (string, bool) {
	return c.root.Lookup(path...)
}

// AllPaths returns every declared (prefix, handler) pair in declaration
// order, with the default route last.
func (c *Config) AllPaths() []Path {
	return append([]Path(nil), c.paths...)
}

// ChildBlock returns the handler block declared for prefix. Unknown
// prefixes yield an empty block.
func (c *Config) ChildBlock(prefix string) *Block {
	if b, ok := c.children[prefix]; ok {
		return b
	}
	return &Block{}
}

// normalizePrefix strips trailing slashes and requires a leading one.
func normalizePrefix(prefix string) (string, error) {
	if !strings.HasPrefix(prefix, "/") {
		return "", fmt.Errorf("%w: %q must start with /", ErrInvalidPrefix, prefix)
	}
	if trimmed := strings.TrimRight(prefix, "/"); trimmed != "" {
		return trimmed, nil
	}
	return "/", nil
}

type entry map[string]any

func (e entry) str(key string) string {
	v, ok := e[key]
	if !ok {
		return ""
	}
	s, _ := scalar(v)
	return s
}

// pathEntries accepts both the YAML ([]any of maps) and TOML ([]map) shapes.
func pathEntries(v any) ([]entry, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		out := make([]entry, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out, nil
	case []any:
		out := make([]entry, 0, len(list))
		for i, item := range list {
			m, ok := asMap(item)
			if !ok {
				return nil, fmt.Errorf("paths[%d]: expected a block, got %T", i, item)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("paths: expected a list, got %T", v)
	}
}
