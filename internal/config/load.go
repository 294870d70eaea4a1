package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE []byte

// Load reads, decodes, defaults and validates the configuration at path.
//
// A configuration with problems returns ValidationErrors; an unreadable
// file or unknown extension returns a plain error.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg *Config
	var problems []ValidationError
	switch ext := filepath.Ext(path); ext {
	case ".cue":
		cfg, problems = decodeCUE(path, src)
	case ".yaml", ".yml":
		cfg, problems = decodeYAML(src)
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q (want .cue, .yaml or .yml)", path, ext)
	}
	if len(problems) > 0 {
		return nil, ValidationErrors(problems)
	}

	cfg.ApplyDefaults()
	if problems := cfg.Validate(); len(problems) > 0 {
		return cfg, ValidationErrors(problems)
	}
	return cfg, nil
}

// decodeCUE unifies src with #Config and decodes the concrete result.
func decodeCUE(filename string, src []byte) (*Config, []ValidationError) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		// The embedded schema is fixed at build time.
		panic(fmt.Sprintf("config schema: %v", err))
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, cueProblems(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueProblems(err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, cueProblems(err)
	}
	return &cfg, nil
}

// cueProblems converts CUE errors, keeping the line of each.
func cueProblems(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{Field: "cue", Code: ErrSchema, Message: e.Error()}
		if path := e.Path(); len(path) > 0 {
			ve.Field = joinPath(path)
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.Line = pos[0].Line()
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Field: "cue", Code: ErrSchema, Message: err.Error()})
	}
	return out
}

func joinPath(path []string) string {
	var buf bytes.Buffer
	for i, p := range path {
		if p == "" {
			continue
		}
		if p[0] >= '0' && p[0] <= '9' {
			buf.WriteString("[" + p + "]")
			continue
		}
		if i > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(p)
	}
	return buf.String()
}

// decodeYAML decodes src strictly. An empty document is an empty config.
func decodeYAML(src []byte) (*Config, []ValidationError) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		ve := ValidationError{Field: "yaml", Code: ErrSchema, Message: err.Error()}
		var te *yaml.TypeError
		if errors.As(err, &te) && len(te.Errors) > 0 {
			ve.Message = te.Errors[0]
		}
		return nil, []ValidationError{ve}
	}
	return &cfg, nil
}
