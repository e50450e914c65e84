package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// Error codes used across CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeNotFound      = "E002" // Path not found
	ErrCodeParseFailed   = "E003" // YAML parse failure
	ErrCodeSchemaFailed  = "E004" // Watch file violates the schema
	ErrCodeInvalidWatch  = "E005" // Watch list inconsistency (empty, duplicate names)
	ErrCodeDatabaseError = "E006" // Database open/read failure
)

// watchSchema is the CUE schema a decoded watch file must satisfy.
// Definitions are closed, so unknown fields are rejected.
const watchSchema = `
#Watch: {
	name:    string & =~"^[a-z][a-z0-9_-]*$"
	query:   string & !=""
	dedupe?: bool
}

watches: [...#Watch]
`

// WatchFile is a parsed watch file: the set of observations to run.
type WatchFile struct {
	Watches []WatchSpec `yaml:"watches" json:"watches"`
}

// WatchSpec describes one observation: a named query, optionally
// deduplicated against the last delivered value (the default).
type WatchSpec struct {
	Name   string `yaml:"name" json:"name"`
	Query  string `yaml:"query" json:"query"`
	Dedupe *bool  `yaml:"dedupe" json:"dedupe,omitempty"`
}

// DedupeEnabled reports whether this watch suppresses unchanged values.
// Defaults to true when the field is omitted.
func (w WatchSpec) DedupeEnabled() bool {
	return w.Dedupe == nil || *w.Dedupe
}

// LoadError represents an error that occurred during watch file loading.
type LoadError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"` // dotted path into the watch file, if known
}

func (e *LoadError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadWatchFile reads, schema-checks, and decodes a YAML watch file.
// All schema violations are collected rather than failing fast, so a
// single validate run surfaces every problem in the file.
func LoadWatchFile(path string) (*WatchFile, []error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("watch file not found: %s", path)}}
		}
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error reading watch file: %v", err)}}
	}

	// Decode loosely first; the CUE schema does the structural checking
	// and produces better diagnostics than strict YAML decoding would.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing YAML: %v", err)}}
	}

	if errs := validateAgainstSchema(raw); len(errs) > 0 {
		return nil, errs
	}

	var file WatchFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("decoding watch file: %v", err)}}
	}

	if errs := validateWatchList(file.Watches); len(errs) > 0 {
		return nil, errs
	}

	return &file, nil
}

// validateAgainstSchema unifies the decoded document with the embedded
// CUE schema and collects every violation.
func validateAgainstSchema(raw map[string]any) []error {
	cuectx := cuecontext.New()

	schema := cuectx.CompileString(watchSchema)
	if err := schema.Err(); err != nil {
		return []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("compiling watch schema: %v", err)}}
	}

	doc := cuectx.Encode(raw)
	if err := doc.Err(); err != nil {
		return []error{&LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("encoding watch file: %v", err)}}
	}

	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var errs []error
		for _, cueErr := range cueerrors.Errors(err) {
			errs = append(errs, &LoadError{
				Code:    ErrCodeSchemaFailed,
				Message: cueErr.Error(),
				Field:   strings.Join(cueErr.Path(), "."),
			})
		}
		return errs
	}

	return nil
}

// validateWatchList applies the consistency checks the schema cannot
// express: at least one watch, no duplicate names.
func validateWatchList(watches []WatchSpec) []error {
	var errs []error

	if len(watches) == 0 {
		errs = append(errs, &LoadError{
			Code:    ErrCodeInvalidWatch,
			Message: "watch file declares no watches",
			Field:   "watches",
		})
		return errs
	}

	seen := make(map[string]bool, len(watches))
	for i, w := range watches {
		if seen[w.Name] {
			errs = append(errs, &LoadError{
				Code:    ErrCodeInvalidWatch,
				Message: fmt.Sprintf("duplicate watch name %q", w.Name),
				Field:   fmt.Sprintf("watches.%d.name", i),
			})
		}
		seen[w.Name] = true
	}

	return errs
}
