// Package converter holds the byte-level conversion backends. Each backend
// declares the formats it reads and writes and which outputs are reachable
// from a given input; the registry package routes requests between them.
package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrUnsupportedPair is returned when a converter is asked for a pair it
	// does not declare.
	ErrUnsupportedPair = errors.New("conversion pair not supported")
	// ErrInputMissing is returned when the job's input file does not exist.
	ErrInputMissing = errors.New("input file not found")
	// ErrToolUnavailable is returned when an external tool cannot be located.
	ErrToolUnavailable = errors.New("conversion tool unavailable")
)

// Job describes one conversion. OutputDir must exist; converters write only
// inside it.
type Job struct {
	InputPath    string
	OutputDir    string
	InputFormat  string
	OutputFormat string
}

// Converter turns a file of one format into one or more files of another.
type Converter interface {
	Name() string
	InputFormats() []string
	OutputFormats() []string
	// CompatibleWith lists the outputs reachable from format, never
	// including format itself.
	CompatibleWith(format string) []string
	// Available checks for the converter's runtime dependencies.
	Available() bool
	// Convert returns the produced paths, first one primary.
	Convert(ctx context.Context, job Job) ([]string, error)
}

// ConversionError carries the diagnostic output of a failed backend.
type ConversionError struct {
	Converter string
	ExitCode  int
	Output    string
	Err       error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("%s conversion failed", e.Converter)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func failed(name string, err error) error {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConversionError{Converter: name, Err: err}
}

// formatSet is a small sorted set of normalized format tokens.
type formatSet map[string]struct{}

func newFormatSet(formats ...string) formatSet {
	s := make(formatSet, len(formats))
	for _, f := range formats {
		s[Normalize(f)] = struct{}{}
	}
	return s
}

func (s formatSet) has(f string) bool {
	_, ok := s[Normalize(f)]
	return ok
}

func (s formatSet) sorted() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// without returns s minus the given formats, sorted.
func (s formatSet) without(formats ...string) []string {
	skip := newFormatSet(formats...)
	out := make([]string, 0, len(s))
	for f := range s {
		if !skip.has(f) {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func contains(list []string, f string) bool {
	f = Normalize(f)
	for _, v := range list {
		if v == f {
			return true
		}
	}
	return false
}

// check validates job against c before any work happens.
func check(c Converter, job Job) error {
	in, out := Normalize(job.InputFormat), Normalize(job.OutputFormat)
	if !contains(c.InputFormats(), in) || !contains(c.CompatibleWith(in), out) {
		return fmt.Errorf("%s: %w: %s to %s", c.Name(), ErrUnsupportedPair, in, out)
	}
	info, err := os.Stat(job.InputPath)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%s: %w: %s", c.Name(), ErrInputMissing, job.InputPath)
	}
	return nil
}

// outputPath names the primary output "<input stem>.<format>" inside dir.
func outputPath(job Job) string {
	return outputPathN(job, -1)
}

// outputPathN names page n as "<input stem>-<n>.<format>"; n < 0 omits it.
func outputPathN(job Job, n int) string {
	base := filepath.Base(job.InputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	format := Normalize(job.OutputFormat)
	if n >= 0 {
		return filepath.Join(job.OutputDir, fmt.Sprintf("%s-%d.%s", stem, n+1, format))
	}
	return filepath.Join(job.OutputDir, stem+"."+format)
}

// writeFile creates path and hands it to fn, removing it if fn fails.
func writeFile(path string, fn func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
