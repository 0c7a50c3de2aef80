// Package registry indexes the available converters by the formats they read
// and write, and resolves a converter for a requested conversion.
package registry

import (
	"sort"

	"github.com/lk2023060901/transmute-backend/internal/converter"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/lk2023060901/transmute-backend/internal/pkg/metrics"
	"go.uber.org/zap"
)

// Descriptor is the public view of a registered converter.
type Descriptor struct {
	Name          string   `json:"name"`
	InputFormats  []string `json:"input_formats"`
	OutputFormats []string `json:"output_formats"`
}

// Registry is immutable after New and safe for concurrent use.
type Registry struct {
	converters []converter.Converter
	byInput    map[string][]converter.Converter
	byOutput   map[string][]converter.Converter
}

// New keeps every candidate whose availability check passes. Candidates are
// indexed in name order so lookups are deterministic.
func New(candidates []converter.Converter, log *logger.Logger) *Registry {
	log = log.Named("registry")

	r := &Registry{
		byInput:  make(map[string][]converter.Converter),
		byOutput: make(map[string][]converter.Converter),
	}

	sorted := append([]converter.Converter(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })

	for _, c := range sorted {
		if !c.Available() {
			log.Info("converter unavailable, skipping", zap.String("converter", c.Name()))
			continue
		}
		r.converters = append(r.converters, c)
		for _, f := range uniqueNormalized(c.InputFormats()) {
			r.byInput[f] = append(r.byInput[f], c)
		}
		for _, f := range uniqueNormalized(c.OutputFormats()) {
			r.byOutput[f] = append(r.byOutput[f], c)
		}
		log.Info("converter registered",
			zap.String("converter", c.Name()),
			zap.Int("inputs", len(c.InputFormats())),
			zap.Int("outputs", len(c.OutputFormats())),
		)
	}
	metrics.RegisteredConverters.Set(float64(len(r.converters)))
	return r
}

// ConverterFor returns the converter that reads in and writes out. When
// several qualify the lowest name wins.
func (r *Registry) ConverterFor(in, out string) (converter.Converter, bool) {
	in, out = converter.Normalize(in), converter.Normalize(out)
	if in == "" || out == "" {
		return nil, false
	}

	writers := make(map[string]bool, len(r.byOutput[out]))
	for _, c := range r.byOutput[out] {
		writers[c.Name()] = true
	}
	// byInput is in name order, so the first hit is the lowest name.
	for _, c := range r.byInput[in] {
		if writers[c.Name()] {
			return c, true
		}
	}
	return nil, false
}

// CompatibleFormats unions the directional outputs of every converter that
// reads f. The result is sorted and never contains f.
func (r *Registry) CompatibleFormats(f string) []string {
	f = converter.Normalize(f)
	set := make(map[string]struct{})
	for _, c := range r.byInput[f] {
		for _, out := range c.CompatibleWith(f) {
			out = converter.Normalize(out)
			if out != f {
				set[out] = struct{}{}
			}
		}
	}
	return sortedKeys(set)
}

// Matrix maps every readable format to its compatible outputs.
func (r *Registry) Matrix() map[string][]string {
	m := make(map[string][]string, len(r.byInput))
	for f := range r.byInput {
		m[f] = r.CompatibleFormats(f)
	}
	return m
}

// InputFormats lists every readable format, sorted.
func (r *Registry) InputFormats() []string {
	set := make(map[string]struct{}, len(r.byInput))
	for f := range r.byInput {
		set[f] = struct{}{}
	}
	return sortedKeys(set)
}

// Descriptors lists the registered converters in name order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.converters))
	for _, c := range r.converters {
		out = append(out, Descriptor{
			Name:          c.Name(),
			InputFormats:  uniqueNormalized(c.InputFormats()),
			OutputFormats: uniqueNormalized(c.OutputFormats()),
		})
	}
	return out
}

// Names lists the registered converter names in order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.converters))
	for _, c := range r.converters {
		out = append(out, c.Name())
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.converters)
}

func uniqueNormalized(formats []string) []string {
	set := make(map[string]struct{}, len(formats))
	for _, f := range formats {
		if n := converter.Normalize(f); n != "" {
			set[n] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
