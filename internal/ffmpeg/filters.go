package ffmpeg

import (
	"github.com/kikiluvv/clipsplit/internal/overlays"
)

// FilterBuilder helps construct ffmpeg video filter chains
type FilterBuilder struct {
	filters  []string
	warnings []error
	err      error
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Transpose adds a transpose filter; nil leaves the chain unchanged
func (fb *FilterBuilder) Transpose(code *int) *FilterBuilder {
	if code == nil || fb.err != nil {
		return fb
	}
	f, err := overlays.Transpose(*code)
	if err != nil {
		fb.err = err
		return fb
	}
	fb.filters = append(fb.filters, f)
	return fb
}

// Overlay adds the drawtext filters for o, top line first
func (fb *FilterBuilder) Overlay(o *overlays.TextOverlay, fontDirs []string) *FilterBuilder {
	if o == nil || o.Empty() || fb.err != nil {
		return fb
	}
	filters, warnings, err := o.Filters(fontDirs)
	if err != nil {
		fb.err = err
		return fb
	}
	fb.filters = append(fb.filters, filters...)
	fb.warnings = append(fb.warnings, warnings...)
	return fb
}

// Warnings returns the non-fatal font substitutions made while building
func (fb *FilterBuilder) Warnings() []error {
	return fb.warnings
}

// BuildAll returns all filters as a slice, or the first error hit while building
func (fb *FilterBuilder) BuildAll() ([]string, error) {
	if fb.err != nil {
		return nil, fb.err
	}
	return fb.filters, nil
}
