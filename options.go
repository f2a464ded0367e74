package gpubuf

import (
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
)

// DefaultChunkAlignment is the byte alignment of staging areas within a
// chunk. Buffer copies require offsets that are multiples of 4.
const DefaultChunkAlignment = 8

// maxChunkAlignment bounds WithChunkAlignment.
const maxChunkAlignment = 1 << 16

// maxChunkLimit bounds WithMaxChunkSize so chunk arithmetic cannot
// overflow.
const maxChunkLimit = math.MaxInt / 2

// FactoryOption configures a StagingFactory during creation.
//
// Example:
//
//	f := gpubuf.NewStagingFactory(dev,
//	    gpubuf.WithChunkAlignment(256),
//	    gpubuf.WithFactoryLabel("frame"))
type FactoryOption func(*factoryOptions)

// factoryOptions holds optional configuration for StagingFactory creation.
type factoryOptions struct {
	alignment uint64
	label     string
	maxChunk  uint64
}

// defaultFactoryOptions returns the default factory options.
func defaultFactoryOptions() factoryOptions {
	return factoryOptions{
		alignment: DefaultChunkAlignment,
		label:     "staging",
		maxChunk:  gputypes.DefaultLimits().MaxBufferSize,
	}
}

// WithChunkAlignment sets the alignment of staging areas within a chunk.
// Panics unless align is a power of two between 4 and 65536.
func WithChunkAlignment(align uint64) FactoryOption {
	if align < 4 || align > maxChunkAlignment || align&(align-1) != 0 {
		panic(fmt.Errorf("%w: %d", ErrInvalidAlignment, align))
	}
	return func(o *factoryOptions) {
		o.alignment = align
	}
}

// WithMaxChunkSize sets the largest chunk a belt may allocate, and with it
// the largest single staging area and registered chunk size. The default
// is the WebGPU default MaxBufferSize (256 MiB); raise it to the device's
// actual limit when larger uploads are needed.
// Panics with ErrInvalidChunkSize if n is zero or implausibly large.
func WithMaxChunkSize(n uint64) FactoryOption {
	if n == 0 || n > maxChunkLimit {
		panic(fmt.Errorf("%w: maximum %d", ErrInvalidChunkSize, n))
	}
	return func(o *factoryOptions) {
		o.maxChunk = n
	}
}

// WithFactoryLabel sets the prefix of chunk buffer labels. Chunks are
// labelled "<prefix>/<belt>#<n>".
func WithFactoryLabel(prefix string) FactoryOption {
	return func(o *factoryOptions) {
		o.label = prefix
	}
}
