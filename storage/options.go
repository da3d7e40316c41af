package storage

import (
	"github.com/pallas-trace/pallas/compress"
	"github.com/pallas-trace/pallas/internal/options"
)

// writeOptions configures the byte-level codecs Write applies to the
// per-event attribute log and the duration side-files. Neither choice
// changes the numeric codec pipeline (package codec); both wrap its
// already-encoded output.
type writeOptions struct {
	AttributeCodec compress.Algorithm
	SideFileCodec  compress.Algorithm
}

func defaultWriteOptions() writeOptions {
	return writeOptions{
		AttributeCodec: compress.S2,
		SideFileCodec:  compress.None,
	}
}

// WithAttributeCompression overrides the codec applied to each event's
// attribute_buffer blob before it's written inline to event.pallas.
// Defaults to compress.S2, chosen for decompression speed over ratio
// since attribute lists are read frequently.
func WithAttributeCompression(algo compress.Algorithm) options.Option[*writeOptions] {
	return options.NoError(func(o *writeOptions) { o.AttributeCodec = algo })
}

// WithSideFileCompression sets the transport compression applied to the
// duration side-files (event_durations.dat, sequence_durations.dat) on
// top of the codec pipeline's own encoding. Defaults to compress.None;
// compress.LZ4 is the intended opt-in choice.
func WithSideFileCompression(algo compress.Algorithm) options.Option[*writeOptions] {
	return options.NoError(func(o *writeOptions) { o.SideFileCodec = algo })
}
