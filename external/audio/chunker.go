package audio

import (
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/audio"
	goaudio "github.com/go-audio/audio"
)

// chunker frames captured samples into fixed-duration chunks. The first
// chunk of a recording carries the streaming WAV header.
type chunker struct {
	format          *goaudio.Format
	samplesPerChunk int
	pending         []int
	started         bool
}

func newChunker(format *goaudio.Format, interval time.Duration) *chunker {
	frames := int(int64(format.SampleRate) * interval.Milliseconds() / 1000)
	if frames < 1 {
		frames = 1
	}
	return &chunker{
		format:          format,
		samplesPerChunk: frames * format.NumChannels,
	}
}

// push buffers samples and returns every chunk that is now complete.
func (c *chunker) push(samples []int) [][]byte {
	c.pending = append(c.pending, samples...)
	var out [][]byte
	for len(c.pending) >= c.samplesPerChunk {
		out = append(out, c.frame(c.pending[:c.samplesPerChunk]))
		c.pending = c.pending[c.samplesPerChunk:]
	}
	return out
}

// flush returns the buffered remainder as a final chunk. A recording that
// produced no samples still gets a header-only chunk.
func (c *chunker) flush() []byte {
	if len(c.pending) == 0 && c.started {
		return nil
	}
	chunk := c.frame(c.pending)
	c.pending = nil
	return chunk
}

func (c *chunker) frame(samples []int) []byte {
	pcm := audio.EncodePCM16(samples)
	if c.started {
		return pcm
	}
	c.started = true
	return append(audio.StreamHeader(c.format), pcm...)
}
