package stream

import (
	"fmt"
	"io"
)

// Concat presents an ordered list of segments as one contiguous read-seekable
// stream. It is used for files whose contents are recorded as multiple
// extents; each segment is typically an io.SectionReader over the disc image.
type Concat struct {
	segments []io.ReaderAt
	sizes    []int64
	starts   []int64
	size     int64
	pos      int64
}

// NewConcat builds a Concat from segments and their sizes. The two slices
// must have equal length.
func NewConcat(segments []io.ReaderAt, sizes []int64) (*Concat, error) {
	if len(segments) != len(sizes) {
		return nil, fmt.Errorf("segment/size count mismatch: %d != %d", len(segments), len(sizes))
	}
	starts := make([]int64, len(segments))
	var total int64
	for i, size := range sizes {
		if size < 0 {
			return nil, fmt.Errorf("negative segment size %d at index %d", size, i)
		}
		starts[i] = total
		total += size
	}
	return &Concat{
		segments: segments,
		sizes:    sizes,
		starts:   starts,
		size:     total,
	}, nil
}

// Size returns the total length of the stream.
func (c *Concat) Size() int64 {
	return c.size
}

func (c *Concat) Read(p []byte) (int, error) {
	n, err := c.ReadAt(p, c.pos)
	c.pos += int64(n)
	return n, err
}

func (c *Concat) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= c.size {
		return 0, io.EOF
	}

	total := 0
	for i := range c.segments {
		if total == len(p) {
			break
		}
		segEnd := c.starts[i] + c.sizes[i]
		if off >= segEnd {
			continue
		}

		segOff := off - c.starts[i]
		want := int64(len(p) - total)
		if remain := c.sizes[i] - segOff; want > remain {
			want = remain
		}

		n, err := c.segments[i].ReadAt(p[total:total+int(want)], segOff)
		total += n
		off += int64(n)
		if err != nil && err != io.EOF {
			return total, err
		}
		if int64(n) < want {
			return total, io.ErrUnexpectedEOF
		}
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

func (c *Concat) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = c.pos + offset
	case io.SeekEnd:
		next = c.size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative position %d", next)
	}
	c.pos = next
	return next, nil
}
