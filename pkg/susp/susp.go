// Package susp walks the System Use Areas of ISO9660 directory records per
// the System Use Sharing Protocol (IEEE P1281), collecting tagged entries for
// extensions such as Rock Ridge to interpret.
package susp

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bgrewell/disc-kit/pkg/consts"
	"github.com/bgrewell/disc-kit/pkg/encoding"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
	"github.com/bgrewell/disc-kit/pkg/iso9660"
)

// Well-known signatures defined by SUSP itself.
const (
	SigSharingProtocol  = "SP"
	SigContinuationArea = "CE"
	SigExtensionsRef    = "ER"
	SigTerminator       = "ST"
	SigPadding          = "PD"
)

// Entry is one tagged system use entry. Data excludes the 4-byte header.
type Entry struct {
	Signature string
	Length    uint8
	Version   uint8
	Data      []byte
}

// ContinuationArea points at further system use entries recorded outside the
// directory record.
type ContinuationArea struct {
	Extent uint32
	Offset uint32
	Size   uint32
}

// UnmarshalContinuationArea parses the payload of a CE entry.
func UnmarshalContinuationArea(data []byte) (*ContinuationArea, error) {
	if len(data) < 24 {
		return nil, filesystem.Malformed("continuation area entry needs 24 bytes, have %d", len(data))
	}
	ce := &ContinuationArea{}
	var err error
	if ce.Extent, err = encoding.UnmarshalUint32LSBMSB(data[0:8]); err != nil {
		return nil, err
	}
	if ce.Offset, err = encoding.UnmarshalUint32LSBMSB(data[8:16]); err != nil {
		return nil, err
	}
	if ce.Size, err = encoding.UnmarshalUint32LSBMSB(data[16:24]); err != nil {
		return nil, err
	}
	return ce, nil
}

// ExtensionsRef identifies the extension specification in use, recorded on
// the first directory record of the root directory.
type ExtensionsRef struct {
	Identifier  string
	Description string
	Source      string
	Version     uint8
}

// UnmarshalExtensionsRef parses the payload of an ER entry.
func UnmarshalExtensionsRef(data []byte) (*ExtensionsRef, error) {
	if len(data) < 4 {
		return nil, filesystem.Malformed("extensions reference entry needs 4 bytes, have %d", len(data))
	}
	lenID, lenDes, lenSrc := int(data[0]), int(data[1]), int(data[2])
	if 4+lenID+lenDes+lenSrc > len(data) {
		return nil, filesystem.Malformed("extensions reference lengths overflow entry of %d bytes", len(data))
	}
	return &ExtensionsRef{
		Version:     data[3],
		Identifier:  string(data[4 : 4+lenID]),
		Description: string(data[4+lenID : 4+lenID+lenDes]),
		Source:      string(data[4+lenID+lenDes : 4+lenID+lenDes+lenSrc]),
	}, nil
}

// Area holds every system use entry of one directory record, keyed by
// signature. Order within a signature follows scan order.
type Area struct {
	entries map[string][]*Entry
}

// Has reports whether at least one entry carries the signature.
func (a *Area) Has(signature string) bool {
	return len(a.entries[signature]) > 0
}

// Entries returns the entries carrying the signature, in scan order.
func (a *Area) Entries(signature string) []*Entry {
	return a.entries[signature]
}

// Scan collects the system use entries of a directory record, following
// continuation areas through the byte source. The number of continuation
// areas followed is bounded by limit; values below one fall back to the
// default. blockSize is the logical block size used to locate continuation
// extents.
func Scan(r io.ReaderAt, blockSize int64, rec *iso9660.DirectoryRecord, limit int) (*Area, error) {
	if limit < 1 {
		limit = consts.SUSP_DEFAULT_CONTINUATION_LIMIT
	}

	data := rec.SystemUse
	initial := 0
	if bytes.HasPrefix(data, []byte(consts.SUSP_MAGIC)) {
		// Skip the whole 7-byte SP entry.
		initial = len(consts.SUSP_MAGIC) + 1
	}
	if rec.NameLen%2 == 0 {
		// A padding byte keeps the system use area 2-aligned relative to
		// the file identifier.
		initial++
	}
	if initial > len(data) {
		return &Area{entries: map[string][]*Entry{}}, nil
	}

	area := &Area{entries: make(map[string][]*Entry)}

	continuations := 0
	buffers := [][]byte{data[initial:]}
	for len(buffers) > 0 {
		buf := buffers[0]
		buffers = buffers[1:]

		offset := 0
		for offset < len(buf) {
			if buf[offset] == 0x00 {
				// The remainder of the area is padding.
				break
			}
			if len(buf)-offset < 4 {
				return nil, filesystem.Malformed("truncated system use entry: %d trailing bytes", len(buf)-offset)
			}

			length := int(buf[offset+2])
			if length < 4 {
				return nil, filesystem.Malformed("system use entry length %d is below the 4-byte header", length)
			}
			if offset+length > len(buf) {
				return nil, filesystem.Malformed("system use entry length %d overflows area of %d bytes", length, len(buf))
			}

			entry := &Entry{
				Signature: string(buf[offset : offset+2]),
				Length:    uint8(length),
				Version:   buf[offset+3],
				Data:      append([]byte{}, buf[offset+4:offset+length]...),
			}
			area.entries[entry.Signature] = append(area.entries[entry.Signature], entry)

			if entry.Signature == SigContinuationArea {
				continuations++
				if continuations > limit {
					return nil, filesystem.Malformed("more than %d chained continuation areas", limit)
				}

				ce, err := UnmarshalContinuationArea(entry.Data)
				if err != nil {
					return nil, err
				}

				next := make([]byte, ce.Size)
				pos := int64(ce.Extent)*blockSize + int64(ce.Offset)
				if _, err := io.ReadFull(io.NewSectionReader(r, pos, int64(ce.Size)), next); err != nil {
					return nil, filesystem.Malformed("reading continuation area at offset %d: %v", pos, err)
				}
				buffers = append(buffers, next)
			}

			offset += length
		}
	}

	return area, nil
}

// String renders an entry for diagnostics.
func (e *Entry) String() string {
	return fmt.Sprintf("%s v%d (%d bytes)", e.Signature, e.Version, len(e.Data))
}
