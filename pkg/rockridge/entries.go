package rockridge

import (
	"time"

	"github.com/bgrewell/disc-kit/pkg/encoding"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
)

// Signatures defined by the Rock Ridge Interchange Protocol (IEEE P1282).
const (
	SigPosix         = "PX" // POSIX file attributes
	SigDeviceNumber  = "PN" // device numbers for block/character nodes
	SigSymlink       = "SL" // symbolic link components
	SigAlternateName = "NM" // alternate (long) name
	SigChildLink     = "CL" // relocated directory: location of the real child
	SigParentLink    = "PL" // relocated directory: location of the real parent
	SigRelocated     = "RE" // marks the placeholder inside rr_moved
	SigTimestamps    = "TF" // timestamp vector
	SigSparseFile    = "SF" // sparse file metadata
)

// PosixEntry carries the payload of a PX entry (RRIP 4.1.1).
type PosixEntry struct {
	Mode   uint32
	Nlinks uint32
	UID    uint32
	GID    uint32
}

// UnmarshalPosixEntry parses a PX payload. The four fields are recorded in
// both byte orders, 8 bytes each: mode, link count, uid, gid in that order.
func UnmarshalPosixEntry(data []byte) (*PosixEntry, error) {
	if len(data) < 32 {
		return nil, filesystem.Malformed("PX entry needs 32 bytes, have %d", len(data))
	}
	entry := &PosixEntry{}
	var err error
	if entry.Mode, err = encoding.UnmarshalUint32LSBMSB(data[0:8]); err != nil {
		return nil, err
	}
	if entry.Nlinks, err = encoding.UnmarshalUint32LSBMSB(data[8:16]); err != nil {
		return nil, err
	}
	if entry.UID, err = encoding.UnmarshalUint32LSBMSB(data[16:24]); err != nil {
		return nil, err
	}
	if entry.GID, err = encoding.UnmarshalUint32LSBMSB(data[24:32]); err != nil {
		return nil, err
	}
	return entry, nil
}

// Name flag bits of an NM entry (RRIP 4.1.4).
const (
	nameContinue = 0x01
	nameCurrent  = 0x02
	nameParent   = 0x04
)

// NameEntry carries the payload of an NM entry.
type NameEntry struct {
	Continue bool
	Current  bool
	Parent   bool
	// Name holds the raw name content; decoding is up to the volume.
	Name []byte
}

// UnmarshalNameEntry parses an NM payload: one flag byte followed by name
// content.
func UnmarshalNameEntry(data []byte) (*NameEntry, error) {
	if len(data) < 1 {
		return nil, filesystem.Malformed("NM entry needs at least a flag byte")
	}
	flags := data[0]
	return &NameEntry{
		Continue: flags&nameContinue != 0,
		Current:  flags&nameCurrent != 0,
		Parent:   flags&nameParent != 0,
		Name:     data[1:],
	}, nil
}

// UnmarshalChildLink parses a CL (or PL) payload: one both-byte-order block
// number.
func UnmarshalChildLink(data []byte) (uint32, error) {
	if len(data) < 8 {
		return 0, filesystem.Malformed("CL entry needs 8 bytes, have %d", len(data))
	}
	return encoding.UnmarshalUint32LSBMSB(data[0:8])
}

// Symlink component flag bits (RRIP 4.1.3.1).
const (
	componentContinue = 0x01
	componentCurrent  = 0x02
	componentParent   = 0x04
	componentRoot     = 0x08
)

// SymlinkTarget reconstructs a symlink target from the payloads of every SL
// entry of a record, in order. Each payload carries a continuation flag byte
// followed by flagged, length-prefixed components.
func SymlinkTarget(payloads [][]byte) (string, error) {
	target := ""
	for _, payload := range payloads {
		if len(payload) < 1 {
			return "", filesystem.Malformed("SL entry needs at least a flag byte")
		}
		components := payload[1:]

		offset := 0
		for offset < len(components) {
			if len(components)-offset < 2 {
				return "", filesystem.Malformed("truncated symlink component: %d trailing bytes", len(components)-offset)
			}
			flags := components[offset]
			length := int(components[offset+1])
			if offset+2+length > len(components) {
				return "", filesystem.Malformed("symlink component of %d bytes overflows entry", length)
			}
			content := components[offset+2 : offset+2+length]
			offset += 2 + length

			switch {
			case flags&componentParent != 0:
				target += "../"
			case flags&componentRoot != 0:
				target = "/" + target
			case flags&componentCurrent != 0:
				target += "./"
			default:
				target += string(content)
				if offset < len(components) && flags&componentContinue == 0 {
					// Another component follows in this entry.
					target += "/"
				}
			}
		}
	}
	return target, nil
}

// TimestampType orders the stamps a TF entry can carry (RRIP 4.1.6).
type TimestampType int

const (
	TimestampCreation TimestampType = iota
	TimestampModify
	TimestampAccess
	TimestampAttributes
	TimestampBackup
	TimestampExpiration
	TimestampEffective

	timestampCount
)

// TF flag bits; bit positions match the TimestampType order.
const tfLongForm = 0x80

// UnmarshalTimestamps parses a TF payload. The flag byte selects which
// stamps are recorded; only enabled stamps appear in the value array, in
// flag-bit order. The long form bit switches the 7-byte layout for the
// 17-byte digit layout.
func UnmarshalTimestamps(data []byte) (map[TimestampType]time.Time, error) {
	if len(data) < 1 {
		return nil, filesystem.Malformed("TF entry needs at least a flag byte")
	}
	flags := data[0]
	values := data[1:]

	stampLen := encoding.ShortTimestampLength
	if flags&tfLongForm != 0 {
		stampLen = encoding.DecTimestampLength
	}

	stamps := make(map[TimestampType]time.Time)
	offset := 0
	for ts := TimestampCreation; ts < timestampCount; ts++ {
		if flags&(1<<uint(ts)) == 0 {
			continue
		}
		if offset+stampLen > len(values) {
			return nil, filesystem.Malformed("TF value array of %d bytes is short for its flags", len(values))
		}

		var stamp time.Time
		var err error
		if flags&tfLongForm != 0 {
			stamp, err = encoding.UnmarshalDecTimestamp(values[offset : offset+stampLen])
		} else {
			stamp, err = encoding.UnmarshalShortTimestamp(values[offset : offset+stampLen])
		}
		if err != nil {
			return nil, err
		}
		stamps[ts] = stamp
		offset += stampLen
	}

	return stamps, nil
}
