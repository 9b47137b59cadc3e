package iso9660

import (
	"time"

	"github.com/bgrewell/disc-kit/pkg/consts"
	"github.com/bgrewell/disc-kit/pkg/encoding"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
)

// File flag bits (ECMA-119 9.1.6).
const (
	FlagHidden         = 0x01
	FlagDirectory      = 0x02
	FlagAssociated     = 0x04
	FlagRecord         = 0x08
	FlagProtection     = 0x10
	FlagMultipleExtent = 0x80
)

// DirectoryRecord is one variable-length directory record (ECMA-119 9.1).
type DirectoryRecord struct {
	// Length covers the whole record, system use area included.
	Length uint8
	// ExtAttrLength is the size in blocks of the extended attribute record
	// preceding the file data. Non-zero values are recognised but not
	// supported.
	ExtAttrLength uint8
	// Extent is the logical block number of the first block of the file
	// section.
	Extent uint32
	// Size is the data length of the file section in bytes.
	Size uint32
	// Recorded is the single recording timestamp of the record.
	Recorded time.Time
	// Flags is the file flags bit-field.
	Flags uint8
	// FileUnitSize and Interleave are non-zero only for interleaved files.
	FileUnitSize uint8
	Interleave   uint8
	// VolumeSequenceNumber is the volume this extent is recorded on.
	VolumeSequenceNumber uint16
	// NameLen is the length of the file identifier.
	NameLen uint8
	// RawName holds the undecoded file identifier bytes.
	RawName []byte
	// SystemUse holds the trailing system use area, padding byte included
	// when the identifier length is even.
	SystemUse []byte
}

// IsDir reports whether the record identifies a directory.
func (rec *DirectoryRecord) IsDir() bool {
	return rec.Flags&FlagDirectory != 0
}

// UnmarshalDirectoryRecord parses a directory record from the start of data.
// The slice may extend past the record; only Length bytes are consumed.
func UnmarshalDirectoryRecord(data []byte) (*DirectoryRecord, error) {
	if len(data) < consts.ISO9660_DIR_RECORD_MIN_LENGTH {
		return nil, filesystem.Malformed("directory record needs at least %d bytes, have %d", consts.ISO9660_DIR_RECORD_MIN_LENGTH, len(data))
	}

	rec := &DirectoryRecord{
		Length:        data[0],
		ExtAttrLength: data[1],
		Flags:         data[25],
		FileUnitSize:  data[26],
		Interleave:    data[27],
		NameLen:       data[32],
	}
	if int(rec.Length) < consts.ISO9660_DIR_RECORD_MIN_LENGTH {
		return nil, filesystem.Malformed("directory record length %d is below the 34-byte minimum", rec.Length)
	}
	if int(rec.Length) > len(data) {
		return nil, filesystem.Malformed("directory record length %d exceeds available %d bytes", rec.Length, len(data))
	}

	var err error
	if rec.Extent, err = encoding.UnmarshalUint32LSBMSB(data[2:10]); err != nil {
		return nil, err
	}
	if rec.Size, err = encoding.UnmarshalUint32LSBMSB(data[10:18]); err != nil {
		return nil, err
	}
	if rec.Recorded, err = encoding.UnmarshalShortTimestamp(data[18:25]); err != nil {
		return nil, err
	}
	if rec.VolumeSequenceNumber, err = encoding.UnmarshalUint16LSBMSB(data[28:32]); err != nil {
		return nil, err
	}

	nameEnd := 33 + int(rec.NameLen)
	if nameEnd > int(rec.Length) {
		return nil, filesystem.Malformed("file identifier length %d overflows record of %d bytes", rec.NameLen, rec.Length)
	}
	// Copy both variable tails: the backing buffer is typically reused by
	// directory iteration.
	rec.RawName = append([]byte{}, data[33:nameEnd]...)
	rec.SystemUse = append([]byte{}, data[nameEnd:rec.Length]...)

	return rec, nil
}
