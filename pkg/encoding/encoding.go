package encoding

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/bgrewell/disc-kit/pkg/filesystem"
	"golang.org/x/text/encoding/unicode"
)

// UnmarshalUint32LSBMSB decodes an 8-byte field that stores a uint32 in both
// little- and big-endian order (ECMA-119 7.3.3). Both halves must agree.
func UnmarshalUint32LSBMSB(data []byte) (uint32, error) {
	if len(data) < 8 {
		return 0, filesystem.Malformed("both-byte-order uint32 needs 8 bytes, have %d", len(data))
	}
	little := binary.LittleEndian.Uint32(data[0:4])
	big := binary.BigEndian.Uint32(data[4:8])
	if little != big {
		return 0, filesystem.Malformed("mismatched both-byte orders: little-endian value %d != big-endian value %d", little, big)
	}
	return little, nil
}

// UnmarshalUint16LSBMSB decodes a 4-byte field that stores a uint16 in both
// little- and big-endian order (ECMA-119 7.2.3). Both halves must agree.
func UnmarshalUint16LSBMSB(data []byte) (uint16, error) {
	if len(data) < 4 {
		return 0, filesystem.Malformed("both-byte-order uint16 needs 4 bytes, have %d", len(data))
	}
	little := binary.LittleEndian.Uint16(data[0:2])
	big := binary.BigEndian.Uint16(data[2:4])
	if little != big {
		return 0, filesystem.Malformed("mismatched both-byte orders: little-endian value %d != big-endian value %d", little, big)
	}
	return little, nil
}

// ShortTimestampLength is the recording date and time of a directory record
// (ECMA-119 9.1.5): six unsigned byte fields plus a signed offset byte.
const ShortTimestampLength = 7

// UnmarshalShortTimestamp decodes the 7-byte directory record timestamp. The
// year is relative to 1900 and the offset counts 15-minute intervals from
// UTC.
func UnmarshalShortTimestamp(data []byte) (time.Time, error) {
	if len(data) < ShortTimestampLength {
		return time.Time{}, filesystem.Malformed("short timestamp needs 7 bytes, have %d", len(data))
	}
	offset := int(int8(data[6]))
	zone := time.FixedZone("", offset*15*60)
	return time.Date(
		1900+int(data[0]),
		time.Month(data[1]),
		int(data[2]),
		int(data[3]),
		int(data[4]),
		int(data[5]),
		0,
		zone,
	), nil
}

// DecTimestampLength is the volume descriptor date and time (ECMA-119
// 8.4.26.1): sixteen ASCII digits plus a signed offset byte.
const DecTimestampLength = 17

// UnmarshalDecTimestamp decodes the 17-byte ASCII "YYYYMMDDhhmmsscc" form
// used by volume descriptors and by Rock Ridge long-form TF stamps. All-zero
// digits decode to the zero time.
func UnmarshalDecTimestamp(data []byte) (time.Time, error) {
	if len(data) < DecTimestampLength {
		return time.Time{}, filesystem.Malformed("dec timestamp needs 17 bytes, have %d", len(data))
	}

	digits := string(data[:16])
	if digits == strings.Repeat("0", 16) {
		return time.Time{}, nil
	}

	var year, month, day, hour, minute, second, centi int
	if _, err := fmt.Sscanf(digits, "%4d%2d%2d%2d%2d%2d%2d",
		&year, &month, &day, &hour, &minute, &second, &centi); err != nil {
		return time.Time{}, filesystem.Malformed("dec timestamp digits %q: %v", digits, err)
	}

	offset := int(int8(data[16]))
	zone := time.FixedZone("", offset*15*60)
	return time.Date(year, time.Month(month), day, hour, minute, second, centi*10_000_000, zone), nil
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// Decoder converts raw identifier bytes from the on-disc encoding.
type Decoder func(data []byte) (string, error)

// Identity decodes single-byte identifiers as-is.
func Identity(data []byte) (string, error) {
	return string(data), nil
}

// UTF16BE decodes UCS-2 big-endian identifiers, as recorded by Joliet
// supplementary volumes and 16-bit OSTA compressed unicode.
func UTF16BE(data []byte) (string, error) {
	decoded, err := utf16be.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", filesystem.ErrBadEncoding, err)
	}
	return string(decoded), nil
}
