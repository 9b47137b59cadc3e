// Package testimage builds small synthetic disc images in memory for tests.
// The builders produce byte-exact ISO9660, Joliet, Rock Ridge and UDF
// structures without shelling out to mastering tools.
package testimage

import (
	"encoding/binary"
	"fmt"
)

// Image is a sparse sector-addressed byte buffer.
type Image struct {
	SectorSize int64
	sectors    map[int64][]byte
	maxSector  int64
}

// NewImage creates an empty image with the given sector size.
func NewImage(sectorSize int64) *Image {
	return &Image{SectorSize: sectorSize, sectors: make(map[int64][]byte)}
}

// PutSector stores data at a sector. Data longer than one sector spills
// into the following sectors.
func (img *Image) PutSector(sector int64, data []byte) {
	for len(data) > 0 {
		chunk := data
		if int64(len(chunk)) > img.SectorSize {
			chunk = chunk[:img.SectorSize]
		}
		buf := make([]byte, img.SectorSize)
		copy(buf, chunk)
		img.sectors[sector] = buf
		if sector > img.maxSector {
			img.maxSector = sector
		}
		sector++
		data = data[len(chunk):]
	}
}

// Bytes flattens the image, zero-filling unwritten sectors.
func (img *Image) Bytes() []byte {
	out := make([]byte, (img.maxSector+1)*img.SectorSize)
	for sector, data := range img.sectors {
		copy(out[sector*img.SectorSize:], data)
	}
	return out
}

// PutU16LSBMSB writes v in both byte orders at off.
func PutU16LSBMSB(buf []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(buf[off:], v)
	binary.BigEndian.PutUint16(buf[off+2:], v)
}

// PutU32LSBMSB writes v in both byte orders at off.
func PutU32LSBMSB(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:], v)
	binary.BigEndian.PutUint32(buf[off+4:], v)
}

// U32LSBMSB returns the 8-byte both-byte-order form of v.
func U32LSBMSB(v uint32) []byte {
	out := make([]byte, 8)
	PutU32LSBMSB(out, 0, v)
	return out
}

// PadTo right-pads data with fill up to size, panicking on overflow so a
// broken fixture fails loudly.
func PadTo(data []byte, size int, fill byte) []byte {
	if len(data) > size {
		panic(fmt.Sprintf("field of %d bytes overflows %d-byte target", len(data), size))
	}
	out := make([]byte, size)
	for i := range out {
		out[i] = fill
	}
	copy(out, data)
	return out
}

// UTF16BEBytes encodes s as UCS-2 big-endian.
func UTF16BEBytes(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r>>8), byte(r))
	}
	return out
}

// ShortTime builds the 7-byte directory record timestamp. offset counts
// 15-minute intervals from UTC.
func ShortTime(year, month, day, hour, minute, second int, offset int8) []byte {
	return []byte{
		byte(year - 1900), byte(month), byte(day),
		byte(hour), byte(minute), byte(second), byte(offset),
	}
}
