package iso9660

import (
	"encoding/binary"
	"io"

	"github.com/bgrewell/disc-kit/pkg/filesystem"
)

// PathTableEntry is one record of the little-endian (type L) path table
// (ECMA-119 9.4).
type PathTableEntry struct {
	NameLen       uint8
	ExtAttrLength uint8
	Extent        uint32
	ParentIndex   uint16
	RawName       []byte
}

// UnmarshalPathTableEntry parses a path table entry from the start of data
// and returns it with its unpadded length.
func UnmarshalPathTableEntry(data []byte) (*PathTableEntry, int, error) {
	if len(data) < 8 {
		return nil, 0, filesystem.Malformed("path table entry needs 8 bytes, have %d", len(data))
	}

	entry := &PathTableEntry{
		NameLen:       data[0],
		ExtAttrLength: data[1],
		Extent:        binary.LittleEndian.Uint32(data[2:6]),
		ParentIndex:   binary.LittleEndian.Uint16(data[6:8]),
	}
	end := 8 + int(entry.NameLen)
	if end > len(data) {
		return nil, 0, filesystem.Malformed("path table name of %d bytes overflows remaining %d bytes", entry.NameLen, len(data)-8)
	}
	entry.RawName = append([]byte{}, data[8:end]...)

	return entry, end, nil
}

// pathTable reads and decodes the type L path table into a map of absolute
// directory paths to their extents. Entries are indexed 1-based; the first
// entry is the root and every other entry joins onto its parent's path.
func (fsys *FS) pathTable() (map[string]uint32, error) {
	if fsys.pathTableMap != nil {
		return fsys.pathTableMap, nil
	}

	size := int(fsys.pvd.PathTableSize)
	table := make([]byte, size)
	offset := int64(fsys.pvd.TypeLPathTable) * fsys.blockSize
	if _, err := io.ReadFull(io.NewSectionReader(fsys.r, offset, int64(size)), table); err != nil {
		return nil, filesystem.Malformed("reading path table at offset %d: %v", offset, err)
	}

	paths := make(map[string]uint32)
	byIndex := make(map[uint16]string)

	pos := 0
	for index := uint16(1); pos < size; index++ {
		entry, length, err := UnmarshalPathTableEntry(table[pos:])
		if err != nil {
			return nil, err
		}

		if index == 1 {
			byIndex[1] = "/"
			paths["/"] = entry.Extent
		} else {
			if entry.ParentIndex >= index {
				return nil, filesystem.Malformed("path table entry %d references parent %d", index, entry.ParentIndex)
			}
			parent, ok := byIndex[entry.ParentIndex]
			if !ok {
				return nil, filesystem.Malformed("path table entry %d references unknown parent %d", index, entry.ParentIndex)
			}

			name, err := fsys.decode(entry.RawName)
			if err != nil {
				return nil, err
			}

			path := parent + "/" + name
			if parent == "/" {
				path = "/" + name
			}
			byIndex[index] = path
			paths[path] = entry.Extent
		}

		pos += length
		if length%2 != 0 {
			pos++
		}
	}

	fsys.pathTableMap = paths
	return paths, nil
}
