package udf

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bgrewell/disc-kit/pkg/consts"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
)

// Partition resolves logical block extents to byte ranges of the image.
// Each partition reference number of the logical volume maps to exactly one
// Partition.
type Partition interface {
	// OpenExtent returns a stream over length bytes starting at a logical
	// block of this partition.
	OpenExtent(block uint32, length uint32) (*io.SectionReader, error)
}

// PhysicalPartition is a type 1 map: logical blocks translate directly onto
// a physical partition of the volume.
type PhysicalPartition struct {
	r          io.ReaderAt
	sectorSize int64
	Start      uint32
	Length     uint32
}

func (p *PhysicalPartition) OpenExtent(block uint32, length uint32) (*io.SectionReader, error) {
	offset := (int64(p.Start) + int64(block)) * p.sectorSize
	return io.NewSectionReader(p.r, offset, int64(length)), nil
}

// SparablePartition is a sparable partition: structurally identical to a
// physical partition plus a table of relocated packets. The table is parsed
// so its entries can be recognised, but reads touching a relocated packet
// are refused.
type SparablePartition struct {
	PhysicalPartition
	PacketLength uint16
	// Remap maps original packet locations to their spared locations.
	Remap map[uint32]uint32
}

func (p *SparablePartition) OpenExtent(block uint32, length uint32) (*io.SectionReader, error) {
	if len(p.Remap) > 0 && p.PacketLength > 0 {
		packet := uint32(p.PacketLength)
		first := (p.Start + block) / packet * packet
		sectors := (length + uint32(p.sectorSize) - 1) / uint32(p.sectorSize)
		if sectors == 0 {
			sectors = 1
		}
		last := (p.Start + block + sectors - 1) / packet * packet
		for pkt := first; pkt <= last; pkt += packet {
			if _, ok := p.Remap[pkt]; ok {
				return nil, fmt.Errorf("%w: packet %d", filesystem.ErrSparableRemap, pkt)
			}
			for _, mapped := range p.Remap {
				if mapped == pkt {
					return nil, fmt.Errorf("%w: packet %d", filesystem.ErrSparableRemap, pkt)
				}
			}
		}
	}
	return p.PhysicalPartition.OpenExtent(block, length)
}

// VirtualPartition is recognised but unreadable.
type VirtualPartition struct {
	Number uint16
}

func (p *VirtualPartition) OpenExtent(block uint32, length uint32) (*io.SectionReader, error) {
	return nil, filesystem.ErrVirtualPartition
}

// MetadataPartition is recognised but unreadable.
type MetadataPartition struct {
	Number uint16
}

func (p *MetadataPartition) OpenExtent(block uint32, length uint32) (*io.SectionReader, error) {
	return nil, filesystem.ErrMetadataPartition
}

// parsePartitionMaps walks the partition map table of the logical volume
// descriptor and builds one Partition per map entry, keyed by partition
// reference number (the 0-based position in the table).
func (fsys *FS) parsePartitionMaps(lvd *LogicalVolumeDescriptor, descriptors map[uint16]*PartitionDescriptor) (map[uint16]Partition, error) {
	partitions := make(map[uint16]Partition)

	maps := lvd.PartitionMaps
	pos := 0
	for ref := uint16(0); ref < uint16(lvd.NumberOfPartitionMaps); ref++ {
		if pos+2 > len(maps) {
			return nil, filesystem.Malformed("partition map table truncated at entry %d", ref)
		}
		mapType := maps[pos]
		mapLength := int(maps[pos+1])
		if mapLength < 2 || pos+mapLength > len(maps) {
			return nil, filesystem.Malformed("partition map entry %d has invalid length %d", ref, mapLength)
		}
		entry := maps[pos : pos+mapLength]

		switch mapType {
		case 1:
			if mapLength < 6 {
				return nil, filesystem.Malformed("type 1 partition map needs 6 bytes, have %d", mapLength)
			}
			number := binary.LittleEndian.Uint16(entry[4:6])
			pd, ok := descriptors[number]
			if !ok {
				return nil, filesystem.Malformed("partition map references unknown partition %d", number)
			}
			partitions[ref] = &PhysicalPartition{
				r:          fsys.r,
				sectorSize: fsys.sectorSize,
				Start:      pd.StartingLocation,
				Length:     pd.Length,
			}
		case 2:
			if mapLength < 40 {
				return nil, filesystem.Malformed("type 2 partition map needs 40 bytes, have %d", mapLength)
			}
			identifier := unmarshalEntityID(entry[4:36])
			number := binary.LittleEndian.Uint16(entry[38:40])

			switch identifier.Identifier {
			case consts.UDF_PARTITION_SPARABLE:
				partition, err := fsys.parseSparablePartition(entry, descriptors[number])
				if err != nil {
					return nil, err
				}
				partitions[ref] = partition
			case consts.UDF_PARTITION_VIRTUAL:
				fsys.log.Warn("virtual partition present; reads from it will fail", "partition", number)
				partitions[ref] = &VirtualPartition{Number: number}
			case consts.UDF_PARTITION_METADATA:
				fsys.log.Warn("metadata partition present; reads from it will fail", "partition", number)
				partitions[ref] = &MetadataPartition{Number: number}
			default:
				return nil, fmt.Errorf("%w: %q", filesystem.ErrUnknownPartitionType, identifier.Identifier)
			}
		default:
			return nil, fmt.Errorf("%w: %d", filesystem.ErrUnknownPartitionType, mapType)
		}

		pos += mapLength
	}

	return partitions, nil
}

// parseSparablePartition reads the sparing tables named by a sparable
// partition map and collects their relocation entries.
func (fsys *FS) parseSparablePartition(entry []byte, pd *PartitionDescriptor) (*SparablePartition, error) {
	if pd == nil {
		return nil, filesystem.Malformed("sparable partition map references unknown partition")
	}
	if len(entry) < 48 {
		return nil, filesystem.Malformed("sparable partition map needs 48 bytes, have %d", len(entry))
	}

	packetLength := binary.LittleEndian.Uint16(entry[40:42])
	tableCount := int(entry[42])
	tableSize := binary.LittleEndian.Uint32(entry[44:48])
	if 48+tableCount*4 > len(entry) {
		return nil, filesystem.Malformed("sparable partition map lists %d tables but has no room for them", tableCount)
	}

	partition := &SparablePartition{
		PhysicalPartition: PhysicalPartition{
			r:          fsys.r,
			sectorSize: fsys.sectorSize,
			Start:      pd.StartingLocation,
			Length:     pd.Length,
		},
		PacketLength: packetLength,
		Remap:        make(map[uint32]uint32),
	}

	for i := 0; i < tableCount; i++ {
		location := binary.LittleEndian.Uint32(entry[48+i*4 : 52+i*4])
		if err := fsys.readSparingTable(int64(location)*fsys.sectorSize, tableSize, partition.Remap); err != nil {
			return nil, err
		}
	}

	return partition, nil
}

// readSparingTable parses one sparing table into the shared remap.
func (fsys *FS) readSparingTable(offset int64, size uint32, remap map[uint32]uint32) error {
	table := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(fsys.r, offset, int64(size)), table); err != nil {
		return filesystem.Malformed("reading sparing table at offset %d: %v", offset, err)
	}
	if len(table) < 52 {
		return filesystem.Malformed("sparing table needs 52 bytes, have %d", len(table))
	}

	entries := int(binary.LittleEndian.Uint16(table[48:50]))
	pos := 52
	for i := 0; i < entries; i++ {
		if pos+8 > len(table) {
			return filesystem.Malformed("sparing table truncated at entry %d", i)
		}
		original := binary.LittleEndian.Uint32(table[pos : pos+4])
		mapped := binary.LittleEndian.Uint32(table[pos+4 : pos+8])
		remap[original] = mapped
		pos += 8
	}
	return nil
}
