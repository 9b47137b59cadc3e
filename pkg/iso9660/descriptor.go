package iso9660

import (
	"io"

	"github.com/bgrewell/disc-kit/pkg/consts"
	"github.com/bgrewell/disc-kit/pkg/encoding"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
	"github.com/bgrewell/disc-kit/pkg/logging"
)

// VolumeDescriptor is one 2048-byte record of the volume descriptor set.
type VolumeDescriptor struct {
	Type       uint8
	Identifier string
	Version    uint8
	Data       []byte
}

// UnmarshalVolumeDescriptor parses a volume descriptor from one sector.
func UnmarshalVolumeDescriptor(data []byte) (*VolumeDescriptor, error) {
	if len(data) < consts.ISO9660_SECTOR_SIZE {
		return nil, filesystem.Malformed("volume descriptor needs %d bytes, have %d", consts.ISO9660_SECTOR_SIZE, len(data))
	}
	vd := &VolumeDescriptor{
		Type:       data[0],
		Identifier: string(data[1:6]),
		Version:    data[6],
		Data:       append([]byte{}, data[7:consts.ISO9660_SECTOR_SIZE]...),
	}
	if vd.Identifier != consts.ISO9660_STD_IDENTIFIER {
		return nil, filesystem.ErrInvalidVolumeDescID
	}
	return vd, nil
}

// PrimaryVolumeDescriptor carries the fields of a primary (or supplementary)
// volume descriptor that the reader consumes. Identifier fields are kept raw
// because their encoding depends on whether the volume is Joliet.
//
// Field positions follow ECMA-119 8.4; supplementary descriptors (8.5) share
// the same layout.
type PrimaryVolumeDescriptor struct {
	Type                 uint8
	SystemID             []byte // BP 9-40
	VolumeID             []byte // BP 41-72
	VolumeSpaceSize      uint32 // BP 81-88, both-byte order
	VolumeSetSize        uint16 // BP 121-124
	VolumeSequenceNumber uint16 // BP 125-128
	LogicalBlockSize     uint16 // BP 129-132
	PathTableSize        uint32 // BP 133-140
	TypeLPathTable       uint32 // BP 141-144, little-endian only
	RootDirectoryRecord  []byte // BP 157-190, 34-byte embedded record
	VolumeSetID          []byte // BP 191-318
	PublisherID          []byte // BP 319-446
	PreparerID           []byte // BP 447-574
	ApplicationID        []byte // BP 575-702
}

// UnmarshalPrimaryVolumeDescriptor re-parses a descriptor sector as a primary
// volume descriptor.
func UnmarshalPrimaryVolumeDescriptor(data []byte) (*PrimaryVolumeDescriptor, error) {
	if len(data) < consts.ISO9660_SECTOR_SIZE {
		return nil, filesystem.Malformed("primary volume descriptor needs %d bytes, have %d", consts.ISO9660_SECTOR_SIZE, len(data))
	}

	pvd := &PrimaryVolumeDescriptor{
		Type:                data[0],
		SystemID:            append([]byte{}, data[8:40]...),
		VolumeID:            append([]byte{}, data[40:72]...),
		RootDirectoryRecord: append([]byte{}, data[156:156+consts.ISO9660_ROOT_RECORD_LENGTH]...),
		VolumeSetID:         append([]byte{}, data[190:318]...),
		PublisherID:         append([]byte{}, data[318:446]...),
		PreparerID:          append([]byte{}, data[446:574]...),
		ApplicationID:       append([]byte{}, data[574:702]...),
	}

	var err error
	if pvd.VolumeSpaceSize, err = encoding.UnmarshalUint32LSBMSB(data[80:88]); err != nil {
		return nil, err
	}
	if pvd.VolumeSetSize, err = encoding.UnmarshalUint16LSBMSB(data[120:124]); err != nil {
		return nil, err
	}
	if pvd.VolumeSequenceNumber, err = encoding.UnmarshalUint16LSBMSB(data[124:128]); err != nil {
		return nil, err
	}
	if pvd.LogicalBlockSize, err = encoding.UnmarshalUint16LSBMSB(data[128:132]); err != nil {
		return nil, err
	}
	if pvd.PathTableSize, err = encoding.UnmarshalUint32LSBMSB(data[132:140]); err != nil {
		return nil, err
	}
	pvd.TypeLPathTable = uint32(data[140]) | uint32(data[141])<<8 | uint32(data[142])<<16 | uint32(data[143])<<24

	if pvd.LogicalBlockSize == 0 {
		return nil, filesystem.Malformed("logical block size is zero")
	}

	return pvd, nil
}

// ProbeResult is the outcome of scanning the volume descriptor set.
type ProbeResult struct {
	// Primary is the ISO9660 primary volume descriptor.
	Primary *PrimaryVolumeDescriptor
	// Joliet is the supplementary descriptor with UTF-16BE identifiers, if
	// recorded.
	Joliet *PrimaryVolumeDescriptor
	// Descriptors holds every descriptor encountered, terminator included.
	Descriptors []*VolumeDescriptor
	// DescriptorEndPos is the byte offset immediately after the set
	// terminator. UDF probing of hybrid discs starts here.
	DescriptorEndPos int64
}

// Probe reads the volume descriptor set starting after the system area and
// collects the primary and Joliet descriptors. A supplementary descriptor
// counts as Joliet when its system identifier starts with a NUL byte,
// indicating UTF-16BE encoded identifiers.
func Probe(r io.ReaderAt, log *logging.Logger) (*ProbeResult, error) {
	result := &ProbeResult{}

	sector := make([]byte, consts.ISO9660_SECTOR_SIZE)
	for offset := int64(consts.ISO9660_VOLUME_DESC_START); ; offset += consts.ISO9660_SECTOR_SIZE {
		if _, err := io.ReadFull(io.NewSectionReader(r, offset, consts.ISO9660_SECTOR_SIZE), sector); err != nil {
			return nil, filesystem.Malformed("reading volume descriptor at offset %d: %v", offset, err)
		}

		vd, err := UnmarshalVolumeDescriptor(sector)
		if err != nil {
			return nil, err
		}
		result.Descriptors = append(result.Descriptors, vd)

		if vd.Type == consts.ISO9660_VD_TERMINATOR {
			result.DescriptorEndPos = offset + consts.ISO9660_SECTOR_SIZE
			break
		}

		switch vd.Type {
		case consts.ISO9660_VD_PRIMARY:
			log.Debug("found primary volume descriptor", "offset", offset)
			pvd, err := UnmarshalPrimaryVolumeDescriptor(sector)
			if err != nil {
				return nil, err
			}
			result.Primary = pvd
		case consts.ISO9660_VD_SUPPLEMENTARY:
			svd, err := UnmarshalPrimaryVolumeDescriptor(sector)
			if err != nil {
				return nil, err
			}
			if len(svd.SystemID) > 0 && svd.SystemID[0] == 0x00 {
				log.Debug("found Joliet supplementary volume descriptor", "offset", offset)
				result.Joliet = svd
			}
		default:
			log.Debug("skipping volume descriptor", "type", vd.Type, "offset", offset)
		}
	}

	if result.Primary == nil {
		return nil, filesystem.ErrNoPrimaryVolume
	}

	return result, nil
}
