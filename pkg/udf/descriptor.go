package udf

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/bgrewell/disc-kit/pkg/encoding"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
)

// Tag is the 16-byte descriptor tag every ECMA-167 descriptor starts with
// (3/7.2).
type Tag struct {
	Identifier        uint16
	DescriptorVersion uint16
	Checksum          uint8
	SerialNumber      uint16
	CRC               uint16
	CRCLength         uint16
	Location          uint32
}

const tagLength = 16

// UnmarshalTag parses a descriptor tag.
func UnmarshalTag(data []byte) (*Tag, error) {
	if len(data) < tagLength {
		return nil, filesystem.Malformed("descriptor tag needs %d bytes, have %d", tagLength, len(data))
	}
	return &Tag{
		Identifier:        binary.LittleEndian.Uint16(data[0:2]),
		DescriptorVersion: binary.LittleEndian.Uint16(data[2:4]),
		Checksum:          data[4],
		SerialNumber:      binary.LittleEndian.Uint16(data[6:8]),
		CRC:               binary.LittleEndian.Uint16(data[8:10]),
		CRCLength:         binary.LittleEndian.Uint16(data[10:12]),
		Location:          binary.LittleEndian.Uint32(data[12:16]),
	}, nil
}

// ExtentAD is a short extent descriptor: length in bytes and location in
// logical sectors (3/7.1).
type ExtentAD struct {
	Length   uint32
	Location uint32
}

func unmarshalExtentAD(data []byte) ExtentAD {
	return ExtentAD{
		Length:   binary.LittleEndian.Uint32(data[0:4]),
		Location: binary.LittleEndian.Uint32(data[4:8]),
	}
}

// LBAddr is a logical block address within a numbered partition (4/7.1).
type LBAddr struct {
	LogicalBlockNumber       uint32
	PartitionReferenceNumber uint16
}

// LongAD locates an extent of logical blocks within a partition (4/14.14.2).
type LongAD struct {
	ExtentLength uint32
	Location     LBAddr
}

const longADLength = 16

func unmarshalLongAD(data []byte) LongAD {
	return LongAD{
		ExtentLength: binary.LittleEndian.Uint32(data[0:4]),
		Location: LBAddr{
			LogicalBlockNumber:       binary.LittleEndian.Uint32(data[4:8]),
			PartitionReferenceNumber: binary.LittleEndian.Uint16(data[8:10]),
		},
	}
}

// EntityID is a 32-byte regid (1/7.4). The identifier is NUL padded.
type EntityID struct {
	Flags      uint8
	Identifier string
	Suffix     []byte
}

const entityIDLength = 32

func unmarshalEntityID(data []byte) EntityID {
	return EntityID{
		Flags:      data[0],
		Identifier: strings.TrimRight(string(data[1:24]), "\x00"),
		Suffix:     append([]byte{}, data[24:32]...),
	}
}

const timestampLength = 12

// unmarshalTimestamp decodes the 12-byte ECMA-167 timestamp (1/7.3). The
// year is a full signed 16-bit value and the timezone is a signed 12-bit
// count of minutes from UTC.
func unmarshalTimestamp(data []byte) time.Time {
	typeAndZone := binary.LittleEndian.Uint16(data[0:2])

	// Sign-extend the low 12 bits.
	tz := int(typeAndZone & 0x0FFF)
	if tz >= 0x800 {
		tz -= 0x1000
	}

	year := int(int16(binary.LittleEndian.Uint16(data[2:4])))
	if year == 0 {
		return time.Time{}
	}

	centis := int(data[9])
	return time.Date(
		year,
		time.Month(data[4]),
		int(data[5]),
		int(data[6]),
		int(data[7]),
		int(data[8]),
		centis*10_000_000,
		time.FixedZone("", tz*60),
	)
}

// decodeDChars decodes an OSTA compressed unicode character field. The
// first byte selects the width: 8 for single-byte characters, 16 for
// UTF-16BE.
func decodeDChars(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	switch data[0] {
	case 8:
		return string(data[1:]), nil
	case 16:
		return encoding.UTF16BE(data[1:])
	default:
		return "", filesystem.ErrBadEncoding
	}
}

// decodeDString decodes a fixed-size dstring field, whose final byte holds
// the number of bytes used, compression selector included.
func decodeDString(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	used := int(data[len(data)-1])
	if used == 0 {
		return "", nil
	}
	if used > len(data)-1 {
		return "", filesystem.Malformed("dstring length byte %d overflows %d-byte field", used, len(data))
	}
	return decodeDChars(data[:used])
}

// AnchorVolumeDescriptorPointer points at the main volume descriptor
// sequence (3/10.2). It lives at logical sector 256.
type AnchorVolumeDescriptorPointer struct {
	Tag        *Tag
	MainVDS    ExtentAD
	ReserveVDS ExtentAD
}

func unmarshalAnchor(data []byte) (*AnchorVolumeDescriptorPointer, error) {
	if len(data) < 32 {
		return nil, filesystem.Malformed("anchor descriptor needs 32 bytes, have %d", len(data))
	}
	tag, err := UnmarshalTag(data)
	if err != nil {
		return nil, err
	}
	return &AnchorVolumeDescriptorPointer{
		Tag:        tag,
		MainVDS:    unmarshalExtentAD(data[16:24]),
		ReserveVDS: unmarshalExtentAD(data[24:32]),
	}, nil
}

// PrimaryVolumeDescriptor carries the volume identifiers (3/10.1).
type PrimaryVolumeDescriptor struct {
	Tag                      *Tag
	SequenceNumber           uint32
	VolumeIdentifier         []byte // dstring, 32 bytes
	VolumeSetIdentifier      []byte // dstring, 128 bytes
	ApplicationIdentifier    EntityID
	ImplementationIdentifier EntityID
	RecordingTime            time.Time
}

func unmarshalPrimaryVolumeDescriptor(tag *Tag, data []byte) (*PrimaryVolumeDescriptor, error) {
	body := data[tagLength:]
	if len(body) < 474 {
		return nil, filesystem.Malformed("primary volume descriptor body needs 474 bytes, have %d", len(body))
	}
	return &PrimaryVolumeDescriptor{
		Tag:                      tag,
		SequenceNumber:           binary.LittleEndian.Uint32(body[0:4]),
		VolumeIdentifier:         append([]byte{}, body[8:40]...),
		VolumeSetIdentifier:      append([]byte{}, body[56:184]...),
		ApplicationIdentifier:    unmarshalEntityID(body[328:360]),
		RecordingTime:            unmarshalTimestamp(body[360:372]),
		ImplementationIdentifier: unmarshalEntityID(body[372:404]),
	}, nil
}

// LogicalVolumeDescriptor carries the logical block size, the partition
// maps, and the location of the file set descriptor (3/10.6).
type LogicalVolumeDescriptor struct {
	Tag                      *Tag
	SequenceNumber           uint32
	LogicalVolumeIdentifier  []byte // dstring, 128 bytes
	LogicalBlockSize         uint32
	DomainIdentifier         EntityID
	ContentsUse              LongAD // locates the file set descriptor
	MapTableLength           uint32
	NumberOfPartitionMaps    uint32
	ImplementationIdentifier EntityID
	PartitionMaps            []byte
}

func unmarshalLogicalVolumeDescriptor(tag *Tag, data []byte) (*LogicalVolumeDescriptor, error) {
	body := data[tagLength:]
	if len(body) < 424 {
		return nil, filesystem.Malformed("logical volume descriptor body needs 424 bytes, have %d", len(body))
	}
	lvd := &LogicalVolumeDescriptor{
		Tag:                      tag,
		SequenceNumber:           binary.LittleEndian.Uint32(body[0:4]),
		LogicalVolumeIdentifier:  append([]byte{}, body[68:196]...),
		LogicalBlockSize:         binary.LittleEndian.Uint32(body[196:200]),
		DomainIdentifier:         unmarshalEntityID(body[200:232]),
		ContentsUse:              unmarshalLongAD(body[232:248]),
		MapTableLength:           binary.LittleEndian.Uint32(body[248:252]),
		NumberOfPartitionMaps:    binary.LittleEndian.Uint32(body[252:256]),
		ImplementationIdentifier: unmarshalEntityID(body[256:288]),
	}
	if int(lvd.MapTableLength) > len(body)-424 {
		return nil, filesystem.Malformed("partition map table of %d bytes overflows descriptor", lvd.MapTableLength)
	}
	lvd.PartitionMaps = append([]byte{}, body[424:424+lvd.MapTableLength]...)
	return lvd, nil
}

// PartitionDescriptor locates a physical partition (3/10.5).
type PartitionDescriptor struct {
	Tag              *Tag
	SequenceNumber   uint32
	Flags            uint16
	Number           uint16
	AccessType       uint32
	StartingLocation uint32
	Length           uint32
}

func unmarshalPartitionDescriptor(tag *Tag, data []byte) (*PartitionDescriptor, error) {
	body := data[tagLength:]
	if len(body) < 180 {
		return nil, filesystem.Malformed("partition descriptor body needs 180 bytes, have %d", len(body))
	}
	return &PartitionDescriptor{
		Tag:              tag,
		SequenceNumber:   binary.LittleEndian.Uint32(body[0:4]),
		Flags:            binary.LittleEndian.Uint16(body[4:6]),
		Number:           binary.LittleEndian.Uint16(body[6:8]),
		AccessType:       binary.LittleEndian.Uint32(body[168:172]),
		StartingLocation: binary.LittleEndian.Uint32(body[172:176]),
		Length:           binary.LittleEndian.Uint32(body[176:180]),
	}, nil
}

// FileSetDescriptor carries the root directory ICB (4/14.1).
type FileSetDescriptor struct {
	Tag                     *Tag
	RecordingTime           time.Time
	LogicalVolumeIdentifier []byte // dstring, 128 bytes
	FileSetIdentifier       []byte // dstring, 32 bytes
	RootDirectoryICB        LongAD
}

func unmarshalFileSetDescriptor(data []byte) (*FileSetDescriptor, error) {
	if len(data) < 480 {
		return nil, filesystem.Malformed("file set descriptor needs 480 bytes, have %d", len(data))
	}
	tag, err := UnmarshalTag(data)
	if err != nil {
		return nil, err
	}
	return &FileSetDescriptor{
		Tag:                     tag,
		RecordingTime:           unmarshalTimestamp(data[16:28]),
		LogicalVolumeIdentifier: append([]byte{}, data[112:240]...),
		FileSetIdentifier:       append([]byte{}, data[304:336]...),
		RootDirectoryICB:        unmarshalLongAD(data[400:416]),
	}, nil
}

// ICB file types (4/14.6.6).
const (
	FileTypeDirectory = 4
	FileTypeRegular   = 5
	FileTypeSymlink   = 12
)

// Allocation descriptor forms selected by the low three ICB flag bits
// (4/14.6.8).
const (
	AllocationShort    = 0
	AllocationLong     = 1
	AllocationExtended = 2
	AllocationEmbedded = 3
)

// ICB flag bits for the POSIX special mode bits.
const (
	icbFlagSetUID = 1 << 6
	icbFlagSetGID = 1 << 7
	icbFlagSticky = 1 << 8
)

// ICBTag describes the file an ICB controls (4/14.6).
type ICBTag struct {
	StrategyType uint16
	MaxEntries   uint16
	FileType     uint8
	ParentICB    LBAddr
	Flags        uint16
}

const icbTagLength = 20

func unmarshalICBTag(data []byte) ICBTag {
	return ICBTag{
		StrategyType: binary.LittleEndian.Uint16(data[4:6]),
		MaxEntries:   binary.LittleEndian.Uint16(data[8:10]),
		FileType:     data[11],
		ParentICB: LBAddr{
			LogicalBlockNumber:       binary.LittleEndian.Uint32(data[12:16]),
			PartitionReferenceNumber: binary.LittleEndian.Uint16(data[16:18]),
		},
		Flags: binary.LittleEndian.Uint16(data[18:20]),
	}
}

// AllocationType returns the allocation descriptor form of the entry.
func (t ICBTag) AllocationType() int {
	return int(t.Flags & 0x7)
}

// FileEntry is the parsed form of a File Entry (4/14.9) or Extended File
// Entry (4/14.17); Extended distinguishes the two.
type FileEntry struct {
	Extended bool
	Tag      *Tag
	ICBTag   ICBTag

	UID               uint32
	GID               uint32
	Permissions       uint32
	LinkCount         uint16
	InformationLength uint64
	ObjectSize        uint64

	AccessTime       time.Time
	ModificationTime time.Time
	AttributeTime    time.Time
	CreationTime     time.Time // extended entries only

	UniqueID uint64

	// AllocationDescriptors is the raw descriptor (or embedded data) tail.
	AllocationDescriptors []byte
}

func unmarshalFileEntry(tag *Tag, data []byte, extended bool) (*FileEntry, error) {
	body := data[tagLength:]

	fixed := 160
	if extended {
		fixed = 200
	}
	if len(body) < fixed {
		return nil, filesystem.Malformed("file entry body needs %d bytes, have %d", fixed, len(body))
	}

	fe := &FileEntry{
		Extended:          extended,
		Tag:               tag,
		ICBTag:            unmarshalICBTag(body[0:icbTagLength]),
		UID:               binary.LittleEndian.Uint32(body[20:24]),
		GID:               binary.LittleEndian.Uint32(body[24:28]),
		Permissions:       binary.LittleEndian.Uint32(body[28:32]),
		LinkCount:         binary.LittleEndian.Uint16(body[32:34]),
		InformationLength: binary.LittleEndian.Uint64(body[40:48]),
	}

	var lenEA, lenAD uint32
	if extended {
		fe.ObjectSize = binary.LittleEndian.Uint64(body[48:56])
		fe.AccessTime = unmarshalTimestamp(body[64:76])
		fe.ModificationTime = unmarshalTimestamp(body[76:88])
		fe.CreationTime = unmarshalTimestamp(body[88:100])
		fe.AttributeTime = unmarshalTimestamp(body[100:112])
		fe.UniqueID = binary.LittleEndian.Uint64(body[184:192])
		lenEA = binary.LittleEndian.Uint32(body[192:196])
		lenAD = binary.LittleEndian.Uint32(body[196:200])
	} else {
		fe.ObjectSize = fe.InformationLength
		fe.AccessTime = unmarshalTimestamp(body[56:68])
		fe.ModificationTime = unmarshalTimestamp(body[68:80])
		fe.AttributeTime = unmarshalTimestamp(body[80:92])
		fe.UniqueID = binary.LittleEndian.Uint64(body[144:152])
		lenEA = binary.LittleEndian.Uint32(body[152:156])
		lenAD = binary.LittleEndian.Uint32(body[156:160])
	}

	adStart := fixed + int(lenEA)
	if adStart+int(lenAD) > len(body) {
		return nil, filesystem.Malformed("allocation descriptors of %d bytes overflow file entry", lenAD)
	}
	fe.AllocationDescriptors = append([]byte{}, body[adStart:adStart+int(lenAD)]...)

	return fe, nil
}

// FileIdentifierDescriptor names one child of a directory (4/14.4).
type FileIdentifierDescriptor struct {
	Tag             *Tag
	VersionNumber   uint16
	Characteristics uint8
	ICB             LongAD
	RawIdentifier   []byte
	// TotalLength is the 4-aligned on-disc size of the descriptor.
	TotalLength int
}

// File characteristic bits (4/14.4.3).
const (
	fidHidden    = 0x01
	fidDirectory = 0x02
	fidDeleted   = 0x04
	fidParent    = 0x08
)

// IsParent reports whether the descriptor is the directory's reference to
// its parent.
func (fid *FileIdentifierDescriptor) IsParent() bool {
	return fid.Characteristics&fidParent != 0
}

const fidFixedLength = 38

func unmarshalFileIdentifierDescriptor(data []byte) (*FileIdentifierDescriptor, error) {
	if len(data) < fidFixedLength {
		return nil, filesystem.Malformed("file identifier descriptor needs %d bytes, have %d", fidFixedLength, len(data))
	}
	tag, err := UnmarshalTag(data)
	if err != nil {
		return nil, err
	}

	lenFI := int(data[19])
	lenImpl := int(binary.LittleEndian.Uint16(data[36:38]))
	end := fidFixedLength + lenImpl + lenFI
	if end > len(data) {
		return nil, filesystem.Malformed("file identifier of %d bytes overflows descriptor", lenFI)
	}

	total := end
	if rem := total % 4; rem != 0 {
		total += 4 - rem
	}

	return &FileIdentifierDescriptor{
		Tag:             tag,
		VersionNumber:   binary.LittleEndian.Uint16(data[16:18]),
		Characteristics: data[18],
		ICB:             unmarshalLongAD(data[20:36]),
		RawIdentifier:   append([]byte{}, data[fidFixedLength+lenImpl:end]...),
		TotalLength:     total,
	}, nil
}

// Path component types of a symlink's data stream (4/14.16.1.1).
const (
	componentRootVolume = 1
	componentRoot       = 2
	componentParent     = 3
	componentCurrent    = 4
	componentIdentifier = 5
)

// pathComponent is one component of a symbolic link path (4/14.16.1).
type pathComponent struct {
	Type          uint8
	RawIdentifier []byte
	Length        int
}

func unmarshalPathComponent(data []byte) (*pathComponent, error) {
	if len(data) < 4 {
		return nil, filesystem.Malformed("path component needs 4 bytes, have %d", len(data))
	}
	lenCI := int(data[1])
	if 4+lenCI > len(data) {
		return nil, filesystem.Malformed("path component identifier of %d bytes overflows data", lenCI)
	}
	return &pathComponent{
		Type:          data[0],
		RawIdentifier: append([]byte{}, data[4:4+lenCI]...),
		Length:        4 + lenCI,
	}, nil
}
