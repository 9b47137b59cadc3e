// Package udf reads UDF (ECMA-167) volumes: anchor descriptor discovery,
// the volume descriptor sequence, partition maps, and the file structure
// rooted at the file set descriptor.
package udf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/bgrewell/disc-kit/pkg/consts"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
	"github.com/bgrewell/disc-kit/pkg/logging"
	"github.com/bgrewell/disc-kit/pkg/stream"
)

// FS reads a single-partition UDF volume.
type FS struct {
	r          io.ReaderAt
	log        *logging.Logger
	sectorSize int64

	pvd        *PrimaryVolumeDescriptor
	lvd        *LogicalVolumeDescriptor
	fsd        *FileSetDescriptor
	partitions map[uint16]Partition

	namedStreamsWarned bool
}

// Probe detects a UDF volume on the image and builds a reader for it. The
// logical sector size is found by trying each candidate size and accepting
// the first whose sector 256 holds an anchor descriptor that reports itself
// at sector 256. Returns ErrNotUDF when no anchor is found.
func Probe(r io.ReaderAt, log *logging.Logger) (*FS, error) {
	if log == nil {
		log = logging.DefaultLogger()
	}

	var sectorSize int64
	probe := make([]byte, tagLength)
	for _, candidate := range consts.UDF_SECTOR_SIZES {
		offset := consts.UDF_ANCHOR_SECTOR * candidate
		if _, err := io.ReadFull(io.NewSectionReader(r, offset, tagLength), probe); err != nil {
			continue
		}
		tag, err := UnmarshalTag(probe)
		if err != nil {
			continue
		}
		if tag.Identifier == consts.UDF_TAG_AVDP && tag.Location == consts.UDF_ANCHOR_SECTOR {
			sectorSize = candidate
			break
		}
	}
	if sectorSize == 0 {
		return nil, filesystem.ErrNotUDF
	}
	log.Debug("found anchor volume descriptor pointer", "sectorSize", sectorSize)

	fsys := &FS{r: r, log: log, sectorSize: sectorSize}
	if err := fsys.parseVolumeDescriptorSequence(); err != nil {
		return nil, err
	}
	return fsys, nil
}

// readSector reads one logical sector.
func (fsys *FS) readSector(sector int64) ([]byte, error) {
	buf := make([]byte, fsys.sectorSize)
	if _, err := io.ReadFull(io.NewSectionReader(fsys.r, sector*fsys.sectorSize, fsys.sectorSize), buf); err != nil {
		return nil, filesystem.Malformed("reading sector %d: %v", sector, err)
	}
	return buf, nil
}

// parseVolumeDescriptorSequence walks the main volume descriptor sequence
// named by the anchor, collecting the primary and logical volume
// descriptors and the partition descriptors, then resolves the partition
// maps and the file set descriptor.
func (fsys *FS) parseVolumeDescriptorSequence() error {
	anchorSector, err := fsys.readSector(consts.UDF_ANCHOR_SECTOR)
	if err != nil {
		return err
	}
	anchor, err := unmarshalAnchor(anchorSector)
	if err != nil {
		return err
	}

	descriptors := make(map[uint16]*PartitionDescriptor)
	sectors := int64(anchor.MainVDS.Length) / fsys.sectorSize

	for i := int64(0); i < sectors; i++ {
		sector, err := fsys.readSector(int64(anchor.MainVDS.Location) + i)
		if err != nil {
			return err
		}
		tag, err := UnmarshalTag(sector)
		if err != nil {
			return err
		}

		done := false
		switch tag.Identifier {
		case consts.UDF_TAG_PVD:
			if fsys.pvd == nil {
				if fsys.pvd, err = unmarshalPrimaryVolumeDescriptor(tag, sector); err != nil {
					return err
				}
			}
		case consts.UDF_TAG_LVD:
			if fsys.lvd != nil {
				return filesystem.Malformed("more than one logical volume descriptor")
			}
			if fsys.lvd, err = unmarshalLogicalVolumeDescriptor(tag, sector); err != nil {
				return err
			}
		case consts.UDF_TAG_PD:
			pd, err := unmarshalPartitionDescriptor(tag, sector)
			if err != nil {
				return err
			}
			if _, exists := descriptors[pd.Number]; exists {
				return filesystem.ErrMultiplePartitions
			}
			descriptors[pd.Number] = pd
		case consts.UDF_TAG_TD:
			done = true
		default:
			fsys.log.Debug("skipping descriptor in volume descriptor sequence", "tag", tag.Identifier)
		}
		if done {
			break
		}
	}

	if fsys.lvd == nil {
		return filesystem.Malformed("no logical volume descriptor")
	}
	if len(descriptors) == 0 {
		return filesystem.Malformed("no partition descriptor")
	}
	if len(descriptors) > 1 {
		return filesystem.ErrMultiplePartitions
	}

	if fsys.partitions, err = fsys.parsePartitionMaps(fsys.lvd, descriptors); err != nil {
		return err
	}

	return fsys.parseFileSetDescriptor()
}

// parseFileSetDescriptor resolves the logical volume contents use field as
// the location of the file set descriptor.
func (fsys *FS) parseFileSetDescriptor() error {
	data, err := fsys.readExtent(fsys.lvd.ContentsUse)
	if err != nil {
		return err
	}
	fsd, err := unmarshalFileSetDescriptor(data)
	if err != nil {
		return err
	}
	if fsd.Tag.Identifier != consts.UDF_TAG_FSD {
		return filesystem.Malformed("expected file set descriptor, found tag %d", fsd.Tag.Identifier)
	}
	fsys.fsd = fsd
	return nil
}

// partition resolves a partition reference number.
func (fsys *FS) partition(ref uint16) (Partition, error) {
	partition, ok := fsys.partitions[ref]
	if !ok {
		return nil, filesystem.Malformed("reference to unknown partition %d", ref)
	}
	return partition, nil
}

// readExtent reads the full extent named by a long allocation descriptor.
func (fsys *FS) readExtent(ad LongAD) ([]byte, error) {
	partition, err := fsys.partition(ad.Location.PartitionReferenceNumber)
	if err != nil {
		return nil, err
	}
	section, err := partition.OpenExtent(ad.Location.LogicalBlockNumber, ad.ExtentLength)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, ad.ExtentLength)
	if _, err := io.ReadFull(section, buf); err != nil {
		return nil, filesystem.Malformed("reading extent at block %d: %v", ad.Location.LogicalBlockNumber, err)
	}
	return buf, nil
}

// resolveICB reads the extent behind a long allocation descriptor and
// parses the file entry it holds.
func (fsys *FS) resolveICB(ad LongAD) (*FileEntry, error) {
	data, err := fsys.readExtent(ad)
	if err != nil {
		return nil, err
	}
	tag, err := UnmarshalTag(data)
	if err != nil {
		return nil, err
	}

	switch tag.Identifier {
	case consts.UDF_TAG_FE:
		return unmarshalFileEntry(tag, data, false)
	case consts.UDF_TAG_EFE:
		return unmarshalFileEntry(tag, data, true)
	default:
		return nil, fmt.Errorf("%w: tag %d", filesystem.ErrUnexpectedICB, tag.Identifier)
	}
}

// Name returns the logical volume identifier.
func (fsys *FS) Name() string {
	name, err := decodeDString(fsys.lvd.LogicalVolumeIdentifier)
	if err != nil {
		fsys.log.Error(err, "failed to decode logical volume identifier")
		return ""
	}
	return name
}

// Publisher returns the application identifier of the primary volume
// descriptor, which records the mastering tool.
func (fsys *FS) Publisher() string {
	if fsys.pvd == nil {
		return ""
	}
	return fsys.pvd.ApplicationIdentifier.Identifier
}

// Application returns the implementation identifier of the primary volume
// descriptor.
func (fsys *FS) Application() string {
	if fsys.pvd == nil {
		return ""
	}
	return fsys.pvd.ImplementationIdentifier.Identifier
}

// Root returns the root directory entry.
func (fsys *FS) Root() (*Entry, error) {
	fe, err := fsys.resolveICB(fsys.fsd.RootDirectoryICB)
	if err != nil {
		return nil, err
	}
	return &Entry{
		fs:           fsys,
		fe:           fe,
		name:         "/",
		partitionRef: fsys.fsd.RootDirectoryICB.Location.PartitionReferenceNumber,
	}, nil
}

// Get resolves an absolute path from the root directory.
func (fsys *FS) Get(path string) (filesystem.Entry, error) {
	root, err := fsys.Root()
	if err != nil {
		return nil, err
	}
	return filesystem.Walk(root, filesystem.Normalize(path))
}

// Entry is a single file, directory or symlink of a UDF volume.
type Entry struct {
	fs     *FS
	fe     *FileEntry
	name   string
	parent filesystem.Entry
	// partitionRef is the partition the entry's ICB was read from; short
	// allocation descriptors resolve against it.
	partitionRef uint16
}

// FileEntry exposes the parsed file entry backing this entry.
func (e *Entry) FileEntry() *FileEntry {
	return e.fe
}

func (e *Entry) Name() string {
	return e.name
}

func (e *Entry) IsDir() bool {
	return e.fe.ICBTag.FileType == FileTypeDirectory
}

func (e *Entry) IsSymlink() bool {
	return e.fe.ICBTag.FileType == FileTypeSymlink
}

func (e *Entry) Parent() filesystem.Entry {
	return e.parent
}

func (e *Entry) Get(path string) (filesystem.Entry, error) {
	return filesystem.Walk(e, path)
}

// extent is one run of content blocks.
type extent struct {
	partitionRef uint16
	block        uint32
	length       uint32
}

// allocationExtentLengthMask strips the extent type from the two most
// significant bits of an allocation descriptor length (4/14.14.1.1).
const allocationExtentLengthMask = 0x3FFFFFFF

// extents materializes the allocation descriptor tail into an ordered
// extent list.
func (e *Entry) extents() ([]extent, error) {
	descriptors := e.fe.AllocationDescriptors
	var out []extent

	switch e.fe.ICBTag.AllocationType() {
	case AllocationShort:
		for pos := 0; pos+8 <= len(descriptors); pos += 8 {
			length := binary.LittleEndian.Uint32(descriptors[pos : pos+4])
			if length == 0 {
				break
			}
			out = append(out, extent{
				partitionRef: e.partitionRef,
				block:        binary.LittleEndian.Uint32(descriptors[pos+4 : pos+8]),
				length:       length & allocationExtentLengthMask,
			})
		}
	case AllocationLong:
		for pos := 0; pos+longADLength <= len(descriptors); pos += longADLength {
			ad := unmarshalLongAD(descriptors[pos : pos+longADLength])
			if ad.ExtentLength == 0 {
				break
			}
			out = append(out, extent{
				partitionRef: ad.Location.PartitionReferenceNumber,
				block:        ad.Location.LogicalBlockNumber,
				length:       ad.ExtentLength & allocationExtentLengthMask,
			})
		}
	default:
		return nil, fmt.Errorf("%w: allocation type %d", filesystem.ErrUnsupportedAllocationType, e.fe.ICBTag.AllocationType())
	}

	return out, nil
}

// openContent builds a stream over the entry's data, regardless of its file
// type. Embedded entries read straight from the file entry tail; the others
// concatenate their extents.
func (e *Entry) openContent() (io.ReadSeeker, error) {
	size := int64(e.fe.InformationLength)

	if e.fe.ICBTag.AllocationType() == AllocationEmbedded {
		data := e.fe.AllocationDescriptors
		if size < int64(len(data)) {
			data = data[:size]
		}
		return bytes.NewReader(data), nil
	}

	extents, err := e.extents()
	if err != nil {
		return nil, err
	}

	segments := make([]io.ReaderAt, 0, len(extents))
	sizes := make([]int64, 0, len(extents))
	for _, ext := range extents {
		partition, err := e.fs.partition(ext.partitionRef)
		if err != nil {
			return nil, err
		}
		section, err := partition.OpenExtent(ext.block, ext.length)
		if err != nil {
			return nil, err
		}
		segments = append(segments, section)
		sizes = append(sizes, int64(ext.length))
	}

	concat, err := stream.NewConcat(segments, sizes)
	if err != nil {
		return nil, err
	}
	if concat.Size() < size {
		return nil, filesystem.Malformed("allocation descriptors cover %d of %d bytes", concat.Size(), size)
	}
	return io.NewSectionReader(concat, 0, size), nil
}

// Open returns a stream over a regular file's contents.
func (e *Entry) Open() (io.ReadSeeker, error) {
	if e.IsDir() {
		return nil, fmt.Errorf("%w: %s", filesystem.ErrNotAFile, e.name)
	}
	return e.openContent()
}

// Iterdir parses the file identifier descriptors of this directory, in
// on-disc order. The descriptor stream is 4-aligned after every entry; the
// directory's reference to its parent is skipped.
func (e *Entry) Iterdir() ([]filesystem.Entry, error) {
	if !e.IsDir() {
		return nil, fmt.Errorf("%w: %s", filesystem.ErrNotADirectory, e.name)
	}

	content, err := e.openContent()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, e.fe.InformationLength)
	if _, err := io.ReadFull(content, buf); err != nil {
		return nil, filesystem.Malformed("reading directory contents of %s: %v", e.name, err)
	}

	var entries []filesystem.Entry
	pos := 0
	for pos < len(buf) {
		fid, err := unmarshalFileIdentifierDescriptor(buf[pos:])
		if err != nil {
			return nil, err
		}
		if fid.Tag.Identifier != consts.UDF_TAG_FID {
			return nil, filesystem.Malformed("expected file identifier descriptor, found tag %d", fid.Tag.Identifier)
		}
		pos += fid.TotalLength

		if fid.IsParent() {
			continue
		}

		name, err := decodeDChars(fid.RawIdentifier)
		if err != nil {
			return nil, err
		}
		fe, err := e.fs.resolveICB(fid.ICB)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &Entry{
			fs:           e.fs,
			fe:           fe,
			name:         name,
			parent:       e,
			partitionRef: fid.ICB.Location.PartitionReferenceNumber,
		})
	}

	return entries, nil
}

func (e *Entry) Listdir() (map[string]filesystem.Entry, error) {
	return filesystem.Listdir(e)
}

// Readlink reads the symlink's data stream and reassembles its path
// component records into a target path.
func (e *Entry) Readlink() (string, error) {
	if !e.IsSymlink() {
		return "", fmt.Errorf("%w: %s", filesystem.ErrNotASymlink, e.name)
	}

	content, err := e.openContent()
	if err != nil {
		return "", err
	}
	buf := make([]byte, e.fe.InformationLength)
	if _, err := io.ReadFull(content, buf); err != nil {
		return "", filesystem.Malformed("reading symlink contents of %s: %v", e.name, err)
	}

	target := ""
	appendComponent := func(s string) {
		if target != "" && target != "/" {
			target += "/"
		}
		target += s
	}

	pos := 0
	for pos < len(buf) {
		component, err := unmarshalPathComponent(buf[pos:])
		if err != nil {
			return "", err
		}
		pos += component.Length

		switch component.Type {
		case componentRootVolume, componentRoot:
			target = "/"
		case componentParent:
			appendComponent("..")
		case componentCurrent:
			appendComponent(".")
		case componentIdentifier:
			name, err := decodeDChars(component.RawIdentifier)
			if err != nil {
				return "", err
			}
			appendComponent(name)
		default:
			return "", filesystem.Malformed("unknown path component type %d", component.Type)
		}
	}

	return target, nil
}

func (e *Entry) ATime() time.Time { return e.fe.AccessTime }
func (e *Entry) MTime() time.Time { return e.fe.ModificationTime }
func (e *Entry) CTime() time.Time { return e.fe.AttributeTime }

// BTime returns the creation time recorded by extended file entries, or the
// zero time for plain file entries.
func (e *Entry) BTime() time.Time { return e.fe.CreationTime }

// Mode rearranges the UDF permission bits into POSIX order. UDF packs five
// bits per class (change attributes and delete on top of read/write/
// execute); only the POSIX three survive. The classes keep the POSIX order,
// other in the lowest bits and owner in the highest.
func (e *Entry) Mode() fs.FileMode {
	perm := e.fe.Permissions
	mode := (perm & 0o007) | ((perm >> 2) & 0o070) | ((perm >> 4) & 0o700)

	if e.fe.ICBTag.Flags&icbFlagSetUID != 0 {
		mode |= 0o4000
	}
	if e.fe.ICBTag.Flags&icbFlagSetGID != 0 {
		mode |= 0o2000
	}
	if e.fe.ICBTag.Flags&icbFlagSticky != 0 {
		mode |= 0o1000
	}

	switch e.fe.ICBTag.FileType {
	case FileTypeDirectory:
		mode |= 0x4000
	case FileTypeSymlink:
		mode |= 0xA000
	default:
		mode |= 0x8000
	}

	return filesystem.UnixMode(mode)
}

func (e *Entry) UID() uint32 {
	return e.fe.UID
}

func (e *Entry) GID() uint32 {
	return e.fe.GID
}

func (e *Entry) Nlinks() uint32 {
	return uint32(e.fe.LinkCount)
}

// Inode returns the unique identifier of the file entry.
func (e *Entry) Inode() uint64 {
	return e.fe.UniqueID
}

// Size returns the information length, or the object size for extended
// entries carrying named streams. Content beyond the primary stream is
// inaccessible; the mismatch is reported once per volume.
func (e *Entry) Size() int64 {
	if e.fe.Extended && e.fe.ObjectSize != e.fe.InformationLength {
		if !e.fs.namedStreamsWarned {
			e.fs.namedStreamsWarned = true
			e.fs.log.Warn("volume records named streams; only primary streams are readable", "name", e.name)
		}
		return int64(e.fe.ObjectSize)
	}
	return int64(e.fe.InformationLength)
}
