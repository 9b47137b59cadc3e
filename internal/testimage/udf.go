package testimage

import (
	"bytes"
	"encoding/binary"
)

// UDF fixture contents.
var (
	UDFHelloContents  = []byte("Hello World!\n")
	UDFReadmeContents = []byte("UDF test fixture\n")
	UDFSymlinkTarget  = "/tmp/passwords.txt"
)

// UDFBigFileByte fills the large fixture file.
const UDFBigFileByte = 0x69

// UDFConfig sizes a synthetic UDF volume.
type UDFConfig struct {
	// SectorSize is the logical sector (and block) size.
	SectorSize int64
	// BigFileSize is the length of /dummy_larger_file.bin, split over two
	// extents.
	BigFileSize int
}

// DefaultUDFConfig mirrors a small mkudffs volume on 2048-byte sectors with
// a 10 MiB payload file.
func DefaultUDFConfig() UDFConfig {
	return UDFConfig{SectorSize: 2048, BigFileSize: 10 * 1024 * 1024}
}

// UDFTag builds a 16-byte descriptor tag. Checksums are left zero; the
// reader does not verify them.
func UDFTag(identifier uint16, location uint32) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint16(buf[0:2], identifier)
	binary.LittleEndian.PutUint16(buf[2:4], 3) // descriptor version
	binary.LittleEndian.PutUint32(buf[12:16], location)
	return buf
}

// DString encodes s as a fixed-size OSTA dstring with an 8-bit compression
// selector and trailing length byte.
func DString(s string, size int) []byte {
	buf := make([]byte, size)
	buf[0] = 8
	copy(buf[1:], s)
	buf[size-1] = byte(1 + len(s))
	return buf
}

// DChars encodes s as 8-bit compressed unicode.
func DChars(s string) []byte {
	return append([]byte{8}, s...)
}

// Entity builds a 32-byte entity identifier.
func Entity(identifier string) []byte {
	buf := make([]byte, 32)
	copy(buf[1:24], identifier)
	return buf
}

// UDFTime builds a 12-byte ECMA-167 timestamp. tzMinutes is the signed
// offset from UTC.
func UDFTime(year, month, day, hour, minute, second, tzMinutes int) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(1)<<12|uint16(tzMinutes)&0x0FFF)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(int16(year)))
	buf[4] = byte(month)
	buf[5] = byte(day)
	buf[6] = byte(hour)
	buf[7] = byte(minute)
	buf[8] = byte(second)
	return buf
}

// LongAD builds a 16-byte long allocation descriptor.
func LongAD(length, block uint32, partition uint16) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], length)
	binary.LittleEndian.PutUint32(buf[4:8], block)
	binary.LittleEndian.PutUint16(buf[8:10], partition)
	return buf
}

// ShortAD builds an 8-byte short allocation descriptor.
func ShortAD(length, position uint32) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], length)
	binary.LittleEndian.PutUint32(buf[4:8], position)
	return buf
}

// StoredPerm packs POSIX permission bits into the UDF permission field,
// which keeps each class five bits apart.
func StoredPerm(posix uint32) uint32 {
	return (posix & 0o7) | ((posix & 0o70) << 2) | ((posix & 0o700) << 4)
}

// UDF file entry parameters.
type udfFile struct {
	extended   bool
	fileType   uint8
	allocType  int
	permPosix  uint32
	uid, gid   uint32
	links      uint16
	infoLen    uint64
	objectSize uint64
	uniqueID   uint64
	tail       []byte
}

// fileEntryBytes builds a File Entry (0x0105) or Extended File Entry
// (0x010A) descriptor.
func fileEntryBytes(location uint32, f udfFile) []byte {
	fixed := 160
	tagID := uint16(0x0105)
	if f.extended {
		fixed = 200
		tagID = 0x010A
	}

	body := make([]byte, fixed+len(f.tail))

	// ICB tag.
	binary.LittleEndian.PutUint16(body[4:6], 4) // strategy 4
	binary.LittleEndian.PutUint16(body[8:10], 1)
	body[11] = f.fileType
	binary.LittleEndian.PutUint16(body[18:20], uint16(f.allocType))

	binary.LittleEndian.PutUint32(body[20:24], f.uid)
	binary.LittleEndian.PutUint32(body[24:28], f.gid)
	binary.LittleEndian.PutUint32(body[28:32], StoredPerm(f.permPosix))
	binary.LittleEndian.PutUint16(body[32:34], f.links)
	binary.LittleEndian.PutUint64(body[40:48], f.infoLen)

	access := UDFTime(2024, 6, 1, 12, 0, 0, 120)
	modify := UDFTime(2024, 6, 1, 11, 30, 0, 120)
	attribute := UDFTime(2024, 6, 1, 11, 45, 0, 120)
	creation := UDFTime(2024, 5, 31, 9, 0, 0, 120)

	if f.extended {
		objectSize := f.objectSize
		if objectSize == 0 {
			objectSize = f.infoLen
		}
		binary.LittleEndian.PutUint64(body[48:56], objectSize)
		copy(body[64:76], access)
		copy(body[76:88], modify)
		copy(body[88:100], creation)
		copy(body[100:112], attribute)
		binary.LittleEndian.PutUint64(body[184:192], f.uniqueID)
		binary.LittleEndian.PutUint32(body[196:200], uint32(len(f.tail)))
	} else {
		copy(body[56:68], access)
		copy(body[68:80], modify)
		copy(body[80:92], attribute)
		binary.LittleEndian.PutUint64(body[144:152], f.uniqueID)
		binary.LittleEndian.PutUint32(body[156:160], uint32(len(f.tail)))
	}
	copy(body[fixed:], f.tail)

	return append(UDFTag(tagID, location), body...)
}

// FID characteristics bits.
const (
	FIDDirectory = 0x02
	FIDParent    = 0x08
)

// fidBytes builds one file identifier descriptor, 4-aligned.
func fidBytes(location uint32, characteristics byte, name string, icb []byte) []byte {
	identifier := []byte{}
	if name != "" {
		identifier = DChars(name)
	}

	buf := make([]byte, 38, 64)
	copy(buf[0:16], UDFTag(0x0101, location))
	binary.LittleEndian.PutUint16(buf[16:18], 1)
	buf[18] = characteristics
	buf[19] = byte(len(identifier))
	copy(buf[20:36], icb)
	buf = append(buf, identifier...)

	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

// BuildUDFInto writes a single-partition UDF volume into img: an anchor at
// sector 256, the main volume descriptor sequence, and a root directory
// with an embedded small file, an absolute symlink, a subdirectory and one
// large file recorded as two short-allocated extents.
func BuildUDFInto(img *Image, cfg UDFConfig) {
	sector := uint32(cfg.SectorSize)
	blockSize := sector

	const (
		vdsStart       = 257
		partitionStart = 264
	)

	// Anchor at sector 256 pointing at the main VDS.
	anchor := UDFTag(0x0002, 256)
	vdsExtent := make([]byte, 16)
	binary.LittleEndian.PutUint32(vdsExtent[0:4], 8*sector)
	binary.LittleEndian.PutUint32(vdsExtent[4:8], vdsStart)
	img.PutSector(256, append(anchor, vdsExtent...))

	// Primary volume descriptor.
	pvdBody := make([]byte, 490)
	copy(pvdBody[8:40], DString("LinuxUDF", 32))
	copy(pvdBody[56:184], DString("LinuxUDF-set", 128))
	copy(pvdBody[328:360], Entity("*Linux mkudffs 2.3"))
	copy(pvdBody[360:372], UDFTime(2024, 6, 1, 10, 0, 0, 120))
	copy(pvdBody[372:404], Entity("*Linux UDFFS"))
	img.PutSector(vdsStart, append(UDFTag(0x0001, vdsStart), pvdBody...))

	// Partition descriptor.
	pdBody := make([]byte, 180)
	binary.LittleEndian.PutUint16(pdBody[6:8], 0) // partition number
	binary.LittleEndian.PutUint32(pdBody[168:172], 1)
	binary.LittleEndian.PutUint32(pdBody[172:176], partitionStart)
	binary.LittleEndian.PutUint32(pdBody[176:180], 6000)
	img.PutSector(vdsStart+1, append(UDFTag(0x0005, vdsStart+1), pdBody...))

	// Logical volume descriptor with one type 1 partition map.
	partitionMap := []byte{1, 6, 1, 0, 0, 0} // type, length, seq, partition 0
	lvdBody := make([]byte, 424+len(partitionMap))
	copy(lvdBody[68:196], DString("LinuxUDF", 128))
	binary.LittleEndian.PutUint32(lvdBody[196:200], blockSize)
	copy(lvdBody[200:232], Entity("*OSTA UDF Compliant"))
	copy(lvdBody[232:248], LongAD(blockSize, 0, 0))
	binary.LittleEndian.PutUint32(lvdBody[248:252], uint32(len(partitionMap)))
	binary.LittleEndian.PutUint32(lvdBody[252:256], 1)
	copy(lvdBody[424:], partitionMap)
	img.PutSector(vdsStart+2, append(UDFTag(0x0006, vdsStart+2), lvdBody...))

	// Terminating descriptor.
	img.PutSector(vdsStart+3, UDFTag(0x0008, vdsStart+3))

	putBlock := func(block uint32, data []byte) {
		img.PutSector(int64(partitionStart)+int64(block), data)
	}

	// File set descriptor at partition block 0; root directory ICB at
	// block 1.
	fsd := make([]byte, 480)
	copy(fsd[0:16], UDFTag(0x0100, 0))
	copy(fsd[16:28], UDFTime(2024, 6, 1, 10, 0, 0, 120))
	copy(fsd[112:240], DString("LinuxUDF", 128))
	copy(fsd[304:336], DString("LinuxUDF", 32))
	copy(fsd[400:416], LongAD(blockSize, 1, 0))
	putBlock(0, fsd)

	bigHalf := cfg.BigFileSize / 2
	bigBlocks := func(n int) uint32 {
		return uint32((n + int(blockSize) - 1) / int(blockSize))
	}

	const (
		rootBlock    = 1
		helloBlock   = 2
		symlinkBlock = 3
		bigBlock     = 4
		docsBlock    = 5
		readmeBlock  = 6
		dataBlock    = 16
	)
	secondExtentBlock := uint32(dataBlock) + bigBlocks(bigHalf)

	// Root directory: an extended file entry with embedded FIDs.
	rootFIDs := bytes.Join([][]byte{
		fidBytes(rootBlock, FIDDirectory|FIDParent, "", LongAD(blockSize, rootBlock, 0)),
		fidBytes(rootBlock, 0, "absolute_symlink", LongAD(blockSize, symlinkBlock, 0)),
		fidBytes(rootBlock, 0, "dummy_larger_file.bin", LongAD(blockSize, bigBlock, 0)),
		fidBytes(rootBlock, FIDDirectory, "docs", LongAD(blockSize, docsBlock, 0)),
		fidBytes(rootBlock, 0, "hello.txt", LongAD(blockSize, helloBlock, 0)),
	}, nil)
	putBlock(rootBlock, fileEntryBytes(rootBlock, udfFile{
		extended:  true,
		fileType:  4, // directory
		allocType: 3, // embedded
		permPosix: 0o755,
		links:     3,
		infoLen:   uint64(len(rootFIDs)),
		uniqueID:  0,
		tail:      rootFIDs,
	}))

	// Small file with embedded contents and rwxr--r-- permissions.
	putBlock(helloBlock, fileEntryBytes(helloBlock, udfFile{
		extended:  true,
		fileType:  5, // regular
		allocType: 3,
		permPosix: 0o744,
		links:     1,
		infoLen:   uint64(len(UDFHelloContents)),
		uniqueID:  17,
		tail:      UDFHelloContents,
	}))

	// Absolute symlink: path component records embedded in the entry.
	symlinkData := bytes.Join([][]byte{
		{2, 0, 0, 0}, // root
		append([]byte{5, byte(len(DChars("tmp"))), 0, 0}, DChars("tmp")...),
		append([]byte{5, byte(len(DChars("passwords.txt"))), 0, 0}, DChars("passwords.txt")...),
	}, nil)
	putBlock(symlinkBlock, fileEntryBytes(symlinkBlock, udfFile{
		extended:  true,
		fileType:  12, // symlink
		allocType: 3,
		permPosix: 0o777,
		links:     1,
		infoLen:   uint64(len(symlinkData)),
		uniqueID:  18,
		tail:      symlinkData,
	}))

	// Large file recorded as two short-allocated extents. Uses a plain
	// file entry to cover the non-extended layout.
	bigADs := bytes.Join([][]byte{
		ShortAD(uint32(bigHalf), dataBlock),
		ShortAD(uint32(cfg.BigFileSize-bigHalf), secondExtentBlock),
	}, nil)
	putBlock(bigBlock, fileEntryBytes(bigBlock, udfFile{
		extended:  false,
		fileType:  5,
		allocType: 0, // short descriptors
		permPosix: 0o644,
		links:     1,
		infoLen:   uint64(cfg.BigFileSize),
		uniqueID:  19,
		tail:      bigADs,
	}))

	// Subdirectory with one embedded file.
	docsFIDs := bytes.Join([][]byte{
		fidBytes(docsBlock, FIDDirectory|FIDParent, "", LongAD(blockSize, rootBlock, 0)),
		fidBytes(docsBlock, 0, "readme.txt", LongAD(blockSize, readmeBlock, 0)),
	}, nil)
	putBlock(docsBlock, fileEntryBytes(docsBlock, udfFile{
		extended:  true,
		fileType:  4,
		allocType: 3,
		permPosix: 0o755,
		links:     2,
		infoLen:   uint64(len(docsFIDs)),
		uniqueID:  20,
		tail:      docsFIDs,
	}))
	putBlock(readmeBlock, fileEntryBytes(readmeBlock, udfFile{
		extended:  true,
		fileType:  5,
		allocType: 3,
		permPosix: 0o644,
		links:     1,
		infoLen:   uint64(len(UDFReadmeContents)),
		uniqueID:  21,
		tail:      UDFReadmeContents,
	}))

	// Payload of the large file.
	big := bytes.Repeat([]byte{UDFBigFileByte}, bigHalf)
	putBlock(dataBlock, big)
	putBlock(secondExtentBlock, bytes.Repeat([]byte{UDFBigFileByte}, cfg.BigFileSize-bigHalf))
}

// BuildUDF returns a UDF-only image.
func BuildUDF(cfg UDFConfig) []byte {
	img := NewImage(cfg.SectorSize)
	BuildUDFInto(img, cfg)
	return img.Bytes()
}

// BuildHybridUDF returns an image carrying all four formats: the hybrid
// ISO9660+Joliet+Rock Ridge volume plus a UDF volume.
func BuildHybridUDF() []byte {
	img := NewImage(2048)
	BuildHybridInto(img)
	BuildUDFInto(img, UDFConfig{SectorSize: 2048, BigFileSize: 4096})
	return img.Bytes()
}
