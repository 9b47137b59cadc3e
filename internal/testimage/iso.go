package testimage

import (
	"strings"
)

// Fixture names shared by the ISO9660-family tests.
var (
	LongJolietName    = "100_character_long_filename_" + strings.Repeat("a", 68) + ".txt"
	LongRockridgeName = "long_filename_" + strings.Repeat("a", 236) + ".txt"
)

// Fixture file contents.
var (
	JolietContents    = []byte("My full filename should be supported on Joliet")
	RockridgeContents = []byte("My filename is really long!")
	HelloContents     = []byte("Hello World!\n")
)

// DirRecord builds one ISO9660 directory record. The system use area is
// appended after the identifier (and its padding byte when the identifier
// length is even); a trailing zero keeps the record length even.
func DirRecord(rawName []byte, extent, size uint32, flags byte, recorded []byte, systemUse []byte) []byte {
	nameLen := len(rawName)
	base := 33 + nameLen
	if nameLen%2 == 0 {
		base++
	}
	total := base + len(systemUse)
	if total%2 != 0 {
		total++
	}

	buf := make([]byte, total)
	buf[0] = byte(total)
	PutU32LSBMSB(buf, 2, extent)
	PutU32LSBMSB(buf, 10, size)
	copy(buf[18:25], recorded)
	buf[25] = flags
	PutU16LSBMSB(buf, 28, 1)
	buf[32] = byte(nameLen)
	copy(buf[33:], rawName)
	copy(buf[base:], systemUse)
	return buf
}

// Directory flag values.
const (
	FlagFile = 0x00
	FlagDir  = 0x02
)

// Self and parent identifiers of a directory.
var (
	NameSelf   = []byte{0x00}
	NameParent = []byte{0x01}
)

// PVDSector builds a primary (type 1) or supplementary (type 2) volume
// descriptor sector.
func PVDSector(vdType byte, systemID, volumeID []byte, ptSize, ptLoc uint32, rootRecord []byte, publisherID, preparerID, applicationID []byte) []byte {
	buf := make([]byte, 2048)
	buf[0] = vdType
	copy(buf[1:6], "CD001")
	buf[6] = 1
	copy(buf[8:40], PadTo(systemID, 32, ' '))
	copy(buf[40:72], PadTo(volumeID, 32, ' '))
	PutU32LSBMSB(buf, 80, 0x200)      // volume space size
	PutU16LSBMSB(buf, 120, 1)         // volume set size
	PutU16LSBMSB(buf, 124, 1)         // volume sequence number
	PutU16LSBMSB(buf, 128, 2048)      // logical block size
	PutU32LSBMSB(buf, 132, ptSize)    // path table size
	buf[140] = byte(ptLoc)            // type L path table (little endian)
	buf[141] = byte(ptLoc >> 8)
	buf[142] = byte(ptLoc >> 16)
	buf[143] = byte(ptLoc >> 24)
	copy(buf[156:190], rootRecord)
	copy(buf[190:318], PadTo(nil, 128, ' '))
	copy(buf[318:446], PadTo(publisherID, 128, ' '))
	copy(buf[446:574], PadTo(preparerID, 128, ' '))
	copy(buf[574:702], PadTo(applicationID, 128, ' '))
	for _, off := range []int{813, 830, 847, 864} {
		copy(buf[off:off+16], "0000000000000000")
	}
	buf[881] = 1 // file structure version
	return buf
}

// TerminatorSector builds the volume descriptor set terminator.
func TerminatorSector() []byte {
	buf := make([]byte, 2048)
	buf[0] = 255
	copy(buf[1:6], "CD001")
	buf[6] = 1
	return buf
}

// PathTableEntry builds one little-endian path table entry with its
// alignment padding.
func PathTableEntry(name []byte, extent uint32, parent uint16) []byte {
	size := 8 + len(name)
	if size%2 != 0 {
		size++
	}
	buf := make([]byte, size)
	buf[0] = byte(len(name))
	buf[2] = byte(extent)
	buf[3] = byte(extent >> 8)
	buf[4] = byte(extent >> 16)
	buf[5] = byte(extent >> 24)
	buf[6] = byte(parent)
	buf[7] = byte(parent >> 8)
	copy(buf[8:], name)
	return buf
}

// SUSPEntry builds one tagged system use entry.
func SUSPEntry(signature string, version byte, payload []byte) []byte {
	buf := make([]byte, 0, 4+len(payload))
	buf = append(buf, signature[0], signature[1], byte(4+len(payload)), version)
	return append(buf, payload...)
}

// SPEntry is the sharing protocol indicator carried by the root's first
// record.
func SPEntry() []byte {
	return SUSPEntry("SP", 1, []byte{0xBE, 0xEF, 0x00})
}

// EREntry announces the extension identifier in use.
func EREntry(identifier string) []byte {
	payload := []byte{byte(len(identifier)), 0, 0, 1}
	return SUSPEntry("ER", 1, append(payload, identifier...))
}

// CEEntry points at a continuation of the system use area.
func CEEntry(extent, offset, size uint32) []byte {
	payload := append(U32LSBMSB(extent), U32LSBMSB(offset)...)
	return SUSPEntry("CE", 1, append(payload, U32LSBMSB(size)...))
}

// PXEntry carries POSIX attributes.
func PXEntry(mode, nlinks, uid, gid uint32) []byte {
	payload := append(U32LSBMSB(mode), U32LSBMSB(nlinks)...)
	payload = append(payload, U32LSBMSB(uid)...)
	return SUSPEntry("PX", 1, append(payload, U32LSBMSB(gid)...))
}

// NMEntry carries (part of) the alternate name.
func NMEntry(flags byte, name string) []byte {
	return SUSPEntry("NM", 1, append([]byte{flags}, name...))
}

// TFEntry carries a timestamp vector. Stamps must match the flag bits in
// number and order.
func TFEntry(flags byte, stamps ...[]byte) []byte {
	payload := []byte{flags}
	for _, stamp := range stamps {
		payload = append(payload, stamp...)
	}
	return SUSPEntry("TF", 1, payload)
}

// SLComponent builds one symlink path component.
func SLComponent(flags byte, content string) []byte {
	return append([]byte{flags, byte(len(content))}, content...)
}

// SLEntry carries (part of) a symlink target.
func SLEntry(continueFlag byte, components ...[]byte) []byte {
	payload := []byte{continueFlag}
	for _, component := range components {
		payload = append(payload, component...)
	}
	return SUSPEntry("SL", 1, payload)
}

// CLEntry relocates a deep directory: its payload names the block of the
// real directory.
func CLEntry(block uint32) []byte {
	return SUSPEntry("CL", 1, U32LSBMSB(block))
}

// PLEntry links a relocated directory back to its original parent.
func PLEntry(block uint32) []byte {
	return SUSPEntry("PL", 1, U32LSBMSB(block))
}

// REEntry marks the physically relocated record inside rr_moved.
func REEntry() []byte {
	return SUSPEntry("RE", 1, nil)
}

// concat joins record byte slices into one directory extent.
func concat(records ...[]byte) []byte {
	var out []byte
	for _, rec := range records {
		out = append(out, rec...)
	}
	return out
}

// Hybrid image layout (2048-byte sectors).
const (
	hybridISOPathTable    = 20
	hybridJolietPathTable = 21
	HybridISORoot         = 28
	hybridISODirA         = 30
	hybridISODirAA        = 31
	hybridISODirB         = 32
	HybridJolietRoot      = 33
	hybridJolietDirA      = 34
	hybridJolietDirAA     = 35
	hybridJolietDirB      = 36
	hybridFileData        = 40
	hybridContinuation    = 41
)

// BuildHybridInto writes an ISO9660+Joliet+Rock Ridge volume into img: a
// small directory tree (/A/AA, /B), and one file recorded under an 8.3 name
// whose Rock Ridge alternate name and Joliet identifier are long. The file
// carries its PX and TF entries in a continuation area.
func BuildHybridInto(img *Image) {
	recorded := ShortTime(2024, 3, 9, 12, 40, 4, 4) // +01:00

	isoRoot := DirRecord(NameSelf, HybridISORoot, 2048, FlagDir, recorded, nil)[:34]
	jolietRoot := DirRecord(NameSelf, HybridJolietRoot, 2048, FlagDir, recorded, nil)[:34]

	isoPathTable := concat(
		PathTableEntry([]byte{0}, HybridISORoot, 1),
		PathTableEntry([]byte("A"), hybridISODirA, 1),
		PathTableEntry([]byte("AA"), hybridISODirAA, 2),
		PathTableEntry([]byte("B"), hybridISODirB, 1),
	)
	jolietPathTable := concat(
		PathTableEntry([]byte{0}, HybridJolietRoot, 1),
		PathTableEntry(UTF16BEBytes("a"), hybridJolietDirA, 1),
		PathTableEntry(UTF16BEBytes("aa"), hybridJolietDirAA, 2),
		PathTableEntry(UTF16BEBytes("b"), hybridJolietDirB, 1),
	)

	img.PutSector(16, PVDSector(1,
		[]byte("LINUX"), []byte("DISSECTGREATESTHITS"),
		uint32(len(isoPathTable)), hybridISOPathTable, isoRoot,
		[]byte("HACKSY"), []byte("HACKSY"), []byte("DISSECT.DISC")))
	// Joliet identifier fields are UTF-16BE and must be NUL padded; single
	// byte space padding would decode to garbage.
	img.PutSector(17, PVDSector(2,
		PadTo(append([]byte{0x00}, UTF16BEBytes("LINUX")...), 32, 0),
		UTF16BEBytes("DISSECTGREATESTH"),
		uint32(len(jolietPathTable)), hybridJolietPathTable, jolietRoot,
		PadTo(UTF16BEBytes("HACKSY"), 128, 0),
		PadTo(UTF16BEBytes("HACKSY"), 128, 0),
		PadTo(UTF16BEBytes("DISSECT.DISC"), 128, 0)))
	img.PutSector(18, TerminatorSector())

	img.PutSector(hybridISOPathTable, isoPathTable)
	img.PutSector(hybridJolietPathTable, jolietPathTable)

	// The continuation area holds the long file's PX and TF entries.
	continuation := concat(
		PXEntry(0o100444, 1, 0, 0),
		TFEntry(0x0E, // MODIFY | ACCESS | ATTRIBUTES
			ShortTime(2024, 3, 9, 12, 25, 25, 4),  // modify, +01:00
			ShortTime(2024, 7, 22, 8, 32, 25, 8),  // access, +02:00
			ShortTime(2024, 5, 21, 20, 29, 5, 8)), // attributes, +02:00
	)
	img.PutSector(hybridContinuation, continuation)

	longFileSystemUse := concat(
		NMEntry(0, LongJolietName),
		CEEntry(hybridContinuation, 0, uint32(len(continuation))),
	)

	img.PutSector(HybridISORoot, concat(
		DirRecord(NameSelf, HybridISORoot, 2048, FlagDir, recorded,
			concat(SPEntry(), EREntry("RRIP_1991A"))),
		DirRecord(NameParent, HybridISORoot, 2048, FlagDir, recorded, nil),
		DirRecord([]byte("100_CHAR.TXT;1"), hybridFileData, uint32(len(JolietContents)), FlagFile, recorded, longFileSystemUse),
		DirRecord([]byte("A"), hybridISODirA, 2048, FlagDir, recorded, nil),
		DirRecord([]byte("B"), hybridISODirB, 2048, FlagDir, recorded, nil),
	))
	img.PutSector(hybridISODirA, concat(
		DirRecord(NameSelf, hybridISODirA, 2048, FlagDir, recorded, nil),
		DirRecord(NameParent, HybridISORoot, 2048, FlagDir, recorded, nil),
		DirRecord([]byte("AA"), hybridISODirAA, 2048, FlagDir, recorded, nil),
	))
	img.PutSector(hybridISODirAA, concat(
		DirRecord(NameSelf, hybridISODirAA, 2048, FlagDir, recorded, nil),
		DirRecord(NameParent, hybridISODirA, 2048, FlagDir, recorded, nil),
	))
	img.PutSector(hybridISODirB, concat(
		DirRecord(NameSelf, hybridISODirB, 2048, FlagDir, recorded, nil),
		DirRecord(NameParent, HybridISORoot, 2048, FlagDir, recorded, nil),
	))

	jolietLongName := UTF16BEBytes(LongJolietName[:64])
	img.PutSector(HybridJolietRoot, concat(
		DirRecord(NameSelf, HybridJolietRoot, 2048, FlagDir, recorded, nil),
		DirRecord(NameParent, HybridJolietRoot, 2048, FlagDir, recorded, nil),
		DirRecord(jolietLongName, hybridFileData, uint32(len(JolietContents)), FlagFile, recorded, nil),
		DirRecord(UTF16BEBytes("a"), hybridJolietDirA, 2048, FlagDir, recorded, nil),
		DirRecord(UTF16BEBytes("b"), hybridJolietDirB, 2048, FlagDir, recorded, nil),
	))
	img.PutSector(hybridJolietDirA, concat(
		DirRecord(NameSelf, hybridJolietDirA, 2048, FlagDir, recorded, nil),
		DirRecord(NameParent, HybridJolietRoot, 2048, FlagDir, recorded, nil),
		DirRecord(UTF16BEBytes("aa"), hybridJolietDirAA, 2048, FlagDir, recorded, nil),
	))
	img.PutSector(hybridJolietDirAA, concat(
		DirRecord(NameSelf, hybridJolietDirAA, 2048, FlagDir, recorded, nil),
		DirRecord(NameParent, hybridJolietDirA, 2048, FlagDir, recorded, nil),
	))
	img.PutSector(hybridJolietDirB, concat(
		DirRecord(NameSelf, hybridJolietDirB, 2048, FlagDir, recorded, nil),
		DirRecord(NameParent, HybridJolietRoot, 2048, FlagDir, recorded, nil),
	))

	img.PutSector(hybridFileData, JolietContents)
}

// BuildHybrid returns an ISO9660+Joliet+Rock Ridge image.
func BuildHybrid() []byte {
	img := NewImage(2048)
	BuildHybridInto(img)
	return img.Bytes()
}

// JolietLongName is the Joliet rendition of the long fixture filename,
// cut to its first 64 characters by the Joliet identifier length limit.
func JolietLongName() string {
	return LongJolietName[:64]
}

// Rock Ridge image layout (2048-byte sectors).
const (
	rockridgePathTable = 20
	rockridgeRoot      = 28
	rockridgeDir1      = 30 // dirs 1..8 occupy 30..37
	rockridgeReal9     = 38
	rockridgeDir10     = 39
	rockridgeRRMoved   = 45
	rockridgeTestData  = 46
	rockridgeLongData  = 47
	rockridgeContArea  = 48
)

// BuildRockridge returns an ISO9660+Rock Ridge image with a relocated deep
// directory chain /1/2/3/4/5/6/7/8/9/10, long alternate names split across
// NM entries, and symlinks in both directions.
func BuildRockridge() []byte {
	img := NewImage(2048)
	recorded := ShortTime(2024, 3, 8, 17, 44, 8, 4) // +01:00

	rootRecord := DirRecord(NameSelf, rockridgeRoot, 2048, FlagDir, recorded, nil)[:34]
	pathTable := PathTableEntry([]byte{0}, rockridgeRoot, 1)

	img.PutSector(16, PVDSector(1,
		[]byte("LINUX"), []byte("CDROM"),
		uint32(len(pathTable)), rockridgePathTable, rootRecord,
		[]byte("HACKSY"), []byte("HACKSY"), []byte("DISSECT.DISC")))
	img.PutSector(17, TerminatorSector())
	img.PutSector(rockridgePathTable, pathTable)

	// The long root file name needs two NM entries, which do not fit the
	// 255-byte record alongside the PX entry: the tail moves to a
	// continuation area.
	longContinuation := concat(
		NMEntry(0x00, LongRockridgeName[150:]),
		PXEntry(0o100444, 1, 0, 0),
	)
	longSystemUse := concat(
		NMEntry(0x01, LongRockridgeName[:150]),
		CEEntry(rockridgeContArea, 0, uint32(len(longContinuation))),
	)

	// Downward symlink /test.txt.symlink -> 1/2/3/4/5/6/7/8/9/10/test.txt
	downComponents := [][]byte{}
	for _, elem := range []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "test.txt"} {
		downComponents = append(downComponents, SLComponent(0, elem))
	}
	downSL := SLEntry(0, downComponents...)

	img.PutSector(rockridgeRoot, concat(
		DirRecord(NameSelf, rockridgeRoot, 2048, FlagDir, recorded,
			concat(SPEntry(), EREntry("RRIP_1991A"))),
		DirRecord(NameParent, rockridgeRoot, 2048, FlagDir, recorded, nil),
		DirRecord([]byte("1"), rockridgeDir1, 2048, FlagDir, recorded, nil),
		DirRecord([]byte("LONG_FIL.TXT;1"), rockridgeLongData, uint32(len(RockridgeContents)), FlagFile, recorded,
			longSystemUse),
		DirRecord([]byte("RR_MOVED"), rockridgeRRMoved, 2048, FlagDir, recorded,
			concat(NMEntry(0, "rr_moved"))),
		DirRecord([]byte("TEST_TXT.SYM;1"), 0, 0, FlagFile, recorded,
			concat(NMEntry(0, "test.txt.symlink"), downSL, PXEntry(0o120777, 1, 0, 0))),
	))

	// Directories 1..8 chain into each other; 8 holds the relocation
	// placeholder for 9.
	for i := 0; i < 8; i++ {
		self := uint32(rockridgeDir1 + i)
		parent := uint32(rockridgeDir1 + i - 1)
		if i == 0 {
			parent = rockridgeRoot
		}

		records := concat(
			DirRecord(NameSelf, self, 2048, FlagDir, recorded, nil),
			DirRecord(NameParent, parent, 2048, FlagDir, recorded, nil),
		)
		if i < 7 {
			name := []byte{byte('2' + i)}
			records = concat(records, DirRecord(name, self+1, 2048, FlagDir, recorded, nil))
		} else {
			// The deep directory 9 was moved under rr_moved; this
			// placeholder relocates through a child link.
			records = concat(records, DirRecord([]byte("RRMOVED9"), 0, 0, FlagFile, recorded,
				concat(NMEntry(0, "9"), CLEntry(rockridgeReal9))))
		}
		img.PutSector(int64(self), records)
	}

	img.PutSector(rockridgeReal9, concat(
		DirRecord(NameSelf, rockridgeReal9, 2048, FlagDir, recorded, nil),
		DirRecord(NameParent, rockridgeRRMoved, 2048, FlagDir, recorded,
			concat(PLEntry(rockridgeDir1+7))),
		DirRecord([]byte("10"), rockridgeDir10, 2048, FlagDir, recorded, nil),
	))

	// Upward symlink: ten parent components, then an identifier split
	// across SL entries because it exceeds one entry's capacity.
	parentComponents := [][]byte{}
	for i := 0; i < 10; i++ {
		parentComponents = append(parentComponents, SLComponent(0x04, ""))
	}
	// The symlink target overflows one record as well: the identifier is
	// split across SL entries carried by the continuation area.
	upContinuation := concat(
		SLEntry(0x01, SLComponent(0x01, LongRockridgeName[:200])),
		SLEntry(0x00, SLComponent(0x00, LongRockridgeName[200:])),
		PXEntry(0o120777, 1, 0, 0),
	)
	upSystemUse := concat(
		NMEntry(0, "symlink_upwards.txt"),
		SLEntry(0x01, parentComponents...),
		CEEntry(rockridgeContArea, 1024, uint32(len(upContinuation))),
	)

	img.PutSector(rockridgeDir10, concat(
		DirRecord(NameSelf, rockridgeDir10, 2048, FlagDir, recorded, nil),
		DirRecord(NameParent, rockridgeReal9, 2048, FlagDir, recorded, nil),
		DirRecord([]byte("SYMLINK_.TXT;1"), 0, 0, FlagFile, recorded, upSystemUse),
		DirRecord([]byte("TEST.TXT;1"), rockridgeTestData, uint32(len(HelloContents)), FlagFile, recorded,
			concat(
				NMEntry(0, "test.txt"),
				PXEntry(0o100444, 1, 0, 0),
				TFEntry(0x0E,
					ShortTime(2024, 3, 8, 17, 44, 8, 4),    // modify
					ShortTime(2024, 3, 8, 17, 44, 54, 4),   // access
					ShortTime(2024, 3, 8, 17, 44, 8, 4)))), // attributes
	))

	img.PutSector(rockridgeRRMoved, concat(
		DirRecord(NameSelf, rockridgeRRMoved, 2048, FlagDir, recorded, nil),
		DirRecord(NameParent, rockridgeRoot, 2048, FlagDir, recorded, nil),
		DirRecord([]byte("RRMOVED9"), rockridgeReal9, 2048, FlagDir, recorded,
			concat(NMEntry(0, "9"), REEntry())),
	))

	continuations := make([]byte, 2048)
	copy(continuations, longContinuation)
	copy(continuations[1024:], upContinuation)
	img.PutSector(rockridgeContArea, continuations)

	img.PutSector(rockridgeTestData, HelloContents)
	img.PutSector(rockridgeLongData, RockridgeContents)

	return img.Bytes()
}
