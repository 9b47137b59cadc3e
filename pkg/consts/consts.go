package consts

const (
	// Number of system area sectors preceding the volume descriptor set.
	ISO9660_SYSTEM_AREA_SECTORS = 16

	// Standard ISO9660 identifier.
	ISO9660_STD_IDENTIFIER = "CD001"

	// ISO9660 default sector size.
	ISO9660_SECTOR_SIZE = 2048

	// Offset of the first volume descriptor.
	ISO9660_VOLUME_DESC_START = ISO9660_SYSTEM_AREA_SECTORS * ISO9660_SECTOR_SIZE

	// Volume descriptor types.
	ISO9660_VD_PRIMARY       = 1
	ISO9660_VD_SUPPLEMENTARY = 2
	ISO9660_VD_TERMINATOR    = 255

	// Length of the directory record embedded in a volume descriptor.
	ISO9660_ROOT_RECORD_LENGTH = 34

	// Minimum length of any directory record (33 fixed bytes + 1 name byte).
	ISO9660_DIR_RECORD_MIN_LENGTH = 34

	// Separators allowed by ISO9660 0x2E and 0x3B.
	ISO9660_SEPARATOR_1 = "."
	ISO9660_SEPARATOR_2 = ";"
)

const (
	// SUSP indicator carried by the SP entry of the root's first record.
	SUSP_MAGIC = "SP\x07\x01\xbe\xef"

	// Bound on chained continuation areas when scanning a System Use Area.
	SUSP_DEFAULT_CONTINUATION_LIMIT = 16
)

// Rock Ridge extension identifiers accepted in an ER entry.
var ROCKRIDGE_IDENTIFIERS = []string{"RRIP_1991A", "IEEE_P1282", "IEEE_1282"}

const (
	// The anchor volume descriptor pointer lives at this logical sector.
	UDF_ANCHOR_SECTOR = 256

	// UDF tag identifiers (ECMA-167 3/7.2.1 and 4/7.2.1).
	UDF_TAG_PVD  = 0x0001
	UDF_TAG_AVDP = 0x0002
	UDF_TAG_PD   = 0x0005
	UDF_TAG_LVD  = 0x0006
	UDF_TAG_TD   = 0x0008
	UDF_TAG_FSD  = 0x0100
	UDF_TAG_FID  = 0x0101
	UDF_TAG_FE   = 0x0105
	UDF_TAG_EFE  = 0x010A

	// Type 2 partition map identifiers (UDF 2.60).
	UDF_PARTITION_SPARABLE = "*UDF Sparable Partition"
	UDF_PARTITION_VIRTUAL  = "*UDF Virtual Partition"
	UDF_PARTITION_METADATA = "*UDF Metadata Partition"
)

// Candidate logical sector sizes probed for the anchor descriptor, most
// common first.
var UDF_SECTOR_SIZES = []int64{2048, 4096, 1024, 512}
