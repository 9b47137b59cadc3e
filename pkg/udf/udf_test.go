package udf

import (
	"bytes"
	"io"
	"io/fs"
	"testing"
	"time"

	"github.com/bgrewell/disc-kit/internal/testimage"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
	"github.com/bgrewell/disc-kit/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func udfFS(t *testing.T, cfg testimage.UDFConfig) *FS {
	t.Helper()
	fsys, err := Probe(bytes.NewReader(testimage.BuildUDF(cfg)), logging.DefaultLogger())
	require.NoError(t, err)
	return fsys
}

func smallUDF(t *testing.T) *FS {
	t.Helper()
	return udfFS(t, testimage.UDFConfig{SectorSize: 2048, BigFileSize: 6000})
}

func TestProbeNotUDF(t *testing.T) {
	_, err := Probe(bytes.NewReader(make([]byte, 600*2048)), logging.DefaultLogger())
	require.ErrorIs(t, err, filesystem.ErrNotUDF)
}

func TestProbeSectorSizes(t *testing.T) {
	for _, sectorSize := range []int64{2048, 512} {
		cfg := testimage.UDFConfig{SectorSize: sectorSize, BigFileSize: 3000}
		fsys := udfFS(t, cfg)
		assert.Equal(t, sectorSize, fsys.sectorSize)
		assert.Equal(t, "LinuxUDF", fsys.Name())
	}
}

func TestVolumeIdentifiers(t *testing.T) {
	fsys := smallUDF(t)
	assert.Equal(t, "LinuxUDF", fsys.Name())
	assert.Equal(t, "*Linux mkudffs 2.3", fsys.Publisher())
	assert.Equal(t, "*Linux UDFFS", fsys.Application())
}

func TestIterdir(t *testing.T) {
	fsys := smallUDF(t)

	root, err := fsys.Root()
	require.NoError(t, err)
	children, err := root.Iterdir()
	require.NoError(t, err)

	var names []string
	for _, child := range children {
		names = append(names, child.Name())
	}
	// On-disc order, with the parent reference skipped.
	assert.Equal(t, []string{"absolute_symlink", "dummy_larger_file.bin", "docs", "hello.txt"}, names)
}

func TestListdirMatchesIterdir(t *testing.T) {
	fsys := smallUDF(t)

	root, err := fsys.Root()
	require.NoError(t, err)
	children, err := root.Iterdir()
	require.NoError(t, err)
	byName, err := root.Listdir()
	require.NoError(t, err)

	require.Len(t, byName, len(children))
	for _, child := range children {
		assert.Contains(t, byName, child.Name())
	}
}

func TestEmbeddedFile(t *testing.T) {
	fsys := smallUDF(t)

	entry, err := fsys.Get("/hello.txt")
	require.NoError(t, err)
	assert.False(t, entry.IsDir())
	assert.Equal(t, int64(len(testimage.UDFHelloContents)), entry.Size())

	contents, err := entry.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(contents)
	require.NoError(t, err)
	assert.Equal(t, testimage.UDFHelloContents, data)
}

func TestNestedDirectory(t *testing.T) {
	fsys := smallUDF(t)

	entry, err := fsys.Get("/docs/readme.txt")
	require.NoError(t, err)
	contents, err := entry.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(contents)
	require.NoError(t, err)
	assert.Equal(t, testimage.UDFReadmeContents, data)

	require.NotNil(t, entry.Parent())
	assert.Equal(t, "docs", entry.Parent().Name())
}

func TestMultiExtentFile(t *testing.T) {
	cfg := testimage.DefaultUDFConfig()
	fsys := udfFS(t, cfg)

	entry, err := fsys.Get("/dummy_larger_file.bin")
	require.NoError(t, err)
	require.Equal(t, int64(cfg.BigFileSize), entry.Size())

	contents, err := entry.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(contents)
	require.NoError(t, err)
	require.Len(t, data, cfg.BigFileSize)
	assert.Equal(t, bytes.Repeat([]byte{testimage.UDFBigFileByte}, cfg.BigFileSize), data)
}

func TestAbsoluteSymlink(t *testing.T) {
	fsys := smallUDF(t)

	entry, err := fsys.Get("/absolute_symlink")
	require.NoError(t, err)
	require.True(t, entry.IsSymlink())

	target, err := entry.Readlink()
	require.NoError(t, err)
	assert.Equal(t, testimage.UDFSymlinkTarget, target)
}

func TestReadlinkOnRegularFile(t *testing.T) {
	fsys := smallUDF(t)

	entry, err := fsys.Get("/hello.txt")
	require.NoError(t, err)
	assert.False(t, entry.IsSymlink())
	_, err = entry.Readlink()
	require.ErrorIs(t, err, filesystem.ErrNotASymlink)
}

func TestModeAssembly(t *testing.T) {
	fsys := smallUDF(t)

	entry, err := fsys.Get("/hello.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 0o744, entry.Mode()&0o777)

	dir, err := fsys.Get("/docs")
	require.NoError(t, err)
	assert.EqualValues(t, 0o755, dir.Mode()&0o777)
	assert.True(t, dir.Mode().IsDir())
}

func TestModeSpecialBits(t *testing.T) {
	fe := &FileEntry{
		Permissions: testimage.StoredPerm(0o755),
		ICBTag:      ICBTag{FileType: FileTypeRegular, Flags: icbFlagSetUID | icbFlagSticky},
	}
	entry := &Entry{fe: fe}
	mode := entry.Mode()
	assert.EqualValues(t, 0o755, mode&0o777)
	assert.NotZero(t, mode&fs.ModeSetuid)
	assert.NotZero(t, mode&fs.ModeSticky)
	assert.Zero(t, mode&fs.ModeSetgid)
}

func TestMetadata(t *testing.T) {
	fsys := smallUDF(t)

	entry, err := fsys.Get("/hello.txt")
	require.NoError(t, err)

	plusTwo := time.FixedZone("", 2*3600)
	assert.True(t, entry.ATime().Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, plusTwo)))
	assert.True(t, entry.MTime().Equal(time.Date(2024, 6, 1, 11, 30, 0, 0, plusTwo)))
	assert.True(t, entry.CTime().Equal(time.Date(2024, 6, 1, 11, 45, 0, 0, plusTwo)))
	assert.True(t, entry.BTime().Equal(time.Date(2024, 5, 31, 9, 0, 0, 0, plusTwo)))

	assert.Equal(t, uint32(0), entry.UID())
	assert.Equal(t, uint32(0), entry.GID())
	assert.Equal(t, uint32(1), entry.Nlinks())
	assert.Equal(t, uint64(17), entry.Inode())
}

func TestOpenDirectoryRefused(t *testing.T) {
	fsys := smallUDF(t)

	dir, err := fsys.Get("/docs")
	require.NoError(t, err)
	_, err = dir.Open()
	require.ErrorIs(t, err, filesystem.ErrNotAFile)
}

func TestGetNotFound(t *testing.T) {
	fsys := smallUDF(t)
	_, err := fsys.Get("/missing.txt")
	require.ErrorIs(t, err, filesystem.ErrPathNotFound)
}

func TestTimestampTimezone(t *testing.T) {
	t.Run("Negative", func(t *testing.T) {
		stamp := testimage.UDFTime(2024, 1, 2, 3, 4, 5, -300)
		got := unmarshalTimestamp(stamp)
		_, offset := got.Zone()
		assert.Equal(t, -300*60, offset)
	})

	t.Run("Positive", func(t *testing.T) {
		stamp := testimage.UDFTime(2024, 1, 2, 3, 4, 5, 60)
		got := unmarshalTimestamp(stamp)
		_, offset := got.Zone()
		assert.Equal(t, 3600, offset)
		assert.Equal(t, 2024, got.Year())
	})
}

func TestDStringDecoding(t *testing.T) {
	t.Run("EightBit", func(t *testing.T) {
		decoded, err := decodeDString(testimage.DString("LinuxUDF", 32))
		require.NoError(t, err)
		assert.Equal(t, "LinuxUDF", decoded)
	})

	t.Run("SixteenBit", func(t *testing.T) {
		field := make([]byte, 32)
		field[0] = 16
		copy(field[1:], testimage.UTF16BEBytes("disc"))
		field[31] = 9
		decoded, err := decodeDString(field)
		require.NoError(t, err)
		assert.Equal(t, "disc", decoded)
	})

	t.Run("Empty", func(t *testing.T) {
		decoded, err := decodeDString(make([]byte, 32))
		require.NoError(t, err)
		assert.Equal(t, "", decoded)
	})

	t.Run("BadSelector", func(t *testing.T) {
		field := make([]byte, 8)
		field[0] = 12
		field[7] = 3
		_, err := decodeDString(field)
		require.ErrorIs(t, err, filesystem.ErrBadEncoding)
	})
}

func TestUnknownPartitionMapType(t *testing.T) {
	img := testimage.NewImage(2048)
	testimage.BuildUDFInto(img, testimage.UDFConfig{SectorSize: 2048, BigFileSize: 1000})
	raw := img.Bytes()

	// Corrupt the partition map type byte inside the LVD (sector 259,
	// descriptor body offset 424).
	raw[259*2048+16+424] = 7

	_, err := Probe(bytes.NewReader(raw), logging.DefaultLogger())
	require.ErrorIs(t, err, filesystem.ErrUnknownPartitionType)
}

func TestExtendedAllocationRefused(t *testing.T) {
	fe := &FileEntry{ICBTag: ICBTag{FileType: FileTypeRegular, Flags: AllocationExtended}}
	entry := &Entry{fe: fe}
	_, err := entry.Open()
	require.ErrorIs(t, err, filesystem.ErrUnsupportedAllocationType)
}

func TestVirtualPartitionRefused(t *testing.T) {
	partition := &VirtualPartition{Number: 1}
	_, err := partition.OpenExtent(0, 2048)
	require.ErrorIs(t, err, filesystem.ErrVirtualPartition)
}

func TestMetadataPartitionRefused(t *testing.T) {
	partition := &MetadataPartition{Number: 1}
	_, err := partition.OpenExtent(0, 2048)
	require.ErrorIs(t, err, filesystem.ErrMetadataPartition)
}

func TestSparableRemapRefused(t *testing.T) {
	base := PhysicalPartition{r: bytes.NewReader(make([]byte, 1<<20)), sectorSize: 2048, Start: 0, Length: 256}
	partition := &SparablePartition{
		PhysicalPartition: base,
		PacketLength:      16,
		Remap:             map[uint32]uint32{32: 128},
	}

	// A read inside the remapped packet is refused.
	_, err := partition.OpenExtent(33, 2048)
	require.ErrorIs(t, err, filesystem.ErrSparableRemap)

	// A read into the spared destination is refused too.
	_, err = partition.OpenExtent(128, 2048)
	require.ErrorIs(t, err, filesystem.ErrSparableRemap)

	// Reads outside any remapped packet pass through.
	_, err = partition.OpenExtent(64, 2048)
	require.NoError(t, err)
}
