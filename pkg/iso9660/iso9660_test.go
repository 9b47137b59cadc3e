package iso9660

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/bgrewell/disc-kit/internal/testimage"
	"github.com/bgrewell/disc-kit/pkg/encoding"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
	"github.com/bgrewell/disc-kit/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hybridReader(t *testing.T) *bytes.Reader {
	t.Helper()
	return bytes.NewReader(testimage.BuildHybrid())
}

func hybridProbe(t *testing.T) (*bytes.Reader, *ProbeResult) {
	t.Helper()
	r := hybridReader(t)
	probe, err := Probe(r, logging.DefaultLogger())
	require.NoError(t, err)
	return r, probe
}

func TestProbe(t *testing.T) {
	_, probe := hybridProbe(t)

	require.NotNil(t, probe.Primary)
	require.NotNil(t, probe.Joliet)
	assert.Len(t, probe.Descriptors, 3)
	assert.Equal(t, int64(19*2048), probe.DescriptorEndPos)
	assert.Equal(t, uint16(2048), probe.Primary.LogicalBlockSize)
}

func TestProbeNotISO(t *testing.T) {
	r := bytes.NewReader(make([]byte, 64*2048))
	_, err := Probe(r, logging.DefaultLogger())
	require.ErrorIs(t, err, filesystem.ErrInvalidVolumeDescID)
}

func TestProbeTruncated(t *testing.T) {
	r := bytes.NewReader(make([]byte, 2048))
	_, err := Probe(r, logging.DefaultLogger())
	require.Error(t, err)
}

func TestVolumeIdentifiers(t *testing.T) {
	r, probe := hybridProbe(t)

	fsys := NewFS(r, probe.Primary, Config{})
	assert.Equal(t, "DISSECTGREATESTHITS", fsys.Name())
	assert.Equal(t, "HACKSY", fsys.Publisher())
	assert.Equal(t, "DISSECT.DISC", fsys.Application())

	joliet := NewFS(r, probe.Joliet, Config{Decoder: encoding.UTF16BE})
	assert.Equal(t, "DISSECTGREATESTH", joliet.Name())
	assert.Equal(t, "HACKSY", joliet.Publisher())
}

func TestIterdir(t *testing.T) {
	r, probe := hybridProbe(t)
	fsys := NewFS(r, probe.Primary, Config{})

	root, err := fsys.Root()
	require.NoError(t, err)
	children, err := root.Iterdir()
	require.NoError(t, err)

	var names []string
	for _, child := range children {
		names = append(names, child.Name())
	}
	assert.Equal(t, []string{".", "..", "100_CHAR.TXT", "A", "B"}, names)
}

func TestListdirMatchesIterdir(t *testing.T) {
	r, probe := hybridProbe(t)
	fsys := NewFS(r, probe.Primary, Config{})

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

func TestGetAndOpen(t *testing.T) {
	r, probe := hybridProbe(t)
	fsys := NewFS(r, probe.Primary, Config{})

	entry, err := fsys.Get("/100_CHAR.TXT")
	require.NoError(t, err)
	assert.False(t, entry.IsDir())
	assert.Equal(t, int64(len(testimage.JolietContents)), entry.Size())

	contents, err := entry.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(contents)
	require.NoError(t, err)
	assert.Equal(t, testimage.JolietContents, data)
}

func TestGetNested(t *testing.T) {
	r, probe := hybridProbe(t)
	fsys := NewFS(r, probe.Primary, Config{})

	entry, err := fsys.Get("/A/AA")
	require.NoError(t, err)
	assert.True(t, entry.IsDir())
	assert.Equal(t, "AA", entry.Name())
	require.NotNil(t, entry.Parent())
	assert.Equal(t, "A", entry.Parent().Name())
}

func TestGetNotFound(t *testing.T) {
	r, probe := hybridProbe(t)
	fsys := NewFS(r, probe.Primary, Config{})

	_, err := fsys.Get("/A/does_not_exist.txt")
	require.ErrorIs(t, err, filesystem.ErrPathNotFound)
}

func TestGetThroughFile(t *testing.T) {
	r, probe := hybridProbe(t)
	fsys := NewFS(r, probe.Primary, Config{})

	_, err := fsys.Get("/100_CHAR.TXT/nope")
	require.ErrorIs(t, err, filesystem.ErrNotADirectory)
}

func TestOpenDirectory(t *testing.T) {
	r, probe := hybridProbe(t)
	fsys := NewFS(r, probe.Primary, Config{})

	entry, err := fsys.Get("/A")
	require.NoError(t, err)
	_, err = entry.Open()
	require.ErrorIs(t, err, filesystem.ErrNotAFile)
}

func TestPathTable(t *testing.T) {
	r, probe := hybridProbe(t)

	fsys := NewFS(r, probe.Primary, Config{})
	table, err := fsys.PathTable()
	require.NoError(t, err)
	assert.Equal(t, map[string]uint32{
		"/":     28,
		"/A":    30,
		"/A/AA": 31,
		"/B":    32,
	}, table)

	joliet := NewFS(r, probe.Joliet, Config{Decoder: encoding.UTF16BE})
	table, err = joliet.PathTable()
	require.NoError(t, err)
	assert.Equal(t, map[string]uint32{
		"/":     33,
		"/a":    34,
		"/a/aa": 35,
		"/b":    36,
	}, table)
}

func TestGetWithPathTable(t *testing.T) {
	r, probe := hybridProbe(t)
	fsys := NewFS(r, probe.Primary, Config{UsePathTable: true})

	t.Run("Directory", func(t *testing.T) {
		entry, err := fsys.Get("/A/AA")
		require.NoError(t, err)
		assert.True(t, entry.IsDir())
	})

	t.Run("FileInDirectory", func(t *testing.T) {
		entry, err := fsys.Get("/100_CHAR.TXT")
		require.NoError(t, err)
		contents, err := entry.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(contents)
		require.NoError(t, err)
		assert.Equal(t, testimage.JolietContents, data)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := fsys.Get("/A/does_not_exist.txt")
		require.ErrorIs(t, err, filesystem.ErrPathNotFound)
	})
}

func TestPathTableEquivalence(t *testing.T) {
	r, probe := hybridProbe(t)
	walkFS := NewFS(r, probe.Primary, Config{})
	tableFS := NewFS(r, probe.Primary, Config{UsePathTable: true})

	for _, path := range []string{"/100_CHAR.TXT"} {
		walked, err := walkFS.Get(path)
		require.NoError(t, err)
		looked, err := tableFS.Get(path)
		require.NoError(t, err)

		walkedStream, err := walked.Open()
		require.NoError(t, err)
		lookedStream, err := looked.Open()
		require.NoError(t, err)

		walkedData, err := io.ReadAll(walkedStream)
		require.NoError(t, err)
		lookedData, err := io.ReadAll(lookedStream)
		require.NoError(t, err)
		assert.Equal(t, walkedData, lookedData)
	}
}

func TestMetadataDefaults(t *testing.T) {
	r, probe := hybridProbe(t)
	fsys := NewFS(r, probe.Primary, Config{})

	entry, err := fsys.Get("/100_CHAR.TXT")
	require.NoError(t, err)

	recorded := time.Date(2024, 3, 9, 12, 40, 4, 0, time.FixedZone("", 3600))
	assert.True(t, entry.MTime().Equal(recorded))
	assert.True(t, entry.ATime().Equal(recorded))
	assert.True(t, entry.CTime().Equal(recorded))
	assert.True(t, entry.BTime().IsZero())

	assert.Equal(t, uint32(0), entry.UID())
	assert.Equal(t, uint32(0), entry.GID())
	assert.Equal(t, uint32(1), entry.Nlinks())
	assert.Equal(t, uint64(0), entry.Inode())
	assert.EqualValues(t, 0o644, entry.Mode()&0o777)
	assert.False(t, entry.IsSymlink())
	_, err = entry.Readlink()
	require.ErrorIs(t, err, filesystem.ErrNotASymlink)
}

func TestJolietNames(t *testing.T) {
	r, probe := hybridProbe(t)
	joliet := NewFS(r, probe.Joliet, Config{Decoder: encoding.UTF16BE})

	entry, err := joliet.Get("/" + testimage.JolietLongName())
	require.NoError(t, err)

	contents, err := entry.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(contents)
	require.NoError(t, err)
	assert.Equal(t, testimage.JolietContents, data)
}

func TestDirectoryRecordInvariants(t *testing.T) {
	t.Run("TooShort", func(t *testing.T) {
		_, err := UnmarshalDirectoryRecord(make([]byte, 10))
		require.Error(t, err)
	})

	t.Run("LengthBelowMinimum", func(t *testing.T) {
		data := make([]byte, 64)
		data[0] = 20
		_, err := UnmarshalDirectoryRecord(data)
		require.Error(t, err)
	})

	t.Run("SystemUseCopied", func(t *testing.T) {
		raw := testimage.DirRecord([]byte("X"), 5, 10, 0, testimage.ShortTime(2020, 1, 1, 0, 0, 0, 0), []byte{'N', 'M', 6, 1, 0, 'x'})
		rec, err := UnmarshalDirectoryRecord(raw)
		require.NoError(t, err)

		saved := append([]byte{}, rec.SystemUse...)
		for i := range raw {
			raw[i] = 0xFF
		}
		assert.Equal(t, saved, rec.SystemUse)
	})
}

func TestInterleavedRefused(t *testing.T) {
	raw := testimage.DirRecord([]byte("X"), 5, 10, 0, testimage.ShortTime(2020, 1, 1, 0, 0, 0, 0), nil)
	raw[27] = 1 // interleave gap
	rec, err := UnmarshalDirectoryRecord(raw)
	require.NoError(t, err)

	r, probe := hybridProbe(t)
	fsys := NewFS(r, probe.Primary, Config{})
	entry, err := fsys.NewEntry(rec, nil)
	require.NoError(t, err)

	_, err = entry.Open()
	require.ErrorIs(t, err, filesystem.ErrInterleaved)
}

func TestExtendedAttributesRefused(t *testing.T) {
	raw := testimage.DirRecord([]byte("X"), 5, 10, 0, testimage.ShortTime(2020, 1, 1, 0, 0, 0, 0), nil)
	raw[1] = 1 // extended attribute record length
	rec, err := UnmarshalDirectoryRecord(raw)
	require.NoError(t, err)

	r, probe := hybridProbe(t)
	fsys := NewFS(r, probe.Primary, Config{})
	entry, err := fsys.NewEntry(rec, nil)
	require.NoError(t, err)

	_, err = entry.Open()
	require.ErrorIs(t, err, filesystem.ErrExtendedAttributes)
}
