package susp

import (
	"bytes"
	"testing"

	"github.com/bgrewell/disc-kit/internal/testimage"
	"github.com/bgrewell/disc-kit/pkg/iso9660"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, name []byte, systemUse []byte) *iso9660.DirectoryRecord {
	t.Helper()
	raw := testimage.DirRecord(name, 10, 0, 0, testimage.ShortTime(2024, 1, 1, 0, 0, 0, 0), systemUse)
	rec, err := iso9660.UnmarshalDirectoryRecord(raw)
	require.NoError(t, err)
	return rec
}

func TestScanOddNameLength(t *testing.T) {
	// A one-byte identifier needs no alignment padding before the system
	// use area.
	rec := record(t, []byte{0x00}, testimage.PXEntry(0o100644, 1, 0, 0))

	area, err := Scan(bytes.NewReader(nil), 2048, rec, 0)
	require.NoError(t, err)
	require.True(t, area.Has("PX"))
	assert.Len(t, area.Entries("PX"), 1)
	assert.Equal(t, uint8(36), area.Entries("PX")[0].Length)
}

func TestScanEvenNameLength(t *testing.T) {
	// A two-byte identifier is followed by a padding byte the scanner must
	// skip.
	rec := record(t, []byte("AB"), testimage.PXEntry(0o100644, 1, 0, 0))

	area, err := Scan(bytes.NewReader(nil), 2048, rec, 0)
	require.NoError(t, err)
	assert.True(t, area.Has("PX"))
}

func TestScanSkipsLeadingSP(t *testing.T) {
	rec := record(t, []byte{0x00}, append(testimage.SPEntry(), testimage.EREntry("RRIP_1991A")...))

	area, err := Scan(bytes.NewReader(nil), 2048, rec, 0)
	require.NoError(t, err)
	assert.True(t, area.Has(SigExtensionsRef))

	er, err := UnmarshalExtensionsRef(area.Entries(SigExtensionsRef)[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "RRIP_1991A", er.Identifier)
	assert.Equal(t, uint8(1), er.Version)
}

func TestScanFollowsContinuation(t *testing.T) {
	continuation := append(testimage.PXEntry(0o100444, 1, 0, 0), testimage.NMEntry(0, "renamed")...)

	img := testimage.NewImage(2048)
	img.PutSector(5, continuation)
	rec := record(t, []byte{0x00}, testimage.CEEntry(5, 0, uint32(len(continuation))))

	area, err := Scan(bytes.NewReader(img.Bytes()), 2048, rec, 0)
	require.NoError(t, err)
	assert.True(t, area.Has("CE"))
	assert.True(t, area.Has("PX"))
	require.True(t, area.Has("NM"))
	assert.Equal(t, []byte{0, 'r', 'e', 'n', 'a', 'm', 'e', 'd'}, area.Entries("NM")[0].Data)
}

func TestScanContinuationOffset(t *testing.T) {
	payload := testimage.NMEntry(0, "offset")

	img := testimage.NewImage(2048)
	sector := make([]byte, 2048)
	copy(sector[100:], payload)
	img.PutSector(5, sector)
	rec := record(t, []byte{0x00}, testimage.CEEntry(5, 100, uint32(len(payload))))

	area, err := Scan(bytes.NewReader(img.Bytes()), 2048, rec, 0)
	require.NoError(t, err)
	assert.True(t, area.Has("NM"))
}

func TestScanContinuationLimit(t *testing.T) {
	// Each continuation area points at the next one, beyond the cap.
	img := testimage.NewImage(2048)
	for sector := int64(5); sector < 30; sector++ {
		img.PutSector(sector, testimage.CEEntry(uint32(sector)+1, 0, 28))
	}
	rec := record(t, []byte{0x00}, testimage.CEEntry(5, 0, 28))

	_, err := Scan(bytes.NewReader(img.Bytes()), 2048, rec, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "continuation")
}

func TestScanStopsAtPadding(t *testing.T) {
	systemUse := append(testimage.PXEntry(0o100644, 1, 0, 0), 0x00, 0x00, 0x00)
	rec := record(t, []byte{0x00}, systemUse)

	area, err := Scan(bytes.NewReader(nil), 2048, rec, 0)
	require.NoError(t, err)
	assert.True(t, area.Has("PX"))
	assert.False(t, area.Has("\x00\x00"))
}

func TestScanRejectsBadLength(t *testing.T) {
	rec := record(t, []byte{0x00}, []byte{'P', 'X', 2, 1})
	_, err := Scan(bytes.NewReader(nil), 2048, rec, 0)
	require.Error(t, err)
}

func TestScanRejectsOverflowLength(t *testing.T) {
	rec := record(t, []byte{0x00}, []byte{'P', 'X', 200, 1, 0, 0})
	_, err := Scan(bytes.NewReader(nil), 2048, rec, 0)
	require.Error(t, err)
}

func TestScanEmptyArea(t *testing.T) {
	rec := record(t, []byte("F.TXT;1"), nil)
	area, err := Scan(bytes.NewReader(nil), 2048, rec, 0)
	require.NoError(t, err)
	assert.False(t, area.Has("PX"))
}
