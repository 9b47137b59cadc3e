package disc

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/bgrewell/disc-kit/internal/testimage"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogger collects log lines so tests can assert on diagnostics.
func captureLogger(lines *[]string) logr.Logger {
	return funcr.New(func(prefix, args string) {
		*lines = append(*lines, args)
	}, funcr.Options{})
}

func logged(lines []string, fragment string) bool {
	for _, line := range lines {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

func readAll(t *testing.T, entry filesystem.Entry) []byte {
	t.Helper()
	contents, err := entry.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(contents)
	require.NoError(t, err)
	return data
}

func TestOpenNoCompatibleFilesystem(t *testing.T) {
	_, err := Open(bytes.NewReader(make([]byte, 600*2048)))
	require.ErrorIs(t, err, filesystem.ErrNoCompatibleFilesystem)
}

func TestHybridDefaultsToRockridge(t *testing.T) {
	d, err := Open(bytes.NewReader(testimage.BuildHybrid()))
	require.NoError(t, err)
	assert.Equal(t, Rockridge, d.SelectedFormat())
	assert.Equal(t, []Format{Rockridge, Joliet, ISO9660}, d.AvailableFormats())
}

func TestAllFormatsDefaultToUDF(t *testing.T) {
	d, err := Open(bytes.NewReader(testimage.BuildHybridUDF()))
	require.NoError(t, err)
	assert.Equal(t, UDF, d.SelectedFormat())
	assert.Equal(t, []Format{UDF, Rockridge, Joliet, ISO9660}, d.AvailableFormats())

	// Operations forward to the UDF reader.
	assert.Equal(t, "LinuxUDF", d.Name())
	entry, err := d.Get("/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, testimage.UDFHelloContents, readAll(t, entry))
}

func TestPreferenceOverUDFWarns(t *testing.T) {
	var lines []string
	d, err := Open(bytes.NewReader(testimage.BuildHybridUDF()),
		WithPreference(Rockridge),
		WithLogger(captureLogger(&lines)))
	require.NoError(t, err)

	assert.Equal(t, Rockridge, d.SelectedFormat())
	assert.True(t, logged(lines, "Treating disc as rockridge even though UDF is available."))
}

func TestJolietOverRockridgeWarns(t *testing.T) {
	var lines []string
	d, err := Open(bytes.NewReader(testimage.BuildHybrid()),
		WithPreference(Joliet),
		WithLogger(captureLogger(&lines)))
	require.NoError(t, err)

	assert.Equal(t, Joliet, d.SelectedFormat())
	assert.True(t, logged(lines, "Treating disc as Joliet even though Rockridge is available."))
}

func TestFallbackWarns(t *testing.T) {
	var lines []string
	d, err := Open(bytes.NewReader(testimage.BuildHybrid()),
		WithPreference(UDF),
		WithLogger(captureLogger(&lines)))
	require.NoError(t, err)

	assert.Equal(t, Rockridge, d.SelectedFormat())
	assert.True(t, logged(lines, "udf format is not available for this disc. Falling back to rockridge."))
}

func TestNoWarningsWithoutPreference(t *testing.T) {
	var lines []string
	_, err := Open(bytes.NewReader(testimage.BuildHybrid()), WithLogger(captureLogger(&lines)))
	require.NoError(t, err)
	assert.False(t, logged(lines, "Falling back"))
	assert.False(t, logged(lines, "even though"))
}

func TestHybridContentsPerFormat(t *testing.T) {
	image := testimage.BuildHybrid()

	t.Run("Rockridge", func(t *testing.T) {
		d, err := Open(bytes.NewReader(image))
		require.NoError(t, err)
		entry, err := d.Get("/" + testimage.LongJolietName)
		require.NoError(t, err)
		assert.Equal(t, testimage.JolietContents, readAll(t, entry))
	})

	t.Run("Joliet", func(t *testing.T) {
		d, err := Open(bytes.NewReader(image), WithPreference(Joliet))
		require.NoError(t, err)
		entry, err := d.Get(testimage.JolietLongName())
		require.NoError(t, err)
		assert.Equal(t, testimage.JolietContents, readAll(t, entry))
	})

	t.Run("ISO9660", func(t *testing.T) {
		d, err := Open(bytes.NewReader(image), WithPreference(ISO9660))
		require.NoError(t, err)
		entry, err := d.Get("100_CHAR.TXT")
		require.NoError(t, err)
		assert.Equal(t, testimage.JolietContents, readAll(t, entry))
	})
}

func TestHybridVolumeMetadata(t *testing.T) {
	image := testimage.BuildHybrid()

	for _, format := range []Format{ISO9660, Rockridge} {
		d, err := Open(bytes.NewReader(image), WithPreference(format))
		require.NoError(t, err)
		assert.Equal(t, "DISSECTGREATESTHITS", d.Name())
		assert.Equal(t, "HACKSY", d.Publisher())
		assert.Equal(t, "DISSECT.DISC", d.Application())
	}

	d, err := Open(bytes.NewReader(image), WithPreference(Joliet))
	require.NoError(t, err)
	assert.Equal(t, "DISSECTGREATESTH", d.Name())
}

func TestPathTableLookup(t *testing.T) {
	image := testimage.BuildHybrid()

	for _, format := range []Format{ISO9660, Joliet, Rockridge} {
		walked, err := Open(bytes.NewReader(image), WithPreference(format))
		require.NoError(t, err)
		viaTable, err := Open(bytes.NewReader(image), WithPreference(format), WithPathTableLookup(true))
		require.NoError(t, err)

		name := "/" + testimage.LongJolietName
		if format == Joliet {
			name = "/" + testimage.JolietLongName()
		} else if format == ISO9660 {
			name = "/100_CHAR.TXT"
		}

		a, err := walked.Get(name)
		require.NoError(t, err, "format %s", format)
		b, err := viaTable.Get(name)
		require.NoError(t, err, "format %s", format)
		assert.Equal(t, readAll(t, a), readAll(t, b))
	}
}

func TestRockridgeDeepPath(t *testing.T) {
	d, err := Open(bytes.NewReader(testimage.BuildRockridge()))
	require.NoError(t, err)
	require.Equal(t, Rockridge, d.SelectedFormat())

	entry, err := d.Get("/1/2/3/4/5/6/7/8/9/10/test.txt")
	require.NoError(t, err)
	assert.Equal(t, testimage.HelloContents, readAll(t, entry))
	assert.EqualValues(t, 0o444, entry.Mode()&0o777)
}

func TestUDFOnlyDisc(t *testing.T) {
	cfg := testimage.UDFConfig{SectorSize: 2048, BigFileSize: 6000}
	d, err := Open(bytes.NewReader(testimage.BuildUDF(cfg)))
	require.NoError(t, err)

	assert.Equal(t, UDF, d.SelectedFormat())
	assert.Equal(t, []Format{UDF}, d.AvailableFormats())
	assert.Equal(t, "LinuxUDF", d.Name())
	assert.Equal(t, "*Linux mkudffs 2.3", d.Publisher())
	assert.Equal(t, "*Linux UDFFS", d.Application())

	symlink, err := d.Get("/absolute_symlink")
	require.NoError(t, err)
	target, err := symlink.Readlink()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/passwords.txt", target)
}

func TestPreferenceNotAvailableOnUDFOnlyDisc(t *testing.T) {
	var lines []string
	cfg := testimage.UDFConfig{SectorSize: 2048, BigFileSize: 6000}
	d, err := Open(bytes.NewReader(testimage.BuildUDF(cfg)),
		WithPreference(Rockridge),
		WithLogger(captureLogger(&lines)))
	require.NoError(t, err)

	assert.Equal(t, UDF, d.SelectedFormat())
	assert.True(t, logged(lines, "rockridge format is not available for this disc. Falling back to udf."))
}

func TestListdirRoundTrip(t *testing.T) {
	d, err := Open(bytes.NewReader(testimage.BuildHybrid()))
	require.NoError(t, err)

	root, err := d.Get("/")
	require.NoError(t, err)
	children, err := root.Iterdir()
	require.NoError(t, err)
	byName, err := root.Listdir()
	require.NoError(t, err)

	require.Len(t, byName, len(children))
	for _, child := range children {
		_, ok := byName[child.Name()]
		assert.True(t, ok, "missing %s", child.Name())
	}
}
