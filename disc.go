// Package disc opens optical disc images and exposes the filesystems
// recorded on them — ISO9660, Joliet, Rock Ridge and UDF — behind one
// read-only interface. Multiple formats commonly coexist on a single image;
// the disc probes all of them and selects one by caller preference with a
// fixed fallback order.
package disc

import (
	"errors"
	"fmt"
	"io"

	"github.com/bgrewell/disc-kit/pkg/encoding"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
	"github.com/bgrewell/disc-kit/pkg/iso9660"
	"github.com/bgrewell/disc-kit/pkg/logging"
	"github.com/bgrewell/disc-kit/pkg/rockridge"
	"github.com/bgrewell/disc-kit/pkg/udf"
)

// Format re-exports the format tag for callers of the facade.
type Format = filesystem.Format

const (
	ISO9660   = filesystem.ISO9660
	Joliet    = filesystem.Joliet
	Rockridge = filesystem.Rockridge
	UDF       = filesystem.UDF
)

// Disc is an opened disc image. It holds one reader per format found on the
// image and forwards operations to the selected one.
type Disc struct {
	r         io.ReaderAt
	log       *logging.Logger
	available map[Format]filesystem.FS
	selected  Format
}

// Open probes a disc image for every supported filesystem format and
// selects one. The ISO9660 family is probed first: Joliet falls out of the
// ISO9660 descriptor scan and Rock Ridge is only probed once ISO9660
// succeeded. UDF is probed independently. Open fails with
// ErrNoCompatibleFilesystem when nothing is found.
func Open(r io.ReaderAt, opts ...Option) (*Disc, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	log := logging.NewLogger(options.logger)

	d := &Disc{
		r:         r,
		log:       log,
		available: make(map[Format]filesystem.FS),
	}

	isoCfg := iso9660.Config{
		UsePathTable: options.usePathTable,
		Logger:       log,
	}

	probe, err := iso9660.Probe(r, log)
	if err != nil {
		log.Debug("no ISO9660 volume descriptor set", "error", err)
	} else {
		d.available[ISO9660] = iso9660.NewFS(r, probe.Primary, isoCfg)

		if probe.Joliet != nil {
			jolietCfg := isoCfg
			jolietCfg.Decoder = encoding.UTF16BE
			d.available[Joliet] = iso9660.NewFS(r, probe.Joliet, jolietCfg)
		}

		rr, err := rockridge.Probe(r, probe.Primary, isoCfg, options.continuationLimit)
		switch {
		case errors.Is(err, filesystem.ErrNotRockridge):
			// Not an error: the disc simply has no Rock Ridge extensions.
		case err != nil:
			log.Warn("Rock Ridge probe failed", "error", err)
		default:
			d.available[Rockridge] = rr
		}
	}

	udfFS, err := udf.Probe(r, log)
	switch {
	case errors.Is(err, filesystem.ErrNotUDF):
	case err != nil:
		log.Warn("UDF probe failed", "error", err)
	default:
		d.available[UDF] = udfFS
	}

	if len(d.available) == 0 {
		return nil, filesystem.ErrNoCompatibleFilesystem
	}

	if err := d.selectFormat(options.preference); err != nil {
		return nil, err
	}

	return d, nil
}

// selectFormat applies the caller preference, falling back through the
// default order when the preference is missing or absent on this disc.
func (d *Disc) selectFormat(preference *Format) error {
	if preference != nil {
		if _, ok := d.available[*preference]; ok {
			_, hasRockridge := d.available[Rockridge]
			_, hasUDF := d.available[UDF]

			if *preference == Joliet && hasRockridge {
				// When both are recorded, Rock Ridge usually holds more
				// information.
				d.log.Warn("Treating disc as Joliet even though Rockridge is available.")
			} else if *preference != UDF && hasUDF {
				d.log.Warn(fmt.Sprintf("Treating disc as %s even though UDF is available.", *preference))
			}

			d.selected = *preference
			return nil
		}
	}

	for _, format := range filesystem.DefaultPreferenceOrder {
		if _, ok := d.available[format]; ok {
			if preference != nil {
				d.log.Warn(fmt.Sprintf("%s format is not available for this disc. Falling back to %s.", *preference, format))
			}
			d.selected = format
			return nil
		}
	}

	return filesystem.ErrSelectionFailed
}

// SelectedFormat returns the format operations are forwarded to.
func (d *Disc) SelectedFormat() Format {
	return d.selected
}

// AvailableFormats lists the formats found on the disc in preference order.
func (d *Disc) AvailableFormats() []Format {
	var formats []Format
	for _, format := range filesystem.DefaultPreferenceOrder {
		if _, ok := d.available[format]; ok {
			formats = append(formats, format)
		}
	}
	return formats
}

// Fs returns the selected format's reader.
func (d *Disc) Fs() filesystem.FS {
	return d.available[d.selected]
}

// Get resolves an absolute path on the selected format.
func (d *Disc) Get(path string) (filesystem.Entry, error) {
	return d.Fs().Get(path)
}

// Name returns the volume name of the selected format.
func (d *Disc) Name() string {
	return d.Fs().Name()
}

// Publisher returns the publisher identifier of the selected format.
func (d *Disc) Publisher() string {
	return d.Fs().Publisher()
}

// Application returns the application identifier of the selected format.
func (d *Disc) Application() string {
	return d.Fs().Application()
}
