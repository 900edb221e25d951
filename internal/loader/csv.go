package loader

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads delimited rows and sends them to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // allow variable fields

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, f := range record {
					record[i] = strings.TrimSpace(f)
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// table streams r and hands the header and each data row to fn.
func table(ctx context.Context, r io.Reader, opts CSVOptions, fn func(header, row []string) error) error {
	rowCh, errCh := StreamCSV(ctx, r, opts)

	var header []string
	var fnErr error
	for row := range rowCh {
		if fnErr != nil {
			continue // drain so the producer can exit
		}
		if header == nil {
			header = row
			continue
		}
		fnErr = fn(header, row)
	}
	if err := <-errCh; err != nil {
		return err
	}
	if fnErr != nil {
		return fnErr
	}
	if header == nil {
		return eris.Wrap(ErrMissingColumns, "loader: empty table")
	}
	return nil
}

// OpenOptions configures Open.
type OpenOptions struct {
	// Encoding names the source character set, e.g. "latin1". Empty means UTF-8.
	Encoding string
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var first error
	for i := len(rc.closers) - 1; i >= 0; i-- {
		if err := rc.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens a table file, decompressing it when the name ends in ".gz" and
// transcoding it to UTF-8 when an encoding is given.
func Open(path string, opts OpenOptions) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open %s", path)
	}
	rc := &readCloser{Reader: f, closers: []io.Closer{f}}

	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, eris.Wrapf(err, "loader: gzip %s", path)
		}
		rc.Reader = gz
		rc.closers = append(rc.closers, gz)
	}

	if opts.Encoding != "" {
		dec, err := Decoder(rc.Reader, opts.Encoding)
		if err != nil {
			_ = rc.Close()
			return nil, err
		}
		rc.Reader = dec
	}
	return rc, nil
}

// Decoder wraps r so that it yields UTF-8 from the named character set.
func Decoder(r io.Reader, charset string) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}
