package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// CSV bar files use the same layout the fetch command writes:
// timestamp (unix ms), open, high, low, close, volume. A header row is
// optional on read and always written.

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// ReadCSV loads a bar series from a CSV file and validates ordering.
func ReadCSV(path string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSVFrom(f)
}

// ReadCSVFrom decodes bars from r. Lines that do not have six fields are
// rejected; a leading header row is skipped.
func ReadCSVFrom(r io.Reader) (Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6

	var s Series
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read bars line %d: %w", line, err)
		}
		if line == 1 && rec[0] == csvHeader[0] {
			continue
		}

		ms, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("read bars line %d: bad timestamp %q: %w", line, rec[0], err)
		}
		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("read bars line %d: bad %s %q: %w", line, csvHeader[i+1], rec[i+1], err)
			}
			vals[i] = v
		}

		s = append(s, Bar{
			Time:   time.UnixMilli(ms).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteCSV writes the series to path, header first, overwriting any
// existing file.
func WriteCSV(path string, s Series) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return err
	}
	for _, b := range s {
		rec := []string{
			strconv.FormatInt(b.Time.UnixMilli(), 10),
			fstr(b.Open),
			fstr(b.High),
			fstr(b.Low),
			fstr(b.Close),
			fstr(b.Volume),
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fstr(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
