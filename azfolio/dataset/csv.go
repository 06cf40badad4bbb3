package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ezquant/azfolio/azfolio/backtest"
	"github.com/ezquant/azfolio/azfolio/model"
)

// Header is the column layout written by the downloader.
var Header = []string{"date", "high", "low", "open", "close", "volume"}

var ErrMissingColumn = errors.New("missing csv column")

// Path returns the CSV location of a pair for a date range and trading period:
// <dir>/<pair>/<start>-<end>/<pair>_<start>-<end>_<period>.csv
func Path(dir, pair, start, end, period string) string {
	dateRange := fmt.Sprintf("%s-%s", start, end)
	return filepath.Join(dir, pair, dateRange, fmt.Sprintf("%s_%s_%s.csv", pair, dateRange, period))
}

// ReadFile reads a candle CSV from disk.
func ReadFile(path string) ([]model.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	candles, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return candles, nil
}

// ReadCSV parses candles by header name. Blank or invalid prices are back filled.
func ReadCSV(r io.Reader) ([]model.Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"date", "close"} {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	var (
		candles []model.Candle
		opens   []float64
		highs   []float64
		lows    []float64
		closes  []float64
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		unix, err := strconv.ParseInt(field(record, columns, "date"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date: %w", line, err)
		}

		candles = append(candles, model.Candle{
			Time:   time.Unix(unix, 0).UTC(),
			Volume: parsePrice(field(record, columns, "volume")),
		})
		opens = append(opens, parsePrice(field(record, columns, "open")))
		highs = append(highs, parsePrice(field(record, columns, "high")))
		lows = append(lows, parsePrice(field(record, columns, "low")))
		closes = append(closes, parsePrice(field(record, columns, "close")))
	}

	closes = backtest.Backfill(closes)
	opens = fallback(backtest.Backfill(opens), closes)
	highs = fallback(backtest.Backfill(highs), closes)
	lows = fallback(backtest.Backfill(lows), closes)

	for i := range candles {
		candles[i].Open = opens[i]
		candles[i].High = highs[i]
		candles[i].Low = lows[i]
		candles[i].Close = closes[i]
	}
	return candles, nil
}

// WriteCSV writes candles using Header.
func WriteCSV(w io.Writer, candles []model.Candle) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, c := range candles {
		err := writer.Write([]string{
			strconv.FormatInt(c.Time.Unix(), 10),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func field(record []string, columns map[string]int, name string) string {
	i, ok := columns[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parsePrice(s string) float64 {
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return value
}

// fallback replaces values still missing after back filling with the reference series.
func fallback(values, reference []float64) []float64 {
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = reference[i]
		}
	}
	return values
}
