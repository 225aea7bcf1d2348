package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"QuantBench/internal/model"
)

// Cache stores fetched bars keyed by source, symbol, timeframe and range.
type Cache interface {
	Get(source, symbol string, tf model.Timeframe, start, end time.Time) ([]model.OHLCV, bool, error)
	Put(source, symbol string, tf model.Timeframe, start, end time.Time, bars []model.OHLCV) error
}

type barRow struct {
	Time   int64   `parquet:"time"`
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume float64 `parquet:"volume"`
}

// ParquetCache keeps one parquet file per request under Dir.
type ParquetCache struct {
	Dir string
}

// NewParquetCache creates a cache rooted at dir.
func NewParquetCache(dir string) *ParquetCache {
	return &ParquetCache{Dir: dir}
}

// Path returns <dir>/<source>/<timeframe>/<SYMBOL>_<start>_<end>.parquet.
func (c *ParquetCache) Path(source, symbol string, tf model.Timeframe, start, end time.Time) string {
	name := fmt.Sprintf("%s_%s_%s.parquet",
		strings.ToUpper(symbol), start.UTC().Format("20060102T1504"), end.UTC().Format("20060102T1504"))
	return filepath.Join(c.Dir, source, string(tf), name)
}

func (c *ParquetCache) Get(source, symbol string, tf model.Timeframe, start, end time.Time) ([]model.OHLCV, bool, error) {
	path := c.Path(source, symbol, tf, start, end)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	rows, err := parquet.ReadFile[barRow](path)
	if err != nil {
		return nil, false, fmt.Errorf("read cache %s: %w", path, err)
	}
	bars := make([]model.OHLCV, len(rows))
	for i, r := range rows {
		bars[i] = model.OHLCV{
			Time:   time.Unix(0, r.Time).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return bars, true, nil
}

// Put writes to a temp file and renames it so readers never see a partial file.
func (c *ParquetCache) Put(source, symbol string, tf model.Timeframe, start, end time.Time, bars []model.OHLCV) error {
	path := c.Path(source, symbol, tf, start, end)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	rows := make([]barRow, len(bars))
	for i, b := range bars {
		rows[i] = barRow{
			Time:   b.Time.UnixNano(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bars-*.parquet")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := parquet.Write(tmp, rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
