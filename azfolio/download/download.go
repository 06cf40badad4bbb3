package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"

	"github.com/ezquant/azfolio/azfolio/dataset"
	"github.com/ezquant/azfolio/azfolio/exchange"
	"github.com/ezquant/azfolio/azfolio/model"
	"github.com/ezquant/azfolio/azfolio/tools/log"
)

// DateLayout is the layout of start and end dates in data paths.
const DateLayout = "20060102"

type Downloader struct {
	exchange exchange.Feeder
}

func NewDownloader(exchange exchange.Feeder) Downloader {
	return Downloader{
		exchange: exchange,
	}
}

// Download fetches the candles of pair between start and end (YYYYMMDD, inclusive)
// and writes them to the dataset path under dir. It returns the written file.
func (d Downloader) Download(ctx context.Context, pair, period, start, end, dir string) (string, error) {
	from, err := time.Parse(DateLayout, start)
	if err != nil {
		return "", fmt.Errorf("invalid start date %q: %w", start, err)
	}
	to, err := time.Parse(DateLayout, end)
	if err != nil {
		return "", fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if !from.Before(to) {
		return "", fmt.Errorf("start date %s must be before end date %s", start, end)
	}
	to = to.Add(24*time.Hour - time.Second)

	log.Infof("downloading %s (%s) from %s to %s", pair, period, start, end)
	candles, err := d.exchange.CandlesByPeriod(ctx, pair, period, from, to)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", pair, err)
	}

	candles = lo.UniqBy(candles, func(c model.Candle) int64 {
		return c.Time.Unix()
	})
	if len(candles) == 0 {
		return "", fmt.Errorf("download %s: %w", pair, dataset.ErrNotEnoughPeriods)
	}

	path := dataset.Path(dir, pair, start, end, period)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := dataset.WriteCSV(file, candles); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	log.Infof("%d candles of %s saved to %s", len(candles), pair, path)
	return path, nil
}

// DownloadAll downloads every pair, stopping at the first error.
func (d Downloader) DownloadAll(ctx context.Context, pairs []string, period, start, end, dir string) ([]string, error) {
	paths := make([]string, 0, len(pairs))
	for _, pair := range lo.Uniq(pairs) {
		path, err := d.Download(ctx, pair, period, start, end, dir)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
