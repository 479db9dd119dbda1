package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-mail-etl/internal/domain"
)

// Result describes the file a converter produced.
type Result struct {
	Output string // path of the written file
	Rows   int    // data rows written; 0 for pass-through files
}

// Converter turns one attachment into an output file.
type Converter interface {
	Format() domain.Format
	Convert(ctx context.Context, att domain.Attachment) (Result, error)
}

// FileStore persists outputs and staged intermediates.
type FileStore interface {
	Save(dest domain.Destination, name string, data []byte) (string, error)
	Stage(name string, data []byte) error
	Promote(name string, dest domain.Destination) (string, error)
	Discard(name string) error
}

// EnergyHistoryConverter copies xlsx energy history unchanged.
type EnergyHistoryConverter struct {
	store FileStore
}

// NewEnergyHistoryConverter creates an EnergyHistoryConverter.
func NewEnergyHistoryConverter(store FileStore) *EnergyHistoryConverter {
	return &EnergyHistoryConverter{store: store}
}

func (c *EnergyHistoryConverter) Format() domain.Format { return domain.FormatEnergyHistory }

func (c *EnergyHistoryConverter) Convert(_ context.Context, att domain.Attachment) (Result, error) {
	path, err := c.store.Save(domain.DestinationEnergyHistory, att.FileName, att.Payload)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: path}, nil
}

// ReportConverter converts positional sn1/sn3 reports to CSV. The raw
// payload is staged first and stays in staging if conversion fails.
type ReportConverter struct {
	format  domain.Format
	convert func([]byte) (domain.Table, error)
	store   FileStore
}

// NewForecastConverter creates the sn3 converter.
func NewForecastConverter(store FileStore) *ReportConverter {
	return &ReportConverter{format: domain.FormatForecast, convert: domain.ConvertForecast, store: store}
}

// NewObservedConverter creates the sn1 converter.
func NewObservedConverter(store FileStore) *ReportConverter {
	return &ReportConverter{format: domain.FormatObserved, convert: domain.ConvertObserved, store: store}
}

func (c *ReportConverter) Format() domain.Format { return c.format }

func (c *ReportConverter) Convert(_ context.Context, att domain.Attachment) (Result, error) {
	if err := c.store.Stage(att.FileName, att.Payload); err != nil {
		return Result{}, err
	}

	table, err := c.convert(att.Payload)
	if err != nil {
		return Result{}, err
	}
	data, err := table.Encode()
	if err != nil {
		return Result{}, err
	}

	name := att.FileName + ".csv"
	if err := c.store.Stage(name, data); err != nil {
		return Result{}, err
	}
	path, err := c.store.Promote(name, domain.DestinationWeather)
	if err != nil {
		return Result{}, err
	}
	if err := c.store.Discard(att.FileName); err != nil {
		return Result{}, err
	}
	return Result{Output: path, Rows: len(table.Rows)}, nil
}

// IrradianceConverter joins an uploaded irradiance spreadsheet with weather
// service records. The output replaces the staged upload under the same name.
type IrradianceConverter struct {
	store    FileStore
	weather  domain.WeatherProvider
	location *time.Location
	logger   *slog.Logger
}

// NewIrradianceConverter creates the csv converter. Upload timestamps are read in loc.
func NewIrradianceConverter(store FileStore, weather domain.WeatherProvider, loc *time.Location, logger *slog.Logger) *IrradianceConverter {
	return &IrradianceConverter{store: store, weather: weather, location: loc, logger: logger}
}

func (c *IrradianceConverter) Format() domain.Format { return domain.FormatIrradiance }

func (c *IrradianceConverter) Convert(ctx context.Context, att domain.Attachment) (Result, error) {
	if err := c.store.Stage(att.FileName, att.Payload); err != nil {
		return Result{}, err
	}

	upload, err := domain.ParseIrradiance(att.Payload, c.location)
	if err != nil {
		return Result{}, err
	}
	table, err := domain.EnrichIrradiance(ctx, upload, c.weather, c.logger.With("file", att.FileName))
	if err != nil {
		return Result{}, err
	}
	data, err := table.Encode()
	if err != nil {
		return Result{}, err
	}

	if err := c.store.Stage(att.FileName, data); err != nil {
		return Result{}, err
	}
	path, err := c.store.Promote(att.FileName, domain.DestinationWeather)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: path, Rows: len(table.Rows)}, nil
}
