package domain

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

// irradianceLayouts are the accepted "Date Time" forms of an upload row.
var irradianceLayouts = []string{
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
}

// irradianceColumns is the column order of an enriched irradiance table.
var irradianceColumns = []string{
	cityColumn, dateTimeColumn,
	"temperature", "humidity", "windSpeed", "windDirection", "cloudCover", "precipitation", "solarIrradiance",
}

// IrradianceUpload holds the measurements of an irradiance spreadsheet: one
// series per location, aligned with Times.
type IrradianceUpload struct {
	Locations []string
	Times     []time.Time
	Values    map[string][]string // normalized numbers, "" when missing
}

// Window returns the first and last measurement times formatted for the
// weather service.
func (u IrradianceUpload) Window() (from, to string) {
	first, last := u.Times[0], u.Times[0]
	for _, t := range u.Times[1:] {
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	return first.Format(WindowLayout), last.Format(WindowLayout)
}

// ParseIrradiance reads an irradiance spreadsheet. The first row (units) is
// skipped, the second is the header. Timestamps are read in loc.
func ParseIrradiance(payload []byte, loc *time.Location) (IrradianceUpload, error) {
	rows, err := ReadSpreadsheet(payload)
	if err != nil {
		return IrradianceUpload{}, parseErrorf(FormatIrradiance, 0, "%v", err)
	}
	if len(rows) < 2 {
		return IrradianceUpload{}, parseErrorf(FormatIrradiance, 0, "missing header row")
	}

	header := rows[1]
	dateIdx, timeIdx := -1, -1
	var locationIdx []int
	var locations []string
	for i, h := range header {
		name := normalizeHeader(h)
		switch name {
		case "date":
			dateIdx = i
		case "time":
			timeIdx = i
		case "":
		default:
			if slices.Contains(locations, name) {
				return IrradianceUpload{}, parseErrorf(FormatIrradiance, 2, "duplicate location column %q", name)
			}
			locationIdx = append(locationIdx, i)
			locations = append(locations, name)
		}
	}
	if dateIdx < 0 || timeIdx < 0 {
		return IrradianceUpload{}, parseErrorf(FormatIrradiance, 2, "header lacks Date or Time column")
	}

	upload := IrradianceUpload{
		Locations: locations,
		Values:    make(map[string][]string, len(locations)),
	}
	for r, row := range rows[2:] {
		line := r + 3
		if isBlankRow(row) {
			continue
		}

		stamp := strings.TrimSpace(cell(row, dateIdx)) + " " + strings.TrimSpace(cell(row, timeIdx))
		ts, err := parseIrradianceTime(stamp, loc)
		if err != nil {
			return IrradianceUpload{}, parseErrorf(FormatIrradiance, line, "timestamp %q: %v", stamp, err)
		}
		upload.Times = append(upload.Times, ts)

		for j, i := range locationIdx {
			v, err := normalizeNumber(cell(row, i))
			if err != nil {
				return IrradianceUpload{}, parseErrorf(FormatIrradiance, line, "%s: %v", locations[j], err)
			}
			upload.Values[locations[j]] = append(upload.Values[locations[j]], v)
		}
	}
	if len(upload.Times) == 0 {
		return IrradianceUpload{}, parseErrorf(FormatIrradiance, 0, "no measurement rows")
	}
	return upload, nil
}

// EnrichIrradiance fetches weather observations for every uploaded location
// and joins the uploaded irradiance onto them by timestamp. Every observation
// is kept; its solarIrradiance comes from the upload and is empty when the
// upload has no reading at that time. A location whose weather is unavailable
// or whose token exchange fails contributes no rows.
func EnrichIrradiance(ctx context.Context, upload IrradianceUpload, weather WeatherProvider, logger *slog.Logger) (Table, error) {
	from, to := upload.Window()

	combined := make(map[string][]Observation, len(upload.Locations))
	for _, location := range upload.Locations {
		records, err := weather.Observations(ctx, from, to, location)
		if err != nil {
			if IsAuthError(err) {
				logger.Warn("weather token exchange failed, skipping location",
					"location", location, "from", from, "to", to, "error", err)
				continue
			}
			return Table{}, fmt.Errorf("weather records for %s: %w", location, err)
		}
		if len(records) == 0 {
			logger.Warn("no weather records for location", "location", location, "from", from, "to", to)
		}
		for i := range records {
			records[i].City = location
		}
		combined[location] = records
	}

	out := Table{Columns: append([]string(nil), irradianceColumns...)}
	for _, location := range upload.Locations {
		uploaded := make(map[int64]string, len(upload.Times))
		for i, t := range upload.Times {
			uploaded[t.Unix()] = upload.Values[location][i]
		}

		for _, o := range combined[location] {
			out.Rows = append(out.Rows, []string{
				o.City,
				o.Time.Format(OutputLayout),
				formatFloat(o.Temperature),
				formatFloat(o.Humidity),
				formatFloat(o.WindSpeed),
				formatFloat(o.WindDirection),
				formatFloat(o.CloudCover),
				formatFloat(o.Precipitation),
				uploaded[o.Time.Unix()],
			})
		}
	}
	return out, nil
}

// normalizeHeader lower-cases a header and removes hyphens: "Sofia-1" -> "sofia1".
func normalizeHeader(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), "-", "")
}

func parseIrradianceTime(s string, loc *time.Location) (time.Time, error) {
	var err error
	for _, layout := range irradianceLayouts {
		var ts time.Time
		if ts, err = time.ParseInLocation(layout, s, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, err
}

func normalizeNumber(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", fmt.Errorf("value %q is not a number", s)
	}
	return formatFloat(&v), nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
