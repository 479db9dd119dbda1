package domain

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	dateTimeColumn = "dateTime"
	reportDate     = "DATE"
	reportTime     = "TIME"
	observedSuffix = "_o"
)

// auxiliaryColumns are dropped from both report kinds: two-wind and the
// high/low sounding markers.
var auxiliaryColumns = []string{reportTime, "TW", "HS", "CS"}

var forecastColumns = map[string]string{
	reportDate: dateTimeColumn,
	"T":        "temperature",
	"RH":       "humidity",
	"WS":       "windSpeed",
	"WD":       "windDirection",
	"CLM":      "cloudCover",
	"RRR":      "precipitation",
}

var observedColumns = map[string]string{
	reportDate: dateTimeColumn,
	"T":        "temperature",
	"RH":       "humidity",
	"WS":       "windSpeed",
	"WD":       "windDirection",
	"RAD":      "solarIrradiance",
	"RRR":      "precipitation",
}

// observedNumeric must parse as numbers in observed reports.
var observedNumeric = []string{"temperature", "humidity", "windSpeed", "windDirection", "solarIrradiance", "precipitation"}

// ConvertForecast turns an sn3 forecast report into a normalized table.
func ConvertForecast(payload []byte) (Table, error) {
	t, stamps, err := parseWeatherReport(FormatForecast, payload)
	if err != nil {
		return Table{}, err
	}

	dateIdx := t.Index(reportDate)
	for i, row := range t.Rows {
		row[dateIdx] = stamps[i].Format(OutputLayout)
	}
	t.DropColumns(auxiliaryColumns...)
	t.RenameColumns(forecastColumns)
	return t, nil
}

// ConvertObserved turns an sn1 observed report into a normalized table with
// one row per city and timestamp. Repeated readings are averaged and cities
// are suffixed with "_o".
func ConvertObserved(payload []byte) (Table, error) {
	t, stamps, err := parseWeatherReport(FormatObserved, payload)
	if err != nil {
		return Table{}, err
	}
	t.DropColumns(auxiliaryColumns...)
	t.RenameColumns(observedColumns)
	return aggregateObserved(t, stamps)
}

// parseWeatherReport parses the report and its DATE/TIME pair for every row.
func parseWeatherReport(format Format, payload []byte) (Table, []time.Time, error) {
	t, err := ParseReport(format, payload)
	if err != nil {
		return Table{}, nil, err
	}

	dateIdx, timeIdx := t.Index(reportDate), t.Index(reportTime)
	if dateIdx < 0 || timeIdx < 0 {
		return Table{}, nil, parseErrorf(format, 0, "header lacks %s or %s column", reportDate, reportTime)
	}

	stamps := make([]time.Time, len(t.Rows))
	for i, row := range t.Rows {
		ts, err := time.Parse(ReportLayout, row[dateIdx]+" "+row[timeIdx])
		if err != nil {
			return Table{}, nil, parseErrorf(format, 0, "row %d: timestamp %q %q: %v", i+1, row[dateIdx], row[timeIdx], err)
		}
		stamps[i] = ts
	}
	return t, stamps, nil
}

// observedGroup accumulates readings for one city and timestamp.
type observedGroup struct {
	city  string
	at    time.Time
	sums  []float64
	count []int
}

// aggregateObserved groups rows by (city, dateTime), averages the numeric
// columns, and drops columns that are not numeric throughout.
func aggregateObserved(t Table, stamps []time.Time) (Table, error) {
	cityIdx, dateIdx := t.Index(cityColumn), t.Index(dateTimeColumn)

	var valueIdx []int
	for i := range t.Columns {
		if i != cityIdx && i != dateIdx {
			valueIdx = append(valueIdx, i)
		}
	}

	values, keep, err := observedValues(t, valueIdx)
	if err != nil {
		return Table{}, err
	}

	type groupKey struct {
		city string
		unix int64
	}
	groups := make(map[groupKey]*observedGroup)
	var order []*observedGroup
	for r, row := range t.Rows {
		key := groupKey{city: row[cityIdx], unix: stamps[r].Unix()}
		g, ok := groups[key]
		if !ok {
			g = &observedGroup{
				city:  row[cityIdx],
				at:    stamps[r],
				sums:  make([]float64, len(valueIdx)),
				count: make([]int, len(valueIdx)),
			}
			groups[key] = g
			order = append(order, g)
		}
		for c := range valueIdx {
			if v := values[r][c]; v != nil {
				g.sums[c] += *v
				g.count[c]++
			}
		}
	}

	slices.SortStableFunc(order, func(a, b *observedGroup) int {
		if c := cmp.Compare(a.city, b.city); c != 0 {
			return c
		}
		return a.at.Compare(b.at)
	})

	out := Table{Columns: []string{cityColumn, dateTimeColumn}}
	for c, i := range valueIdx {
		if keep[c] {
			out.Columns = append(out.Columns, t.Columns[i])
		}
	}
	for _, g := range order {
		row := []string{g.city + observedSuffix, g.at.Format(OutputLayout)}
		for c := range valueIdx {
			if !keep[c] {
				continue
			}
			var mean *float64
			if g.count[c] > 0 {
				m := g.sums[c] / float64(g.count[c])
				mean = &m
			}
			row = append(row, formatFloat(mean))
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// observedValues coerces the value columns to floats. Designated numeric
// columns must parse; any other column is kept only if every value parses.
func observedValues(t Table, valueIdx []int) ([][]*float64, []bool, error) {
	values := make([][]*float64, len(t.Rows))
	for r := range values {
		values[r] = make([]*float64, len(valueIdx))
	}
	keep := make([]bool, len(valueIdx))

	for c, i := range valueIdx {
		required := slices.Contains(observedNumeric, t.Columns[i])
		keep[c] = true
		for r, row := range t.Rows {
			v, ok := parseReading(row[i])
			if !ok {
				if required {
					return nil, nil, parseErrorf(FormatObserved, 0, "row %d: %s value %q is not a number", r+1, t.Columns[i], row[i])
				}
				keep[c] = false
				break
			}
			values[r][c] = v
		}
	}
	return values, keep, nil
}

// parseReading strips stray underscores and parses a float. Empty cells are
// missing values, reported as (nil, true).
func parseReading(s string) (*float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", ""))
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}
