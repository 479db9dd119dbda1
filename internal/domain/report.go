package domain

import (
	"bufio"
	"bytes"
	"slices"
	"strings"
)

const (
	locationMarker = '2'
	headerMarker   = '3'
	cityPrefix     = "1_"
	cityColumn     = "city"
)

// reportState tracks where the positional parser is in a report.
type reportState int

const (
	seekHeader  reportState = iota // no header line seen yet
	seekCity                       // header known, no city block open
	inCityBlock                    // data rows belong to the current city
)

// lineKind is the role of a report line, decided by its first character.
type lineKind int

const (
	lineOther lineKind = iota
	lineBlank
	lineLocation
	lineHeader
	lineSeparator
	lineData
)

func classifyLine(line string) lineKind {
	if strings.TrimSpace(line) == "" {
		return lineBlank
	}
	switch line[0] {
	case locationMarker:
		return lineLocation
	case headerMarker:
		return lineHeader
	case ' ', '\t':
		if strings.HasPrefix(strings.TrimSpace(line), "-") {
			return lineSeparator
		}
		return lineData
	default:
		return lineOther
	}
}

// reportParser turns a positional report into a table whose first column is
// the city of each data row.
type reportParser struct {
	format  Format
	state   reportState
	city    string
	columns []string
	rows    [][]string
}

// ParseReport reads a positional text report (sn1/sn3) into a raw table.
// Column names are taken verbatim from the header line, with the header
// marker renamed to "city".
func ParseReport(format Format, payload []byte) (Table, error) {
	p := &reportParser{format: format, state: seekHeader}

	sc := bufio.NewScanner(bytes.NewReader(payload))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(scanLines)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if err := p.feed(lineNo, sc.Text()); err != nil {
			return Table{}, err
		}
	}
	if err := sc.Err(); err != nil {
		return Table{}, parseErrorf(format, lineNo, "read report: %v", err)
	}

	if p.columns == nil {
		return Table{}, parseErrorf(format, 0, "no header line")
	}
	return Table{Columns: p.columns, Rows: p.rows}, nil
}

// scanLines is a bufio.SplitFunc that ends lines on "\n", "\r\n" or a bare "\r".
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	i := bytes.IndexAny(data, "\r\n")
	switch {
	case i < 0:
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	case data[i] == '\n':
		return i + 1, data[:i], nil
	case i+1 < len(data):
		if data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	case atEOF:
		return i + 1, data[:i], nil
	default:
		// a trailing "\r" may be the first half of "\r\n"
		return 0, nil, nil
	}
}

func (p *reportParser) feed(lineNo int, line string) error {
	switch classifyLine(line) {
	case lineLocation:
		p.city = parseCity(line)
		if p.city == "" {
			return parseErrorf(p.format, lineNo, "location line without a name")
		}
		if p.state != seekHeader {
			p.state = inCityBlock
		}
	case lineHeader:
		return p.header(lineNo, line)
	case lineData:
		return p.data(lineNo, line)
	case lineBlank, lineSeparator, lineOther:
	}
	return nil
}

func (p *reportParser) header(lineNo int, line string) error {
	columns := append([]string{cityColumn}, strings.Fields(line[1:])...)
	if len(columns) < 2 {
		return parseErrorf(p.format, lineNo, "empty header line")
	}

	if p.state == seekHeader {
		p.columns = columns
		p.state = seekCity
		if p.city != "" {
			p.state = inCityBlock
		}
		return nil
	}

	if !slices.Equal(p.columns, columns) {
		return parseErrorf(p.format, lineNo, "header %v differs from %v", columns[1:], p.columns[1:])
	}
	return nil
}

func (p *reportParser) data(lineNo int, line string) error {
	switch p.state {
	case seekHeader:
		return parseErrorf(p.format, lineNo, "data row before header line")
	case seekCity:
		return parseErrorf(p.format, lineNo, "data row outside a location block")
	}

	fields := strings.Fields(line)
	if len(fields)+1 > len(p.columns) {
		return parseErrorf(p.format, lineNo, "%d values for %d columns", len(fields), len(p.columns)-1)
	}

	row := make([]string, len(p.columns))
	row[0] = p.city
	copy(row[1:], fields)
	p.rows = append(p.rows, row)
	return nil
}

// parseCity extracts the city name from a location line, e.g. "2 1_SOFIA" -> "sofia".
func parseCity(line string) string {
	name := strings.TrimSpace(line[1:])
	name = strings.TrimPrefix(name, cityPrefix)
	return strings.ToLower(name)
}
