package pipeline

import "github.com/couchcryptid/weather-mail-etl/internal/domain"

// extensionFormats maps a lower-case attachment extension to its conversion.
var extensionFormats = map[string]domain.Format{
	"xlsx": domain.FormatEnergyHistory,
	"csv":  domain.FormatIrradiance,
	"sn3":  domain.FormatForecast,
	"sn1":  domain.FormatObserved,
}

// Dispatcher selects the converter for an attachment by its extension.
type Dispatcher struct {
	converters map[domain.Format]Converter
}

// NewDispatcher registers converters by the format they handle. A later
// converter for the same format replaces an earlier one.
func NewDispatcher(converters ...Converter) *Dispatcher {
	d := &Dispatcher{converters: make(map[domain.Format]Converter, len(converters))}
	for _, c := range converters {
		d.converters[c.Format()] = c
	}
	return d
}

// Lookup returns the converter for att, or false when its extension is not
// handled.
func (d *Dispatcher) Lookup(att domain.Attachment) (Converter, bool) {
	format, ok := extensionFormats[att.Extension()]
	if !ok {
		return nil, false
	}
	c, ok := d.converters[format]
	return c, ok
}
