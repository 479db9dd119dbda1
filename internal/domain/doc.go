// Package domain models the weather and energy attachments delivered by the
// data provider's mailbox and the normalized tables produced from them.
//
// # Attachment Formats
//
// The file extension (lower-cased) selects the format:
//
//	xlsx  energy history workbook, stored as-is
//	csv   solar irradiance upload (xlsx workbook or delimited text), enriched with weather data
//	sn3   forecast report, positional text
//	sn1   observed report, positional text
//
// # Positional Reports
//
// sn1 and sn3 reports are line oriented. The first character of a line decides its role:
//
//	2 1_SOFIA                          location marker, opens a city block ("sofia")
//	3 DATE   TIME  T    RH  WS  ...    header marker, column names
//	  ---------------------------      separator, ignored
//	  010124 0000  1.2  80  3   ...    data row of the current city
//
// The header marker token becomes the "city" column. City names drop the
// marker, the "1_" prefix, and are lower-cased. Dates are DDMMYY and times
// HHMM, combined into a single timestamp. The auxiliary columns TW, HS and CS
// are discarded. Observed readings may carry stray underscores ("12_3") that
// are removed before numeric coercion, and repeated readings for the same city
// and timestamp are averaged.
//
// # Irradiance Uploads
//
// The first row holds units and is skipped. The second row is the header:
// "Date", "Time", then one column per location (e.g. "Sofia-1"). Headers are
// lower-cased and de-hyphenated, so that column becomes location "sofia1".
// Date and time are DD/MM/YYYY and HH:MM.
//
// # Output
//
// Every table carries a "dateTime" column formatted DD/MM/YYYY HH:MM and a
// "city" column. Observed tables suffix the city with "_o".
package domain
