package dump

import (
	"strings"
	"time"
)

// directiveMarker distinguishes schema/metadata lines from data lines.
const directiveMarker = '!'

// tryDirective parses a directive line. It returns false when the line is
// not a directive and should be decoded as data. Directive kinds this
// engine does not know are ignored so newer dump writers stay readable.
func (e *Engine) tryDirective(line []byte) bool {
	if len(line) == 0 || line[0] != directiveMarker {
		return false
	}
	words := strings.Fields(string(line[1:]))
	if len(words) == 0 {
		return true
	}
	switch words[0] {
	case "data", "contents":
		e.setSchema(words[1:])
	case "starttime":
		if len(words) >= 2 {
			if sec, usec, err := parseTimestampToken(words[1]); err == nil {
				e.startTime = time.Unix(int64(sec), int64(usec)*1000)
			}
		}
	}
	return true
}

// setSchema replaces the active schema wholesale. An unrecognized field
// name becomes a placeholder column so that later columns stay aligned; the
// rest of the declaration still takes effect.
func (e *Engine) setSchema(names []string) {
	schema := make([]ContentField, 0, len(names))
	for _, name := range names {
		f, ok := ParseContent(name)
		if !ok {
			if !e.schemaComplained {
				e.schemaComplained = true
				e.reporter.Warningf("ignoring unknown content field %q in schema directive (further complaints suppressed)", name)
			}
			f = FieldNone
		}
		schema = append(schema, f)
	}
	e.schema = schema
}
