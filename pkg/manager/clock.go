package manager

import (
	"regexp"
	"strings"
	"time"
)

// Container name formats use strftime placeholders, matching the formats
// research groups already keep in their settings files. Only the directives
// below are recognized; anything else passes through literally.
var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
}

// Strftime expands the date/time placeholders of format against t.
func Strftime(format string, t time.Time) string {
	var out strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i == len(format)-1 {
			out.WriteByte(format[i])
			continue
		}
		i++
		switch {
		case format[i] == '%':
			out.WriteByte('%')
		case strftimeDirectives[format[i]] != "":
			out.WriteString(t.Format(strftimeDirectives[format[i]]))
		default:
			out.WriteByte('%')
			out.WriteByte(format[i])
		}
	}
	return out.String()
}

// StrftimePattern compiles a name format into a regexp matching every name
// the format can produce, so containers created from it can be recognized
// later.
func StrftimePattern(format string) *regexp.Regexp {
	var out strings.Builder
	out.WriteString("^")
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i == len(format)-1 {
			out.WriteString(regexp.QuoteMeta(string(format[i])))
			continue
		}
		i++
		switch {
		case format[i] == '%':
			out.WriteString("%")
		case strftimeDirectives[format[i]] != "":
			out.WriteString(`\d{` + digits(format[i]) + `}`)
		default:
			out.WriteString(regexp.QuoteMeta("%" + string(format[i])))
		}
	}
	out.WriteString("$")
	return regexp.MustCompile(out.String())
}

func digits(directive byte) string {
	if directive == 'Y' {
		return "4"
	}
	return "2"
}
