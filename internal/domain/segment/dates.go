package segment

import (
	"regexp"
	"strconv"
	"time"

	"github.com/ehr/visitrecon/internal/domain/record"
)

type dateOrder int

const (
	monthDayYear dateOrder = iota
	yearMonthDay
	monthDayShortYear
)

type datePattern struct {
	re    *regexp.Regexp
	order dateOrder
}

// Tried in order; the first pattern with a valid calendar date wins, even
// if a later pattern matches earlier in the text.
var datePatterns = []datePattern{
	{regexp.MustCompile(`(?:^|\D)(\d{1,2})[/-](\d{1,2})[/-](\d{4})(?:\D|$)`), monthDayYear},
	{regexp.MustCompile(`(?:^|\D)(\d{4})[/-](\d{1,2})[/-](\d{1,2})(?:\D|$)`), yearMonthDay},
	{regexp.MustCompile(`(?:^|\D)(\d{1,2})[/-](\d{1,2})[/-](\d{2})(?:\D|$)`), monthDayShortYear},
}

// ExtractDate returns the first valid calendar date in text. Two digit
// years below 50 are read as 20yy, the rest as 19yy.
func ExtractDate(text string) (record.Date, bool) {
	for _, p := range datePatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			if d, ok := p.order.date(m[1], m[2], m[3]); ok {
				return d, true
			}
		}
	}
	return record.Date{}, false
}

func (o dateOrder) date(a, b, c string) (record.Date, bool) {
	var ys, ms, ds string
	switch o {
	case yearMonthDay:
		ys, ms, ds = a, b, c
	default:
		ms, ds, ys = a, b, c
	}
	year, _ := strconv.Atoi(ys)
	month, _ := strconv.Atoi(ms)
	day, _ := strconv.Atoi(ds)
	if o == monthDayShortYear {
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
	}
	if month < 1 || month > 12 || day < 1 {
		return record.Date{}, false
	}
	d := record.NewDate(year, time.Month(month), day)
	// time.Date normalizes overflow such as Feb 30.
	if d.Day() != day || int(d.Month()) != month {
		return record.Date{}, false
	}
	return d, true
}
