package documents

import (
	"errors"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eshaffer321/invoice-matcher/internal/domain/extract"
)

// ErrUndateable means no date could be resolved for a document
var ErrUndateable = errors.New("document has no resolvable date")

// DateSource records where a document date came from
type DateSource string

const (
	DateSourceNone        DateSource = ""
	DateSourceISOPath     DateSource = "path_iso"
	DateSourceCompactPath DateSource = "path_yyyymmdd"
	DateSourceUnderscore  DateSource = "filename_dd_mm_yy"
	DateSourceSixDigit    DateSource = "filename_ddmmyy"
	DateSourceContent     DateSource = "content"
)

var (
	isoPathDate     = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	compactPathDate = regexp.MustCompile(`(?:^|\D)(\d{4})(\d{2})(\d{2})(?:\D|$)`)
	underscoreDate  = regexp.MustCompile(`(?:^|\D)(\d{2})_(\d{2})_(\d{2})(?:\D|$)`)
	sixDigitDate    = regexp.MustCompile(`(?:^|\D)(\d{2})(\d{2})(\d{2})(?:\D|$)`)
)

// ResolveFileDate finds the reference date of a document. Order:
// YYYY-MM-DD anywhere in the path, YYYYMMDD in the path, DD_MM_YY in the
// file name, DDMMYY in the file name, then (when contentFallback is set)
// the first parsable date in the text.
func ResolveFileDate(identity, text string, contentFallback bool) (time.Time, DateSource, error) {
	p := strings.ReplaceAll(identity, "\\", "/")
	name := path.Base(p)

	for _, m := range isoPathDate.FindAllStringSubmatch(p, -1) {
		if d, ok := ymd(m[1], m[2], m[3]); ok {
			return d, DateSourceISOPath, nil
		}
	}
	for _, m := range compactPathDate.FindAllStringSubmatch(p, -1) {
		if d, ok := ymd(m[1], m[2], m[3]); ok {
			return d, DateSourceCompactPath, nil
		}
	}
	for _, m := range underscoreDate.FindAllStringSubmatch(name, -1) {
		if d, ok := ymd("20"+m[3], m[2], m[1]); ok {
			return d, DateSourceUnderscore, nil
		}
	}
	for _, m := range sixDigitDate.FindAllStringSubmatch(name, -1) {
		if d, ok := ymd("20"+m[3], m[2], m[1]); ok {
			return d, DateSourceSixDigit, nil
		}
	}
	if contentFallback {
		if d, ok := extract.FirstDate(text); ok {
			return d, DateSourceContent, nil
		}
	}
	return time.Time{}, DateSourceNone, ErrUndateable
}

func ymd(y, m, d string) (time.Time, bool) {
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(m)
	day, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	return extract.Date(year, month, day)
}
