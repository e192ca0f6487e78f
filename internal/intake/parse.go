package intake

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	lastNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z' -]*$`)
	zipRe      = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	last4Re    = regexp.MustCompile(`^\d{4}$`)
	shortYrRe  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2})$`)
)

// widthNormalizer maps fullwidth punctuation and digits to their ASCII
// equivalents so pasted input from chat clients parses cleanly.
var widthNormalizer = strings.NewReplacer(
	"，", ",", "｜", "|", "－", "-", "／", "/", "　", " ",
	"０", "0", "１", "1", "２", "2", "３", "3", "４", "4",
	"５", "5", "６", "6", "７", "7", "８", "8", "９", "9",
)

// ParseBatch splits raw text into lines, skips blank and comment lines,
// and parses the remainder in order. Line indexes are dense over 1..N.
func ParseBatch(text string) []ParseOutcome {
	var outcomes []ParseOutcome
	index := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		index++
		outcomes = append(outcomes, ParseRecord(index, trimmed))
	}
	return outcomes
}

// ParseRecord validates one line. Fields are checked in order and the
// first failure wins, carrying the offending raw value.
func ParseRecord(index int, line string) ParseOutcome {
	out := ParseOutcome{Index: index, Raw: line}
	reject := func(kind RejectKind, field, value, detail string) ParseOutcome {
		out.Reject = &Rejection{Index: index, Raw: line, Kind: kind, Field: field, Value: value, Detail: detail}
		return out
	}

	norm := normalizeLine(line)
	if norm == "" {
		return reject(RejectEmptyLine, "", "", "")
	}

	fields := strings.Split(norm, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) != 4 {
		return reject(RejectBadFieldCount, "", norm, fmt.Sprintf("got: %d", len(fields)))
	}

	lastName, rawDOB, zip, last4 := fields[0], fields[1], fields[2], fields[3]
	if lastName == "" || !lastNameRe.MatchString(lastName) {
		return reject(RejectInvalidName, "lastName", lastName, "")
	}
	dob, err := NormalizeDOB(rawDOB)
	if err != nil {
		return reject(RejectInvalidDOB, "dob", rawDOB, err.Error())
	}
	if !zipRe.MatchString(zip) {
		return reject(RejectInvalidZip, "zip", zip, "")
	}
	if !last4Re.MatchString(last4) {
		return reject(RejectInvalidLast4, "last4", last4, "")
	}

	out.Record = &Record{Index: index, LastName: lastName, DOB: dob, Zip: zip, Last4: last4}
	return out
}

// normalizeLine folds width variants, unifies pipe separators to commas,
// and collapses internal whitespace runs.
func normalizeLine(line string) string {
	s := widthNormalizer.Replace(line)
	s = strings.ReplaceAll(s, "|", ",")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}

// dobLayouts are tried after the explicit literal formats. The list is
// deliberately short; anything else is an invalid_dob rejection.
var dobLayouts = []string{
	"2006-01-02",
	"01-02-2006",
	"01/02/2006",
	"1/2/2006",
	"1-2-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2006/01/02",
}

// NormalizeDOB canonicalizes a date of birth to MM/DD/YYYY. Two-digit
// years resolve with a pivot: 00-30 map to 20xx, the rest to 19xx.
func NormalizeDOB(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}

	if m := shortYrRe.FindStringSubmatch(s); m != nil {
		yy, _ := strconv.Atoi(m[3])
		if yy <= 30 {
			yy += 2000
		} else {
			yy += 1900
		}
		s = fmt.Sprintf("%s/%s/%d", m[1], m[2], yy)
	}

	for _, layout := range dobLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() < 1900 || t.Year() > 2100 {
			return "", fmt.Errorf("year %d out of range", t.Year())
		}
		return t.Format("01/02/2006"), nil
	}
	return "", fmt.Errorf("unrecognized date format")
}
