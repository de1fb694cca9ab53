package capture

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// Loosely formatted phone: digits with -, ., (), space separators and an
	// optional leading country code. Matches are validated for digit count.
	phonePattern = regexp.MustCompile(`\+?[(]?\d[\d\s().\-]{7,}\d`)

	websitePattern = regexp.MustCompile(`(?i)\b(?:https?://)?(?:www\.)?[a-z0-9][a-z0-9\-]*(?:\.[a-z0-9\-]+)*\.[a-z]{2,}\b`)
)

// Extract applies line heuristics to recognized card text and assigns
// substrings to contact fields. It is pure and deterministic and never fails;
// text with no confident matches yields an all-empty result.
func Extract(text string) ExtractedFields {
	var out ExtractedFields

	lines := splitLines(text)
	if len(lines) == 0 {
		return out
	}

	// Pattern fields are matched independently of line-role assignment, so a
	// single line can satisfy "contains email" and still be excluded from
	// name/title/company candidacy.
	out.Email = strings.ToLower(emailPattern.FindString(text))
	out.Phone = firstPhone(lines)
	out.Website = strings.ToLower(websitePattern.FindString(stripEmails(text)))

	// Name: first line of exactly 2-3 words, each longer than one rune, with
	// no '@', digits, or parentheses.
	nameIdx := -1
	for i, line := range lines {
		if isNameLine(line) {
			nameIdx = i
			out.Name = line
			break
		}
	}

	// Title: the line right after the name, unless it reads like an
	// email/phone/website line.
	titleIdx := -1
	if nameIdx >= 0 && nameIdx+1 < len(lines) && !matchesAnyPattern(lines[nameIdx+1]) {
		titleIdx = nameIdx + 1
		out.Title = lines[titleIdx]
	}

	// Company: first remaining line that is neither the name nor the title
	// and carries no pattern match. Strict first-match-wins.
	companyIdx := -1
	for i, line := range lines {
		if i == nameIdx || i == titleIdx {
			continue
		}
		if matchesAnyPattern(line) {
			continue
		}
		companyIdx = i
		out.Company = line
		break
	}

	// Notes: everything left over, excluding lines equal to or containing an
	// already-assigned value.
	assigned := []string{out.Name, out.Title, out.Company, out.Email, out.Phone, out.Website}
	var notes []string
	for i, line := range lines {
		if i == nameIdx || i == titleIdx || i == companyIdx {
			continue
		}
		if containsAssigned(line, assigned) {
			continue
		}
		notes = append(notes, line)
	}
	out.Notes = strings.Join(notes, "\n")

	return out
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// firstPhone returns the first loosely formatted sequence of at least ten
// digits, keeping its original formatting.
func firstPhone(lines []string) string {
	for _, line := range lines {
		for _, m := range phonePattern.FindAllString(line, -1) {
			if digitCount(m) >= 10 {
				return m
			}
		}
	}
	return ""
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// stripEmails blanks out email matches so an address's domain part cannot
// double as a website match.
func stripEmails(text string) string {
	return emailPattern.ReplaceAllString(text, " ")
}

func isNameLine(line string) bool {
	if strings.ContainsAny(line, "@0123456789()") {
		return false
	}
	words := strings.Fields(line)
	if len(words) < 2 || len(words) > 3 {
		return false
	}
	for _, w := range words {
		if len([]rune(w)) <= 1 {
			return false
		}
	}
	return true
}

func matchesAnyPattern(line string) bool {
	if emailPattern.MatchString(line) {
		return true
	}
	for _, m := range phonePattern.FindAllString(line, -1) {
		if digitCount(m) >= 10 {
			return true
		}
	}
	return websitePattern.MatchString(stripEmails(line))
}

func containsAssigned(line string, assigned []string) bool {
	lower := strings.ToLower(line)
	for _, v := range assigned {
		if v == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(v)) {
			return true
		}
	}
	return false
}
