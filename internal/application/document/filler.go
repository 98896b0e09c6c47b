package document

import (
	"bytes"
	"encoding/xml"
	"io"
	"regexp"
	"strings"

	"github.com/turtacn/TaxFlow/internal/domain/submission"
)

// placeholderPattern matches {{ key }} tokens. Keys may contain dots so the
// meta.* namespace works.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// leftoverPattern catches any brace pair the first pass could not resolve,
// including malformed tokens such as "{{ bad key }}".
var leftoverPattern = regexp.MustCompile(`\{\{[^{}]*\}\}`)

// Fill substitutes every placeholder with the XML-escaped string form of the
// matching value and strips every token without a value. It never fails:
// missing data yields an incomplete but well-formed document. Output is a
// pure function of its inputs.
func Fill(tpl string, data submission.FormData) string {
	out := placeholderPattern.ReplaceAllStringFunc(tpl, func(tok string) string {
		key := placeholderPattern.FindStringSubmatch(tok)[1]
		v, ok := data[key]
		if !ok {
			return ""
		}
		return escape(submission.FormatValue(v))
	})
	return stripLeftovers(out)
}

// stripLeftovers removes unresolved tokens until none remain. Removing an
// inner token of a nested brace run such as "{{{{x y}}}}" exposes an outer
// one, so a single pass is not enough.
func stripLeftovers(s string) string {
	for leftoverPattern.MatchString(s) {
		s = leftoverPattern.ReplaceAllString(s, "")
	}
	return s
}

// Placeholders lists the distinct placeholder keys of tpl in order of first
// appearance.
func Placeholders(tpl string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(tpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// HasPlaceholders reports whether s still contains a token.
func HasPlaceholders(s string) bool {
	return leftoverPattern.MatchString(s)
}

// escape encodes XML special characters plus braces, so a value can never
// introduce a new placeholder token.
func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	r := strings.NewReplacer("{", "&#123;", "}", "&#125;")
	return r.Replace(buf.String())
}

// wellFormed reports whether doc parses as XML.
func wellFormed(doc string) error {
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
