package header

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// Charset returns the charset parameter of this part's own Content-Type
// header, if one is present. It does not look at Content-Disposition's
// params; a part's Content-Type (e.g. "text/plain; charset=iso-8859-1")
// is a separate header entirely, decoded generically as one of b.Fields.
func (b *Block) Charset() (string, bool) {
	ct, ok := b.Get("Content-Type")
	if !ok {
		return "", false
	}
	for _, tok := range strings.Split(ct, ";")[1:] {
		tok = strings.TrimSpace(tok)
		name, val, found := strings.Cut(tok, "=")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "charset") {
			continue
		}
		val = strings.Trim(strings.TrimSpace(val), `"`)
		return val, val != ""
	}
	return "", false
}

// ValidateCharsetName reports whether name is a charset recognized by the
// IANA character-set registry. It never converts bytes between
// encodings — only a recognition check, since text-part charset
// conversion is explicitly out of scope; callers use this solely to
// decide whether an unrecognized charset is worth a warning log.
func ValidateCharsetName(name string) error {
	if name == "" {
		return fmt.Errorf("header: empty charset name")
	}
	if _, err := ianaindex.MIME.Encoding(name); err != nil {
		return fmt.Errorf("header: unrecognized charset %q: %w", name, err)
	}
	return nil
}
