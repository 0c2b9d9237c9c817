package domain

import "unicode/utf8"

// MaxTextLength is the longest value, in characters, any stored text field
// may hold. It equals the cell limit of the workbook snapshot format.
const MaxTextLength = 32767

// TextTooLong reports whether any value exceeds MaxTextLength.
func TextTooLong(values ...string) bool {
	for _, v := range values {
		if len(v) > MaxTextLength && utf8.RuneCountInString(v) > MaxTextLength {
			return true
		}
	}
	return false
}
