// Package normalize canonicalizes the phone numbers and dates found in raw
// conversation records. Nothing here returns an error: unparseable input
// becomes an empty string.
package normalize

import "strings"

const countryCode = "55"

// Phone reduces a raw phone number to its ConversationKey: digits only,
// country code stripped, and a "9" inserted after the area code when the
// national number still uses the legacy 10-digit mobile format.
//
// The country code is only stripped when what remains is a 10 or 11 digit
// national number, so a key whose area code is itself 55 is left alone.
func Phone(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	if !strings.HasPrefix(digits, countryCode) {
		return digits
	}
	national := digits[len(countryCode):]
	switch len(national) {
	case 10:
		return national[:2] + "9" + national[2:]
	case 11:
		return national
	default:
		return digits
	}
}
