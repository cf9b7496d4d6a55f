package invitecode

import "fmt"

// SharePayload renders the out-of-band share text for a freshly generated
// code: the raw (unformatted) code plus a signup deep link parameterized by
// it. Delivery is handled by an external sharing collaborator.
func SharePayload(code, hostOrigin string) string {
	return fmt.Sprintf(
		"You're invited to NaarsCars! Use invite code %s to sign up: %s/signup?code=%s",
		code, hostOrigin, code,
	)
}
