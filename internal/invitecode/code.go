package invitecode

import "time"

// Status is the derived state of an invite code. There are no other states:
// no expiry, no revocation.
type Status string

const (
	StatusAvailable Status = "available"
	StatusConsumed  Status = "consumed"
)

// Consumption records whether a code has been redeemed, and if so by whom
// and when. The zero value means unconsumed; a consumer and timestamp are
// only ever set together, so the "exactly one or the other" invariant is
// structural rather than a pair of independently nullable fields.
type Consumption struct {
	consumerID string
	consumedAt time.Time
}

// ConsumedBy returns a Consumption for a code redeemed by the given account.
func ConsumedBy(accountID string, at time.Time) Consumption {
	return Consumption{consumerID: accountID, consumedAt: at}
}

// Consumed reports the consumer and redemption time, if any.
func (c Consumption) Consumed() (accountID string, at time.Time, ok bool) {
	if c.consumerID == "" {
		return "", time.Time{}, false
	}
	return c.consumerID, c.consumedAt, true
}

// IsConsumed reports whether the code has been redeemed.
func (c Consumption) IsConsumed() bool {
	return c.consumerID != ""
}

// InviteCode is a single-use token granting signup eligibility. Code is the
// canonical uppercase form and is globally unique across all codes ever
// issued, consumed ones included. The only state transition the entity ever
// undergoes is Available -> Consumed, at most once.
type InviteCode struct {
	ID          string
	Code        string
	CreatorID   string
	CreatedAt   time.Time
	Consumption Consumption
}

// Status derives the code's state from its consumption record.
func (ic *InviteCode) Status() Status {
	if ic.Consumption.IsConsumed() {
		return StatusConsumed
	}
	return StatusAvailable
}
