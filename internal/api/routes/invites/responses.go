package invites

import "time"

type CreateInviteResponse struct {
	Code           string `json:"code"`
	Display        string `json:"display"`
	ShareText      string `json:"share_text"`
	RemainingToday int64  `json:"remaining_today"`
}

type InviteResponse struct {
	Code       string     `json:"code"`
	Display    string     `json:"display"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

type ListInvitesResponse struct {
	Invites        []InviteResponse `json:"invites"`
	RemainingToday int64            `json:"remaining_today"`
}
