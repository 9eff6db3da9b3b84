package domain

// ChannelStats holds per-channel package counts by status, recomputed on
// demand over the live registry.
type ChannelStats struct {
	ChannelName string         `json:"channel_name"`
	Total       int            `json:"total"`
	ByStatus    map[Status]int `json:"by_status"`
}
