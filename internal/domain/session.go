package domain

// SessionParams is what the communication client needs to join a room.
type SessionParams struct {
	UserName    string `json:"userName"`
	MeetingRoom string `json:"meetingRoom"`
	HostName    string `json:"hostName"`
	Token       string `json:"token"`
}

// ClientID identifies one browser across requests (the "ct" cookie).
type ClientID string
