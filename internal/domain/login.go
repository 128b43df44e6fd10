// Package domain contains entities without transport logic, just meta-data
package domain

import (
	"errors"
	"fmt"
)

const (
	DefaultMeetingRoom = "demoRoom"
	DefaultHostName    = "prod.vidyo.io"
)

var (
	ErrInvalidUserName    = errors.New("invalid user name")
	ErrInvalidMeetingRoom = errors.New("invalid meeting room")
	ErrEmptyHostName      = errors.New("host name empty")
)

// Field names a login form input.
type Field string

const (
	FieldNone        Field = ""
	FieldUserName    Field = "userName"
	FieldMeetingRoom Field = "meetingRoom"
	FieldHostName    Field = "hostName"
)

// Messages shown in the connection status region.
const (
	DisplayNameErrorMsg = "Please enter a valid display name. Only letters and digits are allowed."
	ResourceIDErrorMsg  = "Please enter a valid meeting room. Only letters and digits are allowed."
	HostNameErrorMsg    = "Please enter a host name."
)

// LoginInput is the login form. Token stays empty until the credential is derived.
type LoginInput struct {
	UserName    string `json:"userName"`
	MeetingRoom string `json:"meetingRoom"`
	HostName    string `json:"hostName"`
	Token       string `json:"token,omitempty"`
}

// NewLoginInput returns the form as it looks on first load.
func NewLoginInput(room, host string) LoginInput {
	if room == "" {
		room = DefaultMeetingRoom
	}
	if host == "" {
		host = DefaultHostName
	}
	return LoginInput{MeetingRoom: room, HostName: host}
}

// FieldError is a user-correctable validation failure scoped to one input.
type FieldError struct {
	Field   Field
	Message string
	Err     error
}

func NewFieldError(field Field) *FieldError {
	switch field {
	case FieldUserName:
		return &FieldError{Field: field, Message: DisplayNameErrorMsg, Err: ErrInvalidUserName}
	case FieldMeetingRoom:
		return &FieldError{Field: field, Message: ResourceIDErrorMsg, Err: ErrInvalidMeetingRoom}
	case FieldHostName:
		return &FieldError{Field: field, Message: HostNameErrorMsg, Err: ErrEmptyHostName}
	default:
		return &FieldError{Field: field, Message: "invalid input", Err: errors.New("invalid input")}
	}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }
