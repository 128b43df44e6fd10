package admission

import (
	"regexp"
	"strings"

	"github.com/dkeye/Lobby/internal/domain"
)

var alnum = regexp.MustCompile(`^[0-9a-zA-Z]+$`)

// Validate checks the form in a fixed order (user name, meeting room, host)
// and stops at the first bad field. The returned input carries the trimmed
// user name and meeting room.
func Validate(s State, in domain.LoginInput) (State, domain.LoginInput, error) {
	in.UserName = strings.TrimSpace(in.UserName)
	in.MeetingRoom = strings.TrimSpace(in.MeetingRoom)

	var fe *domain.FieldError
	switch {
	case !alnum.MatchString(in.UserName):
		fe = domain.NewFieldError(domain.FieldUserName)
	case !alnum.MatchString(in.MeetingRoom):
		fe = domain.NewFieldError(domain.FieldMeetingRoom)
	case in.HostName == "":
		fe = domain.NewFieldError(domain.FieldHostName)
	}
	if fe != nil {
		s.ErrorOccurred = true
		s.Message = fe.Message
		s.Focus = fe.Field
		return s, in, fe
	}
	s.ErrorOccurred = false
	s.Message = ""
	s.Focus = domain.FieldNone
	return s, in, nil
}
