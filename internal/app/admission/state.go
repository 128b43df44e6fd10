package admission

import (
	"strconv"

	"github.com/dkeye/Lobby/internal/domain"
)

const (
	FailedHeader        = "An error occurred, please reload"
	FailedVersionHeader = "Please Download a new plugIn and restart the browser"
)

// State is everything the login view depends on. Handlers take a State and
// return the next one; nothing else mutates it.
type State struct {
	JoinButtonDisabled bool
	IsLoading          bool
	ErrorOccurred      bool
	// TimeoutOccurred is sticky: once set it stays set for the controller's lifetime.
	TimeoutOccurred bool

	Message        string
	HelperHeader   string
	HelperText     string
	PlugInDownload string
	AppDownload    string
	Focus          domain.Field
}

// InitialState is the form before the client has reported anything. Join stays
// disabled until the client is Ready or has timed out.
func InitialState() State {
	return State{
		JoinButtonDisabled: true,
		Focus:              domain.FieldUserName,
	}
}

// Reduce applies one status event. Any status is accepted in any state. Focus
// is a one-shot request from validation, so a status that is applied drops it.
func Reduce(s State, st domain.ConnectionStatus) State {
	switch st.Kind {
	case domain.StatusReady:
		s.JoinButtonDisabled = false
	case domain.StatusRetrying:
		s.IsLoading = false
		s.ErrorOccurred = true
		s.Message = "Temporarily unavailable, retrying in " + seconds(st.NextTimeout) + "s"
	case domain.StatusFailed:
		// a timeout already owns the terminal message
		if s.TimeoutOccurred {
			return s
		}
		s.IsLoading = false
		s.ErrorOccurred = true
		s.HelperHeader = FailedHeader
		s.HelperText = st.Description
		s.Message = "Failed: " + st.Description
	case domain.StatusFailedVersion:
		s.IsLoading = false
		s.ErrorOccurred = true
		s.HelperHeader = FailedVersionHeader
		s.HelperText = st.Description
		s.Message = "Failed: " + st.Description
		s.PlugInDownload = st.DownloadPathPlugIn
		s.AppDownload = st.DownloadPathApp
	case domain.StatusNotAvailable:
		s.IsLoading = false
		s.ErrorOccurred = true
		s.Message = st.Description
	case domain.StatusTimedOut:
		s.TimeoutOccurred = true
		s.JoinButtonDisabled = false
	default:
		return s
	}
	s.Focus = domain.FieldNone
	return s
}

func seconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64)
}

// ViewModel is the rendering boundary: a presentation layer applies it and
// never reaches back into the controller.
type ViewModel struct {
	Message        string       `json:"message"`
	HelperHeader   string       `json:"helperHeader,omitempty"`
	HelperText     string       `json:"helperText,omitempty"`
	PlugInDownload string       `json:"downloadPathPlugIn,omitempty"`
	AppDownload    string       `json:"downloadPathApp,omitempty"`
	Focus          domain.Field `json:"focus,omitempty"`
	JoinEnabled    bool         `json:"joinEnabled"`
	Loading        bool         `json:"loading"`
	Error          bool         `json:"error"`
	TimedOut       bool         `json:"timedOut"`
}

func (s State) View() ViewModel {
	return ViewModel{
		Message:        s.Message,
		HelperHeader:   s.HelperHeader,
		HelperText:     s.HelperText,
		PlugInDownload: s.PlugInDownload,
		AppDownload:    s.AppDownload,
		Focus:          s.Focus,
		JoinEnabled:    !s.JoinButtonDisabled,
		Loading:        s.IsLoading,
		Error:          s.ErrorOccurred,
		TimedOut:       s.TimeoutOccurred,
	}
}
