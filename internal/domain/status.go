package domain

// StatusKind tags a ConnectionStatus.
type StatusKind string

const (
	StatusReady         StatusKind = "READY"
	StatusRetrying      StatusKind = "RETRYING"
	StatusFailed        StatusKind = "FAILED"
	StatusFailedVersion StatusKind = "FAILEDVERSION"
	StatusNotAvailable  StatusKind = "NOTAVAILABLE"
	StatusTimedOut      StatusKind = "TIMEDOUT"
)

// ConnectionStatus is emitted by the communication client only.
// NextTimeout is in milliseconds and only meaningful for Retrying;
// the download paths only for FailedVersion.
type ConnectionStatus struct {
	Kind               StatusKind `json:"state"`
	Description        string     `json:"description,omitempty"`
	NextTimeout        int64      `json:"nextTimeout,omitempty"`
	DownloadPathPlugIn string     `json:"downloadPathPlugIn,omitempty"`
	DownloadPathApp    string     `json:"downloadPathApp,omitempty"`
}

func Ready() ConnectionStatus { return ConnectionStatus{Kind: StatusReady} }

func Retrying(desc string, nextTimeoutMs int64) ConnectionStatus {
	return ConnectionStatus{Kind: StatusRetrying, Description: desc, NextTimeout: nextTimeoutMs}
}

func Failed(desc string) ConnectionStatus {
	return ConnectionStatus{Kind: StatusFailed, Description: desc}
}

func FailedVersion(desc, plugIn, app string) ConnectionStatus {
	return ConnectionStatus{
		Kind:               StatusFailedVersion,
		Description:        desc,
		DownloadPathPlugIn: plugIn,
		DownloadPathApp:    app,
	}
}

func NotAvailable(desc string) ConnectionStatus {
	return ConnectionStatus{Kind: StatusNotAvailable, Description: desc}
}

func TimedOut(desc string) ConnectionStatus {
	return ConnectionStatus{Kind: StatusTimedOut, Description: desc}
}
