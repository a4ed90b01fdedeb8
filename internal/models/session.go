package models

// Session identifies one visit of one study participant
type Session struct {
	Subject string `yaml:"subject"`
	Session string `yaml:"session"`
}

// ID returns the roster token form "<subject>_<session>"
func (s Session) ID() string {
	return s.Subject + "_" + s.Session
}

// Kind names one of the two screenshots produced per session
type Kind string

const (
	// FilledKind is the mosaic of the lesion-filled T1w scan
	FilledKind Kind = "T1w_filled"

	// OverlayKind is the mosaic of the raw T1w scan with the lesion mask on top
	OverlayKind Kind = "T1w+mask"
)

// Status is the result of one screenshot operation
type Status string

const (
	// StatusWritten means the screenshot was saved
	StatusWritten Status = "written"

	// StatusMissing means a required input file does not exist
	StatusMissing Status = "missing"

	// StatusFailed means loading, rendering or saving returned an error
	StatusFailed Status = "failed"
)

// Artifact is a screenshot that was written to disk
type Artifact struct {
	Subject string `yaml:"subject"`
	Session string `yaml:"session"`
	Kind    Kind   `yaml:"kind"`
	Path    string `yaml:"path"`
}

// Outcome records what happened to one (session, screenshot) unit of work
type Outcome struct {
	Session Session
	Kind    Kind
	Status  Status

	// Path is the output path for written screenshots and the offending
	// input path otherwise
	Path string

	// Err is set for StatusFailed outcomes
	Err error
}

// Artifact converts a written outcome into an artifact record
func (o Outcome) Artifact() Artifact {
	return Artifact{
		Subject: o.Session.Subject,
		Session: o.Session.Session,
		Kind:    o.Kind,
		Path:    o.Path,
	}
}
