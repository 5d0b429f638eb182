package transcription

// Kind identifies a Result variant.
type Kind int

const (
	KindTranscript Kind = iota
	KindText
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindTranscript:
		return "transcript"
	case KindText:
		return "text"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Result is the outcome of a transcription call: *Transcript, Text or
// *Stream. The set of variants is closed.
type Result interface {
	Kind() Kind
	sealed()
}

// Transcript is a decoded JSON response.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
}

func (*Transcript) Kind() Kind { return KindTranscript }
func (*Transcript) sealed()    {}

// Text is a plain text, SRT or WebVTT body, verbatim.
type Text string

func (Text) Kind() Kind { return KindText }
func (Text) sealed()    {}

func (t Text) String() string { return string(t) }

func (*Stream) Kind() Kind { return KindStream }
func (*Stream) sealed()    {}
