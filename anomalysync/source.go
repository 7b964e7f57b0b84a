package anomalysync

// Source says where the data behind a response came from.
type Source string

const (
	SourceUpstream      Source = "upstream"
	SourceLocalFallback Source = "local_fallback"
)

// Fetch is the outcome of asking upstream for T: either the data, or the
// reason the caller has to serve from the local store instead.
type Fetch[T any] struct {
	Source Source
	Data   T
	Reason error
}

func FromUpstream[T any](data T) Fetch[T] {
	return Fetch[T]{Source: SourceUpstream, Data: data}
}

func LocalFallback[T any](reason error) Fetch[T] {
	return Fetch[T]{Source: SourceLocalFallback, Reason: reason}
}

func (f Fetch[T]) IsUpstream() bool {
	return f.Source == SourceUpstream
}

// ReasonText is the fallback reason for logs and responses, empty for upstream data.
func (f Fetch[T]) ReasonText() string {
	if f.Reason == nil {
		return ""
	}
	return f.Reason.Error()
}
