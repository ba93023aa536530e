package translate

// Status describes translation availability as exposed to the UI.
// Downloading is an asset-preparation phase, not a concurrency state.
type Status int

const (
	StatusNotDownloaded Status = iota
	StatusDownloading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNotDownloaded:
		return "not_downloaded"
	case StatusDownloading:
		return "downloading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
