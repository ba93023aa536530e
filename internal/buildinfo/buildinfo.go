package buildinfo

// Metadata captures static identifiers for the daemon. Centralising the values
// makes it easy to rename the project without hunting through the tree.
type Metadata struct {
	Name        string
	BinaryName  string
	Slug        string
	Description string
}

// Info describes the current build.
var Info = Metadata{
	Name:        "Voicelog",
	BinaryName:  "voicelogd",
	Slug:        "voicelog",
	Description: "Voice journaling pipeline: capture, transcription, translation.",
}
