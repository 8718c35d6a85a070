package models

// FragmentType classifies the semantic role of a text fragment
type FragmentType string

const (
	FragmentWord      FragmentType = "word"
	FragmentSentence  FragmentType = "sentence"
	FragmentParagraph FragmentType = "paragraph"
	FragmentHeading   FragmentType = "heading"
)

// TextFragment is a minimal unit of text with a stable ID and a timing interval
type TextFragment struct {
	ID        string       `json:"id"`
	Text      string       `json:"text"`
	Type      FragmentType `json:"type"`
	Page      int          `json:"page"`
	StartTime float64      `json:"start_time"`
	EndTime   float64      `json:"end_time"`
	AudioFile string       `json:"audio_file,omitempty"`
}

// VoiceConfig carries synthesis parameters passed through to the provider
type VoiceConfig struct {
	Voice  string  `json:"voice"`
	Model  string  `json:"model,omitempty"`
	Speed  float64 `json:"speed,omitempty"`
	Format string  `json:"format,omitempty"`
}
