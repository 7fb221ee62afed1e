package domain

// ConversionOptions carries the optional knobs for a conversion.
type ConversionOptions struct {
	// Bitrate in kbit/s for the lossy target; 0 means DefaultMP3Bitrate.
	Bitrate int `json:"bitrate,omitempty" validate:"omitempty,gte=8,lte=320"`
	// OutputDir receives the converted file when OutputPath is empty.
	// Empty means alongside the input.
	OutputDir string `json:"output_dir,omitempty"`
	// OutputPath, when set, is used verbatim.
	OutputPath string `json:"output_path,omitempty"`
	// Metadata holds container tags (title, artist, album, date, genre,
	// comment). Unknown keys are ignored.
	Metadata map[string]string `json:"metadata,omitempty"`
	// CoverImage is an optional image embedded into chaptered output.
	CoverImage string `json:"cover_image,omitempty"`
	// Chapters are embedded as bookmarks in chaptered output.
	Chapters []Chapter `json:"chapters,omitempty"`
}

// EffectiveBitrate returns the configured bitrate or the default.
func (o ConversionOptions) EffectiveBitrate() int {
	if o.Bitrate > 0 {
		return o.Bitrate
	}
	return DefaultMP3Bitrate
}

// ConversionRequest asks for one input file to be converted to a target.
type ConversionRequest struct {
	InputPath string            `json:"input_path" validate:"required"`
	Target    TargetFormat      `json:"target" validate:"required,oneof=wav mp3 m4b"`
	Options   ConversionOptions `json:"options"`
}
