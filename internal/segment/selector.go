package segment

// Level names how aggressively a segmentation run conserves memory.
type Level string

const (
	LevelStandardMemory      Level = "standard-memory"
	LevelMemoryConscious     Level = "memory-conscious"
	LevelModerateStreaming   Level = "moderate-streaming"
	LevelAggressiveStreaming Level = "aggressive-streaming"
)

const (
	// bytesPerFrameSample is the working-set cost of one decoded sample
	// per channel (float32 processing buffers).
	bytesPerFrameSample = 4

	// streamingThresholdBytes is the estimated working set above which
	// the whole track is no longer decoded into memory.
	streamingThresholdBytes = 100 << 20
	// aggressiveThresholdBytes marks the step up to the most conservative
	// streaming profile.
	aggressiveThresholdBytes = 200 << 20

	// maxChunkSeconds caps the streaming extraction window.
	maxChunkSeconds = 30.0

	defaultSampleRate = 44100
	defaultChannels   = 2
)

// OptimizationPlan is the chosen execution profile for one run.
type OptimizationPlan struct {
	UseStreaming         bool
	ChunkDuration        float64
	EstimatedMemoryBytes int64
	Level                Level
}

// Selector decides the execution profile from the track's decoded size.
type Selector struct {
	// ForceStreaming always picks the streaming path regardless of size.
	ForceStreaming bool
	// DisableStreaming keeps everything in memory; large tracks still
	// get the memory-conscious label so operators see the pressure.
	DisableStreaming bool
}

// Plan estimates the decoded working set and picks a profile. Unknown
// stream parameters fall back to CD-quality stereo.
func (s Selector) Plan(totalDuration float64, sampleRate, channels int) OptimizationPlan {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if channels <= 0 {
		channels = defaultChannels
	}
	if totalDuration < 0 {
		totalDuration = 0
	}

	estimate := int64(totalDuration * float64(sampleRate) * float64(channels) * bytesPerFrameSample)

	streaming := estimate > streamingThresholdBytes
	if s.ForceStreaming {
		streaming = true
	}
	if s.DisableStreaming {
		streaming = false
	}

	plan := OptimizationPlan{
		UseStreaming:         streaming,
		EstimatedMemoryBytes: estimate,
		ChunkDuration:        totalDuration,
	}
	if streaming {
		plan.ChunkDuration = min(maxChunkSeconds, totalDuration/4)
	}

	switch {
	case streaming && estimate > aggressiveThresholdBytes:
		plan.Level = LevelAggressiveStreaming
	case streaming:
		plan.Level = LevelModerateStreaming
	case estimate > streamingThresholdBytes:
		plan.Level = LevelMemoryConscious
	default:
		plan.Level = LevelStandardMemory
	}
	return plan
}
