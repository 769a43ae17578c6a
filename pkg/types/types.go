package types

import "time"

// EmotionLabel is one of the fixed emotion classes produced by analysis.
type EmotionLabel string

// Emotion labels. LabelError marks a failed analysis run.
const (
	LabelAngry    EmotionLabel = "angry"
	LabelFear     EmotionLabel = "fear"
	LabelNeutral  EmotionLabel = "neutral"
	LabelSad      EmotionLabel = "sad"
	LabelDisgust  EmotionLabel = "disgust"
	LabelHappy    EmotionLabel = "happy"
	LabelSurprise EmotionLabel = "surprise"
	LabelError    EmotionLabel = "error"
)

// Labels lists every valid emotion label, LabelError included.
var Labels = []EmotionLabel{
	LabelAngry, LabelFear, LabelNeutral, LabelSad,
	LabelDisgust, LabelHappy, LabelSurprise, LabelError,
}

// ValidLabel reports whether s is a known emotion label.
func ValidLabel(s string) bool {
	for _, l := range Labels {
		if string(l) == s {
			return true
		}
	}
	return false
}

// Frame is one camera frame submitted for analysis. The buffer is owned by
// the detection throttle for the duration of a single analysis call.
type Frame struct {
	Data      []byte    // Encoded image bytes (JPEG/PNG)
	Width     int       // Frame width
	Height    int       // Frame height
	Timestamp time.Time // Arrival timestamp
}

// Observation is one completed analysis result: a label and its score.
type Observation struct {
	Label EmotionLabel
	Score float64 // [0,1]
}

// SmoothedEmotion is the reduction of an observation window: the majority
// label and the mean score of the observations carrying it.
type SmoothedEmotion struct {
	Label      EmotionLabel `json:"label"`
	Confidence float64      `json:"confidence"`
}
