package retrieval

import "time"

// Recorder receives pipeline observations. Implementations must be safe for
// concurrent use since language tasks report from their own goroutines.
type Recorder interface {
	LanguageSearched(language string, results int, err error)
	FallbackDecision(triggered bool)
	StageDuration(stage string, elapsed time.Duration)
}

const (
	StageSearch    = "search"
	StageRerank    = "rerank"
	StageIntent    = "intent"
	StageFetch     = "fetch"
	StageTranslate = "translate"
)

type nopRecorder struct{}

func (nopRecorder) LanguageSearched(string, int, error) {}
func (nopRecorder) FallbackDecision(bool) {}
func (nopRecorder) StageDuration(string, time.Duration) {}
