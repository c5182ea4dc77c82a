package domain

// Phase is the controller's lifecycle state. A cycle may only begin from
// PhaseIdle or PhaseError; the transition into PhaseChecking is the sole
// concurrency guard against overlapping cycles.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseInitializing
	PhaseIdle
	PhaseChecking
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseInitializing:
		return "initializing"
	case PhaseIdle:
		return "idle"
	case PhaseChecking:
		return "checking"
	case PhaseError:
		return "error"
	}
	return "unknown"
}

// Status is a point-in-time snapshot of the controller, safe to hand to
// HTTP readers while a cycle is running. Fields are last-write-wins; there
// is no cross-field atomicity guarantee.
type Status struct {
	Phase          string `json:"status"`
	LastCheck      string `json:"last_check,omitempty"`
	CompletedAnime int    `json:"completed_anime_count"`
	CompletedManga int    `json:"completed_manga_count"`
	ErrorMessage   string `json:"error_message,omitempty"`
}
