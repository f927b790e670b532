package claude

// Turn is one prior exchange passed as conversational context.
type Turn struct {
	Role    string
	Content string
}

// MoodResult is the parsed mood inference for a single user message.
type MoodResult struct {
	MoodScore         int      `json:"mood_score"`
	EnergyLevel       int      `json:"energy_level"`
	AnxietyLevel      int      `json:"anxiety_level"`
	PrimaryEmotion    string   `json:"primary_emotion"`
	SecondaryEmotions []string `json:"secondary_emotions"`
	EmotionalNeed     string   `json:"emotional_need"`
	RequiresAttention bool     `json:"requires_attention"`
	CrisisIndicators  []string `json:"crisis_indicators"`
}

// FactCandidate is an extracted durable fact, not yet merged.
type FactCandidate struct {
	Fact            string   `json:"fact"`
	Category        string   `json:"category"`
	Importance      int      `json:"importance"`
	EmotionalWeight string   `json:"emotional_weight"`
	Tags            []string `json:"tags"`
	MemoryKey       string   `json:"memory_key"`
}

type PersonCandidate struct {
	Name          string `json:"name"`
	Relation      string `json:"relation"`
	Notes         string `json:"notes"`
	EmotionalTone string `json:"emotional_tone"`
}

type EventCandidate struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Date            string   `json:"date"`
	IsRecurring     bool     `json:"is_recurring"`
	EmotionalWeight string   `json:"emotional_weight"`
	PersonName      string   `json:"person_name"`
	Tags            []string `json:"tags"`
}

// UpdateCandidate corrects an existing fact, targeted by key or by a
// substring of the old wording.
type UpdateCandidate struct {
	MemoryKey       string `json:"memory_key"`
	OldFactContains string `json:"old_fact_contains"`
	NewFact         string `json:"new_fact"`
}

// Extraction is everything the model pulled out of one user message.
type Extraction struct {
	Facts   []FactCandidate   `json:"facts"`
	Persons []PersonCandidate `json:"persons"`
	Events  []EventCandidate  `json:"events"`
	Updates []UpdateCandidate `json:"updates"`
}

// RespondRequest carries the assembled context for reply generation.
type RespondRequest struct {
	UserName string
	Context  string
	History  []Turn
	Message  string
}

// Reply is a generated response with its accounting.
type Reply struct {
	Content        string
	TokensUsed     int
	ResponseTimeMs int
}

// CheckinRequest drives a proactive check-in message.
type CheckinRequest struct {
	UserName        string
	Context         string
	DaysSinceActive int
}
