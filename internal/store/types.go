package store

import "time"

// Subscription plans and statuses.
const (
	PlanFree    = "free"
	PlanBasic   = "basic"
	PlanPremium = "premium"

	SubActive    = "active"
	SubCancelled = "cancelled"
	SubExpired   = "expired"
)

// Emotional weights shared by memories and life events.
const (
	WeightNeutral  = "neutral"
	WeightPositive = "positive"
	WeightPainful  = "painful"
)

type User struct {
	ID                  int64
	ChatID              int64
	Name                string
	Preferences         map[string]any
	Profile             map[string]any
	OnboardingCompleted bool
	IsActive            bool
	IsBlocked           bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastActiveAt        *time.Time
}

type Subscription struct {
	ID          int64
	UserID      int64
	Plan        string
	Status      string
	StartedAt   time.Time
	ExpiresAt   *time.Time
	CancelledAt *time.Time
	AutoRenew   bool
}

type Message struct {
	ID             int64
	UserID         int64
	Role           string
	Content        string
	TokensUsed     int
	ResponseTimeMs int
	IsSummarized   bool
	CreatedAt      time.Time
}

// MemoryRevision is one superseded value of a keyed fact.
type MemoryRevision struct {
	OldValue  string    `json:"old_value"`
	ChangedAt time.Time `json:"changed_at"`
}

// Memory is a durable fact about the user. At most one row per
// (user, memory_key) has IsCurrent set; keyed updates rewrite Fact in
// place and append the prior value to History, keeping the id stable.
type Memory struct {
	ID              int64
	UserID          int64
	Fact            string
	Category        string
	Importance      int
	EmotionalWeight string
	Tags            []string
	MemoryKey       string
	History         []MemoryRevision
	IsCurrent       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastAccessedAt  *time.Time
}

type Person struct {
	ID             int64
	UserID         int64
	Name           string
	Relation       string
	Notes          string
	EmotionalTone  string
	ImportantDates map[string]string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type LifeEvent struct {
	ID              int64
	UserID          int64
	Title           string
	Description     string
	EventDate       *time.Time
	IsRecurring     bool
	EmotionalWeight string
	RelatedPersonID *int64
	Tags            []string
	CreatedAt       time.Time
}

type MoodEntry struct {
	ID                int64
	UserID            int64
	MoodScore         int
	EnergyLevel       int
	AnxietyLevel      int
	PrimaryEmotion    string
	SecondaryEmotions []string
	EmotionalNeed     string
	Source            string
	RequiresAttention bool
	CreatedAt         time.Time
}

type ConversationSummary struct {
	ID            int64
	UserID        int64
	Summary       string
	FromMessageID int64
	ToMessageID   int64
	MessagesCount int
	CreatedAt     time.Time
}

// UpcomingDate is a computed next occurrence of a person's important date.
type UpcomingDate struct {
	PersonName string
	DateType   string
	Date       time.Time
	DaysUntil  int
}
