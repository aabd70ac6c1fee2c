package store

// Well-known conversation ids, stable across devices (invariant 6).
const (
	ChatHomeConversationID = "chat_home"
	LoopHomeConversationID = "loop_home"
)

type Conversation struct {
	ID          string
	Title       string
	CreatedAtMs int64
	UpdatedAtMs int64
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAtMs    int64
	IsMemory       bool
	NeedsEmbedding bool
}

// TodoStatusDone is the only status the engine treats specially (recurrence).
const TodoStatusDone = "done"

type Todo struct {
	ID             string
	Title          string
	DueAtMs        *int64
	Status         string
	SourceEntryID  *string
	ReviewStage    *string
	NextReviewAtMs *int64
	LastReviewAtMs *int64
	CreatedAtMs    int64
	UpdatedAtMs    int64
	NeedsEmbedding bool
}

const (
	TodoActivityStatusChange = "status_change"
	TodoActivityNote         = "note"
)

type TodoActivity struct {
	ID              string
	TodoID          string
	ActivityType    string
	FromStatus      *string
	ToStatus        *string
	Content         *string
	SourceMessageID *string
	CreatedAtMs     int64
	NeedsEmbedding  bool
}

type TodoRecurrence struct {
	TodoID   string
	SeriesID string
	RuleJSON string
}

type Event struct {
	ID            string
	Title         string
	StartAtMs     int64
	EndAtMs       int64
	TZ            string
	SourceEntryID *string
}

type Tag struct {
	ID          string
	Name        string
	CreatedAtMs int64
}

type TagMergeSuggestion struct {
	ID               string
	SourceTagID      string
	TargetTagID      string
	Score            float64
	SampleMessageIDs []string
	CreatedAtMs      int64
}

type TagMergeFeedback struct {
	ID          string
	SourceTagID string
	TargetTagID string
	Reason      string
	Action      string
	CreatedAtMs int64
}

type TopicThread struct {
	ID             string
	ConversationID string
	Title          *string
	CreatedAtMs    int64
}

type Attachment struct {
	SHA256      string
	MimeType    string
	Path        string
	ByteLen     int64
	CreatedAtMs int64
}

type AttachmentMetadata struct {
	SHA256     string
	Title      *string
	Filenames  []string
	SourceURLs []string
}

type AttachmentEXIF struct {
	SHA256       string
	CapturedAtMs *int64
	Lat          *float64
	Lon          *float64
}

const (
	AnnotationStatusPending = "pending"
	AnnotationStatusRunning = "running"
	AnnotationStatusDone    = "done"
	AnnotationStatusFailed  = "failed"
)

type AttachmentAnnotation struct {
	SHA256        string
	Status        string
	Lang          *string
	Model         *string
	Payload       *string
	Attempts      int
	NextRetryAtMs *int64
	LastError     *string
	LastErrorAtMs *int64
}

type AttachmentPlace struct {
	SHA256        string
	Status        string
	DisplayName   *string
	Attempts      int
	NextRetryAtMs *int64
	LastError     *string
	LastErrorAtMs *int64
}

type AttachmentVariant struct {
	AttachmentSHA256 string
	Variant          string
	MimeType         string
	ByteLen          int64
	Path             string
}

const (
	CloudBackupPending  = "pending"
	CloudBackupFailed   = "failed"
	CloudBackupUploaded = "uploaded"
)

type CloudMediaBackup struct {
	AttachmentSHA256 string
	Variant          string
	Status           string
	Attempts         int
	NextRetryAtMs    *int64
	LastError        *string
	LastErrorAtMs    *int64
	UploadedAtMs     *int64
}

type LlmProfile struct {
	ID          string
	Name        string
	Kind        string // "openai", "anthropic", or "gemini" (internal/provider dispatch key)
	BaseURL     string
	APIKey      string
	Model       string
	CreatedAtMs int64
}

type LlmUsageDaily struct {
	Day               string
	ProfileID         string
	Purpose           string
	Requests          int64
	RequestsWithUsage int64
	InputTokens       int64
	OutputTokens      int64
	TotalTokens       int64
}

const (
	SemanticParseStatusPending   = "pending"
	SemanticParseStatusRunning   = "running"
	SemanticParseStatusSucceeded = "succeeded"
	SemanticParseStatusFailed    = "failed"
	SemanticParseStatusCanceled  = "canceled"
)

type SemanticParseJob struct {
	MessageID       string
	Status          string
	Attempts        int
	NextRetryAtMs   *int64
	AppliedTodoIDs  []string
	AppliedEventIDs []string
	UndoneAtMs      *int64
}

type EmbeddingProfile struct {
	ID          string
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Dims        int
	CreatedAtMs int64
}

// KV keys used across the store.
const (
	KVDeviceID                 = "device_id"
	KVActiveEmbeddingModelName = "active_embedding_model_name"
)
