// Package spec defines the data model and collaborator contracts for the
// botdialogs runtime: normalized messages and addresses, the per-conversation
// dialog callstack and session state, scored route candidates, and the
// recognizer/storage/transport interfaces the runtime is built against.
//
// Everything in this package is either pure data or a pure interface; the
// behavior lives in the root package and in the provider packages.
package spec

import "time"

// Address identifies one conversation endpoint on one channel.
type Address struct {
	ChannelID      string `json:"channelId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	BotID          string `json:"botId,omitempty"`
	ServiceURL     string `json:"serviceUrl,omitempty"`
}

// StateKey returns the composite key the address's session state is stored
// under.
func (a Address) StateKey() StateKey {
	return StateKey{
		ChannelID:      a.ChannelID,
		ConversationID: a.ConversationID,
		UserID:         a.UserID,
	}
}

// StateKey is the composite (channel, conversation, user) key for persisted
// session state.
type StateKey struct {
	ChannelID      string `json:"channelId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// String renders the key in a stable form usable as a storage key segment.
func (k StateKey) String() string {
	return k.ChannelID + "/" + k.ConversationID + "/" + k.UserID
}

// Message types for normalized inbound/outbound events.
const (
	MessageTypeMessage         = "message"
	MessageTypeEndConversation = "endOfConversation"
	MessageTypeEvent           = "event"
)

// Message is a normalized conversation event. Inbound messages are consumed
// from a transport collaborator; outbound messages are produced to one. The
// transport owns channel-specific shaping and delivery ordering.
type Message struct {
	ID          string           `json:"id,omitempty"`
	Type        string           `json:"type"`
	Text        string           `json:"text,omitempty"`
	Locale      string           `json:"locale,omitempty"`
	Address     Address          `json:"address"`
	Entities    []map[string]any `json:"entities,omitempty"`
	Attachments []map[string]any `json:"attachments,omitempty"`
	Timestamp   time.Time        `json:"timestamp,omitzero"`
}

// DialogStackEntry is one frame of a conversation's dialog callstack. ID is
// library-qualified ("library:dialog"). State is the frame's serializable
// dialog state; its keys are owned by the dialog identified by ID.
type DialogStackEntry struct {
	ID    string         `json:"id"`
	State map[string]any `json:"state,omitempty"`
}

// SessionState is the full persisted state for one conversation. It is loaded
// once per turn, mutated in memory, and saved once at end of turn with
// last-write-wins semantics.
type SessionState struct {
	Callstack  []DialogStackEntry `json:"callstack"`
	LastAccess time.Time          `json:"lastAccess,omitzero"`
	Version    int64              `json:"version"`

	UserData                map[string]any `json:"userData,omitempty"`
	ConversationData        map[string]any `json:"conversationData,omitempty"`
	PrivateConversationData map[string]any `json:"privateConversationData,omitempty"`
}

// RouteType classifies where a route candidate came from.
type RouteType string

const (
	RouteTypeActiveDialog RouteType = "activeDialog"
	RouteTypeStackAction  RouteType = "stackAction"
	RouteTypeGlobalAction RouteType = "globalAction"
)

// RouteData carries the selection payload of a route candidate.
type RouteData struct {
	// Action is the matched action name for action routes.
	Action string `json:"action,omitempty"`

	// DialogID is the library-qualified dialog the route targets.
	DialogID string `json:"dialogId,omitempty"`

	// DialogIndex is the callstack index the route is scoped to, or -1 when
	// the route is not stack-scoped.
	DialogIndex int `json:"dialogIndex"`

	// Intent is the recognition result that produced the match, if any.
	Intent *IntentRecognizerResult `json:"intent,omitempty"`
}

// RouteResult is one scored candidate produced during route finding. Route
// results are transient: created fresh every turn, never persisted.
type RouteResult struct {
	Score       float64   `json:"score"`
	LibraryName string    `json:"libraryName"`
	Label       string    `json:"label,omitempty"`
	RouteType   RouteType `json:"routeType,omitempty"`
	RouteData   RouteData `json:"routeData"`
}

// ZeroRoute is the sentinel candidate a route-finding step returns when it
// has nothing better; it keeps candidate lists non-empty so merge code never
// special-cases "no candidates".
func ZeroRoute(libraryName string) RouteResult {
	return RouteResult{Score: 0, LibraryName: libraryName, RouteData: RouteData{DialogIndex: -1}}
}

// IntentEntity is one entity extracted during recognition.
type IntentEntity struct {
	Type       string  `json:"type"`
	Entity     string  `json:"entity"`
	Score      float64 `json:"score,omitempty"`
	StartIndex int     `json:"startIndex,omitempty"`
	EndIndex   int     `json:"endIndex,omitempty"`
}

// IntentRecognizerResult is the scored outcome of recognizing one utterance.
// An empty Intent means "none": the recognizer found nothing specific.
type IntentRecognizerResult struct {
	Score      float64        `json:"score"`
	Intent     string         `json:"intent,omitempty"`
	Entities   []IntentEntity `json:"entities,omitempty"`
	Expression string         `json:"expression,omitempty"`
	Matched    []string       `json:"matched,omitempty"`
}

// ResumeReason explains why a dialog frame is being resumed.
type ResumeReason string

const (
	ResumeCompleted    ResumeReason = "completed"
	ResumeNotCompleted ResumeReason = "notCompleted"
	ResumeCanceled     ResumeReason = "canceled"
	ResumeBack         ResumeReason = "back"
	ResumeForward      ResumeReason = "forward"
)

// DialogResult is the payload delivered to a parent frame when a child dialog
// ends, and to waterfall steps as they advance.
type DialogResult struct {
	Resumed  ResumeReason `json:"resumed"`
	Response any          `json:"response,omitempty"`
	Error    error        `json:"-"`

	// ChildID is the library-qualified id of the dialog that ended, when known.
	ChildID string `json:"childId,omitempty"`
}
