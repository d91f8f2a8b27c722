package session

// ChatMessage represents a single message in the shared transcript
type ChatMessage struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// ResolutionKind tags how the current problem attempt was scored
type ResolutionKind string

const (
	// ResolutionAttackerPoints - attacker answered correctly, points awarded
	ResolutionAttackerPoints ResolutionKind = "AP"
	// ResolutionDefenderPoints - defender answered correctly, points awarded
	ResolutionDefenderPoints ResolutionKind = "DP"
	// ResolutionAttackerNoPoints - attacker answered, no points
	ResolutionAttackerNoPoints ResolutionKind = "ANP"
	// ResolutionDefenderNoPoints - defender answered, no points
	ResolutionDefenderNoPoints ResolutionKind = "DNP"
	// ResolutionTimeoutNoPoints - timer expired before an answer
	ResolutionTimeoutNoPoints ResolutionKind = "TNP"
)

// Resolution is the outcome payload broadcast after a problem attempt is scored
type Resolution struct {
	IsAnswerCorrect bool    `json:"isAnswerCorrect"`
	PointsAwarded   int     `json:"pointsAwarded"`
	TeamAnswer      *string `json:"teamAnswer"`
	CurrentScore    int     `json:"currentScore"`
}

// ChimesConfig holds the client-side sound identifiers for session events
type ChimesConfig struct {
	MessageSent     string `json:"messageSent"`
	MessageReceived string `json:"messageReceived"`
	Timer           string `json:"timer"`
}

// noSelection marks the block/problem pointer as inactive
const noSelection = -1

// Session is the single authoritative in-memory record for the
// experiment. All access goes through the Router, which serializes
// every command handler and timer tick; Session itself holds no locks.
type Session struct {
	ParticipantName string
	ConfederateName string

	Messages []ChatMessage

	CurrentBlockIndex   int
	CurrentProblemIndex int

	MaxTime   int
	Countdown int

	timer *timerTask

	PointsAwarded int
	CurrentScore  int

	GameIsLive bool

	Chimes *ChimesConfig

	GameResolutionType ResolutionKind
	TeamAnswer         *string
}

// NewSession returns a session with no active problem and an idle timer
func NewSession(maxTime, pointsAwarded int) *Session {
	return &Session{
		CurrentBlockIndex:   noSelection,
		CurrentProblemIndex: noSelection,
		MaxTime:             maxTime,
		PointsAwarded:       pointsAwarded,
	}
}

// AppendMessage appends to the transcript
func (s *Session) AppendMessage(msg ChatMessage) {
	s.Messages = append(s.Messages, msg)
}

// ClearMessages empties the transcript and returns what it held
func (s *Session) ClearMessages() []ChatMessage {
	cleared := s.Messages
	s.Messages = nil
	return cleared
}

// StageResolution stages the inputs for the next resolution
func (s *Session) StageResolution(kind ResolutionKind, answer *string) {
	s.GameResolutionType = kind
	s.TeamAnswer = answer
}

// ConsumeResolution returns the staged resolution inputs and clears
// them, so each staging is resolved at most once.
func (s *Session) ConsumeResolution() (ResolutionKind, *string) {
	kind, answer := s.GameResolutionType, s.TeamAnswer
	s.GameResolutionType = ""
	s.TeamAnswer = nil
	return kind, answer
}
