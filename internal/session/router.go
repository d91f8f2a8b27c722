package session

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/tkytts/experimentServer/internal/catalog"
	"github.com/tkytts/experimentServer/internal/telemetry"
)

// Inbound command names
const (
	CmdSetParticipant  = "set participantName"
	CmdChatMessage     = "chat message"
	CmdTyping          = "typing"
	CmdClearChat       = "clear chat"
	CmdSetConfederate  = "set confederate"
	CmdUpdateSelection = "update problem selection"
	CmdFirstBlock      = "first block"
	CmdNextBlock       = "next block"
	CmdNextProblem     = "next problem"
	CmdStartTimer      = "start timer"
	CmdStopTimer       = "stop timer"
	CmdResetTimer      = "reset timer"
	CmdSetMaxTime      = "set max time"
	CmdTelemetryEvent  = "telemetry event"
	CmdStartGame       = "start game"
	CmdStopGame        = "stop game"
	CmdSetChimes       = "set chimes"
	CmdGetChimes       = "get chimes"
	CmdSetResolution   = "set game resolution"
	CmdBlockFinished   = "block finished"
	CmdTutorialProblem = "tutorial problem"
	CmdResetPoints     = "reset points"
	CmdClearAnswer     = "clear answer"
	CmdTutorialDone    = "tutorial done"
	CmdGameEnded       = "game ended"
)

// Outbound notification names
const (
	EventChatMessage    = "chat message"
	EventUserTyping     = "user typing"
	EventChatCleared    = "chat cleared"
	EventNewConfederate = "new confederate"
	EventProblemUpdate  = "problem update"
	EventTimerUpdate    = "timer update"
	EventStatusUpdate   = "status update"
	EventChimesUpdated  = "chimes updated"
	EventSetAnswer      = "set answer"
	EventGameResolved   = "game resolved"
	EventPointsUpdate   = "points update"
	EventTutorialDone   = "tutorial done"
	EventShowEndModal   = "show end modal"
)

// Broadcaster pushes named notifications to connected clients.
// Implemented by the gateway connection manager.
type Broadcaster interface {
	BroadcastAll(event string, payload any)
	BroadcastOthers(senderID string, event string, payload any)
}

// Sink receives durable telemetry and log writes. Implementations must
// never block the caller on disk completion.
type Sink interface {
	Record(ev telemetry.Event)
	WriteTranscript(lines []string)
	WriteTutorialLog(entry string)
}

// ProblemSelection is the payload of an "update problem selection" command
type ProblemSelection struct {
	BlockIndex   int `json:"blockIndex"`
	ProblemIndex int `json:"problemIndex"`
}

// ProblemUpdate is broadcast whenever the block/problem pointer moves.
// Block and Problem are null when the pointer does not resolve.
type ProblemUpdate struct {
	Block   *catalog.Block  `json:"block"`
	Problem catalog.Problem `json:"problem"`
}

// StagedResolution is the payload of a "set game resolution" command
type StagedResolution struct {
	GameResolutionType string  `json:"gameResolutionType"`
	TeamAnswer         *string `json:"teamAnswer"`
}

type handlerFunc func(senderID string, data json.RawMessage)

// Router dispatches named client commands against the single session.
// One mutex serializes every handler and every timer tick, which is
// what keeps the session safe without per-field locking.
type Router struct {
	mu       sync.Mutex
	session  *Session
	catalog  *catalog.Catalog
	sink     Sink
	bcast    Broadcaster
	clock    clockwork.Clock
	handlers map[string]handlerFunc

	timerGen uint64
}

// NewRouter wires the command dispatch table for one session
func NewRouter(sess *Session, cat *catalog.Catalog, sink Sink, bcast Broadcaster, clock clockwork.Clock) *Router {
	r := &Router{
		session: sess,
		catalog: cat,
		sink:    sink,
		bcast:   bcast,
		clock:   clock,
	}
	r.handlers = map[string]handlerFunc{
		CmdSetParticipant:  r.handleSetParticipant,
		CmdChatMessage:     r.handleChatMessage,
		CmdTyping:          r.handleTyping,
		CmdClearChat:       r.handleClearChat,
		CmdSetConfederate:  r.handleSetConfederate,
		CmdUpdateSelection: r.handleUpdateSelection,
		CmdFirstBlock:      r.handleFirstBlock,
		CmdNextBlock:       r.handleNextBlock,
		CmdNextProblem:     r.handleNextProblem,
		CmdStartTimer:      r.handleStartTimer,
		CmdStopTimer:       r.handleStopTimer,
		CmdResetTimer:      r.handleResetTimer,
		CmdSetMaxTime:      r.handleSetMaxTime,
		CmdTelemetryEvent:  r.handleTelemetryEvent,
		CmdStartGame:       r.handleStartGame,
		CmdStopGame:        r.handleStopGame,
		CmdSetChimes:       r.handleSetChimes,
		CmdGetChimes:       r.handleGetChimes,
		CmdSetResolution:   r.handleSetResolution,
		CmdBlockFinished:   r.handleBlockFinished,
		CmdTutorialProblem: r.handleTutorialProblem,
		CmdResetPoints:     r.handleResetPoints,
		CmdClearAnswer:     r.handleClearAnswer,
		CmdTutorialDone:    r.handleTutorialDone,
		CmdGameEnded:       r.handleGameEnded,
	}
	return r
}

// Dispatch routes one inbound command to its handler. Unknown commands
// and malformed payloads are logged and dropped, never echoed back as
// protocol errors.
func (r *Router) Dispatch(senderID, event string, data json.RawMessage) {
	handler, ok := r.handlers[event]
	if !ok {
		log.Debug().Str("event", event).Str("sender", senderID).Msg("unknown command")
		return
	}
	handler(senderID, data)
}

// Participant returns the current participant name for the read endpoint
func (r *Router) Participant() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.ParticipantName
}

func (r *Router) handleSetParticipant(senderID string, data json.RawMessage) {
	name, ok := decodeString(data)
	if !ok {
		log.Warn().Str("sender", senderID).Msg("malformed participant name payload")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.ParticipantName = name
	log.Info().Str("participant", name).Msg("participant set")
}

func (r *Router) handleChatMessage(senderID string, data json.RawMessage) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("sender", senderID).Msg("malformed chat message payload")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.AppendMessage(msg)
	r.bcast.BroadcastAll(EventChatMessage, msg)
}

func (r *Router) handleTyping(senderID string, data json.RawMessage) {
	username, ok := decodeString(data)
	if !ok {
		log.Warn().Str("sender", senderID).Msg("malformed typing payload")
		return
	}
	r.bcast.BroadcastOthers(senderID, EventUserTyping, username)
}

func (r *Router) handleClearChat(senderID string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cleared := r.session.ClearMessages()
	lines := make([]string, 0, len(cleared))
	for _, msg := range cleared {
		lines = append(lines, msg.Timestamp+" "+msg.User+": "+msg.Text)
	}
	r.sink.WriteTranscript(lines)
	r.bcast.BroadcastAll(EventChatCleared, nil)
}

func (r *Router) handleSetConfederate(senderID string, data json.RawMessage) {
	name, ok := decodeString(data)
	if !ok {
		log.Warn().Str("sender", senderID).Msg("malformed confederate payload")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.ConfederateName = name
	r.bcast.BroadcastAll(EventNewConfederate, name)
}

func (r *Router) handleUpdateSelection(senderID string, data json.RawMessage) {
	var sel ProblemSelection
	if err := json.Unmarshal(data, &sel); err != nil {
		log.Warn().Err(err).Str("sender", senderID).Msg("malformed problem selection payload")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.CurrentBlockIndex = sel.BlockIndex
	r.session.CurrentProblemIndex = sel.ProblemIndex
	r.broadcastProblemLocked()
}

func (r *Router) handleFirstBlock(senderID string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.CurrentBlockIndex = 0
	r.session.CurrentProblemIndex = 0
	r.broadcastProblemLocked()
}

func (r *Router) handleNextBlock(senderID string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.CurrentBlockIndex >= 0 {
		r.session.CurrentBlockIndex++
	} else {
		r.session.CurrentBlockIndex = 0
	}
	r.session.CurrentProblemIndex = 0
	r.broadcastProblemLocked()
}

func (r *Router) handleNextProblem(senderID string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordActionLocked("next problem", "")
	count := r.catalog.ProblemCount(r.session.CurrentBlockIndex)
	if count <= 0 {
		r.session.CurrentProblemIndex = 0
	} else {
		r.session.CurrentProblemIndex = (r.session.CurrentProblemIndex + 1) % count
	}
	r.broadcastProblemLocked()
}

// broadcastProblemLocked resolves the current pointer against the
// catalog and pushes the pair; an out-of-range pointer degrades to
// null block/problem rather than an error.
func (r *Router) broadcastProblemLocked() {
	update := ProblemUpdate{}
	if block, err := r.catalog.Block(r.session.CurrentBlockIndex); err == nil {
		update.Block = block
		if problem, err := r.catalog.Get(r.session.CurrentBlockIndex, r.session.CurrentProblemIndex); err == nil {
			update.Problem = problem
		}
	}
	r.bcast.BroadcastAll(EventProblemUpdate, update)
}

func (r *Router) handleTelemetryEvent(senderID string, data json.RawMessage) {
	var ev telemetry.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Warn().Err(err).Str("sender", senderID).Msg("malformed telemetry payload")
		return
	}
	r.sink.Record(ev)
}

func (r *Router) handleTutorialProblem(senderID string, data json.RawMessage) {
	var ev telemetry.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Warn().Err(err).Str("sender", senderID).Msg("malformed tutorial problem payload")
		return
	}
	if ev.Action == "" {
		ev.Action = "tutorial problem"
	}
	r.sink.Record(ev)
}

func (r *Router) handleStartGame(senderID string, data json.RawMessage) {
	r.setGameLive(true)
}

func (r *Router) handleStopGame(senderID string, data json.RawMessage) {
	r.setGameLive(false)
}

func (r *Router) setGameLive(live bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.GameIsLive = live
	r.bcast.BroadcastAll(EventStatusUpdate, live)
}

func (r *Router) handleSetChimes(senderID string, data json.RawMessage) {
	var cfg ChimesConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Warn().Err(err).Str("sender", senderID).Msg("malformed chimes payload")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.Chimes = &cfg
	r.bcast.BroadcastAll(EventChimesUpdated, &cfg)
}

func (r *Router) handleGetChimes(senderID string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bcast.BroadcastAll(EventChimesUpdated, r.session.Chimes)
}

func (r *Router) handleSetResolution(senderID string, data json.RawMessage) {
	var staged StagedResolution
	if err := json.Unmarshal(data, &staged); err != nil {
		log.Warn().Err(err).Str("sender", senderID).Msg("malformed game resolution payload")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.StageResolution(ResolutionKind(staged.GameResolutionType), staged.TeamAnswer)
	answer := ""
	if staged.TeamAnswer != nil {
		answer = *staged.TeamAnswer
	}
	r.bcast.BroadcastAll(EventSetAnswer, answer)
}

func (r *Router) handleBlockFinished(senderID string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveGameLocked()
}

func (r *Router) handleResetPoints(senderID string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.CurrentScore = 0
	r.bcast.BroadcastAll(EventPointsUpdate, 0)
}

func (r *Router) handleClearAnswer(senderID string, data json.RawMessage) {
	r.bcast.BroadcastAll(EventSetAnswer, "")
}

func (r *Router) handleTutorialDone(senderID string, data json.RawMessage) {
	var tries int
	if err := json.Unmarshal(data, &tries); err != nil {
		log.Warn().Err(err).Str("sender", senderID).Msg("malformed tutorial done payload")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.session.ParticipantName + " finished the tutorial in " +
		strconv.Itoa(tries) + " tries at " + r.clock.Now().Format(time.RFC3339)
	r.sink.WriteTutorialLog(entry)
	r.bcast.BroadcastAll(EventTutorialDone, tries)
}

func (r *Router) handleGameEnded(senderID string, data json.RawMessage) {
	r.bcast.BroadcastAll(EventShowEndModal, nil)
}

// recordActionLocked appends a server-generated telemetry row
func (r *Router) recordActionLocked(action, resolution string) {
	r.sink.Record(telemetry.Event{
		User:        r.session.ParticipantName,
		Confederate: r.session.ConfederateName,
		Action:      action,
		Timestamp:   r.clock.Now().Format(time.RFC3339),
		Resolution:  resolution,
	})
}

// decodeString accepts either a bare JSON string or {"name": ...},
// coercing the loose payload shapes clients have sent in practice.
func decodeString(data json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, true
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Name != "" {
		return obj.Name, true
	}
	return "", false
}
