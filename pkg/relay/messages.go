package relay

import (
	"strconv"
	"time"
)

// Outbound wire protocol. Every message is one JSON text frame carrying a
// "type" discriminator; binary payloads ride as base64 strings (the
// encoding/json []byte default). Speak windows and lifecycle times are
// decimal strings while announce times are numbers, both inherited from the
// consumer's existing protocol.

const (
	msgTypeSessionAnnounce = "session-announce"
	msgTypeAudio           = "audio"
	msgTypeVideo           = "video"
)

type sessionAnnounceMessage struct {
	Type      string              `json:"type"`
	SessionID string              `json:"sessionId"`
	StartTime *int64              `json:"startTime,omitempty"`
	EndTime   *int64              `json:"endTime,omitempty"`
	Agenda    []agendaItemPayload `json:"agenda,omitempty"`
	Questions []questionPayload   `json:"questions,omitempty"`
}

type agendaItemPayload struct {
	Index       int    `json:"index"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Assignee    string `json:"assignee"`
}

type questionPayload struct {
	Index    int    `json:"index"`
	Question string `json:"question"`
	IsMark   bool   `json:"isMark"`
}

type audioMessage struct {
	Type   string              `json:"type"`
	Chunks []audioChunkPayload `json:"chunks"`
}

type audioChunkPayload struct {
	Buffer         []byte `json:"buffer"`
	Email          string `json:"email"`
	DisplayName    string `json:"displayName"`
	SpeakStartTime string `json:"speakStartTime"`
	SpeakEndTime   string `json:"speakEndTime"`
	Role           string `json:"role"`
}

type videoMessage struct {
	Type     string               `json:"type"`
	Buffer   []byte               `json:"buffer"`
	Metadata videoMetadataPayload `json:"metadata"`
}

type videoMetadataPayload struct {
	Format         videoFormatPayload  `json:"format"`
	OriginalFormat *videoFormatPayload `json:"originalFormat,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
	FrameIndex     int64               `json:"frameIndex"`
}

type videoFormatPayload struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frameRate"`
}

type lifecycleMessage struct {
	Type      string  `json:"type"`
	StartTime string  `json:"startTime"`
	EndTime   *string `json:"endTime,omitempty"`
}

func newSessionAnnounceMessage(session SessionInfo) sessionAnnounceMessage {
	msg := sessionAnnounceMessage{
		Type:      msgTypeSessionAnnounce,
		SessionID: session.SessionID,
		StartTime: session.StartTime,
		EndTime:   session.EndTime,
	}
	for _, item := range session.Agenda {
		msg.Agenda = append(msg.Agenda, agendaItemPayload{
			Index:       item.Index,
			Title:       item.Title,
			Description: item.Description,
			Assignee:    item.Assignee,
		})
	}
	for _, q := range session.Questions {
		msg.Questions = append(msg.Questions, questionPayload{
			Index:    q.Index,
			Question: q.Text,
			IsMark:   q.Mark,
		})
	}
	return msg
}

func newAudioMessage(chunks []AudioChunk) audioMessage {
	msg := audioMessage{
		Type:   msgTypeAudio,
		Chunks: make([]audioChunkPayload, 0, len(chunks)),
	}
	for _, c := range chunks {
		role := c.Role
		if role == "" {
			role = RoleUnknown
		}
		msg.Chunks = append(msg.Chunks, audioChunkPayload{
			Buffer:         c.Buffer,
			Email:          c.Email,
			DisplayName:    c.DisplayName,
			SpeakStartTime: strconv.FormatInt(c.SpeakStartMs, 10),
			SpeakEndTime:   strconv.FormatInt(c.SpeakEndMs, 10),
			Role:           string(role),
		})
	}
	return msg
}

func newVideoMessage(frame VideoFrame) videoMessage {
	msg := videoMessage{
		Type:   msgTypeVideo,
		Buffer: frame.Buffer,
		Metadata: videoMetadataPayload{
			Format: videoFormatPayload{
				Width:     frame.Format.Width,
				Height:    frame.Format.Height,
				FrameRate: frame.Format.FrameRate,
			},
			Timestamp:  frame.Timestamp,
			FrameIndex: frame.FrameIndex,
		},
	}
	if frame.OriginalFormat != nil {
		msg.Metadata.OriginalFormat = &videoFormatPayload{
			Width:     frame.OriginalFormat.Width,
			Height:    frame.OriginalFormat.Height,
			FrameRate: frame.OriginalFormat.FrameRate,
		}
	}
	return msg
}

func newLifecycleMessage(eventType string, startTime int64, endTime *int64) lifecycleMessage {
	msg := lifecycleMessage{
		Type:      eventType,
		StartTime: strconv.FormatInt(startTime, 10),
	}
	if endTime != nil {
		end := strconv.FormatInt(*endTime, 10)
		msg.EndTime = &end
	}
	return msg
}
