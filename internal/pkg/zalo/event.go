package zalo

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/zalohook/internal/pkg/signature"
)

// ErrMalformed marks payloads that cannot be decoded into an Event.
var ErrMalformed = errors.New("zalo: malformed event payload")

var validate = validator.New()

// Event is one decoded webhook notification. Payload holds the kind-specific
// variant; unknown event names decode to an Unknown payload.
type Event struct {
	ID          string
	Name        string
	Kind        Kind
	AppID       string
	OAID        string
	SenderID    string
	RecipientID string
	// Timestamp is the declared time in seconds since epoch.
	Timestamp int64
	Payload   Payload
}

// Envelope holds the fields needed to authenticate a request before the body
// is decoded.
type Envelope struct {
	AppID     string
	Timestamp string
}

type party struct {
	ID string `json:"id"`
}

type wireEvent struct {
	AppID       string          `json:"app_id" validate:"required,max=100"`
	OAID        string          `json:"oa_id" validate:"max=100"`
	EventName   string          `json:"event_name" validate:"required,max=100"`
	Timestamp   json.RawMessage `json:"timestamp" validate:"required"`
	UserIDByApp string          `json:"user_id_by_app"`
	Sender      *party          `json:"sender"`
	Recipient   *party          `json:"recipient"`
	Follower    *party          `json:"follower"`
	Source      string          `json:"source"`
	Message     json.RawMessage `json:"message"`
}

// Peek extracts the app ID and raw timestamp token without decoding the rest
// of the body.
func Peek(body []byte) (Envelope, error) {
	var raw struct {
		AppID     json.RawMessage `json:"app_id"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Envelope{
		AppID:     scalar(raw.AppID),
		Timestamp: scalar(raw.Timestamp),
	}, nil
}

// Decode parses and validates body into an Event with a stable ID.
func Decode(body []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	w.AppID = strings.TrimSpace(w.AppID)
	w.EventName = strings.TrimSpace(w.EventName)
	if err := validate.Struct(w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	tsToken := scalar(w.Timestamp)
	ts, err := signature.ParseTimestamp(tsToken)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp %q", ErrMalformed, tsToken)
	}

	ev := &Event{
		Name:      w.EventName,
		Kind:      KindOf(w.EventName),
		AppID:     w.AppID,
		OAID:      w.OAID,
		Timestamp: ts,
	}
	if w.Sender != nil {
		ev.SenderID = strings.TrimSpace(w.Sender.ID)
	}
	if w.Recipient != nil {
		ev.RecipientID = strings.TrimSpace(w.Recipient.ID)
	}
	if ev.OAID == "" {
		ev.OAID = ev.RecipientID
	}

	payload, msgID, err := decodePayload(ev.Kind, &w)
	if err != nil {
		return nil, err
	}
	ev.Payload = payload
	if f, ok := payload.(FollowChange); ok && ev.SenderID == "" {
		ev.SenderID = f.FollowerID
	}
	if ev.SenderID == "" {
		ev.SenderID = strings.TrimSpace(w.UserIDByApp)
	}

	if msgID != "" {
		ev.ID = msgID
	} else {
		ev.ID = deriveID(ev, tsToken, identityBytes(&w))
	}
	return ev, nil
}

func decodePayload(kind Kind, w *wireEvent) (Payload, string, error) {
	var (
		payload Payload
		msgID   string
	)
	switch kind {
	case KindText:
		var m wireMessage
		if err := unmarshalMessage(w.Message, &m); err != nil {
			return nil, "", err
		}
		payload = TextMessage{MsgID: m.MsgID, Text: m.Text}
		msgID = m.MsgID
	case KindImage, KindFile, KindSticker, KindGIF, KindAudio, KindVideo, KindLink:
		var m wireMessage
		if err := unmarshalMessage(w.Message, &m); err != nil {
			return nil, "", err
		}
		payload = AttachmentMessage{
			Type:        kind,
			MsgID:       m.MsgID,
			Text:        m.Text,
			Attachments: m.attachments(),
		}
		msgID = m.MsgID
	case KindLocation:
		var m wireMessage
		if err := unmarshalMessage(w.Message, &m); err != nil {
			return nil, "", err
		}
		loc, err := m.location()
		if err != nil {
			return nil, "", err
		}
		payload = loc
		msgID = m.MsgID
	case KindFollow, KindUnfollow:
		f := FollowChange{Followed: kind == KindFollow, Source: w.Source}
		if w.Follower != nil {
			f.FollowerID = strings.TrimSpace(w.Follower.ID)
		}
		payload = f
	case KindReceipt:
		var m wireMessage
		if err := unmarshalMessage(w.Message, &m); err != nil {
			return nil, "", err
		}
		payload = MessageReceipt{Seen: strings.EqualFold(w.EventName, "user_seen_message"), MsgIDs: m.MsgIDs}
	default:
		raw := append(json.RawMessage(nil), w.Message...)
		return Unknown{Raw: raw}, "", nil
	}

	if err := validate.Struct(payload); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return payload, strings.TrimSpace(msgID), nil
}

func unmarshalMessage(raw json.RawMessage, m *wireMessage) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("%w: message is required", ErrMalformed)
	}
	if err := json.Unmarshal(raw, m); err != nil {
		return fmt.Errorf("%w: message: %v", ErrMalformed, err)
	}
	return nil
}

// identityBytes is the compacted content that distinguishes two events of
// the same kind from one sender at the same second.
func identityBytes(w *wireEvent) []byte {
	var buf bytes.Buffer
	if len(w.Message) > 0 {
		if err := json.Compact(&buf, w.Message); err != nil {
			buf.Reset()
			buf.Write(w.Message)
		}
	}
	if w.Follower != nil {
		buf.WriteString(w.Follower.ID)
	}
	return buf.Bytes()
}

func deriveID(ev *Event, tsToken string, identity []byte) string {
	h := sha256.New()
	for _, field := range []string{ev.Name, ev.AppID, ev.SenderID, ev.RecipientID, tsToken} {
		h.Write([]byte(field))
		h.Write([]byte{0x1f})
	}
	h.Write(identity)
	return "hash:" + hex.EncodeToString(h.Sum(nil))
}

// scalar returns the text of a JSON string or number token.
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(raw)
}
