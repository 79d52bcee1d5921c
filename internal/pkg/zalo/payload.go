package zalo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindFile     Kind = "file"
	KindSticker  Kind = "sticker"
	KindGIF      Kind = "gif"
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
	KindLink     Kind = "link"
	KindLocation Kind = "location"
	KindFollow   Kind = "follow"
	KindUnfollow Kind = "unfollow"
	KindReceipt  Kind = "receipt"
	KindUnknown  Kind = "unknown"
)

var eventKinds = map[string]Kind{
	"user_send_text":        KindText,
	"user_send_image":       KindImage,
	"user_send_file":        KindFile,
	"user_send_sticker":     KindSticker,
	"user_send_gif":         KindGIF,
	"user_send_audio":       KindAudio,
	"user_send_video":       KindVideo,
	"user_send_link":        KindLink,
	"user_send_location":    KindLocation,
	"follow":                KindFollow,
	"unfollow":              KindUnfollow,
	"user_received_message": KindReceipt,
	"user_seen_message":     KindReceipt,
}

// KindOf maps a provider event name to its kind; names added by the provider
// later map to KindUnknown.
func KindOf(eventName string) Kind {
	if k, ok := eventKinds[strings.ToLower(strings.TrimSpace(eventName))]; ok {
		return k
	}
	return KindUnknown
}

// Payload is implemented by every kind-specific event body.
type Payload interface {
	Kind() Kind
}

type TextMessage struct {
	MsgID string
	Text  string `validate:"required"`
}

func (TextMessage) Kind() Kind { return KindText }

type Attachment struct {
	Type      string
	URL       string
	Thumbnail string
	Name      string
	Size      string
	Checksum  string
	StickerID string
}

// AttachmentMessage covers image, file, sticker, gif, audio, video and link events.
type AttachmentMessage struct {
	Type        Kind
	MsgID       string
	Text        string
	Attachments []Attachment `validate:"min=1"`
}

func (m AttachmentMessage) Kind() Kind { return m.Type }

type LocationMessage struct {
	MsgID     string
	Latitude  float64 `validate:"gte=-90,lte=90"`
	Longitude float64 `validate:"gte=-180,lte=180"`
}

func (LocationMessage) Kind() Kind { return KindLocation }

type FollowChange struct {
	Followed   bool
	FollowerID string `validate:"required"`
	Source     string
}

func (f FollowChange) Kind() Kind {
	if f.Followed {
		return KindFollow
	}
	return KindUnfollow
}

// MessageReceipt reports delivery or read of messages sent by the OA.
type MessageReceipt struct {
	Seen   bool
	MsgIDs []string
}

func (MessageReceipt) Kind() Kind { return KindReceipt }

// Unknown keeps the message body of an event name this service does not model.
type Unknown struct {
	Raw json.RawMessage
}

func (Unknown) Kind() Kind { return KindUnknown }

type wireMessage struct {
	MsgID       string           `json:"msg_id"`
	Text        string           `json:"text"`
	MsgIDs      []string         `json:"msg_ids"`
	Attachments []wireAttachment `json:"attachments"`
}

type wireAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL         string       `json:"url"`
		Thumbnail   string       `json:"thumbnail"`
		Name        string       `json:"name"`
		Size        flexString   `json:"size"`
		Checksum    string       `json:"checksum"`
		ID          flexString   `json:"id"`
		Coordinates *coordinates `json:"coordinates"`
	} `json:"payload"`
}

type coordinates struct {
	Latitude  flexString `json:"latitude"`
	Longitude flexString `json:"longitude"`
}

func (m wireMessage) attachments() []Attachment {
	out := make([]Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		out = append(out, Attachment{
			Type:      a.Type,
			URL:       a.Payload.URL,
			Thumbnail: a.Payload.Thumbnail,
			Name:      a.Payload.Name,
			Size:      string(a.Payload.Size),
			Checksum:  a.Payload.Checksum,
			StickerID: string(a.Payload.ID),
		})
	}
	return out
}

func (m wireMessage) location() (LocationMessage, error) {
	for _, a := range m.Attachments {
		c := a.Payload.Coordinates
		if c == nil {
			continue
		}
		lat, err := strconv.ParseFloat(string(c.Latitude), 64)
		if err != nil {
			return LocationMessage{}, fmt.Errorf("%w: latitude %q", ErrMalformed, c.Latitude)
		}
		lng, err := strconv.ParseFloat(string(c.Longitude), 64)
		if err != nil {
			return LocationMessage{}, fmt.Errorf("%w: longitude %q", ErrMalformed, c.Longitude)
		}
		return LocationMessage{MsgID: m.MsgID, Latitude: lat, Longitude: lng}, nil
	}
	return LocationMessage{}, fmt.Errorf("%w: location without coordinates", ErrMalformed)
}

// flexString accepts a JSON string or number; the platform sends both.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
