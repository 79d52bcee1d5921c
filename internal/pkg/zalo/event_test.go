package zalo

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeText(t *testing.T) {
	body := []byte(`{
		"app_id": "360846524940903967",
		"oa_id": "579745863508352884",
		"user_id_by_app": "552177279252557481",
		"event_name": "user_send_text",
		"timestamp": "1700000000123",
		"sender": {"id": "246845883529197922"},
		"recipient": {"id": "579745863508352884"},
		"message": {"msg_id": "96d3cdf3af150460909", "text": "hello"}
	}`)

	ev, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, "96d3cdf3af150460909", ev.ID)
	assert.Equal(t, KindText, ev.Kind)
	assert.Equal(t, "user_send_text", ev.Name)
	assert.Equal(t, "360846524940903967", ev.AppID)
	assert.Equal(t, "579745863508352884", ev.OAID)
	assert.Equal(t, "246845883529197922", ev.SenderID)
	assert.Equal(t, int64(1700000000), ev.Timestamp)

	msg, ok := ev.Payload.(TextMessage)
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Text)
}

func TestDecodeNumericTimestampAndRecipientAsOA(t *testing.T) {
	body := []byte(`{"app_id":"a","event_name":"user_send_text","timestamp":1700000000,"sender":{"id":"u"},"recipient":{"id":"oa"},"message":{"msg_id":"m","text":"x"}}`)
	ev, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ev.Timestamp)
	assert.Equal(t, "oa", ev.OAID)
}

func TestDecodeAttachmentKinds(t *testing.T) {
	for name, kind := range map[string]Kind{
		"user_send_image":   KindImage,
		"user_send_file":    KindFile,
		"user_send_sticker": KindSticker,
		"user_send_gif":     KindGIF,
		"user_send_audio":   KindAudio,
		"user_send_video":   KindVideo,
		"user_send_link":    KindLink,
	} {
		t.Run(name, func(t *testing.T) {
			body := []byte(`{"app_id":"a","event_name":"` + name + `","timestamp":"1700000000","sender":{"id":"u"},
				"message":{"msg_id":"m-` + name + `","attachments":[{"type":"x","payload":{"url":"https://example.com/f","size":1024,"id":42}}]}}`)
			ev, err := Decode(body)
			require.NoError(t, err)
			assert.Equal(t, kind, ev.Kind)

			msg, ok := ev.Payload.(AttachmentMessage)
			require.True(t, ok)
			assert.Equal(t, kind, msg.Kind())
			require.Len(t, msg.Attachments, 1)
			assert.Equal(t, "https://example.com/f", msg.Attachments[0].URL)
			assert.Equal(t, "1024", msg.Attachments[0].Size)
			assert.Equal(t, "42", msg.Attachments[0].StickerID)
		})
	}
}

func TestDecodeAttachmentRequiresAttachments(t *testing.T) {
	body := []byte(`{"app_id":"a","event_name":"user_send_image","timestamp":"1700000000","message":{"msg_id":"m","attachments":[]}}`)
	_, err := Decode(body)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeLocation(t *testing.T) {
	body := []byte(`{"app_id":"a","event_name":"user_send_location","timestamp":"1700000000","sender":{"id":"u"},
		"message":{"msg_id":"loc1","attachments":[{"type":"location","payload":{"coordinates":{"latitude":"10.7626","longitude":106.6601}}}]}}`)
	ev, err := Decode(body)
	require.NoError(t, err)

	loc, ok := ev.Payload.(LocationMessage)
	require.True(t, ok)
	assert.InDelta(t, 10.7626, loc.Latitude, 1e-9)
	assert.InDelta(t, 106.6601, loc.Longitude, 1e-9)
}

func TestDecodeLocationRejectsBadCoordinates(t *testing.T) {
	for name, coords := range map[string]string{
		"missing":      ``,
		"out of range": `"coordinates":{"latitude":"91","longitude":"0"}`,
		"not a number": `"coordinates":{"latitude":"north","longitude":"0"}`,
	} {
		t.Run(name, func(t *testing.T) {
			body := []byte(`{"app_id":"a","event_name":"user_send_location","timestamp":"1700000000",
				"message":{"msg_id":"m","attachments":[{"type":"location","payload":{` + coords + `}}]}}`)
			_, err := Decode(body)
			assert.True(t, errors.Is(err, ErrMalformed), err)
		})
	}
}

func TestDecodeFollowUsesFollowerAsSender(t *testing.T) {
	body := []byte(`{"app_id":"a","oa_id":"oa","event_name":"follow","timestamp":"1700000000","source":"qr_code","follower":{"id":"f1"}}`)
	ev, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, KindFollow, ev.Kind)
	assert.Equal(t, "f1", ev.SenderID)
	assert.True(t, strings.HasPrefix(ev.ID, "hash:"))

	f, ok := ev.Payload.(FollowChange)
	require.True(t, ok)
	assert.True(t, f.Followed)
	assert.Equal(t, "qr_code", f.Source)

	unfollow, err := Decode([]byte(`{"app_id":"a","event_name":"unfollow","timestamp":"1700000000","follower":{"id":"f1"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnfollow, unfollow.Payload.Kind())
	assert.NotEqual(t, ev.ID, unfollow.ID)
}

func TestDecodeReceipt(t *testing.T) {
	body := []byte(`{"app_id":"a","event_name":"user_seen_message","timestamp":"1700000000","sender":{"id":"u"},"message":{"msg_ids":["m1","m2"]}}`)
	ev, err := Decode(body)
	require.NoError(t, err)

	r, ok := ev.Payload.(MessageReceipt)
	require.True(t, ok)
	assert.True(t, r.Seen)
	assert.Equal(t, []string{"m1", "m2"}, r.MsgIDs)
}

func TestDecodeUnknownEventKeepsRawMessage(t *testing.T) {
	body := []byte(`{"app_id":"a","event_name":"oa_send_consent","timestamp":"1700000000","message":{"anything":[1,2,3]}}`)
	ev, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, ev.Kind)

	u, ok := ev.Payload.(Unknown)
	require.True(t, ok)
	assert.JSONEq(t, `{"anything":[1,2,3]}`, string(u.Raw))
}

func TestDecodeRejectsMissingRequiredFields(t *testing.T) {
	tests := map[string]string{
		"not json":         `not json`,
		"array":            `[1,2]`,
		"no event name":    `{"app_id":"a","timestamp":"1700000000"}`,
		"no app id":        `{"event_name":"follow","timestamp":"1700000000","follower":{"id":"f"}}`,
		"no timestamp":     `{"app_id":"a","event_name":"follow","follower":{"id":"f"}}`,
		"bad timestamp":    `{"app_id":"a","event_name":"follow","timestamp":"soon","follower":{"id":"f"}}`,
		"text without msg": `{"app_id":"a","event_name":"user_send_text","timestamp":"1700000000"}`,
		"empty text":       `{"app_id":"a","event_name":"user_send_text","timestamp":"1700000000","message":{"msg_id":"m","text":""}}`,
		"follow no id":     `{"app_id":"a","event_name":"follow","timestamp":"1700000000"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), err)
		})
	}
}

func TestDerivedIDIsStableAcrossFormatting(t *testing.T) {
	compact := []byte(`{"app_id":"a","event_name":"user_seen_message","timestamp":"1700000000","sender":{"id":"u"},"message":{"msg_ids":["m1"]}}`)
	spaced := []byte(`{ "app_id": "a", "event_name": "user_seen_message", "timestamp": "1700000000", "sender": {"id": "u"}, "message": { "msg_ids": [ "m1" ] } }`)
	other := []byte(`{"app_id":"a","event_name":"user_seen_message","timestamp":"1700000000","sender":{"id":"u"},"message":{"msg_ids":["m2"]}}`)

	a, err := Decode(compact)
	require.NoError(t, err)
	b, err := Decode(spaced)
	require.NoError(t, err)
	c, err := Decode(other)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Len(t, a.ID, len("hash:")+64)
}

func TestPeek(t *testing.T) {
	env, err := Peek([]byte(`{"app_id":" a ","timestamp":1700000000,"rest":{"ignored":true}}`))
	require.NoError(t, err)
	assert.Equal(t, "a", env.AppID)
	assert.Equal(t, "1700000000", env.Timestamp)

	env, err = Peek([]byte(`{"timestamp":"1700000000123"}`))
	require.NoError(t, err)
	assert.Equal(t, "", env.AppID)
	assert.Equal(t, "1700000000123", env.Timestamp)

	_, err = Peek([]byte(`{broken`))
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindText, KindOf("user_send_text"))
	assert.Equal(t, KindText, KindOf(" USER_SEND_TEXT "))
	assert.Equal(t, KindReceipt, KindOf("user_received_message"))
	assert.Equal(t, KindUnknown, KindOf("brand_new_event"))
}
