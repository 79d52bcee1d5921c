package signature

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAppID  = "1234567890"
	testSecret = "oa-secret"
)

var testBody = []byte(`{"app_id":"1234567890","event_name":"user_send_text","timestamp":"1700000000","sender":{"id":"u1"},"message":{"msg_id":"m1","text":"hi"}}`)

func newTestVerifier(scheme Scheme) *Verifier {
	return NewVerifier(testAppID, testSecret, DefaultTolerance, scheme)
}

func signedContext(v *Verifier, body []byte, ts string) Context {
	return Context{Signature: v.Sign(body, ts), Timestamp: ts, AppID: testAppID}
}

func TestVerifyValid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	for _, scheme := range []Scheme{SchemeHMACSHA256, SchemeZalo} {
		t.Run(string(scheme), func(t *testing.T) {
			v := newTestVerifier(scheme)
			sc := signedContext(v, testBody, "1700000000")
			assert.Equal(t, Valid, v.Verify(testBody, sc, now))
		})
	}
}

func TestVerifyAcceptsPrefixedSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier(SchemeHMACSHA256)
	sig := v.Sign(testBody, "1700000000")

	for _, prefixed := range []string{"mac=" + sig, "sha256=" + sig, " " + sig + " "} {
		sc := Context{Signature: prefixed, Timestamp: "1700000000", AppID: testAppID}
		assert.Equal(t, Valid, v.Verify(testBody, sc, now), prefixed)
	}
}

func TestVerifyRejectsEveryBodyBitFlip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier(SchemeHMACSHA256)
	sc := signedContext(v, testBody, "1700000000")

	for i := range testBody {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), testBody...)
			mutated[i] ^= 1 << bit
			require.Equal(t, InvalidSignature, v.Verify(mutated, sc, now), "byte %d bit %d", i, bit)
		}
	}
}

func TestVerifyRejectsEverySignatureBitFlip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier(SchemeHMACSHA256)
	sc := signedContext(v, testBody, "1700000000")
	sig := []byte(sc.Signature)

	for i := range sig {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), sig...)
			mutated[i] ^= 1 << bit
			msc := sc
			msc.Signature = string(mutated)
			require.Equal(t, InvalidSignature, v.Verify(testBody, msc, now), "byte %d bit %d", i, bit)
		}
	}
}

func TestVerifyStaleTimestamp(t *testing.T) {
	v := newTestVerifier(SchemeHMACSHA256)
	declared := time.Unix(1_700_000_000, 0)
	sc := signedContext(v, testBody, "1700000000")

	tests := []struct {
		name string
		now  time.Time
		want Result
	}{
		{"exactly at tolerance in the past", declared.Add(DefaultTolerance), Valid},
		{"exactly at tolerance in the future", declared.Add(-DefaultTolerance), Valid},
		{"one second too old", declared.Add(DefaultTolerance + time.Second), StaleTimestamp},
		{"one second too far ahead", declared.Add(-DefaultTolerance - time.Second), StaleTimestamp},
		{"an hour old", declared.Add(time.Hour), StaleTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Verify(testBody, sc, tt.now))
		})
	}
}

func TestVerifyCheckOrder(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier(SchemeHMACSHA256)

	tests := []struct {
		name string
		sc   Context
		want Result
	}{
		{"missing signature", Context{Timestamp: "1700000000", AppID: testAppID}, MalformedHeaders},
		{"missing timestamp", Context{Signature: "abc", AppID: testAppID}, MalformedHeaders},
		{"missing app id", Context{Signature: "abc", Timestamp: "1700000000"}, MalformedHeaders},
		{"non numeric timestamp", Context{Signature: "abc", Timestamp: "yesterday", AppID: testAppID}, MalformedHeaders},
		{"app mismatch wins over stale", Context{Signature: "abc", Timestamp: "1", AppID: "other"}, AppMismatch},
		{"stale wins over bad digest", Context{Signature: "abc", Timestamp: "1600000000", AppID: testAppID}, StaleTimestamp},
		{"bad digest", Context{Signature: "abc", Timestamp: "1700000000", AppID: testAppID}, InvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Verify(testBody, tt.sc, now))
		})
	}
}

func TestVerifyWithoutSecretNeverValid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewVerifier(testAppID, "", DefaultTolerance, SchemeHMACSHA256)
	sc := Context{Signature: Sign(SchemeHMACSHA256, testAppID, "", testBody, "1700000000"), Timestamp: "1700000000", AppID: testAppID}
	assert.Equal(t, InvalidSignature, v.Verify(testBody, sc, now))
}

func TestVerifyMillisecondTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := newTestVerifier(SchemeZalo)
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	sc := signedContext(v, testBody, ms)
	assert.Equal(t, Valid, v.Verify(testBody, sc, now))

	// The raw token is signed, so the same instant in seconds does not verify.
	sc.Timestamp = "1700000000"
	assert.Equal(t, InvalidSignature, v.Verify(testBody, sc, now))
}

func TestSchemesDiffer(t *testing.T) {
	hmacSig := Sign(SchemeHMACSHA256, testAppID, testSecret, testBody, "1700000000")
	zaloSig := Sign(SchemeZalo, testAppID, testSecret, testBody, "1700000000")
	assert.NotEqual(t, hmacSig, zaloSig)
	assert.Len(t, hmacSig, 64)
	assert.Len(t, zaloSig, 64)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"1700000000", 1700000000, false},
		{`"1700000000"`, 1700000000, false},
		{"1700000000123", 1700000000, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"", 0, true},
		{"12.5", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestParseScheme(t *testing.T) {
	s, err := ParseScheme("")
	require.NoError(t, err)
	assert.Equal(t, SchemeHMACSHA256, s)

	s, err = ParseScheme(" ZALO ")
	require.NoError(t, err)
	assert.Equal(t, SchemeZalo, s)

	_, err = ParseScheme("md5")
	assert.Error(t, err)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "valid", Valid.String())
	assert.Equal(t, "invalid_signature", InvalidSignature.String())
	assert.Equal(t, "stale_timestamp", StaleTimestamp.String())
	assert.Equal(t, "app_mismatch", AppMismatch.String())
	assert.Equal(t, "malformed_headers", MalformedHeaders.String())
}
