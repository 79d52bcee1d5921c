package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/zalohook/internal/pkg/env"
	"github.com/ManuelReschke/zalohook/internal/pkg/signature"
	"github.com/ManuelReschke/zalohook/internal/pkg/zalo"
)

// runSign prints the signature header for a payload, for local testing
// against a running instance:
//
//	zalohook sign -body event.json
func runSign(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	env.SetupEnvFile()

	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bodyFile := fs.String("body", "-", "payload file, - for stdin")
	appID := fs.String("app-id", env.GetEnv("ZALO_APP_ID", ""), "app ID; defaults to ZALO_APP_ID or the payload's app_id")
	secret := fs.String("secret", env.GetEnv("ZALO_OA_SECRET_KEY", ""), "shared secret")
	timestamp := fs.String("timestamp", "", "timestamp token; defaults to the payload's timestamp or now")
	scheme := fs.String("scheme", env.GetEnv("WEBHOOK_SIGNATURE_SCHEME", string(signature.SchemeHMACSHA256)), "hmac-sha256 or zalo")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, err := signature.ParseScheme(*scheme)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if *secret == "" {
		fmt.Fprintln(stderr, "a secret is required (-secret or ZALO_OA_SECRET_KEY)")
		return 2
	}

	var body []byte
	if *bodyFile == "-" {
		body, err = io.ReadAll(stdin)
	} else {
		body, err = os.ReadFile(*bodyFile)
	}
	if err != nil {
		fmt.Fprintf(stderr, "read body: %v\n", err)
		return 1
	}

	envelope, _ := zalo.Peek(body)
	ts := strings.TrimSpace(*timestamp)
	if ts == "" {
		ts = envelope.Timestamp
	}
	if ts == "" {
		ts = strconv.FormatInt(time.Now().Unix(), 10)
	}
	app := strings.TrimSpace(*appID)
	if app == "" {
		app = envelope.AppID
	}

	fmt.Fprintf(stdout, "X-ZEvent-Signature: %s\n", signature.Sign(s, app, *secret, body, ts))
	fmt.Fprintf(stdout, "X-ZEvent-Timestamp: %s\n", ts)
	fmt.Fprintf(stdout, "X-ZEvent-App-Id: %s\n", app)
	return 0
}
