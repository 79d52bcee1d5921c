package controllers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientIP determines the address used as rate-limit key and stored with
// each event. Proxy headers are only honoured when trustProxy is set, since
// anyone can send them.
func ClientIP(c *fiber.Ctx, trustProxy bool) string {
	if trustProxy {
		// 1. Cloudflare provides the original client IP in this header
		if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
			return cfIP
		}

		// 2. X-Forwarded-For can contain a list of IPs; the first one is the original client
		if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
			if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
				return first
			}
		}

		if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}

	// 3. No proxy headers, use the peer address
	ipAddr := c.IP()

	// For ::ffff: IPv4-mapped-IPv6 addresses
	if strings.HasPrefix(ipAddr, "::ffff:") && strings.Contains(ipAddr, ".") {
		return strings.TrimPrefix(ipAddr, "::ffff:")
	}
	return ipAddr
}

// requestHeaders copies the request headers out of the fasthttp buffer.
func requestHeaders(c *fiber.Ctx) http.Header {
	h := make(http.Header)
	c.Request().Header.VisitAll(func(key, value []byte) {
		h.Add(string(key), string(value))
	})
	return h
}
