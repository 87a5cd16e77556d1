// Package fingerprint derives a stable device identity from request headers.
//
// Only low-churn attributes are hashed. IP address, screen resolution and app
// version change too often (network moves, rotation, auto-updates) and would
// force spurious re-authentication, so they are carried in DeviceInfo for
// audit purposes but never hashed.
package fingerprint

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

const (
	// Prefix tags every generated device id.
	Prefix = "dev_"

	unknown   = "unknown"
	delimiter = "|"
)

// DeviceInfo is what a client tells us about itself on every request.
type DeviceInfo struct {
	UserAgent        string `json:"userAgent,omitempty"`
	Platform         string `json:"platform,omitempty"`
	DeviceModel      string `json:"deviceModel,omitempty"`
	AppVersion       string `json:"appVersion,omitempty"`
	ScreenResolution string `json:"screenResolution,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	Language         string `json:"language,omitempty"`
}

// Request headers read by FromRequest.
const (
	HeaderPlatform         = "X-Platform"
	HeaderDeviceModel      = "X-Device-Model"
	HeaderTimezone         = "X-Timezone"
	HeaderAppVersion       = "X-App-Version"
	HeaderScreenResolution = "X-Screen-Resolution"
	HeaderForwardedFor     = "X-Forwarded-For"
	HeaderRealIP           = "X-Real-Ip"
)

// FromRequest extracts device attributes and the client IP from r.
func FromRequest(r *http.Request) (DeviceInfo, string) {
	h := r.Header
	info := DeviceInfo{
		UserAgent:        strings.TrimSpace(h.Get("User-Agent")),
		Platform:         strings.ToLower(strings.TrimSpace(h.Get(HeaderPlatform))),
		DeviceModel:      strings.TrimSpace(h.Get(HeaderDeviceModel)),
		AppVersion:       strings.TrimSpace(h.Get(HeaderAppVersion)),
		ScreenResolution: strings.TrimSpace(h.Get(HeaderScreenResolution)),
		Timezone:         strings.TrimSpace(h.Get(HeaderTimezone)),
		Language:         primaryLanguage(h.Get("Accept-Language")),
	}
	return info, clientIP(r)
}

// primaryLanguage keeps only the highest-weighted tag so that reordering the
// rest of Accept-Language does not change the device id.
func primaryLanguage(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		first := strings.SplitN(header, ",", 2)[0]
		return strings.TrimSpace(strings.SplitN(first, ";", 2)[0])
	}
	return tags[0].String()
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get(HeaderForwardedFor); xff != "" {
		if first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get(HeaderRealIP)); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IsNative reports whether the platform is a native mobile app.
func IsNative(platform string) bool {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "ios", "android":
		return true
	}
	return false
}

// attribute is one hashed field, named for audit diffs.
type attribute struct {
	name  string
	value func(DeviceInfo) string
}

var (
	attrUserAgent   = attribute{"userAgent", func(d DeviceInfo) string { return d.UserAgent }}
	attrPlatform    = attribute{"platform", func(d DeviceInfo) string { return d.Platform }}
	attrDeviceModel = attribute{"deviceModel", func(d DeviceInfo) string { return d.DeviceModel }}
	attrTimezone    = attribute{"timezone", func(d DeviceInfo) string { return d.Timezone }}
	attrLanguage    = attribute{"language", func(d DeviceInfo) string { return d.Language }}

	// order is part of the id format; never reorder.
	webAttributes    = []attribute{attrUserAgent, attrPlatform, attrDeviceModel, attrTimezone, attrLanguage}
	nativeAttributes = []attribute{attrPlatform, attrDeviceModel, attrTimezone}
)

func attributesFor(info DeviceInfo) []attribute {
	if IsNative(info.Platform) {
		return nativeAttributes
	}
	return webAttributes
}

func valueOrUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return unknown
	}
	return s
}

// Generate returns the device id for info. It is a pure function of the
// hashed attributes and never fails.
func Generate(info DeviceInfo) string {
	attrs := attributesFor(info)
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = valueOrUnknown(a.value(info))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, delimiter)))
	return Prefix + hex.EncodeToString(sum[:16])
}

// Changes names the hashed attributes that differ between two observations.
// Both sides are compared with the attribute set of the newer observation,
// plus platform, so a web->native switch is reported too.
func Changes(previous, current DeviceInfo) []string {
	var changed []string
	seen := map[string]bool{}
	attrs := append([]attribute{attrPlatform}, attributesFor(current)...)
	for _, a := range attrs {
		if seen[a.name] {
			continue
		}
		seen[a.name] = true
		if valueOrUnknown(a.value(previous)) != valueOrUnknown(a.value(current)) {
			changed = append(changed, a.name)
		}
	}
	return changed
}

// NewSessionID returns a random, unguessable session id.
func NewSessionID() string {
	return uuid.NewString()
}

// NewTokenID returns a random token id (jti): 16 random bytes, hex encoded.
func NewTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
