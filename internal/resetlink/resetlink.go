// Package resetlink packs a password-reset token and email into the single
// URL-safe path segment used by reset-password links.
package resetlink

import (
	"encoding/base64"
	"net/url"
	"strings"
)

const routePrefix = "/#/reset-password/"

// Encode returns unpadded URL-safe base64 of "?token=<t>&email=<e>".
func Encode(token, email string) string {
	query := "?token=" + escape(token) + "&email=" + escape(email)
	return base64.RawURLEncoding.EncodeToString([]byte(query))
}

// escape matches encodeURIComponent, which writes spaces as %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Decode reverses Encode. ok is false when the segment is not valid or lacks
// either value.
func Decode(segment string) (token, email string, ok bool) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(segment, "="))
	if err != nil {
		return "", "", false
	}
	values, err := url.ParseQuery(strings.TrimPrefix(string(raw), "?"))
	if err != nil {
		return "", "", false
	}
	token, email = values.Get("token"), values.Get("email")
	if token == "" || email == "" {
		return "", "", false
	}
	return token, email, true
}

// Link builds "<baseURL>/#/reset-password/<encoded>".
func Link(baseURL, token, email string) string {
	return strings.TrimRight(baseURL, "/") + routePrefix + Encode(token, email)
}

// FromLink accepts either a full link or a bare encoded segment.
func FromLink(link string) (token, email string, ok bool) {
	link = strings.TrimSpace(link)
	if i := strings.LastIndex(link, "/reset-password/"); i >= 0 {
		link = link[i+len("/reset-password/"):]
	}
	if i := strings.IndexAny(link, "?#/"); i >= 0 {
		link = link[:i]
	}
	return Decode(link)
}
