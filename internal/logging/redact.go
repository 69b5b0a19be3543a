// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package logging

// Redact masks a secret for safe logging, keeping only the first and last
// four characters. Values shorter than twelve characters are fully masked.
// OAuth tokens, client secrets and PKCE verifiers must never be logged raw.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) < 12 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
