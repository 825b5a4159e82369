package ratelimit

import "strings"

// LoginKey builds the limiter key for login attempts from one client address.
func LoginKey(clientIP string) string {
	ip := strings.TrimSpace(clientIP)
	if ip == "" {
		return ""
	}
	return "login:ip:" + ip
}
