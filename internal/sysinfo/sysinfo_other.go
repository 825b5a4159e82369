//go:build !linux && !freebsd

package sysinfo

func collectPlatform(*Host) {}
