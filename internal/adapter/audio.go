package adapter

import (
	"path"
	"strings"
)

// playableExts is the fixed set of audio extensions the player handles.
var playableExts = map[string]bool{
	"mp3":  true,
	"wav":  true,
	"flac": true,
	"ogg":  true,
	"m4a":  true,
	"aac":  true,
	"wma":  true,
}

// audioMIME maps playable extensions to Content-Type values.
var audioMIME = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"ogg":  "audio/ogg",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"wma":  "audio/x-ms-wma",
}

// ext returns the lowercase extension of name without the dot.
func ext(name string) string {
	e := path.Ext(name)
	if e == "" {
		return ""
	}
	return strings.ToLower(e[1:])
}

// IsPlayableAudio reports whether name has a supported audio extension.
// The match is case-insensitive. Directories are never playable; callers
// only ask for file entries.
func IsPlayableAudio(name string) bool {
	return playableExts[ext(name)]
}

// MIMEForName returns the Content-Type for an audio file name, defaulting
// to audio/mpeg for unrecognized extensions.
func MIMEForName(name string) string {
	if m, ok := audioMIME[ext(name)]; ok {
		return m
	}
	return "audio/mpeg"
}
