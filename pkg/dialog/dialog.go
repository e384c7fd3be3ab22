// Package dialog provides the interactive prompts of the converter.
//
// Every prompt that collects a value reports ok=false when the user dismisses
// it; callers treat that as a cancellation, never as an error.
package dialog

import (
	"path/filepath"
	"strings"
)

// Dialogs is the set of prompts used by a conversion session
type Dialogs interface {
	// SelectInputFile asks for an existing file
	SelectInputFile(title string) (path string, ok bool)

	// ShowInfo shows a message and waits for acknowledgement
	ShowInfo(title, message string)

	// AskYesNo asks a question; dismissing it answers no
	AskYesNo(title, question string) bool

	// SelectOutputFile asks for a target path, appending defaultExt when the
	// answer has no extension
	SelectOutputFile(title, defaultExt string) (path string, ok bool)

	// AskFloat asks for a positive number, offering initial as the default
	AskFloat(title, prompt string, initial float64) (value float64, ok bool)

	// ShowError shows an error message
	ShowError(title, message string)
}

// withDefaultExt appends ext unless path already ends with it or has an extension of its own
func withDefaultExt(path, ext string) string {
	if ext == "" || strings.HasSuffix(strings.ToLower(path), strings.ToLower(ext)) {
		return path
	}
	if filepath.Ext(path) != "" {
		return path
	}
	return path + ext
}
