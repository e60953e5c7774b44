// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"errors"

	"github.com/crowdsync/crowdsync/locality"
	"github.com/crowdsync/crowdsync/report"
	"github.com/crowdsync/crowdsync/session"
)

// Level is the kind of a Notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient message for the user.
type Notification struct {
	Level   Level
	Title   string
	Message string
}

// Notifier shows notifications.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

const genericFailure = "Something went wrong. Please try again."

// failureNotification turns an error into what the user sees.
// Validation problems keep their text; everything else is generic,
// with the detail left to the log.
func failureNotification(title string, err error) Notification {
	switch {
	case errors.Is(err, report.ErrAlreadyReported):
		return Notification{Level: LevelInfo, Title: title, Message: "You have already reported this issue."}
	case errors.Is(err, session.ErrNoSession):
		return Notification{Level: LevelError, Title: title, Message: "Your session has ended. Please sign in again."}
	case errors.Is(err, report.ErrInvalidDraft), errors.Is(err, report.ErrEmptyComment):
		return Notification{Level: LevelError, Title: title, Message: validationMessage(err)}
	case errors.Is(err, locality.ErrInvalidPincode):
		return Notification{Level: LevelError, Title: title, Message: locality.UserMessage(err)}
	}
	return Notification{Level: LevelError, Title: title, Message: genericFailure}
}

func validationMessage(err error) string {
	if errors.Is(err, report.ErrEmptyComment) {
		return "Comment cannot be empty."
	}
	// "report: invalid report: problem one\nproblem two"
	message := err.Error()
	prefix := report.ErrInvalidDraft.Error() + ": "
	if len(message) > len(prefix) && message[:len(prefix)] == prefix {
		return message[len(prefix):]
	}
	return message
}
