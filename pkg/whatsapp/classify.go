package whatsapp

import (
	"errors"
	"strings"
)

// Class is the retry category of a failed delivery attempt.
type Class int

const (
	ClassTransient Class = iota
	ClassSessionFatal
	ClassInvalidRecipient
	ClassRejected
)

type classifierRule struct {
	class    Class
	contains []string
}

// Evaluated in order, first match wins.
var classifierRules = []classifierRule{
	{
		class: ClassSessionFatal,
		contains: []string{
			"session closed",
			"protocol error",
			"target closed",
			"not ready",
			"disconnected",
			"not connected",
			"not logged in",
			"logged out",
			"stream replaced",
			"auth",
		},
	},
	{
		class: ClassInvalidRecipient,
		contains: []string{
			"invalid number",
			"invalid phone",
			"invalid jid",
			"not registered",
			"not on whatsapp",
		},
	},
	{
		class: ClassRejected,
		contains: []string{
			"rate limit",
			"rate-overlimit",
			"too many",
			"blocked",
			"banned",
			"spam",
		},
	},
}

var errAttemptTimeout = errors.New("send attempt timed out")

// Classify maps raw transport error text onto a retry category.
func Classify(err error) Class {
	if err == nil || errors.Is(err, errAttemptTimeout) {
		return ClassTransient
	}

	text := strings.ToLower(err.Error())
	for _, rule := range classifierRules {
		for _, needle := range rule.contains {
			if strings.Contains(text, needle) {
				return rule.class
			}
		}
	}
	return ClassTransient
}

func (c Class) String() string {
	switch c {
	case ClassSessionFatal:
		return "session_fatal"
	case ClassInvalidRecipient:
		return "invalid_recipient"
	case ClassRejected:
		return "rejected"
	default:
		return "transient"
	}
}
