package curriculum

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	maxTopicLength = 500

	DefaultSessionLength = 45
	DefaultNumDays       = 1
	DefaultGoalType      = "practice"
	DefaultGroupFormat   = "small_group"
)

var (
	subjects     = []string{"Math", "ELA", "Science", "History"}
	goalTypes    = []string{"introduce", "practice", "assess", "remediate"}
	groupFormats = []string{"individual", "small_group", "whole_class"}
	strategies   = []string{"single", "parallel"}
)

type ApproachCatalog interface {
	HasApproach(id string) bool
}

type ModelCatalog interface {
	Has(key string) bool
}

// Normalize fills defaults, canonicalizes enum spellings and validates every
// field. All problems are reported together in a *ValidationError. Either
// catalog may be nil to skip that lookup.
func Normalize(req Request, approaches ApproachCatalog, models ModelCatalog) (Request, error) {
	bad := map[string]string{}

	if req.Grade < 0 || req.Grade > 12 {
		bad["grade"] = "must be between 0 and 12"
	}

	if s, ok := oneOf(req.Subject, subjects); ok {
		req.Subject = s
	} else {
		bad["subject"] = "must be one of " + strings.Join(subjects, ", ")
	}

	req.Topic = strings.TrimSpace(req.Topic)
	switch {
	case req.Topic == "":
		bad["topic"] = "is required"
	case utf8.RuneCountInString(req.Topic) > maxTopicLength:
		bad["topic"] = fmt.Sprintf("must be at most %d characters", maxTopicLength)
	case strings.ContainsAny(req.Topic, "\r\n"):
		bad["topic"] = "must be a single line"
	}

	if req.SessionLengthMinutes == 0 {
		req.SessionLengthMinutes = DefaultSessionLength
	}
	if req.SessionLengthMinutes < 5 || req.SessionLengthMinutes > 120 {
		bad["session_length_minutes"] = "must be between 5 and 120"
	}

	if req.NumDays == 0 {
		req.NumDays = DefaultNumDays
	}
	if req.NumDays < 1 || req.NumDays > 3 {
		bad["num_days"] = "must be between 1 and 3"
	}

	if req.LearningGoalType == "" {
		req.LearningGoalType = DefaultGoalType
	}
	if v, ok := oneOf(req.LearningGoalType, goalTypes); ok {
		req.LearningGoalType = v
	} else {
		bad["learning_goal_type"] = "must be one of " + strings.Join(goalTypes, ", ")
	}

	if req.GroupFormat == "" {
		req.GroupFormat = DefaultGroupFormat
	}
	if v, ok := oneOf(req.GroupFormat, groupFormats); ok {
		req.GroupFormat = v
	} else {
		bad["group_format"] = "must be one of " + strings.Join(groupFormats, ", ")
	}

	req.PedagogicalApproach = strings.TrimSpace(req.PedagogicalApproach)
	if req.PedagogicalApproach != "" && approaches != nil && !approaches.HasApproach(req.PedagogicalApproach) {
		bad["pedagogical_approach"] = "unknown approach"
	}

	req.Model = strings.TrimSpace(req.Model)
	if req.Model != "" && models != nil && !models.Has(req.Model) {
		bad["model"] = "unknown model"
	}

	req.Strategy = strings.TrimSpace(req.Strategy)
	if req.Strategy != "" {
		if v, ok := oneOf(req.Strategy, strategies); ok {
			req.Strategy = v
		} else {
			bad["strategy"] = "must be single or parallel"
		}
	}

	if len(bad) > 0 {
		return req, &ValidationError{Fields: bad}
	}
	return req, nil
}

func oneOf(v string, allowed []string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return a, true
		}
	}
	return "", false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
