package prompts

import (
	"fmt"
	"strings"
)

const (
	standardsEnhanced  = "ca_k12_standards_enhanced"
	standardsReadiness = "ca_k12_standards_readiness"
	topicMapping68     = "topic_standards_mapping_6_8"
)

var subjectAliases = []struct {
	category string
	names    []string
}{
	{"math", []string{"math", "mathematics"}},
	{"ela", []string{"ela", "english", "reading", "writing", "language arts"}},
	{"history", []string{"history", "social studies", "social science"}},
	{"science", []string{"science"}},
}

// SubjectCategory maps a free-form subject onto math, ela, science or history.
// It returns "" when nothing matches.
func SubjectCategory(subject string) string {
	s := strings.ToLower(subject)
	for _, alias := range subjectAliases {
		for _, name := range alias.names {
			if strings.Contains(s, name) {
				return alias.category
			}
		}
	}
	return ""
}

// FilterStandards keeps only the standards relevant to one grade and subject.
// Grades 6-8 get detailed per-subject data; other grades get their band summary.
func FilterStandards(standards map[string]any, grade int, subject string) map[string]any {
	out := map[string]any{}
	category := SubjectCategory(subject)
	gradeKey := fmt.Sprintf("grade_%d", grade)
	middle := grade >= 6 && grade <= 8

	if data, ok := standards[standardsEnhanced].(map[string]any); ok {
		enhanced := map[string]any{"metadata": objectOr(data["metadata"])}
		if middle {
			pickGrade := func(srcKey, dstKey string) {
				if src, ok := data[srcKey].(map[string]any); ok {
					if v, ok := src[gradeKey]; ok {
						enhanced[dstKey] = map[string]any{gradeKey: v}
					}
				}
			}
			switch category {
			case "math":
				pickGrade("math_6_8_detailed", "math_detailed")
			case "ela":
				pickGrade("ela_6_8_detailed", "ela_detailed")
			case "science":
				if v, ok := data["science_ms"]; ok {
					enhanced["science"] = v
				}
			case "history":
				pickGrade("history_social_science", "history_social_science")
			}
		} else if v, ok := data["elementary_summary"]; ok && grade <= 5 {
			enhanced["elementary_summary"] = v
		} else if v, ok := data["high_school_summary"]; ok && grade >= 9 {
			enhanced["high_school_summary"] = v
		}
		out[standardsEnhanced] = enhanced
	}

	if data, ok := standards[standardsReadiness].(map[string]any); ok {
		if indicators, ok := data["readiness_indicators"].(map[string]any); ok {
			if v, ok := indicators[gradeKey]; ok {
				out[standardsReadiness] = map[string]any{
					"readiness_indicators": map[string]any{gradeKey: v},
				}
			}
		}
	}

	if data, ok := standards[topicMapping68].(map[string]any); ok && middle && category != "" {
		if v, ok := data[category]; ok {
			out[topicMapping68] = map[string]any{category: v}
		} else if meta, ok := data["metadata"]; ok {
			out[topicMapping68] = map[string]any{"metadata": meta}
		}
	}

	return out
}

func objectOr(v any) any {
	if v == nil {
		return map[string]any{}
	}
	return v
}
