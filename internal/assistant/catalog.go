package assistant

import (
	"regexp"
	"strings"

	"github.com/deepgram/coursechat/internal/protocol"
)

// Course is a catalog entry and the words that make it relevant
type Course struct {
	protocol.CourseRecommendation
	Keywords    []string
	Regulations []string
}

type Catalog []Course

// DefaultCatalog is the course list shown by the chat widget
var DefaultCatalog = Catalog{
	{
		CourseRecommendation: protocol.CourseRecommendation{
			CourseID:    "default-1",
			CourseName:  "OSHA 40-Hour Hazwoper",
			Description: "Comprehensive hazardous waste operations training",
			Price:       "$299",
			Duration:    "40 Hours",
			URL:         "#",
		},
		Keywords:    []string{"40-hour", "40 hour", "hazwoper", "licence", "license", "certification", "cleanup", "site worker"},
		Regulations: []string{"29 CFR 1910.120"},
	},
	{
		CourseRecommendation: protocol.CourseRecommendation{
			CourseID:    "default-2",
			CourseName:  "OSHA 24-Hour Hazwoper",
			Description: "Essential hazmat training for workers",
			Price:       "$199",
			Duration:    "24 Hours",
			URL:         "#",
		},
		Keywords:    []string{"24-hour", "24 hour", "occasional", "hazmat", "licence", "license"},
		Regulations: []string{"29 CFR 1910.120"},
	},
	{
		CourseRecommendation: protocol.CourseRecommendation{
			CourseID:    "default-3",
			CourseName:  "8-Hour Annual Refresher",
			Description: "Annual refresher for certified pros",
			Price:       "$99",
			Duration:    "8 Hours",
			URL:         "#",
		},
		Keywords:    []string{"refresher", "renew", "annual", "expired", "8-hour", "8 hour"},
		Regulations: []string{"29 CFR 1910.120(e)(8)"},
	},
	{
		CourseRecommendation: protocol.CourseRecommendation{
			CourseID:    "default-4",
			CourseName:  "Confined Space Entry",
			Description: "Safety training for confined spaces",
			Price:       "$179",
			Duration:    "16 Hours",
			URL:         "#",
		},
		Keywords:    []string{"confined", "tank", "manhole", "vault"},
		Regulations: []string{"29 CFR 1910.146"},
	},
	{
		CourseRecommendation: protocol.CourseRecommendation{
			CourseID:    "default-5",
			CourseName:  "DOT Hazmat Training",
			Description: "Department of Transportation compliance",
			Price:       "$149",
			Duration:    "12 Hours",
			URL:         "#",
		},
		Keywords:    []string{"dot", "transport", "shipping", "truck", "driver"},
		Regulations: []string{"49 CFR 172.704"},
	},
}

var wordSplitter = regexp.MustCompile(`[^a-z0-9-]+`)

// Match returns the courses whose keywords or names occur in text, in catalog
// order, together with the regulations they cite.
func (c Catalog) Match(text string) ([]protocol.CourseRecommendation, []string) {
	lower := strings.ToLower(text)
	padded := " " + strings.Join(wordSplitter.Split(lower, -1), " ") + " "

	var courses []protocol.CourseRecommendation
	var regulations []string
	seen := map[string]bool{}

	for _, course := range c {
		if !course.matches(lower, padded) {
			continue
		}
		courses = append(courses, course.CourseRecommendation)
		for _, reg := range course.Regulations {
			if !seen[reg] {
				seen[reg] = true
				regulations = append(regulations, reg)
			}
		}
	}
	return courses, regulations
}

func (c Course) matches(lower, padded string) bool {
	if strings.Contains(lower, strings.ToLower(c.CourseName)) {
		return true
	}
	for _, kw := range c.Keywords {
		if strings.Contains(padded, " "+kw+" ") {
			return true
		}
	}
	return false
}

var citationPattern = regexp.MustCompile(`\b\d{2} CFR (?:Part )?\d+(?:\.\d+)?(?:\([a-z0-9]+\))*`)

// Citations extracts regulation references such as "29 CFR 1910.120" from text.
func Citations(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range citationPattern.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// Prompt renders the catalog for a language model system prompt.
func (c Catalog) Prompt() string {
	var b strings.Builder
	for _, course := range c {
		b.WriteString("- ")
		b.WriteString(course.CourseName)
		b.WriteString(" (")
		b.WriteString(course.Duration)
		b.WriteString(", ")
		b.WriteString(course.Price)
		b.WriteString("): ")
		b.WriteString(course.Description)
		if len(course.Regulations) > 0 {
			b.WriteString(". Covers ")
			b.WriteString(strings.Join(course.Regulations, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
