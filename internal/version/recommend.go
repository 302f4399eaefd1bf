package version

import (
	"regexp"
	"strings"

	"github.com/yorozuya-cybersecurity/upgrade-advisor/internal/schema"
)

var (
	reRecommended = regexp.MustCompile(`(?i)\(\s*rec+omm?ended\s*\)\s*$`)
	reDesignation = regexp.MustCompile(`(?i)\(\s*(MD|GD|ED|LD|DF|F|M)\s*\)\s*$`)
)

// Release is a scraped "latest" string split into its parts
type Release struct {
	Raw         string
	Clean       string
	Explicit    bool
	Designation string
}

// ParseRelease strips a trailing "(recommended)" marker and then a trailing
// designation code such as "(MD)".
func ParseRelease(raw string) Release {
	r := Release{Raw: raw}

	s := strings.TrimSpace(raw)
	if s == "" {
		return r
	}

	if reRecommended.MatchString(s) {
		r.Explicit = true
		s = strings.TrimRight(reRecommended.ReplaceAllString(s, ""), " \t")
	}
	if m := reDesignation.FindStringSubmatch(s); m != nil {
		r.Designation = strings.ToUpper(m[1])
		s = strings.TrimRight(reDesignation.ReplaceAllString(s, ""), " \t")
	}

	r.Clean = s

	return r
}

// Decision is the outcome of Decide. A zero Category means indeterminate.
type Decision struct {
	Category schema.Category
	Upgrade  *bool
}

// Indeterminate reports whether a version was missing.
func (d Decision) Indeterminate() bool {
	return d.Category == ""
}

// Decide maps the current version and the published latest release to a
// recommendation. Rules, first match wins:
//
//  1. same version (an explicit marker means the published string differs)
//  2. either version missing: indeterminate
//  3. explicit "(recommended)": upgrade obligatory
//  4. DF: critical upgrade suggested
//  5. MD or GD: upgrade suggested
//  6. otherwise: upgrade optional
func Decide(platform, current string, latest Release) Decision {
	cur := Normalize(platform, strings.TrimSpace(current))
	lat := Normalize(platform, latest.Clean)

	if cur != "" && lat != "" && !latest.Explicit && cur == lat {
		return decision(schema.CategorySameVersion, false)
	}
	if cur == "" || lat == "" {
		return Decision{}
	}

	switch {
	case latest.Explicit:
		return decision(schema.CategoryObligatory, true)
	case latest.Designation == "DF":
		return decision(schema.CategoryCriticalSuggest, true)
	case latest.Designation == "MD", latest.Designation == "GD":
		return decision(schema.CategorySuggested, true)
	default:
		return decision(schema.CategoryOptional, false)
	}
}

func decision(c schema.Category, upgrade bool) Decision {
	return Decision{Category: c, Upgrade: &upgrade}
}
