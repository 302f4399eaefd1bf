// Package version canonicalizes vendor version strings and turns a published
// release into an upgrade recommendation. Versions are only ever compared for
// exact equality; there is no notion of one version being newer than another.
package version

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// 15.0(2)SE11, 10.3(3)
	reCanonical = regexp.MustCompile(`^(\d+)\.(\d+)\((\d+)\)([A-Za-z]+)?(\d+)?$`)
	// 15.0.2-SE11
	reDash = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)-([A-Za-z]+)(\d+)$`)
	// 15.2.7E9
	reConcat = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)([A-Za-z]+)(\d+)$`)
)

// IsIOSFamily reports whether platform uses the MAJOR.MINOR(PATCH)SUFFIX# grammar.
func IsIOSFamily(platform string) bool {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "ios", "iosxe", "ios-xe":
		return true
	}
	return false
}

// Normalize returns the canonical spelling of raw for the given platform.
// Unknown platforms and unrecognized spellings pass through unchanged.
func Normalize(platform, raw string) string {
	if !IsIOSFamily(platform) {
		return raw
	}

	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if reCanonical.MatchString(s) {
		return s
	}
	if m := reDash.FindStringSubmatch(s); m != nil {
		return canonical(m[1:])
	}
	if m := reConcat.FindStringSubmatch(s); m != nil {
		return canonical(m[1:])
	}

	return raw
}

// VariantsFor lists the spellings to try against the advisory service, in
// order: canonical, dash, concatenated, then raw. Duplicates are dropped.
func VariantsFor(platform, raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var out []string
	add := func(v string) {
		if v == "" {
			return
		}
		for _, existing := range out {
			if existing == v {
				return
			}
		}
		out = append(out, v)
	}

	can := Normalize(platform, raw)
	add(can)

	if IsIOSFamily(platform) {
		if m := reCanonical.FindStringSubmatch(can); m != nil && m[4] != "" && m[5] != "" {
			add(fmt.Sprintf("%s.%s.%s-%s%s", m[1], m[2], m[3], m[4], m[5]))
			add(fmt.Sprintf("%s.%s.%s%s%s", m[1], m[2], m[3], m[4], m[5]))
		}
	}

	add(raw)

	return out
}

func canonical(parts []string) string {
	return fmt.Sprintf("%s.%s(%s)%s%s", parts[0], parts[1], parts[2], parts[3], parts[4])
}
