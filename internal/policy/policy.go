// Package policy decides whether a torrent's file names violate the
// forbidden-extension policy. It is pure: no I/O, no side effects.
package policy

import "strings"

// Verdict is the result of classifying a file manifest.
type Verdict struct {
	Blocked bool
	// MatchedExtensions lists distinct matched extensions in order of
	// first occurrence in the manifest.
	MatchedExtensions []string
	// MatchedFiles lists every file that matched, in manifest order.
	MatchedFiles []string
}

// Policy holds the normalized blocked/allowed extension sets.
type Policy struct {
	blocked map[string]struct{}
	allowed map[string]struct{}
}

// New builds a policy from configured extension lists. Entries are
// lower-cased and get a leading dot added if missing, so "exe" and ".EXE"
// both mean ".exe".
func New(blockedExts, allowedExts []string) *Policy {
	return &Policy{
		blocked: normalize(blockedExts),
		allowed: normalize(allowedExts),
	}
}

// Classify evaluates the file names against the policy. A file matches if
// its extension is blocked and not allowed; the allow list always wins.
// Files without a dot never match.
func (p *Policy) Classify(fileNames []string) Verdict {
	verdict := Verdict{}
	seen := make(map[string]struct{})

	for _, name := range fileNames {
		ext := Ext(name)
		if ext == "" {
			continue
		}
		if _, isBlocked := p.blocked[ext]; !isBlocked {
			continue
		}
		if _, isAllowed := p.allowed[ext]; isAllowed {
			continue
		}

		verdict.Blocked = true
		verdict.MatchedFiles = append(verdict.MatchedFiles, name)
		if _, ok := seen[ext]; !ok {
			seen[ext] = struct{}{}
			verdict.MatchedExtensions = append(verdict.MatchedExtensions, ext)
		}
	}

	return verdict
}

// Ext extracts the lower-cased extension including the dot, or "" if the
// name has none.
func Ext(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(name[idx:])
}

func normalize(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}
