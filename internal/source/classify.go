package source

import (
	"errors"
	"strings"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/process"
)

// diagnosticRules map downloader output to a Kind. Matching is best effort:
// the wording belongs to the external tool and changes between releases.
// Earlier rules win.
var diagnosticRules = []struct {
	kind    Kind
	phrases []string
}{
	{KindRestricted, []string{"confirm your age", "age-restricted", "age restricted", "inappropriate for some users", "members-only", "join this channel"}},
	{KindExtractionBlocked, []string{"sign in to confirm", "not a bot", "http error 429", "too many requests", "captcha"}},
	{KindRegionBlocked, []string{"available in your country", "blocked it in your country", "geo restrict", "geo-restrict"}},
	{KindUnavailable, []string{"private video", "video unavailable", "has been removed", "account associated with this video has been terminated", "does not exist", "http error 404"}},
	{KindTimeout, []string{"timed out", "timeout"}},
}

// Classify infers a Kind from a tool diagnostic.
func Classify(diagnostic string) Kind {
	d := strings.ToLower(diagnostic)
	for _, rule := range diagnosticRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(d, phrase) {
				return rule.kind
			}
		}
	}
	return KindFetchFailed
}

// classifyError picks a Kind for one failed attempt.
func classifyError(err error) Kind {
	if errors.Is(err, process.ErrTimeout) {
		return KindTimeout
	}
	var procErr *process.Error
	if errors.As(err, &procErr) {
		if kind := Classify(procErr.Result.Stderr); kind != KindFetchFailed {
			return kind
		}
	}
	return Classify(err.Error())
}
