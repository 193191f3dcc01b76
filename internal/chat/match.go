package chat

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"moveline/internal/steps"
)

// fold normalises text for comparison: NFKC, case folded, trimmed.
func fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(s)))
}

// matchOption resolves free text against the options of st. Exact value or
// label matches win; otherwise a containment match is accepted only when it
// is unambiguous. Yes/no replies answer true/false option sets.
func matchOption(st steps.Step, text string) (steps.Option, bool) {
	in := fold(text)
	if in == "" || len(st.Options) == 0 {
		return steps.Option{}, false
	}
	for _, opt := range st.Options {
		if fold(opt.Value) == in || fold(opt.Label) == in {
			return opt, true
		}
	}
	switch {
	case yesPattern.MatchString(in):
		if opt, ok := st.Option("true"); ok {
			return opt, true
		}
	case noPattern.MatchString(in):
		if opt, ok := st.Option("false"); ok {
			return opt, true
		}
	}
	var found []steps.Option
	for _, opt := range st.Options {
		label := fold(opt.Label)
		if strings.Contains(label, in) || strings.Contains(in, label) {
			found = append(found, opt)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return steps.Option{}, false
}

// optionHint lists option labels, or falls back to the step description.
func optionHint(st steps.Step) string {
	if len(st.Options) > 0 {
		labels := make([]string, 0, len(st.Options))
		for _, o := range st.Options {
			labels = append(labels, o.Label)
		}
		return strings.Join(labels, " / ")
	}
	return st.Description
}
