package testparser

import (
	"fmt"

	"github.com/AndreyAkinshin/gtm/internal/config"
)

// ParserFor returns the parser matched to a runner. Every runner kind has
// exactly one parser; an unknown kind is an error rather than a fallback.
func ParserFor(spec config.RunnerSpec) (Parser, error) {
	switch spec.Kind {
	case config.KindUnittest:
		return &UnittestParser{}, nil
	case config.KindBehave:
		return &BehaveParser{Scan: spec.SummaryScan}, nil
	default:
		return nil, fmt.Errorf("no parser for runner kind %q", spec.Kind)
	}
}
