package ai

import (
	"context"
	_ "embed"
	"errors"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"
)

//go:embed motivation.txt
var builtinLines string

// Source produces a morning motivation line.
type Source interface {
	Motivation(ctx context.Context) (string, error)
}

// Static picks a random line from a fixed list.
type Static struct {
	lines []string
}

// NewStatic uses lines, or the built-in list when lines is empty.
func NewStatic(lines ...string) *Static {
	var clean []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			clean = append(clean, l)
		}
	}
	if len(clean) == 0 {
		for _, l := range strings.Split(builtinLines, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				clean = append(clean, l)
			}
		}
	}
	return &Static{lines: clean}
}

func (s *Static) Motivation(context.Context) (string, error) {
	if len(s.lines) == 0 {
		return "", errors.New("no motivation lines")
	}
	return s.lines[rand.IntN(len(s.lines))], nil
}

// Fallback tries primary first and uses secondary when it fails.
type Fallback struct {
	primary   Source
	secondary Source
	log       *zap.Logger
}

func NewFallback(primary, secondary Source, log *zap.Logger) *Fallback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{primary: primary, secondary: secondary, log: log}
}

func (f *Fallback) Motivation(ctx context.Context) (string, error) {
	if f.primary != nil {
		line, err := f.primary.Motivation(ctx)
		if err == nil {
			return line, nil
		}
		f.log.Warn("AI motivation failed, using static line", zap.Error(err))
	}
	if f.secondary == nil {
		return "", errors.New("no motivation source")
	}
	return f.secondary.Motivation(ctx)
}
