package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/advicehub/counsel/internal/llm"
)

// DefaultFlushThreshold is the unflushed answer length that triggers an
// interim supervisor update.
const DefaultFlushThreshold = 75

// Role-play continuation markers: the model sometimes keeps writing the
// adviser's next turn. Everything from the first marker on is cut.
var rolePlayMarkers = []string{"Adviser: ", "Advisor: "}

// CutRolePlay truncates the answer at the first role-play marker. It returns
// the (possibly shortened) answer and whether a cut was made.
func CutRolePlay(answer string) (string, bool) {
	for _, marker := range rolePlayMarkers {
		if idx := strings.Index(answer, marker); idx >= 0 {
			return strings.TrimSpace(answer[:idx]), true
		}
	}
	return strings.TrimSpace(answer), false
}

// StreamResult is the finalized output of one aggregation pass.
type StreamResult struct {
	// Answer is the accumulated, truncation-scanned answer text.
	Answer string
	// Extra carries any non-answer fragment fields, replaced on each
	// occurrence rather than accumulated.
	Extra map[string]any
	// Truncated reports whether a role-play marker was cut.
	Truncated bool
}

// InterimSink receives supervisor-view updates interleaved with fragment
// consumption. Errors from the sink fail the attempt and are subject to the
// retry policy like any other stream failure.
type InterimSink interface {
	// AnswerStarted fires on the first fragment contributing to the answer,
	// replacing the "working" placeholder.
	AnswerStarted(ctx context.Context, answer string) error
	// AnswerProgress fires on each flush of newly accumulated answer text.
	AnswerProgress(ctx context.Context, answer string) error
}

// StreamAggregator folds a fragment stream into a single answer, emitting
// interim updates every flushThreshold characters of new answer text and
// terminating early when a role-play marker appears.
type StreamAggregator struct {
	flushThreshold int
}

// NewStreamAggregator creates an aggregator; threshold <= 0 uses the default.
func NewStreamAggregator(flushThreshold int) *StreamAggregator {
	if flushThreshold <= 0 {
		flushThreshold = DefaultFlushThreshold
	}
	return &StreamAggregator{flushThreshold: flushThreshold}
}

// Consume drains the stream and returns the finalized result. The stream is
// never resumed after an error; the caller opens a fresh one per retry.
func (a *StreamAggregator) Consume(ctx context.Context, stream llm.Stream, sink InterimSink) (*StreamResult, error) {
	var (
		answer    strings.Builder
		extra     map[string]any
		unflushed int
		started   bool
		truncated bool
		final     string
	)

	for {
		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("answer stream failed: %w", err)
		}

		delta := ""
		for key, value := range frag {
			if key == llm.FieldAnswer {
				text, ok := value.(string)
				if !ok {
					return nil, fmt.Errorf("answer fragment is not text: %T", value)
				}
				delta = text
				continue
			}
			if extra == nil {
				extra = make(map[string]any)
			}
			extra[key] = value
		}

		if _, ok := frag[llm.FieldAnswer]; !ok {
			continue
		}

		answer.WriteString(delta)
		if !started {
			started = true
			if err := sink.AnswerStarted(ctx, answer.String()); err != nil {
				return nil, err
			}
		}

		unflushed += utf8.RuneCountInString(delta)
		if unflushed >= a.flushThreshold {
			cut, wasCut := CutRolePlay(answer.String())
			if err := sink.AnswerProgress(ctx, cut); err != nil {
				return nil, err
			}
			unflushed = 0
			if wasCut {
				// Stop consuming: the model has started role-playing the
				// adviser and nothing after the marker is usable.
				truncated = true
				final = cut
				break
			}
		}
	}

	if !truncated {
		var wasCut bool
		final, wasCut = CutRolePlay(answer.String())
		truncated = wasCut
	}

	return &StreamResult{
		Answer:    final,
		Extra:     extra,
		Truncated: truncated,
	}, nil
}
