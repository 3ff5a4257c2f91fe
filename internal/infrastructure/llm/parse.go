package llm

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"emailfilter/internal/domain/mail"
)

// ErrMalformedResponse means the reply could not be mapped to verdicts.
var ErrMalformedResponse = errors.New("malformed classifier response")

// parseIndices reads a JSON array of batch indices to delete. Entries that
// are not integers, are out of range, or repeat are dropped with a warning.
func parseIndices(raw string, size int, log *zap.SugaredLogger) (mail.Verdicts, error) {
	text := stripFences(raw)
	if !gjson.Valid(text) || !gjson.Parse(text).IsArray() {
		// Tolerate prose around the array.
		start, end := strings.Index(text, "["), strings.LastIndex(text, "]")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: no JSON array in %q", ErrMalformedResponse, raw)
		}
		text = text[start : end+1]
		if !gjson.Valid(text) {
			return nil, fmt.Errorf("%w: invalid JSON array %q", ErrMalformedResponse, raw)
		}
	}

	verdicts := mail.Verdicts{}
	gjson.Parse(text).ForEach(func(_, v gjson.Result) bool {
		if v.Type != gjson.Number || v.Num != math.Trunc(v.Num) {
			log.Warnw("ignoring non-integer index", "value", v.Raw)
			return true
		}
		idx := int(v.Int())
		switch {
		case idx < 0 || idx >= size:
			log.Warnw("ignoring out-of-range index", "index", idx, "batch", size)
		case verdicts[idx] == mail.VerdictDelete:
			log.Warnw("ignoring duplicate index", "index", idx)
		default:
			verdicts[idx] = mail.VerdictDelete
		}
		return true
	})
	return verdicts, nil
}

// parseDigits reads one '1' (delete) or '0' (keep) per message. Any other
// shape rejects the whole reply.
func parseDigits(raw string, size int) (mail.Verdicts, error) {
	text := strings.Join(strings.Fields(stripFences(raw)), "")
	text = strings.Trim(text, `"'`)
	if len(text) != size {
		return nil, fmt.Errorf("%w: want %d digits, got %q", ErrMalformedResponse, size, raw)
	}

	verdicts := make(mail.Verdicts, size)
	for i, c := range text {
		switch c {
		case '1':
			verdicts[i] = mail.VerdictDelete
		case '0':
			verdicts[i] = mail.VerdictKeep
		default:
			return nil, fmt.Errorf("%w: unexpected %q at %d", ErrMalformedResponse, c, i)
		}
	}
	return verdicts, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
