package ledger

import (
	"fmt"
	"strings"
	"time"
)

// PGNHeaders are the tag pairs written ahead of the movetext.
type PGNHeaders struct {
	Event       string
	Site        string
	Date        time.Time
	White       string
	Black       string
	Termination string
	ECO         string
	Opening     string
}

// ResultToken maps "white" | "black" | "draw" to the PGN result token; anything else is "*".
func ResultToken(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

// PGN renders records as "1. e4 e5 2. Nf3 ..." followed by the result token.
// Half-moves are copied verbatim; no legality is implied.
func PGN(records []MoveRecord, h PGNHeaders, result string) string {
	token := ResultToken(result)
	var b strings.Builder
	date := h.Date
	if date.IsZero() {
		date = time.Now()
	}
	event := h.Event
	if strings.TrimSpace(event) == "" {
		event = "Live Session"
	}
	b.WriteString(fmt.Sprintf("[Event \"%s\"]\n", sanitizeTag(event)))
	if strings.TrimSpace(h.Site) != "" {
		b.WriteString(fmt.Sprintf("[Site \"%s\"]\n", sanitizeTag(h.Site)))
	}
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizeTag(h.White)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizeTag(h.Black)))
	if strings.TrimSpace(h.ECO) != "" {
		b.WriteString(fmt.Sprintf("[ECO \"%s\"]\n", sanitizeTag(h.ECO)))
	}
	if strings.TrimSpace(h.Opening) != "" {
		b.WriteString(fmt.Sprintf("[Opening \"%s\"]\n", sanitizeTag(h.Opening)))
	}
	if strings.TrimSpace(h.Termination) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizeTag(strings.ToLower(h.Termination))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", token))
	b.WriteString(Movetext(records))
	if len(records) > 0 {
		b.WriteString(" ")
	}
	b.WriteString(token)
	return b.String()
}

// Movetext renders only the numbered moves.
func Movetext(records []MoveRecord) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		s := fmt.Sprintf("%d. %s", r.MoveNumber, strings.TrimSpace(r.WhiteHalf))
		if r.BlackHalf != "" {
			s += " " + strings.TrimSpace(r.BlackHalf)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func sanitizeTag(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
