package transcript

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lecture-rag/internal/domain"
)

// Format identifies a transcript file format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatVTT  Format = "vtt"
	FormatTXT  Format = "txt"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a user-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatAuto, "":
		return FormatAuto, nil
	case FormatVTT:
		return FormatVTT, nil
	case FormatTXT:
		return FormatTXT, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: unsupported transcript format %q", domain.ErrConfiguration, s)
}

// An utterance with no explicit end time gets the next utterance's
// start; the last one gets this nominal duration.
const defaultUtteranceSeconds = 5

var (
	vttTimeRe     = regexp.MustCompile(`(\d{2}:\d{2}:\d{2})\.\d{3}\s*-->\s*(\d{2}:\d{2}:\d{2})\.\d{3}`)
	htmlTagRe     = regexp.MustCompile(`<[^>]+>`)
	spacesRe      = regexp.MustCompile(` +`)
	bracketTimeRe = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2})\]\s*(.*)$`)
	bareTimeRe    = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2})\s+(.*)$`)
	csvTimeRe     = regexp.MustCompile(`(\d{1,2}):(\d{2}):(\d{2})`)
)

// Detect guesses the format from the content head: a WEBVTT header
// means VTT, commas plus newlines early on mean CSV, otherwise TXT.
func Detect(content string) Format {
	head := content
	if len(head) > 500 {
		head = head[:500]
	}
	if strings.Contains(firstN(content, 100), "WEBVTT") {
		return FormatVTT
	}
	if strings.Contains(head, ",") && strings.Contains(head, "\n") {
		return FormatCSV
	}
	return FormatTXT
}

// Parse converts raw transcript content into ordered timed utterances.
func Parse(content string, format Format) ([]domain.Utterance, error) {
	if format == FormatAuto || format == "" {
		format = Detect(content)
	}
	var (
		utts []domain.Utterance
		err  error
	)
	switch format {
	case FormatVTT:
		utts, err = parseVTT(content)
	case FormatTXT:
		utts, err = parseTXT(content)
	case FormatCSV:
		utts, err = parseCSV(content)
	default:
		return nil, fmt.Errorf("%w: unsupported transcript format %q", domain.ErrConfiguration, format)
	}
	if err != nil {
		return nil, err
	}
	if len(utts) == 0 {
		return nil, fmt.Errorf("%w: no timed utterances found in transcript", domain.ErrParse)
	}
	fillEndTimes(utts)
	return utts, nil
}

func parseVTT(content string) ([]domain.Utterance, error) {
	cues := regexp.MustCompile(`\n{2,}`).Split(content, -1)
	var utts []domain.Utterance
	for _, cue := range cues {
		if strings.Contains(cue, "WEBVTT") || strings.TrimSpace(cue) == "" {
			continue
		}
		lines := strings.Split(strings.TrimSpace(cue), "\n")
		timeIdx := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timeIdx = i
				break
			}
		}
		if timeIdx < 0 {
			continue
		}
		m := vttTimeRe.FindStringSubmatch(lines[timeIdx])
		if m == nil {
			return nil, fmt.Errorf("%w: malformed VTT timecode %q", domain.ErrParse, lines[timeIdx])
		}
		start, _ := timeToSeconds(m[1])
		end, _ := timeToSeconds(m[2])
		text := strings.Join(lines[timeIdx+1:], " ")
		text = htmlTagRe.ReplaceAllString(text, "")
		text = strings.TrimSpace(spacesRe.ReplaceAllString(text, " "))
		if text == "" {
			continue
		}
		utts = append(utts, domain.Utterance{Start: start, End: end, Text: text})
	}
	return utts, nil
}

func parseTXT(content string) ([]domain.Utterance, error) {
	var utts []domain.Utterance
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ts, text string
		if m := bracketTimeRe.FindStringSubmatch(line); m != nil {
			ts, text = m[1], m[2]
		} else if m := bareTimeRe.FindStringSubmatch(line); m != nil {
			ts, text = m[1], m[2]
		} else {
			// untimed lines carry no retrievable position
			continue
		}
		sec, err := timeToSeconds(ts)
		if err != nil {
			return nil, fmt.Errorf("%w: bad timestamp %q", domain.ErrParse, ts)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		utts = append(utts, domain.Utterance{Start: sec, Text: text})
	}
	return utts, nil
}

func parseCSV(content string) ([]domain.Utterance, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	var utts []domain.Utterance
	for i, rec := range records {
		if len(rec) < 2 {
			continue
		}
		timestamp := strings.TrimSpace(rec[0])
		if i == 0 && csvTimeRe.FindStringSubmatch(timestamp) == nil {
			// header row
			continue
		}
		// timestamp,text or timestamp,speaker,text
		text := strings.TrimSpace(rec[1])
		if len(rec) >= 3 {
			text = strings.TrimSpace(rec[2])
		}
		m := csvTimeRe.FindStringSubmatch(timestamp)
		if m == nil || text == "" {
			continue
		}
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		s, _ := strconv.Atoi(m[3])
		utts = append(utts, domain.Utterance{Start: h*3600 + mi*60 + s, Text: text})
	}
	return utts, nil
}

// fillEndTimes closes open-ended utterances against the next start.
func fillEndTimes(utts []domain.Utterance) {
	for i := range utts {
		if utts[i].End > utts[i].Start {
			continue
		}
		if i+1 < len(utts) && utts[i+1].Start > utts[i].Start {
			utts[i].End = utts[i+1].Start
		} else {
			utts[i].End = utts[i].Start + defaultUtteranceSeconds
		}
	}
}

func timeToSeconds(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*3600 + m*60 + sec, nil
}

func firstN(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
