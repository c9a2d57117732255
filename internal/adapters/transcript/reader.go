package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mkalas/sessionkeeper/internal/domain"
)

const tailChunkSize = 32 * 1024

// TailResult carries the normalized tail of a transcript plus a count of
// lines discarded as malformed (including a partial final line written
// concurrently by the host).
type TailResult struct {
	Messages []domain.MessageRecord
	Dropped  int
}

// TailMessages returns message records for the last maxLines lines of the
// transcript at path, oldest first. The file is read backwards in chunks;
// it is never loaded wholly into memory. A missing file maps to
// domain.ErrNotFound, which callers treat as "no active session".
func TailMessages(path string, maxLines int) (TailResult, error) {
	if maxLines <= 0 {
		return TailResult{}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, fmt.Errorf("open transcript %s: %w", path, domain.ErrNotFound)
		}
		return TailResult{}, fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()

	raw, err := tailLines(file, maxLines)
	if err != nil {
		return TailResult{}, fmt.Errorf("read transcript tail: %w", err)
	}

	result := TailResult{Messages: make([]domain.MessageRecord, 0, len(raw))}
	for _, line := range raw {
		record, ok := parseLine(line)
		if !ok {
			result.Dropped++
			continue
		}
		result.Messages = append(result.Messages, record)
	}

	return result, nil
}

// tailLines reads backwards from EOF until maxLines newline-terminated
// lines are collected or the start of the file is reached. The final
// fragment is included even without a trailing newline; if it is a
// mid-write partial it fails JSON parsing and is dropped upstream.
func tailLines(file *os.File, maxLines int) ([][]byte, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	size := info.Size()
	if size == 0 {
		return nil, nil
	}

	var buf []byte
	offset := size
	for offset > 0 && bytes.Count(buf, []byte{'\n'}) <= maxLines {
		chunk := int64(tailChunkSize)
		if chunk > offset {
			chunk = offset
		}
		offset -= chunk

		part := make([]byte, chunk)
		if _, err := file.ReadAt(part, offset); err != nil && err != io.EOF {
			return nil, err
		}
		buf = append(part, buf...)
	}

	lines := bytes.Split(buf, []byte{'\n'})
	// The split may begin with the torn remainder of an earlier line when
	// the chunk boundary fell mid-line; keep only whole lines.
	if offset > 0 && len(lines) > 0 {
		lines = lines[1:]
	}

	kept := make([][]byte, 0, maxLines)
	for _, line := range lines {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		kept = append(kept, trimmed)
	}
	if len(kept) > maxLines {
		kept = kept[len(kept)-maxLines:]
	}

	return kept, nil
}

// event is the shape of one transcript line. Hosts either put role and
// content at the top level or nest them under "message".
type event struct {
	Type      string          `json:"type"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp string          `json:"timestamp"`
	Model     string          `json:"model"`
	Message   *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
		Model   string          `json:"model"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func parseLine(line []byte) (domain.MessageRecord, bool) {
	var ev event
	if err := json.Unmarshal(line, &ev); err != nil {
		return domain.MessageRecord{}, false
	}
	if ev.Type != "message" {
		return domain.MessageRecord{}, false
	}

	role := ev.Role
	content := ev.Content
	model := ev.Model
	if ev.Message != nil {
		if ev.Message.Role != "" {
			role = ev.Message.Role
		}
		if len(ev.Message.Content) > 0 {
			content = ev.Message.Content
		}
		if ev.Message.Model != "" {
			model = ev.Message.Model
		}
	}
	if role == "" {
		return domain.MessageRecord{}, false
	}

	text, ok := decodeContent(content)
	if !ok {
		return domain.MessageRecord{}, false
	}

	record := domain.MessageRecord{
		Role:  normalizeRole(role),
		Text:  text,
		Model: model,
	}
	if ev.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, ev.Timestamp); err == nil {
			record.Timestamp = ts
		}
	}

	return record, true
}

// decodeContent accepts either a plain string or an array of typed
// blocks whose text fields are concatenated.
func decodeContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, true
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", false
	}

	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if block.Type != "" && block.Type != "text" {
			continue
		}
		if block.Text == "" {
			continue
		}
		parts = append(parts, block.Text)
	}

	return strings.Join(parts, "\n"), true
}

func normalizeRole(raw string) domain.Role {
	switch raw {
	case "user", "human":
		return domain.RoleRequester
	case "assistant":
		return domain.RoleResponder
	default:
		return domain.Role(raw)
	}
}
