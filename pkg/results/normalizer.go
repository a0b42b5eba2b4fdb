// Package results normalizes tool execution results before storage. Tool
// backends sometimes hand back a compressed archive holding a single file;
// unwrapping it stores the native content (parsed JSON or plain binary)
// instead of an opaque double-encoded blob.
package results

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/models"
	"github.com/shamanic-technologies/agent-base-sub002/pkg/observability"
)

// maxEntryBytes bounds how much is read out of a single archive entry,
// guarding against decompression bombs.
const maxEntryBytes = 64 << 20

var errEntryTooLarge = errors.New("archive entry exceeds size limit")

// Normalizer unwraps single-file compressed archives from tool results.
// Unwrapping is best-effort: any failure returns the original value
// unchanged, and no failure escapes this component.
type Normalizer struct {
	logger observability.Logger
}

// NewNormalizer creates a Normalizer
func NewNormalizer(logger observability.Logger) *Normalizer {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Normalizer{logger: logger.WithPrefix("results")}
}

// Normalize inspects a result value. Non-archive values pass through
// unchanged. A base64 zip payload with exactly one non-directory entry is
// unwrapped: a JSON entry becomes its parsed value, anything else becomes
// a plain binary payload. Archives with zero or multiple entries, and any
// decode, open, or read failure, leave the original value untouched.
func (n *Normalizer) Normalize(result interface{}) interface{} {
	payload, ok := models.BinaryPayloadFrom(result)
	if !ok || !isZipContentType(payload.ContentType) {
		return result
	}

	raw, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		n.logger.Debug("archive payload is not valid base64, storing as-is", map[string]interface{}{
			"error": err.Error(),
		})
		return result
	}

	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		n.logger.Debug("archive did not open as zip, storing as-is", map[string]interface{}{
			"error": err.Error(),
		})
		return result
	}

	entry := singleFileEntry(reader)
	if entry == nil {
		return result
	}

	content, err := readEntry(entry)
	if err != nil {
		n.logger.Debug("archive entry unreadable, storing as-is", map[string]interface{}{
			"entry": entry.Name,
			"error": err.Error(),
		})
		return result
	}

	if strings.HasSuffix(strings.ToLower(entry.Name), ".json") {
		var parsed interface{}
		if err := json.Unmarshal(content, &parsed); err != nil {
			n.logger.Debug("archive entry is not valid JSON, storing as-is", map[string]interface{}{
				"entry": entry.Name,
				"error": err.Error(),
			})
			return result
		}
		return parsed
	}

	return &models.BinaryPayload{
		ContentType: "application/octet-stream",
		Data:        base64.StdEncoding.EncodeToString(content),
	}
}

// isZipContentType recognizes the content types tool backends use for
// zip archives.
func isZipContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	switch ct {
	case "application/zip", "application/x-zip-compressed", "application/x-zip":
		return true
	default:
		return false
	}
}

// singleFileEntry returns the archive's only non-directory entry, or nil
// when there are zero or multiple.
func singleFileEntry(reader *zip.Reader) *zip.File {
	var found *zip.File
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		if found != nil {
			return nil
		}
		found = file
	}
	return found
}

func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()

	// Read one byte past the limit so truncation is detectable; a partial
	// entry must not be stored as if it were the whole thing.
	content, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if len(content) > maxEntryBytes {
		return nil, errEntryTooLarge
	}
	return content, nil
}
