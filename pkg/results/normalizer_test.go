package results

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/models"
)

func zipPayload(t *testing.T, entries map[string][]byte) *models.BinaryPayload {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return &models.BinaryPayload{
		ContentType: "application/zip",
		Data:        base64.StdEncoding.EncodeToString(buf.Bytes()),
	}
}

func TestNormalizePassesThroughNonArchiveValues(t *testing.T) {
	n := NewNormalizer(nil)

	tests := []interface{}{
		nil,
		"plain string",
		42,
		map[string]interface{}{"status": "ok"},
		[]interface{}{1, 2, 3},
		&models.BinaryPayload{ContentType: "image/png", Data: "aGk="},
	}
	for _, value := range tests {
		assert.Equal(t, value, n.Normalize(value))
	}
}

func TestNormalizeUnwrapsSingleJSONEntry(t *testing.T) {
	n := NewNormalizer(nil)
	payload := zipPayload(t, map[string][]byte{
		"result.json": []byte(`{"a": 1}`),
	})

	got := n.Normalize(payload)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, got)
}

func TestNormalizeUnwrapsSingleBinaryEntry(t *testing.T) {
	n := NewNormalizer(nil)
	image := []byte{0x89, 0x50, 0x4e, 0x47}
	payload := zipPayload(t, map[string][]byte{
		"chart.png": image,
	})

	got := n.Normalize(payload)
	unwrapped, ok := got.(*models.BinaryPayload)
	require.True(t, ok)
	assert.Equal(t, "application/octet-stream", unwrapped.ContentType)

	decoded, err := base64.StdEncoding.DecodeString(unwrapped.Data)
	require.NoError(t, err)
	assert.Equal(t, image, decoded)
}

func TestNormalizeJSONEntryWithInvalidJSONReturnsOriginal(t *testing.T) {
	n := NewNormalizer(nil)
	payload := zipPayload(t, map[string][]byte{
		"result.json": []byte(`not json at all`),
	})

	assert.Equal(t, payload, n.Normalize(payload))
}

func TestNormalizeOversizeEntryReturnsOriginal(t *testing.T) {
	n := NewNormalizer(nil)
	payload := zipPayload(t, map[string][]byte{
		"huge.bin": bytes.Repeat([]byte{0xab}, maxEntryBytes+1),
	})

	assert.Equal(t, payload, n.Normalize(payload))
}

func TestNormalizeMultipleEntriesReturnsOriginal(t *testing.T) {
	n := NewNormalizer(nil)
	payload := zipPayload(t, map[string][]byte{
		"a.json": []byte(`{}`),
		"b.json": []byte(`{}`),
	})

	assert.Equal(t, payload, n.Normalize(payload))
}

func TestNormalizeEmptyArchiveReturnsOriginal(t *testing.T) {
	n := NewNormalizer(nil)
	payload := zipPayload(t, nil)

	assert.Equal(t, payload, n.Normalize(payload))
}

func TestNormalizeDirectoriesDoNotCount(t *testing.T) {
	n := NewNormalizer(nil)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, err := w.Create("nested/")
	require.NoError(t, err)
	f, err := w.Create("nested/only.json")
	require.NoError(t, err)
	_, err = f.Write([]byte(`{"nested": true}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	payload := &models.BinaryPayload{
		ContentType: "application/zip",
		Data:        base64.StdEncoding.EncodeToString(buf.Bytes()),
	}

	got := n.Normalize(payload)
	assert.Equal(t, map[string]interface{}{"nested": true}, got)
}

func TestNormalizeInvalidBase64ReturnsOriginal(t *testing.T) {
	n := NewNormalizer(nil)
	payload := &models.BinaryPayload{
		ContentType: "application/zip",
		Data:        "%%% not base64 %%%",
	}

	assert.Equal(t, payload, n.Normalize(payload))
}

func TestNormalizeCorruptZipReturnsOriginal(t *testing.T) {
	n := NewNormalizer(nil)
	payload := &models.BinaryPayload{
		ContentType: "application/zip",
		Data:        base64.StdEncoding.EncodeToString([]byte("definitely not a zip")),
	}

	assert.Equal(t, payload, n.Normalize(payload))
}

func TestNormalizeMapShapedPayload(t *testing.T) {
	n := NewNormalizer(nil)
	built := zipPayload(t, map[string][]byte{
		"result.json": []byte(`{"ok": true}`),
	})

	asMap := map[string]interface{}{
		"content_type": built.ContentType,
		"data":         built.Data,
	}

	got := n.Normalize(asMap)
	assert.Equal(t, map[string]interface{}{"ok": true}, got)
}

func TestIsZipContentType(t *testing.T) {
	assert.True(t, isZipContentType("application/zip"))
	assert.True(t, isZipContentType("application/x-zip-compressed"))
	assert.True(t, isZipContentType("Application/Zip; charset=binary"))
	assert.False(t, isZipContentType("application/json"))
	assert.False(t, isZipContentType("application/gzip"))
	assert.False(t, isZipContentType(""))
}
