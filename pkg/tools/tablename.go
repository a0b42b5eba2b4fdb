package tools

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/models"
)

// TableNameFor derives the log-table name from a tool's identity: the tool
// id for native tools, a slug of the OpenAPI info title and version for api
// tools. The result is deterministic for a given tool but is NOT guaranteed
// to be a valid SQL identifier; callers validate it before use.
func TableNameFor(def models.ToolDefinition) (string, error) {
	if err := def.Validate(); err != nil {
		return "", err
	}

	switch def.Kind {
	case models.ToolKindNative:
		return def.Native.ID, nil
	case models.ToolKindAPI:
		return apiTableName(def.API)
	default:
		return "", fmt.Errorf("unknown tool definition kind %q", def.Kind)
	}
}

func apiTableName(tool *models.APITool) (string, error) {
	doc, err := loadSpec(tool)
	if err != nil {
		return "", err
	}

	var title, version string
	if doc.Info != nil {
		title = doc.Info.Title
		version = doc.Info.Version
	}

	slug := Slugify(title + "_" + version)
	if slug == "" {
		slug = Slugify(tool.Name)
	}
	if slug == "" {
		return "", fmt.Errorf("api tool %q yields an empty table name", tool.Name)
	}
	return slug, nil
}

// Slugify lowercases a string and collapses every run of characters that
// cannot appear in a SQL identifier into a single underscore. A leading
// digit gets an underscore prefix so the result can start an identifier.
func Slugify(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return ""
	}
	if unicode.IsDigit(rune(slug[0])) {
		slug = "_" + slug
	}
	return slug
}
