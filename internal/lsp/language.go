package lsp

import (
	"path/filepath"
	"strings"

	"go.lsp.dev/protocol"
)

// LanguageForPath returns the LSP language identifier for a workspace
// file, or "" when no language tooling applies. The table covers the file
// types a modding workspace edits: mod sources, loader metadata, datapack
// functions, and script-mod files (KubeJS, CraftTweaker).
func LanguageForPath(path string) protocol.LanguageIdentifier {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	switch ext {
	case "java":
		return "java"
	case "json", "mcmeta":
		return "json"
	case "mcfunction":
		return "mcfunction"
	case "toml":
		return "toml"
	case "kt", "kts":
		return "kotlin"
	case "gradle":
		return "groovy"
	case "yaml", "yml":
		return "yaml"
	case "properties", "lang":
		return "properties"
	case "js":
		return "javascript"
	case "zs":
		return "zenscript"
	default:
		return ""
	}
}
