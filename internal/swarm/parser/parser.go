// Package parser extracts files and reasoning traces from raw LLM
// completion text: fenced markdown code blocks carrying a `lang:path`
// header, `// File:`/`# File:`/`<!-- File: -->` comment markers, and a
// single XML `<file path="...">` block, followed by thinking-trace
// extraction and de-duplication by path (first occurrence wins).
//
// Ported from original_source's crates/sentinel-agent-native/src/swarm/
// parser.rs (LLMResponseParser): the three extraction strategies, the
// looks_like_filepath heuristic, and the language<->extension tables are
// carried over unchanged.
package parser

import (
	"regexp"
	"strings"
)

var codeBlockRegexp = regexp.MustCompile("(?s)```(?:(\\w+):)?([^\n\r]*)\n(.*?)```")
var fileCommentRegexp = regexp.MustCompile(`(?m)^(?://|#|<!--)\s*(?:File|filepath|path):\s*([^\n]+)$`)
var thinkingRegexp = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>|\[THINKING\](.*?)\[/THINKING\]`)

// File is one extracted file, mirroring swarmtypes.ExtractedFile with a
// partial-completion flag the coordinator can feed back into a retry.
type File struct {
	Path     string
	Language string
	Content  string
	Complete bool
}

// Parse extracts every file mentioned in response across all three
// strategies (the XML strategy yields at most one block), deduplicated by
// path (first writer wins, matching the source's `seen` HashMap). Later
// duplicates are dropped and not recorded anywhere.
func Parse(response string) []File {
	var files []File
	files = append(files, extractMarkdownCodeBlocks(response)...)
	files = append(files, extractFileComments(response)...)
	files = append(files, extractXMLFileBlock(response)...)

	seen := make(map[string]bool, len(files))
	out := files[:0]
	for _, f := range files {
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		out = append(out, f)
	}
	return out
}

func extractMarkdownCodeBlocks(response string) []File {
	var files []File
	for _, m := range codeBlockRegexp.FindAllStringSubmatch(response, -1) {
		language := m[1]
		if language == "" {
			language = "text"
		}
		header := strings.TrimSpace(m[2])
		content := strings.TrimSpace(m[3])

		path := header
		if path == "" || !looksLikeFilepath(path) {
			path = "generated." + extensionFromLanguage(language)
		}

		files = append(files, File{Path: path, Language: language, Content: content, Complete: true})
	}
	return files
}

func extractFileComments(response string) []File {
	matches := fileCommentRegexp.FindAllStringSubmatchIndex(response, -1)
	var files []File
	for i, m := range matches {
		path := strings.TrimSpace(response[m[2]:m[3]])
		if path == "" || !looksLikeFilepath(path) {
			continue
		}

		contentStart := m[1]
		if contentStart < len(response) && response[contentStart] == '\n' {
			contentStart++
		}
		contentEnd := len(response)
		if i+1 < len(matches) {
			contentEnd = matches[i+1][0]
		}

		content := strings.TrimSpace(response[contentStart:contentEnd])
		files = append(files, File{Path: path, Language: detectLanguage(path), Content: content, Complete: true})
	}
	return files
}

func extractXMLFileBlock(response string) []File {
	start := strings.Index(response, "<file path=")
	if start < 0 {
		return nil
	}
	rest := response[start:]
	end := strings.Index(rest, "</file>")
	if end < 0 {
		return nil
	}
	block := rest[:end+len("</file>")]

	pathStart := strings.Index(block, "\"")
	if pathStart < 0 {
		return nil
	}
	pathEnd := strings.Index(block[pathStart+1:], "\"")
	if pathEnd < 0 {
		return nil
	}
	path := block[pathStart+1 : pathStart+1+pathEnd]
	if path == "" {
		return nil
	}

	contentStart := strings.Index(block, ">")
	if contentStart < 0 || contentStart+1 > len(block)-len("</file>") {
		return nil
	}
	content := strings.TrimSpace(block[contentStart+1 : len(block)-len("</file>")])

	return []File{{Path: path, Language: detectLanguage(path), Content: content, Complete: true}}
}

func looksLikeFilepath(s string) bool {
	return strings.Contains(s, "/") || strings.Contains(s, ".") || strings.Contains(s, `\`)
}

// detectLanguage infers a language tag from a file path's extension.
func detectLanguage(path string) string {
	ext := path
	if i := strings.LastIndex(path, "."); i >= 0 {
		ext = path[i+1:]
	} else {
		ext = ""
	}
	switch ext {
	case "rs":
		return "rust"
	case "py":
		return "python"
	case "js", "jsx":
		return "javascript"
	case "ts", "tsx":
		return "typescript"
	case "go":
		return "go"
	case "java":
		return "java"
	case "cpp", "cc", "cxx", "h", "hpp":
		return "cpp"
	case "c":
		return "c"
	case "rb":
		return "ruby"
	case "php":
		return "php"
	case "swift":
		return "swift"
	case "kt":
		return "kotlin"
	case "scala":
		return "scala"
	case "r":
		return "r"
	case "sql":
		return "sql"
	case "sh":
		return "bash"
	case "yaml", "yml":
		return "yaml"
	case "json":
		return "json"
	case "toml":
		return "toml"
	case "md":
		return "markdown"
	case "html":
		return "html"
	case "css":
		return "css"
	case "scss", "sass":
		return "scss"
	default:
		return "text"
	}
}

// extensionFromLanguage is detectLanguage's inverse, used when a code
// block carries no file path header at all.
func extensionFromLanguage(language string) string {
	switch strings.ToLower(language) {
	case "rust":
		return "rs"
	case "python":
		return "py"
	case "javascript":
		return "js"
	case "typescript":
		return "ts"
	case "go":
		return "go"
	case "java":
		return "java"
	case "cpp", "c++":
		return "cpp"
	case "c":
		return "c"
	case "ruby":
		return "rb"
	case "php":
		return "php"
	case "swift":
		return "swift"
	case "kotlin":
		return "kt"
	case "scala":
		return "scala"
	case "r":
		return "r"
	case "sql":
		return "sql"
	case "bash", "shell":
		return "sh"
	case "yaml":
		return "yaml"
	case "json":
		return "json"
	case "toml":
		return "toml"
	case "markdown":
		return "md"
	case "html":
		return "html"
	case "css":
		return "css"
	case "scss":
		return "scss"
	default:
		return "txt"
	}
}

// ExtractThinking returns the content of a <thinking>...</thinking> or
// [THINKING]...[/THINKING] block, if present.
func ExtractThinking(response string) (string, bool) {
	m := thinkingRegexp.FindStringSubmatch(response)
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return strings.TrimSpace(m[1]), true
	}
	return strings.TrimSpace(m[2]), true
}

// CleanResponse strips every thinking block from response, for the text an
// agent shows to the rest of the swarm via the bus.
func CleanResponse(response string) string {
	return strings.TrimSpace(thinkingRegexp.ReplaceAllString(response, ""))
}
