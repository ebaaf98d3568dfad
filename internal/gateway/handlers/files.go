package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxReadSize caps file reads served to the UI.
const maxReadSize = 1024 * 1024 // 1MB

// defaultTreeDepth bounds recursion when the client does not ask for more.
const defaultTreeDepth = 3

// Directories whose contents never matter to the UI.
var skipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"__pycache__":  {},
	".venv":        {},
	"venv":         {},
	".next":        {},
	"dist":         {},
	"build":        {},
	".cache":       {},
}

var skipFiles = map[string]struct{}{
	".DS_Store": {},
	"Thumbs.db": {},
}

// Hidden entries are skipped except for this allowlist.
var visibleDotfiles = map[string]struct{}{
	".env.example": {},
}

// FileNode is one entry in the workspace file tree. Children is nil for
// files and non-nil (possibly empty) for directories.
type FileNode struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Path     string      `json:"path"`
	Children []*FileNode `json:"children"`
}

// FilesHandler serves read-only workspace browsing endpoints.
type FilesHandler struct {
	workspace *Workspace
}

// NewFilesHandler creates a files handler rooted at the workspace.
func NewFilesHandler(workspace *Workspace) *FilesHandler {
	return &FilesHandler{workspace: workspace}
}

// BuildFileTree walks dir to the given depth, pruning noise directories and
// hidden entries. Directories sort before files, both case-insensitively.
func BuildFileTree(dir string, maxDepth int) *FileNode {
	name := filepath.Base(dir)
	if name == "/" || name == "." {
		name = dir
	}

	node := &FileNode{
		Name:     name,
		Type:     "directory",
		Path:     dir,
		Children: []*FileNode{},
	}
	buildTree(node, maxDepth, 0)
	return node
}

func buildTree(node *FileNode, maxDepth, depth int) {
	if depth >= maxDepth {
		return
	}

	entries, err := os.ReadDir(node.Path)
	if err != nil {
		// Unreadable directories stay as empty nodes
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			if _, ok := visibleDotfiles[name]; !ok {
				continue
			}
		}

		path := filepath.Join(node.Path, name)
		if entry.IsDir() {
			if _, ok := skipDirs[name]; ok {
				continue
			}
			child := &FileNode{
				Name:     name,
				Type:     "directory",
				Path:     path,
				Children: []*FileNode{},
			}
			buildTree(child, maxDepth, depth+1)
			node.Children = append(node.Children, child)
		} else {
			if _, ok := skipFiles[name]; ok {
				continue
			}
			node.Children = append(node.Children, &FileNode{
				Name: name,
				Type: "file",
				Path: path,
			})
		}
	}
}

// HandleTree returns the file tree rooted at the path query parameter, or at
// the workspace root.
func (h *FilesHandler) HandleTree(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("path")
	if base == "" {
		base = h.workspace.Root()
	}

	depth := defaultTreeDepth
	if d := r.URL.Query().Get("depth"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid depth")
			return
		}
		depth = parsed
	}

	info, err := os.Stat(base)
	if err != nil {
		SendError(w, http.StatusNotFound, ErrCodeNotFound, "path not found")
		return
	}
	if !info.IsDir() {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is not a directory")
		return
	}

	SendJSON(w, http.StatusOK, BuildFileTree(base, depth))
}

// fileContent is the read endpoint's response body.
type fileContent struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
	Size     int64  `json:"size"`
}

var languageByExt = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "jsx",
	".ts":   "typescript",
	".tsx":  "tsx",
	".json": "json",
	".html": "html",
	".css":  "css",
	".md":   "markdown",
	".yml":  "yaml",
	".yaml": "yaml",
	".sh":   "bash",
	".sql":  "sql",
	".go":   "go",
	".rs":   "rust",
	".java": "java",
	".c":    "c",
	".cpp":  "cpp",
	".h":    "c",
	".hpp":  "cpp",
}

// DetectLanguage maps a file extension to a highlighter language name.
func DetectLanguage(path string) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "text"
}

// HandleRead returns a text file's contents. Oversized and binary files are
// rejected.
func (h *FilesHandler) HandleRead(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		SendError(w, http.StatusNotFound, ErrCodeNotFound, "file not found")
		return
	}
	if info.IsDir() {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is not a file")
		return
	}
	if info.Size() > maxReadSize {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "file too large (max 1MB)")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if !utf8.Valid(data) {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "binary file cannot be displayed")
		return
	}

	SendJSON(w, http.StatusOK, fileContent{
		Path:     path,
		Content:  string(data),
		Language: DetectLanguage(path),
		Size:     info.Size(),
	})
}
