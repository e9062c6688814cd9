// Package fsops implements the filesystem tool surface: line-sliced reads,
// limited writes, directory listing and creation, moves, name search, and
// file metadata. Every path goes through the path guard first.
package fsops

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/babybirdprd/mcp-rg-editor/pkg/config"
	"github.com/babybirdprd/mcp-rg-editor/pkg/edit"
	"github.com/babybirdprd/mcp-rg-editor/pkg/pathguard"
)

// ContentTooLongError rejects writes above the configured line limit.
type ContentTooLongError struct {
	Received int
	Limit    int
}

func (e *ContentTooLongError) Error() string {
	return fmt.Sprintf(
		"content exceeds the line limit of %d (received %d lines); send the content in smaller chunks using append mode",
		e.Limit, e.Received)
}

// WriteMode selects rewrite or append semantics for write_file.
type WriteMode string

const (
	ModeRewrite WriteMode = "rewrite"
	ModeAppend  WriteMode = "append"
)

const urlFetchTimeout = 30 * time.Second

var imageMIMEByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Manager performs filesystem operations under the jail.
type Manager struct {
	store  *config.Store
	guard  *pathguard.Guard
	client *http.Client
	logger zerolog.Logger
}

// NewManager wires the manager to its config store and path guard.
func NewManager(store *config.Store, guard *pathguard.Guard, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		guard:  guard,
		client: &http.Client{Timeout: urlFetchTimeout},
		logger: logger.With().Str("component", "fsops").Logger(),
	}
}

// FileContent is the read_file result.
type FileContent struct {
	Path        string `json:"path"`
	MimeType    string `json:"mime_type"`
	Text        string `json:"text_content,omitempty"`
	ImageBase64 string `json:"image_data_base64,omitempty"`
	IsBinary    bool   `json:"is_binary,omitempty"`
	LinesRead   int    `json:"lines_read,omitempty"`
	TotalLines  int    `json:"total_lines,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ReadFileArgs are the read_file parameters.
type ReadFileArgs struct {
	Path        string
	IsURL       bool
	OffsetLines int
	LengthLines int // 0 means the configured default
}

// ReadFile returns file or URL content. Text is sliced by line numbers;
// images come back base64-tagged with their MIME subtype.
func (m *Manager) ReadFile(args ReadFileArgs) (*FileContent, error) {
	if args.IsURL {
		return m.fetchURL(args.Path)
	}

	path, err := m.guard.Resolve(args.Path, true)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := imageMIMEByExt[ext]; ok {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return &FileContent{
			Path:        args.Path,
			MimeType:    mt,
			ImageBase64: base64.StdEncoding.EncodeToString(raw),
		}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if !utf8.Valid(raw) {
		mt := mimetype.Detect(raw).String()
		return &FileContent{
			Path:        args.Path,
			MimeType:    mt,
			ImageBase64: base64.StdEncoding.EncodeToString(raw),
			IsBinary:    true,
		}, nil
	}

	mt := mime.TypeByExtension(ext)
	if mt == "" {
		mt = "text/plain"
	}

	limit := args.LengthLines
	if limit <= 0 {
		limit = m.store.Snapshot().FileReadLineLimit
	}

	lines := splitLines(string(raw))
	total := len(lines)
	offset := args.OffsetLines
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	window := lines[offset:end]

	return &FileContent{
		Path:       args.Path,
		MimeType:   mt,
		Text:       strings.Join(window, "\n"),
		LinesRead:  len(window),
		TotalLines: total,
		Truncated:  offset > 0 || end < total,
	}, nil
}

// ReadMultiple reads each path independently; per-entry failures are
// reported in place and do not abort the batch.
func (m *Manager) ReadMultiple(paths []string) []FileContent {
	results := make([]FileContent, 0, len(paths))
	for _, p := range paths {
		content, err := m.ReadFile(ReadFileArgs{Path: p})
		if err != nil {
			m.logger.Warn().Err(err).Str("path", p).Msg("failed to read one of multiple files")
			results = append(results, FileContent{Path: p, Error: err.Error()})
			continue
		}
		results = append(results, *content)
	}
	return results
}

func (m *Manager) fetchURL(url string) (*FileContent, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("only http(s) URLs are supported: %s", url)
	}
	resp, err := m.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("URL fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("URL fetch failed with status %s", resp.Status)
	}

	raw, err := readAllLimited(resp.Body, 32<<20)
	if err != nil {
		return nil, err
	}

	mt := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if mt == "" {
		mt = mimetype.Detect(raw).String()
	}
	if strings.HasPrefix(mt, "image/") {
		return &FileContent{
			Path:        url,
			MimeType:    mt,
			ImageBase64: base64.StdEncoding.EncodeToString(raw),
		}, nil
	}
	text := string(raw)
	total := len(splitLines(text))
	return &FileContent{
		Path:       url,
		MimeType:   mt,
		Text:       text,
		LinesRead:  total,
		TotalLines: total,
	}, nil
}

// WriteResult is the write_file / create_directory / move_file result.
type WriteResult struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// WriteFile writes or appends content, enforcing the configured line limit.
// Appends match the existing file's line endings and never merge into the
// last existing line.
func (m *Manager) WriteFile(pathArg, content string, mode WriteMode) (*WriteResult, error) {
	cfg := m.store.Snapshot()
	path, err := m.guard.Resolve(pathArg, false)
	if err != nil {
		return nil, err
	}

	lineCount := len(splitLines(content))
	if lineCount > cfg.FileWriteLineLimit {
		return nil, &ContentTooLongError{Received: lineCount, Limit: cfg.FileWriteLineLimit}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	switch mode {
	case ModeAppend:
		return m.appendFile(pathArg, path, content, lineCount)
	case ModeRewrite, "":
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid write mode: %s", mode)
	}

	return &WriteResult{
		Success: true,
		Path:    pathArg,
		Message: fmt.Sprintf("Successfully wrote %d lines to file.", lineCount),
	}, nil
}

func (m *Manager) appendFile(pathArg, path, content string, lineCount int) (*WriteResult, error) {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	eol := edit.DetectEOL(string(existing))
	if eol != edit.EOLUnknown {
		content = edit.NormalizeEOL(content, eol)
	}
	prefix := ""
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		prefix = eol.String()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.WriteString(prefix + content); err != nil {
		return nil, err
	}

	return &WriteResult{
		Success: true,
		Path:    pathArg,
		Message: fmt.Sprintf("Successfully appended %d lines to file.", lineCount),
	}, nil
}

// splitLines counts the way editors do: a trailing newline does not start
// an extra empty line, but an empty file still has zero lines.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.TrimSuffix(normalized, "\n")
	return strings.Split(normalized, "\n")
}

func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return data, nil
}
