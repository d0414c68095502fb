package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	crerrors "github.com/Aman-CERP/chatrepair/internal/errors"
	"github.com/Aman-CERP/chatrepair/internal/repair"
	"github.com/Aman-CERP/chatrepair/internal/scanner"
)

// Layout names inside a workspace directory.
const (
	SessionsDirName = "chatSessions"
	StoreFileName   = "state.vscdb"
	MetaFileName    = "workspace.json"

	workspaceFileExt = ".code-workspace"
	shortIDLen       = 8
)

// Kind describes what a workspace was opened from.
type Kind int

const (
	KindUnknown Kind = iota
	KindFolder
	KindWorkspaceFile
)

// String returns the label shown next to the workspace name.
func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "Folder"
	case KindWorkspaceFile:
		return "Workspace File"
	default:
		return "Unknown"
	}
}

// Workspace is one workspace storage directory.
type Workspace struct {
	ID            string
	Dir           string
	Folder        string // opened folder, as recorded by the host
	WorkspaceFile string // opened .code-workspace file
	// Sessions maps a session ID to its file on disk.
	Sessions map[string]string
}

// SessionsDir returns the chat sessions directory.
func (w *Workspace) SessionsDir() string {
	return filepath.Join(w.Dir, SessionsDirName)
}

// StorePath returns the state database path.
func (w *Workspace) StorePath() string {
	return filepath.Join(w.Dir, StoreFileName)
}

// Kind reports what the workspace was opened from.
func (w *Workspace) Kind() Kind {
	switch {
	case w.Folder != "":
		return KindFolder
	case w.WorkspaceFile != "":
		return KindWorkspaceFile
	default:
		return KindUnknown
	}
}

// HasSessions reports whether any session file exists.
func (w *Workspace) HasSessions() bool {
	return len(w.Sessions) > 0
}

// SessionIDs returns the on-disk session IDs in sorted order.
func (w *Workspace) SessionIDs() []string {
	ids := make([]string, 0, len(w.Sessions))
	for id := range w.Sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ShortID returns the first characters of the ID for display.
func (w *Workspace) ShortID() string {
	if len(w.ID) <= shortIDLen {
		return w.ID
	}
	return w.ID[:shortIDLen]
}

// DisplayName returns "<name> (<short id>...) [Kind]", or
// "Unknown (<short id>...)" when nothing identifies the workspace.
func (w *Workspace) DisplayName() string {
	switch w.Kind() {
	case KindFolder:
		if name := ProjectName(w.Folder); name != "" {
			return fmt.Sprintf("%s (%s...) [%s]", name, w.ShortID(), KindFolder)
		}
	case KindWorkspaceFile:
		if name := ProjectName(w.WorkspaceFile); name != "" {
			name = strings.TrimSuffix(name, workspaceFileExt)
			return fmt.Sprintf("%s (%s...) [%s]", name, w.ShortID(), KindWorkspaceFile)
		}
	}
	return fmt.Sprintf("Unknown (%s...)", w.ShortID())
}

// Location returns the opened folder or workspace file without its URI
// scheme, or "" if unknown.
func (w *Workspace) Location() string {
	switch w.Kind() {
	case KindFolder:
		return stripFileURI(w.Folder)
	case KindWorkspaceFile:
		return stripFileURI(w.WorkspaceFile)
	default:
		return ""
	}
}

// Target converts the workspace into a repair target.
func (w *Workspace) Target() repair.Target {
	return repair.Target{
		ID:          w.ID,
		Name:        w.DisplayName(),
		SessionsDir: w.SessionsDir(),
		StorePath:   w.StorePath(),
	}
}

// ProjectName returns the last path element of a folder path or file URI.
func ProjectName(p string) string {
	p = strings.TrimRight(stripFileURI(p), `/\`)
	if p == "" {
		return ""
	}
	// Host paths are URI-style even on Windows.
	p = strings.ReplaceAll(p, `\`, "/")
	return path.Base(p)
}

// FoldersMatch reports whether two folders likely hold the same project:
// their names are equal ignoring case.
func FoldersMatch(a, b string) bool {
	na, nb := ProjectName(a), ProjectName(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.EqualFold(na, nb)
}

func stripFileURI(p string) string {
	return strings.TrimPrefix(p, "file://")
}

// StorageRoot returns the default workspaceStorage directory for the
// current platform.
func StorageRoot() (string, error) {
	return storageRoot(runtime.GOOS, os.Getenv, os.UserHomeDir)
}

func storageRoot(goos string, getenv func(string) string, home func() (string, error)) (string, error) {
	if goos == "windows" {
		if appData := getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Code", "User", "workspaceStorage"), nil
		}
	}
	h, err := home()
	if err != nil {
		return "", crerrors.New(crerrors.ErrCodeWorkspaceNotFound,
			"cannot determine home directory", err).
			WithSuggestion("Pass --root with the workspaceStorage directory")
	}
	switch goos {
	case "darwin":
		return filepath.Join(h, "Library", "Application Support", "Code", "User", "workspaceStorage"), nil
	case "windows":
		return filepath.Join(h, "AppData", "Roaming", "Code", "User", "workspaceStorage"), nil
	default:
		return filepath.Join(h, ".config", "Code", "User", "workspaceStorage"), nil
	}
}

// workspaceMeta is the host's workspace.json. Folder is either a URI
// string or an object with a path.
type workspaceMeta struct {
	Folder    json.RawMessage `json:"folder"`
	Workspace json.RawMessage `json:"workspace"`
}

// Load reads a workspace directory. A missing or unreadable workspace.json
// leaves the workspace unnamed. A missing chatSessions directory means no
// sessions.
func Load(ctx context.Context, dir string) (*Workspace, error) {
	w := &Workspace{
		ID:       filepath.Base(dir),
		Dir:      dir,
		Sessions: make(map[string]string),
	}
	w.loadMeta()

	if _, err := os.Stat(w.SessionsDir()); os.IsNotExist(err) {
		return w, nil
	}
	results, err := scanner.New().Scan(ctx, w.SessionsDir())
	if err != nil {
		return nil, err
	}
	files, errs := scanner.Collect(results)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	// Sorted paths make the choice between foo.json and foo.jsonl stable.
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for _, f := range files {
		if _, ok := w.Sessions[f.ID]; !ok {
			w.Sessions[f.ID] = f.Path
		}
	}
	return w, nil
}

func (w *Workspace) loadMeta() {
	data, err := os.ReadFile(filepath.Join(w.Dir, MetaFileName))
	if err != nil {
		return
	}
	var meta workspaceMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		slog.Debug("ignoring unreadable workspace.json",
			slog.String("workspace", w.ID),
			slog.String("error", err.Error()))
		return
	}
	if len(meta.Folder) > 0 {
		w.Folder = folderPath(meta.Folder)
		return
	}
	if len(meta.Workspace) > 0 {
		var s string
		if json.Unmarshal(meta.Workspace, &s) == nil {
			w.WorkspaceFile = s
		}
	}
}

func folderPath(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Path string `json:"path"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Path
	}
	return ""
}
