// Package media manages a company's image library: the folder tree built
// from the storage listing, the current-folder cursor with its back stack,
// folder and image mutations, multi-selection and preview URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/metrics"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/notify"
	"github.com/coffeestaff/portal/internal/protocol"
	"github.com/coffeestaff/portal/internal/store"
	"github.com/coffeestaff/portal/internal/tree"
)

var (
	ErrUnknownFolder = errors.New("folder does not exist")
	ErrUnknownImage  = errors.New("image does not exist")
	ErrEmptyName     = errors.New("name must not be empty")
	ErrInvalidName   = errors.New("invalid name")
	ErrRootFolder    = errors.New("the root folder cannot be changed")
	ErrNoSelection   = errors.New("no images selected")
	ErrNotLoaded     = errors.New("library not loaded")
)

// ObjectLister returns the flat path → size listing of a company's
// storage.
type ObjectLister interface {
	ListObjects(ctx context.Context, companyID string) (protocol.DirectoryObjects, error)
}

// Config holds the collaborators of a Library.
type Config struct {
	API       *client.Client
	CompanyID string
	// Lister overrides where the folder listing comes from. Defaults to
	// the backend API.
	Lister ObjectLister
	// Store persists the folder cursor across restarts. Optional.
	Store    store.Store
	Notifier notify.Notifier
}

// Library is the media library of one company.
type Library struct {
	api       *client.Client
	lister    ObjectLister
	st        store.Store
	notifier  notify.Notifier
	companyID string
	base      string

	dirCaller client.Caller
	imgCaller client.Caller

	mu           sync.RWMutex
	objects      protocol.DirectoryObjects
	root         *models.FolderNode
	images       []models.Image
	dirsLoaded   bool
	imagesLoaded bool
	restored     bool
	current      string
	history      []string
	selecting    bool
	selected     []string
	previews     map[string]string

	refreshMu     sync.Mutex
	refreshCancel context.CancelFunc
	refreshDone   chan struct{}
	refreshKick   chan struct{}
}

// New creates a library for cfg.CompanyID. Nothing is fetched until Load.
func New(cfg Config) *Library {
	l := &Library{
		api:       cfg.API,
		lister:    cfg.Lister,
		st:        cfg.Store,
		notifier:  cfg.Notifier,
		companyID: cfg.CompanyID,
		base:      tree.BasePath(cfg.CompanyID),
		previews:  make(map[string]string),

		refreshKick: make(chan struct{}, 1),
	}
	if l.lister == nil {
		l.lister = cfg.API
	}
	if l.notifier == nil {
		l.notifier = notify.Discard
	}
	l.current = l.base
	l.root = tree.BuildFolderTree(l.base, nil)
	return l
}

// CompanyID returns the company the library belongs to.
func (l *Library) CompanyID() string {
	return l.companyID
}

// Base returns the root folder path.
func (l *Library) Base() string {
	return l.base
}

// Load fetches the folder listing and the image list concurrently. Both
// must complete before the library is ready.
func (l *Library) Load(ctx context.Context) error {
	var wg sync.WaitGroup
	var dirErr, imgErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		dirErr = l.reloadFolders(ctx)
	}()
	go func() {
		defer wg.Done()
		imgErr = l.reloadImages(ctx)
	}()
	wg.Wait()

	if err := errors.Join(dirErr, imgErr); err != nil {
		return err
	}
	l.restoreCursor(ctx)
	return nil
}

// Ready reports whether both the folder listing and the images are loaded.
func (l *Library) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dirsLoaded && l.imagesLoaded
}

func (l *Library) reloadFolders(ctx context.Context) error {
	objs, err := client.Call(ctx, &l.dirCaller, func(ctx context.Context) (protocol.DirectoryObjects, error) {
		return l.lister.ListObjects(ctx, l.companyID)
	})
	if errors.Is(err, client.ErrSuperseded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list folders: %w", err)
	}

	root := tree.BuildFolderTree(l.base, objs)
	l.mu.Lock()
	l.objects = objs
	l.root = root
	l.dirsLoaded = true
	if tree.FindByPath(root, l.current) == nil {
		l.current = l.base
	}
	l.history = existing(root, l.history)
	l.mu.Unlock()

	metrics.SetLibraryTreeSize(tree.CountNodes(root))
	return nil
}

// existing keeps the history entries that are still in the tree.
func existing(root *models.FolderNode, paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		if tree.FindByPath(root, p) != nil {
			out = append(out, p)
		}
	}
	return out
}

func (l *Library) reloadImages(ctx context.Context) error {
	images, err := client.Call(ctx, &l.imgCaller, func(ctx context.Context) ([]models.Image, error) {
		return l.api.ListImages(ctx, l.companyID)
	})
	if errors.Is(err, client.ErrSuperseded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}

	present := make(map[string]bool, len(images))
	for _, img := range images {
		present[img.ImageID] = true
	}
	l.mu.Lock()
	l.images = images
	l.imagesLoaded = true
	kept := l.selected[:0]
	for _, id := range l.selected {
		if present[id] {
			kept = append(kept, id)
		}
	}
	l.selected = kept
	for id := range l.previews {
		if !present[id] {
			delete(l.previews, id)
		}
	}
	l.mu.Unlock()
	l.kickPreviews()
	return nil
}

// Tree returns the folder tree. The tree is rebuilt from the listing on
// every reload and must be treated as read-only.
func (l *Library) Tree() *models.FolderNode {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.root
}

// Objects returns the last fetched storage listing.
func (l *Library) Objects() protocol.DirectoryObjects {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(protocol.DirectoryObjects, len(l.objects))
	for k, v := range l.objects {
		out[k] = v
	}
	return out
}

// CurrentPath returns the current folder path.
func (l *Library) CurrentPath() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Folders returns the subfolders of the current folder.
func (l *Library) Folders() []*models.FolderNode {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return tree.Subfolders(l.root, l.current)
}

// Images returns the images whose file path is exactly the current folder.
func (l *Library) Images() []models.Image {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return filterByPath(l.images, l.current)
}

// ImagesIn returns the images stored directly in path.
func (l *Library) ImagesIn(path string) []models.Image {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return filterByPath(l.images, path)
}

// AllImages returns every image of the company.
func (l *Library) AllImages() []models.Image {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Image(nil), l.images...)
}

func filterByPath(images []models.Image, path string) []models.Image {
	var out []models.Image
	for _, img := range images {
		if img.FilePath == path {
			out = append(out, img)
		}
	}
	return out
}

// Image returns one image by id.
func (l *Library) Image(id string) (models.Image, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.imageLocked(id)
}

func (l *Library) imageLocked(id string) (models.Image, bool) {
	for _, img := range l.images {
		if img.ImageID == id {
			return img, true
		}
	}
	return models.Image{}, false
}

// Enter makes path the current folder, pushing the previous one on the
// back stack.
func (l *Library) Enter(ctx context.Context, path string) error {
	l.mu.Lock()
	if tree.FindByPath(l.root, path) == nil {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownFolder, path)
	}
	if path == l.current {
		l.mu.Unlock()
		return nil
	}
	l.history = append(l.history, l.current)
	l.current = path
	l.exitSelectionLocked()
	l.mu.Unlock()

	l.kickPreviews()
	l.saveCursor(ctx)
	return nil
}

// Back returns to the previously visited folder. It reports false when
// the back stack is empty.
func (l *Library) Back(ctx context.Context) bool {
	l.mu.Lock()
	if len(l.history) == 0 {
		l.mu.Unlock()
		return false
	}
	last := len(l.history) - 1
	l.current = l.history[last]
	l.history = l.history[:last]
	l.exitSelectionLocked()
	l.mu.Unlock()

	l.kickPreviews()
	l.saveCursor(ctx)
	return true
}

// Cursor is the navigation state of a library.
type Cursor struct {
	CompanyID string   `json:"company_id"`
	Current   string   `json:"current"`
	History   []string `json:"history"`
}

// Cursor returns the current navigation state.
func (l *Library) Cursor() Cursor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Cursor{
		CompanyID: l.companyID,
		Current:   l.current,
		History:   append([]string(nil), l.history...),
	}
}

// SetCursor restores a navigation state. Paths that are not in the loaded
// tree are dropped.
func (l *Library) SetCursor(c Cursor) error {
	if c.CompanyID != "" && c.CompanyID != l.companyID {
		return fmt.Errorf("cursor belongs to company %s", c.CompanyID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !strings.HasPrefix(c.Current, l.base) {
		return fmt.Errorf("%w: %s", ErrUnknownFolder, c.Current)
	}
	if l.dirsLoaded && tree.FindByPath(l.root, c.Current) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownFolder, c.Current)
	}
	l.current = c.Current
	l.history = append([]string(nil), c.History...)
	if l.dirsLoaded {
		l.history = existing(l.root, l.history)
	}
	return nil
}

func (l *Library) saveCursor(ctx context.Context) {
	if l.st == nil {
		return
	}
	if err := store.SetJSON(ctx, l.st, store.KeyCursor, l.Cursor()); err != nil {
		logging.Warn("persist library cursor failed", logging.Err(err))
	}
}

// restoreCursor applies the persisted cursor once, after the first
// successful load.
func (l *Library) restoreCursor(ctx context.Context) {
	l.mu.Lock()
	done := l.restored
	l.restored = true
	l.mu.Unlock()
	if done || l.st == nil {
		return
	}
	var c Cursor
	if err := store.GetJSON(ctx, l.st, store.KeyCursor, &c); err != nil || c.CompanyID != l.companyID {
		return
	}
	if err := l.SetCursor(c); err != nil {
		logging.Debug("ignoring persisted cursor", logging.Err(err))
	}
}

// Close stops background work.
func (l *Library) Close() {
	l.StopPreviewRefresh()
}
