package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zip"

	"github.com/coffeestaff/portal/internal/export"
	"github.com/coffeestaff/portal/internal/media"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/tree"
)

type folderView struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

type libraryView struct {
	CompanyID  string            `json:"company_id"`
	Path       string            `json:"path"`
	Name       string            `json:"name"`
	CanGoBack  bool              `json:"can_go_back"`
	Folders    []folderView      `json:"folders"`
	Images     []models.Image    `json:"images"`
	Previews   map[string]string `json:"previews"`
	Selecting  bool              `json:"selecting"`
	Selected   []string          `json:"selected"`
	Refreshing bool              `json:"refreshing"`
}

func viewOf(lib *media.Library) libraryView {
	cur := lib.Cursor()
	v := libraryView{
		CompanyID:  lib.CompanyID(),
		Path:       cur.Current,
		Name:       tree.FolderName(lib.Base(), cur.Current),
		CanGoBack:  len(cur.History) > 0,
		Folders:    []folderView{},
		Images:     lib.Images(),
		Previews:   lib.Previews(),
		Selecting:  lib.Selecting(),
		Selected:   lib.Selected(),
		Refreshing: lib.PreviewRefreshRunning(),
	}
	for _, f := range lib.Folders() {
		v.Folders = append(v.Folders, folderView{Path: f.Path, Name: f.Name})
	}
	if v.Images == nil {
		v.Images = []models.Image{}
	}
	if v.Selected == nil {
		v.Selected = []string{}
	}
	return v
}

func (s *Server) handleLibrary(c *gin.Context) {
	c.JSON(http.StatusOK, viewOf(libraryOf(c)))
}

func (s *Server) handleReload(c *gin.Context) {
	lib := libraryOf(c)
	if err := lib.Load(c.Request.Context()); err != nil {
		fail(c, err, "Could not load the media library")
		return
	}
	c.JSON(http.StatusOK, viewOf(lib))
}

func (s *Server) handleTree(c *gin.Context) {
	root := libraryOf(c).Tree()
	c.JSON(http.StatusOK, gin.H{"tree": root, "count": tree.CountNodes(root)})
}

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

func (s *Server) handleEnter(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	lib := libraryOf(c)
	if err := lib.Enter(c.Request.Context(), req.Path); err != nil {
		fail(c, err, "Could not open the folder")
		return
	}
	c.JSON(http.StatusOK, viewOf(lib))
}

func (s *Server) handleBack(c *gin.Context) {
	lib := libraryOf(c)
	lib.Back(c.Request.Context())
	c.JSON(http.StatusOK, viewOf(lib))
}

type createFolderRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateFolder(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	lib := libraryOf(c)
	if err := lib.CreateFolder(c.Request.Context(), req.Name); err != nil {
		fail(c, err, "Could not create folder")
		return
	}
	c.JSON(http.StatusCreated, viewOf(lib))
}

type renameFolderRequest struct {
	Path    string `json:"path" binding:"required"`
	NewName string `json:"new_name"`
}

func (s *Server) handleRenameFolder(c *gin.Context) {
	var req renameFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	lib := libraryOf(c)
	if err := lib.RenameFolder(c.Request.Context(), req.Path, req.NewName); err != nil {
		fail(c, err, "Could not rename folder")
		return
	}
	c.JSON(http.StatusOK, viewOf(lib))
}

type deleteFolderRequest struct {
	Path    string `json:"path" binding:"required"`
	Confirm bool   `json:"confirm"`
}

func (s *Server) handleDeleteFolder(c *gin.Context) {
	var req deleteFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	if !req.Confirm {
		fail(c, errConfirmRequired, "")
		return
	}
	lib := libraryOf(c)
	deleted, err := lib.DeleteFolder(c.Request.Context(), req.Path)
	if err != nil {
		fail(c, err, "Could not delete folder")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_image_ids": deleted, "library": viewOf(lib)})
}

func (s *Server) handleUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fh.Size > s.opts.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", s.opts.MaxUploadSize)})
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err, "Could not read the upload")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.opts.MaxUploadSize+1))
	if err != nil {
		fail(c, err, "Could not read the upload")
		return
	}

	lib := libraryOf(c)
	id, err := lib.Upload(c.Request.Context(), fh.Filename, data)
	if err != nil {
		fail(c, err, "Could not upload image")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"image_id": id, "library": viewOf(lib)})
}

type renameImageRequest struct {
	FileName string `json:"file_name"`
}

func (s *Server) handleRenameImage(c *gin.Context) {
	var req renameImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	lib := libraryOf(c)
	if err := lib.RenameImage(c.Request.Context(), c.Param("id"), req.FileName); err != nil {
		fail(c, err, "Could not rename image")
		return
	}
	c.JSON(http.StatusOK, viewOf(lib))
}

func (s *Server) handleImageURL(c *gin.Context) {
	u, err := libraryOf(c).PreviewURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "Could not load the preview")
		return
	}
	c.JSON(http.StatusOK, gin.H{"image_id": c.Param("id"), "url": u})
}

type moveRequest struct {
	IDs    []string `json:"ids"`
	Target string   `json:"target" binding:"required"`
}

func (s *Server) handleMoveImages(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target is required"})
		return
	}
	lib := libraryOf(c)
	res, err := lib.MoveImages(c.Request.Context(), req.IDs, req.Target)
	batchResponse(c, lib, res, err, "Could not move images")
}

type deleteImagesRequest struct {
	IDs     []string `json:"ids"`
	Confirm bool     `json:"confirm"`
}

func (s *Server) handleDeleteImages(c *gin.Context) {
	var req deleteImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !req.Confirm {
		fail(c, errConfirmRequired, "")
		return
	}
	lib := libraryOf(c)
	res, err := lib.DeleteImages(c.Request.Context(), req.IDs)
	batchResponse(c, lib, res, err, "Could not delete images")
}

// batchResponse reports a batch. A stopped batch answers with the status
// of its failure and still carries the per-item result.
func batchResponse(c *gin.Context, lib *media.Library, res *media.BatchResult, err error, fallback string) {
	var be *media.BatchError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"result": res, "library": viewOf(lib)})
	case errors.As(err, &be):
		status, msg := classify(be.Err, fallback)
		c.AbortWithStatusJSON(status, gin.H{"error": msg, "result": res, "library": viewOf(lib)})
	default:
		fail(c, err, fallback)
	}
}

type selectionRequest struct {
	Action  string `json:"action" binding:"required"`
	ImageID string `json:"image_id"`
	HeldMS  int64  `json:"held_ms"`
}

func (s *Server) handleSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}
	lib := libraryOf(c)
	openPreview := false
	switch req.Action {
	case "press":
		lib.Press(req.ImageID, time.Duration(req.HeldMS)*time.Millisecond)
	case "click":
		openPreview = lib.Click(req.ImageID)
	case "toggle":
		lib.ToggleSelection(req.ImageID)
	case "enter":
		lib.EnterSelection()
	case "exit":
		lib.ExitSelection()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown action %q", req.Action)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"selecting":    lib.Selecting(),
		"selected":     lib.Selected(),
		"open_preview": openPreview,
	})
}

type previewsRequest struct {
	Action string `json:"action" binding:"required"`
}

// handlePreviews controls the preview refresh task of the library view:
// "start" when the view opens, "stop" when it closes, "refresh" once.
func (s *Server) handlePreviews(c *gin.Context) {
	var req previewsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}
	lib := libraryOf(c)
	switch req.Action {
	case "start":
		lib.StartPreviewRefresh(detached(c), s.opts.PreviewRefresh)
	case "stop":
		lib.StopPreviewRefresh()
	case "refresh":
		lib.RefreshPreviews(c.Request.Context())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown action %q", req.Action)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshing": lib.PreviewRefreshRunning(), "previews": lib.Previews()})
}

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type downloadRequest struct {
	IDs []string `json:"ids"`
}

// handleDownload answers with a zip of the requested images, or of the
// current selection when no ids are given.
func (s *Server) handleDownload(c *gin.Context) {
	var req downloadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	lib := libraryOf(c)
	ids := req.IDs
	if len(ids) == 0 {
		ids = lib.Selected()
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	res, err := lib.Download(c.Request.Context(), ids, func(name string, img models.Image, content io.Reader) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: time.Now()})
		if err != nil {
			return err
		}
		_, err = io.Copy(w, content)
		return err
	})
	if err != nil {
		batchResponse(c, lib, res, err, "Could not download images")
		return
	}
	if err := zw.Close(); err != nil {
		fail(c, err, "Could not download images")
		return
	}
	name := fmt.Sprintf("images-%s-%s.zip", lib.CompanyID(), time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

func (s *Server) handleExport(c *gin.Context) {
	lib := libraryOf(c)
	var buf bytes.Buffer
	if err := export.Inventory(&buf, lib.Base(), lib.Tree(), lib.AllImages()); err != nil {
		fail(c, err, "Could not export the library")
		return
	}
	name := fmt.Sprintf("images-%s-%s.xlsx", lib.CompanyID(), time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, xlsxType, buf.Bytes())
}
