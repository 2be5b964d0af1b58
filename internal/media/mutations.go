package media

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/imageinfo"
	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/metrics"
	"github.com/coffeestaff/portal/internal/notify"
	"github.com/coffeestaff/portal/internal/protocol"
	"github.com/coffeestaff/portal/internal/tree"
)

// cleanName trims a folder or file name and rejects names that would
// escape their folder.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), "/"))
	if name == "" {
		return "", ErrEmptyName
	}
	if strings.Contains(name, "/") || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// fail reports a failed mutation and returns err.
func (l *Library) fail(op, msg string, err error) error {
	metrics.RecordLibraryMutation(op, false)
	if msg != "" {
		l.notifier.Notify(notify.Failure(op, msg))
	}
	logging.Debug("library mutation failed", logging.String("op", op), logging.Err(err))
	return err
}

func (l *Library) succeed(op, msg string) {
	metrics.RecordLibraryMutation(op, true)
	l.notifier.Notify(notify.Success(op, msg))
}

// renameMessage maps a rename failure: unprocessable names get a specific
// message, everything else the generic one.
func renameMessage(err error, invalid, generic string) string {
	if client.StatusOf(err) == 422 {
		return invalid
	}
	if client.KindOf(err) == client.KindValidation || client.KindOf(err) == client.KindUnknown {
		return generic
	}
	return client.Message(err, generic)
}

// CreateFolder creates name inside the current folder and reloads the
// folder listing.
func (l *Library) CreateFolder(ctx context.Context, name string) error {
	const op = "create_folder"
	name, err := cleanName(name)
	if err != nil {
		return l.fail(op, "Folder name must not be empty or contain \"/\"", err)
	}
	parent := l.CurrentPath()

	err = l.api.CreateDirectory(ctx, protocol.CreateDirectoryRequest{
		CompanyID: l.companyID,
		DirName:   name + "/",
		DirPath:   parent,
	})
	if err != nil {
		return l.fail(op, client.Message(err, "Could not create folder"), err)
	}

	l.succeed(op, fmt.Sprintf("Folder %q created", name))
	if err := l.reloadFolders(ctx); err != nil {
		logging.Warn("reload after create folder failed", logging.Err(err))
	}
	return nil
}

// RenameFolder renames the folder at path. Renaming to the same name is a
// no-op. Folders and images are reloaded on success.
func (l *Library) RenameFolder(ctx context.Context, path, newName string) error {
	const op = "rename_folder"
	if path == l.base {
		return l.fail(op, "The root folder cannot be renamed", ErrRootFolder)
	}
	if tree.FindByPath(l.Tree(), path) == nil {
		return l.fail(op, "Folder does not exist", fmt.Errorf("%w: %s", ErrUnknownFolder, path))
	}
	newName, err := cleanName(newName)
	if err != nil {
		return l.fail(op, "Invalid folder name", err)
	}
	oldName := tree.FolderName(l.base, path)
	if newName == oldName {
		return nil
	}
	parent := tree.ParentPath(path)

	resp, err := l.api.RenameDirectory(ctx, protocol.RenameDirectoryRequest{
		CompanyID:  l.companyID,
		OldDirName: oldName + "/",
		NewDirName: newName + "/",
		DirPath:    parent,
	})
	if err != nil {
		return l.fail(op, renameMessage(err, "Invalid folder name", "Could not rename folder"), err)
	}

	l.repointCursor(path, tree.ChildPath(parent, newName))
	l.succeed(op, fmt.Sprintf("Folder renamed to %q (%d images updated)", newName, len(resp.UpdatedImageIDs)))
	if err := l.Load(ctx); err != nil {
		logging.Warn("reload after rename folder failed", logging.Err(err))
	}
	return nil
}

// repointCursor rewrites cursor paths under a renamed folder.
func (l *Library) repointCursor(oldPath, newPath string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	move := func(p string) string {
		if strings.HasPrefix(p, oldPath) {
			return newPath + strings.TrimPrefix(p, oldPath)
		}
		return p
	}
	l.current = move(l.current)
	for i, p := range l.history {
		l.history[i] = move(p)
	}
}

// DeleteFolder removes the folder at path with everything below it,
// including the images stored there. Callers confirm with the user first.
// It returns the ids of the images the backend removed.
func (l *Library) DeleteFolder(ctx context.Context, path string) ([]string, error) {
	const op = "delete_folder"
	if path == l.base {
		return nil, l.fail(op, "The root folder cannot be deleted", ErrRootFolder)
	}
	if tree.FindByPath(l.Tree(), path) == nil {
		return nil, l.fail(op, "Folder does not exist", fmt.Errorf("%w: %s", ErrUnknownFolder, path))
	}
	name := tree.FolderName(l.base, path)

	resp, err := l.api.DeleteDirectory(ctx, protocol.DeleteDirectoryRequest{
		CompanyID: l.companyID,
		DirName:   name + "/",
		DirPath:   path,
	})
	if err != nil {
		return nil, l.fail(op, client.Message(err, "Could not delete folder"), err)
	}

	l.mu.Lock()
	if strings.HasPrefix(l.current, path) {
		l.current = tree.ParentPath(path)
	}
	l.mu.Unlock()

	l.succeed(op, fmt.Sprintf("Folder %q deleted (%d images removed)", name, len(resp.DeletedImageIDs)))
	if err := l.Load(ctx); err != nil {
		logging.Warn("reload after delete folder failed", logging.Err(err))
	}
	return resp.DeletedImageIDs, nil
}

// Upload sends an image into the current folder. Its intrinsic size is
// read locally and sent as metadata. The image list is reloaded on
// success; nothing is inserted locally.
func (l *Library) Upload(ctx context.Context, fileName string, data []byte) (string, error) {
	const op = "upload_image"
	fileName = strings.TrimSpace(fileName)
	if fileName == "" || len(data) == 0 {
		return "", l.fail(op, "Select a file to upload", ErrEmptyName)
	}
	info, err := imageinfo.Inspect(data)
	if err != nil {
		return "", l.fail(op, "The file is not a supported image", err)
	}
	target := l.CurrentPath()

	resp, err := l.api.UploadImage(ctx, client.Upload{
		FileName:    fileName,
		ContentType: info.MIME,
		Content:     bytes.NewReader(data),
		Metadata: protocol.UploadMetadata{
			CompanyID: l.companyID,
			FilePath:  target,
			Width:     strconv.Itoa(info.Width),
			Height:    strconv.Itoa(info.Height),
		},
	})
	if err != nil {
		return "", l.fail(op, client.Message(err, "Could not upload image"), err)
	}

	metrics.RecordUpload(info.Size)
	l.succeed(op, fmt.Sprintf("%s uploaded", fileName))
	if err := l.reloadImages(ctx); err != nil {
		logging.Warn("reload after upload failed", logging.Err(err))
	}
	return resp.ImageID, nil
}

// RenameImage changes an image's file name and keeps its folder. Renaming
// to the same name is a no-op.
func (l *Library) RenameImage(ctx context.Context, imageID, newName string) error {
	const op = "rename_image"
	img, ok := l.Image(imageID)
	if !ok {
		return l.fail(op, "Image does not exist", fmt.Errorf("%w: %s", ErrUnknownImage, imageID))
	}
	newName, err := cleanName(newName)
	if err != nil {
		return l.fail(op, "Invalid file name", err)
	}
	if newName == img.FileName {
		return nil
	}

	err = l.api.UpdateImage(ctx, imageID, protocol.UpdateImageRequest{
		FileName: newName,
		FilePath: img.FilePath,
	})
	if err != nil {
		return l.fail(op, renameMessage(err, "Invalid file name", "Could not rename image"), err)
	}

	l.succeed(op, fmt.Sprintf("Image renamed to %q", newName))
	if err := l.reloadImages(ctx); err != nil {
		logging.Warn("reload after rename image failed", logging.Err(err))
	}
	return nil
}
