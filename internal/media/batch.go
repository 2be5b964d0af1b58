package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/metrics"
	"github.com/coffeestaff/portal/internal/notify"
	"github.com/coffeestaff/portal/internal/protocol"
	"github.com/coffeestaff/portal/internal/tree"
)

// BatchResult reports the outcome of a multi-image operation. Items run in
// order and the batch stops at the first failure: Failed holds at most one
// id, and everything after it is Skipped. Succeeded steps are not rolled
// back.
type BatchResult struct {
	Op        string   `json:"op"`
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Skipped   []string `json:"skipped"`
	Error     string   `json:"error,omitempty"`
}

// Complete reports whether every item succeeded.
func (r *BatchResult) Complete() bool {
	return len(r.Failed) == 0 && len(r.Skipped) == 0
}

// BatchError is returned when a batch stopped early.
type BatchError struct {
	Result *BatchResult
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %d of %d done, stopped at %s: %v",
		e.Result.Op, len(e.Result.Succeeded),
		len(e.Result.Succeeded)+len(e.Result.Failed)+len(e.Result.Skipped),
		strings.Join(e.Result.Failed, ","), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// runBatch applies step to each id in order, stopping at the first
// failure, then reloads the images.
func (l *Library) runBatch(ctx context.Context, op string, ids []string, step func(context.Context, string) error) (*BatchResult, error) {
	res, err := l.runSteps(ctx, op, ids, step)
	if err := l.reloadImages(ctx); err != nil {
		logging.Warn("reload after batch failed", logging.String("op", op), logging.Err(err))
	}
	return res, err
}

func (l *Library) runSteps(ctx context.Context, op string, ids []string, step func(context.Context, string) error) (*BatchResult, error) {
	res := &BatchResult{Op: op, Succeeded: []string{}, Failed: []string{}, Skipped: []string{}}
	var firstErr error
	for i, id := range ids {
		if err := step(ctx, id); err != nil {
			res.Failed = append(res.Failed, id)
			res.Skipped = append(res.Skipped, ids[i+1:]...)
			res.Error = err.Error()
			firstErr = err
			break
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res, firstErr
}

func (l *Library) report(res *BatchResult, err error, verb, fallback string) error {
	total := len(res.Succeeded) + len(res.Failed) + len(res.Skipped)
	if err == nil {
		l.succeed(res.Op, fmt.Sprintf("%s %d of %d images", verb, len(res.Succeeded), total))
		return nil
	}
	metrics.RecordLibraryMutation(res.Op, false)
	l.notifier.Notify(notify.Failure(res.Op, fmt.Sprintf("%s %d of %d images; %s failed: %s",
		verb, len(res.Succeeded), total, res.Failed[0], client.Message(err, fallback))))
	return &BatchError{Result: res, Err: err}
}

// MoveImages moves the images to the target folder one at a time. File
// names are kept.
func (l *Library) MoveImages(ctx context.Context, ids []string, target string) (*BatchResult, error) {
	const op = "move_images"
	if len(ids) == 0 {
		return nil, l.fail(op, "Select at least one image", ErrNoSelection)
	}
	if tree.FindByPath(l.Tree(), target) == nil {
		return nil, l.fail(op, "Target folder does not exist", fmt.Errorf("%w: %s", ErrUnknownFolder, target))
	}

	res, err := l.runBatch(ctx, op, ids, func(ctx context.Context, id string) error {
		img, ok := l.Image(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownImage, id)
		}
		return l.api.UpdateImage(ctx, id, protocol.UpdateImageRequest{
			FileName: img.FileName,
			FilePath: target,
		})
	})
	l.ExitSelection()
	return res, l.report(res, err, "Moved", "Could not move image")
}

// DeleteImages deletes the images one at a time. Callers confirm with the
// user first.
func (l *Library) DeleteImages(ctx context.Context, ids []string) (*BatchResult, error) {
	const op = "delete_images"
	if len(ids) == 0 {
		return nil, l.fail(op, "Select at least one image", ErrNoSelection)
	}

	res, err := l.runBatch(ctx, op, ids, func(ctx context.Context, id string) error {
		return l.api.DeleteImage(ctx, id)
	})
	l.ExitSelection()
	return res, l.report(res, err, "Deleted", "Could not delete image")
}
