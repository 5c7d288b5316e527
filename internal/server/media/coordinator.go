package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/dmitrijs2005/profilekeeper/internal/common"
	"github.com/dmitrijs2005/profilekeeper/internal/filex"
	"github.com/dmitrijs2005/profilekeeper/internal/logging"
	"github.com/dmitrijs2005/profilekeeper/internal/server/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

var ErrNoStagedFile = errors.New("no staged file")

// ErrAttachUncertain is returned (wrapped) by an attach func that cannot
// tell whether its write landed. Replace then keeps the new upload, since
// the record may already point at it.
var ErrAttachUncertain = errors.New("attach outcome unknown")

// ReplaceState is how far a Replace got.
type ReplaceState int

const (
	StateUploading ReplaceState = iota
	StateAttached
	StateOldAssetPendingDeletion
	StateDone
)

func (s ReplaceState) String() string {
	switch s {
	case StateUploading:
		return "uploading"
	case StateAttached:
		return "attached"
	case StateOldAssetPendingDeletion:
		return "old_asset_pending_deletion"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("ReplaceState(%d)", int(s))
	}
}

// Options bound every call the Coordinator makes to the object store.
type Options struct {
	// AttemptTimeout limits a single Put or Delete.
	AttemptTimeout time.Duration
	// Retries is how many times a failed attempt is repeated.
	Retries int
	// Backoff is the first delay between attempts; it doubles each time.
	Backoff time.Duration
	// RemoveFile deletes a staged file. Defaults to filex.RemoveIfExists.
	RemoveFile func(path string) error
	// CleanupTimeout bounds retiring one asset. It runs detached from the
	// caller's cancellation.
	CleanupTimeout time.Duration
}

type Coordinator struct {
	store  ObjectStore
	queue  DeletionQueue
	logger logging.Logger
	opts   Options
	remove func(string) error
}

func NewCoordinator(store ObjectStore, queue DeletionQueue, logger logging.Logger, opts Options) *Coordinator {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 30 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	if opts.RemoveFile == nil {
		opts.RemoveFile = filex.RemoveIfExists
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = opts.AttemptTimeout * time.Duration(opts.Retries+2)
	}
	return &Coordinator{
		store:  store,
		queue:  queue,
		logger: logger.With("module", "media"),
		opts:   opts,
		remove: opts.RemoveFile,
	}
}

// do runs fn with a fresh per-attempt timeout, retrying with exponential
// backoff. A missing local file is not retried.
func (c *Coordinator) do(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(uint64(c.opts.Retries), retry.NewExponential(c.opts.Backoff))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
		defer cancel()

		err := fn(actx)
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) || ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	})
}

// Upload sends staged to the store under namespace. The staged file is left
// in place; CleanupStaged removes it.
func (c *Coordinator) Upload(ctx context.Context, staged *StagedFile, namespace string) (models.MediaAssetRef, error) {
	if staged == nil {
		return models.MediaAssetRef{}, common.Internal("failed to upload file", ErrNoStagedFile)
	}

	mt, err := mimetype.DetectFile(staged.Path)
	if err != nil {
		return models.MediaAssetRef{}, common.Internal("failed to upload file", err)
	}

	key := path.Join(namespace, uuid.NewString()+mt.Extension())

	var ref models.MediaAssetRef
	err = c.do(ctx, func(ctx context.Context) error {
		var err error
		ref, err = c.store.Put(ctx, key, staged.Path, mt.String())
		return err
	})
	if err != nil {
		c.logger.Error(ctx, "upload failed", "key", key, "error", err)
		return models.MediaAssetRef{}, common.Internal("failed to upload file", err)
	}

	c.logger.Debug(ctx, "uploaded", "key", key, "content_type", mt.String())
	return ref, nil
}

// Delete removes assetID from the store.
func (c *Coordinator) Delete(ctx context.Context, assetID string) error {
	if assetID == "" {
		return nil
	}
	return c.do(ctx, func(ctx context.Context) error {
		return c.store.Delete(ctx, assetID)
	})
}

// CleanupStaged removes the local file behind staged. Further calls for the
// same StagedFile return the first result without touching the disk.
func (c *Coordinator) CleanupStaged(staged *StagedFile) error {
	if staged == nil {
		return nil
	}
	return staged.cleanup(c.remove)
}

// retire queues assetID, tries to delete it and acks on success. A failed
// delete stays queued for the janitor. Cancelling ctx does not stop it.
func (c *Coordinator) retire(ctx context.Context, assetID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CleanupTimeout)
	defer cancel()

	if err := c.queue.Enqueue(ctx, assetID); err != nil {
		c.logger.Warn(ctx, "could not queue asset deletion", "asset_id", assetID, "error", err)
	}

	if err := c.Delete(ctx, assetID); err != nil {
		c.logger.Warn(ctx, "asset deletion failed, left queued", "asset_id", assetID, "error", err)
		return
	}

	if err := c.queue.Ack(ctx, assetID); err != nil {
		c.logger.Warn(ctx, "could not ack asset deletion", "asset_id", assetID, "error", err)
	}
}

// Discard gets rid of assets that nothing references any more.
func (c *Coordinator) Discard(ctx context.Context, refs ...models.MediaAssetRef) {
	for _, r := range refs {
		if r.AssetID == "" {
			continue
		}
		c.retire(ctx, r.AssetID)
	}
}

// Replace uploads staged, hands the new ref to attach and only then retires
// old. If attach fails the new upload is discarded and old is untouched.
// Failing to delete old does not fail the replace.
func (c *Coordinator) Replace(ctx context.Context, staged *StagedFile, namespace string, old *models.MediaAssetRef,
	attach func(ctx context.Context, ref models.MediaAssetRef) error) (models.MediaAssetRef, error) {

	state := StateUploading
	log := c.logger.With("namespace", namespace)

	ref, err := c.Upload(ctx, staged, namespace)
	if err != nil {
		return models.MediaAssetRef{}, err
	}

	if err := attach(ctx, ref); err != nil {
		if errors.Is(err, ErrAttachUncertain) {
			log.Warn(ctx, "attach outcome unknown, keeping upload", "state", state.String(), "asset_id", ref.AssetID, "error", err)
			return models.MediaAssetRef{}, err
		}
		log.Warn(ctx, "attach failed, discarding upload", "state", state.String(), "asset_id", ref.AssetID, "error", err)
		c.Discard(ctx, ref)
		return models.MediaAssetRef{}, err
	}
	state = StateAttached

	if old != nil && old.AssetID != "" && old.AssetID != ref.AssetID {
		state = StateOldAssetPendingDeletion
		log.Debug(ctx, "retiring old asset", "state", state.String(), "asset_id", old.AssetID)
		c.retire(ctx, old.AssetID)
	}
	state = StateDone

	log.Debug(ctx, "replace finished", "state", state.String(), "asset_id", ref.AssetID)
	return ref, nil
}
