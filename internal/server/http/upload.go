package http

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/dmitrijs2005/profilekeeper/internal/common"
	"github.com/dmitrijs2005/profilekeeper/internal/filex"
	"github.com/dmitrijs2005/profilekeeper/internal/server/media"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// stage saves the multipart file under field into the staging directory.
// A missing file yields (nil, nil) so the workflow can decide whether it was
// required.
func (s *HTTPServer) stage(c *gin.Context, field string) (*media.StagedFile, error) {
	fh, err := c.FormFile(field)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return nil, nil
	case err != nil:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, common.WrapError(common.ErrValidation, "file is too large", err)
		}
		return nil, common.WrapError(common.ErrValidation, "invalid multipart form", err)
	}

	if fh.Size > s.opts.MaxUploadSize {
		return nil, common.Validation("file is too large")
	}

	dst := filepath.Join(s.opts.StagingDir, uuid.NewString())
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		_ = filex.RemoveIfExists(dst)
		return nil, common.Internal("failed to receive file", err)
	}

	return media.NewStagedFile(dst, filepath.Base(fh.Filename)), nil
}

// stageAll stages each field in order. If one fails the files already
// staged are removed, since no workflow will own them.
func (s *HTTPServer) stageAll(c *gin.Context, fields ...string) ([]*media.StagedFile, error) {
	staged := make([]*media.StagedFile, 0, len(fields))
	for _, f := range fields {
		sf, err := s.stage(c, f)
		if err != nil {
			s.discardStaged(c, staged...)
			return nil, err
		}
		staged = append(staged, sf)
	}
	return staged, nil
}

func (s *HTTPServer) discardStaged(c *gin.Context, files ...*media.StagedFile) {
	for _, f := range files {
		if f == nil {
			continue
		}
		if err := filex.RemoveIfExists(f.Path); err != nil {
			s.logger.Warn(c.Request.Context(), "staged file cleanup failed", "path", f.Path, "error", err)
		}
	}
}
