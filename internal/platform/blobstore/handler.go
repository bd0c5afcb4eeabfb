package blobstore

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/labstack/echo/v4"
)

// DownloadHandler serves objects from a Store to holders of a signed URL.
type DownloadHandler struct {
	store  Store
	signer *URLSigner
}

func NewDownloadHandler(store Store, signer *URLSigner) *DownloadHandler {
	return &DownloadHandler{store: store, signer: signer}
}

// RegisterRoutes mounts the download route on e.
func (h *DownloadHandler) RegisterRoutes(e *echo.Echo) {
	e.GET(DownloadPath+"/*", h.handleDownload)
}

func (h *DownloadHandler) handleDownload(c echo.Context) error {
	key, err := url.PathUnescape(c.Param("*"))
	if err != nil || ValidateKey(key) != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid artifact key")
	}

	if err := h.signer.Verify(key, c.QueryParam("expires"), c.QueryParam("signature")); err != nil {
		switch {
		case errors.Is(err, ErrURLExpired):
			return echo.NewHTTPError(http.StatusGone, err.Error())
		default:
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
	}

	info, rc, err := h.store.Get(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, path.Base(key)))
	return c.Stream(http.StatusOK, contentType, rc)
}
