package pinagent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	xerrors "github.com/pinai-network/agent-sdk-go/pkg/errors"
)

// UploadMedia uploads a local file and returns the URL the platform assigned
// to it. The returned URL is what SendMessage expects in MediaURL.
func (c *Client) UploadMedia(ctx context.Context, filePath string, mediaType MediaType) (*MediaUpload, error) {
	if !mediaType.Valid() || mediaType == MediaNone {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unsupported media type %q", mediaType))
	}
	file, err := os.Open(filePath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "open media file")
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "create form file")
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "copy media file")
	}
	if err := writer.WriteField("media_type", string(mediaType)); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "write media type field")
	}
	if err := writer.Close(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "finalise multipart body")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "api/sdk/upload_media", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var upload MediaUpload
	if err := c.do(req, &upload); err != nil {
		return nil, err
	}
	c.log.Info("media uploaded",
		slog.String("file", filepath.Base(filePath)),
		slog.String("media_type", string(mediaType)))
	return &upload, nil
}
