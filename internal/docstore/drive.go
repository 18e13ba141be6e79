package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const textMIME = "text/plain"

// Drive stores documents as plain-text files in Google Drive. Authorization
// comes from the client options (see internal/auth).
type Drive struct {
	svc *drive.Service
}

func NewDrive(ctx context.Context, opts ...option.ClientOption) (*Drive, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Drive{svc: svc}, nil
}

// FindByName returns the oldest non-trashed file called name.
func (d *Drive) FindByName(ctx context.Context, name string) (DocumentID, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))
	list, err := d.svc.Files.List().
		Q(q).
		Spaces("drive").
		OrderBy("createdTime").
		PageSize(1).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return "", classifyDriveError(err)
	}
	if len(list.Files) == 0 {
		return "", ErrNotFound
	}
	return DocumentID(list.Files[0].Id), nil
}

func (d *Drive) Fetch(ctx context.Context, id DocumentID) ([]byte, error) {
	resp, err := d.svc.Files.Get(string(id)).Context(ctx).Download()
	if err != nil {
		return nil, classifyDriveError(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyDriveError(err)
	}
	return b, nil
}

func (d *Drive) Replace(ctx context.Context, id DocumentID, content []byte) error {
	_, err := d.svc.Files.Update(string(id), &drive.File{}).
		Media(bytes.NewReader(content), googleapi.ContentType(textMIME)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return classifyDriveError(err)
	}
	return nil
}

func (d *Drive) Create(ctx context.Context, name string, content []byte) (DocumentID, error) {
	f, err := d.svc.Files.Create(&drive.File{Name: name, MimeType: textMIME}).
		Media(bytes.NewReader(content), googleapi.ContentType(textMIME)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", classifyDriveError(err)
	}
	return DocumentID(f.Id), nil
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(s string) string { return queryEscaper.Replace(s) }

// classifyDriveError maps 404 to ErrNotFound and quota, server and network
// timeouts to transient failures.
func classifyDriveError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case gerr.Code == http.StatusTooManyRequests, gerr.Code >= http.StatusInternalServerError:
			return Transient(err)
		case gerr.Code == http.StatusForbidden && isRateLimitReason(gerr):
			return Transient(err)
		}
		return err
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return Transient(err)
	}
	return err
}

func isRateLimitReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}

var _ Backend = (*Drive)(nil)
