// Package external is the narrow façade the inspection engine uses to reach
// the tabular store and file storage. It shapes requests, stamps rows and
// translates every failure into a *Failure; it holds no business rules.
package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"inspection-bot/internal/domain"
	"inspection-bot/internal/logging"
)

const (
	OpAppendRow   = "append_row"
	OpUploadPhoto = "upload_photo"
	OpDeletePhoto = "delete_photo"

	// DateLayout formats the first sheet column.
	DateLayout = "2006-01-02 15:04:05"

	maxFileNameRunes = 120
)

// RowAppender is the tabular store's write side.
type RowAppender interface {
	AppendRow(ctx context.Context, sheet string, row domain.Row) error
}

// FileStore is the file storage API.
type FileStore interface {
	FindOrCreateFolder(ctx context.Context, name, parentID string) (string, error)
	UploadFile(ctx context.Context, folderID string, data []byte, name string) (string, error)
	DeleteFile(ctx context.Context, fileID string) error
	FileLink(fileID string) string
}

type Facade struct {
	rows         RowAppender
	files        FileStore
	sheet        string
	rootFolderID string
	limiter      *Limiter
	now          func() time.Time
	loc          *time.Location

	mu      sync.Mutex
	folders map[string]string
}

type Option func(*Facade)

func WithLimiter(l *Limiter) Option {
	return func(f *Facade) {
		if l != nil {
			f.limiter = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Facade) {
		if now != nil {
			f.now = now
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(f *Facade) {
		if loc != nil {
			f.loc = loc
		}
	}
}

func New(rows RowAppender, files FileStore, sheet, rootFolderID string, opts ...Option) (*Facade, error) {
	if rows == nil {
		return nil, errors.New("external: row appender must not be nil")
	}
	if files == nil {
		return nil, errors.New("external: file store must not be nil")
	}
	sheet = strings.TrimSpace(sheet)
	if sheet == "" {
		return nil, errors.New("external: sheet name must not be empty")
	}
	rootFolderID = strings.TrimSpace(rootFolderID)
	if rootFolderID == "" {
		return nil, errors.New("external: root folder id must not be empty")
	}
	f := &Facade{
		rows:         rows,
		files:        files,
		sheet:        sheet,
		rootFolderID: rootFolderID,
		limiter:      NewLimiter(0, 0),
		now:          time.Now,
		loc:          time.Local,
		folders:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// AppendRow writes one sheet row: [date, unit, defect, company, photo link].
func (f *Facade) AppendRow(ctx context.Context, unitLabel, defectText, companyName, photoLink string) (err error) {
	defer recoverInto(OpAppendRow, &err)
	log := logging.FromContext(ctx)

	row := domain.Row{
		Date:        f.now().In(f.loc).Format(DateLayout),
		UnitLabel:   unitLabel,
		DefectText:  defectText,
		CompanyName: companyName,
		PhotoLink:   photoLink,
	}
	if appendErr := f.rows.AppendRow(ctx, f.sheet, row); appendErr != nil {
		log.Warn("append row failed", "unit", unitLabel, "err", appendErr)
		return fail(OpAppendRow, "", appendErr)
	}
	log.Info("row appended", "sheet", f.sheet, "unit", unitLabel)
	return nil
}

// UploadPhoto creates every missing segment of folderPath under the root
// folder and uploads data into the last one.
func (f *Facade) UploadPhoto(ctx context.Context, folderPath string, data []byte, nameHint string) (h domain.FileHandle, err error) {
	defer recoverInto(OpUploadPhoto, &err)
	log := logging.FromContext(ctx)

	if len(data) == 0 {
		return domain.FileHandle{}, fail(OpUploadPhoto, "photo is empty", nil)
	}
	if acqErr := f.limiter.Acquire(ctx); acqErr != nil {
		return domain.FileHandle{}, fail(OpUploadPhoto, "", acqErr)
	}
	defer f.limiter.Release()

	folderID, err := f.resolveFolder(ctx, folderPath)
	if err != nil {
		log.Warn("photo folder lookup failed", "folder", folderPath, "err", err)
		return domain.FileHandle{}, fail(OpUploadPhoto, fmt.Sprintf("folder %q: %v", folderPath, err), err)
	}

	name := FileName(nameHint)
	id, err := f.files.UploadFile(ctx, folderID, data, name)
	if err != nil {
		f.forgetFolder(folderPath)
		log.Warn("photo upload failed", "folder", folderPath, "err", err)
		return domain.FileHandle{}, fail(OpUploadPhoto, "", err)
	}
	if strings.TrimSpace(id) == "" {
		return domain.FileHandle{}, fail(OpUploadPhoto, "storage returned no file id", nil)
	}
	log.Info("photo uploaded", "folder", folderPath, "file_id", id, "name", name)
	return domain.FileHandle{ID: id, Name: name, Link: f.files.FileLink(id)}, nil
}

// DeletePhoto removes an uploaded photo.
func (f *Facade) DeletePhoto(ctx context.Context, h domain.FileHandle) (err error) {
	defer recoverInto(OpDeletePhoto, &err)
	log := logging.FromContext(ctx)

	if h.IsZero() {
		return fail(OpDeletePhoto, "missing file id", nil)
	}
	if delErr := f.files.DeleteFile(ctx, h.ID); delErr != nil {
		log.Warn("photo delete failed", "file_id", h.ID, "err", delErr)
		return fail(OpDeletePhoto, "", delErr)
	}
	log.Info("photo deleted", "file_id", h.ID)
	return nil
}

func (f *Facade) resolveFolder(ctx context.Context, folderPath string) (string, error) {
	parent := f.rootFolderID
	walked := ""
	for _, seg := range strings.Split(folderPath, "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		walked = path.Join(walked, seg)

		f.mu.Lock()
		id, ok := f.folders[walked]
		f.mu.Unlock()
		if !ok {
			var err error
			id, err = f.files.FindOrCreateFolder(ctx, seg, parent)
			if err != nil {
				return "", err
			}
			f.mu.Lock()
			f.folders[walked] = id
			f.mu.Unlock()
		}
		parent = id
	}
	return parent, nil
}

func (f *Facade) forgetFolder(folderPath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.folders {
		if strings.HasPrefix(strings.Trim(folderPath, "/ "), k) {
			delete(f.folders, k)
		}
	}
}

// FileName turns a free-text hint into a storage file name ending in .jpg.
func FileName(hint string) string {
	hint = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '\n', '\r', '\t':
			return ' '
		}
		return r
	}, hint)
	hint = strings.Join(strings.Fields(hint), " ")
	if hint == "" {
		hint = "photo"
	}
	if utf8.RuneCountInString(hint) > maxFileNameRunes {
		hint = strings.TrimSpace(string([]rune(hint)[:maxFileNameRunes]))
	}
	if !strings.HasSuffix(strings.ToLower(hint), ".jpg") {
		hint += ".jpg"
	}
	return hint
}

func recoverInto(op string, err *error) {
	if r := recover(); r != nil {
		slog.Error("external call panicked", "op", op, "panic", r)
		*err = fail(op, fmt.Sprintf("unexpected failure: %v", r), nil)
	}
}
