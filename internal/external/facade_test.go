package external

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inspection-bot/internal/domain"
)

type fakeRows struct {
	err      error
	panicMsg string
	sheet    string
	rows     []domain.Row
}

func (f *fakeRows) AppendRow(_ context.Context, sheet string, row domain.Row) error {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.sheet = sheet
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

type fakeFiles struct {
	mu        sync.Mutex
	nextID    int
	folderErr error
	uploadErr error
	deleteErr error
	folders   []string // "parent/name"
	uploads   []string // "folderID/name"
	deleted   []string
}

func (f *fakeFiles) FindOrCreateFolder(_ context.Context, name, parentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.folderErr != nil {
		return "", f.folderErr
	}
	f.folders = append(f.folders, parentID+"/"+name)
	return "dir-" + name, nil
}

func (f *fakeFiles) UploadFile(_ context.Context, folderID string, data []byte, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.nextID++
	f.uploads = append(f.uploads, folderID+"/"+name)
	return fmt.Sprintf("file-%d", f.nextID), nil
}

func (f *fakeFiles) DeleteFile(_ context.Context, fileID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, fileID)
	return nil
}

func (f *fakeFiles) FileLink(fileID string) string {
	return "https://files.test/" + fileID
}

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func mustNewFacade(t *testing.T, rows *fakeRows, files *fakeFiles) *Facade {
	t.Helper()
	f, err := New(rows, files, "Inspections", "root",
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
	)
	require.NoError(t, err)
	return f
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &fakeFiles{}, "s", "r")
	require.Error(t, err)
	_, err = New(&fakeRows{}, nil, "s", "r")
	require.Error(t, err)
	_, err = New(&fakeRows{}, &fakeFiles{}, " ", "r")
	require.Error(t, err)
	_, err = New(&fakeRows{}, &fakeFiles{}, "s", "")
	require.Error(t, err)
}

func TestAppendRow_StampsDateAndKeepsColumnOrder(t *testing.T) {
	rows := &fakeRows{}
	f := mustNewFacade(t, rows, &fakeFiles{})

	err := f.AppendRow(context.Background(), "46.2", "crack", "Pelc", "https://files.test/1")
	require.NoError(t, err)
	require.Equal(t, "Inspections", rows.sheet)
	require.Len(t, rows.rows, 1)
	require.Equal(t,
		[]string{"2025-03-14 09:26:53", "46.2", "crack", "Pelc", "https://files.test/1"},
		rows.rows[0].Columns())
}

func TestAppendRow_FailureCarriesRawReason(t *testing.T) {
	rows := &fakeRows{err: errors.New("quota exceeded")}
	f := mustNewFacade(t, rows, &fakeFiles{})

	err := f.AppendRow(context.Background(), "46.2", "crack", "Pelc", "")
	var fl *Failure
	require.ErrorAs(t, err, &fl)
	require.Equal(t, OpAppendRow, fl.Op)
	require.Equal(t, "quota exceeded", fl.Reason)
}

func TestAppendRow_PanicBecomesFailure(t *testing.T) {
	f := mustNewFacade(t, &fakeRows{panicMsg: "boom"}, &fakeFiles{})

	err := f.AppendRow(context.Background(), "46.2", "crack", "Pelc", "")
	var fl *Failure
	require.ErrorAs(t, err, &fl)
	require.Contains(t, fl.Reason, "boom")
}

func TestUploadPhoto_CreatesFoldersOnceAndNamesFile(t *testing.T) {
	files := &fakeFiles{}
	f := mustNewFacade(t, &fakeRows{}, files)
	ctx := context.Background()

	h, err := f.UploadPhoto(ctx, "Szeregi/B5", []byte{1, 2, 3}, "cracked tile - Pelc")
	require.NoError(t, err)
	require.Equal(t, "file-1", h.ID)
	require.Equal(t, "cracked tile - Pelc.jpg", h.Name)
	require.Equal(t, "https://files.test/file-1", h.Link)
	require.Equal(t, []string{"root/Szeregi", "dir-Szeregi/B5"}, files.folders)
	require.Equal(t, []string{"dir-B5/cracked tile - Pelc.jpg"}, files.uploads)

	_, err = f.UploadPhoto(ctx, "Szeregi/B5", []byte{4}, "second")
	require.NoError(t, err)
	require.Len(t, files.folders, 2, "folder ids must be cached")
}

func TestUploadPhoto_EmptyData(t *testing.T) {
	f := mustNewFacade(t, &fakeRows{}, &fakeFiles{})
	_, err := f.UploadPhoto(context.Background(), "Lokale/1", nil, "x")
	var fl *Failure
	require.ErrorAs(t, err, &fl)
	require.Equal(t, "photo is empty", fl.Reason)
}

func TestUploadPhoto_FolderFailure(t *testing.T) {
	files := &fakeFiles{folderErr: errors.New("forbidden")}
	f := mustNewFacade(t, &fakeRows{}, files)
	_, err := f.UploadPhoto(context.Background(), "Lokale/1", []byte{1}, "x")
	var fl *Failure
	require.ErrorAs(t, err, &fl)
	require.Contains(t, fl.Reason, "forbidden")
	require.Empty(t, files.uploads)
}

func TestUploadPhoto_UploadFailureDropsFolderCache(t *testing.T) {
	files := &fakeFiles{uploadErr: errors.New("network down")}
	f := mustNewFacade(t, &fakeRows{}, files)
	ctx := context.Background()

	_, err := f.UploadPhoto(ctx, "Lokale/1", []byte{1}, "x")
	require.Error(t, err)
	require.Len(t, files.folders, 2)

	files.uploadErr = nil
	_, err = f.UploadPhoto(ctx, "Lokale/1", []byte{1}, "x")
	require.NoError(t, err)
	require.Len(t, files.folders, 4, "folders must be resolved again after a failed upload")
}

func TestUploadPhoto_LimiterExhausted(t *testing.T) {
	files := &fakeFiles{}
	l := NewLimiter(1, 10*time.Millisecond)
	f, err := New(&fakeRows{}, files, "s", "root", WithLimiter(l))
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	_, err = f.UploadPhoto(context.Background(), "Lokale/1", []byte{1}, "x")
	var fl *Failure
	require.ErrorAs(t, err, &fl)
	require.ErrorIs(t, err, ErrTooManyUploads)
	require.Empty(t, files.uploads)
}

func TestDeletePhoto(t *testing.T) {
	files := &fakeFiles{}
	f := mustNewFacade(t, &fakeRows{}, files)
	ctx := context.Background()

	require.NoError(t, f.DeletePhoto(ctx, domain.FileHandle{ID: "file-9"}))
	require.Equal(t, []string{"file-9"}, files.deleted)

	err := f.DeletePhoto(ctx, domain.FileHandle{})
	var fl *Failure
	require.ErrorAs(t, err, &fl)
	require.Equal(t, "missing file id", fl.Reason)

	files.deleteErr = errors.New("not found")
	err = f.DeletePhoto(ctx, domain.FileHandle{ID: "file-10"})
	require.ErrorAs(t, err, &fl)
	require.Equal(t, OpDeletePhoto, fl.Op)
	require.Equal(t, "not found", fl.Reason)
}

func TestFileName(t *testing.T) {
	require.Equal(t, "photo.jpg", FileName("  "))
	require.Equal(t, "a b.jpg", FileName("a/b"))
	require.Equal(t, "x.jpg", FileName("x"))
	require.Equal(t, "shot.JPG", FileName("shot.JPG"))
	long := FileName(strings.Repeat("ą", 300))
	require.Equal(t, maxFileNameRunes+len(".jpg"), len([]rune(long)))
}

func TestLimiter_AcquireRelease(t *testing.T) {
	l := NewLimiter(2, 20*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	require.Equal(t, 2, l.Active())
	require.ErrorIs(t, l.Acquire(ctx), ErrTooManyUploads)

	l.Release()
	require.Equal(t, 1, l.Active())
	require.NoError(t, l.Acquire(ctx))
	l.Release()
	l.Release()
	l.Release()
	require.Equal(t, 0, l.Active())
}

func TestLimiter_ContextCancelled(t *testing.T) {
	l := NewLimiter(1, time.Second)
	require.NoError(t, l.Acquire(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}
