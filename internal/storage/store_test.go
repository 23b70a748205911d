package storage

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, maxSize int64) *Store {
	t.Helper()
	s, err := New(t.TempDir(), maxSize, []string{".pdf", "CSV", ".xlsx"})
	require.NoError(t, err)
	return s
}

func TestSaveListArchiveRemove(t *testing.T) {
	s := newStore(t, 1024)

	path, err := s.Save("inbounds", "INB-2025-0001", "invoice.PDF", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(s.root, "inbounds", "INB-2025-0001", "invoice.PDF"), path)
	_, err = s.Save("inbounds", "INB-2025-0001", "form.csv", strings.NewReader("item_code,quantity\nA,1\n"))
	require.NoError(t, err)

	docs, err := s.List("inbounds", "INB-2025-0001")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "form.csv", docs[0].Name)
	require.EqualValues(t, 8, docs[1].Size)

	var buf bytes.Buffer
	require.NoError(t, s.Archive(&buf, "inbounds", "INB-2025-0001"))
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "%PDF-1.4", string(content))

	require.NoError(t, s.Remove("inbounds", "INB-2025-0001"))
	_, err = os.Stat(filepath.Join(s.root, "inbounds", "INB-2025-0001"))
	require.True(t, os.IsNotExist(err))
	require.NoError(t, s.Remove("inbounds", "INB-2025-0001"))
}

func TestSaveRejectsBadFiles(t *testing.T) {
	s := newStore(t, 4)

	_, err := s.Save("inbounds", "INB-2025-0001", "script.sh", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrExtension)

	_, err = s.Save("inbounds", "INB-2025-0001", "big.pdf", strings.NewReader("12345"))
	require.ErrorIs(t, err, ErrTooLarge)
	docs, err := s.List("inbounds", "INB-2025-0001")
	require.NoError(t, err)
	require.Empty(t, docs)

	_, err = s.Save("inbounds", "../etc", "a.pdf", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = s.Save("inbounds", "INB-2025-0001", "../a.pdf", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestCheck(t *testing.T) {
	s := newStore(t, 10)
	require.NoError(t, s.Check("rows.XLSX", 10))
	require.ErrorIs(t, s.Check("rows.xlsx", 11), ErrTooLarge)
	require.ErrorIs(t, s.Check("rows", 1), ErrExtension)
}

func TestArchiveOfEmptyWave(t *testing.T) {
	s := newStore(t, 0)
	var buf bytes.Buffer
	require.NoError(t, s.Archive(&buf, "outbounds", "OUT-2025-0001"))
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Empty(t, zr.File)
}
