package resticstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdonaldj/sitebak/internal/mocks"
)

const archive = "sitebak-abc123-blog-20240101-030000.zip"

func writeArchive(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), archive)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestUploadInitializesRepository(t *testing.T) {
	client := mocks.NewMockResticClient()
	s := New(client, "/repo", "pw")
	path := writeArchive(t, "zip-bytes")

	require.NoError(t, s.Upload(context.Background(), path))
	assert.True(t, client.InitializedRepos["/repo"])
	require.Len(t, client.SnapshotsByRepo["/repo"], 1)
	snap := client.SnapshotsByRepo["/repo"][0]
	assert.Equal(t, []string{path}, snap.Paths)
	assert.Equal(t, []string{Tag, "file:" + archive}, snap.Tags)
}

func TestListKeepsNewestSnapshot(t *testing.T) {
	client := mocks.NewMockResticClient()
	s := New(client, "/repo", "pw")
	path := writeArchive(t, "zip-bytes")

	require.NoError(t, s.Upload(context.Background(), path))
	require.NoError(t, s.Upload(context.Background(), path))

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, archive, list[0].Filename)
	assert.Equal(t, int64(9), list[0].Size)
	assert.NotZero(t, list[0].LastModUnix)
}

func TestListUninitializedRepository(t *testing.T) {
	s := New(mocks.NewMockResticClient(), "/repo", "pw")
	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDownload(t *testing.T) {
	client := mocks.NewMockResticClient()
	s := New(client, "/repo", "pw")
	path := writeArchive(t, "zip-bytes")
	require.NoError(t, s.Upload(context.Background(), path))

	dest := filepath.Join(t.TempDir(), archive)
	require.NoError(t, s.Download(context.Background(), archive, dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))

	require.Len(t, client.RestoreCalls, 1)
	assert.Equal(t, []string{path}, client.RestoreCalls[0].Include)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "restore directory should be cleaned up")
}

func TestDownloadUnknownArchive(t *testing.T) {
	client := mocks.NewMockResticClient()
	client.InitializedRepos["/repo"] = true
	s := New(client, "/repo", "pw")

	err := s.Download(context.Background(), archive, filepath.Join(t.TempDir(), archive))
	assert.ErrorIs(t, err, ErrNotInRepository)
}

func TestUploadErrors(t *testing.T) {
	client := mocks.NewMockResticClient()
	client.Errors.Backup = errors.New("repository locked")
	s := New(client, "/repo", "pw")
	assert.Error(t, s.Upload(context.Background(), writeArchive(t, "x")))

	assert.False(t, New(client, "", "").IsSetup())
	assert.Error(t, New(client, "/repo", "").Upload(context.Background(), "/x.zip"))
}

func TestListTripsBreakerOnRepeatedFailures(t *testing.T) {
	client := mocks.NewMockResticClient()
	client.InitializedRepos["/repo"] = true
	client.Errors.Snapshots = errors.New("connection refused")
	s := New(client, "/repo", "pw")

	for i := 0; i < FailureThreshold; i++ {
		_, err := s.List(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	_, err := s.List(context.Background())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, FailureThreshold, client.SnapshotsCalls)
}
