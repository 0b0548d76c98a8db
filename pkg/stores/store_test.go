package stores

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	s := NewFsStore(afero.NewMemMapFs(), "/api/files/")
	ctx := context.Background()
	key := "beats/u1/a.mp3"

	require.NoError(t, s.Write(ctx, key, strings.NewReader("beat-bytes"), 10, "audio/mpeg"))

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, size, err := s.Read(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "beat-bytes", string(data))
	assert.Equal(t, int64(10), size)

	assert.Equal(t, "/api/files/beats/u1/a.mp3", s.PublicURL(key))

	require.NoError(t, s.Delete(ctx, key))
	ok, _ = s.Exists(ctx, key)
	assert.False(t, ok)
	// 重复删除不报错
	assert.NoError(t, s.Delete(ctx, key))
}

func TestCleanKey(t *testing.T) {
	k, err := CleanKey("/beats//u1/./x.wav")
	require.NoError(t, err)
	assert.Equal(t, "beats/u1/x.wav", k)

	k, err = CleanKey("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", k)

	_, err = CleanKey("")
	assert.Error(t, err)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(Config{Driver: "ftp"})
	assert.Error(t, err)

	_, err = New(Config{Driver: "cos", Cos: CosConfig{BucketURL: "::"}})
	assert.Error(t, err)
}
