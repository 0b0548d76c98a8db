package backup

import (
	"context"
	"testing"
	"time"

	"VocalForge/pkg/scheduler"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteBackupCopiesFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "data/vocalforge.db", []byte("sqlite-bytes"), 0o644))

	r := NewRunner(Config{Driver: "sqlite", DSN: "file:data/vocalforge.db?_pragma=busy_timeout(5000)", Dir: "backups"}).WithFs(fs)
	r.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	dst, err := r.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "backups/vocalforge_20260102_030405.db", dst)

	data, err := afero.ReadFile(fs, dst)
	require.NoError(t, err)
	assert.Equal(t, "sqlite-bytes", string(data))
}

func TestSQLitePath(t *testing.T) {
	p, err := SQLitePath("file:vocalforge.db")
	require.NoError(t, err)
	assert.Equal(t, "vocalforge.db", p)

	_, err = SQLitePath("file:abc?mode=memory&cache=shared")
	assert.Error(t, err)
	_, err = SQLitePath(":memory:")
	assert.Error(t, err)
}

func TestMysqldumpArgs(t *testing.T) {
	args, err := mysqldumpArgs("studio:pw@tcp(db.local:3307)/vocalforge?parseTime=true")
	require.NoError(t, err)
	assert.Equal(t, []string{"--single-transaction", "--host=db.local", "--port=3307", "--user=studio", "--password=pw", "vocalforge"}, args)
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := NewRunner(Config{Driver: "oracle"}).WithFs(afero.NewMemMapFs()).Execute(context.Background())
	assert.Error(t, err)
}

func TestScheduleValidation(t *testing.T) {
	cr := scheduler.NewCron(time.UTC)
	assert.Error(t, NewRunner(Config{Schedule: "not a cron"}).StartBackupScheduler(cr))
	assert.NoError(t, NewRunner(Config{Schedule: "0 3 * * *"}).StartBackupScheduler(cr))
	assert.Len(t, cr.Entries(), 1)
}
