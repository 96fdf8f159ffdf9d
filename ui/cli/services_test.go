package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toeirei/regvault/internal/config"
	"github.com/toeirei/regvault/internal/core"
)

func TestDefaultOpenStore_File(t *testing.T) {
	cfg := config.Config{Store: config.Store{Type: "file", Dir: t.TempDir()}}
	store, closeStore, err := defaultOpenStore(context.Background(), cfg, "", "2024/05/01")
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeStore() })

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "things/dev-1.json", map[string]string{"thingName": "dev-1"}))
	keys, err := store.Keys(ctx, "things/")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
	assert.Regexp(t, `^file://`, store.Location())
}

func TestDefaultOpenStore_Errors(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"s3 without bucket", config.Config{Store: config.Store{Type: "s3"}}, "bucket"},
		{"gcs without bucket", config.Config{Store: config.Store{Type: "gcs"}}, "bucket"},
		{"file without dir", config.Config{Store: config.Store{Type: "file"}}, "store.dir"},
		{"unknown", config.Config{Store: config.Store{Type: "ftp"}}, "unsupported store type"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := defaultOpenStore(ctx, c.cfg, "us-east-1", "p")
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.want)
		})
	}
}

func TestDefaultOpenStore_S3WithStaticCredentials(t *testing.T) {
	cfg := config.Config{
		Bucket: "backups",
		Store:  config.Store{Type: "s3", Endpoint: "http://127.0.0.1:9000", PathStyle: true},
		AWS:    config.AWS{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"},
	}
	store, closeStore, err := defaultOpenStore(context.Background(), cfg, "us-east-1", "p")
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeStore() })
	assert.Equal(t, "s3://backups/p", store.Location())
}

func TestDefaultOpenJournal(t *testing.T) {
	ctx := context.Background()
	j, err := defaultOpenJournal(ctx, config.Config{Database: config.Database{Type: "none"}})
	require.NoError(t, err)
	assert.Nil(t, j, "journal is disabled")

	j, err = defaultOpenJournal(ctx, config.Config{Database: config.Database{
		Type: "sqlite",
		Dsn:  filepath.Join(t.TempDir(), "journal.db"),
	}})
	require.NoError(t, err)
	require.NotNil(t, j)
	t.Cleanup(func() { _ = j.Close() })

	runs, err := j.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestWithJournal_FallsBackWhenUnavailable(t *testing.T) {
	orig := openJournal
	t.Cleanup(func() { openJournal = orig })
	openJournal = defaultOpenJournal
	appConfig = config.Config{Database: config.Database{Type: "oracle"}}

	called := false
	err := withJournal(context.Background(), func(j core.RunJournal) error {
		called = true
		assert.Nil(t, j)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called, "fn runs without a journal")
}
