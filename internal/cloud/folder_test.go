package cloud

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rowjay/pkgcache/internal/notify"
	"github.com/rowjay/pkgcache/internal/storage"
)

func TestFolderBootstrap(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	m := newTestManager(t, gw, nil)

	ok, err := m.Folders.Exists(ctx, storage.PackagesFolder)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Folders.Create(ctx, storage.PackagesFolder))
	ok, err = m.Folders.Exists(ctx, storage.PackagesFolder)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Folders.Create(ctx, storage.PackagesFolder+"/"))
	ok, err = m.Folders.Exists(ctx, storage.PackagesFolder)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEnsureCreatesOnce(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	m := newTestManager(t, gw, nil)

	require.True(t, m.Folders.Ensure(ctx, storage.PackagesFolder))
	require.True(t, m.Folders.Ensure(ctx, storage.PackagesFolder))
	require.Equal(t, 1, gw.count("put"))
}

func TestEnsureWarnsOperatorOnFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.failOn("put", errors.New("access denied"))
	notifier := &recordingNotifier{}
	m := newTestManager(t, gw, func(o *Options) { o.Notifier = notifier })

	require.False(t, m.Folders.Ensure(context.Background(), storage.PackagesFolder))
	require.Len(t, notifier.events, 1)
	require.Equal(t, notify.StatusWarning, notifier.events[0].Status)
	require.Equal(t, storage.PackagesPrefix, notifier.events[0].Key)
}
