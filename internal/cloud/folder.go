package cloud

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/pkgcache/internal/notify"
	"github.com/rowjay/pkgcache/internal/storage"
)

// Folders manages zero-byte marker objects standing in for directories.
type Folders struct {
	gw       storage.Gateway
	notifier notify.Notifier
	log      zerolog.Logger
}

func NewFolders(gw storage.Gateway, notifier notify.Notifier, log zerolog.Logger) *Folders {
	return &Folders{gw: gw, notifier: notifier, log: log.With().Str("component", "folders").Logger()}
}

// Exists reports whether the marker for name is present.
func (f *Folders) Exists(ctx context.Context, name string) (bool, error) {
	_, ok, err := f.gw.Info(ctx, storage.FolderKey(name))
	return ok, err
}

// Create uploads the marker for name. Repeating it is harmless.
func (f *Folders) Create(ctx context.Context, name string) error {
	return f.gw.Put(ctx, storage.FolderKey(name), "")
}

// Ensure creates the marker when missing. Failures degrade to a warning that
// is logged and sent to the operator; the result reports whether the folder is
// known to exist.
func (f *Folders) Ensure(ctx context.Context, name string) bool {
	start := time.Now()
	ok, err := f.Exists(ctx, name)
	if err == nil && ok {
		return true
	}
	if err == nil {
		err = f.Create(ctx, name)
	}
	if err == nil {
		f.log.Info().Str("folder", name).Str("bucket", f.gw.Bucket()).Msg("created virtual folder")
		return true
	}
	f.log.Warn().Err(err).Str("folder", name).Str("bucket", f.gw.Bucket()).Msg("virtual folder unavailable; cloud storage degraded")
	if f.notifier != nil {
		ev := notify.NewEvent(notify.EventBootstrap, notify.StatusWarning, "virtual folder "+name+" could not be created", start)
		ev.Bucket = f.gw.Bucket()
		ev.Key = storage.FolderKey(name)
		ev.Error = err.Error()
		if nerr := f.notifier.Notify(ctx, ev); nerr != nil {
			f.log.Warn().Err(nerr).Msg("notification failed")
		}
	}
	return false
}
