// Package demo is a small notes application used by the rewire command.
// Its components register themselves with the process-wide catalog, and
// Main is the entry point re-invoked after every restart.
package demo

import (
	"context"

	"go.uber.org/zap"

	"github.com/toyz/rewire/pkg/rewire"
)

// LiveReloadKey is the config key holding the live reload websocket URL
const LiveReloadKey = "dev.livereload"

var notes = NewNotesController()

func init() {
	rewire.Component(notes, rewire.TypeOf[PagesController]())
	rewire.Entry(Main)
}

// Main bootstraps the demo on the process-wide runtime
func Main(ctx context.Context, args []string) error {
	rt := rewire.Default()
	if err := rt.App().Bootstrap(ctx, args...); err != nil {
		return err
	}

	rt.DefaultSetup().GET("/api/epoch").JSON(func(rewire.RequestContext) (any, error) {
		epoch := rt.Epoch()
		return map[string]any{"id": epoch.ID, "seq": epoch.Seq, "restarted": rt.App().IsRestarted()}, nil
	})

	if _, err := rt.Jobs().Schedule("@every 1m", func() {
		rt.Logger().Info("Notes stored", zap.Int("count", notes.Len()))
	}); err != nil {
		return err
	}
	return nil
}
