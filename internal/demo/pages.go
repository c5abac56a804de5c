package demo

import (
	"embed"
	"io/fs"

	"github.com/toyz/rewire/pkg/rewire"
)

//go:embed views/*.html
var views embed.FS

// Views holds the demo page templates
var Views, _ = fs.Sub(views, "views")

// PagesController renders the landing pages
type PagesController struct {
	rewire.Base
}

func (PagesController) Controller() rewire.ControllerSpec {
	return rewire.ControllerSpec{
		Operations: rewire.Operations{
			"Index": {rewire.Page("/").WithView("index").WithTitle("Rewire")},
			"About": {rewire.Page().AsRaw()},
		},
	}
}

func (*PagesController) Index(req rewire.RequestContext) (any, error) {
	rt := rewire.Default()
	return map[string]any{
		"Epoch": rt.Epoch().ID,
		"Agent": req.Header("User-Agent"),
		"Live":  rt.Config().Str(LiveReloadKey),
	}, nil
}

func (*PagesController) About() (any, error) {
	return "<p>Routes are reconciled from component declarations and rebuilt on every restart.</p>", nil
}
