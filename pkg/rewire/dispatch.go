package rewire

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Dispatch serves a request from the setup's route table. A pending restart
// runs first; restarts wait for in-flight requests and block new ones.
func (s *Setup) Dispatch(req RequestContext) error {
	rt := s.rt
	rt.app.RestartIfDirty(req.Context())

	rt.gate.RLock()
	defer rt.gate.RUnlock()

	verb := strings.ToUpper(req.Method())
	route, params, ok := s.routes.Match(verb, JoinPath(req.Path(), ""))
	if !ok {
		s.observe(verb, "not_found")
		return s.fail(req, ErrNotFound("no route for "+verb+" "+req.Path()))
	}
	for name, value := range params {
		req.SetParam(name, value)
	}

	if err := rt.security.Authorize(req, route.Roles); err != nil {
		s.observe(verb, "denied")
		return s.fail(req, err)
	}

	result, err := route.Handler(req)
	if err != nil {
		s.observe(verb, "error")
		return s.fail(req, err)
	}

	if err := s.respond(req, route, result); err != nil {
		s.observe(verb, "error")
		return s.fail(req, err)
	}
	s.observe(verb, "ok")
	return nil
}

func (s *Setup) respond(req RequestContext, route Route, result any) error {
	res := req.Response()
	if res.Written() {
		return nil
	}

	if route.Response == ResponseData {
		if result == nil {
			return res.String(http.StatusNoContent, "")
		}
		return res.JSON(http.StatusOK, result)
	}

	if route.Raw {
		return res.HTML(http.StatusOK, toHTML(result))
	}

	title := route.Title
	if title == "" {
		title = s.rt.config.Str("app.title")
	}
	html, err := s.rt.renderer.Render(route.View, ViewModel{
		Title: title,
		Path:  req.Path(),
		Model: result,
	})
	if err != nil {
		return err
	}
	return res.HTML(http.StatusOK, html)
}

func (s *Setup) fail(req RequestContext, err error) error {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		s.logger.Error("Handler failed",
			zap.String("method", req.Method()),
			zap.String("path", req.Path()),
			zap.Error(err))
		httpErr = ErrInternalServerError(http.StatusText(http.StatusInternalServerError))
	}

	res := req.Response()
	if res.Written() {
		return nil
	}
	return res.JSON(httpErr.Code, map[string]interface{}{
		"error": httpErr.Message,
		"code":  httpErr.Code,
	})
}

func (s *Setup) observe(verb, outcome string) {
	s.rt.metrics.Requests.WithLabelValues(s.name, verb, outcome).Inc()
}

func toHTML(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
