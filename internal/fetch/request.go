package fetch

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/skysense/go-aq-sync/config"
	"github.com/skysense/go-aq-sync/model"
)

// RequestFor maps a resource key onto the backend endpoint serving it and
// attaches the issued credential.
func RequestFor(remote config.RemoteCfg, key string) (Request, error) {
	if key == "" {
		return Request{}, model.ErrEmptyKey
	}

	base := strings.TrimRight(remote.BaseURL, "/")
	qualifier := model.Qualifier(key)

	var target string
	switch model.KindOf(key) {
	case model.KindCurrent:
		target = fmt.Sprintf("%s/current-conditions?location=%s", base, url.QueryEscape(qualifier))
	case model.KindForecast:
		target = fmt.Sprintf("%s/forecast/24h?location=%s", base, url.QueryEscape(qualifier))
	case model.KindGrid:
		// grid qualifiers are already encoded query strings (bbox, zoom)
		target = fmt.Sprintf("%s/spatial-grid?%s", base, qualifier)
	default:
		return Request{}, fmt.Errorf("no endpoint for resource key %q", key)
	}

	header := http.Header{}
	if remote.AuthToken != "" {
		header.Set("Authorization", "Bearer "+remote.AuthToken)
	}

	return Request{Method: http.MethodGet, URL: target, Header: header}, nil
}
