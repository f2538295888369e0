package services

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"
)

// The probe starts a timer when the page loads and, on unload, sends one
// beacon with the elapsed whole seconds. Nothing it reports is trusted.
var probeTemplate = template.Must(template.New("probe").Parse(`(function () {
  var endpoint = "{{js .Endpoint}}";
  var token = "{{js .Token}}";
  var minDwellSeconds = {{.MinDwellSeconds}};
  var started = Date.now();
  var sent = false;

  function report() {
    if (sent) return;
    sent = true;
    var payload = JSON.stringify({
      token: token,
      dwell_seconds: Math.floor((Date.now() - started) / 1000),
      referrer: document.referrer || "",
      user_agent: navigator.userAgent || ""
    });
    try {
      if (navigator.sendBeacon) {
        navigator.sendBeacon(endpoint, new Blob([payload], { type: "text/plain" }));
      } else if (window.fetch) {
        fetch(endpoint, {
          method: "POST",
          body: payload,
          keepalive: true,
          credentials: "include",
          headers: { "Content-Type": "text/plain" }
        });
      }
    } catch (e) {}
  }

  window.addEventListener("pagehide", report);
  window.addEventListener("beforeunload", report);
  window.__questProbe = { minDwellSeconds: minDwellSeconds, report: report };
})();
`))

// ProbeRenderer builds the dwell-time probe pointed at the completion endpoint.
type ProbeRenderer struct {
	PublicBaseURL string
}

func (p ProbeRenderer) completeEndpoint(taskID string) string {
	return fmt.Sprintf("%s/tasks/%s/complete", strings.TrimRight(p.PublicBaseURL, "/"), url.PathEscape(taskID))
}

func (p ProbeRenderer) Render(taskID, token string, minDwellSeconds int) (string, error) {
	var buf bytes.Buffer
	err := probeTemplate.Execute(&buf, struct {
		Endpoint        string
		Token           string
		MinDwellSeconds int
	}{
		Endpoint:        p.completeEndpoint(taskID),
		Token:           token,
		MinDwellSeconds: minDwellSeconds,
	})
	if err != nil {
		return "", fmt.Errorf("render probe: %w", err)
	}
	return buf.String(), nil
}
