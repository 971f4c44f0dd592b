package twilio

import (
	"encoding/xml"
	"net/http"
	"strings"

	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/harunnryd/lexturn/pkg/errorsx"
)

type streamTwiML struct {
	XMLName xml.Name `xml:"Response"`
	Say     string   `xml:"Say,omitempty"`
	Connect struct {
		Stream struct {
			URL string `xml:"url,attr"`
		} `xml:"Stream"`
	} `xml:"Connect"`
}

const hangupTwiML = "<Response><Hangup/></Response>"

// handleVoice answers an incoming call by connecting it to the media stream.
func (t *Transport) handleVoice(w http.ResponseWriter, r *http.Request) {
	if !t.admit(w, r) {
		return
	}
	doc := streamTwiML{Say: strings.TrimSpace(t.cfg.VoiceGreeting)}
	doc.Connect.Stream.URL = t.websocketURL(r)
	body, err := xml.Marshal(doc)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(body)
}

// handleStatusCallback ends the call a terminal status refers to.
func (t *Transport) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if !t.admit(w, r) {
		return
	}
	if err := r.ParseForm(); err == nil {
		reason := endReason(r.FormValue("CallStatus"))
		if call := t.callBySID(r.FormValue("CallSid")); call != nil && reason != "" {
			call.end(reason)
			t.detach(call)
		}
	}
	w.WriteHeader(http.StatusOK)
}

// admit rejects anything but a POST and, when an auth token is configured,
// requests without a valid X-Twilio-Signature.
func (t *Transport) admit(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if t.cfg.AuthToken == "" || t.signatureValid(r) {
		return true
	}
	t.log.Warn("twilio_invalid_signature", "path", r.URL.Path,
		"reason_code", string(errorsx.ReasonTransportInvalidSignature))
	w.WriteHeader(http.StatusForbidden)
	return false
}

func (t *Transport) signatureValid(r *http.Request) bool {
	sig := r.Header.Get("X-Twilio-Signature")
	if sig == "" || r.ParseForm() != nil {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	validator := twilioclient.NewRequestValidator(t.cfg.AuthToken)
	return validator.Validate(t.requestURL(r), params, sig)
}

// requestURL rebuilds the URL Twilio signed.
func (t *Transport) requestURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		return strings.TrimRight(t.cfg.PublicURL, "/") + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = r.Header.Get("X-Forwarded-Proto")
	}
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + t.host(r) + r.URL.RequestURI()
}

func (t *Transport) websocketURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		return t.cfg.endpoint("wss", t.cfg.WebsocketPath)
	}
	return "wss://" + t.host(r) + t.cfg.WebsocketPath
}

func (t *Transport) host(r *http.Request) string {
	if r.Host != "" {
		return r.Host
	}
	return strings.TrimPrefix(t.cfg.ServerAddr, ":")
}

// checkOrigin matches the Origin header against AllowedOrigins. Entries with
// a scheme must match exactly; bare hosts match either scheme.
func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
	if origin == "" {
		return true
	}
	host := stripScheme(origin)
	for _, allowed := range t.cfg.AllowedOrigins {
		allowed = strings.TrimRight(strings.TrimSpace(allowed), "/")
		switch {
		case allowed == "":
		case stripScheme(allowed) != allowed:
			if strings.EqualFold(allowed, origin) {
				return true
			}
		case strings.EqualFold(allowed, host):
			return true
		}
	}
	return false
}

// endpoint is the externally reachable URL for path. Without a public URL it
// falls back to plain http on the listen address.
func (c Config) endpoint(scheme, path string) string {
	if c.PublicURL != "" {
		return scheme + "://" + strings.TrimRight(stripScheme(c.PublicURL), "/") + path
	}
	addr := c.ServerAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + path
}

func stripScheme(v string) string {
	return strings.TrimPrefix(strings.TrimPrefix(v, "https://"), "http://")
}
