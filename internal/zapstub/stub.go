// Package zapstub is an in-process stand-in for the subset of the ZAP JSON
// API that the gateway uses. Behaviour is scripted through Config.
package zapstub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/raysh454/zapscan/internal/zap"
)

// Call is one request the stub received.
type Call struct {
	Op     string
	Params url.Values
}

// Server is the fake scanner.
type Server struct {
	cfg Config

	mu          sync.Mutex
	calls       []Call
	nextID      int
	scanPolls   map[string]int
	spiderPolls map[string]int
	ajaxPolls   int
	pscanPolls  int
	contexts    map[string]string
}

// New creates a fake scanner.
func New(cfg Config) *Server {
	return &Server{
		cfg:         cfg,
		scanPolls:   make(map[string]int),
		spiderPolls: make(map[string]int),
		contexts:    make(map[string]string),
	}
}

// Handler returns the stub's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/JSON/", s.dispatch)
	return mux
}

// Start listens on cfg.Port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	return http.ListenAndServe(addr, s.Handler())
}

// Calls returns every request received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Ops returns the operation names received, in order.
func (s *Server) Ops() []string {
	calls := s.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}

// Count returns how many times op was called.
func (s *Server) Count(op string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	params := r.Form
	op := strings.Trim(strings.TrimPrefix(r.URL.Path, "/JSON/"), "/")

	if s.cfg.APIKey != "" && params.Get("apikey") != s.cfg.APIKey {
		writeErr(w, http.StatusForbidden, "bad_api_key", "Missing or invalid API key")
		return
	}
	params.Del("apikey")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: op, Params: params})

	switch op {
	case "core/view/version":
		writeJSON(w, map[string]string{"version": s.cfg.Version})
	case "core/view/numberOfMessages":
		writeJSON(w, map[string]string{"numberOfMessages": strconv.Itoa(10 * s.nextID)})
	case "core/view/alerts":
		s.alerts(w, params)

	case "openapi/action/importUrl":
		if s.cfg.RejectImportURL {
			writeErr(w, http.StatusBadRequest, "bad_external_data", "Failed to parse the definition")
			return
		}
		writeJSON(w, map[string][]string{"importUrl": {}})
	case "openapi/action/importFile":
		if params.Get("file") == "" {
			writeErr(w, http.StatusBadRequest, "missing_parameter", "file")
			return
		}
		writeJSON(w, map[string][]string{"importFile": {}})

	case "context/action/newContext":
		name := params.Get("contextName")
		if _, ok := s.contexts[name]; ok {
			writeErr(w, http.StatusBadRequest, "already_exists", "Context already exists")
			return
		}
		s.contexts[name] = s.newID()
		writeJSON(w, map[string]string{"contextId": s.contexts[name]})
	case "context/view/context":
		id, ok := s.contexts[params.Get("contextName")]
		if !ok {
			writeErr(w, http.StatusBadRequest, "context_not_found", "Context not found")
			return
		}
		writeJSON(w, map[string]interface{}{"context": map[string]string{"id": id, "name": params.Get("contextName")}})

	case "spider/action/scan":
		writeJSON(w, map[string]string{"scan": s.newID()})
	case "spider/view/status":
		writeJSON(w, map[string]string{"status": strconv.Itoa(next(s.cfg.SpiderProgress, s.spiderPolls, params.Get("scanId")))})
	case "ajaxSpider/action/scan":
		s.ajaxPolls = 0
		writeOK(w)
	case "ajaxSpider/view/status":
		status := "stopped"
		if s.ajaxPolls < s.cfg.AjaxRunningPolls {
			status = "running"
		}
		s.ajaxPolls++
		writeJSON(w, map[string]string{"status": status})
	case "pscan/view/recordsToScan":
		writeJSON(w, map[string]string{"recordsToScan": strconv.Itoa(seqAt(s.cfg.PassiveRecords, s.pscanPolls))})
		s.pscanPolls++

	case "ascan/action/scan":
		if s.cfg.RejectAPIScan && params.Get("scanPolicyName") != "" {
			writeErr(w, http.StatusBadRequest, "does_not_exist", "Policy not found")
			return
		}
		writeJSON(w, map[string]string{"scan": s.newID()})
	case "ascan/view/status":
		writeJSON(w, map[string]string{"status": strconv.Itoa(next(s.cfg.ScanProgress, s.scanPolls, params.Get("scanId")))})

	case "users/action/newUser":
		writeJSON(w, map[string]string{"userId": s.newID()})

	case "context/action/includeInContext",
		"authentication/action/setAuthenticationMethod",
		"users/action/setAuthenticationCredentials",
		"users/action/setUserEnabled",
		"httpSessions/action/createEmptySession",
		"spider/action/setOptionMaxDepth",
		"ajaxSpider/action/setOptionMaxDuration",
		"ascan/action/setOptionThreadPerHost",
		"ascan/action/setOptionMaxScanDurationInMins",
		"ascan/action/setOptionDelayInMs",
		"core/action/setOptionTimeoutInSecs",
		"pscan/action/enableAllScanners",
		"pscan/action/disableAllScanners":
		writeOK(w)

	default:
		writeErr(w, http.StatusBadRequest, "bad_view", "No such operation: "+op)
	}
}

func (s *Server) alerts(w http.ResponseWriter, params url.Values) {
	base := params.Get("baseurl")
	var matched []zap.Alert
	for _, a := range s.cfg.Alerts {
		if base == "" || strings.HasPrefix(a.URL, base) {
			matched = append(matched, a)
		}
	}
	start, _ := strconv.Atoi(params.Get("start"))
	count, err := strconv.Atoi(params.Get("count"))
	if err != nil || count <= 0 {
		count = len(matched)
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := start + count
	if end > len(matched) {
		end = len(matched)
	}
	page := matched[start:end]
	if page == nil {
		page = []zap.Alert{}
	}
	writeJSON(w, map[string]interface{}{"alerts": page})
}

func (s *Server) newID() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

// next returns the value of seq for the key's next poll.
func next(seq []int, polls map[string]int, key string) int {
	v := seqAt(seq, polls[key])
	polls[key]++
	return v
}

func seqAt(seq []int, i int) int {
	if len(seq) == 0 {
		return 100
	}
	if i >= len(seq) {
		return seq[len(seq)-1]
	}
	return seq[i]
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, map[string]string{"Result": "OK"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": msg})
}
