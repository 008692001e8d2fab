// Package plesktest provides an in-process Plesk agent endpoint that keeps
// sites and mail aliases in memory.
package plesktest

import (
	"crypto/x509"
	"encoding/pem"
	"encoding/xml"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AgentPath is the endpoint the server answers on.
const AgentPath = "/enterprise/control/agent.php"

const protocolVersion = "1.6.9.1"

// Plesk error codes used in responses.
const (
	errCodeAuth      = "1001"
	errCodeParse     = "1014"
	errCodeNotExists = "1013"
)

type mailbox struct {
	siteID  int
	account string
}

// Server is a fake Plesk agent served over TLS.
type Server struct {
	*httptest.Server

	Login     string
	Password  string
	SecretKey string

	mu       sync.Mutex
	sites    map[string]int
	aliases  map[mailbox][]string
	requests int
	override func(body []byte) string
}

// NewServer starts a server accepting login "admin" with password "secret"
// and registers its shutdown with t.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		Login:    "admin",
		Password: "secret",
		sites:    make(map[string]int),
		aliases:  make(map[mailbox][]string),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post(AgentPath, s.handleAgent)

	s.Server = httptest.NewTLSServer(r)
	t.Cleanup(s.Close)
	return s
}

// AddSite registers a site under the given id.
func (s *Server) AddSite(name string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[name] = id
}

// AddAccount creates a mail account on a site with the given aliases.
func (s *Server) AddAccount(siteID int, account string, aliases ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[mailbox{siteID, account}] = append([]string{}, aliases...)
}

// Aliases returns the current aliases of an account.
func (s *Server) Aliases(siteID int, account string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.aliases[mailbox{siteID, account}])
}

// Requests returns the number of packets received so far.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Respond makes every later request return the body produced by fn,
// bypassing authentication and the in-memory state.
func (s *Server) Respond(fn func(body []byte) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = fn
}

// Host returns the address the server listens on, without the port.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Listener.Addr().String())
	return host
}

// Port returns the port the server listens on.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// CertPool returns a pool that trusts the server certificate.
func (s *Server) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(s.Certificate())
	return pool
}

// WriteCACert writes the server certificate as PEM into a temporary
// directory and returns its path.
func (s *Server) WriteCACert(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plesk-ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: s.Certificate().Raw})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write CA cert: %v", err)
	}
	return path
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	w.Header().Set("Content-Type", "text/xml")

	if s.override != nil {
		io.WriteString(w, s.override(body))
		return
	}
	if !s.authorized(r.Header) {
		writePacket(w, &responsePacket{System: errorResult(errCodeAuth, "Authentication failed")})
		return
	}

	var req requestPacket
	if err := xml.Unmarshal(body, &req); err != nil {
		writePacket(w, &responsePacket{System: errorResult(errCodeParse, "XML parse error")})
		return
	}

	switch {
	case req.Site != nil && req.Site.Get != nil:
		writePacket(w, s.siteGet(req.Site.Get.Filter.Name))
	case req.Mail != nil && req.Mail.Update != nil && req.Mail.Update.Add != nil:
		writePacket(w, s.updateAliases(req.Mail.Update.Add, true))
	case req.Mail != nil && req.Mail.Update != nil && req.Mail.Update.Remove != nil:
		writePacket(w, s.updateAliases(req.Mail.Update.Remove, false))
	case req.Mail != nil && req.Mail.GetInfo != nil:
		writePacket(w, s.getInfo(req.Mail.GetInfo.Filter.SiteID, req.Mail.GetInfo.Filter.Name))
	default:
		writePacket(w, &responsePacket{System: errorResult(errCodeParse, "unsupported operation")})
	}
}

func (s *Server) authorized(h http.Header) bool {
	if key := h.Get("KEY"); key != "" {
		return s.SecretKey != "" && key == s.SecretKey
	}
	return h.Get("HTTP_AUTH_LOGIN") == s.Login && h.Get("HTTP_AUTH_PASSWD") == s.Password
}

func (s *Server) siteGet(name string) *responsePacket {
	res := &siteGetResult{FilterID: name}
	if id, ok := s.sites[name]; ok {
		res.Status = "ok"
		res.ID = strconv.Itoa(id)
		res.Data = &siteData{Name: name}
	} else {
		res.Status = "error"
		res.ErrCode = errCodeNotExists
		res.ErrText = "Site does not exist"
	}
	resp := &responsePacket{Site: &siteBlock{}}
	resp.Site.Get.Results = []*siteGetResult{res}
	return resp
}

func (s *Server) updateAliases(change *aliasChange, add bool) *responsePacket {
	key := mailbox{change.Filter.SiteID, change.Filter.Mailname.Name}
	res := okResult()
	if current, ok := s.aliases[key]; !ok {
		res = errorResult(errCodeNotExists, "Mail name does not exist")
	} else if add {
		if !slices.Contains(current, change.Filter.Mailname.Alias) {
			s.aliases[key] = append(current, change.Filter.Mailname.Alias)
		}
	} else {
		s.aliases[key] = slices.DeleteFunc(current, func(a string) bool {
			return a == change.Filter.Mailname.Alias
		})
	}

	resp := &responsePacket{Mail: &mailBlock{Update: &mailUpdateResult{}}}
	if add {
		resp.Mail.Update.Add = &resultList{Results: []*result{res}}
	} else {
		resp.Mail.Update.Remove = &resultList{Results: []*result{res}}
	}
	return resp
}

func (s *Server) getInfo(siteID int, account string) *responsePacket {
	res := &mailInfoResult{}
	if aliases, ok := s.aliases[mailbox{siteID, account}]; ok {
		res.result = *okResult()
		res.Mailname = &mailnameInfo{Name: account, Alias: slices.Clone(aliases)}
	} else {
		res.result = *errorResult(errCodeNotExists, "Mail name does not exist")
	}
	return &responsePacket{Mail: &mailBlock{GetInfo: &mailInfoList{Results: []*mailInfoResult{res}}}}
}

func writePacket(w io.Writer, p *responsePacket) {
	p.Version = protocolVersion
	out, err := xml.MarshalIndent(p, "", "  ")
	if err != nil {
		panic(err)
	}
	io.WriteString(w, xml.Header)
	w.Write(out)
}
