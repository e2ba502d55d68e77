// Package sessiontest runs a fake shelter management site for tests.
package sessiontest

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

const (
	ReportPath    = "/sms3/embeddedreports/animalviewreport.aspx"
	sessionCookie = "ASP.NET_SessionId"
)

const loginPage = `<html><body>
<p>Please sign in to continue</p>
<form method="post" action="./animalviewreport.aspx?AnimalID=%s" id="aspnetForm">
	<input type="hidden" name="__VIEWSTATE" value="login-state" />
	<input type="text" name="ctl00$cphSearchArea$txtShelterPetFinderId" value="" />
	<input type="text" name="ctl00$cphSearchArea$txtUserName" value="" />
	<input type="password" name="ctl00$cphSearchArea$txtPassword" value="" />
	<input type="submit" name="ctl00$cphSearchArea$btnLogin" value="Sign In" />
</form>
</body></html>`

const collapsedPage = `<html><body>
<form method="post" action="./animalviewreport.aspx?AnimalID=%s" id="aspnetForm">
	<input type="hidden" name="__VIEWSTATE" value="report-state" />
	<input type="submit" name="ctl00$cphSearchArea$btnPostBackButton" value="" />
	<span id="cphWorkArea_lblAnimalNumber">A%s</span>
	<p>collapsed</p>
</form>
</body></html>`

const missingPage = `<html><body><p>Animal not found.</p></body></html>`

// Server is a fake report site. Reports maps identifiers to the body returned once a
// report is fully expanded.
type Server struct {
	*httptest.Server

	ShelterID string
	Username  string
	Password  string
	// Cookies that must be "block" for a postback to return the expanded report.
	Cookies []string

	mu       sync.Mutex
	reports  map[string]string
	sessions map[string]bool
	logins   int
	fetches  map[string]int
}

func NewServer(reports map[string]string, cookies []string) *Server {
	s := &Server{
		ShelterID: "USTX95",
		Username:  "volunteer",
		Password:  "hunter2",
		Cookies:   cookies,
		reports:   reports,
		sessions:  map[string]bool{},
		fetches:   map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(ReportPath, s.handleReport)
	s.Server = httptest.NewServer(mux)
	return s
}

// URLTemplate is the report url that identifiers get appended to.
func (s *Server) URLTemplate() string {
	return s.URL + ReportPath + "?AnimalID="
}

// Logins is the number of successful logins.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Fetches is the number of expanded reports served for `id`.
func (s *Server) Fetches(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[id]
}

func (s *Server) authenticated(r *http.Request) bool {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[c.Value]
}

func (s *Server) expanded(r *http.Request) bool {
	for _, name := range s.Cookies {
		c, err := r.Cookie(name)
		if err != nil || c.Value != "block" {
			return false
		}
	}
	return true
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("AnimalID")
	escaped := html.EscapeString(id)

	if !s.authenticated(r) {
		if r.Method == http.MethodPost && r.FormValue("ctl00$cphSearchArea$btnLogin") != "" {
			if r.FormValue("__VIEWSTATE") == "login-state" &&
				r.FormValue("ctl00$cphSearchArea$txtShelterPetFinderId") == s.ShelterID &&
				r.FormValue("ctl00$cphSearchArea$txtUserName") == s.Username &&
				r.FormValue("ctl00$cphSearchArea$txtPassword") == s.Password {
				s.mu.Lock()
				s.logins++
				token := fmt.Sprintf("session-%d", s.logins)
				s.sessions[token] = true
				s.mu.Unlock()

				http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: token, Path: "/"})
				fmt.Fprint(w, "<html><body><p>Welcome</p></body></html>")
				return
			}
		}
		fmt.Fprintf(w, loginPage, escaped)
		return
	}

	s.mu.Lock()
	report, ok := s.reports[id]
	s.mu.Unlock()
	if !ok {
		fmt.Fprint(w, missingPage)
		return
	}

	if r.Method == http.MethodPost &&
		r.FormValue("__VIEWSTATE") == "report-state" &&
		r.Form.Has("ctl00$cphSearchArea$btnPostBackButton") &&
		s.expanded(r) {
		s.mu.Lock()
		s.fetches[id]++
		s.mu.Unlock()
		fmt.Fprint(w, report)
		return
	}

	fmt.Fprintf(w, collapsedPage, escaped, escaped)
}

// Report renders a minimal expanded report page containing `body`.
func Report(id, body string) string {
	return fmt.Sprintf(
		`<html><body><span id="cphWorkArea_lblAnimalNumber">A%s</span>%s</body></html>`,
		html.EscapeString(id),
		strings.TrimSpace(body),
	)
}
