// Package session logs into the shelter management site and fetches fully expanded animal
// view reports through an authenticated session.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"sheltercrawl/internal/components/assert"
	"sheltercrawl/internal/components/telemetry"
	"sheltercrawl/lib/htmlutil"
	"sheltercrawl/lib/restyutil"
	libtelemetry "sheltercrawl/lib/telemetry"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	report_login = "session.login"
	report_fetch = "session.fetch"
)

var tracer = otel.Tracer("sheltercrawl/internal/session")

var (
	// ErrAuthFailure means the site rejected the credentials, the session is unusable.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrIncompleteDocument means the report page did not contain the controls needed to
	// expand it, usually because the identifier does not exist.
	ErrIncompleteDocument = errors.New("incomplete document")
)

const (
	// identifier that never exists, requesting it surfaces the login form
	loginPageID = "000000000"

	signInMarker = "Please sign in to continue"

	ShelterIDField = "ctl00$cphSearchArea$txtShelterPetFinderId"
	UsernameField  = "ctl00$cphSearchArea$txtUserName"
	PasswordField  = "ctl00$cphSearchArea$txtPassword"
	PostbackButton = "ctl00$cphSearchArea$btnPostBackButton"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

// DefaultCookies are the report section toggles, each one forced to "block" expands its
// section of the report.
var DefaultCookies = []string{
	"rbCookie1rbBodysbAnimal", "rbCookie1rbBodysbAnimalDetails", "rbCookie1rbBodysbAnimalGroup",
	"rbCookie1rbBodysbAnimalPIT", "rbCookie1rbBodysbIntake", "rbCookie1rbBodysbOutcome",
	"rbCookie1rbBodysbOwnership", "rbCookie1rbBodysbLostFound", "rbCookie1rbBodysbCareActivity",
	"rbCookie1rbBodysbStage", "rbCookie1rbBodysbLocation", "rbCookie1rbBodysbAnimalHold",
	"rbCookie1rbBodysbMicrochip", "rbCookie1rbBodysbAnimalTag", "rbCookie1rbBodysbExam",
	"rbCookie1rbBodysbBehaviorTestsCompleted", "rbCookie1rbBodysbBehaviorTestsScheduled",
	"rbCookie1rbBodysbAnimalMemo", "rbCookie1rbBodysbVoucher", "rbCookie1rbBodysbWaiver",
	"rbCookie1rbBodysbProfile", "rbCookie1rbBodysbFoster", "rbCookie1rbBodysbCase",
	"rbCookie1rbBodysbLicense",
	"rbCookie1rbBodysbContacts", "rbCookie1rbBodysbTransferNWRequest", "rbCookie1rbBodysbSchedule",
	"rbCookie1rbBodysbHotline", "rbCookie1rbBodysbDocumentList",
}

type Credentials struct {
	ShelterID string `json:"shelter_id"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

type Options struct {
	// URLTemplate has the identifier appended to it to form a report url.
	URLTemplate string
	Credentials Credentials
	// Cookies are forced to "block" before every postback.
	Cookies []string
	// CookieDomain and CookiePath scope the forced cookies, they default to the host and
	// directory of URLTemplate.
	CookieDomain string
	CookiePath   string
	Timeout      time.Duration
	// RequestsPerSecond limits this session's request rate, 0 disables the limit.
	RequestsPerSecond float64
	CloudflareBypass  bool
	// Name prefixes request ids in debug reports and HTTP dumps.
	Name string
	// Output receives HTTP dumps, it may be nil.
	Output restyutil.Output
}

// Session is a single authenticated browsing context. It must not be shared between
// goroutines.
type Session struct {
	opts       Options
	http       *resty.Client
	jar        http.CookieJar
	cookieURL  *url.URL
	cookiePath string
	tel        telemetry.API
}

func New(opts Options, tel telemetry.API) (*Session, error) {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.URLTemplate)

	tel = telemetry.NewScopedAPI("session", tel)

	template, err := url.Parse(strings.TrimSpace(opts.URLTemplate))
	if err != nil {
		return nil, fmt.Errorf("parse url template: %w", err)
	}
	if template.Host == "" {
		return nil, fmt.Errorf("url template %q has no host", opts.URLTemplate)
	}

	domain := opts.CookieDomain
	if domain == "" {
		domain = template.Hostname()
	}
	cookiePath := opts.CookiePath
	if cookiePath == "" {
		cookiePath = path.Dir(template.Path)
	}
	cookieURL := &url.URL{
		Scheme: template.Scheme,
		Host:   domain,
		Path:   cookiePath,
	}

	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetCookieJar(jar)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetTimeout(opts.Timeout)

	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	name := opts.Name
	if name == "" {
		name = "session"
	}
	telemetry.InstrumentResty(httpClient, tel, name, opts.Output)
	libtelemetry.TraceResty(httpClient, "sheltercrawl/internal/session/http")

	return &Session{
		opts:       opts,
		http:       httpClient,
		jar:        jar,
		cookieURL:  cookieURL,
		cookiePath: cookiePath,
		tel:        tel,
	}, nil
}

func (s *Session) reportURL(id string) string {
	return strings.TrimSpace(s.opts.URLTemplate) + id
}

type page struct {
	url  *url.URL
	body []byte
	doc  *goquery.Document
}

func (s *Session) get(ctx context.Context, endpoint string) (page, error) {
	res, err := s.http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		return page{}, err
	}
	return readPage(res)
}

func readPage(res *resty.Response) (page, error) {
	if res.IsError() {
		return page{}, fmt.Errorf("unexpected status %s", res.Status())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return page{}, fmt.Errorf("parse: %w", err)
	}
	// the final url after redirects, form actions are relative to it
	pageURL := res.Request.RawRequest.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		pageURL = res.RawResponse.Request.URL
	}
	return page{url: pageURL, body: res.Body(), doc: doc}, nil
}

// submit posts the first form of `p`, clicking the submit control `button` (or the first
// one if empty), `fill` overrides individual fields.
func (s *Session) submit(ctx context.Context, p page, button string, fill map[string]string) (page, error) {
	forms := p.doc.Find("form")
	if forms.Length() == 0 {
		return page{}, fmt.Errorf("%w: page has no form", ErrIncompleteDocument)
	}
	form := htmlutil.ParseForm(forms.First())
	values, err := form.Submit(button)
	if err != nil {
		return page{}, fmt.Errorf("%w: %w", ErrIncompleteDocument, err)
	}
	for k, v := range fill {
		values.Set(k, v)
	}

	action, err := form.ResolveAction(p.url)
	if err != nil {
		return page{}, fmt.Errorf("resolve form action: %w", err)
	}

	req := s.http.R().SetContext(ctx)
	var res *resty.Response
	if form.Method == "GET" {
		action.RawQuery = values.Encode()
		res, err = req.Get(action.String())
	} else {
		res, err = req.SetFormDataFromValues(values).Post(action.String())
	}
	if err != nil {
		return page{}, err
	}
	return readPage(res)
}

// Login authenticates the session, a rejection is reported as ErrAuthFailure.
func (s *Session) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	loginError := func(err error) error {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("login: %w", err)
	}

	loginPage, err := s.get(ctx, s.reportURL(loginPageID))
	if err != nil {
		s.tel.ReportBroken(report_login, fmt.Errorf("login page: %w", err))
		return loginError(err)
	}

	result, err := s.submit(ctx, loginPage, "", map[string]string{
		ShelterIDField: s.opts.Credentials.ShelterID,
		UsernameField:  s.opts.Credentials.Username,
		PasswordField:  s.opts.Credentials.Password,
	})
	if err != nil {
		s.tel.ReportBroken(report_login, fmt.Errorf("submit credentials: %w", err))
		return loginError(err)
	}

	if bytes.Contains(result.body, []byte(signInMarker)) {
		s.tel.ReportWarning(report_login, ErrAuthFailure, s.opts.Credentials.ShelterID, s.opts.Credentials.Username)
		return loginError(ErrAuthFailure)
	}
	return nil
}

func (s *Session) forceCookies() {
	cookies := make([]*http.Cookie, 0, len(s.opts.Cookies))
	for _, name := range s.opts.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:  name,
			Value: "block",
			Path:  s.cookiePath,
		})
	}
	s.jar.SetCookies(s.cookieURL, cookies)
}

// Fetch returns the fully expanded report for `id`. The report page is requested once,
// the section cookies are forced, then the page's form is posted back to render every
// section.
func (s *Session) Fetch(ctx context.Context, id string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	fetchError := func(err error) error {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("fetch A%s: %w", id, err)
	}

	initial, err := s.get(ctx, s.reportURL(id))
	if err != nil {
		s.tel.ReportWarning(report_fetch, id, fmt.Errorf("report page: %w", err))
		return nil, fetchError(err)
	}

	s.forceCookies()

	result, err := s.submit(ctx, initial, PostbackButton, nil)
	if err != nil {
		if errors.Is(err, ErrIncompleteDocument) {
			s.tel.ReportDebug("report did not load, confirm the identifier is valid", id)
		} else {
			s.tel.ReportWarning(report_fetch, id, fmt.Errorf("postback: %w", err))
		}
		return nil, fetchError(err)
	}

	return result.body, nil
}

// AnimalNumber reads the animal number label of a fetched report, it is empty when the
// label is missing.
func AnimalNumber(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return htmlutil.NormalizeText(doc.Find("#cphWorkArea_lblAnimalNumber").Text())
}
