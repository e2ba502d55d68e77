package session

import (
	"context"
	"sheltercrawl/internal/components/telemetry"
	"sheltercrawl/internal/session/sessiontest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, server *sessiontest.Server, creds Credentials) (*Session, *telemetry.Recorder) {
	tel := &telemetry.Recorder{}
	s, err := New(Options{
		URLTemplate: server.URLTemplate(),
		Credentials: creds,
		Cookies:     server.Cookies,
		Timeout:     5 * time.Second,
	}, tel)
	require.NoError(t, err)
	return s, tel
}

func goodCredentials(server *sessiontest.Server) Credentials {
	return Credentials{
		ShelterID: server.ShelterID,
		Username:  server.Username,
		Password:  server.Password,
	}
}

func TestLogin(t *testing.T) {
	server := sessiontest.NewServer(map[string]string{}, DefaultCookies)
	defer server.Close()

	s, _ := newTestSession(t, server, goodCredentials(server))
	require.NoError(t, s.Login(context.Background()))
	require.Equal(t, 1, server.Logins())
}

func TestLoginRejected(t *testing.T) {
	server := sessiontest.NewServer(map[string]string{}, DefaultCookies)
	defer server.Close()

	creds := goodCredentials(server)
	creds.Password = "wrong"
	s, tel := newTestSession(t, server, creds)

	err := s.Login(context.Background())
	require.ErrorIs(t, err, ErrAuthFailure)
	require.Equal(t, 0, server.Logins())
	require.Equal(t, 1, tel.Count("warning", report_login))
}

func TestFetch(t *testing.T) {
	report := sessiontest.Report("12345678", "<table><tr><td>Parvo Ward</td></tr></table>")
	server := sessiontest.NewServer(map[string]string{"12345678": report}, DefaultCookies)
	defer server.Close()

	s, _ := newTestSession(t, server, goodCredentials(server))
	require.NoError(t, s.Login(context.Background()))

	body, err := s.Fetch(context.Background(), "12345678")
	require.NoError(t, err)
	require.Equal(t, report, string(body))
	require.Equal(t, "A12345678", AnimalNumber(body))
	require.Equal(t, 1, server.Fetches("12345678"))
}

func TestFetchWithoutForcedCookies(t *testing.T) {
	report := sessiontest.Report("12345678", "<p>expanded</p>")
	server := sessiontest.NewServer(map[string]string{"12345678": report}, DefaultCookies)
	defer server.Close()

	tel := &telemetry.Recorder{}
	s, err := New(Options{
		URLTemplate: server.URLTemplate(),
		Credentials: goodCredentials(server),
		Cookies:     DefaultCookies[:3],
	}, tel)
	require.NoError(t, err)
	require.NoError(t, s.Login(context.Background()))

	// the site falls back to the collapsed page when a section toggle is missing
	body, err := s.Fetch(context.Background(), "12345678")
	require.NoError(t, err)
	require.Contains(t, string(body), "collapsed")
	require.Equal(t, 0, server.Fetches("12345678"))
}

func TestFetchUnknownIdentifier(t *testing.T) {
	server := sessiontest.NewServer(map[string]string{}, DefaultCookies)
	defer server.Close()

	s, _ := newTestSession(t, server, goodCredentials(server))
	require.NoError(t, s.Login(context.Background()))

	_, err := s.Fetch(context.Background(), "99999999")
	require.ErrorIs(t, err, ErrIncompleteDocument)
	require.Contains(t, err.Error(), "A99999999")
}

func TestFetchUnauthenticated(t *testing.T) {
	report := sessiontest.Report("12345678", "<p>expanded</p>")
	server := sessiontest.NewServer(map[string]string{"12345678": report}, DefaultCookies)
	defer server.Close()

	s, _ := newTestSession(t, server, goodCredentials(server))

	// without logging in the login form comes back, it has no postback button
	_, err := s.Fetch(context.Background(), "12345678")
	require.ErrorIs(t, err, ErrIncompleteDocument)
}

func TestNewRejectsBadTemplate(t *testing.T) {
	_, err := New(Options{URLTemplate: "/relative/path?AnimalID="}, &telemetry.Recorder{})
	require.Error(t, err)
}
