package lastfm

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"
)

// AuthCallbackAddr is where the local callback server listens.
const AuthCallbackAddr = "localhost:9847"

const authTimeout = 5 * time.Minute

// ErrAuthTimeout is returned when the user does not authorize in time.
var ErrAuthTimeout = errors.New("authorization timed out")

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><title>Wavebot - Last.fm Authorization</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
{{if .}}<h1>Authorization Successful!</h1>
<p>You can close this window and return to Wavebot.</p>
{{else}}<h1>Authorization Failed</h1>
<p>No token received. Please try again.</p>
{{end}}</body>
</html>`))

// AuthServer receives the token Last.fm redirects to after authorization.
type AuthServer struct {
	server   *http.Server
	listener net.Listener
	tokens   chan string
	done     chan struct{}
}

// StartAuthServer listens on addr and serves /callback.
func StartAuthServer(addr string) (*AuthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	as := &AuthServer{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		tokens:   make(chan string, 1),
		done:     make(chan struct{}),
	}

	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		w.Header().Set("Content-Type", "text/html")
		_ = callbackPage.Execute(w, token != "")
		if token == "" {
			return
		}
		select {
		case as.tokens <- token:
		default:
		}
	})

	go func() {
		_ = as.server.Serve(listener)
		close(as.done)
	}()
	return as, nil
}

// CallbackURL is the URL Last.fm should redirect to.
func (as *AuthServer) CallbackURL() string {
	return "http://" + as.listener.Addr().String() + "/callback"
}

// WaitToken blocks until a token arrives, ctx is done or timeout elapses.
func (as *AuthServer) WaitToken(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case token := <-as.tokens:
		return token, nil
	case <-timer.C:
		return "", ErrAuthTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Shutdown stops the auth server.
func (as *AuthServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = as.server.Shutdown(ctx)
	<-as.done
}

// OpenBrowser opens the given URL in the default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

// Authenticator is the part of the client used to log in.
type Authenticator interface {
	GetToken() (string, error)
	GetAuthURL(token, callback string) string
	GetSession(token string) (username, sessionKey string, err error)
}

// SessionStore persists the session obtained by Login.
type SessionStore interface {
	SaveLastfmSession(username, sessionKey string) error
}

// LoginOptions configures Login.
type LoginOptions struct {
	Addr    string // callback address, AuthCallbackAddr when empty
	Timeout time.Duration
	Open    func(url string) error // OpenBrowser when nil
	Out     io.Writer              // prompts
}

// Login runs the browser authorization flow and stores the session.
func Login(ctx context.Context, auth Authenticator, store SessionStore, opts LoginOptions) (string, error) {
	if opts.Addr == "" {
		opts.Addr = AuthCallbackAddr
	}
	if opts.Timeout <= 0 {
		opts.Timeout = authTimeout
	}
	if opts.Open == nil {
		opts.Open = OpenBrowser
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	as, err := StartAuthServer(opts.Addr)
	if err != nil {
		return "", err
	}
	defer as.Shutdown()

	token, err := auth.GetToken()
	if err != nil {
		return "", err
	}
	url := auth.GetAuthURL(token, as.CallbackURL())
	fmt.Fprintf(opts.Out, "Authorize wavebot on Last.fm:\n  %s\n", url)
	if err := opts.Open(url); err != nil {
		fmt.Fprintln(opts.Out, "Could not open a browser, open the link above manually.")
	}

	if _, err := as.WaitToken(ctx, opts.Timeout); err != nil {
		return "", err
	}
	username, sessionKey, err := auth.GetSession(token)
	if err != nil {
		return "", err
	}
	if err := store.SaveLastfmSession(username, sessionKey); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return username, nil
}
