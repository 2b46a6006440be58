package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"stampdesk/stamp-studio/stamp-studio-backend/pkg/cache"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/security"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var (
	ErrInvalidState = errors.New("unknown or expired oauth state")
	ErrExchange     = errors.New("oauth code exchange failed")
	ErrProfile      = errors.New("failed to fetch profile")
)

// Options configures the Google OAuth client. Endpoint and UserInfoURL
// default to Google's.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	StateTTL     time.Duration
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
}

// Profile is the Google account returned after sign-in.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture,omitempty"`
}

// Session is a signed-in user and their session token.
type Session struct {
	User  Profile `json:"user"`
	Token string  `json:"token"`
}

// Service brokers the Google OAuth code flow. States are single use and
// expire after Options.StateTTL.
type Service struct {
	oauth       *oauth2.Config
	userInfoURL string
	states      *cache.TTLCache[time.Time]
	tokens      *security.TokenIssuer
	logger      *zap.Logger
}

func NewService(opts Options, tokens *security.TokenIssuer, logger *zap.Logger) *Service {
	if opts.StateTTL <= 0 {
		opts.StateTTL = 10 * time.Minute
	}
	if opts.Endpoint.AuthURL == "" {
		opts.Endpoint = google.Endpoint
	}
	if opts.UserInfoURL == "" {
		opts.UserInfoURL = googleUserInfoURL
	}
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Endpoint:     opts.Endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
		},
		userInfoURL: opts.UserInfoURL,
		states:      cache.New[time.Time](opts.StateTTL, time.Minute),
		tokens:      tokens,
		logger:      logger,
	}
}

// Close stops the state cache janitor.
func (s *Service) Close() {
	s.states.Stop()
}

// AuthURL returns the consent screen URL with a fresh state.
func (s *Service) AuthURL() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(buf)
	s.states.Set(state, time.Now())
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("prompt", "select_account")), nil
}

// Callback consumes state, exchanges code and issues a session token.
func (s *Service) Callback(ctx context.Context, state, code string) (*Session, error) {
	if _, ok := s.states.Take(state); !ok || state == "" {
		return nil, ErrInvalidState
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrExchange)
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	profile, err := s.fetchProfile(ctx, tok)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(profile.ID, security.PurposeSession, 0, security.Claims{
		Email: profile.Email,
		Name:  profile.Name,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("User signed in", zap.String("email", profile.Email))
	return &Session{User: *profile, Token: token}, nil
}

func (s *Service) fetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProfile, resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("%w: profile has no email", ErrProfile)
	}
	return &profile, nil
}

// Authenticate verifies a session token.
func (s *Service) Authenticate(token string) (*security.Claims, error) {
	return s.tokens.Verify(token, security.PurposeSession)
}
