package fcmhttp

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const messagingScope = "https://www.googleapis.com/auth/firebase.messaging"

type serviceAccount struct {
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
}

type Client struct {
	baseURL string
	sa      serviceAccount
	key     *rsa.PrivateKey
	httpc   *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// New читает service-account JSON и готовит клиента FCM v1.
// baseURL переопределяется в тестах, по умолчанию боевой endpoint Google.
func New(serviceAccountPath, baseURL string) (*Client, error) {
	raw, err := os.ReadFile(serviceAccountPath)
	if err != nil {
		return nil, errors.Wrap(err, "read service account")
	}

	var sa serviceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, errors.Wrap(err, "parse service account")
	}
	if sa.ProjectID == "" || sa.PrivateKey == "" || sa.ClientEmail == "" {
		return nil, errors.New("service account: missing project_id/private_key/client_email")
	}
	if sa.TokenURI == "" {
		sa.TokenURI = "https://oauth2.googleapis.com/token"
	}

	block, _ := pem.Decode([]byte(sa.PrivateKey))
	if block == nil {
		return nil, errors.New("service account: private_key is not PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("service account: private_key is not RSA")
	}

	if baseURL == "" {
		baseURL = "https://fcm.googleapis.com"
	}

	return &Client{
		baseURL: baseURL,
		sa:      sa,
		key:     key,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func (c *Client) mintJWT(now time.Time) (string, error) {
	header := b64([]byte(`{"alg":"RS256","typ":"JWT"}`))

	claims, err := json.Marshal(map[string]any{
		"iss":   c.sa.ClientEmail,
		"scope": messagingScope,
		"aud":   c.sa.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal claims")
	}

	signingInput := header + "." + b64(claims)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", errors.Wrap(err, "sign jwt")
	}
	return signingInput + "." + b64(sig), nil
}

// accessToken обменивает JWT на OAuth access token и кэширует его
// до истечения (с минутным запасом).
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	if c.token != "" && now.Before(c.tokenExp.Add(-time.Minute)) {
		return c.token, nil
	}

	jwt, err := c.mintJWT(now)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", jwt)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sa.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "new token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "do token request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("oauth token http %d", resp.StatusCode)
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", errors.Wrap(err, "decode token response")
	}
	if tr.AccessToken == "" {
		return "", errors.New("oauth token: empty access_token")
	}

	c.token = tr.AccessToken
	c.tokenExp = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	return c.token, nil
}

type fcmMessage struct {
	Message struct {
		Token        string            `json:"token"`
		Notification map[string]string `json:"notification"`
		Data         map[string]string `json:"data,omitempty"`
		Android      struct {
			Priority string `json:"priority"`
		} `json:"android"`
	} `json:"message"`
}

func (c *Client) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	at, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var m fcmMessage
	m.Message.Token = token
	m.Message.Notification = map[string]string{"title": title, "body": body}
	m.Message.Data = data
	m.Message.Android.Priority = "high"

	payload, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}

	u := fmt.Sprintf("%s/v1/projects/%s/messages:send", c.baseURL, c.sa.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(string(payload)))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+at)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("fcm http %d", resp.StatusCode)
	}
	return nil
}
