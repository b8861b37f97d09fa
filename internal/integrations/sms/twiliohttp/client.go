package twiliohttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Client struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpc      *http.Client
}

func New(baseURL, accountSID, authToken, from string) *Client {
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &Client{
		baseURL:    baseURL,
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Send(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)

	u := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		// Twilio кладёт причину в JSON-тело ошибки
		var terr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&terr)
		if terr.Message != "" {
			return fmt.Errorf("twilio http %d: %s", resp.StatusCode, terr.Message)
		}
		return fmt.Errorf("twilio http %d", resp.StatusCode)
	}
	return nil
}
