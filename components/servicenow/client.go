/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package servicenow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rulego/rulego-connectors/components/api"
	"github.com/rulego/rulego-connectors/utils/cache"
	"github.com/rulego/rulego-connectors/utils/json"
)

const (
	// HeaderTotalCount carries X-Total-Count of list responses.
	HeaderTotalCount = "ServiceNowTotalCount"
	// HeaderStatusCode carries the http status code of the response.
	HeaderStatusCode = "ServiceNowStatusCode"
	// HeaderLink carries the Link header used for paging.
	HeaderLink = "ServiceNowLink"
)

// Error is returned for non 2xx responses.
type Error struct {
	StatusCode int
	Status     string
	Message    string
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("servicenow error %d: %s (%s)", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("servicenow error %d: %s", e.StatusCode, e.Message)
}

// ClientConfig locates an instance and holds its credentials.
type ClientConfig struct {
	InstanceUrl string
	ApiVersion  string
	UserName    string
	Password    string
	// OauthClientId switches from basic auth to the oauth password grant.
	OauthClientId     string
	OauthClientSecret string
	// OauthTokenUrl defaults to <InstanceUrl>/oauth_token.do.
	OauthTokenUrl string
}

// Client calls the rest apis of one instance.
type Client struct {
	config ClientConfig
	http   *http.Client
	tokens *cache.MemoryCache
}

func NewClient(config ClientConfig, httpClient *http.Client) *Client {
	config.InstanceUrl = strings.TrimRight(config.InstanceUrl, "/")
	if config.OauthClientId != "" && config.OauthTokenUrl == "" {
		config.OauthTokenUrl = config.InstanceUrl + "/oauth_token.do"
	}
	return &Client{config: config, http: httpClient, tokens: cache.NewMemoryCache()}
}

// ApiPath returns the path of an api below /api/now, honouring the api
// version.
func (c *Client) ApiPath(parts ...string) string {
	var b strings.Builder
	b.WriteString("/api/now")
	if c.config.ApiVersion != "" {
		b.WriteString("/")
		b.WriteString(c.config.ApiVersion)
	}
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString("/")
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// Do sends a request and returns the "result" member of the response
// together with the response headers.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*api.Result, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	endpoint := c.config.InstanceUrl + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Delete(tokenKey)
		}
		return nil, newError(resp, b)
	}
	headers := map[string]string{HeaderStatusCode: strconv.Itoa(resp.StatusCode)}
	if total := resp.Header.Get("X-Total-Count"); total != "" {
		headers[HeaderTotalCount] = total
	}
	if link := resp.Header.Get("Link"); link != "" {
		headers[HeaderLink] = link
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	var value any
	if len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, &envelope); err != nil {
			return nil, fmt.Errorf("servicenow: invalid response: %w", err)
		}
		if envelope.Result != nil {
			value = envelope.Result
		} else {
			value = json.RawMessage(b)
		}
	}
	return &api.Result{Value: value, Headers: headers}, nil
}

func newError(resp *http.Response, body []byte) *Error {
	e := &Error{StatusCode: resp.StatusCode, Status: resp.Status}
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		e.Message, e.Detail = payload.Error.Message, payload.Error.Detail
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = resp.Status
	}
	return e
}

const tokenKey = "token"

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.config.OauthClientId == "" {
		if c.config.UserName != "" {
			req.SetBasicAuth(c.config.UserName, c.config.Password)
		}
		return nil
	}
	token, err := c.tokens.GetOrLoad(tokenKey, func() (interface{}, time.Duration, error) {
		return c.requestToken(ctx)
	})
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token.(string))
	return nil
}

func (c *Client) requestToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {c.config.OauthClientId},
		"client_secret": {c.config.OauthClientSecret},
		"username":      {c.config.UserName},
		"password":      {c.config.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.OauthTokenUrl, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, newError(resp, b)
	}
	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(b, &token); err != nil {
		return "", 0, err
	}
	if token.AccessToken == "" {
		return "", 0, errors.New("servicenow: token response without access_token")
	}
	// refresh a little before expiry
	ttl := time.Duration(token.ExpiresIn)*time.Second - 30*time.Second
	if ttl < time.Second {
		ttl = time.Second
	}
	return token.AccessToken, ttl, nil
}
