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

package watsonx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rulego/rulego-connectors/utils/cache"
	"github.com/rulego/rulego-connectors/utils/httpclient"
	"github.com/rulego/rulego-connectors/utils/json"
)

const (
	DefaultBaseUrl = "https://us-south.ml.cloud.ibm.com"
	DefaultIamUrl  = "https://iam.cloud.ibm.com/identity/token"
	DefaultVersion = "2024-05-31"
)

// Error is returned for non 2xx responses.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Trace      string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("watsonx error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("watsonx error %d: %s", e.StatusCode, e.Message)
}

func newError(statusCode int, body []byte) *Error {
	e := &Error{StatusCode: statusCode}
	var payload struct {
		Errors []struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
		Trace        string `json:"trace"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		e.Trace = payload.Trace
		if len(payload.Errors) > 0 {
			e.Code, e.Message = payload.Errors[0].Code, payload.Errors[0].Message
		} else {
			e.Message = payload.ErrorMessage
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(statusCode)
	}
	return e
}

// ClientConfig locates the service and holds the api key.
type ClientConfig struct {
	BaseUrl string
	IamUrl  string
	ApiKey  string
	Version string
}

// Client calls the watsonx.ai rest api with a bearer token exchanged from an
// api key.
type Client struct {
	config ClientConfig
	http   *http.Client
	tokens *cache.MemoryCache
}

func NewClient(config ClientConfig, httpClient *http.Client) *Client {
	if config.BaseUrl == "" {
		config.BaseUrl = DefaultBaseUrl
	}
	if config.IamUrl == "" {
		config.IamUrl = DefaultIamUrl
	}
	if config.Version == "" {
		config.Version = DefaultVersion
	}
	config.BaseUrl = strings.TrimRight(config.BaseUrl, "/")
	return &Client{config: config, http: httpClient, tokens: cache.NewMemoryCache()}
}

const tokenKey = "iam"

func (c *Client) token(ctx context.Context) (string, error) {
	token, err := c.tokens.GetOrLoad(tokenKey, func() (interface{}, time.Duration, error) {
		form := url.Values{
			"grant_type": {"urn:ibm:params:oauth:grant-type:apikey"},
			"apikey":     {c.config.ApiKey},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.IamUrl, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set(httpclient.ContentTypeKey, "application/x-www-form-urlencoded")
		req.Header.Set(httpclient.AcceptKey, httpclient.JsonMime)
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, 0, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, 0, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, 0, newError(resp.StatusCode, b)
		}
		var token struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}
		if err := json.Unmarshal(b, &token); err != nil {
			return nil, 0, err
		}
		if token.AccessToken == "" {
			return nil, 0, errors.New("watsonx: iam response without access_token")
		}
		// refresh a minute before expiry
		ttl := time.Duration(token.ExpiresIn)*time.Second - time.Minute
		if ttl < time.Second {
			ttl = time.Second
		}
		return token.AccessToken, ttl, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// Post sends request as json to path and returns the response. The caller
// closes the body of successful responses. Non 2xx responses are returned as
// *Error.
func (c *Client) Post(ctx context.Context, path string, request any, stream bool) (*http.Response, error) {
	b, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s%s?version=%s", c.config.BaseUrl, path, url.QueryEscape(c.config.Version))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(httpclient.ContentTypeKey, httpclient.JsonMime)
	if stream {
		req.Header.Set(httpclient.AcceptKey, httpclient.EventStreamMime)
	} else {
		req.Header.Set(httpclient.AcceptKey, httpclient.JsonMime)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Delete(tokenKey)
		}
		return nil, newError(resp.StatusCode, body)
	}
	return resp, nil
}

// PostJson posts request and decodes the json response into response.
func (c *Client) PostJson(ctx context.Context, path string, request any, response any) error {
	resp, err := c.Post(ctx, path, request, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, response)
}
