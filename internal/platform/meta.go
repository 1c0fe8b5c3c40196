package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ahfmawlrl/sns-solution/internal/guard"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// MetaClient publishes to Meta Graph API surfaces (Instagram, Facebook).
type MetaClient struct {
	baseURL    string
	platform   models.Platform
	guard      *guard.Guard
	httpClient *http.Client
}

// MetaConfig holds Meta client configuration.
type MetaConfig struct {
	BaseURL  string
	Platform models.Platform
}

func NewMetaClient(cfg MetaConfig, g *guard.Guard) *MetaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v19.0"
	}
	return &MetaClient{
		baseURL:    cfg.BaseURL,
		platform:   cfg.Platform,
		guard:      g,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *MetaClient) Platform() models.Platform {
	return c.platform
}

type metaPublishResponse struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink_url"`
}

// Publish creates a media post on the connected account.
func (c *MetaClient) Publish(ctx context.Context, account models.PlatformAccount, content models.ContentItem) (PostRef, error) {
	body := url.Values{
		"message":      {buildCaption(content)},
		"access_token": {account.AccessToken},
	}

	var ref PostRef
	err := c.guard.Do(ctx, string(c.platform), func(callCtx context.Context) error {
		endpoint := fmt.Sprintf("%s/%s/feed", c.baseURL, account.AccountName)
		resp, err := c.postForm(callCtx, endpoint, body)
		if err != nil {
			return err
		}

		ref = PostRef{
			PostID: resp.ID,
			URL:    resp.Permalink,
		}
		if ref.URL == "" {
			ref.URL = fmt.Sprintf("https://%s.com/%s", c.platform, resp.ID)
		}
		return nil
	})
	return ref, err
}

// RefreshToken exchanges the current token for a long-lived one.
func (c *MetaClient) RefreshToken(ctx context.Context, account models.PlatformAccount) (string, error) {
	var token string
	err := c.guard.Do(ctx, string(c.platform), func(callCtx context.Context) error {
		endpoint := fmt.Sprintf("%s/oauth/access_token?grant_type=fb_exchange_token&fb_exchange_token=%s",
			c.baseURL, url.QueryEscape(account.AccessToken))

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build refresh request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("refresh token: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return c.statusError(resp)
		}

		var out struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode refresh response: %w", err)
		}
		token = out.AccessToken
		return nil
	})
	return token, err
}

type metaComment struct {
	ID     string `json:"id"`
	Parent struct {
		ID string `json:"id"`
	} `json:"parent"`
	From struct {
		Name string `json:"name"`
	} `json:"from"`
	Message     string    `json:"message"`
	CreatedTime time.Time `json:"created_time"`
}

// FetchComments pulls comments newer than since across the account's recent
// posts.
func (c *MetaClient) FetchComments(ctx context.Context, account models.PlatformAccount, since time.Time) ([]models.Comment, error) {
	var comments []models.Comment
	err := c.guard.Do(ctx, string(c.platform), func(callCtx context.Context) error {
		endpoint := fmt.Sprintf("%s/%s/comments?filter=stream&since=%d&access_token=%s",
			c.baseURL, account.AccountName, since.Unix(), url.QueryEscape(account.AccessToken))

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build comments request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch comments: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return c.statusError(resp)
		}

		var out struct {
			Data []metaComment `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode comments response: %w", err)
		}

		comments = make([]models.Comment, 0, len(out.Data))
		for _, mc := range out.Data {
			comments = append(comments, models.Comment{
				ClientID:         account.ClientID,
				Platform:         c.platform,
				ExternalID:       mc.ID,
				ParentExternalID: mc.Parent.ID,
				Author:           mc.From.Name,
				Body:             mc.Message,
				CreatedAt:        mc.CreatedTime,
			})
		}
		return nil
	})
	return comments, err
}

// FetchInsights pulls the account-level engagement snapshot.
func (c *MetaClient) FetchInsights(ctx context.Context, account models.PlatformAccount) (Insights, error) {
	var insights Insights
	err := c.guard.Do(ctx, string(c.platform), func(callCtx context.Context) error {
		endpoint := fmt.Sprintf("%s/%s/insights?metric=follower_count,impressions,accounts_engaged&period=day&access_token=%s",
			c.baseURL, account.AccountName, url.QueryEscape(account.AccessToken))

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build insights request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch insights: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return c.statusError(resp)
		}

		var out struct {
			Data []struct {
				Name   string `json:"name"`
				Values []struct {
					Value int64 `json:"value"`
				} `json:"values"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode insights response: %w", err)
		}

		for _, metric := range out.Data {
			if len(metric.Values) == 0 {
				continue
			}
			value := metric.Values[len(metric.Values)-1].Value
			switch metric.Name {
			case "follower_count":
				insights.Followers = value
			case "impressions":
				insights.Impressions = value
			case "accounts_engaged":
				insights.Engagements = value
			}
		}
		return nil
	})
	return insights, err
}

func (c *MetaClient) postForm(ctx context.Context, endpoint string, form url.Values) (*metaPublishResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", c.platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var out metaPublishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode publish response: %w", err)
	}
	return &out, nil
}

func (c *MetaClient) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{
		Service: string(c.platform),
		Code:    resp.StatusCode,
		Body:    strings.TrimSpace(string(body)),
	}
}

func buildCaption(content models.ContentItem) string {
	if content.Body == "" {
		return content.Title
	}
	return content.Title + "\n\n" + content.Body
}
