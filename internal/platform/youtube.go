package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ahfmawlrl/sns-solution/internal/guard"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// YouTubeClient publishes community posts through the YouTube Data API.
type YouTubeClient struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	guard        *guard.Guard
	httpClient   *http.Client
}

// YouTubeConfig holds YouTube client configuration.
type YouTubeConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

func NewYouTubeClient(cfg YouTubeConfig, g *guard.Guard) *YouTubeClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.googleapis.com/youtube/v3"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://oauth2.googleapis.com/token"
	}
	return &YouTubeClient{
		baseURL:      cfg.BaseURL,
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		guard:        g,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *YouTubeClient) Platform() models.Platform {
	return models.PlatformYouTube
}

// Publish posts to the channel's community tab.
func (c *YouTubeClient) Publish(ctx context.Context, account models.PlatformAccount, content models.ContentItem) (PostRef, error) {
	payload := map[string]any{
		"snippet": map[string]any{
			"channelId":   account.AccountName,
			"description": buildCaption(content),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return PostRef{}, fmt.Errorf("marshal youtube payload: %w", err)
	}

	var ref PostRef
	err = c.guard.Do(ctx, string(models.PlatformYouTube), func(callCtx context.Context) error {
		endpoint := c.baseURL + "/activities?part=snippet"
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build youtube request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+account.AccessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("call youtube: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return c.statusError(resp)
		}

		var out struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode youtube response: %w", err)
		}
		ref = PostRef{
			PostID: out.ID,
			URL:    "https://www.youtube.com/post/" + out.ID,
		}
		return nil
	})
	return ref, err
}

// RefreshToken runs the OAuth refresh grant. The stored token for YouTube
// accounts is the refresh token, not the short-lived access token.
func (c *YouTubeClient) RefreshToken(ctx context.Context, account models.PlatformAccount) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {account.AccessToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	var token string
	err := c.guard.Do(ctx, string(models.PlatformYouTube), func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.tokenURL, bytes.NewBufferString(form.Encode()))
		if err != nil {
			return fmt.Errorf("build token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("refresh youtube token: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return c.statusError(resp)
		}

		var out struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode token response: %w", err)
		}
		token = out.AccessToken
		return nil
	})
	return token, err
}

// FetchComments pulls channel comment threads newer than since.
func (c *YouTubeClient) FetchComments(ctx context.Context, account models.PlatformAccount, since time.Time) ([]models.Comment, error) {
	var comments []models.Comment
	err := c.guard.Do(ctx, string(models.PlatformYouTube), func(callCtx context.Context) error {
		endpoint := fmt.Sprintf("%s/commentThreads?part=snippet&allThreadsRelatedToChannelId=%s&order=time",
			c.baseURL, url.QueryEscape(account.AccountName))

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build comments request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+account.AccessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch youtube comments: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return c.statusError(resp)
		}

		var out struct {
			Items []struct {
				ID      string `json:"id"`
				Snippet struct {
					TopLevelComment struct {
						Snippet struct {
							AuthorDisplayName string    `json:"authorDisplayName"`
							TextOriginal      string    `json:"textOriginal"`
							PublishedAt       time.Time `json:"publishedAt"`
						} `json:"snippet"`
					} `json:"topLevelComment"`
				} `json:"snippet"`
			} `json:"items"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode comments response: %w", err)
		}

		for _, item := range out.Items {
			snippet := item.Snippet.TopLevelComment.Snippet
			if snippet.PublishedAt.Before(since) {
				continue
			}
			comments = append(comments, models.Comment{
				ClientID:   account.ClientID,
				Platform:   models.PlatformYouTube,
				ExternalID: item.ID,
				Author:     snippet.AuthorDisplayName,
				Body:       snippet.TextOriginal,
				CreatedAt:  snippet.PublishedAt,
			})
		}
		return nil
	})
	return comments, err
}

// FetchInsights pulls channel-level statistics.
func (c *YouTubeClient) FetchInsights(ctx context.Context, account models.PlatformAccount) (Insights, error) {
	var insights Insights
	err := c.guard.Do(ctx, string(models.PlatformYouTube), func(callCtx context.Context) error {
		endpoint := fmt.Sprintf("%s/channels?part=statistics&id=%s", c.baseURL, url.QueryEscape(account.AccountName))

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build channel request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+account.AccessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch channel statistics: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return c.statusError(resp)
		}

		var out struct {
			Items []struct {
				Statistics struct {
					SubscriberCount string `json:"subscriberCount"`
					ViewCount       string `json:"viewCount"`
					CommentCount    string `json:"commentCount"`
				} `json:"statistics"`
			} `json:"items"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode channel response: %w", err)
		}
		if len(out.Items) == 0 {
			return fmt.Errorf("channel %s not found", account.AccountName)
		}

		stats := out.Items[0].Statistics
		insights.Followers, _ = strconv.ParseInt(stats.SubscriberCount, 10, 64)
		insights.Impressions, _ = strconv.ParseInt(stats.ViewCount, 10, 64)
		insights.Engagements, _ = strconv.ParseInt(stats.CommentCount, 10, 64)
		return nil
	})
	return insights, err
}

func (c *YouTubeClient) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{
		Service: string(models.PlatformYouTube),
		Code:    resp.StatusCode,
		Body:    strings.TrimSpace(string(body)),
	}
}
