// Package marketapi is the HTTP client for the marketplace REST API.
// Every response is a {"data", "message"} envelope; non-2xx responses
// surface as *StatusError carrying the envelope message.
package marketapi

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

	"github.com/example/market-comments/internal/platform/api"
)

const maxResponseBytes = 4 << 20

type Client struct {
	BaseURL     string
	HTTPClient  *http.Client
	Credentials Credentials
	UserAgent   string
}

func New(baseURL string, creds Credentials) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		Credentials: creds,
		UserAgent:   "market-comments/1.0",
	}
}

func (c *Client) TopLevelComments(ctx context.Context, productID string, relevant bool) ([]CommentPayload, error) {
	path := "/comments/product/" + url.PathEscape(productID)
	if relevant {
		path += "/relevant"
	}
	var out []CommentPayload
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Replies(ctx context.Context, parentID string) ([]CommentPayload, error) {
	var out []CommentPayload
	if err := c.do(ctx, http.MethodGet, "/comments/"+url.PathEscape(parentID)+"/replies", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateComment(ctx context.Context, productID, body string) (CommentPayload, error) {
	var out CommentPayload
	err := c.do(ctx, http.MethodPost, "/comments/create", createCommentRequest{ProductID: productID, Comment: body}, &out)
	return out, err
}

func (c *Client) CreateReply(ctx context.Context, parentID, body string) (CommentPayload, error) {
	var out CommentPayload
	err := c.do(ctx, http.MethodPost, "/comments/"+url.PathEscape(parentID)+"/reply", commentBodyRequest{Comment: body}, &out)
	return out, err
}

func (c *Client) UpdateComment(ctx context.Context, commentID, body string) (CommentPayload, error) {
	var out CommentPayload
	err := c.do(ctx, http.MethodPatch, "/comments/update/"+url.PathEscape(commentID), commentBodyRequest{Comment: body}, &out)
	return out, err
}

func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	return c.do(ctx, http.MethodDelete, "/comments/delete/"+url.PathEscape(commentID), nil, nil)
}

func (c *Client) Likes(ctx context.Context) ([]LikePayload, error) {
	var out []LikePayload
	if err := c.do(ctx, http.MethodGet, "/likes/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddLike(ctx context.Context, productID string) (LikePayload, error) {
	var out LikePayload
	err := c.do(ctx, http.MethodPost, "/likes/add", addLikeRequest{ProductID: productID}, &out)
	return out, err
}

func (c *Client) RemoveLike(ctx context.Context, likeID string) error {
	return c.do(ctx, http.MethodDelete, "/likes/delete/"+url.PathEscape(likeID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.Credentials.Token()
	if err != nil {
		return fmt.Errorf("marketapi: %s %s: %w", method, path, err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("marketapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("marketapi: %s %s: read body: %w", method, path, err)
	}

	var env api.Envelope
	if len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("marketapi: %s %s: decode error: %w body=%q", method, path, err, string(b[:min(len(b), 200)]))
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Message: env.Message}
	}
	if out == nil || env.IsNull() {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("marketapi: %s %s: decode data: %w", method, path, err)
	}
	return nil
}
