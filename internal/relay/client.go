package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"livecast/internal/live"
)

// Client talks to a relay over HTTP and implements the live pipeline's
// collaborator ports: live.SessionStore, live.BlobPublisher, and
// live.BlobFetcher.
type Client struct {
	base string
	http *http.Client
	log  *slog.Logger
}

// NewClient returns a client for the relay at base (e.g. "http://localhost:8080").
func NewClient(base string, log *slog.Logger) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{},
		log:  log,
	}
}

// CreateSession implements live.SessionStore.
func (c *Client) CreateSession(ctx context.Context, s live.Session) (live.Session, error) {
	body, err := json.Marshal(toRecord(s))
	if err != nil {
		return live.Session{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/sessions", bytes.NewReader(body))
	if err != nil {
		return live.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return live.Session{}, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return live.Session{}, fmt.Errorf("create session: relay returned %d", resp.StatusCode)
	}

	var rec Session
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return live.Session{}, fmt.Errorf("create session: decode: %w", err)
	}
	return toDomain(rec), nil
}

// UpdateSession implements live.SessionStore.
func (c *Client) UpdateSession(ctx context.Context, id live.SessionID, patch live.SessionPatch) error {
	body, err := json.Marshal(toRecordPatch(patch))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.base+"/sessions/"+string(id), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return live.ErrSessionNotFound
	case http.StatusConflict:
		return live.ErrSessionEnded
	default:
		return fmt.Errorf("update session: relay returned %d", resp.StatusCode)
	}
}

// GetSession implements live.SessionStore.
func (c *Client) GetSession(ctx context.Context, id live.SessionID) (live.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/sessions/"+string(id), nil)
	if err != nil {
		return live.Session{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return live.Session{}, fmt.Errorf("get session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return live.Session{}, live.ErrSessionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return live.Session{}, fmt.Errorf("get session: relay returned %d", resp.StatusCode)
	}

	var rec Session
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return live.Session{}, fmt.Errorf("get session: decode: %w", err)
	}
	return toDomain(rec), nil
}

// Subscribe implements live.SessionStore. It consumes the relay's
// server-sent-event watch stream in a background goroutine, invoking
// onChange for every snapshot until the stream ends or the subscription is
// cancelled.
func (c *Client) Subscribe(id live.SessionID, onChange func(live.Session)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/sessions/"+string(id)+"/watch", nil)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch session: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		cancel()
		return nil, live.ErrSessionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("watch session: relay returned %d", resp.StatusCode)
	}

	go func() {
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var rec Session
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rec); err != nil {
				c.log.Warn("bad watch snapshot", slog.String("error", err.Error()))
				continue
			}
			onChange(toDomain(rec))
		}
	}()

	return cancel, nil
}

// Publish implements live.BlobPublisher.
func (c *Client) Publish(ctx context.Context, path string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.base+"/blobs/"+path, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", blobContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("publish blob: relay returned %d", resp.StatusCode)
	}

	var out struct {
		Locator string `json:"locator"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("publish blob: decode: %w", err)
	}
	return out.Locator, nil
}

// Fetch implements live.BlobFetcher. Relative locators are resolved against
// the relay base URL.
func (c *Client) Fetch(ctx context.Context, locator string) ([]byte, error) {
	url := locator
	if strings.HasPrefix(locator, "/") {
		url = c.base + locator
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch blob: relay returned %d", resp.StatusCode)
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("fetch blob: read: %w", err)
	}
	return buf.Bytes(), nil
}

func toDomain(r Session) live.Session {
	return live.Session{
		ID:                 live.SessionID(r.ID),
		Title:              r.Title,
		Description:        r.Description,
		StreamKey:          r.StreamKey,
		ThumbnailURL:       r.ThumbnailURL,
		OwnerID:            r.OwnerID,
		OwnerName:          r.OwnerName,
		IsLive:             r.IsLive,
		Viewers:            r.Viewers,
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		RecordingLocator:   r.RecordingLocator,
		LatestChunkIndex:   r.LatestChunkIndex,
		LatestChunkLocator: r.LatestChunkLocator,
		LastChunkTime:      r.LastChunkTime,
	}
}

func toRecord(s live.Session) Session {
	return Session{
		ID:                 string(s.ID),
		Title:              s.Title,
		Description:        s.Description,
		StreamKey:          s.StreamKey,
		ThumbnailURL:       s.ThumbnailURL,
		OwnerID:            s.OwnerID,
		OwnerName:          s.OwnerName,
		IsLive:             s.IsLive,
		Viewers:            s.Viewers,
		StartTime:          s.StartTime,
		EndTime:            s.EndTime,
		RecordingLocator:   s.RecordingLocator,
		LatestChunkIndex:   s.LatestChunkIndex,
		LatestChunkLocator: s.LatestChunkLocator,
		LastChunkTime:      s.LastChunkTime,
	}
}

func toRecordPatch(p live.SessionPatch) SessionPatch {
	return SessionPatch{
		IsLive:             p.IsLive,
		EndTime:            p.EndTime,
		RecordingLocator:   p.RecordingLocator,
		LatestChunkIndex:   p.LatestChunkIndex,
		LatestChunkLocator: p.LatestChunkLocator,
		TouchLastChunk:     p.TouchLastChunk,
		AddViewers:         p.AddViewers,
	}
}

var (
	_ live.SessionStore  = (*Client)(nil)
	_ live.BlobPublisher = (*Client)(nil)
	_ live.BlobFetcher   = (*Client)(nil)
)
