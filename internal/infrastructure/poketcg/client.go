// Package poketcg talks to the Pokemon TCG API v2 and flattens its pricing
// payloads. All network discipline lives here: the process-wide rate
// limiter, the retry/backoff state machine, and status classification.
package poketcg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cardlens/scanner/internal/domain"
)

// DefaultBaseURL is the public Pokemon TCG API endpoint.
const DefaultBaseURL = "https://api.pokemontcg.io/v2"

const searchPageSize = 50

// Client handles communication with the Pokemon TCG API.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	limiter    *rate.Limiter
	schedule   []time.Duration
	debug      bool
}

// NewClient creates an API client. The limiter is owned by the caller and
// shared process-wide so that every resolution attempt, interactive or
// batch, serializes through the same request-rate ceiling. Tests substitute
// a no-op limiter.
func NewClient(apiKey, baseURL string, limiter *rate.Limiter) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if limiter == nil {
		// 5 qps matches the documented ceiling for keyed access.
		limiter = rate.NewLimiter(rate.Limit(5), 1)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		limiter:  limiter,
		schedule: DefaultBackoffSchedule,
	}
}

// SetDebug toggles request logging.
func (c *Client) SetDebug(enabled bool) { c.debug = enabled }

// SetBackoffSchedule overrides the escalating wait schedule. Tests use a
// compressed schedule to keep elapsed time bounded.
func (c *Client) SetBackoffSchedule(schedule []time.Duration) {
	if len(schedule) > 0 {
		c.schedule = schedule
	}
}

// wire structures for the v2 JSON bodies.
type cardPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
	Rarity string `json:"rarity"`
	Set    struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		ReleaseDate string `json:"releaseDate"`
	} `json:"set"`
	Images     map[string]string `json:"images"`
	TCGPlayer  map[string]any    `json:"tcgplayer"`
	Cardmarket map[string]any    `json:"cardmarket"`
}

type listResponse struct {
	Data []cardPayload `json:"data"`
}

type singleResponse struct {
	Data *cardPayload `json:"data"`
}

func toResolved(p cardPayload) domain.ResolvedCard {
	return domain.ResolvedCard{
		CardID:         p.ID,
		Name:           p.Name,
		Number:         p.Number,
		SetName:        p.Set.Name,
		SetID:          p.Set.ID,
		SetReleaseDate: p.Set.ReleaseDate,
		Rarity:         p.Rarity,
		Images:         p.Images,
		RawTCGPlayer:   p.TCGPlayer,
		RawCardmarket:  p.Cardmarket,
	}
}

// getJSON executes one rate-limited GET, driving the backoff state machine
// until SUCCESS or FATAL_FAILURE. Retryable statuses are 429 and the 5xx
// server-error class; every wait happens on the calling path and respects
// context cancellation.
func (c *Client) getJSON(ctx context.Context, reqURL string) ([]byte, error) {
	fsm := NewBackoff(c.schedule)

	for fsm.State() == StatePending {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", "cardlens/1.0")
		if c.apiKey != "" {
			req.Header.Set("X-Api-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if c.debug {
				log.Printf("[RESOLVE] transport error (attempt %d): %v", fsm.Attempts()+1, err)
			}
			if delay, retry := fsm.Fail(true); retry {
				if werr := sleepCtx(ctx, delay); werr != nil {
					return nil, werr
				}
				continue
			}
			lastErr := fmt.Errorf("%w: %v", domain.ErrRetryableNetwork, err)
			return nil, fmt.Errorf("%w: retries exhausted: %w", domain.ErrFatalNetwork, lastErr)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("%w: read body: %v", domain.ErrFatalNetwork, readErr)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			fsm.Succeed()
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, domain.ErrCardNotFound
		case retryableStatus(resp.StatusCode):
			if c.debug {
				log.Printf("[RESOLVE] retryable status %d (attempt %d)", resp.StatusCode, fsm.Attempts()+1)
			}
			if delay, retry := fsm.Fail(true); retry {
				if werr := sleepCtx(ctx, delay); werr != nil {
					return nil, werr
				}
				continue
			}
			lastErr := fmt.Errorf("%w: status %d", domain.ErrRetryableNetwork, resp.StatusCode)
			return nil, fmt.Errorf("%w: retries exhausted: %w", domain.ErrFatalNetwork, lastErr)
		default:
			fsm.Fail(false)
			return nil, fmt.Errorf("%w: status %d: %s", domain.ErrFatalNetwork, resp.StatusCode, string(body))
		}
	}

	return nil, fmt.Errorf("%w: request left in state %s", domain.ErrFatalNetwork, fsm.State())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SearchCards queries the card database by collector number and/or name.
// Either may be empty, but not both.
func (c *Client) SearchCards(ctx context.Context, number, name string) ([]domain.ResolvedCard, error) {
	var terms []string
	if n := queryNumber(number); n != "" {
		terms = append(terms, fmt.Sprintf("number:%q", n))
	}
	if name != "" {
		terms = append(terms, fmt.Sprintf("name:%q", name))
	}
	if len(terms) == 0 {
		return nil, domain.ErrResolution
	}

	params := url.Values{}
	params.Set("q", strings.Join(terms, " "))
	params.Set("pageSize", fmt.Sprintf("%d", searchPageSize))
	reqURL := fmt.Sprintf("%s/cards?%s", c.baseURL, params.Encode())

	if c.debug {
		log.Printf("[RESOLVE] SearchCards number=%q name=%q", number, name)
	}

	body, err := c.getJSON(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	cards := make([]domain.ResolvedCard, 0, len(list.Data))
	for _, p := range list.Data {
		if p.ID == "" || p.Name == "" {
			continue
		}
		cards = append(cards, toResolved(p))
	}
	if c.debug {
		log.Printf("[RESOLVE] SearchCards returned %d candidates", len(cards))
	}
	return cards, nil
}

// queryNumber reduces an OCR "num/den" reading to the bare collector number
// the API indexes.
func queryNumber(number string) string {
	if idx := strings.Index(number, "/"); idx >= 0 {
		number = number[:idx]
	}
	return strings.TrimSpace(number)
}

// GetCard fetches a single card by its canonical id.
func (c *Client) GetCard(ctx context.Context, cardID string) (*domain.ResolvedCard, error) {
	if cardID == "" {
		return nil, domain.ErrInvalidRequest
	}

	reqURL := fmt.Sprintf("%s/cards/%s", c.baseURL, url.PathEscape(cardID))
	body, err := c.getJSON(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var single singleResponse
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("decode card response: %w", err)
	}
	if single.Data == nil {
		return nil, domain.ErrCardNotFound
	}
	card := toResolved(*single.Data)
	return &card, nil
}
